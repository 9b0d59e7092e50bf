package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/propkit/billing/pkg/actor"
	"github.com/propkit/billing/pkg/entitlement"
	"github.com/propkit/billing/pkg/pg"
	"github.com/propkit/billing/pkg/planchange"
	"github.com/propkit/billing/pkg/subscription"
	"github.com/propkit/billing/pkg/upsell"
)

// PGSubscriptionStore implements subscription.Store backed by PostgreSQL.
type PGSubscriptionStore struct {
	pool *pgxpool.Pool
}

func NewPGSubscriptionStore(pool *pgxpool.Pool) *PGSubscriptionStore {
	if pool == nil {
		panic("billing: pgxpool is required")
	}
	return &PGSubscriptionStore{pool: pool}
}

const subscriptionColumns = `account_id, plan_id, cycle, status, provider_sub_id,
	current_period_start, current_period_end, cancel_at_period_end,
	last_plan_change_at, canceled_at, created_at, updated_at`

func (s *PGSubscriptionStore) Get(ctx context.Context, accountID uuid.UUID) (*subscription.Subscription, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions WHERE account_id = $1`, accountID)
	return scanSubscription(row)
}

func (s *PGSubscriptionStore) GetByProviderSubID(ctx context.Context, providerSubID string) (*subscription.Subscription, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions WHERE provider_sub_id = $1`, providerSubID)
	return scanSubscription(row)
}

func (s *PGSubscriptionStore) Save(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (account_id, plan_id, cycle, status, provider_sub_id,
			current_period_start, current_period_end, cancel_at_period_end,
			last_plan_change_at, canceled_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW(),NOW())
		ON CONFLICT (account_id) DO UPDATE SET
			plan_id = EXCLUDED.plan_id,
			cycle = EXCLUDED.cycle,
			status = EXCLUDED.status,
			provider_sub_id = EXCLUDED.provider_sub_id,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			last_plan_change_at = EXCLUDED.last_plan_change_at,
			canceled_at = EXCLUDED.canceled_at,
			updated_at = NOW()`,
		sub.AccountID, sub.PlanID, sub.Cycle, sub.Status, nullIfEmpty(sub.ProviderSubID),
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd,
		sub.LastPlanChangeAt, sub.CanceledAt)
	if err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*subscription.Subscription, error) {
	var sub subscription.Subscription
	var providerSubID *string
	err := row.Scan(&sub.AccountID, &sub.PlanID, &sub.Cycle, &sub.Status, &providerSubID,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CancelAtPeriodEnd,
		&sub.LastPlanChangeAt, &sub.CanceledAt, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	if providerSubID != nil {
		sub.ProviderSubID = *providerSubID
	}
	return &sub, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// PGChangeRecorder implements planchange.ChangeRecorder backed by
// PostgreSQL. Inserts only; the table carries no update path.
type PGChangeRecorder struct {
	pool *pgxpool.Pool
}

func NewPGChangeRecorder(pool *pgxpool.Pool) *PGChangeRecorder {
	if pool == nil {
		panic("billing: pgxpool is required")
	}
	return &PGChangeRecorder{pool: pool}
}

func (s *PGChangeRecorder) Append(ctx context.Context, rec *planchange.ChangeRecord) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO plan_change_records (id, account_id, prev_plan_id, prev_cycle,
			new_plan_id, new_cycle, change_type, prorated_amount, currency,
			bypassed_cooldown, changed_by_admin, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW())
		RETURNING created_at`,
		rec.ID, rec.AccountID, rec.PrevPlanID, rec.PrevCycle,
		rec.NewPlanID, rec.NewCycle, rec.ChangeType, rec.ProratedAmount, rec.Currency,
		rec.BypassedCooldown, rec.ChangedByAdmin).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("append change record: %w", err)
	}
	return nil
}

func (s *PGChangeRecorder) Latest(ctx context.Context, accountID uuid.UUID) (*planchange.ChangeRecord, error) {
	var rec planchange.ChangeRecord
	err := s.pool.QueryRow(ctx, `
		SELECT id, account_id, prev_plan_id, prev_cycle, new_plan_id, new_cycle,
			change_type, prorated_amount, currency, bypassed_cooldown, changed_by_admin, created_at
		FROM plan_change_records
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, accountID).Scan(
		&rec.ID, &rec.AccountID, &rec.PrevPlanID, &rec.PrevCycle, &rec.NewPlanID, &rec.NewCycle,
		&rec.ChangeType, &rec.ProratedAmount, &rec.Currency, &rec.BypassedCooldown, &rec.ChangedByAdmin, &rec.CreatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, planchange.ErrNoChangeHistory
		}
		return nil, fmt.Errorf("latest change record: %w", err)
	}
	return &rec, nil
}

// PGUpsellStore implements upsell.Store backed by PostgreSQL. Featured
// grants share the grants table and carry an extra row in featured_grants
// keyed by the same grant ID.
type PGUpsellStore struct {
	pool *pgxpool.Pool
}

func NewPGUpsellStore(pool *pgxpool.Pool) *PGUpsellStore {
	if pool == nil {
		panic("billing: pgxpool is required")
	}
	return &PGUpsellStore{pool: pool}
}

const grantColumns = `id, account_id, upsell_id, status, auto_renew, starts_at, ends_at, created_at, updated_at`

func (s *PGUpsellStore) GetGrant(ctx context.Context, grantID uuid.UUID) (*upsell.Grant, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+grantColumns+`
		FROM upsell_grants WHERE id = $1`, grantID)
	return scanGrant(row)
}

func (s *PGUpsellStore) SaveGrant(ctx context.Context, grant *upsell.Grant) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO upsell_grants (id, account_id, upsell_id, status, auto_renew, starts_at, ends_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			auto_renew = EXCLUDED.auto_renew,
			ends_at = EXCLUDED.ends_at,
			updated_at = NOW()`,
		grant.ID, grant.AccountID, grant.UpsellID, grant.Status, grant.AutoRenew,
		grant.StartsAt, grant.EndsAt)
	if err != nil {
		return fmt.Errorf("save grant: %w", err)
	}
	return nil
}

func (s *PGUpsellStore) ListGrants(ctx context.Context, accountID uuid.UUID) ([]*upsell.Grant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+grantColumns+`
		FROM upsell_grants
		WHERE account_id = $1
		ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	var grants []*upsell.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (s *PGUpsellStore) GetFeatured(ctx context.Context, grantID uuid.UUID) (*upsell.FeaturedGrant, error) {
	var fg upsell.FeaturedGrant
	err := s.pool.QueryRow(ctx, `
		SELECT g.id, g.account_id, g.upsell_id, g.status, g.auto_renew, g.starts_at, g.ends_at,
			g.created_at, g.updated_at, f.property_id, f.impressions, f.clicks
		FROM upsell_grants g
		JOIN featured_grants f ON f.grant_id = g.id
		WHERE g.id = $1`, grantID).Scan(
		&fg.ID, &fg.AccountID, &fg.UpsellID, &fg.Status, &fg.AutoRenew, &fg.StartsAt, &fg.EndsAt,
		&fg.CreatedAt, &fg.UpdatedAt, &fg.PropertyID, &fg.Impressions, &fg.Clicks)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, upsell.ErrGrantNotFound
		}
		return nil, fmt.Errorf("get featured grant: %w", err)
	}
	return &fg, nil
}

func (s *PGUpsellStore) SaveFeatured(ctx context.Context, grant *upsell.FeaturedGrant) error {
	if err := s.SaveGrant(ctx, &grant.Grant); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO featured_grants (grant_id, property_id, impressions, clicks)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (grant_id) DO UPDATE SET
			impressions = EXCLUDED.impressions,
			clicks = EXCLUDED.clicks`,
		grant.ID, grant.PropertyID, grant.Impressions, grant.Clicks)
	if err != nil {
		return fmt.Errorf("save featured grant: %w", err)
	}
	return nil
}

func (s *PGUpsellStore) CountFeaturedSince(ctx context.Context, accountID uuid.UUID, since time.Time) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM upsell_grants g
		JOIN featured_grants f ON f.grant_id = g.id
		WHERE g.account_id = $1 AND g.created_at >= $2`, accountID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count featured grants: %w", err)
	}
	return count, nil
}

// AccountVerifier reads the marketplace accounts table to answer whether
// an account completed verification. The table belongs to the account
// module; this is a read-only view.
func AccountVerifier(pool *pgxpool.Pool) entitlement.AccountVerifierFunc {
	return func(ctx context.Context, accountID uuid.UUID) (bool, error) {
		var verified bool
		err := pool.QueryRow(ctx, `SELECT verified FROM accounts WHERE id = $1`, accountID).Scan(&verified)
		if err != nil {
			if pg.IsNotFoundError(err) {
				return false, nil
			}
			return false, fmt.Errorf("account verification lookup: %w", err)
		}
		return verified, nil
	}
}

// AdminVerifier confirms the admin flag against the accounts table. The
// context actor's claim is never trusted without this check.
func AdminVerifier(pool *pgxpool.Pool) actor.AdminVerifierFunc {
	return func(ctx context.Context, actorID uuid.UUID) (bool, error) {
		var isAdmin bool
		err := pool.QueryRow(ctx, `SELECT is_admin FROM accounts WHERE id = $1`, actorID).Scan(&isAdmin)
		if err != nil {
			if pg.IsNotFoundError(err) {
				return false, nil
			}
			return false, fmt.Errorf("admin lookup: %w", err)
		}
		return isAdmin, nil
	}
}

// ActiveListingsCounter counts an account's live listings for entitlement
// checks. Reads the marketplace listings table.
func ActiveListingsCounter(pool *pgxpool.Pool) entitlement.CounterFunc {
	return func(ctx context.Context, accountID uuid.UUID) (int64, error) {
		var count int64
		err := pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM listings WHERE account_id = $1 AND status = 'active'`,
			accountID).Scan(&count)
		if err != nil {
			return 0, fmt.Errorf("count active listings: %w", err)
		}
		return count, nil
	}
}

// FeaturedUsage is the slice of the grant store the monthly counter reads.
type FeaturedUsage interface {
	CountFeaturedSince(ctx context.Context, accountID uuid.UUID, since time.Time) (int64, error)
}

// FeaturedThisMonthCounter counts featured-listing grants created since the
// start of the current calendar month (UTC), feeding the monthly limit.
// A nil clock falls back to time.Now.
func FeaturedThisMonthCounter(store FeaturedUsage, now func() time.Time) entitlement.CounterFunc {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context, accountID uuid.UUID) (int64, error) {
		t := now().UTC()
		monthStart := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return store.CountFeaturedSince(ctx, accountID, monthStart)
	}
}

func scanGrant(row rowScanner) (*upsell.Grant, error) {
	var g upsell.Grant
	err := row.Scan(&g.ID, &g.AccountID, &g.UpsellID, &g.Status, &g.AutoRenew,
		&g.StartsAt, &g.EndsAt, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, upsell.ErrGrantNotFound
		}
		return nil, fmt.Errorf("scan grant: %w", err)
	}
	return &g, nil
}
