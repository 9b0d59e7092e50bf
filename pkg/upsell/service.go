package upsell

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/propkit/billing/pkg/subscription"
)

// Service manages the upsell grant lifecycle, gated by subscription
// activity but otherwise independent of plan changes.
type Service struct {
	upsells  map[string]Upsell
	store    Store
	subs     subscription.Store
	provider subscription.BillingProvider
	log      *slog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates an upsell service over the given definitions. Panics
// if required dependencies are nil to fail fast during initialization.
func NewService(defs []Upsell, store Store, subs subscription.Store, provider subscription.BillingProvider, opts ...Option) *Service {
	if store == nil {
		panic("upsell: Store is required")
	}
	if subs == nil {
		panic("upsell: subscription.Store is required")
	}
	if provider == nil {
		panic("upsell: BillingProvider is required")
	}

	catalog := make(map[string]Upsell, len(defs))
	for _, u := range defs {
		catalog[u.ID] = u
	}

	s := &Service{
		upsells:  catalog,
		store:    store,
		subs:     subs,
		provider: provider,
		log:      slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Purchase charges the add-on price and creates a grant for the account.
// Requires the subscription's derived status to be strictly active:
// trialing accounts cannot buy add-ons. On a processor decline no grant is
// persisted.
func (s *Service) Purchase(ctx context.Context, accountID uuid.UUID, upsellID string) (*Grant, error) {
	def, ok := s.upsells[upsellID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUpsellNotFound, upsellID)
	}

	sub, err := s.requireActive(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	grant := &Grant{
		ID:        uuid.New(),
		AccountID: accountID,
		UpsellID:  upsellID,
		Status:    GrantActive,
		AutoRenew: def.Recurring,
		StartsAt:  now,
		EndsAt:    now.Add(def.Duration),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.charge(ctx, sub, def, grant.ID); err != nil {
		return nil, err
	}
	if err := s.store.SaveGrant(ctx, grant); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "upsell purchased",
		slog.String("account_id", accountID.String()),
		slog.String("upsell_id", upsellID),
		slog.Time("ends_at", grant.EndsAt))
	return grant, nil
}

// PurchaseFeatured charges for and creates a featured-listing grant for a
// property: a leased capability with a hard end date and no auto-renew. On
// a processor decline no grant is persisted.
func (s *Service) PurchaseFeatured(ctx context.Context, accountID, propertyID uuid.UUID, upsellID string) (*FeaturedGrant, error) {
	def, ok := s.upsells[upsellID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUpsellNotFound, upsellID)
	}

	sub, err := s.requireActive(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	grant := &FeaturedGrant{
		Grant: Grant{
			ID:        uuid.New(),
			AccountID: accountID,
			UpsellID:  upsellID,
			Status:    GrantActive,
			AutoRenew: false,
			StartsAt:  now,
			EndsAt:    now.Add(def.Duration),
			CreatedAt: now,
			UpdatedAt: now,
		},
		PropertyID: propertyID,
	}
	if err := s.charge(ctx, sub, def, grant.ID); err != nil {
		return nil, err
	}
	if err := s.store.SaveFeatured(ctx, grant); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "featured listing granted",
		slog.String("account_id", accountID.String()),
		slog.String("property_id", propertyID.String()),
		slog.Time("ends_at", grant.EndsAt))
	return grant, nil
}

// Cancel disables auto-renew and marks a recurring grant cancelled. The
// grant remains usable until its end date. Featured grants have no
// auto-renew and simply expire.
func (s *Service) Cancel(ctx context.Context, accountID, grantID uuid.UUID) (*Grant, error) {
	grant, err := s.store.GetGrant(ctx, grantID)
	if err != nil {
		return nil, err
	}
	if grant.AccountID != accountID {
		return nil, ErrGrantNotOwned
	}
	if grant.Status == GrantCancelled {
		return nil, ErrAlreadyCancelled
	}
	if !grant.AutoRenew {
		return nil, ErrNotRecurring
	}

	now := s.now()
	grant.AutoRenew = false
	grant.Status = GrantCancelled
	grant.UpdatedAt = now
	if err := s.store.SaveGrant(ctx, grant); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "upsell grant cancelled",
		slog.String("account_id", accountID.String()),
		slog.String("grant_id", grantID.String()),
		slog.Time("usable_until", grant.EndsAt))
	return grant, nil
}

// ActiveGrants returns the account's grants still usable at now.
func (s *Service) ActiveGrants(ctx context.Context, accountID uuid.UUID) ([]*Grant, error) {
	grants, err := s.store.ListGrants(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := grants[:0]
	for _, g := range grants {
		if g.UsableAt(now) {
			out = append(out, g)
		}
	}
	return out, nil
}

// RecordImpression increments the impression counter for a featured grant
// that is still within its lease.
func (s *Service) RecordImpression(ctx context.Context, grantID uuid.UUID) error {
	return s.bumpFeatured(ctx, grantID, func(g *FeaturedGrant) { g.Impressions++ })
}

// RecordClick increments the click counter for a featured grant that is
// still within its lease.
func (s *Service) RecordClick(ctx context.Context, grantID uuid.UUID) error {
	return s.bumpFeatured(ctx, grantID, func(g *FeaturedGrant) { g.Clicks++ })
}

func (s *Service) bumpFeatured(ctx context.Context, grantID uuid.UUID, bump func(*FeaturedGrant)) error {
	grant, err := s.store.GetFeatured(ctx, grantID)
	if err != nil {
		return err
	}
	if !grant.UsableAt(s.now()) {
		return nil // expired leases silently stop counting
	}
	bump(grant)
	grant.UpdatedAt = s.now()
	return s.store.SaveFeatured(ctx, grant)
}

// charge bills the add-on price to the account's saved payment method.
// Free definitions skip the processor entirely. The grant ID keys the
// charge so a provider-side retry of this submission cannot double-bill.
func (s *Service) charge(ctx context.Context, sub *subscription.Subscription, def Upsell, grantID uuid.UUID) error {
	if def.Price.Amount <= 0 {
		return nil
	}
	if !sub.HasProviderSub() {
		return ErrSubscriptionNotActive
	}

	_, err := s.provider.ChargeProrated(ctx, subscription.ProratedChargeRequest{
		AccountID:      sub.AccountID,
		ProviderSubID:  sub.ProviderSubID,
		PriceID:        def.PriceID,
		Amount:         def.Price,
		Description:    def.Name,
		IdempotencyKey: "upsell|" + grantID.String(),
	})
	if err != nil {
		return &PaymentFailedError{Message: subscription.ProcessorMessage(err), Err: err}
	}
	return nil
}

func (s *Service) requireActive(ctx context.Context, accountID uuid.UUID) (*subscription.Subscription, error) {
	sub, err := s.subs.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if sub.EffectiveStatusAt(s.now()) != subscription.StatusActive {
		return nil, ErrSubscriptionNotActive
	}
	return sub, nil
}
