package planchange

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/propkit/billing/pkg/actor"
	"github.com/propkit/billing/pkg/catalog"
	"github.com/propkit/billing/pkg/cooldown"
	"github.com/propkit/billing/pkg/proration"
	"github.com/propkit/billing/pkg/subscription"
)

// Orchestrator coordinates the cooldown policy, the proration calculator
// and the payment processor to preview and commit plan changes.
type Orchestrator struct {
	catalog  *catalog.Catalog
	subs     subscription.Store
	provider subscription.BillingProvider
	recorder ChangeRecorder
	admins   actor.AdminVerifier
	ledger   ChargeLedger
	window   time.Duration
	log      *slog.Logger
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCooldownWindow overrides the waiting period between plan changes.
func WithCooldownWindow(window time.Duration) Option {
	return func(o *Orchestrator) { o.window = window }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// New creates an Orchestrator. Panics if required dependencies are nil to
// fail fast during initialization.
func New(cat *catalog.Catalog, subs subscription.Store, provider subscription.BillingProvider, recorder ChangeRecorder, admins actor.AdminVerifier, ledger ChargeLedger, opts ...Option) *Orchestrator {
	if cat == nil {
		panic("planchange: Catalog is required")
	}
	if subs == nil {
		panic("planchange: subscription.Store is required")
	}
	if provider == nil {
		panic("planchange: BillingProvider is required")
	}
	if recorder == nil {
		panic("planchange: ChangeRecorder is required")
	}
	if admins == nil {
		panic("planchange: AdminVerifier is required")
	}
	if ledger == nil {
		panic("planchange: ChargeLedger is required")
	}

	o := &Orchestrator{
		catalog:  cat,
		subs:     subs,
		provider: provider,
		recorder: recorder,
		admins:   admins,
		ledger:   ledger,
		window:   cooldown.DefaultWindow,
		log:      slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Preview describes what a plan change would cost right now. Read-only:
// it never mutates the subscription, charges anything, or holds a
// reservation, so concurrent previews are independently correct and the
// caller may request it as often as it likes.
type Preview struct {
	TargetPlanID string               `json:"target_plan_id"`
	TargetCycle  catalog.BillingCycle `json:"target_cycle"`
	Quote        proration.Quote      `json:"quote"`
	Cooldown     cooldown.Result      `json:"cooldown"`
	EffectiveAt  time.Time            `json:"effective_at"` // now for upgrades, renewal for downgrades
}

// CommitResult is returned by a successful Commit.
type CommitResult struct {
	ChangeType       proration.ChangeType `json:"change_type"`
	ProratedAmount   int64                `json:"prorated_amount"`
	NewPlanID        string               `json:"new_plan_id"`
	NewCycle         catalog.BillingCycle `json:"new_cycle"`
	NewPeriodEnd     time.Time            `json:"new_period_end"`
	BypassedCooldown bool                 `json:"bypassed_cooldown"`
	ChangedByAdmin   bool                 `json:"changed_by_admin"`
}

// Preview quotes a change to the target plan and cycle.
func (o *Orchestrator) Preview(ctx context.Context, accountID uuid.UUID, targetPlanID string, targetCycle catalog.BillingCycle) (*Preview, error) {
	now := o.now()

	sub, current, target, err := o.loadChangeContext(ctx, accountID, targetPlanID, targetCycle)
	if err != nil {
		return nil, err
	}

	quote, err := proration.Calculate(current, sub.Cycle, target, targetCycle, now, sub.CurrentPeriodStart, sub.CurrentPeriodEnd)
	if err != nil {
		return nil, err
	}

	effectiveAt := now
	if quote.ChangeType == proration.ChangeDowngrade {
		effectiveAt = sub.CurrentPeriodEnd
	}

	return &Preview{
		TargetPlanID: targetPlanID,
		TargetCycle:  targetCycle,
		Quote:        quote,
		Cooldown:     o.cooldownFor(sub, now),
		EffectiveAt:  effectiveAt,
	}, nil
}

// Commit executes the plan change. It re-validates the cooldown and fetches
// a fresh quote before touching the processor: a stale client-side preview
// is never trusted for the actual charge amount. A verified admin actor may
// bypass an active cooldown; the resulting record carries both flags.
func (o *Orchestrator) Commit(ctx context.Context, accountID uuid.UUID, targetPlanID string, targetCycle catalog.BillingCycle) (*CommitResult, error) {
	now := o.now()

	// Read current status immediately before charging so a racing
	// suspension webhook aborts the commit instead of billing a suspended
	// account.
	sub, current, target, err := o.loadChangeContext(ctx, accountID, targetPlanID, targetCycle)
	if err != nil {
		return nil, err
	}
	if sub.EffectiveStatusAt(now) == subscription.StatusSuspended {
		return nil, ErrSuspendedConflict
	}
	if sub.PlanID == targetPlanID && sub.Cycle == targetCycle {
		return nil, ErrNoChange
	}

	isAdmin := o.verifiedAdmin(ctx)
	bypassed := false
	if cd := o.cooldownFor(sub, now); cd.InCooldown {
		if !isAdmin {
			return nil, &CooldownActiveError{DaysRemaining: cd.DaysRemaining, EndsAt: cd.EndsAt}
		}
		bypassed = true
	}

	quote, err := proration.Calculate(current, sub.Cycle, target, targetCycle, now, sub.CurrentPeriodStart, sub.CurrentPeriodEnd)
	if err != nil {
		return nil, err
	}

	if quote.ChangeType == proration.ChangeDowngrade {
		if sub.CancelAtPeriodEnd {
			return nil, ErrPendingCancellation
		}
		if err := o.provider.ChangePlan(ctx, sub.ProviderSubID, target.PriceIDFor(targetCycle), subscription.ChangeAtRenewal); err != nil {
			return nil, &PaymentFailedError{Message: subscription.ProcessorMessage(err), Err: err}
		}
	} else {
		if quote.ImmediateCharge > 0 {
			if err := o.chargeOnce(ctx, accountID, sub, target, targetPlanID, targetCycle, quote); err != nil {
				return nil, err
			}
		}
		if err := o.provider.ChangePlan(ctx, sub.ProviderSubID, target.PriceIDFor(targetCycle), subscription.ChangeImmediate); err != nil {
			// The charge may have landed; the webhook stream reconciles.
			return nil, &PaymentFailedError{Message: subscription.ProcessorMessage(err), Err: err}
		}
	}

	prevPlanID, prevCycle := sub.PlanID, sub.Cycle

	sub.PlanID = targetPlanID
	sub.Cycle = targetCycle
	sub.LastPlanChangeAt = &now
	sub.UpdatedAt = now
	if err := o.subs.Save(ctx, sub); err != nil {
		return nil, err
	}

	rec := &ChangeRecord{
		ID:               uuid.New(),
		AccountID:        accountID,
		PrevPlanID:       prevPlanID,
		PrevCycle:        prevCycle,
		NewPlanID:        targetPlanID,
		NewCycle:         targetCycle,
		ChangeType:       quote.ChangeType,
		ProratedAmount:   quote.ImmediateCharge,
		Currency:         quote.Currency,
		BypassedCooldown: bypassed,
		ChangedByAdmin:   isAdmin,
		CreatedAt:        now,
	}
	if err := o.recorder.Append(ctx, rec); err != nil {
		// The change is already committed at the processor; losing the
		// audit row must not roll back billing. Loud log for followup.
		o.log.ErrorContext(ctx, "failed to append plan change record",
			slog.String("account_id", accountID.String()),
			slog.Any("error", err))
	}

	o.log.InfoContext(ctx, "plan change committed",
		slog.String("account_id", accountID.String()),
		slog.String("change_type", string(quote.ChangeType)),
		slog.String("new_plan_id", targetPlanID),
		slog.String("amount", catalog.Format(catalog.Money{Amount: quote.ImmediateCharge, Currency: quote.Currency})),
		slog.Bool("bypassed_cooldown", bypassed),
		slog.Bool("changed_by_admin", isAdmin))

	return &CommitResult{
		ChangeType:       quote.ChangeType,
		ProratedAmount:   quote.ImmediateCharge,
		NewPlanID:        targetPlanID,
		NewCycle:         targetCycle,
		NewPeriodEnd:     sub.CurrentPeriodEnd,
		BypassedCooldown: bypassed,
		ChangedByAdmin:   isAdmin,
	}, nil
}

// SelectablePlans returns the active plans the account may change to.
// Downgrade targets are excluded whenever a cancellation is scheduled, so
// the caller can never offer a change Commit would reject.
func (o *Orchestrator) SelectablePlans(ctx context.Context, accountID uuid.UUID) ([]catalog.Plan, error) {
	sub, err := o.subs.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	current, err := o.catalog.Get(sub.PlanID)
	if err != nil {
		return nil, err
	}

	plans := o.catalog.Active()
	out := make([]catalog.Plan, 0, len(plans))
	for _, p := range plans {
		if p.ID == sub.PlanID {
			continue
		}
		if sub.CancelAtPeriodEnd &&
			proration.ChangeTypeOf(current, sub.Cycle, p, sub.Cycle) == proration.ChangeDowngrade {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// CooldownInfo returns the account's current change-window state, derived
// on demand from the last plan change, never persisted separately.
func (o *Orchestrator) CooldownInfo(ctx context.Context, accountID uuid.UUID) (cooldown.Result, error) {
	sub, err := o.subs.Get(ctx, accountID)
	if err != nil {
		return cooldown.Result{}, err
	}
	return o.cooldownFor(sub, o.now()), nil
}

// chargeOnce submits the prorated charge unless the ledger shows the same
// idempotency key already went out, in which case the prior submission
// stands and nothing is resubmitted. A conservative failure mode: if the
// ledger is unreachable the commit aborts rather than risk a double charge.
func (o *Orchestrator) chargeOnce(ctx context.Context, accountID uuid.UUID, sub *subscription.Subscription, target catalog.Plan, targetPlanID string, targetCycle catalog.BillingCycle, quote proration.Quote) error {
	key := IdempotencyKey(accountID, targetPlanID, targetCycle, sub.CurrentPeriodStart)

	prior, err := o.ledger.Lookup(ctx, key)
	if err != nil {
		return err
	}
	if prior != nil {
		o.log.InfoContext(ctx, "prorated charge already submitted, skipping",
			slog.String("account_id", accountID.String()),
			slog.String("idempotency_key", key))
		return nil
	}

	res, err := o.provider.ChargeProrated(ctx, subscription.ProratedChargeRequest{
		AccountID:      accountID,
		ProviderSubID:  sub.ProviderSubID,
		PriceID:        target.PriceIDFor(targetCycle),
		Amount:         catalog.Money{Amount: quote.ImmediateCharge, Currency: quote.Currency},
		Description:    "Plan change proration",
		IdempotencyKey: key,
	})
	if err != nil {
		return &PaymentFailedError{Message: subscription.ProcessorMessage(err), Err: err}
	}

	if err := o.ledger.Record(ctx, key, res); err != nil {
		// The charge went out; a lost ledger row only weakens the retry
		// guarantee for this key. Loud log for followup.
		o.log.ErrorContext(ctx, "failed to record charge in ledger",
			slog.String("account_id", accountID.String()),
			slog.String("idempotency_key", key),
			slog.Any("error", err))
	}
	return nil
}

func (o *Orchestrator) cooldownFor(sub *subscription.Subscription, now time.Time) cooldown.Result {
	if sub.LastPlanChangeAt == nil {
		return cooldown.Result{}
	}
	return cooldown.Evaluate(*sub.LastPlanChangeAt, now, o.window)
}

// loadChangeContext loads the subscription and resolves both plans,
// rejecting trial-only accounts and unknown targets up front.
func (o *Orchestrator) loadChangeContext(ctx context.Context, accountID uuid.UUID, targetPlanID string, targetCycle catalog.BillingCycle) (*subscription.Subscription, catalog.Plan, catalog.Plan, error) {
	if !targetCycle.Valid() {
		return nil, catalog.Plan{}, catalog.Plan{}, catalog.ErrInvalidBillingCycle
	}

	sub, err := o.subs.Get(ctx, accountID)
	if err != nil {
		return nil, catalog.Plan{}, catalog.Plan{}, err
	}
	if !sub.HasProviderSub() {
		return nil, catalog.Plan{}, catalog.Plan{}, ErrTrialNoProcessorSub
	}

	current, err := o.catalog.Get(sub.PlanID)
	if err != nil {
		return nil, catalog.Plan{}, catalog.Plan{}, err
	}
	if err := o.catalog.Verify(targetPlanID); err != nil {
		return nil, catalog.Plan{}, catalog.Plan{}, err
	}
	target, err := o.catalog.Get(targetPlanID)
	if err != nil {
		return nil, catalog.Plan{}, catalog.Plan{}, err
	}

	return sub, current, target, nil
}

// verifiedAdmin reports whether the context carries an actor whose admin
// claim is confirmed by the external authorization collaborator. The
// context flag alone is never trusted for a bypass.
func (o *Orchestrator) verifiedAdmin(ctx context.Context) bool {
	a, ok := actor.FromContext(ctx)
	if !ok || !a.Admin {
		return false
	}
	verified, err := o.admins.IsAdmin(ctx, a.ID)
	if err != nil {
		o.log.WarnContext(ctx, "admin verification failed, treating as non-admin",
			slog.String("actor_id", a.ID.String()),
			slog.Any("error", err))
		return false
	}
	return verified
}
