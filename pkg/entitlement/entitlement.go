package entitlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/propkit/billing/pkg/catalog"
	"github.com/propkit/billing/pkg/subscription"
)

// Reason explains why an action is not permitted. The caller routes the
// user differently for each: checkout for a missing or lapsed subscription,
// the verification flow for an unverified account, an upgrade prompt for an
// exhausted limit.
type Reason string

const (
	ReasonNoSubscription       Reason = "no_subscription"
	ReasonVerificationRequired Reason = "verification_required"
	ReasonLimitReached         Reason = "limit_reached"
)

// Decision is the outcome of a CanCreate check.
type Decision struct {
	CanCreate bool   `json:"can_create"`
	Reason    Reason `json:"reason,omitempty"`
	Remaining int64  `json:"remaining"` // -1 when unlimited
}

// UsageInfo contains derived usage indicators for a resource. Never stored:
// active counts change outside this subsystem, so every read recomputes.
type UsageInfo struct {
	Current   int64 `json:"current"`
	Limit     int64 `json:"limit"` // -1 when unlimited
	Percent   int   `json:"percent"`
	NearLimit bool  `json:"near_limit"`
	AtLimit   bool  `json:"at_limit"`
}

// CounterFunc returns the current usage for an account resource.
// Must be fast as it's called on every creation attempt; back it with
// database aggregates or cached values.
type CounterFunc func(ctx context.Context, accountID uuid.UUID) (int64, error)

// AccountVerifier reports whether the account has completed the required
// verification (e.g. email). External collaborator; the resolver only
// consumes the boolean.
type AccountVerifier interface {
	IsVerified(ctx context.Context, accountID uuid.UUID) (bool, error)
}

// AccountVerifierFunc adapts a function to AccountVerifier.
type AccountVerifierFunc func(ctx context.Context, accountID uuid.UUID) (bool, error)

func (f AccountVerifierFunc) IsVerified(ctx context.Context, accountID uuid.UUID) (bool, error) {
	return f(ctx, accountID)
}

// nearLimitThreshold is the usage percentage at which indicators flip.
const nearLimitThreshold = 80

// Resolver answers whether an account may perform a gated action and how
// close it is to its plan limits.
type Resolver struct {
	catalog  *catalog.Catalog
	subs     subscription.Store
	counters map[catalog.Resource]CounterFunc
	verifier AccountVerifier
	now      func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCounter registers a counter function for a resource. Panics on
// duplicate registration to force explicit configuration.
func WithCounter(res catalog.Resource, fn CounterFunc) Option {
	return func(r *Resolver) {
		if fn == nil {
			return
		}
		if _, exists := r.counters[res]; exists {
			panic("entitlement: counter for resource " + string(res) + " already registered")
		}
		r.counters[res] = fn
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// NewResolver creates a Resolver. Panics if required dependencies are nil
// to fail fast during initialization.
func NewResolver(cat *catalog.Catalog, subs subscription.Store, verifier AccountVerifier, opts ...Option) *Resolver {
	if cat == nil {
		panic("entitlement: Catalog is required")
	}
	if subs == nil {
		panic("entitlement: subscription.Store is required")
	}
	if verifier == nil {
		panic("entitlement: AccountVerifier is required")
	}

	r := &Resolver{
		catalog:  cat,
		subs:     subs,
		counters: make(map[catalog.Resource]CounterFunc),
		verifier: verifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CanCreate checks whether the account may create one more instance of the
// resource. Three independent gates apply: the subscription must be in good
// standing (derived status, not stored), the account must be verified, and
// the plan limit must not be exhausted. The first failed gate names the
// reason.
func (r *Resolver) CanCreate(ctx context.Context, accountID uuid.UUID, res catalog.Resource) (Decision, error) {
	sub, err := r.subs.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, subscription.ErrSubscriptionNotFound) {
			return Decision{CanCreate: false, Reason: ReasonNoSubscription}, nil
		}
		return Decision{}, err
	}

	remaining, atLimit, err := r.remaining(ctx, accountID, sub.PlanID, res)
	if err != nil {
		return Decision{}, err
	}

	if !sub.InGoodStanding(r.now()) {
		return Decision{CanCreate: false, Reason: ReasonNoSubscription, Remaining: remaining}, nil
	}

	verified, err := r.verifier.IsVerified(ctx, accountID)
	if err != nil {
		return Decision{}, errors.Join(ErrVerificationCheckFailed, err)
	}
	if !verified {
		return Decision{CanCreate: false, Reason: ReasonVerificationRequired, Remaining: remaining}, nil
	}

	if atLimit {
		return Decision{CanCreate: false, Reason: ReasonLimitReached, Remaining: remaining}, nil
	}

	return Decision{CanCreate: true, Remaining: remaining}, nil
}

// Usage returns the account's current usage indicators for a resource.
func (r *Resolver) Usage(ctx context.Context, accountID uuid.UUID, res catalog.Resource) (UsageInfo, error) {
	sub, err := r.subs.Get(ctx, accountID)
	if err != nil {
		return UsageInfo{}, err
	}

	plan, err := r.catalog.Get(sub.PlanID)
	if err != nil {
		return UsageInfo{}, err
	}

	current, err := r.count(ctx, accountID, res)
	if err != nil {
		return UsageInfo{}, err
	}

	limit := plan.Limit(res)
	info := UsageInfo{Current: current, Limit: limit}

	if limit == catalog.Unlimited {
		info.Percent = -1
		return info, nil
	}
	if limit == 0 {
		info.Percent = 100
		info.NearLimit = true
		info.AtLimit = true
		return info, nil
	}

	info.Percent = min(int((current*100)/limit), 100)
	info.NearLimit = info.Percent >= nearLimitThreshold
	info.AtLimit = current >= limit
	return info, nil
}

// HasFeature reports whether the account's plan enables a capability.
// Fails closed: any error returns false.
func (r *Resolver) HasFeature(ctx context.Context, accountID uuid.UUID, f catalog.Feature) bool {
	sub, err := r.subs.Get(ctx, accountID)
	if err != nil {
		return false
	}
	plan, err := r.catalog.Get(sub.PlanID)
	if err != nil {
		return false
	}
	return plan.HasFeature(f)
}

// remaining computes limit minus current usage for the plan.
// Returns remaining=-1 and atLimit=false for unlimited resources.
func (r *Resolver) remaining(ctx context.Context, accountID uuid.UUID, planID string, res catalog.Resource) (int64, bool, error) {
	plan, err := r.catalog.Get(planID)
	if err != nil {
		return 0, false, err
	}

	limit := plan.Limit(res)
	if limit == catalog.Unlimited {
		return catalog.Unlimited, false, nil
	}

	current, err := r.count(ctx, accountID, res)
	if err != nil {
		return 0, false, err
	}

	remaining := limit - current
	return remaining, remaining <= 0, nil
}

func (r *Resolver) count(ctx context.Context, accountID uuid.UUID, res catalog.Resource) (int64, error) {
	counter, ok := r.counters[res]
	if !ok {
		return 0, ErrNoCounterRegistered
	}
	current, err := counter(ctx, accountID)
	if err != nil {
		return 0, errors.Join(ErrFailedToCountUsage, err)
	}
	return current, nil
}
