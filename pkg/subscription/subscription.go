package subscription

import (
	"time"

	"github.com/google/uuid"

	"github.com/propkit/billing/pkg/catalog"
)

// Status represents the stored state of a subscription.
//
// Stored status is a cache of the payment processor's view and may lag the
// webhook stream; consumers derive the live state through EffectiveStatus
// instead of trusting the stored value alone.
type Status string

const (
	StatusTrialing  Status = "trialing"
	StatusActive    Status = "active"
	StatusPastDue   Status = "past_due"
	StatusSuspended Status = "suspended"
	StatusCanceled  Status = "canceled"

	// StatusExpired is derived, never stored: a canceled or
	// cancellation-scheduled subscription whose period has elapsed.
	StatusExpired Status = "expired"
)

// Event triggers a lifecycle transition.
type Event string

const (
	EventPaymentSucceeded    Event = "payment_succeeded"
	EventPaymentFailed       Event = "payment_failed"
	EventPaymentFailedFinal  Event = "payment_failed_final"
	EventCancelRequested     Event = "cancel_requested"
	EventReactivateRequested Event = "reactivate_requested"
)

// Subscription is an account's billing relationship to a plan. Exactly one
// subscription per account may be in a non-terminal status at a time; a
// repurchase after expiry creates a new row, old rows are never deleted.
type Subscription struct {
	AccountID          uuid.UUID
	PlanID             string
	Cycle              catalog.BillingCycle
	Status             Status
	ProviderSubID      string // payment processor's subscription ID; empty for trial-only accounts
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	LastPlanChangeAt   *time.Time
	CanceledAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// EffectiveStatus derives the live status from stored fields. Centralizing
// this keeps every consumer (gate, resolver, API payload) in agreement when
// the processor's status webhook lags a period boundary.
func EffectiveStatus(status Status, cancelAtPeriodEnd bool, periodEnd, now time.Time) Status {
	if now.After(periodEnd) && (status == StatusCanceled || cancelAtPeriodEnd) {
		return StatusExpired
	}
	return status
}

// EffectiveStatusAt returns the subscription's derived status at now.
func (s *Subscription) EffectiveStatusAt(now time.Time) Status {
	return EffectiveStatus(s.Status, s.CancelAtPeriodEnd, s.CurrentPeriodEnd, now)
}

// InGoodStanding reports whether gated actions are allowed at now.
// Only active and trialing subscriptions may publish listings.
func (s *Subscription) InGoodStanding(now time.Time) bool {
	switch s.EffectiveStatusAt(now) {
	case StatusActive, StatusTrialing:
		return true
	default:
		return false
	}
}

// HasProviderSub reports whether a processor-side subscription backs this
// row. Trial-only accounts have none and must go through checkout, not
// plan change.
func (s *Subscription) HasProviderSub() bool {
	return s.ProviderSubID != ""
}
