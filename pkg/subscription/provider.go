package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/propkit/billing/pkg/catalog"
)

// BillingProvider defines the minimal interface for payment processor
// integrations. The processor is the source of truth for subscription
// state; everything stored locally is a cache reconciled through Fetch and
// the webhook stream.
//
// Implementations should use the official provider SDK and absorb
// provider-specific quirks internally.
type BillingProvider interface {
	// ChargeProrated submits an immediate one-off charge against the
	// subscription's saved payment method: the prorated difference on an
	// upgrade or cycle change, or an add-on purchase. Callers pair it with
	// an idempotency key recorded on their side so retries never resubmit.
	ChargeProrated(ctx context.Context, req ProratedChargeRequest) (*ChargeResult, error)

	// ChangePlan switches the processor-side subscription to a new price.
	// ChangeImmediate switches now without billing (the orchestrator has
	// already charged the prorated difference); ChangeAtRenewal defers the
	// switch to the next renewal (downgrade path).
	ChangePlan(ctx context.Context, providerSubID, priceID string, timing ChangeTiming) error

	// CancelAtPeriodEnd schedules the subscription to lapse when the
	// current period elapses. Access continues until then.
	CancelAtPeriodEnd(ctx context.Context, providerSubID string) error

	// Reactivate removes a scheduled cancellation. Fails if the processor
	// has already terminated the subscription.
	Reactivate(ctx context.Context, providerSubID string) error

	// Fetch pulls the processor's current view of the subscription.
	Fetch(ctx context.Context, providerSubID string) (*RemoteSubscription, error)

	// ParseWebhook validates the signature and normalizes the payload.
	// Must reject spoofed deliveries.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
}

// ChangeTiming controls when a processor-side plan switch takes effect.
type ChangeTiming string

const (
	ChangeImmediate ChangeTiming = "immediate"
	ChangeAtRenewal ChangeTiming = "at_renewal"
)

// ProratedChargeRequest describes an immediate one-off charge.
type ProratedChargeRequest struct {
	AccountID      uuid.UUID
	ProviderSubID  string
	PriceID        string // related provider price ID, for traceability
	Amount         catalog.Money
	Description    string // shown on the customer's invoice line
	IdempotencyKey string
}

// ChargeResult is the processor's acknowledgement of a submitted charge.
// TransactionID may be empty when the processor assigns it asynchronously;
// the webhook stream carries the settled transaction either way.
type ChargeResult struct {
	TransactionID string
	Amount        catalog.Money
}

// RemoteSubscription is the processor's authoritative view, used by
// SyncStatus to overwrite the local cache.
type RemoteSubscription struct {
	Status            Status
	PeriodStart       time.Time
	PeriodEnd         time.Time
	CancelAtPeriodEnd bool
	Terminated        bool // processor-side record is gone for good
}

// EventType is the normalized webhook event type.
type EventType string

const (
	EventTypePaymentSucceeded    EventType = "payment_succeeded"
	EventTypePaymentFailed       EventType = "payment_failed"
	EventTypeSubscriptionUpdated EventType = "subscription_updated"
	EventTypeSubscriptionDeleted EventType = "subscription_deleted"
)

// WebhookEvent is a normalized event from the payment processor.
type WebhookEvent struct {
	ID                string // provider event ID, dedup key
	Type              EventType
	ProviderEvent     string // original provider event name
	ProviderSubID     string
	AccountID         uuid.UUID // from checkout custom data; zero when absent
	Status            string
	PlanID            string
	PeriodStart       time.Time
	PeriodEnd         time.Time
	CancelAtPeriodEnd bool
	FailureMessage    string // human-readable processor message, when available
	Raw               map[string]any
}
