package planchange

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/propkit/billing/pkg/catalog"
	"github.com/propkit/billing/pkg/proration"
)

// ChangeRecord is the append-only audit entry for one committed plan
// change. Records are created exactly once per commit and never mutated or
// deleted; notification collaborators consume the flags downstream.
type ChangeRecord struct {
	ID               uuid.UUID
	AccountID        uuid.UUID
	PrevPlanID       string
	PrevCycle        catalog.BillingCycle
	NewPlanID        string
	NewCycle         catalog.BillingCycle
	ChangeType       proration.ChangeType
	ProratedAmount   int64 // minor units actually charged; 0 for downgrades
	Currency         string
	BypassedCooldown bool
	ChangedByAdmin   bool
	CreatedAt        time.Time
}

// ChangeRecorder persists change records. Append-only by contract.
type ChangeRecorder interface {
	// Append stores a new record. Implementations must never overwrite.
	Append(ctx context.Context, rec *ChangeRecord) error

	// Latest returns the most recent record for an account, or
	// ErrNoChangeHistory when the account has never changed plans.
	Latest(ctx context.Context, accountID uuid.UUID) (*ChangeRecord, error)
}
