package subscription

import (
	"context"

	"github.com/google/uuid"
)

// Store defines the interface for subscription persistence. Each account
// has at most one non-terminal subscription, so AccountID is the key.
type Store interface {
	// Get retrieves the subscription for an account.
	// Returns ErrSubscriptionNotFound if none exists.
	Get(ctx context.Context, accountID uuid.UUID) (*Subscription, error)

	// GetByProviderSubID retrieves the subscription backed by the given
	// payment processor subscription ID. Used by webhook handlers, which
	// only know the processor's identifier.
	GetByProviderSubID(ctx context.Context, providerSubID string) (*Subscription, error)

	// Save creates or updates a subscription keyed by AccountID.
	Save(ctx context.Context, sub *Subscription) error
}
