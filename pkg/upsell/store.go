package upsell

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store defines grant persistence. Implementations must treat grants as
// append-and-update only; expiry is derived and rows are never deleted.
type Store interface {
	GetGrant(ctx context.Context, grantID uuid.UUID) (*Grant, error)
	SaveGrant(ctx context.Context, grant *Grant) error
	ListGrants(ctx context.Context, accountID uuid.UUID) ([]*Grant, error)

	GetFeatured(ctx context.Context, grantID uuid.UUID) (*FeaturedGrant, error)
	SaveFeatured(ctx context.Context, grant *FeaturedGrant) error

	// CountFeaturedSince counts featured grants created at or after the
	// given instant, feeding the monthly featured-listing limit.
	CountFeaturedSince(ctx context.Context, accountID uuid.UUID, since time.Time) (int64, error)
}
