package upsell

import (
	"time"

	"github.com/google/uuid"

	"github.com/propkit/billing/pkg/catalog"
)

// Upsell is a separately purchased add-on definition: either a recurring
// extra (auto-renews until cancelled) or a time-boxed capability lease.
type Upsell struct {
	ID        string
	Name      string
	PriceID   string // payment provider price ID
	Price     catalog.Money
	Recurring bool
	Duration  time.Duration // length of one grant period
}

// GrantStatus is the stored state of a grant.
type GrantStatus string

const (
	GrantActive    GrantStatus = "active"
	GrantCancelled GrantStatus = "cancelled"
)

// Grant records an account's purchase of an upsell. Grants are created on
// purchase and mutated only by cancellation; natural expiry is derived from
// EndsAt at read time. Grants are never deleted.
type Grant struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	UpsellID  string
	Status    GrantStatus
	AutoRenew bool
	StartsAt  time.Time
	EndsAt    time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UsableAt reports whether the grant confers its capability at now.
// A cancelled grant stays usable until its end date; a passed end date
// means inactive regardless of the stored status.
func (g *Grant) UsableAt(now time.Time) bool {
	return now.Before(g.EndsAt)
}

// FeaturedGrant is the featured-listing specialization: a leased
// capability with a hard end date and engagement counters, not a
// subscription feature. It never auto-renews.
type FeaturedGrant struct {
	Grant
	PropertyID  uuid.UUID
	Impressions int64
	Clicks      int64
}
