package catalog

import "slices"

// Plan describes a subscription tier and its resource/feature constraints.
// Plans are immutable once published: a price or limit revision is a new
// plan row with the old one flipped to Active=false, never an in-place edit.
//
// The ID should be set to the payment provider's price ID for the monthly
// price; PriceIDYearly holds the yearly counterpart when one exists.
type Plan struct {
	ID            string             `yaml:"id" json:"id"`
	Name          string             `yaml:"name" json:"name"`
	DisplayName   string             `yaml:"display_name" json:"display_name"`
	PriceMonthly  Money              `yaml:"price_monthly" json:"price_monthly"`
	PriceYearly   *Money             `yaml:"price_yearly,omitempty" json:"price_yearly,omitempty"` // nil falls back to monthly x 12
	PriceIDYearly string             `yaml:"price_id_yearly,omitempty" json:"price_id_yearly,omitempty"`
	Limits        map[Resource]int64 `yaml:"limits" json:"limits"` // -1 represents unlimited
	Features      []Feature          `yaml:"features" json:"features"`
	Active        bool               `yaml:"active" json:"active"`
}

// PriceFor returns the plan's price for the given billing cycle.
// A plan without an explicit yearly price bills twelve months upfront.
func (p Plan) PriceFor(cycle BillingCycle) Money {
	if cycle == CycleYearly {
		if p.PriceYearly != nil {
			return *p.PriceYearly
		}
		return Money{Amount: p.PriceMonthly.Amount * 12, Currency: p.PriceMonthly.Currency}
	}
	return p.PriceMonthly
}

// PriceIDFor returns the provider price ID for the given cycle.
func (p Plan) PriceIDFor(cycle BillingCycle) string {
	if cycle == CycleYearly && p.PriceIDYearly != "" {
		return p.PriceIDYearly
	}
	return p.ID
}

// Limit returns the plan's limit for a resource. Resources absent from the
// plan are treated as not purchasable at all (limit 0), not as unlimited.
func (p Plan) Limit(res Resource) int64 {
	limit, ok := p.Limits[res]
	if !ok {
		return 0
	}
	return limit
}

// HasFeature reports whether the plan enables a capability.
func (p Plan) HasFeature(f Feature) bool {
	return slices.Contains(p.Features, f)
}
