package catalog

// Resource represents a countable account resource type.
type Resource string

const (
	ResourceListings         Resource = "listings"
	ResourceFeaturedListings Resource = "featured_listings" // per calendar month
	ResourceTeamMembers      Resource = "team_members"
	ResourcePhotosPerListing Resource = "photos_per_listing"
	ResourceOpenHouseEvents  Resource = "open_house_events"
)

const (
	// Unlimited indicates no limit for a resource (-1 chosen for SQL compatibility)
	Unlimited int64 = -1
)

// Feature represents a plan-specific capability that can be enabled/disabled.
type Feature string

const (
	FeatureVirtualTours      Feature = "virtual_tours"
	FeatureAnalytics         Feature = "analytics"
	FeaturePrioritySupport   Feature = "priority_support"
	FeatureBulkImport        Feature = "bulk_import"
	FeatureCustomBranding    Feature = "custom_branding"
	FeatureMarketReports     Feature = "market_reports"
	FeatureLeadRouting       Feature = "lead_routing"
	FeatureTeamCollaboration Feature = "team_collaboration"
)

// Money represents a monetary amount in the smallest currency unit.
// For example, $249.00 USD would be Amount: 24900, Currency: "USD".
type Money struct {
	Amount   int64  `yaml:"amount" json:"amount"`
	Currency string `yaml:"currency" json:"currency"` // ISO 4217 code
}

// IsZero reports whether the amount is zero (the currency is ignored).
func (m Money) IsZero() bool { return m.Amount == 0 }

// BillingCycle represents the billing frequency for a subscription.
type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

// Valid reports whether the cycle is one of the supported values.
func (c BillingCycle) Valid() bool {
	return c == CycleMonthly || c == CycleYearly
}
