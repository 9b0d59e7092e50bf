package catalog

import "errors"

var (
	ErrPlanNotFound             = errors.New("catalog: plan not found")
	ErrInvalidPlanConfiguration = errors.New("catalog: invalid plan configuration")
	ErrInvalidBillingCycle      = errors.New("catalog: invalid billing cycle")
	ErrFailedToLoadPlans        = errors.New("catalog: failed to load plans")
	ErrNoActivePlans            = errors.New("catalog: no active plans configured")
)
