package catalog

import (
	"context"
	"errors"
	"fmt"
)

// Catalog is an immutable read view of the available plans. It is loaded
// once at startup and safe for concurrent use; plan revisions ship as new
// rows in the source, not as mutations of a live catalog.
type Catalog struct {
	plans map[string]Plan
}

// Source defines how plans are loaded into a catalog.
type Source interface {
	Load(ctx context.Context) (map[string]Plan, error)
}

// New loads and validates plans from the given source.
func New(ctx context.Context, src Source) (*Catalog, error) {
	if src == nil {
		panic("catalog: Source is required")
	}

	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	if err := validatePlans(plans); err != nil {
		return nil, err
	}

	return &Catalog{plans: plans}, nil
}

// Get returns the plan with the given ID.
func (c *Catalog) Get(planID string) (Plan, error) {
	plan, ok := c.plans[planID]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	return plan, nil
}

// Active returns all plans currently available for purchase.
func (c *Catalog) Active() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		if p.Active {
			out = append(out, p)
		}
	}
	return out
}

// Verify checks that a plan ID exists and is active.
func (c *Catalog) Verify(planID string) error {
	plan, ok := c.plans[planID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	if !plan.Active {
		return fmt.Errorf("%w: plan %s is retired", ErrPlanNotFound, planID)
	}
	return nil
}

// validatePlans ensures plan configurations are internally consistent.
// Catches configuration errors early to prevent runtime billing mistakes.
func validatePlans(plans map[string]Plan) error {
	hasActive := false
	for planID, plan := range plans {
		if plan.ID != planID {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan ID mismatch: map key %s != plan.ID %s", planID, plan.ID))
		}
		if plan.PriceMonthly.Amount < 0 {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has negative monthly price: %d", planID, plan.PriceMonthly.Amount))
		}
		if plan.PriceYearly != nil {
			if plan.PriceYearly.Amount < 0 {
				return errors.Join(ErrInvalidPlanConfiguration,
					fmt.Errorf("plan %s has negative yearly price: %d", planID, plan.PriceYearly.Amount))
			}
			if plan.PriceYearly.Currency != plan.PriceMonthly.Currency {
				return errors.Join(ErrInvalidPlanConfiguration,
					fmt.Errorf("plan %s mixes currencies %s and %s", planID, plan.PriceMonthly.Currency, plan.PriceYearly.Currency))
			}
		}
		for res, limit := range plan.Limits {
			if limit < Unlimited {
				return errors.Join(ErrInvalidPlanConfiguration,
					fmt.Errorf("plan %s has invalid limit %d for resource %s", planID, limit, res))
			}
		}
		if plan.Active {
			hasActive = true
		}
	}
	if len(plans) > 0 && !hasActive {
		return ErrNoActivePlans
	}
	return nil
}
