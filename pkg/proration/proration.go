package proration

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/propkit/billing/pkg/catalog"
)

// ChangeType classifies a plan change by its billing consequence.
type ChangeType string

const (
	ChangeUpgrade     ChangeType = "upgrade"
	ChangeDowngrade   ChangeType = "downgrade"
	ChangeCycleChange ChangeType = "cycle_change"
)

// Quote is the monetary outcome of a plan change requested right now.
// All amounts are in minor currency units, rounded half-up.
type Quote struct {
	ChangeType        ChangeType `json:"change_type"`
	CurrentPlanCredit int64      `json:"current_plan_credit"` // unused remainder of the current period
	NewPlanPrice      int64      `json:"new_plan_price"`      // prorated price of the target for the remainder
	ImmediateCharge   int64      `json:"immediate_charge"`    // what the card is charged now; always >= 0
	CreditAmount      int64      `json:"credit_amount"`       // surplus surfaced on downgrades; never refunded mid-period
	Currency          string     `json:"currency"`
}

// ChangeTypeOf derives the change type between two plan/cycle pairs.
//
// Switching cycles on the same plan is always a cycle change. Between
// different plans, prices are compared on their monthly equivalent so a
// discounted annual price cannot misclassify a genuine upgrade; equal
// prices tie-break to cycle_change.
func ChangeTypeOf(current catalog.Plan, currentCycle catalog.BillingCycle, target catalog.Plan, targetCycle catalog.BillingCycle) ChangeType {
	if current.ID == target.ID {
		return ChangeCycleChange
	}

	cur := monthlyEquivalent(current, currentCycle)
	tgt := monthlyEquivalent(target, targetCycle)
	switch cur.Cmp(tgt) {
	case -1:
		return ChangeUpgrade
	case 1:
		return ChangeDowngrade
	default:
		return ChangeCycleChange
	}
}

// Calculate produces a quote for changing from the current plan/cycle to
// the target plan/cycle at the instant now, within the billing period
// [periodStart, periodEnd).
//
// Upgrades and cycle changes charge the incremental remainder immediately;
// downgrades never charge mid-period, the switch is deferred to renewal and
// any prepaid surplus is surfaced as CreditAmount for transparency only.
func Calculate(current catalog.Plan, currentCycle catalog.BillingCycle, target catalog.Plan, targetCycle catalog.BillingCycle, now, periodStart, periodEnd time.Time) (Quote, error) {
	if !currentCycle.Valid() || !targetCycle.Valid() {
		return Quote{}, catalog.ErrInvalidBillingCycle
	}
	if !periodEnd.After(periodStart) {
		return Quote{}, fmt.Errorf("%w: period end %s not after start %s",
			ErrInvalidPeriod, periodEnd.Format(time.RFC3339), periodStart.Format(time.RFC3339))
	}

	currentPrice := current.PriceFor(currentCycle)
	targetPrice := target.PriceFor(targetCycle)
	if currentPrice.Currency != targetPrice.Currency {
		return Quote{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, currentPrice.Currency, targetPrice.Currency)
	}

	remaining := remainingFraction(now, periodStart, periodEnd)

	credit := remaining.Mul(decimal.NewFromInt(currentPrice.Amount)).Round(0).IntPart()
	newPrice := remaining.Mul(decimal.NewFromInt(targetPrice.Amount)).Round(0).IntPart()

	q := Quote{
		ChangeType:        ChangeTypeOf(current, currentCycle, target, targetCycle),
		CurrentPlanCredit: credit,
		NewPlanPrice:      newPrice,
		Currency:          currentPrice.Currency,
	}

	if q.ChangeType == ChangeDowngrade {
		q.ImmediateCharge = 0
		if credit > newPrice {
			q.CreditAmount = credit - newPrice
		}
		return q, nil
	}

	if charge := newPrice - credit; charge > 0 {
		q.ImmediateCharge = charge
	}
	return q, nil
}

// remainingFraction returns (periodEnd-now)/(periodEnd-periodStart)
// clamped to [0, 1]. A change requested exactly at period end costs nothing.
func remainingFraction(now, periodStart, periodEnd time.Time) decimal.Decimal {
	total := decimal.NewFromInt(int64(periodEnd.Sub(periodStart) / time.Second))
	left := decimal.NewFromInt(int64(periodEnd.Sub(now) / time.Second))

	if left.Sign() <= 0 {
		return decimal.Zero
	}
	if left.Cmp(total) >= 0 {
		return decimal.NewFromInt(1)
	}
	return left.Div(total)
}

// monthlyEquivalent normalizes a plan's price for a cycle to a per-month
// amount for cross-plan comparison.
func monthlyEquivalent(plan catalog.Plan, cycle catalog.BillingCycle) decimal.Decimal {
	price := decimal.NewFromInt(plan.PriceFor(cycle).Amount)
	if cycle == catalog.CycleYearly {
		return price.Div(decimal.NewFromInt(12))
	}
	return price
}
