// Package proration computes the monetary outcome of switching plans or
// billing cycles mid-period.
//
// The model is the remaining-fraction rule: the unused share of the current
// period is credited at the current plan's price and the same share of the
// target plan's price is charged, so an upgrade costs only the incremental
// difference for the days left. Downgrades never charge or refund
// mid-period; they take effect at renewal.
//
// Arithmetic is done with shopspring/decimal and every monetary result is
// rounded half-up to the smallest currency unit, so ImmediateCharge is
// always >= 0 and exactly 0 when the change lands on the period boundary.
package proration
