package proration

import "errors"

var (
	ErrInvalidPeriod    = errors.New("proration: invalid billing period")
	ErrCurrencyMismatch = errors.New("proration: plans are priced in different currencies")
)
