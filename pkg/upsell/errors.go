package upsell

import "errors"

// PaymentFailedError wraps a processor decline. No grant is persisted when
// this is returned.
type PaymentFailedError struct {
	Message string // human-readable processor message when available
	Err     error
}

func (e *PaymentFailedError) Error() string {
	if e.Message != "" {
		return "payment failed: " + e.Message
	}
	return "payment failed"
}

func (e *PaymentFailedError) Unwrap() error { return e.Err }

var (
	ErrUpsellNotFound        = errors.New("upsell: unknown upsell")
	ErrGrantNotFound         = errors.New("upsell: grant not found")
	ErrGrantNotOwned         = errors.New("upsell: grant belongs to a different account")
	ErrAlreadyCancelled      = errors.New("upsell: grant already cancelled")
	ErrNotRecurring          = errors.New("upsell: grant is not recurring; it expires at its end date")
	ErrSubscriptionNotActive = errors.New("upsell: an active paid subscription is required")
)
