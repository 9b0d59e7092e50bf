package planchange

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTrialNoProcessorSub rejects plan changes for trial-only accounts
	// with no processor subscription; they must go through checkout.
	ErrTrialNoProcessorSub = errors.New("no payment processor subscription; checkout required")

	// ErrSuspendedConflict aborts a commit that raced a suspension.
	ErrSuspendedConflict = errors.New("subscription is suspended")

	// ErrPendingCancellation rejects a downgrade while a cancellation is
	// already scheduled; the two cannot coexist.
	ErrPendingCancellation = errors.New("cancellation pending; downgrade not allowed")

	// ErrNoChange rejects a commit targeting the current plan and cycle.
	ErrNoChange = errors.New("target matches the current plan and cycle")

	// ErrNoChangeHistory is returned by ChangeRecorder.Latest for accounts
	// that never changed plans.
	ErrNoChangeHistory = errors.New("no plan change history")
)

// CooldownActiveError reports a change attempted inside the waiting window.
type CooldownActiveError struct {
	DaysRemaining int
	EndsAt        time.Time
}

func (e *CooldownActiveError) Error() string {
	return fmt.Sprintf("plan change cooldown active: %d day(s) remaining", e.DaysRemaining)
}

// PaymentFailedError wraps a processor failure. The subscription state is
// guaranteed untouched when this is returned.
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
