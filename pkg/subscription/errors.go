package subscription

import (
	"errors"
	"fmt"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrSuspended            = errors.New("subscription is suspended")
	ErrCannotReactivate     = errors.New("subscription already terminated by the payment processor")
	ErrFullyCanceled        = errors.New("no payment processor subscription exists to reactivate")
	ErrNoScheduledCancel    = errors.New("no cancellation is scheduled")
	ErrAlreadyCanceling     = errors.New("cancellation already scheduled")
	ErrInvalidPeriod        = errors.New("current period end must be after period start")

	ErrProviderError = errors.New("payment processor error")
)

// TransitionError reports an event fired from a state with no legal
// transition. Expected business conditions surface as this typed error,
// never as a panic.
type TransitionError struct {
	From  Status
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("no transition from %q on %q", e.From, e.Event)
}

// IsTransitionError reports whether err is a TransitionError.
func IsTransitionError(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}
