// Package cooldown evaluates the minimum waiting period between plan
// changes. The policy is a pure function of timestamps: it never checks who
// is asking. Whether an administrator may bypass an active window is decided
// by the caller against a verified actor identity, not here.
package cooldown

import (
	"math"
	"time"
)

// DefaultWindow is the stock waiting period between plan changes.
const DefaultWindow = 10 * 24 * time.Hour

// Result describes the state of the change window at a point in time.
type Result struct {
	InCooldown    bool
	DaysRemaining int       // ceil of the remainder; 0 when not in cooldown
	EndsAt        time.Time // zero when not in cooldown
}

// Evaluate reports whether a plan change at now is still inside the window
// opened by the last change. A zero lastChange means no change has ever
// happened and the window is open.
func Evaluate(lastChange, now time.Time, window time.Duration) Result {
	if lastChange.IsZero() || window <= 0 {
		return Result{}
	}

	elapsed := now.Sub(lastChange)
	if elapsed >= window {
		return Result{}
	}

	left := window - elapsed
	return Result{
		InCooldown:    true,
		DaysRemaining: int(math.Ceil(left.Hours() / 24)),
		EndsAt:        lastChange.Add(window),
	}
}
