package billing

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propkit/billing/pkg/planchange"
	"github.com/propkit/billing/pkg/subscription"
	"github.com/propkit/billing/pkg/upsell"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"trial without processor sub", planchange.ErrTrialNoProcessorSub, http.StatusConflict, CodeTrialNoStripe},
		{"suspended", planchange.ErrSuspendedConflict, http.StatusConflict, CodeSuspended},
		{"pending cancellation", planchange.ErrPendingCancellation, http.StatusConflict, CodePendingCancellation},
		{"cannot reactivate", subscription.ErrCannotReactivate, http.StatusConflict, CodeCannotReactivate},
		{"fully canceled", subscription.ErrFullyCanceled, http.StatusConflict, CodeFullyCanceled},
		{"no subscription", subscription.ErrSubscriptionNotFound, http.StatusNotFound, CodeNoSubscription},
		{"no change requested", planchange.ErrNoChange, http.StatusUnprocessableEntity, CodeValidation},
		{"upsell needs active sub", upsell.ErrSubscriptionNotActive, http.StatusUnprocessableEntity, CodeValidation},
		{"upsell charge declined", &upsell.PaymentFailedError{Message: "card declined"}, http.StatusPaymentRequired, CodePaymentFailed},
		{"unknown grant", upsell.ErrGrantNotFound, http.StatusNotFound, CodeNotFound},
		{"anything else is opaque", errors.New("pq: connection reset"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			status, detail := classify(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, detail.Code)
		})
	}

	t.Run("wrapped errors still classify", func(t *testing.T) {
		t.Parallel()

		status, detail := classify(errors.Join(planchange.ErrSuspendedConflict, errors.New("context")))
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, CodeSuspended, detail.Code)
	})

	t.Run("cooldown carries the remaining window", func(t *testing.T) {
		t.Parallel()

		endsAt := time.Date(2026, 3, 26, 0, 0, 0, 0, time.UTC)
		status, detail := classify(&planchange.CooldownActiveError{DaysRemaining: 7, EndsAt: endsAt})

		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, CodeCooldownActive, detail.Code)
		require.NotNil(t, detail.Details)
		assert.Equal(t, 7, detail.Details["days_remaining"])
		assert.Equal(t, endsAt, detail.Details["ends_at"])
	})

	t.Run("payment failure keeps the processor message", func(t *testing.T) {
		t.Parallel()

		status, detail := classify(&planchange.PaymentFailedError{
			Message: "card declined", Err: errors.New("card declined"),
		})
		assert.Equal(t, http.StatusPaymentRequired, status)
		assert.Equal(t, CodePaymentFailed, detail.Code)
		assert.Contains(t, detail.Message, "card declined")
	})

	t.Run("internal errors never leak their message", func(t *testing.T) {
		t.Parallel()

		_, detail := classify(errors.New("password=hunter2"))
		assert.Equal(t, "internal error", detail.Message)
	})
}
