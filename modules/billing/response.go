package billing

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/propkit/billing/pkg/catalog"
	"github.com/propkit/billing/pkg/planchange"
	"github.com/propkit/billing/pkg/subscription"
	"github.com/propkit/billing/pkg/upsell"
)

// Stable error codes surfaced at the module boundary. These are API
// contract, not prose: clients switch on them to route the user.
const (
	CodeTrialNoStripe       = "TRIAL_NO_STRIPE"
	CodePaymentFailed       = "PAYMENT_FAILED"
	CodeCannotReactivate    = "CANNOT_REACTIVATE"
	CodeFullyCanceled       = "SUBSCRIPTION_FULLY_CANCELED"
	CodeCooldownActive      = "COOLDOWN_ACTIVE"
	CodeSuspended           = "SUSPENDED"
	CodePendingCancellation = "PENDING_CANCELLATION"
	CodeNoSubscription      = "NO_SUBSCRIPTION"
	CodeValidation          = "VALIDATION"
	CodeNotFound            = "NOT_FOUND"
	CodeInternal            = "INTERNAL"
)

// envelope is the standard JSON response body.
type envelope struct {
	Data  any          `json:"data,omitempty"`
	Error *errorDetail `json:"error,omitempty"`
}

type errorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: data})
}

func respondError(w http.ResponseWriter, err error) {
	status, detail := classify(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Error: detail})
}

// classify maps core errors to HTTP statuses and stable codes. Anything
// unrecognized is an internal error with the message suppressed.
func classify(err error) (int, *errorDetail) {
	var cooldownErr *planchange.CooldownActiveError
	if errors.As(err, &cooldownErr) {
		return http.StatusConflict, &errorDetail{
			Code:    CodeCooldownActive,
			Message: cooldownErr.Error(),
			Details: map[string]any{
				"days_remaining": cooldownErr.DaysRemaining,
				"ends_at":        cooldownErr.EndsAt,
			},
		}
	}

	var paymentErr *planchange.PaymentFailedError
	if errors.As(err, &paymentErr) {
		return http.StatusPaymentRequired, &errorDetail{
			Code:    CodePaymentFailed,
			Message: paymentErr.Error(),
		}
	}

	var upsellPaymentErr *upsell.PaymentFailedError
	if errors.As(err, &upsellPaymentErr) {
		return http.StatusPaymentRequired, &errorDetail{
			Code:    CodePaymentFailed,
			Message: upsellPaymentErr.Error(),
		}
	}

	switch {
	case errors.Is(err, planchange.ErrTrialNoProcessorSub):
		return http.StatusConflict, &errorDetail{Code: CodeTrialNoStripe, Message: err.Error()}
	case errors.Is(err, planchange.ErrSuspendedConflict):
		return http.StatusConflict, &errorDetail{Code: CodeSuspended, Message: err.Error()}
	case errors.Is(err, planchange.ErrPendingCancellation):
		return http.StatusConflict, &errorDetail{Code: CodePendingCancellation, Message: err.Error()}
	case errors.Is(err, subscription.ErrCannotReactivate):
		return http.StatusConflict, &errorDetail{Code: CodeCannotReactivate, Message: err.Error()}
	case errors.Is(err, subscription.ErrFullyCanceled):
		return http.StatusConflict, &errorDetail{Code: CodeFullyCanceled, Message: err.Error()}
	case errors.Is(err, subscription.ErrSubscriptionNotFound):
		return http.StatusNotFound, &errorDetail{Code: CodeNoSubscription, Message: err.Error()}
	case errors.Is(err, subscription.ErrAlreadyCanceling),
		errors.Is(err, subscription.ErrNoScheduledCancel),
		errors.Is(err, planchange.ErrNoChange),
		errors.Is(err, catalog.ErrInvalidBillingCycle),
		errors.Is(err, upsell.ErrAlreadyCancelled),
		errors.Is(err, upsell.ErrNotRecurring),
		errors.Is(err, upsell.ErrSubscriptionNotActive):
		return http.StatusUnprocessableEntity, &errorDetail{Code: CodeValidation, Message: err.Error()}
	case errors.Is(err, catalog.ErrPlanNotFound),
		errors.Is(err, upsell.ErrGrantNotFound),
		errors.Is(err, upsell.ErrUpsellNotFound),
		errors.Is(err, upsell.ErrGrantNotOwned):
		return http.StatusNotFound, &errorDetail{Code: CodeNotFound, Message: err.Error()}
	}

	return http.StatusInternalServerError, &errorDetail{
		Code:    CodeInternal,
		Message: "internal error",
	}
}
