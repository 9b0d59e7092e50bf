package billing

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/propkit/billing/pkg/actor"
	"github.com/propkit/billing/pkg/catalog"
)

type handlers struct {
	svc Services
}

func nowUTC() time.Time { return time.Now().UTC() }

// accountID resolves the account the request operates on: the actor's own
// account, or the account_id query parameter when a verified admin acts on
// someone else's behalf.
func (h *handlers) accountID(r *http.Request) (uuid.UUID, bool) {
	a, ok := actor.FromContext(r.Context())
	if !ok {
		return uuid.Nil, false
	}
	if a.Admin {
		if raw := r.URL.Query().Get("account_id"); raw != "" {
			if id, err := uuid.Parse(raw); err == nil {
				return id, true
			}
			return uuid.Nil, false
		}
	}
	return a.ID, true
}

type changeRequest struct {
	TargetPlanID string               `json:"target_plan_id"`
	Cycle        catalog.BillingCycle `json:"cycle"`
}

func (h *handlers) getSubscription(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(r)
	if !ok {
		respond(w, http.StatusUnauthorized, nil)
		return
	}

	sub, err := h.svc.Subs.Get(r.Context(), accountID)
	if err != nil {
		respondError(w, err)
		return
	}

	respond(w, http.StatusOK, map[string]any{
		"plan_id":              sub.PlanID,
		"cycle":                sub.Cycle,
		"status":               sub.EffectiveStatusAt(nowUTC()),
		"current_period_start": sub.CurrentPeriodStart,
		"current_period_end":   sub.CurrentPeriodEnd,
		"cancel_at_period_end": sub.CancelAtPeriodEnd,
	})
}

func (h *handlers) selectablePlans(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(r)
	if !ok {
		respond(w, http.StatusUnauthorized, nil)
		return
	}

	plans, err := h.svc.Orchestrator.SelectablePlans(r.Context(), accountID)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"plans": plans})
}

func (h *handlers) previewChange(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(r)
	if !ok {
		respond(w, http.StatusUnauthorized, nil)
		return
	}

	var req changeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, catalog.ErrInvalidBillingCycle)
		return
	}

	preview, err := h.svc.Orchestrator.Preview(r.Context(), accountID, req.TargetPlanID, req.Cycle)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, preview)
}

func (h *handlers) commitChange(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(r)
	if !ok {
		respond(w, http.StatusUnauthorized, nil)
		return
	}

	var req changeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, catalog.ErrInvalidBillingCycle)
		return
	}

	result, err := h.svc.Orchestrator.Commit(r.Context(), accountID, req.TargetPlanID, req.Cycle)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, result)
}

func (h *handlers) cancel(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(r)
	if !ok {
		respond(w, http.StatusUnauthorized, nil)
		return
	}

	sub, err := h.svc.Subs.Get(r.Context(), accountID)
	if err != nil {
		respondError(w, err)
		return
	}

	result, err := h.svc.Lifecycle.Cancel(r.Context(), sub)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, result)
}

func (h *handlers) reactivate(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(r)
	if !ok {
		respond(w, http.StatusUnauthorized, nil)
		return
	}

	sub, err := h.svc.Subs.Get(r.Context(), accountID)
	if err != nil {
		respondError(w, err)
		return
	}

	if err := h.svc.Lifecycle.Reactivate(r.Context(), sub); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"success": true})
}

func (h *handlers) syncStatus(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(r)
	if !ok {
		respond(w, http.StatusUnauthorized, nil)
		return
	}

	sub, err := h.svc.Subs.Get(r.Context(), accountID)
	if err != nil {
		respondError(w, err)
		return
	}

	if err := h.svc.Lifecycle.SyncStatus(r.Context(), sub); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"status": sub.Status})
}

func (h *handlers) canCreate(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(r)
	if !ok {
		respond(w, http.StatusUnauthorized, nil)
		return
	}

	res := catalog.Resource(chi.URLParam(r, "resource"))
	decision, err := h.svc.Resolver.CanCreate(r.Context(), accountID, res)
	if err != nil {
		respondError(w, err)
		return
	}

	body := map[string]any{"decision": decision}
	if usage, err := h.svc.Resolver.Usage(r.Context(), accountID, res); err == nil {
		body["usage"] = usage
	}
	respond(w, http.StatusOK, body)
}

type purchaseRequest struct {
	UpsellID   string `json:"upsell_id"`
	PropertyID string `json:"property_id,omitempty"`
}

func (h *handlers) purchaseUpsell(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(r)
	if !ok {
		respond(w, http.StatusUnauthorized, nil)
		return
	}

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, nil)
		return
	}

	grant, err := h.svc.Upsells.Purchase(r.Context(), accountID, req.UpsellID)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, grant)
}

func (h *handlers) purchaseFeatured(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(r)
	if !ok {
		respond(w, http.StatusUnauthorized, nil)
		return
	}

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, nil)
		return
	}
	propertyID, err := uuid.Parse(req.PropertyID)
	if err != nil {
		respond(w, http.StatusBadRequest, nil)
		return
	}

	grant, err := h.svc.Upsells.PurchaseFeatured(r.Context(), accountID, propertyID, req.UpsellID)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, grant)
}

func (h *handlers) cancelUpsell(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(r)
	if !ok {
		respond(w, http.StatusUnauthorized, nil)
		return
	}

	grantID, err := uuid.Parse(chi.URLParam(r, "grantID"))
	if err != nil {
		respond(w, http.StatusBadRequest, nil)
		return
	}

	grant, err := h.svc.Upsells.Cancel(r.Context(), accountID, grantID)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"cancelled":    true,
		"usable_until": grant.EndsAt,
	})
}

func (h *handlers) listGrants(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(r)
	if !ok {
		respond(w, http.StatusUnauthorized, nil)
		return
	}

	grants, err := h.svc.Upsells.ActiveGrants(r.Context(), accountID)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"grants": grants})
}

// paddleWebhook is the processor intake. It always answers quickly:
// signature failures are 400 so the processor retries with backoff,
// everything else is 200 even when the event was dropped, because
// redelivery cannot fix an unknown subscription.
func (h *handlers) paddleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respond(w, http.StatusBadRequest, nil)
		return
	}

	event, err := h.svc.Provider.ParseWebhook(r.Context(), body, r.Header.Get("Paddle-Signature"))
	if err != nil {
		h.svc.Log.WarnContext(r.Context(), "webhook rejected", slog.Any("error", err))
		respond(w, http.StatusBadRequest, nil)
		return
	}

	if err := h.svc.Lifecycle.ApplyWebhook(r.Context(), event); err != nil {
		h.svc.Log.ErrorContext(r.Context(), "webhook processing failed",
			slog.String("event_id", event.ID),
			slog.Any("error", err))
		respond(w, http.StatusInternalServerError, nil)
		return
	}
	respond(w, http.StatusOK, map[string]any{"received": true})
}
