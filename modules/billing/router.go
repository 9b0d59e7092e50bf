package billing

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/propkit/billing/pkg/entitlement"
	"github.com/propkit/billing/pkg/planchange"
	"github.com/propkit/billing/pkg/subscription"
	"github.com/propkit/billing/pkg/upsell"
)

// Services bundles the core services the billing module exposes over HTTP.
type Services struct {
	Orchestrator *planchange.Orchestrator
	Lifecycle    *subscription.Service
	Resolver     *entitlement.Resolver
	Upsells      *upsell.Service
	Provider     subscription.BillingProvider
	Subs         subscription.Store
	Log          *slog.Logger
}

// Router mounts the billing command surface and the processor webhook
// endpoint. Authentication happens upstream: every request except the
// webhook is expected to carry a verified actor in its context.
//
//	r := chi.NewRouter()
//	r.Mount("/billing", billing.Router(svc))
func Router(svc Services) chi.Router {
	if svc.Log == nil {
		svc.Log = slog.Default()
	}
	h := &handlers{svc: svc}

	r := chi.NewRouter()

	r.Route("/subscription", func(sub chi.Router) {
		sub.Get("/", h.getSubscription)
		sub.Get("/plans", h.selectablePlans)
		sub.Post("/preview", h.previewChange)
		sub.Post("/change", h.commitChange)
		sub.Post("/cancel", h.cancel)
		sub.Post("/reactivate", h.reactivate)
		sub.Post("/sync", h.syncStatus)
	})

	r.Get("/entitlements/{resource}", h.canCreate)

	r.Route("/upsells", func(up chi.Router) {
		up.Post("/", h.purchaseUpsell)
		up.Post("/featured", h.purchaseFeatured)
		up.Delete("/{grantID}", h.cancelUpsell)
		up.Get("/", h.listGrants)
	})

	r.Post("/webhooks/paddle", h.paddleWebhook)

	return r
}
