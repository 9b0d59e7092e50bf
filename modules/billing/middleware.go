package billing

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/propkit/billing/pkg/actor"
)

// ActorFromHeaders builds the request actor from gateway-injected headers:
// X-Account-ID carries the authenticated account and X-Admin the verified
// admin flag. Only for deployments behind a trusted gateway that strips
// these headers from client traffic; requests without a parseable account
// are passed through without an actor and fail authorization downstream.
func ActorFromHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.Header.Get("X-Account-ID"))
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		a := actor.Actor{ID: id, Admin: r.Header.Get("X-Admin") == "true"}
		next.ServeHTTP(w, r.WithContext(actor.WithActor(r.Context(), a)))
	})
}
