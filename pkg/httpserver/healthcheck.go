package httpserver

import (
	"context"
	"log/slog"
	"net/http"
)

// HealthHandler serves liveness and readiness probes. With no dependency
// checks it answers 200 "ALIVE"; with checks it runs each one and answers
// 200 "READY" or 503 "NOT_READY". Database and Redis healthchecks plug in
// as the dependency funcs.
func HealthHandler(log *slog.Logger, checks ...func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(checks) == 0 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ALIVE"))
			return
		}

		for _, check := range checks {
			if err := check(r.Context()); err != nil {
				log.ErrorContext(r.Context(), "readiness check failed", slog.Any("error", err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("NOT_READY"))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	}
}
