// Package httpapi assembles the full HTTP surface of the gateway.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"biogate/internal/gateway/handler"
)

// HealthCheck probes one dependency; a non-nil error marks it unhealthy.
type HealthCheck func(ctx context.Context) error

// NewRouter wires the gateway routes plus the operational endpoints.
func NewRouter(gw *handler.Handler, checks map[string]HealthCheck) http.Handler {
	r := chi.NewRouter()

	gw.Register(r)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", handleHealth(checks))

	return r
}

func handleHealth(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": http.StatusText(status),
			"checks": results,
		})
	}
}
