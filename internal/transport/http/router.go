// Package httptransport is the thin HTTP layer over the consent service and
// the authorization query engine. Handlers delegate to domain services
// without embedding business logic so transport concerns stay isolated.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"consentry/internal/platform/metrics"
	"consentry/internal/platform/middleware"
)

// NewRouter wires all endpoints behind the shared middleware chain. The
// /metrics and /healthz endpoints stay outside authentication.
func NewRouter(h *Handler, validator middleware.TokenValidator, logger *slog.Logger, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.Latency(m))
		r.Use(middleware.RequireAuth(validator, logger))

		r.Post("/records", h.handleCreateRecord)
		r.Get("/records", h.handleListRecords)
		r.Get("/records/{recordID}", h.handleGetRecord)
		r.Post("/records/{recordID}/grant", h.handleGrant)
		r.Post("/records/{recordID}/revoke", h.handleRevoke)
		r.Get("/records/{recordID}/verify", h.handleVerify)
		r.Post("/records/{recordID}/authorize", h.handleAuthorize)

		r.Post("/records/{recordID}/processing", h.handleCreateProcessing)
		r.Get("/records/{recordID}/processing/{processor}", h.handleGetProcessing)
		r.Post("/records/{recordID}/processing/{processor}/grant", h.handleGrantProcessing)
		r.Post("/records/{recordID}/processing/{processor}/revoke", h.handleRevokeProcessing)
		r.Get("/records/{recordID}/processing/{processor}/verify", h.handleVerifyForPurpose)
		r.Post("/records/{recordID}/processing/{processor}/revoke-all", h.handleRevokeAllForProcessor)

		r.Post("/records/{recordID}/purposes/{purpose}/revoke", h.handleRevokePurpose)

		r.Post("/records/{recordID}/delegates", h.handleAddDelegate)
		r.Delete("/records/{recordID}/delegates/{delegate}", h.handleRemoveDelegate)
	})

	return r
}
