// Package httptransport is the thin HTTP surface over the submission
// engine. Handlers resolve records, delegate to the orchestrator, and
// translate outcomes; no business logic lives here.
package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires all endpoints.
func NewRouter(h *Handler, registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/evv", func(r chi.Router) {
		r.Post("/patients/{id}/submit", h.handleSubmitPatient)
		r.Post("/staff/{id}/submit", h.handleSubmitStaff)
		r.Post("/visits/{id}/submit", h.handleSubmitVisit)
		r.Post("/visits/submit-batch", h.handleSubmitVisitBatch)
		r.Get("/transactions/{id}", h.handleGetTransaction)
		r.Post("/transactions/{id}/requeue", h.handleRequeueTransaction)
		r.Get("/records/{type}/{id}/transactions", h.handleListRecordTransactions)
	})
	return r
}
