// Package server assembles the intake HTTP routes.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/faultline/internal/handlers"
	"github.com/telhawk-systems/faultline/internal/logging"
	"github.com/telhawk-systems/faultline/internal/middleware"
)

// NewRouter constructs a ServeMux with the intake API routes registered.
func NewRouter(h *handlers.EnvelopeHandler, logger *logging.Logger) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	mux := http.NewServeMux()

	// Sentry-compatible envelope intake
	mux.HandleFunc("POST /api/{project_id}/envelope/{$}", h.Envelope)
	mux.HandleFunc("POST /api/{project_id}/envelope", h.Envelope)
	mux.HandleFunc("GET /api/project/{project_id}/link", h.Link)

	// Health endpoints
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("GET /readyz", h.Ready)

	// Prometheus metrics
	mux.Handle("GET /metrics", promhttp.Handler())

	return middleware.RequestID(accessLog(mux, logger))
}
