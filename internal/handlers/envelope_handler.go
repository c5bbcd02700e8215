package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/telhawk-systems/faultline/internal/envelope"
	"github.com/telhawk-systems/faultline/internal/extractor"
	"github.com/telhawk-systems/faultline/internal/httputil"
	"github.com/telhawk-systems/faultline/internal/logging"
	"github.com/telhawk-systems/faultline/internal/ratelimit"
	"github.com/telhawk-systems/faultline/internal/service"
)

// Ingester processes envelope bodies.
type Ingester interface {
	Ingest(ctx context.Context, body []byte, contentEncoding string) (*service.IngestResult, error)
}

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// LinkConfig is the public address SDKs send envelopes to.
type LinkConfig struct {
	Protocol string
	Host     string
	Port     int
}

// Config holds handler settings.
type Config struct {
	// MaxBodyBytes caps the request body before decompression. Zero means no cap.
	MaxBodyBytes int64
	Link         LinkConfig
}

type EnvelopeHandler struct {
	service Ingester
	limiter ratelimit.RateLimiter
	health  HealthChecker
	cfg     Config
	logger  *logging.Logger
}

// NewEnvelopeHandler creates the handler. limiter and health may be nil.
func NewEnvelopeHandler(svc Ingester, limiter ratelimit.RateLimiter, health HealthChecker, cfg Config, logger *logging.Logger) *EnvelopeHandler {
	if limiter == nil {
		limiter = &ratelimit.NoOpRateLimiter{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &EnvelopeHandler{
		service: svc,
		limiter: limiter,
		health:  health,
		cfg:     cfg,
		logger:  logger,
	}
}

// Envelope handles POST /api/{project_id}/envelope/.
//
// The path project_id is echoed back but never used to bind the event; the project
// comes from the envelope's trace.public_key.
func (h *EnvelopeHandler) Envelope(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pathProjectID := r.PathValue("project_id")
	clientIP := httputil.GetClientIP(r)

	allowed, err := h.limiter.Allow(ctx, clientIP)
	if err != nil {
		h.logger.WarnContext(ctx, "rate limit check failed, allowing request",
			logging.IP(clientIP),
			logging.Error(err))
	} else if !allowed {
		httputil.WriteError(w, http.StatusTooManyRequests, "Too_many_requests")
		return
	}

	if h.cfg.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
	}
	body, err := io.ReadAll(r.Body)
	defer r.Body.Close()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "Request_entity_too_large")
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, "Bad_request")
		return
	}

	result, err := h.service.Ingest(ctx, body, r.Header.Get("Content-Encoding"))
	if err != nil {
		status := statusFor(err)
		attrs := []any{
			logging.ProjectID(pathProjectID),
			logging.IP(clientIP),
			logging.Status(status),
			logging.Error(err),
		}
		if status >= http.StatusInternalServerError {
			h.logger.ErrorContext(ctx, "envelope ingestion failed", attrs...)
			httputil.WriteError(w, status, "Internal_server_error")
			return
		}
		h.logger.WarnContext(ctx, "envelope rejected", attrs...)
		httputil.WriteError(w, status, "Bad_request")
		return
	}

	h.logger.DebugContext(ctx, "envelope accepted",
		logging.EventID(result.EventID),
		logging.ProjectID(result.ProjectID))

	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{
		"status":     "received",
		"project_id": pathProjectID,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, envelope.ErrNoEnvelope),
		errors.Is(err, envelope.ErrDecode),
		errors.Is(err, extractor.ErrExtraction):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Link handles GET /api/project/{project_id}/link and returns the DSN an SDK is
// configured with.
func (h *EnvelopeHandler) Link(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("project_id")
	link := fmt.Sprintf("%s://%s@%s:%d/0", h.cfg.Link.Protocol, projectID, h.cfg.Link.Host, h.cfg.Link.Port)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"link": link})
}

func (h *EnvelopeHandler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready reports ready only when the store answers a ping.
func (h *EnvelopeHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.health.Ping(ctx); err != nil {
			h.logger.WarnContext(r.Context(), "readiness check failed", logging.Error(err))
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
