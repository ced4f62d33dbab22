// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/novaops/redstream/pkg/api/middleware"
	"github.com/novaops/redstream/pkg/api/response"
	"github.com/novaops/redstream/pkg/broker"
	"github.com/novaops/redstream/pkg/version"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	service     *broker.Service
	environment string
	namespace   string
	startTime   time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(svc *broker.Service, environment, namespace string) *HealthHandler {
	return &HealthHandler{
		service:     svc,
		environment: environment,
		namespace:   namespace,
		startTime:   time.Now(),
	}
}

// Health handles the /health endpoint (liveness probe). The process is
// up; backend reachability is the readiness probe's concern.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Ready handles the /ready endpoint (readiness probe). Ready means the
// backing store answers a ping.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		response.JSON(w, http.StatusServiceUnavailable, map[string]bool{
			"ready": false,
		})
		return
	}
	response.JSON(w, http.StatusOK, map[string]bool{
		"ready": true,
	})
}

// Status handles the /status endpoint (detailed status).
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	redisStatus := "up"
	if err := h.service.Ping(r.Context()); err != nil {
		redisStatus = "down"
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"service":        "redstream",
		"environment":    h.environment,
		"namespace":      h.namespace,
		"version":        version.Version,
		"build":          version.Info(),
		"redis":          redisStatus,
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
	})
}

// getRequestID extracts the request ID for error envelopes.
func getRequestID(ctx context.Context) string {
	if id := middleware.GetRequestID(ctx); id != "" {
		return id
	}
	return "unknown"
}
