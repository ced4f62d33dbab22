// Package api provides the HTTP and WebSocket surface of the broker.
package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/novaops/redstream/config"
	"github.com/novaops/redstream/pkg/api/handlers"
	"github.com/novaops/redstream/pkg/api/middleware"
	"github.com/novaops/redstream/pkg/logger"
)

// Handlers holds the HTTP handlers the router mounts. Nil entries are
// skipped, so partial surfaces (for tests or stripped-down deployments)
// need no stub handlers.
type Handlers struct {
	// Health serves the liveness, readiness and status probes.
	Health *handlers.HealthHandler

	// Streams serves publish, read, consumer group and ack endpoints.
	Streams *handlers.StreamHandler

	// State serves the key-value state endpoints.
	State *handlers.StateHandler

	// Memory serves the agent memory endpoints.
	Memory *handlers.MemoryHandler

	// Tasks serves the task lifecycle endpoints.
	Tasks *handlers.TaskHandler

	// Tail serves live stream tails over WebSocket.
	Tail *handlers.TailHandler

	// Metrics is the optional request metrics recorder.
	Metrics middleware.MetricsRecorder
}

// NewRouter creates a chi router with the middleware chain and routes.
func NewRouter(cfg *config.Config, log logger.Logger, h *Handlers) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	// Tracing runs before metrics so the recorder sees the span context.
	r.Use(middleware.Tracing(middleware.DefaultTracingOptions()))
	if h.Metrics != nil {
		r.Use(middleware.Metrics(h.Metrics))
	}
	if cfg.RateLimit.RPS > 0 {
		r.Use(middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst).Middleware())
	}

	RegisterRoutes(r, cfg, h)

	return r
}

// RegisterRoutes mounts all API routes on r.
func RegisterRoutes(r chi.Router, cfg *config.Config, h *Handlers) {
	// The REST surface shares a deadline. Probes and tails live outside
	// it: a tail holds its connection open far past any write timeout.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.Server.WriteTimeout))

		if h.Streams != nil {
			r.Route("/streams", func(r chi.Router) {
				r.Get("/", h.Streams.List)
				r.Route("/{stream}", func(r chi.Router) {
					r.Post("/messages", h.Streams.Publish)
					r.Get("/messages", h.Streams.Read)
					r.Post("/groups", h.Streams.CreateGroup)
					r.Post("/groups/{group}/consumers/{consumer}/read", h.Streams.ReadGroup)
					r.Post("/groups/{group}/ack", h.Streams.Ack)
				})
			})
		}

		if h.State != nil {
			r.Route("/state/{key}", func(r chi.Router) {
				r.Put("/", h.State.Put)
				r.Get("/", h.State.Get)
				r.Delete("/", h.State.Delete)
			})
		}

		if h.Memory != nil {
			r.Route("/memory", func(r chi.Router) {
				r.Post("/", h.Memory.Remember)
				r.Get("/", h.Memory.List)
				r.Get("/{key}", h.Memory.Recall)
				r.Delete("/{key}", h.Memory.Forget)
			})
		}

		if h.Tasks != nil {
			r.Route("/tasks", func(r chi.Router) {
				r.Post("/", h.Tasks.Create)
				r.Get("/", h.Tasks.List)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.Tasks.Get)
					r.Patch("/", h.Tasks.Update)
					r.Post("/complete", h.Tasks.Complete)
				})
			})
		}
	})

	if h.Tail != nil {
		r.Get("/ws/streams/{stream}", h.Tail.ServeHTTP)
	}

	if h.Health != nil {
		r.Get("/health", h.Health.Health)
		r.Get("/ready", h.Health.Ready)
		r.Get("/status", h.Health.Status)
	}
}
