package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/novaops/redstream/pkg/api/response"
	"github.com/novaops/redstream/pkg/broker"
	"github.com/novaops/redstream/pkg/logger"
	"github.com/novaops/redstream/pkg/memory"
)

// MemoryHandler handles memory bank endpoints.
type MemoryHandler struct {
	service *broker.Service
	logger  logger.Logger
}

// NewMemoryHandler creates a new memory handler.
func NewMemoryHandler(svc *broker.Service, log logger.Logger) *MemoryHandler {
	return &MemoryHandler{
		service: svc,
		logger:  log,
	}
}

// --- Request/Response types ---

type rememberRequest struct {
	Key      string          `json:"key"`
	Value    json.RawMessage `json:"value"`
	Category string          `json:"category,omitempty"`
	Priority string          `json:"priority,omitempty"`

	// TTL is a duration string like "24h". Empty stores without expiry.
	TTL string `json:"ttl,omitempty"`
}

type rememberResponse struct {
	Key string `json:"key"`
}

// Remember handles POST /api/v1/memory
func (h *MemoryHandler) Remember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req rememberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}

	if len(req.Value) == 0 {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "Value is required", getRequestID(ctx))
		return
	}

	var ttl time.Duration
	if req.TTL != "" {
		d, err := time.ParseDuration(req.TTL)
		if err != nil || d < 0 {
			response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, `ttl must be a duration like "24h"`, getRequestID(ctx))
			return
		}
		ttl = d
	}

	opts := memory.RememberOptions{
		Category: memory.Category(req.Category),
		Priority: memory.Priority(req.Priority),
		TTL:      ttl,
	}
	if err := h.service.Remember(ctx, req.Key, req.Value, opts); err != nil {
		h.logger.Error("Failed to remember entry", "key", req.Key, "error", err)
		response.DomainError(w, err, getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusCreated, rememberResponse{Key: req.Key})
}

// Recall handles GET /api/v1/memory/{key}
func (h *MemoryHandler) Recall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")

	entry, err := h.service.Recall(ctx, key)
	if err != nil {
		response.DomainError(w, err, getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, entry)
}

// Forget handles DELETE /api/v1/memory/{key}. Forgetting an absent key
// is a no-op success.
func (h *MemoryHandler) Forget(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")

	if err := h.service.Forget(ctx, key); err != nil {
		h.logger.Error("Failed to forget entry", "key", key, "error", err)
		response.DomainError(w, err, getRequestID(ctx))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /api/v1/memory. An empty category lists every entry.
func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	category := memory.Category(r.URL.Query().Get("category"))

	entries, err := h.service.ListMemories(ctx, category)
	if err != nil {
		h.logger.Error("Failed to list memories", "category", string(category), "error", err)
		response.DomainError(w, err, getRequestID(ctx))
		return
	}
	if entries == nil {
		entries = []*memory.Entry{}
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   len(entries),
	})
}
