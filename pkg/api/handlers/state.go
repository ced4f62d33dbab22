package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/novaops/redstream/config"
	"github.com/novaops/redstream/pkg/api/response"
	"github.com/novaops/redstream/pkg/broker"
	"github.com/novaops/redstream/pkg/logger"
)

// maxStateValueBytes caps the stored value size. Values are opaque JSON;
// anything bigger belongs in a blob store, not the coordination plane.
const maxStateValueBytes = 1 << 20

// StateHandler handles state store endpoints. The request body is the
// value verbatim: any valid JSON document, stored and returned untouched.
type StateHandler struct {
	service  *broker.Service
	logger   logger.Logger
	defaults config.StateConfig
}

// NewStateHandler creates a new state handler.
func NewStateHandler(svc *broker.Service, log logger.Logger, defaults config.StateConfig) *StateHandler {
	return &StateHandler{
		service:  svc,
		logger:   log,
		defaults: defaults,
	}
}

// Put handles PUT /api/v1/state/{key}
func (h *StateHandler) Put(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxStateValueBytes+1))
	if err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Failed to read request body", getRequestID(ctx))
		return
	}
	if len(body) > maxStateValueBytes {
		response.Error(w, http.StatusRequestEntityTooLarge, response.ErrCodeBadRequest, "Value exceeds the 1MiB limit", getRequestID(ctx))
		return
	}
	if !json.Valid(body) {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "Body must be a valid JSON document", getRequestID(ctx))
		return
	}

	ttl := h.defaults.DefaultTTL
	if v := r.URL.Query().Get("ttl"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, `ttl must be a duration like "30s" or "5m"`, getRequestID(ctx))
			return
		}
		ttl = d
	}

	if err := h.service.SetState(ctx, key, json.RawMessage(body), ttl); err != nil {
		h.logger.Error("Failed to set state", "key", key, "error", err)
		response.DomainError(w, err, getRequestID(ctx))
		return
	}

	resp := map[string]interface{}{"key": key}
	if ttl > 0 {
		resp["ttl_seconds"] = int64(ttl.Seconds())
	}
	response.JSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/state/{key}
func (h *StateHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")

	raw, err := h.service.GetState(ctx, key)
	if err != nil {
		response.DomainError(w, err, getRequestID(ctx))
		return
	}

	// The stored value is already a JSON document; write it verbatim.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

// Delete handles DELETE /api/v1/state/{key}. Deleting an absent key is a
// no-op success.
func (h *StateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")

	if err := h.service.DeleteState(ctx, key); err != nil {
		h.logger.Error("Failed to delete state", "key", key, "error", err)
		response.DomainError(w, err, getRequestID(ctx))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
