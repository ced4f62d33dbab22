package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/novaops/redstream/config"
	"github.com/novaops/redstream/pkg/api/models"
	"github.com/novaops/redstream/pkg/api/response"
	"github.com/novaops/redstream/pkg/broker"
	"github.com/novaops/redstream/pkg/logger"
	"github.com/novaops/redstream/pkg/stream"
)

// StreamHandler handles stream-related endpoints.
type StreamHandler struct {
	service   *broker.Service
	logger    logger.Logger
	validator *validator.Validate
	defaults  config.StreamsConfig
}

// NewStreamHandler creates a new stream handler. defaults supplies the
// trim and blocking-read budgets applied when a request names none.
func NewStreamHandler(svc *broker.Service, log logger.Logger, defaults config.StreamsConfig) *StreamHandler {
	return &StreamHandler{
		service:   svc,
		logger:    log,
		validator: validator.New(),
		defaults:  defaults,
	}
}

// Publish handles POST /api/v1/streams/{stream}/messages
func (h *StreamHandler) Publish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	streamName := chi.URLParam(r, "stream")

	var req models.PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(ctx))
		return
	}

	opts := stream.PublishOptions{MaxLen: h.defaults.DefaultMaxLen}
	if v := r.URL.Query().Get("maxlen"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "maxlen must be a non-negative integer", getRequestID(ctx))
			return
		}
		opts.MaxLen = n
	}

	id, err := h.service.Publish(ctx, streamName, req.Fields, opts)
	if err != nil {
		h.logger.Error("Failed to publish message", "stream", streamName, "error", err)
		response.DomainError(w, err, getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusCreated, models.PublishResponse{ID: id, Stream: streamName})
}

// Read handles GET /api/v1/streams/{stream}/messages
func (h *StreamHandler) Read(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	streamName := chi.URLParam(r, "stream")
	q := r.URL.Query()

	opts := stream.ReadOptions{SinceID: q.Get("since_id")}

	if v := q.Get("count"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "count must be a positive integer", getRequestID(ctx))
			return
		}
		opts.Count = n
	}

	if v := q.Get("reverse"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "reverse must be a boolean", getRequestID(ctx))
			return
		}
		opts.Reverse = b
	}

	if v := q.Get("block_ms"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "block_ms must be a non-negative integer", getRequestID(ctx))
			return
		}
		opts.Block = h.capBlock(time.Duration(n) * time.Millisecond)
	}

	messages, err := h.service.Read(ctx, streamName, opts)
	if err != nil {
		h.logger.Error("Failed to read messages", "stream", streamName, "error", err)
		response.DomainError(w, err, getRequestID(ctx))
		return
	}
	if messages == nil {
		messages = []stream.Message{}
	}

	response.JSON(w, http.StatusOK, models.MessagesResponse{
		Stream:   streamName,
		Messages: messages,
		Count:    len(messages),
	})
}

// List handles GET /api/v1/streams
func (h *StreamHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pattern := r.URL.Query().Get("pattern")

	streams, err := h.service.ListStreams(ctx, pattern)
	if err != nil {
		h.logger.Error("Failed to list streams", "pattern", pattern, "error", err)
		response.DomainError(w, err, getRequestID(ctx))
		return
	}
	if streams == nil {
		streams = []string{}
	}

	response.JSON(w, http.StatusOK, models.StreamListResponse{Streams: streams, Total: len(streams)})
}

// CreateGroup handles POST /api/v1/streams/{stream}/groups
func (h *StreamHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	streamName := chi.URLParam(r, "stream")

	var req models.CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(ctx))
		return
	}

	opts := stream.GroupOptions{StartID: req.StartID, MkStream: req.MkStream}
	if err := h.service.CreateConsumerGroup(ctx, streamName, req.Group, opts); err != nil {
		h.logger.Error("Failed to create consumer group", "stream", streamName, "group", req.Group, "error", err)
		response.DomainError(w, err, getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusCreated, map[string]string{
		"stream": streamName,
		"group":  req.Group,
	})
}

// ReadGroup handles POST /api/v1/streams/{stream}/groups/{group}/consumers/{consumer}/read
//
// An empty body reads with defaults: new messages, default count, no
// blocking.
func (h *StreamHandler) ReadGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	streamName := chi.URLParam(r, "stream")
	group := chi.URLParam(r, "group")
	consumer := chi.URLParam(r, "consumer")

	var req models.GroupReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(ctx))
		return
	}

	opts := stream.GroupReadOptions{
		Count:   req.Count,
		NoAck:   req.NoAck,
		StartID: req.StartID,
	}
	if req.BlockMS > 0 {
		opts.Block = h.capBlock(time.Duration(req.BlockMS) * time.Millisecond)
	}

	messages, err := h.service.ReadAsConsumer(ctx, streamName, group, consumer, opts)
	if err != nil {
		h.logger.Error("Failed to read as consumer",
			"stream", streamName, "group", group, "consumer", consumer, "error", err)
		response.DomainError(w, err, getRequestID(ctx))
		return
	}
	if messages == nil {
		messages = []stream.Message{}
	}

	response.JSON(w, http.StatusOK, models.MessagesResponse{
		Stream:   streamName,
		Messages: messages,
		Count:    len(messages),
	})
}

// Ack handles POST /api/v1/streams/{stream}/groups/{group}/ack
func (h *StreamHandler) Ack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	streamName := chi.URLParam(r, "stream")
	group := chi.URLParam(r, "group")

	var req models.AckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(ctx))
		return
	}

	acked, err := h.service.Acknowledge(ctx, streamName, group, req.ID)
	if err != nil {
		h.logger.Error("Failed to acknowledge message",
			"stream", streamName, "group", group, "id", req.ID, "error", err)
		response.DomainError(w, err, getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, models.AckResponse{Acknowledged: acked})
}

// capBlock bounds a client-requested blocking duration to the configured
// budget so a request can never outlive the server's write timeout.
func (h *StreamHandler) capBlock(block time.Duration) time.Duration {
	if h.defaults.DefaultBlock > 0 && block > h.defaults.DefaultBlock {
		return h.defaults.DefaultBlock
	}
	return block
}
