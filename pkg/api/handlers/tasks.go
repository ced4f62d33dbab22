package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/novaops/redstream/pkg/api/models"
	"github.com/novaops/redstream/pkg/api/response"
	"github.com/novaops/redstream/pkg/broker"
	"github.com/novaops/redstream/pkg/logger"
	"github.com/novaops/redstream/pkg/task"
)

// TaskHandler handles task registry endpoints.
type TaskHandler struct {
	service   *broker.Service
	logger    logger.Logger
	validator *validator.Validate
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(svc *broker.Service, log logger.Logger) *TaskHandler {
	return &TaskHandler{
		service:   svc,
		logger:    log,
		validator: validator.New(),
	}
}

// Create handles POST /api/v1/tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.TaskCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(ctx))
		return
	}

	created, err := h.service.CreateTask(ctx, req.Input())
	if err != nil {
		h.logger.Error("Failed to create task", "title", req.Title, "error", err)
		response.DomainError(w, err, getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusCreated, created)
}

// Get handles GET /api/v1/tasks/{id}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	found, err := h.service.GetTask(ctx, id)
	if err != nil {
		response.DomainError(w, err, getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, found)
}

// List handles GET /api/v1/tasks
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := task.Filter{
		Pattern: q.Get("pattern"),
		Status:  task.Status(q.Get("status")),
	}

	tasks, err := h.service.ListTasks(ctx, filter)
	if err != nil {
		h.logger.Error("Failed to list tasks", "error", err)
		response.DomainError(w, err, getRequestID(ctx))
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}

	response.JSON(w, http.StatusOK, models.TaskListResponse{Tasks: tasks, Total: len(tasks)})
}

// Update handles PATCH /api/v1/tasks/{id}. Absent fields keep their
// current values; a status change must be legal under the task state
// machine or the request is rejected with a conflict.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req models.TaskUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}

	updated, err := h.service.UpdateTask(ctx, id, req.Updates())
	if err != nil {
		h.logger.Error("Failed to update task", "id", id, "error", err)
		response.DomainError(w, err, getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, updated)
}

// Complete handles POST /api/v1/tasks/{id}/complete. An empty body
// completes without a result.
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req models.TaskCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}

	completed, err := h.service.CompleteTask(ctx, id, req.Result)
	if err != nil {
		h.logger.Error("Failed to complete task", "id", id, "error", err)
		response.DomainError(w, err, getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, completed)
}
