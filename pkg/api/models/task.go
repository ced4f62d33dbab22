package models

import "github.com/novaops/redstream/pkg/task"

// TaskCreateRequest carries the fields for creating a task.
type TaskCreateRequest struct {
	// Title is a short human-readable summary.
	Title string `json:"title" validate:"required,min=1,max=200"`

	// Description carries free-form detail.
	Description string `json:"description,omitempty" validate:"max=2000"`

	// Priority ranks the task: low, medium, high or critical. Empty
	// selects medium. Validated by the registry so rejections name the
	// accepted values.
	Priority string `json:"priority,omitempty"`

	// Assignee names the worker responsible, if any.
	Assignee string `json:"assignee,omitempty"`

	// Metadata holds arbitrary key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Input converts the request into a registry create input.
func (r TaskCreateRequest) Input() task.CreateInput {
	return task.CreateInput{
		Title:       r.Title,
		Description: r.Description,
		Priority:    task.Priority(r.Priority),
		Assignee:    r.Assignee,
		Metadata:    r.Metadata,
	}
}

// TaskUpdateRequest carries a partial update. Absent fields keep their
// current values; status changes go through the task state machine.
type TaskUpdateRequest struct {
	Title       *string           `json:"title,omitempty"`
	Description *string           `json:"description,omitempty"`
	Priority    *string           `json:"priority,omitempty"`
	Assignee    *string           `json:"assignee,omitempty"`
	Status      *string           `json:"status,omitempty"`
	Result      *string           `json:"result,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Updates converts the request into registry updates.
func (r TaskUpdateRequest) Updates() task.Updates {
	up := task.Updates{
		Title:       r.Title,
		Description: r.Description,
		Assignee:    r.Assignee,
		Result:      r.Result,
		Metadata:    r.Metadata,
	}
	if r.Priority != nil {
		p := task.Priority(*r.Priority)
		up.Priority = &p
	}
	if r.Status != nil {
		s := task.Status(*r.Status)
		up.Status = &s
	}
	return up
}

// TaskCompleteRequest carries the result recorded at completion.
type TaskCompleteRequest struct {
	// Result holds the outcome. May be empty.
	Result string `json:"result,omitempty"`
}

// TaskListResponse lists tasks matching a filter.
type TaskListResponse struct {
	Tasks []*task.Task `json:"tasks"`
	Total int          `json:"total"`
}
