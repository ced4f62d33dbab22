package task

import (
	"fmt"
	"strings"
	"time"
)

// Status is a task's position in the lifecycle state machine.
type Status string

const (
	StatusCreated    Status = "created"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Statuses returns every valid status.
func Statuses() []Status {
	return []Status{StatusCreated, StatusInProgress, StatusCompleted, StatusFailed}
}

// Valid reports whether s is one of the fixed statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s. Terminal tasks persist
// for listing and history but accept no further writes.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a task may move from s to next. Setting
// the same non-terminal status again is an allowed no-op; terminal
// statuses accept no transition, not even to themselves.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	if s == next {
		return true
	}
	switch s {
	case StatusCreated:
		return next == StatusInProgress || next == StatusCompleted || next == StatusFailed
	case StatusInProgress:
		return next == StatusCompleted || next == StatusFailed
	}
	return false
}

func (s Status) String() string { return string(s) }

// ParseStatus parses a status string.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", &InvalidArgumentError{Field: "status", Reason: enumReason(s, Statuses())}
	}
	return st, nil
}

// Priority ranks a task for schedulers and listings. It carries no
// behavior inside the registry itself.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// DefaultPriority is applied when task creation does not name one.
const DefaultPriority = PriorityMedium

// Priorities returns every valid priority.
func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}
}

// Valid reports whether p is one of the fixed priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

func (p Priority) String() string { return string(p) }

// ParsePriority parses a priority string.
func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !p.Valid() {
		return "", &InvalidArgumentError{Field: "priority", Reason: enumReason(s, Priorities())}
	}
	return p, nil
}

// Task is one unit of tracked work.
type Task struct {
	// ID is assigned at creation and never changes.
	ID string `json:"id"`

	// Title is a short human-readable summary.
	Title string `json:"title"`

	// Description carries free-form detail.
	Description string `json:"description,omitempty"`

	// Priority ranks the task.
	Priority Priority `json:"priority"`

	// Assignee names the worker responsible, if any.
	Assignee string `json:"assignee,omitempty"`

	// Status is the task's position in the state machine.
	Status Status `json:"status"`

	// Result holds the outcome recorded on completion or failure.
	Result string `json:"result,omitempty"`

	// Metadata holds arbitrary key-value pairs for filtering.
	Metadata map[string]string `json:"metadata,omitempty"`

	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is the timestamp of the last accepted write.
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone creates a deep copy of the task.
func (t *Task) Clone() *Task {
	cloned := *t
	if t.Metadata != nil {
		cloned.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			cloned.Metadata[k] = v
		}
	}
	return &cloned
}

func enumReason[T ~string](got string, valid []T) string {
	if got == "" {
		got = "(empty)"
	}
	names := make([]string, len(valid))
	for i, v := range valid {
		names[i] = string(v)
	}
	return fmt.Sprintf("%s is not one of %s", got, strings.Join(names, ", "))
}
