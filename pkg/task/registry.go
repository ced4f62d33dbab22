// Package task implements the task registry: units of tracked work with
// an explicit lifecycle state machine, persisted as state entries and
// audited to a fixed operations stream. Tasks are never physically
// deleted; terminal tasks persist for listing and history.
package task

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"

	"github.com/novaops/redstream/pkg/naming"
	"github.com/novaops/redstream/pkg/state"
	"github.com/novaops/redstream/pkg/stream"
)

// KeyPrefix namespaces task records inside the state keyspace. Every
// write path stores tasks under it, so listings see one keyspace no
// matter which implementation wrote them.
const KeyPrefix = "task:"

// DefaultAuditMaxLen caps the audit stream when no cap is configured.
const DefaultAuditMaxLen = 10000

// DefaultSource is the _source stamped on audit messages by default.
const DefaultSource = "task-registry"

// Audit message field names and operation values.
const (
	AuditFieldOp       = "op"
	AuditFieldTaskID   = "task_id"
	AuditFieldStatus   = "status"
	AuditFieldPriority = "priority"

	AuditOpCreate = "create"
	AuditOpUpdate = "update"
)

// Config holds registry settings.
type Config struct {
	// Source is the _source stamped on audit messages. Empty selects
	// DefaultSource.
	Source string

	// AuditMaxLen trims the audit stream to approximately this many
	// entries on every append. Zero selects DefaultAuditMaxLen; negative
	// disables trimming.
	AuditMaxLen int64
}

// DefaultConfig returns registry settings with the default audit cap.
func DefaultConfig() *Config {
	return &Config{Source: DefaultSource, AuditMaxLen: DefaultAuditMaxLen}
}

// AuditStreamName returns the fixed operations stream for task audits
// under the validator's namespace. Both write paths derive the name
// here.
func AuditStreamName(v *naming.Validator) (string, error) {
	return v.Build(naming.DomainSystem, "task", "events")
}

// MetricsRecorder receives task lifecycle measurements.
type MetricsRecorder interface {
	RecordTaskCreated(priority string)
	RecordTaskTransition(from, to string)
	RecordTaskTerminal(status string, lifetime time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) RecordTaskCreated(string)                 {}
func (nopMetrics) RecordTaskTransition(string, string)      {}
func (nopMetrics) RecordTaskTerminal(string, time.Duration) {}

// Registry stores tasks through the state store and audits every write
// through the stream gateway. Concurrent use is safe. update reads,
// merges, and writes back without a transaction: concurrent updates to
// the same task id are last-writer-wins, updates to different ids never
// conflict.
type Registry struct {
	store       *state.Store
	gateway     *stream.Gateway
	auditStream string
	source      string
	auditMaxLen int64
	metrics     MetricsRecorder
}

// New creates a Registry over the given state store and stream gateway.
// The audit stream name is derived from the gateway's namespace.
func New(store *state.Store, gateway *stream.Gateway, cfg *Config) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("state store cannot be nil")
	}
	if gateway == nil {
		return nil, fmt.Errorf("stream gateway cannot be nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	auditStream, err := AuditStreamName(gateway.Validator())
	if err != nil {
		return nil, fmt.Errorf("audit stream name: %w", err)
	}

	source := cfg.Source
	if source == "" {
		source = DefaultSource
	}
	maxLen := cfg.AuditMaxLen
	if maxLen == 0 {
		maxLen = DefaultAuditMaxLen
	}
	if maxLen < 0 {
		maxLen = 0
	}

	return &Registry{
		store:       store,
		gateway:     gateway,
		auditStream: auditStream,
		source:      source,
		auditMaxLen: maxLen,
		metrics:     nopMetrics{},
	}, nil
}

// SetMetrics sets the metrics recorder.
func (r *Registry) SetMetrics(m MetricsRecorder) {
	if m != nil {
		r.metrics = m
	}
}

// AuditStream returns the operations stream the registry appends audits to.
func (r *Registry) AuditStream() string {
	return r.auditStream
}

// CreateInput carries the caller-supplied fields of a new task.
type CreateInput struct {
	Title       string
	Description string

	// Priority ranks the task. Empty selects DefaultPriority.
	Priority Priority

	Assignee string
	Metadata map[string]string
}

// NewTask validates a create call and builds the task that gets
// persisted: fresh ULID id, StatusCreated, both timestamps set. Every
// write path builds tasks here, so records are identical no matter
// which implementation created them.
func NewTask(in CreateInput) (*Task, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, &InvalidArgumentError{Field: "title", Reason: "must not be empty"}
	}
	priority := in.Priority
	if priority == "" {
		priority = DefaultPriority
	}
	if !priority.Valid() {
		return nil, &InvalidArgumentError{Field: "priority", Reason: enumReason(string(priority), Priorities())}
	}

	now := time.Now().UTC()
	return &Task{
		ID:          ulid.Make().String(),
		Title:       in.Title,
		Description: in.Description,
		Priority:    priority,
		Assignee:    in.Assignee,
		Status:      StatusCreated,
		Metadata:    cloneMetadata(in.Metadata),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Create assigns a fresh id, persists the task with StatusCreated, and
// appends a create audit message. The id is a ULID, so ids sort in
// creation order. A failed audit append surfaces after the task is
// already stored.
func (r *Registry) Create(ctx context.Context, in CreateInput) (*Task, error) {
	t, err := NewTask(in)
	if err != nil {
		return nil, err
	}

	if err := r.store.Set(ctx, KeyPrefix+t.ID, t, 0); err != nil {
		return nil, err
	}
	if err := r.audit(ctx, map[string]string{
		AuditFieldOp:       AuditOpCreate,
		AuditFieldTaskID:   t.ID,
		AuditFieldStatus:   string(t.Status),
		AuditFieldPriority: string(t.Priority),
	}); err != nil {
		return nil, err
	}
	r.metrics.RecordTaskCreated(string(t.Priority))
	return t, nil
}

// Updates carries a partial task write. Nil fields are left untouched;
// Metadata is merged key by key into the stored mapping.
type Updates struct {
	Title       *string
	Description *string
	Priority    *Priority
	Assignee    *string
	Status      *Status
	Result      *string
	Metadata    map[string]string
}

// Apply validates the partial write against current and returns the
// merged task with a fresh UpdatedAt. A status change must be legal
// under the state machine; any write against a terminal task is
// rejected. current is not modified. Every write path merges here, so
// the state machine cannot drift between implementations.
func (up Updates) Apply(current *Task) (*Task, error) {
	next := current.Status
	if up.Status != nil {
		next = *up.Status
		if !next.Valid() {
			return nil, &InvalidArgumentError{Field: "status", Reason: enumReason(string(next), Statuses())}
		}
	}
	if up.Priority != nil && !up.Priority.Valid() {
		return nil, &InvalidArgumentError{Field: "priority", Reason: enumReason(string(*up.Priority), Priorities())}
	}
	if up.Title != nil && strings.TrimSpace(*up.Title) == "" {
		return nil, &InvalidArgumentError{Field: "title", Reason: "must not be empty"}
	}
	if current.Status.Terminal() || !current.Status.CanTransition(next) {
		return nil, &InvalidTransitionError{ID: current.ID, From: current.Status, To: next}
	}

	merged := current.Clone()
	if up.Title != nil {
		merged.Title = *up.Title
	}
	if up.Description != nil {
		merged.Description = *up.Description
	}
	if up.Priority != nil {
		merged.Priority = *up.Priority
	}
	if up.Assignee != nil {
		merged.Assignee = *up.Assignee
	}
	if up.Result != nil {
		merged.Result = *up.Result
	}
	merged.Status = next
	if len(up.Metadata) > 0 {
		if merged.Metadata == nil {
			merged.Metadata = make(map[string]string, len(up.Metadata))
		}
		for k, v := range up.Metadata {
			merged.Metadata[k] = v
		}
	}
	merged.UpdatedAt = time.Now().UTC()
	return merged, nil
}

// Update merges the given fields into the stored task. A status change is
// validated against the state machine; any write against a terminal task
// is rejected. The merged task is persisted whole, so concurrent updates
// to the same id resolve last-writer-wins.
func (r *Registry) Update(ctx context.Context, id string, up Updates) (*Task, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	merged, err := up.Apply(current)
	if err != nil {
		return nil, err
	}

	if err := r.store.Set(ctx, KeyPrefix+id, merged, 0); err != nil {
		return nil, err
	}
	if err := r.audit(ctx, map[string]string{
		AuditFieldOp:     AuditOpUpdate,
		AuditFieldTaskID: id,
		AuditFieldStatus: string(merged.Status),
	}); err != nil {
		return nil, err
	}
	r.metrics.RecordTaskTransition(string(current.Status), string(merged.Status))
	if merged.Status.Terminal() {
		r.metrics.RecordTaskTerminal(string(merged.Status), merged.UpdatedAt.Sub(merged.CreatedAt))
	}
	return merged, nil
}

// Complete moves the task to StatusCompleted and records its result.
func (r *Registry) Complete(ctx context.Context, id, result string) (*Task, error) {
	status := StatusCompleted
	return r.Update(ctx, id, Updates{Status: &status, Result: &result})
}

// Get returns the task stored under id.
func (r *Registry) Get(ctx context.Context, id string) (*Task, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	var t Task
	if err := r.store.Get(ctx, KeyPrefix+id, &t); err != nil {
		if state.IsNotFound(err) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, err
	}
	return &t, nil
}

// Filter restricts a listing.
type Filter struct {
	// Pattern globs over task ids. Empty matches every task.
	Pattern string

	// Status keeps only tasks in this status. Empty keeps all.
	Status Status
}

// Validate checks the filter's status against the known set.
func (f Filter) Validate() error {
	if f.Status != "" && !f.Status.Valid() {
		return &InvalidArgumentError{Field: "status", Reason: enumReason(string(f.Status), Statuses())}
	}
	return nil
}

// List returns the stored tasks matching the filter, in id order. ULIDs
// sort chronologically, so this is creation order.
func (r *Registry) List(ctx context.Context, f Filter) ([]*Task, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	pattern := f.Pattern
	if pattern == "" {
		pattern = "*"
	}

	keys, err := r.store.Keys(ctx, KeyPrefix+pattern)
	if err != nil {
		return nil, err
	}

	tasks := make([]*Task, 0, len(keys))
	for _, k := range keys {
		var t Task
		if err := r.store.Get(ctx, k, &t); err != nil {
			if state.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		tasks = append(tasks, &t)
	}
	return tasks, nil
}

func (r *Registry) audit(ctx context.Context, fields map[string]string) error {
	stamped := stream.Stamp(ctx, fields, r.source)
	_, err := r.gateway.Publish(ctx, r.auditStream, stamped, stream.PublishOptions{MaxLen: r.auditMaxLen})
	if err != nil {
		return fmt.Errorf("audit append: %w", err)
	}
	return nil
}

func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ValidateID rejects ids that could not have been minted by NewTask or
// that would glob in a keyspace scan. Both lookup paths apply it before
// touching the backend.
func ValidateID(id string) error {
	if id == "" {
		return &InvalidArgumentError{Field: "task id", Reason: "must not be empty"}
	}
	if strings.ContainsFunc(id, unicode.IsSpace) {
		return &InvalidArgumentError{Field: "task id", Reason: "must not contain whitespace"}
	}
	if strings.Contains(id, "*") {
		return &InvalidArgumentError{Field: "task id", Reason: "must not contain *"}
	}
	return nil
}
