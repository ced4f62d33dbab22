// Package broker defines the operation contract shared by every RedStream
// implementation: the stream gateway surface, the ephemeral state store,
// the memory bank, and the task registry. Service is the primary
// implementation, composed from the component packages; the fallback
// client in pkg/direct implements the same contract against the backing
// store directly. ConformanceSuite holds both to identical behavior.
package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/novaops/redstream/pkg/memory"
	"github.com/novaops/redstream/pkg/stream"
	"github.com/novaops/redstream/pkg/task"
)

// StreamOps is the stream gateway capability set: append, ranged and
// blocking reads, consumer-group lifecycle, and stream discovery.
type StreamOps interface {
	// Publish appends one message and returns the store-assigned id.
	Publish(ctx context.Context, streamName string, fields map[string]string, opts stream.PublishOptions) (string, error)

	// Read returns messages from the stream. Callers page by passing the
	// last seen id back as opts.SinceID; no cursor is retained between
	// calls. An elapsed block window is an empty result, not an error.
	Read(ctx context.Context, streamName string, opts stream.ReadOptions) ([]stream.Message, error)

	// CreateConsumerGroup creates a consumer group. Creating a group
	// that already exists is a no-op success.
	CreateConsumerGroup(ctx context.Context, streamName, group string, opts stream.GroupOptions) error

	// ReadAsConsumer reads on behalf of a consumer in a group:
	// StartNewMessages for undelivered entries, StartPending for the
	// consumer's own unacknowledged backlog.
	ReadAsConsumer(ctx context.Context, streamName, group, consumer string, opts stream.GroupReadOptions) ([]stream.Message, error)

	// Acknowledge removes a delivered message from the group's pending
	// set. False means the id was not pending, which is not an error.
	Acknowledge(ctx context.Context, streamName, group, messageID string) (bool, error)

	// ListStreams returns stream names matching the glob pattern,
	// sorted. An empty pattern lists the whole namespace.
	ListStreams(ctx context.Context, pattern string) ([]string, error)
}

// StateOps is the ephemeral key/value capability set. Values are opaque
// JSON; expiry is the backing store's native TTL.
type StateOps interface {
	// SetState stores value under key, overwriting unconditionally. A
	// positive ttl expires the entry.
	SetState(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// GetState returns the stored JSON for key.
	GetState(ctx context.Context, key string) (json.RawMessage, error)

	// DeleteState removes key. Deleting an absent key is a no-op
	// success.
	DeleteState(ctx context.Context, key string) error
}

// MemoryOps is the memory bank capability set: audited writes and
// deletes over categorized, prioritized entries.
type MemoryOps interface {
	// Remember stores an entry and appends a store audit message.
	Remember(ctx context.Context, key string, value interface{}, opts memory.RememberOptions) error

	// Recall returns the stored entry. Reads are not audited.
	Recall(ctx context.Context, key string) (*memory.Entry, error)

	// Forget deletes the entry and appends a delete audit message.
	// Forgetting an absent key is a no-op success.
	Forget(ctx context.Context, key string) error

	// ListMemories returns stored entries, optionally filtered by
	// category, sorted by key.
	ListMemories(ctx context.Context, category memory.Category) ([]*memory.Entry, error)
}

// TaskOps is the task registry capability set: lifecycle writes
// validated against the task state machine, plus lookup and listing.
type TaskOps interface {
	// CreateTask persists a new task in StatusCreated under a fresh id.
	CreateTask(ctx context.Context, in task.CreateInput) (*task.Task, error)

	// UpdateTask merges the given fields into the stored task,
	// validating any status change against the state machine.
	UpdateTask(ctx context.Context, id string, up task.Updates) (*task.Task, error)

	// CompleteTask marks the task completed and records its result.
	CompleteTask(ctx context.Context, id, result string) (*task.Task, error)

	// GetTask returns the stored task.
	GetTask(ctx context.Context, id string) (*task.Task, error)

	// ListTasks returns stored tasks matching the filter, in id order.
	ListTasks(ctx context.Context, f task.Filter) ([]*task.Task, error)
}

// Broker is the full operation contract. Implementations must agree on
// naming validation, retry policy, enum vocabularies, and the task state
// machine; ConformanceSuite checks exactly that.
type Broker interface {
	StreamOps
	StateOps
	MemoryOps
	TaskOps
}
