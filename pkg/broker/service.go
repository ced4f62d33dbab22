package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/novaops/redstream/pkg/logger"
	"github.com/novaops/redstream/pkg/memory"
	"github.com/novaops/redstream/pkg/naming"
	"github.com/novaops/redstream/pkg/retry"
	"github.com/novaops/redstream/pkg/state"
	"github.com/novaops/redstream/pkg/stream"
	"github.com/novaops/redstream/pkg/task"
)

// Config holds Service settings. One namespace and one retry policy apply
// to every component, so a Service cannot end up with a gateway and a
// store that disagree on either.
type Config struct {
	// Namespace scopes stream names and state keys. Empty selects
	// naming.DefaultNamespace.
	Namespace string

	// Retry bounds backend attempts across all components. Nil selects
	// retry.DefaultPolicy.
	Retry *retry.Policy

	// Memory configures the memory bank. Nil selects its defaults.
	Memory *memory.Config

	// Task configures the task registry. Nil selects its defaults.
	Task *task.Config
}

// DefaultConfig returns Service settings for the default namespace.
func DefaultConfig() *Config {
	return &Config{Namespace: naming.DefaultNamespace}
}

// Service is the primary Broker implementation, composed from the stream
// gateway, state store, memory bank, and task registry over one shared
// backend client. Concurrent use is safe.
type Service struct {
	client   redis.Cmdable
	gateway  *stream.Gateway
	store    *state.Store
	bank     *memory.Bank
	registry *task.Registry
	log      logger.Logger
}

var _ Broker = (*Service)(nil)

// NewService builds a Service over the given backend client.
func NewService(client redis.Cmdable, cfg *Config) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	gateway, err := stream.New(client, &stream.Config{Namespace: cfg.Namespace, Retry: cfg.Retry})
	if err != nil {
		return nil, fmt.Errorf("stream gateway: %w", err)
	}
	store, err := state.New(client, &state.Config{Namespace: cfg.Namespace, Retry: cfg.Retry})
	if err != nil {
		return nil, fmt.Errorf("state store: %w", err)
	}
	bank, err := memory.New(store, gateway, cfg.Memory)
	if err != nil {
		return nil, fmt.Errorf("memory bank: %w", err)
	}
	registry, err := task.New(store, gateway, cfg.Task)
	if err != nil {
		return nil, fmt.Errorf("task registry: %w", err)
	}

	return &Service{
		client:   client,
		gateway:  gateway,
		store:    store,
		bank:     bank,
		registry: registry,
		log:      logger.Nop(),
	}, nil
}

// SetLogger sets the logger for write-path operation logging.
func (s *Service) SetLogger(l logger.Logger) {
	if l != nil {
		s.log = l
	}
}

// Metrics bundles the per-component recorder interfaces a Service fans
// one sink out to.
type Metrics interface {
	stream.MetricsRecorder
	state.MetricsRecorder
	task.MetricsRecorder
}

// SetMetrics sets the metrics recorder on every instrumented component.
func (s *Service) SetMetrics(m Metrics) {
	s.gateway.SetMetrics(m)
	s.store.SetMetrics(m)
	s.registry.SetMetrics(m)
}

// Gateway returns the underlying stream gateway.
func (s *Service) Gateway() *stream.Gateway { return s.gateway }

// Store returns the underlying state store.
func (s *Service) Store() *state.Store { return s.store }

// Bank returns the underlying memory bank.
func (s *Service) Bank() *memory.Bank { return s.bank }

// Registry returns the underlying task registry.
func (s *Service) Registry() *task.Registry { return s.registry }

// Ping checks backend reachability.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Publish appends one message to the named stream.
func (s *Service) Publish(ctx context.Context, streamName string, fields map[string]string, opts stream.PublishOptions) (string, error) {
	id, err := s.gateway.Publish(ctx, streamName, fields, opts)
	if err != nil {
		return "", err
	}
	s.log.DebugContext(ctx, "published message", "stream", streamName, "id", id)
	return id, nil
}

// Read returns messages from the named stream.
func (s *Service) Read(ctx context.Context, streamName string, opts stream.ReadOptions) ([]stream.Message, error) {
	return s.gateway.Read(ctx, streamName, opts)
}

// CreateConsumerGroup creates a consumer group on the named stream.
func (s *Service) CreateConsumerGroup(ctx context.Context, streamName, group string, opts stream.GroupOptions) error {
	if err := s.gateway.CreateConsumerGroup(ctx, streamName, group, opts); err != nil {
		return err
	}
	s.log.DebugContext(ctx, "consumer group ready", "stream", streamName, "group", group)
	return nil
}

// ReadAsConsumer reads from the named stream as a consumer in a group.
func (s *Service) ReadAsConsumer(ctx context.Context, streamName, group, consumer string, opts stream.GroupReadOptions) ([]stream.Message, error) {
	return s.gateway.ReadAsConsumer(ctx, streamName, group, consumer, opts)
}

// Acknowledge removes a delivered message from the group's pending set.
func (s *Service) Acknowledge(ctx context.Context, streamName, group, messageID string) (bool, error) {
	acked, err := s.gateway.Acknowledge(ctx, streamName, group, messageID)
	if err != nil {
		return false, err
	}
	s.log.DebugContext(ctx, "acknowledged message", "stream", streamName, "group", group, "id", messageID, "acked", acked)
	return acked, nil
}

// ListStreams returns stream names matching the glob pattern.
func (s *Service) ListStreams(ctx context.Context, pattern string) ([]string, error) {
	return s.gateway.ListStreams(ctx, pattern)
}

// SetState stores value under key.
func (s *Service) SetState(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := s.store.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	s.log.DebugContext(ctx, "state set", "key", key, "ttl", ttl)
	return nil
}

// GetState returns the stored JSON for key.
func (s *Service) GetState(ctx context.Context, key string) (json.RawMessage, error) {
	raw, err := s.store.GetRaw(ctx, key)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

// DeleteState removes key.
func (s *Service) DeleteState(ctx context.Context, key string) error {
	if err := s.store.Delete(ctx, key); err != nil {
		return err
	}
	s.log.DebugContext(ctx, "state deleted", "key", key)
	return nil
}

// Remember stores a memory entry and audits the write.
func (s *Service) Remember(ctx context.Context, key string, value interface{}, opts memory.RememberOptions) error {
	if err := s.bank.Remember(ctx, key, value, opts); err != nil {
		return err
	}
	s.log.DebugContext(ctx, "memory stored", "key", key)
	return nil
}

// Recall returns the stored memory entry.
func (s *Service) Recall(ctx context.Context, key string) (*memory.Entry, error) {
	return s.bank.Recall(ctx, key)
}

// Forget deletes the memory entry and audits the delete.
func (s *Service) Forget(ctx context.Context, key string) error {
	if err := s.bank.Forget(ctx, key); err != nil {
		return err
	}
	s.log.DebugContext(ctx, "memory forgotten", "key", key)
	return nil
}

// ListMemories returns stored memory entries.
func (s *Service) ListMemories(ctx context.Context, category memory.Category) ([]*memory.Entry, error) {
	return s.bank.List(ctx, category)
}

// CreateTask persists a new task.
func (s *Service) CreateTask(ctx context.Context, in task.CreateInput) (*task.Task, error) {
	created, err := s.registry.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	s.log.DebugContext(ctx, "task created", "task_id", created.ID)
	return created, nil
}

// UpdateTask merges the given fields into the stored task.
func (s *Service) UpdateTask(ctx context.Context, id string, up task.Updates) (*task.Task, error) {
	updated, err := s.registry.Update(ctx, id, up)
	if err != nil {
		return nil, err
	}
	s.log.DebugContext(ctx, "task updated", "task_id", id, "status", updated.Status)
	return updated, nil
}

// CompleteTask marks the task completed and records its result.
func (s *Service) CompleteTask(ctx context.Context, id, result string) (*task.Task, error) {
	completed, err := s.registry.Complete(ctx, id, result)
	if err != nil {
		return nil, err
	}
	s.log.DebugContext(ctx, "task completed", "task_id", id)
	return completed, nil
}

// GetTask returns the stored task.
func (s *Service) GetTask(ctx context.Context, id string) (*task.Task, error) {
	return s.registry.Get(ctx, id)
}

// ListTasks returns stored tasks matching the filter.
func (s *Service) ListTasks(ctx context.Context, f task.Filter) ([]*task.Task, error) {
	return s.registry.List(ctx, f)
}
