// Package direct implements the fallback path of the broker contract: a
// reduced-dependency client that issues backing-store commands itself
// instead of composing the component packages, so operator tooling keeps
// working when the service process is down. Naming validation, retry
// classification, key layout, record construction, and the task state
// machine are all imported from the component packages and cannot drift
// from the primary path; only the command issuance is restated here,
// without logging or metrics.
package direct

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/novaops/redstream/pkg/broker"
	"github.com/novaops/redstream/pkg/memory"
	"github.com/novaops/redstream/pkg/naming"
	"github.com/novaops/redstream/pkg/redisconn"
	"github.com/novaops/redstream/pkg/retry"
	"github.com/novaops/redstream/pkg/state"
	"github.com/novaops/redstream/pkg/stream"
	"github.com/novaops/redstream/pkg/task"
)

// scanBatch is the SCAN page size for key and stream listing.
const scanBatch = 100

// Config holds Client settings.
type Config struct {
	// Namespace is the root token of canonical stream names and the
	// physical state key prefix.
	Namespace string

	// Retry bounds backend attempts. Nil selects retry.DefaultPolicy.
	Retry *retry.Policy
}

// DefaultConfig returns Client settings for the default namespace.
func DefaultConfig() *Config {
	return &Config{Namespace: naming.DefaultNamespace}
}

// Client is the fallback implementation of broker.Broker. It holds no
// state beyond the connection and derived names; concurrent use is safe.
type Client struct {
	client      redis.Cmdable
	validator   *naming.Validator
	policy      *retry.Policy
	statePrefix string
	memoryAudit string
	taskAudit   string
}

var _ broker.Broker = (*Client)(nil)

// New creates a Client over the given backend client.
func New(client redis.Cmdable, cfg *Config) (*Client, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	validator, err := naming.New(cfg.Namespace)
	if err != nil {
		return nil, err
	}

	policy := cfg.Retry
	if policy == nil {
		policy = retry.DefaultPolicy()
	}
	bound := *policy
	if bound.Retryable == nil {
		bound.Retryable = redisconn.Transient
	}

	memoryAudit, err := memory.AuditStreamName(validator)
	if err != nil {
		return nil, fmt.Errorf("memory audit stream name: %w", err)
	}
	taskAudit, err := task.AuditStreamName(validator)
	if err != nil {
		return nil, fmt.Errorf("task audit stream name: %w", err)
	}

	return &Client{
		client:      client,
		validator:   validator,
		policy:      &bound,
		statePrefix: state.KeyPrefix(validator.Namespace()),
		memoryAudit: memoryAudit,
		taskAudit:   taskAudit,
	}, nil
}

// Validator exposes the client's naming validator so callers can compose
// and check names without a second configuration path.
func (c *Client) Validator() *naming.Validator {
	return c.validator
}

// Publish appends one message to the named stream and returns the id the
// backing store assigned.
func (c *Client) Publish(ctx context.Context, streamName string, fields map[string]string, opts stream.PublishOptions) (string, error) {
	if _, err := c.validator.Validate(streamName); err != nil {
		return "", err
	}
	if len(fields) == 0 {
		return "", &stream.InvalidArgumentError{Field: "fields", Reason: "at least one field is required"}
	}
	if opts.MaxLen < 0 {
		return "", &stream.InvalidArgumentError{Field: "maxlen", Reason: "must not be negative"}
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]interface{}, 0, 2*len(fields))
	for _, k := range keys {
		values = append(values, k, fields[k])
	}

	id, err := retry.Do(ctx, c.policy, func(ctx context.Context) (string, error) {
		return c.client.XAdd(ctx, &redis.XAddArgs{
			Stream: streamName,
			MaxLen: opts.MaxLen,
			Approx: opts.MaxLen > 0,
			Values: values,
		}).Result()
	})
	if err != nil {
		return "", streamErr("publish", err)
	}
	return id, nil
}

// Read returns messages from the named stream.
func (c *Client) Read(ctx context.Context, streamName string, opts stream.ReadOptions) ([]stream.Message, error) {
	if _, err := c.validator.Validate(streamName); err != nil {
		return nil, err
	}
	count := opts.Count
	if count == 0 {
		count = stream.DefaultReadCount
	}
	if count < 0 {
		return nil, &stream.InvalidArgumentError{Field: "count", Reason: "must not be negative"}
	}
	if opts.Block > 0 && opts.Reverse {
		return nil, &stream.InvalidArgumentError{Field: "block", Reason: "blocking reads cannot be reversed"}
	}

	var (
		msgs []stream.Message
		err  error
	)
	if opts.Block > 0 {
		msgs, err = c.readBlocking(ctx, streamName, count, opts.SinceID, opts.Block)
	} else {
		msgs, err = c.readRange(ctx, streamName, count, opts.SinceID, opts.Reverse)
	}
	if err != nil {
		return nil, streamErr("read", err)
	}
	return msgs, nil
}

func (c *Client) readRange(ctx context.Context, streamName string, count int64, sinceID string, reverse bool) ([]stream.Message, error) {
	lower := "-"
	if sinceID != "" {
		lower = "(" + sinceID
	}

	return retry.Do(ctx, c.policy, func(ctx context.Context) ([]stream.Message, error) {
		var (
			res []redis.XMessage
			err error
		)
		if reverse {
			res, err = c.client.XRevRangeN(ctx, streamName, "+", lower, count).Result()
		} else {
			res, err = c.client.XRangeN(ctx, streamName, lower, "+", count).Result()
		}
		if err != nil {
			return nil, err
		}
		return messages(res), nil
	})
}

func (c *Client) readBlocking(ctx context.Context, streamName string, count int64, sinceID string, block time.Duration) ([]stream.Message, error) {
	offset := sinceID
	if offset == "" {
		// Only entries appended from now on.
		offset = "$"
	}

	return retry.Do(ctx, c.policy, func(ctx context.Context) ([]stream.Message, error) {
		res, err := c.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{streamName, offset},
			Count:   count,
			Block:   block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			return []stream.Message{}, nil
		}
		if err != nil {
			return nil, err
		}
		return streamEntries(res, streamName), nil
	})
}

// CreateConsumerGroup creates a consumer group on the named stream.
// Creating a group that already exists is a no-op success.
func (c *Client) CreateConsumerGroup(ctx context.Context, streamName, group string, opts stream.GroupOptions) error {
	if _, err := c.validator.Validate(streamName); err != nil {
		return err
	}
	if err := stream.ValidateLabel("group", group); err != nil {
		return err
	}
	startID := opts.StartID
	if startID == "" {
		startID = "$"
	}

	_, err := retry.Do(ctx, c.policy, func(ctx context.Context) (struct{}, error) {
		var cmd *redis.StatusCmd
		if opts.MkStream {
			cmd = c.client.XGroupCreateMkStream(ctx, streamName, group, startID)
		} else {
			cmd = c.client.XGroupCreate(ctx, streamName, group, startID)
		}
		err := cmd.Err()
		if redis.HasErrorPrefix(err, "BUSYGROUP") {
			return struct{}{}, nil
		}
		return struct{}{}, err
	})
	if err != nil {
		return streamErr("group create", err)
	}
	return nil
}

// ReadAsConsumer reads from the named stream on behalf of a consumer in a
// group. An elapsed block window is an empty result, not an error.
func (c *Client) ReadAsConsumer(ctx context.Context, streamName, group, consumer string, opts stream.GroupReadOptions) ([]stream.Message, error) {
	if _, err := c.validator.Validate(streamName); err != nil {
		return nil, err
	}
	if err := stream.ValidateLabel("group", group); err != nil {
		return nil, err
	}
	if err := stream.ValidateLabel("consumer", consumer); err != nil {
		return nil, err
	}
	count := opts.Count
	if count == 0 {
		count = stream.DefaultReadCount
	}
	if count < 0 {
		return nil, &stream.InvalidArgumentError{Field: "count", Reason: "must not be negative"}
	}
	startID := opts.StartID
	if startID == "" {
		startID = stream.StartNewMessages
	}

	// go-redis adds BLOCK for any non-negative value and would block
	// forever on zero; negative means no BLOCK at all.
	block := opts.Block
	if block <= 0 {
		block = -1
	}

	msgs, err := retry.Do(ctx, c.policy, func(ctx context.Context) ([]stream.Message, error) {
		res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{streamName, startID},
			Count:    count,
			Block:    block,
			NoAck:    opts.NoAck,
		}).Result()
		if errors.Is(err, redis.Nil) {
			return []stream.Message{}, nil
		}
		if err != nil {
			return nil, err
		}
		return streamEntries(res, streamName), nil
	})
	if err != nil {
		if redis.HasErrorPrefix(err, "NOGROUP") {
			return nil, &stream.GroupNotFoundError{Stream: streamName, Group: group}
		}
		return nil, streamErr("group read", err)
	}
	return msgs, nil
}

// Acknowledge removes a delivered message from the group's pending set.
// It returns false when the id was not pending, which is not an error.
func (c *Client) Acknowledge(ctx context.Context, streamName, group, messageID string) (bool, error) {
	if _, err := c.validator.Validate(streamName); err != nil {
		return false, err
	}
	if err := stream.ValidateLabel("group", group); err != nil {
		return false, err
	}
	if messageID == "" {
		return false, &stream.InvalidArgumentError{Field: "message id", Reason: "must not be empty"}
	}

	acked, err := retry.Do(ctx, c.policy, func(ctx context.Context) (int64, error) {
		return c.client.XAck(ctx, streamName, group, messageID).Result()
	})
	if err != nil {
		return false, streamErr("acknowledge", err)
	}
	return acked > 0, nil
}

// ListStreams returns the stream names matching the glob pattern, sorted.
// An empty pattern lists every stream under the client's namespace.
func (c *Client) ListStreams(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = c.validator.Namespace() + ":*"
	}

	names, err := retry.Do(ctx, c.policy, func(ctx context.Context) ([]string, error) {
		return c.scan(ctx, pattern, "stream")
	})
	if err != nil {
		return nil, streamErr("list streams", err)
	}

	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if _, err := c.validator.Validate(name); err != nil {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// SetState stores value under key, overwriting unconditionally. A
// positive ttl expires the entry; zero or negative keeps it until
// deleted.
func (c *Client) SetState(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := state.ValidateKey(key); err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return &state.SerializationError{Operation: "set", Cause: err}
	}
	if ttl < 0 {
		ttl = 0
	}

	_, err = retry.Do(ctx, c.policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.client.Set(ctx, c.statePrefix+key, data, ttl).Err()
	})
	if err != nil {
		return storageErr("set", err)
	}
	return nil
}

// GetState returns the stored JSON for key.
func (c *Client) GetState(ctx context.Context, key string) (json.RawMessage, error) {
	if err := state.ValidateKey(key); err != nil {
		return nil, err
	}

	val, err := retry.Do(ctx, c.policy, func(ctx context.Context) (string, error) {
		return c.client.Get(ctx, c.statePrefix+key).Result()
	})
	if errors.Is(err, redis.Nil) {
		return nil, &state.NotFoundError{Key: key}
	}
	if err != nil {
		return nil, storageErr("get", err)
	}
	return json.RawMessage(val), nil
}

// DeleteState removes the entry under key. Deleting an absent key is a
// no-op success.
func (c *Client) DeleteState(ctx context.Context, key string) error {
	if err := state.ValidateKey(key); err != nil {
		return err
	}

	_, err := retry.Do(ctx, c.policy, func(ctx context.Context) (int64, error) {
		return c.client.Del(ctx, c.statePrefix+key).Result()
	})
	if err != nil {
		return storageErr("delete", err)
	}
	return nil
}

// Remember stores a memory entry under key and appends a store audit
// message, building the record through the same constructor the primary
// path uses.
func (c *Client) Remember(ctx context.Context, key string, value interface{}, opts memory.RememberOptions) error {
	entry, ttl, err := memory.NewEntry(key, value, opts)
	if err != nil {
		return err
	}
	if err := c.SetState(ctx, memory.KeyPrefix+key, entry, ttl); err != nil {
		return err
	}

	return c.audit(ctx, c.memoryAudit, memory.DefaultSource, memory.DefaultAuditMaxLen, map[string]string{
		memory.AuditFieldOp:       memory.AuditOpStore,
		memory.AuditFieldKey:      key,
		memory.AuditFieldCategory: string(entry.Category),
		memory.AuditFieldPriority: string(entry.Priority),
	})
}

// Recall returns the memory entry stored under key without touching the
// audit stream.
func (c *Client) Recall(ctx context.Context, key string) (*memory.Entry, error) {
	if err := memory.ValidateKey(key); err != nil {
		return nil, err
	}

	var entry memory.Entry
	if err := c.getJSON(ctx, memory.KeyPrefix+key, &entry); err != nil {
		if state.IsNotFound(err) {
			return nil, &memory.NotFoundError{Key: key}
		}
		return nil, err
	}
	return &entry, nil
}

// Forget deletes the memory entry stored under key and appends a delete
// audit message. Forgetting an absent key is a success and is still
// audited.
func (c *Client) Forget(ctx context.Context, key string) error {
	if err := memory.ValidateKey(key); err != nil {
		return err
	}
	if err := c.DeleteState(ctx, memory.KeyPrefix+key); err != nil {
		return err
	}

	return c.audit(ctx, c.memoryAudit, memory.DefaultSource, memory.DefaultAuditMaxLen, map[string]string{
		memory.AuditFieldOp:  memory.AuditOpDelete,
		memory.AuditFieldKey: key,
	})
}

// ListMemories returns the stored memory entries, sorted by key,
// optionally restricted to one category.
func (c *Client) ListMemories(ctx context.Context, category memory.Category) ([]*memory.Entry, error) {
	if category != "" {
		if _, err := memory.ResolveCategory(category); err != nil {
			return nil, err
		}
	}

	keys, err := c.stateKeys(ctx, memory.KeyPrefix+"*")
	if err != nil {
		return nil, err
	}

	entries := make([]*memory.Entry, 0, len(keys))
	for _, k := range keys {
		var entry memory.Entry
		if err := c.getJSON(ctx, k, &entry); err != nil {
			if state.IsNotFound(err) {
				// Expired or forgotten between the scan and the read.
				continue
			}
			return nil, err
		}
		if category != "" && entry.Category != category {
			continue
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

// CreateTask persists a new task in StatusCreated under a fresh id and
// appends a create audit message, building the record through the same
// constructor the primary path uses.
func (c *Client) CreateTask(ctx context.Context, in task.CreateInput) (*task.Task, error) {
	t, err := task.NewTask(in)
	if err != nil {
		return nil, err
	}
	if err := c.SetState(ctx, task.KeyPrefix+t.ID, t, 0); err != nil {
		return nil, err
	}
	if err := c.audit(ctx, c.taskAudit, task.DefaultSource, task.DefaultAuditMaxLen, map[string]string{
		task.AuditFieldOp:       task.AuditOpCreate,
		task.AuditFieldTaskID:   t.ID,
		task.AuditFieldStatus:   string(t.Status),
		task.AuditFieldPriority: string(t.Priority),
	}); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateTask merges the given fields into the stored task through the
// shared state machine and appends an update audit message.
func (c *Client) UpdateTask(ctx context.Context, id string, up task.Updates) (*task.Task, error) {
	current, err := c.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	merged, err := up.Apply(current)
	if err != nil {
		return nil, err
	}

	if err := c.SetState(ctx, task.KeyPrefix+id, merged, 0); err != nil {
		return nil, err
	}
	if err := c.audit(ctx, c.taskAudit, task.DefaultSource, task.DefaultAuditMaxLen, map[string]string{
		task.AuditFieldOp:     task.AuditOpUpdate,
		task.AuditFieldTaskID: id,
		task.AuditFieldStatus: string(merged.Status),
	}); err != nil {
		return nil, err
	}
	return merged, nil
}

// CompleteTask moves the task to StatusCompleted and records its result.
func (c *Client) CompleteTask(ctx context.Context, id, result string) (*task.Task, error) {
	status := task.StatusCompleted
	return c.UpdateTask(ctx, id, task.Updates{Status: &status, Result: &result})
}

// GetTask returns the task stored under id.
func (c *Client) GetTask(ctx context.Context, id string) (*task.Task, error) {
	if err := task.ValidateID(id); err != nil {
		return nil, err
	}

	var t task.Task
	if err := c.getJSON(ctx, task.KeyPrefix+id, &t); err != nil {
		if state.IsNotFound(err) {
			return nil, &task.NotFoundError{ID: id}
		}
		return nil, err
	}
	return &t, nil
}

// ListTasks returns the stored tasks matching the filter, in id order.
func (c *Client) ListTasks(ctx context.Context, f task.Filter) ([]*task.Task, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	pattern := f.Pattern
	if pattern == "" {
		pattern = "*"
	}

	keys, err := c.stateKeys(ctx, task.KeyPrefix+pattern)
	if err != nil {
		return nil, err
	}

	tasks := make([]*task.Task, 0, len(keys))
	for _, k := range keys {
		var t task.Task
		if err := c.getJSON(ctx, k, &t); err != nil {
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

func (c *Client) audit(ctx context.Context, streamName, source string, maxLen int64, fields map[string]string) error {
	stamped := stream.Stamp(ctx, fields, source)
	if _, err := c.Publish(ctx, streamName, stamped, stream.PublishOptions{MaxLen: maxLen}); err != nil {
		return fmt.Errorf("audit append: %w", err)
	}
	return nil
}

// getJSON reads the state entry under key into dest.
func (c *Client) getJSON(ctx context.Context, key string, dest interface{}) error {
	raw, err := c.GetState(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return &state.SerializationError{Operation: "get", Cause: err}
	}
	return nil
}

// stateKeys returns the logical state keys matching the glob pattern,
// sorted, with the physical prefix stripped.
func (c *Client) stateKeys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := retry.Do(ctx, c.policy, func(ctx context.Context) ([]string, error) {
		return c.scan(ctx, c.statePrefix+pattern, "string")
	})
	if err != nil {
		return nil, storageErr("keys", err)
	}

	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, strings.TrimPrefix(key, c.statePrefix))
	}
	sort.Strings(out)
	return out, nil
}

// scan walks the whole keyspace for keys of one type matching pattern.
func (c *Client) scan(ctx context.Context, pattern, keyType string) ([]string, error) {
	var (
		cursor uint64
		found  []string
	)
	for {
		page, next, err := c.client.ScanType(ctx, cursor, pattern, scanBatch, keyType).Result()
		if err != nil {
			return nil, err
		}
		found = append(found, page...)
		if next == 0 {
			return found, nil
		}
		cursor = next
	}
}

// streamErr maps a post-retry stream failure onto the shared error
// taxonomy, exactly as the gateway does.
func streamErr(op string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case redisconn.Transient(err):
		return &stream.BackendUnavailableError{Op: op, Err: err}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// storageErr is streamErr for the state keyspace.
func storageErr(op string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case redisconn.Transient(err):
		return &state.StorageUnavailableError{Op: op, Cause: err}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func messages(res []redis.XMessage) []stream.Message {
	out := make([]stream.Message, 0, len(res))
	for _, m := range res {
		fields := make(map[string]string, len(m.Values))
		for k, v := range m.Values {
			fields[k] = fieldString(v)
		}
		out = append(out, stream.Message{ID: m.ID, Fields: fields})
	}
	return out
}

func streamEntries(res []redis.XStream, streamName string) []stream.Message {
	for _, s := range res {
		if s.Stream == streamName {
			return messages(s.Messages)
		}
	}
	return []stream.Message{}
}

func fieldString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}
