// Package stream implements publish/read primitives over named Redis
// streams, including consumer-group creation, group reads, and
// acknowledgment. Every entry point validates the stream name before any
// backend command is issued, and transient backend failures are retried
// under one bounded policy before surfacing as BackendUnavailableError.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/redis/go-redis/v9"

	"github.com/novaops/redstream/pkg/naming"
	"github.com/novaops/redstream/pkg/redisconn"
	"github.com/novaops/redstream/pkg/retry"
)

// DefaultReadCount is the batch size used when a read does not specify one.
const DefaultReadCount = 10

// scanBatch is the SCAN page size for stream listing.
const scanBatch = 100

// Consumer-group read offsets.
const (
	// StartNewMessages requests entries never delivered to the group.
	StartNewMessages = ">"
	// StartPending requests the calling consumer's own unacknowledged
	// backlog.
	StartPending = "0"
)

// Message is one immutable record of a stream. The backing store assigns
// ID at append time; callers never choose it.
type Message struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

// Config holds Gateway settings.
type Config struct {
	// Namespace is the root token of canonical stream names.
	Namespace string

	// Retry bounds backend attempts. Nil selects retry.DefaultPolicy.
	Retry *retry.Policy
}

// DefaultConfig returns Gateway settings for the default namespace.
func DefaultConfig() *Config {
	return &Config{Namespace: naming.DefaultNamespace}
}

// MetricsRecorder receives gateway operation measurements.
type MetricsRecorder interface {
	RecordPublish(stream string, duration time.Duration)
	RecordRead(stream string, messages int)
	RecordGroupRead(stream, group string, messages int)
	RecordAck(stream, group string, acked bool)
	RecordBackendFailure(op string)
}

type nopMetrics struct{}

func (nopMetrics) RecordPublish(string, time.Duration)  {}
func (nopMetrics) RecordRead(string, int)               {}
func (nopMetrics) RecordGroupRead(string, string, int)  {}
func (nopMetrics) RecordAck(string, string, bool)       {}
func (nopMetrics) RecordBackendFailure(string)          {}

// Gateway provides the stream operations over a shared backend client.
// It holds no per-stream state; concurrent use is safe.
type Gateway struct {
	client    redis.Cmdable
	validator *naming.Validator
	policy    *retry.Policy
	metrics   MetricsRecorder
}

// New creates a Gateway over the given backend client.
func New(client redis.Cmdable, cfg *Config) (*Gateway, error) {
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

	return &Gateway{
		client:    client,
		validator: validator,
		policy:    &bound,
		metrics:   nopMetrics{},
	}, nil
}

// SetMetrics sets the metrics recorder.
func (g *Gateway) SetMetrics(m MetricsRecorder) {
	if m != nil {
		g.metrics = m
	}
}

// Validator exposes the gateway's naming validator so callers can compose
// and check names without a second configuration path.
func (g *Gateway) Validator() *naming.Validator {
	return g.validator
}

// PublishOptions control a single append.
type PublishOptions struct {
	// MaxLen trims the stream to approximately this many entries after
	// the append. Zero leaves the stream unbounded. The trim is
	// approximate; callers must not depend on the exact length.
	MaxLen int64
}

// Publish appends one message to the named stream and returns the id the
// backing store assigned. Field order in the stored entry follows sorted
// key order, so identical field sets serialize identically.
func (g *Gateway) Publish(ctx context.Context, streamName string, fields map[string]string, opts PublishOptions) (string, error) {
	if _, err := g.validator.Validate(streamName); err != nil {
		return "", err
	}
	if len(fields) == 0 {
		return "", &InvalidArgumentError{Field: "fields", Reason: "at least one field is required"}
	}
	if opts.MaxLen < 0 {
		return "", &InvalidArgumentError{Field: "maxlen", Reason: "must not be negative"}
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

	start := time.Now()
	id, err := retry.Do(ctx, g.policy, func(ctx context.Context) (string, error) {
		return g.client.XAdd(ctx, &redis.XAddArgs{
			Stream: streamName,
			MaxLen: opts.MaxLen,
			Approx: opts.MaxLen > 0,
			Values: values,
		}).Result()
	})
	if err != nil {
		return "", g.backendErr("publish", err)
	}

	g.metrics.RecordPublish(streamName, time.Since(start))
	return id, nil
}

// ReadOptions control a plain (non-group) read.
type ReadOptions struct {
	// Count caps the number of returned messages. Zero selects
	// DefaultReadCount.
	Count int64

	// Reverse returns the newest entries first.
	Reverse bool

	// SinceID restricts the read to entries strictly after this id.
	// Callers paging through a stream hold this cursor themselves; the
	// gateway retains nothing between calls.
	SinceID string

	// Block waits up to this long for a new entry when nothing is
	// available yet. Zero returns immediately. Elapsing without data is
	// an empty result, not an error.
	Block time.Duration
}

// Read returns messages from the named stream. Without options it returns
// the oldest DefaultReadCount entries.
func (g *Gateway) Read(ctx context.Context, streamName string, opts ReadOptions) ([]Message, error) {
	if _, err := g.validator.Validate(streamName); err != nil {
		return nil, err
	}
	count := opts.Count
	if count == 0 {
		count = DefaultReadCount
	}
	if count < 0 {
		return nil, &InvalidArgumentError{Field: "count", Reason: "must not be negative"}
	}
	if opts.Block > 0 && opts.Reverse {
		return nil, &InvalidArgumentError{Field: "block", Reason: "blocking reads cannot be reversed"}
	}

	var (
		msgs []Message
		err  error
	)
	if opts.Block > 0 {
		msgs, err = g.readBlocking(ctx, streamName, count, opts.SinceID, opts.Block)
	} else {
		msgs, err = g.readRange(ctx, streamName, count, opts.SinceID, opts.Reverse)
	}
	if err != nil {
		return nil, g.backendErr("read", err)
	}

	g.metrics.RecordRead(streamName, len(msgs))
	return msgs, nil
}

func (g *Gateway) readRange(ctx context.Context, streamName string, count int64, sinceID string, reverse bool) ([]Message, error) {
	lower := "-"
	if sinceID != "" {
		lower = "(" + sinceID
	}

	return retry.Do(ctx, g.policy, func(ctx context.Context) ([]Message, error) {
		var (
			res []redis.XMessage
			err error
		)
		if reverse {
			res, err = g.client.XRevRangeN(ctx, streamName, "+", lower, count).Result()
		} else {
			res, err = g.client.XRangeN(ctx, streamName, lower, "+", count).Result()
		}
		if err != nil {
			return nil, err
		}
		return toMessages(res), nil
	})
}

func (g *Gateway) readBlocking(ctx context.Context, streamName string, count int64, sinceID string, block time.Duration) ([]Message, error) {
	offset := sinceID
	if offset == "" {
		// Only entries appended from now on.
		offset = "$"
	}

	return retry.Do(ctx, g.policy, func(ctx context.Context) ([]Message, error) {
		res, err := g.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{streamName, offset},
			Count:   count,
			Block:   block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			return []Message{}, nil
		}
		if err != nil {
			return nil, err
		}
		return streamMessages(res, streamName), nil
	})
}

// GroupOptions control consumer-group creation.
type GroupOptions struct {
	// StartID positions the group's cursor: "$" delivers only entries
	// appended after creation, "0" replays the stream from the start.
	// Empty selects "$".
	StartID string

	// MkStream creates an empty stream when the named one does not exist
	// yet.
	MkStream bool
}

// CreateConsumerGroup creates a consumer group on the named stream.
// Creating a group that already exists is a no-op success.
func (g *Gateway) CreateConsumerGroup(ctx context.Context, streamName, group string, opts GroupOptions) error {
	if _, err := g.validator.Validate(streamName); err != nil {
		return err
	}
	if err := ValidateLabel("group", group); err != nil {
		return err
	}
	startID := opts.StartID
	if startID == "" {
		startID = "$"
	}

	_, err := retry.Do(ctx, g.policy, func(ctx context.Context) (struct{}, error) {
		var cmd *redis.StatusCmd
		if opts.MkStream {
			cmd = g.client.XGroupCreateMkStream(ctx, streamName, group, startID)
		} else {
			cmd = g.client.XGroupCreate(ctx, streamName, group, startID)
		}
		err := cmd.Err()
		if redis.HasErrorPrefix(err, "BUSYGROUP") {
			// The group exists; repeating creation must not fail the caller.
			return struct{}{}, nil
		}
		return struct{}{}, err
	})
	if err != nil {
		return g.backendErr("group create", err)
	}
	return nil
}

// GroupReadOptions control a consumer-group read.
type GroupReadOptions struct {
	// Count caps the batch. Zero selects DefaultReadCount.
	Count int64

	// Block waits up to this long for a new delivery. Zero returns
	// immediately. Only applies to StartNewMessages reads.
	Block time.Duration

	// NoAck delivers without recording entries as pending, trading the
	// at-least-once guarantee for one fewer acknowledge round trip.
	NoAck bool

	// StartID selects what to deliver: StartNewMessages for entries the
	// group has never delivered, StartPending for the calling consumer's
	// unacknowledged backlog. Empty selects StartNewMessages.
	StartID string
}

// DefaultGroupReadOptions mirrors the operator tooling defaults:
// fire-and-forget batches of new messages.
func DefaultGroupReadOptions() GroupReadOptions {
	return GroupReadOptions{
		Count:   DefaultReadCount,
		NoAck:   true,
		StartID: StartNewMessages,
	}
}

// ReadAsConsumer reads from the named stream on behalf of a consumer in a
// group. An elapsed block window is an empty result, not an error.
func (g *Gateway) ReadAsConsumer(ctx context.Context, streamName, group, consumer string, opts GroupReadOptions) ([]Message, error) {
	if _, err := g.validator.Validate(streamName); err != nil {
		return nil, err
	}
	if err := ValidateLabel("group", group); err != nil {
		return nil, err
	}
	if err := ValidateLabel("consumer", consumer); err != nil {
		return nil, err
	}
	count := opts.Count
	if count == 0 {
		count = DefaultReadCount
	}
	if count < 0 {
		return nil, &InvalidArgumentError{Field: "count", Reason: "must not be negative"}
	}
	startID := opts.StartID
	if startID == "" {
		startID = StartNewMessages
	}

	// go-redis adds BLOCK for any non-negative value and would block
	// forever on zero; negative means no BLOCK at all.
	block := opts.Block
	if block <= 0 {
		block = -1
	}

	msgs, err := retry.Do(ctx, g.policy, func(ctx context.Context) ([]Message, error) {
		res, err := g.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{streamName, startID},
			Count:    count,
			Block:    block,
			NoAck:    opts.NoAck,
		}).Result()
		if errors.Is(err, redis.Nil) {
			return []Message{}, nil
		}
		if err != nil {
			return nil, err
		}
		return streamMessages(res, streamName), nil
	})
	if err != nil {
		if redis.HasErrorPrefix(err, "NOGROUP") {
			return nil, &GroupNotFoundError{Stream: streamName, Group: group}
		}
		return nil, g.backendErr("group read", err)
	}

	g.metrics.RecordGroupRead(streamName, group, len(msgs))
	return msgs, nil
}

// Acknowledge removes a delivered message from the group's pending set.
// It returns false when the id was not pending (already acknowledged or
// never delivered), which is not an error.
func (g *Gateway) Acknowledge(ctx context.Context, streamName, group, messageID string) (bool, error) {
	if _, err := g.validator.Validate(streamName); err != nil {
		return false, err
	}
	if err := ValidateLabel("group", group); err != nil {
		return false, err
	}
	if messageID == "" {
		return false, &InvalidArgumentError{Field: "message id", Reason: "must not be empty"}
	}

	acked, err := retry.Do(ctx, g.policy, func(ctx context.Context) (int64, error) {
		return g.client.XAck(ctx, streamName, group, messageID).Result()
	})
	if err != nil {
		return false, g.backendErr("acknowledge", err)
	}

	g.metrics.RecordAck(streamName, group, acked > 0)
	return acked > 0, nil
}

// ListStreams returns the stream names matching the glob pattern, sorted.
// An empty pattern lists every stream under the gateway's namespace.
// Matching keys that are not valid stream names are dropped.
func (g *Gateway) ListStreams(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = g.validator.Namespace() + ":*"
	}

	names, err := retry.Do(ctx, g.policy, func(ctx context.Context) ([]string, error) {
		var (
			cursor uint64
			found  []string
		)
		for {
			keys, next, err := g.client.ScanType(ctx, cursor, pattern, scanBatch, "stream").Result()
			if err != nil {
				return nil, err
			}
			found = append(found, keys...)
			if next == 0 {
				return found, nil
			}
			cursor = next
		}
	})
	if err != nil {
		return nil, g.backendErr("list streams", err)
	}

	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if _, err := g.validator.Validate(name); err != nil {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// backendErr maps a post-retry failure onto the error taxonomy: caller
// cancellation passes through, deterministic server replies keep their op
// context, and everything else spent the retry budget on a connectivity
// problem.
func (g *Gateway) backendErr(op string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case redisconn.Transient(err):
		g.metrics.RecordBackendFailure(op)
		return &BackendUnavailableError{Op: op, Err: err}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// ValidateLabel checks a group or consumer name: non-empty, no
// whitespace. Both gateway implementations apply it before touching the
// backend; field names the argument in the resulting error.
func ValidateLabel(field, value string) error {
	if value == "" {
		return &InvalidArgumentError{Field: field, Reason: "must not be empty"}
	}
	if strings.ContainsFunc(value, unicode.IsSpace) {
		return &InvalidArgumentError{Field: field, Reason: "must not contain whitespace"}
	}
	return nil
}

func toMessages(res []redis.XMessage) []Message {
	out := make([]Message, 0, len(res))
	for _, m := range res {
		out = append(out, toMessage(m))
	}
	return out
}

func toMessage(m redis.XMessage) Message {
	fields := make(map[string]string, len(m.Values))
	for k, v := range m.Values {
		fields[k] = asString(v)
	}
	return Message{ID: m.ID, Fields: fields}
}

func streamMessages(res []redis.XStream, streamName string) []Message {
	for _, s := range res {
		if s.Stream == streamName {
			return toMessages(s.Messages)
		}
	}
	return []Message{}
}

func asString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}
