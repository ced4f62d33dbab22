// Package state implements the ephemeral key/value store: opaque
// JSON-serialized values under namespaced keys with optional expiry. TTL
// enforcement is the backing store's native expiry; no sweep runs here.
// Transient backend failures are retried under the same bounded policy the
// stream gateway uses before surfacing as StorageUnavailableError.
package state

import (
	"context"
	"encoding/json"
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

// scanBatch is the SCAN page size for key listing.
const scanBatch = 100

// KeyPrefix returns the physical key prefix for a namespace. Every store
// implementation must lay keys out under it so stream names and state
// keys never collide in one keyspace.
func KeyPrefix(namespace string) string {
	return namespace + ":state:"
}

// Config holds Store settings.
type Config struct {
	// Namespace is the root token of the physical key prefix.
	Namespace string

	// Retry bounds backend attempts. Nil selects retry.DefaultPolicy.
	Retry *retry.Policy
}

// DefaultConfig returns Store settings for the default namespace.
func DefaultConfig() *Config {
	return &Config{Namespace: naming.DefaultNamespace}
}

// MetricsRecorder receives store operation measurements.
type MetricsRecorder interface {
	RecordStateOp(op string, duration time.Duration)
	RecordStateFailure(op string)
}

type nopMetrics struct{}

func (nopMetrics) RecordStateOp(string, time.Duration) {}
func (nopMetrics) RecordStateFailure(string)           {}

// Store provides the key/value operations over a shared backend client.
// Logical keys are scoped under "<namespace>:state:"; callers never see
// the physical prefix.
type Store struct {
	client  redis.Cmdable
	prefix  string
	policy  *retry.Policy
	metrics MetricsRecorder
}

// New creates a Store over the given backend client.
func New(client redis.Cmdable, cfg *Config) (*Store, error) {
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

	return &Store{
		client:  client,
		prefix:  KeyPrefix(validator.Namespace()),
		policy:  &bound,
		metrics: nopMetrics{},
	}, nil
}

// SetMetrics sets the metrics recorder.
func (s *Store) SetMetrics(m MetricsRecorder) {
	if m != nil {
		s.metrics = m
	}
}

// Set stores value under key, overwriting unconditionally. A positive ttl
// expires the entry; zero or negative keeps it until deleted.
func (s *Store) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return &SerializationError{Operation: "set", Cause: err}
	}
	if ttl < 0 {
		ttl = 0
	}

	start := time.Now()
	_, err = retry.Do(ctx, s.policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.client.Set(ctx, s.prefix+key, data, ttl).Err()
	})
	if err != nil {
		return s.backendErr("set", err)
	}
	s.metrics.RecordStateOp("set", time.Since(start))
	return nil
}

// Get reads the entry under key into dest.
func (s *Store) Get(ctx context.Context, key string, dest interface{}) error {
	raw, err := s.GetRaw(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return &SerializationError{Operation: "get", Cause: err}
	}
	return nil
}

// GetRaw reads the entry under key without decoding it.
func (s *Store) GetRaw(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	start := time.Now()
	val, err := retry.Do(ctx, s.policy, func(ctx context.Context) (string, error) {
		return s.client.Get(ctx, s.prefix+key).Result()
	})
	if errors.Is(err, redis.Nil) {
		return nil, &NotFoundError{Key: key}
	}
	if err != nil {
		return nil, s.backendErr("get", err)
	}
	s.metrics.RecordStateOp("get", time.Since(start))
	return []byte(val), nil
}

// Delete removes the entry under key. Deleting an absent key is a no-op
// success.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	start := time.Now()
	_, err := retry.Do(ctx, s.policy, func(ctx context.Context) (int64, error) {
		return s.client.Del(ctx, s.prefix+key).Result()
	})
	if err != nil {
		return s.backendErr("delete", err)
	}
	s.metrics.RecordStateOp("delete", time.Since(start))
	return nil
}

// TTL reports the remaining lifetime of the entry under key. Zero means
// the entry has no expiry.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	if err := ValidateKey(key); err != nil {
		return 0, err
	}

	start := time.Now()
	ttl, err := retry.Do(ctx, s.policy, func(ctx context.Context) (time.Duration, error) {
		return s.client.TTL(ctx, s.prefix+key).Result()
	})
	if err != nil {
		return 0, s.backendErr("ttl", err)
	}
	s.metrics.RecordStateOp("ttl", time.Since(start))
	switch {
	case ttl == time.Duration(-2):
		return 0, &NotFoundError{Key: key}
	case ttl == time.Duration(-1):
		return 0, nil
	default:
		return ttl, nil
	}
}

// Keys returns the logical keys matching the glob pattern, sorted. An
// empty pattern lists every key in the store's keyspace.
func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}

	start := time.Now()
	keys, err := retry.Do(ctx, s.policy, func(ctx context.Context) ([]string, error) {
		var (
			cursor uint64
			found  []string
		)
		for {
			page, next, err := s.client.ScanType(ctx, cursor, s.prefix+pattern, scanBatch, "string").Result()
			if err != nil {
				return nil, err
			}
			found = append(found, page...)
			if next == 0 {
				return found, nil
			}
			cursor = next
		}
	})
	if err != nil {
		return nil, s.backendErr("keys", err)
	}
	s.metrics.RecordStateOp("keys", time.Since(start))

	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, strings.TrimPrefix(key, s.prefix))
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) backendErr(op string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case redisconn.Transient(err):
		s.metrics.RecordStateFailure(op)
		return &StorageUnavailableError{Op: op, Cause: err}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// ValidateKey checks a logical state key: non-empty, no whitespace, no
// wildcards. Both store implementations apply it before touching the
// backend.
func ValidateKey(key string) error {
	if key == "" {
		return &InvalidKeyError{Key: key, Reason: "must not be empty"}
	}
	if strings.ContainsFunc(key, unicode.IsSpace) {
		return &InvalidKeyError{Key: key, Reason: "must not contain whitespace"}
	}
	if strings.Contains(key, "*") {
		return &InvalidKeyError{Key: key, Reason: "must not contain wildcards"}
	}
	return nil
}
