// Package redisconn builds the shared Redis client handle and classifies
// backend errors. The backing store may be a single node, a sentinel
// deployment, or a cluster; redis.UniversalClient covers all three and
// follows cluster redirections internally, so callers hold one long-lived
// handle that is safe for concurrent use.
package redisconn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds connection settings for the backing store.
type Config struct {
	// Addrs lists node addresses. One address selects single-node mode,
	// several plus MasterName selects sentinel, several without selects
	// cluster.
	Addrs []string

	// MasterName is the sentinel master set name.
	MasterName string

	Username string
	Password string

	// DB is the logical database. Ignored in cluster mode.
	DB int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	PoolSize     int
	MinIdleConns int
}

// DefaultConfig returns connection settings for a local single node.
func DefaultConfig() *Config {
	return &Config{
		Addrs:        []string{"127.0.0.1:6379"},
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// Validate validates the connection settings.
func (c *Config) Validate() error {
	if len(c.Addrs) == 0 {
		return fmt.Errorf("at least one backend address is required")
	}
	for _, addr := range c.Addrs {
		if addr == "" {
			return fmt.Errorf("backend address cannot be empty")
		}
	}
	return nil
}

// New creates the shared client handle from the given settings.
func New(cfg *Config) (redis.UniversalClient, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backend config: %w", err)
	}

	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        cfg.Addrs,
		MasterName:   cfg.MasterName,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	}), nil
}

// Ping checks that the backing store is reachable.
func Ping(ctx context.Context, client redis.Cmdable) error {
	return client.Ping(ctx).Err()
}

// deterministicPrefixes are server replies that repeat verbatim however
// many times the command is resent. MOVED/ASK redirections are absent on
// purpose: during a cluster topology change a resend can land correctly.
var deterministicPrefixes = []string{
	"ERR",
	"WRONGTYPE",
	"BUSYGROUP",
	"NOGROUP",
	"NOPERM",
	"NOAUTH",
	"NOSCRIPT",
	"EXECABORT",
}

// Transient reports whether err is worth resending the command for:
// connectivity failures and redirections are, deterministic server replies
// and caller cancellation are not.
func Transient(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, redis.Nil),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}

	var rerr redis.Error
	if errors.As(err, &rerr) {
		msg := rerr.Error()
		for _, prefix := range deterministicPrefixes {
			if strings.HasPrefix(msg, prefix) {
				return false
			}
		}
	}
	return true
}
