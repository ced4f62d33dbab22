// Package config provides configuration management for RedStream.
package config

import (
	"fmt"
	"time"
)

// Config is the global configuration for RedStream.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Namespace is the root token of canonical stream names and the
	// physical state key prefix.
	Namespace string `mapstructure:"namespace" validate:"required,namespace"`

	// Redis is the backing-store connection configuration.
	Redis RedisConfig `mapstructure:"redis" validate:"required"`

	// Streams holds stream gateway defaults.
	Streams StreamsConfig `mapstructure:"streams"`

	// State holds state store defaults.
	State StateConfig `mapstructure:"state"`

	// Server is the HTTP API server configuration.
	Server ServerConfig `mapstructure:"server" validate:"required"`

	// Metrics is the observability configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the distributed tracing configuration.
	Tracing TracingConfig `mapstructure:"tracing"`

	// RateLimit is the API rate limiting configuration.
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name.
	Name string `mapstructure:"name" validate:"required"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"env"`

	// Debug enables debug mode with verbose logging.
	Debug bool `mapstructure:"debug"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the output format (json, text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is the output destination (stdout, stderr, or file path).
	Output string `mapstructure:"output"`
}

// RedisConfig holds backing-store connection settings. One address
// selects single-node mode, several plus Master selects sentinel,
// several without selects cluster.
type RedisConfig struct {
	// Addrs lists node addresses.
	Addrs []string `mapstructure:"addrs" validate:"required,min=1,dive,required"`

	// Master is the sentinel master set name.
	Master string `mapstructure:"master"`

	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	// DB is the logical database. Ignored in cluster mode.
	DB int `mapstructure:"db" validate:"min=0"`

	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// PoolSize is the connection pool size per node.
	PoolSize int `mapstructure:"pool_size" validate:"min=0"`

	// MinIdleConns is the number of idle connections kept open.
	MinIdleConns int `mapstructure:"min_idle_conns" validate:"min=0"`
}

// StreamsConfig holds stream gateway defaults.
type StreamsConfig struct {
	// DefaultMaxLen is the approximate trim applied to API publishes
	// that do not name one. Zero leaves streams unbounded.
	DefaultMaxLen int64 `mapstructure:"default_maxlen" validate:"min=0"`

	// DefaultBlock caps the wait of blocking reads that do not name one.
	DefaultBlock time.Duration `mapstructure:"default_block"`
}

// StateConfig holds state store defaults.
type StateConfig struct {
	// DefaultTTL expires API state writes that do not name a TTL. Zero
	// stores them without expiry.
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
}

// ServerConfig holds the HTTP API server configuration.
type ServerConfig struct {
	// Host is the bind address.
	Host string `mapstructure:"host"`

	// Port is the HTTP API port.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes. It
	// must exceed the longest allowed blocking read.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	MaxHeaderBytes int `mapstructure:"max_header_bytes" validate:"min=0"`
}

// MetricsConfig holds observability settings.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`

	// Path is the metrics endpoint path.
	Path string `mapstructure:"path"`

	// Port is the metrics server port.
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
}

// TracingConfig holds distributed tracing settings.
type TracingConfig struct {
	// Enabled enables distributed tracing.
	Enabled bool `mapstructure:"enabled"`

	// Endpoint is the OTLP gRPC collector endpoint.
	Endpoint string `mapstructure:"endpoint"`

	// SampleRate is the fraction of traces to sample (0.0-1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`

	// Timeout bounds exporter connection attempts.
	Timeout time.Duration `mapstructure:"timeout"`
}

// RateLimitConfig holds per-client API rate limiting settings.
type RateLimitConfig struct {
	// RPS is the sustained requests-per-second budget per client. Zero
	// disables rate limiting.
	RPS float64 `mapstructure:"rps" validate:"min=0"`

	// Burst is the instantaneous burst budget per client.
	Burst int `mapstructure:"burst" validate:"min=0"`
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// String returns a string representation of the configuration (without
// sensitive data).
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Namespace: %s, Server: :%d, Env: %s}",
		c.App.Name, c.Namespace, c.Server.Port, c.App.Environment)
}
