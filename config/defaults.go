package config

import (
	"time"

	"github.com/novaops/redstream/pkg/naming"
)

// DefaultConfig returns a Config with sensible defaults: a local
// single-node backing store, the default namespace, JSON logs on stdout,
// and metrics enabled.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "redstream",
			Environment: "development",
			Debug:       false,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Namespace: naming.DefaultNamespace,
		Redis: RedisConfig{
			Addrs:        []string{"127.0.0.1:6379"},
			DB:           0,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
			MinIdleConns: 2,
		},
		Streams: StreamsConfig{
			DefaultMaxLen: 0,
			DefaultBlock:  5 * time.Second,
		},
		State: StateConfig{
			DefaultTTL: 0,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			// Write timeout leaves headroom over the longest blocking
			// read the API accepts.
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    45 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxHeaderBytes:  1 << 20,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9091,
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Endpoint:   "localhost:4317",
			SampleRate: 0.1,
			Timeout:    5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RPS:   50,
			Burst: 100,
		},
	}
}
