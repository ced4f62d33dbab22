package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/novaops/redstream/pkg/naming"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Test App defaults
	if cfg.App.Name != "redstream" {
		t.Errorf("expected app name 'redstream', got %s", cfg.App.Name)
	}
	if cfg.App.Environment != "development" {
		t.Errorf("expected environment 'development', got %s", cfg.App.Environment)
	}

	// Test namespace default
	if cfg.Namespace != naming.DefaultNamespace {
		t.Errorf("expected namespace %q, got %q", naming.DefaultNamespace, cfg.Namespace)
	}

	// Test Server defaults
	if cfg.Server.Port != 8080 {
		t.Errorf("expected server port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected server host '0.0.0.0', got %s", cfg.Server.Host)
	}

	// Test Log defaults
	if cfg.Log.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected log format 'json', got %s", cfg.Log.Format)
	}

	// Test Redis defaults
	if len(cfg.Redis.Addrs) != 1 || cfg.Redis.Addrs[0] != "127.0.0.1:6379" {
		t.Errorf("expected single local redis addr, got %v", cfg.Redis.Addrs)
	}
	if cfg.Redis.PoolSize != 10 {
		t.Errorf("expected pool size 10, got %d", cfg.Redis.PoolSize)
	}

	// Test Streams defaults
	if cfg.Streams.DefaultMaxLen != 0 {
		t.Errorf("expected unbounded streams by default, got maxlen %d", cfg.Streams.DefaultMaxLen)
	}
	if cfg.Streams.DefaultBlock != 5*time.Second {
		t.Errorf("expected default block 5s, got %v", cfg.Streams.DefaultBlock)
	}

	// Test Metrics defaults
	if !cfg.Metrics.Enabled {
		t.Error("expected metrics.enabled to be true")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("expected metrics path '/metrics', got %s", cfg.Metrics.Path)
	}
	if cfg.Metrics.Port != 9091 {
		t.Errorf("expected metrics port 9091, got %d", cfg.Metrics.Port)
	}

	// Test Tracing defaults
	if cfg.Tracing.Enabled {
		t.Error("expected tracing.enabled to be false")
	}
	if cfg.Tracing.SampleRate != 0.1 {
		t.Errorf("expected sample rate 0.1, got %v", cfg.Tracing.SampleRate)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: func() *Config {
				cfg := DefaultConfig()
				cfg.App.Name = "test"
				cfg.App.Environment = "development"
				cfg.Server.Port = 8080
				cfg.Log.Level = "info"
				cfg.Log.Format = "json"
				return cfg
			}(),
			wantErr: false,
		},
		{
			name: "missing app name",
			cfg: func() *Config {
				cfg := DefaultConfig()
				cfg.App.Name = ""
				return cfg
			}(),
			wantErr: true,
		},
		{
			name: "invalid port",
			cfg: func() *Config {
				cfg := DefaultConfig()
				cfg.Server.Port = 99999
				return cfg
			}(),
			wantErr: true,
		},
		{
			name: "invalid log level",
			cfg: func() *Config {
				cfg := DefaultConfig()
				cfg.Log.Level = "trace"
				return cfg
			}(),
			wantErr: true,
		},
		{
			name: "invalid environment",
			cfg: func() *Config {
				cfg := DefaultConfig()
				cfg.App.Environment = "invalid"
				return cfg
			}(),
			wantErr: true,
		},
		{
			name: "invalid namespace",
			cfg: func() *Config {
				cfg := DefaultConfig()
				cfg.Namespace = "Not-Valid"
				return cfg
			}(),
			wantErr: true,
		},
		{
			name: "empty redis addrs",
			cfg: func() *Config {
				cfg := DefaultConfig()
				cfg.Redis.Addrs = nil
				return cfg
			}(),
			wantErr: true,
		},
		{
			name: "sample rate above one",
			cfg: func() *Config {
				cfg := DefaultConfig()
				cfg.Tracing.SampleRate = 1.5
				return cfg
			}(),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Field: "server.port", Message: "must be between 1 and 65535", Value: 99999},
		{Field: "log.level", Message: "must be one of [debug info warn error]", Value: "trace"},
	}

	errMsg := errs.Error()
	if errMsg == "" {
		t.Error("expected error message")
	}

	if errMsg == "no validation errors" {
		t.Error("expected error details")
	}
}

func TestConfig_String(t *testing.T) {
	cfg := DefaultConfig()
	cfg.App.Name = "test"
	cfg.Redis.Password = "hunter2"

	s := cfg.String()
	if s == "" {
		t.Error("expected non-empty string representation")
	}
	if strings.Contains(s, "hunter2") {
		t.Error("expected password to be excluded from string representation")
	}
}

func TestDurationParsing(t *testing.T) {
	// Test that duration fields work correctly
	cfg := DefaultConfig()

	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("expected read timeout 30s, got %v", cfg.Server.ReadTimeout)
	}

	if cfg.Redis.DialTimeout != 5*time.Second {
		t.Errorf("expected dial timeout 5s, got %v", cfg.Redis.DialTimeout)
	}
}

func TestLoader_Get(t *testing.T) {
	loader := NewLoader()
	_, _ = loader.Load("", nil) // Load defaults

	// Test Get
	val := loader.Get("app.name")
	if val == nil {
		t.Error("expected non-nil value for app.name")
	}

	// Test GetString
	str := loader.GetString("app.name")
	if str != "redstream" {
		t.Errorf("expected 'redstream', got '%s'", str)
	}

	// Test GetInt
	port := loader.GetInt("server.port")
	if port != 8080 {
		t.Errorf("expected 8080, got %d", port)
	}

	// Test GetBool
	enabled := loader.GetBool("metrics.enabled")
	if !enabled {
		t.Error("expected metrics.enabled to be true")
	}
}

func TestLoader_Set(t *testing.T) {
	loader := NewLoader()
	_, _ = loader.Load("", nil)

	// Set a value
	err := loader.Set("app.name", "custom-app")
	if err != nil {
		t.Errorf("unexpected error setting value: %v", err)
	}

	// Verify it was set
	if loader.GetString("app.name") != "custom-app" {
		t.Errorf("expected 'custom-app', got '%s'", loader.GetString("app.name"))
	}
}

func TestLoader_Print(t *testing.T) {
	loader := NewLoader()
	_, _ = loader.Load("", nil)

	output := loader.Print()
	if output == "" {
		t.Error("expected non-empty print output")
	}
}

func TestLoad(t *testing.T) {
	// Test convenience function
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil {
		t.Error("expected non-nil config")
	}
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load("", map[string]interface{}{
		"namespace":   "ops",
		"server.port": 7070,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Namespace != "ops" {
		t.Errorf("expected namespace 'ops', got '%s'", cfg.Namespace)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("expected port 7070, got %d", cfg.Server.Port)
	}
	// Untouched keys keep their defaults
	if cfg.App.Name != "redstream" {
		t.Errorf("expected default app name, got '%s'", cfg.App.Name)
	}
}

func TestLoader_LoadFile(t *testing.T) {
	// Create a temp YAML config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
app:
  name: yaml-test
  environment: production
namespace: acme
server:
  port: 9999
redis:
  addrs:
    - 10.0.0.1:6379
    - 10.0.0.2:6379
  master: mymaster
  dial_timeout: 10s
streams:
  default_maxlen: 50000
  default_block: 2s
state:
  default_ttl: 1h
log:
  level: debug
  format: text
ratelimit:
  rps: 25
  burst: 50
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	loader := NewLoader()
	cfg, err := loader.Load(configPath, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.App.Name != "yaml-test" {
		t.Errorf("expected 'yaml-test', got '%s'", cfg.App.Name)
	}
	if cfg.Namespace != "acme" {
		t.Errorf("expected 'acme', got '%s'", cfg.Namespace)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("expected 9999, got %d", cfg.Server.Port)
	}
	if len(cfg.Redis.Addrs) != 2 {
		t.Errorf("expected 2 redis addrs, got %v", cfg.Redis.Addrs)
	}
	if cfg.Redis.Master != "mymaster" {
		t.Errorf("expected sentinel master 'mymaster', got '%s'", cfg.Redis.Master)
	}
	if cfg.Redis.DialTimeout != 10*time.Second {
		t.Errorf("expected dial timeout 10s, got %v", cfg.Redis.DialTimeout)
	}
	if cfg.Streams.DefaultMaxLen != 50000 {
		t.Errorf("expected default maxlen 50000, got %d", cfg.Streams.DefaultMaxLen)
	}
	if cfg.Streams.DefaultBlock != 2*time.Second {
		t.Errorf("expected default block 2s, got %v", cfg.Streams.DefaultBlock)
	}
	if cfg.State.DefaultTTL != time.Hour {
		t.Errorf("expected default ttl 1h, got %v", cfg.State.DefaultTTL)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected 'debug', got '%s'", cfg.Log.Level)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("expected 'text', got '%s'", cfg.Log.Format)
	}
	if cfg.RateLimit.RPS != 25 {
		t.Errorf("expected rps 25, got %v", cfg.RateLimit.RPS)
	}
	if cfg.RateLimit.Burst != 50 {
		t.Errorf("expected burst 50, got %d", cfg.RateLimit.Burst)
	}
}

func TestLoader_LoadJSONFile(t *testing.T) {
	// Create a temp JSON config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	jsonContent := `{
		"app": {
			"name": "json-test",
			"environment": "staging"
		},
		"namespace": "fleet",
		"server": {
			"port": 8888
		},
		"log": {
			"level": "warn",
			"format": "json"
		}
	}`
	if err := os.WriteFile(configPath, []byte(jsonContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	loader := NewLoader()
	cfg, err := loader.Load(configPath, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.App.Name != "json-test" {
		t.Errorf("expected 'json-test', got '%s'", cfg.App.Name)
	}
	if cfg.Namespace != "fleet" {
		t.Errorf("expected 'fleet', got '%s'", cfg.Namespace)
	}
	if cfg.Server.Port != 8888 {
		t.Errorf("expected 8888, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected 'warn', got '%s'", cfg.Log.Level)
	}
}

func TestLoader_LoadInvalidFile(t *testing.T) {
	loader := NewLoader()

	// Test with non-existent file
	_, err := loader.Load("/nonexistent/config.yaml", nil)
	if err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestLoader_LoadUnsupportedFormat(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	if err := os.WriteFile(configPath, []byte("app = 'test'"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	loader := NewLoader()
	_, err := loader.Load(configPath, nil)
	if err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestLoader_RejectsInvalidFileValues(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
namespace: Not-A-Namespace
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	loader := NewLoader()
	_, err := loader.Load(configPath, nil)
	if err == nil {
		t.Fatal("expected validation error for invalid namespace")
	}

	details, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(details) == 0 {
		t.Fatal("expected non-empty validation details")
	}
}

func TestLoader_EnvVars(t *testing.T) {
	t.Setenv("REDSTREAM_NAMESPACE", "envspace")
	t.Setenv("REDSTREAM_SERVER_PORT", "7777")
	t.Setenv("REDSTREAM_LOG_LEVEL", "error")

	loader := NewLoader()
	cfg, err := loader.Load("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Namespace != "envspace" {
		t.Errorf("expected namespace 'envspace', got '%s'", cfg.Namespace)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("expected port 7777, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("expected log level 'error', got '%s'", cfg.Log.Level)
	}

	// Keys no env var touched keep their defaults
	if cfg.App.Name != "redstream" {
		t.Errorf("expected default app name, got '%s'", cfg.App.Name)
	}
}

func TestLoader_EnvVarsOverrideFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
log:
  level: debug
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv("REDSTREAM_LOG_LEVEL", "warn")

	loader := NewLoader()
	cfg, err := loader.Load(configPath, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("expected env var to win over file, got '%s'", cfg.Log.Level)
	}
}

func TestValidation_InvalidPort(t *testing.T) {
	tests := []struct {
		name    string
		port    int
		wantErr bool
	}{
		{"valid port 80", 80, false},
		{"valid port 8080", 8080, false},
		{"valid port 65535", 65535, false},
		{"invalid port 0", 0, true},
		{"invalid port -1", -1, true},
		{"invalid port 65536", 65536, true},
		{"invalid port 99999", 99999, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Server.Port = tt.port
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("port %d: expected error=%v, got error=%v", tt.port, tt.wantErr, err)
			}
		})
	}
}

func TestValidateWithDetails(t *testing.T) {
	cfg := DefaultConfig()
	cfg.App.Name = ""
	cfg.Server.Port = 99999
	cfg.Log.Level = "trace"

	err := ValidateWithDetails(cfg)
	if err == nil {
		t.Fatal("expected validation error details")
	}

	details, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(details) != 3 {
		t.Fatalf("expected 3 validation errors, got %d: %v", len(details), details)
	}
}
