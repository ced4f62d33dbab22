package config

import (
	"strings"
	"testing"
)

// Test structs for validating custom validators
type EnvTestStruct struct {
	Env string `validate:"env"`
}

type NamespaceTestStruct struct {
	Namespace string `validate:"namespace"`
}

func TestValidateEnvironment(t *testing.T) {
	tests := []struct {
		name     string
		env      string
		expected bool
	}{
		{"development", "development", true},
		{"staging", "staging", true},
		{"production", "production", true},
		{"empty", "", false},
		{"abbreviated", "prod", false},
		{"capitalized", "Development", false},
		{"unknown", "qa", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := EnvTestStruct{Env: tt.env}
			err := validate.Struct(s)
			if tt.expected && err != nil {
				t.Errorf("expected valid, got error: %v", err)
			}
			if !tt.expected && err == nil {
				t.Errorf("expected invalid for env %q, got valid", tt.env)
			}
		})
	}
}

func TestValidateNamespace(t *testing.T) {
	tests := []struct {
		name      string
		namespace string
		expected  bool
	}{
		// The empty token falls back to the default namespace, so it
		// passes here; Config.Namespace pairs the tag with required.
		{"empty falls back to default", "", true},
		{"default namespace", "nova", true},
		{"single letter", "n", true},
		{"with digits", "ops2", true},
		{"uppercase", "Nova", false},
		{"leading digit", "2ops", false},
		{"with dash", "my-ns", false},
		{"with space", "two words", false},
		{"with delimiter", "nova:system", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NamespaceTestStruct{Namespace: tt.namespace}
			err := validate.Struct(s)
			if tt.expected && err != nil {
				t.Errorf("expected valid, got error: %v", err)
			}
			if !tt.expected && err == nil {
				t.Errorf("expected invalid for namespace %q, got valid", tt.namespace)
			}
		})
	}
}

func TestConfigError_Error(t *testing.T) {
	err := ConfigError{
		Field:   "server.port",
		Message: "must be at most 65535",
		Value:   99999,
	}

	msg := err.Error()
	if !strings.Contains(msg, "server.port") {
		t.Errorf("expected field name in message, got %q", msg)
	}
	if !strings.Contains(msg, "99999") {
		t.Errorf("expected offending value in message, got %q", msg)
	}
}

func TestValidateWithDetails_Messages(t *testing.T) {
	cfg := DefaultConfig()
	cfg.App.Name = ""
	cfg.App.Environment = "qa"
	cfg.Namespace = "Not-Valid"
	cfg.Server.Port = 99999
	cfg.Log.Level = "trace"

	err := ValidateWithDetails(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}

	details, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	byField := make(map[string]string, len(details))
	for _, d := range details {
		byField[d.Field] = d.Message
	}

	wantMessages := map[string]string{
		"Config.App.Name":        "this field is required",
		"Config.App.Environment": "must be one of [development staging production]",
		"Config.Namespace":       "must be a valid stream namespace",
		"Config.Server.Port":     "must be at most 65535",
		"Config.Log.Level":       "must be one of",
	}

	for field, want := range wantMessages {
		got, found := byField[field]
		if !found {
			t.Errorf("expected a validation error for %s, got fields %v", field, fieldNames(details))
			continue
		}
		if !strings.Contains(got, want) {
			t.Errorf("field %s: expected message containing %q, got %q", field, want, got)
		}
	}
}

func fieldNames(details ValidationErrors) []string {
	names := make([]string, 0, len(details))
	for _, d := range details {
		names = append(names, d.Field)
	}
	return names
}
