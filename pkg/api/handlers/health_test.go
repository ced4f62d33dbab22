package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/novaops/redstream/pkg/broker"
	"github.com/novaops/redstream/pkg/redistest"
	"github.com/novaops/redstream/pkg/retry"
)

func fastRetry() *retry.Policy {
	return &retry.Policy{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        4 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

// newTestBroker builds a broker service over the in-memory backend. The
// returned client controls backend failure injection.
func newTestBroker(t *testing.T) (*broker.Service, *redistest.Client) {
	t.Helper()

	client := redistest.New()
	svc, err := broker.NewService(client, &broker.Config{Retry: fastRetry()})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc, client
}

func TestHealthHandler_Health(t *testing.T) {
	svc, _ := newTestBroker(t)
	h := NewHealthHandler(svc, "development", "nova")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	h.Health(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Health() status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want %q", body["status"], "ok")
	}
}

func TestHealthHandler_HealthIgnoresBackend(t *testing.T) {
	svc, client := newTestBroker(t)
	client.SetDown(true)
	h := NewHealthHandler(svc, "development", "nova")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	h.Health(w, req)

	// Liveness only says the process is up; a dead backend must not
	// make the orchestrator restart us.
	if w.Code != http.StatusOK {
		t.Errorf("Health() status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestHealthHandler_Ready(t *testing.T) {
	svc, _ := newTestBroker(t)
	h := NewHealthHandler(svc, "development", "nova")

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()

	h.Ready(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Ready() status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]bool
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !body["ready"] {
		t.Error("expected ready=true with a healthy backend")
	}
}

func TestHealthHandler_ReadyBackendDown(t *testing.T) {
	svc, client := newTestBroker(t)
	client.SetDown(true)
	h := NewHealthHandler(svc, "development", "nova")

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()

	h.Ready(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Ready() status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	var body map[string]bool
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["ready"] {
		t.Error("expected ready=false when the backend is down")
	}
}

func TestHealthHandler_Status(t *testing.T) {
	svc, _ := newTestBroker(t)
	h := NewHealthHandler(svc, "production", "nova")

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()

	h.Status(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status() status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["service"] != "redstream" {
		t.Errorf("service = %v, want redstream", body["service"])
	}
	if body["environment"] != "production" {
		t.Errorf("environment = %v, want production", body["environment"])
	}
	if body["namespace"] != "nova" {
		t.Errorf("namespace = %v, want nova", body["namespace"])
	}
	if body["redis"] != "up" {
		t.Errorf("redis = %v, want up", body["redis"])
	}
	if body["version"] == nil {
		t.Error("expected a version field")
	}
}

func TestHealthHandler_StatusBackendDown(t *testing.T) {
	svc, client := newTestBroker(t)
	client.SetDown(true)
	h := NewHealthHandler(svc, "production", "nova")

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()

	h.Status(w, req)

	// Status reports backend state instead of failing outright.
	if w.Code != http.StatusOK {
		t.Fatalf("Status() status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["redis"] != "down" {
		t.Errorf("redis = %v, want down", body["redis"])
	}
}
