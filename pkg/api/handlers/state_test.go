package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/novaops/redstream/config"
	"github.com/novaops/redstream/pkg/api/response"
	"github.com/novaops/redstream/pkg/logger"
	"github.com/novaops/redstream/pkg/redistest"
)

func newStateHandler(t *testing.T) (*StateHandler, *redistest.Client) {
	t.Helper()

	svc, client := newTestBroker(t)
	return NewStateHandler(svc, logger.Nop(), config.StateConfig{}), client
}

func TestStateHandler_PutGetDelete(t *testing.T) {
	h, _ := newStateHandler(t)

	value := []byte(`{"mode":"active","retries":3}`)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/state/deploy:config", bytes.NewReader(value))
	req = withChiURLParam(req, "key", "deploy:config")
	w := httptest.NewRecorder()

	h.Put(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Put() status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/state/deploy:config", nil)
	req = withChiURLParam(req, "key", "deploy:config")
	w = httptest.NewRecorder()

	h.Get(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Get() status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	// The stored document comes back verbatim, not re-encoded.
	if !bytes.Equal(bytes.TrimSpace(w.Body.Bytes()), value) {
		t.Errorf("Get() body = %s, want %s", w.Body.String(), value)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/state/deploy:config", nil)
	req = withChiURLParam(req, "key", "deploy:config")
	w = httptest.NewRecorder()

	h.Delete(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("Delete() status = %d, want %d", w.Code, http.StatusNoContent)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/state/deploy:config", nil)
	req = withChiURLParam(req, "key", "deploy:config")
	w = httptest.NewRecorder()

	h.Get(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("Get() after delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if envelope := decodeErrorResponse(t, w); envelope.Error.Code != response.ErrCodeNotFound {
		t.Errorf("code = %q, want %q", envelope.Error.Code, response.ErrCodeNotFound)
	}
}

func TestStateHandler_Put_ScalarValue(t *testing.T) {
	h, _ := newStateHandler(t)

	// Any JSON document is accepted, not just objects.
	req := httptest.NewRequest(http.MethodPut, "/api/v1/state/counter", bytes.NewReader([]byte(`42`)))
	req = withChiURLParam(req, "key", "counter")
	w := httptest.NewRecorder()

	h.Put(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Put() status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/state/counter", nil)
	req = withChiURLParam(req, "key", "counter")
	w = httptest.NewRecorder()

	h.Get(w, req)

	if got := string(bytes.TrimSpace(w.Body.Bytes())); got != "42" {
		t.Errorf("Get() body = %q, want %q", got, "42")
	}
}

func TestStateHandler_Put_InvalidJSON(t *testing.T) {
	h, _ := newStateHandler(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/state/deploy:config", bytes.NewReader([]byte(`{"mode":`)))
	req = withChiURLParam(req, "key", "deploy:config")
	w := httptest.NewRecorder()

	h.Put(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Put() status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if envelope := decodeErrorResponse(t, w); envelope.Error.Code != response.ErrCodeBadRequest {
		t.Errorf("code = %q, want %q", envelope.Error.Code, response.ErrCodeBadRequest)
	}
}

func TestStateHandler_Put_ValueTooLarge(t *testing.T) {
	h, _ := newStateHandler(t)

	oversized := bytes.Repeat([]byte("a"), maxStateValueBytes+1)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/state/deploy:config", bytes.NewReader(oversized))
	req = withChiURLParam(req, "key", "deploy:config")
	w := httptest.NewRecorder()

	h.Put(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("Put() status = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestStateHandler_Put_TTLQuery(t *testing.T) {
	h, _ := newStateHandler(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/state/session:token?ttl=30s", bytes.NewReader([]byte(`"abc"`)))
	req = withChiURLParam(req, "key", "session:token")
	w := httptest.NewRecorder()

	h.Put(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Put() status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["ttl_seconds"] != float64(30) {
		t.Errorf("ttl_seconds = %v, want 30", resp["ttl_seconds"])
	}
}

func TestStateHandler_Put_BadTTLQuery(t *testing.T) {
	h, _ := newStateHandler(t)

	for _, ttl := range []string{"banana", "-10s", "30"} {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/state/session:token?ttl="+ttl, bytes.NewReader([]byte(`"abc"`)))
		req = withChiURLParam(req, "key", "session:token")
		w := httptest.NewRecorder()

		h.Put(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("ttl=%s: status = %d, want %d", ttl, w.Code, http.StatusBadRequest)
		}
	}
}

func TestStateHandler_Put_DefaultTTL(t *testing.T) {
	svc, _ := newTestBroker(t)
	h := NewStateHandler(svc, logger.Nop(), config.StateConfig{DefaultTTL: time.Minute})

	req := httptest.NewRequest(http.MethodPut, "/api/v1/state/session:token", bytes.NewReader([]byte(`"abc"`)))
	req = withChiURLParam(req, "key", "session:token")
	w := httptest.NewRecorder()

	h.Put(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Put() status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["ttl_seconds"] != float64(60) {
		t.Errorf("ttl_seconds = %v, want the configured default 60", resp["ttl_seconds"])
	}
}

func TestStateHandler_Put_InvalidKey(t *testing.T) {
	h, _ := newStateHandler(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/state/bad", bytes.NewReader([]byte(`1`)))
	req = withChiURLParam(req, "key", "bad key")
	w := httptest.NewRecorder()

	h.Put(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Put() status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if envelope := decodeErrorResponse(t, w); envelope.Error.Code != response.ErrCodeValidationFailed {
		t.Errorf("code = %q, want %q", envelope.Error.Code, response.ErrCodeValidationFailed)
	}
}

func TestStateHandler_Get_Missing(t *testing.T) {
	h, _ := newStateHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/state/nothing", nil)
	req = withChiURLParam(req, "key", "nothing")
	w := httptest.NewRecorder()

	h.Get(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("Get() status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestStateHandler_Delete_Idempotent(t *testing.T) {
	h, _ := newStateHandler(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/state/nothing", nil)
	req = withChiURLParam(req, "key", "nothing")
	w := httptest.NewRecorder()

	h.Delete(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Delete() of a missing key status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestStateHandler_BackendDown(t *testing.T) {
	h, client := newStateHandler(t)
	client.SetDown(true)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/state/deploy:config", bytes.NewReader([]byte(`1`)))
	req = withChiURLParam(req, "key", "deploy:config")
	w := httptest.NewRecorder()

	h.Put(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Put() status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	if envelope := decodeErrorResponse(t, w); envelope.Error.Message != response.UnavailableMessage {
		t.Errorf("message = %q, want the generic %q", envelope.Error.Message, response.UnavailableMessage)
	}
}
