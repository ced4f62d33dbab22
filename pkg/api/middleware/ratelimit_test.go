package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/novaops/redstream/pkg/api/response"
)

func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(10, 5)
	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/streams", nil)
		req.RemoteAddr = "10.0.0.1:52000"
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}
}

func TestRateLimiter_RejectsBeyondBurst(t *testing.T) {
	// Sustained rate near zero so the bucket does not refill mid-test.
	rl := NewRateLimiter(0.001, 2)
	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/streams", nil)
		req.RemoteAddr = "10.0.0.2:52000"
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)
		statuses = append(statuses, w.Code)

		if i == 2 {
			if w.Code != http.StatusTooManyRequests {
				t.Fatalf("statuses = %v, want third request limited", statuses)
			}

			var errResp response.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
				t.Fatalf("failed to unmarshal error response: %v", err)
			}
			if errResp.Error.Code != response.ErrCodeTooManyRequests {
				t.Errorf("error code = %v, want %v", errResp.Error.Code, response.ErrCodeTooManyRequests)
			}
		}
	}
}

func TestRateLimiter_ClientsAreIndependent(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRequest(http.MethodGet, "/api/v1/streams", nil)
	first.RemoteAddr = "10.0.0.3:52000"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, first)
	if w.Code != http.StatusOK {
		t.Fatalf("first client status = %d, want 200", w.Code)
	}

	// Same client again: bucket exhausted.
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, first)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("first client second request status = %d, want 429", w.Code)
	}

	// A different client still has its own bucket.
	second := httptest.NewRequest(http.MethodGet, "/api/v1/streams", nil)
	second.RemoteAddr = "10.0.0.4:52000"
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, second)
	if w.Code != http.StatusOK {
		t.Fatalf("second client status = %d, want 200", w.Code)
	}
}

func TestRateLimiter_SkipsProbeEndpoints(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/health", "/ready"} {
		for i := 0; i < 10; i++ {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			req.RemoteAddr = "10.0.0.5:52000"
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("%s request %d: status = %d, want 200", path, i, w.Code)
			}
		}
	}
}

func TestRateLimiter_PrunesStaleClients(t *testing.T) {
	rl := NewRateLimiter(10, 5)

	rl.allow("10.0.0.6")
	rl.mu.Lock()
	rl.clients["10.0.0.6"].lastSeen = time.Now().Add(-2 * staleClientAfter)
	rl.mu.Unlock()

	// A new client triggers the prune.
	rl.allow("10.0.0.7")

	rl.mu.Lock()
	_, stale := rl.clients["10.0.0.6"]
	_, fresh := rl.clients["10.0.0.7"]
	rl.mu.Unlock()

	if stale {
		t.Error("expected stale client to be pruned")
	}
	if !fresh {
		t.Error("expected fresh client to be kept")
	}
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.9:60123"
	if got := clientKey(req); got != "192.168.1.9" {
		t.Errorf("clientKey = %q, want %q", got, "192.168.1.9")
	}

	req.RemoteAddr = "no-port-here"
	if got := clientKey(req); got != "no-port-here" {
		t.Errorf("clientKey fallback = %q, want %q", got, "no-port-here")
	}
}
