package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/novaops/redstream/pkg/broker"
	"github.com/novaops/redstream/pkg/logger"
	"github.com/novaops/redstream/pkg/redistest"
	"github.com/novaops/redstream/pkg/stream"
)

func newTailServer(t *testing.T, cfg TailConfig) (*httptest.Server, *broker.Service, *redistest.Client) {
	t.Helper()

	svc, client := newTestBroker(t)

	r := chi.NewRouter()
	r.Get("/ws/streams/{stream}", NewTailHandler(svc, logger.Nop(), cfg).ServeHTTP)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, svc, client
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func dialTail(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, path), nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) tailFrame {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame tailFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	return frame
}

func TestTailHandler_DeliversPublishedMessages(t *testing.T) {
	srv, svc, _ := newTailServer(t, TailConfig{Block: 50 * time.Millisecond})

	// since_id=0 replays from the beginning, so delivery does not race
	// the tail attaching.
	conn := dialTail(t, srv, "/ws/streams/nova:task:ci:events?since_id=0")

	ctx := context.Background()
	id, err := svc.Publish(ctx, "nova:task:ci:events", map[string]string{"type": "note", "content": "hello"}, stream.PublishOptions{})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	frame := readFrame(t, conn)
	if frame.Type != "message" {
		t.Fatalf("frame type = %q, want message", frame.Type)
	}
	if frame.Stream != "nova:task:ci:events" {
		t.Errorf("frame stream = %q, want nova:task:ci:events", frame.Stream)
	}
	if frame.Message == nil || frame.Message.ID != id {
		t.Fatalf("frame message = %+v, want id %s", frame.Message, id)
	}
	if frame.Message.Fields["content"] != "hello" {
		t.Errorf("content = %q, want hello", frame.Message.Fields["content"])
	}
}

func TestTailHandler_ResumesAfterSinceID(t *testing.T) {
	srv, svc, _ := newTailServer(t, TailConfig{Block: 50 * time.Millisecond})

	ctx := context.Background()
	first, err := svc.Publish(ctx, "nova:task:ci:events", map[string]string{"n": "1"}, stream.PublishOptions{})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	second, err := svc.Publish(ctx, "nova:task:ci:events", map[string]string{"n": "2"}, stream.PublishOptions{})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	conn := dialTail(t, srv, "/ws/streams/nova:task:ci:events?since_id="+first)

	frame := readFrame(t, conn)
	if frame.Message == nil || frame.Message.ID != second {
		t.Fatalf("frame = %+v, want only the entry after since_id (%s)", frame, second)
	}
}

func TestTailHandler_SkipsHistoryByDefault(t *testing.T) {
	srv, svc, _ := newTailServer(t, TailConfig{Block: 20 * time.Millisecond})

	ctx := context.Background()
	if _, err := svc.Publish(ctx, "nova:task:ci:events", map[string]string{"n": "old"}, stream.PublishOptions{}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	conn := dialTail(t, srv, "/ws/streams/nova:task:ci:events")

	// Without since_id the tail starts at the stream head: the old
	// entry must not be replayed.
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	var frame tailFrame
	if err := conn.ReadJSON(&frame); err == nil {
		t.Fatalf("unexpected frame %+v, want none for history", frame)
	}
}

func TestTailHandler_InvalidStreamName(t *testing.T) {
	srv, _, _ := newTailServer(t, TailConfig{})

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/streams/bad..name"), nil)
	if err == nil {
		t.Fatal("expected the handshake to fail for an invalid stream name")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("handshake response = %+v, want status %d", resp, http.StatusBadRequest)
	}
}

func TestTailHandler_ConnectionLimit(t *testing.T) {
	srv, _, _ := newTailServer(t, TailConfig{MaxTails: 1, Block: 20 * time.Millisecond})

	dialTail(t, srv, "/ws/streams/nova:task:ci:events?since_id=0")

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/streams/nova:task:ci:events?since_id=0"), nil)
	if err == nil {
		t.Fatal("expected the handshake to fail at the connection limit")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("handshake response = %+v, want status %d", resp, http.StatusServiceUnavailable)
	}
}

func TestTailHandler_SlotFreedOnClose(t *testing.T) {
	srv, _, _ := newTailServer(t, TailConfig{MaxTails: 1, Block: 20 * time.Millisecond})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/streams/nova:task:ci:events?since_id=0"), nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	conn.Close()

	// The handler notices the close and releases its slot; a new tail
	// must be accepted shortly after.
	deadline := time.Now().Add(2 * time.Second)
	for {
		next, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/streams/nova:task:ci:events?since_id=0"), nil)
		if err == nil {
			next.Close()
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("slot never freed after client close: %v", err)
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func TestTailHandler_BackendFailureSendsErrorFrame(t *testing.T) {
	srv, _, client := newTailServer(t, TailConfig{Block: 20 * time.Millisecond})

	conn := dialTail(t, srv, "/ws/streams/nova:task:ci:events?since_id=0")
	client.SetDown(true)

	frame := readFrame(t, conn)
	if frame.Type != "error" {
		t.Fatalf("frame type = %q, want error", frame.Type)
	}
	// Backend details stay server side, matching the HTTP surface.
	if !strings.Contains(frame.Error, "unavailable") {
		t.Errorf("error text = %q, want the generic unavailable message", frame.Error)
	}

	// The handler closes the connection after reporting.
	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the connection to close after the error frame")
	}
}

func TestTailOriginAllowed(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		host    string
		allowed []string
		want    bool
	}{
		{"no origin header", "", "api.internal:8080", nil, true},
		{"same host", "http://api.internal:8080", "api.internal:8080", nil, true},
		{"cross origin denied", "http://evil.example", "api.internal:8080", nil, false},
		{"allow list match", "http://dash.example", "api.internal:8080", []string{"http://dash.example"}, true},
		{"allow list miss", "http://evil.example", "api.internal:8080", []string{"http://dash.example"}, false},
		{"wildcard", "http://anything.example", "api.internal:8080", []string{"*"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws/streams/nova:task:ci:events", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := tailOriginAllowed(r, tt.allowed); got != tt.want {
				t.Errorf("tailOriginAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}
