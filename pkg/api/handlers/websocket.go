package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/novaops/redstream/pkg/api/response"
	"github.com/novaops/redstream/pkg/broker"
	"github.com/novaops/redstream/pkg/logger"
	"github.com/novaops/redstream/pkg/stream"
)

const (
	defaultMaxTails     = 100
	defaultTailBlock    = 5 * time.Second
	defaultTailBatch    = 64
	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
)

// TailConfig configures the live tail endpoint.
type TailConfig struct {
	// AllowedOrigins lists Origin header values allowed to connect.
	// Empty allows same-host browsers only.
	AllowedOrigins []string

	// MaxTails caps concurrent tail connections.
	MaxTails int

	// Block is the per-iteration blocking read budget. It must stay
	// well below the ping interval so keepalives are never starved.
	Block time.Duration

	PingInterval time.Duration
	PongTimeout  time.Duration
}

// TailMetrics counts active tail connections.
type TailMetrics interface {
	IncActiveTails()
	DecActiveTails()
}

type nopTailMetrics struct{}

func (nopTailMetrics) IncActiveTails() {}
func (nopTailMetrics) DecActiveTails() {}

// tailFrame is one websocket frame sent to the client. Type is "message"
// for a delivered entry or "error" for a terminal failure.
type tailFrame struct {
	Type    string          `json:"type"`
	Stream  string          `json:"stream,omitempty"`
	Message *stream.Message `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// TailHandler serves GET /ws/streams/{stream}: it upgrades to a
// websocket and pushes every message appended to the stream, one frame
// per message. The cursor lives in this handler's loop, never in shared
// state, so each connection tails independently. Messages are read from
// the backing store, not an in-process bus; publishes from other
// processes are delivered too.
type TailHandler struct {
	service      *broker.Service
	log          logger.Logger
	metrics      TailMetrics
	upgrader     websocket.Upgrader
	slots        chan struct{}
	block        time.Duration
	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration
}

// NewTailHandler creates a tail handler.
func NewTailHandler(svc *broker.Service, log logger.Logger, cfg TailConfig) *TailHandler {
	if cfg.MaxTails <= 0 {
		cfg.MaxTails = defaultMaxTails
	}
	if cfg.Block <= 0 {
		cfg.Block = defaultTailBlock
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}

	h := &TailHandler{
		service:      svc,
		log:          log,
		metrics:      nopTailMetrics{},
		slots:        make(chan struct{}, cfg.MaxTails),
		block:        cfg.Block,
		pingInterval: cfg.PingInterval,
		pongTimeout:  cfg.PongTimeout,
		writeTimeout: defaultWriteTimeout,
	}

	allowedOrigins := append([]string(nil), cfg.AllowedOrigins...)
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return tailOriginAllowed(r, allowedOrigins)
		},
	}

	return h
}

// SetMetrics sets the tail connection counter.
func (h *TailHandler) SetMetrics(m TailMetrics) {
	if m != nil {
		h.metrics = m
	}
}

// ServeHTTP upgrades the request and runs the tail loop until the client
// disconnects or the stream read fails.
func (h *TailHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	streamName := chi.URLParam(r, "stream")
	sinceID := r.URL.Query().Get("since_id")

	// Validate before upgrading so a bad stream name gets a proper HTTP
	// error instead of a dropped socket.
	if _, err := h.service.Gateway().Validator().Validate(streamName); err != nil {
		response.DomainError(w, err, getRequestID(ctx))
		return
	}

	select {
	case h.slots <- struct{}{}:
	default:
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable,
			"tail connection limit reached", getRequestID(ctx))
		return
	}
	defer func() { <-h.slots }()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "stream", streamName, "error", err)
		return
	}
	defer conn.Close()

	h.metrics.IncActiveTails()
	defer h.metrics.DecActiveTails()

	h.log.Debug("tail started", "stream", streamName, "since_id", sinceID)
	h.tail(ctx, conn, streamName, sinceID)
	h.log.Debug("tail finished", "stream", streamName)
}

func (h *TailHandler) tail(ctx context.Context, conn *websocket.Conn, streamName, sinceID string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readDeadline := h.pingInterval + h.pongTimeout + h.block
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	// The client never sends data frames; this loop surfaces closes and
	// keeps the pong handler running. Closing the connection unblocks it.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	cursor, err := h.resolveCursor(ctx, streamName, sinceID)
	if err != nil {
		h.writeFrame(conn, tailFrame{Type: "error", Stream: streamName, Error: tailErrorText(err)})
		return
	}

	pings := time.NewTicker(h.pingInterval)
	defer pings.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pings.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(h.writeTimeout)); err != nil {
				return
			}
		default:
		}

		messages, err := h.service.Read(ctx, streamName, stream.ReadOptions{
			Count:   defaultTailBatch,
			SinceID: cursor,
			Block:   h.block,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.log.Warn("tail read failed", "stream", streamName, "error", err)
			h.writeFrame(conn, tailFrame{Type: "error", Stream: streamName, Error: tailErrorText(err)})
			return
		}

		for i := range messages {
			msg := messages[i]
			if !h.writeFrame(conn, tailFrame{Type: "message", Stream: streamName, Message: &msg}) {
				return
			}
			cursor = msg.ID
		}
	}
}

// resolveCursor pins the tail position before the read loop. An explicit
// since_id wins; otherwise the cursor is the newest existing id, so the
// tail starts at "now" without skipping entries published between loop
// iterations. An empty stream starts from the beginning.
func (h *TailHandler) resolveCursor(ctx context.Context, streamName, sinceID string) (string, error) {
	if sinceID != "" {
		return sinceID, nil
	}
	newest, err := h.service.Read(ctx, streamName, stream.ReadOptions{Count: 1, Reverse: true})
	if err != nil {
		return "", err
	}
	if len(newest) == 0 {
		return "0", nil
	}
	return newest[0].ID, nil
}

// writeFrame sends one frame, reporting false when the connection is gone.
func (h *TailHandler) writeFrame(conn *websocket.Conn, frame tailFrame) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	return conn.WriteJSON(frame) == nil
}

// tailErrorText mirrors the HTTP error mapping: client mistakes carry
// the domain error text, server-side failures stay generic.
func tailErrorText(err error) string {
	status, _ := response.DomainStatus(err)
	switch status {
	case http.StatusServiceUnavailable:
		return response.UnavailableMessage
	case http.StatusInternalServerError:
		return "internal server error"
	}
	return err.Error()
}

func tailOriginAllowed(r *http.Request, allowedOrigins []string) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}

	for _, allowed := range allowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(originURL.Host, r.Host)
}
