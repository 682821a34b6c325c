// Package channel maintains the single websocket push connection to
// the LMS backend and fans inbound events out to registered listeners.
package channel

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"lmsync/internal/domain"
	"lmsync/internal/metrics"
)

const (
	maxBackoff   = 30 * time.Second
	writeTimeout = 10 * time.Second
	// Pending acks are dropped after this long; the server either
	// answered or never will.
	ackTimeout = 15 * time.Second
	// stableConnAge is how long a connection must live before the
	// reconnect counter resets. A server that accepts the upgrade and
	// drops it right away keeps growing the backoff instead of being
	// redialed in a tight loop.
	stableConnAge = 30 * time.Second
)

// Socket implements domain.PushChannel over a gorilla/websocket client
// connection. It dials lazily when Start runs and reconnects with
// exponential backoff; consumers only ever observe Connected flipping.
type Socket struct {
	url    string
	token  string
	logger *slog.Logger

	connected atomic.Bool

	mu       sync.RWMutex
	handlers map[domain.HandlerID]func(domain.ServerEvent)
	nextID   int64

	writeMu sync.Mutex
	conn    *websocket.Conn

	ackMu   sync.Mutex
	ackSeq  int64
	pending map[int64]func(json.RawMessage)
}

// Config configures the socket.
type Config struct {
	URL    string // ws:// or wss:// endpoint
	Token  string // bearer token, sent as a header on dial
	Logger *slog.Logger
}

// New creates a Socket. No connection is made until Start.
func New(cfg Config) *Socket {
	return &Socket{
		url:      cfg.URL,
		token:    cfg.Token,
		logger:   cfg.Logger,
		handlers: make(map[domain.HandlerID]func(domain.ServerEvent)),
		pending:  make(map[int64]func(json.RawMessage)),
	}
}

var _ domain.PushChannel = (*Socket)(nil)

// Start dials and runs the read loop until ctx is cancelled,
// reconnecting on failure. It blocks; run it in its own goroutine.
func (s *Socket) Start(ctx context.Context) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if attempt > 0 {
			backoff := reconnectBackoff(attempt)
			s.logger.Warn("push channel down, reconnecting",
				"attempt", attempt, "backoff", backoff)
			metrics.Collector.Counter("lmsync_channel_reconnects_total",
				"Push channel reconnect attempts", "").Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		conn, err := s.dial(ctx)
		if err != nil {
			attempt++
			s.logger.Warn("push channel dial failed", "attempt", attempt, "err", err)
			continue
		}

		s.setConn(conn)
		s.logger.Info("push channel connected", "url", s.url)
		started := time.Now()

		s.readLoop(ctx, conn)

		s.clearConn(conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A dial that is accepted and dropped immediately is a failure
		// for backoff purposes, the same as a refused dial. Only a
		// connection that held for a while resets the counter.
		if time.Since(started) >= stableConnAge {
			attempt = 0
		}
		attempt++
	}
}

func (s *Socket) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if s.token != "" {
		header.Set("Authorization", "Bearer "+s.token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, s.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

func (s *Socket) setConn(conn *websocket.Conn) {
	s.writeMu.Lock()
	s.conn = conn
	s.writeMu.Unlock()
	s.connected.Store(true)
}

func (s *Socket) clearConn(conn *websocket.Conn) {
	s.connected.Store(false)
	s.writeMu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.writeMu.Unlock()
	conn.Close()
}

func (s *Socket) readLoop(ctx context.Context, conn *websocket.Conn) {
	// The watcher unblocks ReadMessage on cancellation and exits with
	// the loop, so a flapping server cannot accumulate one goroutine
	// per reconnect.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil &&
				websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Error("push channel read error", "err", err)
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.logger.Warn("invalid push frame", "err", err)
			continue
		}

		if f.Event == ackEvent {
			s.resolveAck(f)
			continue
		}

		ev, err := decodeServerEvent(f)
		if err != nil {
			s.logger.Warn("unhandled push event", "event", f.Event, "err", err)
			continue
		}
		metrics.Collector.Counter("lmsync_push_events_total",
			"Push events received", `event="`+f.Event+`"`).Inc()
		s.dispatch(ev)
	}
}

// dispatch calls every registered handler with panic recovery, so one
// broken consumer cannot kill the read loop.
func (s *Socket) dispatch(ev domain.ServerEvent) {
	s.mu.RLock()
	fns := make([]func(domain.ServerEvent), 0, len(s.handlers))
	for _, fn := range s.handlers {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("push handler panic", "panic", r)
				}
			}()
			fn(ev)
		}()
	}
}

// On registers fn for every inbound ServerEvent and returns an ID for Off.
func (s *Socket) On(fn func(domain.ServerEvent)) domain.HandlerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := domain.HandlerID("h-" + strconv.FormatInt(s.nextID, 10))
	s.handlers[id] = fn
	return id
}

// Off removes a listener registered with On.
func (s *Socket) Off(id domain.HandlerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, id)
}

// Connected reports whether the transport is currently up.
func (s *Socket) Connected() bool {
	return s.connected.Load()
}

// Emit sends a ClientEvent, failing fast with domain.ErrDisconnected
// when the connection is down so callers can fall back to REST.
func (s *Socket) Emit(ev domain.ClientEvent) error {
	if !s.Connected() {
		return domain.ErrDisconnected
	}

	var ackID int64
	if uc, ok := ev.(domain.UnreadCount); ok && uc.Ack != nil {
		ackID = s.registerAck(uc.Ack)
	}

	f, err := encodeClientEvent(ev, ackID)
	if err != nil {
		s.dropAck(ackID)
		return err
	}
	data, err := json.Marshal(f)
	if err != nil {
		s.dropAck(ackID)
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn == nil {
		s.dropAck(ackID)
		return domain.ErrDisconnected
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.dropAck(ackID)
		return err
	}
	metrics.Collector.Counter("lmsync_push_emits_total",
		"Client events emitted", `event="`+f.Event+`"`).Inc()
	return nil
}

func (s *Socket) registerAck(fn func(int)) int64 {
	s.ackMu.Lock()
	s.ackSeq++
	id := s.ackSeq
	s.pending[id] = func(data json.RawMessage) {
		var p ackPayload
		if err := json.Unmarshal(data, &p); err != nil {
			s.logger.Warn("invalid ack payload", "err", err)
			return
		}
		fn(p.UnreadCount)
	}
	s.ackMu.Unlock()

	time.AfterFunc(ackTimeout, func() {
		s.ackMu.Lock()
		delete(s.pending, id)
		s.ackMu.Unlock()
	})
	return id
}

// dropAck removes a pending ack whose emit never made it to the wire,
// instead of leaving it for the timeout sweep.
func (s *Socket) dropAck(id int64) {
	if id == 0 {
		return
	}
	s.ackMu.Lock()
	delete(s.pending, id)
	s.ackMu.Unlock()
}

func (s *Socket) resolveAck(f frame) {
	s.ackMu.Lock()
	fn, ok := s.pending[f.AckID]
	delete(s.pending, f.AckID)
	s.ackMu.Unlock()
	if !ok {
		s.logger.Debug("ack for unknown request", "ack_id", f.AckID)
		return
	}
	fn(f.Data)
}

// reconnectBackoff grows quadratically with jitter, capped at maxBackoff.
func reconnectBackoff(attempt int) time.Duration {
	base := time.Duration(attempt*attempt) * time.Second
	if base > maxBackoff {
		base = maxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(base/2 + 1)))
	return base + jitter
}
