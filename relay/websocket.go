package relay

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/justapithecus/mavbridge/log"
	"github.com/justapithecus/mavbridge/metrics"
)

// DefaultWSPort is the WebSocket listen port when none is configured.
const DefaultWSPort = 8811

// WSConfig tunes the WebSocket endpoint. Zero values take defaults.
type WSConfig struct {
	// Path is the upgrade path. Empty accepts any path.
	Path string
	// SendQueue is the per-session outbound queue length.
	SendQueue int
	// ReadLimit caps inbound message size in bytes.
	ReadLimit int64
	// WriteTimeout bounds one outbound write.
	WriteTimeout time.Duration
	// PingInterval enables keepalive pings; a peer silent for two
	// intervals is dropped. Zero disables pings.
	PingInterval time.Duration
}

func (c WSConfig) withDefaults() WSConfig {
	if c.SendQueue <= 0 {
		c.SendQueue = DefaultSendQueue
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = MaxDatagram
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	return c
}

// SessionHandler receives session lifecycle and inbound data.
// Message runs on the session's read goroutine; the next message is not
// read until it returns.
type SessionHandler interface {
	Opened(s *Session)
	Message(ctx context.Context, s *Session, data []byte)
	Closed(s *Session)
}

// Session is one WebSocket client.
type Session struct {
	ID     string
	Remote string

	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// Enqueue queues data for sending without blocking. It reports false when
// the queue is full or the session is closing.
func (s *Session) Enqueue(data []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// Close asks the session to shut down. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Done is closed once the session starts shutting down.
func (s *Session) Done() <-chan struct{} { return s.done }

// WSServer upgrades HTTP requests to relay sessions.
type WSServer struct {
	cfg       WSConfig
	hub       *Hub
	handler   SessionHandler
	upgrader  websocket.Upgrader
	logger    *log.Logger
	collector *metrics.Collector
}

// NewWSServer creates the endpoint. Sessions register with hub.
func NewWSServer(cfg WSConfig, hub *Hub, handler SessionHandler, logger *log.Logger, collector *metrics.Collector) *WSServer {
	if logger == nil {
		logger = log.Nop()
	}
	return &WSServer{
		cfg:     cfg.withDefaults(),
		hub:     hub,
		handler: handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// the browser frontend may be served from another port
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:    logger,
		collector: collector,
	}
}

// ServeHTTP implements http.Handler. It blocks for the session's lifetime.
func (s *WSServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Path != "" && r.URL.Path != s.cfg.Path {
		http.NotFound(w, r)
		return
	}
	if s.hub.Len() >= s.hub.maxClients {
		s.reject(w, r)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied
		s.logger.Warn("websocket upgrade failed", map[string]any{
			"remote": r.RemoteAddr,
			"error":  err.Error(),
		})
		return
	}
	conn.SetReadLimit(s.cfg.ReadLimit)

	sess := &Session{
		ID:     uuid.NewString(),
		Remote: r.RemoteAddr,
		conn:   conn,
		send:   make(chan []byte, s.cfg.SendQueue),
		done:   make(chan struct{}),
	}
	if err := s.hub.Add(sess); err != nil {
		s.collector.IncSessionRejected()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	logger := s.logger.With(map[string]any{
		"session_id": sess.ID,
		"transport":  "ws",
		"remote":     sess.Remote,
	})
	s.collector.IncSessionOpened()
	logger.Info("session opened", nil)
	s.handler.Opened(sess)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(sess, logger)
	}()

	s.readLoop(r.Context(), sess, logger)

	sess.Close()
	<-writerDone
	s.hub.Remove(sess.ID)
	s.handler.Closed(sess)
	s.collector.IncSessionClosed()
	logger.Info("session closed", nil)
}

func (s *WSServer) reject(w http.ResponseWriter, r *http.Request) {
	s.collector.IncSessionRejected()
	s.logger.Warn("session rejected", map[string]any{
		"remote": r.RemoteAddr,
		"reason": ErrHubFull.Error(),
	})
	http.Error(w, ErrHubFull.Error(), http.StatusServiceUnavailable)
}

func (s *WSServer) readLoop(ctx context.Context, sess *Session, logger *log.Logger) {
	if s.cfg.PingInterval > 0 {
		wait := 2 * s.cfg.PingInterval
		_ = sess.conn.SetReadDeadline(time.Now().Add(wait))
		sess.conn.SetPongHandler(func(string) error {
			return sess.conn.SetReadDeadline(time.Now().Add(wait))
		})
	}

	for {
		kind, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Warn("session read failed", map[string]any{"error": err.Error()})
			}
			return
		}
		if kind != websocket.BinaryMessage {
			logger.Debug("ignoring non-binary message", map[string]any{"type": kind})
			continue
		}
		s.collector.IncWSIn()
		s.handler.Message(ctx, sess, data)
	}
}

// writeLoop owns all writes to the connection and closes it on exit,
// which unblocks the read loop.
func (s *WSServer) writeLoop(sess *Session, logger *log.Logger) {
	defer func() { _ = sess.conn.Close() }()

	var ping <-chan time.Time
	if s.cfg.PingInterval > 0 {
		t := time.NewTicker(s.cfg.PingInterval)
		defer t.Stop()
		ping = t.C
	}

	for {
		select {
		case <-sess.done:
			_ = sess.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay closing"),
				time.Now().Add(time.Second))
			return
		case data := <-sess.send:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := sess.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				logger.Warn("session write failed", map[string]any{"error": err.Error()})
				sess.Close()
				return
			}
			s.collector.IncWSOut()
		case <-ping:
			if err := sess.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				sess.Close()
				return
			}
		}
	}
}
