package relay

import (
	"errors"
	"sort"
	"sync"

	"github.com/justapithecus/mavbridge/log"
	"github.com/justapithecus/mavbridge/metrics"
)

// Hub limits.
const (
	// DefaultMaxClients caps concurrent WebSocket sessions.
	DefaultMaxClients = 32
	// DefaultSendQueue is the per-session outbound queue length.
	DefaultSendQueue = 256
)

// Hub errors.
var (
	// ErrHubFull is returned by Add when MaxClients sessions are open.
	ErrHubFull = errors.New("max clients reached")
	// ErrHubClosed is returned by Add once CloseAll has been called.
	ErrHubClosed = errors.New("relay closing")
)

// Hub tracks open sessions by ID and fans outbound bytes out to them.
type Hub struct {
	maxClients int
	logger     *log.Logger
	collector  *metrics.Collector

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewHub creates a hub. maxClients <= 0 means DefaultMaxClients.
func NewHub(maxClients int, logger *log.Logger, collector *metrics.Collector) *Hub {
	if maxClients <= 0 {
		maxClients = DefaultMaxClients
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Hub{
		maxClients: maxClients,
		logger:     logger,
		collector:  collector,
		sessions:   make(map[string]*Session),
	}
}

// Add registers s, or returns ErrHubFull or ErrHubClosed.
func (h *Hub) Add(s *Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	if len(h.sessions) >= h.maxClients {
		return ErrHubFull
	}
	h.sessions[s.ID] = s
	return nil
}

// Remove unregisters the session with id. Unknown IDs are ignored.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
}

// Len returns the number of open sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// IDs returns the open session IDs, sorted.
func (h *Hub) IDs() []string {
	h.mu.RLock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Broadcast queues data on every session. A session whose queue is full
// misses this message; the drop is counted and the others still get it.
// Returns the number of sessions the data was queued for.
func (h *Hub) Broadcast(data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for _, s := range h.sessions {
		if s.Enqueue(data) {
			sent++
			continue
		}
		h.collector.IncWSSendDropped()
		h.logger.Debug("send queue full, dropping", map[string]any{"session_id": s.ID})
	}
	return sent
}

// CloseAll asks every session to close and refuses later Adds.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, s := range h.sessions {
		s.Close()
	}
}
