// Package dispatch routes decoded MAVLink messages to registered handlers.
//
// A Registry holds handlers and is shared by every session. Each session owns
// a Dispatcher (per-source sequence tracking) and a Pipeline (stream parser
// feeding the dispatcher). Handler failures are isolated: an error or panic in
// one handler never reaches other handlers or later messages.
package dispatch

import (
	"context"
	"sync"

	"github.com/justapithecus/mavbridge/mavlink"
)

// HandlerFunc handles one decoded message.
type HandlerFunc func(ctx context.Context, msg *mavlink.DecodedMessage) error

type entry struct {
	name string
	fn   HandlerFunc
}

// Registry maps message IDs to handlers. Safe for concurrent use; handlers
// registered after dispatch starts apply to subsequent messages.
type Registry struct {
	mu   sync.RWMutex
	byID map[mavlink.MessageID][]entry
	any  []entry
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[mavlink.MessageID][]entry)}
}

// Register adds a handler for one message ID. name labels the handler in logs.
func (r *Registry) Register(id mavlink.MessageID, name string, fn HandlerFunc) {
	r.mu.Lock()
	r.byID[id] = append(r.byID[id], entry{name: name, fn: fn})
	r.mu.Unlock()
}

// RegisterAny adds a catch-all handler that sees every decoded message after
// the ID-specific handlers.
func (r *Registry) RegisterAny(name string, fn HandlerFunc) {
	r.mu.Lock()
	r.any = append(r.any, entry{name: name, fn: fn})
	r.mu.Unlock()
}

// handlers returns the handlers for id in invocation order, and whether any
// of them is ID-specific.
func (r *Registry) handlers(id mavlink.MessageID) ([]entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specific := r.byID[id]
	out := make([]entry, 0, len(specific)+len(r.any))
	out = append(out, specific...)
	out = append(out, r.any...)
	return out, len(specific) > 0
}

// Handles reports whether an ID-specific handler is registered for id.
func (r *Registry) Handles(id mavlink.MessageID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID[id]) > 0
}
