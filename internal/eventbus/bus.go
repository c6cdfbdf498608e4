// Package eventbus decouples the UI from request lifecycle internals via
// typed, best-effort notifications.
package eventbus

import (
	"sort"
	"sync"

	"github.com/mcpterm/mcpterm/internal/debug"
)

// Bus dispatches events to registered handlers. Delivery is best-effort and
// in-order per publisher: handlers run sequentially in priority order and
// handler errors never stop the chain.
type Bus struct {
	handlers []Handler
	mu       sync.RWMutex
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Register adds a handler. Handlers are sorted by priority on each Publish,
// so registration order does not matter.
func (b *Bus) Register(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish sends an event to all handlers that handle its type.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	matching := b.matchingHandlers(event.Type)
	b.mu.RUnlock()

	for _, h := range matching {
		if err := h.Handle(event); err != nil {
			debug.Logf("eventbus: handler %q error for %s: %v", h.ID(), event.Type, err)
		}
	}
}

// Handlers returns all registered handlers (for introspection).
func (b *Bus) Handlers() []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handler, len(b.handlers))
	copy(out, b.handlers)
	return out
}

func (b *Bus) matchingHandlers(t EventType) []Handler {
	var matched []Handler
	for _, h := range b.handlers {
		for _, ht := range h.Handles() {
			if ht == t {
				matched = append(matched, h)
				break
			}
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Priority() < matched[j].Priority()
	})
	return matched
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	Name     string
	Types    []EventType
	Prio     int
	Fn       func(Event) error
}

func (h *HandlerFunc) ID() string           { return h.Name }
func (h *HandlerFunc) Handles() []EventType { return h.Types }
func (h *HandlerFunc) Priority() int        { return h.Prio }
func (h *HandlerFunc) Handle(e Event) error { return h.Fn(e) }
