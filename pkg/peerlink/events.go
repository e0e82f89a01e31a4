package peerlink

import (
	"sync"
	"time"
)

// EventKind discriminates client observations.
type EventKind string

const (
	// EventConnect fires when the push channel opens.
	EventConnect EventKind = "connect"
	// EventDisconnect fires when an open push channel drops.
	EventDisconnect EventKind = "disconnect"
	// EventError fires on terminal attach failures and undecodable frames.
	EventError EventKind = "error"
	// EventMessage fires for every decoded push frame.
	EventMessage EventKind = "message"
	// EventToolCall fires when the built-in tools/call handler runs.
	EventToolCall EventKind = "toolCall"
)

// Event is one immutable client observation, delivered in arrival order.
type Event struct {
	Kind   EventKind
	Time   time.Time
	Method string
	Tool   string
	Raw    []byte
	Err    error
}

// eventHub maps event kinds to subscriber callbacks.
type eventHub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[EventKind]map[uint64]func(Event)
}

// Subscribe registers a callback for one event kind and returns a function
// that removes the subscription.
func (c *Client) Subscribe(kind EventKind, fn func(Event)) func() {
	return c.events.subscribe(kind, fn)
}

func (h *eventHub) subscribe(kind EventKind, fn func(Event)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[EventKind]map[uint64]func(Event))
	}
	if h.subs[kind] == nil {
		h.subs[kind] = make(map[uint64]func(Event))
	}
	h.nextID++
	id := h.nextID
	h.subs[kind][id] = fn

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[kind], id)
	}
}

// emit delivers the event to every subscriber of its kind. Callbacks are
// snapshotted under the lock so a subscriber may unsubscribe during dispatch.
func (h *eventHub) emit(ev Event) {
	h.mu.Lock()
	callbacks := make([]func(Event), 0, len(h.subs[ev.Kind]))
	for _, fn := range h.subs[ev.Kind] {
		callbacks = append(callbacks, fn)
	}
	h.mu.Unlock()

	for _, fn := range callbacks {
		fn(ev)
	}
}
