package event

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
)

// Handler is a function that handles an event.
type Handler func(Event)

// Matcher selects the events a subscription receives. A nil Matcher
// receives every event.
type Matcher func(Event) bool

// OfType matches events of any of the given types.
func OfType(types ...string) Matcher {
	return func(e Event) bool {
		return slices.Contains(types, e.EventType())
	}
}

// ForTask matches the task events of one task.
func ForTask(taskID string) Matcher {
	return func(e Event) bool {
		te, ok := e.(TaskEvent)
		return ok && te.Task() == taskID
	}
}

type subscription struct {
	id      string
	match   Matcher
	handler Handler
}

// Bus is a synchronous pub-sub event bus. Publish may be called from any
// number of goroutines; each call delivers to matching handlers in
// registration order on the caller's goroutine.
type Bus struct {
	mu        sync.RWMutex
	subs      []subscription
	nextID    atomic.Uint64
	published atomic.Uint64
	logger    *slog.Logger
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the logger used to report handler panics.
func WithLogger(logger *slog.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBus creates a new event bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for one event type and returns its
// subscription ID.
func (b *Bus) Subscribe(eventType string, handler Handler) string {
	return b.SubscribeFunc(OfType(eventType), handler)
}

// SubscribeAll registers a handler for every event.
func (b *Bus) SubscribeAll(handler Handler) string {
	return b.SubscribeFunc(nil, handler)
}

// SubscribeTask registers a handler for the events of one task.
func (b *Bus) SubscribeTask(taskID string, handler Handler) string {
	return b.SubscribeFunc(ForTask(taskID), handler)
}

// SubscribeFunc registers a handler for the events match accepts.
func (b *Bus) SubscribeFunc(match Matcher, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := fmt.Sprintf("sub-%d", b.nextID.Add(1))
	b.subs = append(b.subs, subscription{id: id, match: match, handler: handler})
	return id
}

// Unsubscribe removes a subscription by ID.
// Returns true if the subscription was found and removed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := slices.IndexFunc(b.subs, func(s subscription) bool { return s.id == id })
	if i < 0 {
		return false
	}
	// Publish works on snapshots, so the backing array must not be reused.
	b.subs = slices.Concat(b.subs[:i], b.subs[i+1:])
	return true
}

// Publish dispatches an event to every matching handler. A panicking handler
// is logged and skipped; delivery continues with the next one.
func (b *Bus) Publish(event Event) {
	b.published.Add(1)

	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.match == nil || sub.match(event) {
			b.safeCall(sub.handler, event)
		}
	}
}

func (b *Bus) safeCall(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", event.EventType(),
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	handler(event)
}

// Published returns how many events have been published.
func (b *Bus) Published() uint64 {
	return b.published.Load()
}

// Clear removes all subscriptions.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = nil
}

// SubscriptionCount returns the number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
