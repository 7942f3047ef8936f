package event

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc/panics"
)

// Handler is a function that handles an event.
type Handler func(Event)

// PanicHandler receives panics recovered from event handlers.
type PanicHandler func(eventType string, recovered *panics.Recovered)

// Wildcard is the subscription key used by SubscribeAll.
const Wildcard = "*"

type subscription struct {
	id      string
	handler Handler
}

// Bus is a synchronous pub-sub event bus.
type Bus struct {
	mu        sync.RWMutex
	subs      map[string][]subscription // event type -> subscriptions
	nextID    atomic.Uint64
	published atomic.Uint64
	onPanic   PanicHandler
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithPanicHandler sets the function that receives handler panics. Without
// one, panics are recovered and counted but otherwise dropped.
func WithPanicHandler(fn PanicHandler) BusOption {
	return func(b *Bus) { b.onPanic = fn }
}

// NewBus creates a new event bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{subs: make(map[string][]subscription)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for a specific event type and returns an ID
// for Unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := fmt.Sprintf("sub-%d", b.nextID.Add(1))
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, handler: handler})
	return id
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) string {
	return b.Subscribe(Wildcard, handler)
}

// Unsubscribe removes a subscription by ID.
// Returns true if the subscription was found and removed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subs {
		for i, sub := range subs {
			if sub.id != id {
				continue
			}
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(b.subs, eventType)
			} else {
				b.subs[eventType] = next
			}
			return true
		}
	}
	return false
}

// Publish dispatches an event to the handlers subscribed to its type, then to
// wildcard handlers, each group in registration order.
func (b *Bus) Publish(e Event) {
	b.published.Add(1)

	b.mu.RLock()
	specific := b.subs[e.EventType()]
	wildcard := b.subs[Wildcard]
	b.mu.RUnlock()

	// Unsubscribe never mutates a published slice in place, so iterating the
	// snapshot without the lock is safe.
	for _, sub := range specific {
		b.deliver(sub.handler, e)
	}
	for _, sub := range wildcard {
		b.deliver(sub.handler, e)
	}
}

func (b *Bus) deliver(handler Handler, e Event) {
	var c panics.Catcher
	c.Try(func() { handler(e) })
	if r := c.Recovered(); r != nil && b.onPanic != nil {
		b.onPanic(e.EventType(), r)
	}
}

// Clear removes all subscriptions.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[string][]subscription)
}

// SubscriptionCount returns the total number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, subs := range b.subs {
		count += len(subs)
	}
	return count
}

// Published returns how many events have been published.
func (b *Bus) Published() uint64 {
	return b.published.Load()
}
