// Package events provides a small synchronous publish/subscribe bus used to
// fan out ad lifecycle notifications.
//
// Handlers run on the publisher's goroutine in the order they subscribed.
// Each subscription is released explicitly through Unsubscribe, so owners can
// tear down deterministically instead of relying on garbage collection.
package events

import (
	"sync"

	"github.com/patrickwarner/admediation/internal/models"
)

// Handler receives a published event.
type Handler func(models.Event)

type subscription struct {
	id int64
	fn Handler
}

// Bus is a thread-safe, ordered fan-out of events.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID int64
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	once sync.Once
	bus  *Bus
	id   int64
}

// Unsubscribe removes the handler. It is safe to call more than once and from
// inside a handler.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	s.once.Do(func() { s.bus.remove(s.id) })
}

// Subscribe registers fn and returns its subscription.
func (b *Bus) Subscribe(fn Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, fn: fn})
	return &Subscription{bus: b, id: id}
}

func (b *Bus) remove(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every current subscriber in subscription order.
func (b *Bus) Publish(ev models.Event) {
	b.mu.RLock()
	// copy to avoid holding the lock during callbacks
	handlers := make([]Handler, len(b.subs))
	for i, s := range b.subs {
		handlers[i] = s.fn
	}
	b.mu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Clear drops every subscription.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = nil
}
