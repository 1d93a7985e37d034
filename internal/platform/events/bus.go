// Package events is a small in-process event dispatcher.
package events

import (
	"context"
	"sync"
)

// Event is anything with a stable name listeners can subscribe to.
type Event interface {
	EventName() string
}

// Listener handles an event. Returning false asks Until callers to halt;
// Dispatch ignores the result.
type Listener func(ctx context.Context, event Event) bool

// Bus dispatches events to listeners registered by name. Safe for concurrent use.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
}

func NewBus() *Bus {
	return &Bus{listeners: make(map[string][]Listener)}
}

// Listen registers l for events named name, after any existing listeners.
func (b *Bus) Listen(name string, l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[name] = append(b.listeners[name], l)
}

// Forget removes every listener for name.
func (b *Bus) Forget(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners, name)
}

// HasListeners reports whether anything listens for name.
func (b *Bus) HasListeners(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[name]) > 0
}

// Dispatch calls every listener for the event in registration order.
func (b *Bus) Dispatch(ctx context.Context, event Event) {
	for _, l := range b.snapshot(event.EventName()) {
		l(ctx, event)
	}
}

// Until calls listeners in order and stops at the first one that returns
// false, reporting false. With no veto it reports true.
func (b *Bus) Until(ctx context.Context, event Event) bool {
	for _, l := range b.snapshot(event.EventName()) {
		if !l(ctx, event) {
			return false
		}
	}
	return true
}

func (b *Bus) snapshot(name string) []Listener {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Listener(nil), b.listeners[name]...)
}
