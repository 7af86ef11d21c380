package service

import (
	"sync"

	"route-tracker/internal/features/session/domain"
)

// Bus is a minimal synchronous fan-out of session events to any number of
// independent listeners.
type Bus struct {
	mu        sync.RWMutex
	listeners []domain.Listener
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a listener for all future events.
func (b *Bus) Subscribe(l domain.Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Publish delivers the event to every listener in subscription order.
func (b *Bus) Publish(e domain.Event) {
	b.mu.RLock()
	listeners := make([]domain.Listener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.RUnlock()

	for _, l := range listeners {
		l.OnSessionEvent(e)
	}
}
