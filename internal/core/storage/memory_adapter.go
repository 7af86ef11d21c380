package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryAdapter is an in-process KV used when no Redis is configured.
// Alerts stored here do not survive a restart, which is acceptable for
// transient operator notices.
type MemoryAdapter struct {
	mu    sync.Mutex
	items map[string]memoryItem
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryAdapter creates an empty in-memory KV.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{items: make(map[string]memoryItem)}
}

// Get retrieves a value by key.
func (m *MemoryAdapter) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok || (!item.expiresAt.IsZero() && time.Now().After(item.expiresAt)) {
		delete(m.items, key)
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	out := make([]byte, len(item.value))
	copy(out, item.value)
	return out, nil
}

// Set stores a value under the given key. TTL of 0 means no expiration.
func (m *MemoryAdapter) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := memoryItem{value: make([]byte, len(value))}
	copy(item.value, value)
	if ttl > 0 {
		item.expiresAt = time.Now().Add(ttl)
	}
	m.items[key] = item
	return nil
}

// Delete removes a value by key.
func (m *MemoryAdapter) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// Ping always succeeds.
func (m *MemoryAdapter) Ping(context.Context) error { return nil }

// Close discards the stored items.
func (m *MemoryAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]memoryItem)
	return nil
}
