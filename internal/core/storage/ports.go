package storage

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by Get for missing keys.
var ErrKeyNotFound = errors.New("key not found")

// KV defines a small key-value storage port following hexagonal architecture.
// It backs operator alerts and any other single-key state; the offline queue
// uses its own richer store port.
type KV interface {
	// Get retrieves a value by key.
	// Returns the stored value or an error if not found or on failure.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value under the given key with the specified TTL.
	// TTL of 0 means no expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value by key.
	Delete(ctx context.Context, key string) error

	// Ping checks if the store is reachable.
	Ping(ctx context.Context) error

	// Close closes the underlying connection.
	Close() error
}
