package ports

import (
	"context"
	"time"

	"route-tracker/internal/features/offline/domain"
)

// Store defines the durable persistence port for offline records following
// hexagonal architecture. Implementations must persist before returning and
// must order listings oldest-first by creation time.
type Store interface {
	// Insert persists a new record.
	Insert(ctx context.Context, rec *domain.Record) error

	// Update rewrites an existing record (payload and bookkeeping).
	// Returns domain.ErrRecordNotFound when the local ID is unknown.
	Update(ctx context.Context, rec *domain.Record) error

	// Get loads one record by local ID.
	Get(ctx context.Context, localID string) (*domain.Record, error)

	// ListUnsynced returns unsynced, non-failed records of the given kind,
	// oldest first.
	ListUnsynced(ctx context.Context, kind domain.RecordKind) ([]domain.Record, error)

	// ListFailed returns permanently failed, unacknowledged records.
	ListFailed(ctx context.Context) ([]domain.Record, error)

	// FindOpenBatch returns the unsynced, unsealed sample batch for the
	// session, or domain.ErrRecordNotFound.
	FindOpenBatch(ctx context.Context, sessionID string) (*domain.Record, error)

	// FindSessionRecord returns the unsynced session record for the
	// session, or domain.ErrRecordNotFound.
	FindSessionRecord(ctx context.Context, sessionID string) (*domain.Record, error)

	// DeleteSyncedBefore removes synced records created before the cutoff.
	// Unsynced records are never touched, regardless of age.
	DeleteSyncedBefore(ctx context.Context, cutoff time.Time) (int, error)

	// Close releases the underlying storage handle.
	Close() error
}
