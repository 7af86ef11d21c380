package adapters

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"route-tracker/internal/core/storage"
	"route-tracker/internal/features/offline/domain"
	"route-tracker/internal/features/offline/ports"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeBackends builds each Store implementation so the whole contract is
// exercised against both.
func storeBackends(t *testing.T) map[string]ports.Store {
	t.Helper()

	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	sqliteStore, err := NewSQLiteStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	mr := miniredis.RunT(t)
	client, err := storage.NewRedisClient("redis://" + mr.Addr())
	require.NoError(t, err)
	redisStore := NewRedisStore(client)
	t.Cleanup(func() { redisStore.Close() })

	return map[string]ports.Store{
		"sqlite": sqliteStore,
		"redis":  redisStore,
	}
}

func newRecord(kind domain.RecordKind, sessionID string, createdAt time.Time) *domain.Record {
	payload, _ := json.Marshal(map[string]string{"session_id": sessionID})
	if kind == domain.KindSampleBatch {
		payload, _ = json.Marshal([]map[string]string{{"session_id": sessionID}})
	}
	return &domain.Record{
		LocalID:   uuid.NewString(),
		Kind:      kind,
		SessionID: sessionID,
		Payload:   payload,
		CreatedAt: createdAt.UTC(),
	}
}

// TestStore_InsertGet verifies the round trip on both backends.
func TestStore_InsertGet(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := newRecord(domain.KindSession, "sess-1", time.Now())

			require.NoError(t, store.Insert(ctx, rec))

			got, err := store.Get(ctx, rec.LocalID)
			require.NoError(t, err)
			assert.Equal(t, rec.LocalID, got.LocalID)
			assert.Equal(t, domain.KindSession, got.Kind)
			assert.Equal(t, "sess-1", got.SessionID)
			assert.False(t, got.Synced)
			assert.Equal(t, 0, got.SyncAttempts)
		})
	}
}

// TestStore_GetNotFound verifies the sentinel error.
func TestStore_GetNotFound(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), "missing")
			assert.ErrorIs(t, err, domain.ErrRecordNotFound)
		})
	}
}

// TestStore_UpdateNotFound verifies updating an unknown record fails.
func TestStore_UpdateNotFound(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			rec := newRecord(domain.KindSession, "sess-x", time.Now())
			err := store.Update(context.Background(), rec)
			assert.ErrorIs(t, err, domain.ErrRecordNotFound)
		})
	}
}

// TestStore_ListUnsyncedOrdering verifies oldest-first ordering and that
// synced/failed records are excluded.
func TestStore_ListUnsyncedOrdering(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now()

			newest := newRecord(domain.KindSession, "sess-newest", base.Add(2*time.Hour))
			oldest := newRecord(domain.KindSession, "sess-oldest", base)
			middle := newRecord(domain.KindSession, "sess-middle", base.Add(time.Hour))
			syncedRec := newRecord(domain.KindSession, "sess-synced", base)
			syncedRec.Synced = true
			failedRec := newRecord(domain.KindSession, "sess-failed", base)
			failedRec.Failed = true
			otherKind := newRecord(domain.KindSampleBatch, "sess-batch", base)

			for _, rec := range []*domain.Record{newest, oldest, middle, syncedRec, failedRec, otherKind} {
				require.NoError(t, store.Insert(ctx, rec))
			}

			records, err := store.ListUnsynced(ctx, domain.KindSession)
			require.NoError(t, err)
			require.Len(t, records, 3)
			assert.Equal(t, "sess-oldest", records[0].SessionID)
			assert.Equal(t, "sess-middle", records[1].SessionID)
			assert.Equal(t, "sess-newest", records[2].SessionID)
		})
	}
}

// TestStore_ListFailed verifies failure listing excludes acknowledged records.
func TestStore_ListFailed(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			failed := newRecord(domain.KindSession, "sess-f", time.Now())
			failed.Failed = true
			acked := newRecord(domain.KindSession, "sess-a", time.Now())
			acked.Failed = true
			acked.Acknowledged = true

			require.NoError(t, store.Insert(ctx, failed))
			require.NoError(t, store.Insert(ctx, acked))

			records, err := store.ListFailed(ctx)
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, "sess-f", records[0].SessionID)
		})
	}
}

// TestStore_FindOpenBatch verifies sealed/synced batches are skipped.
func TestStore_FindOpenBatch(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.FindOpenBatch(ctx, "sess-1")
			assert.ErrorIs(t, err, domain.ErrRecordNotFound)

			sealed := newRecord(domain.KindSampleBatch, "sess-1", time.Now())
			sealed.Sealed = true
			require.NoError(t, store.Insert(ctx, sealed))

			_, err = store.FindOpenBatch(ctx, "sess-1")
			assert.ErrorIs(t, err, domain.ErrRecordNotFound)

			open := newRecord(domain.KindSampleBatch, "sess-1", time.Now().Add(time.Second))
			require.NoError(t, store.Insert(ctx, open))

			got, err := store.FindOpenBatch(ctx, "sess-1")
			require.NoError(t, err)
			assert.Equal(t, open.LocalID, got.LocalID)
		})
	}
}

// TestStore_FindSessionRecord verifies session record lookup by session ID.
func TestStore_FindSessionRecord(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.FindSessionRecord(ctx, "sess-1")
			assert.ErrorIs(t, err, domain.ErrRecordNotFound)

			rec := newRecord(domain.KindSession, "sess-1", time.Now())
			require.NoError(t, store.Insert(ctx, rec))

			got, err := store.FindSessionRecord(ctx, "sess-1")
			require.NoError(t, err)
			assert.Equal(t, rec.LocalID, got.LocalID)

			got.Synced = true
			require.NoError(t, store.Update(ctx, got))

			_, err = store.FindSessionRecord(ctx, "sess-1")
			assert.ErrorIs(t, err, domain.ErrRecordNotFound)
		})
	}
}

// TestStore_DeleteSyncedBefore verifies retention purge never touches
// unsynced records.
func TestStore_DeleteSyncedBefore(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			old := time.Now().Add(-100 * time.Hour)

			oldSynced := newRecord(domain.KindSession, "sess-old-synced", old)
			oldSynced.Synced = true
			oldUnsynced := newRecord(domain.KindSession, "sess-old-unsynced", old)
			freshSynced := newRecord(domain.KindSession, "sess-fresh-synced", time.Now())
			freshSynced.Synced = true

			for _, rec := range []*domain.Record{oldSynced, oldUnsynced, freshSynced} {
				require.NoError(t, store.Insert(ctx, rec))
			}

			n, err := store.DeleteSyncedBefore(ctx, time.Now().Add(-72*time.Hour))
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			_, err = store.Get(ctx, oldSynced.LocalID)
			assert.ErrorIs(t, err, domain.ErrRecordNotFound)

			_, err = store.Get(ctx, oldUnsynced.LocalID)
			assert.NoError(t, err)
			_, err = store.Get(ctx, freshSynced.LocalID)
			assert.NoError(t, err)
		})
	}
}
