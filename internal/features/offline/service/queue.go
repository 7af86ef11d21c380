package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"route-tracker/internal/core/logger"
	"route-tracker/internal/features/offline/domain"
	"route-tracker/internal/features/offline/ports"
	sessiondomain "route-tracker/internal/features/session/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config holds the queue tunables.
type Config struct {
	// MaxSyncAttempts is the per-record ceiling before a record is flagged
	// as permanently failed.
	MaxSyncAttempts int
	// BatchSize seals a sample batch once it holds this many samples.
	BatchSize int
}

// Queue is the durable, synced-aware buffer between the tracking path and
// the sync engine. It owns record payloads; the engine only drives the
// bookkeeping through MarkSynced/MarkAttempt/MarkSamplesSynced.
type Queue struct {
	mu    sync.Mutex
	store ports.Store
	cfg   Config
	log   *zap.Logger
	now   func() time.Time
}

// Option customizes a Queue.
type Option func(*Queue)

// WithClock injects a deterministic clock.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// NewQueue creates a Queue over the given store.
func NewQueue(store ports.Store, cfg Config, opts ...Option) *Queue {
	q := &Queue{
		store: store,
		cfg:   cfg,
		log:   logger.Named("offline_queue"),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// EnqueueSession persists the session's current state. While the session's
// record is still unsynced, repeated calls update it in place; once synced,
// a fresh record carries the newer state.
func (q *Queue) EnqueueSession(ctx context.Context, s sessiondomain.RouteSession) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	existing, err := q.store.FindSessionRecord(ctx, s.ID)
	switch {
	case err == nil:
		existing.Payload = payload
		return q.store.Update(ctx, existing)
	case errors.Is(err, domain.ErrRecordNotFound):
		rec := &domain.Record{
			LocalID:   uuid.NewString(),
			Kind:      domain.KindSession,
			SessionID: s.ID,
			Payload:   payload,
			CreatedAt: q.now().UTC(),
		}
		return q.store.Insert(ctx, rec)
	default:
		return err
	}
}

// AppendSample persists one sample into the session's open batch, starting
// a new batch when none is open or the current one is full.
func (q *Queue) AppendSample(ctx context.Context, s sessiondomain.GPSSample) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	batch, err := q.store.FindOpenBatch(ctx, s.SessionID)
	if errors.Is(err, domain.ErrRecordNotFound) {
		return q.insertBatch(ctx, s)
	}
	if err != nil {
		return err
	}

	samples, err := decodeSamples(batch.Payload)
	if err != nil {
		return err
	}
	samples = append(samples, s)

	payload, err := json.Marshal(samples)
	if err != nil {
		return fmt.Errorf("failed to marshal sample batch: %w", err)
	}
	batch.Payload = payload
	if len(samples) >= q.cfg.BatchSize {
		batch.Sealed = true
	}
	return q.store.Update(ctx, batch)
}

func (q *Queue) insertBatch(ctx context.Context, s sessiondomain.GPSSample) error {
	payload, err := json.Marshal([]sessiondomain.GPSSample{s})
	if err != nil {
		return fmt.Errorf("failed to marshal sample batch: %w", err)
	}
	rec := &domain.Record{
		LocalID:   uuid.NewString(),
		Kind:      domain.KindSampleBatch,
		SessionID: s.SessionID,
		Payload:   payload,
		Sealed:    q.cfg.BatchSize <= 1,
		CreatedAt: q.now().UTC(),
	}
	return q.store.Insert(ctx, rec)
}

// ListUnsynced returns unsynced records of the given kind, oldest first.
func (q *Queue) ListUnsynced(ctx context.Context, kind domain.RecordKind) ([]domain.Record, error) {
	return q.store.ListUnsynced(ctx, kind)
}

// ListFailed returns permanently failed records awaiting operator
// acknowledgement.
func (q *Queue) ListFailed(ctx context.Context) ([]domain.Record, error) {
	return q.store.ListFailed(ctx)
}

// MarkSynced flags a record as accepted by the server. Idempotent.
func (q *Queue) MarkSynced(ctx context.Context, localID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec, err := q.store.Get(ctx, localID)
	if err != nil {
		return err
	}
	if rec.Synced {
		return nil
	}
	rec.Synced = true
	rec.Failed = false
	rec.LastError = ""
	return q.store.Update(ctx, rec)
}

// MarkAttempt records a failed transmission attempt. It returns true when
// the record crossed the attempt ceiling and is now permanently failed;
// the record is retained either way.
func (q *Queue) MarkAttempt(ctx context.Context, localID string, errMsg string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec, err := q.store.Get(ctx, localID)
	if err != nil {
		return false, err
	}

	now := q.now().UTC()
	rec.SyncAttempts++
	rec.LastSyncAttempt = &now
	rec.LastError = errMsg

	permanent := rec.SyncAttempts >= q.cfg.MaxSyncAttempts
	if permanent {
		rec.Failed = true
		q.log.Warn("offline record permanently failed",
			zap.String("local_id", rec.LocalID),
			zap.String("session_id", rec.SessionID),
			zap.Int("attempts", rec.SyncAttempts),
			zap.String("last_error", errMsg),
		)
	}

	if err := q.store.Update(ctx, rec); err != nil {
		return false, err
	}
	return permanent, nil
}

// MarkSamplesSynced prunes the given sample indexes from a batch after a
// partially successful transmission. When nothing remains, the record is
// marked synced; otherwise the remaining samples stay queued in a sealed
// batch. Returns how many samples remain.
func (q *Queue) MarkSamplesSynced(ctx context.Context, localID string, syncedIdx []int) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec, err := q.store.Get(ctx, localID)
	if err != nil {
		return 0, err
	}
	if rec.Kind != domain.KindSampleBatch {
		return 0, fmt.Errorf("record %s is not a sample batch", localID)
	}

	samples, err := decodeSamples(rec.Payload)
	if err != nil {
		return 0, err
	}

	synced := make(map[int]bool, len(syncedIdx))
	for _, i := range syncedIdx {
		synced[i] = true
	}

	var remaining []sessiondomain.GPSSample
	for i, s := range samples {
		if !synced[i] {
			remaining = append(remaining, s)
		}
	}

	if len(remaining) == 0 {
		rec.Synced = true
		rec.LastError = ""
	} else {
		payload, err := json.Marshal(remaining)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal sample batch: %w", err)
		}
		rec.Payload = payload
		rec.Sealed = true
	}

	if err := q.store.Update(ctx, rec); err != nil {
		return 0, err
	}
	return len(remaining), nil
}

// Acknowledge dismisses a permanently failed record. The record is kept for
// audit but leaves the failure list.
func (q *Queue) Acknowledge(ctx context.Context, localID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec, err := q.store.Get(ctx, localID)
	if err != nil {
		return err
	}
	if !rec.Failed {
		return fmt.Errorf("record %s is not a permanent failure", localID)
	}
	rec.Acknowledged = true
	return q.store.Update(ctx, rec)
}

// PurgeSynced deletes synced records created before the cutoff. Unsynced
// records are never deleted regardless of age.
func (q *Queue) PurgeSynced(ctx context.Context, olderThan time.Time) (int, error) {
	n, err := q.store.DeleteSyncedBefore(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		q.log.Info("purged synced records", zap.Int("count", n))
	}
	return n, nil
}

// DecodeSession unwraps a session record's payload.
func (q *Queue) DecodeSession(rec domain.Record) (*sessiondomain.RouteSession, error) {
	if rec.Kind != domain.KindSession {
		return nil, fmt.Errorf("record %s is not a session record", rec.LocalID)
	}
	var s sessiondomain.RouteSession
	if err := json.Unmarshal(rec.Payload, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session payload: %w", err)
	}
	return &s, nil
}

// DecodeSamples unwraps a sample batch record's payload.
func (q *Queue) DecodeSamples(rec domain.Record) ([]sessiondomain.GPSSample, error) {
	if rec.Kind != domain.KindSampleBatch {
		return nil, fmt.Errorf("record %s is not a sample batch", rec.LocalID)
	}
	return decodeSamples(rec.Payload)
}

func decodeSamples(payload json.RawMessage) ([]sessiondomain.GPSSample, error) {
	var samples []sessiondomain.GPSSample
	if err := json.Unmarshal(payload, &samples); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sample batch payload: %w", err)
	}
	return samples, nil
}
