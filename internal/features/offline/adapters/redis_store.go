package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"route-tracker/internal/features/offline/domain"

	"github.com/redis/go-redis/v9"
)

const (
	redisRecordPrefix = "offline:record:"
	redisIndexKey     = "offline:index"
)

// RedisStore implements the Store port on Redis. Records are JSON values
// indexed by a sorted set scored on creation time, which gives the
// oldest-first ordering the sync engine relies on.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed offline store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Insert persists a new record.
func (s *RedisStore) Insert(ctx context.Context, rec *domain.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal offline record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, redisRecordPrefix+rec.LocalID, data, 0)
	pipe.ZAdd(ctx, redisIndexKey, redis.Z{
		Score:  float64(rec.CreatedAt.UnixNano()),
		Member: rec.LocalID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert offline record %s: %w", rec.LocalID, err)
	}
	return nil
}

// Update rewrites an existing record.
func (s *RedisStore) Update(ctx context.Context, rec *domain.Record) error {
	key := redisRecordPrefix + rec.LocalID

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to check offline record %s: %w", rec.LocalID, err)
	}
	if exists == 0 {
		return domain.ErrRecordNotFound
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal offline record: %w", err)
	}
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to update offline record %s: %w", rec.LocalID, err)
	}
	return nil
}

// Get loads one record by local ID.
func (s *RedisStore) Get(ctx context.Context, localID string) (*domain.Record, error) {
	data, err := s.client.Get(ctx, redisRecordPrefix+localID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get offline record %s: %w", localID, err)
	}

	var rec domain.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal offline record %s: %w", localID, err)
	}
	return &rec, nil
}

// ListUnsynced returns unsynced, non-failed records of the given kind,
// oldest first.
func (s *RedisStore) ListUnsynced(ctx context.Context, kind domain.RecordKind) ([]domain.Record, error) {
	return s.scan(ctx, func(rec *domain.Record) bool {
		return rec.Kind == kind && !rec.Synced && !rec.Failed
	})
}

// ListFailed returns permanently failed, unacknowledged records.
func (s *RedisStore) ListFailed(ctx context.Context) ([]domain.Record, error) {
	return s.scan(ctx, func(rec *domain.Record) bool {
		return rec.Failed && !rec.Acknowledged
	})
}

// FindOpenBatch returns the session's unsynced, unsealed sample batch.
func (s *RedisStore) FindOpenBatch(ctx context.Context, sessionID string) (*domain.Record, error) {
	matches, err := s.scan(ctx, func(rec *domain.Record) bool {
		return rec.Kind == domain.KindSampleBatch && rec.SessionID == sessionID &&
			!rec.Synced && !rec.Sealed && !rec.Failed
	})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, domain.ErrRecordNotFound
	}
	latest := matches[len(matches)-1]
	return &latest, nil
}

// FindSessionRecord returns the session's unsynced session record.
func (s *RedisStore) FindSessionRecord(ctx context.Context, sessionID string) (*domain.Record, error) {
	matches, err := s.scan(ctx, func(rec *domain.Record) bool {
		return rec.Kind == domain.KindSession && rec.SessionID == sessionID && !rec.Synced
	})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, domain.ErrRecordNotFound
	}
	latest := matches[len(matches)-1]
	return &latest, nil
}

// DeleteSyncedBefore removes synced records created before the cutoff.
func (s *RedisStore) DeleteSyncedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	records, err := s.scan(ctx, func(rec *domain.Record) bool {
		return rec.Synced && rec.CreatedAt.Before(cutoff)
	})
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, rec := range records {
		pipe := s.client.TxPipeline()
		pipe.Del(ctx, redisRecordPrefix+rec.LocalID)
		pipe.ZRem(ctx, redisIndexKey, rec.LocalID)
		if _, err := pipe.Exec(ctx); err != nil {
			return purged, fmt.Errorf("failed to purge offline record %s: %w", rec.LocalID, err)
		}
		purged++
	}
	return purged, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// scan walks the index oldest-first and returns records matching the filter.
func (s *RedisStore) scan(ctx context.Context, match func(*domain.Record) bool) ([]domain.Record, error) {
	ids, err := s.client.ZRange(ctx, redisIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read offline index: %w", err)
	}

	var records []domain.Record
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if errors.Is(err, domain.ErrRecordNotFound) {
			// Index entry without a value: tolerate and move on.
			continue
		}
		if err != nil {
			return nil, err
		}
		if match(rec) {
			records = append(records, *rec)
		}
	}
	return records, nil
}
