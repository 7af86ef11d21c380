package adapters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"route-tracker/internal/features/offline/domain"
)

// SQLiteStore implements the Store port on a local sqlite database.
// This is the primary backend: offline-first means the queue must survive
// process restarts and power loss on the device.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS offline_records (
	local_id          TEXT PRIMARY KEY,
	kind              TEXT NOT NULL,
	session_id        TEXT NOT NULL,
	payload           BLOB NOT NULL,
	synced            INTEGER NOT NULL DEFAULT 0,
	sync_attempts     INTEGER NOT NULL DEFAULT 0,
	last_sync_attempt INTEGER,
	last_error        TEXT NOT NULL DEFAULT '',
	failed            INTEGER NOT NULL DEFAULT 0,
	acknowledged      INTEGER NOT NULL DEFAULT 0,
	sealed            INTEGER NOT NULL DEFAULT 0,
	created_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_offline_unsynced
	ON offline_records (kind, synced, failed, created_at);
CREATE INDEX IF NOT EXISTS idx_offline_session
	ON offline_records (session_id, kind);
`

// NewSQLiteStore creates the store and its schema on the given database.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to create offline_records schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

const recordColumns = `local_id, kind, session_id, payload, synced, sync_attempts,
	last_sync_attempt, last_error, failed, acknowledged, sealed, created_at`

// Insert persists a new record.
func (s *SQLiteStore) Insert(ctx context.Context, rec *domain.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO offline_records (`+recordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.LocalID, string(rec.Kind), rec.SessionID, []byte(rec.Payload),
		boolInt(rec.Synced), rec.SyncAttempts, nullableUnix(rec.LastSyncAttempt),
		rec.LastError, boolInt(rec.Failed), boolInt(rec.Acknowledged),
		boolInt(rec.Sealed), rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert offline record %s: %w", rec.LocalID, err)
	}
	return nil
}

// Update rewrites an existing record.
func (s *SQLiteStore) Update(ctx context.Context, rec *domain.Record) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE offline_records SET
			payload = ?, synced = ?, sync_attempts = ?, last_sync_attempt = ?,
			last_error = ?, failed = ?, acknowledged = ?, sealed = ?
		 WHERE local_id = ?`,
		[]byte(rec.Payload), boolInt(rec.Synced), rec.SyncAttempts,
		nullableUnix(rec.LastSyncAttempt), rec.LastError, boolInt(rec.Failed),
		boolInt(rec.Acknowledged), boolInt(rec.Sealed), rec.LocalID,
	)
	if err != nil {
		return fmt.Errorf("failed to update offline record %s: %w", rec.LocalID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

// Get loads one record by local ID.
func (s *SQLiteStore) Get(ctx context.Context, localID string) (*domain.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM offline_records WHERE local_id = ?`, localID)
	return scanRecord(row)
}

// ListUnsynced returns unsynced, non-failed records of the given kind,
// oldest first.
func (s *SQLiteStore) ListUnsynced(ctx context.Context, kind domain.RecordKind) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM offline_records
		 WHERE kind = ? AND synced = 0 AND failed = 0
		 ORDER BY created_at ASC`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list unsynced records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListFailed returns permanently failed, unacknowledged records.
func (s *SQLiteStore) ListFailed(ctx context.Context) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM offline_records
		 WHERE failed = 1 AND acknowledged = 0
		 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// FindOpenBatch returns the session's unsynced, unsealed sample batch.
func (s *SQLiteStore) FindOpenBatch(ctx context.Context, sessionID string) (*domain.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM offline_records
		 WHERE session_id = ? AND kind = ? AND synced = 0 AND sealed = 0 AND failed = 0
		 ORDER BY created_at DESC LIMIT 1`,
		sessionID, string(domain.KindSampleBatch))
	return scanRecord(row)
}

// FindSessionRecord returns the session's unsynced session record.
func (s *SQLiteStore) FindSessionRecord(ctx context.Context, sessionID string) (*domain.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM offline_records
		 WHERE session_id = ? AND kind = ? AND synced = 0
		 ORDER BY created_at DESC LIMIT 1`,
		sessionID, string(domain.KindSession))
	return scanRecord(row)
}

// DeleteSyncedBefore removes synced records created before the cutoff.
func (s *SQLiteStore) DeleteSyncedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM offline_records WHERE synced = 1 AND created_at < ?`,
		cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to purge synced records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.Record, error) {
	var (
		rec         domain.Record
		kind        string
		payload     []byte
		synced      int
		lastAttempt sql.NullInt64
		failed      int
		acked       int
		sealed      int
		createdAt   int64
	)
	err := row.Scan(&rec.LocalID, &kind, &rec.SessionID, &payload, &synced,
		&rec.SyncAttempts, &lastAttempt, &rec.LastError, &failed, &acked,
		&sealed, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan offline record: %w", err)
	}

	rec.Kind = domain.RecordKind(kind)
	rec.Payload = payload
	rec.Synced = synced == 1
	rec.Failed = failed == 1
	rec.Acknowledged = acked == 1
	rec.Sealed = sealed == 1
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	if lastAttempt.Valid {
		ts := time.Unix(0, lastAttempt.Int64).UTC()
		rec.LastSyncAttempt = &ts
	}
	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]domain.Record, error) {
	var records []domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate offline records: %w", err)
	}
	return records, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}
