package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// RecordKind discriminates the payload carried by an offline record.
type RecordKind string

const (
	// KindSession wraps a RouteSession awaiting transmission.
	KindSession RecordKind = "session"
	// KindSampleBatch wraps a batch of GPS samples awaiting transmission.
	KindSampleBatch RecordKind = "sample_batch"
)

var (
	// ErrRecordNotFound is returned when a local ID has no record.
	ErrRecordNotFound = errors.New("offline record not found")
	// ErrPermanentSyncFailure marks a record that exceeded the attempt
	// ceiling. It is surfaced, never silently dropped.
	ErrPermanentSyncFailure = errors.New("record exceeded max sync attempts")
)

// Record is the durable wrapper around a session or a sample batch.
// The queue owns payload; the sync engine only reads it and updates the
// bookkeeping fields through the queue.
type Record struct {
	// LocalID uniquely identifies the record on this device.
	LocalID string `json:"local_id"`
	// Kind discriminates the payload.
	Kind RecordKind `json:"kind"`
	// SessionID ties the record to its route session.
	SessionID string `json:"session_id"`
	// Payload is the serialized RouteSession or GPSSample slice.
	Payload json.RawMessage `json:"payload"`
	// Synced indicates the server has accepted this record.
	Synced bool `json:"synced"`
	// SyncAttempts counts transmission attempts.
	SyncAttempts int `json:"sync_attempts"`
	// LastSyncAttempt records when the last attempt was made.
	LastSyncAttempt *time.Time `json:"last_sync_attempt,omitempty"`
	// LastError keeps the most recent attempt's error string.
	LastError string `json:"last_error,omitempty"`
	// Failed marks the record as permanently failed (attempt ceiling hit).
	Failed bool `json:"failed"`
	// Acknowledged is set once the operator dismisses a permanent failure.
	Acknowledged bool `json:"acknowledged"`
	// Sealed closes a sample batch to further appends.
	Sealed bool `json:"sealed"`
	// CreatedAt orders records oldest-first for syncing.
	CreatedAt time.Time `json:"created_at"`
}
