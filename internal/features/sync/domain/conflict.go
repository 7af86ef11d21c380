package domain

import (
	"errors"
	"time"

	offlinedomain "route-tracker/internal/features/offline/domain"
	sessiondomain "route-tracker/internal/features/session/domain"
)

// ConflictReason classifies a mismatch between a local record and its
// server counterpart. Every reason has a required, deterministic
// resolution path.
type ConflictReason string

const (
	// ReasonDuplicate means the server already holds an identical record.
	// Resolution: treat as success, mark synced without resending.
	ReasonDuplicate ConflictReason = "duplicate"
	// ReasonTimestampMismatch means server and local timestamps disagree.
	// Resolution: server wins, local kept for audit.
	ReasonTimestampMismatch ConflictReason = "timestamp_mismatch"
	// ReasonDataMismatch means the payloads disagree in some other way.
	// Resolution: local wins, one reattempt, then escalation.
	ReasonDataMismatch ConflictReason = "data_mismatch"
	// ReasonServerNewer means the server copy is more recent.
	// Resolution: server wins, local kept for audit.
	ReasonServerNewer ConflictReason = "server_newer"
)

var (
	// ErrNetwork wraps timeouts, unreachable hosts and 5xx responses.
	// Network errors leave the record queued for the next pass.
	ErrNetwork = errors.New("network error")
	// ErrPassInFlight is returned when a sync pass is already running.
	ErrPassInFlight = errors.New("sync pass already in flight")
)

// Conflict is the transient description of a detected mismatch. It exists
// only for the duration of the resolution step and is never persisted.
type Conflict struct {
	// LocalRecord is the queued record that collided.
	LocalRecord offlinedomain.Record
	// ServerSession is the authoritative copy, when one was fetched.
	ServerSession *sessiondomain.RouteSession
	// Reason classifies the mismatch.
	Reason ConflictReason
}

// Report summarizes one sync pass.
type Report struct {
	// StartedAt and FinishedAt bound the pass.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	// Skipped is true when the device was offline and nothing was attempted.
	Skipped bool `json:"skipped"`
	// SessionsSynced counts session records accepted by the server.
	SessionsSynced int `json:"sessions_synced"`
	// SamplesSynced counts individual coordinates accepted by the server.
	SamplesSynced int `json:"samples_synced"`
	// ConflictsResolved counts conflicts handled by the automatic policy.
	ConflictsResolved int `json:"conflicts_resolved"`
	// NetworkErrors counts records left queued after a transport failure.
	NetworkErrors int `json:"network_errors"`
	// PermanentFailures counts records that crossed the attempt ceiling
	// during this pass.
	PermanentFailures int `json:"permanent_failures"`
	// Purged counts synced records removed by the retention sweep.
	Purged int `json:"purged"`
}
