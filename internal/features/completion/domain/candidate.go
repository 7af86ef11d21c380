package domain

import (
	"errors"
	"time"
)

// ErrNoCandidate is returned when confirm/cancel is called without a
// pending completion candidate.
var ErrNoCandidate = errors.New("no completion candidate pending")

// Candidate is the metrics snapshot frozen at the moment the rider
// re-entered the start zone with the arming thresholds met. It is what the
// UI shows for confirmation.
type Candidate struct {
	// SessionID is the session proposed for completion.
	SessionID string `json:"session_id"`
	// DistanceKm is the accumulated distance at detection time.
	DistanceKm float64 `json:"distance_km"`
	// DurationSeconds is the active elapsed time at detection time.
	DurationSeconds int64 `json:"duration_seconds"`
	// ShipmentsCompleted is the delivery count at detection time.
	ShipmentsCompleted int `json:"shipments_completed"`
	// Timestamp is when the candidate was raised.
	Timestamp time.Time `json:"timestamp"`
}

// State describes the detector for the control API.
type State struct {
	// Observing is true while a session is being watched.
	Observing bool `json:"observing"`
	// Armed is true once the minimum elapsed time and distance are met.
	Armed bool `json:"armed"`
	// InZone is true while the rider is within the completion radius of
	// the start position.
	InZone bool `json:"in_zone"`
	// Suppressed is true after a cancel, until the rider leaves the zone.
	Suppressed bool `json:"suppressed"`
	// Candidate is the pending completion proposal, nil when none.
	Candidate *Candidate `json:"candidate,omitempty"`
	// AutoConfirmAt is the auto-confirm deadline, nil when disabled or
	// no candidate is pending.
	AutoConfirmAt *time.Time `json:"auto_confirm_at,omitempty"`
}
