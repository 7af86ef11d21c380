package domain

import (
	"time"

	"route-tracker/internal/features/geo"
)

// Status represents the lifecycle state of a route session.
type Status string

const (
	// StatusActive indicates the session is accruing distance and time.
	StatusActive Status = "active"
	// StatusPaused indicates accrual is frozen but the session is not over.
	StatusPaused Status = "paused"
	// StatusCompleted indicates the session has ended. Terminal.
	StatusCompleted Status = "completed"
)

// EventType classifies a GPS sample.
type EventType string

const (
	// EventTypeGPS is a plain position reading.
	EventTypeGPS EventType = "gps"
	// EventTypePickup marks a shipment pickup at the current position.
	EventTypePickup EventType = "pickup"
	// EventTypeDelivery marks a shipment delivery at the current position.
	EventTypeDelivery EventType = "delivery"
)

// RouteSession represents one tracked work period for one operator.
type RouteSession struct {
	// ID is the unique session identifier.
	ID string `json:"id"`
	// OperatorID identifies the rider whose movement is tracked.
	OperatorID string `json:"operator_id"`
	// Status is the current lifecycle state.
	Status Status `json:"status"`
	// StartTime is when the session was started.
	StartTime time.Time `json:"start_time"`
	// EndTime is set when the session completes, nil otherwise.
	EndTime *time.Time `json:"end_time,omitempty"`
	// StartPosition is the position where tracking began.
	StartPosition geo.Point `json:"start_position"`
	// EndPosition is the position where tracking stopped, nil until then.
	EndPosition *geo.Point `json:"end_position,omitempty"`
	// TotalDistanceKm is the sum of consecutive accepted-sample deltas.
	// Monotonically non-decreasing while the session is active.
	TotalDistanceKm float64 `json:"total_distance_km"`
	// TotalTimeSeconds is the active (non-paused) elapsed time.
	TotalTimeSeconds int64 `json:"total_time_seconds"`
	// AverageSpeedKmh is derived from distance and active time.
	AverageSpeedKmh float64 `json:"average_speed_kmh"`
	// MaxSpeedKmh is the highest speed observed across accepted samples.
	MaxSpeedKmh float64 `json:"max_speed_kmh"`
	// ShipmentsCompleted counts delivery events recorded in this session.
	ShipmentsCompleted int `json:"shipments_completed"`
	// Synced indicates the session has been accepted by the server.
	Synced bool `json:"synced"`
	// SyncAttempts counts transmission attempts for this session.
	SyncAttempts int `json:"sync_attempts"`
	// LastSyncAttempt records when the last attempt was made.
	LastSyncAttempt *time.Time `json:"last_sync_attempt,omitempty"`
}

// Open reports whether the session still holds the operator's one
// active-or-paused slot.
func (s *RouteSession) Open() bool {
	return s.Status == StatusActive || s.Status == StatusPaused
}

// GPSSample represents one position reading or shipment event.
// Immutable once persisted.
type GPSSample struct {
	// SessionID ties the sample to its route session.
	SessionID string `json:"session_id"`
	// Latitude and Longitude are WGS84 degrees.
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	// AccuracyMeters is the reported horizontal accuracy of the fix.
	AccuracyMeters float64 `json:"accuracy_meters"`
	// SpeedKmh is the device-reported speed, if available.
	SpeedKmh *float64 `json:"speed_kmh,omitempty"`
	// HeadingDegrees is the device-reported heading, if available.
	HeadingDegrees *float64 `json:"heading_degrees,omitempty"`
	// Timestamp is when the fix was taken.
	Timestamp time.Time `json:"timestamp"`
	// EventType is gps for plain readings, pickup/delivery for shipment events.
	EventType EventType `json:"event_type"`
	// ShipmentID is set when EventType is not gps.
	ShipmentID string `json:"shipment_id,omitempty"`
}

// Point returns the sample's position.
func (s GPSSample) Point() geo.Point {
	return geo.Point{Latitude: s.Latitude, Longitude: s.Longitude}
}

// RejectionReason classifies why a sample was not accepted.
type RejectionReason string

const (
	// RejectionInaccurate means accuracy exceeded the configured ceiling.
	RejectionInaccurate RejectionReason = "inaccurate"
	// RejectionOutOfOrder means the timestamp regressed beyond skew tolerance.
	RejectionOutOfOrder RejectionReason = "out_of_order"
)

// Rejection is the non-error signal returned for a discarded sample.
// The tracking loop keeps running; only the sample is dropped.
type Rejection struct {
	// Reason classifies the rejection.
	Reason RejectionReason `json:"reason"`
	// Detail is a human-readable explanation.
	Detail string `json:"detail"`
}
