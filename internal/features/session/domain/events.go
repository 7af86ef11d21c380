package domain

import "time"

// EventKind identifies the type of a session event.
type EventKind string

const (
	// EventStatusChanged fires on start, pause, resume and stop.
	EventStatusChanged EventKind = "status_changed"
	// EventSampleAccepted fires for every sample folded into the metrics.
	EventSampleAccepted EventKind = "sample_accepted"
	// EventSampleRejected fires for samples discarded by validation.
	EventSampleRejected EventKind = "sample_rejected"
	// EventShipmentRecorded fires for pickup/delivery events.
	EventShipmentRecorded EventKind = "shipment_recorded"
)

// Event is the typed notification emitted by the session tracker.
// Listeners (completion detector, UI streams) subscribe to these instead of
// hooking callbacks into the tracker itself.
type Event struct {
	// Kind identifies the event type.
	Kind EventKind
	// SessionID is the session the event belongs to.
	SessionID string
	// Status carries the new status for EventStatusChanged.
	Status Status
	// Sample carries the sample for accepted/rejected/shipment events.
	Sample *GPSSample
	// Rejection carries the reason for EventSampleRejected.
	Rejection *Rejection
	// Session carries a metrics snapshot of the session at emission time.
	Session *RouteSession
	// Timestamp is when the event was emitted.
	Timestamp time.Time
}

// Listener receives session events. Implementations must not block; slow
// consumers should hand off to their own goroutine.
type Listener interface {
	OnSessionEvent(e Event)
}
