package ports

import (
	"context"

	"route-tracker/internal/features/sync/domain"
	sessiondomain "route-tracker/internal/features/session/domain"
)

// PushStatus is the server's verdict on a pushed record.
type PushStatus string

const (
	// PushAccepted means the server stored the record.
	PushAccepted PushStatus = "accepted"
	// PushDuplicate means the server already had it.
	PushDuplicate PushStatus = "duplicate"
	// PushConflict means the server holds a diverging copy.
	PushConflict PushStatus = "conflict"
)

// SessionPushResult is the outcome of one session push.
type SessionPushResult struct {
	// Status is the server verdict.
	Status PushStatus
	// Reason is set for PushConflict.
	Reason domain.ConflictReason
	// ServerSession carries the server copy when the response included one.
	ServerSession *sessiondomain.RouteSession
}

// SampleResult is the per-sample outcome of a batch push.
type SampleResult struct {
	// Index is the sample's position in the submitted batch.
	Index int
	// Accepted is true when the server stored (or already had) the sample.
	Accepted bool
	// Error describes the per-sample failure when not accepted.
	Error string
}

// RemoteRoutes defines the remote sync surface. Implementations must wrap
// transport failures, timeouts and 5xx responses in domain.ErrNetwork; the
// endpoints are idempotent and safe to call more than once per record.
type RemoteRoutes interface {
	// PushSession submits a session to the idempotent sync endpoint.
	PushSession(ctx context.Context, s sessiondomain.RouteSession) (*SessionPushResult, error)

	// PushSamples submits one bounded coordinate batch. The result reports
	// per-sample outcomes so partial success can be bookkept.
	PushSamples(ctx context.Context, sessionID string, samples []sessiondomain.GPSSample) ([]SampleResult, error)

	// FetchSession reads the authoritative server copy, used only when a
	// server-newer conflict needs it.
	FetchSession(ctx context.Context, id string) (*sessiondomain.RouteSession, error)
}

// Connectivity reports whether the remote service is reachable. A sync pass
// is skipped entirely while offline.
type Connectivity interface {
	Online(ctx context.Context) bool
}
