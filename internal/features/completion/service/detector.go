package service

import (
	"context"
	"sync"
	"time"

	"route-tracker/internal/core/logger"
	"route-tracker/internal/features/completion/domain"
	"route-tracker/internal/features/geo"
	sessiondomain "route-tracker/internal/features/session/domain"

	"go.uber.org/zap"
)

// Stopper completes the observed session. Implemented by the session
// tracker.
type Stopper interface {
	Stop(ctx context.Context, pos geo.Point) (*sessiondomain.RouteSession, error)
}

// Config holds the detection thresholds.
type Config struct {
	// RadiusMeters bounds the completion zone around the start position.
	RadiusMeters float64
	// MinElapsed is the active time required before the detector arms.
	MinElapsed time.Duration
	// MinDistanceKm is the distance required before the detector arms.
	MinDistanceKm float64
	// AutoConfirm completes the session this long after a candidate is
	// raised. Zero disables auto-confirm.
	AutoConfirm time.Duration
}

// Detector proposes session completion when an armed rider returns to the
// start zone. It observes the session event bus and never blocks or fails
// the tracking path: a detection problem degrades to "not armed", nothing
// more.
type Detector struct {
	cfg     Config
	stopper Stopper
	log     *zap.Logger
	now     func() time.Time

	mu         sync.Mutex
	sessionID  string
	startPos   geo.Point
	lastPos    geo.Point
	armed      bool
	inZone     bool
	suppressed bool
	candidate  *domain.Candidate
	deadline   *time.Time
	timer      *time.Timer
}

// Option customizes a Detector.
type Option func(*Detector)

// WithClock injects a deterministic clock.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// NewDetector creates a completion detector. Subscribe it to the session
// event bus to start observing.
func NewDetector(stopper Stopper, cfg Config, opts ...Option) *Detector {
	d := &Detector{
		cfg:     cfg,
		stopper: stopper,
		log:     logger.Named("completion_detector"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnSessionEvent implements sessiondomain.Listener.
func (d *Detector) OnSessionEvent(e sessiondomain.Event) {
	switch e.Kind {
	case sessiondomain.EventStatusChanged:
		d.onStatusChange(e)
	case sessiondomain.EventSampleAccepted:
		d.onSample(e)
	}
}

func (d *Detector) onStatusChange(e sessiondomain.Event) {
	if e.Session == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	switch e.Session.Status {
	case sessiondomain.StatusActive:
		if e.SessionID != d.sessionID {
			d.resetLocked()
			d.sessionID = e.SessionID
			d.startPos = e.Session.StartPosition
			d.lastPos = e.Session.StartPosition
		}
	case sessiondomain.StatusCompleted:
		if e.SessionID == d.sessionID {
			d.resetLocked()
		}
	}
}

func (d *Detector) onSample(e sessiondomain.Event) {
	if e.Sample == nil || e.Session == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if e.SessionID != d.sessionID {
		return
	}

	pos := e.Sample.Point()
	d.lastPos = pos

	if !d.armed &&
		e.Session.TotalTimeSeconds >= int64(d.cfg.MinElapsed.Seconds()) &&
		e.Session.TotalDistanceKm >= d.cfg.MinDistanceKm {
		d.armed = true
		d.log.Debug("completion detector armed",
			zap.String("session_id", d.sessionID),
			zap.Float64("distance_km", e.Session.TotalDistanceKm),
			zap.Int64("active_seconds", e.Session.TotalTimeSeconds),
		)
	}

	inZone := geo.IsWithinRadius(pos, d.startPos, d.cfg.RadiusMeters)
	if !inZone {
		// Leaving the zone drops any pending candidate and lifts a
		// cancel suppression, so a later re-entry can propose again.
		if d.inZone {
			d.suppressed = false
			d.dropCandidateLocked()
		}
		d.inZone = false
		return
	}
	d.inZone = true

	if !d.armed || d.suppressed || d.candidate != nil {
		return
	}

	d.candidate = &domain.Candidate{
		SessionID:          d.sessionID,
		DistanceKm:         e.Session.TotalDistanceKm,
		DurationSeconds:    e.Session.TotalTimeSeconds,
		ShipmentsCompleted: e.Session.ShipmentsCompleted,
		Timestamp:          d.now().UTC(),
	}
	d.log.Info("completion candidate raised",
		zap.String("session_id", d.sessionID),
		zap.Float64("distance_km", d.candidate.DistanceKm),
		zap.Int("shipments", d.candidate.ShipmentsCompleted),
	)

	if d.cfg.AutoConfirm > 0 {
		deadline := d.now().Add(d.cfg.AutoConfirm)
		d.deadline = &deadline
		d.timer = time.AfterFunc(d.cfg.AutoConfirm, d.autoConfirm)
	}
}

// Confirm completes the observed session at the last known position.
func (d *Detector) Confirm(ctx context.Context) (*sessiondomain.RouteSession, error) {
	d.mu.Lock()
	if d.candidate == nil {
		d.mu.Unlock()
		return nil, domain.ErrNoCandidate
	}
	pos := d.lastPos
	d.mu.Unlock()

	session, err := d.stopper.Stop(ctx, pos)
	if err != nil {
		// Completion must never wedge tracking. Drop the proposal and
		// let the rider stop manually.
		d.mu.Lock()
		d.dropCandidateLocked()
		d.mu.Unlock()
		return nil, err
	}
	d.mu.Lock()
	d.resetLocked()
	d.mu.Unlock()
	return session, nil
}

// Cancel dismisses the pending candidate. The detector stays quiet until
// the rider leaves the start zone and comes back.
func (d *Detector) Cancel() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.candidate == nil {
		return domain.ErrNoCandidate
	}
	d.dropCandidateLocked()
	d.suppressed = true
	d.log.Info("completion candidate cancelled", zap.String("session_id", d.sessionID))
	return nil
}

// State reports the detector for the control API.
func (d *Detector) State() domain.State {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := domain.State{
		Observing:  d.sessionID != "",
		Armed:      d.armed,
		InZone:     d.inZone,
		Suppressed: d.suppressed,
	}
	if d.candidate != nil {
		c := *d.candidate
		s.Candidate = &c
	}
	if d.deadline != nil {
		t := *d.deadline
		s.AutoConfirmAt = &t
	}
	return s
}

func (d *Detector) autoConfirm() {
	d.mu.Lock()
	pending := d.candidate != nil
	sessionID := d.sessionID
	d.mu.Unlock()
	if !pending {
		return
	}
	if _, err := d.Confirm(context.Background()); err != nil {
		d.log.Warn("auto-confirm failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// dropCandidateLocked clears the candidate and its countdown. Mutex held.
func (d *Detector) dropCandidateLocked() {
	d.candidate = nil
	d.deadline = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// resetLocked returns the detector to its idle state. Mutex held.
func (d *Detector) resetLocked() {
	d.dropCandidateLocked()
	d.sessionID = ""
	d.startPos = geo.Point{}
	d.lastPos = geo.Point{}
	d.armed = false
	d.inZone = false
	d.suppressed = false
}
