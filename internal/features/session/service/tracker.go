package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"route-tracker/internal/core/logger"
	"route-tracker/internal/features/geo"
	"route-tracker/internal/features/session/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QueueWriter is the durable buffering port the tracker writes through.
// Every accepted sample and every lifecycle transition is persisted before
// the in-memory state commits; a failed write rolls the operation back.
type QueueWriter interface {
	// EnqueueSession persists the session's current state for later sync.
	// Called again for the same session it updates the queued copy.
	EnqueueSession(ctx context.Context, s domain.RouteSession) error
	// AppendSample persists one sample into the session's open batch.
	AppendSample(ctx context.Context, s domain.GPSSample) error
}

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// TrackerConfig holds the tracker tunables.
type TrackerConfig struct {
	Metrics MetricsConfig
}

// Tracker owns a single route session's lifecycle and drives the metrics
// accumulator. All operations are serialized by an internal mutex; GPS
// ingestion may come from a different goroutine than lifecycle calls.
type Tracker struct {
	mu    sync.Mutex
	cfg   TrackerConfig
	queue QueueWriter
	bus   *Bus
	now   Clock
	log   *zap.Logger

	session *domain.RouteSession
	acc     *Accumulator
}

// TrackerOption customizes a Tracker.
type TrackerOption func(*Tracker)

// WithClock injects a deterministic clock.
func WithClock(c Clock) TrackerOption {
	return func(t *Tracker) { t.now = c }
}

// NewTracker creates a Tracker writing through the given queue and
// publishing events on the given bus.
func NewTracker(cfg TrackerConfig, queue QueueWriter, bus *Bus, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		cfg:   cfg,
		queue: queue,
		bus:   bus,
		now:   time.Now,
		log:   logger.Named("tracker"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins a new session for the operator at the given position.
// Fails with ErrSessionConflict while an active or paused session exists.
func (t *Tracker) Start(ctx context.Context, operatorID string, pos geo.Point) (*domain.RouteSession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session != nil && t.session.Open() {
		return nil, fmt.Errorf("%w: operator %s has session %s in status %s",
			domain.ErrSessionConflict, t.session.OperatorID, t.session.ID, t.session.Status)
	}

	now := t.now()
	session := &domain.RouteSession{
		ID:            uuid.NewString(),
		OperatorID:    operatorID,
		Status:        domain.StatusActive,
		StartTime:     now,
		StartPosition: pos,
	}

	if err := t.queue.EnqueueSession(ctx, *session); err != nil {
		return nil, fmt.Errorf("failed to persist session start: %w", err)
	}

	t.session = session
	t.acc = NewAccumulator(t.cfg.Metrics, now)

	t.log.Info("session started",
		zap.String("session_id", session.ID),
		zap.String("operator_id", operatorID),
	)
	t.publishStatus(now)

	return t.sessionCopy(), nil
}

// Pause freezes metrics accrual. Only valid from active.
func (t *Tracker) Pause(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session == nil {
		return domain.ErrNoSession
	}
	if t.session.Status != domain.StatusActive {
		return fmt.Errorf("%w: cannot pause from %s", domain.ErrInvalidTransition, t.session.Status)
	}

	now := t.now()
	t.acc.Pause(now)
	t.applyMetrics(now)
	t.session.Status = domain.StatusPaused

	if err := t.queue.EnqueueSession(ctx, *t.session); err != nil {
		t.session.Status = domain.StatusActive
		t.acc.unpause(now)
		return fmt.Errorf("failed to persist pause: %w", err)
	}

	t.log.Info("session paused", zap.String("session_id", t.session.ID))
	t.publishStatus(now)
	return nil
}

// Resume restarts metrics accrual. Only valid from paused.
func (t *Tracker) Resume(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session == nil {
		return domain.ErrNoSession
	}
	if t.session.Status != domain.StatusPaused {
		return fmt.Errorf("%w: cannot resume from %s", domain.ErrInvalidTransition, t.session.Status)
	}

	now := t.now()
	t.acc.Resume(now)
	t.session.Status = domain.StatusActive

	if err := t.queue.EnqueueSession(ctx, *t.session); err != nil {
		t.session.Status = domain.StatusPaused
		t.acc.Pause(now)
		return fmt.Errorf("failed to persist resume: %w", err)
	}

	t.log.Info("session resumed", zap.String("session_id", t.session.ID))
	t.publishStatus(now)
	return nil
}

// Stop completes the session from active or paused and returns the final
// record with its metrics snapshot.
func (t *Tracker) Stop(ctx context.Context, pos geo.Point) (*domain.RouteSession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session == nil {
		return nil, domain.ErrNoSession
	}
	if !t.session.Open() {
		return nil, fmt.Errorf("%w: cannot stop from %s", domain.ErrInvalidTransition, t.session.Status)
	}

	now := t.now()

	final := *t.session
	final.Status = domain.StatusCompleted
	final.EndTime = &now
	final.EndPosition = &pos
	applySnapshot(&final, t.acc.Snapshot(now))

	if err := t.queue.EnqueueSession(ctx, final); err != nil {
		return nil, fmt.Errorf("failed to persist session stop: %w", err)
	}

	t.session = &final

	t.log.Info("session completed",
		zap.String("session_id", final.ID),
		zap.Float64("distance_km", final.TotalDistanceKm),
		zap.Int64("active_seconds", final.TotalTimeSeconds),
		zap.Int("shipments", final.ShipmentsCompleted),
	)
	t.publishStatus(now)

	return t.sessionCopy(), nil
}

// RecordPosition feeds one GPS reading into the session. A non-nil
// Rejection means the sample was discarded by validation; the tracking loop
// continues. An error means the durable write failed and nothing changed.
func (t *Tracker) RecordPosition(ctx context.Context, sample domain.GPSSample) (*domain.Rejection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session == nil {
		return nil, domain.ErrNoSession
	}
	if t.session.Status != domain.StatusActive {
		return nil, fmt.Errorf("%w: status %s", domain.ErrNotActive, t.session.Status)
	}

	sample.SessionID = t.session.ID
	if sample.EventType == "" {
		sample.EventType = domain.EventTypeGPS
	}

	if rejection := t.acc.Validate(sample); rejection != nil {
		t.log.Debug("sample rejected",
			zap.String("session_id", t.session.ID),
			zap.String("reason", string(rejection.Reason)),
		)
		t.publish(domain.Event{
			Kind:      domain.EventSampleRejected,
			SessionID: t.session.ID,
			Sample:    &sample,
			Rejection: rejection,
			Timestamp: t.now(),
		})
		return rejection, nil
	}

	// Durable write first so a storage failure leaves no in-memory drift.
	if err := t.queue.AppendSample(ctx, sample); err != nil {
		return nil, fmt.Errorf("failed to persist sample: %w", err)
	}

	t.acc.Accept(sample)
	now := t.now()
	t.applyMetrics(now)

	t.publish(domain.Event{
		Kind:      domain.EventSampleAccepted,
		SessionID: t.session.ID,
		Sample:    &sample,
		Session:   t.sessionCopy(),
		Timestamp: now,
	})

	return nil, nil
}

// RecordShipmentEvent records a pickup or delivery at the given position.
// Valid only while active; does not change session status.
func (t *Tracker) RecordShipmentEvent(ctx context.Context, shipmentID string, eventType domain.EventType, pos geo.Point) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session == nil {
		return domain.ErrNoSession
	}
	if t.session.Status != domain.StatusActive {
		return fmt.Errorf("%w: status %s", domain.ErrNotActive, t.session.Status)
	}
	if eventType != domain.EventTypePickup && eventType != domain.EventTypeDelivery {
		return fmt.Errorf("%w: shipment event type must be pickup or delivery, got %q", domain.ErrInvalidTransition, eventType)
	}
	if shipmentID == "" {
		return fmt.Errorf("%w: shipment id is required", domain.ErrInvalidTransition)
	}

	now := t.now()
	sample := domain.GPSSample{
		SessionID:  t.session.ID,
		Latitude:   pos.Latitude,
		Longitude:  pos.Longitude,
		Timestamp:  now,
		EventType:  eventType,
		ShipmentID: shipmentID,
	}

	if err := t.queue.AppendSample(ctx, sample); err != nil {
		return fmt.Errorf("failed to persist shipment event: %w", err)
	}

	if rejection := t.acc.Accept(sample); rejection != nil {
		// Event samples carry no accuracy estimate and use the local clock,
		// so this only happens under severe clock regression.
		t.log.Warn("shipment event sample not folded into metrics",
			zap.String("session_id", t.session.ID),
			zap.String("reason", string(rejection.Reason)),
		)
	}
	if eventType == domain.EventTypeDelivery {
		t.session.ShipmentsCompleted++
	}
	t.applyMetrics(now)

	t.log.Info("shipment event recorded",
		zap.String("session_id", t.session.ID),
		zap.String("shipment_id", shipmentID),
		zap.String("event_type", string(eventType)),
	)
	t.publish(domain.Event{
		Kind:      domain.EventShipmentRecorded,
		SessionID: t.session.ID,
		Sample:    &sample,
		Session:   t.sessionCopy(),
		Timestamp: now,
	})

	return nil
}

// Session returns a copy of the current session, or nil when none exists.
func (t *Tracker) Session() *domain.RouteSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionCopy()
}

// sessionCopy must be called with the mutex held.
func (t *Tracker) sessionCopy() *domain.RouteSession {
	if t.session == nil {
		return nil
	}
	copied := *t.session
	return &copied
}

// applyMetrics refreshes the session's running totals. Mutex held.
func (t *Tracker) applyMetrics(now time.Time) {
	applySnapshot(t.session, t.acc.Snapshot(now))
}

func applySnapshot(s *domain.RouteSession, m Metrics) {
	s.TotalDistanceKm = m.TotalDistanceKm
	s.TotalTimeSeconds = m.TotalTimeSeconds
	s.AverageSpeedKmh = m.AverageSpeedKmh
	s.MaxSpeedKmh = m.MaxSpeedKmh
}

// publishStatus emits a StatusChanged event. Mutex held.
func (t *Tracker) publishStatus(now time.Time) {
	t.publish(domain.Event{
		Kind:      domain.EventStatusChanged,
		SessionID: t.session.ID,
		Status:    t.session.Status,
		Session:   t.sessionCopy(),
		Timestamp: now,
	})
}

func (t *Tracker) publish(e domain.Event) {
	if t.bus != nil {
		t.bus.Publish(e)
	}
}
