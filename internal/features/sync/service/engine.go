package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"route-tracker/internal/core/logger"
	offlinedomain "route-tracker/internal/features/offline/domain"
	sessiondomain "route-tracker/internal/features/session/domain"
	"route-tracker/internal/features/sync/domain"
	"route-tracker/internal/features/sync/ports"

	"go.uber.org/zap"
)

// QueueAccess is the bookkeeping surface the engine drives on the offline
// queue. Payloads are read through the decode helpers and never mutated
// directly; the queue owns them.
type QueueAccess interface {
	ListUnsynced(ctx context.Context, kind offlinedomain.RecordKind) ([]offlinedomain.Record, error)
	MarkSynced(ctx context.Context, localID string) error
	MarkAttempt(ctx context.Context, localID string, errMsg string) (bool, error)
	MarkSamplesSynced(ctx context.Context, localID string, syncedIdx []int) (int, error)
	PurgeSynced(ctx context.Context, olderThan time.Time) (int, error)
	DecodeSession(rec offlinedomain.Record) (*sessiondomain.RouteSession, error)
	DecodeSamples(rec offlinedomain.Record) ([]sessiondomain.GPSSample, error)
}

// Alerter surfaces permanent failures to the operator. Optional.
type Alerter interface {
	RecordFailed(ctx context.Context, rec offlinedomain.Record)
}

// Config holds the engine tunables.
type Config struct {
	// Interval paces periodic passes while online.
	Interval time.Duration
	// BatchSize bounds the number of samples per coordinate request.
	BatchSize int
	// Retention keeps synced records around before the purge sweep.
	Retention time.Duration
}

// Status describes the engine for the control API.
type Status struct {
	// InFlight is true while a pass is running.
	InFlight bool `json:"in_flight"`
	// LastReport is the most recent completed pass, nil before the first.
	LastReport *domain.Report `json:"last_report,omitempty"`
}

// Engine drains the offline queue against the remote routes service.
// Exactly one pass runs at a time; passes are paced, never busy-retried,
// and each network call is sequential to keep oldest-first ordering.
type Engine struct {
	queue        QueueAccess
	remote       ports.RemoteRoutes
	connectivity ports.Connectivity
	alerter      Alerter
	cfg          Config
	log          *zap.Logger
	now          func() time.Time

	// passMu enforces the single-flight invariant.
	passMu sync.Mutex

	stateMu    sync.Mutex
	inFlight   bool
	lastReport *domain.Report
	wasOnline  bool

	trigger chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock injects a deterministic clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithAlerter wires the permanent-failure alert sink.
func WithAlerter(a Alerter) Option {
	return func(e *Engine) { e.alerter = a }
}

// NewEngine creates a sync engine over the given queue and remote.
func NewEngine(queue QueueAccess, remote ports.RemoteRoutes, connectivity ports.Connectivity, cfg Config, opts ...Option) *Engine {
	// The chunk loop requires a positive batch size to advance.
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	e := &Engine{
		queue:        queue,
		remote:       remote,
		connectivity: connectivity,
		cfg:          cfg,
		log:          logger.Named("sync_engine"),
		now:          time.Now,
		trigger:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunPass executes one sync pass. Returns ErrPassInFlight when another pass
// is running. A cancelled context stops the pass between records; markers
// already written stay written.
func (e *Engine) RunPass(ctx context.Context) (*domain.Report, error) {
	if !e.passMu.TryLock() {
		return nil, domain.ErrPassInFlight
	}
	defer e.passMu.Unlock()

	e.setInFlight(true)
	defer e.setInFlight(false)

	report := &domain.Report{StartedAt: e.now().UTC()}

	if !e.connectivity.Online(ctx) {
		report.Skipped = true
		report.FinishedAt = e.now().UTC()
		e.storeReport(report)
		e.log.Debug("sync pass skipped: offline")
		return report, nil
	}

	if err := e.syncSessions(ctx, report); err != nil {
		report.FinishedAt = e.now().UTC()
		e.storeReport(report)
		return report, err
	}
	if err := e.syncSampleBatches(ctx, report); err != nil {
		report.FinishedAt = e.now().UTC()
		e.storeReport(report)
		return report, err
	}

	if purged, err := e.queue.PurgeSynced(ctx, e.now().Add(-e.cfg.Retention)); err == nil {
		report.Purged = purged
	}

	report.FinishedAt = e.now().UTC()
	e.storeReport(report)

	e.log.Info("sync pass finished",
		zap.Int("sessions_synced", report.SessionsSynced),
		zap.Int("samples_synced", report.SamplesSynced),
		zap.Int("conflicts_resolved", report.ConflictsResolved),
		zap.Int("network_errors", report.NetworkErrors),
		zap.Int("permanent_failures", report.PermanentFailures),
	)
	return report, nil
}

// syncSessions pushes unsynced session records oldest-first.
func (e *Engine) syncSessions(ctx context.Context, report *domain.Report) error {
	records, err := e.queue.ListUnsynced(ctx, offlinedomain.KindSession)
	if err != nil {
		return fmt.Errorf("failed to list session records: %w", err)
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.syncOneSession(ctx, rec, report)
	}
	return nil
}

func (e *Engine) syncOneSession(ctx context.Context, rec offlinedomain.Record, report *domain.Report) {
	session, err := e.queue.DecodeSession(rec)
	if err != nil {
		e.recordAttempt(ctx, rec, report, err)
		return
	}

	result, err := e.remote.PushSession(ctx, *session)
	if err != nil {
		e.recordAttempt(ctx, rec, report, err)
		return
	}

	switch result.Status {
	case ports.PushAccepted:
		// Bookkeeping for a record whose push already landed must commit
		// even when the pass context was cancelled mid-flight.
		if err := e.queue.MarkSynced(context.WithoutCancel(ctx), rec.LocalID); err != nil {
			e.log.Error("failed to mark session record synced", zap.String("local_id", rec.LocalID), zap.Error(err))
			return
		}
		report.SessionsSynced++

	case ports.PushDuplicate:
		e.resolveConflict(ctx, domain.Conflict{
			LocalRecord:   rec,
			ServerSession: result.ServerSession,
			Reason:        domain.ReasonDuplicate,
		}, *session, report)

	case ports.PushConflict:
		e.resolveConflict(ctx, domain.Conflict{
			LocalRecord:   rec,
			ServerSession: result.ServerSession,
			Reason:        result.Reason,
		}, *session, report)
	}
}

// resolveConflict applies the deterministic resolution policy. No path
// prompts the operator; no path deletes the local record.
func (e *Engine) resolveConflict(ctx context.Context, c domain.Conflict, local sessiondomain.RouteSession, report *domain.Report) {
	book := context.WithoutCancel(ctx)
	switch c.Reason {
	case domain.ReasonDuplicate:
		// The server already has it: success without resending.
		if err := e.queue.MarkSynced(book, c.LocalRecord.LocalID); err != nil {
			e.log.Error("failed to mark duplicate record synced", zap.String("local_id", c.LocalRecord.LocalID), zap.Error(err))
			return
		}
		report.ConflictsResolved++

	case domain.ReasonTimestampMismatch, domain.ReasonServerNewer:
		// Server wins. The local copy is retained for audit but never
		// reapplied over the server state.
		server := c.ServerSession
		if server == nil {
			fetched, err := e.remote.FetchSession(ctx, local.ID)
			if err != nil {
				e.log.Warn("could not fetch authoritative session copy",
					zap.String("session_id", local.ID), zap.Error(err))
			} else {
				server = fetched
			}
		}
		if server != nil {
			e.log.Info("server copy wins conflict",
				zap.String("session_id", local.ID),
				zap.String("reason", string(c.Reason)),
				zap.Float64("local_distance_km", local.TotalDistanceKm),
				zap.Float64("server_distance_km", server.TotalDistanceKm),
			)
		}
		if err := e.queue.MarkSynced(book, c.LocalRecord.LocalID); err != nil {
			e.log.Error("failed to mark conflicted record synced", zap.String("local_id", c.LocalRecord.LocalID), zap.Error(err))
			return
		}
		report.ConflictsResolved++

	default:
		// Any other data mismatch: local wins. Reattempt the write once;
		// a second failure escalates toward the permanent ceiling.
		result, err := e.remote.PushSession(ctx, local)
		if err == nil && result.Status != ports.PushConflict {
			if err := e.queue.MarkSynced(book, c.LocalRecord.LocalID); err != nil {
				e.log.Error("failed to mark record synced after reattempt", zap.String("local_id", c.LocalRecord.LocalID), zap.Error(err))
				return
			}
			report.ConflictsResolved++
			report.SessionsSynced++
			return
		}
		if err == nil {
			err = fmt.Errorf("conflict persisted after reattempt: %s", result.Reason)
		}
		e.recordAttempt(ctx, c.LocalRecord, report, err)
	}
}

// syncSampleBatches pushes unsynced coordinate batches oldest-first,
// chunked to the configured batch size.
func (e *Engine) syncSampleBatches(ctx context.Context, report *domain.Report) error {
	records, err := e.queue.ListUnsynced(ctx, offlinedomain.KindSampleBatch)
	if err != nil {
		return fmt.Errorf("failed to list sample batches: %w", err)
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.syncOneBatch(ctx, rec, report)
	}
	return nil
}

func (e *Engine) syncOneBatch(ctx context.Context, rec offlinedomain.Record, report *domain.Report) {
	samples, err := e.queue.DecodeSamples(rec)
	if err != nil {
		e.recordAttempt(ctx, rec, report, err)
		return
	}
	if len(samples) == 0 {
		if err := e.queue.MarkSynced(ctx, rec.LocalID); err != nil {
			e.log.Error("failed to mark empty batch synced", zap.String("local_id", rec.LocalID), zap.Error(err))
		}
		return
	}

	var syncedIdx []int
	rejected := 0

	for offset := 0; offset < len(samples); offset += e.cfg.BatchSize {
		end := offset + e.cfg.BatchSize
		if end > len(samples) {
			end = len(samples)
		}

		results, err := e.remote.PushSamples(ctx, rec.SessionID, samples[offset:end])
		if err != nil {
			// Bookkeep what already landed, then leave the rest queued.
			e.applyBatchOutcome(ctx, rec, report, syncedIdx, err)
			return
		}

		for _, r := range results {
			if r.Accepted {
				syncedIdx = append(syncedIdx, offset+r.Index)
			} else {
				rejected++
			}
		}
	}

	var attemptErr error
	if rejected > 0 {
		attemptErr = fmt.Errorf("%d of %d samples rejected by server", rejected, len(samples))
	}
	e.applyBatchOutcome(ctx, rec, report, syncedIdx, attemptErr)
}

// applyBatchOutcome prunes synced samples from the record and bookkeeps the
// attempt when anything remains queued.
func (e *Engine) applyBatchOutcome(ctx context.Context, rec offlinedomain.Record, report *domain.Report, syncedIdx []int, cause error) {
	remaining := 0
	if len(syncedIdx) > 0 {
		var err error
		remaining, err = e.queue.MarkSamplesSynced(context.WithoutCancel(ctx), rec.LocalID, syncedIdx)
		if err != nil {
			e.log.Error("failed to bookkeep batch outcome", zap.String("local_id", rec.LocalID), zap.Error(err))
			return
		}
		report.SamplesSynced += len(syncedIdx)
	}

	if cause == nil {
		return
	}
	if len(syncedIdx) == 0 || remaining > 0 {
		e.recordAttempt(ctx, rec, report, cause)
	}
}

// recordAttempt increments the record's attempt counter and escalates to a
// visible permanent failure at the ceiling. The record itself is retained.
func (e *Engine) recordAttempt(ctx context.Context, rec offlinedomain.Record, report *domain.Report, cause error) {
	if errors.Is(cause, domain.ErrNetwork) {
		report.NetworkErrors++
	}

	permanent, err := e.queue.MarkAttempt(context.WithoutCancel(ctx), rec.LocalID, cause.Error())
	if err != nil {
		e.log.Error("failed to record sync attempt", zap.String("local_id", rec.LocalID), zap.Error(err))
		return
	}
	if permanent {
		report.PermanentFailures++
		e.log.Warn("record escalated to permanent failure",
			zap.String("local_id", rec.LocalID),
			zap.String("session_id", rec.SessionID),
			zap.Error(cause),
		)
		if e.alerter != nil {
			e.alerter.RecordFailed(ctx, rec)
		}
	}
}

// Start launches the background scheduler: a pass every interval while
// online, an immediate pass when connectivity returns, and manual kicks via
// TriggerNow.
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.loop(ctx)
}

// Stop cancels the scheduler and waits for it to exit. Markers already
// written by an interrupted pass are never discarded.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
}

// TriggerNow requests an immediate pass. Non-blocking; coalesces with any
// pending trigger.
func (e *Engine) TriggerNow() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Status reports the engine state for the control API.
func (e *Engine) Status() Status {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return Status{InFlight: e.inFlight, LastReport: e.lastReport}
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			online := e.connectivity.Online(ctx)
			e.stateMu.Lock()
			regained := online && !e.wasOnline
			e.wasOnline = online
			e.stateMu.Unlock()

			if !online {
				continue
			}
			if regained {
				e.log.Info("connectivity regained, draining offline queue")
			}
			e.runScheduled(ctx)

		case <-e.trigger:
			e.runScheduled(ctx)
		}
	}
}

func (e *Engine) runScheduled(ctx context.Context) {
	if _, err := e.RunPass(ctx); err != nil && !errors.Is(err, domain.ErrPassInFlight) && !errors.Is(err, context.Canceled) {
		e.log.Error("sync pass failed", zap.Error(err))
	}
}

func (e *Engine) setInFlight(v bool) {
	e.stateMu.Lock()
	e.inFlight = v
	e.stateMu.Unlock()
}

func (e *Engine) storeReport(r *domain.Report) {
	e.stateMu.Lock()
	e.lastReport = r
	e.stateMu.Unlock()
}
