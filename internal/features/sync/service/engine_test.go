package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"route-tracker/internal/core/storage"
	offlineadapters "route-tracker/internal/features/offline/adapters"
	offlinedomain "route-tracker/internal/features/offline/domain"
	offlinesvc "route-tracker/internal/features/offline/service"
	sessiondomain "route-tracker/internal/features/session/domain"
	"route-tracker/internal/features/sync/domain"
	"route-tracker/internal/features/sync/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRemote struct {
	mu sync.Mutex

	pushSessionFn func(s sessiondomain.RouteSession) (*ports.SessionPushResult, error)
	pushSamplesFn func(sessionID string, samples []sessiondomain.GPSSample) ([]ports.SampleResult, error)
	fetchFn       func(id string) (*sessiondomain.RouteSession, error)

	sessionPushes int
	samplePushes  int
	fetches       int
}

func (m *mockRemote) PushSession(_ context.Context, s sessiondomain.RouteSession) (*ports.SessionPushResult, error) {
	m.mu.Lock()
	m.sessionPushes++
	fn := m.pushSessionFn
	m.mu.Unlock()
	if fn != nil {
		return fn(s)
	}
	return &ports.SessionPushResult{Status: ports.PushAccepted}, nil
}

func (m *mockRemote) PushSamples(_ context.Context, sessionID string, samples []sessiondomain.GPSSample) ([]ports.SampleResult, error) {
	m.mu.Lock()
	m.samplePushes++
	fn := m.pushSamplesFn
	m.mu.Unlock()
	if fn != nil {
		return fn(sessionID, samples)
	}
	results := make([]ports.SampleResult, len(samples))
	for i := range samples {
		results[i] = ports.SampleResult{Index: i, Accepted: true}
	}
	return results, nil
}

func (m *mockRemote) FetchSession(_ context.Context, id string) (*sessiondomain.RouteSession, error) {
	m.mu.Lock()
	m.fetches++
	fn := m.fetchFn
	m.mu.Unlock()
	if fn != nil {
		return fn(id)
	}
	return nil, fmt.Errorf("no server copy for %s", id)
}

func (m *mockRemote) counts() (sessions, samples int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionPushes, m.samplePushes
}

type mockConnectivity struct{ online bool }

func (m *mockConnectivity) Online(context.Context) bool { return m.online }

type mockAlerter struct {
	mu      sync.Mutex
	records []offlinedomain.Record
}

func (m *mockAlerter) RecordFailed(_ context.Context, rec offlinedomain.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type engineFixture struct {
	engine *Engine
	queue  *offlinesvc.Queue
	remote *mockRemote
	conn   *mockConnectivity
	alerts *mockAlerter
	clock  *fakeClock
}

func newFixture(t *testing.T, maxAttempts int) *engineFixture {
	t.Helper()

	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	store, err := offlineadapters.NewSQLiteStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := &fakeClock{t: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
	queue := offlinesvc.NewQueue(store,
		offlinesvc.Config{MaxSyncAttempts: maxAttempts, BatchSize: 100},
		offlinesvc.WithClock(clock.Now),
	)

	remote := &mockRemote{}
	conn := &mockConnectivity{online: true}
	alerts := &mockAlerter{}

	engine := NewEngine(queue, remote, conn,
		Config{Interval: time.Minute, BatchSize: 100, Retention: 72 * time.Hour},
		WithClock(clock.Now),
		WithAlerter(alerts),
	)
	return &engineFixture{engine: engine, queue: queue, remote: remote, conn: conn, alerts: alerts, clock: clock}
}

func (f *engineFixture) enqueueSession(t *testing.T, id string) sessiondomain.RouteSession {
	t.Helper()
	s := sessiondomain.RouteSession{
		ID:              id,
		OperatorID:      "op-1",
		Status:          sessiondomain.StatusCompleted,
		StartTime:       f.clock.Now().Add(-time.Hour),
		TotalDistanceKm: 5.2,
	}
	require.NoError(t, f.queue.EnqueueSession(context.Background(), s))
	return s
}

func (f *engineFixture) enqueueSamples(t *testing.T, sessionID string, n int) {
	t.Helper()
	base := f.clock.Now().Add(-30 * time.Minute)
	for i := 0; i < n; i++ {
		require.NoError(t, f.queue.AppendSample(context.Background(), sessiondomain.GPSSample{
			SessionID:      sessionID,
			Latitude:       4.7110 + float64(i)*0.001,
			Longitude:      -74.0721,
			AccuracyMeters: 10,
			Timestamp:      base.Add(time.Duration(i) * 5 * time.Second),
			EventType:      sessiondomain.EventTypeGPS,
		}))
	}
}

func TestRunPassSkipsWhileOffline(t *testing.T) {
	f := newFixture(t, 5)
	f.conn.online = false
	f.enqueueSession(t, "sess-1")

	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)

	sessions, samples := f.remote.counts()
	assert.Zero(t, sessions)
	assert.Zero(t, samples)

	queued, err := f.queue.ListUnsynced(context.Background(), offlinedomain.KindSession)
	require.NoError(t, err)
	assert.Len(t, queued, 1)
}

func TestRunPassDrainsSessionsAndSamples(t *testing.T) {
	f := newFixture(t, 5)
	f.enqueueSession(t, "sess-1")
	f.enqueueSamples(t, "sess-1", 4)

	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.SessionsSynced)
	assert.Equal(t, 4, report.SamplesSynced)
	assert.Zero(t, report.NetworkErrors)
	assert.Zero(t, report.PermanentFailures)

	for _, kind := range []offlinedomain.RecordKind{offlinedomain.KindSession, offlinedomain.KindSampleBatch} {
		queued, err := f.queue.ListUnsynced(context.Background(), kind)
		require.NoError(t, err)
		assert.Empty(t, queued)
	}

	status := f.engine.Status()
	assert.False(t, status.InFlight)
	require.NotNil(t, status.LastReport)
	assert.Equal(t, 1, status.LastReport.SessionsSynced)
}

func TestRunPassWithZeroBatchSize(t *testing.T) {
	f := newFixture(t, 5)
	f.enqueueSamples(t, "sess-1", 3)

	// A zero batch size from a misconfigured override must not stall the
	// chunk loop.
	engine := NewEngine(f.queue, f.remote, f.conn,
		Config{Interval: time.Minute, BatchSize: 0, Retention: 72 * time.Hour},
		WithClock(f.clock.Now),
		WithAlerter(f.alerts),
	)

	done := make(chan struct{})
	var report *domain.Report
	var err error
	go func() {
		defer close(done)
		report, err = engine.RunPass(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sync pass did not finish")
	}

	require.NoError(t, err)
	assert.Equal(t, 3, report.SamplesSynced)

	queued, qErr := f.queue.ListUnsynced(context.Background(), offlinedomain.KindSampleBatch)
	require.NoError(t, qErr)
	assert.Empty(t, queued)
}

func TestDuplicateResolvedWithoutResend(t *testing.T) {
	f := newFixture(t, 5)
	f.enqueueSession(t, "sess-1")
	f.remote.pushSessionFn = func(sessiondomain.RouteSession) (*ports.SessionPushResult, error) {
		return &ports.SessionPushResult{Status: ports.PushDuplicate}, nil
	}

	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.ConflictsResolved)
	assert.Zero(t, report.PermanentFailures)

	sessions, _ := f.remote.counts()
	assert.Equal(t, 1, sessions, "duplicate must not be resent")

	queued, err := f.queue.ListUnsynced(context.Background(), offlinedomain.KindSession)
	require.NoError(t, err)
	assert.Empty(t, queued)
}

func TestServerNewerConflictServerWins(t *testing.T) {
	f := newFixture(t, 5)
	f.enqueueSession(t, "sess-1")

	server := &sessiondomain.RouteSession{ID: "sess-1", TotalDistanceKm: 6.0}
	f.remote.pushSessionFn = func(sessiondomain.RouteSession) (*ports.SessionPushResult, error) {
		return &ports.SessionPushResult{
			Status:        ports.PushConflict,
			Reason:        domain.ReasonServerNewer,
			ServerSession: server,
		}, nil
	}

	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.ConflictsResolved)

	// The local 5.2 km copy is never pushed over the server's 6.0 km copy.
	sessions, _ := f.remote.counts()
	assert.Equal(t, 1, sessions)

	queued, err := f.queue.ListUnsynced(context.Background(), offlinedomain.KindSession)
	require.NoError(t, err)
	assert.Empty(t, queued)
}

func TestTimestampMismatchFetchesServerCopy(t *testing.T) {
	f := newFixture(t, 5)
	f.enqueueSession(t, "sess-1")

	f.remote.pushSessionFn = func(sessiondomain.RouteSession) (*ports.SessionPushResult, error) {
		return &ports.SessionPushResult{Status: ports.PushConflict, Reason: domain.ReasonTimestampMismatch}, nil
	}
	f.remote.fetchFn = func(id string) (*sessiondomain.RouteSession, error) {
		return &sessiondomain.RouteSession{ID: id, TotalDistanceKm: 6.0}, nil
	}

	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.ConflictsResolved)
	assert.Equal(t, 1, f.remote.fetches)

	queued, err := f.queue.ListUnsynced(context.Background(), offlinedomain.KindSession)
	require.NoError(t, err)
	assert.Empty(t, queued)
}

func TestDataMismatchRetriesOnceThenEscalates(t *testing.T) {
	f := newFixture(t, 2)
	f.enqueueSession(t, "sess-1")
	f.remote.pushSessionFn = func(sessiondomain.RouteSession) (*ports.SessionPushResult, error) {
		return &ports.SessionPushResult{Status: ports.PushConflict, Reason: domain.ReasonDataMismatch}, nil
	}

	// First pass: push, reattempt once, then one sync attempt recorded.
	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.PermanentFailures)

	sessions, _ := f.remote.counts()
	assert.Equal(t, 2, sessions)

	// Second pass crosses the two-attempt ceiling.
	report, err = f.engine.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.PermanentFailures)

	failed, err := f.queue.ListFailed(context.Background())
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "sess-1", failed[0].SessionID)
	assert.Contains(t, failed[0].LastError, "data_mismatch")

	require.Len(t, f.alerts.records, 1)
	assert.Equal(t, failed[0].LocalID, f.alerts.records[0].LocalID)

	// Failed records leave the active sync set but are never deleted.
	queued, err := f.queue.ListUnsynced(context.Background(), offlinedomain.KindSession)
	require.NoError(t, err)
	assert.Empty(t, queued)
}

func TestNetworkErrorLeavesRecordQueued(t *testing.T) {
	f := newFixture(t, 5)
	f.enqueueSession(t, "sess-1")
	f.remote.pushSessionFn = func(sessiondomain.RouteSession) (*ports.SessionPushResult, error) {
		return nil, fmt.Errorf("%w: connection refused", domain.ErrNetwork)
	}

	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.NetworkErrors)
	assert.Zero(t, report.PermanentFailures)

	queued, err := f.queue.ListUnsynced(context.Background(), offlinedomain.KindSession)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, 1, queued[0].SyncAttempts)
}

func TestPartialBatchPrunesAcceptedSamples(t *testing.T) {
	f := newFixture(t, 5)
	f.enqueueSamples(t, "sess-1", 3)
	f.remote.pushSamplesFn = func(_ string, samples []sessiondomain.GPSSample) ([]ports.SampleResult, error) {
		results := make([]ports.SampleResult, len(samples))
		for i := range samples {
			results[i] = ports.SampleResult{Index: i, Accepted: i != 1, Error: "bad fix"}
		}
		return results, nil
	}

	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.SamplesSynced)

	queued, err := f.queue.ListUnsynced(context.Background(), offlinedomain.KindSampleBatch)
	require.NoError(t, err)
	require.Len(t, queued, 1)

	remaining, err := f.queue.DecodeSamples(queued[0])
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
	assert.Equal(t, 1, queued[0].SyncAttempts)
}

func TestRunPassSingleFlight(t *testing.T) {
	f := newFixture(t, 5)
	f.enqueueSession(t, "sess-1")

	entered := make(chan struct{})
	release := make(chan struct{})
	f.remote.pushSessionFn = func(sessiondomain.RouteSession) (*ports.SessionPushResult, error) {
		close(entered)
		<-release
		return &ports.SessionPushResult{Status: ports.PushAccepted}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.engine.RunPass(context.Background())
		done <- err
	}()

	<-entered
	_, err := f.engine.RunPass(context.Background())
	assert.ErrorIs(t, err, domain.ErrPassInFlight)
	assert.True(t, f.engine.Status().InFlight)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, f.engine.Status().InFlight)
}

func TestRetentionPurgeRemovesOldSyncedRecords(t *testing.T) {
	f := newFixture(t, 5)
	f.enqueueSession(t, "sess-1")

	report, err := f.engine.RunPass(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Purged)

	f.clock.Advance(73 * time.Hour)
	f.enqueueSession(t, "sess-2")

	report, err = f.engine.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Purged, "only the synced record past retention is purged")
}

func TestCancelledContextStopsBetweenRecords(t *testing.T) {
	f := newFixture(t, 5)
	f.enqueueSession(t, "sess-1")
	f.enqueueSession(t, "sess-2")

	ctx, cancel := context.WithCancel(context.Background())
	f.remote.pushSessionFn = func(sessiondomain.RouteSession) (*ports.SessionPushResult, error) {
		cancel()
		return &ports.SessionPushResult{Status: ports.PushAccepted}, nil
	}

	_, err := f.engine.RunPass(ctx)
	assert.True(t, errors.Is(err, context.Canceled))

	// The first record's marker survives the cancellation.
	queued, err := f.queue.ListUnsynced(context.Background(), offlinedomain.KindSession)
	require.NoError(t, err)
	assert.Len(t, queued, 1)
}
