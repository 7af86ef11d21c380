package service

import (
	"fmt"
	"time"

	"route-tracker/internal/features/geo"
	"route-tracker/internal/features/session/domain"
)

// MetricsConfig holds the sample acceptance tunables.
type MetricsConfig struct {
	// AccuracyCeilingMeters rejects fixes reported less accurate than this.
	AccuracyCeilingMeters float64
	// ClockSkew tolerates small timestamp regressions between fixes.
	ClockSkew time.Duration
}

// Metrics is a point-in-time snapshot of a session's running totals.
type Metrics struct {
	TotalDistanceKm  float64
	TotalTimeSeconds int64
	AverageSpeedKmh  float64
	MaxSpeedKmh      float64
	SampleCount      int
}

// Accumulator folds accepted GPS samples into running session metrics.
// Distance is the sum of consecutive accepted-sample deltas, never a
// straight line from start to current position, and never decremented.
// Not safe for concurrent use; the Tracker serializes access.
type Accumulator struct {
	cfg MetricsConfig

	lastPoint     *geo.Point
	lastTimestamp time.Time

	distanceKm  float64
	maxSpeedKmh float64
	samples     int

	// Active time excludes paused spans entirely.
	activeAccum time.Duration
	activeSince time.Time
	paused      bool

	// After a resume, the first accepted sample re-anchors the distance
	// chain without an increment so movement during the pause never counts.
	chainBroken bool
}

// NewAccumulator creates an accumulator for a session started at startedAt.
// The start position anchors nothing: the very first accepted sample
// contributes zero distance.
func NewAccumulator(cfg MetricsConfig, startedAt time.Time) *Accumulator {
	return &Accumulator{
		cfg:           cfg,
		lastTimestamp: startedAt,
		activeSince:   startedAt,
	}
}

// Validate checks a sample against the acceptance rules without mutating any
// state. Returns nil when the sample would be accepted.
func (a *Accumulator) Validate(s domain.GPSSample) *domain.Rejection {
	if s.AccuracyMeters > a.cfg.AccuracyCeilingMeters {
		return &domain.Rejection{
			Reason: domain.RejectionInaccurate,
			Detail: fmt.Sprintf("accuracy %.1fm exceeds ceiling %.1fm", s.AccuracyMeters, a.cfg.AccuracyCeilingMeters),
		}
	}
	if s.Timestamp.Before(a.lastTimestamp.Add(-a.cfg.ClockSkew)) {
		return &domain.Rejection{
			Reason: domain.RejectionOutOfOrder,
			Detail: fmt.Sprintf("timestamp %s precedes last accepted %s", s.Timestamp.Format(time.RFC3339), a.lastTimestamp.Format(time.RFC3339)),
		}
	}
	return nil
}

// Accept folds a sample into the running totals. A non-nil Rejection means
// the sample was discarded and no state changed.
func (a *Accumulator) Accept(s domain.GPSSample) *domain.Rejection {
	if r := a.Validate(s); r != nil {
		return r
	}

	point := s.Point()

	if a.lastPoint != nil && !a.chainBroken {
		deltaKm := geo.DistanceKm(*a.lastPoint, point)
		a.distanceKm += deltaKm

		if dt := s.Timestamp.Sub(a.lastTimestamp); dt > 0 {
			derived := deltaKm / dt.Hours()
			if derived > a.maxSpeedKmh {
				a.maxSpeedKmh = derived
			}
		}
	}

	if s.SpeedKmh != nil && *s.SpeedKmh > a.maxSpeedKmh {
		a.maxSpeedKmh = *s.SpeedKmh
	}

	a.lastPoint = &point
	if s.Timestamp.After(a.lastTimestamp) {
		a.lastTimestamp = s.Timestamp
	}
	a.chainBroken = false
	a.samples++

	return nil
}

// Pause freezes active-time accrual at now.
func (a *Accumulator) Pause(now time.Time) {
	if a.paused {
		return
	}
	a.activeAccum += now.Sub(a.activeSince)
	a.paused = true
}

// Resume restarts active-time accrual at now and breaks the distance chain
// so the paused gap is not attributed to the route.
func (a *Accumulator) Resume(now time.Time) {
	if !a.paused {
		return
	}
	a.activeSince = now
	a.paused = false
	a.chainBroken = true
}

// unpause reverts a Pause taken at the same instant. Unlike Resume it keeps
// the distance chain intact, so it only suits rolling back a pause that never
// took effect.
func (a *Accumulator) unpause(now time.Time) {
	if !a.paused {
		return
	}
	a.activeSince = now
	a.paused = false
}

// Snapshot returns the totals as of now.
func (a *Accumulator) Snapshot(now time.Time) Metrics {
	active := a.activeAccum
	if !a.paused {
		active += now.Sub(a.activeSince)
	}

	seconds := int64(active.Round(time.Second) / time.Second)

	var avg float64
	if seconds > 0 {
		avg = a.distanceKm / (float64(seconds) / 3600)
	}

	return Metrics{
		TotalDistanceKm:  a.distanceKm,
		TotalTimeSeconds: seconds,
		AverageSpeedKmh:  avg,
		MaxSpeedKmh:      a.maxSpeedKmh,
		SampleCount:      a.samples,
	}
}
