package service

import (
	"context"
	"fmt"
	"sync"

	"route-tracker/internal/core/logger"
	"route-tracker/internal/features/alerts/domain"
	"route-tracker/internal/features/alerts/ports"
	offlinedomain "route-tracker/internal/features/offline/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertServiceImpl implements ports.AlertService and the sync engine's
// alert sink. A repository failure while raising an alert is logged and
// swallowed: alerting must never fail the sync pass that triggered it.
type AlertServiceImpl struct {
	mu   sync.Mutex
	repo ports.AlertRepository
	log  *zap.Logger
}

// NewAlertService creates a new AlertServiceImpl.
func NewAlertService(repo ports.AlertRepository) *AlertServiceImpl {
	return &AlertServiceImpl{
		repo: repo,
		log:  logger.Named("alerts"),
	}
}

// RecordFailed raises a danger alert for a record that exhausted its sync
// attempts. Implements the sync engine's Alerter port.
func (s *AlertServiceImpl) RecordFailed(ctx context.Context, rec offlinedomain.Record) {
	message := fmt.Sprintf("%s record could not be synced after %d attempts: %s",
		rec.Kind, rec.SyncAttempts, rec.LastError)

	alert, err := domain.NewAlert(uuid.NewString(), domain.SeverityDanger, message, rec.SessionID, rec.LocalID)
	if err != nil {
		s.log.Error("failed to build alert", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	alerts, err := s.repo.Load(ctx)
	if err != nil {
		s.log.Error("failed to load alerts", zap.Error(err))
		return
	}
	// One alert per failed record, no matter how many passes see it.
	for _, a := range alerts {
		if a.RecordID == rec.LocalID {
			return
		}
	}

	if err := s.repo.Store(ctx, append(alerts, *alert)); err != nil {
		s.log.Error("failed to store alert", zap.Error(err))
		return
	}
	s.log.Warn("sync failure alert raised",
		zap.String("record_id", rec.LocalID),
		zap.String("session_id", rec.SessionID),
	)
}

// Active retrieves the current alert set.
func (s *AlertServiceImpl) Active(ctx context.Context) ([]domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alerts, err := s.repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: failed to load alerts: %w", err)
	}
	return alerts, nil
}

// Acknowledge removes one alert by id.
func (s *AlertServiceImpl) Acknowledge(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alerts, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("service: failed to load alerts: %w", err)
	}

	kept := alerts[:0]
	found := false
	for _, a := range alerts {
		if a.ID == id {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	if !found {
		return domain.ErrAlertNotFound
	}

	if err := s.repo.Store(ctx, kept); err != nil {
		return fmt.Errorf("service: failed to store alerts: %w", err)
	}
	return nil
}
