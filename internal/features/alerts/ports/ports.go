package ports

import (
	"context"

	"route-tracker/internal/features/alerts/domain"
)

// AlertService defines the primary port for alert operations.
type AlertService interface {
	Active(ctx context.Context) ([]domain.Alert, error)
	Acknowledge(ctx context.Context, id string) error
}

// AlertRepository defines the secondary port for alert storage.
type AlertRepository interface {
	Load(ctx context.Context) ([]domain.Alert, error)
	Store(ctx context.Context, alerts []domain.Alert) error
}
