package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"route-tracker/internal/core/storage"
	"route-tracker/internal/features/alerts/domain"
)

const alertsKey = "sync_alerts"

// KVAlertRepository implements ports.AlertRepository on the KV store. All
// active alerts live under one key as a JSON array; the set is small and
// bounded by operator acknowledgement.
type KVAlertRepository struct {
	kv storage.KV
}

// NewKVAlertRepository creates a new KVAlertRepository.
func NewKVAlertRepository(kv storage.KV) *KVAlertRepository {
	return &KVAlertRepository{
		kv: kv,
	}
}

// Load retrieves all stored alerts.
func (r *KVAlertRepository) Load(ctx context.Context) ([]domain.Alert, error) {
	data, err := r.kv.Get(ctx, alertsKey)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load alerts: %w", err)
	}

	var alerts []domain.Alert
	if err := json.Unmarshal(data, &alerts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alerts: %w", err)
	}
	return alerts, nil
}

// Store replaces the stored alert set.
func (r *KVAlertRepository) Store(ctx context.Context, alerts []domain.Alert) error {
	if len(alerts) == 0 {
		return r.kv.Delete(ctx, alertsKey)
	}

	data, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("failed to marshal alerts: %w", err)
	}
	if err := r.kv.Set(ctx, alertsKey, data, 0); err != nil {
		return fmt.Errorf("failed to store alerts: %w", err)
	}
	return nil
}
