package store

import (
	"context"
	"sync"

	"fleetwatch/internal/models"
)

// MemoryStore is an in-process implementation of all three store
// interfaces. It backs tests and single-node deployments.
type MemoryStore struct {
	mu         sync.RWMutex
	thresholds map[string][]models.Threshold
	alerts     map[string][]*models.Alert
	configs    []models.NotificationConfig
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		thresholds: make(map[string][]models.Threshold),
		alerts:     make(map[string][]*models.Alert),
	}
}

func key(deviceID string, metric models.Metric) string {
	return deviceID + ":" + string(metric)
}

// SetThreshold registers a threshold row for a device metric
func (s *MemoryStore) SetThreshold(th models.Threshold) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(th.DeviceID, th.Metric)
	s.thresholds[k] = append(s.thresholds[k], th)
}

// GetThresholds returns all threshold rows for a device metric
func (s *MemoryStore) GetThresholds(ctx context.Context, deviceID string, metric models.Metric) ([]models.Threshold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.thresholds[key(deviceID, metric)]
	out := make([]models.Threshold, len(rows))
	copy(out, rows)
	return out, nil
}

// GetActiveAlert returns the open alert for the identity, or nil
func (s *MemoryStore) GetActiveAlert(ctx context.Context, deviceID string, metric models.Metric) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.alerts[key(deviceID, metric)] {
		if a.IsActive() {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

// Upsert writes a new alert or updates the stored one with the same ID
func (s *MemoryStore) Upsert(ctx context.Context, alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(alert.DeviceID, alert.Metric)
	cp := *alert
	for i, a := range s.alerts[k] {
		if a.ID == alert.ID {
			s.alerts[k][i] = &cp
			return nil
		}
	}
	s.alerts[k] = append(s.alerts[k], &cp)
	return nil
}

// Alerts returns every stored alert for a device metric, oldest first
func (s *MemoryStore) Alerts(deviceID string, metric models.Metric) []*models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.alerts[key(deviceID, metric)]
	out := make([]*models.Alert, 0, len(rows))
	for _, a := range rows {
		cp := *a
		out = append(out, &cp)
	}
	return out
}

// SetConfigs replaces the registered notification configs
func (s *MemoryStore) SetConfigs(configs []models.NotificationConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs = append([]models.NotificationConfig(nil), configs...)
}

// ListConfigs returns the registered notification configs
func (s *MemoryStore) ListConfigs(ctx context.Context) ([]models.NotificationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.NotificationConfig(nil), s.configs...), nil
}
