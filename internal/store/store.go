// Package store defines the persistence boundaries the alert pipeline
// depends on. Device, threshold, and alert storage live outside the
// pipeline; these interfaces are the only contact surface.
package store

import (
	"context"

	"fleetwatch/internal/models"
)

// ThresholdStore looks up threshold configuration for a device metric.
// May return an empty slice when no thresholds are configured.
type ThresholdStore interface {
	GetThresholds(ctx context.Context, deviceID string, metric models.Metric) ([]models.Threshold, error)
}

// AlertLedger is the durable record of alert instances. Implementations
// must enforce at most one active alert per (deviceID, metric).
type AlertLedger interface {
	// GetActiveAlert returns the open alert for the identity, or nil
	GetActiveAlert(ctx context.Context, deviceID string, metric models.Metric) (*models.Alert, error)

	// Upsert writes a new alert or updates the open one in place
	Upsert(ctx context.Context, alert *models.Alert) error
}

// NotificationConfigStore lists the registered notification targets
type NotificationConfigStore interface {
	ListConfigs(ctx context.Context) ([]models.NotificationConfig, error)
}
