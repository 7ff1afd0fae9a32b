package models_test

import (
	"errors"
	"testing"
	"time"

	"fleetwatch/internal/models"
)

func TestReading_Validate(t *testing.T) {
	now := time.Now().UnixMilli()

	tests := []struct {
		name    string
		reading models.Reading
		wantErr error
	}{
		{
			name:    "valid",
			reading: models.Reading{DeviceID: "dev-1", Metric: models.MetricTemperature, Value: 21.5, Timestamp: now},
			wantErr: nil,
		},
		{
			name:    "missing device",
			reading: models.Reading{Metric: models.MetricTemperature, Timestamp: now},
			wantErr: models.ErrEmptyDeviceID,
		},
		{
			name:    "unknown metric",
			reading: models.Reading{DeviceID: "dev-1", Metric: "voltage", Timestamp: now},
			wantErr: models.ErrInvalidMetric,
		},
		{
			name:    "zero timestamp",
			reading: models.Reading{DeviceID: "dev-1", Metric: models.MetricRPM},
			wantErr: models.ErrZeroTimestamp,
		},
		{
			name:    "future timestamp",
			reading: models.Reading{DeviceID: "dev-1", Metric: models.MetricRPM, Timestamp: now + 10*60*1000},
			wantErr: models.ErrFutureTimestamp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.reading.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestReading_Normalize(t *testing.T) {
	r := models.Reading{DeviceID: "  dev-1 ", Metric: "Temperature", Timestamp: time.Now().UnixMilli()}
	r.Normalize()

	if r.DeviceID != "dev-1" {
		t.Errorf("expected trimmed device ID, got %q", r.DeviceID)
	}
	if r.Metric != models.MetricTemperature {
		t.Errorf("expected lower-cased metric, got %q", r.Metric)
	}
	if err := r.Validate(); err != nil {
		t.Errorf("normalized reading should validate, got %v", err)
	}
}

func TestSeverity_Ordering(t *testing.T) {
	if !models.SeverityCritical.Above(models.SeverityWarning) {
		t.Error("critical should rank above warning")
	}
	if !models.SeverityWarning.Above(models.SeverityInfo) {
		t.Error("warning should rank above info")
	}
	if models.SeverityWarning.Above(models.SeverityWarning) {
		t.Error("equal severities are not above each other")
	}
	if models.SeverityInfo.Above(models.SeverityCritical) {
		t.Error("info should not rank above critical")
	}
}

func TestAlert_Lifecycle(t *testing.T) {
	r := &models.Reading{DeviceID: "dev-1", Metric: models.MetricPressure, Value: 130, Timestamp: 1700000000000}
	a := models.NewAlert(r, models.SeverityWarning, 120)

	if a.Status != models.StatusActive {
		t.Fatalf("new alert should be active, got %s", a.Status)
	}
	if !a.IsActive() {
		t.Fatal("new alert should report active")
	}
	if a.CreatedAt != r.Timestamp {
		t.Errorf("expected createdAt %d, got %d", r.Timestamp, a.CreatedAt)
	}

	a.Resolve(1700000005000)
	if a.Status != models.StatusResolved {
		t.Errorf("expected resolved, got %s", a.Status)
	}
	if a.ResolvedAt != 1700000005000 {
		t.Errorf("expected resolvedAt from reading timestamp, got %d", a.ResolvedAt)
	}
	if a.IsActive() {
		t.Error("resolved alert should not report active")
	}
}

func TestNotificationConfig_Matches(t *testing.T) {
	warning := &models.Alert{DeviceID: "dev-5", Severity: models.SeverityWarning}
	critical := &models.Alert{DeviceID: "dev-9", Severity: models.SeverityCritical}
	info := &models.Alert{DeviceID: "dev-5", Severity: models.SeverityInfo}

	tests := []struct {
		name  string
		cfg   models.NotificationConfig
		alert *models.Alert
		want  bool
	}{
		{
			name:  "default filter accepts warning",
			cfg:   models.NotificationConfig{Channel: "email", Recipient: "ops@example.com"},
			alert: warning,
			want:  true,
		},
		{
			name:  "default filter rejects info",
			cfg:   models.NotificationConfig{Channel: "email", Recipient: "ops@example.com"},
			alert: info,
			want:  false,
		},
		{
			name: "severity filter excludes warning",
			cfg: models.NotificationConfig{
				Channel:        "sms",
				SeverityFilter: []models.Severity{models.SeverityCritical},
			},
			alert: warning,
			want:  false,
		},
		{
			name: "severity filter includes critical",
			cfg: models.NotificationConfig{
				Channel:        "sms",
				SeverityFilter: []models.Severity{models.SeverityCritical},
			},
			alert: critical,
			want:  true,
		},
		{
			name: "device filter excludes other devices",
			cfg: models.NotificationConfig{
				Channel:      "email",
				DeviceFilter: []string{"dev-5"},
			},
			alert: critical,
			want:  false,
		},
		{
			name: "device filter includes listed device",
			cfg: models.NotificationConfig{
				Channel:      "email",
				DeviceFilter: []string{"dev-5"},
			},
			alert: warning,
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Matches(tt.alert); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
