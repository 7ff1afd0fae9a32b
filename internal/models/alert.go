package models

import (
	"fmt"

	"github.com/google/uuid"
)

// Severity represents alert severity levels
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// severityRank orders severities for escalation comparison
var severityRank = map[Severity]int{
	SeverityNone:     0,
	SeverityInfo:     1,
	SeverityWarning:  2,
	SeverityCritical: 3,
}

// Rank returns the numeric ordering of the severity; unknown severities rank lowest
func (s Severity) Rank() int {
	return severityRank[s]
}

// Above reports whether s is strictly more severe than other
func (s Severity) Above(other Severity) bool {
	return s.Rank() > other.Rank()
}

// IsValid checks if the severity level is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityNone, SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	default:
		return false
	}
}

// AlertStatus represents the lifecycle state of an alert
type AlertStatus string

const (
	StatusActive       AlertStatus = "active"
	StatusAcknowledged AlertStatus = "acknowledged"
	StatusResolved     AlertStatus = "resolved"
)

// Alert is a threshold breach record; identity is (DeviceID, Metric).
// At most one alert per identity may be active at a time.
type Alert struct {
	ID       string      `json:"id"`
	DeviceID string      `json:"device_id"`
	Metric   Metric      `json:"metric"`
	Severity Severity    `json:"severity"`
	Status   AlertStatus `json:"status"`

	// Value that triggered the alert
	Value float64 `json:"value"`

	// Threshold bound that was exceeded
	Threshold float64 `json:"threshold"`

	Message string `json:"message"`

	// Lifecycle timestamps in epoch milliseconds
	CreatedAt      int64 `json:"created_at"`
	AcknowledgedAt int64 `json:"acknowledged_at,omitempty"`
	ResolvedAt     int64 `json:"resolved_at,omitempty"`
}

// NewAlert creates an active alert for a reading that breached a threshold bound
func NewAlert(r *Reading, severity Severity, threshold float64) *Alert {
	return &Alert{
		ID:        uuid.New().String(),
		DeviceID:  r.DeviceID,
		Metric:    r.Metric,
		Severity:  severity,
		Status:    StatusActive,
		Value:     r.Value,
		Threshold: threshold,
		Message:   alertMessage(r, severity, threshold),
		CreatedAt: r.Timestamp,
	}
}

func alertMessage(r *Reading, severity Severity, threshold float64) string {
	return fmt.Sprintf("%s %s: %s reading %.2f exceeded threshold %.2f",
		r.DeviceID, severity, r.Metric, r.Value, threshold)
}

// Escalate raises the stored severity in place, keeping the alert active
func (a *Alert) Escalate(r *Reading, severity Severity, threshold float64) {
	a.Severity = severity
	a.Value = r.Value
	a.Threshold = threshold
	a.Message = alertMessage(r, severity, threshold)
}

// Resolve transitions the alert to resolved at the given reading timestamp
func (a *Alert) Resolve(timestamp int64) {
	a.Status = StatusResolved
	a.ResolvedAt = timestamp
}

// IsActive reports whether the alert still blocks new alerts for its identity
func (a *Alert) IsActive() bool {
	return a.Status == StatusActive || a.Status == StatusAcknowledged
}
