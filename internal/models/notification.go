package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationConfig describes one outbound notification target.
// A qualifying alert fans out to every config whose filters match.
type NotificationConfig struct {
	// Provider channel type: "email", "sms", "webhook", ...
	Channel string `json:"channel"`

	// Provider-specific recipient (address, phone number, URL)
	Recipient string `json:"recipient"`

	// Severities that should notify; empty means warning and critical
	SeverityFilter []Severity `json:"severity_filter,omitempty"`

	// Devices this config applies to; empty means all devices
	DeviceFilter []string `json:"device_filter,omitempty"`
}

// Matches reports whether the config wants a notification for this alert
func (c *NotificationConfig) Matches(a *Alert) bool {
	if len(c.SeverityFilter) > 0 {
		found := false
		for _, s := range c.SeverityFilter {
			if s == a.Severity {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	} else if a.Severity != SeverityWarning && a.Severity != SeverityCritical {
		return false
	}

	if len(c.DeviceFilter) > 0 {
		found := false
		for _, d := range c.DeviceFilter {
			if d == a.DeviceID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// NotificationJob is a queued delivery attempt for one config and one alert
type NotificationJob struct {
	ID     string             `json:"id"`
	Config NotificationConfig `json:"config"`
	Alert  *Alert             `json:"alert"`

	// Delivery attempts made so far
	Attempts int `json:"attempts"`

	// Earliest time the next attempt may run
	NextRetryAt time.Time `json:"next_retry_at"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewNotificationJob creates a job for one matching config
func NewNotificationJob(cfg NotificationConfig, alert *Alert) *NotificationJob {
	return &NotificationJob{
		ID:         uuid.New().String(),
		Config:     cfg,
		Alert:      alert,
		EnqueuedAt: time.Now().UTC(),
	}
}
