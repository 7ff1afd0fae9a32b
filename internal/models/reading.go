package models

import (
	"errors"
	"strings"
	"time"
)

// Metric identifies the measured quantity of a sensor reading
type Metric string

const (
	MetricTemperature Metric = "temperature"
	MetricHumidity    Metric = "humidity"
	MetricVibration   Metric = "vibration"
	MetricPower       Metric = "power"
	MetricPressure    Metric = "pressure"
	MetricRPM         Metric = "rpm"
)

// Reading is an immutable sensor measurement from a device
type Reading struct {
	// Device that produced the reading
	DeviceID string `json:"device_id"`

	// Measured metric
	Metric Metric `json:"metric"`

	// Measured value
	Value float64 `json:"value"`

	// Measurement time in epoch milliseconds
	Timestamp int64 `json:"timestamp"`
}

// Validation errors
var (
	ErrEmptyDeviceID   = errors.New("device ID cannot be empty")
	ErrInvalidMetric   = errors.New("invalid metric name")
	ErrZeroTimestamp   = errors.New("timestamp cannot be zero")
	ErrFutureTimestamp = errors.New("timestamp cannot be in the future")
)

// Validate checks if the Reading has all required fields and valid values
func (r *Reading) Validate() error {
	if r.DeviceID == "" {
		return ErrEmptyDeviceID
	}

	if !r.Metric.IsValid() {
		return ErrInvalidMetric
	}

	if r.Timestamp <= 0 {
		return ErrZeroTimestamp
	}

	if r.Timestamp > time.Now().Add(time.Minute).UnixMilli() {
		return ErrFutureTimestamp
	}

	return nil
}

// Normalize trims and lower-cases identifying fields
func (r *Reading) Normalize() {
	r.DeviceID = strings.TrimSpace(r.DeviceID)
	r.Metric = Metric(strings.ToLower(strings.TrimSpace(string(r.Metric))))
}

// Time returns the reading timestamp as a time.Time
func (r *Reading) Time() time.Time {
	return time.UnixMilli(r.Timestamp).UTC()
}

// Key returns the (deviceID, metric) identity used for alert dedup and ordering
func (r *Reading) Key() string {
	return r.DeviceID + ":" + string(r.Metric)
}

// IsValid checks if the metric name is one of the supported set
func (m Metric) IsValid() bool {
	switch m {
	case MetricTemperature, MetricHumidity, MetricVibration, MetricPower, MetricPressure, MetricRPM:
		return true
	default:
		return false
	}
}
