package models

// Threshold is the per-device-per-metric alerting configuration.
// Bounds are optional; a nil bound means "no limit on that side".
type Threshold struct {
	DeviceID string `json:"device_id"`
	Metric   Metric `json:"metric"`

	// Hard limits; breaching either is critical
	MinValue *float64 `json:"min_value,omitempty"`
	MaxValue *float64 `json:"max_value,omitempty"`

	// Warning band inside the hard limits
	WarningMin *float64 `json:"warning_min,omitempty"`
	WarningMax *float64 `json:"warning_max,omitempty"`

	Enabled bool `json:"enabled"`
}

// HasHardBounds reports whether any hard limit is configured
func (t *Threshold) HasHardBounds() bool {
	return t.MinValue != nil || t.MaxValue != nil
}

// HasWarningBounds reports whether any warning bound is configured
func (t *Threshold) HasWarningBounds() bool {
	return t.WarningMin != nil || t.WarningMax != nil
}

// Float is a convenience for building optional bounds in config and tests
func Float(v float64) *float64 { return &v }
