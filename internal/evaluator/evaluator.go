// Package evaluator decides alert severity and lifecycle outcome for a
// single sensor reading. It performs no I/O; callers supply the threshold
// rows and the currently active alert for the reading's identity.
package evaluator

import (
	"fleetwatch/internal/models"
)

// Outcome is the lifecycle instruction produced by an evaluation
type Outcome string

const (
	// OutcomeNone means in range and nothing to do
	OutcomeNone Outcome = "none"

	// OutcomeFire means create a new alert
	OutcomeFire Outcome = "fire"

	// OutcomeEscalate means raise the severity of the active alert in place
	OutcomeEscalate Outcome = "escalate"

	// OutcomeSuppress means an active alert already covers this state
	OutcomeSuppress Outcome = "suppress"

	// OutcomeResolve means the value returned in range; resolve the active alert
	OutcomeResolve Outcome = "resolve"
)

// Result describes what the dispatcher should do with a reading
type Result struct {
	Outcome  Outcome
	Severity models.Severity

	// Bound that was breached, meaningful for Fire and Escalate
	Threshold float64

	// True when warning bounds lie outside the hard bounds; hard
	// bounds took precedence and the config should be flagged once
	Misconfigured bool
}

// Evaluate compares a reading against its thresholds and the currently
// active alert, if any. Zero thresholds means no alerting is configured;
// if several rows exist the first enabled one wins.
func Evaluate(r *models.Reading, thresholds []models.Threshold, active *models.Alert) Result {
	th := pickThreshold(thresholds)
	if th == nil {
		return resolveOrNone(active)
	}

	severity, bound := classify(r.Value, th)
	if severity == models.SeverityNone {
		res := resolveOrNone(active)
		res.Misconfigured = misconfigured(th)
		return res
	}

	res := Result{
		Severity:      severity,
		Threshold:     bound,
		Misconfigured: misconfigured(th),
	}

	switch {
	case active == nil:
		res.Outcome = OutcomeFire
	case severity.Above(active.Severity):
		res.Outcome = OutcomeEscalate
	default:
		// Same or lower severity never downgrades an active alert
		res.Outcome = OutcomeSuppress
	}
	return res
}

// pickThreshold returns the first enabled threshold row, or nil
func pickThreshold(thresholds []models.Threshold) *models.Threshold {
	for i := range thresholds {
		if thresholds[i].Enabled {
			return &thresholds[i]
		}
	}
	return nil
}

// classify derives the severity band and the breached bound.
// Hard limits are checked before warning bounds, so a warning band that
// strays outside the hard limits loses to the hard limit.
func classify(value float64, th *models.Threshold) (models.Severity, float64) {
	if th.MinValue != nil && value < *th.MinValue {
		return models.SeverityCritical, *th.MinValue
	}
	if th.MaxValue != nil && value > *th.MaxValue {
		return models.SeverityCritical, *th.MaxValue
	}
	if th.WarningMin != nil && value < *th.WarningMin {
		return models.SeverityWarning, *th.WarningMin
	}
	if th.WarningMax != nil && value > *th.WarningMax {
		return models.SeverityWarning, *th.WarningMax
	}
	return models.SeverityNone, 0
}

func resolveOrNone(active *models.Alert) Result {
	if active != nil && active.IsActive() {
		return Result{Outcome: OutcomeResolve, Severity: models.SeverityNone}
	}
	return Result{Outcome: OutcomeNone, Severity: models.SeverityNone}
}

// misconfigured reports warning bounds lying outside the hard bounds
func misconfigured(th *models.Threshold) bool {
	if th.WarningMin != nil && th.MinValue != nil && *th.WarningMin < *th.MinValue {
		return true
	}
	if th.WarningMax != nil && th.MaxValue != nil && *th.WarningMax > *th.MaxValue {
		return true
	}
	return false
}
