package evaluator_test

import (
	"testing"

	"fleetwatch/internal/evaluator"
	"fleetwatch/internal/models"
)

func reading(value float64) *models.Reading {
	return &models.Reading{
		DeviceID:  "dev-1",
		Metric:    models.MetricTemperature,
		Value:     value,
		Timestamp: 1700000000000,
	}
}

func activeAlert(severity models.Severity) *models.Alert {
	return &models.Alert{
		ID:       "alert-1",
		DeviceID: "dev-1",
		Metric:   models.MetricTemperature,
		Severity: severity,
		Status:   models.StatusActive,
	}
}

func TestEvaluate_SeverityBands(t *testing.T) {
	th := models.Threshold{
		DeviceID:   "dev-1",
		Metric:     models.MetricTemperature,
		MinValue:   models.Float(10),
		MaxValue:   models.Float(80),
		WarningMin: models.Float(20),
		WarningMax: models.Float(70),
		Enabled:    true,
	}

	tests := []struct {
		name     string
		value    float64
		severity models.Severity
		bound    float64
	}{
		{"in range", 50, models.SeverityNone, 0},
		{"at warning max", 70, models.SeverityNone, 0},
		{"above warning max", 75, models.SeverityWarning, 70},
		{"at hard max", 80, models.SeverityWarning, 70},
		{"above hard max", 85, models.SeverityCritical, 80},
		{"below warning min", 15, models.SeverityWarning, 20},
		{"below hard min", 5, models.SeverityCritical, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := evaluator.Evaluate(reading(tt.value), []models.Threshold{th}, nil)
			if res.Severity != tt.severity {
				t.Errorf("expected severity %s, got %s", tt.severity, res.Severity)
			}
			if tt.severity != models.SeverityNone && res.Threshold != tt.bound {
				t.Errorf("expected threshold %v, got %v", tt.bound, res.Threshold)
			}
		})
	}
}

func TestEvaluate_Outcomes(t *testing.T) {
	th := models.Threshold{
		DeviceID:   "dev-1",
		Metric:     models.MetricTemperature,
		MaxValue:   models.Float(80),
		WarningMax: models.Float(70),
		Enabled:    true,
	}

	tests := []struct {
		name    string
		value   float64
		active  *models.Alert
		outcome evaluator.Outcome
	}{
		{"breach without active fires", 75, nil, evaluator.OutcomeFire},
		{"same severity suppresses", 75, activeAlert(models.SeverityWarning), evaluator.OutcomeSuppress},
		{"higher severity escalates", 85, activeAlert(models.SeverityWarning), evaluator.OutcomeEscalate},
		{"lower severity never downgrades", 75, activeAlert(models.SeverityCritical), evaluator.OutcomeSuppress},
		{"in range without active is a no-op", 50, nil, evaluator.OutcomeNone},
		{"in range with active resolves", 50, activeAlert(models.SeverityCritical), evaluator.OutcomeResolve},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := evaluator.Evaluate(reading(tt.value), []models.Threshold{th}, tt.active)
			if res.Outcome != tt.outcome {
				t.Errorf("expected outcome %s, got %s", tt.outcome, res.Outcome)
			}
		})
	}
}

func TestEvaluate_NoThresholds(t *testing.T) {
	res := evaluator.Evaluate(reading(9999), nil, nil)
	if res.Outcome != evaluator.OutcomeNone {
		t.Errorf("expected none with no thresholds, got %s", res.Outcome)
	}

	// An active alert with no remaining threshold config still resolves
	res = evaluator.Evaluate(reading(9999), nil, activeAlert(models.SeverityWarning))
	if res.Outcome != evaluator.OutcomeResolve {
		t.Errorf("expected resolve with no thresholds and active alert, got %s", res.Outcome)
	}
}

func TestEvaluate_DisabledThreshold(t *testing.T) {
	th := models.Threshold{
		DeviceID: "dev-1",
		Metric:   models.MetricTemperature,
		MaxValue: models.Float(80),
		Enabled:  false,
	}

	res := evaluator.Evaluate(reading(200), []models.Threshold{th}, nil)
	if res.Outcome != evaluator.OutcomeNone {
		t.Errorf("expected none for disabled threshold, got %s", res.Outcome)
	}
	if res.Severity != models.SeverityNone {
		t.Errorf("expected severity none, got %s", res.Severity)
	}
}

func TestEvaluate_FirstEnabledThresholdWins(t *testing.T) {
	disabled := models.Threshold{
		DeviceID: "dev-1", Metric: models.MetricTemperature,
		MaxValue: models.Float(50), Enabled: false,
	}
	enabled := models.Threshold{
		DeviceID: "dev-1", Metric: models.MetricTemperature,
		MaxValue: models.Float(80), Enabled: true,
	}
	other := models.Threshold{
		DeviceID: "dev-1", Metric: models.MetricTemperature,
		MaxValue: models.Float(100), Enabled: true,
	}

	res := evaluator.Evaluate(reading(90), []models.Threshold{disabled, enabled, other}, nil)
	if res.Outcome != evaluator.OutcomeFire {
		t.Fatalf("expected fire, got %s", res.Outcome)
	}
	if res.Threshold != 80 {
		t.Errorf("expected first enabled threshold bound 80, got %v", res.Threshold)
	}
}

func TestEvaluate_MisconfiguredBounds(t *testing.T) {
	// Warning max beyond the hard max: hard bound takes precedence
	th := models.Threshold{
		DeviceID:   "dev-1",
		Metric:     models.MetricTemperature,
		MaxValue:   models.Float(80),
		WarningMax: models.Float(90),
		Enabled:    true,
	}

	res := evaluator.Evaluate(reading(85), []models.Threshold{th}, nil)
	if res.Severity != models.SeverityCritical {
		t.Errorf("expected critical from hard bound precedence, got %s", res.Severity)
	}
	if !res.Misconfigured {
		t.Error("expected misconfigured flag")
	}
}

func TestEvaluate_BreachSequence(t *testing.T) {
	th := models.Threshold{
		DeviceID:   "dev-1",
		Metric:     models.MetricTemperature,
		MaxValue:   models.Float(80),
		WarningMax: models.Float(70),
		Enabled:    true,
	}
	thresholds := []models.Threshold{th}

	// value=75 fires a warning referencing bound 70
	res := evaluator.Evaluate(reading(75), thresholds, nil)
	if res.Outcome != evaluator.OutcomeFire || res.Severity != models.SeverityWarning {
		t.Fatalf("expected warning fire, got %s/%s", res.Outcome, res.Severity)
	}
	if res.Threshold != 70 {
		t.Fatalf("expected threshold 70, got %v", res.Threshold)
	}
	active := models.NewAlert(reading(75), res.Severity, res.Threshold)

	// value=85 escalates to critical
	res = evaluator.Evaluate(reading(85), thresholds, active)
	if res.Outcome != evaluator.OutcomeEscalate || res.Severity != models.SeverityCritical {
		t.Fatalf("expected critical escalate, got %s/%s", res.Outcome, res.Severity)
	}
	active.Escalate(reading(85), res.Severity, res.Threshold)

	// a later warning-level reading must not downgrade
	res = evaluator.Evaluate(reading(75), thresholds, active)
	if res.Outcome != evaluator.OutcomeSuppress {
		t.Fatalf("expected suppress after escalation, got %s", res.Outcome)
	}

	// value=60 resolves
	res = evaluator.Evaluate(reading(60), thresholds, active)
	if res.Outcome != evaluator.OutcomeResolve {
		t.Fatalf("expected resolve, got %s", res.Outcome)
	}
}
