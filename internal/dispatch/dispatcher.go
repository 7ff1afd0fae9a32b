// Package dispatch coordinates evaluation results: ledger writes, hub
// publishes, and notification fan-out. Subscribers never see an alert
// that did not durably persist.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fleetwatch/internal/evaluator"
	"fleetwatch/internal/hub"
	"fleetwatch/internal/logger"
	"fleetwatch/internal/metrics"
	"fleetwatch/internal/models"
	"fleetwatch/internal/notify"
	"fleetwatch/internal/store"
)

// Exporter receives alert lifecycle events for downstream consumers.
// Export failures are logged, never propagated.
type Exporter interface {
	ExportAlert(ctx context.Context, event string, alert *models.Alert) error
}

// Dispatcher is the coordination core of the pipeline
type Dispatcher struct {
	thresholds store.ThresholdStore
	ledger     store.AlertLedger
	configs    store.NotificationConfigStore
	hub        *hub.Hub
	queue      *notify.Queue
	exporter   Exporter

	ledgerTimeout time.Duration
	locks         lockTable

	// Keys whose threshold misconfiguration was already logged
	anomalies sync.Map
}

// Config holds dispatcher dependencies
type Config struct {
	Thresholds store.ThresholdStore
	Ledger     store.AlertLedger
	Configs    store.NotificationConfigStore
	Hub        *hub.Hub
	Queue      *notify.Queue

	// Optional Kafka alert-event exporter
	Exporter Exporter

	// Upper bound on a single ledger call
	LedgerTimeout time.Duration
}

// New creates a dispatcher
func New(cfg Config) *Dispatcher {
	if cfg.LedgerTimeout <= 0 {
		cfg.LedgerTimeout = 2 * time.Second
	}
	return &Dispatcher{
		thresholds:    cfg.Thresholds,
		ledger:        cfg.Ledger,
		configs:       cfg.Configs,
		hub:           cfg.Hub,
		queue:         cfg.Queue,
		exporter:      cfg.Exporter,
		ledgerTimeout: cfg.LedgerTimeout,
	}
}

// Process evaluates and dispatches one reading. The raw reading is
// published to the sensor stream regardless of the alert outcome, so
// alerting failures never blind live monitoring. Per-key locking keeps
// concurrent same-key readings from double-firing.
func (d *Dispatcher) Process(ctx context.Context, r *models.Reading) error {
	start := time.Now()
	defer func() {
		metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	}()

	d.hub.Publish(hub.SensorChannel(r.DeviceID), hub.Message{
		Type:      "sensor",
		Data:      r,
		Timestamp: r.Timestamp,
	})

	mu := d.locks.get(r.Key())
	mu.Lock()
	defer mu.Unlock()

	thresholds, err := d.thresholds.GetThresholds(ctx, r.DeviceID, r.Metric)
	if err != nil {
		return fmt.Errorf("get thresholds: %w", err)
	}

	active, err := d.getActive(ctx, r)
	if err != nil {
		return fmt.Errorf("get active alert: %w", err)
	}

	res := evaluator.Evaluate(r, thresholds, active)
	metrics.EvaluationOutcomes.WithLabelValues(string(res.Outcome)).Inc()

	if res.Misconfigured {
		d.flagAnomaly(r)
	}

	return d.apply(ctx, r, res, active)
}

// Dispatch applies an evaluation result for a reading. Callers that use
// Process never need this; it exists for transports that evaluate
// separately. The active alert is re-read from the ledger.
func (d *Dispatcher) Dispatch(ctx context.Context, r *models.Reading, res evaluator.Result) error {
	mu := d.locks.get(r.Key())
	mu.Lock()
	defer mu.Unlock()

	active, err := d.getActive(ctx, r)
	if err != nil {
		return fmt.Errorf("get active alert: %w", err)
	}
	return d.apply(ctx, r, res, active)
}

func (d *Dispatcher) getActive(ctx context.Context, r *models.Reading) (*models.Alert, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, d.ledgerTimeout)
	defer cancel()
	return d.ledger.GetActiveAlert(lookupCtx, r.DeviceID, r.Metric)
}

func (d *Dispatcher) apply(ctx context.Context, r *models.Reading, res evaluator.Result, active *models.Alert) error {
	switch res.Outcome {
	case evaluator.OutcomeFire:
		alert := models.NewAlert(r, res.Severity, res.Threshold)
		return d.raise(ctx, r, alert, "fired")

	case evaluator.OutcomeEscalate:
		if active == nil {
			// Active alert vanished between evaluation and dispatch;
			// treat as a fresh fire
			alert := models.NewAlert(r, res.Severity, res.Threshold)
			return d.raise(ctx, r, alert, "fired")
		}
		active.Escalate(r, res.Severity, res.Threshold)
		return d.raise(ctx, r, active, "escalated")

	case evaluator.OutcomeResolve:
		if active == nil {
			return nil
		}
		return d.resolve(ctx, r, active)

	default:
		// Suppress and none are deliberate no-ops
		return nil
	}
}

// raise persists a fired or escalated alert, then fans it out
func (d *Dispatcher) raise(ctx context.Context, r *models.Reading, alert *models.Alert, event string) error {
	log := logger.WithDevice(r.DeviceID, string(r.Metric))

	if err := d.writeLedger(ctx, alert); err != nil {
		// No publish, no notify: subscribers must never see an alert
		// that is not in the ledger
		log.Error().Err(err).Str("event", event).Msg("ledger write failed")
		return err
	}

	log.Info().
		Str("alert_id", alert.ID).
		Str("severity", string(alert.Severity)).
		Float64("value", alert.Value).
		Float64("threshold", alert.Threshold).
		Msgf("alert %s", event)
	metrics.AlertsFired.WithLabelValues(string(alert.Severity)).Inc()

	msg := hub.Message{Type: "alert", Data: alert, Timestamp: r.Timestamp}
	d.hub.Publish(hub.AlertChannel(r.DeviceID), msg)
	d.hub.Publish(hub.ChannelAllAlerts, msg)

	d.export(ctx, event, alert)

	if alert.Severity == models.SeverityWarning || alert.Severity == models.SeverityCritical {
		d.fanOut(ctx, alert)
	}
	return nil
}

// resolve closes the active alert and publishes the status change.
// Resolution never notifies; only escalations do.
func (d *Dispatcher) resolve(ctx context.Context, r *models.Reading, active *models.Alert) error {
	log := logger.WithDevice(r.DeviceID, string(r.Metric))

	active.Resolve(r.Timestamp)
	if err := d.writeLedger(ctx, active); err != nil {
		log.Error().Err(err).Msg("ledger write failed on resolve")
		return err
	}

	log.Info().
		Str("alert_id", active.ID).
		Int64("resolved_at", active.ResolvedAt).
		Msg("alert resolved")

	msg := hub.Message{Type: "status", Data: active, Timestamp: r.Timestamp}
	d.hub.Publish(hub.AlertChannel(r.DeviceID), msg)
	d.hub.Publish(hub.ChannelAllAlerts, msg)

	d.export(ctx, "resolved", active)
	return nil
}

func (d *Dispatcher) writeLedger(ctx context.Context, alert *models.Alert) error {
	writeCtx, cancel := context.WithTimeout(ctx, d.ledgerTimeout)
	defer cancel()
	if err := d.ledger.Upsert(writeCtx, alert); err != nil {
		metrics.LedgerWriteFailures.Inc()
		return err
	}
	return nil
}

// fanOut enqueues one notification job per matching config
func (d *Dispatcher) fanOut(ctx context.Context, alert *models.Alert) {
	log := logger.WithComponent("dispatcher")

	configs, err := d.configs.ListConfigs(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list notification configs")
		return
	}

	for _, cfg := range configs {
		if !cfg.Matches(alert) {
			continue
		}
		job := models.NewNotificationJob(cfg, alert)
		if err := d.queue.Enqueue(job); err != nil {
			log.Warn().
				Err(err).
				Str("channel", cfg.Channel).
				Str("alert_id", alert.ID).
				Msg("notification enqueue rejected")
		}
	}
}

func (d *Dispatcher) export(ctx context.Context, event string, alert *models.Alert) {
	if d.exporter == nil {
		return
	}
	if err := d.exporter.ExportAlert(ctx, event, alert); err != nil {
		log := logger.WithComponent("dispatcher")
		log.Warn().
			Err(err).
			Str("event", event).
			Str("alert_id", alert.ID).
			Msg("alert export failed")
	}
}

// flagAnomaly logs a threshold misconfiguration once per key
func (d *Dispatcher) flagAnomaly(r *models.Reading) {
	if _, seen := d.anomalies.LoadOrStore(r.Key(), struct{}{}); !seen {
		log := logger.WithDevice(r.DeviceID, string(r.Metric))
		log.Warn().
			Msg("warning bounds lie outside hard bounds, hard bounds take precedence")
	}
}
