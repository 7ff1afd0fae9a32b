// Package export publishes alert lifecycle events to Kafka for
// downstream analytics consumers. Export is best effort; the alert
// ledger, not the topic, is the source of truth.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"fleetwatch/internal/config"
	"fleetwatch/internal/logger"
	"fleetwatch/internal/metrics"
	"fleetwatch/internal/models"
)

// Exporter errors
var (
	ErrExporterClosed = errors.New("exporter is closed")
)

// AlertEvent is the message published per alert transition
type AlertEvent struct {
	Event     string        `json:"event"` // fired, escalated, resolved
	Alert     *models.Alert `json:"alert"`
	Timestamp time.Time     `json:"timestamp"`
}

// KafkaExporter writes alert events to a topic, keyed by device so one
// device's transitions stay ordered within a partition
type KafkaExporter struct {
	writer *kafka.Writer
	cfg    config.KafkaConfig
	closed atomic.Bool

	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewKafkaExporter creates an exporter for the configured topic
func NewKafkaExporter(cfg config.KafkaConfig) (*KafkaExporter, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{}, // Partition by key
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false, // Sync for reliability
	}

	return &KafkaExporter{writer: writer, cfg: cfg}, nil
}

// ExportAlert publishes one alert transition with bounded retries
func (e *KafkaExporter) ExportAlert(ctx context.Context, event string, alert *models.Alert) error {
	if e.closed.Load() {
		return ErrExporterClosed
	}

	data, err := json.Marshal(AlertEvent{
		Event:     event,
		Alert:     alert,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		e.failed.Add(1)
		return fmt.Errorf("serialize alert event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(alert.DeviceID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(event)},
			{Key: "alert_id", Value: []byte(alert.ID)},
		},
	}

	if err := e.publishWithRetry(ctx, msg); err != nil {
		e.failed.Add(1)
		metrics.ExportPublishTotal.WithLabelValues("failed").Inc()
		return err
	}

	e.sent.Add(1)
	metrics.ExportPublishTotal.WithLabelValues("success").Inc()
	return nil
}

// publishWithRetry publishes a message with exponential backoff retry
func (e *KafkaExporter) publishWithRetry(ctx context.Context, msg kafka.Message) error {
	log := logger.WithComponent("kafka_exporter")
	var lastErr error
	backoff := e.cfg.RetryBackoff

	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("retrying kafka publish")

			metrics.ExportPublishRetries.Inc()

			select {
			case <-time.After(backoff):
				backoff *= 2 // Exponential backoff
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := e.writer.WriteMessages(ctx, msg)
		if err == nil {
			return nil
		}

		lastErr = err
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Msg("kafka publish attempt failed")

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", e.cfg.MaxRetries+1, lastErr)
}

// Close closes the underlying writer
func (e *KafkaExporter) Close() error {
	if e.closed.Swap(true) {
		return nil // Already closed
	}
	return e.writer.Close()
}

// Stats returns exporter statistics
func (e *KafkaExporter) Stats() Stats {
	return Stats{
		Sent:   e.sent.Load(),
		Failed: e.failed.Load(),
	}
}

// Stats holds exporter metrics
type Stats struct {
	Sent   uint64
	Failed uint64
}
