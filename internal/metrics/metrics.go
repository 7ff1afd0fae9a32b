package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetwatch_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	// Ingest metrics
	ReadingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_readings_total",
			Help: "Total number of sensor readings received",
		},
		[]string{"source", "status"}, // source: http, mqtt; status: accepted, rejected
	)

	ReadingValidationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_reading_validation_errors_total",
			Help: "Total number of reading validation errors",
		},
		[]string{"error_type"},
	)

	// Evaluation and dispatch metrics
	EvaluationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_evaluation_outcomes_total",
			Help: "Total number of threshold evaluation outcomes",
		},
		[]string{"outcome"}, // fire, escalate, suppress, resolve, none
	)

	AlertsFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_alerts_fired_total",
			Help: "Total number of alerts created or escalated",
		},
		[]string{"severity"},
	)

	LedgerWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetwatch_ledger_write_failures_total",
			Help: "Total number of failed alert ledger writes",
		},
	)

	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetwatch_dispatch_duration_seconds",
			Help:    "Time taken to dispatch a reading end to end",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	DispatchQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetwatch_dispatch_queue_size",
			Help: "Current number of readings buffered across dispatch shards",
		},
	)

	// Broadcast hub metrics
	HubConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetwatch_hub_connections",
			Help: "Current number of live hub connections",
		},
	)

	HubSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetwatch_hub_subscriptions",
			Help: "Current number of channel subscriptions across all connections",
		},
	)

	HubMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_hub_messages_published_total",
			Help: "Total number of messages delivered to subscribers",
		},
		[]string{"kind"}, // sensor, alert, status
	)

	HubMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetwatch_hub_messages_dropped_total",
			Help: "Total number of messages dropped due to full subscriber buffers",
		},
	)

	// Notification metrics
	NotifyQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetwatch_notify_queue_size",
			Help: "Current size of the notification queue",
		},
	)

	NotifyQueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetwatch_notify_queue_capacity",
			Help: "Capacity of the notification queue",
		},
	)

	NotifySentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_notify_sent_total",
			Help: "Total number of notifications delivered by providers",
		},
		[]string{"channel"},
	)

	NotifyFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_notify_failed_total",
			Help: "Total number of failed provider send attempts",
		},
		[]string{"channel"},
	)

	NotifyRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetwatch_notify_retries_total",
			Help: "Total number of notification retry attempts scheduled",
		},
	)

	NotifyDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetwatch_notify_dropped_total",
			Help: "Total number of notification jobs rejected because the queue was full",
		},
	)

	NotifyDeadLetters = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetwatch_notify_dead_letters_total",
			Help: "Total number of notification jobs abandoned after exhausting retries",
		},
	)

	NotifySendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetwatch_notify_send_duration_seconds",
			Help:    "Time taken by a provider send call",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Kafka export metrics
	ExportPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_export_publish_total",
			Help: "Total number of alert events published to Kafka",
		},
		[]string{"status"}, // status: success, failed
	)

	ExportPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetwatch_export_publish_retries_total",
			Help: "Total number of Kafka publish retries",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
