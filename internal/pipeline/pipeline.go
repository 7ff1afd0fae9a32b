// Package pipeline wires ingestion, evaluation, dispatch, broadcast,
// and notification together and owns their lifecycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetwatch/internal/config"
	"fleetwatch/internal/dispatch"
	"fleetwatch/internal/export"
	"fleetwatch/internal/handlers"
	"fleetwatch/internal/hub"
	"fleetwatch/internal/ingest"
	"fleetwatch/internal/logger"
	"fleetwatch/internal/metrics"
	"fleetwatch/internal/middleware"
	"fleetwatch/internal/models"
	"fleetwatch/internal/notify"
	"fleetwatch/internal/store"
)

// Pipeline errors
var (
	ErrShuttingDown = errors.New("pipeline is shutting down")
	ErrShardFull    = errors.New("dispatch shard is full")
)

// Stores groups the external collaborators the pipeline reads and writes
type Stores struct {
	Thresholds store.ThresholdStore
	Ledger     store.AlertLedger
	Configs    store.NotificationConfigStore
}

// Pipeline is the high-level coordinator for ingesting, evaluating,
// and fanning out sensor readings.
type Pipeline struct {
	cfg        *config.Config
	hub        *hub.Hub
	dispatcher *dispatch.Dispatcher
	queue      *notify.Queue
	exporter   *export.KafkaExporter
	mqttSource *ingest.MQTTSource
	httpServer *http.Server

	// Readings are sharded by (deviceID, metric) onto single-goroutine
	// workers, so same-key readings stay ordered while distinct keys
	// run in parallel.
	shards []chan *models.Reading

	accepting atomic.Bool
	wg        sync.WaitGroup

	processed atomic.Uint64
	failed    atomic.Uint64
}

// New constructs a Pipeline with the given config and stores
func New(cfg *config.Config, stores Stores) (*Pipeline, error) {
	p := &Pipeline{
		cfg: cfg,
		hub: hub.New(cfg.Hub.SendBuffer),
	}

	registry := notify.NewRegistry()
	registry.Register("email", notify.NewEmailProvider(cfg.Notify.SMTPAddr, cfg.Notify.SMTPFrom, nil))
	if cfg.Notify.SMSEndpoint != "" {
		registry.Register("sms", notify.NewSMSProvider(cfg.Notify.SMSEndpoint, cfg.Notify.SMSAPIKey))
	}

	p.queue = notify.NewQueue(notify.Config{
		Registry:     registry,
		QueueSize:    cfg.Notify.QueueSize,
		Workers:      cfg.Notify.Workers,
		MaxAttempts:  cfg.Notify.MaxAttempts,
		RetryBackoff: cfg.Notify.RetryBackoff,
	})

	var exporter dispatch.Exporter
	if cfg.Kafka.Enabled {
		ke, err := export.NewKafkaExporter(cfg.Kafka)
		if err != nil {
			return nil, fmt.Errorf("init kafka exporter: %w", err)
		}
		p.exporter = ke
		exporter = ke
	}

	p.dispatcher = dispatch.New(dispatch.Config{
		Thresholds:    stores.Thresholds,
		Ledger:        stores.Ledger,
		Configs:       stores.Configs,
		Hub:           p.hub,
		Queue:         p.queue,
		Exporter:      exporter,
		LedgerTimeout: cfg.Dispatch.LedgerTimeout,
	})

	shards := cfg.Dispatch.Shards
	if shards <= 0 {
		shards = 8
	}
	buffer := cfg.Dispatch.ShardBuffer
	if buffer <= 0 {
		buffer = 256
	}
	p.shards = make([]chan *models.Reading, shards)
	for i := range p.shards {
		p.shards[i] = make(chan *models.Reading, buffer)
	}

	if cfg.MQTT.Enabled {
		p.mqttSource = ingest.NewMQTTSource(cfg.MQTT, p)
	}

	return p, nil
}

// Hub exposes the broadcast hub for transports
func (p *Pipeline) Hub() *hub.Hub {
	return p.hub
}

// IngestReading is the single inbound entry point. It validates the
// reading and hands it to the shard worker owning its key. Non-blocking:
// a full shard rejects the reading rather than stalling the transport.
func (p *Pipeline) IngestReading(r *models.Reading) error {
	if !p.accepting.Load() {
		return ErrShuttingDown
	}
	if err := r.Validate(); err != nil {
		return err
	}

	shard := p.shards[p.shardFor(r.Key())]
	select {
	case shard <- r:
		return nil
	default:
		return ErrShardFull
	}
}

func (p *Pipeline) shardFor(key string) int {
	f := fnv.New32a()
	f.Write([]byte(key))
	return int(f.Sum32() % uint32(len(p.shards)))
}

// Run starts background goroutines and blocks until context cancelled
func (p *Pipeline) Run(ctx context.Context) error {
	log := logger.WithComponent("pipeline")
	log.Info().Msg("pipeline starting")

	p.queue.Start()

	for i := range p.shards {
		p.wg.Add(1)
		go p.shardWorker(i)
	}
	p.accepting.Store(true)

	if err := p.initHTTPServer(); err != nil {
		return fmt.Errorf("init http server: %w", err)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Info().Str("addr", p.cfg.HTTP.Addr).Msg("starting HTTP server")
		if err := p.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	if p.mqttSource != nil {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := p.mqttSource.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("mqtt source failed")
			}
		}()
	}

	// Stats reporting goroutine
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.reportStats(ctx)
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	return p.shutdown()
}

// shardWorker drains one shard; a single goroutine per shard preserves
// per-key ordering
func (p *Pipeline) shardWorker(id int) {
	defer p.wg.Done()

	log := logger.WithComponent("shard_worker").With().Int("shard", id).Logger()

	for r := range p.shards[id] {
		if err := p.dispatcher.Process(context.Background(), r); err != nil {
			// The next reading for the same key re-attempts the same
			// transition; nothing to do here beyond logging
			log.Error().
				Err(err).
				Str("device_id", r.DeviceID).
				Str("metric", string(r.Metric)).
				Msg("dispatch failed")
			p.failed.Add(1)
			continue
		}
		p.processed.Add(1)
	}
}

// initHTTPServer initializes the HTTP server with handlers
func (p *Pipeline) initHTTPServer() error {
	mux := http.NewServeMux()

	ingestHandler := handlers.NewIngestHandler(handlers.IngestConfig{Sink: p})
	mux.Handle("/ingest", middleware.Chain(
		ingestHandler,
		middleware.Recovery,
		middleware.Logging,
		middleware.Auth(p.cfg.HTTP.AuthToken),
	))

	// Live subscriber endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(p.hub, w, r)
	})

	// Health check
	mux.HandleFunc("/health", p.healthHandler)

	// Stats endpoint
	mux.HandleFunc("/stats", p.statsHandler)

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	p.httpServer = &http.Server{
		Addr:         p.cfg.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return nil
}

// shutdown performs graceful shutdown: stop intake, flush in-flight
// dispatch, then drain the notification queue up to its grace deadline
func (p *Pipeline) shutdown() error {
	log := logger.WithComponent("pipeline")
	log.Info().Msg("initiating graceful shutdown")

	// 1. Stop the transports; Shutdown waits for in-flight requests, so
	// no ingest call is mid-send once it returns
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info().Msg("stopping HTTP server")
	if err := p.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if p.mqttSource != nil {
		p.mqttSource.Stop()
	}

	// 2. Stop accepting new readings
	p.accepting.Store(false)

	// 3. Close shards and let workers flush in-flight readings
	log.Info().Msg("flushing dispatch shards")
	for _, shard := range p.shards {
		close(shard)
	}

	// 4. Drain the notification queue with a grace deadline
	drainCtx, drainCancel := context.WithTimeout(context.Background(), p.cfg.Notify.DrainTimeout)
	defer drainCancel()
	if err := p.queue.Stop(drainCtx); err != nil {
		log.Warn().Err(err).Msg("notification queue drain incomplete")
	}

	// 5. Close exporter
	if p.exporter != nil {
		log.Info().Msg("closing kafka exporter")
		if err := p.exporter.Close(); err != nil {
			log.Error().Err(err).Msg("exporter close error")
		}
	}

	p.wg.Wait()

	log.Info().Msg("pipeline stopped gracefully")
	return nil
}

// reportStats periodically logs statistics
func (p *Pipeline) reportStats(ctx context.Context) {
	log := logger.WithComponent("pipeline")
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			queueStats := p.queue.Stats()

			buffered := 0
			for _, shard := range p.shards {
				buffered += len(shard)
			}
			metrics.DispatchQueueSize.Set(float64(buffered))
			metrics.NotifyQueueSize.Set(float64(queueStats.QueueSize))

			log.Info().
				Uint64("processed", p.processed.Load()).
				Uint64("failed", p.failed.Load()).
				Int("dispatch_buffered", buffered).
				Int("notify_queue_size", queueStats.QueueSize).
				Uint64("notify_sent", queueStats.Sent).
				Uint64("notify_dead_letters", queueStats.DeadLetters).
				Msg("stats")
		}
	}
}

// healthHandler handles health check requests
func (p *Pipeline) healthHandler(w http.ResponseWriter, r *http.Request) {
	if !p.accepting.Load() {
		http.Error(w, "unhealthy: not accepting readings", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// statsHandler returns current statistics
func (p *Pipeline) statsHandler(w http.ResponseWriter, r *http.Request) {
	queueStats := p.queue.Stats()

	buffered := 0
	for _, shard := range p.shards {
		buffered += len(shard)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{
		"dispatch": {
			"processed": %d,
			"failed": %d,
			"buffered": %d
		},
		"notifications": {
			"queue_size": %d,
			"capacity": %d,
			"sent": %d,
			"failed": %d,
			"dropped": %d,
			"dead_letters": %d
		}
	}`,
		p.processed.Load(),
		p.failed.Load(),
		buffered,
		queueStats.QueueSize,
		queueStats.Capacity,
		queueStats.Sent,
		queueStats.Failed,
		queueStats.Dropped,
		queueStats.DeadLetters,
	)
}
