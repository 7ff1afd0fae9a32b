package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleetwatch/internal/config"
	"fleetwatch/internal/logger"
	"fleetwatch/internal/pipeline"
	"fleetwatch/internal/store"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	stores, cleanup, err := buildStores(cfg)
	if err != nil {
		log.Fatalf("store setup failed: %v", err)
	}
	defer cleanup()

	p, err := pipeline.New(cfg, stores)
	if err != nil {
		log.Fatalf("pipeline setup failed: %v", err)
	}

	// run pipeline in background
	go func() {
		if err := p.Run(ctx); err != nil {
			log.Printf("pipeline exited: %v", err)
			cancel()
		}
	}()

	// wait for termination signals
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigs:
		log.Println("shutting down")
		cancel()
	case <-ctx.Done():
	}

	// give graceful shutdown some time
	time.Sleep(500 * time.Millisecond)
	log.Println("exited")
}

// buildStores assembles the configured store implementations: in-memory
// by default, a Postgres alert ledger and a Redis threshold cache when
// enabled.
func buildStores(cfg *config.Config) (pipeline.Stores, func(), error) {
	mem := store.NewMemoryStore()
	stores := pipeline.Stores{
		Thresholds: mem,
		Ledger:     mem,
		Configs:    mem,
	}
	var closers []func()

	if cfg.Postgres.Enabled {
		ledger, err := store.NewPostgresLedger(cfg.Postgres.DSN)
		if err != nil {
			return stores, func() {}, err
		}
		stores.Ledger = ledger
		closers = append(closers, func() { ledger.Close() })
	}

	if cfg.Redis.Enabled {
		cache, err := store.NewThresholdCache(cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.TTL, stores.Thresholds)
		if err != nil {
			return stores, func() {}, err
		}
		stores.Thresholds = cache
		closers = append(closers, func() { cache.Close() })
	}

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return stores, cleanup, nil
}
