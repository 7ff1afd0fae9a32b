package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"fleetwatch/internal/config"
	"fleetwatch/internal/models"
	"fleetwatch/internal/pipeline"
	"fleetwatch/internal/store"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Notify.DrainTimeout = 2 * time.Second
	return cfg
}

func startPipeline(t *testing.T, mem *store.MemoryStore) (*pipeline.Pipeline, context.CancelFunc) {
	t.Helper()

	p, err := pipeline.New(testConfig(), pipeline.Stores{
		Thresholds: mem,
		Ledger:     mem,
		Configs:    mem,
	})
	if err != nil {
		t.Fatalf("pipeline setup failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("pipeline did not stop in time")
		}
	})

	// Let Run bring the workers up
	time.Sleep(100 * time.Millisecond)
	return p, cancel
}

func TestPipeline_EndToEnd(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.SetThreshold(models.Threshold{
		DeviceID:   "dev-1",
		Metric:     models.MetricTemperature,
		MaxValue:   models.Float(80),
		WarningMax: models.Float(70),
		Enabled:    true,
	})

	p, _ := startPipeline(t, mem)

	now := time.Now().UnixMilli()
	readings := []*models.Reading{
		{DeviceID: "dev-1", Metric: models.MetricTemperature, Value: 75, Timestamp: now},
		{DeviceID: "dev-1", Metric: models.MetricTemperature, Value: 85, Timestamp: now + 1},
		{DeviceID: "dev-1", Metric: models.MetricTemperature, Value: 60, Timestamp: now + 2},
	}
	for _, r := range readings {
		if err := p.IngestReading(r); err != nil {
			t.Fatalf("ingest failed: %v", err)
		}
	}

	time.Sleep(300 * time.Millisecond)

	alerts := mem.Alerts("dev-1", models.MetricTemperature)
	if len(alerts) != 1 {
		t.Fatalf("expected one alert for the whole sequence, got %d", len(alerts))
	}
	if alerts[0].Severity != models.SeverityCritical {
		t.Errorf("expected critical after escalation, got %s", alerts[0].Severity)
	}
	if alerts[0].Status != models.StatusResolved {
		t.Errorf("expected resolved after in-range reading, got %s", alerts[0].Status)
	}
	if alerts[0].ResolvedAt != now+2 {
		t.Errorf("expected resolvedAt %d, got %d", now+2, alerts[0].ResolvedAt)
	}
}

func TestPipeline_IngestValidates(t *testing.T) {
	p, _ := startPipeline(t, store.NewMemoryStore())

	err := p.IngestReading(&models.Reading{Metric: models.MetricTemperature, Timestamp: 1})
	if !errors.Is(err, models.ErrEmptyDeviceID) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestPipeline_RejectsAfterShutdown(t *testing.T) {
	p, cancel := startPipeline(t, store.NewMemoryStore())

	cancel()
	time.Sleep(300 * time.Millisecond)

	err := p.IngestReading(&models.Reading{
		DeviceID:  "dev-1",
		Metric:    models.MetricTemperature,
		Value:     20,
		Timestamp: time.Now().UnixMilli(),
	})
	if !errors.Is(err, pipeline.ErrShuttingDown) {
		t.Errorf("expected ErrShuttingDown, got %v", err)
	}
}
