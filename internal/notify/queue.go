package notify

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"fleetwatch/internal/logger"
	"fleetwatch/internal/metrics"
	"fleetwatch/internal/models"
)

// Queue errors
var (
	ErrQueueFull    = errors.New("notification queue is full")
	ErrQueueStopped = errors.New("notification queue is stopped")
)

// Queue is a bounded FIFO of notification jobs drained by a worker
// pool. When full, new enqueues are rejected and counted as dropped;
// the alert ledger remains the source of truth, so an overloaded queue
// loses notifications, never alerts.
type Queue struct {
	jobs     chan *models.NotificationJob
	registry *Registry

	workers      int
	maxAttempts  int
	retryBackoff time.Duration

	wg        sync.WaitGroup
	pending   sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	accepting atomic.Bool

	// Counters
	sent        atomic.Uint64
	failed      atomic.Uint64
	dropped     atomic.Uint64
	deadLetters atomic.Uint64
}

// Config holds notification queue configuration
type Config struct {
	Registry     *Registry
	QueueSize    int
	Workers      int
	MaxAttempts  int
	RetryBackoff time.Duration
}

// NewQueue creates a queue; Start must be called before Enqueue
func NewQueue(cfg Config) *Queue {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())

	q := &Queue{
		jobs:         make(chan *models.NotificationJob, cfg.QueueSize),
		registry:     cfg.Registry,
		workers:      cfg.Workers,
		maxAttempts:  cfg.MaxAttempts,
		retryBackoff: cfg.RetryBackoff,
		ctx:          ctx,
		cancel:       cancel,
	}
	metrics.NotifyQueueCapacity.Set(float64(cfg.QueueSize))
	return q
}

// Start launches the worker pool
func (q *Queue) Start() {
	log := logger.WithComponent("notify_queue")
	log.Info().
		Int("workers", q.workers).
		Int("capacity", cap(q.jobs)).
		Int("max_attempts", q.maxAttempts).
		Dur("retry_backoff", q.retryBackoff).
		Msg("starting notification workers")

	q.accepting.Store(true)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
}

// Enqueue adds a job without blocking. Returns ErrQueueFull when the
// queue is at capacity; the drop is counted and observable.
func (q *Queue) Enqueue(job *models.NotificationJob) error {
	if !q.accepting.Load() {
		return ErrQueueStopped
	}

	q.pending.Add(1)
	select {
	case q.jobs <- job:
		metrics.NotifyQueueSize.Set(float64(len(q.jobs)))
		return nil
	default:
		q.pending.Done()
		q.dropped.Add(1)
		metrics.NotifyDropped.Inc()
		return ErrQueueFull
	}
}

// Stop drains the queue: no new jobs are accepted, and workers keep
// delivering until everything in flight (including scheduled retries)
// settles or the context deadline passes. Jobs still unsent at the
// deadline are logged, not silently discarded.
func (q *Queue) Stop(ctx context.Context) error {
	log := logger.WithComponent("notify_queue")
	q.accepting.Store(false)

	drained := make(chan struct{})
	go func() {
		q.pending.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
		log.Info().Msg("notification queue drained")
	case <-ctx.Done():
		log.Warn().
			Int("unsent", len(q.jobs)).
			Msg("drain deadline reached, abandoning unsent notifications")
		err = ctx.Err()
	}

	q.cancel()
	q.wg.Wait()

	// Anything left was never delivered; surface it for manual follow-up
	for {
		select {
		case job := <-q.jobs:
			log.Error().
				Str("job_id", job.ID).
				Str("channel", job.Config.Channel).
				Str("recipient", job.Config.Recipient).
				Str("alert_id", job.Alert.ID).
				Msg("notification unsent at shutdown")
		default:
			return err
		}
	}
}

// worker delivers jobs until the queue shuts down
func (q *Queue) worker(id int) {
	defer q.wg.Done()

	log := logger.WithComponent("notify_worker").With().Int("worker_id", id).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("worker panic recovered")
			metrics.PanicsRecovered.WithLabelValues("notify_worker").Inc()
		}
	}()

	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			metrics.NotifyQueueSize.Set(float64(len(q.jobs)))
			q.deliver(job)
		}
	}
}

// deliver makes one send attempt and decides the job's fate
func (q *Queue) deliver(job *models.NotificationJob) {
	log := logger.WithComponent("notify_worker").With().
		Str("job_id", job.ID).
		Str("channel", job.Config.Channel).
		Logger()

	provider, err := q.registry.Resolve(job.Config.Channel)
	if err != nil {
		// No provider is a config problem, not a transient failure
		log.Error().Err(err).Msg("dead-lettering job with unknown channel")
		q.deadLetter(job, err)
		return
	}

	start := time.Now()
	err = provider.Send(q.ctx, job)
	metrics.NotifySendDuration.Observe(time.Since(start).Seconds())

	if err == nil {
		q.sent.Add(1)
		metrics.NotifySentTotal.WithLabelValues(job.Config.Channel).Inc()
		log.Debug().Int("attempts", job.Attempts+1).Msg("notification delivered")
		q.pending.Done()
		return
	}

	q.failed.Add(1)
	metrics.NotifyFailedTotal.WithLabelValues(job.Config.Channel).Inc()

	job.Attempts++
	if job.Attempts >= q.maxAttempts {
		log.Error().
			Err(err).
			Int("attempts", job.Attempts).
			Msg("notification exhausted retries")
		q.deadLetter(job, err)
		return
	}

	// Exponential backoff: base × 2^attempts
	delay := q.retryBackoff * (1 << uint(job.Attempts))
	job.NextRetryAt = time.Now().Add(delay)
	metrics.NotifyRetries.Inc()

	log.Warn().
		Err(err).
		Int("attempt", job.Attempts).
		Dur("backoff", delay).
		Msg("notification failed, retry scheduled")

	time.AfterFunc(delay, func() { q.requeue(job) })
}

// requeue puts a retry back on the queue once its backoff elapses
func (q *Queue) requeue(job *models.NotificationJob) {
	log := logger.WithComponent("notify_queue")

	select {
	case <-q.ctx.Done():
		log.Error().
			Str("job_id", job.ID).
			Str("channel", job.Config.Channel).
			Msg("retry abandoned at shutdown")
		q.pending.Done()
	case q.jobs <- job:
	default:
		// Queue refilled while the job was backing off
		log.Error().
			Str("job_id", job.ID).
			Msg("queue full on retry, dead-lettering")
		q.deadLetter(job, ErrQueueFull)
	}
}

// deadLetter terminally abandons a job; the counter is the only trace
// beyond the log line
func (q *Queue) deadLetter(job *models.NotificationJob, cause error) {
	q.deadLetters.Add(1)
	metrics.NotifyDeadLetters.Inc()
	log := logger.WithComponent("notify_queue")
	log.Error().
		Err(cause).
		Str("job_id", job.ID).
		Str("channel", job.Config.Channel).
		Str("recipient", job.Config.Recipient).
		Str("alert_id", job.Alert.ID).
		Int("attempts", job.Attempts).
		Msg("notification moved to dead letter")
	q.pending.Done()
}

// Stats returns queue statistics
func (q *Queue) Stats() Stats {
	return Stats{
		QueueSize:   len(q.jobs),
		Capacity:    cap(q.jobs),
		Sent:        q.sent.Load(),
		Failed:      q.failed.Load(),
		Dropped:     q.dropped.Load(),
		DeadLetters: q.deadLetters.Load(),
	}
}

// Stats holds notification queue metrics
type Stats struct {
	QueueSize   int
	Capacity    int
	Sent        uint64
	Failed      uint64
	Dropped     uint64
	DeadLetters uint64
}
