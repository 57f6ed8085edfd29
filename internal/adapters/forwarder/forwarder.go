// Package forwarder delivers scored readings to the durable store with
// bounded retries and exponential backoff.
//
// Every reading becomes a delivery driven through attempting -> waiting ->
// attempting ... until it is delivered or failed. Attempts run on a worker
// pool; a waiting delivery holds no worker, a timer re-enqueues it once its
// backoff has elapsed.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/gridedge/internal/adapters/mq/queue"
	"github.com/okian/gridedge/internal/adapters/mq/worker"
	"github.com/okian/gridedge/internal/domain/model"
	"github.com/okian/gridedge/pkg/logger"
	"github.com/okian/gridedge/pkg/metrics"
)

const (
	defaultMaxRetries     = 3
	defaultBaseDelay      = time.Second
	defaultAttemptTimeout = 5 * time.Second
	defaultWorkerCount    = 16
	defaultQueueSize      = 10_000
)

// Stats is a snapshot of forwarder counters.
type Stats struct {
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Retries   int64 `json:"retries"`
	Waiting   int64 `json:"waiting"`
	Queued    int   `json:"queued"`
}

// Forwarder owns the delivery queue, its worker pool and pending retries.
type Forwarder struct {
	store          Store
	maxRetries     int
	baseDelay      time.Duration
	attemptTimeout time.Duration
	workerCount    int
	queueSize      int
	logger         logger.Logger

	queue *queue.InMemoryQueue[*delivery]
	pool  *worker.Pool[*delivery]

	mu      sync.Mutex
	stopped bool
	waiting map[*delivery]struct{}
	cancel  context.CancelFunc

	delivered atomic.Int64
	failed    atomic.Int64
	retries   atomic.Int64
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithMaxRetries sets the total number of attempts per reading.
func WithMaxRetries(n int) Option {
	return func(f *Forwarder) {
		if n > 0 {
			f.maxRetries = n
		}
	}
}

// WithBaseDelay sets the backoff unit.
func WithBaseDelay(d time.Duration) Option {
	return func(f *Forwarder) {
		if d >= 0 {
			f.baseDelay = d
		}
	}
}

// WithAttemptTimeout bounds each store call.
func WithAttemptTimeout(d time.Duration) Option {
	return func(f *Forwarder) {
		if d > 0 {
			f.attemptTimeout = d
		}
	}
}

// WithWorkerCount sets the number of concurrent attempts.
func WithWorkerCount(n int) Option {
	return func(f *Forwarder) {
		if n > 0 {
			f.workerCount = n
		}
	}
}

// WithQueueSize bounds the number of deliveries waiting for a worker.
func WithQueueSize(n int) Option {
	return func(f *Forwarder) {
		if n > 0 {
			f.queueSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(f *Forwarder) {
		if l != nil {
			f.logger = l
		}
	}
}

// New creates a Forwarder for store. Call Start before Forward.
func New(store Store, opts ...Option) *Forwarder {
	f := &Forwarder{
		store:          store,
		maxRetries:     defaultMaxRetries,
		baseDelay:      defaultBaseDelay,
		attemptTimeout: defaultAttemptTimeout,
		workerCount:    defaultWorkerCount,
		queueSize:      defaultQueueSize,
		waiting:        make(map[*delivery]struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = logger.Get().Named("forwarder")
	}
	f.queue = queue.NewInMemoryQueue[*delivery](queue.WithCapacity(f.queueSize), queue.WithName("forwarder"))
	f.pool = worker.NewPool[*delivery](f.queue, worker.HandlerFunc[*delivery](f.attempt),
		worker.WithSize(f.workerCount),
		worker.WithName("forwarder-workers"),
		worker.WithLogger(f.logger),
	)
	return f
}

// Start launches the worker pool. Attempts use a context that outlives
// individual callers and is cancelled by Stop.
func (f *Forwarder) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f.mu.Lock()
	f.cancel = cancel
	f.mu.Unlock()
	f.pool.Start(workerCtx)
}

// Forward delivers sr and blocks until a terminal outcome or until ctx is
// done. In the latter case it returns at once with ErrDeliveryAbandoned and
// no further attempts are scheduled for sr.
func (f *Forwarder) Forward(ctx context.Context, sr model.ScoredReading) Result {
	d := newDelivery(uuid.NewString(), sr.Record())

	if err := f.enqueue(ctx, d); err != nil {
		return f.count(Result{Outcome: OutcomeFailed, Err: err})
	}

	select {
	case r := <-d.done:
		return f.count(r)
	case <-ctx.Done():
		select {
		case r := <-d.done:
			return f.count(r)
		default:
		}
		attempts := d.abandon()
		f.forget(d)
		f.logger.Warn(ctx, "delivery abandoned by caller",
			logger.String("request_id", d.id),
			logger.String("source_id", d.record.SourceID),
			logger.Int("attempts", attempts),
		)
		return f.count(Result{
			Outcome:  OutcomeFailed,
			Attempts: attempts,
			Err:      fmt.Errorf("%w: %w", ErrDeliveryAbandoned, ctx.Err()),
		})
	}
}

// count records the outcome reported to a caller.
func (f *Forwarder) count(r Result) Result {
	if r.Outcome == OutcomeDelivered {
		f.delivered.Add(1)
		metrics.RecordDeliveryOutcome(metrics.OutcomeDelivered)
	} else {
		f.failed.Add(1)
		metrics.RecordDeliveryOutcome(metrics.OutcomeFailed)
	}
	return r
}

func (f *Forwarder) enqueue(ctx context.Context, d *delivery) error {
	f.mu.Lock()
	stopped := f.stopped
	f.mu.Unlock()
	if stopped {
		return ErrForwarderStopped
	}

	err := f.queue.Enqueue(ctx, d)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, queue.ErrFull):
		return ErrBackpressure
	case errors.Is(err, queue.ErrClosed):
		return ErrForwarderStopped
	default:
		return fmt.Errorf("%w: %w", ErrDeliveryAbandoned, err)
	}
}

// attempt runs one delivery attempt on a worker.
func (f *Forwarder) attempt(ctx context.Context, d *delivery) error {
	n, ok := d.beginAttempt()
	if !ok {
		return nil
	}

	attemptCtx, cancel := context.WithTimeout(ctx, f.attemptTimeout)
	start := time.Now()
	err := f.store.Send(attemptCtx, d.id, d.record)
	cancel()
	elapsed := float64(time.Since(start).Milliseconds())

	log := f.logger.With(
		logger.String("request_id", d.id),
		logger.String("source_id", d.record.SourceID),
		logger.Int("attempt", n),
	)

	switch {
	case err == nil:
		metrics.RecordDeliveryAttempt("ok", elapsed)
		if d.finish(StateDelivered, nil) {
			log.Debug(ctx, "reading delivered")
		}
		return nil

	case errors.Is(err, ErrPermanentDelivery):
		metrics.RecordDeliveryAttempt("permanent", elapsed)
		f.fail(d, err)
		log.Warn(ctx, "store rejected reading", logger.Error(err))
		return err
	}

	metrics.RecordDeliveryAttempt("transient", elapsed)
	if !errors.Is(err, ErrTransientDelivery) {
		err = fmt.Errorf("%w: %w", ErrTransientDelivery, err)
	}

	if n >= f.maxRetries {
		f.fail(d, fmt.Errorf("%w after %d attempts: %w", ErrRetryBudgetExhausted, n, err))
		log.Warn(ctx, "delivery failed, retry budget exhausted", logger.Error(err))
		return err
	}

	delay := f.backoff(n - 1)
	if !f.schedule(d, delay) {
		return err
	}
	log.Info(ctx, "delivery attempt failed, retrying", logger.Duration("retry_in", delay), logger.Error(err))
	return err
}

// backoff returns base * 2^attempt for a 0-based attempt index.
func (f *Forwarder) backoff(attempt int) time.Duration {
	return f.baseDelay << attempt
}

// schedule parks d in waiting and re-enqueues it after delay.
func (f *Forwarder) schedule(d *delivery, delay time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		f.failLocked(d, ErrForwarderStopped)
		return false
	}
	armed := d.wait(delay, func() { f.retry(d) })
	if armed {
		f.waiting[d] = struct{}{}
		f.retries.Add(1)
		metrics.RecordDeliveryRetry(delay)
	}
	return armed
}

func (f *Forwarder) retry(d *delivery) {
	f.forget(d)
	if d.isAbandoned() {
		return
	}
	if err := f.enqueue(context.Background(), d); err != nil {
		f.fail(d, err)
	}
}

func (f *Forwarder) forget(d *delivery) {
	f.mu.Lock()
	delete(f.waiting, d)
	f.mu.Unlock()
}

func (f *Forwarder) fail(d *delivery, err error) {
	d.finish(StateFailed, err)
}

func (f *Forwarder) failLocked(d *delivery, err error) {
	delete(f.waiting, d)
	f.fail(d, err)
}

// Stop refuses new readings, fails every delivery waiting for a retry with
// ErrForwarderStopped and lets the workers drain queued attempts until ctx
// is done.
func (f *Forwarder) Stop(ctx context.Context) error {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return nil
	}
	f.stopped = true
	pending := make([]*delivery, 0, len(f.waiting))
	for d := range f.waiting {
		pending = append(pending, d)
	}
	f.waiting = make(map[*delivery]struct{})
	cancel := f.cancel
	f.mu.Unlock()

	for _, d := range pending {
		f.fail(d, ErrForwarderStopped)
	}

	err := f.pool.Shutdown(ctx)
	if cancel != nil {
		cancel()
	}
	return err
}

// Stats returns current counters.
func (f *Forwarder) Stats() Stats {
	f.mu.Lock()
	waiting := int64(len(f.waiting))
	f.mu.Unlock()
	return Stats{
		Delivered: f.delivered.Load(),
		Failed:    f.failed.Load(),
		Retries:   f.retries.Load(),
		Waiting:   waiting,
		Queued:    f.queue.Len(),
	}
}
