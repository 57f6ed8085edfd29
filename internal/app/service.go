// Package service drives one inbound reading through the edge pipeline:
// validation, anomaly scoring and delivery to the durable store. It
// implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/gridedge/internal/adapters/forwarder"
	"github.com/okian/gridedge/internal/domain/anomaly"
	"github.com/okian/gridedge/internal/domain/dedupe"
	"github.com/okian/gridedge/internal/domain/model"
	"github.com/okian/gridedge/internal/domain/validation"
	"github.com/okian/gridedge/pkg/logger"
	"github.com/okian/gridedge/pkg/metrics"
)

// ErrNotStarted is returned by Ingest before Start or after Stop.
var ErrNotStarted = errors.New("service not started")

// Outcome describes a reading that made it through the pipeline.
type Outcome struct {
	SourceID  string
	Flagged   bool
	Anomaly   bool
	ZScore    float64
	Duplicate bool
	Attempts  int
}

// Service implements the ingestion pipeline.
type Service struct {
	mu sync.RWMutex

	// Core components
	validator *validation.Validator
	detector  *anomaly.Detector
	guard     *dedupe.ReplayGuard
	forwarder *forwarder.Forwarder
	store     forwarder.Store

	// Configuration
	bounds          validation.Bounds
	windowSize      int
	shardCount      int
	threshold       float64
	maxRetries      int
	baseRetryDelay  time.Duration
	attemptTimeout  time.Duration
	storeEndpoint   string
	workerCount     int
	queueSize       int
	replayGuardSize int

	// State
	started bool

	received   atomic.Int64
	malformed  atomic.Int64
	flagged    atomic.Int64
	anomalies  atomic.Int64
	duplicates atomic.Int64

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithBounds sets the validator bounds.
func WithBounds(b validation.Bounds) Option {
	return func(s *Service) {
		s.bounds = b
	}
}

// WithWindowSize sets the per-source sliding window capacity.
func WithWindowSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.windowSize = n
		}
	}
}

// WithShardCount sets the number of detector shards.
func WithShardCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithThreshold sets the anomaly z-score threshold.
func WithThreshold(t float64) Option {
	return func(s *Service) {
		if t > 0 {
			s.threshold = t
		}
	}
}

// WithMaxRetries sets the total number of delivery attempts per reading.
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithBaseRetryDelay sets the backoff unit.
func WithBaseRetryDelay(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.baseRetryDelay = d
		}
	}
}

// WithAttemptTimeout bounds each store call.
func WithAttemptTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.attemptTimeout = d
		}
	}
}

// WithStoreEndpoint sets the base URL of the durable store.
func WithStoreEndpoint(endpoint string) Option {
	return func(s *Service) {
		if endpoint != "" {
			s.storeEndpoint = endpoint
		}
	}
}

// WithStore replaces the HTTP store client.
func WithStore(store forwarder.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithWorkerCount sets the number of delivery workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of deliveries waiting for a worker.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithReplayGuardSize sets how many accepted reading keys are remembered.
// Zero or negative disables replay detection.
func WithReplayGuardSize(size int) Option {
	return func(s *Service) {
		s.replayGuardSize = size
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. The validator, detector and replay guard exist
// from here on; the forwarder is created by Start.
func New(opts ...Option) *Service {
	s := &Service{
		bounds:          validation.DefaultBounds(),
		windowSize:      10,
		shardCount:      16,
		threshold:       3.0,
		maxRetries:      3,
		baseRetryDelay:  time.Second,
		attemptTimeout:  5 * time.Second,
		storeEndpoint:   "http://localhost:5002",
		workerCount:     runtime.NumCPU() * 4,
		queueSize:       10_000,
		replayGuardSize: 100_000,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.validator = validation.New(validation.WithBounds(s.bounds))
	s.detector = anomaly.New(
		anomaly.WithWindowSize(s.windowSize),
		anomaly.WithShardCount(s.shardCount),
		anomaly.WithThreshold(s.threshold),
	)
	s.guard = dedupe.NewReplayGuard(dedupe.WithMaxSize(s.replayGuardSize))
	return s
}

// Start creates the forwarder and launches its workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.store == nil {
		s.store = forwarder.NewHTTPStore(s.storeEndpoint)
	}

	s.forwarder = forwarder.New(s.store,
		forwarder.WithMaxRetries(s.maxRetries),
		forwarder.WithBaseDelay(s.baseRetryDelay),
		forwarder.WithAttemptTimeout(s.attemptTimeout),
		forwarder.WithWorkerCount(s.workerCount),
		forwarder.WithQueueSize(s.queueSize),
	)
	s.forwarder.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "edge service started",
		logger.String("store", s.storeEndpoint),
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("windowSize", s.windowSize),
		logger.Float64("threshold", s.detector.Threshold()),
		logger.Int("replayGuardSize", s.replayGuardSize),
	)
	return nil
}

// Stop refuses new readings and waits for queued deliveries until ctx is done.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	fwd := s.forwarder
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping edge service...")
	err := fwd.Stop(ctx)
	if err != nil {
		s.logger.Warn(ctx, "forwarder did not drain in time", logger.Error(err))
	}
	s.logger.Info(ctx, "edge service stopped")
	return err
}

// Started reports whether the service accepts readings.
func (s *Service) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Ingest validates, scores and forwards raw. Out-of-range readings are
// forwarded flagged. A malformed reading fails with
// validation.ErrMalformedReading before it reaches the detector; delivery
// failures carry the forwarder's sentinels.
func (s *Service) Ingest(ctx context.Context, raw model.RawReading) (Outcome, error) {
	s.mu.RLock()
	started, fwd := s.started, s.forwarder
	s.mu.RUnlock()
	if !started {
		return Outcome{}, ErrNotStarted
	}

	s.received.Add(1)
	metrics.RecordReadingReceived()

	vr, err := s.validator.Validate(raw)
	if err != nil {
		s.malformed.Add(1)
		metrics.RecordReadingMalformed()
		s.logger.Debug(ctx, "malformed reading", logger.Error(err))
		return Outcome{}, err
	}

	out := Outcome{SourceID: vr.SourceID, Flagged: vr.Flagged}

	key := vr.Key()
	delivered, err := s.claim(ctx, key)
	if err != nil {
		return out, err
	}
	if delivered {
		s.duplicates.Add(1)
		metrics.RecordReadingDuplicate()
		s.logger.Debug(ctx, "duplicate reading skipped", logger.String("key", key))
		out.Duplicate = true
		return out, nil
	}

	if vr.Flagged {
		s.flagged.Add(1)
		metrics.RecordReadingFlagged()
	}

	sr := s.detector.Score(vr)
	metrics.UpdateSourcesTracked(s.detector.Sources())
	out.Anomaly, out.ZScore = sr.Anomaly, sr.ZScore
	if sr.Anomaly {
		s.anomalies.Add(1)
		metrics.RecordAnomaly(sr.SourceID)
		s.logger.Info(ctx, "anomaly detected",
			logger.String("source_id", sr.SourceID),
			logger.Float64("power_consumption", sr.PowerConsumption),
			logger.Float64("z_score", sr.ZScore),
		)
	}

	res := fwd.Forward(ctx, sr)
	out.Attempts = res.Attempts
	if res.Outcome != forwarder.OutcomeDelivered {
		s.guard.Release(ctx, key)
		return out, res.Err
	}
	s.guard.Commit(ctx, key)
	return out, nil
}

// claim takes ownership of key, or reports that an earlier copy was
// delivered. While another copy is in flight it waits for that copy's
// outcome; if the earlier copy fails, this one is processed instead.
func (s *Service) claim(ctx context.Context, key string) (bool, error) {
	for {
		state, done := s.guard.Acquire(ctx, key)
		switch state {
		case dedupe.Delivered:
			return true, nil
		case dedupe.Claimed:
			return false, nil
		}
		select {
		case <-done:
		case <-ctx.Done():
			return false, fmt.Errorf("%w: waiting for in-flight copy: %w",
				forwarder.ErrDeliveryAbandoned, ctx.Err())
		}
	}
}

// Reconfigure swaps the validator bounds and the anomaly threshold for
// subsequent readings. The window size is fixed for the process lifetime.
func (s *Service) Reconfigure(ctx context.Context, b validation.Bounds, threshold float64) error {
	if err := s.validator.SetBounds(b); err != nil {
		return fmt.Errorf("reconfigure: %w", err)
	}
	if err := s.detector.SetThreshold(threshold); err != nil {
		return fmt.Errorf("reconfigure: %w", err)
	}
	if l := s.log(); l != nil {
		l.Info(ctx, "pipeline reconfigured",
			logger.Float64("voltageMin", b.VoltageMin),
			logger.Float64("voltageMax", b.VoltageMax),
			logger.Float64("currentMin", b.CurrentMin),
			logger.Float64("currentMax", b.CurrentMax),
			logger.Float64("threshold", threshold),
		)
	}
	return nil
}

func (s *Service) log() logger.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logger
}

// Bounds returns the validator bounds in force.
func (s *Service) Bounds() validation.Bounds {
	return s.validator.Bounds()
}

// Threshold returns the anomaly threshold in force.
func (s *Service) Threshold() float64 {
	return s.detector.Threshold()
}

// Window returns a copy of the sliding window of sourceID, oldest first.
func (s *Service) Window(sourceID string) ([]float64, bool) {
	return s.detector.Window(sourceID)
}
