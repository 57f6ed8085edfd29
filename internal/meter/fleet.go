package meter

import (
	"context"
	"sync"

	"github.com/okian/gridedge/pkg/logger"
)

// Fleet runs one Meter per city and can be started and stopped repeatedly.
type Fleet struct {
	cities []string
	sink   Sink
	cfg    settings

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	meters []*Meter
}

// NewFleet creates a fleet for cities that sends to sink.
func NewFleet(cities []string, sink Sink, opts ...Option) (*Fleet, error) {
	if len(cities) == 0 {
		return nil, ErrNoCities
	}
	cfg := defaults()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.Get().Named("meter")
	}
	return &Fleet{cities: append([]string(nil), cities...), sink: sink, cfg: cfg}, nil
}

// Start launches the meters under ctx. It returns false if already running.
func (f *Fleet) Start(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		return false
	}

	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.meters = f.meters[:0]
	for _, city := range f.cities {
		m := newMeter(city, f.sink, f.cfg)
		f.meters = append(f.meters, m)
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			m.Run(runCtx)
		}()
	}
	f.cfg.logger.Info(ctx, "simulation started", logger.Int("meters", len(f.cities)))
	return true
}

// Stop cancels the meters and waits for them. It returns false if not running.
func (f *Fleet) Stop() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel == nil {
		return false
	}
	f.cancel()
	f.wg.Wait()
	f.cancel = nil
	f.cfg.logger.Info(context.Background(), "simulation stopped")
	return true
}

// Running reports whether the fleet was started and not stopped.
func (f *Fleet) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancel != nil
}

// Stats sums the counters of the current or last run.
func (f *Fleet) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total Stats
	for _, m := range f.meters {
		s := m.Stats()
		total.Sent += s.Sent
		total.Failed += s.Failed
	}
	return total
}
