package meter

import (
	"context"
	"hash/fnv"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/okian/gridedge/pkg/logger"
	"github.com/okian/gridedge/pkg/metrics"
)

// Readiness reports whether the edge accepts readings.
type Readiness interface {
	Ready(ctx context.Context) bool
}

// Stats counts a meter's sends.
type Stats struct {
	Sent   int64 `json:"sent"`
	Failed int64 `json:"failed"`
}

// Meter periodically sends generated readings for one city.
type Meter struct {
	gen  *Generator
	sink Sink
	cfg  settings
	log  logger.Logger

	sent   atomic.Int64
	failed atomic.Int64
}

// New creates a Meter for city that sends to sink.
func New(city string, sink Sink, opts ...Option) *Meter {
	cfg := defaults()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newMeter(city, sink, cfg)
}

func newMeter(city string, sink Sink, cfg settings) *Meter {
	var rng *rand.Rand
	if cfg.seeded {
		h := fnv.New64a()
		_, _ = h.Write([]byte(city))
		rng = rand.New(rand.NewPCG(cfg.seed, h.Sum64()))
	} else {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	log := cfg.logger
	if log == nil {
		log = logger.Get().Named("meter")
	}
	return &Meter{
		gen:  NewGenerator(city, rng, cfg.spikeProb),
		sink: sink,
		cfg:  cfg,
		log:  log.With(logger.String("city", city)),
	}
}

// City returns the simulated city.
func (m *Meter) City() string {
	return m.gen.City()
}

// Stats returns the send counters.
func (m *Meter) Stats() Stats {
	return Stats{Sent: m.sent.Load(), Failed: m.failed.Load()}
}

// Run sends readings until ctx is done.
func (m *Meter) Run(ctx context.Context) {
	m.log.Info(ctx, "meter started")
	defer m.log.Info(ctx, "meter stopped", logger.Any("sent", m.sent.Load()), logger.Any("failed", m.failed.Load()))

	failures := 0
	for ctx.Err() == nil {
		if m.cfg.ready != nil && !m.cfg.ready.Ready(ctx) {
			m.log.Warn(ctx, "edge not ready", logger.Duration("wait", m.cfg.healthWait))
			if !sleep(ctx, m.cfg.healthWait) {
				return
			}
			continue
		}

		if err := m.sink.Send(ctx, m.gen.Generate(time.Now())); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.failed.Add(1)
			metrics.RecordMeterSend(m.City(), "error")
			failures++
			m.log.Warn(ctx, "send failed", logger.Int("consecutive", failures), logger.Error(err))
			if failures >= m.cfg.maxFailures {
				m.log.Error(ctx, "too many consecutive failures", logger.Duration("cool_down", m.cfg.coolDown))
				failures = 0
				if !sleep(ctx, m.cfg.coolDown) {
					return
				}
				continue
			}
		} else {
			m.sent.Add(1)
			metrics.RecordMeterSend(m.City(), "ok")
			failures = 0
		}

		if !sleep(ctx, m.interval()) {
			return
		}
	}
}

func (m *Meter) interval() time.Duration {
	span := m.cfg.maxInterval - m.cfg.minInterval
	if span <= 0 {
		return m.cfg.minInterval
	}
	return m.cfg.minInterval + rand.N(span+1)
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
