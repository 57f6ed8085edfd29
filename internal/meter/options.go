package meter

import (
	"time"

	"github.com/okian/gridedge/pkg/logger"
)

// Defaults of a meter run loop.
const (
	DefaultMinInterval = time.Second
	DefaultMaxInterval = 5 * time.Second
	DefaultHealthWait  = 5 * time.Second
	DefaultMaxFailures = 5
	DefaultCoolDown    = 30 * time.Second
)

type settings struct {
	minInterval time.Duration
	maxInterval time.Duration
	healthWait  time.Duration
	maxFailures int
	coolDown    time.Duration
	spikeProb   float64
	seed        uint64
	seeded      bool
	ready       Readiness
	logger      logger.Logger
}

func defaults() settings {
	return settings{
		minInterval: DefaultMinInterval,
		maxInterval: DefaultMaxInterval,
		healthWait:  DefaultHealthWait,
		maxFailures: DefaultMaxFailures,
		coolDown:    DefaultCoolDown,
		spikeProb:   defaultSpikeProb,
	}
}

// Option configures a Meter or a Fleet.
type Option func(*settings)

// WithInterval sets the random pause between two sends.
func WithInterval(lo, hi time.Duration) Option {
	return func(s *settings) {
		if lo > 0 && hi >= lo {
			s.minInterval, s.maxInterval = lo, hi
		}
	}
}

// WithProber gates sends on the edge being ready.
func WithProber(r Readiness) Option {
	return func(s *settings) { s.ready = r }
}

// WithHealthWait sets how long to wait after a failed readiness check.
func WithHealthWait(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.healthWait = d
		}
	}
}

// WithMaxFailures sets the consecutive failures that trigger a cool-down.
func WithMaxFailures(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxFailures = n
		}
	}
}

// WithCoolDown sets the pause after too many consecutive failures.
func WithCoolDown(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.coolDown = d
		}
	}
}

// WithSpikeProbability sets the chance of an injected spike, in [0,1].
func WithSpikeProbability(p float64) Option {
	return func(s *settings) {
		if p >= 0 && p <= 1 {
			s.spikeProb = p
		}
	}
}

// WithSeed makes generated readings reproducible.
func WithSeed(seed uint64) Option {
	return func(s *settings) {
		s.seed = seed
		s.seeded = true
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) { s.logger = l }
}
