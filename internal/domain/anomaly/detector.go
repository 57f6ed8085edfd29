// Package anomaly scores readings against a per-source sliding window.
//
// Each source owns a ring of the last N power values. A reading is appended
// first and then scored against the window including itself; windows that are
// not yet full or are perfectly flat never flag.
package anomaly

import (
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"

	"github.com/okian/gridedge/internal/domain/model"
)

const (
	defaultWindowSize = 10
	defaultShardCount = 16
	defaultThreshold  = 3.0
)

type shard struct {
	mu      sync.RWMutex
	windows map[string]*window
}

// Detector holds one window per source across a fixed set of shards.
// Sources in different shards never contend; sources in the same shard only
// share the lookup lock, not the window lock.
type Detector struct {
	windowSize int
	shards     []*shard
	threshold  atomic.Uint64 // math.Float64bits
	sources    atomic.Int64
}

// Option configures a Detector.
type Option func(*Detector)

// WithWindowSize sets N, the window capacity.
func WithWindowSize(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.windowSize = n
		}
	}
}

// WithShardCount sets the number of lock shards.
func WithShardCount(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.shards = make([]*shard, n)
		}
	}
}

// WithThreshold sets the initial z threshold.
func WithThreshold(t float64) Option {
	return func(d *Detector) {
		if validThreshold(t) {
			d.threshold.Store(math.Float64bits(t))
		}
	}
}

// New creates a Detector.
func New(opts ...Option) *Detector {
	d := &Detector{
		windowSize: defaultWindowSize,
		shards:     make([]*shard, defaultShardCount),
	}
	d.threshold.Store(math.Float64bits(defaultThreshold))
	for _, opt := range opts {
		opt(d)
	}
	for i := range d.shards {
		d.shards[i] = &shard{windows: make(map[string]*window)}
	}
	return d
}

// Score appends the reading's power value to its source window and returns
// the verdict. It never fails.
func (d *Detector) Score(v model.ValidatedReading) model.ScoredReading {
	w := d.windowFor(v.SourceID)
	threshold := d.Threshold()

	w.mu.Lock()
	w.push(v.PowerConsumption)
	var z float64
	if w.full() {
		mean, std := meanStdDev(w.snapshot())
		z = ZScore(v.PowerConsumption, mean, std)
	}
	w.mu.Unlock()

	return model.ScoredReading{
		ValidatedReading: v,
		Anomaly:          Exceeds(z, threshold),
		ZScore:           z,
	}
}

// windowFor returns the window of sourceID, creating it on first use.
func (d *Detector) windowFor(sourceID string) *window {
	s := d.shardFor(sourceID)

	s.mu.RLock()
	w, ok := s.windows[sourceID]
	s.mu.RUnlock()
	if ok {
		return w
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok = s.windows[sourceID]; ok {
		return w
	}
	w = newWindow(d.windowSize)
	s.windows[sourceID] = w
	d.sources.Add(1)
	return w
}

func (d *Detector) shardFor(sourceID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sourceID))
	return d.shards[h.Sum32()%uint32(len(d.shards))]
}

// Threshold returns the z threshold in force.
func (d *Detector) Threshold() float64 {
	return math.Float64frombits(d.threshold.Load())
}

// SetThreshold replaces the z threshold for subsequent scores.
func (d *Detector) SetThreshold(t float64) error {
	if !validThreshold(t) {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, t)
	}
	d.threshold.Store(math.Float64bits(t))
	return nil
}

// WindowSize returns N.
func (d *Detector) WindowSize() int {
	return d.windowSize
}

// Sources returns how many source windows exist.
func (d *Detector) Sources() int {
	return int(d.sources.Load())
}

// Window returns a copy of the window of sourceID, oldest first, and whether
// the source has been seen.
func (d *Detector) Window(sourceID string) ([]float64, bool) {
	s := d.shardFor(sourceID)
	s.mu.RLock()
	w, ok := s.windows[sourceID]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshot(), true
}

func validThreshold(t float64) bool {
	return t > 0 && !math.IsInf(t, 0) && !math.IsNaN(t)
}
