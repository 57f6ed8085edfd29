// Package dedupe remembers recently delivered reading keys so that a producer
// replaying the same reading is answered without scoring it twice.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

const defaultMaxSize = 100_000

// State is what the guard knows about a key.
type State int

// Key states returned by Acquire.
const (
	// Claimed means the caller now owns the key and must Commit or Release it.
	Claimed State = iota
	// InFlight means another caller owns the key; wait on the returned channel.
	InFlight
	// Delivered means the key was already committed.
	Delivered
)

// Deduper tracks reading keys from first arrival to delivery.
type Deduper interface {
	// Acquire claims key, or reports that it is in flight or delivered.
	// For InFlight the returned channel closes once the owner commits or
	// releases the key.
	Acquire(ctx context.Context, key string) (State, <-chan struct{})

	// Commit marks a claimed key as delivered.
	Commit(ctx context.Context, key string)

	// Release forgets a claimed key so that a retry is processed again.
	Release(ctx context.Context, key string)

	Size() int
}

// Option configures a ReplayGuard.
type Option func(*ReplayGuard)

// WithMaxSize sets how many delivered keys are remembered. Zero or negative
// disables the guard: every Acquire claims.
func WithMaxSize(n int) Option {
	return func(g *ReplayGuard) {
		g.maxSize = n
	}
}

type entry struct {
	key       string
	delivered bool
	done      chan struct{}
}

// ReplayGuard is a bounded FIFO set of delivered keys plus the keys
// currently in flight. When full, the oldest delivered key is forgotten
// first; in-flight keys are never evicted.
type ReplayGuard struct {
	mu        sync.Mutex
	maxSize   int
	delivered int
	order     *list.List // front = oldest
	index     map[string]*list.Element
}

// NewReplayGuard creates a ReplayGuard.
func NewReplayGuard(opts ...Option) *ReplayGuard {
	g := &ReplayGuard{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(g)
	}
	g.order = list.New()
	g.index = make(map[string]*list.Element)
	return g
}

// Enabled reports whether the guard records anything.
func (g *ReplayGuard) Enabled() bool {
	return g.maxSize > 0
}

// Acquire implements Deduper.
func (g *ReplayGuard) Acquire(_ context.Context, key string) (State, <-chan struct{}) {
	if !g.Enabled() {
		return Claimed, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if el, ok := g.index[key]; ok {
		e := el.Value.(*entry)
		if e.delivered {
			return Delivered, nil
		}
		return InFlight, e.done
	}
	g.index[key] = g.order.PushBack(&entry{key: key, done: make(chan struct{})})
	return Claimed, nil
}

// Commit implements Deduper.
func (g *ReplayGuard) Commit(_ context.Context, key string) {
	if !g.Enabled() {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	el, ok := g.index[key]
	if !ok {
		return
	}
	e := el.Value.(*entry)
	if e.delivered {
		return
	}
	e.delivered = true
	close(e.done)
	g.delivered++
	g.evict()
}

// Release implements Deduper.
func (g *ReplayGuard) Release(_ context.Context, key string) {
	if !g.Enabled() {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	el, ok := g.index[key]
	if !ok {
		return
	}
	e := el.Value.(*entry)
	if e.delivered {
		return
	}
	close(e.done)
	g.order.Remove(el)
	delete(g.index, key)
}

// evict drops the oldest delivered keys beyond maxSize. Caller holds mu.
func (g *ReplayGuard) evict() {
	for el := g.order.Front(); el != nil && g.delivered > g.maxSize; {
		next := el.Next()
		if e := el.Value.(*entry); e.delivered {
			g.order.Remove(el)
			delete(g.index, e.key)
			g.delivered--
		}
		el = next
	}
}

// Size implements Deduper. It counts delivered and in-flight keys.
func (g *ReplayGuard) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.order.Len()
}
