package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/gridedge/internal/domain/model"
	"github.com/okian/gridedge/pkg/metrics"
)

// MemoryStore keeps readings in process memory, grouped by source.
type MemoryStore struct {
	mu           sync.RWMutex
	bySource     map[string][]Stored // insertion order
	nextID       int64
	closed       bool
	maxPerSource int
	now          func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		bySource: make(map[string][]Stored),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, rec model.StoreRecord) (int64, error) {
	if err := Check(rec); err != nil {
		metrics.RecordStoreWrite("invalid")
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		metrics.RecordStoreWrite("closed")
		return 0, ErrClosed
	}

	s.nextID++
	rec.Timestamp = rec.Timestamp.UTC()
	list := append(s.bySource[rec.SourceID], Stored{ID: s.nextID, StoreRecord: rec, ReceivedAt: s.now().UTC()})
	if s.maxPerSource > 0 && len(list) > s.maxPerSource {
		list = append(list[:0:0], list[len(list)-s.maxPerSource:]...)
	}
	s.bySource[rec.SourceID] = list
	metrics.RecordStoreWrite("ok")
	return s.nextID, nil
}

// Readings implements Store.
func (s *MemoryStore) Readings(_ context.Context, sourceID string, since time.Time) ([]Stored, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	out := make([]Stored, 0)
	for _, r := range s.bySource[sourceID] {
		if r.Timestamp.After(since) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// Prune implements Store.
func (s *MemoryStore) Prune(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	removed := 0
	for id, list := range s.bySource {
		kept := list[:0]
		for _, r := range list {
			if r.Timestamp.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			delete(s.bySource, id)
			continue
		}
		s.bySource[id] = kept
	}
	metrics.RecordStorePruned(removed)
	return removed, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, list := range s.bySource {
		n += len(list)
	}
	return n, nil
}

// Close implements Store. Later calls fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.bySource = make(map[string][]Stored)
	s.mu.Unlock()
	return nil
}
