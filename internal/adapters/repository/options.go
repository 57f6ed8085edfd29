package repository

import "time"

// MemoryOption applies a configuration option to the MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMaxPerSource caps how many readings are kept per source; the oldest
// inserted are dropped first. Zero or negative means unbounded.
func WithMaxPerSource(n int) MemoryOption {
	return func(s *MemoryStore) {
		s.maxPerSource = n
	}
}

// WithClock overrides the receive-time clock.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}
