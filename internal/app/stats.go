package service

import (
	"github.com/okian/gridedge/internal/adapters/forwarder"
	"github.com/okian/gridedge/internal/domain/validation"
	"github.com/okian/gridedge/pkg/metrics"
)

// ReadingCounts counts readings by what happened to them since Start.
type ReadingCounts struct {
	Received   int64 `json:"received"`
	Malformed  int64 `json:"malformed"`
	Flagged    int64 `json:"flagged"`
	Anomalies  int64 `json:"anomalies"`
	Duplicates int64 `json:"duplicates"`
}

// Stats is the pipeline snapshot served on /stats.
type Stats struct {
	Started         bool              `json:"started"`
	WorkerCount     int               `json:"workerCount"`
	QueueSize       int               `json:"queueSize"`
	WindowSize      int               `json:"windowSize"`
	Threshold       float64           `json:"threshold"`
	Bounds          validation.Bounds `json:"bounds"`
	Readings        ReadingCounts     `json:"readings"`
	Sources         int               `json:"sources"`
	ReplayGuardSize int               `json:"replayGuardSize"`
	ReplayGuardLen  int               `json:"replayGuardLen"`
	// Delivery is nil until the forwarder exists.
	Delivery *forwarder.Stats `json:"delivery,omitempty"`
}

// GetStats returns a snapshot of the pipeline counters and settings.
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Started:         s.started,
		WorkerCount:     s.workerCount,
		QueueSize:       s.queueSize,
		WindowSize:      s.detector.WindowSize(),
		Threshold:       s.detector.Threshold(),
		Bounds:          s.validator.Bounds(),
		Sources:         s.detector.Sources(),
		ReplayGuardSize: s.replayGuardSize,
		ReplayGuardLen:  s.guard.Size(),
		Readings: ReadingCounts{
			Received:   s.received.Load(),
			Malformed:  s.malformed.Load(),
			Flagged:    s.flagged.Load(),
			Anomalies:  s.anomalies.Load(),
			Duplicates: s.duplicates.Load(),
		},
	}
	if s.forwarder != nil {
		fs := s.forwarder.Stats()
		st.Delivery = &fs
		metrics.UpdateSourcesTracked(st.Sources)
	}
	return st
}
