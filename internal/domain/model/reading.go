// Package model contains domain models passed between layers.
package model

import (
	"strconv"
	"strings"
	"time"
)

// RawReading is an inbound reading as decoded from the wire, before any
// type or range checks. Numbers arrive as json.Number, float64 or string.
type RawReading map[string]any

// Status is the range classification of a reading.
type Status string

// Range classifications.
const (
	StatusValid   Status = "valid"
	StatusInvalid Status = "invalid"
)

// ZoneDistribution is the share of consumption per zone type.
type ZoneDistribution struct {
	Industrial  float64 `json:"industrial"`
	Residential float64 `json:"residential"`
	Commercial  float64 `json:"commercial"`
}

// Reading is one sensor sample. It is immutable once received.
type Reading struct {
	SourceID         string
	Timestamp        time.Time // always UTC
	Voltage          float64
	Current          float64
	PowerConsumption float64

	// Optional enrichment, nil when the producer did not send it.
	Temperature          *float64
	Humidity             *float64
	ZoneDistribution     *ZoneDistribution
	PerCapitaConsumption *float64
	EfficiencyScore      *float64
	IsPeakHour           *bool
	IsAnomaly            *bool // producer-side ground truth, not the detector verdict
}

// Key identifies a reading for replay detection: two readings share a key
// only if source, timestamp and all measured values are equal.
func (r Reading) Key() string {
	var b strings.Builder
	b.WriteString(r.SourceID)
	b.WriteByte('|')
	b.WriteString(r.Timestamp.Format(time.RFC3339Nano))
	for _, v := range [...]float64{r.Voltage, r.Current, r.PowerConsumption} {
		b.WriteByte('|')
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}

// ValidatedReading is a Reading with its range classification.
// Flagged is true iff Status is StatusInvalid.
type ValidatedReading struct {
	Reading
	Status  Status
	Flagged bool
}

// ScoredReading is a ValidatedReading with the detector verdict.
// ZScore is 0 when the reading was not scored.
type ScoredReading struct {
	ValidatedReading
	Anomaly bool
	ZScore  float64
}

// StoreRecord is the JSON document sent to the durable store.
// City mirrors SourceID for stores that still key on it. Records built by
// Record always carry every optional field; the pointers are nil only in
// documents decoded from older producers.
type StoreRecord struct {
	SourceID             string            `json:"source_id"`
	City                 string            `json:"city"`
	Timestamp            time.Time         `json:"timestamp"`
	Voltage              float64           `json:"voltage"`
	Current              float64           `json:"current"`
	PowerConsumption     float64           `json:"power_consumption"`
	Temperature          *float64          `json:"temperature"`
	Humidity             *float64          `json:"humidity"`
	ZoneDistribution     *ZoneDistribution `json:"zone_distribution"`
	PerCapitaConsumption *float64          `json:"per_capita_consumption"`
	EfficiencyScore      *float64          `json:"efficiency_score"`
	IsPeakHour           *bool             `json:"is_peak_hour"`
	IsAnomaly            *bool             `json:"is_anomaly"`
	Status               Status            `json:"status"`
	Flagged              bool              `json:"flagged"`
	Anomaly              bool              `json:"anomaly"`
	ZScore               float64           `json:"z_score"`
}

// Record builds the store document for s. Absent enrichment is sent as
// zero, false or an all-zero zone split.
func (s ScoredReading) Record() StoreRecord {
	return StoreRecord{
		SourceID:             s.SourceID,
		City:                 s.SourceID,
		Timestamp:            s.Timestamp.UTC(),
		Voltage:              s.Voltage,
		Current:              s.Current,
		PowerConsumption:     s.PowerConsumption,
		Temperature:          orZero(s.Temperature),
		Humidity:             orZero(s.Humidity),
		ZoneDistribution:     orZero(s.ZoneDistribution),
		PerCapitaConsumption: orZero(s.PerCapitaConsumption),
		EfficiencyScore:      orZero(s.EfficiencyScore),
		IsPeakHour:           orZero(s.IsPeakHour),
		IsAnomaly:            orZero(s.IsAnomaly),
		Status:               s.Status,
		Flagged:              s.Flagged,
		Anomaly:              s.Anomaly,
		ZScore:               s.ZScore,
	}
}

// orZero returns a copy of *p, or a pointer to the zero value when p is nil.
func orZero[T any](p *T) *T {
	var v T
	if p != nil {
		v = *p
	}
	return &v
}
