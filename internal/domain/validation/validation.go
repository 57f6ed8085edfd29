// Package validation type-checks and range-checks inbound readings.
package validation

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/okian/gridedge/internal/domain/model"
)

// Bounds are the closed intervals a valid reading must fall in.
type Bounds struct {
	VoltageMin float64 `json:"voltageMin"`
	VoltageMax float64 `json:"voltageMax"`
	CurrentMin float64 `json:"currentMin"`
	CurrentMax float64 `json:"currentMax"`
}

// DefaultBounds returns [220,240] V and [5,15] A.
func DefaultBounds() Bounds {
	return Bounds{VoltageMin: 220, VoltageMax: 240, CurrentMin: 5, CurrentMax: 15}
}

func (b Bounds) check() error {
	if b.VoltageMin > b.VoltageMax {
		return fmt.Errorf("%w: voltage [%v,%v]", ErrInvalidBounds, b.VoltageMin, b.VoltageMax)
	}
	if b.CurrentMin > b.CurrentMax {
		return fmt.Errorf("%w: current [%v,%v]", ErrInvalidBounds, b.CurrentMin, b.CurrentMax)
	}
	return nil
}

// InRange reports whether r lies inside b. Both ends are inclusive.
func InRange(r model.Reading, b Bounds) bool {
	return b.VoltageMin <= r.Voltage && r.Voltage <= b.VoltageMax &&
		b.CurrentMin <= r.Current && r.Current <= b.CurrentMax
}

// Validator turns raw readings into validated ones. It is safe for concurrent
// use; bounds may be swapped while requests are in flight.
type Validator struct {
	bounds atomic.Pointer[Bounds]
}

// Option configures a Validator.
type Option func(*Validator)

// WithBounds sets the initial bounds. Inverted bounds are ignored.
func WithBounds(b Bounds) Option {
	return func(v *Validator) {
		if b.check() == nil {
			v.bounds.Store(&b)
		}
	}
}

// New creates a Validator with DefaultBounds unless overridden.
func New(opts ...Option) *Validator {
	v := &Validator{}
	d := DefaultBounds()
	v.bounds.Store(&d)
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Bounds returns the bounds currently in force.
func (v *Validator) Bounds() Bounds {
	return *v.bounds.Load()
}

// SetBounds replaces the bounds for subsequent calls.
func (v *Validator) SetBounds(b Bounds) error {
	if err := b.check(); err != nil {
		return err
	}
	v.bounds.Store(&b)
	return nil
}

// Validate coerces raw into a Reading and classifies it. An out-of-range
// reading is not an error: it is returned with StatusInvalid and Flagged set.
func (v *Validator) Validate(raw model.RawReading) (model.ValidatedReading, error) {
	r, err := Parse(raw)
	if err != nil {
		return model.ValidatedReading{}, err
	}
	status := model.StatusValid
	if !InRange(r, v.Bounds()) {
		status = model.StatusInvalid
	}
	return model.ValidatedReading{
		Reading: r,
		Status:  status,
		Flagged: status == model.StatusInvalid,
	}, nil
}

// Parse performs the type checks only.
func Parse(raw model.RawReading) (model.Reading, error) {
	if len(raw) == 0 {
		return model.Reading{}, fmt.Errorf("%w: empty reading", ErrMalformedReading)
	}

	var (
		r   model.Reading
		err error
	)

	if r.SourceID, err = sourceID(raw); err != nil {
		return model.Reading{}, err
	}
	if r.Timestamp, err = requiredTime(raw, "timestamp"); err != nil {
		return model.Reading{}, err
	}
	if r.Voltage, err = requiredFloat(raw, "voltage"); err != nil {
		return model.Reading{}, err
	}
	if r.Current, err = requiredFloat(raw, "current"); err != nil {
		return model.Reading{}, err
	}
	if r.PowerConsumption, err = requiredFloat(raw, "power_consumption"); err != nil {
		return model.Reading{}, err
	}

	if r.Temperature, err = optionalFloat(raw, "temperature"); err != nil {
		return model.Reading{}, err
	}
	if r.Humidity, err = optionalFloat(raw, "humidity"); err != nil {
		return model.Reading{}, err
	}
	if r.PerCapitaConsumption, err = optionalFloat(raw, "per_capita_consumption"); err != nil {
		return model.Reading{}, err
	}
	if r.EfficiencyScore, err = optionalFloat(raw, "efficiency_score"); err != nil {
		return model.Reading{}, err
	}
	if r.IsPeakHour, err = optionalBool(raw, "is_peak_hour"); err != nil {
		return model.Reading{}, err
	}
	if r.IsAnomaly, err = optionalBool(raw, "is_anomaly"); err != nil {
		return model.Reading{}, err
	}
	if r.ZoneDistribution, err = zones(raw); err != nil {
		return model.Reading{}, err
	}
	return r, nil
}

// sourceID reads source_id, falling back to the legacy city field.
func sourceID(raw model.RawReading) (string, error) {
	v, ok := present(raw, "source_id")
	field := "source_id"
	if !ok {
		v, ok = present(raw, "city")
		field = "city"
	}
	if !ok {
		return "", malformed("source_id", "missing")
	}
	s, isString := v.(string)
	if !isString {
		return "", malformed(field, "not a string")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", malformed(field, "empty")
	}
	return s, nil
}

func zones(raw model.RawReading) (*model.ZoneDistribution, error) {
	v, ok := present(raw, "zone_distribution")
	if !ok {
		return nil, nil
	}
	m, isMap := v.(map[string]any)
	if !isMap {
		return nil, malformed("zone_distribution", "not an object")
	}
	var z model.ZoneDistribution
	for key, dst := range map[string]*float64{
		"industrial":  &z.Industrial,
		"residential": &z.Residential,
		"commercial":  &z.Commercial,
	} {
		fv, ok := present(m, key)
		if !ok {
			continue
		}
		f, err := toFloat(fv)
		if err != nil {
			return nil, malformed("zone_distribution."+key, err.Error())
		}
		*dst = f
	}
	return &z, nil
}

func malformed(field, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrMalformedReading, field, reason)
}
