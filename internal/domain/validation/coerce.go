package validation

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Timestamp layouts without an offset. Such values are read as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

var offsetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
}

// present returns the value for key unless it is absent or JSON null.
func present(raw map[string]any, key string) (any, bool) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func requiredFloat(raw map[string]any, key string) (float64, error) {
	v, ok := present(raw, key)
	if !ok {
		return 0, malformed(key, "missing")
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, malformed(key, err.Error())
	}
	return f, nil
}

func optionalFloat(raw map[string]any, key string) (*float64, error) {
	v, ok := present(raw, key)
	if !ok {
		return nil, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return nil, malformed(key, err.Error())
	}
	return &f, nil
}

func optionalBool(raw map[string]any, key string) (*bool, error) {
	v, ok := present(raw, key)
	if !ok {
		return nil, nil
	}
	var b bool
	switch t := v.(type) {
	case bool:
		b = t
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return nil, malformed(key, "not a boolean")
		}
		b = parsed
	default:
		return nil, malformed(key, "not a boolean")
	}
	return &b, nil
}

func requiredTime(raw map[string]any, key string) (time.Time, error) {
	v, ok := present(raw, key)
	if !ok {
		return time.Time{}, malformed(key, "missing")
	}
	s, isString := v.(string)
	if !isString {
		return time.Time{}, malformed(key, "not a string")
	}
	ts, err := ParseTimestamp(s)
	if err != nil {
		return time.Time{}, malformed(key, err.Error())
	}
	return ts, nil
}

// ParseTimestamp parses an ISO-8601 instant and normalizes it to UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errEmpty
	}
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errNotISO
}

func toFloat(v any) (float64, error) {
	var f float64
	switch t := v.(type) {
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, errNotNumber
		}
		f = parsed
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, errNotNumber
		}
		f = parsed
	default:
		return 0, errNotNumber
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotFinite
	}
	return f, nil
}
