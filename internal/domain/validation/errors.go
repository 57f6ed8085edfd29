package validation

import "errors"

var (
	// ErrMalformedReading reports a missing or non-coercible field. The
	// wrapping error names the field.
	ErrMalformedReading = errors.New("malformed reading")

	// ErrInvalidBounds reports an interval whose minimum exceeds its maximum.
	ErrInvalidBounds = errors.New("invalid bounds")
)

// Reasons attached to ErrMalformedReading.
var (
	errEmpty     = errors.New("empty")
	errNotISO    = errors.New("not an ISO-8601 timestamp")
	errNotNumber = errors.New("not a number")
	errNotFinite = errors.New("not finite")
)
