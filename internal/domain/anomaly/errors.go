package anomaly

import "errors"

// ErrInvalidThreshold reports a non-positive or non-finite z threshold.
var ErrInvalidThreshold = errors.New("invalid z threshold")
