package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest       = errors.New("bad request")
	ErrBackpressure     = errors.New("backpressure")
	ErrDelivery         = errors.New("delivery failed")
	ErrUnavailable      = errors.New("unavailable")
	ErrInternal         = errors.New("internal error")
	ErrNoSimulation     = errors.New("simulation not configured")
	ErrMethodNotAllowed = errors.New("method not allowed")
)

// KindError tags an error with the operation that produced it and the API
// kind that decides its HTTP status.
type KindError struct {
	Op   string
	Kind error
	Err  error
}

// NewKind returns a KindError without an underlying cause.
func NewKind(op string, kind error) *KindError {
	return &KindError{Op: op, Kind: kind}
}

// WrapKind returns a KindError wrapping err.
func WrapKind(op string, kind, err error) *KindError {
	return &KindError{Op: op, Kind: kind, Err: err}
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *KindError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
