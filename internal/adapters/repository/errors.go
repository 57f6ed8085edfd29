package repository

import "errors"

// Sentinel kinds for reading store errors.
var (
	ErrInvalidRecord = errors.New("invalid record")
	ErrClosed        = errors.New("store closed")
	ErrStorage       = errors.New("storage failure")
	ErrRetention     = errors.New("invalid retention")
)
