package config

import (
	"errors"
)

// Sentinel errors; callers check them with errors.Is.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)
