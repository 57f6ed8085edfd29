// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Loading layers defaults, an optional YAML file, .env and GRIDEDGE_ env vars.
// - Errors are wrapped with this package's sentinels.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Config contains process configuration for the edge and its companions.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the edge HTTP listen address, e.g. ":5001".
	Addr string `koanf:"addr"`

	// Validator bounds, inclusive.
	VoltageMin float64 `koanf:"voltage_min"`
	VoltageMax float64 `koanf:"voltage_max"`
	CurrentMin float64 `koanf:"current_min"`
	CurrentMax float64 `koanf:"current_max"`

	// WindowSize is the per-source sliding window capacity. Fixed at startup.
	WindowSize int `koanf:"window_size"`

	// AnomalyZThreshold is the strict z-score threshold.
	AnomalyZThreshold float64 `koanf:"anomaly_z_threshold"`

	// ShardCount configures the number of shards in the detector table.
	ShardCount int `koanf:"shard_count"`

	// MaxRetries is the total number of delivery attempts per reading.
	MaxRetries int `koanf:"max_retries"`

	// BaseRetryDelay is the backoff unit; attempt k waits BaseRetryDelay*2^k.
	BaseRetryDelay time.Duration `koanf:"base_retry_delay"`

	// PerAttemptTimeout bounds one store call.
	PerAttemptTimeout time.Duration `koanf:"per_attempt_timeout"`

	// StoreEndpoint is the base URL of the durable store.
	StoreEndpoint string `koanf:"store_endpoint"`

	// WorkerCount sets the number of delivery workers.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds the in-memory delivery queue.
	QueueSize int `koanf:"queue_size"`

	// ReplayGuardSize is how many recent (source, timestamp) keys are remembered.
	// Zero or negative disables the guard.
	ReplayGuardSize int `koanf:"replay_guard_size"`

	// SimulationCities lists the meters started by /start_simulation and cmd/meter.
	SimulationCities []string `koanf:"simulation_cities"`

	// EdgeURL is where cmd/meter sends readings.
	EdgeURL string `koanf:"edge_url"`

	// StoreAddr is the listen address of cmd/store.
	StoreAddr string `koanf:"store_addr"`

	// StoreDatabaseURL switches cmd/store to Postgres when set.
	StoreDatabaseURL string `koanf:"store_database_url"`

	// StoreRetention is how long cmd/store keeps readings.
	StoreRetention time.Duration `koanf:"store_retention"`

	// StorePruneSchedule is the cron spec of the retention job.
	StorePruneSchedule string `koanf:"store_prune_schedule"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":5001",
		VoltageMin:         220,
		VoltageMax:         240,
		CurrentMin:         5,
		CurrentMax:         15,
		WindowSize:         10,
		AnomalyZThreshold:  3.0,
		ShardCount:         16,
		MaxRetries:         3,
		BaseRetryDelay:     time.Second,
		PerAttemptTimeout:  5 * time.Second,
		StoreEndpoint:      "http://localhost:5002",
		WorkerCount:        runtime.NumCPU() * 4,
		QueueSize:          10_000,
		ReplayGuardSize:    100_000,
		SimulationCities:   []string{"Mumbai", "Delhi", "Bangalore", "Chennai", "Kolkata"},
		EdgeURL:            "http://localhost:5001",
		StoreAddr:          ":5002",
		StoreRetention:     24 * time.Hour,
		StorePruneSchedule: "@every 10m",
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.VoltageMin > c.VoltageMax:
		return fmt.Errorf("%w: voltage_min %v > voltage_max %v", ErrInvalidConfig, c.VoltageMin, c.VoltageMax)
	case c.CurrentMin > c.CurrentMax:
		return fmt.Errorf("%w: current_min %v > current_max %v", ErrInvalidConfig, c.CurrentMin, c.CurrentMax)
	case c.WindowSize < 1:
		return fmt.Errorf("%w: window_size must be >= 1", ErrInvalidConfig)
	case c.AnomalyZThreshold <= 0:
		return fmt.Errorf("%w: anomaly_z_threshold must be > 0", ErrInvalidConfig)
	case c.ShardCount < 1:
		return fmt.Errorf("%w: shard_count must be >= 1", ErrInvalidConfig)
	case c.MaxRetries < 1:
		return fmt.Errorf("%w: max_retries must be >= 1", ErrInvalidConfig)
	case c.BaseRetryDelay < 0:
		return fmt.Errorf("%w: base_retry_delay must not be negative", ErrInvalidConfig)
	case c.PerAttemptTimeout <= 0:
		return fmt.Errorf("%w: per_attempt_timeout must be > 0", ErrInvalidConfig)
	case c.StoreEndpoint == "":
		return fmt.Errorf("%w: store_endpoint must not be empty", ErrInvalidConfig)
	case c.WorkerCount < 1:
		return fmt.Errorf("%w: worker_count must be >= 1", ErrInvalidConfig)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be >= 1", ErrInvalidConfig)
	}
	return nil
}
