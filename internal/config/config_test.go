package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/gridedge/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have the pipeline defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":5001")
			convey.So(cfg.VoltageMin, convey.ShouldEqual, 220)
			convey.So(cfg.VoltageMax, convey.ShouldEqual, 240)
			convey.So(cfg.CurrentMin, convey.ShouldEqual, 5)
			convey.So(cfg.CurrentMax, convey.ShouldEqual, 15)
			convey.So(cfg.WindowSize, convey.ShouldEqual, 10)
			convey.So(cfg.AnomalyZThreshold, convey.ShouldEqual, 3.0)
			convey.So(cfg.MaxRetries, convey.ShouldEqual, 3)
			convey.So(cfg.BaseRetryDelay, convey.ShouldEqual, time.Second)
			convey.So(cfg.PerAttemptTimeout, convey.ShouldEqual, 5*time.Second)
			convey.So(cfg.StoreEndpoint, convey.ShouldEqual, "http://localhost:5002")
			convey.So(cfg.StoreAddr, convey.ShouldEqual, ":5002")
		})

		convey.Convey("Then the defaults validate", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs violating one constraint each", t, func() {
		cases := map[string]func(*config.Config){
			"addr":                func(c *config.Config) { c.Addr = "" },
			"voltage_min":         func(c *config.Config) { c.VoltageMin = 250 },
			"current_min":         func(c *config.Config) { c.CurrentMin = 20 },
			"window_size":         func(c *config.Config) { c.WindowSize = 0 },
			"anomaly_z_threshold": func(c *config.Config) { c.AnomalyZThreshold = 0 },
			"shard_count":         func(c *config.Config) { c.ShardCount = 0 },
			"max_retries":         func(c *config.Config) { c.MaxRetries = 0 },
			"base_retry_delay":    func(c *config.Config) { c.BaseRetryDelay = -time.Second },
			"per_attempt_timeout": func(c *config.Config) { c.PerAttemptTimeout = 0 },
			"store_endpoint":      func(c *config.Config) { c.StoreEndpoint = "" },
			"worker_count":        func(c *config.Config) { c.WorkerCount = 0 },
			"queue_size":          func(c *config.Config) { c.QueueSize = 0 },
		}

		for field, mutate := range cases {
			cfg := config.New()
			mutate(cfg)
			err := cfg.Validate()

			convey.So(err, convey.ShouldNotBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, field)
		}
	})

	convey.Convey("Given equal bounds", t, func() {
		cfg := config.New()
		cfg.VoltageMin, cfg.VoltageMax = 230, 230

		convey.Convey("Then the degenerate interval is allowed", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}
