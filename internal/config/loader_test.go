package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/gridedge/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":5001")
				convey.So(cfg.WindowSize, convey.ShouldEqual, 10)
				convey.So(cfg.MaxRetries, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			t.Setenv("GRIDEDGE_ADDR", ":8080")
			t.Setenv("GRIDEDGE_WINDOW_SIZE", "25")
			t.Setenv("GRIDEDGE_ANOMALY_Z_THRESHOLD", "2.5")
			t.Setenv("GRIDEDGE_BASE_RETRY_DELAY", "250ms")
			t.Setenv("GRIDEDGE_SIMULATION_CITIES", "berlin, paris ,,oslo")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.WindowSize, convey.ShouldEqual, 25)
				convey.So(cfg.AnomalyZThreshold, convey.ShouldEqual, 2.5)
				convey.So(cfg.BaseRetryDelay, convey.ShouldEqual, 250*time.Millisecond)
				convey.So(cfg.SimulationCities, convey.ShouldResemble, []string{"berlin", "paris", "oslo"})
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			path := writeConfigFile(t, `
addr: ":9090"
voltage_min: 210
voltage_max: 250
max_retries: 5
per_attempt_timeout: 2s
store_endpoint: "http://store:5002"
`)
			t.Setenv("GRIDEDGE_CONFIG", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.VoltageMin, convey.ShouldEqual, 210)
				convey.So(cfg.VoltageMax, convey.ShouldEqual, 250)
				convey.So(cfg.MaxRetries, convey.ShouldEqual, 5)
				convey.So(cfg.PerAttemptTimeout, convey.ShouldEqual, 2*time.Second)
				convey.So(cfg.StoreEndpoint, convey.ShouldEqual, "http://store:5002")
			})

			convey.Convey("And missing fields keep their defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.CurrentMin, convey.ShouldEqual, 5)
				convey.So(cfg.WindowSize, convey.ShouldEqual, 10)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			path := writeConfigFile(t, `
addr: ":9090"
max_retries: 5
`)
			t.Setenv("GRIDEDGE_CONFIG", path)
			t.Setenv("GRIDEDGE_MAX_RETRIES", "7")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.MaxRetries, convey.ShouldEqual, 7)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			path := writeConfigFile(t, `invalid: yaml: content: [`)
			t.Setenv("GRIDEDGE_CONFIG", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			t.Setenv("GRIDEDGE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the file inverts a bound", func() {
			path := writeConfigFile(t, "current_min: 20\ncurrent_max: 10\n")
			t.Setenv("GRIDEDGE_CONFIG", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			t.Setenv("GRIDEDGE_WINDOW_SIZE", "not_a_number")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gridedge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearConfigEnvVars() {
	for _, key := range []string{
		"GRIDEDGE_CONFIG", "GRIDEDGE_ADDR", "GRIDEDGE_WINDOW_SIZE", "GRIDEDGE_ANOMALY_Z_THRESHOLD",
		"GRIDEDGE_BASE_RETRY_DELAY", "GRIDEDGE_SIMULATION_CITIES", "GRIDEDGE_MAX_RETRIES",
	} {
		_ = os.Unsetenv(key)
	}
}
