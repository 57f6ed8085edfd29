package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/gridedge/internal/adapters/http/api"
	"github.com/okian/gridedge/internal/adapters/http/swagger"
	service "github.com/okian/gridedge/internal/app"
	"github.com/okian/gridedge/internal/config"
	"github.com/okian/gridedge/internal/domain/model"
	"github.com/okian/gridedge/internal/domain/validation"
	"github.com/okian/gridedge/internal/meter"
	"github.com/okian/gridedge/pkg/logger"
	"github.com/okian/gridedge/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 60 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> .env -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// logger isn't configured yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get().Named("edge")
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc := service.New(
		service.WithLogger(logger.Get().Named("service")),
		service.WithBounds(bounds(cfg)),
		service.WithWindowSize(cfg.WindowSize),
		service.WithShardCount(cfg.ShardCount),
		service.WithThreshold(cfg.AnomalyZThreshold),
		service.WithMaxRetries(cfg.MaxRetries),
		service.WithBaseRetryDelay(cfg.BaseRetryDelay),
		service.WithAttemptTimeout(cfg.PerAttemptTimeout),
		service.WithStoreEndpoint(cfg.StoreEndpoint),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithReplayGuardSize(cfg.ReplayGuardSize),
	)
	if err := svc.Start(ctx); err != nil {
		log.Error(ctx, "failed to start service", logger.Error(err))
		os.Exit(1)
	}

	// Simulated meters feed the pipeline in-process.
	fleet, err := meter.NewFleet(cfg.SimulationCities, meter.SinkFunc(func(ctx context.Context, r model.RawReading) error {
		_, err := svc.Ingest(ctx, r)
		return err
	}))
	if err != nil {
		log.Warn(ctx, "simulation disabled", logger.Error(err))
	}

	if path := os.Getenv("GRIDEDGE_CONFIG"); path != "" {
		err := config.Watch(ctx, path, func(next *config.Config) {
			if err := svc.Reconfigure(ctx, bounds(next), next.AnomalyZThreshold); err != nil {
				log.Warn(ctx, "reconfigure rejected", logger.Error(err))
			}
			if err := logger.SetLevelString(next.LogLevel); err != nil {
				log.Warn(ctx, "invalid log_level on reload", logger.String("log_level", next.LogLevel))
			}
		})
		if err != nil {
			log.Warn(ctx, "config watch disabled", logger.Error(err))
		}
	}

	go startSystemMetricsUpdater(ctx)

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)

	var sim api.Simulator
	if fleet != nil {
		sim = fleet
	}
	api.NewServer(svc, svc, sim).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("store", cfg.StoreEndpoint))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(context.Background(), "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if fleet != nil {
		fleet.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	// Pending deliveries drain before exit.
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "service stop failed", logger.Error(err))
	}

	log.Info(shutdownCtx, "server stopped")
}

func bounds(cfg *config.Config) validation.Bounds {
	return validation.Bounds{
		VoltageMin: cfg.VoltageMin,
		VoltageMax: cfg.VoltageMax,
		CurrentMin: cfg.CurrentMin,
		CurrentMax: cfg.CurrentMax,
	}
}

// startSystemMetricsUpdater periodically publishes process metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
