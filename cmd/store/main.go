// Command store runs the durable reading store the edge forwards to.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/gridedge/internal/adapters/http/storeapi"
	"github.com/okian/gridedge/internal/adapters/repository"
	"github.com/okian/gridedge/internal/config"
	"github.com/okian/gridedge/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	_ = logger.SetLevelString(cfg.LogLevel)

	log := logger.Get().Named("store")

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Error(ctx, "failed to open store", logger.Error(err))
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(context.Background(), "store close failed", logger.Error(err))
		}
	}()

	retention := repository.NewRetention(store, cfg.StoreRetention, cfg.StorePruneSchedule, log.Named("retention"))
	if err := retention.Start(ctx); err != nil {
		log.Error(ctx, "failed to schedule retention", logger.Error(err))
		os.Exit(1)
	}

	if err := storeapi.New(store, storeapi.WithLogger(log)).Run(ctx, cfg.StoreAddr); err != nil {
		log.Error(ctx, "store server failed", logger.Error(err))
	}
	retention.Stop()
	log.Info(context.Background(), "store stopped")
}

// openStore picks Postgres when a database URL is configured.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	if cfg.StoreDatabaseURL == "" {
		return repository.NewMemoryStore(), nil
	}
	return repository.NewPostgresStore(ctx, cfg.StoreDatabaseURL)
}
