package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/okian/gridedge/pkg/logger"
)

// Retention periodically removes readings older than a fixed age.
type Retention struct {
	store    Store
	maxAge   time.Duration
	schedule string
	now      func() time.Time
	cron     *cron.Cron
	logger   logger.Logger
}

// NewRetention creates a job that prunes store on schedule (a cron spec such
// as "@every 10m" or "0 * * * *").
func NewRetention(store Store, maxAge time.Duration, schedule string, log logger.Logger) *Retention {
	if log == nil {
		log = logger.Get().Named("retention")
	}
	return &Retention{
		store:    store,
		maxAge:   maxAge,
		schedule: schedule,
		now:      time.Now,
		cron:     cron.New(),
		logger:   log,
	}
}

// Start schedules the job. It stops when ctx is done or Stop is called.
func (r *Retention) Start(ctx context.Context) error {
	if r.maxAge <= 0 {
		return fmt.Errorf("%w: max age must be positive", ErrRetention)
	}
	_, err := r.cron.AddFunc(r.schedule, func() {
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.Error(ctx, "prune failed", logger.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("%w: schedule %q: %w", ErrRetention, r.schedule, err)
	}
	r.cron.Start()
	r.logger.Info(ctx, "retention scheduled",
		logger.String("schedule", r.schedule),
		logger.Duration("max_age", r.maxAge),
	)

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

// Stop halts scheduling and waits for a running prune.
func (r *Retention) Stop() {
	<-r.cron.Stop().Done()
}

// RunOnce prunes readings older than maxAge and returns how many were removed.
func (r *Retention) RunOnce(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.maxAge)
	n, err := r.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Info(ctx, "readings pruned", logger.Int("removed", n), logger.Any("cutoff", cutoff))
	}
	return n, nil
}
