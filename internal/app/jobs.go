package app

import (
	"context"
	"fmt"
	"time"

	"notifai/internal/config"
	"notifai/internal/dispatch"
	"notifai/internal/storage"
	logx "notifai/pkg/logx"
)

// registerJobs (re)registers the scheduled jobs from cfg.
func (a *App) registerJobs(cfg *config.Config) error {
	if err := a.sched.Add(JobBatchDeliver, batchSchedule(cfg), 0, func(ctx context.Context) error {
		_, err := runBatch(ctx, a.dispatch, a.log)
		a.log.Debug("ingest counters", ingestFields(a.filter.Stats())...)
		return err
	}); err != nil {
		return fmt.Errorf("dispatch.batch_schedule: %w", err)
	}

	r, err := mapRetention(cfg)
	if err != nil {
		return err
	}
	if r.MaxAge <= 0 {
		a.sched.Remove(JobRetentionPrune)
		return nil
	}
	if err := a.sched.Add(JobRetentionPrune, r.Schedule, time.Minute, func(ctx context.Context) error {
		_, err := prune(ctx, a.store, r.MaxAge, a.log)
		return err
	}); err != nil {
		return fmt.Errorf("retention.schedule: %w", err)
	}
	return nil
}

func runBatch(ctx context.Context, d *dispatch.Dispatcher, log logx.Logger) (int, error) {
	n, err := d.RunBatch(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Info("batch delivered", logx.Int("count", n))
	}
	return n, nil
}

func prune(ctx context.Context, store *storage.Store, maxAge time.Duration, log logx.Logger) (int64, error) {
	cutoff := time.Now().Add(-maxAge)
	n, err := store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Info("old notifications pruned", logx.Int64("count", n), logx.Time("cutoff", cutoff))
	}
	return n, nil
}
