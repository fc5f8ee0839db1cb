package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"notifai/internal/classifier/inference"
	"notifai/internal/classifier/loader"
	"notifai/internal/config"
	"notifai/internal/notifier"
	"notifai/internal/storage"
	"notifai/internal/task/engine"
	"notifai/internal/task/scheduler"
	logx "notifai/pkg/logx"
)

// Scheduler job names.
const (
	JobBatchDeliver   = "batch.deliver"
	JobRetentionPrune = "retention.prune"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Desktop: logx.DesktopConfig{
			Enabled:    cfg.Logging.Desktop.Enabled,
			MinLevel:   cfg.Logging.Desktop.MinLevel,
			RatePerMin: cfg.Logging.Desktop.RatePerMin,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	path := expandHome(strings.TrimSpace(cfg.Storage.Path))
	if path == "" {
		return storage.Config{}, errors.New("storage.path is required")
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Path: path, BusyTimeout: busy}, nil
}

func mapLoaderConfig(cfg *config.Config) loader.Config {
	return loader.Config{LibDir: expandHome(cfg.Classifier.LibDir)}
}

// mapInferenceConfig fills the thread count from the host when unset.
func mapInferenceConfig(cfg *config.Config, f loader.Features) inference.Config {
	c := cfg.Classifier
	threads := c.Threads
	if threads <= 0 {
		threads = f.Threads()
	}
	return inference.Config{
		AssetsDir:   expandHome(c.AssetsDir),
		DataDir:     expandHome(c.DataDir),
		ModelFile:   c.ModelFile,
		ContextSize: c.ContextSize,
		Threads:     threads,
		MaxTokens:   c.MaxTokens,
	}
}

func mapTaskEngineConfig(cfg *config.Config) (engine.Config, error) {
	enabled := true
	workers, queueSize, historySize, retryMax := 2, 256, 200, 3
	var defTimeout, maxQueueDelay time.Duration

	if te := cfg.TaskEngine; te != nil {
		if te.Enabled != nil {
			enabled = *te.Enabled
		}
		if te.Workers > 0 {
			workers = te.Workers
		}
		if te.QueueSize > 0 {
			queueSize = te.QueueSize
		}
		if te.HistorySize > 0 {
			historySize = te.HistorySize
		}
		if te.RetryMax > 0 {
			retryMax = te.RetryMax
		}
		var err error
		if defTimeout, err = config.ParseDurationField("task_engine.default_timeout", te.DefaultTimeout); err != nil {
			return engine.Config{}, err
		}
		if maxQueueDelay, err = config.ParseDurationField("task_engine.max_queue_delay", te.MaxQueueDelay); err != nil {
			return engine.Config{}, err
		}
	}
	// Classification and both scheduled jobs run on the engine.
	if !enabled && (cfg.Scheduler.Enabled || cfg.Ingest.Enabled) {
		return engine.Config{}, fmt.Errorf("task_engine.enabled cannot be false while scheduler or ingest is enabled")
	}
	return engine.Config{
		Enabled:        enabled,
		Workers:        workers,
		QueueSize:      queueSize,
		DefaultTimeout: defTimeout,
		MaxQueueDelay:  maxQueueDelay,
		HistorySize:    historySize,
		RetryMax:       retryMax,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Enabled: cfg.Scheduler.Enabled, Timezone: cfg.Scheduler.Timezone}
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := config.NotifierOrDefault(cfg.Notifier)
	base, err := config.ParseDurationOrDefault("notifier.retry_base", n.RetryBase, 500*time.Millisecond)
	if err != nil {
		return notifier.Config{}, err
	}
	maxDelay, err := config.ParseDurationOrDefault("notifier.retry_max_delay", n.RetryMaxDelay, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	window, err := config.ParseDurationField("notifier.dedup_window", n.DedupWindow)
	if err != nil {
		return notifier.Config{}, err
	}
	if n.RatePerSec < 0 || n.RetryMax < 0 || n.DedupMaxEntries < 0 {
		return notifier.Config{}, errors.New("notifier: rate_per_sec, retry_max and dedup_max_entries must be >= 0")
	}
	appName := strings.TrimSpace(n.AppName)
	if appName == "" {
		appName = "notifai"
	}
	return notifier.Config{
		Enabled:         n.Enabled,
		RatePerSec:      n.RatePerSec,
		RetryMax:        n.RetryMax,
		RetryBase:       base,
		RetryMaxDelay:   maxDelay,
		DedupWindow:     window,
		DedupMaxEntries: n.DedupMaxEntries,
		AppName:         appName,
		Icon:            n.Icon,
	}, nil
}

type retentionPlan struct {
	MaxAge   time.Duration
	Schedule string
}

// mapRetention returns a zero MaxAge when pruning is off.
func mapRetention(cfg *config.Config) (retentionPlan, error) {
	r := config.RetentionOrDefault(cfg.Retention)
	age, err := config.ParseDurationField("retention.max_age", r.MaxAge)
	if err != nil {
		return retentionPlan{}, err
	}
	sched := strings.TrimSpace(r.Schedule)
	if sched == "" {
		sched = "@daily"
	}
	return retentionPlan{MaxAge: age, Schedule: sched}, nil
}

func batchSchedule(cfg *config.Config) string {
	if s := strings.TrimSpace(cfg.Dispatch.BatchSchedule); s != "" {
		return s
	}
	return "@every 30m"
}

// validate is installed as the hot-reload validator.
func validate(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	var errs []error
	if _, err := mapTaskEngineConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := scheduler.ParseSchedule(batchSchedule(cfg)); err != nil {
		errs = append(errs, fmt.Errorf("dispatch.batch_schedule: %w", err))
	}
	if r, err := mapRetention(cfg); err != nil {
		errs = append(errs, err)
	} else if _, err := scheduler.ParseSchedule(r.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("retention.schedule: %w", err))
	}
	return errors.Join(errs...)
}

// expandHome resolves a leading "~/".
func expandHome(p string) string {
	rest, ok := strings.CutPrefix(p, "~/")
	if !ok {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, rest)
}
