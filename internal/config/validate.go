package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks fields that can be verified without touching the system.
// Schedules are validated by the scheduler when they are registered.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		add(errors.New("storage.path: required"))
	}
	_, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	add(err)
	_, err = ParseDurationField("ingest.name_cache_ttl", cfg.Ingest.NameCacheTTL)
	add(err)

	if cfg.Classifier.ContextSize < 0 {
		add(errors.New("classifier.context_size: must be >= 0"))
	}
	if cfg.Classifier.Threads < 0 {
		add(errors.New("classifier.threads: must be >= 0"))
	}
	if cfg.Classifier.MaxTokens < 0 {
		add(errors.New("classifier.max_tokens: must be >= 0"))
	}

	if te := cfg.TaskEngine; te != nil {
		_, err = ParseDurationField("task_engine.default_timeout", te.DefaultTimeout)
		add(err)
		_, err = ParseDurationField("task_engine.max_queue_delay", te.MaxQueueDelay)
		add(err)
	}

	n := NotifierOrDefault(cfg.Notifier)
	_, err = ParseDurationField("notifier.retry_base", n.RetryBase)
	add(err)
	_, err = ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay)
	add(err)
	_, err = ParseDurationField("notifier.dedup_window", n.DedupWindow)
	add(err)

	r := RetentionOrDefault(cfg.Retention)
	if age, err := ParseDurationField("retention.max_age", r.MaxAge); err != nil {
		add(err)
	} else if age > 0 && age < time.Hour {
		add(fmt.Errorf("retention.max_age: %s is shorter than 1h", age))
	}

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	return errors.Join(errs...)
}
