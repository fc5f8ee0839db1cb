package config

import (
	"reflect"
	"sort"
	"strings"

	logx "notifai/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and
// structured attrs for logging the new values of those sections.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.desktop_enabled", newCfg.Logging.Desktop.Enabled),
		)
	}

	if strings.TrimSpace(oldCfg.Storage.Path) != strings.TrimSpace(newCfg.Storage.Path) ||
		strings.TrimSpace(oldCfg.Storage.BusyTimeout) != strings.TrimSpace(newCfg.Storage.BusyTimeout) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.path", strings.TrimSpace(newCfg.Storage.Path)),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	if oldCfg.Classifier != newCfg.Classifier {
		changed = append(changed, "classifier")
		attrs = append(attrs,
			logx.String("classifier.lib_dir", newCfg.Classifier.LibDir),
			logx.String("classifier.data_dir", newCfg.Classifier.DataDir),
			logx.Int("classifier.threads", newCfg.Classifier.Threads),
			logx.Int("classifier.context_size", newCfg.Classifier.ContextSize),
		)
	}

	if oldCfg.Ingest != newCfg.Ingest {
		changed = append(changed, "ingest")
		attrs = append(attrs,
			logx.Bool("ingest.enabled", newCfg.Ingest.Enabled),
			logx.String("ingest.self_id", newCfg.Ingest.SelfID),
		)
	}

	if oldCfg.Dispatch != newCfg.Dispatch {
		changed = append(changed, "dispatch")
		attrs = append(attrs, logx.String("dispatch.batch_schedule", newCfg.Dispatch.BatchSchedule))
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}

	oTE, nTE := derefTaskEngine(oldCfg.TaskEngine), derefTaskEngine(newCfg.TaskEngine)
	if (oldCfg.TaskEngine != nil) != (newCfg.TaskEngine != nil) || !reflect.DeepEqual(oTE, nTE) {
		changed = append(changed, "task_engine")
		enabled := true
		if nTE.Enabled != nil {
			enabled = *nTE.Enabled
		}
		attrs = append(attrs,
			logx.Bool("task_engine.enabled", enabled),
			logx.Int("task_engine.workers", nTE.Workers),
			logx.Int("task_engine.queue_size", nTE.QueueSize),
			logx.String("task_engine.default_timeout", strings.TrimSpace(nTE.DefaultTimeout)),
			logx.Int("task_engine.retry_max", nTE.RetryMax),
		)
	}

	// A nil section means runtime defaults; compare against those.
	oldN, newN := NotifierOrDefault(oldCfg.Notifier), NotifierOrDefault(newCfg.Notifier)
	if oldN != newN {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.enabled", newN.Enabled),
			logx.Int("notifier.rate_per_sec", newN.RatePerSec),
			logx.Int("notifier.retry_max", newN.RetryMax),
			logx.String("notifier.dedup_window", newN.DedupWindow),
		)
	}

	oldR, newR := RetentionOrDefault(oldCfg.Retention), RetentionOrDefault(newCfg.Retention)
	if oldR != newR {
		changed = append(changed, "retention")
		attrs = append(attrs,
			logx.String("retention.max_age", newR.MaxAge),
			logx.String("retention.schedule", newR.Schedule),
		)
	}

	oldI, newI := IntentCacheOrDefault(oldCfg.IntentCache), IntentCacheOrDefault(newCfg.IntentCache)
	if oldI != newI {
		changed = append(changed, "intent_cache")
		attrs = append(attrs, logx.Int("intent_cache.max_entries", newI.MaxEntries))
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired reports the changed sections that only take effect after
// the daemon restarts.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "storage", "classifier", "ingest", "task_engine", "intent_cache":
			out = append(out, s)
		}
	}
	return out
}

func derefTaskEngine(te *TaskEngineConfig) TaskEngineConfig {
	if te == nil {
		return TaskEngineConfig{}
	}
	return *te
}

// NotifierOrDefault returns n or the notifier defaults when the section is omitted.
func NotifierOrDefault(n *NotifierConfig) NotifierConfig {
	if n != nil {
		return *n
	}
	return NotifierConfig{
		Enabled:         true,
		RatePerSec:      3,
		RetryMax:        3,
		RetryBase:       "500ms",
		RetryMaxDelay:   "10s",
		DedupWindow:     "1m",
		DedupMaxEntries: 2000,
		AppName:         "notifai",
	}
}

func RetentionOrDefault(r *RetentionConfig) RetentionConfig {
	if r != nil {
		return *r
	}
	return RetentionConfig{MaxAge: "720h", Schedule: "@daily"}
}

func IntentCacheOrDefault(c *IntentCacheConfig) IntentCacheConfig {
	if c != nil && c.MaxEntries > 0 {
		return *c
	}
	return IntentCacheConfig{MaxEntries: 500}
}
