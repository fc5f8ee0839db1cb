package config

type Config struct {
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`

	Classifier ClassifierConfig `json:"classifier"`
	Ingest     IngestConfig     `json:"ingest"`
	Dispatch   DispatchConfig   `json:"dispatch"`

	// Scheduler controls trigger behavior (batch delivery, retention).
	Scheduler SchedulerConfig `json:"scheduler"`

	// TaskEngine controls execution settings for classification and scheduled jobs.
	TaskEngine *TaskEngineConfig `json:"task_engine,omitempty"`

	Notifier    *NotifierConfig    `json:"notifier,omitempty"`
	Retention   *RetentionConfig   `json:"retention,omitempty"`
	IntentCache *IntentCacheConfig `json:"intent_cache,omitempty"`
}

// TaskEngineConfig controls the task execution engine.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - enabled: true
//   - workers: 2
//   - queue_size: 256
//   - default_timeout: "0s" (disabled)
//   - max_queue_delay: "0s" (disabled)
//   - history_size: 200
//   - retry_max: 3
type TaskEngineConfig struct {
	Enabled *bool `json:"enabled,omitempty"`
	Workers int   `json:"workers,omitempty"`

	QueueSize int `json:"queue_size,omitempty"`

	// DefaultTimeout is a Go duration string (e.g. "10s", "1m").
	// Use "0s" to disable a global default timeout.
	DefaultTimeout string `json:"default_timeout,omitempty"`

	// MaxQueueDelay drops tasks that have been queued longer than this duration.
	// Use "0s" to disable stale queue dropping.
	MaxQueueDelay string `json:"max_queue_delay,omitempty"`

	HistorySize int `json:"history_size,omitempty"`
	RetryMax    int `json:"retry_max,omitempty"`
}

// NotifierConfig controls outgoing desktop notifications.
//
// If the whole section is omitted, the notifier defaults to enabled=true.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
	AppName         string `json:"app_name,omitempty"`
	Icon            string `json:"icon,omitempty"`
}

// StorageConfig controls the SQLite repository.
//
// Example:
//
//	"storage": { "path": "~/.local/share/notifai/notifai.db" }
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// ClassifierConfig controls engine selection and the inference runtime.
type ClassifierConfig struct {
	// LibDir holds the lib<variant>.so engine builds.
	LibDir string `json:"lib_dir"`
	// AssetsDir holds the packaged model artifact.
	AssetsDir string `json:"assets_dir"`
	// DataDir is the writable location the model is copied to.
	DataDir string `json:"data_dir"`
	// ModelFile overrides the well-known model filename.
	ModelFile string `json:"model_file,omitempty"`

	ContextSize int `json:"context_size,omitempty"`
	Threads     int `json:"threads,omitempty"`
	MaxTokens   int `json:"max_tokens,omitempty"`
}

// IngestConfig controls the notification source and filter.
type IngestConfig struct {
	Enabled bool `json:"enabled"`
	// SelfID is this application's own package id; its notifications are ignored.
	SelfID string `json:"self_id,omitempty"`
	// NameCacheTTL bounds how long resolved display names are reused.
	NameCacheTTL string `json:"name_cache_ttl,omitempty"`
}

// DispatchConfig controls batch delivery.
type DispatchConfig struct {
	// BatchSchedule accepts cron, "@every 30m", "30m" or "00:30".
	BatchSchedule string `json:"batch_schedule,omitempty"`
}

type RetentionConfig struct {
	MaxAge   string `json:"max_age"`
	Schedule string `json:"schedule,omitempty"`
}

type IntentCacheConfig struct {
	MaxEntries int `json:"max_entries"`
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LoggingFile    `json:"file"`
	Desktop LoggingDesktop `json:"desktop"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingDesktop struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerMin int    `json:"rate_per_min"`
}

// SchedulerConfig controls the scheduler (trigger) service.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// Trigger timezone.
	Timezone string `json:"timezone,omitempty"`
}
