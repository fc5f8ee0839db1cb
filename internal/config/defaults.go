package config

import (
	"os"
	"path/filepath"
)

// Default returns the configuration used when no config file exists.
// Paths follow the XDG base directory layout.
func Default() *Config {
	data := xdgDir("XDG_DATA_HOME", ".local/share")
	return &Config{
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Desktop: LoggingDesktop{MinLevel: "error", RatePerMin: 2},
		},
		Storage: StorageConfig{
			Path:        filepath.Join(data, "notifai", "notifai.db"),
			BusyTimeout: "1s",
		},
		Classifier: ClassifierConfig{
			LibDir:      "/usr/lib/notifai",
			AssetsDir:   "/usr/share/notifai/models",
			DataDir:     filepath.Join(data, "notifai", "models"),
			ContextSize: 2048,
			MaxTokens:   20,
		},
		Ingest: IngestConfig{
			Enabled:      true,
			SelfID:       "notifai",
			NameCacheTTL: "10m",
		},
		Dispatch:  DispatchConfig{BatchSchedule: "@every 30m"},
		Scheduler: SchedulerConfig{Enabled: true},
	}
}

func xdgDir(env, fallback string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".", fallback)
	}
	return filepath.Join(home, fallback)
}

// DefaultPath is the config file location under XDG_CONFIG_HOME.
func DefaultPath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "notifai", "config.yaml")
}
