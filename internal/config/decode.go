package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	yaml "go.yaml.in/yaml/v3"
)

// decode parses data (JSON or YAML, by file extension) on top of base.
// Fields omitted in data keep their value from base.
func decode(path string, data []byte, base *Config) (*Config, error) {
	jb, err := toJSON(path, data)
	if err != nil {
		return nil, err
	}

	cfg := *base
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, errors.New("invalid config: trailing data")
		}
		return nil, err
	}
	return &cfg, nil
}

// toJSON converts YAML config to JSON bytes so both formats go through the
// same strict decoder.
func toJSON(path string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	if v == nil {
		return []byte("{}"), nil
	}
	j, err := json.Marshal(stringKeys(v))
	if err != nil {
		return nil, fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, nil
}

// stringKeys makes every map key a string so the value can be JSON-marshaled.
func stringKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = stringKeys(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = stringKeys(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = stringKeys(x[i])
		}
		return x
	default:
		return in
	}
}

// envOverrides are the NOTIFAI_* variables honored on top of the file.
type envOverrides struct {
	LogLevel  string `envconfig:"LOG_LEVEL"`
	DBPath    string `envconfig:"DB_PATH"`
	LibDir    string `envconfig:"LIB_DIR"`
	AssetsDir string `envconfig:"ASSETS_DIR"`
	DataDir   string `envconfig:"DATA_DIR"`
	ModelFile string `envconfig:"MODEL_FILE"`
	Threads   int    `envconfig:"THREADS"`
}

func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("notifai", &env); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&cfg.Logging.Level, env.LogLevel)
	set(&cfg.Storage.Path, env.DBPath)
	set(&cfg.Classifier.LibDir, env.LibDir)
	set(&cfg.Classifier.AssetsDir, env.AssetsDir)
	set(&cfg.Classifier.DataDir, env.DataDir)
	set(&cfg.Classifier.ModelFile, env.ModelFile)
	if env.Threads > 0 {
		cfg.Classifier.Threads = env.Threads
	}
	return nil
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil || len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
