// Package config loads CLI configuration from an optional YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tunables of the verification CLI.
type Config struct {
	// CacheDir is where fetched artifacts are stored.
	CacheDir string `yaml:"cache_dir"`
	// CacheMaxBytes caps the artifact cache size; 0 disables the cap.
	CacheMaxBytes int64 `yaml:"cache_max_bytes"`
	// FetchTimeout bounds a single artifact download.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file or overrides exist.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		CacheDir:     filepath.Join(home, ".cache", "plugincheck"),
		FetchTimeout: 5 * time.Minute,
		LogLevel:     "warn",
	}
}

// Load reads the config file at path (or the default location when path is
// empty), then applies PLUGINCHECK_* environment overrides. A missing file
// is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, ".config", "plugincheck", "config.yaml")
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PLUGINCHECK_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("PLUGINCHECK_CACHE_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.CacheMaxBytes = n
		}
	}
	if v := os.Getenv("PLUGINCHECK_FETCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.FetchTimeout = d
		}
	}
	if v := os.Getenv("PLUGINCHECK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
