// Package config loads and validates vpo's process configuration: the data
// directory layout, storage tuning, worker stop conditions, job retention,
// language display preference, and the default on-error mode.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"vpo/internal/logging"
)

// StorageConfig tunes the embedded database connection.
type StorageConfig struct {
	BusyTimeout string `yaml:"busy_timeout"` // e.g. "10s"
}

// WorkerConfig holds the worker runtime's stop conditions and resource
// hints.
type WorkerConfig struct {
	MaxFiles    int    `yaml:"max_files"`    // 0 = unlimited
	MaxDuration string `yaml:"max_duration"` // e.g. "2h"; "" = unlimited
	EndBy       string `yaml:"end_by"`       // "HH:MM" local time; "" = unlimited
	CPUCores    int    `yaml:"cpu_cores"`    // 0 = use runtime default
}

// JobsConfig holds job/log retention knobs.
type JobsConfig struct {
	RetentionDays      int `yaml:"retention_days"`
	LogCompressionDays int `yaml:"log_compression_days"`
	LogDeletionDays    int `yaml:"log_deletion_days"`
}

// LanguageConfig holds language-display preferences.
type LanguageConfig struct {
	Standard string `yaml:"standard"` // preferred display form, e.g. "iso639-2T"
}

// LoggingConfig controls the process-diagnostics logger (internal/logging),
// distinct from per-job execution logs (internal/joblog).
type LoggingConfig struct {
	Level      string `yaml:"level"`
	JSONFormat bool   `yaml:"json_format"`
}

// Config holds all of vpo's process configuration.
type Config struct {
	DataDir  string         `yaml:"data_dir"`
	Storage  StorageConfig  `yaml:"storage"`
	Worker   WorkerConfig   `yaml:"worker"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Language LanguageConfig `yaml:"language"`
	Logging  LoggingConfig  `yaml:"logging"`
	OnError  string         `yaml:"on_error"` // global default: skip | continue | fail
}

// DefaultConfig returns vpo's default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".vpo")
	return &Config{
		DataDir: dataDir,
		Storage: StorageConfig{
			BusyTimeout: "10s",
		},
		Worker: WorkerConfig{
			MaxFiles:    0,
			MaxDuration: "",
			EndBy:       "",
			CPUCores:    0,
		},
		Jobs: JobsConfig{
			RetentionDays:      30,
			LogCompressionDays: 7,
			LogDeletionDays:    90,
		},
		Language: LanguageConfig{
			Standard: "iso639-2T",
		},
		Logging: LoggingConfig{
			Level:      "info",
			JSONFormat: false,
		},
		OnError: "fail",
	}
}

// Load reads configuration from a YAML file, falling back to defaults (with
// environment overrides applied) if the file doesn't exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	logging.BootDebug("loading config from: %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Boot("config file not found, using defaults: %s", path)
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	logging.Boot("config loaded: data_dir=%s on_error=%s", cfg.DataDir, cfg.OnError)
	return cfg, nil
}

// Save writes configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// applyEnvOverrides layers environment variables on top of file/defaults.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VPO_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("VPO_WORKER_MAX_FILES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Worker.MaxFiles = n
		}
	}
	if v := os.Getenv("VPO_WORKER_MAX_DURATION"); v != "" {
		c.Worker.MaxDuration = v
	}
	if v := os.Getenv("VPO_WORKER_END_BY"); v != "" {
		c.Worker.EndBy = v
	}
	if v := os.Getenv("VPO_WORKER_CPU_CORES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Worker.CPUCores = n
		}
	}
	if v := os.Getenv("VPO_ON_ERROR"); v != "" {
		c.OnError = v
	}
}

// DBPath returns the path to the embedded relational store.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "library.db")
}

// LogsDir returns the directory holding per-job logs.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// GetBusyTimeout parses Storage.BusyTimeout, defaulting to 10s.
func (c *Config) GetBusyTimeout() time.Duration {
	d, err := time.ParseDuration(c.Storage.BusyTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetMaxDuration parses Worker.MaxDuration; zero duration means unlimited.
func (c *Config) GetMaxDuration() time.Duration {
	if c.Worker.MaxDuration == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Worker.MaxDuration)
	if err != nil {
		return 0
	}
	return d
}

// Validate checks invariants that would otherwise surface as confusing
// runtime errors.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	switch c.OnError {
	case "skip", "continue", "fail":
	default:
		return fmt.Errorf("invalid on_error mode: %q (valid: skip, continue, fail)", c.OnError)
	}
	if c.Worker.EndBy != "" {
		if _, err := time.Parse("15:04", c.Worker.EndBy); err != nil {
			return fmt.Errorf("invalid worker.end_by %q: must be HH:MM", c.Worker.EndBy)
		}
	}
	return nil
}
