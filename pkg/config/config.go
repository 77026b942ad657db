package config

import (
	"fmt"
	"strings"
	"time"
)

// Store type constants
const (
	// StoreTypeSQLite keeps jobs in a local SQLite database file.
	StoreTypeSQLite = "sqlite"
	// StoreTypeMemory keeps jobs in process memory; nothing survives a restart.
	StoreTypeMemory = "memory"
)

// Config is the root configuration for queuectl. It is read once when a
// store/queue instance is constructed.
type Config struct {
	// MaxRetries is the default attempt budget for newly enqueued jobs.
	MaxRetries int `mapstructure:"max_retries"`
	// BackoffBase is the base of the exponential retry delay (base^attempts seconds).
	BackoffBase int `mapstructure:"backoff_base"`
	// StorePath is the SQLite database file location.
	StorePath string `mapstructure:"store_path"`
	// StoreType selects the store adapter: sqlite or memory.
	StoreType string `mapstructure:"store_type"`
	// BusyTimeout is how long a SQLite call waits on a locked database.
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
	// CommandTimeout is the wall-clock limit for a single job execution.
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	// IdleInterval is the worker sleep when no pending job exists.
	IdleInterval time.Duration `mapstructure:"idle_interval"`
	// StopTimeout is how long the manager waits per worker on shutdown.
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`
	// LogFormat is json or text.
	LogFormat string `mapstructure:"log_format"`
}

// DefaultConfig returns the built-in defaults, matching the behavior of
// a bare `queuectl` install with no config file.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		BackoffBase:    2,
		StorePath:      "queuectl.db",
		StoreType:      StoreTypeSQLite,
		BusyTimeout:    5 * time.Second,
		CommandTimeout: 300 * time.Second,
		IdleInterval:   time.Second,
		StopTimeout:    10 * time.Second,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Validate checks the configuration for values the runtime cannot work with.
func (c *Config) Validate() error {
	if c.MaxRetries <= 0 {
		return fmt.Errorf("max_retries must be > 0, got %d", c.MaxRetries)
	}
	if c.BackoffBase <= 1 {
		return fmt.Errorf("backoff_base must be > 1, got %d", c.BackoffBase)
	}
	switch strings.ToLower(strings.TrimSpace(c.StoreType)) {
	case StoreTypeSQLite, "":
		if strings.TrimSpace(c.StorePath) == "" {
			return fmt.Errorf("store_path is required for the sqlite store")
		}
	case StoreTypeMemory:
	default:
		return fmt.Errorf("unsupported store_type %q (supported: sqlite, memory)", c.StoreType)
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("command_timeout must be > 0, got %s", c.CommandTimeout)
	}
	if c.IdleInterval <= 0 {
		return fmt.Errorf("idle_interval must be > 0, got %s", c.IdleInterval)
	}
	if c.StopTimeout <= 0 {
		return fmt.Errorf("stop_timeout must be > 0, got %s", c.StopTimeout)
	}
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "json", "text", "console", "":
	default:
		return fmt.Errorf("invalid log_format %q", c.LogFormat)
	}
	return nil
}
