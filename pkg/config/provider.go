package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultEnvPrefix is the environment variable prefix for overrides,
// e.g. QUEUECTL_MAX_RETRIES=5.
const DefaultEnvPrefix = "QUEUECTL"

// knownKeys are the settable configuration keys, in display order.
var knownKeys = []string{
	"max_retries",
	"backoff_base",
	"store_path",
	"store_type",
	"busy_timeout",
	"command_timeout",
	"idle_interval",
	"stop_timeout",
	"log_level",
	"log_format",
}

// Provider loads configuration from defaults, an optional config file,
// and environment variables, in increasing priority.
type Provider struct {
	configFile string
	envPrefix  string
	flags      *pflag.FlagSet
	v          *viper.Viper
}

// NewProvider creates a provider for the given config file path. An
// empty path means defaults plus environment only.
func NewProvider(configFile, envPrefix string) *Provider {
	if envPrefix == "" {
		envPrefix = DefaultEnvPrefix
	}
	return &Provider{
		configFile: configFile,
		envPrefix:  envPrefix,
		v:          viper.New(),
	}
}

// WithFlags binds command-line flags on top of file and environment
// values. A flag named with dashes (max-retries) binds to the matching
// underscore key.
func (p *Provider) WithFlags(flags *pflag.FlagSet) *Provider {
	p.flags = flags
	return p
}

// ConfigFile returns the path of the config file the provider reads and writes.
func (p *Provider) ConfigFile() string {
	return p.configFile
}

// Load reads and validates the effective configuration. A configured
// file path that does not exist is tolerated (defaults apply); a file
// that exists but does not parse is an error.
func (p *Provider) Load() (*Config, error) {
	p.v = viper.New()
	setDefaults(p.v)

	if p.configFile != "" {
		p.v.SetConfigFile(p.configFile)
		if err := p.v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file %s: %w", p.configFile, err)
			}
		}
	}

	p.v.SetEnvPrefix(p.envPrefix)
	p.v.AutomaticEnv()
	for _, key := range knownKeys {
		if err := p.v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if p.flags != nil {
		for _, key := range knownKeys {
			flag := p.flags.Lookup(strings.ReplaceAll(key, "_", "-"))
			if flag == nil {
				continue
			}
			if err := p.v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("failed to bind flag for %s: %w", key, err)
			}
		}
	}

	cfg := &Config{}
	if err := p.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Get returns one effective configuration value by key. Dashed key
// spellings from the original CLI (max-retries) are accepted.
func (p *Provider) Get(key string) (any, error) {
	normalized, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	if _, err := p.Load(); err != nil {
		return nil, err
	}
	return p.v.Get(normalized), nil
}

// Set stores one configuration value and writes the config file back.
// The resulting configuration must still validate.
func (p *Provider) Set(key, value string) error {
	normalized, err := normalizeKey(key)
	if err != nil {
		return err
	}
	if p.configFile == "" {
		return errors.New("no config file path configured")
	}

	if _, err := p.Load(); err != nil {
		return err
	}
	p.v.Set(normalized, value)

	cfg := &Config{}
	if err := p.v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if err := p.v.WriteConfigAs(p.configFile); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", p.configFile, err)
	}
	return nil
}

// AllSettings returns the effective merged settings.
func (p *Provider) AllSettings() (map[string]any, error) {
	if _, err := p.Load(); err != nil {
		return nil, err
	}
	return p.v.AllSettings(), nil
}

// Keys returns the settable configuration keys in display order.
func Keys() []string {
	keys := make([]string, len(knownKeys))
	copy(keys, knownKeys)
	return keys
}

func setDefaults(v *viper.Viper) {
	defaults := DefaultConfig()
	v.SetDefault("max_retries", defaults.MaxRetries)
	v.SetDefault("backoff_base", defaults.BackoffBase)
	v.SetDefault("store_path", defaults.StorePath)
	v.SetDefault("store_type", defaults.StoreType)
	v.SetDefault("busy_timeout", defaults.BusyTimeout)
	v.SetDefault("command_timeout", defaults.CommandTimeout)
	v.SetDefault("idle_interval", defaults.IdleInterval)
	v.SetDefault("stop_timeout", defaults.StopTimeout)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_format", defaults.LogFormat)
}

func normalizeKey(key string) (string, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), "-", "_")
	for _, known := range knownKeys {
		if normalized == known {
			return normalized, nil
		}
	}
	return "", fmt.Errorf("unknown config key %q (known: %s)", key, strings.Join(knownKeys, ", "))
}
