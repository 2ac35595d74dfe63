// Package config loads causal settings from an optional YAML file and
// CAUSAL_* environment variables using Viper.
//
// Environment variables override the file; nested keys use underscores
// (audit.auto_repair → CAUSAL_AUDIT_AUTO_REPAIR).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "CAUSAL"

// Config holds all settings.
type Config struct {
	Audit   AuditConfig   `mapstructure:"audit"`
	Log     LogConfig     `mapstructure:"log"`
	Journal JournalConfig `mapstructure:"journal"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// AuditConfig configures the auditor.
type AuditConfig struct {
	// AutoRepair writes successful repairs back into stores.
	AutoRepair bool `mapstructure:"auto_repair"`
	// ApplyReactions lets laws write into other stores.
	ApplyReactions bool `mapstructure:"apply_reactions"`
	// MaxSteps bounds the auditor writes of one flow.
	MaxSteps int `mapstructure:"max_steps"`
	// TelemetryCapacity bounds the in-process telemetry buffer.
	TelemetryCapacity int `mapstructure:"telemetry_capacity"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `mapstructure:"level"`
	// File, when set, receives JSON logs in addition to stderr.
	File string `mapstructure:"file"`
}

// JournalConfig configures the SQLite journal. Empty Path disables it.
type JournalConfig struct {
	Path string `mapstructure:"path"`
}

// MetricsConfig toggles OpenTelemetry metrics for telemetry entries.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// RedisConfig configures the telemetry stream. Empty Addr disables it.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("audit.auto_repair", true)
	v.SetDefault("audit.apply_reactions", true)
	v.SetDefault("audit.max_steps", 256)
	v.SetDefault("audit.telemetry_capacity", 1024)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("journal.path", "")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "causal:telemetry")
	v.SetDefault("redis.max_len", 10000)
}

// Default returns the built-in settings, ignoring files and environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: defaults: %v", err))
	}
	return &cfg
}

// Load reads path (if non-empty), applies CAUSAL_* overrides and defaults,
// and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Audit.MaxSteps <= 0 {
		errs = append(errs, errors.New("config: audit.max_steps must be positive"))
	}
	if c.Audit.TelemetryCapacity <= 0 {
		errs = append(errs, errors.New("config: audit.telemetry_capacity must be positive"))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Redis.Addr != "" && c.Redis.Stream == "" {
		errs = append(errs, errors.New("config: redis.stream must be set when redis.addr is"))
	}
	if c.Redis.MaxLen < 0 {
		errs = append(errs, errors.New("config: redis.max_len must not be negative"))
	}
	return errors.Join(errs...)
}

// SlogLevel parses Level.
func (c LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: log.level %q: %w", c.Level, err)
	}
	return level, nil
}
