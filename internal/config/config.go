// Package config loads streamcored's runtime configuration via Viper,
// generalizing jmylchreest-tvarr's internal/config shape (defaults set on a
// *viper.Viper before a config file is read, then unmarshaled into a typed
// struct and validated) from tvarr's IPTV settings to the actor defaults and
// flavor wiring SPEC_FULL.md §2 "Configuration" names.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultSourceTimeoutMS   = 5000
	defaultClientsTimeoutMS  = 30_000
	defaultGlueDeltaMS       = 40
	defaultRetryLimit        = 3
	defaultListenAddr        = ":1935"
	defaultAdminAddr         = ":8090"
	defaultAdminRateLimitRPM = 300
	defaultTimeshiftMS       = 60_000
)

// Config holds all configuration for streamcored.
type Config struct {
	Stream   StreamConfig   `mapstructure:"stream" yaml:"stream"`
	Admin    AdminConfig    `mapstructure:"admin" yaml:"admin"`
	Flavors  FlavorConfig   `mapstructure:"flavors" yaml:"flavors"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Presence PresenceConfig `mapstructure:"presence" yaml:"presence"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// StreamConfig holds the per-actor defaults a Factory applies to every
// stream.Options it builds (spec §4.1's "glue delta", §9's retry/timeout
// knobs), absent a per-stream override.
type StreamConfig struct {
	SourceTimeoutMS  int64 `mapstructure:"source_timeout_ms" yaml:"source_timeout_ms"`
	ClientsTimeoutMS int64 `mapstructure:"clients_timeout_ms" yaml:"clients_timeout_ms"`
	GlueDeltaMS      int64 `mapstructure:"glue_delta_ms" yaml:"glue_delta_ms"`
	RetryLimit       int   `mapstructure:"retry_limit" yaml:"retry_limit"`
}

// AdminConfig holds the admin HTTP surface's listen address and per-IP rate
// limit (internal/adminapi).
type AdminConfig struct {
	ListenAddr      string `mapstructure:"listen_addr" yaml:"listen_addr"`
	RateLimitPerMin int    `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
}

// FlavorConfig toggles which flavor adapters a Factory is willing to build
// for newly requested stream keys, and where each one does its ingest work.
type FlavorConfig struct {
	FileEnabled      bool   `mapstructure:"file_enabled" yaml:"file_enabled"`
	FileWatchDir     string `mapstructure:"file_watch_dir" yaml:"file_watch_dir"`
	LiveEnabled      bool   `mapstructure:"live_enabled" yaml:"live_enabled"`
	LiveListenAddr   string `mapstructure:"live_listen_addr" yaml:"live_listen_addr"`
	MPEGTSEnabled    bool   `mapstructure:"mpegts_enabled" yaml:"mpegts_enabled"`
	MPEGTSListenAddr string `mapstructure:"mpegts_listen_addr" yaml:"mpegts_listen_addr"`
}

// StorageConfig selects and sizes the random-access backing store new
// streams are given (spec §3, §6: in-memory ring vs. persistent Badger).
type StorageConfig struct {
	Backend     string `mapstructure:"backend" yaml:"backend"` // "ring" or "badger"
	TimeshiftMS int64  `mapstructure:"timeshift_ms" yaml:"timeshift_ms"`
	BadgerDir   string `mapstructure:"badger_dir" yaml:"badger_dir"`
}

// PresenceConfig holds the optional Redis presence registry's connection
// settings (internal/presence). Addr == "" disables presence entirely.
type PresenceConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

// LoggingConfig holds structured-logger settings (internal/logger).
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// Load reads configuration from file, environment variables, and bound
// pflags, in that ascending precedence (flags win). Environment variables
// are prefixed with STREAMCORE_ and use underscores for nesting, matching
// tvarr's TVARR_ prefix convention.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("streamcored")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/streamcore")
		v.AddConfigPath("$HOME/.streamcore")
	}

	v.SetEnvPrefix("STREAMCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options. Call
// this before reading a config file so unset keys still resolve.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("stream.source_timeout_ms", defaultSourceTimeoutMS)
	v.SetDefault("stream.clients_timeout_ms", defaultClientsTimeoutMS)
	v.SetDefault("stream.glue_delta_ms", defaultGlueDeltaMS)
	v.SetDefault("stream.retry_limit", defaultRetryLimit)

	v.SetDefault("admin.listen_addr", defaultAdminAddr)
	v.SetDefault("admin.rate_limit_per_minute", defaultAdminRateLimitRPM)

	v.SetDefault("flavors.file_enabled", false)
	v.SetDefault("flavors.file_watch_dir", "")
	v.SetDefault("flavors.live_enabled", true)
	v.SetDefault("flavors.live_listen_addr", defaultListenAddr)
	v.SetDefault("flavors.mpegts_enabled", false)
	v.SetDefault("flavors.mpegts_listen_addr", "")

	v.SetDefault("storage.backend", "ring")
	v.SetDefault("storage.timeshift_ms", defaultTimeshiftMS)
	v.SetDefault("storage.badger_dir", "")

	v.SetDefault("presence.addr", "")
	v.SetDefault("presence.password", "")
	v.SetDefault("presence.db", 0)

	v.SetDefault("logging.level", "info")
}

// Validate checks the configuration for errors a caller would otherwise only
// discover once a stream fails to start.
func (c *Config) Validate() error {
	if c.Stream.SourceTimeoutMS < 0 {
		return fmt.Errorf("stream.source_timeout_ms must not be negative")
	}
	if c.Stream.ClientsTimeoutMS < 0 {
		return fmt.Errorf("stream.clients_timeout_ms must not be negative")
	}
	if c.Stream.RetryLimit < 0 {
		return fmt.Errorf("stream.retry_limit must not be negative")
	}
	if c.Admin.ListenAddr == "" {
		return fmt.Errorf("admin.listen_addr is required")
	}

	switch c.Storage.Backend {
	case "ring", "badger":
	default:
		return fmt.Errorf("storage.backend must be one of: ring, badger")
	}
	if c.Storage.Backend == "badger" && c.Storage.BadgerDir == "" {
		return fmt.Errorf("storage.badger_dir is required when storage.backend is badger")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	return nil
}

// SourceTimeout returns the actor source-loss grace period as a
// time.Duration for callers building a stream.SourceTimeoutPolicy.
func (c *StreamConfig) SourceTimeout() time.Duration {
	return time.Duration(c.SourceTimeoutMS) * time.Millisecond
}
