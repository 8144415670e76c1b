// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Game        GameConfig        `yaml:"game"`
	Leaderboard LeaderboardConfig `yaml:"leaderboard"`
	Store       StoreConfig       `yaml:"store"`
	Admin       AdminConfig       `yaml:"admin"`
	Messages    MessagesConfig    `yaml:"messages"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" default:"50" validate:"gte=1"`
	MaxBackups int    `yaml:"max_backups" default:"3" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" default:"14" validate:"gte=0"`
}

// GameConfig represents the click-session settings.
// DurationSec has no default and must be set explicitly.
type GameConfig struct {
	DurationSec       int `yaml:"duration_sec" validate:"required,gte=1,lte=3600"`
	TimerResolutionMs int `yaml:"timer_resolution_ms" default:"100" validate:"gte=1,lte=1000"`
}

// LeaderboardConfig represents leaderboard settings.
type LeaderboardConfig struct {
	DefaultLimit   int `yaml:"default_limit" default:"10" validate:"gte=1,lte=100"`
	MaxLimit       int `yaml:"max_limit" default:"100" validate:"gte=1"`
	QueryTimeoutMs int `yaml:"query_timeout_ms" default:"3000" validate:"gte=1"`
}

// StoreConfig selects and configures the score store backend.
type StoreConfig struct {
	Type     string         `yaml:"type" default:"memory" validate:"oneof=memory jsonfile sqlite valkey"`
	Settings map[string]any `yaml:"settings"`
	Retry    RetryConfig    `yaml:"retry"`
}

// RetryConfig represents commit retry settings.
type RetryConfig struct {
	MaxAttempts       int `yaml:"max_attempts" default:"3" validate:"gte=1,lte=20"`
	InitialIntervalMs int `yaml:"initial_interval_ms" default:"200" validate:"gte=1"`
	MaxIntervalMs     int `yaml:"max_interval_ms" default:"2000" validate:"gtefield=InitialIntervalMs"`
	FlushIntervalMs   int `yaml:"flush_interval_ms" default:"30000" validate:"gte=100"`
}

// AdminConfig represents admin-related configuration.
type AdminConfig struct {
	Token string `yaml:"token" validate:"required"`
}

// MessagesConfig represents user-facing rejection messages.
type MessagesConfig struct {
	DefaultError   string `yaml:"default_error" default:"Something went wrong."`
	NotRegistered  string `yaml:"not_registered" default:"Send your username first."`
	AlreadyPlaying string `yaml:"already_playing" default:"You already have a game in progress!"`
	NotFound       string `yaml:"not_found" default:"The game is over."`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse builds a configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		c.Admin.Token = v
	}
	if v := os.Getenv("CHOPBOX_STORE_TYPE"); v != "" {
		c.Store.Type = v
	}
	if v := os.Getenv("CHOPBOX_STORE_PATH"); v != "" {
		c.setStoreSetting("path", v)
	}
	if v := os.Getenv("VALKEY_ADDR"); v != "" && c.Store.Type == "valkey" {
		c.setStoreSetting("addr", v)
	}
	if v := os.Getenv("VALKEY_PASSWORD"); v != "" && c.Store.Type == "valkey" {
		c.setStoreSetting("password", v)
	}
}

func (c *Config) setStoreSetting(key string, value any) {
	if c.Store.Settings == nil {
		c.Store.Settings = make(map[string]any)
	}
	c.Store.Settings[key] = value
}

// GetMessage returns the message for the given rejection code.
func (c *Config) GetMessage(code string) string {
	switch code {
	case "not_registered":
		return c.Messages.NotRegistered
	case "already_playing":
		return c.Messages.AlreadyPlaying
	case "not_found":
		return c.Messages.NotFound
	default:
		return c.Messages.DefaultError
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Leaderboard.DefaultLimit > c.Leaderboard.MaxLimit {
		return errors.Newf("leaderboard default_limit (%d) must not exceed max_limit (%d)",
			c.Leaderboard.DefaultLimit, c.Leaderboard.MaxLimit)
	}

	return nil
}

// Duration returns the play window length.
func (c *Config) Duration() time.Duration {
	return time.Duration(c.Game.DurationSec) * time.Second
}

// TimerResolution returns the expiry polling interval.
func (c *Config) TimerResolution() time.Duration {
	return time.Duration(c.Game.TimerResolutionMs) * time.Millisecond
}

// QueryTimeout returns the deadline for one shared leaderboard read.
func (l LeaderboardConfig) QueryTimeout() time.Duration {
	return time.Duration(l.QueryTimeoutMs) * time.Millisecond
}

// RetryInitialInterval returns the first commit retry delay.
func (r RetryConfig) RetryInitialInterval() time.Duration {
	return time.Duration(r.InitialIntervalMs) * time.Millisecond
}

// RetryMaxInterval returns the commit retry delay cap.
func (r RetryConfig) RetryMaxInterval() time.Duration {
	return time.Duration(r.MaxIntervalMs) * time.Millisecond
}

// FlushInterval returns how often queued commits are retried.
func (r RetryConfig) FlushInterval() time.Duration {
	return time.Duration(r.FlushIntervalMs) * time.Millisecond
}
