package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/creasty/defaults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
game:
  duration_sec: 10
admin:
  token: secret
`

func validConfig(t *testing.T) Config {
	t.Helper()
	cfg := Config{
		Game:  GameConfig{DurationSec: 30},
		Admin: AdminConfig{Token: "test-admin-token"},
	}
	require.NoError(t, defaults.Set(&cfg))
	return cfg
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 10*time.Second, cfg.Duration())
	assert.Equal(t, 100*time.Millisecond, cfg.TimerResolution())
	assert.Equal(t, 10, cfg.Leaderboard.DefaultLimit)
	assert.Equal(t, 3*time.Second, cfg.Leaderboard.QueryTimeout())
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, 3, cfg.Store.Retry.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Store.Retry.RetryInitialInterval())
	assert.Equal(t, 2*time.Second, cfg.Store.Retry.RetryMaxInterval())
	assert.Equal(t, 30*time.Second, cfg.Store.Retry.FlushInterval())
	assert.Equal(t, "Send your username first.", cfg.Messages.NotRegistered)
}

func TestParse_StoreSettings(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML + `
store:
  type: sqlite
  settings:
    path: /var/lib/chopbox/scores.db
    busy_timeout_ms: 1000
`))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Type)
	assert.Equal(t, "/var/lib/chopbox/scores.db", cfg.Store.Settings["path"])
	assert.Equal(t, 1000, cfg.Store.Settings["busy_timeout_ms"])
}

func TestParse_EnvOverride(t *testing.T) {
	t.Setenv("ADMIN_TOKEN", "from-env")
	t.Setenv("CHOPBOX_STORE_TYPE", "valkey")
	t.Setenv("VALKEY_ADDR", "127.0.0.1:6379")

	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Admin.Token)
	assert.Equal(t, "valkey", cfg.Store.Type)
	assert.Equal(t, "127.0.0.1:6379", cfg.Store.Settings["addr"])
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing duration",
			mutate:  func(c *Config) { c.Game.DurationSec = 0 },
			wantErr: true,
			errMsg:  "DurationSec",
		},
		{
			name:    "missing admin token",
			mutate:  func(c *Config) { c.Admin.Token = "" },
			wantErr: true,
			errMsg:  "Token",
		},
		{
			name:    "unknown store type",
			mutate:  func(c *Config) { c.Store.Type = "postgres" },
			wantErr: true,
			errMsg:  "Type",
		},
		{
			name:    "max interval below initial",
			mutate:  func(c *Config) { c.Store.Retry.MaxIntervalMs = 10 },
			wantErr: true,
			errMsg:  "MaxIntervalMs",
		},
		{
			name: "default limit above max",
			mutate: func(c *Config) {
				c.Leaderboard.DefaultLimit = 50
				c.Leaderboard.MaxLimit = 20
			},
			wantErr: true,
			errMsg:  "default_limit",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: true,
			errMsg:  "Level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.wantErr {
				require.Error(t, err, "expected validation to fail")
				assert.Contains(t, err.Error(), tt.errMsg,
					"error message should mention the problematic field")
			} else {
				assert.NoError(t, err, "expected validation to pass")
			}
		})
	}
}

func TestConfig_GetMessage(t *testing.T) {
	cfg := validConfig(t)

	assert.Equal(t, cfg.Messages.NotRegistered, cfg.GetMessage("not_registered"))
	assert.Equal(t, cfg.Messages.AlreadyPlaying, cfg.GetMessage("already_playing"))
	assert.Equal(t, cfg.Messages.NotFound, cfg.GetMessage("not_found"))
	assert.Equal(t, cfg.Messages.DefaultError, cfg.GetMessage("whatever"))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Game.DurationSec)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
