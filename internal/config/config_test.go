package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kimhsiao/campusync/internal/errors"
)

// clearEnv unsets every CAMPUSYNC_ variable for the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvAPIURL, EnvToken, EnvDataDir, EnvLogLevel, EnvHealthPath,
		EnvProbeInterval, EnvSyncDebounce, EnvSyncInterval, EnvListenAddr,
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "/health", cfg.Network.HealthPath)
	assert.Equal(t, 15*time.Second, cfg.Network.ProbeInterval.Duration)
	assert.Equal(t, 2*time.Second, cfg.Sync.Debounce.Duration)
	assert.Equal(t, time.Minute, cfg.Sync.Interval.Duration)
	assert.Equal(t, "campusync", filepath.Base(cfg.Storage.DataDir))
	assert.NoError(t, cfg.Validate())
}

func TestLoad_missingDefaultFilesAreFine(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load(LoadOptions{ConfigPath: ""})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Network, cfg.Network)
}

func TestLoad_explicitMissingFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(LoadOptions{ConfigPath: filepath.Join(t.TempDir(), "nope.toml")})

	assert.True(t, apperrors.Is(err, apperrors.ErrConfigInvalid))
}

func TestLoad_precedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfgPath := writeFile(t, dir, "config.toml", `
[api]
base_url = "https://file.example.com/api"
token = "file-token"

[storage]
data_dir = "/var/lib/file"

[sync]
debounce = "5s"
interval = "10m"

[log]
level = "debug"
`)
	envPath := writeFile(t, dir, ".env", `
CAMPUSYNC_TOKEN=dotenv-token
CAMPUSYNC_SYNC_DEBOUNCE=3s
CAMPUSYNC_DATA_DIR=/var/lib/dotenv
`)
	t.Setenv(EnvDataDir, "/var/lib/env")

	cfg, err := Load(LoadOptions{ConfigPath: cfgPath, EnvFile: envPath})
	require.NoError(t, err)

	// File only
	assert.Equal(t, "https://file.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, 10*time.Minute, cfg.Sync.Interval.Duration)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Dotenv beats file
	assert.Equal(t, "dotenv-token", cfg.API.Token)
	assert.Equal(t, 3*time.Second, cfg.Sync.Debounce.Duration)
	// Environment beats dotenv
	assert.Equal(t, "/var/lib/env", cfg.Storage.DataDir)
	// Untouched defaults
	assert.Equal(t, "/health", cfg.Network.HealthPath)
}

func TestLoad_invalidFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "config.toml", `[sync]
debounce = "soon"
`)

	_, err := Load(LoadOptions{ConfigPath: path})

	assert.True(t, apperrors.Is(err, apperrors.ErrConfigInvalid))
}

func TestLoad_invalidEnvDuration(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv(EnvProbeInterval, "fast")

	_, err := Load(LoadOptions{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvProbeInterval)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad scheme", func(c *Config) { c.API.BaseURL = "ftp://example.com" }},
		{"no host", func(c *Config) { c.API.BaseURL = "https://" }},
		{"empty data dir", func(c *Config) { c.Storage.DataDir = "" }},
		{"negative rate", func(c *Config) { c.API.RateLimit = -1 }},
		{"relative health path", func(c *Config) { c.Network.HealthPath = "health" }},
		{"zero debounce", func(c *Config) { c.Sync.Debounce = Duration{} }},
		{"unknown level", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.True(t, apperrors.Is(cfg.Validate(), apperrors.ErrConfigInvalid))
		})
	}
}

func TestDuration_text(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration)

	out, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(out))
}
