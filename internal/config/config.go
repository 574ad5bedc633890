// Package config handles application configuration.
//
// Sources are applied in order, each overriding the previous one:
// built-in defaults, the TOML config file, a .env file, then the process
// environment. Command-line flags are applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"

	apperrors "github.com/kimhsiao/campusync/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	API     APIConfig     `toml:"api"`
	Storage StorageConfig `toml:"storage"`
	Network NetworkConfig `toml:"network"`
	Sync    SyncConfig    `toml:"sync"`
	Log     LogConfig     `toml:"log"`
	Server  ServerConfig  `toml:"server"`
}

// APIConfig holds the remote REST API settings.
type APIConfig struct {
	BaseURL string `toml:"base_url"`
	Token   string `toml:"token"`
	// Requests per second; 0 disables limiting.
	RateLimit float64  `toml:"rate_limit"`
	Burst     int      `toml:"burst"`
	Timeout   Duration `toml:"timeout"`
}

// StorageConfig holds Local Store settings.
type StorageConfig struct {
	DataDir string `toml:"data_dir"`
}

// NetworkConfig holds connectivity probe settings.
type NetworkConfig struct {
	HealthPath    string   `toml:"health_path"`
	ProbeInterval Duration `toml:"probe_interval"`
	ProbeTimeout  Duration `toml:"probe_timeout"`
}

// SyncConfig holds reconciliation scheduling settings.
type SyncConfig struct {
	Debounce Duration `toml:"debounce"`
	Interval Duration `toml:"interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// ServerConfig holds the status server settings.
type ServerConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// Duration is a time.Duration written as a Go duration string ("15s") in
// TOML files.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// LoadOptions selects the files Load reads.
type LoadOptions struct {
	// ConfigPath is the TOML file. Empty means DefaultConfigPath, which may
	// be absent; an explicit path must exist.
	ConfigPath string
	// EnvFile is the dotenv file. Empty means ".env" in the working
	// directory, which may be absent.
	EnvFile string
}

// Env var names.
const (
	EnvAPIURL        = "CAMPUSYNC_API_URL"
	EnvToken         = "CAMPUSYNC_TOKEN"
	EnvDataDir       = "CAMPUSYNC_DATA_DIR"
	EnvLogLevel      = "CAMPUSYNC_LOG_LEVEL"
	EnvHealthPath    = "CAMPUSYNC_HEALTH_PATH"
	EnvProbeInterval = "CAMPUSYNC_PROBE_INTERVAL"
	EnvSyncDebounce  = "CAMPUSYNC_SYNC_DEBOUNCE"
	EnvSyncInterval  = "CAMPUSYNC_SYNC_INTERVAL"
	EnvListenAddr    = "CAMPUSYNC_LISTEN_ADDR"
)

// Load builds the configuration from defaults, file, dotenv and environment.
func Load(opts LoadOptions) (*Config, error) {
	cfg := DefaultConfig()

	path, explicit := opts.ConfigPath, opts.ConfigPath != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	if err := loadFile(cfg, path, explicit); err != nil {
		return nil, err
	}

	dotenv, err := readDotenv(opts.EnvFile)
	if err != nil {
		return nil, err
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return nil
	}
	if err != nil {
		return apperrors.Wrap(apperrors.ErrConfigInvalid, "failed to read config file", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return apperrors.Wrap(apperrors.ErrConfigInvalid, fmt.Sprintf("failed to parse %s", path), err)
	}
	return nil
}

// readDotenv reads the dotenv file without touching the process
// environment, so real variables keep precedence.
func readDotenv(path string) (map[string]string, error) {
	required := path != ""
	if !required {
		path = ".env"
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfigInvalid, "failed to read env file", err)
	}
	return values, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		EnvAPIURL:     &cfg.API.BaseURL,
		EnvToken:      &cfg.API.Token,
		EnvDataDir:    &cfg.Storage.DataDir,
		EnvLogLevel:   &cfg.Log.Level,
		EnvHealthPath: &cfg.Network.HealthPath,
		EnvListenAddr: &cfg.Server.ListenAddr,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	durations := map[string]*Duration{
		EnvProbeInterval: &cfg.Network.ProbeInterval,
		EnvSyncDebounce:  &cfg.Sync.Debounce,
		EnvSyncInterval:  &cfg.Sync.Interval,
	}
	for key, dst := range durations {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		if err := dst.UnmarshalText([]byte(v)); err != nil {
			return apperrors.Wrap(apperrors.ErrConfigInvalid, fmt.Sprintf("invalid %s", key), err)
		}
	}
	return nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.API.BaseURL != "" {
		u, err := url.Parse(c.API.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return apperrors.Newf(apperrors.ErrConfigInvalid, "api base_url %q must be an http(s) URL", c.API.BaseURL)
		}
	}
	if c.Storage.DataDir == "" {
		return apperrors.New(apperrors.ErrConfigInvalid, "storage data_dir is required")
	}
	if c.API.RateLimit < 0 || c.API.Burst < 0 {
		return apperrors.New(apperrors.ErrConfigInvalid, "api rate_limit and burst must not be negative")
	}
	if !strings.HasPrefix(c.Network.HealthPath, "/") {
		return apperrors.Newf(apperrors.ErrConfigInvalid, "network health_path %q must start with /", c.Network.HealthPath)
	}

	positive := map[string]Duration{
		"api timeout":            c.API.Timeout,
		"network probe_interval": c.Network.ProbeInterval,
		"network probe_timeout":  c.Network.ProbeTimeout,
		"sync debounce":          c.Sync.Debounce,
		"sync interval":          c.Sync.Interval,
	}
	for name, d := range positive {
		if d.Duration <= 0 {
			return apperrors.Newf(apperrors.ErrConfigInvalid, "%s must be positive, got %s", name, d.Duration)
		}
	}

	switch strings.ToUpper(c.Log.Level) {
	case "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
	default:
		return apperrors.Newf(apperrors.ErrConfigInvalid, "unknown log level %q", c.Log.Level)
	}
	return nil
}
