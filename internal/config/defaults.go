package config

import "time"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			RateLimit: 10,
			Burst:     5,
			Timeout:   Duration{30 * time.Second},
		},
		Storage: StorageConfig{
			DataDir: DefaultDataDir(),
		},
		Network: NetworkConfig{
			HealthPath:    "/health",
			ProbeInterval: Duration{15 * time.Second},
			ProbeTimeout:  Duration{5 * time.Second},
		},
		Sync: SyncConfig{
			Debounce: Duration{2 * time.Second},
			Interval: Duration{time.Minute},
		},
		Log: LogConfig{
			Level: "info",
		},
		Server: ServerConfig{
			ListenAddr: "127.0.0.1:8090",
		},
	}
}
