package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

const appName = "campusync"

// DefaultConfigPath returns $XDG_CONFIG_HOME/campusync/config.toml.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.toml")
}

// DefaultDataDir returns $XDG_DATA_HOME/campusync.
func DefaultDataDir() string {
	return filepath.Join(xdg.DataHome, appName)
}
