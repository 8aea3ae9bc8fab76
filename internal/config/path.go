package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir picks where the pebble store lives when no dataDir is
// configured: $XDG_DATA_HOME/streamweaver when set, otherwise
// ~/.local/share/streamweaver, falling back to ./data when the home
// directory is unknown.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "streamweaver")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./data"
	}
	return filepath.Join(home, ".local", "share", "streamweaver")
}
