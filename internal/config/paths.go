package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// ControlSocketName is the fixed display-style name of the daemon's
// control socket inside the runtime directory. It shares the lock and
// cleanup lifecycle of display sockets, which makes the lock file
// double as the single-instance guard.
const ControlSocketName = "waysock-ctl"

// Paths holds the file paths waysock reads and writes. Socket and lock
// artifacts live in the runtime directory and are not listed here; they
// belong to the sockets that own them.
type Paths struct {
	ConfigDir   string // ~/.config/waysock or $WAYSOCK_CONFIG_DIR
	ConfigFile  string // ConfigDir/config.toml
	PIDFile     string // ConfigDir/daemon.pid
	JournalFile string // ConfigDir/events.jsonl
}

// GetPaths returns the paths for the current user. The
// WAYSOCK_CONFIG_DIR environment variable overrides the config
// directory, which keeps tests and parallel instances apart.
func GetPaths() (*Paths, error) {
	var configDir string

	if envConfigDir := os.Getenv("WAYSOCK_CONFIG_DIR"); envConfigDir != "" {
		configDir = envConfigDir
	} else {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("get user config directory: %w", err)
		}
		configDir = filepath.Join(base, "waysock")
	}

	return &Paths{
		ConfigDir:   configDir,
		ConfigFile:  filepath.Join(configDir, "config.toml"),
		PIDFile:     filepath.Join(configDir, "daemon.pid"),
		JournalFile: filepath.Join(configDir, "events.jsonl"),
	}, nil
}

// EnsureDirectories creates the config directory with owner-only
// permissions
func (p *Paths) EnsureDirectories() error {
	if err := os.MkdirAll(p.ConfigDir, 0700); err != nil {
		return fmt.Errorf("create directory %s: %w", p.ConfigDir, err)
	}
	return nil
}
