package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the waysock configuration file
type Config struct {
	Socket  SocketConfig  `toml:"socket"`
	Limits  LimitsConfig  `toml:"limits"`
	Web     WebConfig     `toml:"web"`
	Logging LoggingConfig `toml:"logging"`
	Journal JournalConfig `toml:"journal"`
}

// SocketConfig controls how the display socket is selected
type SocketConfig struct {
	Name       string `toml:"name"`        // fixed socket name; empty selects wayland-1..wayland-31
	RuntimeDir string `toml:"runtime_dir"` // override; empty uses XDG_RUNTIME_DIR
	Drain      bool   `toml:"drain"`       // read and discard client bytes, counting them
}

// LimitsConfig bounds the display accept path
type LimitsConfig struct {
	MaxClients  int     `toml:"max_clients"`
	AcceptRate  float64 `toml:"accept_rate"` // new connections per second
	AcceptBurst int     `toml:"accept_burst"`
}

// WebConfig contains the loopback debug API settings
type WebConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text, json
}

// JournalConfig controls the on-disk event journal
type JournalConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a config with sensible defaults
func Default() *Config {
	return &Config{
		Socket: SocketConfig{
			Name:       "",
			RuntimeDir: "",
			Drain:      true,
		},
		Limits: LimitsConfig{
			MaxClients:  64,
			AcceptRate:  32,
			AcceptBurst: 16,
		},
		Web: WebConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9641",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Journal: JournalConfig{
			Enabled: true,
		},
	}
}

// Load loads the configuration from the default config file
func Load() (*Config, error) {
	paths, err := GetPaths()
	if err != nil {
		return nil, fmt.Errorf("get paths: %w", err)
	}

	return LoadFrom(paths.ConfigFile)
}

// LoadFrom loads the configuration from a specific file
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if no config file exists
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// Save saves the configuration to the default config file
func (c *Config) Save() error {
	paths, err := GetPaths()
	if err != nil {
		return fmt.Errorf("get paths: %w", err)
	}

	return c.SaveTo(paths.ConfigFile)
}

// SaveTo saves the configuration to a specific file
func (c *Config) SaveTo(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if strings.ContainsRune(c.Socket.Name, os.PathSeparator) {
		return fmt.Errorf("socket name must be a bare name, got %q", c.Socket.Name)
	}

	if c.Socket.RuntimeDir != "" && !filepath.IsAbs(c.Socket.RuntimeDir) {
		return fmt.Errorf("runtime_dir must be absolute, got %q", c.Socket.RuntimeDir)
	}

	if c.Limits.MaxClients < 1 {
		return fmt.Errorf("invalid max_clients: %d", c.Limits.MaxClients)
	}
	if c.Limits.AcceptRate <= 0 {
		return fmt.Errorf("invalid accept_rate: %v", c.Limits.AcceptRate)
	}
	if c.Limits.AcceptBurst < 1 {
		return fmt.Errorf("invalid accept_burst: %d", c.Limits.AcceptBurst)
	}

	if c.Web.Enabled {
		host, _, err := net.SplitHostPort(c.Web.Listen)
		if err != nil {
			return fmt.Errorf("invalid web listen address %q: %w", c.Web.Listen, err)
		}
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			return fmt.Errorf("web listen address must be loopback, got %q", c.Web.Listen)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}
