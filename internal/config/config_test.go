package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFrom_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	def := Default()
	if *cfg != *def {
		t.Errorf("config = %+v, want defaults %+v", cfg, def)
	}
}

func TestLoadFrom_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[socket]
name = "wayland-7"

[limits]
max_clients = 8

[web]
enabled = true
listen = "127.0.0.1:9999"
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatalf("write config failed: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	if cfg.Socket.Name != "wayland-7" {
		t.Errorf("Socket.Name = %q, want %q", cfg.Socket.Name, "wayland-7")
	}
	if cfg.Limits.MaxClients != 8 {
		t.Errorf("Limits.MaxClients = %d, want 8", cfg.Limits.MaxClients)
	}
	if !cfg.Web.Enabled || cfg.Web.Listen != "127.0.0.1:9999" {
		t.Errorf("Web = %+v, want enabled at 127.0.0.1:9999", cfg.Web)
	}
	// Untouched sections keep their defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestSaveTo_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.Socket.Name = "wayland-3"
	cfg.Limits.AcceptBurst = 2

	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("round trip = %+v, want %+v", loaded, cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}, wantErr: false},
		{name: "fixed name", mutate: func(c *Config) { c.Socket.Name = "wayland-5" }, wantErr: false},
		{name: "name with separator", mutate: func(c *Config) { c.Socket.Name = "sub/wayland-5" }, wantErr: true},
		{name: "relative runtime dir", mutate: func(c *Config) { c.Socket.RuntimeDir = "run/user" }, wantErr: true},
		{name: "absolute runtime dir", mutate: func(c *Config) { c.Socket.RuntimeDir = "/run/user/1000" }, wantErr: false},
		{name: "zero max clients", mutate: func(c *Config) { c.Limits.MaxClients = 0 }, wantErr: true},
		{name: "negative rate", mutate: func(c *Config) { c.Limits.AcceptRate = -1 }, wantErr: true},
		{name: "zero burst", mutate: func(c *Config) { c.Limits.AcceptBurst = 0 }, wantErr: true},
		{name: "web non-loopback", mutate: func(c *Config) { c.Web.Enabled = true; c.Web.Listen = "0.0.0.0:9641" }, wantErr: true},
		{name: "web missing port", mutate: func(c *Config) { c.Web.Enabled = true; c.Web.Listen = "127.0.0.1" }, wantErr: true},
		{name: "web loopback", mutate: func(c *Config) { c.Web.Enabled = true; c.Web.Listen = "127.0.0.1:9641" }, wantErr: false},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "verbose" }, wantErr: true},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Validate succeeded, want error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate failed: %v", err)
			}
		})
	}
}

func TestGetPaths_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WAYSOCK_CONFIG_DIR", dir)

	paths, err := GetPaths()
	if err != nil {
		t.Fatalf("GetPaths failed: %v", err)
	}
	if paths.ConfigDir != dir {
		t.Errorf("ConfigDir = %q, want %q", paths.ConfigDir, dir)
	}
	if paths.ConfigFile != filepath.Join(dir, "config.toml") {
		t.Errorf("ConfigFile = %q, want under override dir", paths.ConfigFile)
	}

	if err := paths.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	if _, err := os.Stat(paths.ConfigDir); err != nil {
		t.Errorf("config dir missing: %v", err)
	}
}
