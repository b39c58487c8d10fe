// Package config provides configuration file parsing for pyscope.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Dir returns the pyscope config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/pyscope if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "pyscope"), nil
}

// DataDir returns the pyscope data directory (database, deferred queue),
// respecting XDG_DATA_HOME. Defaults to ~/.local/share/pyscope.
func DataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "pyscope"), nil
}

// Config holds user-adjustable settings. Zero values are filled in by Load,
// so callers can rely on every field being usable.
type Config struct {
	// Interpreters are extra interpreter paths probed at discovery, in
	// addition to python3/python found on PATH.
	Interpreters []string `yaml:"interpreters"`

	// AlwaysKeep lists packages that are never reported as orphans and never
	// uninstalled by cleanup operations.
	AlwaysKeep []string `yaml:"always_keep"`

	// SelfPackages are the distributions the running application depends on;
	// uninstalling into their dependency closure defers to the next restart.
	SelfPackages []string `yaml:"self_packages"`

	// CacheExpiryHours bounds how old a persisted snapshot may be before it
	// is rescanned instead of served.
	CacheExpiryHours int `yaml:"cache_expiry_hours"`

	// AutoCheckUpdates runs the outdated query after each successful refresh.
	AutoCheckUpdates bool `yaml:"auto_check_updates"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		AlwaysKeep:       []string{"pip", "setuptools", "wheel"},
		CacheExpiryHours: 24,
	}
}

// Load reads {dir}/config.yaml. A missing file returns the defaults without
// an error; a malformed file is an error, not a silent fallback.
func Load(dir string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if len(cfg.AlwaysKeep) == 0 {
		cfg.AlwaysKeep = Default().AlwaysKeep
	}
	if cfg.CacheExpiryHours <= 0 {
		cfg.CacheExpiryHours = Default().CacheExpiryHours
	}
	return cfg, nil
}

// Save writes the config back to {dir}/config.yaml, creating dir if needed.
func Save(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
