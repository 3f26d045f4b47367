// Package config provides configuration file parsing for usagectl.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Dir returns the usagectl config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/usagectl if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "usagectl"), nil
}

// SyncConfig configures the reconciliation engine.
type SyncConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Endpoint string        `yaml:"endpoint"`
	Interval time.Duration `yaml:"interval"`
}

// OverrideConfig configures emergency override grants.
type OverrideConfig struct {
	Duration time.Duration `yaml:"duration"`
	PerDay   int           `yaml:"per_day"`
}

// Config is the on-disk configuration, stored as YAML at
// {config dir}/config.yaml.
type Config struct {
	// DataDir holds the database, spool, PID and log files.
	DataDir string `yaml:"data_dir"`

	// OwnerID names the person whose devices reconcile with each other.
	// All devices sharing an owner ID merge into one remote snapshot.
	OwnerID string `yaml:"owner_id"`

	// DeviceID identifies this installation. Generated on first load.
	DeviceID string `yaml:"device_id"`

	Sync     SyncConfig     `yaml:"sync"`
	Override OverrideConfig `yaml:"override"`

	// RetentionDays bounds how long closed sessions are kept locally.
	// Day-keyed usage totals are kept forever; they are tiny.
	RetentionDays int `yaml:"retention_days"`
}

const (
	defaultOverrideDuration = 5 * time.Minute
	defaultOverridesPerDay  = 1
	defaultSyncInterval     = 4 * time.Hour
	defaultRetentionDays    = 30
)

func defaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".usagectl"), nil
}

// Load reads the config file from dir, filling in defaults for anything
// unset. A missing file is not an error. The first load generates a device
// ID and writes the config back so the identity is stable from then on.
func Load(dir string) (*Config, error) {
	cfg := &Config{}

	path := filepath.Join(dir, "config.yaml")
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// First run, defaults below.
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if cfg.DataDir == "" {
		cfg.DataDir, err = defaultDataDir()
		if err != nil {
			return nil, err
		}
	}
	if cfg.Sync.Interval <= 0 {
		cfg.Sync.Interval = defaultSyncInterval
	}
	if cfg.Override.Duration <= 0 {
		cfg.Override.Duration = defaultOverrideDuration
	}
	if cfg.Override.PerDay <= 0 {
		cfg.Override.PerDay = defaultOverridesPerDay
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = defaultRetentionDays
	}

	if cfg.DeviceID == "" {
		cfg.DeviceID = uuid.NewString()
		if err := Save(dir, cfg); err != nil {
			return nil, fmt.Errorf("persist generated device ID: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Sync.Enabled && c.Sync.Endpoint == "" {
		return fmt.Errorf("config: sync.enabled requires sync.endpoint")
	}
	if c.Sync.Enabled && c.OwnerID == "" {
		return fmt.Errorf("config: sync.enabled requires owner_id")
	}
	return nil
}

// Save writes cfg to {dir}/config.yaml atomically (temp file plus rename).
func Save(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	path := filepath.Join(dir, "config.yaml")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
