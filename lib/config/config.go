// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Parley.
//
// Configuration is loaded from a single YAML file specified by:
//   - PARLEY_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. Environment variables
// do not override config values; the only expansion performed is
// ${HOME} and similar path variables for portability.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for Parley.
type Config struct {
	// Homeserver is the base URL of the Matrix homeserver,
	// e.g. "https://matrix.example.org". Required.
	Homeserver string `yaml:"homeserver"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Sync configures the /sync loop.
	Sync SyncConfig `yaml:"sync"`

	// Cache configures the in-memory event cache.
	Cache CacheConfig `yaml:"cache"`

	// Store configures local event persistence.
	Store StoreConfig `yaml:"store"`

	// Media configures the media download cache.
	Media MediaConfig `yaml:"media"`

	// LogLevel is one of debug, info, warn, error. Default: info.
	LogLevel string `yaml:"log_level"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for Parley data.
	// Default: ${HOME}/.cache/parley
	Root string `yaml:"root"`

	// Media is where downloaded media files are cached.
	// Default: ${PARLEY_ROOT}/media
	Media string `yaml:"media"`

	// State is where the local event database lives.
	// Default: ${PARLEY_ROOT}/state
	State string `yaml:"state"`
}

// SyncConfig configures the /sync long-poll loop.
type SyncConfig struct {
	// Timeout is the long-poll timeout passed to the homeserver.
	// Default: 30s.
	Timeout time.Duration `yaml:"timeout"`

	// BackfillLimit is the number of events fetched per backward
	// pagination request. Default: 30.
	BackfillLimit int `yaml:"backfill_limit"`
}

// CacheConfig configures event retention in the in-memory cache.
type CacheConfig struct {
	// KeepOnPart retains a room's cached events after leaving the
	// room. Default: false (events are dropped on leave).
	KeepOnPart bool `yaml:"keep_on_part"`

	// MaxEventsPerRoom caps the number of cached events per room.
	// Oldest events are evicted first. Zero means unlimited.
	MaxEventsPerRoom int `yaml:"max_events_per_room"`
}

// StoreConfig configures local event persistence.
type StoreConfig struct {
	// Persist enables the SQLite event store. When false, events
	// live only in memory and are lost on exit. Default: true.
	Persist bool `yaml:"persist"`

	// Path is the database file path.
	// Default: ${PARLEY_ROOT}/state/events.db
	Path string `yaml:"path"`
}

// MediaConfig configures the media download cache.
type MediaConfig struct {
	// MaxFileSize is the largest media file Parley will download, in
	// bytes. Default: 64 MiB.
	MaxFileSize int64 `yaml:"max_file_size"`
}

// Default returns the default configuration. These defaults ensure all
// fields have sensible zero-values; the homeserver still has to come
// from the config file or a flag.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "parley")

	return &Config{
		Paths: PathsConfig{
			Root:  defaultRoot,
			Media: filepath.Join(defaultRoot, "media"),
			State: filepath.Join(defaultRoot, "state"),
		},
		Sync: SyncConfig{
			Timeout:       30 * time.Second,
			BackfillLimit: 30,
		},
		Cache: CacheConfig{
			KeepOnPart:       false,
			MaxEventsPerRoom: 0,
		},
		Store: StoreConfig{
			Persist: true,
			Path:    filepath.Join(defaultRoot, "state", "events.db"),
		},
		Media: MediaConfig{
			MaxFileSize: 64 << 20,
		},
		LogLevel: "info",
	}
}

// Load loads configuration from the PARLEY_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// If PARLEY_CONFIG is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("PARLEY_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("PARLEY_CONFIG environment variable not set; " +
			"set it to the path of your parley.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merging the
// file's values over Default().
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()

	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"PARLEY_ROOT": c.Paths.Root,
		"HOME":        os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["PARLEY_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.Media = expandVars(c.Paths.Media, vars)
	c.Paths.State = expandVars(c.Paths.State, vars)
	c.Store.Path = expandVars(c.Store.Path, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Homeserver == "" {
		errs = append(errs, fmt.Errorf("homeserver is required"))
	}

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}

	if c.Sync.Timeout < 0 {
		errs = append(errs, fmt.Errorf("sync.timeout must not be negative"))
	}

	if c.Sync.BackfillLimit <= 0 {
		errs = append(errs, fmt.Errorf("sync.backfill_limit must be positive"))
	}

	if c.Cache.MaxEventsPerRoom < 0 {
		errs = append(errs, fmt.Errorf("cache.max_events_per_room must not be negative"))
	}

	if c.Store.Persist && c.Store.Path == "" {
		errs = append(errs, fmt.Errorf("store.path is required when store.persist is enabled"))
	}

	levels := []string{"debug", "info", "warn", "error"}
	if !contains(levels, c.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level must be one of: %v", levels))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.Media,
		c.Paths.State,
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
