// aal2-audit - Persistent multi-index audit event store
// Copyright 2026 CMSCOM
// SPDX-License-Identifier: GPL-2.0-or-later
// https://github.com/cmscom/aal2-audit

// Package config loads aal2-audit configuration with layered sources:
// built-in defaults, an optional YAML config file, and environment
// variables, highest priority last. Environment variable names map to
// config paths by lowercasing and replacing the first underscore with a
// dot: STORE_PATH -> store.path, RETENTION_DAYS -> retention.days.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config file locations searched in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/aal2-audit/config.yaml",
	"/etc/aal2-audit/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// Config is the root configuration.
type Config struct {
	Store     StoreConfig     `koanf:"store"`
	Retention RetentionConfig `koanf:"retention"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// StoreConfig configures the Badger-backed audit store.
type StoreConfig struct {
	// Path is the on-disk store directory. Ignored when InMemory is set.
	Path string `koanf:"path"`

	// InMemory opens a non-persistent store for development and testing.
	InMemory bool `koanf:"in_memory"`

	// Scope is the logical container scope to operate on.
	Scope string `koanf:"scope"`
}

// RetentionConfig configures the retention cleanup engine.
type RetentionConfig struct {
	// Days is how long events are kept. 0 defers to the policy stored in
	// the container.
	Days int `koanf:"days"`

	// CleanupInterval is how often the periodic cleanup routine runs.
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// LoggingConfig configures diagnostic logging.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// defaultConfig returns the built-in defaults, applied before the config
// file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path:     "/data/aal2-audit",
			InMemory: false,
			Scope:    "default",
		},
		Retention: RetentionConfig{
			Days:            0, // container policy
			CleanupInterval: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, config file, and
// environment, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile resolves the config file path from CONFIG_PATH or the
// default search list. Returns "" when no file exists.
func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		return path
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransform maps environment variable names to koanf paths:
// STORE_PATH -> store.path, RETENTION_CLEANUP_INTERVAL -> retention.cleanup_interval.
func envTransform(key string) string {
	key = strings.ToLower(key)
	section, rest, found := strings.Cut(key, "_")
	if !found {
		return ""
	}
	switch section {
	case "store", "retention", "logging":
		return section + "." + rest
	default:
		return ""
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("STORE_PATH is required unless STORE_IN_MEMORY=true")
	}
	if c.Store.Scope == "" {
		return fmt.Errorf("STORE_SCOPE must not be empty")
	}
	if c.Retention.Days < 0 {
		return fmt.Errorf("RETENTION_DAYS must not be negative, got %d", c.Retention.Days)
	}
	if c.Retention.CleanupInterval < time.Minute {
		return fmt.Errorf("RETENTION_CLEANUP_INTERVAL must be at least 1m, got %s", c.Retention.CleanupInterval)
	}
	return c.validateLogging()
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "disabled":
	default:
		return fmt.Errorf("LOGGING_LEVEL must be one of trace, debug, info, warn, error, fatal, disabled; got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOGGING_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
