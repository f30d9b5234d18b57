// Package config provides configuration management for okr.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config file locations.
const (
	// OkrDir is the project-level configuration directory.
	OkrDir = ".okr"
	// ConfigFileName is the config file name inside OkrDir.
	ConfigFileName = "config.yaml"
	// DefaultDatabaseFile is the SQLite file used when no DSN is configured.
	DefaultDatabaseFile = "okr.db"
)

// Config represents the okr configuration.
type Config struct {
	Version  int            `yaml:"version"`
	LogLevel string         `yaml:"log_level"`
	Database DatabaseConfig `yaml:"database"`
	Cascade  CascadeConfig  `yaml:"cascade"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

// DatabaseConfig defines the goal store connection.
type DatabaseConfig struct {
	// Dialect is "sqlite" or "postgres".
	Dialect string `yaml:"dialect"`
	// DSN is a file path for sqlite or a connection string for postgres.
	DSN string `yaml:"dsn"`
}

// CascadeConfig tunes background recomputation.
type CascadeConfig struct {
	Workers           int           `yaml:"workers"`
	QueueSize         int           `yaml:"queue_size"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryBackoff      time.Duration `yaml:"retry_backoff"`
	MaxHierarchyDepth int           `yaml:"max_hierarchy_depth"`
}

// SnapshotConfig tunes snapshot contents and refresh.
type SnapshotConfig struct {
	TopPriorities int `yaml:"top_priorities"`
	// RiskyThreshold lists key results strictly above it as risky.
	RiskyThreshold     float64 `yaml:"risky_threshold"`
	RefreshParallelism int     `yaml:"refresh_parallelism"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version:  1,
		LogLevel: "info",
		Database: DatabaseConfig{
			Dialect: "sqlite",
			DSN:     filepath.Join(OkrDir, DefaultDatabaseFile),
		},
		Cascade: CascadeConfig{
			Workers:           4,
			QueueSize:         256,
			MaxRetries:        3,
			RetryBackoff:      200 * time.Millisecond,
			MaxHierarchyDepth: 32,
		},
		Snapshot: SnapshotConfig{
			TopPriorities:      10,
			RiskyThreshold:     0.5,
			RefreshParallelism: 4,
		},
	}
}

// Load loads configuration from the current directory's layers.
func Load() (*Config, error) {
	tc, err := LoadWithSources()
	if err != nil {
		return nil, err
	}
	return tc.Config, nil
}

// LoadFrom loads a single config file over the defaults.
func LoadFrom(path string) (*Config, error) {
	tc := NewTrackedConfig()
	if err := mergeFromFile(tc, path, SourceFlag); err != nil {
		return nil, err
	}
	return tc.Config, nil
}

// SaveTo writes the configuration to path, creating parent directories.
func (c *Config) SaveTo(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
