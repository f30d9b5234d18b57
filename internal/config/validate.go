package config

import (
	"fmt"

	"github.com/randalmurphal/okr/internal/db/driver"
	okrerrors "github.com/randalmurphal/okr/internal/errors"
)

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if !logLevels[c.LogLevel] {
		return okrerrors.ErrConfigInvalid("log_level", fmt.Sprintf("%q is not one of debug, info, warn, error", c.LogLevel))
	}
	if _, err := driver.ParseDialect(c.Database.Dialect); err != nil {
		return okrerrors.ErrConfigInvalid("database.dialect", err.Error()).WithCause(err)
	}
	if c.Database.DSN == "" {
		return okrerrors.ErrConfigInvalid("database.dsn", "must not be empty")
	}

	positive := map[string]int{
		"cascade.workers":              c.Cascade.Workers,
		"cascade.queue_size":           c.Cascade.QueueSize,
		"cascade.max_hierarchy_depth":  c.Cascade.MaxHierarchyDepth,
		"snapshot.top_priorities":      c.Snapshot.TopPriorities,
		"snapshot.refresh_parallelism": c.Snapshot.RefreshParallelism,
	}
	for _, field := range AllConfigPaths() {
		if v, ok := positive[field]; ok && v <= 0 {
			return okrerrors.ErrConfigInvalid(field, fmt.Sprintf("must be positive, got %d", v))
		}
	}

	if c.Cascade.MaxRetries < 0 {
		return okrerrors.ErrConfigInvalid("cascade.max_retries", "must not be negative")
	}
	if c.Cascade.RetryBackoff <= 0 {
		return okrerrors.ErrConfigInvalid("cascade.retry_backoff", "must be a positive duration")
	}
	if c.Snapshot.RiskyThreshold <= 0 || c.Snapshot.RiskyThreshold >= 1 {
		return okrerrors.ErrConfigInvalid("snapshot.risky_threshold", fmt.Sprintf("must be between 0 and 1 exclusive, got %g", c.Snapshot.RiskyThreshold))
	}
	return nil
}
