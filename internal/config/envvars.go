package config

import (
	"log/slog"
	"os"
	"sort"
)

// EnvVarMapping defines the mapping between environment variables and config paths.
var EnvVarMapping = map[string]string{
	"OKR_LOG_LEVEL": "log_level",
	// Database
	"OKR_DB_DIALECT": "database.dialect",
	"OKR_DB_DSN":     "database.dsn",
	// Cascade
	"OKR_CASCADE_WORKERS":             "cascade.workers",
	"OKR_CASCADE_QUEUE_SIZE":          "cascade.queue_size",
	"OKR_CASCADE_MAX_RETRIES":         "cascade.max_retries",
	"OKR_CASCADE_RETRY_BACKOFF":       "cascade.retry_backoff",
	"OKR_CASCADE_MAX_HIERARCHY_DEPTH": "cascade.max_hierarchy_depth",
	// Snapshot
	"OKR_SNAPSHOT_TOP_PRIORITIES":      "snapshot.top_priorities",
	"OKR_SNAPSHOT_RISKY_THRESHOLD":     "snapshot.risky_threshold",
	"OKR_SNAPSHOT_REFRESH_PARALLELISM": "snapshot.refresh_parallelism",
}

// ApplyEnvVars applies environment variable overrides to a TrackedConfig.
// Unparseable values are logged and skipped. Returns the overridden paths.
func ApplyEnvVars(tc *TrackedConfig) []string {
	var overridden []string

	for envVar, configPath := range EnvVarMapping {
		value := os.Getenv(envVar)
		if value == "" {
			continue
		}
		if err := tc.Config.SetValue(configPath, value); err != nil {
			slog.Warn("ignoring environment override", "var", envVar, "error", err)
			continue
		}
		tc.SetSource(configPath, SourceEnv, "")
		overridden = append(overridden, configPath)
	}

	sort.Strings(overridden)
	return overridden
}

// EnvVarFor returns the environment variable that overrides path, if any.
func EnvVarFor(path string) string {
	for envVar, p := range EnvVarMapping {
		if p == path {
			return envVar
		}
	}
	return ""
}
