package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadWithSources loads configuration relative to the working directory.
func LoadWithSources() (*TrackedConfig, error) {
	return LoadWithSourcesFrom(".")
}

// LoadWithSourcesFrom loads configuration with source tracking.
// Load order (later sources override earlier):
//  1. Built-in defaults
//  2. User config (~/.okr/config.yaml) - optional
//  3. Project config (<projectDir>/.okr/config.yaml) - optional
//  4. Environment variables (OKR_*)
func LoadWithSourcesFrom(projectDir string) (*TrackedConfig, error) {
	tc := NewTrackedConfig()

	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, OkrDir, ConfigFileName)
		if _, err := os.Stat(userPath); err == nil {
			if err := mergeFromFile(tc, userPath, SourceUser); err != nil {
				slog.Warn("failed to load user config", "path", userPath, "error", err)
			}
		}
	}

	projectPath := filepath.Join(projectDir, OkrDir, ConfigFileName)
	if _, err := os.Stat(projectPath); err == nil {
		if err := mergeFromFile(tc, projectPath, SourceProject); err != nil {
			return nil, err // Project config errors are fatal
		}
	}

	ApplyEnvVars(tc)

	return tc, nil
}

// mergeFromFile overlays every key present in the file onto tc.
func mergeFromFile(tc *TrackedConfig, path string, source ConfigSource) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	// Parse YAML into a map to track which fields are set
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	for _, key := range AllConfigPaths() {
		if !keyPresent(raw, key) {
			continue
		}
		dst, err := getValueByPath(reflect.ValueOf(tc.Config), key)
		if err != nil {
			return err
		}
		src, err := getValueByPath(reflect.ValueOf(&fileCfg), key)
		if err != nil {
			return err
		}
		dst.Set(src)
		tc.SetSource(key, source, path)
	}
	return nil
}

// keyPresent reports whether a dot-separated key exists in parsed YAML.
func keyPresent(raw map[string]any, key string) bool {
	parts := strings.Split(key, ".")
	cur := raw
	for i, part := range parts {
		v, ok := cur[part]
		if !ok {
			return false
		}
		if i == len(parts)-1 {
			return true
		}
		next, ok := v.(map[string]any)
		if !ok {
			return false
		}
		cur = next
	}
	return false
}

// MergeFile overlays a file named on the command line and re-applies the
// environment so OKR_* variables still win.
func (tc *TrackedConfig) MergeFile(path string) error {
	if err := mergeFromFile(tc, path, SourceFlag); err != nil {
		return err
	}
	ApplyEnvVars(tc)
	return nil
}
