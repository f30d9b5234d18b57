package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

// GetValue retrieves a config value by dot-separated path (e.g., "cascade.workers").
func (c *Config) GetValue(path string) (string, error) {
	v, err := getValueByPath(reflect.ValueOf(c), path)
	if err != nil {
		return "", err
	}
	if v.Kind() == reflect.Struct {
		return "", fmt.Errorf("config key %s is a section, not a value", path)
	}
	return formatValue(v), nil
}

// SetValue sets a config value by dot-separated path.
// The value is parsed based on the target field's type.
func (c *Config) SetValue(path, value string) error {
	field, err := getValueByPath(reflect.ValueOf(c), path)
	if err != nil {
		return err
	}
	return setFieldValue(path, field, value)
}

// getValueByPath traverses a reflect.Value by dot-separated path.
func getValueByPath(v reflect.Value, path string) (reflect.Value, error) {
	if path == "" {
		return v, nil
	}

	fieldName, remaining, _ := strings.Cut(path, ".")

	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("nil pointer at %s", fieldName)
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("unknown config key: %s", fieldName)
	}

	field := findFieldByTag(v, fieldName)
	if !field.IsValid() {
		return reflect.Value{}, fmt.Errorf("unknown config key: %s", fieldName)
	}
	return getValueByPath(field, remaining)
}

// findFieldByTag finds a struct field by its yaml tag.
func findFieldByTag(v reflect.Value, name string) reflect.Value {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		if tag == name {
			return v.Field(i)
		}
	}
	return reflect.Value{}
}

// setFieldValue sets a field to the parsed value.
func setFieldValue(path string, field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("cannot set config key %s", path)
	}

	switch {
	case field.Type() == durationType:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q: %w", path, value, err)
		}
		field.SetInt(int64(d))
	case field.Kind() == reflect.String:
		field.SetString(value)
	case field.Kind() == reflect.Int:
		i, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q: %w", path, value, err)
		}
		field.SetInt(int64(i))
	case field.Kind() == reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid number %q: %w", path, value, err)
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("config key %s cannot be set from a string", path)
	}
	return nil
}

// formatValue formats a reflect.Value as a string.
func formatValue(v reflect.Value) string {
	switch {
	case v.Type() == durationType:
		return time.Duration(v.Int()).String()
	case v.Kind() == reflect.String:
		return v.String()
	case v.Kind() == reflect.Int:
		return strconv.FormatInt(v.Int(), 10)
	case v.Kind() == reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

// AllConfigPaths returns all known config paths.
func AllConfigPaths() []string {
	return []string{
		"version",
		"log_level",
		"database.dialect",
		"database.dsn",
		"cascade.workers",
		"cascade.queue_size",
		"cascade.max_retries",
		"cascade.retry_backoff",
		"cascade.max_hierarchy_depth",
		"snapshot.top_priorities",
		"snapshot.risky_threshold",
		"snapshot.refresh_parallelism",
	}
}
