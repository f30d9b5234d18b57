package db

import (
	"database/sql"
	"math"
	"strconv"
	"strings"
	"time"
)

// timeLayout is fixed-width UTC so stored timestamps order lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Numeric is a stored value coerced to a float at the store boundary.
// Valid is false when the raw value was missing or not a finite number.
type Numeric struct {
	Value float64
	Valid bool
}

// ParseNumeric coerces a raw stored string into a Numeric.
func ParseNumeric(raw *string) Numeric {
	if raw == nil {
		return Numeric{}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(*raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Numeric{}
	}
	return Numeric{Value: v, Valid: true}
}

// ParseBool reports whether a raw stored value means true ("true" or "1").
func ParseBool(raw *string) bool {
	if raw == nil {
		return false
	}
	s := strings.ToLower(strings.TrimSpace(*raw))
	return s == "true" || s == "1"
}

// Clamp01 bounds v to [0,1]; NaN becomes 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Round4 rounds to four decimal places, the precision derived values are stored at.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// FormatTime renders t in the stored timestamp layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime accepts the stored layout plus the common formats other writers use.
func parseTime(s string) (time.Time, bool) {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func timePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	if ts, ok := parseTime(ns.String); ok {
		return &ts
	}
	return nil
}

func timeOrZero(ns sql.NullString) time.Time {
	if ts := timePtr(ns); ts != nil {
		return *ts
	}
	return time.Time{}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid || math.IsNaN(nf.Float64) || math.IsInf(nf.Float64, 0) {
		return nil
	}
	v := nf.Float64
	return &v
}

// unit coerces a stored derived value into [0,1].
func unit(nf sql.NullFloat64) float64 {
	if !nf.Valid {
		return 0
	}
	return Clamp01(nf.Float64)
}

// nullable maps the empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return FormatTime(*t)
}

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
