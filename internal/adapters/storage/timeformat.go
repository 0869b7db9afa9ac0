package storage

import (
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the layout every store writes timestamps with.
const TimeLayout = time.RFC3339Nano

// FormatTime renders t for storage; the zero time becomes NULL.
func FormatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(TimeLayout)
}

// ParseStoredTime parses timestamps written by this package or by older
// rows that went through time.Time.String.
func ParseStoredTime(value string) (time.Time, error) {
	if idx := strings.Index(value, " m="); idx != -1 {
		value = value[:idx]
	}
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999 -0700 MST",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", value)
}

// ParseNullTime parses an optional timestamp column.
func ParseNullTime(value *string) (time.Time, error) {
	if value == nil || *value == "" {
		return time.Time{}, nil
	}
	return ParseStoredTime(*value)
}
