package output

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatValue converts a cell value to display text.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case *string:
		if val == nil {
			return ""
		}
		return *val
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case float64:
		return fmt.Sprintf("%.3f", val)
	case []string:
		return strings.Join(val, ", ")
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Bytes formats a size as "1.2 kB".
func Bytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// Count formats an integer with thousands separators.
func Count(n int) string {
	return humanize.Comma(int64(n))
}

// Ago formats t relative to now ("3 minutes ago").
func Ago(t, now time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}

// Short truncates an id for table display.
func Short(id string) string {
	if len(id) <= 13 {
		return id
	}
	return id[:13] + "…"
}

// Counts renders a map of counters as "a=1, b=2" sorted by key.
func Counts[K ~string](m map[K]int) string {
	keys := slices.Sorted(maps.Keys(m))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return strings.Join(parts, ", ")
}
