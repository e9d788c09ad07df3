package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Timestamps are stored as UTC unix nanoseconds so ordering and range
// filters behave identically on every backend.
func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// encodeJSON returns NULL for nil values and the JSON text otherwise.
func encodeJSON(v any) (sql.NullString, error) {
	switch x := v.(type) {
	case nil:
		return sql.NullString{}, nil
	case map[string]any:
		if x == nil {
			return sql.NullString{}, nil
		}
	case []string:
		if x == nil {
			return sql.NullString{}, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode json: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func decodeJSON(src sql.NullString, dst any) error {
	if !src.Valid || src.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(src.String), dst); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
