// Package delta computes and applies structural diffs between flat records.
//
// Records are map[string]any with opaque values compared by deep equality.
// Nested structures are never diffed: a changed nested value is recorded
// wholesale under Modified.
package delta

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"

	"github.com/leapstack-labs/leapgov/pkg/core"
)

// Calculate returns the delta that turns old into new.
func Calculate(old, new map[string]any) core.Delta {
	d := core.Delta{}

	for key, newVal := range new {
		oldVal, ok := old[key]
		if !ok {
			if d.Added == nil {
				d.Added = make(map[string]any)
			}
			d.Added[key] = newVal
			continue
		}
		if !reflect.DeepEqual(oldVal, newVal) {
			if d.Modified == nil {
				d.Modified = make(map[string]core.Change)
			}
			d.Modified[key] = core.Change{Old: oldVal, New: newVal}
		}
	}

	for key, oldVal := range old {
		if _, ok := new[key]; !ok {
			if d.Removed == nil {
				d.Removed = make(map[string]any)
			}
			d.Removed[key] = oldVal
		}
	}

	return d
}

// Apply returns a new record: base minus Removed, then Added, then Modified.New.
// base is not modified.
func Apply(base map[string]any, d core.Delta) map[string]any {
	out := make(map[string]any, len(base)+len(d.Added))
	maps.Copy(out, base)

	for key := range d.Removed {
		delete(out, key)
	}
	maps.Copy(out, d.Added)
	for key, change := range d.Modified {
		out[key] = change.New
	}
	return out
}

// Normalize round-trips data through JSON so values have the same Go types
// they will have after a storage round-trip (numbers become float64).
func Normalize(data map[string]any) (map[string]any, error) {
	if data == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return out, nil
}

// EncodedSize returns the size in bytes of v's canonical JSON encoding.
func EncodedSize(v any) (int, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("encode: %w", err)
	}
	return len(raw), nil
}

// Checksum returns the hex sha256 of data's canonical JSON encoding.
// encoding/json sorts map keys, so equal records hash equally.
func Checksum(data map[string]any) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Similarity scores two records over the union of their keys: a key equal in
// both counts 1, a key present in both with different values counts 0.5 and a
// key present in only one counts 0. Two empty records are identical (1.0).
func Similarity(a, b map[string]any) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}

	total := 0
	score := 0.0
	for key, av := range a {
		total++
		bv, ok := b[key]
		switch {
		case !ok:
		case reflect.DeepEqual(av, bv):
			score += 1.0
		default:
			score += 0.5
		}
	}
	for key := range b {
		if _, ok := a[key]; !ok {
			total++
		}
	}

	return score / float64(total)
}
