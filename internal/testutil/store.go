package testutil

import (
	"context"
	"testing"

	"github.com/leapstack-labs/leapgov/internal/state"
)

// NewSQLStore opens a migrated in-memory SQLite store that is closed when
// the test ends.
func NewSQLStore(t testing.TB) *state.SQLStore {
	t.Helper()

	ctx := context.Background()
	logger := NewTestLogger(t)

	store, err := state.Open(ctx, state.Options{Driver: state.DriverSQLite, DSN: ":memory:", Logger: logger})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	return store
}
