package badgerstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapgov/internal/testutil"
	"github.com/leapstack-labs/leapgov/pkg/core"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Config{InMemory: true, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

var (
	doc    = core.NewEntityRef("document", "42")
	task   = core.NewEntityRef("task", "7")
	report = core.NewEntityRef("report", "1")
)

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestOpen_Persistent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := Open(Config{Path: dir})
	require.NoError(t, err)
	require.NoError(t, store.InsertLineage(ctx, &core.LineageRecord{Source: doc, Target: task, RelationshipType: core.RelationshipDerivedFrom}))
	require.NoError(t, store.Close())

	reopened, err := Open(Config{Path: dir})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	got, err := reopened.ListLineage(ctx, core.LineageFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_InsertAndList(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	first := &core.LineageRecord{
		Source:             doc,
		Target:             task,
		RelationshipType:   core.RelationshipDerivedFrom,
		SourceColumns:      []string{"body"},
		TargetColumns:      []string{"input"},
		TransformationInfo: map[string]any{"step": "chunk"},
		TenantID:           "acme",
		CreatedAt:          base,
	}
	require.NoError(t, store.InsertLineage(ctx, first))
	assert.NotEmpty(t, first.ID)

	require.NoError(t, store.InsertLineage(ctx, &core.LineageRecord{
		Source: task, Target: report, RelationshipType: core.RelationshipAggregatedFrom,
		TenantID: "acme", CreatedAt: base.Add(time.Minute),
	}))
	require.NoError(t, store.InsertLineage(ctx, &core.LineageRecord{
		Source: doc, Target: report, RelationshipType: core.RelationshipCopiedFrom,
		TenantID: "globex", CreatedAt: base.Add(2 * time.Minute),
	}))

	all, err := store.ListLineage(ctx, core.LineageFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, []string{"body"}, all[0].SourceColumns)
	assert.Equal(t, map[string]any{"step": "chunk"}, all[0].TransformationInfo)
	assert.True(t, base.Equal(all[0].CreatedAt))

	tests := []struct {
		name   string
		filter core.LineageFilter
		want   int
	}{
		{name: "by source", filter: core.LineageFilter{Source: &doc}, want: 2},
		{name: "by source and tenant", filter: core.LineageFilter{Source: &doc, TenantID: "acme"}, want: 1},
		{name: "by target", filter: core.LineageFilter{Target: &report}, want: 2},
		{name: "by relationship", filter: core.LineageFilter{RelationshipTypes: []core.RelationshipType{core.RelationshipCopiedFrom}}, want: 1},
		{name: "by entity type", filter: core.LineageFilter{EntityTypes: []core.EntityType{"task"}}, want: 2},
		{name: "limit", filter: core.LineageFilter{Source: &doc, Limit: 1}, want: 1},
		{name: "unknown entity", filter: core.LineageFilter{Source: &core.EntityRef{Type: "x", ID: "y"}}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListLineage(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}

	oldest, err := store.ListLineage(ctx, core.LineageFilter{Source: &doc, Limit: 1})
	require.NoError(t, err)
	require.Len(t, oldest, 1)
	assert.Equal(t, first.ID, oldest[0].ID)

	newest, err := store.ListLineage(ctx, core.LineageFilter{Limit: 2, Newest: true})
	require.NoError(t, err)
	require.Len(t, newest, 2)
	assert.Equal(t, "acme", newest[0].TenantID)
	assert.Equal(t, "globex", newest[1].TenantID)
}

func TestStore_IDsWithSeparators(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// An id that is a prefix of another must not match it
	a := core.NewEntityRef("file", "s3:bucket/a")
	ab := core.NewEntityRef("file", "s3:bucket/a.b")
	require.NoError(t, store.InsertLineage(ctx, &core.LineageRecord{Source: a, Target: task, RelationshipType: core.RelationshipCopiedFrom}))
	require.NoError(t, store.InsertLineage(ctx, &core.LineageRecord{Source: ab, Target: task, RelationshipType: core.RelationshipCopiedFrom}))

	got, err := store.ListLineage(ctx, core.LineageFilter{Source: &a})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a, got[0].Source)
}

func TestStore_DuplicateID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	r := &core.LineageRecord{ID: "fixed", Source: doc, Target: task, RelationshipType: core.RelationshipDerivedFrom}
	require.NoError(t, store.InsertLineage(ctx, r))
	err := store.InsertLineage(ctx, &core.LineageRecord{ID: "fixed", Source: doc, Target: task, RelationshipType: core.RelationshipDerivedFrom})
	assert.ErrorIs(t, err, core.ErrConflict)
}

func TestStore_Snapshot(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertLineage(ctx, &core.LineageRecord{Source: doc, Target: task, RelationshipType: core.RelationshipDerivedFrom}))

	err := store.Snapshot(ctx, func(r core.LineageReader) error {
		// Writes after the snapshot began are invisible to it
		require.NoError(t, store.InsertLineage(ctx, &core.LineageRecord{Source: doc, Target: report, RelationshipType: core.RelationshipDerivedFrom}))

		got, err := r.ListLineage(ctx, core.LineageFilter{Source: &doc})
		require.NoError(t, err)
		assert.Len(t, got, 1)
		return nil
	})
	require.NoError(t, err)

	got, err := store.ListLineage(ctx, core.LineageFilter{Source: &doc})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestStore_CancelledContext(t *testing.T) {
	store := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, store.InsertLineage(ctx, &core.LineageRecord{Source: doc, Target: task, RelationshipType: core.RelationshipDerivedFrom}))
	cancel()

	_, err := store.ListLineage(ctx, core.LineageFilter{})
	assert.ErrorIs(t, err, context.Canceled)
}
