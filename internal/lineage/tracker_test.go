package lineage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapgov/internal/state/badgerstore"
	"github.com/leapstack-labs/leapgov/internal/testutil"
	"github.com/leapstack-labs/leapgov/pkg/core"
)

var (
	doc     = core.NewEntityRef("doc", "42")
	task    = core.NewEntityRef("task", "7")
	report  = core.NewEntityRef("report", "q3")
	dataset = core.NewEntityRef("dataset", "sales")
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

// backends runs fn once per lineage storage backend.
func backends(t *testing.T, fn func(t *testing.T, tracker *Tracker)) {
	t.Helper()
	open := map[string]func(t *testing.T) core.LineageRepository{
		"sql": func(t *testing.T) core.LineageRepository {
			return testutil.NewSQLStore(t)
		},
		"badger": func(t *testing.T) core.LineageRepository {
			s, err := badgerstore.Open(badgerstore.Config{InMemory: true})
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
	for _, name := range []string{"sql", "badger"} {
		t.Run(name, func(t *testing.T) {
			c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
			tracker, err := NewTracker(Config{Repo: open[name](t), Logger: testutil.NewTestLogger(t), Now: c.Now})
			require.NoError(t, err)
			fn(t, tracker)
		})
	}
}

func track(t *testing.T, tr *Tracker, src, tgt core.EntityRef, mutators ...func(*TrackRequest)) *core.LineageRecord {
	t.Helper()
	req := TrackRequest{Source: src, Target: tgt, RelationshipType: core.RelationshipDerivedFrom}
	for _, m := range mutators {
		m(&req)
	}
	rec, err := tr.TrackTransformation(context.Background(), req)
	require.NoError(t, err)
	return rec
}

func TestNewTracker_RequiresRepo(t *testing.T) {
	_, err := NewTracker(Config{})
	assert.Error(t, err)
}

func TestTrackTransformation(t *testing.T) {
	backends(t, func(t *testing.T, tr *Tracker) {
		ctx := core.WithScope(context.Background(), core.Scope{TenantID: "acme", Actor: "alice"})
		vid := "v-1"

		rec, err := tr.TrackTransformation(ctx, TrackRequest{
			Source:             doc,
			SourceVersionID:    &vid,
			Target:             task,
			RelationshipType:   core.RelationshipTransformedTo,
			TransformationInfo: map[string]any{"job": "nightly"},
			SourceColumns:      []string{"title"},
			TargetColumns:      []string{"name"},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, rec.ID)
		assert.Equal(t, "acme", rec.TenantID)
		assert.Equal(t, "alice", rec.CreatedBy)

		// Repeated calls are separate events.
		again, err := tr.TrackTransformation(ctx, TrackRequest{Source: doc, Target: task, RelationshipType: core.RelationshipTransformedTo})
		require.NoError(t, err)
		assert.NotEqual(t, rec.ID, again.ID)

		got, err := tr.GetLineageForEntity(ctx, doc, core.DirectionDownstream, 0)
		require.NoError(t, err)
		require.Len(t, got.Downstream, 2)
		assert.Equal(t, rec.ID, got.Downstream[0].ID)
		assert.Equal(t, &vid, got.Downstream[0].SourceVersionID)
		assert.Equal(t, "nightly", got.Downstream[0].TransformationInfo["job"])
	})
}

func TestTrackTransformation_Validation(t *testing.T) {
	backends(t, func(t *testing.T, tr *Tracker) {
		ctx := context.Background()
		tests := []struct {
			name string
			req  TrackRequest
		}{
			{name: "missing source", req: TrackRequest{Target: task, RelationshipType: core.RelationshipDerivedFrom}},
			{name: "half a target", req: TrackRequest{Source: doc, Target: core.EntityRef{Type: "task"}, RelationshipType: core.RelationshipDerivedFrom}},
			{name: "unknown relationship", req: TrackRequest{Source: doc, Target: task, RelationshipType: "borrowed_from"}},
			{name: "unknown sentinel", req: TrackRequest{Source: doc, Target: task, RelationshipType: core.RelationshipUnknown}},
			{name: "blank column", req: TrackRequest{Source: doc, Target: task, RelationshipType: core.RelationshipDerivedFrom, SourceColumns: []string{""}}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := tr.TrackTransformation(ctx, tt.req)
				assert.ErrorIs(t, err, core.ErrValidation)
			})
		}

		stats, err := tr.GetLineageStatistics(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.TotalRecords, "rejected requests must not write")
	})
}

func TestGetLineageForEntity(t *testing.T) {
	backends(t, func(t *testing.T, tr *Tracker) {
		ctx := context.Background()
		track(t, tr, dataset, doc)
		track(t, tr, doc, task)
		track(t, tr, doc, report)
		track(t, tr, task, report)

		both, err := tr.GetLineageForEntity(ctx, doc, core.DirectionBoth, 0)
		require.NoError(t, err)
		assert.Len(t, both.Upstream, 1)
		assert.Len(t, both.Downstream, 2)
		assert.Equal(t, dataset, both.Upstream[0].Source)

		up, err := tr.GetLineageForEntity(ctx, doc, core.DirectionUpstream, 0)
		require.NoError(t, err)
		assert.Len(t, up.Upstream, 1)
		assert.Nil(t, up.Downstream)

		// The limit keeps the most recent edges
		limited, err := tr.GetLineageForEntity(ctx, doc, core.DirectionDownstream, 1)
		require.NoError(t, err)
		require.Len(t, limited.Downstream, 1)
		assert.Equal(t, report, limited.Downstream[0].Target)

		track(t, tr, doc, dataset)
		recent, err := tr.GetLineageForEntity(ctx, doc, core.DirectionDownstream, 2)
		require.NoError(t, err)
		require.Len(t, recent.Downstream, 2)
		assert.Equal(t, report, recent.Downstream[0].Target, "oldest of the kept edges first")
		assert.Equal(t, dataset, recent.Downstream[1].Target)

		_, err = tr.GetLineageForEntity(ctx, doc, "sideways", 0)
		assert.ErrorIs(t, err, core.ErrValidation)
		_, err = tr.GetLineageForEntity(ctx, doc, core.DirectionBoth, MaxLimit+1)
		assert.ErrorIs(t, err, core.ErrValidation)

		m := both.ToMap()
		assert.Len(t, m["downstream"], 2)
	})
}

func TestTenantIsolation(t *testing.T) {
	backends(t, func(t *testing.T, tr *Tracker) {
		acme := core.WithScope(context.Background(), core.Scope{TenantID: "acme"})
		other := core.WithScope(context.Background(), core.Scope{TenantID: "other"})

		_, err := tr.TrackTransformation(acme, TrackRequest{Source: doc, Target: task, RelationshipType: core.RelationshipDerivedFrom})
		require.NoError(t, err)

		got, err := tr.GetLineageForEntity(other, doc, core.DirectionBoth, 0)
		require.NoError(t, err)
		assert.Empty(t, got.Downstream)

		got, err = tr.GetLineageForEntity(acme, doc, core.DirectionBoth, 0)
		require.NoError(t, err)
		assert.Len(t, got.Downstream, 1)
	})
}

func TestGetColumnLineage(t *testing.T) {
	backends(t, func(t *testing.T, tr *Tracker) {
		ctx := context.Background()
		withCols := func(src, tgt []string) func(*TrackRequest) {
			return func(r *TrackRequest) {
				r.SourceColumns = src
				r.TargetColumns = tgt
			}
		}
		first := track(t, tr, dataset, doc, withCols([]string{"amount"}, []string{"total"}))
		second := track(t, tr, doc, report, withCols([]string{"total"}, []string{"revenue"}))
		track(t, tr, doc, task, withCols([]string{"title"}, []string{"name"}))
		track(t, tr, doc, task)

		got, err := tr.GetColumnLineage(ctx, doc, "total")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, first.ID, got[0].ID)
		assert.Equal(t, second.ID, got[1].ID)

		none, err := tr.GetColumnLineage(ctx, doc, "missing")
		require.NoError(t, err)
		assert.Empty(t, none)

		_, err = tr.GetColumnLineage(ctx, doc, "")
		assert.ErrorIs(t, err, core.ErrValidation)
	})
}

func TestGetColumnLineage_SelfEdge(t *testing.T) {
	backends(t, func(t *testing.T, tr *Tracker) {
		track(t, tr, doc, doc, func(r *TrackRequest) { r.SourceColumns = []string{"a"} })

		got, err := tr.GetColumnLineage(context.Background(), doc, "a")
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})
}

func TestGetLineageStatistics(t *testing.T) {
	backends(t, func(t *testing.T, tr *Tracker) {
		ctx := context.Background()
		track(t, tr, dataset, doc, func(r *TrackRequest) { r.SourceColumns = []string{"amount"} })
		track(t, tr, doc, task)
		track(t, tr, doc, report, func(r *TrackRequest) { r.RelationshipType = core.RelationshipAggregatedFrom })
		track(t, tr, doc, report, func(r *TrackRequest) { r.RelationshipType = core.RelationshipAggregatedFrom })

		stats, err := tr.GetLineageStatistics(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, stats.TotalRecords)
		assert.Equal(t, 2, stats.ByRelationshipType[core.RelationshipDerivedFrom])
		assert.Equal(t, 2, stats.ByRelationshipType[core.RelationshipAggregatedFrom])
		assert.Equal(t, 4, stats.DistinctEntities)
		assert.Equal(t, 1, stats.ColumnLevelRecords)

		require.NotEmpty(t, stats.MostConnected)
		assert.Equal(t, doc, stats.MostConnected[0].Entity)
		assert.Equal(t, 3, stats.MostConnected[0].Connections)

		m := stats.ToMap()
		assert.Equal(t, 4, m["distinct_entities"])
	})
}
