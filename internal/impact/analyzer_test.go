package impact

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/leapstack-labs/leapgov/internal/lineage"
	"github.com/leapstack-labs/leapgov/internal/testutil"
	"github.com/leapstack-labs/leapgov/pkg/core"
)

// fakeTraverser returns canned traversals per direction.
type fakeTraverser struct {
	down, up *lineage.Traversal
	err       error
	calls     atomic.Int32
	snapshots atomic.Int32
}

func (f *fakeTraverser) DefaultDepth() int { return 4 }

func (f *fakeTraverser) Snapshot(_ context.Context, fn func(w lineage.Walker) error) error {
	f.snapshots.Add(1)
	return fn(f)
}

func (f *fakeTraverser) Traverse(_ context.Context, ref core.EntityRef, dir core.Direction, _ int) (*lineage.Traversal, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if dir == core.DirectionUpstream {
		if f.up == nil {
			return &lineage.Traversal{Start: ref, Direction: dir}, nil
		}
		return f.up, nil
	}
	if f.down == nil {
		return &lineage.Traversal{Start: ref, Direction: dir}, nil
	}
	return f.down, nil
}

// fanOut builds a downstream traversal of n entities of entityType at depth.
func fanOut(n int, entityType string, depth int) *lineage.Traversal {
	tr := &lineage.Traversal{Direction: core.DirectionDownstream, MaxDepthReached: depth}
	for i := range n {
		tr.Reached = append(tr.Reached, lineage.Reached{
			Entity: core.NewEntityRef(entityType, fmt.Sprint(i)),
			Depth:  depth,
			Record: &core.LineageRecord{RelationshipType: core.RelationshipDerivedFrom},
		})
	}
	return tr
}

func newAnalyzer(t *testing.T, tr Traverser) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(Config{Lineage: tr, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	return a
}

func TestNewAnalyzer_RequiresLineage(t *testing.T) {
	_, err := NewAnalyzer(Config{})
	assert.Error(t, err)
}

func TestAnalyzeImpact_RiskLevels(t *testing.T) {
	tests := []struct {
		name string
		down *lineage.Traversal
		want RiskLevel
	}{
		{name: "isolated", want: RiskLow},
		{name: "few distant datasets", down: fanOut(4, "dataset", 2), want: RiskLow},
		{name: "one direct dependency", down: fanOut(1, "dataset", 1), want: RiskMedium},
		{name: "three reports", down: fanOut(3, "weekly_report", 3), want: RiskHigh},
		{name: "many distant datasets", down: fanOut(51, "dataset", 2), want: RiskCritical},
		{name: "six dashboards", down: fanOut(6, "dashboard", 4), want: RiskCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAnalyzer(t, &fakeTraverser{down: tt.down})
			report, err := a.AnalyzeImpact(context.Background(), core.NewEntityRef("dataset", "src"), 5)
			require.NoError(t, err)
			assert.Equal(t, tt.want, report.RiskLevel)
			assert.NotEmpty(t, report.Recommendations)
			assert.NotEmpty(t, report.RiskFactors)
		})
	}
}

func TestAnalyzeImpact_DefaultDepth(t *testing.T) {
	a := newAnalyzer(t, &fakeTraverser{})
	report, err := a.AnalyzeImpact(context.Background(), core.NewEntityRef("dataset", "src"), 0)
	require.NoError(t, err)
	assert.Equal(t, 4, report.MaxDepth)
	assert.Equal(t, RiskLow, report.RiskLevel)
}

func TestAnalyzeImpact_Batching(t *testing.T) {
	a := newAnalyzer(t, &fakeTraverser{down: fanOut(11, "dataset", 2)})
	report, err := a.AnalyzeImpact(context.Background(), core.NewEntityRef("dataset", "src"), 5)
	require.NoError(t, err)
	assert.Equal(t, RiskMedium, report.RiskLevel)
	assert.Contains(t, report.Recommendations, "consider batching changes")
}

func TestAnalyzeImpact_TraversalError(t *testing.T) {
	boom := errors.New("boom")
	f := &fakeTraverser{err: boom}
	a := newAnalyzer(t, f)

	_, err := a.AnalyzeImpact(context.Background(), core.NewEntityRef("dataset", "src"), 5)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), f.calls.Load())
	assert.Equal(t, int32(1), f.snapshots.Load())
}

// snapshotCounter counts the read snapshots opened on a repository.
type snapshotCounter struct {
	core.LineageRepository
	opened atomic.Int32
}

func (c *snapshotCounter) Snapshot(ctx context.Context, fn func(r core.LineageReader) error) error {
	c.opened.Add(1)
	return c.LineageRepository.Snapshot(ctx, fn)
}

func TestAnalyzeImpact_Lineage(t *testing.T) {
	ctx := context.Background()
	repo := &snapshotCounter{LineageRepository: testutil.NewSQLStore(t)}
	tracker, err := lineage.NewTracker(lineage.Config{Repo: repo})
	require.NoError(t, err)

	edge := func(src, tgt core.EntityRef) {
		t.Helper()
		_, err := tracker.TrackTransformation(ctx, lineage.TrackRequest{Source: src, Target: tgt, RelationshipType: core.RelationshipDerivedFrom})
		require.NoError(t, err)
	}
	raw := core.NewEntityRef("source", "crm")
	staging := core.NewEntityRef("staging", "orders")
	mart := core.NewEntityRef("mart", "orders")
	dash := core.NewEntityRef("dashboard", "revenue")
	edge(raw, staging)
	edge(staging, mart)
	edge(mart, dash)
	edge(dash, staging) // cycle

	a := newAnalyzer(t, tracker)
	repo.opened.Store(0)
	report, err := a.AnalyzeImpact(ctx, staging, 10)
	require.NoError(t, err)
	assert.Equal(t, int32(1), repo.opened.Load(), "both walks share one snapshot")

	require.Len(t, report.Downstream, 2)
	assert.Equal(t, mart, report.Downstream[0].Entity)
	assert.Equal(t, dash, report.Downstream[1].Entity)
	assert.Equal(t, 2, report.Downstream[1].Depth)

	// mart is a direct dependency; the dashboard matches by type.
	require.Len(t, report.CriticalDependencies, 2)
	assert.Equal(t, "direct dependency", report.CriticalDependencies[0].CriticalReason)
	assert.Equal(t, RiskMedium, report.RiskLevel)

	require.Len(t, report.Upstream, 3)
	assert.Equal(t, 2, report.MaxDepthReached)

	m := report.ToMap()
	assert.Equal(t, 2, m["critical_count"])
	assert.Equal(t, "MEDIUM", m["risk_level"])
}

func TestAnalyzeImpact_Telemetry(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))

	a, err := NewAnalyzer(Config{
		Lineage:        &fakeTraverser{down: fanOut(3, "report", 1)},
		TracerProvider: tp,
		MeterProvider:  mp,
		Now:            func() time.Time { return time.Unix(0, 0) },
	})
	require.NoError(t, err)

	_, err = a.AnalyzeImpact(ctx, core.NewEntityRef("dataset", "src"), 3)
	require.NoError(t, err)

	ended := spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "Analyzer.AnalyzeImpact", ended[0].Name())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = true
			if m.Name == "impact_analysis_total" {
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				require.Len(t, sum.DataPoints, 1)
				assert.Equal(t, int64(1), sum.DataPoints[0].Value)
			}
		}
	}
	assert.True(t, found["impact_analysis_total"])
	assert.True(t, found["impact_analysis_duration_seconds"])
	assert.True(t, found["impact_affected_entities"])
}
