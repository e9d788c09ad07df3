package relationship

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapgov/internal/state/badgerstore"
	"github.com/leapstack-labs/leapgov/internal/testutil"
	"github.com/leapstack-labs/leapgov/pkg/core"
)

var (
	orders  = core.NewEntityRef("dataset", "orders")
	revenue = core.NewEntityRef("report", "revenue")
	churn   = core.NewEntityRef("model", "churn")
	crm     = core.NewEntityRef("source", "crm")
)

type fixture struct {
	ctx    context.Context
	repo   core.LineageRepository
	mapper *Mapper
}

func setup(t *testing.T, repo core.LineageRepository) *fixture {
	t.Helper()
	m, err := NewMapper(Config{Repo: repo, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	return &fixture{ctx: context.Background(), repo: repo, mapper: m}
}

func (f *fixture) edge(t *testing.T, src, tgt core.EntityRef, rel core.RelationshipType) {
	t.Helper()
	require.NoError(t, f.repo.InsertLineage(f.ctx, &core.LineageRecord{Source: src, Target: tgt, RelationshipType: rel}))
}

// seed builds crm -> orders -> revenue, orders -> churn (twice, two types).
func seed(t *testing.T, f *fixture) {
	t.Helper()
	f.edge(t, crm, orders, core.RelationshipCopiedFrom)
	f.edge(t, orders, revenue, core.RelationshipAggregatedFrom)
	f.edge(t, orders, churn, core.RelationshipDerivedFrom)
	f.edge(t, orders, churn, core.RelationshipFilteredFrom)
}

func TestNewMapper_RequiresRepo(t *testing.T) {
	_, err := NewMapper(Config{})
	assert.Error(t, err)
}

func TestMapEntityRelationships(t *testing.T) {
	f := setup(t, testutil.NewSQLStore(t))
	seed(t, f)

	rels, err := f.mapper.MapEntityRelationships(f.ctx, orders)
	require.NoError(t, err)
	assert.Len(t, rels.Outgoing, 3)
	assert.Len(t, rels.Incoming, 1)

	m := rels.ToMap()
	assert.Equal(t, 4, m["total_count"])

	_, err = f.mapper.MapEntityRelationships(f.ctx, core.EntityRef{})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestBuildRelationshipGraph(t *testing.T) {
	f := setup(t, testutil.NewSQLStore(t))
	seed(t, f)

	g, err := f.mapper.BuildRelationshipGraph(f.ctx, GraphRequest{})
	require.NoError(t, err)
	assert.Len(t, g.Edges, 4)
	require.Len(t, g.Nodes, 4)
	assert.Equal(t, "dataset:orders", g.Nodes[0].ID)
	assert.Equal(t, []string{"source:crm"}, g.Sources)
	assert.Equal(t, []string{"model:churn", "report:revenue"}, g.Sinks)
	assert.False(t, g.HasCycles)
	assert.Nil(t, g.CyclePath)

	reports, err := f.mapper.BuildRelationshipGraph(f.ctx, GraphRequest{EntityTypes: []core.EntityType{"report"}})
	require.NoError(t, err)
	assert.Len(t, reports.Edges, 1)
	assert.Len(t, reports.Nodes, 2)
}

func TestBuildRelationshipGraph_Cycle(t *testing.T) {
	f := setup(t, testutil.NewSQLStore(t))
	seed(t, f)
	f.edge(t, revenue, orders, core.RelationshipEnrichedBy)

	g, err := f.mapper.BuildRelationshipGraph(f.ctx, GraphRequest{})
	require.NoError(t, err)
	assert.True(t, g.HasCycles)
	assert.Equal(t, []string{"dataset:orders", "report:revenue", "dataset:orders"}, g.CyclePath)
	assert.Contains(t, g.ToMap(), "cycle_path")
}

func TestFindRelatedEntities(t *testing.T) {
	f := setup(t, testutil.NewSQLStore(t))
	seed(t, f)
	f.edge(t, churn, orders, core.RelationshipEnrichedBy)

	related, err := f.mapper.FindRelatedEntities(f.ctx, orders, nil)
	require.NoError(t, err)
	require.Len(t, related, 4)

	assert.Equal(t, RelatedEntity{
		Entity:            crm,
		Direction:         core.DirectionUpstream,
		RelationshipTypes: []core.RelationshipType{core.RelationshipCopiedFrom},
		RecordCount:       1,
	}, related[0])
	assert.Equal(t, churn, related[1].Entity)
	assert.Equal(t, core.DirectionUpstream, related[1].Direction)

	down := related[3]
	assert.Equal(t, churn, down.Entity)
	assert.Equal(t, core.DirectionDownstream, down.Direction)
	assert.Equal(t, 2, down.RecordCount)
	assert.Equal(t, []core.RelationshipType{core.RelationshipDerivedFrom, core.RelationshipFilteredFrom}, down.RelationshipTypes)

	filtered, err := f.mapper.FindRelatedEntities(f.ctx, orders, []core.RelationshipType{core.RelationshipAggregatedFrom})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, revenue, filtered[0].Entity)
}

func TestGetRelationshipStatistics(t *testing.T) {
	repo, err := badgerstore.Open(badgerstore.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	f := setup(t, repo)
	seed(t, f)

	stats, err := f.mapper.GetRelationshipStatistics(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalRelationships)
	assert.Equal(t, 1, stats.ByRelationshipType[core.RelationshipCopiedFrom])
	assert.Equal(t, 2, stats.ByEntityPair[PairKey("dataset", "model")])
	assert.Equal(t, 1, stats.ByEntityPair["source->dataset"])

	m := stats.ToMap()
	assert.Equal(t, 4, m["total_relationships"])
}

type failingRepo struct {
	core.LineageRepository
}

func (failingRepo) ListLineage(context.Context, core.LineageFilter) ([]*core.LineageRecord, error) {
	return nil, core.StorageError("list lineage", errors.New("disk on fire"))
}

func TestStorageErrorsPropagate(t *testing.T) {
	f := setup(t, failingRepo{})

	_, err := f.mapper.BuildRelationshipGraph(f.ctx, GraphRequest{})
	assert.ErrorIs(t, err, core.ErrStorage)
	_, err = f.mapper.GetRelationshipStatistics(f.ctx)
	assert.ErrorIs(t, err, core.ErrStorage)
}
