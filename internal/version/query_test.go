package version

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapgov/pkg/core"
)

func TestCompareVersions_Example(t *testing.T) {
	f := setup(t)

	v1 := create(t, f, map[string]any{"a": 1})
	v2 := create(t, f, map[string]any{"a": 1, "b": 2})

	cmp, err := f.query.CompareVersions(f.ctx, v1.ID, v2.ID)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"b": float64(2)}, cmp.Differences.Added)
	assert.Empty(t, cmp.Differences.Removed)
	assert.Empty(t, cmp.Differences.Modified)
	assert.GreaterOrEqual(t, cmp.SimilarityScore, 0.0)
	assert.Less(t, cmp.SimilarityScore, 1.0)
	assert.Equal(t, 1, cmp.NumberDelta)
	assert.Equal(t, time.Second, cmp.TimeDelta)

	m := cmp.ToMap()
	assert.Contains(t, m, "differences")
	assert.Equal(t, cmp.SimilarityScore, m["similarity_score"])
}

func TestCompareVersions_Similarity(t *testing.T) {
	f := setup(t)

	empty := create(t, f, map[string]any{})
	full := create(t, f, bigRecord(1))

	same, err := f.query.CompareVersions(f.ctx, full.ID, full.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, same.SimilarityScore)
	assert.True(t, same.Differences.IsEmpty())

	apart, err := f.query.CompareVersions(f.ctx, empty.ID, full.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, apart.SimilarityScore)

	_, err = f.query.CompareVersions(f.ctx, full.ID, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestQueryVersionAtTime(t *testing.T) {
	f := setup(t)

	v1 := create(t, f, bigRecord(1))
	v2 := create(t, f, bigRecord(2))
	v3 := create(t, f, bigRecord(3))
	_, err := f.store.ArchiveVersion(f.ctx, v3.ID)
	require.NoError(t, err)

	tests := []struct {
		name string
		at   time.Time
		want *core.Version
	}{
		{name: "before history", at: v1.CreatedAt.Add(-time.Minute)},
		{name: "at v1", at: v1.CreatedAt, want: v1},
		{name: "between v1 and v2", at: v1.CreatedAt.Add(500 * time.Millisecond), want: v1},
		{name: "archived versions are skipped", at: v3.CreatedAt.Add(time.Hour), want: v2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.query.QueryVersionAtTime(f.ctx, doc, "", tt.at)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want.ID, got.ID)
		})
	}
}

func TestSearchVersions(t *testing.T) {
	f := setup(t)

	create(t, f, bigRecord(1), func(r *CreateVersionRequest) { r.Comment = "Initial import" })
	v2 := create(t, f, bigRecord(2), func(r *CreateVersionRequest) { r.Comment = "fix TYPO in title" })
	create(t, f, bigRecord(3), func(r *CreateVersionRequest) {
		r.EntityType = "dataset"
		r.EntityID = "9"
		r.Comment = "typo again"
	})

	tests := []struct {
		name string
		req  SearchRequest
		want int
	}{
		{name: "everything", req: SearchRequest{}, want: 3},
		{name: "by entity type", req: SearchRequest{EntityType: "document"}, want: 2},
		{name: "comment is case-insensitive", req: SearchRequest{CommentContains: "typo"}, want: 2},
		{name: "conjunctive", req: SearchRequest{EntityType: "document", CommentContains: "typo"}, want: 1},
		{name: "by creator", req: SearchRequest{CreatedBy: "bob"}, want: 0},
		{name: "time window", req: SearchRequest{From: &v2.CreatedAt, To: &v2.CreatedAt}, want: 1},
		{name: "paged", req: SearchRequest{Limit: 1, Offset: 1}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := f.query.SearchVersions(f.ctx, tt.req)
			require.NoError(t, err)
			assert.Len(t, page.Versions, tt.want)
		})
	}

	to := v2.CreatedAt.Add(-time.Hour)
	_, err := f.query.SearchVersions(f.ctx, SearchRequest{From: &v2.CreatedAt, To: &to})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = f.query.SearchVersions(f.ctx, SearchRequest{Limit: 5000})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestGetVersionStatistics(t *testing.T) {
	f := setup(t)

	v1 := create(t, f, bigRecord(1))
	create(t, f, bigRecord(2))
	_, err := f.store.CreateTag(f.ctx, CreateTagRequest{VersionID: v1.ID, Name: "first"})
	require.NoError(t, err)
	_, err = f.store.CreateBranch(f.ctx, CreateBranchRequest{Ref: doc, Name: "draft"})
	require.NoError(t, err)

	stats, err := f.query.GetVersionStatistics(f.ctx, StatisticsRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalVersions)
	assert.Equal(t, 1, stats.ByVersionType[core.VersionTypeFull])
	assert.Equal(t, 1, stats.ByVersionType[core.VersionTypeDelta])
	assert.Equal(t, 2, stats.ByStatus[core.VersionStatusActive])
	assert.Equal(t, 2, stats.ByEntityType["document"])
	assert.Equal(t, 2, stats.RecentVersions)
	assert.Equal(t, 1, stats.TotalTags)
	assert.Equal(t, 1, stats.TotalBranches)
	assert.Positive(t, stats.StoredBytes)
	assert.Less(t, stats.StoredBytes, stats.LogicalBytes, "the delta stores less than its full record")

	// A window that ends before any version was written
	narrow, err := f.query.GetVersionStatistics(f.ctx, StatisticsRequest{RecentWindow: time.Nanosecond})
	require.NoError(t, err)
	assert.Zero(t, narrow.RecentVersions)
}
