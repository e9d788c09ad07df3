package version

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/leapgov/internal/delta"
	"github.com/leapstack-labs/leapgov/internal/validate"
	"github.com/leapstack-labs/leapgov/pkg/core"
)

// DefaultRecentWindow is the statistics window used when none is given.
const DefaultRecentWindow = 7 * 24 * time.Hour

// QueryEngine answers read-only questions over the Version Store.
type QueryEngine struct {
	store  *Store
	repo   core.VersionRepository
	logger *slog.Logger
}

// NewQueryEngine creates a QueryEngine reading through store.
func NewQueryEngine(store *Store) *QueryEngine {
	return &QueryEngine{store: store, repo: store.repo, logger: store.logger}
}

// QueryVersionAtTime returns the ACTIVE version of ref on branchID with the
// greatest created_at not after ts, or nil.
func (q *QueryEngine) QueryVersionAtTime(ctx context.Context, ref core.EntityRef, branchID string, ts time.Time) (*core.Version, error) {
	key := core.VersionKey{TenantID: core.TenantFromContext(ctx), Ref: ref, BranchID: branchID}
	return q.repo.GetVersionAtTime(ctx, key, ts)
}

// Comparison is the result of CompareVersions.
type Comparison struct {
	Version1        *core.Version
	Version2        *core.Version
	Data1           map[string]any
	Data2           map[string]any
	Differences     core.Delta
	SimilarityScore float64
	// NumberDelta is Version2.VersionNumber - Version1.VersionNumber.
	NumberDelta int
	// TimeDelta is Version2.CreatedAt - Version1.CreatedAt.
	TimeDelta time.Duration
}

// ToMap converts the comparison to a plain map for transport.
func (c *Comparison) ToMap() map[string]any {
	return map[string]any{
		"version1":         c.Version1.ToMap(),
		"version2":         c.Version2.ToMap(),
		"data1":            c.Data1,
		"data2":            c.Data2,
		"differences":      c.Differences.ToMap(),
		"similarity_score": c.SimilarityScore,
		"metadata": map[string]any{
			"version_number_delta": c.NumberDelta,
			"time_delta_seconds":   c.TimeDelta.Seconds(),
			"same_entity":          c.Version1.Ref() == c.Version2.Ref(),
		},
	}
}

// CompareVersions reconstructs two versions and diffs them. Either version
// missing is core.ErrNotFound.
func (q *QueryEngine) CompareVersions(ctx context.Context, id1, id2 string) (*Comparison, error) {
	v1, err := q.requireVersion(ctx, id1)
	if err != nil {
		return nil, err
	}
	v2, err := q.requireVersion(ctx, id2)
	if err != nil {
		return nil, err
	}

	data1, err := q.store.ReconstructVersionData(ctx, v1)
	if err != nil {
		return nil, err
	}
	data2, err := q.store.ReconstructVersionData(ctx, v2)
	if err != nil {
		return nil, err
	}

	return &Comparison{
		Version1:        v1,
		Version2:        v2,
		Data1:           data1,
		Data2:           data2,
		Differences:     delta.Calculate(data1, data2),
		SimilarityScore: delta.Similarity(data1, data2),
		NumberDelta:     v2.VersionNumber - v1.VersionNumber,
		TimeDelta:       v2.CreatedAt.Sub(v1.CreatedAt),
	}, nil
}

func (q *QueryEngine) requireVersion(ctx context.Context, id string) (*core.Version, error) {
	v, err := q.repo.GetVersion(ctx, core.TenantFromContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("%w: version %s", core.ErrNotFound, id)
	}
	return v, nil
}

// SearchRequest is the input of SearchVersions. Zero fields do not filter.
type SearchRequest struct {
	EntityType core.EntityType
	EntityID   string
	// TenantID is used only when the context carries no tenant.
	TenantID        string
	CreatedBy       string
	From            *time.Time
	To              *time.Time
	CommentContains string `validate:"max=500"`
	IncludeArchived bool
	Limit           int `validate:"gte=0,lte=1000"`
	Offset          int `validate:"gte=0"`
}

// SearchVersions returns versions matching every given filter, newest first.
func (q *QueryEngine) SearchVersions(ctx context.Context, req SearchRequest) (*Page, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if req.From != nil && req.To != nil && req.To.Before(*req.From) {
		return nil, fmt.Errorf("%w: search window ends before it starts", core.ErrValidation)
	}

	tenant := core.TenantFromContext(ctx)
	if tenant == "" {
		tenant = req.TenantID
	}

	filter := core.VersionFilter{
		TenantID:        tenant,
		EntityType:      req.EntityType,
		EntityID:        req.EntityID,
		CreatedBy:       req.CreatedBy,
		CreatedFrom:     req.From,
		CreatedTo:       req.To,
		CommentContains: req.CommentContains,
		Limit:           pageLimit(req.Limit),
		Offset:          req.Offset,
	}
	if !req.IncludeArchived {
		filter.Statuses = []core.VersionStatus{core.VersionStatusActive}
	}

	versions, total, err := q.repo.ListVersions(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &Page{Versions: versions, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// StatisticsRequest is the input of GetVersionStatistics.
type StatisticsRequest struct {
	EntityType core.EntityType
	// RecentWindow defaults to DefaultRecentWindow.
	RecentWindow time.Duration
}

// GetVersionStatistics aggregates the versions visible to the caller.
func (q *QueryEngine) GetVersionStatistics(ctx context.Context, req StatisticsRequest) (*core.VersionStatistics, error) {
	window := req.RecentWindow
	if window <= 0 {
		window = DefaultRecentWindow
	}
	return q.repo.VersionStatistics(ctx, core.StatisticsFilter{
		TenantID:    core.TenantFromContext(ctx),
		EntityType:  req.EntityType,
		RecentSince: q.store.now().UTC().Add(-window),
	})
}
