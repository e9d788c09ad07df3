package lineage

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/leapstack-labs/leapgov/internal/graph"
	"github.com/leapstack-labs/leapgov/internal/validate"
	"github.com/leapstack-labs/leapgov/pkg/core"
)

// Defaults and limits for lineage queries.
const (
	DefaultLimit         = 100
	MaxLimit             = 1000
	DefaultMaxDepth      = 10
	MaxTraversalDepth    = 100
	DefaultMostConnected = 10
)

// Config holds Lineage Tracker configuration.
type Config struct {
	// Repo is the lineage storage backend. Required.
	Repo core.LineageRepository
	// DefaultMaxDepth is used by traversals called with a depth of zero.
	// Zero means DefaultMaxDepth.
	DefaultMaxDepth int
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Tracker records lineage and answers lineage queries.
type Tracker struct {
	repo     core.LineageRepository
	logger   *slog.Logger
	maxDepth int
	now      func() time.Time
}

// NewTracker creates a Lineage Tracker.
func NewTracker(cfg Config) (*Tracker, error) {
	if cfg.Repo == nil {
		return nil, fmt.Errorf("lineage tracker requires a repository")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	maxDepth := cfg.DefaultMaxDepth
	if maxDepth <= 0 || maxDepth > MaxTraversalDepth {
		maxDepth = DefaultMaxDepth
	}
	return &Tracker{repo: cfg.Repo, logger: logger, maxDepth: maxDepth, now: now}, nil
}

// TrackRequest is the input of TrackTransformation.
type TrackRequest struct {
	Source             core.EntityRef `validate:"entityref"`
	SourceVersionID    *string
	Target             core.EntityRef `validate:"entityref"`
	TargetVersionID    *string
	RelationshipType   core.RelationshipType `validate:"relationship"`
	TransformationInfo map[string]any
	SourceColumns      []string `validate:"dive,required"`
	TargetColumns      []string `validate:"dive,required"`
}

// TrackTransformation appends one lineage record. Repeated calls record
// repeated edges; nothing is deduplicated.
func (t *Tracker) TrackTransformation(ctx context.Context, req TrackRequest) (*core.LineageRecord, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	scope := core.ScopeFromContext(ctx)

	rec := &core.LineageRecord{
		Source:             req.Source,
		SourceVersionID:    req.SourceVersionID,
		Target:             req.Target,
		TargetVersionID:    req.TargetVersionID,
		RelationshipType:   req.RelationshipType,
		SourceColumns:      slices.Clone(req.SourceColumns),
		TargetColumns:      slices.Clone(req.TargetColumns),
		TransformationInfo: maps.Clone(req.TransformationInfo),
		TenantID:           scope.TenantID,
		CreatedBy:          scope.Actor,
		CreatedAt:          t.now().UTC(),
	}
	if err := t.repo.InsertLineage(ctx, rec); err != nil {
		return nil, err
	}

	t.logger.Debug("lineage tracked",
		"id", rec.ID,
		"source", rec.Source.Key(),
		"target", rec.Target.Key(),
		"relationship", rec.RelationshipType)
	return rec, nil
}

// EntityLineage holds the one-hop edges of an entity.
type EntityLineage struct {
	Entity    core.EntityRef
	Direction core.Direction
	// Upstream are edges whose target is Entity.
	Upstream []*core.LineageRecord
	// Downstream are edges whose source is Entity.
	Downstream []*core.LineageRecord
}

// ToMap converts the result to a plain map for transport.
func (l *EntityLineage) ToMap() map[string]any {
	return map[string]any{
		"entity":     l.Entity.ToMap(),
		"direction":  string(l.Direction),
		"upstream":   recordMaps(l.Upstream),
		"downstream": recordMaps(l.Downstream),
	}
}

// GetLineageForEntity returns the direct edges of ref, oldest first. limit
// applies to each direction separately and keeps the most recent edges;
// zero means DefaultLimit.
func (t *Tracker) GetLineageForEntity(ctx context.Context, ref core.EntityRef, direction core.Direction, limit int) (*EntityLineage, error) {
	if ref.IsZero() {
		return nil, fmt.Errorf("%w: entity reference is required", core.ErrValidation)
	}
	if direction == "" {
		direction = core.DirectionBoth
	}
	if _, err := core.ParseDirection(string(direction)); err != nil {
		return nil, err
	}
	limit, err := queryLimit(limit)
	if err != nil {
		return nil, err
	}

	tenant := core.TenantFromContext(ctx)
	out := &EntityLineage{Entity: ref, Direction: direction}
	err = t.repo.Snapshot(ctx, func(r core.LineageReader) error {
		if direction != core.DirectionDownstream {
			recs, err := r.ListLineage(ctx, core.LineageFilter{TenantID: tenant, Target: &ref, Limit: limit, Newest: true})
			if err != nil {
				return err
			}
			out.Upstream = recs
		}
		if direction != core.DirectionUpstream {
			recs, err := r.ListLineage(ctx, core.LineageFilter{TenantID: tenant, Source: &ref, Limit: limit, Newest: true})
			if err != nil {
				return err
			}
			out.Downstream = recs
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetColumnLineage returns the edges of ref, in either direction, whose
// source or target column list contains column. Records are oldest first.
func (t *Tracker) GetColumnLineage(ctx context.Context, ref core.EntityRef, column string) ([]*core.LineageRecord, error) {
	if ref.IsZero() {
		return nil, fmt.Errorf("%w: entity reference is required", core.ErrValidation)
	}
	if column == "" {
		return nil, fmt.Errorf("%w: column is required", core.ErrValidation)
	}

	tenant := core.TenantFromContext(ctx)
	var out []*core.LineageRecord
	seen := make(map[string]bool)
	err := t.repo.Snapshot(ctx, func(r core.LineageReader) error {
		for _, f := range []core.LineageFilter{
			{TenantID: tenant, Target: &ref},
			{TenantID: tenant, Source: &ref},
		} {
			recs, err := r.ListLineage(ctx, f)
			if err != nil {
				return err
			}
			for _, rec := range recs {
				// A self-edge comes back from both queries.
				if seen[rec.ID] || !rec.HasColumn(column) {
					continue
				}
				seen[rec.ID] = true
				out = append(out, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(out, func(a, b *core.LineageRecord) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

// ConnectedEntity is an entity and its number of distinct neighbours.
type ConnectedEntity struct {
	Entity      core.EntityRef
	Connections int
}

// Statistics aggregates the lineage visible to the caller.
type Statistics struct {
	TotalRecords       int
	ByRelationshipType map[core.RelationshipType]int
	DistinctEntities   int
	ColumnLevelRecords int
	MostConnected      []ConnectedEntity
}

// ToMap converts the statistics to a plain map for transport.
func (s *Statistics) ToMap() map[string]any {
	byType := make(map[string]any, len(s.ByRelationshipType))
	for k, v := range s.ByRelationshipType {
		byType[string(k)] = v
	}
	connected := make([]any, 0, len(s.MostConnected))
	for _, c := range s.MostConnected {
		connected = append(connected, map[string]any{
			"entity":      c.Entity.ToMap(),
			"connections": c.Connections,
		})
	}
	return map[string]any{
		"total_records":        s.TotalRecords,
		"by_relationship_type": byType,
		"distinct_entities":    s.DistinctEntities,
		"column_level_records": s.ColumnLevelRecords,
		"most_connected":       connected,
	}
}

// GetLineageStatistics scans every record of the caller's tenant.
func (t *Tracker) GetLineageStatistics(ctx context.Context) (*Statistics, error) {
	recs, err := t.repo.ListLineage(ctx, core.LineageFilter{TenantID: core.TenantFromContext(ctx)})
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		TotalRecords:       len(recs),
		ByRelationshipType: make(map[core.RelationshipType]int),
	}
	g := graph.NewGraph()
	for _, rec := range recs {
		stats.ByRelationshipType[rec.RelationshipType]++
		if len(rec.SourceColumns) > 0 || len(rec.TargetColumns) > 0 {
			stats.ColumnLevelRecords++
		}
		g.AddNode(rec.Source.Key(), rec.Source)
		g.AddNode(rec.Target.Key(), rec.Target)
		if err := g.AddEdge(rec.Source.Key(), rec.Target.Key()); err != nil {
			return nil, err
		}
	}
	stats.DistinctEntities = g.NodeCount()

	for _, id := range g.MostConnected(DefaultMostConnected) {
		n, _ := g.GetNode(id)
		in, out := g.Degree(id)
		stats.MostConnected = append(stats.MostConnected, ConnectedEntity{
			Entity:      n.Data.(core.EntityRef),
			Connections: in + out,
		})
	}
	return stats, nil
}

func queryLimit(limit int) (int, error) {
	switch {
	case limit < 0 || limit > MaxLimit:
		return 0, fmt.Errorf("%w: limit must be between 0 and %d", core.ErrValidation, MaxLimit)
	case limit == 0:
		return DefaultLimit, nil
	default:
		return limit, nil
	}
}

func recordMaps(recs []*core.LineageRecord) []any {
	out := make([]any, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ToMap())
	}
	return out
}
