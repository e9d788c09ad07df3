// Package relationship summarises the lineage graph as a whole: one-hop
// neighbourhoods, full graph snapshots for visualisation and aggregate
// relationship statistics.
package relationship

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/leapstack-labs/leapgov/internal/graph"
	"github.com/leapstack-labs/leapgov/pkg/core"
)

// Config holds Relationship Mapper configuration.
type Config struct {
	// Repo is the lineage storage backend. Required.
	Repo core.LineageRepository
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// Mapper answers whole-graph relationship questions.
type Mapper struct {
	repo   core.LineageRepository
	logger *slog.Logger
}

// NewMapper creates a Relationship Mapper.
func NewMapper(cfg Config) (*Mapper, error) {
	if cfg.Repo == nil {
		return nil, fmt.Errorf("relationship mapper requires a repository")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Mapper{repo: cfg.Repo, logger: logger}, nil
}

// EntityRelationships are the one-hop edges of an entity.
type EntityRelationships struct {
	Entity   core.EntityRef
	Outgoing []*core.LineageRecord
	Incoming []*core.LineageRecord
}

// ToMap converts the result to a plain map for transport.
func (e *EntityRelationships) ToMap() map[string]any {
	return map[string]any{
		"entity":         e.Entity.ToMap(),
		"outgoing":       recordMaps(e.Outgoing),
		"incoming":       recordMaps(e.Incoming),
		"outgoing_count": len(e.Outgoing),
		"incoming_count": len(e.Incoming),
		"total_count":    len(e.Outgoing) + len(e.Incoming),
	}
}

// MapEntityRelationships returns every edge leaving and entering ref.
func (m *Mapper) MapEntityRelationships(ctx context.Context, ref core.EntityRef) (*EntityRelationships, error) {
	if ref.IsZero() {
		return nil, fmt.Errorf("%w: entity reference is required", core.ErrValidation)
	}
	tenant := core.TenantFromContext(ctx)

	out := &EntityRelationships{Entity: ref}
	err := m.repo.Snapshot(ctx, func(r core.LineageReader) error {
		var err error
		if out.Outgoing, err = r.ListLineage(ctx, core.LineageFilter{TenantID: tenant, Source: &ref}); err != nil {
			return err
		}
		out.Incoming, err = r.ListLineage(ctx, core.LineageFilter{TenantID: tenant, Target: &ref})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GraphRequest scopes BuildRelationshipGraph.
type GraphRequest struct {
	// EntityTypes keeps edges with either endpoint of one of the types.
	EntityTypes []core.EntityType
}

// Node is one entity in a RelationshipGraph.
type Node struct {
	ID     string
	Entity core.EntityRef
}

// Edge is one lineage record in a RelationshipGraph.
type Edge struct {
	ID               string
	Source           string
	Target           string
	RelationshipType core.RelationshipType
}

// RelationshipGraph is a node and edge list for visualisation.
type RelationshipGraph struct {
	Nodes     []Node
	Edges     []Edge
	// Sources have no incoming edges; Sinks have no outgoing edges.
	Sources   []string
	Sinks     []string
	HasCycles bool
	// CyclePath is one cycle, first and last node equal, when HasCycles.
	CyclePath []string
}

// ToMap converts the graph to a plain map for transport.
func (g *RelationshipGraph) ToMap() map[string]any {
	nodes := make([]any, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		nodes = append(nodes, map[string]any{
			"id":          n.ID,
			"entity_type": string(n.Entity.Type),
			"entity_id":   n.Entity.ID,
		})
	}
	edges := make([]any, 0, len(g.Edges))
	for _, e := range g.Edges {
		edges = append(edges, map[string]any{
			"id":                e.ID,
			"source":            e.Source,
			"target":            e.Target,
			"relationship_type": string(e.RelationshipType),
		})
	}
	m := map[string]any{
		"nodes":      nodes,
		"edges":      edges,
		"node_count": len(g.Nodes),
		"edge_count": len(g.Edges),
		"sources":    g.Sources,
		"sinks":      g.Sinks,
		"has_cycles": g.HasCycles,
	}
	if g.HasCycles {
		m["cycle_path"] = g.CyclePath
	}
	return m
}

// BuildRelationshipGraph scans every matching record into a graph. Nodes
// are deduplicated by "type:id" and sorted; edges keep record order.
func (m *Mapper) BuildRelationshipGraph(ctx context.Context, req GraphRequest) (*RelationshipGraph, error) {
	recs, err := m.repo.ListLineage(ctx, core.LineageFilter{
		TenantID:    core.TenantFromContext(ctx),
		EntityTypes: req.EntityTypes,
	})
	if err != nil {
		return nil, err
	}

	g := graph.NewGraph()
	out := &RelationshipGraph{Edges: make([]Edge, 0, len(recs))}
	for _, rec := range recs {
		src, tgt := rec.Source.Key(), rec.Target.Key()
		g.AddNode(src, rec.Source)
		g.AddNode(tgt, rec.Target)
		if err := g.AddEdge(src, tgt); err != nil {
			return nil, err
		}
		out.Edges = append(out.Edges, Edge{ID: rec.ID, Source: src, Target: tgt, RelationshipType: rec.RelationshipType})
	}

	for _, n := range g.GetAllNodes() {
		out.Nodes = append(out.Nodes, Node{ID: n.ID, Entity: n.Data.(core.EntityRef)})
	}
	out.Sources, out.Sinks = g.GetRoots(), g.GetLeaves()
	out.HasCycles, out.CyclePath = g.HasCycle()

	m.logger.Debug("relationship graph built",
		"nodes", len(out.Nodes),
		"edges", len(out.Edges),
		"cycles", out.HasCycles)
	return out, nil
}

// RelatedEntity is a one-hop neighbour of an entity.
type RelatedEntity struct {
	Entity    core.EntityRef
	Direction core.Direction
	// RelationshipTypes lists every relationship linking the pair in this
	// direction, in first-seen order.
	RelationshipTypes []core.RelationshipType
	RecordCount       int
}

// ToMap converts the neighbour to a plain map for transport.
func (r RelatedEntity) ToMap() map[string]any {
	types := make([]string, 0, len(r.RelationshipTypes))
	for _, t := range r.RelationshipTypes {
		types = append(types, string(t))
	}
	return map[string]any{
		"entity":             r.Entity.ToMap(),
		"direction":          string(r.Direction),
		"relationship_types": types,
		"record_count":       r.RecordCount,
	}
}

// FindRelatedEntities returns the one-hop neighbours of ref in both
// directions, one entry per (entity, direction). A non-empty
// relationshipTypes keeps only edges of those types.
func (m *Mapper) FindRelatedEntities(ctx context.Context, ref core.EntityRef, relationshipTypes []core.RelationshipType) ([]RelatedEntity, error) {
	rels, err := m.MapEntityRelationships(ctx, ref)
	if err != nil {
		return nil, err
	}

	var out []RelatedEntity
	index := make(map[string]int)
	add := func(rec *core.LineageRecord, neighbour core.EntityRef, dir core.Direction) {
		if len(relationshipTypes) > 0 && !slices.Contains(relationshipTypes, rec.RelationshipType) {
			return
		}
		key := string(dir) + "|" + neighbour.Key()
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, RelatedEntity{Entity: neighbour, Direction: dir})
		}
		e := &out[i]
		e.RecordCount++
		if !slices.Contains(e.RelationshipTypes, rec.RelationshipType) {
			e.RelationshipTypes = append(e.RelationshipTypes, rec.RelationshipType)
		}
	}

	for _, rec := range rels.Incoming {
		add(rec, rec.Source, core.DirectionUpstream)
	}
	for _, rec := range rels.Outgoing {
		add(rec, rec.Target, core.DirectionDownstream)
	}
	return out, nil
}

// Statistics aggregates relationships by type and by endpoint types.
type Statistics struct {
	TotalRelationships int
	ByRelationshipType map[core.RelationshipType]int
	// ByEntityPair is keyed "source_type->target_type".
	ByEntityPair map[string]int
}

// ToMap converts the statistics to a plain map for transport.
func (s *Statistics) ToMap() map[string]any {
	byType := make(map[string]any, len(s.ByRelationshipType))
	for k, v := range s.ByRelationshipType {
		byType[string(k)] = v
	}
	byPair := make(map[string]any, len(s.ByEntityPair))
	for k, v := range s.ByEntityPair {
		byPair[k] = v
	}
	return map[string]any{
		"total_relationships":  s.TotalRelationships,
		"by_relationship_type": byType,
		"by_entity_pair":       byPair,
	}
}

// GetRelationshipStatistics scans every record of the caller's tenant.
func (m *Mapper) GetRelationshipStatistics(ctx context.Context) (*Statistics, error) {
	recs, err := m.repo.ListLineage(ctx, core.LineageFilter{TenantID: core.TenantFromContext(ctx)})
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		TotalRelationships: len(recs),
		ByRelationshipType: make(map[core.RelationshipType]int),
		ByEntityPair:       make(map[string]int),
	}
	for _, rec := range recs {
		stats.ByRelationshipType[rec.RelationshipType]++
		stats.ByEntityPair[PairKey(rec.Source.Type, rec.Target.Type)]++
	}
	return stats, nil
}

// PairKey formats the ByEntityPair key of two entity types.
func PairKey(source, target core.EntityType) string {
	return string(source) + "->" + string(target)
}

func recordMaps(recs []*core.LineageRecord) []any {
	out := make([]any, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ToMap())
	}
	return out
}
