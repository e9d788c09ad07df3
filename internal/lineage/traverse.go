package lineage

import (
	"context"
	"fmt"
	"sync"

	"github.com/leapstack-labs/leapgov/pkg/core"
)

// Reached is one entity found by a traversal.
type Reached struct {
	Entity core.EntityRef
	// Depth is the least number of edges between the start and Entity.
	Depth int
	// From is the entity Entity was first reached from.
	From core.EntityRef
	// Record is the edge Entity was first reached through.
	Record *core.LineageRecord
}

// Traversal is the result of walking one direction from an entity.
type Traversal struct {
	Start     core.EntityRef
	Direction core.Direction
	// Reached lists every entity found, in breadth-first order. The start
	// entity is never included, even when it sits on a cycle.
	Reached []Reached
	// MaxDepthReached is the greatest Depth in Reached.
	MaxDepthReached int
}

// Walker walks lineage from an entity in one direction.
type Walker interface {
	Traverse(ctx context.Context, ref core.EntityRef, direction core.Direction, maxDepth int) (*Traversal, error)
}

// Traverse walks lineage from ref in one direction, up to maxDepth edges,
// pinned to a single read snapshot.
func (t *Tracker) Traverse(ctx context.Context, ref core.EntityRef, direction core.Direction, maxDepth int) (*Traversal, error) {
	var tr *Traversal
	err := t.Snapshot(ctx, func(w Walker) error {
		var err error
		tr, err = w.Traverse(ctx, ref, direction, maxDepth)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// Snapshot runs fn with a Walker whose traversals all read the same
// snapshot of the edges. The Walker is safe for concurrent use and must not
// be used after fn returns.
func (t *Tracker) Snapshot(ctx context.Context, fn func(w Walker) error) error {
	return t.repo.Snapshot(ctx, func(r core.LineageReader) error {
		return fn(&pinned{t: t, r: r, tenant: core.TenantFromContext(ctx)})
	})
}

// pinned walks through one snapshot reader. Reads are serialized because
// a transaction-backed reader is not safe for concurrent queries.
type pinned struct {
	t      *Tracker
	tenant string

	mu sync.Mutex
	r  core.LineageReader
}

func (p *pinned) ListLineage(ctx context.Context, filter core.LineageFilter) ([]*core.LineageRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.r.ListLineage(ctx, filter)
}

func (p *pinned) Traverse(ctx context.Context, ref core.EntityRef, direction core.Direction, maxDepth int) (*Traversal, error) {
	if err := checkWalk(ref, maxDepth); err != nil {
		return nil, err
	}
	if direction != core.DirectionUpstream && direction != core.DirectionDownstream {
		return nil, fmt.Errorf("%w: traversal direction must be upstream or downstream", core.ErrValidation)
	}
	return walk(ctx, p, p.tenant, ref, direction, p.t.depthOrDefault(maxDepth))
}

// walk is a breadth-first worklist over the edges of r. The visited set is
// local to the call, so cycles terminate and each entity is reported once.
func walk(ctx context.Context, r core.LineageReader, tenant string, start core.EntityRef, direction core.Direction, maxDepth int) (*Traversal, error) {
	type item struct {
		ref   core.EntityRef
		depth int
	}

	tr := &Traversal{Start: start, Direction: direction}
	visited := map[string]bool{start.Key(): true}
	queue := []item{{ref: start}}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}

		filter := core.LineageFilter{TenantID: tenant}
		if direction == core.DirectionUpstream {
			filter.Target = &cur.ref
		} else {
			filter.Source = &cur.ref
		}
		recs, err := r.ListLineage(ctx, filter)
		if err != nil {
			return nil, err
		}

		for _, rec := range recs {
			next := rec.Target
			if direction == core.DirectionUpstream {
				next = rec.Source
			}
			if visited[next.Key()] {
				continue
			}
			visited[next.Key()] = true

			depth := cur.depth + 1
			tr.Reached = append(tr.Reached, Reached{Entity: next, Depth: depth, From: cur.ref, Record: rec})
			tr.MaxDepthReached = max(tr.MaxDepthReached, depth)
			queue = append(queue, item{ref: next, depth: depth})
		}
	}
	return tr, nil
}

// PathNode is one entity in a lineage tree.
type PathNode struct {
	Entity           core.EntityRef
	RelationshipType core.RelationshipType
	RecordID         string
	Depth            int
	// Children is nil for entities that led nowhere new.
	Children []*PathNode
}

// ToMap converts the node and its subtree to a plain map.
func (n *PathNode) ToMap() map[string]any {
	m := map[string]any{
		"entity":            n.Entity.ToMap(),
		"relationship_type": string(n.RelationshipType),
		"record_id":         n.RecordID,
		"depth":             n.Depth,
	}
	if len(n.Children) > 0 {
		m["children"] = nodeMaps(n.Children)
	}
	return m
}

// LineagePath is the upstream and downstream lineage tree of an entity.
type LineagePath struct {
	Entity     core.EntityRef
	MaxDepth   int
	Upstream   []*PathNode
	Downstream []*PathNode
}

// ToMap converts the path to a plain map for transport.
func (p *LineagePath) ToMap() map[string]any {
	return map[string]any{
		"entity":     p.Entity.ToMap(),
		"max_depth":  p.MaxDepth,
		"upstream":   nodeMaps(p.Upstream),
		"downstream": nodeMaps(p.Downstream),
	}
}

// GetFullLineagePath walks both directions from ref up to maxDepth edges
// (zero means the tracker's default depth) and returns them as trees. Each entity
// appears at most once per direction, under the entity it was first
// reached from.
func (t *Tracker) GetFullLineagePath(ctx context.Context, ref core.EntityRef, maxDepth int) (*LineagePath, error) {
	if err := checkWalk(ref, maxDepth); err != nil {
		return nil, err
	}
	maxDepth = t.depthOrDefault(maxDepth)
	tenant := core.TenantFromContext(ctx)

	path := &LineagePath{Entity: ref, MaxDepth: maxDepth}
	err := t.repo.Snapshot(ctx, func(r core.LineageReader) error {
		up, err := walk(ctx, r, tenant, ref, core.DirectionUpstream, maxDepth)
		if err != nil {
			return err
		}
		down, err := walk(ctx, r, tenant, ref, core.DirectionDownstream, maxDepth)
		if err != nil {
			return err
		}
		path.Upstream = buildTree(up)
		path.Downstream = buildTree(down)
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.logger.Debug("lineage path built", "entity", ref.Key(), "max_depth", maxDepth)
	return path, nil
}

// buildTree nests the reached entities under the entity they were reached
// from. Reached is breadth-first, so every parent precedes its children.
func buildTree(tr *Traversal) []*PathNode {
	var roots []*PathNode
	nodes := make(map[string]*PathNode, len(tr.Reached))
	for _, r := range tr.Reached {
		n := &PathNode{
			Entity:           r.Entity,
			RelationshipType: r.Record.RelationshipType,
			RecordID:         r.Record.ID,
			Depth:            r.Depth,
		}
		nodes[r.Entity.Key()] = n
		if parent, ok := nodes[r.From.Key()]; ok {
			parent.Children = append(parent.Children, n)
		} else {
			roots = append(roots, n)
		}
	}
	return roots
}

func checkWalk(ref core.EntityRef, maxDepth int) error {
	if ref.IsZero() {
		return fmt.Errorf("%w: entity reference is required", core.ErrValidation)
	}
	if maxDepth < 0 || maxDepth > MaxTraversalDepth {
		return fmt.Errorf("%w: max depth must be between 0 and %d", core.ErrValidation, MaxTraversalDepth)
	}
	return nil
}

// DefaultDepth is the depth used when a traversal is asked for depth zero.
func (t *Tracker) DefaultDepth() int {
	return t.maxDepth
}

func (t *Tracker) depthOrDefault(d int) int {
	if d == 0 {
		return t.maxDepth
	}
	return d
}

func nodeMaps(nodes []*PathNode) []any {
	out := make([]any, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ToMap())
	}
	return out
}
