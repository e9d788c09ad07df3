package version

import (
	"context"
	"fmt"
	"maps"

	"github.com/leapstack-labs/leapgov/internal/delta"
	"github.com/leapstack-labs/leapgov/pkg/core"
)

// ReconstructVersionData returns the full data of v.
//
// Snapshots (FULL, CHECKPOINT) return a copy of their data. A DELTA version
// is rebuilt by walking parent ids back to the nearest snapshot and
// replaying the deltas oldest to newest. A missing parent, a cycle in the
// parent ids or a checksum mismatch is reported as *core.IntegrityError.
//
// The returned map is a shallow copy: nested values are shared with the
// cache and must not be mutated.
func (s *Store) ReconstructVersionData(ctx context.Context, v *core.Version) (map[string]any, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: version is nil", core.ErrValidation)
	}
	data, _, err := s.reconstruct(ctx, s.repo, v)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// reconstruct rebuilds v through repo and reports how many deltas sit
// between v and its snapshot.
func (s *Store) reconstruct(ctx context.Context, repo core.VersionRepository, v *core.Version) (map[string]any, int, error) {
	if hit, ok := s.lookup(v.ID); ok {
		return maps.Clone(hit.data), hit.depth, nil
	}

	if v.VersionType.IsSnapshot() {
		data := maps.Clone(v.VersionData)
		if data == nil {
			data = map[string]any{}
		}
		s.remember(v.ID, data, 0)
		return maps.Clone(data), 0, nil
	}

	// chain holds the deltas newest first, ending just above the base.
	chain := []*core.Version{v}
	seen := map[string]struct{}{v.ID: {}}
	var (
		base      map[string]any
		baseDepth int
	)

	for cur := v; ; {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		if cur.VersionType != core.VersionTypeDelta {
			return nil, 0, &core.IntegrityError{VersionID: cur.ID, Reason: fmt.Sprintf("unexpected version type %q in delta chain", cur.VersionType)}
		}
		if cur.DeltaData == nil {
			return nil, 0, &core.IntegrityError{VersionID: cur.ID, Reason: "delta version has no delta data"}
		}
		if cur.ParentVersionID == nil || *cur.ParentVersionID == "" {
			return nil, 0, &core.IntegrityError{VersionID: cur.ID, Reason: "delta version has no parent"}
		}

		parentID := *cur.ParentVersionID
		if _, loop := seen[parentID]; loop {
			return nil, 0, &core.IntegrityError{VersionID: cur.ID, MissingParentID: parentID, Reason: "cycle in parent chain"}
		}
		if hit, ok := s.lookup(parentID); ok {
			base, baseDepth = hit.data, hit.depth
			break
		}

		// Version ids are globally unique, so the parent lookup is not
		// tenant-filtered.
		parent, err := repo.GetVersion(ctx, "", parentID)
		if err != nil {
			return nil, 0, err
		}
		if parent == nil {
			return nil, 0, &core.IntegrityError{VersionID: cur.ID, MissingParentID: parentID, Reason: "parent version not found"}
		}
		if parent.VersionType.IsSnapshot() {
			base = parent.VersionData
			if base == nil {
				base = map[string]any{}
			}
			s.remember(parent.ID, base, 0)
			break
		}

		seen[parentID] = struct{}{}
		chain = append(chain, parent)
		cur = parent
	}

	data := base
	for i := len(chain) - 1; i >= 0; i-- {
		data = delta.Apply(data, *chain[i].DeltaData)
	}
	depth := baseDepth + len(chain)

	if v.Checksum != "" {
		sum, err := delta.Checksum(data)
		if err != nil {
			return nil, 0, fmt.Errorf("checksum version %s: %w", v.ID, err)
		}
		if sum != v.Checksum {
			return nil, 0, &core.IntegrityError{VersionID: v.ID, Reason: "checksum mismatch after reconstruction"}
		}
	}

	s.remember(v.ID, data, depth)
	s.logger.Debug("version reconstructed", "id", v.ID, "deltas", len(chain), "depth", depth)
	return maps.Clone(data), depth, nil
}

func (s *Store) lookup(id string) (cached, bool) {
	if s.cache == nil {
		return cached{}, false
	}
	return s.cache.Get(id)
}

// remember caches data for id. data must not be mutated afterwards.
func (s *Store) remember(id string, data map[string]any, depth int) {
	if s.cache == nil {
		return
	}
	s.cache.Add(id, cached{data: data, depth: depth})
}
