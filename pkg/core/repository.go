package core

import (
	"context"
	"slices"
	"time"
)

// VersionRepository is the storage contract of the Version Store.
//
// Implementations must enforce uniqueness of (entity_type, entity_id,
// version_number, branch_id) and (version_id, tag_name), reporting violations
// as ErrConflict. Lookups that find nothing return (nil, nil). An empty
// tenant id in a lookup means "any tenant".
type VersionRepository interface {
	// InTx runs fn inside a single transaction. The repository passed to fn is
	// bound to that transaction; returning an error rolls everything back.
	InTx(ctx context.Context, fn func(repo VersionRepository) error) error

	// Version operations
	InsertVersion(ctx context.Context, v *Version) error
	GetVersion(ctx context.Context, tenantID, id string) (*Version, error)
	GetVersionByNumber(ctx context.Context, key VersionKey, number int) (*Version, error)
	GetLatestVersion(ctx context.Context, key VersionKey, statuses ...VersionStatus) (*Version, error)
	MaxVersionNumber(ctx context.Context, key VersionKey) (int, error)
	GetVersionAtTime(ctx context.Context, key VersionKey, at time.Time) (*Version, error)
	ListVersions(ctx context.Context, filter VersionFilter) ([]*Version, int, error)
	UpdateVersionStatus(ctx context.Context, tenantID, id string, from, to VersionStatus) (bool, error)
	VersionStatistics(ctx context.Context, filter StatisticsFilter) (*VersionStatistics, error)

	// Tag operations
	InsertTag(ctx context.Context, tag *Tag) error
	ListTags(ctx context.Context, tenantID, versionID string) ([]*Tag, error)
	GetVersionByTag(ctx context.Context, tenantID string, ref EntityRef, tagName string) (*Version, error)

	// Branch operations
	InsertBranch(ctx context.Context, b *Branch) error
	GetBranch(ctx context.Context, tenantID, id string) (*Branch, error)
	ListBranches(ctx context.Context, tenantID string, ref EntityRef) ([]*Branch, error)
	ClearDefaultBranch(ctx context.Context, tenantID string, ref EntityRef) error
	MarkBranchMerged(ctx context.Context, tenantID, id string) (bool, error)
}

// VersionFilter is a conjunctive filter over versions. Zero fields do not filter.
type VersionFilter struct {
	TenantID        string
	EntityType      EntityType
	EntityID        string
	BranchID        *string
	CreatedBy       string
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
	CommentContains string
	Statuses        []VersionStatus
	Limit           int
	Offset          int
}

// StatisticsFilter scopes VersionStatistics.
type StatisticsFilter struct {
	TenantID    string
	EntityType  EntityType
	RecentSince time.Time
}

// VersionStatistics aggregates the version store.
type VersionStatistics struct {
	TotalVersions  int
	ByVersionType  map[VersionType]int
	ByStatus       map[VersionStatus]int
	ByEntityType   map[EntityType]int
	// LogicalBytes sums the full-record size of every version, DELTA
	// versions included.
	LogicalBytes   int64
	// StoredBytes sums the encoded snapshot and delta payloads actually kept.
	StoredBytes    int64
	RecentVersions int
	RecentSince    time.Time
	TotalTags      int
	TotalBranches  int
}

// ToMap converts the statistics to a plain map for transport.
func (s *VersionStatistics) ToMap() map[string]any {
	byType := make(map[string]any, len(s.ByVersionType))
	for k, v := range s.ByVersionType {
		byType[string(k)] = v
	}
	byStatus := make(map[string]any, len(s.ByStatus))
	for k, v := range s.ByStatus {
		byStatus[string(k)] = v
	}
	byEntity := make(map[string]any, len(s.ByEntityType))
	for k, v := range s.ByEntityType {
		byEntity[string(k)] = v
	}
	return map[string]any{
		"total_versions":  s.TotalVersions,
		"by_version_type": byType,
		"by_status":       byStatus,
		"by_entity_type":  byEntity,
		"logical_bytes":   s.LogicalBytes,
		"stored_bytes":    s.StoredBytes,
		"recent_versions": s.RecentVersions,
		"recent_since":    s.RecentSince.UTC().Format(time.RFC3339),
		"total_tags":      s.TotalTags,
		"total_branches":  s.TotalBranches,
	}
}

// LineageReader is the read half of the lineage storage contract.
type LineageReader interface {
	// ListLineage returns matching records oldest first.
	ListLineage(ctx context.Context, filter LineageFilter) ([]*LineageRecord, error)
}

// LineageRepository is the storage contract of the Lineage Store. Records are
// append-only; no acyclicity is enforced.
type LineageRepository interface {
	LineageReader

	InsertLineage(ctx context.Context, r *LineageRecord) error

	// Snapshot runs fn against a reader pinned to one consistent view of the
	// edges, where the backend supports it.
	Snapshot(ctx context.Context, fn func(r LineageReader) error) error
}

// LineageFilter is a conjunctive filter over lineage records. Zero fields do not filter.
type LineageFilter struct {
	TenantID          string
	Source            *EntityRef
	Target            *EntityRef
	RelationshipTypes []RelationshipType
	// EntityTypes matches records where either endpoint has one of the types.
	EntityTypes []EntityType
	Limit       int
	// Newest makes Limit keep the most recent records instead of the
	// oldest. Results are oldest first either way.
	Newest bool
}

// Matches reports whether r satisfies every filter field. Backends that cannot
// push a field down to storage use it to post-filter.
func (f LineageFilter) Matches(r *LineageRecord) bool {
	if f.TenantID != "" && r.TenantID != f.TenantID {
		return false
	}
	if f.Source != nil && r.Source != *f.Source {
		return false
	}
	if f.Target != nil && r.Target != *f.Target {
		return false
	}
	if len(f.RelationshipTypes) > 0 && !slices.Contains(f.RelationshipTypes, r.RelationshipType) {
		return false
	}
	if len(f.EntityTypes) > 0 && !slices.Contains(f.EntityTypes, r.Source.Type) && !slices.Contains(f.EntityTypes, r.Target.Type) {
		return false
	}
	return true
}
