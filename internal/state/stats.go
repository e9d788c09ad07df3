package state

import (
	"context"
	"database/sql"

	"github.com/leapstack-labs/leapgov/pkg/core"
)

// VersionStatistics aggregates versions, tags and branches.
func (s *SQLStore) VersionStatistics(ctx context.Context, filter core.StatisticsFilter) (*core.VersionStatistics, error) {
	where := "1 = 1"
	var args []any
	if filter.TenantID != "" {
		where += " AND tenant_id = ?"
		args = append(args, filter.TenantID)
	}
	if filter.EntityType != "" {
		where += " AND entity_type = ?"
		args = append(args, string(filter.EntityType))
	}

	stats := &core.VersionStatistics{
		ByVersionType: map[core.VersionType]int{},
		ByStatus:      map[core.VersionStatus]int{},
		ByEntityType:  map[core.EntityType]int{},
		RecentSince:   filter.RecentSince,
	}

	var logical, stored sql.NullInt64
	err := s.queryRow(ctx, `SELECT COUNT(*), SUM(size),
		SUM(COALESCE(OCTET_LENGTH(version_data), 0) + COALESCE(OCTET_LENGTH(delta_data), 0))
		FROM entity_versions WHERE `+where, args...).
		Scan(&stats.TotalVersions, &logical, &stored)
	if err != nil {
		return nil, core.StorageError("count versions", err)
	}
	stats.LogicalBytes = logical.Int64
	stats.StoredBytes = stored.Int64

	if err := s.groupCount(ctx, "version_type", where, args, func(k string, n int) {
		stats.ByVersionType[core.VersionType(k)] = n
	}); err != nil {
		return nil, err
	}
	if err := s.groupCount(ctx, "status", where, args, func(k string, n int) {
		stats.ByStatus[core.VersionStatus(k)] = n
	}); err != nil {
		return nil, err
	}
	if err := s.groupCount(ctx, "entity_type", where, args, func(k string, n int) {
		stats.ByEntityType[core.EntityType(k)] = n
	}); err != nil {
		return nil, err
	}

	recentArgs := append(append([]any{}, args...), toNanos(filter.RecentSince))
	err = s.queryRow(ctx, `SELECT COUNT(*) FROM entity_versions WHERE `+where+` AND created_at >= ?`, recentArgs...).
		Scan(&stats.RecentVersions)
	if err != nil {
		return nil, core.StorageError("count recent versions", err)
	}

	// Tags and branches are scoped through their owning entity.
	err = s.queryRow(ctx, `SELECT COUNT(*) FROM version_tags t JOIN entity_versions v ON v.id = t.version_id
		WHERE `+qualify("v", filter), scopeArgs(filter)...).Scan(&stats.TotalTags)
	if err != nil {
		return nil, core.StorageError("count tags", err)
	}
	err = s.queryRow(ctx, `SELECT COUNT(*) FROM version_branches v WHERE `+qualify("v", filter), scopeArgs(filter)...).
		Scan(&stats.TotalBranches)
	if err != nil {
		return nil, core.StorageError("count branches", err)
	}

	return stats, nil
}

func (s *SQLStore) groupCount(ctx context.Context, column, where string, args []any, fn func(key string, n int)) error {
	rows, err := s.query(ctx, `SELECT `+column+`, COUNT(*) FROM entity_versions WHERE `+where+` GROUP BY `+column, args...)
	if err != nil {
		return core.StorageError("group versions by "+column, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return core.StorageError("group versions by "+column, err)
		}
		fn(key, n)
	}
	if err := rows.Err(); err != nil {
		return core.StorageError("group versions by "+column, err)
	}
	return nil
}

func qualify(alias string, f core.StatisticsFilter) string {
	where := "1 = 1"
	if f.TenantID != "" {
		where += " AND " + alias + ".tenant_id = ?"
	}
	if f.EntityType != "" {
		where += " AND " + alias + ".entity_type = ?"
	}
	return where
}

func scopeArgs(f core.StatisticsFilter) []any {
	var args []any
	if f.TenantID != "" {
		args = append(args, f.TenantID)
	}
	if f.EntityType != "" {
		args = append(args, string(f.EntityType))
	}
	return args
}
