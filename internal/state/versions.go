package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/leapgov/pkg/core"
)

const versionColumns = `id, entity_type, entity_id, version_number, version_type, status,
	parent_version_id, branch_id, version_data, delta_data, checksum, size, comment,
	metadata, tenant_id, created_by, created_at`

// prefixed qualifies every column in versionColumns with alias.
func prefixed(alias string) string {
	cols := strings.Split(versionColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

// InsertVersion inserts an immutable version row.
func (s *SQLStore) InsertVersion(ctx context.Context, v *core.Version) error {
	if v.ID == "" {
		v.ID = generateID()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	data, err := encodeJSON(v.VersionData)
	if err != nil {
		return fmt.Errorf("version %s: %w", v.ID, err)
	}
	var delta sql.NullString
	if v.DeltaData != nil {
		if delta, err = encodeJSON(v.DeltaData); err != nil {
			return fmt.Errorf("version %s: %w", v.ID, err)
		}
	}
	meta, err := encodeJSON(v.Metadata)
	if err != nil {
		return fmt.Errorf("version %s: %w", v.ID, err)
	}

	_, err = s.exec(ctx,
		`INSERT INTO entity_versions (`+versionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, string(v.EntityType), v.EntityID, v.VersionNumber, string(v.VersionType), string(v.Status),
		nullString(v.ParentVersionID), v.BranchID, data, delta, v.Checksum, v.Size, v.Comment,
		meta, v.TenantID, v.CreatedBy, toNanos(v.CreatedAt),
	)
	if err != nil {
		return writeError("insert version", err)
	}
	return nil
}

// GetVersion retrieves a version by id. Returns nil, nil when absent.
func (s *SQLStore) GetVersion(ctx context.Context, tenantID, id string) (*core.Version, error) {
	query := `SELECT ` + versionColumns + ` FROM entity_versions WHERE id = ?`
	args := []any{id}
	if tenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, tenantID)
	}
	return s.getVersion(ctx, "get version", query, args...)
}

// GetVersionByNumber retrieves a version by its number within key.
func (s *SQLStore) GetVersionByNumber(ctx context.Context, key core.VersionKey, number int) (*core.Version, error) {
	where, args := keyClause(key)
	query := `SELECT ` + versionColumns + ` FROM entity_versions WHERE ` + where + ` AND version_number = ?`
	return s.getVersion(ctx, "get version by number", query, append(args, number)...)
}

// GetLatestVersion returns the highest-numbered version of key, optionally
// restricted to statuses.
func (s *SQLStore) GetLatestVersion(ctx context.Context, key core.VersionKey, statuses ...core.VersionStatus) (*core.Version, error) {
	where, args := keyClause(key)
	query := `SELECT ` + versionColumns + ` FROM entity_versions WHERE ` + where
	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY version_number DESC LIMIT 1`
	return s.getVersion(ctx, "get latest version", query, args...)
}

// MaxVersionNumber returns the highest number used by key in any status, or 0.
func (s *SQLStore) MaxVersionNumber(ctx context.Context, key core.VersionKey) (int, error) {
	where, args := keyClause(key)
	var maxNum sql.NullInt64
	err := s.queryRow(ctx, `SELECT MAX(version_number) FROM entity_versions WHERE `+where, args...).Scan(&maxNum)
	if err != nil {
		return 0, core.StorageError("max version number", err)
	}
	return int(maxNum.Int64), nil
}

// GetVersionAtTime returns the ACTIVE version of key with the greatest
// created_at not after at.
func (s *SQLStore) GetVersionAtTime(ctx context.Context, key core.VersionKey, at time.Time) (*core.Version, error) {
	where, args := keyClause(key)
	query := `SELECT ` + versionColumns + ` FROM entity_versions
		WHERE ` + where + ` AND status = ? AND created_at <= ?
		ORDER BY created_at DESC, version_number DESC LIMIT 1`
	args = append(args, string(core.VersionStatusActive), toNanos(at))
	return s.getVersion(ctx, "get version at time", query, args...)
}

// ListVersions returns one page of matching versions newest first, plus the
// total number of matches.
func (s *SQLStore) ListVersions(ctx context.Context, filter core.VersionFilter) ([]*core.Version, int, error) {
	where, args := versionFilterClause(filter)

	var total int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM entity_versions WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, core.StorageError("count versions", err)
	}

	query := `SELECT ` + versionColumns + ` FROM entity_versions WHERE ` + where +
		` ORDER BY created_at DESC, version_number DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, max(filter.Offset, 0))
	} else if filter.Offset > 0 {
		// LIMIT -1 is SQLite-only; ALL is PostgreSQL-only.
		if s.driver == DriverPostgres {
			query += ` LIMIT ALL OFFSET ?`
		} else {
			query += ` LIMIT -1 OFFSET ?`
		}
		args = append(args, filter.Offset)
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, 0, core.StorageError("list versions", err)
	}
	defer func() { _ = rows.Close() }()

	var versions []*core.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, 0, err
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, core.StorageError("list versions", err)
	}
	return versions, total, nil
}

// UpdateVersionStatus moves a version from one status to another. It reports
// false when the version does not exist or is not in status from.
func (s *SQLStore) UpdateVersionStatus(ctx context.Context, tenantID, id string, from, to core.VersionStatus) (bool, error) {
	query := `UPDATE entity_versions SET status = ? WHERE id = ? AND status = ?`
	args := []any{string(to), id, string(from)}
	if tenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, tenantID)
	}

	result, err := s.exec(ctx, query, args...)
	if err != nil {
		return false, core.StorageError("update version status", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, core.StorageError("update version status", err)
	}
	return n > 0, nil
}

func (s *SQLStore) getVersion(ctx context.Context, op, query string, args ...any) (*core.Version, error) {
	v, err := scanVersion(s.queryRow(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, core.StorageError(op, err)
	}
	return v, nil
}

// keyClause builds the WHERE fragment selecting one version sequence. The
// columns match the unique constraint, so an empty tenant selects only the
// unscoped sequence.
func keyClause(key core.VersionKey) (string, []any) {
	where := `entity_type = ? AND entity_id = ? AND branch_id = ? AND tenant_id = ?`
	args := []any{string(key.Ref.Type), key.Ref.ID, key.BranchID, key.TenantID}
	return where, args
}

func versionFilterClause(f core.VersionFilter) (string, []any) {
	clauses := []string{"1 = 1"}
	var args []any

	if f.TenantID != "" {
		clauses = append(clauses, "tenant_id = ?")
		args = append(args, f.TenantID)
	}
	if f.EntityType != "" {
		clauses = append(clauses, "entity_type = ?")
		args = append(args, string(f.EntityType))
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id = ?")
		args = append(args, f.EntityID)
	}
	if f.BranchID != nil {
		clauses = append(clauses, "branch_id = ?")
		args = append(args, *f.BranchID)
	}
	if f.CreatedBy != "" {
		clauses = append(clauses, "created_by = ?")
		args = append(args, f.CreatedBy)
	}
	if f.CreatedFrom != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, toNanos(*f.CreatedFrom))
	}
	if f.CreatedTo != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, toNanos(*f.CreatedTo))
	}
	if f.CommentContains != "" {
		clauses = append(clauses, "LOWER(comment) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.CommentContains)+"%")
	}
	if len(f.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, st := range f.Statuses {
			args = append(args, string(st))
		}
	}

	return strings.Join(clauses, " AND "), args
}

func scanVersion(row rowScanner) (*core.Version, error) {
	var (
		v                 core.Version
		entityType, vType string
		status            string
		parentID          sql.NullString
		data, delta, meta sql.NullString
		createdAt         int64
	)

	err := row.Scan(&v.ID, &entityType, &v.EntityID, &v.VersionNumber, &vType, &status,
		&parentID, &v.BranchID, &data, &delta, &v.Checksum, &v.Size, &v.Comment,
		&meta, &v.TenantID, &v.CreatedBy, &createdAt)
	if err != nil {
		return nil, err
	}

	v.EntityType = core.EntityType(entityType)
	v.VersionType = core.VersionType(vType)
	v.Status = core.VersionStatus(status)
	v.ParentVersionID = stringPtr(parentID)
	v.CreatedAt = fromNanos(createdAt)

	if data.Valid {
		v.VersionData = map[string]any{}
		if err := decodeJSON(data, &v.VersionData); err != nil {
			return nil, fmt.Errorf("version %s data: %w", v.ID, err)
		}
	}
	if delta.Valid {
		v.DeltaData = &core.Delta{}
		if err := decodeJSON(delta, v.DeltaData); err != nil {
			return nil, fmt.Errorf("version %s delta: %w", v.ID, err)
		}
	}
	if err := decodeJSON(meta, &v.Metadata); err != nil {
		return nil, fmt.Errorf("version %s metadata: %w", v.ID, err)
	}

	return &v, nil
}
