package state

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/leapstack-labs/leapgov/pkg/core"
)

const branchColumns = `id, entity_type, entity_id, name, description, base_version_id,
	is_default, is_merged, tenant_id, created_by, created_at`

// InsertBranch inserts a branch. A duplicate name for the entity is a conflict.
func (s *SQLStore) InsertBranch(ctx context.Context, b *core.Branch) error {
	if b.ID == "" {
		b.ID = generateID()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	_, err := s.exec(ctx,
		`INSERT INTO version_branches (`+branchColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, string(b.EntityType), b.EntityID, b.Name, b.Description, nullString(b.BaseVersionID),
		b.IsDefault, b.IsMerged, b.TenantID, b.CreatedBy, toNanos(b.CreatedAt),
	)
	if err != nil {
		return writeError("insert branch", err)
	}
	return nil
}

// GetBranch retrieves a branch by id. Returns nil, nil when absent.
func (s *SQLStore) GetBranch(ctx context.Context, tenantID, id string) (*core.Branch, error) {
	query := `SELECT ` + branchColumns + ` FROM version_branches WHERE id = ?`
	args := []any{id}
	if tenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, tenantID)
	}

	b, err := scanBranch(s.queryRow(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, core.StorageError("get branch", err)
	}
	return b, nil
}

// ListBranches returns the branches of an entity oldest first.
func (s *SQLStore) ListBranches(ctx context.Context, tenantID string, ref core.EntityRef) ([]*core.Branch, error) {
	query := `SELECT ` + branchColumns + ` FROM version_branches WHERE entity_type = ? AND entity_id = ?`
	args := []any{string(ref.Type), ref.ID}
	if tenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, tenantID)
	}
	query += ` ORDER BY created_at, name`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, core.StorageError("list branches", err)
	}
	defer func() { _ = rows.Close() }()

	var branches []*core.Branch
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, core.StorageError("scan branch", err)
		}
		branches = append(branches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, core.StorageError("list branches", err)
	}
	return branches, nil
}

// ClearDefaultBranch unsets is_default on every branch of ref.
func (s *SQLStore) ClearDefaultBranch(ctx context.Context, tenantID string, ref core.EntityRef) error {
	query := `UPDATE version_branches SET is_default = ? WHERE entity_type = ? AND entity_id = ? AND is_default = ?`
	args := []any{false, string(ref.Type), ref.ID, true}
	if tenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, tenantID)
	}

	if _, err := s.exec(ctx, query, args...); err != nil {
		return core.StorageError("clear default branch", err)
	}
	return nil
}

// MarkBranchMerged sets is_merged. It reports false when the branch does not
// exist or was already merged.
func (s *SQLStore) MarkBranchMerged(ctx context.Context, tenantID, id string) (bool, error) {
	query := `UPDATE version_branches SET is_merged = ? WHERE id = ? AND is_merged = ?`
	args := []any{true, id, false}
	if tenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, tenantID)
	}

	result, err := s.exec(ctx, query, args...)
	if err != nil {
		return false, core.StorageError("mark branch merged", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, core.StorageError("mark branch merged", err)
	}
	return n > 0, nil
}

func scanBranch(row rowScanner) (*core.Branch, error) {
	var (
		b          core.Branch
		entityType string
		baseID     sql.NullString
		createdAt  int64
	)
	err := row.Scan(&b.ID, &entityType, &b.EntityID, &b.Name, &b.Description, &baseID,
		&b.IsDefault, &b.IsMerged, &b.TenantID, &b.CreatedBy, &createdAt)
	if err != nil {
		return nil, err
	}
	b.EntityType = core.EntityType(entityType)
	b.BaseVersionID = stringPtr(baseID)
	b.CreatedAt = fromNanos(createdAt)
	return &b, nil
}
