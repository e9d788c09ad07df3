package state

import (
	"context"
	"time"

	"github.com/leapstack-labs/leapgov/pkg/core"
)

// InsertTag inserts a tag. A duplicate (version_id, tag_name) is a conflict.
func (s *SQLStore) InsertTag(ctx context.Context, tag *core.Tag) error {
	if tag.ID == "" {
		tag.ID = generateID()
	}
	if tag.CreatedAt.IsZero() {
		tag.CreatedAt = time.Now().UTC()
	}

	_, err := s.exec(ctx,
		`INSERT INTO version_tags (id, version_id, tag_name, description, tenant_id, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tag.ID, tag.VersionID, tag.TagName, tag.Description, tag.TenantID, tag.CreatedBy, toNanos(tag.CreatedAt),
	)
	if err != nil {
		return writeError("insert tag", err)
	}
	return nil
}

// ListTags returns the tags of a version oldest first.
func (s *SQLStore) ListTags(ctx context.Context, tenantID, versionID string) ([]*core.Tag, error) {
	query := `SELECT id, version_id, tag_name, description, tenant_id, created_by, created_at
		FROM version_tags WHERE version_id = ?`
	args := []any{versionID}
	if tenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, tenantID)
	}
	query += ` ORDER BY created_at, tag_name`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, core.StorageError("list tags", err)
	}
	defer func() { _ = rows.Close() }()

	var tags []*core.Tag
	for rows.Next() {
		var (
			t         core.Tag
			createdAt int64
		)
		if err := rows.Scan(&t.ID, &t.VersionID, &t.TagName, &t.Description, &t.TenantID, &t.CreatedBy, &createdAt); err != nil {
			return nil, core.StorageError("scan tag", err)
		}
		t.CreatedAt = fromNanos(createdAt)
		tags = append(tags, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, core.StorageError("list tags", err)
	}
	return tags, nil
}

// GetVersionByTag returns the highest-numbered version of ref carrying
// tagName, or nil.
func (s *SQLStore) GetVersionByTag(ctx context.Context, tenantID string, ref core.EntityRef, tagName string) (*core.Version, error) {
	query := `SELECT ` + prefixed("v") + `
		FROM entity_versions v
		JOIN version_tags t ON t.version_id = v.id
		WHERE t.tag_name = ? AND v.entity_type = ? AND v.entity_id = ?`
	args := []any{tagName, string(ref.Type), ref.ID}
	if tenantID != "" {
		query += ` AND v.tenant_id = ?`
		args = append(args, tenantID)
	}
	query += ` ORDER BY v.version_number DESC, v.created_at DESC LIMIT 1`

	return s.getVersion(ctx, "get version by tag", query, args...)
}
