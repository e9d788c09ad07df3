package state

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/leapstack-labs/leapgov/pkg/core"
)

const lineageColumns = `id, source_type, source_id, source_version_id, target_type, target_id,
	target_version_id, relationship_type, source_columns, target_columns, transformation_info,
	tenant_id, created_by, created_at`

// InsertLineage appends a lineage record.
func (s *SQLStore) InsertLineage(ctx context.Context, r *core.LineageRecord) error {
	if r.ID == "" {
		r.ID = generateID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	srcCols, err := encodeJSON(r.SourceColumns)
	if err != nil {
		return fmt.Errorf("lineage %s: %w", r.ID, err)
	}
	tgtCols, err := encodeJSON(r.TargetColumns)
	if err != nil {
		return fmt.Errorf("lineage %s: %w", r.ID, err)
	}
	info, err := encodeJSON(r.TransformationInfo)
	if err != nil {
		return fmt.Errorf("lineage %s: %w", r.ID, err)
	}

	_, err = s.exec(ctx,
		`INSERT INTO lineage_records (`+lineageColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Source.Type), r.Source.ID, nullString(r.SourceVersionID),
		string(r.Target.Type), r.Target.ID, nullString(r.TargetVersionID),
		string(r.RelationshipType), srcCols, tgtCols, info,
		r.TenantID, r.CreatedBy, toNanos(r.CreatedAt),
	)
	if err != nil {
		return writeError("insert lineage", err)
	}
	return nil
}

// ListLineage returns matching records oldest first.
func (s *SQLStore) ListLineage(ctx context.Context, filter core.LineageFilter) ([]*core.LineageRecord, error) {
	where, args := lineageFilterClause(filter)
	order := ` ORDER BY created_at, id`
	if filter.Newest {
		order = ` ORDER BY created_at DESC, id DESC`
	}
	query := `SELECT ` + lineageColumns + ` FROM lineage_records WHERE ` + where + order
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, core.StorageError("list lineage", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*core.LineageRecord
	for rows.Next() {
		r, err := scanLineage(rows)
		if err != nil {
			return nil, core.StorageError("scan lineage", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, core.StorageError("list lineage", err)
	}
	if filter.Newest {
		slices.Reverse(records)
	}
	return records, nil
}

func lineageFilterClause(f core.LineageFilter) (string, []any) {
	clauses := []string{"1 = 1"}
	var args []any

	if f.TenantID != "" {
		clauses = append(clauses, "tenant_id = ?")
		args = append(args, f.TenantID)
	}
	if f.Source != nil {
		clauses = append(clauses, "source_type = ? AND source_id = ?")
		args = append(args, string(f.Source.Type), f.Source.ID)
	}
	if f.Target != nil {
		clauses = append(clauses, "target_type = ? AND target_id = ?")
		args = append(args, string(f.Target.Type), f.Target.ID)
	}
	if len(f.RelationshipTypes) > 0 {
		clauses = append(clauses, "relationship_type IN ("+placeholders(len(f.RelationshipTypes))+")")
		for _, rt := range f.RelationshipTypes {
			args = append(args, string(rt))
		}
	}
	if n := len(f.EntityTypes); n > 0 {
		clauses = append(clauses, "(source_type IN ("+placeholders(n)+") OR target_type IN ("+placeholders(n)+"))")
		for range 2 {
			for _, et := range f.EntityTypes {
				args = append(args, string(et))
			}
		}
	}

	return strings.Join(clauses, " AND "), args
}

func scanLineage(row rowScanner) (*core.LineageRecord, error) {
	var (
		r                      core.LineageRecord
		srcType, tgtType, rel  string
		srcVer, tgtVer         sql.NullString
		srcCols, tgtCols, info sql.NullString
		createdAt              int64
	)
	err := row.Scan(&r.ID, &srcType, &r.Source.ID, &srcVer, &tgtType, &r.Target.ID, &tgtVer,
		&rel, &srcCols, &tgtCols, &info, &r.TenantID, &r.CreatedBy, &createdAt)
	if err != nil {
		return nil, err
	}

	r.Source.Type = core.EntityType(srcType)
	r.Target.Type = core.EntityType(tgtType)
	r.SourceVersionID = stringPtr(srcVer)
	r.TargetVersionID = stringPtr(tgtVer)
	r.RelationshipType = core.RelationshipFromStorage(rel)
	r.CreatedAt = fromNanos(createdAt)

	if err := decodeJSON(srcCols, &r.SourceColumns); err != nil {
		return nil, err
	}
	if err := decodeJSON(tgtCols, &r.TargetColumns); err != nil {
		return nil, err
	}
	if err := decodeJSON(info, &r.TransformationInfo); err != nil {
		return nil, err
	}
	return &r, nil
}
