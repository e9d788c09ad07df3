package core

import (
	"fmt"
	"strings"
	"time"
)

// VersionType describes how a version stores its data.
type VersionType string

// Version storage types.
const (
	// VersionTypeFull stores the complete snapshot in VersionData.
	VersionTypeFull VersionType = "FULL"
	// VersionTypeDelta stores only a Delta against ParentVersionID.
	VersionTypeDelta VersionType = "DELTA"
	// VersionTypeCheckpoint is a full snapshot written to bound delta chain length.
	VersionTypeCheckpoint VersionType = "CHECKPOINT"
)

// IsSnapshot reports whether versions of this type carry complete data.
func (t VersionType) IsSnapshot() bool {
	return t == VersionTypeFull || t == VersionTypeCheckpoint
}

// ParseVersionType converts a string to a VersionType (case-insensitive).
func ParseVersionType(s string) (VersionType, error) {
	switch VersionType(strings.ToUpper(s)) {
	case VersionTypeFull:
		return VersionTypeFull, nil
	case VersionTypeDelta:
		return VersionTypeDelta, nil
	case VersionTypeCheckpoint:
		return VersionTypeCheckpoint, nil
	default:
		return "", fmt.Errorf("%w: unknown version type %q", ErrValidation, s)
	}
}

// VersionStatus is the lifecycle state of a version.
type VersionStatus string

// Version statuses. ACTIVE -> ARCHIVED is the only transition the engine performs.
const (
	VersionStatusActive   VersionStatus = "ACTIVE"
	VersionStatusArchived VersionStatus = "ARCHIVED"
	VersionStatusDeleted  VersionStatus = "DELETED"
	VersionStatusPending  VersionStatus = "PENDING"
)

// ParseVersionStatus converts a string to a VersionStatus (case-insensitive).
func ParseVersionStatus(s string) (VersionStatus, error) {
	switch VersionStatus(strings.ToUpper(s)) {
	case VersionStatusActive:
		return VersionStatusActive, nil
	case VersionStatusArchived:
		return VersionStatusArchived, nil
	case VersionStatusDeleted:
		return VersionStatusDeleted, nil
	case VersionStatusPending:
		return VersionStatusPending, nil
	default:
		return "", fmt.Errorf("%w: unknown version status %q", ErrValidation, s)
	}
}

// Change is the old/new pair recorded for a modified key.
type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Delta is the structural difference between two flat records.
type Delta struct {
	// Added holds keys present only in the newer record, with their new values.
	Added map[string]any `json:"added,omitempty"`
	// Removed holds keys present only in the older record, with their old values.
	Removed map[string]any `json:"removed,omitempty"`
	// Modified holds keys present in both records whose values differ.
	Modified map[string]Change `json:"modified,omitempty"`
}

// IsEmpty reports whether the delta records no change.
func (d Delta) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// ToMap converts the delta to a plain map.
func (d Delta) ToMap() map[string]any {
	modified := make(map[string]any, len(d.Modified))
	for k, c := range d.Modified {
		modified[k] = map[string]any{"old": c.Old, "new": c.New}
	}
	added := d.Added
	if added == nil {
		added = map[string]any{}
	}
	removed := d.Removed
	if removed == nil {
		removed = map[string]any{}
	}
	return map[string]any{
		"added":    added,
		"removed":  removed,
		"modified": modified,
	}
}

// Version is a point-in-time snapshot of one entity on one branch.
type Version struct {
	ID              string
	EntityType      EntityType
	EntityID        string
	VersionNumber   int
	VersionType     VersionType
	Status          VersionStatus
	ParentVersionID *string
	BranchID        string // empty for the trunk
	VersionData     map[string]any
	DeltaData       *Delta
	Checksum        string
	Size            int
	Comment         string
	Metadata        map[string]any
	TenantID        string
	CreatedBy       string
	CreatedAt       time.Time
}

// Ref returns the entity the version belongs to.
func (v *Version) Ref() EntityRef {
	return EntityRef{Type: v.EntityType, ID: v.EntityID}
}

// Key returns the numbering key (tenant, entity, branch) of the version.
func (v *Version) Key() VersionKey {
	return VersionKey{TenantID: v.TenantID, Ref: v.Ref(), BranchID: v.BranchID}
}

// ToMap converts the version to a plain map for transport.
func (v *Version) ToMap() map[string]any {
	m := map[string]any{
		"id":             v.ID,
		"entity_type":    string(v.EntityType),
		"entity_id":      v.EntityID,
		"version_number": v.VersionNumber,
		"version_type":   string(v.VersionType),
		"status":         string(v.Status),
		"branch_id":      v.BranchID,
		"checksum":       v.Checksum,
		"size":           v.Size,
		"comment":        v.Comment,
		"tenant_id":      v.TenantID,
		"created_by":     v.CreatedBy,
		"created_at":     v.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if v.ParentVersionID != nil {
		m["parent_version_id"] = *v.ParentVersionID
	}
	if v.VersionData != nil {
		m["version_data"] = v.VersionData
	}
	if v.DeltaData != nil {
		m["delta_data"] = v.DeltaData.ToMap()
	}
	if len(v.Metadata) > 0 {
		m["metadata"] = v.Metadata
	}
	return m
}

// VersionKey identifies one version sequence: numbers are unique within a key.
type VersionKey struct {
	TenantID string
	Ref      EntityRef
	BranchID string
}

// String renders the key for lock maps and log lines.
func (k VersionKey) String() string {
	return k.TenantID + "/" + k.Ref.Key() + "@" + k.BranchID
}

// Branch is a named parallel history for one entity.
type Branch struct {
	ID            string
	EntityType    EntityType
	EntityID      string
	Name          string
	Description   string
	BaseVersionID *string
	IsDefault     bool
	IsMerged      bool
	TenantID      string
	CreatedBy     string
	CreatedAt     time.Time
}

// ToMap converts the branch to a plain map for transport.
func (b *Branch) ToMap() map[string]any {
	m := map[string]any{
		"id":          b.ID,
		"entity_type": string(b.EntityType),
		"entity_id":   b.EntityID,
		"name":        b.Name,
		"description": b.Description,
		"is_default":  b.IsDefault,
		"is_merged":   b.IsMerged,
		"tenant_id":   b.TenantID,
		"created_by":  b.CreatedBy,
		"created_at":  b.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if b.BaseVersionID != nil {
		m["base_version_id"] = *b.BaseVersionID
	}
	return m
}

// Tag is a named pointer to exactly one version.
type Tag struct {
	ID          string
	VersionID   string
	TagName     string
	Description string
	TenantID    string
	CreatedBy   string
	CreatedAt   time.Time
}

// ToMap converts the tag to a plain map for transport.
func (t *Tag) ToMap() map[string]any {
	return map[string]any{
		"id":          t.ID,
		"version_id":  t.VersionID,
		"tag_name":    t.TagName,
		"description": t.Description,
		"tenant_id":   t.TenantID,
		"created_by":  t.CreatedBy,
		"created_at":  t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
