package core

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// RelationshipType classifies a lineage edge.
type RelationshipType string

// Relationship types accepted on write.
const (
	RelationshipDerivedFrom    RelationshipType = "derived_from"
	RelationshipTransformedTo  RelationshipType = "transformed_to"
	RelationshipCopiedFrom     RelationshipType = "copied_from"
	RelationshipAggregatedFrom RelationshipType = "aggregated_from"
	RelationshipFilteredFrom   RelationshipType = "filtered_from"
	RelationshipJoinedFrom     RelationshipType = "joined_from"
	RelationshipEnrichedBy     RelationshipType = "enriched_by"

	// RelationshipUnknown is what readers map unrecognised stored values to,
	// so rows written by newer software still load. It is never accepted on write.
	RelationshipUnknown RelationshipType = "unknown"
)

var knownRelationships = []RelationshipType{
	RelationshipDerivedFrom,
	RelationshipTransformedTo,
	RelationshipCopiedFrom,
	RelationshipAggregatedFrom,
	RelationshipFilteredFrom,
	RelationshipJoinedFrom,
	RelationshipEnrichedBy,
}

// RelationshipTypes returns the relationship types accepted on write.
func RelationshipTypes() []RelationshipType {
	return slices.Clone(knownRelationships)
}

// IsKnown reports whether the type is one of the closed set.
func (r RelationshipType) IsKnown() bool {
	return slices.Contains(knownRelationships, r)
}

// ParseRelationshipType validates a relationship type for writing.
func ParseRelationshipType(s string) (RelationshipType, error) {
	r := RelationshipType(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsKnown() {
		return "", fmt.Errorf("%w: unknown relationship type %q", ErrValidation, s)
	}
	return r, nil
}

// RelationshipFromStorage maps a stored value to a RelationshipType, falling
// back to RelationshipUnknown.
func RelationshipFromStorage(s string) RelationshipType {
	r := RelationshipType(s)
	if r.IsKnown() {
		return r
	}
	return RelationshipUnknown
}

// Direction selects which edges of an entity a lineage query follows.
type Direction string

// Lineage directions.
const (
	DirectionUpstream   Direction = "upstream"
	DirectionDownstream Direction = "downstream"
	DirectionBoth       Direction = "both"
)

// ParseDirection validates a direction string.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(s)); d {
	case DirectionUpstream, DirectionDownstream, DirectionBoth:
		return d, nil
	case "":
		return DirectionBoth, nil
	default:
		return "", fmt.Errorf("%w: unknown direction %q", ErrValidation, s)
	}
}

// LineageRecord is one observed transformation from Source to Target.
type LineageRecord struct {
	ID                 string
	Source             EntityRef
	SourceVersionID    *string
	Target             EntityRef
	TargetVersionID    *string
	RelationshipType   RelationshipType
	SourceColumns      []string
	TargetColumns      []string
	TransformationInfo map[string]any
	TenantID           string
	CreatedBy          string
	CreatedAt          time.Time
}

// HasColumn reports whether column appears in either column list.
func (r *LineageRecord) HasColumn(column string) bool {
	return slices.Contains(r.SourceColumns, column) || slices.Contains(r.TargetColumns, column)
}

// ToMap converts the record to a plain map for transport.
func (r *LineageRecord) ToMap() map[string]any {
	m := map[string]any{
		"id":                r.ID,
		"source":            r.Source.ToMap(),
		"target":            r.Target.ToMap(),
		"relationship_type": string(r.RelationshipType),
		"tenant_id":         r.TenantID,
		"created_by":        r.CreatedBy,
		"created_at":        r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if r.SourceVersionID != nil {
		m["source_version_id"] = *r.SourceVersionID
	}
	if r.TargetVersionID != nil {
		m["target_version_id"] = *r.TargetVersionID
	}
	if len(r.SourceColumns) > 0 {
		m["source_columns"] = r.SourceColumns
	}
	if len(r.TargetColumns) > 0 {
		m["target_columns"] = r.TargetColumns
	}
	if len(r.TransformationInfo) > 0 {
		m["transformation_info"] = r.TransformationInfo
	}
	return m
}
