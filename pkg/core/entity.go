package core

import (
	"fmt"
	"strings"
)

// EntityType names a kind of governed entity ("dataset", "report", "task").
// It is deliberately open: any non-empty string is a valid type.
type EntityType string

// String returns the entity type as a plain string.
func (t EntityType) String() string {
	return string(t)
}

// EntityRef identifies one entity by type and id.
type EntityRef struct {
	Type EntityType `json:"entity_type" yaml:"entity_type"`
	ID   string     `json:"entity_id" yaml:"entity_id"`
}

// NewEntityRef builds an EntityRef from plain strings.
func NewEntityRef(entityType, entityID string) EntityRef {
	return EntityRef{Type: EntityType(entityType), ID: entityID}
}

// Key returns the "type:id" key used for visited sets and graph node ids.
func (r EntityRef) Key() string {
	return string(r.Type) + ":" + r.ID
}

// String implements fmt.Stringer.
func (r EntityRef) String() string {
	return r.Key()
}

// IsZero reports whether the reference is missing either component.
func (r EntityRef) IsZero() bool {
	return r.Type == "" || r.ID == ""
}

// ParseEntityRef parses a "type:id" string. The id may itself contain colons.
func ParseEntityRef(s string) (EntityRef, error) {
	entityType, entityID, ok := strings.Cut(s, ":")
	if !ok || entityType == "" || entityID == "" {
		return EntityRef{}, fmt.Errorf("%w: entity reference %q must have the form type:id", ErrValidation, s)
	}
	return NewEntityRef(entityType, entityID), nil
}

// ToMap converts the reference to a plain map.
func (r EntityRef) ToMap() map[string]any {
	return map[string]any{
		"entity_type": string(r.Type),
		"entity_id":   r.ID,
	}
}
