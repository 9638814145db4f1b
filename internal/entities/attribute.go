package entities

import (
	"fmt"
	"strings"

	apperrors "github.com/asakaida/attrgate/internal/errors"
)

// AttributeGroup says which storage surface of an entity holds an attribute
type AttributeGroup int

const (
	// AttributeGroupUnknown is the zero value and never valid in a schema
	AttributeGroupUnknown AttributeGroup = iota
	// AttributeGroupSystem attributes are fixed, schema-defined fields
	AttributeGroupSystem
	// AttributeGroupCustom attributes live in the open name->value mapping
	AttributeGroupCustom
)

// String returns the wire name of the group ("System" or "Custom")
func (g AttributeGroup) String() string {
	switch g {
	case AttributeGroupSystem:
		return "System"
	case AttributeGroupCustom:
		return "Custom"
	default:
		return "Unknown"
	}
}

// ParseAttributeGroup parses a group name, case-insensitively
func ParseAttributeGroup(s string) (AttributeGroup, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "system":
		return AttributeGroupSystem, nil
	case "custom":
		return AttributeGroupCustom, nil
	default:
		return AttributeGroupUnknown, fmt.Errorf("unknown attribute group: %q", s)
	}
}

// AttributeDefinition represents one attribute of an entity type's schema
// Example: Product.name (System) or Product.customColor (Custom)
type AttributeDefinition struct {
	ID         string         // Attribute ID, unique within the entity type
	Group      AttributeGroup // Storage surface
	WriteGuard string         // Optional CEL expression that must hold for a write to commit
}

// String returns a string representation of the definition
// Format: id (Group)
func (d *AttributeDefinition) String() string {
	return fmt.Sprintf("%s (%s)", d.ID, d.Group)
}

// Validate checks if the definition is valid
func (d *AttributeDefinition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("attribute ID is required")
	}
	if d.Group != AttributeGroupSystem && d.Group != AttributeGroupCustom {
		return fmt.Errorf("attribute %q has invalid group", d.ID)
	}
	return nil
}

// AttributeSet is the ordered schema of one entity type.
// Order is the schema source order and is preserved in describe output.
type AttributeSet struct {
	EntityType  string
	Definitions []*AttributeDefinition
}

// Len returns the number of definitions
func (s *AttributeSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Definitions)
}

// Lookup resolves an attribute ID to its definition.
// It returns a NotFoundError when no definition matches and a
// DuplicateAttributeError when more than one does.
func (s *AttributeSet) Lookup(id string) (*AttributeDefinition, error) {
	var found *AttributeDefinition
	count := 0
	if s != nil {
		for _, d := range s.Definitions {
			if d.ID == id {
				if found == nil {
					found = d
				}
				count++
			}
		}
	}

	switch count {
	case 0:
		return nil, apperrors.NewNotFoundError("attribute", id)
	case 1:
		return found, nil
	default:
		return nil, &apperrors.DuplicateAttributeError{EntityType: s.EntityType, Attribute: id, Count: count}
	}
}

// Duplicates returns the IDs defined more than once, in first-seen order
func (s *AttributeSet) Duplicates() []string {
	if s == nil {
		return nil
	}

	seen := make(map[string]int, len(s.Definitions))
	var dups []string
	for _, d := range s.Definitions {
		seen[d.ID]++
		if seen[d.ID] == 2 {
			dups = append(dups, d.ID)
		}
	}
	return dups
}
