package repositories

import (
	"context"

	"github.com/asakaida/attrgate/internal/entities"
)

// AttributeDefinitionRepository defines the interface for schema data access
type AttributeDefinitionRepository interface {
	// ListByEntityType returns the definitions of an entity type in schema order.
	// An unknown entity type yields an empty slice and no error.
	ListByEntityType(ctx context.Context, entityType string) ([]*entities.AttributeDefinition, error)

	// Replace atomically replaces the full schema of an entity type
	Replace(ctx context.Context, entityType string, defs []*entities.AttributeDefinition) error

	// ListEntityTypes returns every entity type that has at least one definition
	ListEntityTypes(ctx context.Context) ([]string, error)
}
