package services

import (
	"context"
	"fmt"

	"github.com/asakaida/attrgate/internal/entities"
	apperrors "github.com/asakaida/attrgate/internal/errors"
	"github.com/asakaida/attrgate/internal/repositories"
	"github.com/asakaida/attrgate/internal/services/guard"
)

// SchemaRegistry resolves an entity type to its ordered attribute set
type SchemaRegistry interface {
	Describe(ctx context.Context, entityType string) (*entities.AttributeSet, error)
}

// SchemaService is the schema registry backed by the definition repository.
// It reads the store on every call.
type SchemaService struct {
	repo   repositories.AttributeDefinitionRepository
	guards *guard.Engine
}

var _ SchemaRegistry = (*SchemaService)(nil)

// NewSchemaService creates a new SchemaService
func NewSchemaService(repo repositories.AttributeDefinitionRepository, guards *guard.Engine) *SchemaService {
	return &SchemaService{
		repo:   repo,
		guards: guards,
	}
}

// Describe returns the attribute set of an entity type in schema order
func (s *SchemaService) Describe(ctx context.Context, entityType string) (*entities.AttributeSet, error) {
	if entityType == "" {
		return nil, apperrors.NewValidationError("entityType", "is required")
	}

	defs, err := s.repo.ListByEntityType(ctx, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to get schema: %w", err)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("entity type %q: %w", entityType, apperrors.ErrSchemaNotFound)
	}

	return &entities.AttributeSet{EntityType: entityType, Definitions: defs}, nil
}

// ReplaceSchema validates defs and stores them as the full schema of entityType
func (s *SchemaService) ReplaceSchema(ctx context.Context, entityType string, defs []*entities.AttributeDefinition) error {
	if entityType == "" {
		return apperrors.NewValidationError("entityType", "is required")
	}
	if len(defs) == 0 {
		return apperrors.NewValidationError("definitions", "at least one attribute is required")
	}

	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return apperrors.NewValidationError("definitions", err.Error())
		}
		if d.WriteGuard != "" {
			if err := s.guards.Validate(d.WriteGuard); err != nil {
				return apperrors.NewValidationError(d.ID, err.Error())
			}
		}
	}

	set := &entities.AttributeSet{EntityType: entityType, Definitions: defs}
	if dups := set.Duplicates(); len(dups) > 0 {
		_, err := set.Lookup(dups[0])
		return err
	}

	if err := s.repo.Replace(ctx, entityType, defs); err != nil {
		return fmt.Errorf("failed to replace schema: %w", err)
	}

	return nil
}

// EntityTypes lists the entity types that have a schema
func (s *SchemaService) EntityTypes(ctx context.Context) ([]string, error) {
	types, err := s.repo.ListEntityTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list entity types: %w", err)
	}
	return types, nil
}
