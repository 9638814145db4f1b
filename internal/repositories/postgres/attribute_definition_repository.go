package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/asakaida/attrgate/internal/entities"
	"github.com/asakaida/attrgate/internal/repositories"
)

// PostgresAttributeDefinitionRepository implements AttributeDefinitionRepository using PostgreSQL
type PostgresAttributeDefinitionRepository struct {
	db *sql.DB
}

// NewPostgresAttributeDefinitionRepository creates a new PostgreSQL attribute definition repository
func NewPostgresAttributeDefinitionRepository(db *sql.DB) repositories.AttributeDefinitionRepository {
	return &PostgresAttributeDefinitionRepository{db: db}
}

// ListByEntityType retrieves the definitions of an entity type in schema order
func (r *PostgresAttributeDefinitionRepository) ListByEntityType(ctx context.Context, entityType string) ([]*entities.AttributeDefinition, error) {
	query := `
		SELECT attribute_id, attribute_group, write_guard
		FROM attribute_definitions
		WHERE entity_type = $1
		ORDER BY position ASC
	`
	rows, err := r.db.QueryContext(ctx, query, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to list attribute definitions: %w", err)
	}
	defer rows.Close()

	defs := make([]*entities.AttributeDefinition, 0)
	for rows.Next() {
		var (
			id, group string
			guard     sql.NullString
		)
		if err := rows.Scan(&id, &group, &guard); err != nil {
			return nil, fmt.Errorf("failed to scan attribute definition: %w", err)
		}

		g, err := entities.ParseAttributeGroup(group)
		if err != nil {
			return nil, fmt.Errorf("attribute %q of %q: %w", id, entityType, err)
		}

		defs = append(defs, &entities.AttributeDefinition{
			ID:         id,
			Group:      g,
			WriteGuard: guard.String,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attribute definitions: %w", err)
	}

	return defs, nil
}

// Replace deletes the current schema of an entity type and inserts defs in order
func (r *PostgresAttributeDefinitionRepository) Replace(ctx context.Context, entityType string, defs []*entities.AttributeDefinition) error {
	set := &entities.AttributeSet{EntityType: entityType, Definitions: defs}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("invalid definition for %q: %w", entityType, err)
		}
	}
	if dups := set.Duplicates(); len(dups) > 0 {
		_, err := set.Lookup(dups[0])
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM attribute_definitions WHERE entity_type = $1`, entityType); err != nil {
		return fmt.Errorf("failed to delete attribute definitions: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO attribute_definitions (entity_type, position, attribute_id, attribute_group, write_guard, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for i, d := range defs {
		var guard interface{}
		if d.WriteGuard != "" {
			guard = d.WriteGuard
		}
		if _, err := stmt.ExecContext(ctx, entityType, i, d.ID, d.Group.String(), guard, now); err != nil {
			return fmt.Errorf("failed to insert attribute definition %q: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListEntityTypes returns every entity type with at least one definition
func (r *PostgresAttributeDefinitionRepository) ListEntityTypes(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT entity_type FROM attribute_definitions ORDER BY entity_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to list entity types: %w", err)
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan entity type: %w", err)
		}
		types = append(types, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entity types: %w", err)
	}

	return types, nil
}
