package repositories

import (
	"context"

	"github.com/asakaida/attrgate/internal/entities"
)

// ProductRepository defines the interface for product data access
type ProductRepository interface {
	// GetByID loads a product with both attribute surfaces populated.
	// Returns a NotFoundError when the product does not exist.
	GetByID(ctx context.Context, productID string) (*entities.Product, error)

	// LockForUpdate loads a product and holds it against concurrent writers
	// until the surrounding transaction ends
	LockForUpdate(ctx context.Context, productID string) (*entities.Product, error)

	// SetSystemAttribute writes one fixed system field.
	// Returns ErrReadOnly for fields the store does not allow writing.
	SetSystemAttribute(ctx context.Context, productID string, attributeID string, value interface{}) error

	// SetCustomAttribute writes one key of the custom attribute mapping
	SetCustomAttribute(ctx context.Context, productID string, attributeID string, value interface{}) error

	// Create inserts a product unless one with the same ID exists.
	// Read-only and unknown system attributes are ignored.
	Create(ctx context.Context, product *entities.Product) error
}

// Transactor runs a unit of work against the product store
type Transactor interface {
	// WithinTransaction calls fn with a repository bound to one transaction.
	// The transaction commits when fn returns nil and rolls back otherwise,
	// so either every write made through repo is visible or none is.
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, repo ProductRepository) error) error
}
