package repositories

import (
	"context"

	"github.com/asakaida/attrgate/internal/entities"
)

// CustomerRepository defines the interface for identity store access
type CustomerRepository interface {
	// Upsert creates or replaces a customer by login
	Upsert(ctx context.Context, customer *entities.Customer) error

	// WithinLogin runs fn inside one transaction with the customer row locked.
	// fn receives nil when no customer has the login. Changes fn makes to
	// FailedLoginCount and LastLoginTime are persisted even when fn returns
	// an error, and that error is returned after commit.
	WithinLogin(ctx context.Context, login string, fn func(customer *entities.Customer) error) error
}
