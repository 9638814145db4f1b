package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/asakaida/attrgate/internal/entities"
	"github.com/asakaida/attrgate/internal/repositories"
)

// PostgresCustomerRepository implements CustomerRepository using PostgreSQL
type PostgresCustomerRepository struct {
	db *sql.DB
}

// NewPostgresCustomerRepository creates a new PostgreSQL customer repository
func NewPostgresCustomerRepository(db *sql.DB) repositories.CustomerRepository {
	return &PostgresCustomerRepository{db: db}
}

// Upsert creates a customer or replaces its password hash and enabled flag
func (r *PostgresCustomerRepository) Upsert(ctx context.Context, customer *entities.Customer) error {
	query := `
		INSERT INTO customers (login, password_hash, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (login)
		DO UPDATE SET password_hash = EXCLUDED.password_hash, enabled = EXCLUDED.enabled, updated_at = EXCLUDED.updated_at
		RETURNING id
	`
	if err := r.db.QueryRowContext(ctx, query, customer.Login, customer.PasswordHash, customer.Enabled, time.Now()).Scan(&customer.ID); err != nil {
		return fmt.Errorf("failed to upsert customer: %w", err)
	}
	return nil
}

// WithinLogin locks the customer row for the duration of fn
func (r *PostgresCustomerRepository) WithinLogin(ctx context.Context, login string, fn func(customer *entities.Customer) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT id, login, password_hash, enabled, failed_login_count, last_login_time
		FROM customers
		WHERE login = $1
		FOR UPDATE
	`
	var (
		c         entities.Customer
		lastLogin sql.NullTime
	)
	err = tx.QueryRowContext(ctx, query, login).Scan(
		&c.ID, &c.Login, &c.PasswordHash, &c.Enabled, &c.FailedLoginCount, &lastLogin,
	)
	if err == sql.ErrNoRows {
		// Unknown logins still run fn so callers treat them like a failed password
		return fn(nil)
	}
	if err != nil {
		return fmt.Errorf("failed to get customer: %w", err)
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		c.LastLoginTime = &t
	}

	before := c.FailedLoginCount
	beforeLogin := c.LastLoginTime
	fnErr := fn(&c)

	if c.FailedLoginCount != before || c.LastLoginTime != beforeLogin {
		update := `
			UPDATE customers
			SET failed_login_count = $1, last_login_time = $2, updated_at = $3
			WHERE id = $4
		`
		if _, err := tx.ExecContext(ctx, update, c.FailedLoginCount, c.LastLoginTime, time.Now(), c.ID); err != nil {
			return fmt.Errorf("failed to update customer login state: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return fnErr
}
