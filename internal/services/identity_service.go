package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/asakaida/attrgate/internal/entities"
	apperrors "github.com/asakaida/attrgate/internal/errors"
	"github.com/asakaida/attrgate/internal/repositories"
)

// IdentityService verifies customer logins against the identity store
type IdentityService struct {
	repo      repositories.CustomerRepository
	maxFailed int
	now       func() time.Time
}

// NewIdentityService creates a new IdentityService.
// maxFailed <= 0 disables the lockout.
func NewIdentityService(repo repositories.CustomerRepository, maxFailed int) *IdentityService {
	return &IdentityService{
		repo:      repo,
		maxFailed: maxFailed,
		now:       time.Now,
	}
}

// Login runs one transactional login attempt.
// A wrong password increments the customer's failed login counter; a
// successful login resets it and records the login time. Every rejection
// is reported as ErrInvalidCredential.
func (s *IdentityService) Login(ctx context.Context, login, password string) (*entities.Customer, error) {
	if login == "" || password == "" {
		return nil, apperrors.NewValidationError("login", "login and password are required")
	}

	var authenticated *entities.Customer
	err := s.repo.WithinLogin(ctx, login, func(c *entities.Customer) error {
		if c == nil {
			return fmt.Errorf("unknown login: %w", apperrors.ErrInvalidCredential)
		}
		if !c.Enabled {
			return fmt.Errorf("customer disabled: %w", apperrors.ErrInvalidCredential)
		}
		if c.Locked(s.maxFailed) {
			return fmt.Errorf("customer locked after %d failed logins: %w", c.FailedLoginCount, apperrors.ErrInvalidCredential)
		}

		if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)); err != nil {
			c.FailedLoginCount++
			return fmt.Errorf("password mismatch: %w", apperrors.ErrInvalidCredential)
		}

		now := s.now().UTC()
		c.FailedLoginCount = 0
		c.LastLoginTime = &now
		c.Authenticated = true
		authenticated = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	return authenticated, nil
}

// HashPassword returns the bcrypt hash stored for a customer password
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
