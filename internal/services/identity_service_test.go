package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/asakaida/attrgate/internal/entities"
	apperrors "github.com/asakaida/attrgate/internal/errors"
)

func newTestCustomer(t *testing.T, login, password string) *entities.Customer {
	t.Helper()
	hash, err := HashPassword(password, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	return &entities.Customer{ID: 1, Login: login, PasswordHash: hash, Enabled: true}
}

func TestIdentityService_Login(t *testing.T) {
	ctx := context.Background()
	fixedNow := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	t.Run("正常系: 正しいパスワード", func(t *testing.T) {
		customer := newTestCustomer(t, "alice", "s3cret")
		customer.FailedLoginCount = 2
		service := NewIdentityService(newMockCustomerRepository(customer), 5)
		service.now = func() time.Time { return fixedNow }

		got, err := service.Login(ctx, "alice", "s3cret")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.Authenticated {
			t.Error("expected authenticated customer")
		}
		if customer.FailedLoginCount != 0 {
			t.Errorf("failed login count = %d, want 0", customer.FailedLoginCount)
		}
		if customer.LastLoginTime == nil || !customer.LastLoginTime.Equal(fixedNow) {
			t.Errorf("last login time = %v, want %v", customer.LastLoginTime, fixedNow)
		}
	})

	t.Run("異常系: パスワード不一致でカウンタ増加", func(t *testing.T) {
		customer := newTestCustomer(t, "alice", "s3cret")
		service := NewIdentityService(newMockCustomerRepository(customer), 5)

		_, err := service.Login(ctx, "alice", "wrong")
		if !apperrors.IsInvalidCredential(err) {
			t.Fatalf("expected invalid credential, got %v", err)
		}
		if customer.FailedLoginCount != 1 {
			t.Errorf("failed login count = %d, want 1", customer.FailedLoginCount)
		}
		if customer.LastLoginTime != nil {
			t.Error("last login time should not be set on failure")
		}
	})

	t.Run("異常系: ロックされた顧客", func(t *testing.T) {
		customer := newTestCustomer(t, "alice", "s3cret")
		customer.FailedLoginCount = 5
		service := NewIdentityService(newMockCustomerRepository(customer), 5)

		_, err := service.Login(ctx, "alice", "s3cret")
		if !apperrors.IsInvalidCredential(err) {
			t.Fatalf("expected invalid credential, got %v", err)
		}
		if customer.FailedLoginCount != 5 {
			t.Errorf("failed login count = %d, want 5", customer.FailedLoginCount)
		}
	})

	t.Run("正常系: ロックアウト無効", func(t *testing.T) {
		customer := newTestCustomer(t, "alice", "s3cret")
		customer.FailedLoginCount = 50
		service := NewIdentityService(newMockCustomerRepository(customer), 0)

		if _, err := service.Login(ctx, "alice", "s3cret"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("異常系: 無効化された顧客", func(t *testing.T) {
		customer := newTestCustomer(t, "alice", "s3cret")
		customer.Enabled = false
		service := NewIdentityService(newMockCustomerRepository(customer), 5)

		if _, err := service.Login(ctx, "alice", "s3cret"); !apperrors.IsInvalidCredential(err) {
			t.Errorf("expected invalid credential, got %v", err)
		}
	})

	t.Run("異常系: 存在しないログイン", func(t *testing.T) {
		service := NewIdentityService(newMockCustomerRepository(), 5)

		if _, err := service.Login(ctx, "nobody", "s3cret"); !apperrors.IsInvalidCredential(err) {
			t.Errorf("expected invalid credential, got %v", err)
		}
	})

	t.Run("異常系: ストアエラー", func(t *testing.T) {
		repo := newMockCustomerRepository()
		repo.err = errors.New("connection reset")
		service := NewIdentityService(repo, 5)

		_, err := service.Login(ctx, "alice", "s3cret")
		if err == nil || apperrors.IsInvalidCredential(err) {
			t.Errorf("expected store error, got %v", err)
		}
	})

	t.Run("異常系: 空のパスワード", func(t *testing.T) {
		service := NewIdentityService(newMockCustomerRepository(), 5)

		if _, err := service.Login(ctx, "alice", ""); !apperrors.IsValidationError(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("s3cret", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash == "s3cret" {
		t.Fatal("password stored in clear text")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")); err != nil {
		t.Errorf("hash does not verify: %v", err)
	}
}
