package services

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/asakaida/attrgate/internal/entities"
	apperrors "github.com/asakaida/attrgate/internal/errors"
)

// Mock Authenticator
type mockAuthenticator struct {
	LoginFunc func(ctx context.Context, login, password string) (*entities.Customer, error)
	calls     int
}

func (m *mockAuthenticator) Login(ctx context.Context, login, password string) (*entities.Customer, error) {
	m.calls++
	return m.LoginFunc(ctx, login, password)
}

func basicHeader(credential string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(credential))
}

func TestCredentialGate_Authenticate(t *testing.T) {
	acceptAlice := func(ctx context.Context, login, password string) (*entities.Customer, error) {
		if login == "alice" && password == "pa:ss" {
			return &entities.Customer{Login: login, Authenticated: true}, nil
		}
		return nil, apperrors.ErrInvalidCredential
	}

	tests := []struct {
		name      string
		header    string
		login     func(ctx context.Context, login, password string) (*entities.Customer, error)
		want      entities.AuthResult
		wantCalls int
	}{
		{
			name:      "valid credential",
			header:    basicHeader("alice:pa:ss"),
			login:     acceptAlice,
			want:      entities.AuthSucceeded(),
			wantCalls: 1,
		},
		{
			name:      "surrounding whitespace",
			header:    "  " + basicHeader("alice:pa:ss") + "  ",
			login:     acceptAlice,
			want:      entities.AuthSucceeded(),
			wantCalls: 1,
		},
		{
			name:      "without scheme",
			header:    base64.StdEncoding.EncodeToString([]byte("alice:pa:ss")),
			login:     acceptAlice,
			want:      entities.AuthSucceeded(),
			wantCalls: 1,
		},
		{
			name:      "wrong password",
			header:    basicHeader("alice:nope"),
			login:     acceptAlice,
			want:      entities.AuthFailed(entities.AuthFailureInvalidCredential),
			wantCalls: 1,
		},
		{
			name:   "principal not authenticated",
			header: basicHeader("alice:pa:ss"),
			login: func(ctx context.Context, login, password string) (*entities.Customer, error) {
				return &entities.Customer{Login: login}, nil
			},
			want:      entities.AuthFailed(entities.AuthFailureInvalidCredential),
			wantCalls: 1,
		},
		{
			name:   "empty header",
			header: "",
			want:   entities.AuthFailed(entities.AuthFailureMalformed),
		},
		{
			name:   "blank header",
			header: "   ",
			want:   entities.AuthFailed(entities.AuthFailureMalformed),
		},
		{
			name:   "missing password",
			header: basicHeader("alice:"),
			want:   entities.AuthFailed(entities.AuthFailureMissing),
		},
		{
			name:   "missing user",
			header: basicHeader(":secret"),
			want:   entities.AuthFailed(entities.AuthFailureMissing),
		},
		{
			name:   "no separator",
			header: basicHeader("alice"),
			want:   entities.AuthFailed(entities.AuthFailureMissing),
		},
		{
			name:   "not base64",
			header: "Basic !!!",
			want:   entities.AuthFailed(entities.AuthFailureMissing),
		},
		{
			name:   "identity store failure",
			header: basicHeader("alice:pa:ss"),
			login: func(ctx context.Context, login, password string) (*entities.Customer, error) {
				return nil, errors.New("connection refused")
			},
			want:      entities.AuthFailed(entities.AuthFailureMalformed),
			wantCalls: 1,
		},
		{
			name:   "identity store panic",
			header: basicHeader("alice:pa:ss"),
			login: func(ctx context.Context, login, password string) (*entities.Customer, error) {
				panic("nil map")
			},
			want:      entities.AuthFailed(entities.AuthFailureMalformed),
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &mockAuthenticator{LoginFunc: tt.login}
			if auth.LoginFunc == nil {
				auth.LoginFunc = func(ctx context.Context, login, password string) (*entities.Customer, error) {
					t.Fatal("identity store should not be called")
					return nil, nil
				}
			}
			gate := NewCredentialGate(auth)

			got := gate.Authenticate(context.Background(), tt.header)
			if got != tt.want {
				t.Errorf("got %+v (%s), want %+v (%s)", got, got.Reason, tt.want, tt.want.Reason)
			}
			if auth.calls != tt.wantCalls {
				t.Errorf("identity store called %d times, want %d", auth.calls, tt.wantCalls)
			}
		})
	}
}

func TestCredentialGate_WithIdentityService(t *testing.T) {
	customer := newTestCustomer(t, "alice", "s3cret")
	gate := NewCredentialGate(NewIdentityService(newMockCustomerRepository(customer), 3))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if got := gate.Authenticate(ctx, basicHeader("alice:bad")); got.Reason != entities.AuthFailureInvalidCredential {
			t.Fatalf("attempt %d: got %s", i, got.Reason)
		}
	}

	// Locked out now, even with the right password
	if got := gate.Authenticate(ctx, basicHeader("alice:s3cret")); got.Authenticated {
		t.Error("locked customer should not authenticate")
	}
}
