package services

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/asakaida/attrgate/internal/entities"
	apperrors "github.com/asakaida/attrgate/internal/errors"
	"github.com/asakaida/attrgate/internal/infrastructure/logging"
)

const basicScheme = "Basic"

// Authenticator performs one login against the identity store
type Authenticator interface {
	Login(ctx context.Context, login, password string) (*entities.Customer, error)
}

// CredentialGate turns a raw Basic credential header into an AuthResult
type CredentialGate struct {
	identity Authenticator
}

// NewCredentialGate creates a new CredentialGate
func NewCredentialGate(identity Authenticator) *CredentialGate {
	return &CredentialGate{identity: identity}
}

// Authenticate checks the credential header. It never panics and never
// retries; the identity store is called at most once.
func (g *CredentialGate) Authenticate(ctx context.Context, rawHeader string) (result entities.AuthResult) {
	logger := logging.FromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("credential check panicked")
			result = entities.AuthFailed(entities.AuthFailureMalformed)
		}
	}()

	if strings.TrimSpace(rawHeader) == "" {
		return entities.AuthFailed(entities.AuthFailureMalformed)
	}

	user, pass, ok := parseBasicCredential(rawHeader)
	if !ok {
		return entities.AuthFailed(entities.AuthFailureMissing)
	}

	customer, err := g.identity.Login(ctx, user, pass)
	if err != nil {
		if apperrors.IsInvalidCredential(err) {
			logger.WithFields(logrus.Fields{"login": user, "reason": err.Error()}).Info("login rejected")
			return entities.AuthFailed(entities.AuthFailureInvalidCredential)
		}
		logger.WithError(err).Error("identity store login failed")
		return entities.AuthFailed(entities.AuthFailureMalformed)
	}

	if customer == nil || !customer.Authenticated {
		return entities.AuthFailed(entities.AuthFailureInvalidCredential)
	}

	return entities.AuthSucceeded()
}

// parseBasicCredential extracts user and password from "Basic <base64(user:pass)>".
// ok is false when the payload does not decode or either part is empty.
func parseBasicCredential(header string) (user, pass string, ok bool) {
	encoded := strings.TrimSpace(header)
	encoded = strings.TrimPrefix(encoded, basicScheme)
	encoded = strings.TrimSpace(encoded)

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", false
	}

	user, pass, _ = strings.Cut(string(decoded), ":")
	if user == "" || pass == "" {
		return "", "", false
	}
	return user, pass, true
}
