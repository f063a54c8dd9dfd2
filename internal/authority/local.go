package authority

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/sakif/learning-platform/internal/apperror"
	"github.com/sakif/learning-platform/internal/auth"
	"github.com/sakif/learning-platform/internal/model"
	"github.com/sakif/learning-platform/internal/repository"
)

// compile-time check that *Local implements Authority
var _ Authority = (*Local)(nil)

// Local is an in-process credential authority backed by the credentials table.
type Local struct {
	creds     repository.CredentialRepository
	passwords *auth.PasswordService
	tokens    *auth.TokenService
}

// NewLocal creates a Local authority.
func NewLocal(creds repository.CredentialRepository, passwords *auth.PasswordService, tokens *auth.TokenService) *Local {
	return &Local{creds: creds, passwords: passwords, tokens: tokens}
}

// CreateUser validates the pair against the password policy, hashes the
// password and inserts the credential. The UNIQUE NOCASE index on email
// decides concurrent duplicates: exactly one insert wins.
func (a *Local) CreateUser(ctx context.Context, email, password string) (string, error) {
	addr, err := ValidateEmail(email)
	if err != nil {
		return "", err
	}
	if err := auth.CheckPasswordLength(password); err != nil {
		return "", apperror.ValidationFailed("password", strings.TrimPrefix(err.Error(), "auth: "))
	}

	hash, err := a.passwords.Hash(password)
	if err != nil {
		return "", fmt.Errorf("authority: hashing password: %w", err)
	}

	cred := &model.Credential{Email: addr, PasswordHash: hash}
	if err := a.creds.CreateCredential(ctx, cred); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return "", apperror.Conflict("user", addr)
		}
		return "", fmt.Errorf("authority: creating credential: %w", err)
	}
	return cred.ID, nil
}

// SignIn verifies the password and issues an access token.
// An unknown email and a wrong password produce the same error.
func (a *Local) SignIn(ctx context.Context, email, password string) (*Grant, error) {
	cred, err := a.creds.GetCredentialByEmail(ctx, model.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("authority: loading credential: %w", err)
	}

	if err := a.passwords.Verify(cred.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("authority: verifying password: %w", err)
	}

	token, exp, err := a.tokens.Generate(cred.ID, cred.Email)
	if err != nil {
		return nil, fmt.Errorf("authority: issuing token: %w", err)
	}

	return &Grant{AccessToken: token, UserID: cred.ID, Email: cred.Email, ExpiresAt: exp}, nil
}

// VerifyToken checks the signature and expiry. The returned error wraps
// both apperror.ErrAuth and the jwt cause.
func (a *Local) VerifyToken(_ context.Context, token string) (*Identity, error) {
	c, err := a.tokens.Validate(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrAuth, err)
	}
	return &Identity{UserID: c.UserID, Email: c.Email}, nil
}

// LookupUser returns the identity for userID.
func (a *Local) LookupUser(ctx context.Context, userID string) (*Identity, error) {
	cred, err := a.creds.GetCredentialByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Identity{UserID: cred.ID, Email: cred.Email}, nil
}

// ValidateEmail checks that email is a bare address ("a@b.c", no display
// name) and returns its normalized form.
func ValidateEmail(email string) (string, error) {
	normalized := model.NormalizeEmail(email)
	if normalized == "" {
		return "", apperror.ValidationFailed("email", "email is required")
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return "", apperror.ValidationFailed("email", "email address is not valid")
	}
	return normalized, nil
}
