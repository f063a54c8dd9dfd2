// Package authority talks to the credential authority: the service of record
// for passwords and identity issuance. The identity service depends only on
// the Authority interface; two implementations exist.
//
//   - Local stores bcrypt credentials in SQLite and issues HS256 tokens.
//   - GoTrue calls a Supabase-compatible auth server over HTTP.
//
// ERROR CONTRACT (both implementations):
//   - policy violations (bad email, short password) → apperror.ErrValidation
//   - duplicate email                               → apperror.ErrConflict
//   - wrong email/password at SignIn                → apperror.ErrAuth
//   - bad or expired token at VerifyToken           → apperror.ErrAuth
//   - unknown userID at LookupUser                  → apperror.ErrNotFound
//   - authority not reachable                       → apperror.ErrUnavailable
package authority

import (
	"context"
	"time"
)

// Identity is who the authority says a user is.
type Identity struct {
	UserID string
	Email  string
}

// Grant is the result of a successful password sign-in.
type Grant struct {
	AccessToken string
	UserID      string
	Email       string
	ExpiresAt   time.Time
}

// Authority is the credential-issuing collaborator.
type Authority interface {
	// CreateUser registers email/password and returns the authority-issued userID.
	CreateUser(ctx context.Context, email, password string) (string, error)
	// SignIn exchanges email/password for an access token.
	SignIn(ctx context.Context, email, password string) (*Grant, error)
	// VerifyToken resolves an access token to the identity it was issued for.
	VerifyToken(ctx context.Context, token string) (*Identity, error)
	// LookupUser fetches an identity by userID.
	LookupUser(ctx context.Context, userID string) (*Identity, error)
}
