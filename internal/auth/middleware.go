package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sakif/learning-platform/internal/apperror"
)

// Request headers checked by this package.
const (
	// APIKeyHeader carries the public (anon) key on every client request.
	APIKeyHeader = "apikey"
	// SetupTokenHeader carries the operator's one-time bootstrap token.
	SetupTokenHeader = "X-Bootstrap-Token"
)

// contextKey is an unexported type used for context keys in this package.
// Only this package can create a key of this type, so no other package can
// shadow the userID value.
type contextKey string

const userIDKey contextKey = "userID"

// Verifier resolves a bearer token to the userID it was issued for.
// The identity service implements it.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

// RequireBearer enforces a valid "Authorization: Bearer <token>" header.
//
// The token is handed to v; on success the userID is stored in the request
// context. Every verification failure gets the same 401 body.
func RequireBearer(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				writeAuthError(w, apperror.Unauthorized())
				return
			}

			userID, err := v.VerifyToken(r.Context(), token)
			if err != nil {
				writeAuthError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAPIKey rejects requests whose apikey header does not match key.
//
// An empty key means the server was started without one; requests pass
// through and the service layer reports the configuration error itself.
func RequireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key != "" {
				got := r.Header.Get(APIKeyHeader)
				if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
					writeAuthError(w, &apperror.AppError{Err: apperror.ErrAuth, Message: "invalid API key"})
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSetupToken admits only requests whose X-Bootstrap-Token header
// equals token. It guards operator-only routes; callers must not mount those
// routes at all when token is empty.
func RequireSetupToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(SetupTokenHeader)
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeJSONError(w, http.StatusForbidden, apperror.Forbidden("a valid bootstrap token is required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext retrieves the authenticated user's ID from the request
// context. Returns ("", false) outside a RequireBearer chain.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// WithUserID returns a copy of ctx carrying userID, as RequireBearer would.
// Handler tests use it to skip token plumbing.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// BearerToken extracts the token from an Authorization header, or "".
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

func writeAuthError(w http.ResponseWriter, err error) {
	// Never leak why a token was rejected.
	if !errors.Is(err, apperror.ErrAuth) {
		err = apperror.Unauthorized()
	}

	writeJSONError(w, http.StatusUnauthorized, err)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   apperror.Kind(err),
		"message": err.Error(),
	})
}
