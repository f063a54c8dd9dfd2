package authority

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/learning-platform/internal/apperror"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestGoTrue points a GoTrue authority at handler.
func newTestGoTrue(t *testing.T, handler http.HandlerFunc) *GoTrue {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGoTrue(srv.URL+"/", "anon-key", "service-key", srv.Client(), discardLogger())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestGoTrue_CreateUser(t *testing.T) {
	a := newTestGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/v1/admin/users", r.URL.Path)
		assert.Equal(t, "service-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ada@example.com", body["email"])
		assert.Equal(t, true, body["email_confirm"])

		writeJSON(w, http.StatusOK, map[string]string{"id": "uuid-1", "email": "ada@example.com"})
	})

	id, err := a.CreateUser(context.Background(), "Ada@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "uuid-1", id)
}

func TestGoTrue_CreateUserErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   map[string]any
		want   error
	}{
		{"email_exists code", http.StatusUnprocessableEntity, map[string]any{"error_code": "email_exists", "msg": "exists"}, apperror.ErrConflict},
		{"legacy duplicate message", http.StatusUnprocessableEntity, map[string]any{"msg": "A user with this email address has already been registered"}, apperror.ErrConflict},
		{"weak password", http.StatusUnprocessableEntity, map[string]any{"error_code": "weak_password", "msg": "Password should be at least 6 characters"}, apperror.ErrValidation},
		{"server error", http.StatusInternalServerError, map[string]any{"msg": "boom"}, apperror.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})

			_, err := a.CreateUser(context.Background(), "ada@example.com", "secret1")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGoTrue_SignIn(t *testing.T) {
	a := newTestGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "right" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "Invalid login credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "tok",
			"expires_in":   3600,
			"user":         map[string]string{"id": "uuid-1", "email": "ada@example.com"},
		})
	})

	grant, err := a.SignIn(context.Background(), "ada@example.com", "right")
	require.NoError(t, err)
	assert.Equal(t, "tok", grant.AccessToken)
	assert.Equal(t, "uuid-1", grant.UserID)

	_, err = a.SignIn(context.Background(), "ada@example.com", "wrong")
	assert.ErrorIs(t, err, apperror.ErrAuth)
}

func TestGoTrue_VerifyToken(t *testing.T) {
	a := newTestGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer good" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "invalid JWT"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": "uuid-1", "email": "ada@example.com"})
	})

	ident, err := a.VerifyToken(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "uuid-1", ident.UserID)

	_, err = a.VerifyToken(context.Background(), "bad")
	assert.ErrorIs(t, err, apperror.ErrAuth)
}

func TestGoTrue_LookupUser(t *testing.T) {
	a := newTestGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/v1/admin/users/uuid-1" {
			writeJSON(w, http.StatusOK, map[string]string{"id": "uuid-1", "email": "ada@example.com"})
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"msg": "User not found"})
	})

	ident, err := a.LookupUser(context.Background(), "uuid-1")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", ident.Email)

	_, err = a.LookupUser(context.Background(), "uuid-2")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestGoTrue_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	a := NewGoTrue(url, "anon-key", "service-key", nil, discardLogger())

	_, err := a.SignIn(context.Background(), "ada@example.com", "secret1")
	assert.ErrorIs(t, err, apperror.ErrUnavailable)

	_, err = a.CreateUser(context.Background(), "ada@example.com", "secret1")
	assert.ErrorIs(t, err, apperror.ErrUnavailable)
}
