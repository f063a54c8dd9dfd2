package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/learning-platform/internal/apperror"
	"github.com/sakif/learning-platform/internal/auth"
	"github.com/sakif/learning-platform/internal/handler"
	"github.com/sakif/learning-platform/internal/model"
	"github.com/sakif/learning-platform/internal/service"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeIdentity implements handler.IdentityService with canned results.
type fakeIdentity struct {
	profile  *model.UserProfile
	login    *service.LoginResult
	err      error
	captured service.SignupInput
	retried  service.PendingProfile
}

func (f *fakeIdentity) Signup(_ context.Context, in service.SignupInput) (*model.UserProfile, error) {
	f.captured = in
	return f.profile, f.err
}

func (f *fakeIdentity) RetryProfileWrite(_ context.Context, p service.PendingProfile) (*model.UserProfile, error) {
	f.retried = p
	return f.profile, f.err
}

func (f *fakeIdentity) Login(_ context.Context, _, _ string) (*service.LoginResult, error) {
	return f.login, f.err
}

func (f *fakeIdentity) Profile(_ context.Context, userID string) (*model.UserProfile, error) {
	if f.err != nil {
		return nil, f.err
	}
	p := *f.profile
	p.UserID = userID
	return &p, nil
}

func (f *fakeIdentity) BootstrapPrivilegedAccount(_ context.Context, in service.SignupInput) (*model.UserProfile, error) {
	f.captured = in
	return f.profile, f.err
}

func sampleProfile() *model.UserProfile {
	return model.NewUserProfile("user-1", "ada@example.com", "Ada", "UK", model.RoleStudent,
		map[string]int{"python": 12}, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var body handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body
}

// =========================================================================
// SIGNUP
// =========================================================================

func TestIdentityHandler_HandleSignup(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		svc := &fakeIdentity{profile: sampleProfile()}
		h := handler.NewIdentityHandler(svc, logger)

		rr := httptest.NewRecorder()
		h.HandleSignup(rr, postJSON("/signup", `{"email":"ada@example.com","password":"secret1","firstName":"Ada","country":"UK"}`))

		assert.Equal(t, http.StatusCreated, rr.Code)
		var body handler.SignupResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		assert.Equal(t, "user-1", body.UserID)
		assert.Equal(t, service.SignupInput{Email: "ada@example.com", Password: "secret1", FirstName: "Ada", Country: "UK"}, svc.captured)
	})

	t.Run("malformed body", func(t *testing.T) {
		h := handler.NewIdentityHandler(&fakeIdentity{}, logger)

		rr := httptest.NewRecorder()
		h.HandleSignup(rr, postJSON("/signup", `{"email":`))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "validation_error", decodeError(t, rr).Error)
	})

	t.Run("unknown field", func(t *testing.T) {
		h := handler.NewIdentityHandler(&fakeIdentity{}, logger)

		rr := httptest.NewRecorder()
		h.HandleSignup(rr, postJSON("/signup", `{"emial":"ada@example.com"}`))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestWriteError_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"validation", apperror.ValidationFailed("password", "too short"), http.StatusBadRequest, "validation_error"},
		{"conflict", apperror.Conflict("user", "ada@example.com"), http.StatusConflict, "conflict"},
		{"auth", apperror.InvalidCredentials(), http.StatusUnauthorized, "auth_error"},
		{"forbidden", apperror.Forbidden("no"), http.StatusForbidden, "forbidden"},
		{"not found", apperror.NotFound("profile", "x"), http.StatusNotFound, "not_found"},
		{"configuration", apperror.Configuration("AUTHORITY_URL"), http.StatusServiceUnavailable, "configuration_error"},
		{"unavailable", apperror.Unavailable("credential authority"), http.StatusBadGateway, "authority_unavailable"},
		{"internal", errors.New("disk on fire"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewIdentityHandler(&fakeIdentity{err: tt.err}, logger)

			rr := httptest.NewRecorder()
			h.HandleSignup(rr, postJSON("/signup", `{"email":"ada@example.com","password":"secret1"}`))

			assert.Equal(t, tt.wantStatus, rr.Code)
			body := decodeError(t, rr)
			assert.Equal(t, tt.wantKind, body.Error)
			assert.NotContains(t, body.Message, "disk on fire")
		})
	}
}

func TestWriteError_ValidationCarriesField(t *testing.T) {
	h := handler.NewIdentityHandler(&fakeIdentity{err: apperror.ValidationFailed("password", "too short")}, logger)

	rr := httptest.NewRecorder()
	h.HandleSignup(rr, postJSON("/signup", `{}`))

	body := decodeError(t, rr)
	assert.Equal(t, "password", body.Field)
	assert.Equal(t, "too short", body.Message)
}

func TestWriteError_PartialFailureCarriesUserID(t *testing.T) {
	partial := &service.PartialSignupError{Profile: sampleProfile(), Cause: io.ErrUnexpectedEOF}
	h := handler.NewIdentityHandler(&fakeIdentity{err: partial}, logger)

	rr := httptest.NewRecorder()
	h.HandleSignup(rr, postJSON("/signup", `{"email":"ada@example.com","password":"secret1"}`))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decodeError(t, rr)
	assert.Equal(t, "partial_failure", body.Error)
	assert.Equal(t, "user-1", body.UserID)
}

// =========================================================================
// RETRY / LOGIN / PROFILE / BOOTSTRAP
// =========================================================================

func TestIdentityHandler_HandleRetry(t *testing.T) {
	svc := &fakeIdentity{profile: sampleProfile()}
	h := handler.NewIdentityHandler(svc, logger)

	rr := httptest.NewRecorder()
	h.HandleRetry(rr, postJSON("/signup/retry", `{"userId":"user-1","email":"ada@example.com"}`))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "user-1", svc.retried.UserID)
}

func TestIdentityHandler_HandleLogin(t *testing.T) {
	exp := time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)
	svc := &fakeIdentity{login: &service.LoginResult{AccessToken: "tok", ExpiresAt: exp, Profile: sampleProfile()}}
	h := handler.NewIdentityHandler(svc, logger)

	rr := httptest.NewRecorder()
	h.HandleLogin(rr, postJSON("/login", `{"email":"ada@example.com","password":"secret1"}`))

	assert.Equal(t, http.StatusOK, rr.Code)
	var body handler.LoginResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "tok", body.AccessToken)
	assert.True(t, exp.Equal(body.ExpiresAt))
	assert.Equal(t, "ada@example.com", body.Profile.Email)
}

func TestIdentityHandler_HandleProfile(t *testing.T) {
	h := handler.NewIdentityHandler(&fakeIdentity{profile: sampleProfile()}, logger)

	t.Run("authenticated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/profile", nil)
		req = req.WithContext(auth.WithUserID(req.Context(), "user-42"))
		rr := httptest.NewRecorder()

		h.HandleProfile(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		var p model.UserProfile
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&p))
		assert.Equal(t, "user-42", p.UserID)
	})

	t.Run("no user in context", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.HandleProfile(rr, httptest.NewRequest(http.MethodGet, "/profile", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestIdentityHandler_HandleBootstrap(t *testing.T) {
	admin := sampleProfile()
	admin.Role = model.RoleAdmin
	svc := &fakeIdentity{profile: admin}
	h := handler.NewIdentityHandler(svc, logger)

	rr := httptest.NewRecorder()
	h.HandleBootstrap(rr, postJSON("/bootstrap-admin", `{"email":"root@school.org","password":"secret1"}`))

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "root@school.org", svc.captured.Email)
}

// =========================================================================
// HEALTH
// =========================================================================

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealthHandler(t *testing.T) {
	complete := model.ConfigFlags{HasURL: true, HasAnonKey: true, HasServiceKey: true, AllConfigured: true}

	tests := []struct {
		name       string
		flags      model.ConfigFlags
		pingErr    error
		wantStatus int
		wantBody   string
	}{
		{"all configured", complete, nil, http.StatusOK, "ok"},
		{"missing service key", model.ConfigFlags{HasURL: true, HasAnonKey: true}, nil, http.StatusOK, "misconfigured"},
		{"store down", complete, errors.New("closed"), http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewHealthHandler(tt.flags, fakePinger{err: tt.pingErr}, logger)

			rr := httptest.NewRecorder()
			h.HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantStatus, rr.Code)
			var body model.HealthStatus
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.Equal(t, tt.wantBody, body.Status)
			assert.Equal(t, tt.flags, body.Config)
		})
	}
}
