package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/learning-platform/internal/apperror"
	"github.com/sakif/learning-platform/internal/auth"
	"github.com/sakif/learning-platform/internal/model"
	"github.com/sakif/learning-platform/internal/service"
)

// IdentityService is the subset of *service.IdentityService the handlers use.
type IdentityService interface {
	Signup(ctx context.Context, in service.SignupInput) (*model.UserProfile, error)
	RetryProfileWrite(ctx context.Context, p service.PendingProfile) (*model.UserProfile, error)
	Login(ctx context.Context, email, password string) (*service.LoginResult, error)
	Profile(ctx context.Context, userID string) (*model.UserProfile, error)
	BootstrapPrivilegedAccount(ctx context.Context, in service.SignupInput) (*model.UserProfile, error)
}

// SignupRequest is the body of POST /signup and POST /bootstrap-admin.
type SignupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	Country   string `json:"country"`
}

func (r SignupRequest) input() service.SignupInput {
	return service.SignupInput{Email: r.Email, Password: r.Password, FirstName: r.FirstName, Country: r.Country}
}

// SignupResponse is returned by a successful signup.
type SignupResponse struct {
	UserID string `json:"userId"`
}

// RetryRequest is the body of POST /signup/retry.
type RetryRequest struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	Country   string `json:"country"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	AccessToken string             `json:"accessToken"`
	ExpiresAt   time.Time          `json:"expiresAt"`
	Profile     *model.UserProfile `json:"profile"`
}

// IdentityHandler serves signup, login and profile routes.
type IdentityHandler struct {
	svc    IdentityService
	logger *slog.Logger
}

// NewIdentityHandler creates an IdentityHandler.
func NewIdentityHandler(svc IdentityService, logger *slog.Logger) *IdentityHandler {
	return &IdentityHandler{svc: svc, logger: logger}
}

// HandleSignup creates an account.
//
// HTTP: POST /signup → 201 {"userId":"..."}
func (h *IdentityHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	profile, err := h.svc.Signup(r.Context(), req.input())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, SignupResponse{UserID: profile.UserID})
}

// HandleRetry re-attempts the profile write of a partial signup.
//
// HTTP: POST /signup/retry → 200 profile
func (h *IdentityHandler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	var req RetryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	profile, err := h.svc.RetryProfileWrite(r.Context(), service.PendingProfile{
		UserID:    req.UserID,
		Email:     req.Email,
		FirstName: req.FirstName,
		Country:   req.Country,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleLogin exchanges credentials for an access token.
//
// HTTP: POST /login → 200 {"accessToken":"...","expiresAt":"...","profile":{...}}
func (h *IdentityHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{
		AccessToken: res.AccessToken,
		ExpiresAt:   res.ExpiresAt,
		Profile:     res.Profile,
	})
}

// HandleProfile returns the caller's profile. Requires auth.RequireBearer.
//
// HTTP: GET /profile → 200 profile
func (h *IdentityHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthorized())
		return
	}

	profile, err := h.svc.Profile(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleBootstrap creates the first admin account. Only mounted behind the
// bootstrap token guard.
//
// HTTP: POST /bootstrap-admin → 201 {"userId":"..."}
func (h *IdentityHandler) HandleBootstrap(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	profile, err := h.svc.BootstrapPrivilegedAccount(r.Context(), req.input())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Warn("bootstrap-admin used", slog.String("userID", profile.UserID))
	writeJSON(w, http.StatusCreated, SignupResponse{UserID: profile.UserID})
}
