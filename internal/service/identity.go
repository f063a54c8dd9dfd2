// Package service contains the business logic layer of the identity service.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → validates, enforces ordering rules, orchestrates
//	Repository + Authority   → profile store and credential authority
//
// Services take interfaces (repository.ProfileStore, authority.Authority), so
// tests pass in-memory fakes and main.go decides which implementations run.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/learning-platform/internal/apperror"
	"github.com/sakif/learning-platform/internal/authority"
	"github.com/sakif/learning-platform/internal/model"
	"github.com/sakif/learning-platform/internal/repository"
)

// SignupInput is the signup form. BootstrapPrivilegedAccount takes the same shape.
type SignupInput struct {
	Email     string
	Password  string
	FirstName string
	Country   string
}

// PendingProfile identifies a profile write to retry after a partial signup.
type PendingProfile struct {
	UserID    string
	Email     string
	FirstName string
	Country   string
}

// LoginResult bundles the access token with the caller's profile.
type LoginResult struct {
	AccessToken string
	ExpiresAt   time.Time
	Profile     *model.UserProfile
}

// PartialSignupError means the authority created the identity but the
// profile write did not complete. Retry with RetryProfileWrite using
// Profile.UserID; calling Signup again would hit a conflict.
type PartialSignupError struct {
	Profile *model.UserProfile
	Cause   error
}

func (e *PartialSignupError) Error() string {
	return apperror.PartialFailure("user", e.Profile.UserID).Error()
}

func (e *PartialSignupError) Unwrap() []error {
	return []error{apperror.ErrPartialFailure, e.Cause}
}

// IdentityConfig carries the settings the identity service needs.
type IdentityConfig struct {
	// Missing names absent required secrets. Non-empty means every
	// authority-backed operation fails fast with a configuration error.
	Missing []string
	// Tracks maps course track name to lesson total for new profiles.
	Tracks map[string]int
}

// IdentityService handles signup, login, token verification and the
// one-time admin bootstrap.
//
// ORDERING RULE:
// A profile is only written after the authority has issued the userID it is
// keyed by. Authority first, profile second, email index last. If anything
// after the authority call fails the caller gets a *PartialSignupError.
type IdentityService struct {
	store     repository.ProfileStore
	authority authority.Authority
	cfg       IdentityConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewIdentityService creates an IdentityService. authority may be nil when
// cfg.Missing is non-empty, since it is never called in that state.
func NewIdentityService(store repository.ProfileStore, auth authority.Authority, cfg IdentityConfig, logger *slog.Logger) *IdentityService {
	return &IdentityService{
		store:     store,
		authority: auth,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// checkConfigured fails fast before any authority call.
func (s *IdentityService) checkConfigured() error {
	if len(s.cfg.Missing) > 0 || s.authority == nil {
		return apperror.Configuration(s.cfg.Missing...)
	}
	return nil
}

// Signup creates the identity at the authority, then a student profile with
// zeroed progress.
//
// ERRORS:
//   - ErrConfiguration: required secrets missing, nothing was attempted
//   - ErrValidation:    email or password rejected by policy
//   - ErrConflict:      the email already has an account
//   - ErrUnavailable:   the authority could not be reached
//   - *PartialSignupError (ErrPartialFailure): identity exists, profile does not
func (s *IdentityService) Signup(ctx context.Context, in SignupInput) (*model.UserProfile, error) {
	return s.signup(ctx, in, model.RoleStudent)
}

func (s *IdentityService) signup(ctx context.Context, in SignupInput, role model.Role) (*model.UserProfile, error) {
	if err := s.checkConfigured(); err != nil {
		return nil, err
	}

	email, err := authority.ValidateEmail(in.Email)
	if err != nil {
		return nil, err
	}

	if err := s.checkEmailFree(ctx, email); err != nil {
		return nil, err
	}

	userID, err := s.authority.CreateUser(ctx, email, in.Password)
	if err != nil {
		return nil, err
	}

	seed := model.NewUserProfile(userID, email, in.FirstName, in.Country, role, s.cfg.Tracks, s.now())
	profile, err := s.saveProfile(ctx, seed)
	if err != nil {
		return nil, s.partial(seed, err)
	}

	s.logger.Info("user signed up",
		slog.String("userID", profile.UserID),
		slog.String("role", profile.Role.String()),
	)
	return profile, nil
}

// checkEmailFree rejects an email that already owns a profile. The
// authority remains the final arbiter for concurrent signups.
func (s *IdentityService) checkEmailFree(ctx context.Context, email string) error {
	var owner string
	err := s.store.Get(ctx, repository.EmailKey(email), &owner)
	switch {
	case err == nil:
		return apperror.Conflict("user", email)
	case errors.Is(err, apperror.ErrNotFound):
		return nil
	}
	return fmt.Errorf("checking email index: %w", err)
}

// saveProfile writes seed under user:<id> unless a profile is already there,
// in which case the stored one is kept (createdAt and progress survive).
// It then claims the email index for the profile.
func (s *IdentityService) saveProfile(ctx context.Context, seed *model.UserProfile) (*model.UserProfile, error) {
	key := repository.UserKey(seed.UserID)

	profile := seed
	var existing model.UserProfile
	err := s.store.Get(ctx, key, &existing)
	switch {
	case err == nil:
		profile = &existing
	case errors.Is(err, apperror.ErrNotFound):
		if err := s.store.Set(ctx, key, seed); err != nil {
			return nil, fmt.Errorf("writing profile: %w", err)
		}
	default:
		return nil, fmt.Errorf("loading profile: %w", err)
	}

	emailKey := repository.EmailKey(profile.Email)
	stored, err := s.store.PutIfAbsent(ctx, emailKey, profile.UserID)
	if err != nil {
		return nil, fmt.Errorf("claiming email index: %w", err)
	}
	if !stored {
		var owner string
		if err := s.store.Get(ctx, emailKey, &owner); err != nil {
			return nil, fmt.Errorf("reading email index: %w", err)
		}
		if owner != profile.UserID {
			s.logger.Error("email index points at another user",
				slog.String("userID", profile.UserID),
				slog.String("owner", owner),
			)
			return nil, apperror.Conflict("user", profile.Email)
		}
	}
	return profile, nil
}

func (s *IdentityService) partial(seed *model.UserProfile, err error) error {
	if errors.Is(err, apperror.ErrConflict) {
		return err
	}
	s.logger.Error("profile write failed after identity creation",
		slog.String("userID", seed.UserID),
		slog.String("error", err.Error()),
	)
	return &PartialSignupError{Profile: seed, Cause: err}
}

// RetryProfileWrite finishes a partial signup. It is idempotent on UserID:
// repeating it after success returns the stored profile unchanged.
//
// The userID must exist at the authority, and if Email is given it must
// match the authority's record.
func (s *IdentityService) RetryProfileWrite(ctx context.Context, p PendingProfile) (*model.UserProfile, error) {
	if err := s.checkConfigured(); err != nil {
		return nil, err
	}

	userID := strings.TrimSpace(p.UserID)
	if userID == "" {
		return nil, apperror.ValidationFailed("userId", "userId is required")
	}

	ident, err := s.authority.LookupUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p.Email != "" && model.NormalizeEmail(p.Email) != model.NormalizeEmail(ident.Email) {
		return nil, apperror.ValidationFailed("email", "email does not match the account")
	}

	seed := model.NewUserProfile(ident.UserID, model.NormalizeEmail(ident.Email), p.FirstName, p.Country,
		model.RoleStudent, s.cfg.Tracks, s.now())
	profile, err := s.saveProfile(ctx, seed)
	if err != nil {
		return nil, s.partial(seed, err)
	}

	s.logger.Info("profile write retried", slog.String("userID", profile.UserID))
	return profile, nil
}

// Login signs in with the authority and returns the caller's profile. A
// profile missing after an earlier partial signup is recreated here, keyed
// by the authority's userID.
func (s *IdentityService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if err := s.checkConfigured(); err != nil {
		return nil, err
	}
	if model.NormalizeEmail(email) == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}

	grant, err := s.authority.SignIn(ctx, email, password)
	if err != nil {
		if errors.Is(err, apperror.ErrAuth) {
			s.logger.Info("login rejected", slog.String("email", model.NormalizeEmail(email)))
		}
		return nil, err
	}

	profile, err := s.Profile(ctx, grant.UserID)
	if errors.Is(err, apperror.ErrNotFound) {
		s.logger.Warn("repairing missing profile at login", slog.String("userID", grant.UserID))
		seed := model.NewUserProfile(grant.UserID, model.NormalizeEmail(grant.Email), "", "",
			model.RoleStudent, s.cfg.Tracks, s.now())
		profile, err = s.saveProfile(ctx, seed)
	}
	if err != nil {
		return nil, err
	}

	return &LoginResult{AccessToken: grant.AccessToken, ExpiresAt: grant.ExpiresAt, Profile: profile}, nil
}

// VerifyToken resolves an access token to its userID.
//
// Every failure is reported as the same "please log in again" AuthError.
// The distinguishing cause is only logged.
func (s *IdentityService) VerifyToken(ctx context.Context, token string) (string, error) {
	cause := ""
	var userID string

	switch {
	case strings.TrimSpace(token) == "":
		cause = "empty token"
	case s.authority == nil:
		cause = "authority not configured"
	default:
		ident, err := s.authority.VerifyToken(ctx, token)
		switch {
		case err == nil:
			userID = ident.UserID
		case errors.Is(err, apperror.ErrUnavailable):
			cause = "authority unreachable"
		case errors.Is(err, jwt.ErrTokenExpired):
			cause = "token expired"
		default:
			cause = "invalid token"
		}
		if err != nil {
			s.logger.Debug("token verification error", slog.String("error", err.Error()))
		}
	}

	if cause != "" {
		s.logger.Warn("token rejected", slog.String("cause", cause))
		return "", apperror.Unauthorized()
	}
	return userID, nil
}

// Profile returns the stored profile for userID.
func (s *IdentityService) Profile(ctx context.Context, userID string) (*model.UserProfile, error) {
	var p model.UserProfile
	if err := s.store.Get(ctx, repository.UserKey(userID), &p); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("profile", userID)
		}
		return nil, fmt.Errorf("loading profile %s: %w", userID, err)
	}
	return &p, nil
}
