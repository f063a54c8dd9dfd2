package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/learning-platform/internal/apperror"
	"github.com/sakif/learning-platform/internal/authority"
	"github.com/sakif/learning-platform/internal/model"
	"github.com/sakif/learning-platform/internal/repository"
)

// Bootstrap marker states.
const (
	bootstrapPending = "pending"
	bootstrapDone    = "done"
)

// bootstrapMarker is stored under repository.BootstrapKey.
type bootstrapMarker struct {
	State     string    `json:"state"`
	Email     string    `json:"email"`
	UserID    string    `json:"userId,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BootstrapPrivilegedAccount is Signup with role forced to admin. It works
// exactly once per store.
//
// FLOW:
//  1. Reserve the marker (pending) with PutIfAbsent; losers of the race and
//     every later call see the existing marker.
//  2. Create the identity at the authority.
//  3. Write the admin profile and mark the marker done.
//
// If step 2 fails the marker is released so the operator can try again. If
// step 3 fails the marker keeps the userID, and calling again with the same
// email finishes the profile write instead of creating a second identity.
//
// Callers are expected to guard this behind an operator-only credential;
// the HTTP route is only mounted when a bootstrap token is configured.
func (s *IdentityService) BootstrapPrivilegedAccount(ctx context.Context, in SignupInput) (*model.UserProfile, error) {
	if err := s.checkConfigured(); err != nil {
		return nil, err
	}

	email, err := authority.ValidateEmail(in.Email)
	if err != nil {
		return nil, err
	}

	marker := bootstrapMarker{State: bootstrapPending, Email: email, UpdatedAt: s.now().UTC()}
	reserved, err := s.store.PutIfAbsent(ctx, repository.BootstrapKey, marker)
	if err != nil {
		return nil, fmt.Errorf("reserving bootstrap marker: %w", err)
	}
	if !reserved {
		return s.resumeBootstrap(ctx, email, in)
	}

	profile, err := s.signup(ctx, in, model.RoleAdmin)
	if err != nil {
		var partial *PartialSignupError
		if errors.As(err, &partial) {
			marker.UserID = partial.Profile.UserID
			marker.UpdatedAt = s.now().UTC()
			if serr := s.store.Set(ctx, repository.BootstrapKey, marker); serr != nil {
				s.logger.Error("recording bootstrap userID failed",
					slog.String("userID", marker.UserID),
					slog.String("error", serr.Error()),
				)
			}
			return nil, err
		}
		if derr := s.store.Delete(ctx, repository.BootstrapKey); derr != nil {
			s.logger.Error("releasing bootstrap marker failed", slog.String("error", derr.Error()))
		}
		return nil, err
	}

	if err := s.finishBootstrap(ctx, marker, profile.UserID); err != nil {
		return nil, err
	}

	s.logger.Warn("admin account bootstrapped; remove BOOTSTRAP_TOKEN from the environment",
		slog.String("userID", profile.UserID),
	)
	return profile, nil
}

// resumeBootstrap handles a call that found the marker already present.
func (s *IdentityService) resumeBootstrap(ctx context.Context, email string, in SignupInput) (*model.UserProfile, error) {
	var marker bootstrapMarker
	if err := s.store.Get(ctx, repository.BootstrapKey, &marker); err != nil {
		return nil, fmt.Errorf("reading bootstrap marker: %w", err)
	}

	switch {
	case marker.State == bootstrapDone:
		return nil, apperror.Forbidden("admin account has already been bootstrapped")
	case marker.Email != email || marker.UserID == "":
		return nil, apperror.Conflict("bootstrap", "in-progress")
	}

	seed := model.NewUserProfile(marker.UserID, email, in.FirstName, in.Country, model.RoleAdmin, s.cfg.Tracks, s.now())
	profile, err := s.saveProfile(ctx, seed)
	if err != nil {
		return nil, s.partial(seed, err)
	}

	if profile.Role != model.RoleAdmin {
		var current model.UserProfile
		err := s.store.Update(ctx, repository.UserKey(profile.UserID), &current, func() error {
			current.Role = model.RoleAdmin
			return nil
		})
		if err != nil {
			return nil, s.partial(seed, err)
		}
		profile = &current
	}

	if err := s.finishBootstrap(ctx, marker, profile.UserID); err != nil {
		return nil, err
	}
	s.logger.Warn("admin bootstrap resumed and completed", slog.String("userID", profile.UserID))
	return profile, nil
}

func (s *IdentityService) finishBootstrap(ctx context.Context, marker bootstrapMarker, userID string) error {
	marker.State = bootstrapDone
	marker.UserID = userID
	marker.UpdatedAt = s.now().UTC()
	if err := s.store.Set(ctx, repository.BootstrapKey, marker); err != nil {
		return fmt.Errorf("completing bootstrap marker: %w", err)
	}
	return nil
}
