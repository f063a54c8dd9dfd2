package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/sakif/learning-platform/internal/apperror"
	"github.com/sakif/learning-platform/internal/model"
	"github.com/sakif/learning-platform/internal/repository"
)

// Quiz score bounds.
const (
	MinQuizScore = 0
	MaxQuizScore = 100
)

// ProgressService records lesson and quiz completion on a learner's profile.
//
// Every update is a single store.Update transaction on user:<userID>, so
// two concurrent completions for the same user never lose each other.
type ProgressService struct {
	store  repository.ProfileStore
	logger *slog.Logger
}

// NewProgressService creates a ProgressService.
func NewProgressService(store repository.ProfileStore, logger *slog.Logger) *ProgressService {
	return &ProgressService{store: store, logger: logger}
}

// RecordLesson marks lessonID as completed within track.
//
// Completing the same lesson twice is a no-op. The track counter never
// exceeds its total.
func (s *ProgressService) RecordLesson(ctx context.Context, userID, track, lessonID string) (*model.UserProfile, error) {
	track = strings.TrimSpace(track)
	lessonID = strings.TrimSpace(lessonID)
	if track == "" {
		return nil, apperror.ValidationFailed("track", "track is required")
	}
	if lessonID == "" {
		return nil, apperror.ValidationFailed("lessonId", "lessonId is required")
	}

	var p model.UserProfile
	err := s.store.Update(ctx, repository.UserKey(userID), &p, func() error {
		tp, ok := p.Progress[track]
		if !ok {
			return apperror.ValidationFailed("track", fmt.Sprintf("unknown course track %q", track))
		}
		if p.HasCompleted(lessonID) {
			return nil
		}
		p.CompletedLessons = append(p.CompletedLessons, lessonID)
		if tp.Completed < tp.Total {
			tp.Completed++
		}
		p.Progress[track] = tp
		return nil
	})
	if err != nil {
		return nil, s.wrap(userID, err)
	}

	s.logger.Info("lesson recorded",
		slog.String("userID", userID),
		slog.String("track", track),
		slog.String("lessonID", lessonID),
	)
	return &p, nil
}

// RecordQuizScore stores the latest score for quizID.
func (s *ProgressService) RecordQuizScore(ctx context.Context, userID, quizID string, score float64) (*model.UserProfile, error) {
	quizID = strings.TrimSpace(quizID)
	if quizID == "" {
		return nil, apperror.ValidationFailed("quizId", "quizId is required")
	}
	if math.IsNaN(score) || score < MinQuizScore || score > MaxQuizScore {
		return nil, apperror.ValidationFailed("score",
			fmt.Sprintf("score must be between %d and %d", MinQuizScore, MaxQuizScore))
	}

	var p model.UserProfile
	err := s.store.Update(ctx, repository.UserKey(userID), &p, func() error {
		if p.QuizScores == nil {
			p.QuizScores = map[string]float64{}
		}
		p.QuizScores[quizID] = score
		return nil
	})
	if err != nil {
		return nil, s.wrap(userID, err)
	}

	s.logger.Info("quiz score recorded",
		slog.String("userID", userID),
		slog.String("quizID", quizID),
	)
	return &p, nil
}

// wrap passes apperrors through untouched and adds context to store failures.
func (s *ProgressService) wrap(userID string, err error) error {
	if errors.Is(err, apperror.ErrNotFound) {
		return apperror.NotFound("profile", userID)
	}
	if apperror.Kind(err) != "internal_error" {
		return err
	}
	s.logger.Error("progress update failed",
		slog.String("userID", userID),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("updating progress for %s: %w", userID, err)
}
