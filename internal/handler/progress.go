package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/learning-platform/internal/apperror"
	"github.com/sakif/learning-platform/internal/auth"
	"github.com/sakif/learning-platform/internal/model"
)

// ProgressService is the subset of *service.ProgressService the handlers use.
type ProgressService interface {
	RecordLesson(ctx context.Context, userID, track, lessonID string) (*model.UserProfile, error)
	RecordQuizScore(ctx context.Context, userID, quizID string, score float64) (*model.UserProfile, error)
}

// LessonRequest is the body of POST /progress/lessons.
type LessonRequest struct {
	Track    string `json:"track"`
	LessonID string `json:"lessonId"`
}

// QuizRequest is the body of POST /progress/quizzes.
type QuizRequest struct {
	QuizID string   `json:"quizId"`
	Score  *float64 `json:"score"`
}

// ProgressHandler records learning events for the authenticated user.
// The target profile is always the bearer's own userID.
type ProgressHandler struct {
	svc    ProgressService
	logger *slog.Logger
}

// NewProgressHandler creates a ProgressHandler.
func NewProgressHandler(svc ProgressService, logger *slog.Logger) *ProgressHandler {
	return &ProgressHandler{svc: svc, logger: logger}
}

// HandleLesson marks a lesson completed.
//
// HTTP: POST /progress/lessons → 200 profile
func (h *ProgressHandler) HandleLesson(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthorized())
		return
	}

	var req LessonRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	profile, err := h.svc.RecordLesson(r.Context(), userID, req.Track, req.LessonID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleQuiz records a quiz score.
//
// HTTP: POST /progress/quizzes → 200 profile
func (h *ProgressHandler) HandleQuiz(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthorized())
		return
	}

	var req QuizRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Score == nil {
		writeError(w, h.logger, apperror.ValidationFailed("score", "score is required"))
		return
	}

	profile, err := h.svc.RecordQuizScore(r.Context(), userID, req.QuizID, *req.Score)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
