package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sakif/learning-platform/internal/apperror"
	"github.com/sakif/learning-platform/internal/auth"
	"github.com/sakif/learning-platform/internal/handler"
	"github.com/sakif/learning-platform/internal/model"
)

type fakeProgress struct {
	userID, track, lesson, quiz string
	score                       float64
	err                         error
}

func (f *fakeProgress) RecordLesson(_ context.Context, userID, track, lessonID string) (*model.UserProfile, error) {
	f.userID, f.track, f.lesson = userID, track, lessonID
	return sampleProfile(), f.err
}

func (f *fakeProgress) RecordQuizScore(_ context.Context, userID, quizID string, score float64) (*model.UserProfile, error) {
	f.userID, f.quiz, f.score = userID, quizID, score
	return sampleProfile(), f.err
}

func authed(r *http.Request, userID string) *http.Request {
	return r.WithContext(auth.WithUserID(r.Context(), userID))
}

func TestProgressHandler_HandleLesson(t *testing.T) {
	svc := &fakeProgress{}
	h := handler.NewProgressHandler(svc, logger)

	rr := httptest.NewRecorder()
	h.HandleLesson(rr, authed(postJSON("/progress/lessons", `{"track":"python","lessonId":"py-1"}`), "user-7"))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "user-7", svc.userID)
	assert.Equal(t, "python", svc.track)
	assert.Equal(t, "py-1", svc.lesson)
}

func TestProgressHandler_HandleLessonUnknownTrack(t *testing.T) {
	h := handler.NewProgressHandler(&fakeProgress{err: apperror.ValidationFailed("track", "unknown course track")}, logger)

	rr := httptest.NewRecorder()
	h.HandleLesson(rr, authed(postJSON("/progress/lessons", `{"track":"rust","lessonId":"rs-1"}`), "user-7"))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestProgressHandler_HandleQuiz(t *testing.T) {
	t.Run("recorded", func(t *testing.T) {
		svc := &fakeProgress{}
		h := handler.NewProgressHandler(svc, logger)

		rr := httptest.NewRecorder()
		h.HandleQuiz(rr, authed(postJSON("/progress/quizzes", `{"quizId":"q1","score":0}`), "user-7"))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "q1", svc.quiz)
		assert.Equal(t, 0.0, svc.score)
	})

	t.Run("missing score", func(t *testing.T) {
		h := handler.NewProgressHandler(&fakeProgress{}, logger)

		rr := httptest.NewRecorder()
		h.HandleQuiz(rr, authed(postJSON("/progress/quizzes", `{"quizId":"q1"}`), "user-7"))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("anonymous", func(t *testing.T) {
		h := handler.NewProgressHandler(&fakeProgress{}, logger)

		rr := httptest.NewRecorder()
		h.HandleQuiz(rr, postJSON("/progress/quizzes", `{"quizId":"q1","score":10}`))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
