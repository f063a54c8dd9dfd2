// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import (
	"slices"
	"strings"
	"time"
)

// UserProfile is the learner record kept in the profile store under
// "user:<userId>".
//
// INVARIANTS:
//   - exactly one profile per UserID
//   - Email is unique across profiles (compared case-insensitively)
//   - CreatedAt never changes after the first write
//   - for every track, 0 <= Completed <= Total and Total > 0
//   - CompletedLessons only ever grows
type UserProfile struct {
	UserID           string                   `json:"userId"`
	Email            string                   `json:"email"`
	FirstName        string                   `json:"firstName,omitempty"`
	Country          string                   `json:"country,omitempty"`
	Role             Role                     `json:"role"`
	CreatedAt        time.Time                `json:"createdAt"`
	Progress         map[string]TrackProgress `json:"progress"`
	CompletedLessons []string                 `json:"completedLessons"`
	QuizScores       map[string]float64       `json:"quizScores"`
}

// TrackProgress counts completed lessons within one course track.
type TrackProgress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// NewUserProfile builds a profile with zeroed progress for every track in
// tracks (track name → lesson total). Tracks with a non-positive total are skipped.
func NewUserProfile(userID, email, firstName, country string, role Role, tracks map[string]int, now time.Time) *UserProfile {
	progress := make(map[string]TrackProgress, len(tracks))
	for name, total := range tracks {
		if total <= 0 {
			continue
		}
		progress[name] = TrackProgress{Completed: 0, Total: total}
	}

	return &UserProfile{
		UserID:           userID,
		Email:            email,
		FirstName:        strings.TrimSpace(firstName),
		Country:          strings.TrimSpace(country),
		Role:             role,
		CreatedAt:        now.UTC(),
		Progress:         progress,
		CompletedLessons: []string{},
		QuizScores:       map[string]float64{},
	}
}

// HasCompleted reports whether lessonID is already in CompletedLessons.
func (p *UserProfile) HasCompleted(lessonID string) bool {
	return slices.Contains(p.CompletedLessons, lessonID)
}

// NormalizeEmail is the canonical form used for comparisons and index keys.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
