// Package session persists the client's live session between runs.
//
// The stored state is an access token and a user id, plus the email and
// role needed to rebuild a model.Session. If either the token or the user
// id is missing there is no session. Demo sessions are never stored.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/sakif/learning-platform/internal/apperror"
	"github.com/sakif/learning-platform/internal/model"
)

// ErrNoSession is returned by Load when nothing usable is stored.
var ErrNoSession = errors.New("session: no stored session")

// Store is the client's persisted session state.
type Store interface {
	Load(ctx context.Context) (*model.Session, error)
	Save(ctx context.Context, s *model.Session) error
	Clear(ctx context.Context) error
}

// Stored keys.
const (
	keyAccessToken = "access_token"
	keyUserID      = "user_id"
	keyEmail       = "email"
	keyRole        = "role"
)

func checkSaveable(s *model.Session) error {
	if s == nil || s.IsDemo() {
		return apperror.ValidationFailed("session", "only live sessions are stored")
	}
	if s.AccessToken == "" || s.UserID == "" {
		return apperror.ValidationFailed("session", "access token and user id are required")
	}
	return nil
}

// fromValues rebuilds a live session, or ErrNoSession if the token or the
// user id is absent. An unknown stored role degrades to student.
func fromValues(values map[string]string) (*model.Session, error) {
	token, userID := values[keyAccessToken], values[keyUserID]
	if token == "" || userID == "" {
		return nil, ErrNoSession
	}

	r, err := model.ParseRole(values[keyRole])
	if err != nil {
		r = model.RoleStudent
	}
	return &model.Session{
		UserID:      userID,
		Email:       values[keyEmail],
		Role:        r,
		AccessToken: token,
		Mode:        model.ModeLive,
	}, nil
}

func toValues(s *model.Session) map[string]string {
	return map[string]string{
		keyAccessToken: s.AccessToken,
		keyUserID:      s.UserID,
		keyEmail:       s.Email,
		keyRole:        s.Role.String(),
	}
}

// MemoryStore keeps the session in process memory. Used by tests and by
// the CLI when no session database is configured.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: map[string]string{}}
}

func (m *MemoryStore) Load(_ context.Context) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fromValues(m.values)
}

func (m *MemoryStore) Save(_ context.Context, s *model.Session) error {
	if err := checkSaveable(s); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = toValues(s)
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = map[string]string{}
	return nil
}
