package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/learning-platform/internal/apperror"
	"github.com/sakif/learning-platform/internal/authority"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeStore is an in-memory repository.ProfileStore. Values are kept as
// JSON so decoding behaves like the SQLite implementation.
type fakeStore struct {
	mu   sync.Mutex
	data map[string][]byte
	// failSet makes Set fail for keys with this prefix
	failSet string
	// failPut makes PutIfAbsent fail for keys with this prefix
	failPut string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string][]byte)}
}

func (f *fakeStore) Set(_ context.Context, key string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet != "" && strings.HasPrefix(key, f.failSet) {
		return io.ErrUnexpectedEOF
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.data[key] = raw
	return nil
}

func (f *fakeStore) Get(_ context.Context, key string, dst any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.data[key]
	if !ok {
		return apperror.NotFound("key", key)
	}
	return json.Unmarshal(raw, dst)
}

func (f *fakeStore) PutIfAbsent(_ context.Context, key string, value any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut != "" && strings.HasPrefix(key, f.failPut) {
		return false, io.ErrUnexpectedEOF
	}
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	f.data[key] = raw
	return true, nil
}

func (f *fakeStore) Update(_ context.Context, key string, dst any, mutate func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.data[key]
	if !ok {
		return apperror.NotFound("key", key)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return err
	}
	if err := mutate(); err != nil {
		return err
	}
	updated, err := json.Marshal(dst)
	if err != nil {
		return err
	}
	f.data[key] = updated
	return nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeStore) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

// fakeAuthority is an in-memory authority.Authority that records calls.
// Email uniqueness is decided under its mutex, like a real authority.
type fakeAuthority struct {
	mu       sync.Mutex
	users    map[string]fakeUser // keyed by lower-case email
	nextID   int
	calls    []string
	createFn func() error // optional override for CreateUser failures
	down     bool
}

type fakeUser struct {
	id       string
	email    string
	password string
}

func newFakeAuthority() *fakeAuthority {
	return &fakeAuthority{users: make(map[string]fakeUser)}
}

func (f *fakeAuthority) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeAuthority) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAuthority) CreateUser(_ context.Context, email, password string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateUser")
	if f.down {
		return "", apperror.Unavailable("credential authority")
	}
	if f.createFn != nil {
		if err := f.createFn(); err != nil {
			return "", err
		}
	}
	if len(password) < 6 {
		return "", apperror.ValidationFailed("password", "password must be at least 6 characters")
	}
	key := strings.ToLower(email)
	if _, ok := f.users[key]; ok {
		return "", apperror.Conflict("user", email)
	}
	f.nextID++
	u := fakeUser{id: "auth-" + string(rune('a'+f.nextID-1)), email: key, password: password}
	f.users[key] = u
	return u.id, nil
}

func (f *fakeAuthority) SignIn(_ context.Context, email, password string) (*authority.Grant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SignIn")
	if f.down {
		return nil, apperror.Unavailable("credential authority")
	}
	u, ok := f.users[strings.ToLower(email)]
	if !ok || u.password != password {
		return nil, apperror.InvalidCredentials()
	}
	return &authority.Grant{
		AccessToken: "token-" + u.id,
		UserID:      u.id,
		Email:       u.email,
		ExpiresAt:   time.Now().Add(time.Hour),
	}, nil
}

func (f *fakeAuthority) VerifyToken(_ context.Context, token string) (*authority.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("VerifyToken")
	if f.down {
		return nil, apperror.Unavailable("credential authority")
	}
	if token == "expired" {
		return nil, fmt.Errorf("%w: %w", apperror.ErrAuth, jwt.ErrTokenExpired)
	}
	for _, u := range f.users {
		if "token-"+u.id == token {
			return &authority.Identity{UserID: u.id, Email: u.email}, nil
		}
	}
	return nil, apperror.Unauthorized()
}

func (f *fakeAuthority) LookupUser(_ context.Context, userID string) (*authority.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("LookupUser")
	for _, u := range f.users {
		if u.id == userID {
			return &authority.Identity{UserID: u.id, Email: u.email}, nil
		}
	}
	return nil, apperror.NotFound("user", userID)
}

var testTracks = map[string]int{"python": 2, "web-basics": 8}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestIdentityService wires an IdentityService with fakes and a fixed clock.
func newTestIdentityService(t *testing.T, store *fakeStore, auth *fakeAuthority) *IdentityService {
	t.Helper()
	svc := NewIdentityService(store, auth, IdentityConfig{Tracks: testTracks}, testLogger())
	svc.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return svc
}
