package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/learning-platform/internal/apperror"
	"github.com/sakif/learning-platform/internal/model"
)

func liveSession() *model.Session {
	return &model.Session{
		UserID:      "u-1",
		Email:       "ada@example.com",
		Role:        model.RoleStudent,
		AccessToken: "tok",
		Mode:        model.ModeLive,
	}
}

func openTestSQLite(t *testing.T, path string) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": openTestSQLite(t, ":memory:"),
	}
}

func TestStore_EmptyHasNoSession(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Load(context.Background())
			assert.ErrorIs(t, err, ErrNoSession)
		})
	}
}

func TestStore_SaveLoadClear(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Save(ctx, liveSession()))

			got, err := s.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, liveSession(), got)

			require.NoError(t, s.Clear(ctx))
			_, err = s.Load(ctx)
			assert.ErrorIs(t, err, ErrNoSession)
		})
	}
}

func TestStore_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Save(ctx, liveSession()))

			next := liveSession()
			next.UserID = "u-2"
			next.AccessToken = "tok-2"
			next.Role = model.RoleAdmin
			require.NoError(t, s.Save(ctx, next))

			got, err := s.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, next, got)
		})
	}
}

func TestStore_RejectsDemoAndIncompleteSessions(t *testing.T) {
	ctx := context.Background()

	demo := &model.Session{UserID: "demo-x", Email: "a@b.com", Role: model.RoleStudent, Mode: model.ModeDemo}
	noToken := liveSession()
	noToken.AccessToken = ""

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, s.Save(ctx, demo), apperror.ErrValidation)
			assert.ErrorIs(t, s.Save(ctx, noToken), apperror.ErrValidation)
			assert.ErrorIs(t, s.Save(ctx, nil), apperror.ErrValidation)

			_, err := s.Load(ctx)
			assert.ErrorIs(t, err, ErrNoSession)
		})
	}
}

func TestFromValues_MissingEitherKeyIsNoSession(t *testing.T) {
	_, err := fromValues(map[string]string{keyAccessToken: "tok"})
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = fromValues(map[string]string{keyUserID: "u-1"})
	assert.ErrorIs(t, err, ErrNoSession)

	got, err := fromValues(map[string]string{keyAccessToken: "tok", keyUserID: "u-1", keyRole: "wizard"})
	require.NoError(t, err)
	assert.Equal(t, model.RoleStudent, got.Role)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	ctx := context.Background()

	first, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, liveSession()))
	require.NoError(t, first.Close())

	second := openTestSQLite(t, path)
	got, err := second.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.UserID)
}
