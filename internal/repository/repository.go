// Package repository declares the persistence contracts used by the
// identity service. Implementations live in sub-packages (see sqlite).
package repository

import (
	"context"

	"github.com/sakif/learning-platform/internal/model"
)

// ProfileStore is a durable key-value store of JSON values.
//
// Each call is atomic at key granularity: a reader never observes a
// half-written value. Values are encoded with encoding/json.
type ProfileStore interface {
	// Set upserts value under key.
	Set(ctx context.Context, key string, value any) error
	// Get decodes the value under key into dst, or returns apperror.ErrNotFound.
	Get(ctx context.Context, key string, dst any) error
	// PutIfAbsent stores value only if key is unused. It reports whether it stored.
	PutIfAbsent(ctx context.Context, key string, value any) (bool, error)
	// Update loads key into dst, runs mutate, and writes dst back, all in one
	// transaction. Returns apperror.ErrNotFound if key is absent.
	Update(ctx context.Context, key string, dst any, mutate func() error) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// CredentialRepository stores the local credential authority's records.
type CredentialRepository interface {
	// CreateCredential inserts cred, filling ID and CreatedAt.
	// A duplicate email (case-insensitive) yields apperror.ErrConflict.
	CreateCredential(ctx context.Context, cred *model.Credential) error
	GetCredentialByEmail(ctx context.Context, email string) (*model.Credential, error)
	GetCredentialByID(ctx context.Context, id string) (*model.Credential, error)
}

// Key prefixes used in the profile store.
const (
	userKeyPrefix  = "user:"
	emailKeyPrefix = "email:"

	// BootstrapKey holds the one-time admin bootstrap marker.
	BootstrapKey = "system:bootstrap"
)

// UserKey returns the profile key for userID.
func UserKey(userID string) string {
	return userKeyPrefix + userID
}

// EmailKey returns the uniqueness-index key for email. Emails are
// normalised so that lookups are case-insensitive.
func EmailKey(email string) string {
	return emailKeyPrefix + model.NormalizeEmail(email)
}
