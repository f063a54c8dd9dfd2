package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/learning-platform/internal/apperror"
	"github.com/sakif/learning-platform/internal/model"
	"github.com/sakif/learning-platform/internal/repository"
)

// compile-time check that *DB implements repository.CredentialRepository
var _ repository.CredentialRepository = (*DB)(nil)

// CreateCredential inserts a new credential row.
//
// The ID is an xid: 20 URL-safe characters, sortable by creation time.
// It becomes the userId everywhere else in the system.
//
// DUPLICATES:
// We don't SELECT-then-INSERT. The UNIQUE constraint on email decides, so two
// concurrent signups for the same address cannot both win; the loser gets
// apperror.ErrConflict.
func (db *DB) CreateCredential(ctx context.Context, cred *model.Credential) error {
	cred.ID = xid.New().String()
	cred.CreatedAt = time.Now().UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO credentials (id, email, password_hash, created_at)
		 VALUES (?, ?, ?, ?)`,
		cred.ID,
		cred.Email,
		cred.PasswordHash,
		cred.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("credential", cred.Email)
		}
		return fmt.Errorf("sqlite: inserting credential (email=%s): %w", cred.Email, err)
	}

	return nil
}

// GetCredentialByEmail looks a credential up by email, ignoring case.
// Returns apperror.ErrNotFound if no credential exists for that address.
func (db *DB) GetCredentialByEmail(ctx context.Context, email string) (*model.Credential, error) {
	return db.getCredential(ctx, `WHERE email = ?`, email)
}

// GetCredentialByID retrieves a credential by its ID.
// Returns apperror.ErrNotFound if no credential exists with that ID.
func (db *DB) GetCredentialByID(ctx context.Context, id string) (*model.Credential, error) {
	return db.getCredential(ctx, `WHERE id = ?`, id)
}

func (db *DB) getCredential(ctx context.Context, where string, arg string) (*model.Credential, error) {
	var c model.Credential

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM credentials `+where,
		arg,
	).Scan(
		&c.ID,
		&c.Email,
		&c.PasswordHash,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("credential", arg)
		}
		return nil, fmt.Errorf("sqlite: getting credential %s: %w", arg, err)
	}

	return &c, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
