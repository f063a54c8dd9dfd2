package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/learning-platform/internal/apperror"
	"github.com/sakif/learning-platform/internal/repository"
)

// compile-time check that *DB implements repository.ProfileStore
var _ repository.ProfileStore = (*DB)(nil)

// Set JSON-encodes value and upserts it under key.
//
// A single INSERT ... ON CONFLICT statement is atomic, so a concurrent Get
// sees either the old value or the new one, never a mix.
func (db *DB) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("sqlite: encoding value for %s: %w", key, err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, raw, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting %s: %w", key, err)
	}
	return nil
}

// Get decodes the value stored under key into dst.
// Returns apperror.ErrNotFound if key has never been set.
func (db *DB) Get(ctx context.Context, key string, dst any) error {
	raw, err := db.GetRaw(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("sqlite: decoding %s: %w", key, err)
	}
	return nil
}

// GetRaw returns the exact bytes stored under key.
func (db *DB) GetRaw(ctx context.Context, key string) (json.RawMessage, error) {
	var raw []byte
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("key", key)
		}
		return nil, fmt.Errorf("sqlite: getting %s: %w", key, err)
	}
	return raw, nil
}

// PutIfAbsent stores value under key only when key is unused.
// The bool result is false when another value already holds the key.
func (db *DB) PutIfAbsent(ctx context.Context, key string, value any) (bool, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("sqlite: encoding value for %s: %w", key, err)
	}

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO NOTHING`,
		key, raw, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: reserving %s: %w", key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: reserving %s: %w", key, err)
	}
	return n == 1, nil
}

// Update performs a read-modify-write of key inside one transaction.
//
// FLOW:
//  1. SELECT the current value and decode it into dst
//  2. call mutate, which edits dst in place (or returns an error to abort)
//  3. encode dst and UPDATE the row
//
// Because the pool holds a single connection, no other statement can slip
// in between steps 1 and 3.
func (db *DB) Update(ctx context.Context, key string, dst any, mutate func() error) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var raw []byte
		err := tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.NotFound("key", key)
			}
			return fmt.Errorf("sqlite: loading %s: %w", key, err)
		}

		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("sqlite: decoding %s: %w", key, err)
		}

		if err := mutate(); err != nil {
			return err
		}

		updated, err := json.Marshal(dst)
		if err != nil {
			return fmt.Errorf("sqlite: encoding %s: %w", key, err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE kv SET value = ?, updated_at = ? WHERE key = ?`,
			updated, time.Now().UTC(), key,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating %s: %w", key, err)
		}
		return nil
	})
}

// Delete removes key if present.
func (db *DB) Delete(ctx context.Context, key string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite: deleting %s: %w", key, err)
	}
	return nil
}
