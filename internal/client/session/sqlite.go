package session

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/sakif/learning-platform/internal/client/session/migrations"
	"github.com/sakif/learning-platform/internal/model"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the session in a small local SQLite file so it
// survives restarts of the client.
type SQLiteStore struct {
	conn *sql.DB
}

// compile-time checks
var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// OpenSQLite opens (or creates) the session database at path and applies
// its migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("session: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("session: pinging database: %w", err)
	}

	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("session: setting goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, conn, "."); err != nil {
		conn.Close()
		return nil, fmt.Errorf("session: applying migrations: %w", err)
	}

	return &SQLiteStore{conn: conn}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// Load returns the stored live session or ErrNoSession.
func (s *SQLiteStore) Load(ctx context.Context) (*model.Session, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT key, value FROM session_kv`)
	if err != nil {
		return nil, fmt.Errorf("session: loading: %w", err)
	}
	defer rows.Close()

	values := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("session: scanning: %w", err)
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session: iterating: %w", err)
	}
	return fromValues(values)
}

// Save replaces the stored session in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, sess *model.Session) (err error) {
	if err := checkSaveable(sess); err != nil {
		return err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session: beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM session_kv`); err != nil {
		return fmt.Errorf("session: clearing: %w", err)
	}
	for k, v := range toValues(sess) {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO session_kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)`, k, v,
		); err != nil {
			return fmt.Errorf("session: saving %s: %w", k, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("session: committing: %w", err)
	}
	return nil
}

// Clear removes every stored value.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM session_kv`); err != nil {
		return fmt.Errorf("session: clearing: %w", err)
	}
	return nil
}
