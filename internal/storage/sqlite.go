package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLite is a blob backend demonstrating that the Backend contract is not
// DOM-storage-specific: any keyed byte-blob store qualifies, including a
// SQL table. Always a "custom"-capability provider (spec.md §3) — the
// cascade never auto-selects it.
//
// Uses the pure-Go modernc.org/sqlite driver so the backend carries no
// cgo dependency, matching the teacher's own dependency-light deployment
// story.
type SQLite struct {
	db   *sql.DB
	path string
}

var _ Backend = (*SQLite)(nil)
var _ Prober = (*SQLite)(nil)

// NewSQLite opens (creating if necessary) a SQLite database at path and
// ensures its schema exists.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: opening sqlite db: %w", err)
	}
	const schema = `CREATE TABLE IF NOT EXISTS tokenmanager_blob (
		id INTEGER PRIMARY KEY CHECK (id = 0),
		value TEXT NOT NULL
	)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: creating sqlite schema: %w", err)
	}
	return &SQLite{db: db, path: path}, nil
}

func (s *SQLite) Name() string { return "custom:sqlite" }
func (s *SQLite) Keyed() bool  { return false }

// Path returns the database file path, used by crosstab's fsnotify
// source to know what directory to watch.
func (s *SQLite) Path() string { return s.path }

// Probe runs a trivial round trip to confirm the database is reachable
// and writable.
func (s *SQLite) Probe(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("storage: sqlite backend unavailable: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) GetItem(ctx context.Context, _ string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM tokenmanager_blob WHERE id = 0`).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("storage: sqlite read: %w", err)
	}
	return value, true, nil
}

func (s *SQLite) SetItem(ctx context.Context, _ string, value string) error {
	const upsert = `INSERT INTO tokenmanager_blob (id, value) VALUES (0, ?)
		ON CONFLICT(id) DO UPDATE SET value = excluded.value`
	if _, err := s.db.ExecContext(ctx, upsert, value); err != nil {
		return fmt.Errorf("storage: sqlite write: %w", err)
	}
	return nil
}

func (s *SQLite) RemoveItem(ctx context.Context, subkey string) error {
	return s.Clear(ctx)
}

func (s *SQLite) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tokenmanager_blob WHERE id = 0`); err != nil {
		return fmt.Errorf("storage: sqlite clear: %w", err)
	}
	return nil
}
