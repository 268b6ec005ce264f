package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLite is a SQLite-backed Store: a single-file snapshot database, zero
// setup, WAL mode for concurrent reads while a Dump writes — grounded in the teacher's SQLiteStore (same PRAGMA sequence,
// same single-writer connection pool sizing).
type SQLite struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// NewSQLite opens (creating if absent) a snapshot database at path. Use
// ":memory:" for a throwaway store in tests.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("materializer/store: open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("materializer/store: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("materializer/store: set busy_timeout: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.createTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) createTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS materializer_state (
			path             TEXT PRIMARY KEY,
			stage_tag        TEXT NOT NULL,
			method_kind      TEXT NOT NULL DEFAULT '',
			digest           TEXT NOT NULL DEFAULT '',
			last_access_unix INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("materializer/store: create table: %w", err)
	}
	return nil
}

// Dump replaces the whole snapshot inside one transaction.
func (s *SQLite) Dump(ctx context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("materializer/store: dump on closed sqlite store")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("materializer/store: begin dump tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	if _, err := tx.ExecContext(ctx, "DELETE FROM materializer_state"); err != nil {
		return fmt.Errorf("materializer/store: clear table: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO materializer_state (path, stage_tag, method_kind, digest, last_access_unix)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("materializer/store: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.Path, r.StageTag, r.MethodKind, r.Digest, r.LastAccessUnix); err != nil {
			return fmt.Errorf("materializer/store: insert %s: %w", r.Path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("materializer/store: commit dump: %w", err)
	}
	return nil
}

func (s *SQLite) Load(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("materializer/store: load on closed sqlite store")
	}

	rows, err := s.db.QueryContext(ctx, "SELECT path, stage_tag, method_kind, digest, last_access_unix FROM materializer_state")
	if err != nil {
		return nil, fmt.Errorf("materializer/store: query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Path, &r.StageTag, &r.MethodKind, &r.Digest, &r.LastAccessUnix); err != nil {
			return nil, fmt.Errorf("materializer/store: scan row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("materializer/store: row iteration: %w", err)
	}
	return out, nil
}

func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
