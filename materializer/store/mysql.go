package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/go-sql-driver/mysql"
)

// MySQL is a MySQL-backed Store, for a build daemon sharing its
// materializer snapshot across hosts (e.g. a remote-execution fronting
// layer that wants multiple workers to see the same artifact-tree state).
type MySQL struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// NewMySQL opens a connection using dsn (standard go-sql-driver/mysql DSN
// syntax, e.g. "user:pass@tcp(host:3306)/dbname?parseTime=true").
func NewMySQL(dsn string) (*MySQL, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("materializer/store: open mysql: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("materializer/store: ping mysql: %w", err)
	}

	s := &MySQL{db: db}
	if err := s.createTable(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQL) createTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS materializer_state (
			path             VARCHAR(1024) PRIMARY KEY,
			stage_tag        VARCHAR(32) NOT NULL,
			method_kind      VARCHAR(32) NOT NULL DEFAULT '',
			digest           VARCHAR(256) NOT NULL DEFAULT '',
			last_access_unix BIGINT NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("materializer/store: create table: %w", err)
	}
	return nil
}

func (s *MySQL) Dump(ctx context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("materializer/store: dump on closed mysql store")
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

func (s *MySQL) Load(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("materializer/store: load on closed mysql store")
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

func (s *MySQL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
