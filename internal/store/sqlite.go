package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"snippetd/internal/snippet"
)

// SQLite stores snippets in a local database. Entries keep the order in
// which they were first saved.
type SQLite struct {
	db   *sql.DB
	path string
	opts options
	*notifier
}

// withBusyTimeout is applied by Open from the storage config.
func withBusyTimeout(ms int) Option {
	return func(o *options) { o.busyTimeoutMs = ms }
}

// OpenSQLite opens or creates the database at path and runs migrations.
func OpenSQLite(path string, opts ...Option) (*SQLite, error) {
	o := buildOptions(opts)

	db, err := openDB(path, o)
	if err != nil {
		return nil, err
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &SQLite{
		db:       db,
		path:     path,
		opts:     o,
		notifier: &notifier{scope: snippet.ScopeLocal},
	}, nil
}

// OpenDatabase opens or creates the database at path without touching its
// schema, for migration maintenance.
func OpenDatabase(path string, opts ...Option) (*sql.DB, error) {
	return openDB(path, buildOptions(opts))
}

func openDB(path string, o options) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	busy := o.busyTimeoutMs
	if busy <= 0 {
		busy = 5000
	}
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d", path, busy)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// Scope implements Collection.
func (s *SQLite) Scope() string { return snippet.ScopeLocal }

// Path returns the database file.
func (s *SQLite) Path() string { return s.path }

// DB exposes the underlying handle for maintenance tasks.
func (s *SQLite) DB() *sql.DB { return s.db }

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get implements Collection.
func (s *SQLite) Get(ctx context.Context) ([]snippet.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, text, created_at, updated_at
		FROM snippets
		ORDER BY position, rowid`)
	if err != nil {
		return nil, fmt.Errorf("query snippets: %w", err)
	}
	defer rows.Close()

	var entries []snippet.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snippets: %w", err)
	}
	return entries, nil
}

// Find implements Collection.
func (s *SQLite) Find(ctx context.Context, id string) (snippet.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, code, text, created_at, updated_at
		FROM snippets WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return snippet.Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, err
}

// Save implements Collection.
func (s *SQLite) Save(ctx context.Context, e snippet.Entry) (bool, error) {
	e, err := prepare(e, s.opts.now())
	if err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE snippets SET code = ?, text = ?, updated_at = ?
		WHERE id = ?`,
		e.Code, e.Text, e.UpdatedAt.UnixNano(), e.ID,
	)
	if err != nil {
		return false, fmt.Errorf("update snippet: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	updated := n > 0

	if !updated {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO snippets (id, code, text, position, created_at, updated_at)
			VALUES (?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM snippets), ?, ?)`,
			e.ID, e.Code, e.Text, e.CreatedAt.UnixNano(), e.UpdatedAt.UnixNano(),
		); err != nil {
			return false, fmt.Errorf("insert snippet: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}

	s.notify()
	return updated, nil
}

// Delete implements Collection.
func (s *SQLite) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM snippets WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete snippet: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.notify()
	return nil
}

// Count returns the number of stored entries.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snippets").Scan(&n); err != nil {
		return 0, fmt.Errorf("count snippets: %w", err)
	}
	return n, nil
}

// Watch implements Collection. Commits by other processes land in the
// write-ahead log first, so both files are watched.
func (s *SQLite) Watch(ctx context.Context) error {
	return watchFiles(ctx, []string{s.path, s.path + "-wal"}, s.opts, s.notifier)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (snippet.Entry, error) {
	var (
		e                    snippet.Entry
		createdAt, updatedAt int64
	)
	if err := row.Scan(&e.ID, &e.Code, &e.Text, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("scan snippet: %w", err)
	}
	e.CreatedAt = time.Unix(0, createdAt).UTC()
	e.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return e, nil
}
