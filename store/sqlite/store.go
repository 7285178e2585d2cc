// Package sqlite implements store.Store on SQLite through database/sql and
// the pure-Go modernc.org/sqlite driver. Timestamps are stored as UTC Unix
// nanoseconds. A partial unique index on idem_key enforces that only one
// queued, running or succeeded job holds a key.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // register the "sqlite" driver

	"github.com/pola2025/zipcheck-sub000/job"
	"github.com/pola2025/zipcheck-sub000/output"
	"github.com/pola2025/zipcheck-sub000/usage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ job.Store    = (*Store)(nil)
	_ usage.Store  = (*Store)(nil)
	_ output.Store = (*Store)(nil)
)

// Store is a SQLite implementation of store.Store.
type Store struct {
	db     *sql.DB
	owned  bool
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open opens (or creates) the database file at path. The returned Store
// owns the connection and closes it on Close.
func Open(path string, opts ...Option) (*Store, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("zipcheck/sqlite: open %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection serializes writes
	// instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := New(db, opts...)
	s.owned = true
	return s, nil
}

// New wraps an existing *sql.DB opened with the "sqlite" driver. The
// caller owns the db lifecycle.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate runs all embedded SQL migration files in order.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS zipcheck_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)`)
	if err != nil {
		return fmt.Errorf("zipcheck/sqlite: create migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("zipcheck/sqlite: read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var applied bool
		err = s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM zipcheck_migrations WHERE filename = ?)`,
			entry.Name(),
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("zipcheck/sqlite: check migration %s: %w", entry.Name(), err)
		}
		if applied {
			continue
		}

		data, readErr := fs.ReadFile(migrationsFS, "migrations/"+entry.Name())
		if readErr != nil {
			return fmt.Errorf("zipcheck/sqlite: read migration %s: %w", entry.Name(), readErr)
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("zipcheck/sqlite: begin migration %s: %w", entry.Name(), txErr)
		}
		if _, execErr := tx.ExecContext(ctx, string(data)); execErr != nil {
			_ = tx.Rollback() //nolint:errcheck // best-effort rollback
			return fmt.Errorf("zipcheck/sqlite: execute migration %s: %w", entry.Name(), execErr)
		}
		if _, recErr := tx.ExecContext(ctx,
			`INSERT INTO zipcheck_migrations (filename) VALUES (?)`, entry.Name(),
		); recErr != nil {
			_ = tx.Rollback() //nolint:errcheck // best-effort rollback
			return fmt.Errorf("zipcheck/sqlite: record migration %s: %w", entry.Name(), recErr)
		}
		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("zipcheck/sqlite: commit migration %s: %w", entry.Name(), commitErr)
		}

		s.logger.Info("applied migration", "file", entry.Name())
	}

	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database if the Store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
