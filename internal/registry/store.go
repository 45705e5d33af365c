// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package registry reads and conditionally updates the crates and versions
// the index is derived from. Every query function takes a sqlx.ExtContext so
// callers choose whether it runs on the pool or inside a transaction.
package registry

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/pdiddy/crates-admin/pkg/types"
)

const (
	driverPostgres = "pgx"
	driverSQLite   = "sqlite3"

	defaultConnectTimeout = 30 * time.Second
)

// Store owns the database pool used for a whole batch run.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Open connects to the database named by cfg.URL. postgres:// and
// postgresql:// URLs use pgx; sqlite:// URLs and bare paths use SQLite.
// The pool defaults to a single connection: the batch is a single writer.
func Open(ctx context.Context, cfg types.DatabaseConfig, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	driver, dsn, err := resolveDSN(cfg.URL, timeout)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	logger.Info("opened database", zap.String("driver", driver))
	return &Store{db: db, logger: logger}, nil
}

// New wraps an already open pool.
func New(db *sqlx.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// DB returns the underlying pool.
func (s *Store) DB() *sqlx.DB { return s.db }

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside one transaction. The transaction commits only if fn
// returns nil; any error or panic rolls it back.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		s.logger.Debug("rolling back transaction", zap.Error(err))
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func resolveDSN(raw string, timeout time.Duration) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		u, err := url.Parse(raw)
		if err != nil {
			return "", "", fmt.Errorf("parsing database URL: %w", err)
		}
		q := u.Query()
		if q.Get("connect_timeout") == "" {
			q.Set("connect_timeout", strconv.Itoa(int(timeout.Seconds())))
		}
		u.RawQuery = q.Encode()
		return driverPostgres, u.String(), nil
	case strings.Contains(raw, "://") && !strings.HasPrefix(raw, "sqlite://"):
		return "", "", fmt.Errorf("unsupported database URL scheme in %q: use postgres:// or sqlite://", raw)
	}

	path := strings.TrimPrefix(raw, "sqlite://")
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", "", fmt.Errorf("creating database directory: %w", err)
		}
	}
	busy := strconv.Itoa(int(timeout.Milliseconds()))
	return driverSQLite, path + "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=" + busy, nil
}

func isPostgres(q sqlx.ExtContext) bool {
	switch q.DriverName() {
	case driverPostgres, "postgres":
		return true
	}
	return false
}

// EnsureSchema creates the registry tables used by local SQLite fixtures.
// The production schema is owned by the registry's migrations, so this is
// refused on Postgres.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if isPostgres(s.db) {
		return fmt.Errorf("refusing to create schema on a postgres database")
	}
	statements := []string{
		`CREATE TABLE IF NOT EXISTS crates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS versions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			crate_id INTEGER NOT NULL REFERENCES crates(id),
			num TEXT NOT NULL,
			checksum TEXT NOT NULL DEFAULT '',
			yanked BOOLEAN NOT NULL DEFAULT 0,
			links TEXT,
			features TEXT NOT NULL DEFAULT '{}',
			rust_version TEXT,
			UNIQUE (crate_id, num)
		)`,
		`CREATE TABLE IF NOT EXISTS dependencies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version_id INTEGER NOT NULL REFERENCES versions(id),
			crate_id INTEGER NOT NULL REFERENCES crates(id),
			req TEXT NOT NULL,
			optional BOOLEAN NOT NULL DEFAULT 0,
			default_features BOOLEAN NOT NULL DEFAULT 1,
			features TEXT NOT NULL DEFAULT '[]',
			target TEXT,
			kind INTEGER NOT NULL DEFAULT 0,
			explicit_name TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_versions_crate_id ON versions(crate_id)`,
		`CREATE INDEX IF NOT EXISTS idx_dependencies_version_id ON dependencies(version_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}
