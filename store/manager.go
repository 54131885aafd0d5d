package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/tokenkeeper/migrations"
	"github.com/dmitrijs2005/tokenkeeper/owners"
)

// ManagerConfig is the host-supplied configuration surface for a store.
type ManagerConfig struct {
	// DefaultExpiry is the relative expression applied to drafts without an
	// expiry; empty means "+1 hour".
	DefaultExpiry string

	// OwnerTable and OwnerKeyColumn locate the host's owner collection for
	// referential checks; empty values fall back to "users"/"id".
	OwnerTable     string
	OwnerKeyColumn string

	// OwnerCheckDisabled turns the owner association off entirely.
	OwnerCheckDisabled bool
}

// Manager opens a database, runs the embedded migrations and hands out the
// token repository bound to that connection.
type Manager struct {
	db     *sql.DB
	tokens Repository
}

// Conn exposes the underlying connection, e.g. for host-side queries
// against the owner table.
func (m *Manager) Conn() *sql.DB {
	return m.db
}

// Tokens returns the token repository.
func (m *Manager) Tokens() Repository {
	return m.tokens
}

// Close closes the underlying connection.
func (m *Manager) Close() error {
	return m.db.Close()
}

// NewPostgresManager opens a PostgreSQL database by DSN, migrates the tokens
// table and returns a manager around a PostgresRepository.
func NewPostgresManager(ctx context.Context, dsn string, cfg ManagerConfig) (*Manager, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	if err := runMigrations(ctx, db, "postgres", "postgres"); err != nil {
		_ = db.Close()
		return nil, err
	}

	opts := Options{DefaultExpiry: cfg.DefaultExpiry}
	if !cfg.OwnerCheckDisabled {
		opts.Owners = owners.NewPostgresChecker(db, cfg.OwnerTable, cfg.OwnerKeyColumn)
	}

	return &Manager{db: db, tokens: NewPostgresRepository(db, opts)}, nil
}

// NewSQLiteManager opens (or creates) a SQLite database at path, migrates
// the tokens table and returns a manager around a SQLiteRepository. The pool
// is limited to one connection; SQLite allows a single writer anyway, and
// in-memory databases need it to see a single database.
func NewSQLiteManager(ctx context.Context, path string, cfg ManagerConfig) (*Manager, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, "sqlite3", "sqlite"); err != nil {
		_ = db.Close()
		return nil, err
	}

	opts := Options{DefaultExpiry: cfg.DefaultExpiry}
	if !cfg.OwnerCheckDisabled {
		opts.Owners = owners.NewSQLiteChecker(db, cfg.OwnerTable, cfg.OwnerKeyColumn)
	}

	return &Manager{db: db, tokens: NewSQLiteRepository(db, opts)}, nil
}

func runMigrations(ctx context.Context, db *sql.DB, dialect, dir string) error {
	switch dir {
	case "postgres":
		goose.SetBaseFS(migrations.Postgres)
	case "sqlite":
		goose.SetBaseFS(migrations.SQLite)
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}
