package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb"
	_ "github.com/mattn/go-sqlite3"
)

// Driver names registered by the imported database/sql drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
	DriverDuckDB   = "duckdb"
)

// DriverFor returns the database/sql driver serving a dialect name.
func DriverFor(dialect string) (string, error) {
	switch strings.ToLower(dialect) {
	case "sqlite":
		return DriverSQLite, nil
	case "postgres":
		return DriverPostgres, nil
	case "duckdb":
		return DriverDuckDB, nil
	default:
		return "", fmt.Errorf("no driver for dialect %q", dialect)
	}
}

// Store runs feature queries against a SQL backend.
// It is safe for concurrent use; the underlying sql.DB pools connections.
type Store struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger receiving query debug output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open connects to the database at dsn through driver and verifies the
// connection.
//
// SQLite databases are configured with:
//   - a single connection, so in-memory databases are shared by all queries
//   - WAL mode for file databases
//   - 5-second busy timeout for lock contention
//   - foreign key enforcement
func Open(driver, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := applyPragmas(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
	}

	s := New(db, opts...)
	s.driver = driver
	return s, nil
}

// OpenSQLite opens a SQLite database file, or an in-memory database for
// ":memory:".
func OpenSQLite(path string, opts ...Option) (*Store, error) {
	return Open(DriverSQLite, path, opts...)
}

// New wraps an open database.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns the driver name the store was opened with, "" for stores
// created by New.
func (s *Store) Driver() string {
	return s.driver
}

// Exec runs statements in order, stopping at the first failure.
// Used to load fixtures.
func (s *Store) Exec(ctx context.Context, stmts ...string) error {
	for _, stmt := range stmts {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", abbreviate(stmt), err)
		}
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// abbreviate shortens a statement for error messages.
func abbreviate(stmt string) string {
	stmt = strings.Join(strings.Fields(stmt), " ")
	if len(stmt) > 60 {
		return stmt[:57] + "..."
	}
	return stmt
}
