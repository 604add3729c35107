// Package sqlstore implements the repository interfaces on top of a SQL database.
//
// Two backends are supported through the same code:
//   - SQLite (modernc.org/sqlite, pure Go). The default; tests use ":memory:".
//   - PostgreSQL (jackc/pgx via database/sql), selected when the DSN starts
//     with postgres:// or postgresql://. Required by the Electric change
//     feed, which replicates from Postgres.
//
// Queries are written once with `?` placeholders and passed through
// sqlx.Rebind, which rewrites them to `$1, $2, ...` for Postgres.
// Schema changes live in embedded goose migrations, one directory per dialect.
package sqlstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	// registers the "pgx" database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

// Dialect identifies the SQL backend behind a Store.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func init() {
	// sqlx only knows the cgo driver name "sqlite3"; modernc registers "sqlite".
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Store wraps a sqlx connection pool and implements
// repository.UserRepository, repository.SessionRepository and
// repository.JokeRepository.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
	now     func() time.Time
}

// DialectFor picks the backend from a DSN.
func DialectFor(dsn string) Dialect {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// Open connects to the database named by dsn and brings the schema up to date.
//
//   - "data/jokebox.db"                  → SQLite file
//   - ":memory:"                         → SQLite in memory (tests)
//   - "postgres://user:pw@host/db"       → PostgreSQL
func Open(ctx context.Context, dsn string) (*Store, error) {
	s, err := Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("sqlstore: running migrations: %w", err)
	}
	return s, nil
}

// EnsureDir creates the parent directory of a SQLite database file.
// It does nothing for Postgres DSNs and in-memory databases.
func EnsureDir(dsn string) error {
	if DialectFor(dsn) != DialectSQLite || dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	return os.MkdirAll(filepath.Dir(dsn), 0o755)
}

// Connect opens the pool without touching the schema.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	dialect := DialectFor(dsn)

	var (
		db  *sqlx.DB
		err error
	)
	switch dialect {
	case DialectPostgres:
		db, err = sqlx.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: opening postgres: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(5 * time.Minute)
	default:
		db, err = sqlx.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: opening sqlite: %w", err)
		}
		// SQLite allows a single writer. One pooled connection serializes
		// writes in-process and keeps ":memory:" databases alive, since
		// every new connection to ":memory:" would see an empty database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: pinging %s: %w", dialect, err)
	}

	if dialect == DialectSQLite {
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA foreign_keys=ON",
			"PRAGMA busy_timeout=5000",
		} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("sqlstore: %s: %w", pragma, err)
			}
		}
	}

	return &Store{db: db, dialect: dialect, now: time.Now}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dialect reports which backend this store talks to.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SetClock overrides the time source used for created/updated timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Migrate applies all pending goose migrations for this dialect.
func (s *Store) Migrate(ctx context.Context) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	dir, err := s.useGoose()
	if err != nil {
		return err
	}
	return goose.UpContext(ctx, s.db.DB, dir)
}

// Reset rolls every migration back, dropping all application tables.
// Used by the admin CLI; never called by the server.
func (s *Store) Reset(ctx context.Context) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	dir, err := s.useGoose()
	if err != nil {
		return err
	}
	return goose.DownToContext(ctx, s.db.DB, dir, 0)
}

func (s *Store) useGoose() (string, error) {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())

	dialect, dir := "sqlite3", "migrations/sqlite"
	if s.dialect == DialectPostgres {
		dialect, dir = "postgres", "migrations/postgres"
	}
	if err := goose.SetDialect(dialect); err != nil {
		return "", fmt.Errorf("sqlstore: setting goose dialect: %w", err)
	}
	return dir, nil
}

// timestamp returns the current time normalized for storage: UTC, so SQLite's
// text timestamps sort chronologically, and microsecond precision, so values
// round-trip through Postgres unchanged.
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Store) rebind(query string) string {
	return s.db.Rebind(query)
}

// isUniqueViolation recognizes duplicate-key errors from either driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}

	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
