// Package state is the SQL storage backend of leapgov.
//
// SQLStore implements both core.VersionRepository and core.LineageRepository
// on top of database/sql. SQLite (modernc.org/sqlite, pure Go) is the default
// driver; PostgreSQL is reached through pgx's database/sql adapter. The schema
// is managed with embedded goose migrations (see migrate.go).
package state

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver

	"github.com/leapstack-labs/leapgov/pkg/core"
)

// Driver names a supported SQL backend.
type Driver string

// Supported drivers.
const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// ParseDriver converts a config string to a Driver.
func ParseDriver(s string) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("%w: unsupported driver %q", core.ErrValidation, s)
	}
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Options configures Open.
type Options struct {
	Driver Driver
	// DSN is a file path or ":memory:" for SQLite, a connection URL for PostgreSQL.
	DSN    string
	Logger *slog.Logger
}

// SQLStore implements the version and lineage repositories on database/sql.
// A store returned by InTx or Snapshot is bound to that transaction.
type SQLStore struct {
	db     *sql.DB
	q      querier
	driver Driver
	logger *slog.Logger
	inTx   bool
}

var (
	_ core.VersionRepository = (*SQLStore)(nil)
	_ core.LineageRepository = (*SQLStore)(nil)
)

// Open opens a connection to the database and pings it.
// Migrations are not applied; call Migrate.
func Open(ctx context.Context, opts Options) (*SQLStore, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		db, err = sql.Open("sqlite", sqliteDSN(opts.DSN))
		if err == nil {
			// A single connection keeps ":memory:" databases shared and
			// avoids SQLITE_BUSY on write upgrades.
			db.SetMaxOpenConns(1)
		}
	case DriverPostgres:
		db, err = sql.Open("pgx", opts.DSN)
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", core.ErrValidation, driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", driver, err)
	}

	s := NewWithDB(db, driver, opts.Logger)
	s.logger.Debug("database opened", "driver", driver)
	return s, nil
}

// NewWithDB wraps an existing connection. Useful for tests with sqlmock.
func NewWithDB(db *sql.DB, driver Driver, logger *slog.Logger) *SQLStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLStore{db: db, q: db, driver: driver, logger: logger}
}

func sqliteDSN(path string) string {
	if path == "" || path == ":memory:" {
		return ":memory:"
	}
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if s.db != nil && !s.inTx {
		return s.db.Close()
	}
	return nil
}

// DB returns the underlying connection pool.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Driver returns the backend driver.
func (s *SQLStore) Driver() Driver {
	return s.driver
}

// InTx runs fn in one transaction. Nested calls reuse the outer transaction.
func (s *SQLStore) InTx(ctx context.Context, fn func(repo core.VersionRepository) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.StorageError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(s.withTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return core.StorageError("commit transaction", err)
	}
	return nil
}

// Snapshot runs fn inside a read transaction so a traversal sees one
// consistent set of edges.
func (s *SQLStore) Snapshot(ctx context.Context, fn func(r core.LineageReader) error) error {
	if s.inTx {
		return fn(s)
	}

	var opts *sql.TxOptions
	if s.driver == DriverPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}

	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return core.StorageError("begin snapshot", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(s.withTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return core.StorageError("end snapshot", err)
	}
	return nil
}

func (s *SQLStore) withTx(tx *sql.Tx) *SQLStore {
	return &SQLStore{db: s.db, q: tx, driver: s.driver, logger: s.logger, inTx: true}
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.q.QueryContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ctx, s.rebind(query), args...)
}

// generateID creates a new time-ordered UUID.
func generateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
