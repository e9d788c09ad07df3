package state

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its base FS, dialect and logger in package globals.
var gooseMu sync.Mutex

// gooseLogger routes goose output through slog.
type gooseLogger struct {
	logger *slog.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

func gooseDialect(driver Driver) string {
	if driver == DriverPostgres {
		return "postgres"
	}
	return "sqlite3"
}

func configureGoose(driver Driver, logger *slog.Logger) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{logger: logger})
	if err := goose.SetDialect(gooseDialect(driver)); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	return nil
}

// Migrate runs all pending database migrations.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	return MigrateWithDB(ctx, s.db, s.driver, s.logger)
}

// MigrateWithDB runs migrations using a raw database connection.
func MigrateWithDB(ctx context.Context, db *sql.DB, driver Driver, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := configureGoose(driver, logger); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// MigrationVersion returns the current schema version.
func (s *SQLStore) MigrationVersion(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := configureGoose(s.driver, s.logger); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, s.db)
}
