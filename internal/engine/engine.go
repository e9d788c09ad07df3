// Package engine assembles the version and lineage services from
// configuration: it opens the storage backends, applies migrations and
// hands out the Version Store, Query Engine, Lineage Tracker, Impact
// Analyzer and Relationship Mapper over them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/leapstack-labs/leapgov/internal/config"
	"github.com/leapstack-labs/leapgov/internal/impact"
	"github.com/leapstack-labs/leapgov/internal/lineage"
	"github.com/leapstack-labs/leapgov/internal/relationship"
	"github.com/leapstack-labs/leapgov/internal/state"
	"github.com/leapstack-labs/leapgov/internal/state/badgerstore"
	"github.com/leapstack-labs/leapgov/internal/version"
	"github.com/leapstack-labs/leapgov/pkg/core"
)

// Engine owns the storage backends and the services built on them.
type Engine struct {
	logger *slog.Logger

	store  *state.SQLStore
	badger *badgerstore.Store

	versions      *version.Store
	query         *version.QueryEngine
	tracker       *lineage.Tracker
	analyzer      *impact.Analyzer
	relationships *relationship.Mapper
}

// Config holds engine configuration.
type Config struct {
	// Settings is the loaded configuration. Nil means config.Default().
	Settings *config.Config
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
	// TracerProvider and MeterProvider default to the otel globals.
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	// Now overrides the clock in tests.
	Now func() time.Time
}

// New opens the configured backends and builds every service. The caller
// must Close the engine.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("initializing engine",
		"driver", settings.Storage.Driver,
		"lineage_backend", settings.Lineage.Backend)

	e := &Engine{logger: logger}
	if err := e.openStorage(ctx, settings); err != nil {
		_ = e.Close()
		return nil, err
	}
	if err := e.buildServices(settings, cfg); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) openStorage(ctx context.Context, settings *config.Config) error {
	driver, err := state.ParseDriver(settings.Storage.Driver)
	if err != nil {
		return err
	}

	// Ensure the SQLite directory exists
	if driver == state.DriverSQLite && settings.Storage.DSN != config.MemoryDSN && !strings.HasPrefix(settings.Storage.DSN, "file:") {
		if dir := filepath.Dir(settings.Storage.DSN); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("failed to create state directory: %w", err)
			}
		}
	}

	e.store, err = state.Open(ctx, state.Options{Driver: driver, DSN: settings.Storage.DSN, Logger: e.logger})
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	if settings.Storage.AutoMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate state store: %w", err)
		}
	}

	if settings.IsBadger() {
		e.badger, err = badgerstore.Open(badgerstore.Config{
			Path:       settings.Lineage.BadgerPath,
			InMemory:   settings.Lineage.BadgerInMemory,
			SyncWrites: settings.Lineage.SyncWrites,
			Logger:     e.logger,
		})
		if err != nil {
			return fmt.Errorf("failed to open lineage store: %w", err)
		}
	}
	return nil
}

func (e *Engine) buildServices(settings *config.Config, cfg Config) error {
	cacheSize := settings.Versioning.CacheSize
	if cacheSize == 0 {
		cacheSize = -1
	}

	var err error
	e.versions, err = version.NewStore(version.Config{
		Repo:               e.store,
		DeltaThreshold:     settings.Versioning.DeltaThreshold,
		CheckpointInterval: settings.Versioning.CheckpointInterval,
		CacheSize:          cacheSize,
		Logger:             e.logger.With("component", "version"),
		Now:                cfg.Now,
	})
	if err != nil {
		return err
	}
	e.query = version.NewQueryEngine(e.versions)

	repo := e.LineageRepository()
	e.tracker, err = lineage.NewTracker(lineage.Config{
		Repo:            repo,
		DefaultMaxDepth: settings.Lineage.DefaultMaxDepth,
		Logger:          e.logger.With("component", "lineage"),
		Now:             cfg.Now,
	})
	if err != nil {
		return err
	}

	e.analyzer, err = impact.NewAnalyzer(impact.Config{
		Lineage:        e.tracker,
		Logger:         e.logger.With("component", "impact"),
		TracerProvider: cfg.TracerProvider,
		MeterProvider:  cfg.MeterProvider,
		Now:            cfg.Now,
	})
	if err != nil {
		return err
	}

	e.relationships, err = relationship.NewMapper(relationship.Config{
		Repo:   repo,
		Logger: e.logger.With("component", "relationship"),
	})
	return err
}

// Close releases every backend.
func (e *Engine) Close() error {
	var errs []error
	if e.badger != nil {
		errs = append(errs, e.badger.Close())
	}
	if e.store != nil {
		errs = append(errs, e.store.Close())
	}
	return errors.Join(errs...)
}

// Migrate applies pending schema migrations.
func (e *Engine) Migrate(ctx context.Context) error {
	return e.store.Migrate(ctx)
}

// MigrationVersion returns the current schema version.
func (e *Engine) MigrationVersion(ctx context.Context) (int64, error) {
	return e.store.MigrationVersion(ctx)
}

// LineageRepository returns the backend holding lineage records.
func (e *Engine) LineageRepository() core.LineageRepository {
	if e.badger != nil {
		return e.badger
	}
	return e.store
}

// Versions returns the Version Store.
func (e *Engine) Versions() *version.Store { return e.versions }

// Query returns the Version Query Engine.
func (e *Engine) Query() *version.QueryEngine { return e.query }

// Lineage returns the Lineage Tracker.
func (e *Engine) Lineage() *lineage.Tracker { return e.tracker }

// Impact returns the Impact Analyzer.
func (e *Engine) Impact() *impact.Analyzer { return e.analyzer }

// Relationships returns the Relationship Mapper.
func (e *Engine) Relationships() *relationship.Mapper { return e.relationships }
