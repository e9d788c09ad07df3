// Package config provides the shared configuration types for leapgov.
// It is decoupled from CLI concerns so the engine and tests can build a
// Config without flags or environment variables.
package config

// Config holds the complete leapgov configuration.
type Config struct {
	Storage    StorageConfig    `koanf:"storage"`
	Lineage    LineageConfig    `koanf:"lineage"`
	Versioning VersioningConfig `koanf:"versioning"`
	Log        LogConfig        `koanf:"log"`

	// Tenant and Actor become the core.Scope of every CLI call.
	Tenant string `koanf:"tenant"`
	Actor  string `koanf:"actor"`

	Output  string `koanf:"output" validate:"oneof=table json yaml"`
	Verbose bool   `koanf:"verbose"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
}

// StorageConfig selects the SQL database holding versions (and lineage,
// unless the badger backend is chosen).
type StorageConfig struct {
	Driver string `koanf:"driver" validate:"oneof=sqlite postgres"`
	// DSN is a file path or :memory: for sqlite, a connection URL for postgres.
	DSN         string `koanf:"dsn" validate:"required"`
	AutoMigrate bool   `koanf:"auto_migrate"`
}

// LineageConfig selects the lineage backend.
type LineageConfig struct {
	Backend string `koanf:"backend" validate:"oneof=sql badger"`

	// Badger settings, used when Backend is "badger".
	BadgerPath     string `koanf:"badger_path"`
	BadgerInMemory bool   `koanf:"badger_in_memory"`
	SyncWrites     bool   `koanf:"sync_writes"`

	// DefaultMaxDepth is used by traversals called without a depth.
	DefaultMaxDepth int `koanf:"default_max_depth" validate:"gte=0,lte=100"`
}

// VersioningConfig tunes the Version Store.
type VersioningConfig struct {
	DeltaThreshold     float64 `koanf:"delta_threshold" validate:"gt=0,lte=1"`
	CheckpointInterval int     `koanf:"checkpoint_interval" validate:"gte=1"`
	// CacheSize of zero disables the reconstruction cache.
	CacheSize int `koanf:"cache_size" validate:"gte=0"`
}

// LogConfig configures the slog handler built by the CLI.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// IsBadger reports whether lineage lives in Badger.
func (c *Config) IsBadger() bool {
	return c.Lineage.Backend == LineageBackendBadger
}
