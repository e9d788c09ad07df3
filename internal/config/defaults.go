package config

// Default configuration values.
const (
	DefaultDriver             = "sqlite"
	DefaultDSN                = ".leapgov/leapgov.db"
	DefaultBadgerPath         = ".leapgov/lineage"
	DefaultDeltaThreshold     = 0.70
	DefaultCheckpointInterval = 50
	DefaultCacheSize          = 1024
	DefaultMaxDepth           = 10
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultOutput             = "table"

	LineageBackendSQL    = "sql"
	LineageBackendBadger = "badger"

	// MemoryDSN opens a private in-memory SQLite database.
	MemoryDSN = ":memory:"
)

// Defaults returns the default configuration as flat koanf keys.
func Defaults() map[string]any {
	return map[string]any{
		"storage.driver":                 DefaultDriver,
		"storage.dsn":                    DefaultDSN,
		"storage.auto_migrate":           true,
		"lineage.backend":                LineageBackendSQL,
		"lineage.badger_path":            DefaultBadgerPath,
		"lineage.badger_in_memory":       false,
		"lineage.sync_writes":            false,
		"lineage.default_max_depth":      DefaultMaxDepth,
		"versioning.delta_threshold":     DefaultDeltaThreshold,
		"versioning.checkpoint_interval": DefaultCheckpointInterval,
		"versioning.cache_size":          DefaultCacheSize,
		"log.level":                      DefaultLogLevel,
		"log.format":                     DefaultLogFormat,
		"output":                         DefaultOutput,
		"verbose":                        false,
	}
}

// Default returns a Config holding the defaults.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver:      DefaultDriver,
			DSN:         DefaultDSN,
			AutoMigrate: true,
		},
		Lineage: LineageConfig{
			Backend:         LineageBackendSQL,
			BadgerPath:      DefaultBadgerPath,
			DefaultMaxDepth: DefaultMaxDepth,
		},
		Versioning: VersioningConfig{
			DeltaThreshold:     DefaultDeltaThreshold,
			CheckpointInterval: DefaultCheckpointInterval,
			CacheSize:          DefaultCacheSize,
		},
		Log:    LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
		Output: DefaultOutput,
	}
}

// InMemory returns a default Config backed by in-memory stores. Tests and
// one-off CLI runs use it.
func InMemory() *Config {
	c := Default()
	c.Storage.DSN = MemoryDSN
	c.Lineage.BadgerInMemory = true
	return c
}
