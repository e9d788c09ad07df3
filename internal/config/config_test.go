package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapgov/pkg/core"
)

func writeConfig(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func TestLoadFromDir_Defaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultDriver, cfg.Storage.Driver)
	assert.Equal(t, filepath.Join(dir, DefaultDSN), cfg.Storage.DSN)
	assert.True(t, cfg.Storage.AutoMigrate)
	assert.Equal(t, LineageBackendSQL, cfg.Lineage.Backend)
	assert.Equal(t, filepath.Join(dir, DefaultBadgerPath), cfg.Lineage.BadgerPath)
	assert.InDelta(t, DefaultDeltaThreshold, cfg.Versioning.DeltaThreshold, 1e-9)
	assert.Equal(t, DefaultCheckpointInterval, cfg.Versioning.CheckpointInterval)
	assert.Equal(t, DefaultOutput, cfg.Output)
	assert.Equal(t, dir, cfg.ProjectRoot)
}

func TestLoadFromDir_File(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, ConfigFileNameAlt, `
storage:
  dsn: state/gov.db
lineage:
  backend: badger
  badger_path: /var/lib/leapgov/lineage
versioning:
  delta_threshold: 0.5
  checkpoint_interval: 10
log:
  level: debug
  format: json
tenant: acme
output: json
`)

	cfg, err := LoadFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "state/gov.db"), cfg.Storage.DSN)
	assert.True(t, cfg.IsBadger())
	assert.Equal(t, "/var/lib/leapgov/lineage", cfg.Lineage.BadgerPath)
	assert.InDelta(t, 0.5, cfg.Versioning.DeltaThreshold, 1e-9)
	assert.Equal(t, 10, cfg.Versioning.CheckpointInterval)
	assert.Equal(t, DefaultCacheSize, cfg.Versioning.CacheSize)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "acme", cfg.Tenant)
}

func TestLoadFromDir_Invalid(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, ConfigFileName, "storage:\n  driver: oracle\n")

	_, err := LoadFromDir(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.Contains(t, err.Error(), "Driver")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "in memory", mutate: func(c *Config) { *c = *InMemory() }},
		{name: "postgres", mutate: func(c *Config) { c.Storage.Driver = "postgres" }},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "mysql" }, wantErr: true},
		{name: "empty dsn", mutate: func(c *Config) { c.Storage.DSN = "" }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.Lineage.Backend = "neo4j" }, wantErr: true},
		{name: "badger without path", mutate: func(c *Config) {
			c.Lineage.Backend = LineageBackendBadger
			c.Lineage.BadgerPath = ""
		}, wantErr: true},
		{name: "badger in memory without path", mutate: func(c *Config) {
			c.Lineage.Backend = LineageBackendBadger
			c.Lineage.BadgerPath = ""
			c.Lineage.BadgerInMemory = true
		}},
		{name: "threshold above one", mutate: func(c *Config) { c.Versioning.DeltaThreshold = 1.5 }, wantErr: true},
		{name: "zero threshold", mutate: func(c *Config) { c.Versioning.DeltaThreshold = 0 }, wantErr: true},
		{name: "zero checkpoint interval", mutate: func(c *Config) { c.Versioning.CheckpointInterval = 0 }, wantErr: true},
		{name: "negative cache", mutate: func(c *Config) { c.Versioning.CacheSize = -1 }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "trace" }, wantErr: true},
		{name: "bad output", mutate: func(c *Config) { c.Output = "xml" }, wantErr: true},
		{name: "depth too large", mutate: func(c *Config) { c.Lineage.DefaultMaxDepth = 101 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResolvePaths(t *testing.T) {
	t.Setenv("LEAPGOV_TEST_DB", "secret")

	tests := []struct {
		name   string
		driver string
		dsn    string
		want   string
	}{
		{name: "relative sqlite path", driver: "sqlite", dsn: "gov.db", want: "/srv/app/gov.db"},
		{name: "absolute sqlite path", driver: "sqlite", dsn: "/tmp/gov.db", want: "/tmp/gov.db"},
		{name: "memory", driver: "sqlite", dsn: ":memory:", want: ":memory:"},
		{name: "sqlite uri", driver: "sqlite", dsn: "file:gov.db?mode=ro", want: "file:gov.db?mode=ro"},
		{name: "postgres url untouched", driver: "postgres", dsn: "postgres://u:${LEAPGOV_TEST_DB}@db/gov", want: "postgres://u:secret@db/gov"},
		{name: "unknown variable kept", driver: "postgres", dsn: "postgres://u:${LEAPGOV_NOPE}@db/gov", want: "postgres://u:${LEAPGOV_NOPE}@db/gov"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.ProjectRoot = "/srv/app"
			cfg.Storage.Driver = tt.driver
			cfg.Storage.DSN = tt.dsn
			cfg.ResolvePaths()
			assert.Equal(t, tt.want, cfg.Storage.DSN)
		})
	}
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, ConfigFileName, "tenant: acme\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o750))

	assert.Equal(t, root, FindProjectRoot(nested))
	assert.Equal(t, "", FindConfigFile(nested))
}
