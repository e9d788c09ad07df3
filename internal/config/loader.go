package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "leapgov.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "leapgov.yml"

// LoadFromDir loads a Config from leapgov.yaml or leapgov.yml in dir, on
// top of the defaults. A missing file yields the defaults.
func LoadFromDir(dir string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := FindConfigFile(dir); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ProjectRoot = dir
	cfg.ResolvePaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FindConfigFile returns the config file in dir, or "" if there is none.
func FindConfigFile(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// FindProjectRoot walks up from startDir to find a directory containing a
// config file. Returns empty string if not found.
func FindProjectRoot(startDir string) string {
	dir := startDir
	for {
		if FindConfigFile(dir) != "" {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ResolvePaths expands ${VAR} references in the DSN and anchors relative
// SQLite and Badger paths at ProjectRoot.
func (c *Config) ResolvePaths() {
	c.Storage.DSN = ExpandEnvVars(c.Storage.DSN)
	c.Lineage.BadgerPath = ExpandEnvVars(c.Lineage.BadgerPath)

	if c.Storage.Driver == DefaultDriver && isFilePath(c.Storage.DSN) {
		c.Storage.DSN = resolvePathRelativeTo(c.Storage.DSN, c.ProjectRoot)
	}
	c.Lineage.BadgerPath = resolvePathRelativeTo(c.Lineage.BadgerPath, c.ProjectRoot)
}

// isFilePath reports whether a SQLite DSN is a plain path.
func isFilePath(dsn string) bool {
	return dsn != "" && dsn != MemoryDSN && !strings.HasPrefix(dsn, "file:")
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || baseDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// ExpandEnvVars expands ${VAR} patterns with environment variable values,
// leaving unknown variables untouched.
func ExpandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := os.LookupEnv(match[2 : len(match)-1]); ok {
			return val
		}
		return match
	})
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)
