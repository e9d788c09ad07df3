// Package config loads leapgov configuration for the CLI.
//
// The shared types live in internal/config and are re-exported here via
// type aliases for convenience. This package layers defaults, the config
// file, LEAPGOV_* environment variables and command-line flags on top of
// each other with koanf.
package config

import (
	sharedcfg "github.com/leapstack-labs/leapgov/internal/config"
)

// Config is an alias for the shared configuration.
type Config = sharedcfg.Config

// EnvPrefix is the prefix of environment variables read by LoadConfig.
// A double underscore separates nesting levels:
// LEAPGOV_STORAGE__DSN sets storage.dsn.
const EnvPrefix = "LEAPGOV_"

// flagKeys maps CLI flag names to config keys. Flags not listed map to
// their own name with dashes replaced by underscores.
var flagKeys = map[string]string{
	"driver":          "storage.driver",
	"dsn":             "storage.dsn",
	"lineage-backend": "lineage.backend",
	"badger-path":     "lineage.badger_path",
	"log-level":       "log.level",
	"log-format":      "log.format",
}
