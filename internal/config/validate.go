package config

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapgov/internal/validate"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.IsBadger() && !c.Lineage.BadgerInMemory && strings.TrimSpace(c.Lineage.BadgerPath) == "" {
		return fmt.Errorf("invalid configuration: lineage.badger_path is required for the badger backend")
	}
	return nil
}
