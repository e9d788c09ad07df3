package commands

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leapgov/internal/cli/config"
	"github.com/leapstack-labs/leapgov/internal/cli/output"
	"github.com/leapstack-labs/leapgov/internal/engine"
	"github.com/leapstack-labs/leapgov/pkg/core"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Engine   *engine.Engine
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with engine and renderer.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cmdCtx := NewCommandContextWithoutEngine(cmd)

	eng, err := engine.New(cmd.Context(), engine.Config{
		Settings: cmdCtx.Cfg,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return nil, nil, err
	}
	cmdCtx.Engine = eng

	cleanup := func() {
		if err := eng.Close(); err != nil {
			cmdCtx.Logger.Warn("failed to close engine", "error", err)
		}
	}
	return cmdCtx, cleanup, nil
}

// NewCommandContextWithoutEngine creates a CommandContext without an engine.
// Useful for commands that don't need database access.
func NewCommandContextWithoutEngine(cmd *cobra.Command) *CommandContext {
	cfg := config.GetConfig(cmd.Context())
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.ParseFormat(cfg.Output)),
	}
}

// Helper functions shared across commands

func parseRef(s string) (core.EntityRef, error) {
	return core.ParseEntityRef(s)
}

func parseRelationshipTypes(values []string) ([]core.RelationshipType, error) {
	types := make([]core.RelationshipType, 0, len(values))
	for _, v := range values {
		rt, err := core.ParseRelationshipType(v)
		if err != nil {
			return nil, err
		}
		types = append(types, rt)
	}
	return types, nil
}

func parseEntityTypes(values []string) []core.EntityType {
	types := make([]core.EntityType, 0, len(values))
	for _, v := range values {
		types = append(types, core.EntityType(v))
	}
	return types
}

// parseTime accepts RFC 3339 timestamps and plain dates.
func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse time %q (use RFC 3339)", core.ErrValidation, s)
}

func parseOptionalTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseTime(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// readDocument parses inline JSON/YAML, or the file it names when prefixed
// with "@". "@-" reads standard input.
func readDocument(cmd *cobra.Command, value string) (map[string]any, error) {
	if value == "" {
		return nil, nil
	}

	raw := []byte(value)
	if path, ok := strings.CutPrefix(value, "@"); ok {
		var err error
		if path == "-" {
			raw, err = io.ReadAll(cmd.InOrStdin())
		} else {
			raw, err = os.ReadFile(path) //nolint:gosec // user-supplied input file
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: document must be a JSON or YAML object: %v", core.ErrValidation, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func toMaps[T interface{ ToMap() map[string]any }](items []T) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		out = append(out, it.ToMap())
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
