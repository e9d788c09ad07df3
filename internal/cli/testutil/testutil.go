// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgov/internal/cli/config"
	sharedcfg "github.com/leapstack-labs/leapgov/internal/config"
	"github.com/leapstack-labs/leapgov/internal/testutil"
	"github.com/leapstack-labs/leapgov/pkg/core"
)

// NewTestConfig returns a configuration whose state lives in a temporary
// directory, so consecutive commands see each other's writes.
func NewTestConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := sharedcfg.Default()
	cfg.ProjectRoot = dir
	cfg.Storage.DSN = filepath.Join(dir, "leapgov.db")
	cfg.Lineage.BadgerPath = filepath.Join(dir, "lineage")
	cfg.Tenant = "acme"
	cfg.Actor = "alice"
	return cfg
}

// Result holds the captured output of one command run.
type Result struct {
	Out    string
	ErrOut string
}

// JSON decodes Out into a map.
func (r Result) JSON(t *testing.T) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(r.Out), &m); err != nil {
		t.Fatalf("output is not a JSON object: %v\n%s", err, r.Out)
	}
	return m
}

// Run executes cmd with args under cfg, bypassing config loading the way
// the root command's pre-run would set it up.
func Run(t *testing.T, cfg *config.Config, cmd *cobra.Command, args ...string) (Result, error) {
	t.Helper()

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)

	ctx := config.WithConfig(context.Background(), cfg)
	ctx = config.WithLogger(ctx, testutil.NewTestLoggerAt(t, slog.LevelWarn))
	ctx = core.WithScope(ctx, core.Scope{TenantID: cfg.Tenant, Actor: cfg.Actor})

	err := cmd.ExecuteContext(ctx)
	return Result{Out: out.String(), ErrOut: errOut.String()}, err
}

// MustRun is Run failing the test on error.
func MustRun(t *testing.T, cfg *config.Config, cmd *cobra.Command, args ...string) Result {
	t.Helper()
	res, err := Run(t, cfg, cmd, args...)
	if err != nil {
		t.Fatalf("%s %s: %v\nstderr: %s", cmd.Name(), strings.Join(args, " "), err, res.ErrOut)
	}
	return res
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}
