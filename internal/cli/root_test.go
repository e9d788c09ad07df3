package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapgov/internal/cli/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	config.ResetConfig()

	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand_Flags(t *testing.T) {
	cmd := NewRootCmd()
	for _, name := range []string{"config", "driver", "dsn", "lineage-backend", "badger-path",
		"tenant", "actor", "output", "verbose", "log-level", "log-format"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "flag %q should exist", name)
	}

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"migrate", "version", "lineage", "impact", "relationships", "completion"})
}

func TestRootCommand_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	out, err := execute(t, "--tenant", "acme", "--actor", "bob", "-o", "json",
		"version", "create", "document:42", "--data", `{"title": "Q3"}`)
	require.NoError(t, err)

	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "acme", v["tenant_id"])
	assert.Equal(t, "bob", v["created_by"])

	// Default state path is relative to the working directory
	_, err = os.Stat(filepath.Join(dir, ".leapgov", "leapgov.db"))
	require.NoError(t, err)

	// Another tenant does not see the version
	_, err = execute(t, "--tenant", "other", "version", "latest", "document:42")
	assert.Error(t, err)

	out, err = execute(t, "--tenant", "acme", "version", "latest", "document:42")
	require.NoError(t, err)
	assert.Contains(t, out, "document:42")
}

func TestRootCommand_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leapgov.yaml"), []byte(`
storage:
  dsn: state/custom.db
lineage:
  backend: badger
  badger_path: state/lineage
output: json
tenant: acme
`), 0o600))

	out, err := execute(t, "lineage", "track", "dataset:raw", "dataset:orders")
	require.NoError(t, err)
	assert.Contains(t, out, `"relationship_type": "derived_from"`)

	_, err = os.Stat(filepath.Join(dir, "state", "custom.db"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "state", "lineage"))
	require.NoError(t, err)
}

func TestRootCommand_InvalidConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := execute(t, "--driver", "mysql", "migrate")
	assert.Error(t, err)
}

func TestCompletionCommand(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			out, err := execute(t, "completion", shell)
			require.NoError(t, err)
			assert.Contains(t, out, "leapgov")
		})
	}

	_, err := execute(t, "completion", "tcsh")
	assert.Error(t, err)
}
