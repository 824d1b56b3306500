package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootRejectsBadFormat(t *testing.T) {
	_, err := execute(t, "", "--format", "xml", "repl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestReplFromStdin(t *testing.T) {
	out, err := execute(t, "set a = 1\nset b = a + 1\nget b\nexit\n", "repl")
	require.NoError(t, err)
	assert.Contains(t, out, "b = 2")
}

func TestReplReportsErrorsAndContinues(t *testing.T) {
	out, err := execute(t, "set a =\nset a = 1\nget a\n", "repl")
	require.NoError(t, err)
	assert.Contains(t, out, "error[PARSE_ERROR]")
	assert.Contains(t, out, "a = 1")
}

func TestRunCommand(t *testing.T) {
	script := filepath.Join(t.TempDir(), "setup.cru")
	require.NoError(t, os.WriteFile(script, []byte(`# warm the store
set base = 2
set square = base * base
get square
`), 0o644))

	out, err := execute(t, "", "run", script)
	require.NoError(t, err)
	assert.Contains(t, out, "square = 4")
}

func TestRunCommandStopsOnError(t *testing.T) {
	script := filepath.Join(t.TempDir(), "broken.cru")
	require.NoError(t, os.WriteFile(script, []byte("set a = 1\nset b = c + 1\nset d = 2\n"), 0o644))

	_, err := execute(t, "", "run", script)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.cru:2")
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestApplyCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vars.cue"), []byte(`package vars

vars: {
	rate: {value: 3, type: "int"}
	doubled: {expr: "rate * 2"}
}
`), 0o644))

	journal := filepath.Join(t.TempDir(), "journal.db")
	out, err := execute(t, "", "--journal", journal, "apply", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "applied 2 variables")

	// The forged state is visible to the next command over the same journal.
	out, err = execute(t, "get doubled\nexit\n", "--journal", journal, "repl")
	require.NoError(t, err)
	assert.Contains(t, out, "doubled = 6")
}

func TestGraphCommand(t *testing.T) {
	journal := filepath.Join(t.TempDir(), "journal.db")
	_, err := execute(t, "set a = 1\nset b = a + 1\nexit\n", "--journal", journal, "repl")
	require.NoError(t, err)

	out, err := execute(t, "", "--journal", journal, "graph")
	require.NoError(t, err)
	assert.Contains(t, out, "digraph deps")
	assert.Contains(t, out, `"a" -> "b"`)
}

func TestHistoryCommand(t *testing.T) {
	journal := filepath.Join(t.TempDir(), "journal.db")
	_, err := execute(t, "set a = 1\nset a = 2\nexit\n", "--journal", journal, "repl")
	require.NoError(t, err)

	out, err := execute(t, "", "--journal", journal, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "#1 direct a = 1")
	assert.Contains(t, out, "#2 direct a = 2")

	out, err = execute(t, "", "--journal", journal, "history", "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "#1 direct a = 1")
	assert.NotContains(t, out, "#2")
}

func TestReplayCommand(t *testing.T) {
	journal := filepath.Join(t.TempDir(), "journal.db")
	_, err := execute(t, "set a = 1\nset b = a * 10\nfreeze a\nexit\n", "--journal", journal, "repl")
	require.NoError(t, err)

	out, err := execute(t, "", "--journal", journal, "replay")
	require.NoError(t, err)
	assert.Contains(t, out, "replayed 2 variables")
	assert.Contains(t, out, "a = 1  [frozen]")
	assert.Contains(t, out, "b = 10  (a * 10)")
}

func TestReplayWithoutJournal(t *testing.T) {
	_, err := execute(t, "", "replay")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
