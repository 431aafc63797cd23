package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	defer func() { runCommand = "" }()

	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func TestInitRunReport(t *testing.T) {
	dir := t.TempDir()

	var exitCodes []int
	exit = func(code int) { exitCodes = append(exitCodes, code) }
	defer func() { exit = os.Exit }()

	_, _, err := execute(t, "init", "--config", dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "config.yaml"))

	t.Run("run -c", func(t *testing.T) {
		out, _, err := execute(t, "run", "--config", dir, "-c", "echo hi")
		require.NoError(t, err)
		assert.Equal(t, "hi\n", out)
		assert.Empty(t, exitCodes)
	})

	t.Run("run file", func(t *testing.T) {
		script := filepath.Join(dir, "script.nu")
		require.NoError(t, os.WriteFile(script, []byte("def double [x] { $x * 2 }\ndouble 21\n"), 0600))

		out, _, err := execute(t, "run", "--config", dir, script)
		require.NoError(t, err)
		assert.Equal(t, "42\n", out)
	})

	t.Run("failing script", func(t *testing.T) {
		_, errOut, err := execute(t, "run", "--config", dir, "-c", "definitely-not-a-command")
		require.NoError(t, err)
		assert.Contains(t, errOut, "Command `definitely-not-a-command` not found")
		assert.Equal(t, []int{1}, exitCodes)
	})

	t.Run("nothing to run", func(t *testing.T) {
		_, _, err := execute(t, "run", "--config", dir)
		assert.Error(t, err)
	})

	t.Run("events report", func(t *testing.T) {
		out, _, err := execute(t, "events", "report", "--config", dir)
		require.NoError(t, err)
		assert.Contains(t, out, "log_entries:")
		assert.Contains(t, out, "run_command_report:")
		assert.Contains(t, out, "definitely-not-a-command")
	})
}

func TestBuiltins(t *testing.T) {
	out, _, err := execute(t, "builtins")
	require.NoError(t, err)
	assert.Contains(t, out, "view span")
	assert.Contains(t, out, "which")
}

func TestRunWithoutConfig(t *testing.T) {
	out, errOut, err := execute(t, "run", "--config", t.TempDir(), "-c", "seq 1 3 | length")
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)
	assert.Contains(t, errOut, "did you run init?")
}

func TestHelpListsSubcommands(t *testing.T) {
	out, _, err := execute(t, "help")
	require.NoError(t, err)
	assert.Contains(t, out, "Inspect the event log written by shell sessions.")
	assert.Contains(t, out, "Write a default configuration file for pipeshell.")

	out, _, err = execute(t, "help", "events")
	require.NoError(t, err)
	assert.Contains(t, out, "Summarize command and plugin activity from the event log.")
}
