package commands

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/josephlewis42/pipeshell/core/engine"
	"github.com/josephlewis42/pipeshell/core/shell"
	"github.com/josephlewis42/pipeshell/core/span"
	"github.com/josephlewis42/pipeshell/core/value"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllCommands(t *testing.T) {
	for _, cmd := range ListBuiltinCommands() {
		t.Run(cmd.Signature().Name, func(t *testing.T) {
			sig := cmd.Signature()
			assert.NotEmpty(t, sig.Usage, "every builtin needs a description")
			assert.Equal(t, cmd, AllCommands[sig.Name])
		})
	}
}

// newTestSession creates an engine with every builtin installed that writes
// both stdout and stderr to out.
func newTestSession(t *testing.T) (*shell.Session, *bytes.Buffer) {
	t.Helper()

	var out bytes.Buffer
	e := engine.New(engine.Options{Stdout: &out, Stderr: &out})
	Install(e)
	return shell.NewSession(e, shell.ColorNever), &out
}

// eval runs script and materializes its result.
func eval(t *testing.T, script string) (value.Value, *value.Metadata) {
	t.Helper()

	s, out := newTestSession(t)
	data, err := s.Eval(context.Background(), "test.nu", []byte(script))
	require.NoError(t, err)
	md := data.Metadata()
	v, err := data.IntoValue(span.Unknown)
	require.NoError(t, err)
	if e, ok := v.(value.Error); ok {
		t.Fatalf("script failed: %v\noutput: %s", e.Err, out.String())
	}
	return v, md
}

type goldenTestSuite map[string]goldenTest

type goldenTest struct {
	Script string
	Status int
}

func (gts goldenTestSuite) Run(t *testing.T) {
	t.Helper()

	g := goldie.New(
		t,
		goldie.WithFixtureDir(filepath.Join("testdata", "golden")),
		goldie.WithDiffEngine(goldie.ColoredDiff),
		goldie.WithTestNameForDir(true),
	)

	for tn, tc := range gts {
		t.Run(tn, func(t *testing.T) {
			s, out := newTestSession(t)
			status := s.Run(context.Background(), "test.nu", []byte(tc.Script))
			assert.Equal(t, tc.Status, status, "exit status, output: %s", out.String())

			g.Assert(t, tn, out.Bytes())
		})
	}
}
