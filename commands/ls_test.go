package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/josephlewis42/pipeshell/core/shellerr"
	"github.com/josephlewis42/pipeshell/core/span"
	"github.com/josephlewis42/pipeshell/core/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lsFixture(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("hello"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.bin"), make([]byte, 1500), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), nil, 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "a"), 0755))
	return dir
}

func TestLs(t *testing.T) {
	dir := lsFixture(t)

	cases := map[string]struct {
		flags string
		names []string
		sizes map[string]string
	}{
		"default": {
			names: []string{"a", "b.txt", "big.bin"},
			sizes: map[string]string{"b.txt": "5", "big.bin": "1500"},
		},
		"all": {
			flags: "--all",
			names: []string{".hidden", "a", "b.txt", "big.bin"},
		},
		"human": {
			flags: "-h",
			names: []string{"a", "b.txt", "big.bin"},
			sizes: map[string]string{"b.txt": "5", "big.bin": "1.5K"},
		},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			rows := whichRows(t, fmt.Sprintf("ls %q %s", dir, tc.flags))

			var names []string
			for _, row := range rows {
				names = append(names, row["name"])
				if want, ok := tc.sizes[row["name"]]; ok {
					assert.Equal(t, want, row["size"], row["name"])
				}
			}
			assert.Equal(t, tc.names, names)
			assert.Equal(t, "dir", rows[indexOf(names, "a")]["type"])
			assert.Equal(t, "file", rows[indexOf(names, "b.txt")]["type"])
		})
	}
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func TestLsMissingDirectory(t *testing.T) {
	s, _ := newTestSession(t)
	data, err := s.Eval(context.Background(), "test.nu", []byte(`ls "/does/not/exist"`))
	require.NoError(t, err)

	v, err := data.IntoValue(span.Unknown)
	require.NoError(t, err)
	e, ok := v.(value.Error)
	require.True(t, ok)
	assert.True(t, errors.Is(e.Err, shellerr.GenericError))
	assert.Equal(t, span.New(3, 20), shellerr.From(e.Err).Span)
}

func TestPwd(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	v, _ := eval(t, "pwd")
	assert.Equal(t, value.NewString(wd, span.New(0, 3)), v)
}

func TestEnv(t *testing.T) {
	t.Setenv("PIPESHELL_TEST_VAR", "a=b")

	v, _ := eval(t, "env")
	rec, ok := v.(value.Record)
	require.True(t, ok)

	got, ok := rec.Get("PIPESHELL_TEST_VAR")
	require.True(t, ok)
	assert.Equal(t, "a=b", value.Inline(got))
}

func TestWc(t *testing.T) {
	v, _ := eval(t, `echo "one  two three" | wc`)
	assert.Equal(t, "{lines: 0, words: 3, bytes: 14, chars: 14}", value.Inline(v))

	v, _ = eval(t, `echo "héllo" | wc`)
	assert.Equal(t, "{lines: 0, words: 1, bytes: 6, chars: 5}", value.Inline(v))
}

func TestWcRejectsNumbers(t *testing.T) {
	s, _ := newTestSession(t)
	data, err := s.Eval(context.Background(), "test.nu", []byte("echo 1 | wc"))
	require.NoError(t, err)

	v, err := data.IntoValue(span.Unknown)
	require.NoError(t, err)
	e, ok := v.(value.Error)
	require.True(t, ok)
	assert.True(t, errors.Is(e.Err, shellerr.TypeMismatch))
	assert.Equal(t, span.New(5, 6), shellerr.From(e.Err).Span)
}
