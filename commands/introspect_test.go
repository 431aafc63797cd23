package commands

import (
	"context"
	"errors"
	"testing"

	"github.com/josephlewis42/pipeshell/core/shellerr"
	"github.com/josephlewis42/pipeshell/core/span"
	"github.com/josephlewis42/pipeshell/core/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata(t *testing.T) {
	v, _ := eval(t, "let x = 5; metadata $x")
	rec, ok := v.(value.Record)
	require.True(t, ok)
	sp, _ := rec.Get("span")
	assert.Equal(t, "{start: 8, end: 9}", value.Inline(sp))
	_, hasType := rec.Get("content_type")
	assert.False(t, hasType)

	v, _ = eval(t, "view span 0 4 | metadata")
	rec = v.(value.Record)
	ct, _ := rec.Get("content_type")
	assert.Equal(t, value.ContentTypeScript, value.Inline(ct))
	file, _ := rec.Get("source_file")
	assert.Equal(t, "test.nu", value.Inline(file))
}

func TestDebug(t *testing.T) {
	v, _ := eval(t, "echo hello | debug")
	assert.Equal(t, `"hello"`, value.Inline(v))

	v, _ = eval(t, "'hi' | debug --raw")
	assert.Equal(t, `String { val: "hi", span: Span { start: 0, end: 4 } }`, value.Inline(v))
}

func TestHelp(t *testing.T) {
	cases := goldenTestSuite{
		"seq": {Script: "help seq"},
	}

	cases.Run(t)
}

func TestHelpListsDeclarations(t *testing.T) {
	v, _ := eval(t, "def greet [] { echo hi }; help")
	list, ok := v.(value.List)
	require.True(t, ok)

	var names []string
	for _, row := range list.Vals {
		name, _ := row.(value.Record).Get("name")
		names = append(names, value.Inline(name))
	}
	assert.Contains(t, names, "greet")
	assert.Contains(t, names, "view span")
	assert.IsIncreasing(t, names)
}

func TestHelpUnknown(t *testing.T) {
	s, _ := newTestSession(t)
	data, err := s.Eval(context.Background(), "test.nu", []byte("help nope"))
	require.NoError(t, err)

	v, err := data.IntoValue(span.Unknown)
	require.NoError(t, err)
	e, ok := v.(value.Error)
	require.True(t, ok)
	assert.True(t, errors.Is(e.Err, shellerr.DeclNotFound))
	assert.Equal(t, span.New(5, 9), shellerr.From(e.Err).Span)
}
