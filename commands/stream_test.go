package commands

import (
	"context"
	"testing"

	"github.com/josephlewis42/pipeshell/core/shellerr"
	"github.com/josephlewis42/pipeshell/core/signature"
	"github.com/josephlewis42/pipeshell/core/span"
	"github.com/josephlewis42/pipeshell/core/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreams(t *testing.T) {
	cases := goldenTestSuite{
		"take from a huge seq": {Script: "seq 1 1000000000 | take 3"},
		"length":               {Script: "seq 1 10 | length"},
		"each":                 {Script: "seq 1 3 | each { $in * 10 }"},
		"step":                 {Script: "seq 10 1 --step -3"},
		"zero step":            {Script: "seq 1 3 --step 0", Status: 1},
	}

	cases.Run(t)
}

func TestSeqCountsDown(t *testing.T) {
	v, _ := eval(t, "seq 3 1")
	assert.Equal(t, "[3, 2, 1]", value.Inline(v))
}

func TestSeqStopsAtIntegerLimits(t *testing.T) {
	cases := map[string]struct {
		script   string
		expected string
	}{
		"up to max":      {"seq 9223372036854775806 9223372036854775807 | take 5", "[9223372036854775806, 9223372036854775807]"},
		"down to min":    {"seq -9223372036854775807 -9223372036854775808 | take 5", "[-9223372036854775807, -9223372036854775808]"},
		"big step":       {"seq 9223372036854775800 9223372036854775807 --step 5", "[9223372036854775800, 9223372036854775805]"},
		"whole range":    {"seq -9223372036854775808 9223372036854775807 --step 9223372036854775807 | length", "3"},
		"single element": {"seq 5 5", "[5]"},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			v, _ := eval(t, tc.script)
			assert.Equal(t, tc.expected, value.Inline(v))
		})
	}
}

func TestLengthOfRecordAndEmpty(t *testing.T) {
	v, _ := eval(t, "echo | length")
	assert.Equal(t, "0", value.Inline(v))

	v, _ = eval(t, "[1 2 3 4] | length")
	assert.Equal(t, "4", value.Inline(v))
}

func TestDo(t *testing.T) {
	v, _ := eval(t, "let x = 4; 5 | do { $in + $x }")
	assert.Equal(t, "9", value.Inline(v))
}

func TestTakeStopsPulling(t *testing.T) {
	s, _ := newTestSession(t)
	e := s.Engine

	pulled := 0
	src := value.NewListStream(span.Unknown, e.Signals, func() (value.Value, error) {
		pulled++
		return value.NewInt(int64(pulled), span.Unknown), nil
	})

	call := &signature.EvaluatedCall{Positional: []value.Value{value.NewInt(2, span.Unknown)}}
	out, err := Take(context.Background(), e, call, value.FromListStream(src))
	require.NoError(t, err)
	vals, err := out.IntoValue(span.Unknown)
	require.NoError(t, err)
	assert.Equal(t, "[1, 2]", value.Inline(vals))
	assert.Equal(t, 2, pulled)
}

func TestInterruptStopsSeq(t *testing.T) {
	s, _ := newTestSession(t)
	e := s.Engine

	data, err := s.Eval(context.Background(), "test.nu", []byte("seq 1 100"))
	require.NoError(t, err)
	stream, err := data.Iter(span.Unknown, e.Signals)
	require.NoError(t, err)

	first, ok := stream.Next()
	require.True(t, ok)
	assert.Equal(t, "1", value.Inline(first))

	e.Signals.Interrupt()
	_, ok = stream.Next()
	assert.False(t, ok)
	assert.True(t, shellerr.IsInterrupt(stream.Err()))
}
