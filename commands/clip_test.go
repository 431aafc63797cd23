package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClipCopy(t *testing.T) {
	t.Setenv("TMUX", "")
	t.Setenv("TERM", "xterm-256color")

	cases := map[string]struct {
		script   string
		expected string
		status   int
	}{
		"copy": {
			script:   "echo hello | clip copy",
			expected: "\x1b]52;c;aGVsbG8=\x07",
		},
		"show": {
			script:   "echo hello | clip copy --show",
			expected: "\x1b]52;c;aGVsbG8=\x07hello\n",
		},
		"numbers are rendered": {
			script:   "42 | clip copy",
			expected: "\x1b]52;c;NDI=\x07",
		},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			s, out := newTestSession(t)
			status := s.Run(context.Background(), "test.nu", []byte(tc.script))
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.expected, out.String())
		})
	}
}

func TestClipCopyUnderTmux(t *testing.T) {
	t.Setenv("TMUX", "/tmp/tmux-1000/default,1,0")

	s, out := newTestSession(t)
	assert.Equal(t, 0, s.Run(context.Background(), "test.nu", []byte("echo hi | clip copy")))
	assert.Equal(t, "\x1bPtmux;\x1b\x1b]52;c;aGk=\x07\x1b\\", out.String())
}

func TestClipCopyNeedsInput(t *testing.T) {
	s, out := newTestSession(t)
	assert.Equal(t, 1, s.Run(context.Background(), "test.nu", []byte("clip copy")))
	assert.Contains(t, out.String(), "Pipeline empty")
}
