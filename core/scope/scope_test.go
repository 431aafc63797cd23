package scope

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ExampleRegistry_Resolve() {
	reg := New[string]()
	reg.Bind("ls", "custom ls")
	reg.Bind("ls", "alias ls")

	id, _ := reg.Resolve("ls")
	fmt.Println(reg.Get(id))

	// Output: alias ls
}

func TestShadowingInSameFrame(t *testing.T) {
	reg := New[string]()
	first := reg.Bind("ls", "builtin")
	second := reg.Bind("ls", "custom")

	got, ok := reg.Resolve("ls")
	require.True(t, ok)
	assert.Equal(t, second, got)
	assert.NotEqual(t, first, got)
	assert.Equal(t, "builtin", reg.Get(first), "old entries stay reachable by id")
}

func TestPopRestoresOuterBinding(t *testing.T) {
	reg := New[string]()
	outer := reg.Bind("foo", "outer")

	reg.PushFrame()
	inner := reg.Bind("foo", "inner")
	got, _ := reg.Resolve("foo")
	assert.Equal(t, inner, got)

	reg.PopFrame()
	got, ok := reg.Resolve("foo")
	require.True(t, ok)
	assert.Equal(t, outer, got)
}

func TestHideBlocksOuterFrames(t *testing.T) {
	reg := New[string]()
	reg.Bind("foo", "outer")

	reg.PushFrame()
	assert.True(t, reg.Hide("foo"))
	_, ok := reg.Resolve("foo")
	assert.False(t, ok, "hidden name must not fall through to the outer frame")

	reg.PushFrame()
	_, ok = reg.Resolve("foo")
	assert.False(t, ok, "tombstone applies to nested frames")
	reg.PopFrame()

	reg.PopFrame()
	_, ok = reg.Resolve("foo")
	assert.True(t, ok, "tombstone is dropped with its frame")
}

func TestRebindAfterHide(t *testing.T) {
	reg := New[string]()
	reg.Bind("foo", "a")
	reg.Hide("foo")
	id := reg.Bind("foo", "b")

	got, ok := reg.Resolve("foo")
	require.True(t, ok)
	assert.Equal(t, id, got)
	assert.False(t, reg.Hidden("foo"))
	assert.Equal(t, []Entry{{Name: "foo", ID: id, Depth: 0}}, reg.AllVisible(),
		"bindings made before the hide stay hidden")
}

func TestRebindAfterHideInNestedFrame(t *testing.T) {
	reg := New[string]()
	reg.Bind("foo", "outer")

	reg.PushFrame()
	reg.Bind("foo", "before")
	reg.Hide("foo")
	after := reg.Bind("foo", "after")

	assert.Equal(t, []Entry{{Name: "foo", ID: after, Depth: 1}}, reg.AllVisible())
	assert.Equal(t, []Entry{{Name: "foo", ID: after, Depth: 1}}, reg.Active())

	reg.Hide("foo")
	assert.Empty(t, reg.AllVisible())
	assert.True(t, reg.Hidden("foo"))
}

func TestHidden(t *testing.T) {
	reg := New[string]()
	reg.Bind("ls", "builtin")

	tests := map[string]struct {
		setup  func()
		name   string
		hidden bool
	}{
		"bound":       {setup: func() {}, name: "ls", hidden: false},
		"never bound": {setup: func() {}, name: "nope", hidden: false},
		"hidden":      {setup: func() { reg.Hide("ls") }, name: "ls", hidden: true},
		"hidden unbound": {
			setup:  func() { reg.Hide("nope") },
			name:   "nope",
			hidden: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			reg.PushFrame()
			defer reg.PopFrame()

			tc.setup()
			assert.Equal(t, tc.hidden, reg.Hidden(tc.name))
		})
	}
}

func TestIsolate(t *testing.T) {
	reg := New[string]()
	outer := reg.Bind("foo", "outer")
	reg.PushFrame()

	restore := reg.Isolate()
	_, ok := reg.Resolve("foo")
	assert.False(t, ok, "isolated stack starts empty")
	assert.Equal(t, 0, reg.Depth())

	reg.Use("bar", outer)
	got, ok := reg.Resolve("bar")
	require.True(t, ok)
	assert.Equal(t, "outer", reg.Get(got), "arena is shared")
	restore()

	assert.Equal(t, 1, reg.Depth())
	_, ok = reg.Resolve("bar")
	assert.False(t, ok)
	got, _ = reg.Resolve("foo")
	assert.Equal(t, outer, got)
}

func TestAllVisibleMostRecentFirst(t *testing.T) {
	reg := New[string]()
	builtin := reg.Bind("ls", "builtin")
	seq := reg.Bind("seq", "builtin")

	reg.PushFrame()
	custom := reg.Bind("ls", "custom")
	alias := reg.Bind("ls", "alias")

	assert.Equal(t, []Entry{
		{Name: "ls", ID: alias, Depth: 1},
		{Name: "ls", ID: custom, Depth: 1},
		{Name: "seq", ID: seq, Depth: 0},
		{Name: "ls", ID: builtin, Depth: 0},
	}, reg.AllVisible())

	assert.Equal(t, []Entry{
		{Name: "ls", ID: alias, Depth: 1},
		{Name: "seq", ID: seq, Depth: 0},
	}, reg.Active())

	reg.Hide("seq")
	assert.Len(t, reg.AllVisible(), 3)
}

func TestPopRootPanics(t *testing.T) {
	reg := New[int]()
	assert.Panics(t, reg.PopFrame)
	assert.Equal(t, 0, reg.Depth())
}
