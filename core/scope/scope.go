// Package scope implements the lexical binding stack used to resolve command
// and variable names.
//
// Entries live in an append-only arena addressed by DeclID. Frames map names
// to ids and carry hide tombstones; they are pushed and popped in strict LIFO
// order, so dropping a frame drops every binding and tombstone made in it
// while the entries themselves stay reachable by id (closures may still hold
// them).
package scope

import (
	"sync"
)

// DeclID addresses an entry in a Registry's arena.
type DeclID int

// Entry is one surviving binding reported by AllVisible.
type Entry struct {
	Name string
	ID   DeclID
	// Depth is the index of the frame holding the binding, 0 for the root.
	Depth int
}

type binding struct {
	name string
	id   DeclID
}

type frame struct {
	// bindings in insertion order; a later binding of a name shadows an
	// earlier one.
	bindings []binding
	// hidden maps a name to the length of bindings when it was last hidden.
	// Only bindings made after that position survive the tombstone.
	hidden map[string]int
}

// lookup searches the frame for name. blocked is set when a tombstone in
// this frame ends the search.
func (f *frame) lookup(name string) (id DeclID, ok, blocked bool) {
	pos, isHidden := f.hidden[name]
	for i := len(f.bindings) - 1; i >= 0; i-- {
		if f.bindings[i].name != name {
			continue
		}
		if isHidden && i < pos {
			break
		}
		return f.bindings[i].id, true, false
	}
	return 0, false, isHidden
}

func (f *frame) survives(i int) bool {
	pos, isHidden := f.hidden[f.bindings[i].name]
	return !isHidden || i >= pos
}

// Registry is a stack of frames over an arena of D. It always has at least
// the root frame.
type Registry[D any] struct {
	mu      sync.RWMutex
	entries []D
	frames  []*frame
}

// New creates a registry holding only the root frame.
func New[D any]() *Registry[D] {
	return &Registry[D]{frames: []*frame{{}}}
}

// PushFrame opens a new innermost frame.
func (r *Registry[D]) PushFrame() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, &frame{})
}

// PopFrame discards the innermost frame. Popping the root frame is a
// programming error.
func (r *Registry[D]) PopFrame() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 1 {
		panic("scope: pop of root frame")
	}
	r.frames[len(r.frames)-1] = nil
	r.frames = r.frames[:len(r.frames)-1]
}

// Depth returns the number of frames above the root.
func (r *Registry[D]) Depth() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.frames) - 1
}

// Add stores d in the arena without binding a name to it.
func (r *Registry[D]) Add(d D) DeclID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, d)
	return DeclID(len(r.entries) - 1)
}

// Bind stores d and binds name to it in the innermost frame.
func (r *Registry[D]) Bind(name string, d D) DeclID {
	id := r.Add(d)
	r.Use(name, id)
	return id
}

// Use binds name to an existing id in the innermost frame. The new binding
// is visible even if the frame hid name earlier; bindings from before the
// hide stay hidden.
func (r *Registry[D]) Use(name string, id DeclID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.frames[len(r.frames)-1]
	f.bindings = append(f.bindings, binding{name: name, id: id})
}

// Hide makes name unresolvable until the innermost frame is popped. It
// reports whether the name was visible beforehand.
func (r *Registry[D]) Hide(name string) bool {
	_, visible := r.Resolve(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.frames[len(r.frames)-1]
	if f.hidden == nil {
		f.hidden = make(map[string]int)
	}
	f.hidden[name] = len(f.bindings)
	return visible
}

// Resolve finds the id bound to name, searching frames innermost first. A
// tombstone ends the search.
func (r *Registry[D]) Resolve(name string) (DeclID, bool) {
	id, ok, _ := r.resolve(name)
	return id, ok
}

// Hidden reports whether name fails to resolve because of a tombstone, as
// opposed to never having been bound.
func (r *Registry[D]) Hidden(name string) bool {
	_, _, blocked := r.resolve(name)
	return blocked
}

func (r *Registry[D]) resolve(name string) (DeclID, bool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.frames) - 1; i >= 0; i-- {
		id, ok, blocked := r.frames[i].lookup(name)
		switch {
		case ok:
			return id, true, false
		case blocked:
			return 0, false, true
		}
	}
	return 0, false, false
}

// Isolate replaces the frame stack with a single empty frame until the
// returned function restores the previous stack. The arena is shared, so
// ids stay valid on both sides.
func (r *Registry[D]) Isolate() (restore func()) {
	r.mu.Lock()
	saved := r.frames
	r.frames = []*frame{{}}
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.frames = saved
	}
}

// Get returns the arena entry for id.
func (r *Registry[D]) Get(id DeclID) D {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[id]
}

// Len is the number of arena entries.
func (r *Registry[D]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// AllVisible lists every surviving binding that is not behind a tombstone,
// most recent first, including ones shadowed by a later binding of the same
// name.
func (r *Registry[D]) AllVisible() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hidden := map[string]bool{}
	var out []Entry
	for depth := len(r.frames) - 1; depth >= 0; depth-- {
		f := r.frames[depth]
		for i := len(f.bindings) - 1; i >= 0; i-- {
			b := f.bindings[i]
			if hidden[b.name] || !f.survives(i) {
				continue
			}
			out = append(out, Entry{Name: b.name, ID: b.id, Depth: depth})
		}
		for name := range f.hidden {
			hidden[name] = true
		}
	}
	return out
}

// Active lists the binding each visible name currently resolves to, most
// recent first.
func (r *Registry[D]) Active() []Entry {
	seen := map[string]bool{}
	var out []Entry
	for _, e := range r.AllVisible() {
		if seen[e.Name] {
			continue
		}
		seen[e.Name] = true
		out = append(out, e)
	}
	return out
}
