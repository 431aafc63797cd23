// Package source keeps every buffer the engine has ever loaded so that spans
// can be resolved back to text for diagnostics and introspection.
package source

import (
	"sort"
	"sync"

	"github.com/josephlewis42/pipeshell/core/shellerr"
	"github.com/josephlewis42/pipeshell/core/span"
)

// File is one registered buffer: a script, a REPL line or an evaluated string.
type File struct {
	Name    string
	Covered span.Span
	Content []byte
}

// Slice returns the bytes of sp, which must lie within the file.
func (f *File) Slice(sp span.Span) []byte {
	return f.Content[sp.Start-f.Covered.Start : sp.End-f.Covered.Start]
}

// Registry is an append-only store of source files. Offsets are assigned
// contiguously and never reused.
type Registry struct {
	rw    sync.RWMutex
	files []*File
	next  int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends content under name and returns the span it covers.
func (r *Registry) Register(name string, content []byte) span.Span {
	r.rw.Lock()
	defer r.rw.Unlock()

	// Copy so later mutation by the caller can't change registered text.
	buf := make([]byte, len(content))
	copy(buf, content)

	covered := span.New(r.next, r.next+len(buf))
	r.files = append(r.files, &File{Name: name, Covered: covered, Content: buf})
	r.next = covered.End
	return covered
}

// Lookup resolves sp to the file that covers it and the covered text.
func (r *Registry) Lookup(sp span.Span) (string, []byte, error) {
	f, err := r.FileFor(sp)
	if err != nil {
		return "", nil, err
	}
	return f.Name, f.Slice(sp), nil
}

// FileFor returns the file whose covered span contains sp.
func (r *Registry) FileFor(sp span.Span) (*File, error) {
	if !sp.Valid() {
		return nil, shellerr.New(shellerr.InvalidSpan, "Invalid span").
			WithLabel("the start position of this span is later than the end position", sp)
	}

	r.rw.RLock()
	defer r.rw.RUnlock()

	// Files are contiguous, so the owner is the first file extending past
	// sp.Start. An empty span sitting on the very end of the text belongs
	// to the last file instead.
	i := sort.Search(len(r.files), func(i int) bool {
		return r.files[i].Covered.End > sp.Start
	})
	for _, j := range []int{i, i - 1} {
		if j >= 0 && j < len(r.files) && r.files[j].Covered.Contains(sp) {
			return r.files[j], nil
		}
	}

	return nil, shellerr.New(shellerr.SpanOutOfRange, "Cannot view span").
		WithLabel("this start and end does not correspond to a viewable value", sp)
}

// Files returns a snapshot of the registered files in registration order.
func (r *Registry) Files() []*File {
	r.rw.RLock()
	defer r.rw.RUnlock()

	out := make([]*File, len(r.files))
	copy(out, r.files)
	return out
}

// NextOffset is the start of the span the next Register call will assign.
func (r *Registry) NextOffset() int {
	r.rw.RLock()
	defer r.rw.RUnlock()
	return r.next
}

// Position describes where a span starts, for rendering diagnostics.
type Position struct {
	File   *File
	Line   int // 1-based
	Column int // 1-based, in bytes
	// LineText is the full text of the line containing the span start.
	LineText string
}

// Locate resolves the line and column of sp's start.
func (r *Registry) Locate(sp span.Span) (*Position, error) {
	f, err := r.FileFor(sp)
	if err != nil {
		return nil, err
	}

	rel := sp.Start - f.Covered.Start
	line, lineStart := 1, 0
	for i := 0; i < rel; i++ {
		if f.Content[i] == '\n' {
			line++
			lineStart = i + 1
		}
	}
	lineEnd := len(f.Content)
	for i := lineStart; i < len(f.Content); i++ {
		if f.Content[i] == '\n' {
			lineEnd = i
			break
		}
	}

	return &Position{
		File:     f,
		Line:     line,
		Column:   rel - lineStart + 1,
		LineText: string(f.Content[lineStart:lineEnd]),
	}, nil
}
