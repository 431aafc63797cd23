// Package span holds byte ranges into the engine's cumulative source text.
package span

import "fmt"

// Span is a half-open byte range [Start, End) into the logical concatenation
// of every source buffer registered with the engine.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Unknown is the span used for values and declarations with no source.
var Unknown = Span{}

// New creates a span.
func New(start, end int) Span {
	return Span{Start: start, End: end}
}

// IsUnknown reports whether the span carries no source position.
func (s Span) IsUnknown() bool {
	return s == Unknown
}

// Valid reports whether start is not later than end.
func (s Span) Valid() bool {
	return s.Start <= s.End
}

// Len returns the number of bytes covered.
func (s Span) Len() int {
	return s.End - s.Start
}

// Contains reports whether other lies entirely within s.
func (s Span) Contains(other Span) bool {
	return s.Start <= other.Start && other.End <= s.End
}

// Merge returns the smallest span covering both s and other.
func (s Span) Merge(other Span) Span {
	if s.IsUnknown() {
		return other
	}
	if other.IsUnknown() {
		return s
	}
	out := s
	if other.Start < out.Start {
		out.Start = other.Start
	}
	if other.End > out.End {
		out.End = other.End
	}
	return out
}

// Offset shifts the span by n bytes.
func (s Span) Offset(n int) Span {
	return Span{Start: s.Start + n, End: s.End + n}
}

func (s Span) String() string {
	return fmt.Sprintf("Span { start: %d, end: %d }", s.Start, s.End)
}
