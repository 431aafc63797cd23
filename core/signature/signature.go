// Package signature describes command parameters and binds call-site
// arguments against them.
package signature

import (
	"fmt"
	"strings"

	"github.com/josephlewis42/pipeshell/core/value"
)

// Shape constrains the values a parameter accepts.
type Shape int

const (
	// ShapeNothing marks a switch: a flag that takes no value.
	ShapeNothing Shape = iota
	ShapeAny
	ShapeInt
	ShapeNumber
	ShapeString
	ShapeBool
	ShapeList
	ShapeRecord
	ShapeClosure
	ShapeBinary
)

var shapeNames = []string{"nothing", "any", "int", "number", "string", "bool", "list", "record", "closure", "binary"}

func (s Shape) String() string {
	if int(s) < len(shapeNames) {
		return shapeNames[s]
	}
	return fmt.Sprintf("Shape(%d)", int(s))
}

// ParseShape parses the name used in `def` parameter lists and on the wire.
func ParseShape(name string) (Shape, bool) {
	for i, n := range shapeNames {
		if n == name {
			return Shape(i), true
		}
	}
	return ShapeAny, false
}

// Accepts reports whether v fits the shape.
func (s Shape) Accepts(v value.Value) bool {
	switch s {
	case ShapeAny:
		return true
	case ShapeInt:
		return v.Kind() == value.KindInt
	case ShapeNumber:
		return v.Kind() == value.KindInt || v.Kind() == value.KindFloat
	case ShapeString:
		return v.Kind() == value.KindString
	case ShapeBool:
		return v.Kind() == value.KindBool
	case ShapeList:
		return v.Kind() == value.KindList
	case ShapeRecord:
		return v.Kind() == value.KindRecord
	case ShapeClosure:
		return v.Kind() == value.KindClosure
	case ShapeBinary:
		return v.Kind() == value.KindBinary
	case ShapeNothing:
		return v.Kind() == value.KindNothing || v.Kind() == value.KindBool
	}
	return false
}

// Positional is a positional parameter.
type Positional struct {
	Name  string
	Shape Shape
	Desc  string
}

// Flag is a named parameter. A flag with ShapeNothing is a switch.
type Flag struct {
	Long     string
	Short    rune
	Shape    Shape
	Required bool
	Desc     string
}

// IsSwitch reports whether the flag takes no value.
func (f Flag) IsSwitch() bool {
	return f.Shape == ShapeNothing
}

// Signature declares a command's parameters.
type Signature struct {
	Name     string
	Usage    string
	Required []Positional
	Optional []Positional
	Rest     *Positional
	Named    []Flag
}

// New starts a signature for the named command.
func New(name string) *Signature {
	return &Signature{Name: name}
}

func (s *Signature) Describe(usage string) *Signature {
	s.Usage = usage
	return s
}

func (s *Signature) AddRequired(name string, shape Shape, desc string) *Signature {
	s.Required = append(s.Required, Positional{Name: name, Shape: shape, Desc: desc})
	return s
}

func (s *Signature) AddOptional(name string, shape Shape, desc string) *Signature {
	s.Optional = append(s.Optional, Positional{Name: name, Shape: shape, Desc: desc})
	return s
}

func (s *Signature) SetRest(name string, shape Shape, desc string) *Signature {
	s.Rest = &Positional{Name: name, Shape: shape, Desc: desc}
	return s
}

// AddNamed declares a flag taking a value. short may be 0.
func (s *Signature) AddNamed(long string, shape Shape, short rune, desc string) *Signature {
	s.Named = append(s.Named, Flag{Long: long, Short: short, Shape: shape, Desc: desc})
	return s
}

// AddSwitch declares a flag without a value. short may be 0.
func (s *Signature) AddSwitch(long string, short rune, desc string) *Signature {
	s.Named = append(s.Named, Flag{Long: long, Short: short, Shape: ShapeNothing, Desc: desc})
	return s
}

// FindFlag looks a flag up by long name, or by short name when long is a
// single rune.
func (s *Signature) FindFlag(long string, short rune) (*Flag, bool) {
	for i := range s.Named {
		f := &s.Named[i]
		if long != "" && f.Long == long {
			return f, true
		}
		if short != 0 && f.Short == short {
			return f, true
		}
	}
	return nil, false
}

// Clone returns a deep copy renamed to name.
func (s *Signature) Clone(name string) *Signature {
	out := *s
	out.Name = name
	out.Required = append([]Positional(nil), s.Required...)
	out.Optional = append([]Positional(nil), s.Optional...)
	out.Named = append([]Flag(nil), s.Named...)
	if s.Rest != nil {
		rest := *s.Rest
		out.Rest = &rest
	}
	return &out
}

// String renders a one-line usage synopsis.
func (s *Signature) String() string {
	parts := []string{s.Name}
	for _, p := range s.Required {
		parts = append(parts, fmt.Sprintf("<%s: %s>", p.Name, p.Shape))
	}
	for _, p := range s.Optional {
		parts = append(parts, fmt.Sprintf("(%s: %s)", p.Name, p.Shape))
	}
	if s.Rest != nil {
		parts = append(parts, fmt.Sprintf("...%s: %s", s.Rest.Name, s.Rest.Shape))
	}
	for _, f := range s.Named {
		flag := "--" + f.Long
		if f.Short != 0 {
			flag += fmt.Sprintf("(-%c)", f.Short)
		}
		if !f.IsSwitch() {
			flag += fmt.Sprintf(" <%s>", f.Shape)
		}
		parts = append(parts, "{"+flag+"}")
	}
	return strings.Join(parts, " ")
}
