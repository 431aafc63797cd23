// Package value is the data model that flows between commands: tagged values
// and the PipelineData container that streams them lazily.
package value

import (
	"bytes"
	"fmt"
	"math"

	"github.com/josephlewis42/pipeshell/core/scope"
	"github.com/josephlewis42/pipeshell/core/shellerr"
	"github.com/josephlewis42/pipeshell/core/span"
)

// Kind tags each Value variant.
type Kind int

const (
	KindNothing Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBinary
	KindRecord
	KindList
	KindClosure
	KindError
)

var kindNames = map[Kind]string{
	KindNothing: "nothing",
	KindBool:    "bool",
	KindInt:     "int",
	KindFloat:   "float",
	KindString:  "string",
	KindBinary:  "binary",
	KindRecord:  "record",
	KindList:    "list",
	KindClosure: "closure",
	KindError:   "error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return KindNothing, false
}

// Value is one of Nothing, Bool, Int, Float, String, Binary, Record, List,
// Closure or Error. The set is closed: switches over it are expected to be
// exhaustive.
//
// The span records the expression that produced the value and is used only
// for diagnostics, never for equality.
type Value interface {
	Kind() Kind
	Span() span.Span
	WithSpan(span.Span) Value

	isValue()
}

type base struct {
	sp span.Span
}

func (b base) Span() span.Span { return b.sp }
func (base) isValue()          {}

type Nothing struct{ base }

type Bool struct {
	base
	Val bool
}

type Int struct {
	base
	Val int64
}

type Float struct {
	base
	Val float64
}

type String struct {
	base
	Val string
}

type Binary struct {
	base
	Val []byte
}

type List struct {
	base
	Vals []Value
}

// Closure references an evaluable block together with the bindings that
// were visible when it was created.
type Closure struct {
	base
	BlockID  int
	Captures Captures
}

// Captures is the scope snapshot held by a closure.
type Captures struct {
	Vars  []Capture
	Decls []DeclCapture
}

// Capture is a captured variable.
type Capture struct {
	Name    string
	Mutable bool
	Val     Value
}

// DeclCapture is a captured command binding.
type DeclCapture struct {
	Name string
	ID   scope.DeclID
}

// Error carries a failure as data so it can flow through a pipeline.
type Error struct {
	base
	Err error
}

func (Nothing) Kind() Kind { return KindNothing }
func (Bool) Kind() Kind { return KindBool }
func (Int) Kind() Kind { return KindInt }
func (Float) Kind() Kind { return KindFloat }
func (String) Kind() Kind { return KindString }
func (Binary) Kind() Kind { return KindBinary }
func (Record) Kind() Kind { return KindRecord }
func (List) Kind() Kind { return KindList }
func (Closure) Kind() Kind { return KindClosure }
func (Error) Kind() Kind { return KindError }

func (v Nothing) WithSpan(sp span.Span) Value { v.sp = sp; return v }
func (v Bool) WithSpan(sp span.Span) Value { v.sp = sp; return v }
func (v Int) WithSpan(sp span.Span) Value { v.sp = sp; return v }
func (v Float) WithSpan(sp span.Span) Value { v.sp = sp; return v }
func (v String) WithSpan(sp span.Span) Value { v.sp = sp; return v }
func (v Binary) WithSpan(sp span.Span) Value { v.sp = sp; return v }
func (v Record) WithSpan(sp span.Span) Value { v.sp = sp; return v }
func (v List) WithSpan(sp span.Span) Value { v.sp = sp; return v }
func (v Closure) WithSpan(sp span.Span) Value { v.sp = sp; return v }
func (v Error) WithSpan(sp span.Span) Value { v.sp = sp; return v }

func NewNothing(sp span.Span) Nothing { return Nothing{base{sp}} }
func NewBool(b bool, sp span.Span) Bool { return Bool{base{sp}, b} }
func NewInt(i int64, sp span.Span) Int { return Int{base{sp}, i} }
func NewFloat(f float64, sp span.Span) Float { return Float{base{sp}, f} }
func NewString(s string, sp span.Span) String { return String{base{sp}, s} }
func NewBinary(b []byte, sp span.Span) Binary { return Binary{base{sp}, b} }
func NewList(vals []Value, sp span.Span) List { return List{base{sp}, vals} }
func NewError(err error, sp span.Span) Error { return Error{base{sp}, err} }
func NewClosure(blockID int, captures Captures, sp span.Span) Closure {
	return Closure{base{sp}, blockID, captures}
}

// Equal compares values structurally, ignoring spans. Ints and floats
// compare numerically.
func Equal(a, b Value) bool {
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		return bok && af == bf
	}

	switch a := a.(type) {
	case Nothing:
		_, ok := b.(Nothing)
		return ok
	case Bool:
		b, ok := b.(Bool)
		return ok && a.Val == b.Val
	case String:
		b, ok := b.(String)
		return ok && a.Val == b.Val
	case Binary:
		b, ok := b.(Binary)
		return ok && bytes.Equal(a.Val, b.Val)
	case List:
		b, ok := b.(List)
		if !ok || len(a.Vals) != len(b.Vals) {
			return false
		}
		for i := range a.Vals {
			if !Equal(a.Vals[i], b.Vals[i]) {
				return false
			}
		}
		return true
	case Record:
		b, ok := b.(Record)
		if !ok || a.Len() != b.Len() {
			return false
		}
		for i, col := range a.Cols {
			other, ok := b.Get(col)
			if !ok || !Equal(a.Vals[i], other) {
				return false
			}
		}
		return true
	case Closure:
		b, ok := b.(Closure)
		return ok && a.BlockID == b.BlockID
	case Error:
		b, ok := b.(Error)
		return ok && a.Err.Error() == b.Err.Error()
	}
	return false
}

// Compare orders two numbers or two strings.
func Compare(a, b Value) (int, error) {
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			switch {
			case af < bf:
				return -1, nil
			case af > bf:
				return 1, nil
			}
			return 0, nil
		}
	}
	if as, ok := a.(String); ok {
		if bs, ok := b.(String); ok {
			switch {
			case as.Val < bs.Val:
				return -1, nil
			case as.Val > bs.Val:
				return 1, nil
			}
			return 0, nil
		}
	}
	return 0, shellerr.Newf(shellerr.TypeMismatch, "Can't compare %s with %s", a.Kind(), b.Kind()).
		WithLabel(fmt.Sprintf("%s can't be compared to %s", a.Kind(), b.Kind()), a.Span().Merge(b.Span()))
}

func asFloat(v Value) (float64, bool) {
	switch v := v.(type) {
	case Int:
		return float64(v.Val), true
	case Float:
		if math.IsNaN(v.Val) {
			return 0, false
		}
		return v.Val, true
	}
	return 0, false
}

// AsBool extracts a boolean or fails with a TypeMismatch labeled at v.
func AsBool(v Value) (bool, error) {
	if b, ok := v.(Bool); ok {
		return b.Val, nil
	}
	return false, shellerr.New(shellerr.TypeMismatch, "Type mismatch").
		WithLabel(fmt.Sprintf("expected bool, found %s", v.Kind()), v.Span())
}

// AsInt extracts an integer or fails with a TypeMismatch labeled at v.
func AsInt(v Value) (int64, error) {
	if i, ok := v.(Int); ok {
		return i.Val, nil
	}
	return 0, shellerr.New(shellerr.TypeMismatch, "Type mismatch").
		WithLabel(fmt.Sprintf("expected int, found %s", v.Kind()), v.Span())
}

// AsString extracts a string or fails with a TypeMismatch labeled at v.
func AsString(v Value) (string, error) {
	if s, ok := v.(String); ok {
		return s.Val, nil
	}
	return "", shellerr.New(shellerr.TypeMismatch, "Type mismatch").
		WithLabel(fmt.Sprintf("expected string, found %s", v.Kind()), v.Span())
}
