package signature

import (
	"fmt"

	"github.com/josephlewis42/pipeshell/core/shellerr"
	"github.com/josephlewis42/pipeshell/core/span"
	"github.com/josephlewis42/pipeshell/core/value"
)

// Arg is one evaluated argument as written at the call site. Positional
// arguments have neither Long nor Short set; a flag written without an inline
// value has a nil Value.
type Arg struct {
	Span  span.Span
	Long  string
	Short rune
	Value value.Value
}

// IsFlag reports whether the argument was written as a flag.
func (a Arg) IsFlag() bool {
	return a.Long != "" || a.Short != 0
}

// EvaluatedCall is a call whose arguments are bound to a signature.
type EvaluatedCall struct {
	Head       span.Span
	Positional []value.Value
	Named      map[string]value.Value
	Rest       []value.Value
}

// Has reports whether a flag was given.
func (c *EvaluatedCall) Has(flag string) bool {
	_, ok := c.Named[flag]
	return ok
}

// Get returns the value passed to a flag. Switches hold Bool true.
func (c *EvaluatedCall) Get(flag string) (value.Value, bool) {
	v, ok := c.Named[flag]
	return v, ok
}

// Nth returns the i-th required-or-optional positional argument.
func (c *EvaluatedCall) Nth(i int) (value.Value, bool) {
	if i < 0 || i >= len(c.Positional) {
		return nil, false
	}
	return c.Positional[i], true
}

// All returns the positional and rest arguments in call order.
func (c *EvaluatedCall) All() []value.Value {
	out := make([]value.Value, 0, len(c.Positional)+len(c.Rest))
	out = append(out, c.Positional...)
	return append(out, c.Rest...)
}

// Bind matches args against s. Errors are ArityError or TypeMismatch and
// point at the offending argument, or at head for missing arguments.
func (s *Signature) Bind(head span.Span, args []Arg) (*EvaluatedCall, error) {
	call := &EvaluatedCall{Head: head, Named: map[string]value.Value{}}

	var positional []Arg
	for i := 0; i < len(args); i++ {
		a := args[i]
		if !a.IsFlag() {
			positional = append(positional, a)
			continue
		}

		flag, ok := s.FindFlag(a.Long, a.Short)
		if !ok {
			return nil, shellerr.Newf(shellerr.ArityError, "The `%s` command doesn't have flag `%s`", s.Name, flagName(a)).
				WithLabel("unknown flag", a.Span)
		}

		v := a.Value
		switch {
		case flag.IsSwitch() && v == nil:
			v = value.NewBool(true, a.Span)
		case v == nil:
			if i+1 >= len(args) || args[i+1].IsFlag() {
				return nil, shellerr.New(shellerr.ArityError, "Missing flag argument").
					WithLabel(fmt.Sprintf("flag --%s requires a %s value", flag.Long, flag.Shape), a.Span)
			}
			i++
			v = args[i].Value
		}
		if !flag.Shape.Accepts(v) {
			return nil, mismatch(flag.Shape, v)
		}
		call.Named[flag.Long] = v
	}

	for _, f := range s.Named {
		if f.Required && !call.Has(f.Long) {
			return nil, shellerr.New(shellerr.ArityError, "Missing required flag").
				WithLabel(fmt.Sprintf("missing --%s", f.Long), head)
		}
	}

	if len(positional) < len(s.Required) {
		missing := s.Required[len(positional)]
		return nil, shellerr.New(shellerr.ArityError, "Missing required positional argument").
			WithLabel(fmt.Sprintf("missing %s", missing.Name), head).
			WithHelp(fmt.Sprintf("Usage: %s", s))
	}

	for i, a := range positional {
		var param *Positional
		switch {
		case i < len(s.Required):
			param = &s.Required[i]
		case i < len(s.Required)+len(s.Optional):
			param = &s.Optional[i-len(s.Required)]
		case s.Rest != nil:
			param = s.Rest
		default:
			return nil, shellerr.New(shellerr.ArityError, "Extra positional argument").
				WithLabel("extra positional argument", a.Span).
				WithHelp(fmt.Sprintf("Usage: %s", s))
		}

		if !param.Shape.Accepts(a.Value) {
			return nil, mismatch(param.Shape, a.Value)
		}
		if param == s.Rest {
			call.Rest = append(call.Rest, a.Value)
		} else {
			call.Positional = append(call.Positional, a.Value)
		}
	}

	return call, nil
}

func flagName(a Arg) string {
	if a.Long != "" {
		return "--" + a.Long
	}
	return fmt.Sprintf("-%c", a.Short)
}

func mismatch(want Shape, got value.Value) error {
	return shellerr.New(shellerr.TypeMismatch, "Type mismatch").
		WithLabel(fmt.Sprintf("expected %s, found %s", want, got.Kind()), got.Span())
}
