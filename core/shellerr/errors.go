// Package shellerr defines the structured errors surfaced by the engine.
//
// Every failure that reaches a user carries a Kind (usable with errors.Is), a
// short message, and optionally a label anchored at a source span so the
// front end can underline the offending text.
package shellerr

import (
	"errors"
	"fmt"

	"github.com/josephlewis42/pipeshell/core/span"
)

// Kind classifies a ShellError. Kinds are themselves errors so callers can
// write errors.Is(err, shellerr.DeclNotFound).
type Kind struct {
	name string
}

func (k *Kind) Error() string {
	return k.name
}

func (k *Kind) String() string {
	return k.name
}

func newKind(name string) *Kind {
	return &Kind{name: name}
}

var (
	InvalidSpan               = newKind("invalid span")
	SpanOutOfRange            = newKind("span out of range")
	DeclNotFound              = newKind("command not found")
	ArityError                = newKind("wrong number of arguments")
	TypeMismatch              = newKind("type mismatch")
	PluginSpawnFailure        = newKind("plugin failed to start")
	PluginProtocolViolation   = newKind("plugin protocol violation")
	PluginReportedError       = newKind("plugin error")
	CancellationRequested     = newKind("operation interrupted")
	ParseError                = newKind("parse error")
	VariableNotFound          = newKind("variable not found")
	AssignmentRequiresMutable = newKind("assignment requires a mutable variable")
	StreamConsumed            = newKind("stream already consumed")
	ExternalCommandFailed     = newKind("external command failed")
	GenericError              = newKind("error")
)

// ShellError is a labeled error.
type ShellError struct {
	Kind  *Kind
	Msg   string
	Label string
	Span  span.Span
	Help  string
	Inner error
}

// New creates a ShellError of the given kind.
func New(kind *Kind, msg string) *ShellError {
	return &ShellError{Kind: kind, Msg: msg}
}

// Newf creates a ShellError with a formatted message.
func Newf(kind *Kind, format string, a ...interface{}) *ShellError {
	return New(kind, fmt.Sprintf(format, a...))
}

// WithLabel anchors a label at a source span.
func (e *ShellError) WithLabel(label string, sp span.Span) *ShellError {
	e.Label = label
	e.Span = sp
	return e
}

// WithHelp attaches a hint.
func (e *ShellError) WithHelp(help string) *ShellError {
	e.Help = help
	return e
}

// Wrap records the underlying cause.
func (e *ShellError) Wrap(inner error) *ShellError {
	e.Inner = inner
	return e
}

func (e *ShellError) Error() string {
	switch {
	case e.Msg == "":
		return e.Kind.Error()
	case e.Label != "":
		return fmt.Sprintf("%s: %s", e.Msg, e.Label)
	default:
		return e.Msg
	}
}

// Is matches the error's kind.
func (e *ShellError) Is(target error) bool {
	if k, ok := target.(*Kind); ok {
		return e.Kind == k
	}
	return false
}

func (e *ShellError) Unwrap() error {
	return e.Inner
}

// From returns err as a ShellError, converting foreign errors to GenericError.
func From(err error) *ShellError {
	if err == nil {
		return nil
	}
	var se *ShellError
	if errors.As(err, &se) {
		return se
	}
	return New(GenericError, err.Error()).Wrap(err)
}

// Anchor attaches sp to err if it doesn't already point somewhere.
func Anchor(err error, sp span.Span) error {
	se := From(err)
	if se == nil {
		return nil
	}
	if se.Span.IsUnknown() {
		se.Span = sp
	}
	return se
}

// IsInterrupt reports whether err is a cooperative cancellation.
func IsInterrupt(err error) bool {
	return errors.Is(err, CancellationRequested)
}

// Interrupted is returned when the cancellation signal stops work.
func Interrupted(sp span.Span) *ShellError {
	return New(CancellationRequested, "Operation interrupted").WithLabel("interrupted here", sp)
}
