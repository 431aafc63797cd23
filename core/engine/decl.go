package engine

import (
	"context"

	"github.com/josephlewis42/pipeshell/core/ast"
	"github.com/josephlewis42/pipeshell/core/plugin"
	"github.com/josephlewis42/pipeshell/core/scope"
	"github.com/josephlewis42/pipeshell/core/signature"
	"github.com/josephlewis42/pipeshell/core/span"
	"github.com/josephlewis42/pipeshell/core/value"
)

// DeclKind tags a declaration. Dispatch switches over every kind.
type DeclKind int

const (
	DeclBuiltin DeclKind = iota
	DeclAlias
	DeclCustom
	DeclKnownExternal
	DeclPlugin
)

func (k DeclKind) String() string {
	switch k {
	case DeclBuiltin:
		return "built-in"
	case DeclAlias:
		return "alias"
	case DeclCustom:
		return "custom"
	case DeclKnownExternal:
		return "known-external"
	case DeclPlugin:
		return "plugin"
	}
	return "unknown"
}

// Command is an in-process command body.
type Command interface {
	Signature() *signature.Signature
	Run(ctx context.Context, e *Engine, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error)
}

// CommandFunc is the body of a builtin.
type CommandFunc func(ctx context.Context, e *Engine, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error)

type funcCommand struct {
	sig *signature.Signature
	fn  CommandFunc
}

func (c *funcCommand) Signature() *signature.Signature { return c.sig }

func (c *funcCommand) Run(ctx context.Context, e *Engine, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error) {
	return c.fn(ctx, e, call, input)
}

// NewCommand adapts a function into a Command.
func NewCommand(sig *signature.Signature, fn CommandFunc) Command {
	return &funcCommand{sig: sig, fn: fn}
}

var _ Command = (*funcCommand)(nil)

// AliasTarget is what an alias expands to. The target is resolved when the
// alias is defined, so later rebinding of the target name doesn't change it.
type AliasTarget struct {
	Call *ast.Call
	// Target is the resolved declaration, unused when External is set.
	Target   scope.DeclID
	External bool
}

// Decl is an immutable command declaration. Redefinition creates a new Decl.
type Decl struct {
	Name      string
	Kind      DeclKind
	Signature *signature.Signature
	// DeclSpan is unknown for builtins and plugins.
	DeclSpan span.Span

	Command Command          // DeclBuiltin
	Alias   *AliasTarget     // DeclAlias
	BlockID int              // DeclCustom
	Plugin  *plugin.Identity // DeclPlugin

	// Captures is the scope a custom command was defined in. Its body runs
	// against these bindings, not the caller's.
	Captures value.Captures
}

// WrappedCallSpan is the span of the aliased expression for aliases.
func (d *Decl) WrappedCallSpan() (span.Span, bool) {
	if d.Kind != DeclAlias || d.Alias == nil {
		return span.Unknown, false
	}
	return d.Alias.Call.Span, true
}

// Variable is a named value. Assignment mutates it in place.
type Variable struct {
	Name     string
	Mutable  bool
	Value    value.Value
	DeclSpan span.Span
}
