package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/josephlewis42/pipeshell/core/ast"
	"github.com/josephlewis42/pipeshell/core/logger"
	"github.com/josephlewis42/pipeshell/core/scope"
	"github.com/josephlewis42/pipeshell/core/shellerr"
	"github.com/josephlewis42/pipeshell/core/signature"
	"github.com/josephlewis42/pipeshell/core/span"
	"github.com/josephlewis42/pipeshell/core/value"
)

func (e *Engine) evalCall(ctx context.Context, call *ast.Call, input value.PipelineData) (value.PipelineData, error) {
	args, err := e.evalArgs(ctx, call.Args)
	if err != nil {
		return value.Empty(), err
	}

	if call.External {
		return e.runExternal(ctx, call.Name, call.Head, args, input)
	}

	id, decl, ok := e.Resolve(call.Name)
	if !ok {
		// A hidden name never falls through to PATH.
		if !e.Decls.Hidden(call.Name) {
			if _, err := e.Paths.Lookup(call.Name); err == nil {
				return e.runExternal(ctx, call.Name, call.Head, args, input)
			}
		}
		e.Events.Record(logger.EventUnknownCommand, logger.Fields{"command": call.Name})
		return value.Empty(), shellerr.Newf(shellerr.DeclNotFound, "Command `%s` not found", call.Name).
			WithLabel("command not found", call.Head)
	}

	out, err := e.Dispatch(ctx, id, decl, call.Head, args, input)
	if err != nil {
		err = shellerr.Anchor(err, call.Head)
		if !shellerr.IsInterrupt(err) {
			e.Events.Record(logger.EventCommandError, logger.Fields{
				"command": call.Name,
				"kind":    shellerr.From(err).Kind.String(),
			})
		}
	}
	return out, err
}

// Dispatch runs a resolved declaration with unbound arguments.
func (e *Engine) Dispatch(ctx context.Context, id scope.DeclID, decl *Decl, head span.Span, args []signature.Arg, input value.PipelineData) (value.PipelineData, error) {
	if err := e.Signals.Check(head); err != nil {
		return value.Empty(), err
	}
	e.Events.Record(logger.EventRunCommand, logger.Fields{"command": decl.Name, "decl_kind": decl.Kind.String()})
	e.Log.Debug("dispatch", "command", decl.Name, "kind", decl.Kind, "id", id)

	switch decl.Kind {
	case DeclBuiltin:
		call, err := decl.Signature.Bind(head, args)
		if err != nil {
			return value.Empty(), err
		}
		return decl.Command.Run(ctx, e, call, input)

	case DeclAlias:
		target := decl.Alias
		prefix, err := e.evalArgs(ctx, target.Call.Args)
		if err != nil {
			return value.Empty(), err
		}
		full := append(prefix, args...)
		if target.External {
			return e.runExternal(ctx, target.Call.Name, head, full, input)
		}
		return e.Dispatch(ctx, target.Target, e.Decl(target.Target), head, full, input)

	case DeclCustom:
		call, err := decl.Signature.Bind(head, args)
		if err != nil {
			return value.Empty(), err
		}
		return e.runCustom(ctx, decl, call, input)

	case DeclKnownExternal:
		if _, err := decl.Signature.Bind(head, args); err != nil {
			return value.Empty(), err
		}
		return e.runExternal(ctx, decl.Name, head, args, input)

	case DeclPlugin:
		call, err := decl.Signature.Bind(head, args)
		if err != nil {
			return value.Empty(), err
		}
		if e.Plugins == nil {
			return value.Empty(), shellerr.New(shellerr.PluginSpawnFailure, "Plugins are not available").
				WithLabel("no plugin host in this session", head)
		}
		return e.Plugins.Call(ctx, *decl.Plugin, decl.Name, call, input, e.Signals)
	}

	return value.Empty(), shellerr.Newf(shellerr.GenericError, "unknown declaration kind %d", decl.Kind).
		WithLabel("cannot run", head)
}

// runCustom runs the body in the scope the command was defined in, with
// parameters bound as variables on top.
func (e *Engine) runCustom(ctx context.Context, decl *Decl, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error) {
	body := e.Block(decl.BlockID)
	if body == nil {
		input.Close()
		return value.Empty(), unknownBlock(decl.BlockID, call.Head)
	}
	defer e.enter(decl.Captures)()

	sig := decl.Signature
	for i, p := range sig.Required {
		e.Define(&Variable{Name: p.Name, Value: call.Positional[i]})
	}
	for i, p := range sig.Optional {
		v, ok := call.Nth(len(sig.Required) + i)
		if !ok {
			v = value.NewNothing(call.Head)
		}
		e.Define(&Variable{Name: p.Name, Value: v})
	}
	if sig.Rest != nil {
		e.Define(&Variable{Name: sig.Rest.Name, Value: value.NewList(call.Rest, call.Head)})
	}
	for _, f := range sig.Named {
		v, ok := call.Get(f.Long)
		switch {
		case f.IsSwitch():
			v = value.NewBool(ok, call.Head)
		case !ok:
			v = value.NewNothing(call.Head)
		}
		e.Define(&Variable{Name: strings.ReplaceAll(f.Long, "-", "_"), Value: v})
	}

	return e.evalBlock(ctx, body, input)
}

// capture snapshots the visible bindings for a closure.
func (e *Engine) capture() value.Captures {
	var c value.Captures
	for _, entry := range e.Vars.Active() {
		v := e.Vars.Get(entry.ID)
		c.Vars = append(c.Vars, value.Capture{Name: v.Name, Mutable: v.Mutable, Val: v.Value})
	}
	for _, entry := range e.Decls.Active() {
		c.Decls = append(c.Decls, value.DeclCapture{Name: entry.Name, ID: entry.ID})
	}
	return c
}

// RunClosure evaluates a closure against its captured bindings only. The
// input is materialized and bound to $in.
func (e *Engine) RunClosure(ctx context.Context, c value.Closure, input value.PipelineData) (value.PipelineData, error) {
	body := e.Block(c.BlockID)
	if body == nil {
		input.Close()
		return value.Empty(), unknownBlock(c.BlockID, c.Span())
	}
	in, err := input.IntoValue(c.Span())
	if err != nil {
		return value.Empty(), err
	}

	defer e.enter(c.Captures)()
	e.Define(&Variable{Name: "in", Value: in})

	return e.evalBlock(ctx, body, value.FromValue(in))
}

// enter swaps both scope stacks for one holding only the captured bindings.
// Call the returned function to get the caller's scope back.
func (e *Engine) enter(c value.Captures) (restore func()) {
	restoreDecls := e.Decls.Isolate()
	restoreVars := e.Vars.Isolate()

	// Captures are most recent first; rebind oldest first so the newest wins.
	for i := len(c.Decls) - 1; i >= 0; i-- {
		d := c.Decls[i]
		e.Decls.Use(d.Name, d.ID)
	}
	for i := len(c.Vars) - 1; i >= 0; i-- {
		v := c.Vars[i]
		e.Define(&Variable{Name: v.Name, Mutable: v.Mutable, Value: v.Val})
	}

	return func() {
		restoreVars()
		restoreDecls()
	}
}

func unknownBlock(id int, sp span.Span) error {
	return shellerr.Newf(shellerr.GenericError, "Unknown block %d", id).
		WithLabel("no such block in this session", sp)
}

// IsCancellation reports whether err means the user asked to stop.
func IsCancellation(err error) bool {
	return shellerr.IsInterrupt(err) || errors.Is(err, context.Canceled)
}
