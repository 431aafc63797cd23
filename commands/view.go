package commands

import (
	"context"

	"github.com/josephlewis42/pipeshell/core/engine"
	"github.com/josephlewis42/pipeshell/core/shellerr"
	"github.com/josephlewis42/pipeshell/core/signature"
	"github.com/josephlewis42/pipeshell/core/span"
	"github.com/josephlewis42/pipeshell/core/value"
)

// ViewSpan returns the source text a span covers.
func ViewSpan(ctx context.Context, e *engine.Engine, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error) {
	input.Close()

	sp := span.New(int(intArg(call, 0)), int(intArg(call, 1)))
	name, text, err := e.Sources.Lookup(sp)
	if err != nil {
		se := shellerr.From(err)
		return value.Empty(), se.WithLabel(se.Label, call.Head)
	}

	md := &value.Metadata{ContentType: value.ContentTypeScript, SourceFile: name}
	return value.FromValue(value.NewString(string(text), call.Head)).WithMetadata(md), nil
}

// ViewSource returns the text that defined a custom command, an alias or a
// closure.
func ViewSource(ctx context.Context, e *engine.Engine, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error) {
	input.Close()

	item, _ := call.Nth(0)
	var defined span.Span
	switch item := item.(type) {
	case value.Closure:
		defined = item.Span()
	case value.String:
		_, decl, ok := e.Resolve(item.Val)
		if !ok {
			return value.Empty(), shellerr.Newf(shellerr.DeclNotFound, "Command `%s` not found", item.Val).
				WithLabel("no such command", item.Span())
		}
		if decl.DeclSpan.IsUnknown() {
			return value.Empty(), shellerr.New(shellerr.GenericError, "Cannot view source").
				WithLabel("this command has no source text", item.Span()).
				WithHelp("built-in and plugin commands are not written in script")
		}
		defined = decl.DeclSpan
	default:
		return value.Empty(), shellerr.New(shellerr.TypeMismatch, "Cannot view source").
			WithLabel("expected a command name or a closure", item.Span())
	}

	name, text, err := e.Sources.Lookup(defined)
	if err != nil {
		se := shellerr.From(err)
		return value.Empty(), se.WithLabel(se.Label, item.Span())
	}

	md := &value.Metadata{ContentType: value.ContentTypeScript, SourceFile: name}
	return value.FromValue(value.NewString(string(text), call.Head)).WithMetadata(md), nil
}

func init() {
	addCmd(signature.New("view span").
		Describe("View the source text between two offsets.").
		AddRequired("start", signature.ShapeInt, "start offset").
		AddRequired("end", signature.ShapeInt, "end offset"),
		ViewSpan)

	addCmd(signature.New("view source").
		Describe("View the text a command or closure was defined with.").
		AddRequired("item", signature.ShapeAny, "a command name or a closure"),
		ViewSource)
}
