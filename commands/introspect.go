package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/josephlewis42/pipeshell/core/engine"
	"github.com/josephlewis42/pipeshell/core/shellerr"
	"github.com/josephlewis42/pipeshell/core/signature"
	"github.com/josephlewis42/pipeshell/core/span"
	"github.com/josephlewis42/pipeshell/core/value"
)

func spanRecord(sp, at span.Span) value.Record {
	return value.RecordOf(at,
		"start", value.NewInt(int64(sp.Start), at),
		"end", value.NewInt(int64(sp.End), at),
	)
}

// Metadata reports where a value came from: the span of the argument if one
// is given, otherwise of the input, plus any pipeline metadata.
func Metadata(ctx context.Context, e *engine.Engine, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error) {
	md := input.Metadata()

	var origin span.Span
	if arg, ok := call.Nth(0); ok {
		origin = arg.Span()
		input.Close()
	} else {
		v, err := input.IntoValue(call.Head)
		if err != nil {
			return value.Empty(), err
		}
		origin = v.Span()
	}

	out := value.RecordOf(call.Head, "span", spanRecord(origin, call.Head))
	if md != nil && md.ContentType != "" {
		out.Insert("content_type", value.NewString(md.ContentType, call.Head))
	}
	if md != nil && md.SourceFile != "" {
		out.Insert("source_file", value.NewString(md.SourceFile, call.Head))
	}
	return value.FromValue(out), nil
}

// Debug renders the input with its type, and with --raw its spans.
func Debug(ctx context.Context, e *engine.Engine, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error) {
	v, err := input.IntoValue(call.Head)
	if err != nil {
		return value.Empty(), err
	}
	return value.FromValue(value.NewString(value.Debug(v, call.Has("raw")), call.Head)), nil
}

// Help lists the visible commands, or describes one of them.
func Help(ctx context.Context, e *engine.Engine, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error) {
	input.Close()

	var words []string
	for _, v := range call.Rest {
		words = append(words, value.Inline(v))
	}
	if len(words) == 0 {
		entries := e.Decls.Active()
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

		var rows []value.Value
		for _, entry := range entries {
			decl := e.Decl(entry.ID)
			rows = append(rows, value.RecordOf(call.Head,
				"name", value.NewString(entry.Name, call.Head),
				"type", value.NewString(decl.Kind.String(), call.Head),
				"usage", value.NewString(decl.Signature.Usage, call.Head),
			))
		}
		return value.FromValue(value.NewList(rows, call.Head)), nil
	}

	name := strings.Join(words, " ")
	_, decl, ok := e.Resolve(name)
	if !ok {
		return value.Empty(), shellerr.Newf(shellerr.DeclNotFound, "Command `%s` not found", name).
			WithLabel("no such command", call.Rest[0].Span().Merge(call.Rest[len(call.Rest)-1].Span()))
	}

	var b strings.Builder
	if decl.Signature.Usage != "" {
		fmt.Fprintf(&b, "%s\n\n", decl.Signature.Usage)
	}
	fmt.Fprintf(&b, "Usage:\n  > %s\n", decl.Signature)
	writeParams(&b, decl.Signature)
	return value.FromValue(value.NewString(strings.TrimRight(b.String(), "\n"), call.Head)), nil
}

func writeParams(b *strings.Builder, sig *signature.Signature) {
	var params []signature.Positional
	params = append(params, sig.Required...)
	params = append(params, sig.Optional...)
	if sig.Rest != nil {
		rest := *sig.Rest
		rest.Name = "..." + rest.Name
		params = append(params, rest)
	}
	if len(params) > 0 {
		b.WriteString("\nParameters:\n")
		for _, p := range params {
			fmt.Fprintf(b, "  %s <%s>: %s\n", p.Name, p.Shape, p.Desc)
		}
	}

	if len(sig.Named) > 0 {
		b.WriteString("\nFlags:\n")
		for _, f := range sig.Named {
			name := "--" + f.Long
			if f.Short != 0 {
				name = fmt.Sprintf("-%c, %s", f.Short, name)
			}
			if !f.IsSwitch() {
				name += fmt.Sprintf(" <%s>", f.Shape)
			}
			fmt.Fprintf(b, "  %s: %s\n", name, f.Desc)
		}
	}
}

func init() {
	addCmd(signature.New("metadata").
		Describe("Get the span and pipeline metadata of a value.").
		AddOptional("expression", signature.ShapeAny, "the value to inspect instead of the input"),
		Metadata)

	addCmd(signature.New("debug").
		Describe("Show a value with its type.").
		AddSwitch("raw", 'r', "include spans"),
		Debug)

	addCmd(signature.New("help").
		Describe("List commands or show the usage of one.").
		SetRest("name", signature.ShapeAny, "the command to describe"),
		Help)
}
