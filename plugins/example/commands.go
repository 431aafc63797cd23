package main

import (
	"context"
	"fmt"
	"io"

	"github.com/josephlewis42/pipeshell/core/plugin"
	"github.com/josephlewis42/pipeshell/core/signature"
	"github.com/josephlewis42/pipeshell/core/value"
)

func commands() []plugin.Command {
	return []plugin.Command{
		plugin.NewCommand(
			signature.New("example one").
				Describe("Show the arguments the plugin received.").
				AddRequired("a", signature.ShapeInt, "required integer value").
				AddRequired("b", signature.ShapeString, "required string value").
				AddOptional("opt", signature.ShapeInt, "optional number").
				AddNamed("named", signature.ShapeString, 'n', "named string").
				AddSwitch("flag", 'f', "a flag for the signature").
				SetRest("rest", signature.ShapeString, "rest value string"),
			exampleOne),
		plugin.NewCommand(
			signature.New("example two").
				Describe("Produce a table of ten rows.").
				AddRequired("a", signature.ShapeInt, "scale of the table"),
			exampleTwo),
		plugin.NewCommand(
			signature.New("example three").
				Describe("Always fail with an error pointing at the call."),
			exampleThree),
		plugin.NewCommand(
			signature.New("example seq").
				Describe("Stream the integers from one to n.").
				AddRequired("n", signature.ShapeInt, "last number"),
			exampleSeq),
	}
}

// exampleOne echoes its arguments back as a record.
func exampleOne(ctx context.Context, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error) {
	input.Close()

	rec := value.NewRecord(call.Head)
	for i, v := range call.Positional {
		rec.Insert(fmt.Sprintf("positional_%d", i), v)
	}
	rest := append([]value.Value(nil), call.Rest...)
	rec.Insert("rest", value.NewList(rest, call.Head))
	if named, ok := call.Get("named"); ok {
		rec.Insert("named", named)
	}
	rec.Insert("flag", value.NewBool(call.Has("flag"), call.Head))
	return value.FromValue(rec), nil
}

func exampleTwo(ctx context.Context, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error) {
	input.Close()

	a, err := value.AsInt(call.Positional[0])
	if err != nil {
		return value.Empty(), err
	}

	rows := make([]value.Value, 10)
	for i := range rows {
		n := int64(i)
		rows[i] = value.RecordOf(call.Head,
			"one", value.NewInt(n*a, call.Head),
			"two", value.NewInt(n*a*2, call.Head),
			"three", value.NewInt(n*a*3, call.Head),
		)
	}
	return value.FromValue(value.NewList(rows, call.Head)), nil
}

func exampleThree(ctx context.Context, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error) {
	input.Close()
	return value.Empty(), plugin.LabeledError("ERROR from plugin", "error message pointing to call head span", call.Head)
}

func exampleSeq(ctx context.Context, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error) {
	input.Close()

	n, err := value.AsInt(call.Positional[0])
	if err != nil {
		return value.Empty(), err
	}

	var i int64
	return value.FromListStream(value.NewListStream(call.Head, nil, func() (value.Value, error) {
		if i >= n || ctx.Err() != nil {
			return nil, io.EOF
		}
		i++
		return value.NewInt(i, call.Head), nil
	})), nil
}
