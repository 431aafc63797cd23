package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/josephlewis42/pipeshell/core/engine"
	"github.com/josephlewis42/pipeshell/core/signature"
	"github.com/josephlewis42/pipeshell/core/value"
)

// Print writes its arguments to stdout separated by spaces.
func Print(ctx context.Context, e *engine.Engine, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error) {
	input.Close()

	var parts []string
	for _, arg := range call.All() {
		parts = append(parts, value.Render(arg))
	}

	line := strings.Join(parts, " ")
	if call.Has("no-newline") {
		fmt.Fprint(e.Stdout, line)
	} else {
		fmt.Fprintln(e.Stdout, line)
	}
	return value.Empty(), nil
}

func init() {
	addCmd(signature.New("print").
		Describe("Print the given values to stdout.").
		SetRest("rest", signature.ShapeAny, "the values to print").
		AddSwitch("no-newline", 'n', "do not print a trailing newline"),
		Print)
}
