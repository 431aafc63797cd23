package commands

import (
	"context"
	"os"
	"strings"

	"github.com/aymanbagabas/go-osc52/v2"
	"github.com/josephlewis42/pipeshell/core/engine"
	"github.com/josephlewis42/pipeshell/core/signature"
	"github.com/josephlewis42/pipeshell/core/value"
)

// clipboardSequence wraps text for the terminal multiplexer we're under, if
// any.
func clipboardSequence(text string) osc52.Sequence {
	seq := osc52.New(text)
	switch {
	case os.Getenv("TMUX") != "":
		seq = seq.Tmux()
	case strings.HasPrefix(os.Getenv("TERM"), "screen"):
		seq = seq.Screen()
	}
	return seq
}

// ClipCopy puts the input on the terminal's clipboard using OSC 52, which
// also works over SSH.
func ClipCopy(ctx context.Context, e *engine.Engine, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error) {
	if err := needsInput(input, call); err != nil {
		return value.Empty(), err
	}
	md := input.Metadata()
	v, err := input.IntoValue(call.Head)
	if err != nil {
		return value.Empty(), err
	}

	if _, err := clipboardSequence(value.Render(v)).WriteTo(e.Stdout); err != nil {
		return value.Empty(), err
	}
	e.Log.Debug("copied to clipboard", "bytes", len(value.Render(v)))

	if call.Has("show") {
		return value.FromValue(v).WithMetadata(md), nil
	}
	return value.FromValue(value.NewNothing(call.Head)), nil
}

func init() {
	addCmd(signature.New("clip copy").
		Describe("Copy the input to the clipboard.").
		AddSwitch("show", 's', "also return the copied value"),
		ClipCopy)
}
