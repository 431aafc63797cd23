package commands

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/josephlewis42/pipeshell/core/engine"
	"github.com/josephlewis42/pipeshell/core/signature"
	"github.com/josephlewis42/pipeshell/core/value"
)

// Env returns the process environment as a record ordered by name.
func Env(ctx context.Context, e *engine.Engine, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error) {
	input.Close()

	env := os.Environ()
	sort.Strings(env)

	rec := value.NewRecord(call.Head)
	for _, envDef := range env {
		name, val, _ := strings.Cut(envDef, "=")
		if name == "" {
			continue
		}
		rec.Insert(name, value.NewString(val, call.Head))
	}
	return value.FromValue(rec), nil
}

func init() {
	addCmd(signature.New("env").
		Describe("Show the environment variables."),
		Env)
}
