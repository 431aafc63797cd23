package commands

import (
	"fmt"
	"sort"

	"github.com/josephlewis42/pipeshell/core/engine"
	"github.com/josephlewis42/pipeshell/core/shellerr"
	"github.com/josephlewis42/pipeshell/core/signature"
	"github.com/josephlewis42/pipeshell/core/value"
)

// AllCommands holds every builtin, keyed by name.
var AllCommands = make(map[string]engine.Command)

func addCmd(sig *signature.Signature, fn engine.CommandFunc) {
	if _, ok := AllCommands[sig.Name]; ok {
		panic(fmt.Sprintf("builtin %q registered twice", sig.Name))
	}
	AllCommands[sig.Name] = engine.NewCommand(sig, fn)
}

// ListBuiltinCommands returns the builtins ordered by name.
func ListBuiltinCommands() []engine.Command {
	var out []engine.Command
	for _, cmd := range AllCommands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Signature().Name < out[j].Signature().Name
	})
	return out
}

// Install binds every builtin in e's current frame.
func Install(e *engine.Engine) {
	for _, cmd := range ListBuiltinCommands() {
		e.AddCommand(cmd)
	}
}

// BytesToHuman formats a size with a metric suffix, e.g. 1.5K or 12M.
func BytesToHuman(bytes int64) string {
	for _, e := range []struct {
		unit  string
		power int64
	}{
		{"P", 1e15},
		{"T", 1e12},
		{"G", 1e9},
		{"M", 1e6},
		{"K", 1e3},
	} {
		quotient := bytes / e.power
		switch {
		case quotient == 0:
			continue
		case quotient > 10:
			return fmt.Sprintf("%d%s", quotient, e.unit)
		default:
			return fmt.Sprintf("%0.1f%s", float64(bytes)/float64(e.power), e.unit)
		}
	}

	return fmt.Sprintf("%d", bytes)
}

func intArg(call *signature.EvaluatedCall, i int) int64 {
	v, _ := call.Nth(i)
	n, _ := value.AsInt(v)
	return n
}

func stringArg(call *signature.EvaluatedCall, i int) string {
	v, _ := call.Nth(i)
	s, _ := value.AsString(v)
	return s
}

func closureArg(call *signature.EvaluatedCall, i int) value.Closure {
	v, _ := call.Nth(i)
	c, _ := v.(value.Closure)
	return c
}

// needsInput fails commands that were given nothing to work on.
func needsInput(input value.PipelineData, call *signature.EvaluatedCall) error {
	if input.IsEmpty() {
		input.Close()
		return shellerr.New(shellerr.TypeMismatch, "Pipeline empty").
			WithLabel("this command needs input from the pipeline", call.Head)
	}
	return nil
}
