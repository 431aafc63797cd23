package commands

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/josephlewis42/pipeshell/core/engine"
	"github.com/josephlewis42/pipeshell/core/signature"
	"github.com/josephlewis42/pipeshell/core/value"
)

var (
	unescapeOctal   = regexp.MustCompile(`\\0[0-8][0-8]?[0-8]?`)
	unescapeHex     = regexp.MustCompile(`\\x[0-9a-fA-F][0-9a-fA-F]?`)
	unescapeReplace = strings.NewReplacer(
		`\n`, "\n", // newline
		`\r`, "\r", // carriage return
		`\t`, "\t", // horizontal tab
		`\\`, `\`, // backslash literal
		`\b`, "\b", // backspace
		`\a`, "\a", // alert
		`\f`, "\f", // form feed
		`\v`, "\v", // vertical tab
	)
)

func unescape(s string) string {
	s = unescapeReplace.Replace(s)
	s = unescapeOctal.ReplaceAllStringFunc(s, func(arg string) string {
		out, err := strconv.ParseInt(arg[2:], 8, 8)
		if err != nil {
			return arg
		}
		return string(rune(out))
	})
	s = unescapeHex.ReplaceAllStringFunc(s, func(arg string) string {
		out, err := strconv.ParseInt(arg[2:], 16, 8)
		if err != nil {
			return arg
		}
		return string(rune(out))
	})
	return s
}

// Echo returns its arguments. A single argument is returned as is, several
// become a stream.
func Echo(ctx context.Context, e *engine.Engine, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error) {
	input.Close()

	args := call.All()
	if call.Has("escape") {
		for i, arg := range args {
			if s, ok := arg.(value.String); ok {
				args[i] = value.NewString(unescape(s.Val), s.Span())
			}
		}
	}

	switch len(args) {
	case 0:
		return value.Empty(), nil
	case 1:
		return value.FromValue(args[0]), nil
	default:
		return value.FromListStream(value.FromValues(call.Head, e.Signals, args)), nil
	}
}

func init() {
	addCmd(signature.New("echo").
		Describe("Return the given values.").
		SetRest("rest", signature.ShapeAny, "the values to echo").
		AddSwitch("escape", 'e', "interpret backslash escapes in strings"),
		Echo)
}
