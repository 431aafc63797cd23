package commands

import (
	"context"
	"fmt"
	"unicode"

	"github.com/josephlewis42/pipeshell/core/engine"
	"github.com/josephlewis42/pipeshell/core/shellerr"
	"github.com/josephlewis42/pipeshell/core/signature"
	"github.com/josephlewis42/pipeshell/core/value"
)

type wcCount struct {
	bytes int
	lines int
	chars int
	words int

	inSpace bool
}

func (w *wcCount) Write(data []byte) (int, error) {
	for _, c := range data {
		isFirstByte := w.bytes == 0
		w.bytes++

		// Assume UTF-8 characters. Bytes following the leading byte always
		// have MSB of 0b10 indicating they're part of a previous character.
		if c < 0b10000000 || c > 0b10111111 {
			w.chars++
		}

		if c == '\n' {
			w.lines++
		}

		if unicode.IsSpace(rune(c)) {
			w.inSpace = true
		} else {
			if w.inSpace || isFirstByte {
				w.words++
			}
			w.inSpace = false
		}
	}

	return len(data), nil
}

// Wc counts the lines, words, bytes and characters of its input. Streams
// are counted chunk by chunk, so words split across chunks count once.
func Wc(ctx context.Context, e *engine.Engine, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error) {
	if err := needsInput(input, call); err != nil {
		return value.Empty(), err
	}

	items, err := input.Iter(call.Head, e.Signals)
	if err != nil {
		return value.Empty(), err
	}
	defer items.Close()

	var count wcCount
	for {
		v, ok := items.Next()
		if !ok {
			break
		}
		switch v := v.(type) {
		case value.String:
			count.Write([]byte(v.Val))
		case value.Binary:
			count.Write(v.Val)
		case value.Error:
			return value.Empty(), v.Err
		default:
			return value.Empty(), shellerr.New(shellerr.TypeMismatch, "Unsupported input").
				WithLabel(fmt.Sprintf("expected string or binary, found %s", v.Kind()), v.Span())
		}
	}
	if err := items.Err(); err != nil {
		return value.Empty(), err
	}

	return value.FromValue(value.RecordOf(call.Head,
		"lines", value.NewInt(int64(count.lines), call.Head),
		"words", value.NewInt(int64(count.words), call.Head),
		"bytes", value.NewInt(int64(count.bytes), call.Head),
		"chars", value.NewInt(int64(count.chars), call.Head),
	)), nil
}

func init() {
	addCmd(signature.New("wc").
		Describe("Count the newlines, words, bytes and characters of text input."),
		Wc)
}
