// Package shell is the line front end: it feeds source text through the
// parser into an engine, prints results and renders errors.
package shell

import (
	"context"
	"fmt"
	"io"

	"github.com/josephlewis42/pipeshell/core/engine"
	"github.com/josephlewis42/pipeshell/core/parse"
	"github.com/josephlewis42/pipeshell/core/shellerr"
	"github.com/josephlewis42/pipeshell/core/span"
	"github.com/josephlewis42/pipeshell/core/value"
)

// Session evaluates source text against one engine.
type Session struct {
	Engine *engine.Engine
	Diag   *Diagnostics
}

// NewSession wraps e. Errors from statements that are not the last of a
// script are rendered to the engine's stderr.
func NewSession(e *engine.Engine, colorMode string) *Session {
	s := &Session{
		Engine: e,
		Diag:   NewDiagnostics(e.Sources, colorMode),
	}
	e.OnError = func(err error) {
		fmt.Fprint(e.Stderr, s.Diag.Format(err))
	}
	return s
}

// Eval registers src under name, parses it and runs it.
func (s *Session) Eval(ctx context.Context, name string, src []byte) (value.PipelineData, error) {
	sp := s.Engine.Sources.Register(name, src)
	block, err := parse.Parse(src, sp.Start, s.Engine.IsDecl)
	if err != nil {
		return value.Empty(), err
	}
	return s.Engine.EvalScript(ctx, block)
}

// Print writes a result to w. Byte streams are copied as they arrive;
// everything else is materialized and rendered. An Error value is returned
// as an error.
func (s *Session) Print(w io.Writer, data value.PipelineData) error {
	if data.Kind() == value.DataByteStream {
		stream := data.ByteStream()
		defer stream.Close()
		wrote := false
		for {
			chunk, ok := stream.Next()
			if !ok {
				break
			}
			if _, err := w.Write(chunk); err != nil {
				return err
			}
			wrote = len(chunk) > 0 || wrote
		}
		if wrote {
			fmt.Fprintln(w)
		}
		return stream.Err()
	}

	v, err := data.IntoValue(span.Unknown)
	if err != nil {
		return err
	}
	if e, ok := v.(value.Error); ok {
		return e.Err
	}
	if out := value.Render(v); out != "" {
		fmt.Fprintln(w, out)
	}
	return nil
}

// Run evaluates a whole script and prints its result. It returns the
// process exit status: 0 on success, 1 if the result is an error, 130 if
// the script was interrupted.
func (s *Session) Run(ctx context.Context, name string, src []byte) int {
	e := s.Engine
	data, err := s.Eval(ctx, name, src)
	if err == nil {
		err = s.Print(e.Stdout, data)
	}
	switch {
	case err == nil:
		return 0
	case shellerr.IsInterrupt(err):
		fmt.Fprint(e.Stderr, s.Diag.Format(err))
		return 130
	default:
		fmt.Fprint(e.Stderr, s.Diag.Format(err))
		return 1
	}
}
