package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/abiosoft/readline"
	"github.com/josephlewis42/pipeshell/core/engine"
)

// REPLOptions configures the interactive loop. Nil streams default to the
// process's own.
type REPLOptions struct {
	Prompt      string
	HistoryFile string
	Stdin       io.ReadCloser
	Stdout      io.Writer
	Stderr      io.Writer
	IsTerminal  func() bool
}

// REPL reads lines from a terminal and evaluates each one as its own source
// file named repl-N.
type REPL struct {
	Session  *Session
	Readline *readline.Instance

	lines int
}

// NewREPL sets up line editing, history and completion of command names.
func NewREPL(s *Session, opts REPLOptions) (*REPL, error) {
	cfg := &readline.Config{
		Prompt:          opts.Prompt,
		HistoryFile:     opts.HistoryFile,
		HistoryLimit:    1000,
		AutoComplete:    &declCompleter{engine: s.Engine},
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          opts.Stdout,
		Stderr:          opts.Stderr,
		FuncIsTerminal:  opts.IsTerminal,
	}
	if opts.Stdin != nil {
		cfg.Stdin = readline.NewCancelableStdin(opts.Stdin)
	}

	if err := cfg.Init(); err != nil {
		return nil, err
	}

	rl, err := readline.NewEx(cfg)
	if err != nil {
		return nil, err
	}

	return &REPL{Session: s, Readline: rl}, nil
}

// Run reads and evaluates lines until end of input or `exit`. An interrupt
// while a line runs stops that line only.
func (r *REPL) Run(ctx context.Context) error {
	defer r.Readline.Close()

	e := r.Session.Engine
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)
	go func() {
		for range sigs {
			e.Signals.Interrupt()
		}
	}()

	for {
		line, err := r.Readline.Readline()
		switch {
		case err == io.EOF:
			return nil // Input closed, quit.

		case err == readline.ErrInterrupt:
			continue

		case err != nil:
			return err

		case strings.TrimSpace(line) == "":
			continue

		case strings.TrimSpace(line) == "exit":
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		r.lines++
		e.Signals.Reset()
		status := r.Session.Run(ctx, fmt.Sprintf("repl-%d", r.lines), []byte(line))
		e.Log.Debug("line finished", "line", r.lines, "status", status)
	}
}

// declCompleter completes the command name at the start of the current
// pipeline element.
type declCompleter struct {
	engine *engine.Engine
}

var _ readline.AutoCompleter = (*declCompleter)(nil)

func (c *declCompleter) Do(line []rune, pos int) ([][]rune, int) {
	text := string(line[:pos])
	if i := strings.LastIndexAny(text, "|;{"); i >= 0 {
		text = text[i+1:]
	}
	prefix := strings.TrimLeft(text, " \t")

	var names []string
	for _, entry := range c.engine.Decls.Active() {
		if strings.HasPrefix(entry.Name, prefix) {
			names = append(names, entry.Name)
		}
	}
	sort.Strings(names)

	out := make([][]rune, len(names))
	for i, name := range names {
		out[i] = []rune(name[len(prefix):] + " ")
	}
	return out, len([]rune(prefix))
}
