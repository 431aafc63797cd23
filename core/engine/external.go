package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/josephlewis42/pipeshell/core/shellerr"
	"github.com/josephlewis42/pipeshell/core/signature"
	"github.com/josephlewis42/pipeshell/core/span"
	"github.com/josephlewis42/pipeshell/core/value"
)

const (
	defaultPathCacheSize = 256
	defaultPathCacheTTL  = 5 * time.Minute
)

// PathCache remembers where external programs were found on PATH.
type PathCache struct {
	cache    *lru.LRU[string, string]
	lookPath func(string) (string, error)
}

// NewPathCache creates a cache; non-positive arguments select defaults.
func NewPathCache(size int, ttl time.Duration) *PathCache {
	if size <= 0 {
		size = defaultPathCacheSize
	}
	if ttl <= 0 {
		ttl = defaultPathCacheTTL
	}
	return &PathCache{
		cache:    lru.NewLRU[string, string](size, nil, ttl),
		lookPath: exec.LookPath,
	}
}

// Lookup resolves an executable name to a path.
func (p *PathCache) Lookup(name string) (string, error) {
	if path, ok := p.cache.Get(name); ok {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		p.cache.Remove(name)
	}

	path, err := p.lookPath(name)
	if err != nil {
		return "", err
	}
	p.cache.Add(name, path)
	return path, nil
}

// Cached lists the names currently remembered.
func (p *PathCache) Cached() []string {
	return p.cache.Keys()
}

// Purge forgets every remembered location.
func (p *PathCache) Purge() {
	p.cache.Purge()
}

// externalArgs renders evaluated arguments back into argv form.
func externalArgs(args []signature.Arg) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		var flag string
		switch {
		case a.Long != "":
			flag = "--" + a.Long
		case a.Short != 0:
			flag = fmt.Sprintf("-%c", a.Short)
		}

		switch {
		case flag != "" && a.Value != nil:
			out = append(out, flag+"="+value.Inline(a.Value))
		case flag != "":
			out = append(out, flag)
		default:
			out = append(out, value.Inline(a.Value))
		}
	}
	return out
}

// runExternal starts a program and streams its stdout. Input is
// materialized first and written to the program's stdin.
func (e *Engine) runExternal(ctx context.Context, name string, head span.Span, args []signature.Arg, input value.PipelineData) (value.PipelineData, error) {
	path, err := e.Paths.Lookup(name)
	if err != nil {
		return value.Empty(), shellerr.Newf(shellerr.DeclNotFound, "Command `%s` not found", name).
			WithLabel("executable was not found", head).Wrap(err)
	}

	var stdin []byte
	if !input.IsEmpty() {
		in, err := input.IntoValue(head)
		if err != nil {
			return value.Empty(), err
		}
		stdin = externalInput(in)
	}

	cmd := exec.CommandContext(ctx, path, externalArgs(args)...)
	cmd.Stderr = e.Stderr
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return value.Empty(), shellerr.New(shellerr.ExternalCommandFailed, "External command failed").
			WithLabel(err.Error(), head).Wrap(err)
	}
	if err := cmd.Start(); err != nil {
		return value.Empty(), shellerr.New(shellerr.ExternalCommandFailed, "External command failed").
			WithLabel(err.Error(), head).Wrap(err)
	}
	e.Log.Debug("external started", "command", name, "path", path, "pid", cmd.Process.Pid)

	waited := false
	wait := func() error {
		if waited {
			return nil
		}
		waited = true
		return cmd.Wait()
	}

	reader := value.ReaderStream(head, e.Signals, value.ByteUnknown, stdout)
	stream := value.NewByteStream(head, e.Signals, value.ByteUnknown, func() ([]byte, error) {
		chunk, ok := reader.Next()
		if ok {
			return chunk, nil
		}
		if err := reader.Err(); err != nil {
			return nil, err
		}
		if err := wait(); err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return nil, shellerr.New(shellerr.ExternalCommandFailed, "External command failed").
					WithLabel(fmt.Sprintf("%s exited with code %d", name, exitErr.ExitCode()), head).Wrap(err)
			}
			return nil, err
		}
		return nil, io.EOF
	})
	stream.OnClose(func() {
		if !waited && cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		_ = wait()
	})

	return value.FromByteStream(stream), nil
}

// externalInput renders a value the way it would be printed, one list item
// per line.
func externalInput(v value.Value) []byte {
	switch v := v.(type) {
	case value.Binary:
		return v.Val
	case value.List:
		lines := make([]string, len(v.Vals))
		for i, item := range v.Vals {
			lines[i] = value.Inline(item)
		}
		return []byte(strings.Join(lines, "\n") + "\n")
	default:
		return []byte(value.Inline(v))
	}
}
