// Package engine is the evaluator: it owns the session state, resolves calls
// against the scope stack and threads PipelineData between commands.
package engine

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/josephlewis42/pipeshell/core/ast"
	"github.com/josephlewis42/pipeshell/core/logger"
	"github.com/josephlewis42/pipeshell/core/plugin"
	"github.com/josephlewis42/pipeshell/core/scope"
	"github.com/josephlewis42/pipeshell/core/signature"
	"github.com/josephlewis42/pipeshell/core/source"
	"github.com/josephlewis42/pipeshell/core/value"
)

// PluginHost runs plugin declarations out of process.
type PluginHost interface {
	Signatures(ctx context.Context, id plugin.Identity) ([]*signature.Signature, error)
	Call(ctx context.Context, id plugin.Identity, name string, call *signature.EvaluatedCall, input value.PipelineData, signals *value.Signals) (value.PipelineData, error)
}

// Options configures a new Engine. Zero values are usable.
type Options struct {
	Stdout  io.Writer
	Stderr  io.Writer
	Signals *value.Signals
	Plugins PluginHost
	Events  *logger.SessionLogger
	Log     *log.Logger

	PathCacheSize int
	PathCacheTTL  time.Duration

	// OnError receives errors from statements that are not the last in a
	// script. Defaults to printing them to Stderr.
	OnError func(error)
}

// Engine is one shell session. It is used from a single goroutine.
type Engine struct {
	Sources *source.Registry
	Decls   *scope.Registry[*Decl]
	Vars    *scope.Registry[*Variable]
	Signals *value.Signals
	Plugins PluginHost
	Events  *logger.SessionLogger
	Log     *log.Logger
	Paths   *PathCache
	Stdout  io.Writer
	Stderr  io.Writer
	OnError func(error)

	blocks   []*ast.Block
	blockIDs map[*ast.Block]int
}

// New creates an engine with empty registries.
func New(opts Options) *Engine {
	e := &Engine{
		Sources:  source.NewRegistry(),
		Decls:    scope.New[*Decl](),
		Vars:     scope.New[*Variable](),
		Signals:  opts.Signals,
		Plugins:  opts.Plugins,
		Events:   opts.Events,
		Log:      opts.Log,
		Paths:    NewPathCache(opts.PathCacheSize, opts.PathCacheTTL),
		Stdout:   opts.Stdout,
		Stderr:   opts.Stderr,
		OnError:  opts.OnError,
		blockIDs: make(map[*ast.Block]int),
	}

	if e.Signals == nil {
		e.Signals = value.NewSignals()
	}
	if e.Stdout == nil {
		e.Stdout = io.Discard
	}
	if e.Stderr == nil {
		e.Stderr = io.Discard
	}
	if e.Log == nil {
		e.Log = log.New(e.Stderr)
		e.Log.SetLevel(log.WarnLevel)
	}
	if e.OnError == nil {
		e.OnError = func(err error) {
			fmt.Fprintf(e.Stderr, "Error: %v\n", err)
		}
	}
	return e
}

// AddCommand binds a builtin under its signature's name.
func (e *Engine) AddCommand(cmd Command) scope.DeclID {
	sig := cmd.Signature()
	return e.Decls.Bind(sig.Name, &Decl{
		Name:      sig.Name,
		Kind:      DeclBuiltin,
		Signature: sig,
		Command:   cmd,
	})
}

// Decl returns the declaration with the given id.
func (e *Engine) Decl(id scope.DeclID) *Decl {
	return e.Decls.Get(id)
}

// Resolve finds the declaration a name currently refers to.
func (e *Engine) Resolve(name string) (scope.DeclID, *Decl, bool) {
	id, ok := e.Decls.Resolve(name)
	if !ok {
		return 0, nil, false
	}
	return id, e.Decls.Get(id), true
}

// IsDecl reports whether name resolves; the parser uses it to recognize
// multi-word command names.
func (e *Engine) IsDecl(name string) bool {
	_, ok := e.Decls.Resolve(name)
	return ok
}

// AddPlugin asks a plugin for its signatures and binds a declaration for
// each of them.
func (e *Engine) AddPlugin(ctx context.Context, id plugin.Identity) ([]scope.DeclID, error) {
	if e.Plugins == nil {
		return nil, fmt.Errorf("no plugin host configured")
	}
	sigs, err := e.Plugins.Signatures(ctx, id)
	if err != nil {
		return nil, err
	}

	var ids []scope.DeclID
	for _, sig := range sigs {
		ident := id
		ids = append(ids, e.Decls.Bind(sig.Name, &Decl{
			Name:      sig.Name,
			Kind:      DeclPlugin,
			Signature: sig,
			Plugin:    &ident,
		}))
	}
	e.Log.Debug("plugin registered", "plugin", id.Filename, "commands", len(ids))
	return ids, nil
}

// AddBlock stores a block in the arena, returning the existing id if it was
// added before.
func (e *Engine) AddBlock(b *ast.Block) int {
	if id, ok := e.blockIDs[b]; ok {
		return id
	}
	e.blocks = append(e.blocks, b)
	id := len(e.blocks) - 1
	e.blockIDs[b] = id
	return id
}

// Block returns the block with the given id, or nil if there is none.
func (e *Engine) Block(id int) *ast.Block {
	if id < 0 || id >= len(e.blocks) {
		return nil
	}
	return e.blocks[id]
}

// PushFrame opens a scope for both commands and variables.
func (e *Engine) PushFrame() {
	e.Decls.PushFrame()
	e.Vars.PushFrame()
}

// PopFrame closes the scope opened by the matching PushFrame.
func (e *Engine) PopFrame() {
	e.Vars.PopFrame()
	e.Decls.PopFrame()
}

// Variable looks up a variable by name.
func (e *Engine) Variable(name string) (*Variable, bool) {
	id, ok := e.Vars.Resolve(name)
	if !ok {
		return nil, false
	}
	return e.Vars.Get(id), true
}

// Define binds a new variable in the current frame.
func (e *Engine) Define(v *Variable) {
	e.Vars.Bind(v.Name, v)
}
