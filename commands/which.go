package commands

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/josephlewis42/pipeshell/core/engine"
	"github.com/josephlewis42/pipeshell/core/scope"
	"github.com/josephlewis42/pipeshell/core/signature"
	"github.com/josephlewis42/pipeshell/core/span"
	"github.com/josephlewis42/pipeshell/core/value"
	"github.com/spf13/afero"
)

const typeExternal = "external"

// pathFs is where PATH directories are read from; tests swap it out.
var pathFs = afero.NewOsFs()

// Which locates commands: declarations first, then executables on PATH.
func Which(ctx context.Context, e *engine.Engine, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error) {
	input.Close()
	all := call.Has("all")

	var out []value.Value
	if len(call.Rest) == 0 {
		out = listAllExecutables(e, all)
	}
	for _, arg := range call.Rest {
		app := value.Inline(arg)
		out = append(out, whichSingle(e, app, all, arg.Span())...)
	}
	return value.FromListStream(value.FromValues(call.Head, e.Signals, out)), nil
}

func whichSingle(e *engine.Engine, app string, all bool, sp span.Span) []value.Value {
	name := strings.TrimPrefix(app, "^")
	external := name != app

	switch {
	case all && external:
		return allInPath(name, sp)
	case all:
		var out []value.Value
		if _, decl, ok := e.Resolve(name); ok {
			out = append(out, declEntry(e, name, decl, sp))
		}
		return append(out, allInPath(name, sp)...)
	case external:
		return firstInPath(e, name, sp)
	default:
		if _, decl, ok := e.Resolve(name); ok {
			return []value.Value{declEntry(e, name, decl, sp)}
		}
		return firstInPath(e, name, sp)
	}
}

func whichEntry(command, path, kind string, sp span.Span) value.Record {
	return value.RecordOf(sp,
		"command", value.NewString(command, sp),
		"path", value.NewString(path, sp),
		"type", value.NewString(kind, sp),
	)
}

func declEntry(e *engine.Engine, name string, decl *engine.Decl, sp span.Span) value.Value {
	rec := whichEntry(name, declFile(e, decl), decl.Kind.String(), sp)
	if wrapped, ok := decl.WrappedCallSpan(); ok {
		if _, text, err := e.Sources.Lookup(wrapped); err == nil {
			rec.Insert("definition", value.NewString(string(text), sp))
		}
	}
	return rec
}

// declFile names where a declaration came from: the source file for script
// declarations, the executable for plugins, nothing for builtins.
func declFile(e *engine.Engine, decl *engine.Decl) string {
	var sp span.Span
	switch decl.Kind {
	case engine.DeclPlugin:
		return decl.Plugin.ExecutablePath
	case engine.DeclCustom:
		sp = decl.DeclSpan
		if body := e.Block(decl.BlockID); body != nil {
			sp = body.Span
		}
	default:
		sp = decl.DeclSpan
	}
	if sp.IsUnknown() {
		return ""
	}
	f, err := e.Sources.FileFor(sp)
	if err != nil {
		return ""
	}
	return f.Name
}

func firstInPath(e *engine.Engine, name string, sp span.Span) []value.Value {
	path, err := e.Paths.Lookup(name)
	if err != nil {
		return nil
	}
	return []value.Value{whichEntry(name, path, typeExternal, sp)}
}

func allInPath(name string, sp span.Span) []value.Value {
	var out []value.Value
	seen := map[string]bool{}
	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		candidate := filepath.Join(dir, name)
		if seen[candidate] || !isExecutable(candidate) {
			continue
		}
		seen[candidate] = true
		out = append(out, whichEntry(name, candidate, typeExternal, sp))
	}
	return out
}

func isExecutable(path string) bool {
	fi, err := pathFs.Stat(path)
	if err != nil {
		return false
	}
	return !fi.IsDir() && fi.Mode().Perm()&0111 != 0
}

func listAllExecutables(e *engine.Engine, all bool) []value.Value {
	var entries []scope.Entry
	if all {
		entries = e.Decls.AllVisible()
	} else {
		entries = e.Decls.Active()
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	}

	var out []value.Value
	seen := map[string]bool{}
	for _, entry := range entries {
		seen[entry.Name] = true
		out = append(out, declEntry(e, entry.Name, e.Decl(entry.ID), span.Unknown))
	}

	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		infos, err := afero.ReadDir(pathFs, dir)
		if err != nil {
			continue
		}
		for _, fi := range infos {
			full := filepath.Join(dir, fi.Name())
			if !isExecutable(full) {
				continue
			}
			if !all && seen[fi.Name()] {
				continue
			}
			seen[fi.Name()] = true
			out = append(out, whichEntry(fi.Name(), full, typeExternal, span.Unknown))
		}
	}
	return out
}

func init() {
	addCmd(signature.New("which").
		Describe("Find a program file, alias or custom command.").
		SetRest("applications", signature.ShapeString, "the names to look up, prefix with ^ for externals only").
		AddSwitch("all", 'a', "list every match instead of the first"),
		Which)
}
