package commands

import (
	"context"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/josephlewis42/pipeshell/core/engine"
	"github.com/josephlewis42/pipeshell/core/shellerr"
	"github.com/josephlewis42/pipeshell/core/signature"
	"github.com/josephlewis42/pipeshell/core/value"
	"github.com/spf13/afero"
)

// Ls lists a directory as a table with one row per entry.
func Ls(ctx context.Context, e *engine.Engine, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error) {
	input.Close()

	dir := "."
	dirSpan := call.Head
	if arg, ok := call.Nth(0); ok {
		dir = stringArg(call, 0)
		dirSpan = arg.Span()
	}

	infos, err := afero.ReadDir(pathFs, dir)
	if err != nil {
		return value.Empty(), shellerr.New(shellerr.GenericError, "Cannot list directory").
			WithLabel(err.Error(), dirSpan)
	}

	listAll := call.Has("all")
	human := call.Has("human-readable")

	var paths []os.FileInfo
	for _, info := range infos {
		if !listAll && strings.HasPrefix(info.Name(), ".") {
			continue
		}
		paths = append(paths, info)
	}
	sort.Slice(paths, func(i, j int) bool {
		return paths[i].Name() < paths[j].Name()
	})

	rows := make([]value.Value, 0, len(paths))
	for _, info := range paths {
		var size value.Value = value.NewInt(info.Size(), call.Head)
		if human {
			size = value.NewString(BytesToHuman(info.Size()), call.Head)
		}
		rows = append(rows, value.RecordOf(call.Head,
			"name", value.NewString(info.Name(), call.Head),
			"type", value.NewString(fileType(info.Mode()), call.Head),
			"size", size,
			"modified", value.NewString(info.ModTime().Format(time.RFC3339), call.Head),
		))
	}

	return value.FromListStream(value.FromValues(call.Head, e.Signals, rows)), nil
}

func fileType(mode os.FileMode) string {
	switch {
	case mode.IsDir():
		return "dir"
	case mode&os.ModeSymlink != 0:
		return "symlink"
	case mode.IsRegular():
		return "file"
	default:
		return "other"
	}
}

// Pwd returns the working directory.
func Pwd(ctx context.Context, e *engine.Engine, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error) {
	input.Close()

	wd, err := os.Getwd()
	if err != nil {
		return value.Empty(), shellerr.New(shellerr.GenericError, "Cannot get working directory").
			WithLabel(err.Error(), call.Head)
	}
	return value.FromValue(value.NewString(wd, call.Head)), nil
}

func init() {
	addCmd(signature.New("ls").
		Describe("List the entries of a directory.").
		AddOptional("path", signature.ShapeString, "the directory to list, the working directory by default").
		AddSwitch("all", 'a', "include entries starting with .").
		AddSwitch("human-readable", 'h', "show sizes like 1.2K"),
		Ls)

	addCmd(signature.New("pwd").
		Describe("Print the name of the current working directory."),
		Pwd)
}
