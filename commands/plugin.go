package commands

import (
	"context"
	"path/filepath"

	"github.com/josephlewis42/pipeshell/core/engine"
	"github.com/josephlewis42/pipeshell/core/plugin"
	"github.com/josephlewis42/pipeshell/core/shellerr"
	"github.com/josephlewis42/pipeshell/core/signature"
	"github.com/josephlewis42/pipeshell/core/value"
)

type instanceLister interface {
	Instances() []plugin.Info
}

// PluginUse starts a plugin, asks it for its commands and declares them in
// the current scope.
func PluginUse(ctx context.Context, e *engine.Engine, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error) {
	input.Close()

	arg, _ := call.Nth(0)
	path, err := filepath.Abs(stringArg(call, 0))
	if err != nil {
		return value.Empty(), shellerr.New(shellerr.PluginSpawnFailure, "Invalid plugin path").
			WithLabel(err.Error(), arg.Span())
	}
	var args []string
	for _, v := range call.Rest {
		args = append(args, value.Inline(v))
	}

	ids, err := e.AddPlugin(ctx, plugin.NewIdentity(path, args...))
	if err != nil {
		return value.Empty(), shellerr.Anchor(err, arg.Span())
	}

	var names []value.Value
	for _, id := range ids {
		names = append(names, value.NewString(e.Decl(id).Name, call.Head))
	}
	return value.FromValue(value.NewList(names, call.Head)), nil
}

// PluginList reports the running plugin processes.
func PluginList(ctx context.Context, e *engine.Engine, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error) {
	input.Close()

	host, ok := e.Plugins.(instanceLister)
	if !ok {
		return value.FromValue(value.NewList(nil, call.Head)), nil
	}

	var rows []value.Value
	for _, info := range host.Instances() {
		rows = append(rows, value.RecordOf(call.Head,
			"name", value.NewString(info.Plugin, call.Head),
			"path", value.NewString(info.Path, call.Head),
			"pid", value.NewInt(int64(info.PID), call.Head),
			"state", value.NewString(info.State.String(), call.Head),
			"calls", value.NewInt(int64(info.Calls), call.Head),
		))
	}
	return value.FromValue(value.NewList(rows, call.Head)), nil
}

func init() {
	addCmd(signature.New("plugin use").
		Describe("Load the commands of a plugin executable.").
		AddRequired("path", signature.ShapeString, "the plugin executable").
		SetRest("args", signature.ShapeString, "arguments passed to the plugin on start"),
		PluginUse)

	addCmd(signature.New("plugin list").
		Describe("List running plugin processes."),
		PluginList)
}
