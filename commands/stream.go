package commands

import (
	"context"
	"io"

	"github.com/josephlewis42/pipeshell/core/engine"
	"github.com/josephlewis42/pipeshell/core/shellerr"
	"github.com/josephlewis42/pipeshell/core/signature"
	"github.com/josephlewis42/pipeshell/core/value"
)

// Seq streams the integers from start to end inclusive. Nothing is produced
// until a consumer asks for it, so `seq 1 1000000000 | take 3` is cheap.
func Seq(ctx context.Context, e *engine.Engine, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error) {
	input.Close()

	start, end := intArg(call, 0), intArg(call, 1)
	step := int64(1)
	if end < start {
		step = -1
	}
	if v, ok := call.Get("step"); ok {
		step, _ = value.AsInt(v)
		if step == 0 {
			return value.Empty(), shellerr.New(shellerr.GenericError, "Invalid step").
				WithLabel("step cannot be zero", v.Span())
		}
	}

	next, done := start, (step > 0 && start > end) || (step < 0 && start < end)
	stream := value.NewListStream(call.Head, e.Signals, func() (value.Value, error) {
		if done {
			return nil, io.EOF
		}
		v := value.NewInt(next, call.Head)
		// Stop before stepping past end so next never overflows.
		if step > 0 {
			done = uint64(end)-uint64(next) < uint64(step)
		} else {
			done = uint64(next)-uint64(end) < -uint64(step)
		}
		if !done {
			next += step
		}
		return v, nil
	})
	return value.FromListStream(stream), nil
}

// Take passes through the first n items of its input and stops pulling
// after that.
func Take(ctx context.Context, e *engine.Engine, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error) {
	n := intArg(call, 0)
	if n < 0 {
		input.Close()
		v, _ := call.Nth(0)
		return value.Empty(), shellerr.New(shellerr.GenericError, "Invalid count").
			WithLabel("cannot take a negative number of items", v.Span())
	}

	src, err := input.Iter(call.Head, e.Signals)
	if err != nil {
		return value.Empty(), err
	}

	var taken int64
	out := value.NewListStream(call.Head, e.Signals, func() (value.Value, error) {
		if taken >= n {
			src.Close()
			return nil, io.EOF
		}
		v, ok := src.Next()
		if !ok {
			if err := src.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		taken++
		return v, nil
	}).OnClose(src.Close)

	return value.FromListStream(out).WithMetadata(input.Metadata()), nil
}

// Length counts the items of its input.
func Length(ctx context.Context, e *engine.Engine, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error) {
	if v, ok := input.Value(); ok {
		if r, ok := v.(value.Record); ok {
			return value.FromValue(value.NewInt(int64(r.Len()), call.Head)), nil
		}
	}

	src, err := input.Iter(call.Head, e.Signals)
	if err != nil {
		return value.Empty(), err
	}
	var count int64
	for {
		if _, ok := src.Next(); !ok {
			break
		}
		count++
	}
	if err := src.Err(); err != nil {
		return value.Empty(), err
	}
	return value.FromValue(value.NewInt(count, call.Head)), nil
}

// Each runs a closure once per input item, lazily.
func Each(ctx context.Context, e *engine.Engine, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error) {
	closure := closureArg(call, 0)

	src, err := input.Iter(call.Head, e.Signals)
	if err != nil {
		return value.Empty(), err
	}

	out := value.NewListStream(call.Head, e.Signals, func() (value.Value, error) {
		item, ok := src.Next()
		if !ok {
			if err := src.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		res, err := e.RunClosure(ctx, closure, value.FromValue(item))
		if err != nil {
			return nil, err
		}
		return res.IntoValue(item.Span())
	}).OnClose(src.Close)

	return value.FromListStream(out), nil
}

// Do runs a closure with the command's input.
func Do(ctx context.Context, e *engine.Engine, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error) {
	return e.RunClosure(ctx, closureArg(call, 0), input)
}

func init() {
	addCmd(signature.New("seq").
		Describe("Stream a range of integers.").
		AddRequired("start", signature.ShapeInt, "first number").
		AddRequired("end", signature.ShapeInt, "last number, inclusive").
		AddNamed("step", signature.ShapeInt, 's', "distance between numbers"),
		Seq)

	addCmd(signature.New("take").
		Describe("Keep the first n items of the input.").
		AddRequired("n", signature.ShapeInt, "number of items to keep"),
		Take)

	addCmd(signature.New("length").
		Describe("Count the items of the input."),
		Length)

	addCmd(signature.New("each").
		Describe("Run a closure for each item of the input.").
		AddRequired("closure", signature.ShapeClosure, "the closure to run, with the item as $in"),
		Each)

	addCmd(signature.New("do").
		Describe("Run a closure with the input as $in.").
		AddRequired("closure", signature.ShapeClosure, "the closure to run"),
		Do)
}
