package engine

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/josephlewis42/pipeshell/core/ast"
	"github.com/josephlewis42/pipeshell/core/logger"
	"github.com/josephlewis42/pipeshell/core/plugin"
	"github.com/josephlewis42/pipeshell/core/shellerr"
	"github.com/josephlewis42/pipeshell/core/signature"
	"github.com/josephlewis42/pipeshell/core/span"
	"github.com/josephlewis42/pipeshell/core/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sp = span.New

func lit(v value.Value) ast.Expr { return &ast.Literal{Value: v} }
func num(i int64) ast.Expr      { return lit(value.NewInt(i, sp(0, 1))) }
func boolean(b bool) ast.Expr   { return lit(value.NewBool(b, sp(0, 1))) }
func ref(name string) ast.Expr  { return &ast.VarRef{Name: name, Span: sp(0, 1)} }

func op(o ast.Operator, l, r ast.Expr) ast.Expr {
	return &ast.BinaryOp{Op: o, Left: l, Right: r, Span: sp(0, 1)}
}

func exprStmt(x ast.Expr) *ast.Pipeline {
	return &ast.Pipeline{Elements: []ast.Element{{Expr: x}}, Span: x.ExprSpan()}
}

func block(stmts ...ast.Stmt) *ast.Block {
	return &ast.Block{Stmts: stmts}
}

func call(name string, head span.Span, args ...ast.Expr) *ast.Call {
	c := &ast.Call{Name: name, Head: head, Span: head}
	for _, a := range args {
		c.Args = append(c.Args, ast.Arg{Value: a, Span: a.ExprSpan()})
	}
	return c
}

func callStmt(calls ...*ast.Call) *ast.Pipeline {
	p := &ast.Pipeline{}
	for _, c := range calls {
		p.Elements = append(p.Elements, ast.Element{Call: c})
	}
	return p
}

func assign(name string, x ast.Expr) *ast.Assign {
	return &ast.Assign{Name: name, NameSpan: sp(0, 1), Value: exprStmt(x)}
}

func let(name string, mutable bool, x ast.Expr) *ast.Let {
	return &ast.Let{Name: name, NameSpan: sp(0, 1), Mutable: mutable, Init: exprStmt(x)}
}

// newTestEngine has an `echo` builtin that returns its arguments, and a
// `count` builtin that reports how many items it was given.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(Options{})

	e.AddCommand(NewCommand(
		signature.New("echo").SetRest("rest", signature.ShapeAny, "values"),
		func(ctx context.Context, e *Engine, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error) {
			input.Close()
			if len(call.Rest) == 1 {
				return value.FromValue(call.Rest[0]), nil
			}
			return value.FromListStream(value.FromValues(call.Head, e.Signals, call.Rest)), nil
		}))
	e.AddCommand(NewCommand(
		signature.New("count"),
		func(ctx context.Context, e *Engine, call *signature.EvaluatedCall, input value.PipelineData) (value.PipelineData, error) {
			items, err := input.Iter(call.Head, e.Signals)
			if err != nil {
				return value.Empty(), err
			}
			vals, err := items.Collect()
			if err != nil {
				return value.Empty(), err
			}
			return value.FromValue(value.NewInt(int64(len(vals)), call.Head)), nil
		}))
	return e
}

func evalValue(t *testing.T, e *Engine, b *ast.Block) value.Value {
	t.Helper()
	data, err := e.EvalScript(context.Background(), b)
	require.NoError(t, err)
	v, err := data.IntoValue(span.Unknown)
	require.NoError(t, err)
	return v
}

func TestIfElseChain(t *testing.T) {
	// if 2 > 3 { 5 } else if 6 < 7 { 4 } else { 8 }
	e := newTestEngine(t)
	script := block(exprStmt(&ast.If{
		Branches: []ast.Branch{
			{Cond: op(ast.OpGt, num(2), num(3)), Body: block(exprStmt(num(5)))},
			{Cond: op(ast.OpLt, num(6), num(7)), Body: block(exprStmt(num(4)))},
		},
		Else: block(exprStmt(num(8))),
	}))

	assert.True(t, value.Equal(value.NewInt(4, span.Unknown), evalValue(t, e, script)))
}

func TestIfWithoutMatchIsEmpty(t *testing.T) {
	e := newTestEngine(t)
	script := block(exprStmt(&ast.If{
		Branches: []ast.Branch{{Cond: boolean(false), Body: block(exprStmt(num(1)))}},
	}))

	data, err := e.EvalScript(context.Background(), script)
	require.NoError(t, err)
	assert.True(t, data.IsEmpty())
}

func TestMutationInBranches(t *testing.T) {
	cases := map[string]struct {
		branches []ast.Branch
		want     int64
	}{
		"else": {
			// mut x = 100; if 2 > 3 { $x = 200 } else { $x = 300 }; $x
			branches: []ast.Branch{
				{Cond: op(ast.OpGt, num(2), num(3)), Body: block(assign("x", num(200)))},
			},
			want: 300,
		},
		"else if": {
			// mut x = 100; if 2 > 3 { $x = 200 } else if true { $x = 400 } else { $x = 300 }; $x
			branches: []ast.Branch{
				{Cond: op(ast.OpGt, num(2), num(3)), Body: block(assign("x", num(200)))},
				{Cond: boolean(true), Body: block(assign("x", num(400)))},
			},
			want: 400,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			e := newTestEngine(t)
			script := block(
				let("x", true, num(100)),
				exprStmt(&ast.If{Branches: tc.branches, Else: block(assign("x", num(300)))}),
				exprStmt(ref("x")),
			)
			got := evalValue(t, e, script)
			assert.True(t, value.Equal(value.NewInt(tc.want, span.Unknown), got), "got %s", value.Inline(got))
			assert.Equal(t, 0, e.Vars.Depth(), "every frame pushed during evaluation is popped")
		})
	}
}

func TestLetInBranchDoesNotLeak(t *testing.T) {
	e := newTestEngine(t)
	script := block(
		exprStmt(&ast.If{Branches: []ast.Branch{
			{Cond: boolean(true), Body: block(let("y", false, num(1)))},
		}}),
		exprStmt(ref("y")),
	)

	v := evalValue(t, e, script)
	require.IsType(t, value.Error{}, v)
	assert.ErrorIs(t, v.(value.Error).Err, shellerr.VariableNotFound)
}

func TestAssignToImmutable(t *testing.T) {
	e := newTestEngine(t)
	script := block(
		let("x", false, num(1)),
		assign("x", num(2)),
	)

	v := evalValue(t, e, script)
	require.IsType(t, value.Error{}, v)
	err := shellerr.From(v.(value.Error).Err)
	assert.ErrorIs(t, err, shellerr.AssignmentRequiresMutable)
	assert.Equal(t, "needs to be a mutable variable", err.Label)
}

func TestErrorDoesNotStopScript(t *testing.T) {
	var reported []error
	e := newTestEngine(t)
	e.OnError = func(err error) { reported = append(reported, err) }

	script := block(
		callStmt(call("nope-not-a-command", sp(0, 18))),
		callStmt(call("echo", sp(19, 23), num(7))),
	)

	got := evalValue(t, e, script)
	assert.True(t, value.Equal(value.NewInt(7, span.Unknown), got))
	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], shellerr.DeclNotFound)
	assert.Equal(t, sp(0, 18), shellerr.From(reported[0]).Span)
}

func TestLastStatementErrorIsValue(t *testing.T) {
	e := newTestEngine(t)
	script := block(callStmt(call("nope-not-a-command", sp(4, 22))))

	v := evalValue(t, e, script)
	require.IsType(t, value.Error{}, v)
	assert.Equal(t, sp(4, 22), v.Span())
	assert.ErrorIs(t, v.(value.Error).Err, shellerr.DeclNotFound)
}

func TestAliasShadowsCustomCommand(t *testing.T) {
	e := newTestEngine(t)

	// def ls [] { echo 1 }; alias ls = echo 2 3; ls
	script := block(
		&ast.Def{Name: "ls", Signature: signature.New("ls"), Body: block(callStmt(call("echo", sp(0, 4), num(1))))},
		&ast.Alias{Name: "ls", Target: call("echo", sp(0, 4), num(2), num(3))},
		callStmt(call("ls", sp(0, 2))),
	)

	got := evalValue(t, e, script)
	_, decl, ok := e.Resolve("ls")
	require.True(t, ok)
	assert.Equal(t, DeclAlias, decl.Kind)
	assert.Equal(t, "[2, 3]", value.Inline(got))

	var kinds []DeclKind
	for _, entry := range e.Decls.AllVisible() {
		if entry.Name == "ls" {
			kinds = append(kinds, e.Decl(entry.ID).Kind)
		}
	}
	assert.Equal(t, []DeclKind{DeclAlias, DeclCustom}, kinds)
}

func TestAliasAppendsArguments(t *testing.T) {
	e := newTestEngine(t)
	script := block(
		&ast.Alias{Name: "e1", Target: call("echo", sp(0, 4), num(1))},
		callStmt(call("e1", sp(0, 2), num(2))),
	)
	assert.Equal(t, "[1, 2]", value.Inline(evalValue(t, e, script)))
}

func TestCustomCommandParameters(t *testing.T) {
	e := newTestEngine(t)
	sig := signature.New("pick").
		AddRequired("a", signature.ShapeInt, "").
		AddOptional("b", signature.ShapeInt, "").
		AddSwitch("swap", 's', "")

	// def pick [a, b?, --swap] { if $swap { $b } else { $a } }
	body := block(exprStmt(&ast.If{
		Branches: []ast.Branch{{Cond: ref("swap"), Body: block(exprStmt(ref("b")))}},
		Else:     block(exprStmt(ref("a"))),
	}))

	swapped := call("pick", sp(0, 4), num(1), num(2))
	swapped.Args = append(swapped.Args, ast.Arg{Long: "swap", Span: sp(5, 11)})

	script := block(
		&ast.Def{Name: "pick", Signature: sig, Body: body},
		callStmt(swapped),
	)
	assert.Equal(t, "2", value.Inline(evalValue(t, e, script)))

	missing := block(callStmt(call("pick", sp(0, 4))))
	v := evalValue(t, e, missing)
	require.IsType(t, value.Error{}, v)
	assert.ErrorIs(t, v.(value.Error).Err, shellerr.ArityError)
}

func TestHide(t *testing.T) {
	e := newTestEngine(t)
	script := block(
		&ast.Hide{Name: "echo", Span: sp(0, 9)},
		callStmt(call("echo", sp(10, 14), num(1))),
	)

	v := evalValue(t, e, script)
	require.IsType(t, value.Error{}, v)
	assert.ErrorIs(t, v.(value.Error).Err, shellerr.DeclNotFound)

	again := evalValue(t, e, block(&ast.Hide{Name: "echo", Span: sp(0, 9)}))
	require.IsType(t, value.Error{}, again)
}

func TestHiddenNameDoesNotRunExternal(t *testing.T) {
	e := newTestEngine(t)
	var looked []string
	e.Paths.lookPath = func(name string) (string, error) {
		looked = append(looked, name)
		return "/usr/bin/" + name, nil
	}

	script := block(
		&ast.Hide{Name: "echo", Span: sp(0, 9)},
		callStmt(call("echo", sp(10, 14), num(1))),
	)

	v := evalValue(t, e, script)
	require.IsType(t, value.Error{}, v)
	assert.ErrorIs(t, v.(value.Error).Err, shellerr.DeclNotFound)
	assert.Empty(t, looked, "PATH is not consulted for a hidden name")
}

func TestVariableKeepsValueSpan(t *testing.T) {
	e := newTestEngine(t)

	// let x = 3; $x
	script := block(
		let("x", false, lit(value.NewInt(3, sp(8, 9)))),
		exprStmt(&ast.VarRef{Name: "x", Span: sp(11, 13)}),
	)

	v := evalValue(t, e, script)
	assert.Equal(t, sp(8, 9), v.Span())
}

func TestCustomCommandScopeIsLexical(t *testing.T) {
	def := func(name string, sig *signature.Signature, body ...ast.Stmt) *ast.Def {
		if sig == nil {
			sig = signature.New(name)
		}
		return &ast.Def{Name: name, Signature: sig, Body: block(body...), Span: sp(0, 3)}
	}
	inBranch := func(body ...ast.Stmt) ast.Stmt {
		return exprStmt(&ast.If{Branches: []ast.Branch{{Cond: boolean(true), Body: block(body...)}}})
	}
	countdown := signature.New("countdown").AddRequired("n", signature.ShapeInt, "")

	cases := map[string]struct {
		script   *ast.Block
		expected string
		err      error
	}{
		"commands resolve where defined": {
			// def greet [] { echo 1 }; def f [] { greet }; if true { def greet [] { echo 2 }; f }
			script: block(
				def("greet", nil, callStmt(call("echo", sp(0, 4), num(1)))),
				def("f", nil, callStmt(call("greet", sp(0, 5)))),
				inBranch(
					def("greet", nil, callStmt(call("echo", sp(0, 4), num(2)))),
					callStmt(call("f", sp(0, 1))),
				),
			),
			expected: "1",
		},
		"variables resolve where defined": {
			// let base = 5; def f [] { $base }; if true { let base = 9; f }
			script: block(
				let("base", false, num(5)),
				def("f", nil, exprStmt(ref("base"))),
				inBranch(let("base", false, num(9)), callStmt(call("f", sp(0, 1)))),
			),
			expected: "5",
		},
		"caller variables are not visible": {
			// def g [] { $secret }; if true { let secret = 7; g }
			script: block(
				def("g", nil, exprStmt(ref("secret"))),
				inBranch(let("secret", false, num(7)), callStmt(call("g", sp(0, 1)))),
			),
			err: shellerr.VariableNotFound,
		},
		"recursion": {
			// def countdown [n] { if $n > 0 { countdown ($n - 1) } else { 42 } }; countdown 3
			script: block(
				def("countdown", countdown, exprStmt(&ast.If{
					Branches: []ast.Branch{{
						Cond: op(ast.OpGt, ref("n"), num(0)),
						Body: block(callStmt(call("countdown", sp(0, 9), op(ast.OpSub, ref("n"), num(1))))),
					}},
					Else: block(exprStmt(num(42))),
				})),
				callStmt(call("countdown", sp(0, 9), num(3))),
			),
			expected: "42",
		},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			e := newTestEngine(t)
			v := evalValue(t, e, tc.script)
			if tc.err != nil {
				require.IsType(t, value.Error{}, v)
				assert.ErrorIs(t, v.(value.Error).Err, tc.err)
			} else {
				assert.Equal(t, tc.expected, value.Inline(v))
			}
			assert.Equal(t, 0, e.Vars.Depth())
			assert.Equal(t, 0, e.Decls.Depth())
		})
	}
}

func TestPipelineStreamsIntoNextStage(t *testing.T) {
	e := newTestEngine(t)
	script := block(callStmt(
		call("echo", sp(0, 4), num(1), num(2), num(3)),
		call("count", sp(5, 10)),
	))
	assert.Equal(t, "3", value.Inline(evalValue(t, e, script)))
}

func TestClosureCapturesBindings(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// let base = 10; let f = { $in + $base }
	body := block(exprStmt(op(ast.OpAdd, ref("in"), ref("base"))))
	_, err := e.EvalScript(ctx, block(
		let("base", false, num(10)),
		let("f", false, &ast.ClosureExpr{Body: body, Span: sp(0, 1)}),
	))
	require.NoError(t, err)

	f, ok := e.Variable("f")
	require.True(t, ok)
	closure, ok := f.Value.(value.Closure)
	require.True(t, ok)

	out, err := e.RunClosure(ctx, closure, value.FromValue(value.NewInt(5, span.Unknown)))
	require.NoError(t, err)
	v, err := out.IntoValue(span.Unknown)
	require.NoError(t, err)
	assert.Equal(t, "15", value.Inline(v))
	assert.Equal(t, 0, e.Vars.Depth(), "every frame pushed during evaluation is popped")
}

func TestClosureIgnoresCallerScope(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// let f = { $later }; let later = 1
	_, err := e.EvalScript(ctx, block(
		let("f", false, &ast.ClosureExpr{Body: block(exprStmt(ref("later"))), Span: sp(0, 1)}),
		let("later", false, num(1)),
	))
	require.NoError(t, err)

	f, ok := e.Variable("f")
	require.True(t, ok)
	_, err = e.RunClosure(ctx, f.Value.(value.Closure), value.Empty())
	assert.ErrorIs(t, err, shellerr.VariableNotFound)
	assert.Equal(t, 0, e.Vars.Depth())

	_, ok = e.Variable("later")
	assert.True(t, ok, "caller scope is restored after the closure returns")
}

func TestUnknownClosureBlock(t *testing.T) {
	e := newTestEngine(t)

	closure := value.NewClosure(999, value.Captures{}, sp(0, 1))
	_, err := e.RunClosure(context.Background(), closure, value.Empty())
	assert.ErrorIs(t, err, shellerr.GenericError)
	assert.Nil(t, e.Block(-1))
	assert.Equal(t, 0, e.Vars.Depth())
}

func TestInterruptStopsScript(t *testing.T) {
	e := newTestEngine(t)
	e.Signals.Interrupt()

	var buf bytes.Buffer
	e.Events = logger.NewJSONLinesLogRecorder(&buf).NewSession()

	_, err := e.EvalScript(context.Background(), block(exprStmt(num(1))))
	assert.True(t, IsCancellation(err))
	assert.Contains(t, buf.String(), string(logger.EventInterrupt))
}

type fakePlugins struct {
	sigs  []*signature.Signature
	calls []string
	err   error
}

func (f *fakePlugins) Signatures(ctx context.Context, id plugin.Identity) ([]*signature.Signature, error) {
	return f.sigs, nil
}

func (f *fakePlugins) Call(ctx context.Context, id plugin.Identity, name string, call *signature.EvaluatedCall, input value.PipelineData, signals *value.Signals) (value.PipelineData, error) {
	f.calls = append(f.calls, name)
	input.Close()
	if f.err != nil {
		return value.Empty(), f.err
	}
	return value.FromValue(value.NewString(id.Filename, call.Head)), nil
}

var _ PluginHost = (*fakePlugins)(nil)

func TestPluginDeclarations(t *testing.T) {
	host := &fakePlugins{sigs: []*signature.Signature{
		signature.New("example two"),
		signature.New("example three"),
	}}
	e := New(Options{Plugins: host})

	ids, err := e.AddPlugin(context.Background(), plugin.Identity{Filename: "example", ExecutablePath: "/bin/example"})
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	got := evalValue(t, e, block(callStmt(call("example two", sp(0, 11)))))
	assert.Equal(t, "example", value.Inline(got))
	assert.Equal(t, []string{"example two"}, host.calls)

	host.err = shellerr.New(shellerr.PluginReportedError, "ERROR from plugin").
		WithLabel("error message pointing to call head span", sp(0, 13))
	v := evalValue(t, e, block(callStmt(call("example three", sp(0, 13)))))
	require.IsType(t, value.Error{}, v)
	perr := shellerr.From(v.(value.Error).Err)
	assert.ErrorIs(t, perr, shellerr.PluginReportedError)
	assert.Equal(t, sp(0, 13), perr.Span)
}

func TestPluginWithoutHost(t *testing.T) {
	e := New(Options{})
	e.Decls.Bind("p", &Decl{Name: "p", Kind: DeclPlugin, Signature: signature.New("p"), Plugin: &plugin.Identity{}})

	v := evalValue(t, e, block(callStmt(call("p", sp(0, 1)))))
	require.IsType(t, value.Error{}, v)
	assert.ErrorIs(t, v.(value.Error).Err, shellerr.PluginSpawnFailure)
}

func TestPathCacheRemembersLookups(t *testing.T) {
	lookups := 0
	cache := NewPathCache(2, 0)
	cache.lookPath = func(name string) (string, error) {
		lookups++
		if name == "missing" {
			return "", errors.New("not found")
		}
		return "/", nil
	}

	for i := 0; i < 3; i++ {
		path, err := cache.Lookup("sh")
		require.NoError(t, err)
		assert.Equal(t, "/", path)
	}
	assert.Equal(t, 1, lookups)
	assert.Equal(t, []string{"sh"}, cache.Cached())

	_, err := cache.Lookup("missing")
	assert.Error(t, err)

	cache.Purge()
	assert.Empty(t, cache.Cached())
}

func TestExternalArgs(t *testing.T) {
	args := []signature.Arg{
		{Long: "color", Value: value.NewString("never", span.Unknown)},
		{Short: 'l'},
		{Value: value.NewInt(3, span.Unknown)},
	}
	assert.Equal(t, []string{"--color=never", "-l", "3"}, externalArgs(args))
}

func TestExternalInput(t *testing.T) {
	list := value.NewList([]value.Value{
		value.NewString("a", span.Unknown),
		value.NewInt(1, span.Unknown),
	}, span.Unknown)
	assert.Equal(t, "a\n1\n", string(externalInput(list)))
	assert.Equal(t, []byte{0, 1}, externalInput(value.NewBinary([]byte{0, 1}, span.Unknown)))
}

func TestBinaryOps(t *testing.T) {
	cases := []struct {
		op   ast.Operator
		l, r value.Value
		want string
	}{
		{ast.OpAdd, value.NewInt(1, span.Unknown), value.NewInt(2, span.Unknown), "3"},
		{ast.OpDiv, value.NewInt(6, span.Unknown), value.NewInt(3, span.Unknown), "2"},
		{ast.OpDiv, value.NewInt(7, span.Unknown), value.NewInt(2, span.Unknown), "3.5"},
		{ast.OpMul, value.NewInt(2, span.Unknown), value.NewFloat(1.5, span.Unknown), "3.0"},
		{ast.OpAdd, value.NewString("a", span.Unknown), value.NewString("b", span.Unknown), "ab"},
		{ast.OpEq, value.NewInt(2, span.Unknown), value.NewFloat(2, span.Unknown), "true"},
		{ast.OpGe, value.NewString("b", span.Unknown), value.NewString("a", span.Unknown), "true"},
	}
	for _, tc := range cases {
		t.Run(value.Inline(tc.l)+tc.op.String()+value.Inline(tc.r), func(t *testing.T) {
			got, err := binaryOp(tc.op, tc.l, tc.r, span.Unknown)
			require.NoError(t, err)
			assert.Equal(t, tc.want, value.Inline(got))
		})
	}

	_, err := binaryOp(ast.OpDiv, value.NewInt(1, span.Unknown), value.NewInt(0, span.Unknown), span.Unknown)
	assert.Error(t, err)
	_, err = binaryOp(ast.OpSub, value.NewString("a", span.Unknown), value.NewInt(1, span.Unknown), sp(0, 5))
	assert.ErrorIs(t, err, shellerr.TypeMismatch)
}
