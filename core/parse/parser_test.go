package parse

import (
	"testing"

	"github.com/josephlewis42/pipeshell/core/ast"
	"github.com/josephlewis42/pipeshell/core/shellerr"
	"github.com/josephlewis42/pipeshell/core/signature"
	"github.com/josephlewis42/pipeshell/core/span"
	"github.com/josephlewis42/pipeshell/core/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string, decls ...string) *ast.Block {
	t.Helper()
	known := map[string]bool{}
	for _, d := range decls {
		known[d] = true
	}
	block, err := Parse([]byte(src), 0, func(name string) bool { return known[name] })
	require.NoError(t, err)
	return block
}

func onlyCall(t *testing.T, block *ast.Block) *ast.Call {
	t.Helper()
	require.Len(t, block.Stmts, 1)
	pipe, ok := block.Stmts[0].(*ast.Pipeline)
	require.True(t, ok, "got %T", block.Stmts[0])
	require.Len(t, pipe.Elements, 1)
	require.NotNil(t, pipe.Elements[0].Call)
	return pipe.Elements[0].Call
}

func literal(t *testing.T, x ast.Expr) value.Value {
	t.Helper()
	lit, ok := x.(*ast.Literal)
	require.True(t, ok, "got %T", x)
	return lit.Value
}

func TestLetAndVariable(t *testing.T) {
	block := mustParse(t, "let x = 5; $x")
	require.Len(t, block.Stmts, 2)

	let, ok := block.Stmts[0].(*ast.Let)
	require.True(t, ok)
	assert.Equal(t, "x", let.Name)
	assert.False(t, let.Mutable)
	assert.Equal(t, span.New(4, 5), let.NameSpan)
	assert.Equal(t, span.New(0, 9), let.Span)
	assert.Equal(t, value.NewInt(5, span.New(8, 9)), literal(t, let.Init.Elements[0].Expr))

	pipe := block.Stmts[1].(*ast.Pipeline)
	ref, ok := pipe.Elements[0].Expr.(*ast.VarRef)
	require.True(t, ok)
	assert.Equal(t, "x", ref.Name)
	assert.Equal(t, span.New(11, 13), ref.Span)
}

func TestIfElseChain(t *testing.T) {
	block := mustParse(t, "mut x = 100\nif 2 > 3 { $x = 200 } else if true {\n $x = 400\n}\nelse { $x = 300 }\n$x")
	require.Len(t, block.Stmts, 3)
	assert.True(t, block.Stmts[0].(*ast.Let).Mutable)

	x, ok := block.Stmts[1].(*ast.Pipeline).Elements[0].Expr.(*ast.If)
	require.True(t, ok)
	require.Len(t, x.Branches, 2)
	require.NotNil(t, x.Else)

	cond := x.Branches[0].Cond.(*ast.BinaryOp)
	assert.Equal(t, ast.OpGt, cond.Op)
	assert.Equal(t, value.NewBool(true, span.New(42, 46)), literal(t, x.Branches[1].Cond))

	assign, ok := x.Branches[1].Body.Stmts[0].(*ast.Assign)
	require.True(t, ok)
	assert.Equal(t, "x", assign.Name)
	assert.Equal(t, int64(400), literal(t, assign.Value.Elements[0].Expr).(value.Int).Val)
	assert.Len(t, x.Else.Stmts, 1)
}

func TestPrecedence(t *testing.T) {
	block := mustParse(t, "1 + 2 * 3 == 7")
	eq := block.Stmts[0].(*ast.Pipeline).Elements[0].Expr.(*ast.BinaryOp)
	assert.Equal(t, ast.OpEq, eq.Op)

	add := eq.Left.(*ast.BinaryOp)
	assert.Equal(t, ast.OpAdd, add.Op)
	mul := add.Right.(*ast.BinaryOp)
	assert.Equal(t, ast.OpMul, mul.Op)
	assert.Equal(t, span.New(4, 9), mul.Span)
}

func TestTwoWordHeads(t *testing.T) {
	call := onlyCall(t, mustParse(t, "view span 1 2", "view span"))
	assert.Equal(t, "view span", call.Name)
	assert.Equal(t, span.New(0, 9), call.Head)
	assert.Len(t, call.Args, 2)

	call = onlyCall(t, mustParse(t, "view span 1 2"))
	assert.Equal(t, "view", call.Name)
	assert.Len(t, call.Args, 3)

	block := mustParse(t, `def "foo bar" [] { 1 }; foo bar 2`)
	require.Len(t, block.Stmts, 2)
	call = block.Stmts[1].(*ast.Pipeline).Elements[0].Call
	assert.Equal(t, "foo bar", call.Name)
}

func TestArguments(t *testing.T) {
	call := onlyCall(t, mustParse(t, `cmd --all --count=5 -xy 'two words' -3 [1, 2] { echo $in }`))
	require.Len(t, call.Args, 8)

	assert.Equal(t, "all", call.Args[0].Long)
	assert.Nil(t, call.Args[0].Value)

	assert.Equal(t, "count", call.Args[1].Long)
	assert.Equal(t, value.NewInt(5, span.New(18, 19)), literal(t, call.Args[1].Value))

	assert.Equal(t, 'x', call.Args[2].Short)
	assert.Equal(t, 'y', call.Args[3].Short)

	assert.Equal(t, value.NewString("two words", span.New(24, 35)), literal(t, call.Args[4].Value))
	assert.Equal(t, int64(-3), literal(t, call.Args[5].Value).(value.Int).Val)

	list, ok := call.Args[6].Value.(*ast.ListExpr)
	require.True(t, ok)
	assert.Len(t, list.Items, 2)
	assert.IsType(t, &ast.ClosureExpr{}, call.Args[7].Value)

	assert.Equal(t, span.New(0, 58), call.Span)
}

func TestClosureArgument(t *testing.T) {
	call := onlyCall(t, mustParse(t, "each { $in * 2 }"))
	require.Len(t, call.Args, 1)
	closure, ok := call.Args[0].Value.(*ast.ClosureExpr)
	require.True(t, ok)
	assert.Equal(t, span.New(5, 16), closure.Span)
	require.Len(t, closure.Body.Stmts, 1)
}

func TestExternalCall(t *testing.T) {
	call := onlyCall(t, mustParse(t, "^ls -la", "ls"))
	assert.True(t, call.External)
	assert.Equal(t, "ls", call.Name)
	assert.Len(t, call.Args, 2)
}

func TestPipelines(t *testing.T) {
	block := mustParse(t, "seq 1 10 |\n  take 3 | length # count them")
	pipe := block.Stmts[0].(*ast.Pipeline)
	require.Len(t, pipe.Elements, 3)
	assert.Equal(t, "take", pipe.Elements[1].Call.Name)
	assert.Equal(t, span.New(0, 28), pipe.Span)
}

func TestDefSignature(t *testing.T) {
	block := mustParse(t, "def greet [name, greeting?: string, ...rest, --loud, --times(-t): int] { echo $name }")
	def, ok := block.Stmts[0].(*ast.Def)
	require.True(t, ok)

	want := signature.New("greet").
		AddRequired("name", signature.ShapeAny, "").
		AddOptional("greeting", signature.ShapeString, "").
		SetRest("rest", signature.ShapeAny, "").
		AddSwitch("loud", 0, "").
		AddNamed("times", signature.ShapeInt, 't', "")
	assert.Equal(t, want, def.Signature)
	assert.Equal(t, span.New(0, 85), def.Span)
}

func TestAliasExternHide(t *testing.T) {
	block := mustParse(t, "alias ll = ls -l; extern git [cmd: string]; hide ll")
	require.Len(t, block.Stmts, 3)

	alias := block.Stmts[0].(*ast.Alias)
	assert.Equal(t, "ll", alias.Name)
	assert.Equal(t, "ls", alias.Target.Name)
	assert.Len(t, alias.Target.Args, 1)

	extern := block.Stmts[1].(*ast.Extern)
	assert.Equal(t, "git", extern.Name)
	assert.Equal(t, span.New(18, 42), extern.Span)
	assert.Equal(t, signature.ShapeString, extern.Signature.Required[0].Shape)

	assert.Equal(t, "ll", block.Stmts[2].(*ast.Hide).Name)
}

func TestSpansAreOffsetByBase(t *testing.T) {
	block, err := Parse([]byte("echo hi"), 100, nil)
	require.NoError(t, err)
	call := onlyCall(t, block)
	assert.Equal(t, span.New(100, 104), call.Head)
	assert.Equal(t, span.New(105, 107), call.Args[0].Span)
	assert.Equal(t, span.New(100, 107), block.Span)
}

func TestWordValues(t *testing.T) {
	cases := map[string]value.Value{
		"42":      value.NewInt(42, span.Unknown),
		"1.5":     value.NewFloat(1.5, span.Unknown),
		"true":    value.NewBool(true, span.Unknown),
		"null":    value.NewNothing(span.Unknown),
		"foo.txt": value.NewString("foo.txt", span.Unknown),
		`"42"`:    value.NewString("42", span.Unknown),
		`a\ b`:    value.NewString("a b", span.Unknown),
		`""`:      value.NewString("", span.Unknown),
	}
	for src, want := range cases {
		t.Run(src, func(t *testing.T) {
			call := onlyCall(t, mustParse(t, "echo "+src))
			got := literal(t, call.Args[0].Value)
			assert.True(t, value.Equal(want, got), "got %s", value.Debug(got, false))
			assert.Equal(t, want.Kind(), got.Kind())
		})
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		src   string
		label string
		sp    span.Span
	}{
		{`echo "unterminated`, "this quote is never closed", span.New(5, 18)},
		{"if true { echo 1", "found end of input", span.New(16, 16)},
		{"let = 4", "found `=`", span.New(4, 5)},
		{"def f { 1 }", "found `{`", span.New(6, 7)},
		{"echo 1 }", "found `}`", span.New(7, 8)},
		{"def f [x: duration] { 1 }", "not a parameter type", span.New(7, 9)},
	}
	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			_, err := Parse([]byte(tc.src), 0, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, shellerr.ParseError)
			se := shellerr.From(err)
			assert.Equal(t, tc.label, se.Label)
			assert.Equal(t, tc.sp, se.Span)
		})
	}
}
