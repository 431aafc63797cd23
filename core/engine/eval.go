package engine

import (
	"context"
	"fmt"

	"github.com/josephlewis42/pipeshell/core/ast"
	"github.com/josephlewis42/pipeshell/core/logger"
	"github.com/josephlewis42/pipeshell/core/shellerr"
	"github.com/josephlewis42/pipeshell/core/signature"
	"github.com/josephlewis42/pipeshell/core/span"
	"github.com/josephlewis42/pipeshell/core/value"
)

// EvalScript runs the top-level statements of a script or REPL line. Every
// statement gets its own statement context: a failure in one is handed to
// OnError and the next statement still runs. A failure in the last
// statement becomes an Error value in the result. Only an interrupt stops
// the script early, and it is returned as an error.
func (e *Engine) EvalScript(ctx context.Context, block *ast.Block) (value.PipelineData, error) {
	for i, stmt := range block.Stmts {
		last := i == len(block.Stmts)-1

		data, err := e.evalStmt(ctx, stmt, value.Empty())
		if err == nil && !last {
			err = data.Drain()
		}

		switch {
		case err == nil && last:
			return data, nil
		case err == nil:
			continue
		case shellerr.IsInterrupt(err) || ctx.Err() != nil:
			e.Events.Record(logger.EventInterrupt, nil)
			return value.Empty(), shellerr.Anchor(err, stmt.StmtSpan())
		}

		err = shellerr.Anchor(err, stmt.StmtSpan())
		if last {
			return value.FromValue(value.NewError(err, shellerr.From(err).Span)), nil
		}
		e.OnError(err)
	}
	return value.Empty(), nil
}

// evalBlock runs a nested block in the current frame. Input feeds the first
// statement; results of all but the last statement are discarded.
func (e *Engine) evalBlock(ctx context.Context, block *ast.Block, input value.PipelineData) (value.PipelineData, error) {
	if len(block.Stmts) == 0 {
		input.Close()
		return value.Empty(), nil
	}

	for i, stmt := range block.Stmts {
		in := value.Empty()
		if i == 0 {
			in = input
		}

		data, err := e.evalStmt(ctx, stmt, in)
		if err != nil {
			return value.Empty(), err
		}
		if i == len(block.Stmts)-1 {
			return data, nil
		}
		if err := data.Drain(); err != nil {
			return value.Empty(), err
		}
	}
	return value.Empty(), nil
}

// evalScoped runs a block in a fresh frame that is popped on every exit
// path.
func (e *Engine) evalScoped(ctx context.Context, block *ast.Block, input value.PipelineData) (value.PipelineData, error) {
	e.PushFrame()
	defer e.PopFrame()
	return e.evalBlock(ctx, block, input)
}

func (e *Engine) evalStmt(ctx context.Context, stmt ast.Stmt, input value.PipelineData) (value.PipelineData, error) {
	if err := e.Signals.Check(stmt.StmtSpan()); err != nil {
		return value.Empty(), err
	}

	switch stmt := stmt.(type) {
	case *ast.Pipeline:
		return e.evalPipeline(ctx, stmt, input)

	case *ast.Let:
		v, err := e.evalPipelineValue(ctx, stmt.Init)
		if err != nil {
			return value.Empty(), err
		}
		e.Define(&Variable{Name: stmt.Name, Mutable: stmt.Mutable, Value: v, DeclSpan: stmt.NameSpan})
		return value.Empty(), nil

	case *ast.Assign:
		variable, ok := e.Variable(stmt.Name)
		if !ok {
			return value.Empty(), variableNotFound(stmt.Name, stmt.NameSpan)
		}
		if !variable.Mutable {
			return value.Empty(), shellerr.New(shellerr.AssignmentRequiresMutable, "Assignment to an immutable variable").
				WithLabel("needs to be a mutable variable", stmt.NameSpan).
				WithHelp(fmt.Sprintf("declare it with `mut %s`", stmt.Name))
		}
		v, err := e.evalPipelineValue(ctx, stmt.Value)
		if err != nil {
			return value.Empty(), err
		}
		variable.Value = v
		return value.Empty(), nil

	case *ast.Def:
		decl := &Decl{
			Name:      stmt.Name,
			Kind:      DeclCustom,
			Signature: stmt.Signature,
			DeclSpan:  stmt.Span,
			BlockID:   e.AddBlock(stmt.Body),
		}
		e.Decls.Bind(stmt.Name, decl)
		// Captured after binding so the body can call itself.
		decl.Captures = e.capture()
		return value.Empty(), nil

	case *ast.Alias:
		return value.Empty(), e.defineAlias(stmt)

	case *ast.Extern:
		e.Decls.Bind(stmt.Name, &Decl{
			Name:      stmt.Name,
			Kind:      DeclKnownExternal,
			Signature: stmt.Signature,
			DeclSpan:  stmt.Span,
		})
		return value.Empty(), nil

	case *ast.Hide:
		if !e.Decls.Hide(stmt.Name) {
			return value.Empty(), shellerr.Newf(shellerr.DeclNotFound, "Cannot hide `%s`", stmt.Name).
				WithLabel("not a visible command", stmt.Span)
		}
		return value.Empty(), nil
	}

	return value.Empty(), shellerr.Newf(shellerr.GenericError, "unsupported statement %T", stmt).
		WithLabel("unsupported", stmt.StmtSpan())
}

func (e *Engine) defineAlias(stmt *ast.Alias) error {
	target := &AliasTarget{Call: stmt.Target}
	sig := signature.New(stmt.Name).SetRest("args", signature.ShapeAny, "arguments appended to the aliased call")

	if id, decl, ok := e.Resolve(stmt.Target.Name); ok && !stmt.Target.External {
		target.Target = id
		sig = decl.Signature.Clone(stmt.Name)
	} else {
		target.External = true
	}

	e.Decls.Bind(stmt.Name, &Decl{
		Name:      stmt.Name,
		Kind:      DeclAlias,
		Signature: sig,
		DeclSpan:  stmt.Span,
		Alias:     target,
	})
	return nil
}

func (e *Engine) evalPipeline(ctx context.Context, p *ast.Pipeline, input value.PipelineData) (value.PipelineData, error) {
	data := input
	for _, el := range p.Elements {
		next, err := e.evalElement(ctx, el, data)
		if err != nil {
			data.Close()
			return value.Empty(), err
		}
		data = next
	}
	return data, nil
}

// evalPipelineValue runs a pipeline with no input and materializes it.
func (e *Engine) evalPipelineValue(ctx context.Context, p *ast.Pipeline) (value.Value, error) {
	data, err := e.evalPipeline(ctx, p, value.Empty())
	if err != nil {
		return nil, err
	}
	return data.IntoValue(p.Span)
}

func (e *Engine) evalElement(ctx context.Context, el ast.Element, input value.PipelineData) (value.PipelineData, error) {
	if el.Call != nil {
		return e.evalCall(ctx, el.Call, input)
	}
	if x, ok := el.Expr.(*ast.If); ok {
		return e.evalIf(ctx, x, input)
	}

	input.Close()
	v, err := e.evalExpr(ctx, el.Expr)
	if err != nil {
		return value.Empty(), err
	}
	return value.FromValue(v), nil
}

// evalIf takes the first branch whose condition holds, or the else block.
// Each branch runs in its own frame, so only assignments to variables from
// enclosing frames outlive it.
func (e *Engine) evalIf(ctx context.Context, x *ast.If, input value.PipelineData) (value.PipelineData, error) {
	for _, br := range x.Branches {
		cond, err := e.evalExpr(ctx, br.Cond)
		if err != nil {
			return value.Empty(), err
		}
		ok, err := value.AsBool(cond)
		if err != nil {
			return value.Empty(), err
		}
		if ok {
			return e.evalScoped(ctx, br.Body, input)
		}
	}
	if x.Else != nil {
		return e.evalScoped(ctx, x.Else, input)
	}
	input.Close()
	return value.Empty(), nil
}

func (e *Engine) evalExpr(ctx context.Context, expr ast.Expr) (value.Value, error) {
	switch expr := expr.(type) {
	case *ast.Literal:
		return expr.Value, nil

	case *ast.VarRef:
		variable, ok := e.Variable(expr.Name)
		if !ok {
			return nil, variableNotFound(expr.Name, expr.Span)
		}
		if variable.Value == nil {
			return value.NewNothing(expr.Span), nil
		}
		return variable.Value, nil

	case *ast.BinaryOp:
		lhs, err := e.evalExpr(ctx, expr.Left)
		if err != nil {
			return nil, err
		}
		rhs, err := e.evalExpr(ctx, expr.Right)
		if err != nil {
			return nil, err
		}
		return binaryOp(expr.Op, lhs, rhs, expr.Span)

	case *ast.ListExpr:
		items := make([]value.Value, 0, len(expr.Items))
		for _, item := range expr.Items {
			v, err := e.evalExpr(ctx, item)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return value.NewList(items, expr.Span), nil

	case *ast.ClosureExpr:
		return value.NewClosure(e.AddBlock(expr.Body), e.capture(), expr.Span), nil

	case *ast.If:
		data, err := e.evalIf(ctx, expr, value.Empty())
		if err != nil {
			return nil, err
		}
		return data.IntoValue(expr.Span)
	}

	return nil, shellerr.Newf(shellerr.GenericError, "unsupported expression %T", expr).
		WithLabel("unsupported", expr.ExprSpan())
}

// evalArgs evaluates call-site arguments in order.
func (e *Engine) evalArgs(ctx context.Context, args []ast.Arg) ([]signature.Arg, error) {
	out := make([]signature.Arg, 0, len(args))
	for _, a := range args {
		arg := signature.Arg{Span: a.Span, Long: a.Long, Short: a.Short}
		if a.Value != nil {
			v, err := e.evalExpr(ctx, a.Value)
			if err != nil {
				return nil, err
			}
			arg.Value = v
		}
		out = append(out, arg)
	}
	return out, nil
}

func variableNotFound(name string, sp span.Span) error {
	return shellerr.Newf(shellerr.VariableNotFound, "Variable `$%s` not found", name).
		WithLabel("variable not found", sp)
}
