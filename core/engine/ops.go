package engine

import (
	"fmt"

	"github.com/josephlewis42/pipeshell/core/ast"
	"github.com/josephlewis42/pipeshell/core/shellerr"
	"github.com/josephlewis42/pipeshell/core/span"
	"github.com/josephlewis42/pipeshell/core/value"
)

func binaryOp(op ast.Operator, lhs, rhs value.Value, sp span.Span) (value.Value, error) {
	switch op {
	case ast.OpEq:
		return value.NewBool(value.Equal(lhs, rhs), sp), nil
	case ast.OpNe:
		return value.NewBool(!value.Equal(lhs, rhs), sp), nil
	case ast.OpLt, ast.OpLe, ast.OpGt, ast.OpGe:
		cmp, err := value.Compare(lhs, rhs)
		if err != nil {
			return nil, err
		}
		var ok bool
		switch op {
		case ast.OpLt:
			ok = cmp < 0
		case ast.OpLe:
			ok = cmp <= 0
		case ast.OpGt:
			ok = cmp > 0
		case ast.OpGe:
			ok = cmp >= 0
		}
		return value.NewBool(ok, sp), nil
	}

	if l, ok := lhs.(value.String); ok && op == ast.OpAdd {
		if r, ok := rhs.(value.String); ok {
			return value.NewString(l.Val+r.Val, sp), nil
		}
	}

	li, lInt := lhs.(value.Int)
	ri, rInt := rhs.(value.Int)
	if lInt && rInt {
		switch op {
		case ast.OpAdd:
			return value.NewInt(li.Val+ri.Val, sp), nil
		case ast.OpSub:
			return value.NewInt(li.Val-ri.Val, sp), nil
		case ast.OpMul:
			return value.NewInt(li.Val*ri.Val, sp), nil
		case ast.OpDiv:
			if ri.Val == 0 {
				return nil, divideByZero(rhs)
			}
			if li.Val%ri.Val == 0 {
				return value.NewInt(li.Val/ri.Val, sp), nil
			}
			return value.NewFloat(float64(li.Val)/float64(ri.Val), sp), nil
		}
	}

	lf, lNum := toFloat(lhs)
	rf, rNum := toFloat(rhs)
	if !lNum || !rNum {
		return nil, shellerr.New(shellerr.TypeMismatch, "Type mismatch during operation").
			WithLabel(fmt.Sprintf("%s %s %s is not supported", lhs.Kind(), op, rhs.Kind()), sp)
	}
	switch op {
	case ast.OpAdd:
		return value.NewFloat(lf+rf, sp), nil
	case ast.OpSub:
		return value.NewFloat(lf-rf, sp), nil
	case ast.OpMul:
		return value.NewFloat(lf*rf, sp), nil
	case ast.OpDiv:
		if rf == 0 {
			return nil, divideByZero(rhs)
		}
		return value.NewFloat(lf/rf, sp), nil
	}
	return nil, shellerr.Newf(shellerr.GenericError, "unknown operator %s", op).WithLabel("here", sp)
}

func toFloat(v value.Value) (float64, bool) {
	switch v := v.(type) {
	case value.Int:
		return float64(v.Val), true
	case value.Float:
		return v.Val, true
	}
	return 0, false
}

func divideByZero(rhs value.Value) error {
	return shellerr.New(shellerr.GenericError, "Division by zero").
		WithLabel("division by zero", rhs.Span())
}
