// Package ast is the syntax tree handed from the front end to the engine.
package ast

import (
	"fmt"

	"github.com/josephlewis42/pipeshell/core/signature"
	"github.com/josephlewis42/pipeshell/core/span"
	"github.com/josephlewis42/pipeshell/core/value"
)

// Block is a sequence of statements evaluated in its own scope frame.
type Block struct {
	Stmts []Stmt
	Span  span.Span
}

// Stmt is one of Pipeline, Let, Assign, Def, Alias, Extern or Hide.
type Stmt interface {
	StmtSpan() span.Span
	isStmt()
}

// Expr is one of Literal, VarRef, BinaryOp, ListExpr, ClosureExpr or If.
type Expr interface {
	ExprSpan() span.Span
	isExpr()
}

// Element is a pipeline stage: either a command call or an expression.
type Element struct {
	Call *Call
	Expr Expr
}

func (e Element) Span() span.Span {
	if e.Call != nil {
		return e.Call.Span
	}
	return e.Expr.ExprSpan()
}

// Pipeline threads the output of each element into the next.
type Pipeline struct {
	Elements []Element
	Span     span.Span
}

// Let introduces a variable in the current frame.
type Let struct {
	Name     string
	NameSpan span.Span
	Mutable  bool
	Init     *Pipeline
	Span     span.Span
}

// Assign stores into an existing mutable variable.
type Assign struct {
	Name     string
	NameSpan span.Span
	Value    *Pipeline
	Span     span.Span
}

// Def declares a custom command.
type Def struct {
	Name      string
	Signature *signature.Signature
	Body      *Block
	Span      span.Span
}

// Alias binds Name to a call with pre-filled arguments.
type Alias struct {
	Name   string
	Target *Call
	Span   span.Span
}

// Extern declares the signature of an external program.
type Extern struct {
	Name      string
	Signature *signature.Signature
	Span      span.Span
}

// Hide removes Name from view for the rest of the current frame.
type Hide struct {
	Name string
	Span span.Span
}

func (s *Pipeline) StmtSpan() span.Span { return s.Span }
func (s *Let) StmtSpan() span.Span      { return s.Span }
func (s *Assign) StmtSpan() span.Span   { return s.Span }
func (s *Def) StmtSpan() span.Span      { return s.Span }
func (s *Alias) StmtSpan() span.Span    { return s.Span }
func (s *Extern) StmtSpan() span.Span   { return s.Span }
func (s *Hide) StmtSpan() span.Span     { return s.Span }

func (*Pipeline) isStmt() {}
func (*Let) isStmt()      {}
func (*Assign) isStmt()   {}
func (*Def) isStmt()      {}
func (*Alias) isStmt()    {}
func (*Extern) isStmt()   {}
func (*Hide) isStmt()     {}

// Call invokes a command by name.
type Call struct {
	Name string
	Head span.Span
	Args []Arg
	// External forces lookup on PATH, skipping declarations (`^name`).
	External bool
	Span     span.Span
}

// Arg is a call-site argument. Flags set Long or Short; Value is nil for a
// flag written without `=value`.
type Arg struct {
	Long  string
	Short rune
	Value Expr
	Span  span.Span
}

// Literal is a constant.
type Literal struct {
	Value value.Value
}

// VarRef reads a variable ($name).
type VarRef struct {
	Name string
	Span span.Span
}

// BinaryOp applies Op to two operands.
type BinaryOp struct {
	Op          Operator
	Left, Right Expr
	Span        span.Span
}

// ListExpr builds a list.
type ListExpr struct {
	Items []Expr
	Span  span.Span
}

// ClosureExpr creates a closure over Body.
type ClosureExpr struct {
	Body *Block
	Span span.Span
}

// If is a conditional chain. Else may be nil.
type If struct {
	Branches []Branch
	Else     *Block
	Span     span.Span
}

// Branch is one `if`/`else if` arm.
type Branch struct {
	Cond Expr
	Body *Block
}

func (e *Literal) ExprSpan() span.Span     { return e.Value.Span() }
func (e *VarRef) ExprSpan() span.Span      { return e.Span }
func (e *BinaryOp) ExprSpan() span.Span    { return e.Span }
func (e *ListExpr) ExprSpan() span.Span    { return e.Span }
func (e *ClosureExpr) ExprSpan() span.Span { return e.Span }
func (e *If) ExprSpan() span.Span          { return e.Span }

func (*Literal) isExpr()     {}
func (*VarRef) isExpr()      {}
func (*BinaryOp) isExpr()    {}
func (*ListExpr) isExpr()    {}
func (*ClosureExpr) isExpr() {}
func (*If) isExpr()          {}

// Operator is a binary operator.
type Operator int

const (
	OpLt Operator = iota
	OpLe
	OpGt
	OpGe
	OpEq
	OpNe
	OpAdd
	OpSub
	OpMul
	OpDiv
)

var operatorText = map[Operator]string{
	OpLt:  "<",
	OpLe:  "<=",
	OpGt:  ">",
	OpGe:  ">=",
	OpEq:  "==",
	OpNe:  "!=",
	OpAdd: "+",
	OpSub: "-",
	OpMul: "*",
	OpDiv: "/",
}

func (o Operator) String() string {
	if s, ok := operatorText[o]; ok {
		return s
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// ParseOperator recognizes operator text.
func ParseOperator(s string) (Operator, bool) {
	for op, text := range operatorText {
		if text == s {
			return op, true
		}
	}
	return 0, false
}
