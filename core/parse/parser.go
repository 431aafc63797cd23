// Package parse turns source text into the syntax tree the engine
// evaluates. The grammar is deliberately narrow: statements, pipelines,
// calls with flags, conditionals and simple binary expressions.
package parse

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/josephlewis42/pipeshell/core/ast"
	"github.com/josephlewis42/pipeshell/core/shellerr"
	"github.com/josephlewis42/pipeshell/core/signature"
	"github.com/josephlewis42/pipeshell/core/span"
	"github.com/josephlewis42/pipeshell/core/value"
)

// DeclLookup reports whether a (possibly multi-word) command name is
// declared. It lets the parser read `view span 1 2` as a call to
// `view span` rather than `view` with two arguments.
type DeclLookup func(name string) bool

// Parse reads src, which the caller registered at offset base, into a block
// of top-level statements.
func Parse(src []byte, base int, isDecl DeclLookup) (*ast.Block, error) {
	toks, err := lex(src, base)
	if err != nil {
		return nil, err
	}
	if isDecl == nil {
		isDecl = func(string) bool { return false }
	}

	p := &parser{toks: toks, isDecl: isDecl, declared: map[string]bool{}}
	block, err := p.parseStmts(tokEOF)
	if err != nil {
		return nil, err
	}
	block.Span = span.New(base, base+len(src))
	return block, nil
}

type parser struct {
	toks   []token
	pos    int
	isDecl DeclLookup
	// declared holds names defined earlier in the same source, which the
	// engine hasn't seen yet.
	declared map[string]bool
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, unexpected(t, what)
	}
	return t, nil
}

func (p *parser) skipNewlines() {
	for p.peek().kind == tokNewline {
		p.next()
	}
}

// isKeyword reports whether t is the unquoted word kw.
func isKeyword(t token, kw string) bool {
	return t.kind == tokWord && !t.quoted && t.text == kw
}

func unexpected(t token, want string) error {
	found := t.kind.String()
	if t.kind == tokWord {
		found = fmt.Sprintf("`%s`", t.raw)
	}
	return shellerr.Newf(shellerr.ParseError, "Expected %s", want).
		WithLabel(fmt.Sprintf("found %s", found), t.sp)
}

func (p *parser) knows(name string) bool {
	return p.declared[name] || p.isDecl(name)
}

// parseStmts reads statements until the closing token, which is left
// unconsumed.
func (p *parser) parseStmts(end tokenKind) (*ast.Block, error) {
	block := &ast.Block{}
	for {
		for k := p.peek().kind; k == tokNewline || k == tokSemi; k = p.peek().kind {
			p.next()
		}
		if k := p.peek().kind; k == end || k == tokEOF {
			if k != end {
				return nil, unexpected(p.peek(), end.String())
			}
			return block, nil
		}

		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		block.Stmts = append(block.Stmts, stmt)

		switch t := p.peek(); t.kind {
		case tokNewline, tokSemi, end, tokEOF:
		default:
			return nil, unexpected(t, "end of statement")
		}
	}
}

func (p *parser) parseStmt() (ast.Stmt, error) {
	t := p.peek()
	switch {
	case isKeyword(t, "let"), isKeyword(t, "mut"):
		return p.parseLet()
	case isKeyword(t, "def"):
		return p.parseDef()
	case isKeyword(t, "extern"):
		return p.parseExtern()
	case isKeyword(t, "alias"):
		return p.parseAlias()
	case isKeyword(t, "hide"):
		p.next()
		name, err := p.parseName("a command name")
		if err != nil {
			return nil, err
		}
		return &ast.Hide{Name: name.text, Span: t.sp.Merge(name.sp)}, nil
	case t.kind == tokWord && !t.quoted && isVarName(t.text) && isKeyword(p.peekAt(1), "="):
		p.next()
		p.next()
		pipe, err := p.parsePipeline()
		if err != nil {
			return nil, err
		}
		return &ast.Assign{Name: t.text[1:], NameSpan: t.sp, Value: pipe, Span: t.sp.Merge(pipe.Span)}, nil
	}
	return p.parsePipeline()
}

func isVarName(s string) bool {
	if len(s) < 2 || s[0] != '$' {
		return false
	}
	for _, r := range s[1:] {
		if !(r == '_' || r == '-' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func (p *parser) parseName(what string) (token, error) {
	t := p.next()
	if t.kind != tokWord || t.text == "" || isKeyword(t, "=") {
		return t, unexpected(t, what)
	}
	return t, nil
}

func (p *parser) parseLet() (ast.Stmt, error) {
	kw := p.next()
	name, err := p.parseName("a variable name")
	if err != nil {
		return nil, err
	}
	if eq := p.next(); !isKeyword(eq, "=") {
		return nil, unexpected(eq, "`=`")
	}
	init, err := p.parsePipeline()
	if err != nil {
		return nil, err
	}
	return &ast.Let{
		Name:     strings.TrimPrefix(name.text, "$"),
		NameSpan: name.sp,
		Mutable:  kw.text == "mut",
		Init:     init,
		Span:     kw.sp.Merge(init.Span),
	}, nil
}

func (p *parser) parseDef() (ast.Stmt, error) {
	kw := p.next()
	name, err := p.parseName("a command name")
	if err != nil {
		return nil, err
	}
	sig, err := p.parseParams(name.text)
	if err != nil {
		return nil, err
	}
	body, err := p.parseBraced()
	if err != nil {
		return nil, err
	}
	p.declared[name.text] = true
	return &ast.Def{Name: name.text, Signature: sig, Body: body, Span: kw.sp.Merge(body.Span)}, nil
}

func (p *parser) parseExtern() (ast.Stmt, error) {
	kw := p.next()
	name, err := p.parseName("a command name")
	if err != nil {
		return nil, err
	}
	sig, err := p.parseParams(name.text)
	if err != nil {
		return nil, err
	}
	closing := p.toks[p.pos-1]
	p.declared[name.text] = true
	return &ast.Extern{Name: name.text, Signature: sig, Span: kw.sp.Merge(closing.sp)}, nil
}

func (p *parser) parseAlias() (ast.Stmt, error) {
	kw := p.next()
	name, err := p.parseName("an alias name")
	if err != nil {
		return nil, err
	}
	if eq := p.next(); !isKeyword(eq, "=") {
		return nil, unexpected(eq, "`=`")
	}
	if t := p.peek(); t.kind != tokWord {
		return nil, unexpected(t, "a command to alias")
	}
	target, err := p.parseCall()
	if err != nil {
		return nil, err
	}
	p.declared[name.text] = true
	return &ast.Alias{Name: name.text, Target: target, Span: kw.sp.Merge(target.Span)}, nil
}

// parseParams reads `[a b? ...rest --flag --named: string]`.
func (p *parser) parseParams(name string) (*signature.Signature, error) {
	if _, err := p.expect(tokLBracket, "a parameter list `[...]`"); err != nil {
		return nil, err
	}
	sig := signature.New(name)

	for {
		t := p.next()
		switch t.kind {
		case tokRBracket:
			return sig, nil
		case tokNewline, tokComma:
			continue
		case tokWord:
		default:
			return nil, unexpected(t, "a parameter")
		}

		param, shapeName := t.text, ""
		if i := strings.Index(param, ":"); i >= 0 {
			param, shapeName = param[:i], param[i+1:]
			if shapeName == "" {
				st, err := p.parseName("a parameter type")
				if err != nil {
					return nil, err
				}
				shapeName = st.text
			}
		}
		if err := addParam(sig, param, shapeName, t.sp); err != nil {
			return nil, err
		}
	}
}

func addParam(sig *signature.Signature, param, shapeName string, sp span.Span) error {
	shape := signature.ShapeAny
	if shapeName != "" {
		s, ok := signature.ParseShape(shapeName)
		if !ok {
			return shellerr.Newf(shellerr.ParseError, "Unknown type `%s`", shapeName).
				WithLabel("not a parameter type", sp)
		}
		shape = s
	}

	switch {
	case strings.HasPrefix(param, "--"):
		long, short := param[2:], rune(0)
		if i := strings.Index(long, "(-"); i >= 0 && strings.HasSuffix(long, ")") {
			short, _ = utf8.DecodeRuneInString(long[i+2:])
			long = long[:i]
		}
		if long == "" {
			return shellerr.New(shellerr.ParseError, "Flag without a name").WithLabel("expected --name", sp)
		}
		if shapeName == "" {
			sig.AddSwitch(long, short, "")
		} else {
			sig.AddNamed(long, shape, short, "")
		}
	case strings.HasPrefix(param, "..."):
		sig.SetRest(param[3:], shape, "")
	case strings.HasSuffix(param, "?"):
		sig.AddOptional(strings.TrimSuffix(param, "?"), shape, "")
	default:
		if len(sig.Optional) > 0 {
			return shellerr.New(shellerr.ParseError, "Required parameter after optional").
				WithLabel("move this before the optional parameters", sp)
		}
		sig.AddRequired(param, shape, "")
	}
	return nil
}

// parseBraced reads `{ stmts }`.
func (p *parser) parseBraced() (*ast.Block, error) {
	open, err := p.expect(tokLBrace, "`{`")
	if err != nil {
		return nil, err
	}
	block, err := p.parseStmts(tokRBrace)
	if err != nil {
		return nil, err
	}
	closing := p.next()
	block.Span = open.sp.Merge(closing.sp)
	return block, nil
}

func (p *parser) parsePipeline() (*ast.Pipeline, error) {
	pipe := &ast.Pipeline{}
	for {
		el, err := p.parseElement()
		if err != nil {
			return nil, err
		}
		pipe.Elements = append(pipe.Elements, el)
		if p.peek().kind != tokPipe {
			break
		}
		p.next()
		p.skipNewlines()
	}
	pipe.Span = pipe.Elements[0].Span().Merge(pipe.Elements[len(pipe.Elements)-1].Span())
	return pipe, nil
}

func (p *parser) parseElement() (ast.Element, error) {
	t := p.peek()
	switch {
	case isKeyword(t, "if"):
		x, err := p.parseIf()
		return ast.Element{Expr: x}, err
	case p.startsExpr(t):
		x, err := p.parseExpr()
		return ast.Element{Expr: x}, err
	case t.kind == tokWord:
		call, err := p.parseCall()
		return ast.Element{Call: call}, err
	}
	return ast.Element{}, unexpected(t, "a command or expression")
}

// startsExpr reports whether a pipeline element beginning with t is an
// expression rather than a call.
func (p *parser) startsExpr(t token) bool {
	switch t.kind {
	case tokLBracket, tokLBrace:
		return true
	case tokWord:
		if t.quoted || isVarName(t.text) {
			return true
		}
		_, ok := numberLiteral(t)
		return ok || t.text == "true" || t.text == "false" || t.text == "null"
	}
	return false
}

func (p *parser) parseIf() (*ast.If, error) {
	kw := p.next()
	x := &ast.If{}
	for {
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		body, err := p.parseBraced()
		if err != nil {
			return nil, err
		}
		x.Branches = append(x.Branches, ast.Branch{Cond: cond, Body: body})
		x.Span = kw.sp.Merge(body.Span)

		if !p.atElse() {
			return x, nil
		}
		p.skipNewlines()
		p.next()
		if isKeyword(p.peek(), "if") {
			p.next()
			continue
		}
		body, err = p.parseBraced()
		if err != nil {
			return nil, err
		}
		x.Else = body
		x.Span = kw.sp.Merge(body.Span)
		return x, nil
	}
}

// atElse looks past newlines for an `else` continuing the chain.
func (p *parser) atElse() bool {
	for i := 0; ; i++ {
		t := p.peekAt(i)
		if t.kind == tokNewline {
			continue
		}
		return isKeyword(t, "else")
	}
}

var precedence = map[ast.Operator]int{
	ast.OpLt: 1, ast.OpLe: 1, ast.OpGt: 1, ast.OpGe: 1, ast.OpEq: 1, ast.OpNe: 1,
	ast.OpAdd: 2, ast.OpSub: 2,
	ast.OpMul: 3, ast.OpDiv: 3,
}

func (p *parser) parseExpr() (ast.Expr, error) {
	return p.parseBinary(1)
}

func (p *parser) operator() (ast.Operator, bool) {
	t := p.peek()
	if t.kind != tokWord || t.quoted {
		return 0, false
	}
	return ast.ParseOperator(t.text)
}

func (p *parser) parseBinary(minPrec int) (ast.Expr, error) {
	lhs, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.operator()
		if !ok || precedence[op] < minPrec {
			return lhs, nil
		}
		p.next()
		rhs, err := p.parseBinary(precedence[op] + 1)
		if err != nil {
			return nil, err
		}
		lhs = &ast.BinaryOp{Op: op, Left: lhs, Right: rhs, Span: lhs.ExprSpan().Merge(rhs.ExprSpan())}
	}
}

func (p *parser) parseAtom() (ast.Expr, error) {
	t := p.peek()
	switch t.kind {
	case tokLBrace:
		body, err := p.parseBraced()
		if err != nil {
			return nil, err
		}
		return &ast.ClosureExpr{Body: body, Span: body.Span}, nil
	case tokLBracket:
		return p.parseList()
	case tokWord:
		p.next()
		if !t.quoted && isVarName(t.text) {
			return &ast.VarRef{Name: t.text[1:], Span: t.sp}, nil
		}
		return &ast.Literal{Value: wordValue(t)}, nil
	}
	return nil, unexpected(t, "a value")
}

func (p *parser) parseList() (ast.Expr, error) {
	open := p.next()
	list := &ast.ListExpr{}
	for {
		switch t := p.peek(); t.kind {
		case tokNewline, tokComma:
			p.next()
			continue
		case tokRBracket:
			p.next()
			list.Span = open.sp.Merge(t.sp)
			return list, nil
		}
		item, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		list.Items = append(list.Items, item)
	}
}

// parseCall reads a command head and its arguments. The head takes a
// second word when the pair names a declaration.
func (p *parser) parseCall() (*ast.Call, error) {
	head := p.next()
	call := &ast.Call{Name: head.text, Head: head.sp}

	if !head.quoted && strings.HasPrefix(head.text, "^") && len(head.text) > 1 {
		call.Name = head.text[1:]
		call.External = true
	} else if second := p.peek(); second.kind == tokWord && !second.quoted && p.knows(head.text+" "+second.text) {
		p.next()
		call.Name = head.text + " " + second.text
		call.Head = head.sp.Merge(second.sp)
	}
	call.Span = call.Head

	for {
		t := p.peek()
		if t.kind != tokWord && t.kind != tokLBrace && t.kind != tokLBracket {
			return call, nil
		}

		args, err := p.parseArg()
		if err != nil {
			return nil, err
		}
		for _, a := range args {
			call.Args = append(call.Args, a)
			call.Span = call.Span.Merge(a.Span)
		}
	}
}

func (p *parser) parseArg() ([]ast.Arg, error) {
	t := p.peek()
	if t.kind == tokWord && !t.quoted && isFlag(t.text) {
		p.next()
		return flagArgs(t), nil
	}

	x, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	return []ast.Arg{{Value: x, Span: x.ExprSpan()}}, nil
}

func isFlag(s string) bool {
	if len(s) < 2 || s[0] != '-' {
		return false
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return false
	}
	return s != "--"
}

// flagArgs expands `--name`, `--name=value` and `-abc`.
func flagArgs(t token) []ast.Arg {
	if strings.HasPrefix(t.text, "--") {
		long := t.text[2:]
		arg := ast.Arg{Long: long, Span: t.sp}
		if i := strings.Index(long, "="); i >= 0 {
			arg.Long = long[:i]
			valueStart := t.sp.Start + len(t.raw) - len(long) + i + 1
			if valueStart > t.sp.End {
				valueStart = t.sp.End
			}
			vt := token{kind: tokWord, raw: long[i+1:], text: long[i+1:], sp: span.New(valueStart, t.sp.End)}
			arg.Value = &ast.Literal{Value: wordValue(vt)}
		}
		return []ast.Arg{arg}
	}

	var out []ast.Arg
	for _, r := range t.text[1:] {
		out = append(out, ast.Arg{Short: r, Span: t.sp})
	}
	return out
}

func numberLiteral(t token) (value.Value, bool) {
	if t.quoted || t.text == "" {
		return nil, false
	}
	if i, err := strconv.ParseInt(t.text, 10, 64); err == nil {
		return value.NewInt(i, t.sp), true
	}
	if strings.ContainsAny(t.text, ".eE") && !strings.ContainsAny(t.text, "xXpP_") {
		if f, err := strconv.ParseFloat(t.text, 64); err == nil {
			return value.NewFloat(f, t.sp), true
		}
	}
	return nil, false
}

// wordValue types a bare word. Quoted words are always strings.
func wordValue(t token) value.Value {
	if t.quoted {
		return value.NewString(t.text, t.sp)
	}
	if v, ok := numberLiteral(t); ok {
		return v
	}
	switch t.text {
	case "true":
		return value.NewBool(true, t.sp)
	case "false":
		return value.NewBool(false, t.sp)
	case "null":
		return value.NewNothing(t.sp)
	}
	return value.NewString(t.text, t.sp)
}
