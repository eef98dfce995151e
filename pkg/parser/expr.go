package parser

import (
	"strings"

	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/lexer"
)

// aggregateFuncs names the functions that take a pattern (rather than an
// expression list) when used in correlated form, e.g.
// `COUNT(p: Person, assigned_to(t, p)) > 2`.
var aggregateFuncs = map[string]bool{"count": true, "collect": true}

// parseExpr parses a full boolean/scalar expression: the entry point for
// WHERE clauses, constraint conditions, SET right-hand sides, and defaults.
func (p *parser) parseExpr() (ast.Expr, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (ast.Expr, error) {
	lhs, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("or") {
		sp := p.span()
		p.advance()
		rhs, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		lhs = ast.BinaryExpr{Op: ast.OpOr, Lhs: lhs, Rhs: rhs}
		_ = sp
	}
	return lhs, nil
}

func (p *parser) parseAnd() (ast.Expr, error) {
	lhs, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("and") {
		p.advance()
		rhs, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		lhs = ast.BinaryExpr{Op: ast.OpAnd, Lhs: lhs, Rhs: rhs}
	}
	return lhs, nil
}

func (p *parser) parseEquality() (ast.Expr, error) {
	lhs, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for {
		var op ast.BinaryOp
		switch {
		case p.isPunct("=") || p.isPunct("=="):
			op = ast.OpEq
		case p.isPunct("!="):
			op = ast.OpNeq
		default:
			return lhs, nil
		}
		p.advance()
		rhs, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		lhs = ast.BinaryExpr{Op: op, Lhs: lhs, Rhs: rhs}
	}
}

func (p *parser) parseRelational() (ast.Expr, error) {
	lhs, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		var op ast.BinaryOp
		switch {
		case p.isPunct("<="):
			op = ast.OpLte
		case p.isPunct(">="):
			op = ast.OpGte
		case p.isPunct("<"):
			op = ast.OpLt
		case p.isPunct(">"):
			op = ast.OpGt
		case p.isKeyword("in"):
			op = ast.OpIn
		case p.isKeyword("match"):
			op = ast.OpMatch
		default:
			return lhs, nil
		}
		p.advance()
		rhs, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		lhs = ast.BinaryExpr{Op: op, Lhs: lhs, Rhs: rhs}
	}
}

func (p *parser) parseAdditive() (ast.Expr, error) {
	lhs, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op ast.BinaryOp
		switch {
		case p.isPunct("+"):
			op = ast.OpAdd
		case p.isPunct("-"):
			op = ast.OpSub
		default:
			return lhs, nil
		}
		p.advance()
		rhs, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		lhs = ast.BinaryExpr{Op: op, Lhs: lhs, Rhs: rhs}
	}
}

func (p *parser) parseMultiplicative() (ast.Expr, error) {
	lhs, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op ast.BinaryOp
		switch {
		case p.isPunct("*"):
			op = ast.OpMul
		case p.isPunct("/"):
			op = ast.OpDiv
		default:
			return lhs, nil
		}
		p.advance()
		rhs, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		lhs = ast.BinaryExpr{Op: op, Lhs: lhs, Rhs: rhs}
	}
}

func (p *parser) parseUnary() (ast.Expr, error) {
	sp := p.span()
	if p.isKeyword("not") {
		// NOT EXISTS(...) is a distinct primary (ExistsExpr.Negated); plain
		// `not expr` is a UnaryExpr.
		if p.peekAt(1).Kind == lexer.Keyword && strings.EqualFold(p.peekAt(1).Text, "exists") {
			return p.parseExistsExpr()
		}
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.UnaryExpr{Base: ast.Base{Span: sp}, Op: ast.OpNot, Operand: operand}, nil
	}
	if p.isPunct("-") {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.UnaryExpr{Base: ast.Base{Span: sp}, Op: ast.OpNeg, Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parseExistsExpr() (ast.Expr, error) {
	sp := p.span()
	negated := p.eatKeyword("not")
	if _, err := p.expectKeyword("exists"); err != nil {
		return nil, err
	}
	if _, err := p.expectPunct("("); err != nil {
		return nil, err
	}
	pat, err := p.parsePattern()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return ast.ExistsExpr{Base: ast.Base{Span: sp}, Negated: negated, Pattern: pat}, nil
}

func (p *parser) parsePrimary() (ast.Expr, error) {
	sp := p.span()
	t := p.cur()

	switch {
	case p.isKeyword("exists"):
		return p.parseExistsExpr()
	case p.isKeyword("null"):
		p.advance()
		return ast.Literal{Base: ast.Base{Span: sp}, Kind: ast.LitNull}, nil
	case p.isKeyword("true"):
		p.advance()
		return ast.Literal{Base: ast.Base{Span: sp}, Kind: ast.LitBool, Raw: true}, nil
	case p.isKeyword("false"):
		p.advance()
		return ast.Literal{Base: ast.Base{Span: sp}, Kind: ast.LitBool, Raw: false}, nil
	case t.Kind == lexer.String:
		p.advance()
		return ast.Literal{Base: ast.Base{Span: sp}, Kind: ast.LitString, Raw: t.Text}, nil
	case t.Kind == lexer.Int:
		p.advance()
		n, err := parseInt(t)
		if err != nil {
			return nil, p.wrapSyntax(err, sp)
		}
		return ast.Literal{Base: ast.Base{Span: sp}, Kind: ast.LitInt, Raw: n}, nil
	case t.Kind == lexer.Float:
		p.advance()
		f, err := parseFloat(t)
		if err != nil {
			return nil, p.wrapSyntax(err, sp)
		}
		return ast.Literal{Base: ast.Base{Span: sp}, Kind: ast.LitFloat, Raw: f}, nil
	case t.Kind == lexer.Timestamp:
		p.advance()
		ts, err := parseTimestamp(t.Text)
		if err != nil {
			return nil, p.wrapSyntax(err, sp)
		}
		return ast.Literal{Base: ast.Base{Span: sp}, Kind: ast.LitTimestamp, Raw: ts}, nil
	case t.Kind == lexer.Duration:
		p.advance()
		d, err := parseDuration(t.Text)
		if err != nil {
			return nil, p.wrapSyntax(err, sp)
		}
		return ast.Literal{Base: ast.Base{Span: sp}, Kind: ast.LitDuration, Raw: d}, nil
	case p.isPunct("("):
		p.advance()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return inner, nil
	case p.isPunct("$"):
		p.advance()
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return ast.ParamRef{Base: ast.Base{Span: sp}, Name: name}, nil
	case t.Kind == lexer.Ident || t.Kind == lexer.Keyword:
		return p.parseIdentLike(sp)
	default:
		return nil, p.errorf("unexpected token %q in expression", t.Text)
	}
}

func (p *parser) wrapSyntax(err error, sp ast.Span) error {
	return p.errorf("invalid literal: %v", err)
}

// parseIdentLike resolves the ambiguity between a bare variable, an
// attribute access (`v.attr`), and a function/aggregate call
// (`now()`, `count(...)`, `coalesce(a,b)`).
func (p *parser) parseIdentLike(sp ast.Span) (ast.Expr, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if p.isPunct("(") {
		return p.parseFuncCallOrAggregate(sp, name)
	}
	if p.isPunct(".") {
		p.advance()
		attr, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return ast.AttrAccess{Base: ast.Base{Span: sp}, Var: name, Attr: attr}, nil
	}
	return ast.Ident{Base: ast.Base{Span: sp}, Name: name}, nil
}

func (p *parser) parseFuncCallOrAggregate(sp ast.Span, name string) (ast.Expr, error) {
	p.advance() // '('
	if p.isPunct(")") {
		p.advance()
		return ast.FuncCall{Base: ast.Base{Span: sp}, Name: name}, nil
	}
	if aggregateFuncs[strings.ToLower(name)] && p.looksLikePatternStart() {
		pat, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		var project ast.Expr
		if p.isPunct(",") {
			p.advance()
			project, err = p.parseExpr()
			if err != nil {
				return nil, err
			}
		}
		if _, err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return ast.AggregateExpr{Base: ast.Base{Span: sp}, Fn: name, Pattern: pat, Project: project}, nil
	}
	var args []ast.Expr
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return ast.FuncCall{Base: ast.Base{Span: sp}, Name: name, Args: args}, nil
}

// looksLikePatternStart peeks for the shape that distinguishes a correlated
// aggregate's pattern argument (`v: Type`, `v: Type, ...` or `edgeName(...)`)
// from a plain expression argument list.
func (p *parser) looksLikePatternStart() bool {
	t0 := p.cur()
	if t0.Kind != lexer.Ident {
		return false
	}
	t1 := p.peekAt(1)
	if t1.Kind == lexer.Punct && t1.Text == ":" {
		return true
	}
	if t1.Kind == lexer.Punct && (t1.Text == "(" || t1.Text == "+" || t1.Text == "*") {
		return true
	}
	return false
}
