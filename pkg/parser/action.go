package parser

import (
	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/lexer"
)

// parseVarRef parses either a bare pattern-bound variable name or a `#name`
// / `#"quoted"` session-variable-or-literal-id reference, both of
// which name-resolve to the same string-keyed Action field at this AST
// layer; resolving `#foo` against session bindings vs. a literal GlyphId is
// the analyzer's job, not the parser's.
func (p *parser) parseVarRef() (string, error) {
	if p.isPunct("#") {
		p.advance()
		t := p.cur()
		if t.Kind == lexer.String {
			p.advance()
			return t.Text, nil
		}
		return p.expectIdent()
	}
	return p.expectIdent()
}

// parseIDExpr parses a `#name` or `#"quoted"` id reference used where an
// Expr is grammatically required (INSPECT's target, WALK's start points,
// INVOKE's binding values).
func (p *parser) parseIDExpr() (ast.Expr, error) {
	sp := p.span()
	if _, err := p.expectPunct("#"); err != nil {
		return nil, err
	}
	t := p.cur()
	if t.Kind == lexer.String {
		p.advance()
		return ast.Literal{Base: ast.Base{Span: sp}, Kind: ast.LitString, Raw: t.Text}, nil
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return ast.Ident{Base: ast.Base{Span: sp}, Name: name}, nil
}

// parseAttrAssigns parses an optional `{ a1=e1, a2=e2, ... }` property map,
// shared by SPAWN, LINK, and the block form of SET.
func (p *parser) parseAttrAssigns() ([]ast.AttrAssign, error) {
	if !p.isPunct("{") {
		return nil, nil
	}
	p.advance()
	var out []ast.AttrAssign
	for !p.isPunct("}") {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct("="); err != nil {
			return nil, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		out = append(out, ast.AttrAssign{Attr: name, Expr: e})
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return out, nil
}

// parseAction parses one mutation step: SPAWN, LINK, UNLINK, KILL, or SET.
func (p *parser) parseAction() (ast.Action, error) {
	switch {
	case p.isKeyword("spawn"):
		return p.parseSpawnAction()
	case p.isKeyword("link"):
		return p.parseLinkAction()
	case p.isKeyword("unlink"):
		return p.parseUnlinkAction()
	case p.isKeyword("kill"):
		return p.parseKillAction()
	case p.isKeyword("set"):
		return p.parseSetAction()
	default:
		return nil, p.errorf("expected SPAWN/LINK/UNLINK/KILL/SET, got %q", p.cur().Text)
	}
}

func (p *parser) parseSpawnAction() (ast.Action, error) {
	sp := p.span()
	p.advance() // 'spawn'
	v, err := p.parseVarRef()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectPunct(":"); err != nil {
		return nil, err
	}
	typ, err := p.typeRef()
	if err != nil {
		return nil, err
	}
	attrs, err := p.parseAttrAssigns()
	if err != nil {
		return nil, err
	}
	return ast.SpawnAction{Base: ast.Base{Span: sp}, Var: v, Type: typ, Attrs: attrs}, nil
}

func (p *parser) parseLinkAction() (ast.Action, error) {
	sp := p.span()
	p.advance() // 'link'
	ifNotExists := false
	if p.isKeyword("if") {
		p.advance()
		if _, err := p.expectKeyword("not"); err != nil {
			return nil, err
		}
		if _, err := p.expectKeyword("exists"); err != nil {
			return nil, err
		}
		ifNotExists = true
	}
	edgeType, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var targets []string
	for !p.isPunct(")") {
		t, err := p.parseVarRef()
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	alias := ""
	if p.eatKeyword("as") {
		alias, err = p.expectIdent()
		if err != nil {
			return nil, err
		}
	}
	attrs, err := p.parseAttrAssigns()
	if err != nil {
		return nil, err
	}
	return ast.LinkAction{
		Base: ast.Base{Span: sp}, IfNotExists: ifNotExists, EdgeType: edgeType,
		Targets: targets, Alias: alias, Attrs: attrs,
	}, nil
}

func (p *parser) parseUnlinkAction() (ast.Action, error) {
	sp := p.span()
	p.advance() // 'unlink'
	name, err := p.parseVarRef()
	if err != nil {
		return nil, err
	}
	if p.isPunct("(") {
		p.advance()
		var targets []string
		for !p.isPunct(")") {
			t, err := p.parseVarRef()
			if err != nil {
				return nil, err
			}
			targets = append(targets, t)
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return ast.UnlinkAction{Base: ast.Base{Span: sp}, EdgeType: name, Targets: targets}, nil
	}
	return ast.UnlinkAction{Base: ast.Base{Span: sp}, EdgeVar: name}, nil
}

func (p *parser) parseKillAction() (ast.Action, error) {
	sp := p.span()
	p.advance() // 'kill'
	v, err := p.parseVarRef()
	if err != nil {
		return nil, err
	}
	k := ast.KillAction{Base: ast.Base{Span: sp}, Var: v}
	if p.eatKeyword("cascade") {
		k.Cascade = true
	} else if p.isKeyword("no") {
		p.advance()
		if _, err := p.expectKeyword("cascade"); err != nil {
			return nil, err
		}
		k.NoCascade = true
	}
	if p.eatKeyword("force") {
		k.Force = true
	}
	return k, nil
}

func (p *parser) parseSetAction() (ast.Action, error) {
	sp := p.span()
	p.advance() // 'set'
	v, err := p.parseVarRef()
	if err != nil {
		return nil, err
	}
	if p.isPunct(".") {
		p.advance()
		attr, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct("="); err != nil {
			return nil, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return ast.SetAction{Base: ast.Base{Span: sp}, Var: v, Attrs: []ast.AttrAssign{{Attr: attr, Expr: e}}}, nil
	}
	attrs, err := p.parseAttrAssigns()
	if err != nil {
		return nil, err
	}
	return ast.SetAction{Base: ast.Base{Span: sp}, Var: v, Attrs: attrs}, nil
}
