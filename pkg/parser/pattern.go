package parser

import (
	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/lexer"
)

// parsePattern parses a comma-separated list of node/edge pattern elements
// followed by an optional WHERE clause. It is shared by MATCH,
// OPTIONAL MATCH, EXISTS/NOT EXISTS, correlated aggregates, constraint
// patterns, and rule patterns.
func (p *parser) parsePattern() (*ast.Pattern, error) {
	sp := p.span()
	pat := &ast.Pattern{Span: sp}
	for {
		if err := p.parsePatternElement(pat); err != nil {
			return nil, err
		}
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	if p.isKeyword("where") {
		p.advance()
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		pat.Where = where
	}
	return pat, nil
}

// parsePatternElement parses one node pattern (`v: T`, or a bare `v`
// referencing an outer/already-bound variable) or one edge pattern
// (`E[+|*](v1, v2, ...) [AS alias] [[depth:a..b]]`).
func (p *parser) parsePatternElement(pat *ast.Pattern) error {
	sp := p.span()
	name, err := p.expectIdent()
	if err != nil {
		return err
	}

	transitive := ast.TransitiveNone
	if p.isPunct("+") && p.peekAt(1).Kind == lexer.Punct && p.peekAt(1).Text == "(" {
		transitive = ast.TransitivePlus
		p.advance()
	} else if p.isPunct("*") && p.peekAt(1).Kind == lexer.Punct && p.peekAt(1).Text == "(" {
		transitive = ast.TransitiveStar
		p.advance()
	}

	if p.isPunct("(") {
		p.advance()
		var positions []string
		for !p.isPunct(")") {
			pos, err := p.expectIdent()
			if err != nil {
				return err
			}
			positions = append(positions, pos)
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expectPunct(")"); err != nil {
			return err
		}
		ep := ast.EdgePattern{Span: sp, EdgeType: name, Positions: positions, Transitive: transitive}
		if p.eatKeyword("as") {
			alias, err := p.expectIdent()
			if err != nil {
				return err
			}
			ep.Alias = alias
		}
		if p.isPunct("[") {
			p.advance()
			if _, err := p.expectKeyword("depth"); err != nil {
				return err
			}
			if _, err := p.expectPunct(":"); err != nil {
				return err
			}
			lo, err := p.expectInt()
			if err != nil {
				return err
			}
			hi := lo
			if p.isPunct("..") {
				p.advance()
				hi, err = p.expectInt()
				if err != nil {
					return err
				}
			}
			if _, err := p.expectPunct("]"); err != nil {
				return err
			}
			ep.MinDepth, ep.MaxDepth, ep.HasDepth = int(lo), int(hi), true
		}
		pat.Edges = append(pat.Edges, ep)
		return nil
	}

	np := ast.NodePattern{Span: sp, Var: name}
	if p.isPunct(":") {
		p.advance()
		typ, err := p.typeRef()
		if err != nil {
			return err
		}
		np.Type = typ
	}
	pat.Nodes = append(pat.Nodes, np)
	return nil
}

func (p *parser) expectInt() (int64, error) {
	t := p.cur()
	if t.Kind != lexer.Int {
		return 0, p.errorf("expected integer, got %q", t.Text)
	}
	p.advance()
	return parseInt(t)
}
