package parser

import (
	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/lexer"
)

// ParseOntology parses a complete ontology DSL source file: either a single
// `ontology Name { ... }` block or a sequence of bare top-level
// declarations.
func ParseOntology(src string) (*ast.Ontology, error) {
	p := newParser(src)
	o, err := p.parseOntology()
	if err != nil {
		return nil, err
	}
	if !p.atEOF() {
		return nil, p.errorf("unexpected trailing input %q", p.cur().Text)
	}
	return o, nil
}

func (p *parser) parseOntology() (*ast.Ontology, error) {
	sp := p.span()
	o := &ast.Ontology{Span: sp}
	if p.isKeyword("ontology") {
		p.advance()
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		o.Name = name
		if _, err := p.expectPunct("{"); err != nil {
			return nil, err
		}
		if err := p.parseDecls(o); err != nil {
			return nil, err
		}
		if _, err := p.expectPunct("}"); err != nil {
			return nil, err
		}
		return o, nil
	}
	if err := p.parseDecls(o); err != nil {
		return nil, err
	}
	return o, nil
}

func (p *parser) parseDecls(o *ast.Ontology) error {
	for {
		p.cur() // force doc-skip bookkeeping so takeDoc() below sees it
		switch {
		case p.isKeyword("type"):
			ta, err := p.parseTypeAlias()
			if err != nil {
				return err
			}
			o.TypeAliases = append(o.TypeAliases, *ta)
		case p.isKeyword("node"):
			n, err := p.parseNodeDecl()
			if err != nil {
				return err
			}
			o.Nodes = append(o.Nodes, *n)
		case p.isKeyword("edge"):
			e, err := p.parseEdgeDecl()
			if err != nil {
				return err
			}
			o.Edges = append(o.Edges, *e)
		case p.isKeyword("constraint"):
			c, err := p.parseConstraintDecl()
			if err != nil {
				return err
			}
			o.Constraints = append(o.Constraints, *c)
		case p.isKeyword("rule"):
			r, err := p.parseRuleDecl()
			if err != nil {
				return err
			}
			o.Rules = append(o.Rules, *r)
		default:
			return nil
		}
		if !p.eatPunct(";") {
			p.eatPunct(".")
		}
	}
}

func (p *parser) parseTypeAlias() (*ast.TypeAliasDecl, error) {
	sp := p.span()
	p.advance() // 'type'
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectPunct("="); err != nil {
		return nil, err
	}
	var members []string
	for {
		m, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		members = append(members, m)
		if p.isPunct("|") {
			p.advance()
			continue
		}
		break
	}
	return &ast.TypeAliasDecl{Span: sp, Name: name, Members: members}, nil
}

// parseNodeDecl parses `node T [modifiers] [: Parent1, Parent2] { attrs }`.
func (p *parser) parseNodeDecl() (*ast.NodeTypeDecl, error) {
	doc := p.takeDoc()
	sp := p.span()
	p.advance() // 'node'
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	n := &ast.NodeTypeDecl{Span: sp, Doc: doc, Name: name}

	if p.isPunct("[") {
		p.advance()
		for !p.isPunct("]") {
			if p.eatKeyword("abstract") {
				n.Abstract = true
			} else if p.eatKeyword("sealed") {
				n.Sealed = true
			} else {
				return nil, p.errorf("unknown node modifier %q", p.cur().Text)
			}
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expectPunct("]"); err != nil {
			return nil, err
		}
	}

	if p.isPunct(":") {
		p.advance()
		for {
			parent, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			n.Parents = append(n.Parents, parent)
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
	}

	if _, err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	for !p.isPunct("}") {
		a, err := p.parseAttrDecl()
		if err != nil {
			return nil, err
		}
		n.Attrs = append(n.Attrs, *a)
		p.eatPunct(",")
		p.eatPunct(";")
	}
	if _, err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return n, nil
}

// parseAttrDecl parses one `doc? name: Type[?] [modifiers] [= default]` line.
func (p *parser) parseAttrDecl() (*ast.AttrDecl, error) {
	doc := p.takeDoc()
	sp := p.span()
	name, err := p.expectIdent()
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
	// Attributes are nullable unless [required]; the `?` suffix is the
	// explicit spelling of the default.
	a := &ast.AttrDecl{Span: sp, Doc: doc, Name: name, Type: typ, Nullable: true}
	if p.isPunct("?") {
		p.advance()
		a.Nullable = true
	}
	if p.isPunct("[") {
		p.advance()
		for !p.isPunct("]") {
			m, err := p.parseModifier()
			if err != nil {
				return nil, err
			}
			a.Modifiers = append(a.Modifiers, *m)
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expectPunct("]"); err != nil {
			return nil, err
		}
	}
	if p.isPunct("=") {
		p.advance()
		def, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		a.Default = def
	}
	for _, m := range a.Modifiers {
		if m.Kind == ast.ModRequired {
			a.Nullable = false
		}
	}
	return a, nil
}

// parseModifier parses one bracketed modifier token: required, unique,
// indexed(:asc|:desc), >=n, <=n, n..m, in:[...], match:"...", length:n..m,
// symmetric/sym, no_self, acyclic, `pos -> n..m`, on_kill_source:action,
// on_kill_target:action.
func (p *parser) parseModifier() (*ast.Modifier, error) {
	sp := p.span()
	switch {
	case p.eatKeyword("required"):
		return &ast.Modifier{Span: sp, Kind: ast.ModRequired}, nil
	case p.eatKeyword("unique"):
		return &ast.Modifier{Span: sp, Kind: ast.ModUnique}, nil
	case p.eatKeyword("indexed"):
		m := &ast.Modifier{Span: sp, Kind: ast.ModIndexed}
		if p.isPunct(":") {
			p.advance()
			if p.eatKeyword("desc") {
				m.Desc = true
			} else if _, err := p.expectKeyword("asc"); err != nil {
				return nil, err
			}
		}
		return m, nil
	case p.isKeyword("symmetric") || p.isKeyword("sym"):
		p.advance()
		return &ast.Modifier{Span: sp, Kind: ast.ModSymmetric}, nil
	case p.eatKeyword("no_self"):
		return &ast.Modifier{Span: sp, Kind: ast.ModNoSelf}, nil
	case p.eatKeyword("acyclic"):
		return &ast.Modifier{Span: sp, Kind: ast.ModAcyclic}, nil
	case p.eatKeyword("on_kill_source"):
		return p.parseOnKillModifier(sp, ast.ModOnKillSource)
	case p.eatKeyword("on_kill_target"):
		return p.parseOnKillModifier(sp, ast.ModOnKillTarget)
	case p.eatKeyword("in"):
		if _, err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		if _, err := p.expectPunct("["); err != nil {
			return nil, err
		}
		var vals []string
		for !p.isPunct("]") {
			t := p.cur()
			if t.Kind != lexer.String {
				return nil, p.errorf("expected string in [in:[...]], got %q", t.Text)
			}
			p.advance()
			vals = append(vals, t.Text)
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expectPunct("]"); err != nil {
			return nil, err
		}
		return &ast.Modifier{Span: sp, Kind: ast.ModIn, StrArgs: vals}, nil
	case p.eatKeyword("match"):
		if _, err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		t := p.cur()
		if t.Kind != lexer.String {
			return nil, p.errorf("expected string pattern after match:, got %q", t.Text)
		}
		p.advance()
		return &ast.Modifier{Span: sp, Kind: ast.ModMatch, StrArgs: []string{t.Text}}, nil
	case p.eatKeyword("length"):
		if _, err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		lo, err := p.expectInt()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct(".."); err != nil {
			return nil, err
		}
		hi, err := p.expectInt()
		if err != nil {
			return nil, err
		}
		return &ast.Modifier{Span: sp, Kind: ast.ModLength, IntArgs: []int64{lo, hi}}, nil
	case p.isPunct(">="):
		p.advance()
		n, err := p.expectInt()
		if err != nil {
			return nil, err
		}
		return &ast.Modifier{Span: sp, Kind: ast.ModMin, IntArgs: []int64{n}}, nil
	case p.isPunct("<="):
		p.advance()
		n, err := p.expectInt()
		if err != nil {
			return nil, err
		}
		return &ast.Modifier{Span: sp, Kind: ast.ModMax, IntArgs: []int64{n}}, nil
	case p.cur().Kind == lexer.Int:
		lo, err := p.expectInt()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct(".."); err != nil {
			return nil, err
		}
		hi, err := p.expectInt()
		if err != nil {
			return nil, err
		}
		return &ast.Modifier{Span: sp, Kind: ast.ModRange, IntArgs: []int64{lo, hi}}, nil
	case p.isIdent():
		// cardinality modifier: `position -> min..max` or `position -> n`.
		pos, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct("->"); err != nil {
			return nil, err
		}
		if p.isPunct(">=") {
			// `pos -> >= n` form: unbounded max
			p.advance()
			lo, err := p.expectInt()
			if err != nil {
				return nil, err
			}
			return &ast.Modifier{Span: sp, Kind: ast.ModCardinality, Position: pos, IntArgs: []int64{lo, -1}}, nil
		}
		lo, err := p.expectInt()
		if err != nil {
			return nil, err
		}
		hi := lo
		if p.isPunct("..") {
			p.advance()
			hi, err = p.expectInt()
			if err != nil {
				return nil, err
			}
		}
		return &ast.Modifier{Span: sp, Kind: ast.ModCardinality, Position: pos, IntArgs: []int64{lo, hi}}, nil
	default:
		return nil, p.errorf("unrecognized modifier near %q", p.cur().Text)
	}
}

func (p *parser) parseOnKillModifier(sp ast.Span, kind ast.ModifierKind) (*ast.Modifier, error) {
	if _, err := p.expectPunct(":"); err != nil {
		return nil, err
	}
	var action string
	switch {
	case p.eatKeyword("unlink"):
		action = "unlink"
	case p.eatKeyword("cascade"):
		action = "cascade"
	case p.eatKeyword("prevent"):
		action = "prevent"
	default:
		return nil, p.errorf("expected unlink|cascade|prevent, got %q", p.cur().Text)
	}
	return &ast.Modifier{Span: sp, Kind: kind, TargetArg: action}, nil
}

// parseEdgeDecl parses `edge E(p1: T1, p2: T2) [modifiers] { attrs }`.
func (p *parser) parseEdgeDecl() (*ast.EdgeTypeDecl, error) {
	doc := p.takeDoc()
	sp := p.span()
	p.advance() // 'edge'
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	e := &ast.EdgeTypeDecl{Span: sp, Doc: doc, Name: name}

	if _, err := p.expectPunct("("); err != nil {
		return nil, err
	}
	for !p.isPunct(")") {
		posName, err := p.expectIdent()
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
		e.Positions = append(e.Positions, ast.PositionDecl{Name: posName, Type: typ})
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expectPunct(")"); err != nil {
		return nil, err
	}

	if p.isPunct("[") {
		p.advance()
		for !p.isPunct("]") {
			m, err := p.parseModifier()
			if err != nil {
				return nil, err
			}
			e.Modifiers = append(e.Modifiers, *m)
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expectPunct("]"); err != nil {
			return nil, err
		}
	}

	if p.isPunct("{") {
		p.advance()
		for !p.isPunct("}") {
			a, err := p.parseAttrDecl()
			if err != nil {
				return nil, err
			}
			e.Attrs = append(e.Attrs, *a)
			p.eatPunct(",")
			p.eatPunct(";")
		}
		if _, err := p.expectPunct("}"); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// parseConstraintDecl parses
// `constraint Name [hard|soft|message:"..."]: pattern => expr`.
func (p *parser) parseConstraintDecl() (*ast.ConstraintDecl, error) {
	doc := p.takeDoc()
	sp := p.span()
	p.advance() // 'constraint'
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	cd := &ast.ConstraintDecl{Span: sp, Doc: doc, Name: name, Hard: true}

	if p.isPunct("[") {
		p.advance()
		for !p.isPunct("]") {
			switch {
			case p.eatKeyword("hard"):
				cd.Hard = true
			case p.eatKeyword("soft"):
				cd.Hard = false
			case p.eatKeyword("message"):
				if _, err := p.expectPunct(":"); err != nil {
					return nil, err
				}
				t := p.cur()
				if t.Kind != lexer.String {
					return nil, p.errorf("expected string after message:, got %q", t.Text)
				}
				p.advance()
				cd.Message = t.Text
			default:
				return nil, p.errorf("unknown constraint modifier %q", p.cur().Text)
			}
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expectPunct("]"); err != nil {
			return nil, err
		}
	}

	if _, err := p.expectPunct(":"); err != nil {
		return nil, err
	}
	pat, err := p.parsePatternNoWhere()
	if err != nil {
		return nil, err
	}
	cd.Pattern = *pat
	if _, err := p.expectPunct("=>"); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	cd.Condition = cond
	return cd, nil
}

// parsePatternNoWhere parses a constraint's pattern. It delegates to
// parsePattern, so an optional trailing WHERE is consumed into the
// pattern's Where field.
func (p *parser) parsePatternNoWhere() (*ast.Pattern, error) {
	return p.parsePattern()
}

// parseRuleDecl parses
// `rule Name [priority: N|auto|manual]: pattern => action, action, ...`.
func (p *parser) parseRuleDecl() (*ast.RuleDecl, error) {
	doc := p.takeDoc()
	sp := p.span()
	p.advance() // 'rule'
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	rd := &ast.RuleDecl{Span: sp, Doc: doc, Name: name, Auto: true}

	if p.isPunct("[") {
		p.advance()
		for !p.isPunct("]") {
			switch {
			case p.eatKeyword("priority"):
				if _, err := p.expectPunct(":"); err != nil {
					return nil, err
				}
				n, err := p.expectInt()
				if err != nil {
					return nil, err
				}
				rd.Priority = int(n)
			case p.eatKeyword("auto"):
				rd.Auto = true
			case p.eatKeyword("manual"):
				rd.Auto = false
			default:
				return nil, p.errorf("unknown rule modifier %q", p.cur().Text)
			}
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expectPunct("]"); err != nil {
			return nil, err
		}
	}

	if _, err := p.expectPunct(":"); err != nil {
		return nil, err
	}
	pat, err := p.parsePattern()
	if err != nil {
		return nil, err
	}
	rd.Pattern = *pat
	if _, err := p.expectPunct("=>"); err != nil {
		return nil, err
	}
	for {
		act, err := p.parseAction()
		if err != nil {
			return nil, err
		}
		rd.Production = append(rd.Production, act)
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	return rd, nil
}
