package parser

import (
	"strings"

	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/lexer"
)

// ParseStatement parses exactly one GQL statement, erroring on any
// non-EOF trailing input.
func ParseStatement(src string) (ast.Stmt, error) {
	p := newParser(src)
	stmt, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	if !p.atEOF() {
		return nil, p.errorf("unexpected trailing input %q", p.cur().Text)
	}
	return stmt, nil
}

// ParseStatements parses a `;`-separated script of GQL statements.
func ParseStatements(src string) ([]ast.Stmt, error) {
	p := newParser(src)
	var out []ast.Stmt
	for !p.atEOF() {
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		out = append(out, stmt)
		for p.isPunct(";") {
			p.advance()
		}
	}
	return out, nil
}

func (p *parser) parseStmt() (ast.Stmt, error) {
	switch {
	case p.isKeyword("match"), p.isKeyword("optional"):
		return p.parseMatchStmt()
	case p.isKeyword("walk"):
		return p.parseWalkStmt()
	case p.isKeyword("inspect"):
		return p.parseInspectStmt()
	case p.isKeyword("spawn"), p.isKeyword("link"), p.isKeyword("unlink"), p.isKeyword("kill"), p.isKeyword("set"):
		return p.parseMutationStmt()
	case p.isKeyword("begin"):
		return p.parseBeginStmt()
	case p.isKeyword("commit"):
		return p.parseSimpleTxStmt(ast.TxCommit)
	case p.isKeyword("rollback"):
		return p.parseRollbackStmt()
	case p.isKeyword("savepoint"):
		return p.parseSavepointStmt()
	case p.isKeyword("show"):
		return p.parseShowStmt()
	case p.isKeyword("create"):
		return p.parseCreateIndexStmt()
	case p.isKeyword("drop"):
		return p.parseDropIndexStmt()
	case p.isKeyword("explain"):
		return p.parseExplainStmt()
	case p.isKeyword("profile"):
		return p.parseProfileStmt()
	case p.isKeyword("dry"):
		return p.parseDryRunStmt()
	case p.isKeyword("load"):
		return p.parseLoadOntologyStmt()
	case p.isKeyword("extend"):
		return p.parseExtendOntologyStmt()
	case p.isKeyword("invoke"):
		return p.parseInvokeStmt()
	default:
		return nil, p.errorf("unexpected statement start %q", p.cur().Text)
	}
}

func isMutationStart(p *parser) bool {
	return p.isKeyword("spawn") || p.isKeyword("link") || p.isKeyword("unlink") ||
		p.isKeyword("kill") || p.isKeyword("set")
}

// parseMatchStmt parses both the read form (RETURN ... [ORDER BY] [LIMIT]
// [TIMEOUT]) and the compound mutation form MATCH pattern <mutation>.
func (p *parser) parseMatchStmt() (ast.Stmt, error) {
	sp := p.span()
	optional := p.eatKeyword("optional")
	if _, err := p.expectKeyword("match"); err != nil {
		return nil, err
	}
	pat, err := p.parsePattern()
	if err != nil {
		return nil, err
	}
	m := ast.MatchStmt{Base: ast.Base{Span: sp}, Optional: optional, Pattern: *pat}

	for p.isKeyword("optional") {
		p.advance()
		if _, err := p.expectKeyword("match"); err != nil {
			return nil, err
		}
		opt, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		m.Optionals = append(m.Optionals, *opt)
	}

	if isMutationStart(p) {
		action, err := p.parseAction()
		if err != nil {
			return nil, err
		}
		m.Mutation = action
		return m, nil
	}

	if _, err := p.expectKeyword("return"); err != nil {
		return nil, err
	}
	m.Distinct = p.eatKeyword("distinct")
	items, err := p.parseReturnItems()
	if err != nil {
		return nil, err
	}
	m.Return = items
	if p.eatKeyword("order") {
		if _, err := p.expectKeyword("by"); err != nil {
			return nil, err
		}
		order, err := p.parseOrderItems()
		if err != nil {
			return nil, err
		}
		m.OrderBy = order
	}
	if p.eatKeyword("skip") {
		n, err := p.expectInt()
		if err != nil {
			return nil, err
		}
		v := int(n)
		m.Skip = &v
	}
	if p.eatKeyword("limit") {
		n, err := p.expectInt()
		if err != nil {
			return nil, err
		}
		v := int(n)
		m.Limit = &v
	}
	if p.eatKeyword("timeout") {
		t := p.cur()
		if t.Kind != lexer.Duration {
			return nil, p.errorf("expected duration literal after TIMEOUT, got %q", t.Text)
		}
		p.advance()
		d, err := parseDuration(t.Text)
		if err != nil {
			return nil, err
		}
		m.Timeout, m.HasTimeout = d, true
	}
	return m, nil
}

func (p *parser) parseReturnItems() ([]ast.ReturnItem, error) {
	var out []ast.ReturnItem
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		item := ast.ReturnItem{Expr: e}
		if p.eatKeyword("as") {
			alias, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			item.Alias = alias
		}
		out = append(out, item)
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	return out, nil
}

func (p *parser) parseOrderItems() ([]ast.OrderItem, error) {
	var out []ast.OrderItem
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		item := ast.OrderItem{Expr: e}
		if p.eatKeyword("desc") {
			item.Descending = true
		} else {
			p.eatKeyword("asc")
		}
		out = append(out, item)
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	return out, nil
}

// parseWalkStmt parses `WALK FROM <start>[, ...] FOLLOW ... [UNTIL] RETURN
// ...`; FOLLOW may repeat to compose a multi-hop path.
func (p *parser) parseWalkStmt() (ast.Stmt, error) {
	sp := p.span()
	p.advance() // 'walk'
	if _, err := p.expectKeyword("from"); err != nil {
		return nil, err
	}
	var starts []ast.Expr
	for {
		e, err := p.parseWalkStart()
		if err != nil {
			return nil, err
		}
		starts = append(starts, e)
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	w := ast.WalkStmt{Base: ast.Base{Span: sp}, Starts: starts}
	for p.eatKeyword("follow") {
		step, err := p.parseFollowStep()
		if err != nil {
			return nil, err
		}
		w.Follow = append(w.Follow, step)
	}
	if p.eatKeyword("until") {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		w.Until = e
	}
	if _, err := p.expectKeyword("return"); err != nil {
		return nil, err
	}
	switch {
	case p.eatKeyword("nodes"):
		w.Return = ast.WalkReturnNodes
	case p.eatKeyword("edges"):
		w.Return = ast.WalkReturnEdges
	case p.eatKeyword("path"):
		w.Return = ast.WalkReturnPath
	case p.eatKeyword("terminal"):
		w.Return = ast.WalkReturnTerminal
	default:
		return nil, p.errorf("expected NODES/EDGES/PATH/TERMINAL after RETURN, got %q", p.cur().Text)
	}
	if p.eatKeyword("limit") {
		n, err := p.expectInt()
		if err != nil {
			return nil, err
		}
		w.PathCap = int(n)
	}
	return w, nil
}

func (p *parser) parseWalkStart() (ast.Expr, error) {
	if p.isPunct("#") {
		return p.parseIDExpr()
	}
	return p.parseExpr()
}

// parseFollowStep parses one `E [direction:both] [depth:a..b]` hop of a
// WALK; direction/depth are bracket modifiers in declaration order,
// matching the modifier-bracket style used throughout the ontology DSL.
func (p *parser) parseFollowStep() (ast.FollowStep, error) {
	edgeType, err := p.expectIdent()
	if err != nil {
		return ast.FollowStep{}, err
	}
	step := ast.FollowStep{EdgeType: edgeType, Direction: ast.WalkOutgoing}
	for p.isPunct("[") {
		p.advance()
		switch {
		case p.eatKeyword("direction"):
			if _, err := p.expectPunct(":"); err != nil {
				return ast.FollowStep{}, err
			}
			dir, err := p.expectIdent()
			if err != nil {
				return ast.FollowStep{}, err
			}
			switch strings.ToLower(dir) {
			case "outgoing", "forward":
				step.Direction = ast.WalkOutgoing
			case "incoming", "reverse":
				step.Direction = ast.WalkIncoming
			case "both":
				step.Direction = ast.WalkBoth
			default:
				return ast.FollowStep{}, p.errorf("unknown WALK direction %q", dir)
			}
		case p.eatKeyword("depth"):
			if _, err := p.expectPunct(":"); err != nil {
				return ast.FollowStep{}, err
			}
			lo, err := p.expectInt()
			if err != nil {
				return ast.FollowStep{}, err
			}
			hi := lo
			if p.isPunct("..") {
				p.advance()
				hi, err = p.expectInt()
				if err != nil {
					return ast.FollowStep{}, err
				}
			}
			step.MinDepth, step.MaxDepth = int(lo), int(hi)
		default:
			return ast.FollowStep{}, p.errorf("unknown FOLLOW modifier %q", p.cur().Text)
		}
		if _, err := p.expectPunct("]"); err != nil {
			return ast.FollowStep{}, err
		}
	}
	return step, nil
}

func (p *parser) parseInspectStmt() (ast.Stmt, error) {
	sp := p.span()
	p.advance() // 'inspect'
	id, err := p.parseIDExpr()
	if err != nil {
		return nil, err
	}
	st := ast.InspectStmt{Base: ast.Base{Span: sp}, ID: id}
	if p.eatKeyword("return") {
		items, err := p.parseReturnItems()
		if err != nil {
			return nil, err
		}
		st.Return = items
	}
	return st, nil
}

// parseMutationStmt parses a top-level SPAWN/LINK/UNLINK/KILL/SET statement
// with its optional RETURNING clause.
func (p *parser) parseMutationStmt() (ast.Stmt, error) {
	sp := p.span()
	action, err := p.parseAction()
	if err != nil {
		return nil, err
	}
	st := ast.MutationStmt{Base: ast.Base{Span: sp}, Action: action}
	if p.eatKeyword("returning") {
		switch {
		case p.isPunct("*"):
			p.advance()
			st.Returning = []string{"*"}
		case p.eatKeyword("created"):
			st.Returning = []string{"CREATED"}
		default:
			for {
				name, err := p.expectIdent()
				if err != nil {
					return nil, err
				}
				st.Returning = append(st.Returning, name)
				if p.isPunct(",") {
					p.advance()
					continue
				}
				break
			}
		}
	}
	return st, nil
}

func (p *parser) parseBeginStmt() (ast.Stmt, error) {
	sp := p.span()
	p.advance() // 'begin'
	tx := ast.TxStmt{Base: ast.Base{Span: sp}, Verb: ast.TxBegin, Isolation: ast.IsolationDefault}
	switch {
	case p.isKeyword("read"):
		p.advance()
		if _, err := p.expectKeyword("committed"); err != nil {
			return nil, err
		}
		tx.Isolation = ast.IsolationReadCommitted
	case p.eatKeyword("serializable"):
		tx.Isolation = ast.IsolationSerializable
	}
	return tx, nil
}

func (p *parser) parseSimpleTxStmt(verb ast.TxVerb) (ast.Stmt, error) {
	sp := p.span()
	p.advance()
	return ast.TxStmt{Base: ast.Base{Span: sp}, Verb: verb}, nil
}

func (p *parser) parseRollbackStmt() (ast.Stmt, error) {
	sp := p.span()
	p.advance() // 'rollback'
	if p.eatKeyword("to") {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return ast.TxStmt{Base: ast.Base{Span: sp}, Verb: ast.TxRollbackTo, Savepoint: name}, nil
	}
	return ast.TxStmt{Base: ast.Base{Span: sp}, Verb: ast.TxRollback}, nil
}

func (p *parser) parseSavepointStmt() (ast.Stmt, error) {
	sp := p.span()
	p.advance() // 'savepoint'
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return ast.TxStmt{Base: ast.Base{Span: sp}, Verb: ast.TxSavepoint, Savepoint: name}, nil
}

var showTargets = map[string]ast.ShowTarget{
	"types":       ast.ShowTypes,
	"edges":       ast.ShowEdges,
	"constraints": ast.ShowConstraints,
	"rules":       ast.ShowRules,
	"indexes":     ast.ShowIndexes,
	"statistics":  ast.ShowStatistics,
	"status":      ast.ShowStatus,
}

func (p *parser) parseShowStmt() (ast.Stmt, error) {
	sp := p.span()
	p.advance() // 'show'
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	target, ok := showTargets[strings.ToLower(name)]
	if !ok {
		return nil, p.errorf("unknown SHOW target %q", name)
	}
	return ast.ShowStmt{Base: ast.Base{Span: sp}, Target: target}, nil
}

func (p *parser) parseIndexTarget() (string, string, error) {
	typ, err := p.expectIdent()
	if err != nil {
		return "", "", err
	}
	if _, err := p.expectPunct("("); err != nil {
		return "", "", err
	}
	attr, err := p.expectIdent()
	if err != nil {
		return "", "", err
	}
	if _, err := p.expectPunct(")"); err != nil {
		return "", "", err
	}
	return typ, attr, nil
}

func (p *parser) parseCreateIndexStmt() (ast.Stmt, error) {
	sp := p.span()
	p.advance() // 'create'
	unique := p.eatKeyword("unique")
	if _, err := p.expectKeyword("index"); err != nil {
		return nil, err
	}
	if _, err := p.expectKeyword("on"); err != nil {
		return nil, err
	}
	typ, attr, err := p.parseIndexTarget()
	if err != nil {
		return nil, err
	}
	st := ast.CreateIndexStmt{Base: ast.Base{Span: sp}, Type: typ, Attr: attr, Unique: unique}
	if p.eatKeyword("desc") {
		st.Desc = true
	} else {
		p.eatKeyword("asc")
	}
	return st, nil
}

func (p *parser) parseDropIndexStmt() (ast.Stmt, error) {
	sp := p.span()
	p.advance() // 'drop'
	if _, err := p.expectKeyword("index"); err != nil {
		return nil, err
	}
	if _, err := p.expectKeyword("on"); err != nil {
		return nil, err
	}
	typ, attr, err := p.parseIndexTarget()
	if err != nil {
		return nil, err
	}
	return ast.DropIndexStmt{Base: ast.Base{Span: sp}, Type: typ, Attr: attr}, nil
}

func (p *parser) parseExplainStmt() (ast.Stmt, error) {
	sp := p.span()
	p.advance() // 'explain'
	inner, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	return ast.ExplainStmt{Base: ast.Base{Span: sp}, Inner: inner}, nil
}

func (p *parser) parseProfileStmt() (ast.Stmt, error) {
	sp := p.span()
	p.advance() // 'profile'
	inner, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	return ast.ProfileStmt{Base: ast.Base{Span: sp}, Inner: inner}, nil
}

func (p *parser) parseDryRunStmt() (ast.Stmt, error) {
	sp := p.span()
	p.advance() // 'dry'
	if _, err := p.expectKeyword("run"); err != nil {
		return nil, err
	}
	inner, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	return ast.DryRunStmt{Base: ast.Base{Span: sp}, Inner: inner}, nil
}

func (p *parser) expectStringLit() (string, error) {
	t := p.cur()
	if t.Kind != lexer.String {
		return "", p.errorf("expected string literal, got %q", t.Text)
	}
	p.advance()
	return t.Text, nil
}

func (p *parser) parseLoadOntologyStmt() (ast.Stmt, error) {
	sp := p.span()
	p.advance() // 'load'
	if _, err := p.expectKeyword("ontology"); err != nil {
		return nil, err
	}
	src, err := p.expectStringLit()
	if err != nil {
		return nil, err
	}
	return ast.LoadOntologyStmt{Base: ast.Base{Span: sp}, Source: src}, nil
}

func (p *parser) parseExtendOntologyStmt() (ast.Stmt, error) {
	sp := p.span()
	p.advance() // 'extend'
	if _, err := p.expectKeyword("ontology"); err != nil {
		return nil, err
	}
	src, err := p.expectStringLit()
	if err != nil {
		return nil, err
	}
	return ast.ExtendOntologyStmt{Base: ast.Base{Span: sp}, Source: src}, nil
}

// parseInvokeStmt parses `INVOKE ruleName [{ var = expr, ... }]`, the
// explicit dispatch path for manual rules.
func (p *parser) parseInvokeStmt() (ast.Stmt, error) {
	sp := p.span()
	p.advance() // 'invoke'
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	st := ast.InvokeStmt{Base: ast.Base{Span: sp}, RuleName: name}
	if p.isPunct("{") {
		p.advance()
		st.Bindings = map[string]ast.Expr{}
		for !p.isPunct("}") {
			k, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectPunct("="); err != nil {
				return nil, err
			}
			var v ast.Expr
			if p.isPunct("#") {
				v, err = p.parseIDExpr()
			} else {
				v, err = p.parseExpr()
			}
			if err != nil {
				return nil, err
			}
			st.Bindings[k] = v
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expectPunct("}"); err != nil {
			return nil, err
		}
	}
	return st, nil
}
