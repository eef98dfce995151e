package compiler

import (
	"fmt"
	"strings"

	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/mewerr"
	"github.com/mewdb/mew/pkg/registry"
	"github.com/mewdb/mew/pkg/values"
)

// attrIDSeq hands out AttrIds scoped to one type's compilation; AttrId is
// only ever compared within its owning type/edge type (pkg/values/ids.go),
// so a fresh counter per call is correct.
type attrIDSeq struct{ next values.AttrId }

func (s *attrIDSeq) take() values.AttrId {
	s.next++
	return s.next
}

// compileAttrs compiles one type's own attribute declarations, expanding
// each inline modifier into either an AttrDef field (required/unique/
// indexed map onto Nullable/Unique/Indexed directly) or a synthetic hard
// constraint appended to the Builder (min/max/range/in/match/length, the
// value validators that don't change physical storage, only what a
// SPAWN/SET must satisfy to commit).
func (c *compiler) compileAttrs(typeName string, decls []ast.AttrDecl) ([]registry.AttrDef, error) {
	seq := &attrIDSeq{}
	out := make([]registry.AttrDef, 0, len(decls))
	for _, d := range decls {
		scalar, ok := scalarKind(d.Type)
		if !ok {
			return nil, mewerr.NotFound("scalar type", d.Type)
		}
		a := registry.AttrDef{
			ID: seq.take(), Name: d.Name, Scalar: scalar,
			Nullable: d.Nullable, HasDefault: d.Default != nil, Default: d.Default,
		}
		for _, m := range d.Modifiers {
			switch m.Kind {
			case ast.ModRequired:
				a.Nullable = false
			case ast.ModUnique:
				a.Unique = true
			case ast.ModIndexed:
				a.Indexed = true
				a.IndexDesc = m.Desc
			case ast.ModMin, ast.ModMax, ast.ModRange, ast.ModIn, ast.ModMatch, ast.ModLength:
				c.addAttrValidator(typeName, d.Name, m)
			}
		}
		out = append(out, a)
	}
	return out, nil
}

// addAttrValidator appends a hard constraint enforcing one value-validator
// modifier, built over a synthetic single-node pattern rather than
// requiring the ontology author to spell the constraint out by hand.
func (c *compiler) addAttrValidator(typeName, attrName string, m ast.Modifier) {
	v := "_self"
	pattern := ast.Pattern{Nodes: []ast.NodePattern{{Var: v, Type: typeName}}}
	access := ast.AttrAccess{Var: v, Attr: attrName}

	var cond ast.Expr
	var desc string
	switch m.Kind {
	case ast.ModMin:
		cond = ast.BinaryExpr{Op: ast.OpGte, Lhs: access, Rhs: intLit(m.IntArgs[0])}
		desc = fmt.Sprintf("%s.%s >= %d", typeName, attrName, m.IntArgs[0])
	case ast.ModMax:
		cond = ast.BinaryExpr{Op: ast.OpLte, Lhs: access, Rhs: intLit(m.IntArgs[0])}
		desc = fmt.Sprintf("%s.%s <= %d", typeName, attrName, m.IntArgs[0])
	case ast.ModRange:
		cond = ast.BinaryExpr{
			Op:  ast.OpAnd,
			Lhs: ast.BinaryExpr{Op: ast.OpGte, Lhs: access, Rhs: intLit(m.IntArgs[0])},
			Rhs: ast.BinaryExpr{Op: ast.OpLte, Lhs: access, Rhs: intLit(m.IntArgs[1])},
		}
		desc = fmt.Sprintf("%s.%s in %d..%d", typeName, attrName, m.IntArgs[0], m.IntArgs[1])
	case ast.ModIn:
		cond = ast.FuncCall{Name: "__in_set", Args: append([]ast.Expr{access}, strLits(m.StrArgs)...)}
		desc = fmt.Sprintf("%s.%s in allowed set", typeName, attrName)
	case ast.ModMatch:
		cond = ast.FuncCall{Name: "__matches", Args: []ast.Expr{access, ast.Literal{Kind: ast.LitString, Raw: m.StrArgs[0]}}}
		desc = fmt.Sprintf("%s.%s matches %q", typeName, attrName, m.StrArgs[0])
	case ast.ModLength:
		lenCall := ast.FuncCall{Name: "length", Args: []ast.Expr{access}}
		cond = ast.BinaryExpr{
			Op:  ast.OpAnd,
			Lhs: ast.BinaryExpr{Op: ast.OpGte, Lhs: lenCall, Rhs: intLit(m.IntArgs[0])},
			Rhs: ast.BinaryExpr{Op: ast.OpLte, Lhs: lenCall, Rhs: intLit(m.IntArgs[1])},
		}
		desc = fmt.Sprintf("length(%s.%s) in %d..%d", typeName, attrName, m.IntArgs[0], m.IntArgs[1])
	default:
		return
	}

	// Value validators are NULL-skipped: a
	// missing value is the [required] modifier's concern, not the range's.
	cond = ast.BinaryExpr{
		Op:  ast.OpOr,
		Lhs: ast.BinaryExpr{Op: ast.OpEq, Lhs: access, Rhs: ast.Literal{Kind: ast.LitNull}},
		Rhs: cond,
	}

	id := c.modConstraintSeq
	c.modConstraintSeq++
	c.b.AddConstraint(&registry.ConstraintDef{
		ID: id, Name: fmt.Sprintf("_%s_%s_%s", typeName, attrName, m.Kind),
		Hard: true, AffectedTypes: []values.TypeId{c.typeIDs[typeName]},
		Pattern: &pattern, Condition: cond, Message: desc,
	})
}

func intLit(i int64) ast.Literal { return ast.Literal{Kind: ast.LitInt, Raw: i} }

func strLits(ss []string) []ast.Expr {
	out := make([]ast.Expr, len(ss))
	for i, s := range ss {
		out[i] = ast.Literal{Kind: ast.LitString, Raw: s}
	}
	return out
}

// compileEdgeType compiles one edge type's signature, attrs, and
// relational modifiers (symmetric/no_self/acyclic/unique/indexed/
// on_kill_source/on_kill_target/cardinality).
func (c *compiler) compileEdgeType(name string) (*registry.EdgeTypeDef, error) {
	decl := c.edgeDecls[name]
	id := c.edgeIDs[name]

	positions := make([]registry.PositionDef, 0, len(decl.Positions))
	cardinality := map[string]registry.Cardinality{}
	for _, m := range decl.Modifiers {
		if m.Kind == ast.ModCardinality {
			cardinality[m.Position] = registry.Cardinality{Min: int(m.IntArgs[0]), Max: int(m.IntArgs[1])}
		}
	}
	for _, p := range decl.Positions {
		pos, err := c.compilePosition(p, cardinality)
		if err != nil {
			return nil, err
		}
		positions = append(positions, pos)
	}

	attrs, err := c.compileAttrs(name, decl.Attrs)
	if err != nil {
		return nil, err
	}

	def := &registry.EdgeTypeDef{
		ID: id, Name: name, Positions: positions, Attrs: attrs,
		OnKillSource: registry.RefUnlink, OnKillTarget: registry.RefUnlink,
	}
	for _, m := range decl.Modifiers {
		switch m.Kind {
		case ast.ModSymmetric:
			def.Symmetric = true
		case ast.ModNoSelf:
			def.NoSelf = true
		case ast.ModAcyclic:
			def.Acyclic = true
		case ast.ModUnique:
			def.Unique = true
		case ast.ModIndexed:
			def.Indexed = true
		case ast.ModOnKillSource:
			def.OnKillSource = registry.ReferentialAction(m.TargetArg)
		case ast.ModOnKillTarget:
			def.OnKillTarget = registry.ReferentialAction(m.TargetArg)
		}
	}
	return def, nil
}

func (c *compiler) compilePosition(p ast.PositionDecl, cardinality map[string]registry.Cardinality) (registry.PositionDef, error) {
	pd := registry.PositionDef{Name: p.Name, Cardinality: registry.Cardinality{Min: 0, Max: -1}}
	// A cardinality modifier names its position directly (`t -> 1..2`) or,
	// as ontologies commonly write it, by the position's lowercased type
	// (`task -> 1` against `t: Task`).
	if card, ok := cardinality[p.Name]; ok {
		pd.Cardinality = card
	} else if card, ok := cardinality[strings.ToLower(p.Type)]; ok {
		pd.Cardinality = card
	}
	switch p.Type {
	case "any":
		pd.TargetIsAny = true
		return pd, nil
	case "edge<any>":
		pd.TargetEdgeAny = true
		return pd, nil
	}
	if len(p.Type) > 5 && p.Type[:5] == "edge<" && p.Type[len(p.Type)-1] == '>' {
		inner := p.Type[5 : len(p.Type)-1]
		eid, ok := c.edgeIDs[inner]
		if !ok {
			return pd, mewerr.NotFound("edge type", inner)
		}
		pd.TargetEdgeType = eid
		return pd, nil
	}
	ids, err := c.resolveTypeNames(p.Type)
	if err != nil {
		return pd, err
	}
	if len(ids) == 1 {
		pd.TargetType = ids[0]
		return pd, nil
	}
	pd.TargetIsUnion = true
	pd.UnionTypes = ids
	return pd, nil
}
