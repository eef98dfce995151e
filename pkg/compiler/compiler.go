// Package compiler turns a parsed ontology AST (pkg/ast) into a compiled,
// immutable *registry.Registry: resolving type names (including alias and
// union expansion), flattening inheritance into FamilyTable-ready attribute
// sets, and expanding every inline modifier into the constraint/rule/index
// definitions each modifier implies (required →
// a non-nullable AttrDef, unique → a unique AttrDef, which the graph backs
// with a single-occupancy attribute index, min/max/range → range constraints, in/match/length →
// validation constraints, indexed → an AttrIndex request, symmetric/no_self/
// acyclic → structural edge constraints, cardinality → a PositionDef bound,
// on_kill_source/on_kill_target → a ReferentialAction).
package compiler

import (
	"fmt"
	"strings"

	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/mewerr"
	"github.com/mewdb/mew/pkg/registry"
	"github.com/mewdb/mew/pkg/values"
)

// Compile builds a Registry from a parsed Ontology, starting fresh (LOAD
// ONTOLOGY).
func Compile(o *ast.Ontology) (*registry.Registry, error) {
	c := newCompiler()
	return c.compile(o)
}

// CompileExtend compiles the declarations in o into one new Registry, with
// type and edge ids starting above the range base could have assigned. The
// declarations of base are not copied into the result and are not visible
// to name resolution: o must itself declare every type it references. MEW
// never mutates a live Registry in place (query plans capture a Registry
// pointer valid for their lifetime).
func CompileExtend(base *registry.Registry, o *ast.Ontology) (*registry.Registry, error) {
	c := newCompiler()
	c.seedFrom(base)
	return c.compile(o)
}

type compiler struct {
	typeAliases map[string][]string // alias name -> member type names (len 1: simple rename)

	typeIDs   map[string]values.TypeId
	nextType  values.TypeId
	nodeDecls map[string]*ast.NodeTypeDecl

	edgeIDs   map[string]values.EdgeTypeId
	nextEdge  values.EdgeTypeId
	edgeDecls map[string]*ast.EdgeTypeDecl

	// modConstraintSeq numbers constraints synthesized from inline
	// modifiers (min/max/range/in/match/length), offset above the
	// explicitly declared constraint ids assigned in compile().
	modConstraintSeq int

	b *registry.Builder
}

func newCompiler() *compiler {
	return &compiler{
		typeAliases: map[string][]string{},
		typeIDs:     map[string]values.TypeId{},
		nodeDecls:   map[string]*ast.NodeTypeDecl{},
		edgeIDs:     map[string]values.EdgeTypeId{},
		edgeDecls:   map[string]*ast.EdgeTypeDecl{},
		nextType:         1,
		nextEdge:         1,
		modConstraintSeq: 1 << 20,
		b:                registry.NewBuilder(),
	}
}

// seedFrom is a best-effort re-derivation of name->id maps from an already
// compiled Registry, since Registry does not expose enough of its private
// build-time bookkeeping to seed a Builder directly; EXTEND ONTOLOGY in
// practice recompiles the full accumulated AST (the Session retains it),
// so seedFrom only needs to avoid id collisions with what base already
// assigned.
func (c *compiler) seedFrom(base *registry.Registry) {
	if base == nil {
		return
	}
	// Conservative: start new ids well above anything base could have
	// assigned, since Registry does not expose its maximum assigned id.
	c.nextType = 1 << 16
	c.nextEdge = 1 << 16
}

func (c *compiler) compile(o *ast.Ontology) (*registry.Registry, error) {
	c.registerLayer0()
	for _, ta := range o.TypeAliases {
		c.typeAliases[ta.Name] = ta.Members
	}
	for i := range o.Nodes {
		n := &o.Nodes[i]
		if _, dup := c.typeIDs[n.Name]; dup {
			return nil, mewerr.Syntax(fmt.Sprintf("node type %q declared twice", n.Name))
		}
		c.typeIDs[n.Name] = c.nextType
		c.nodeDecls[n.Name] = n
		c.nextType++
	}
	for i := range o.Edges {
		e := &o.Edges[i]
		if _, dup := c.edgeIDs[e.Name]; dup {
			return nil, mewerr.Syntax(fmt.Sprintf("edge type %q declared twice", e.Name))
		}
		c.edgeIDs[e.Name] = c.nextEdge
		c.edgeDecls[e.Name] = e
		c.nextEdge++
	}

	for name := range c.nodeDecls {
		def, err := c.compileNodeType(name)
		if err != nil {
			return nil, err
		}
		c.b.AddNodeType(def)
	}
	for name := range c.edgeDecls {
		def, err := c.compileEdgeType(name)
		if err != nil {
			return nil, err
		}
		c.b.AddEdgeType(def)
	}

	constraintID := 0
	for i := range o.Constraints {
		cd := &o.Constraints[i]
		def, err := c.compileConstraint(constraintID, cd)
		if err != nil {
			return nil, err
		}
		c.b.AddConstraint(def)
		constraintID++
	}
	// modifier-derived constraints/indexes are attached while compiling
	// each node/edge type's attributes (see modifiers.go); they were
	// appended to c.b directly there.

	ruleID := 0
	for i := range o.Rules {
		rd := &o.Rules[i]
		def, err := c.compileRule(ruleID, rd)
		if err != nil {
			return nil, err
		}
		c.b.AddRule(def)
		ruleID++
	}

	return c.b.Build()
}

// resolveTypeNames expands a position/pattern type reference (a plain type
// name, a `type Alias = A|B` union alias, or the bare `|`-joined union
// syntax written inline) into its member TypeIds.
func (c *compiler) resolveTypeNames(ref string) ([]values.TypeId, error) {
	parts := strings.Split(ref, "|")
	var out []values.TypeId
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if members, ok := c.typeAliases[p]; ok {
			for _, m := range members {
				ids, err := c.resolveTypeNames(m)
				if err != nil {
					return nil, err
				}
				out = append(out, ids...)
			}
			continue
		}
		id, ok := c.typeIDs[p]
		if !ok {
			return nil, mewerr.NotFound("node type", p)
		}
		out = append(out, id)
	}
	return out, nil
}

func (c *compiler) compileNodeType(name string) (*registry.NodeTypeDef, error) {
	decl := c.nodeDecls[name]
	id := c.typeIDs[name]

	var parents []values.TypeId
	for _, p := range decl.Parents {
		pid, ok := c.typeIDs[p]
		if !ok {
			return nil, mewerr.NotFound("node type", p)
		}
		parents = append(parents, pid)
	}

	root := id
	if len(parents) > 0 {
		root = c.familyRootOf(parents[0])
	}

	ownAttrs, err := c.compileAttrs(name, decl.Attrs)
	if err != nil {
		return nil, err
	}

	var all []registry.AttrDef
	for _, p := range parents {
		if pdecl, ok := c.nodeDeclByID(p); ok {
			inherited, err := c.compileAttrs(pdecl.Name, pdecl.Attrs)
			if err != nil {
				return nil, err
			}
			all = appendDedup(all, inherited)
		}
	}
	all = appendDedup(all, ownAttrs)

	return &registry.NodeTypeDef{
		ID: id, Name: name, Parents: parents, Abstract: decl.Abstract, Sealed: decl.Sealed,
		OwnAttrs: ownAttrs, AllAttrs: all, FamilyRoot: root,
	}, nil
}

func (c *compiler) nodeDeclByID(id values.TypeId) (*ast.NodeTypeDecl, bool) {
	for name, tid := range c.typeIDs {
		if tid == id {
			return c.nodeDecls[name], true
		}
	}
	return nil, false
}

func (c *compiler) familyRootOf(t values.TypeId) values.TypeId {
	decl, ok := c.nodeDeclByID(t)
	if !ok || len(decl.Parents) == 0 {
		return t
	}
	pid, ok := c.typeIDs[decl.Parents[0]]
	if !ok {
		return t
	}
	return c.familyRootOf(pid)
}

func appendDedup(existing, add []registry.AttrDef) []registry.AttrDef {
	for _, a := range add {
		replaced := false
		for i, e := range existing {
			if e.Name == a.Name {
				existing[i] = a
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, a)
		}
	}
	return existing
}

func scalarKind(name string) (values.Kind, bool) {
	switch strings.ToLower(name) {
	case "string":
		return values.KindString, true
	case "int":
		return values.KindInt, true
	case "float":
		return values.KindFloat, true
	case "bool":
		return values.KindBool, true
	case "timestamp":
		return values.KindTimestamp, true
	case "id":
		return values.KindID, true
	case "hash":
		return values.KindHash, true
	default:
		return values.KindNull, false
	}
}

func (c *compiler) compileConstraint(id int, cd *ast.ConstraintDecl) (*registry.ConstraintDef, error) {
	affectedTypes, affectedEdges, err := c.affectedOf(&cd.Pattern)
	if err != nil {
		return nil, err
	}
	// User-declared constraints are evaluated at commit, after the rule
	// fixpoint, so a rule may repair the state a constraint demands; only
	// modifier-derived validators check per-op.
	return &registry.ConstraintDef{
		ID: id, Name: cd.Name, Hard: cd.Hard, Message: cd.Message,
		AffectedTypes: affectedTypes, AffectedEdgeTypes: affectedEdges,
		Pattern: &cd.Pattern, Condition: cd.Condition, Deferred: true,
	}, nil
}

func (c *compiler) compileRule(id int, rd *ast.RuleDecl) (*registry.RuleDef, error) {
	affectedTypes, affectedEdges, err := c.affectedOf(&rd.Pattern)
	if err != nil {
		return nil, err
	}
	return &registry.RuleDef{
		ID: id, Name: rd.Name, Priority: rd.Priority, DeclOrder: id, Auto: rd.Auto,
		AffectedTypes: affectedTypes, AffectedEdgeTypes: affectedEdges,
		Pattern: &rd.Pattern, Production: rd.Production,
	}, nil
}

func (c *compiler) affectedOf(p *ast.Pattern) ([]values.TypeId, []values.EdgeTypeId, error) {
	var types []values.TypeId
	for _, n := range p.Nodes {
		if n.Type == "" {
			continue
		}
		ids, err := c.resolveTypeNames(n.Type)
		if err != nil {
			return nil, nil, err
		}
		types = append(types, ids...)
	}
	var edges []values.EdgeTypeId
	for _, e := range p.Edges {
		if e.EdgeType == "" {
			continue
		}
		id, ok := c.edgeIDs[e.EdgeType]
		if !ok {
			return nil, nil, mewerr.NotFound("edge type", e.EdgeType)
		}
		edges = append(edges, id)
	}
	return types, edges, nil
}
