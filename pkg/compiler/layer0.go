package compiler

import (
	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/glyph"
	"github.com/mewdb/mew/pkg/registry"
	"github.com/mewdb/mew/pkg/values"
)

// Layer 0 is the engine's self-description: every compiled
// declaration also exists as meta-glyphs inside the graph, so META-mode
// introspection is ordinary MATCH over _NodeType/_EdgeType/... rather than
// a special query surface. The meta types are injected ahead of user
// declarations so they hold stable low ids across LOAD and EXTEND (the
// session recompiles the accumulated AST; prepending keeps every id fixed).

const (
	metaNodeType      = "_NodeType"
	metaEdgeType      = "_EdgeType"
	metaAttributeDef  = "_AttributeDef"
	metaConstraintDef = "_ConstraintDef"
	metaRuleDef       = "_RuleDef"
	metaPatternDef    = "_PatternDef"

	metaHasAttribute  = "_type_has_attribute"
	metaHasPosition   = "_edge_has_position"
	metaInherits      = "_type_inherits"
	metaConstraintPat = "_constraint_pattern"
	metaRulePat       = "_rule_pattern"
)

func metaAttr(name, typ string, indexed bool) ast.AttrDecl {
	d := ast.AttrDecl{Name: name, Type: typ, Nullable: true}
	if indexed {
		d.Modifiers = []ast.Modifier{{Kind: ast.ModIndexed}}
	}
	return d
}

// layer0Nodes returns the meta node-type declarations.
func layer0Nodes() []ast.NodeTypeDecl {
	return []ast.NodeTypeDecl{
		{Name: metaNodeType, Attrs: []ast.AttrDecl{
			metaAttr("name", "String", true),
			metaAttr("abstract", "Bool", false),
			metaAttr("sealed", "Bool", false),
		}},
		{Name: metaEdgeType, Attrs: []ast.AttrDecl{
			metaAttr("name", "String", true),
			metaAttr("arity", "Int", false),
			metaAttr("symmetric", "Bool", false),
			metaAttr("no_self", "Bool", false),
			metaAttr("acyclic", "Bool", false),
			metaAttr("unique", "Bool", false),
		}},
		{Name: metaAttributeDef, Attrs: []ast.AttrDecl{
			metaAttr("name", "String", true),
			metaAttr("scalar_type", "String", false),
			metaAttr("nullable", "Bool", false),
			metaAttr("has_default", "Bool", false),
		}},
		{Name: metaConstraintDef, Attrs: []ast.AttrDecl{
			metaAttr("name", "String", true),
			metaAttr("hard", "Bool", false),
			metaAttr("message", "String", false),
		}},
		{Name: metaRuleDef, Attrs: []ast.AttrDecl{
			metaAttr("name", "String", true),
			metaAttr("priority", "Int", false),
			metaAttr("auto", "Bool", false),
		}},
		{Name: metaPatternDef, Attrs: []ast.AttrDecl{
			metaAttr("text", "String", false),
		}},
	}
}

// layer0Edges returns the meta edge-type declarations.
func layer0Edges() []ast.EdgeTypeDecl {
	return []ast.EdgeTypeDecl{
		{Name: metaHasAttribute, Positions: []ast.PositionDecl{
			{Name: "owner", Type: metaNodeType + "|" + metaEdgeType},
			{Name: "attr", Type: metaAttributeDef},
		}},
		{Name: metaHasPosition, Positions: []ast.PositionDecl{
			{Name: "owner", Type: metaEdgeType},
			{Name: "target", Type: metaNodeType},
		}, Attrs: []ast.AttrDecl{
			metaAttr("position", "Int", false),
			metaAttr("name", "String", false),
		}},
		{Name: metaInherits, Positions: []ast.PositionDecl{
			{Name: "child", Type: metaNodeType},
			{Name: "parent", Type: metaNodeType},
		}},
		{Name: metaConstraintPat, Positions: []ast.PositionDecl{
			{Name: "constraint", Type: metaConstraintDef},
			{Name: "pattern", Type: metaPatternDef},
		}},
		{Name: metaRulePat, Positions: []ast.PositionDecl{
			{Name: "rule", Type: metaRuleDef},
			{Name: "pattern", Type: metaPatternDef},
		}},
	}
}

// registerLayer0 assigns ids to the meta declarations ahead of any user
// declaration; compile() calls it first.
func (c *compiler) registerLayer0() {
	for _, n := range layer0Nodes() {
		n := n
		c.typeIDs[n.Name] = c.nextType
		c.nodeDecls[n.Name] = &n
		c.nextType++
	}
	for _, e := range layer0Edges() {
		e := e
		c.edgeIDs[e.Name] = c.nextEdge
		c.edgeDecls[e.Name] = &e
		c.nextEdge++
	}
}

// SeedLayer0 materializes the self-description of every user declaration in
// reg as meta-glyphs inside g. It is idempotent: a declaration whose meta
// node already exists (matched by indexed name) is skipped, so EXTEND
// ONTOLOGY only adds glyphs for new declarations.
func SeedLayer0(g *glyph.Graph, reg *registry.Registry) error {
	metaType, ok := reg.TypeByName(metaNodeType)
	if !ok {
		return nil // registry compiled without layer 0 (tests building Builders by hand)
	}
	metaEdge, _ := reg.TypeByName(metaEdgeType)

	nodeGlyphs := map[values.TypeId]values.GlyphId{}
	edgeGlyphs := map[values.EdgeTypeId]values.GlyphId{}
	seeded := map[values.GlyphId]bool{}

	lookup := func(typ values.TypeId, name string) (values.GlyphId, bool) {
		ids, err := g.LookupByAttr(typ, "name", values.NewString(name))
		if err != nil || len(ids) == 0 {
			return values.InvalidGlyphId, false
		}
		return ids[0], true
	}

	for _, def := range reg.AllNodeTypes() {
		if isMetaName(def.Name) {
			continue
		}
		if id, ok := lookup(metaType.ID, def.Name); ok {
			nodeGlyphs[def.ID] = id
			continue
		}
		id, err := g.CreateNode(metaType.ID, map[string]values.Value{
			"name":     values.NewString(def.Name),
			"abstract": values.NewBool(def.Abstract),
			"sealed":   values.NewBool(def.Sealed),
		})
		if err != nil {
			return err
		}
		nodeGlyphs[def.ID] = id
		seeded[id] = true
	}
	for _, def := range reg.AllEdgeTypes() {
		if isMetaName(def.Name) {
			continue
		}
		if id, ok := lookup(metaEdge.ID, def.Name); ok {
			edgeGlyphs[def.ID] = id
			continue
		}
		id, err := g.CreateNode(metaEdge.ID, map[string]values.Value{
			"name":      values.NewString(def.Name),
			"arity":     values.NewInt(int64(len(def.Positions))),
			"symmetric": values.NewBool(def.Symmetric),
			"no_self":   values.NewBool(def.NoSelf),
			"acyclic":   values.NewBool(def.Acyclic),
			"unique":    values.NewBool(def.Unique),
		})
		if err != nil {
			return err
		}
		edgeGlyphs[def.ID] = id
		seeded[id] = true
	}

	if err := seedAttrsAndLinks(g, reg, nodeGlyphs, edgeGlyphs, seeded); err != nil {
		return err
	}
	return seedConstraintsAndRules(g, reg)
}

func seedAttrsAndLinks(g *glyph.Graph, reg *registry.Registry, nodeGlyphs map[values.TypeId]values.GlyphId, edgeGlyphs map[values.EdgeTypeId]values.GlyphId, seeded map[values.GlyphId]bool) error {
	attrType, _ := reg.TypeByName(metaAttributeDef)
	hasAttr, _ := reg.EdgeTypeByName(metaHasAttribute)
	hasPos, _ := reg.EdgeTypeByName(metaHasPosition)
	inherits, _ := reg.EdgeTypeByName(metaInherits)

	linkAttrs := func(owner values.GlyphId, attrs []registry.AttrDef) error {
		for _, a := range attrs {
			attrGlyph, err := g.CreateNode(attrType.ID, map[string]values.Value{
				"name":        values.NewString(a.Name),
				"scalar_type": values.NewString(a.Scalar.String()),
				"nullable":    values.NewBool(a.Nullable),
				"has_default": values.NewBool(a.HasDefault),
			})
			if err != nil {
				return err
			}
			if _, err := g.CreateEdge(hasAttr.ID, []values.GlyphId{owner, attrGlyph}, nil); err != nil {
				return err
			}
		}
		return nil
	}

	for _, def := range reg.AllNodeTypes() {
		owner, ok := nodeGlyphs[def.ID]
		if !ok || !seeded[owner] {
			continue
		}
		if err := linkAttrs(owner, def.OwnAttrs); err != nil {
			return err
		}
		for _, p := range def.Parents {
			if parent, ok := nodeGlyphs[p]; ok {
				if _, err := g.CreateEdge(inherits.ID, []values.GlyphId{owner, parent}, nil); err != nil {
					return err
				}
			}
		}
	}
	for _, def := range reg.AllEdgeTypes() {
		owner, ok := edgeGlyphs[def.ID]
		if !ok || !seeded[owner] {
			continue
		}
		if err := linkAttrs(owner, def.Attrs); err != nil {
			return err
		}
		for i, p := range def.Positions {
			var targets []values.TypeId
			switch {
			case p.TargetIsUnion:
				targets = p.UnionTypes
			case p.TargetType != values.InvalidTypeId:
				targets = []values.TypeId{p.TargetType}
			}
			for _, t := range targets {
				tg, ok := nodeGlyphs[t]
				if !ok {
					continue
				}
				if _, err := g.CreateEdge(hasPos.ID, []values.GlyphId{owner, tg}, map[string]values.Value{
					"position": values.NewInt(int64(i)),
					"name":     values.NewString(p.Name),
				}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func seedConstraintsAndRules(g *glyph.Graph, reg *registry.Registry) error {
	constraintType, _ := reg.TypeByName(metaConstraintDef)
	ruleType, _ := reg.TypeByName(metaRuleDef)
	patternType, _ := reg.TypeByName(metaPatternDef)
	cpat, _ := reg.EdgeTypeByName(metaConstraintPat)
	rpat, _ := reg.EdgeTypeByName(metaRulePat)

	exists := func(typ values.TypeId, name string) bool {
		ids, err := g.LookupByAttr(typ, "name", values.NewString(name))
		return err == nil && len(ids) > 0
	}

	for _, def := range reg.AllConstraints() {
		if exists(constraintType.ID, def.Name) {
			continue
		}
		cg, err := g.CreateNode(constraintType.ID, map[string]values.Value{
			"name":    values.NewString(def.Name),
			"hard":    values.NewBool(def.Hard),
			"message": values.NewString(def.Message),
		})
		if err != nil {
			return err
		}
		pg, err := g.CreateNode(patternType.ID, map[string]values.Value{
			"text": values.NewString(def.Pattern.String()),
		})
		if err != nil {
			return err
		}
		if _, err := g.CreateEdge(cpat.ID, []values.GlyphId{cg, pg}, nil); err != nil {
			return err
		}
	}
	for _, def := range reg.AllRules() {
		if exists(ruleType.ID, def.Name) {
			continue
		}
		rg, err := g.CreateNode(ruleType.ID, map[string]values.Value{
			"name":     values.NewString(def.Name),
			"priority": values.NewInt(int64(def.Priority)),
			"auto":     values.NewBool(def.Auto),
		})
		if err != nil {
			return err
		}
		pg, err := g.CreateNode(patternType.ID, map[string]values.Value{
			"text": values.NewString(def.Pattern.String()),
		})
		if err != nil {
			return err
		}
		if _, err := g.CreateEdge(rpat.ID, []values.GlyphId{rg, pg}, nil); err != nil {
			return err
		}
	}
	return nil
}

func isMetaName(name string) bool {
	return len(name) > 0 && name[0] == '_'
}
