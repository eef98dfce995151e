package glyph

import (
	"fmt"

	"github.com/mewdb/mew/pkg/mewerr"
	"github.com/mewdb/mew/pkg/registry"
	"github.com/mewdb/mew/pkg/values"
)

// CreateIndex builds a runtime attribute index over every subtype of
// typeName (CREATE INDEX ON T(attr)), backfilling it from the current live
// glyphs. Creating an index that already exists is a no-op.
func (g *Graph) CreateIndex(typeName, attrName string) error {
	def, ok := g.reg.TypeByName(typeName)
	if !ok {
		return mewerr.NotFound("node type", typeName)
	}
	if _, ok := def.AttrByName(attrName); !ok {
		return mewerr.NotFound("attribute", typeName+"."+attrName)
	}
	for _, sub := range g.reg.SubtypesOf(def.ID) {
		subDef, ok := g.reg.TypeByID(sub)
		if !ok {
			continue
		}
		sa, ok := subDef.AttrByName(attrName)
		if !ok {
			continue
		}
		k := indexKey{uint32(sub), sa.ID}
		g.indexMu.Lock()
		already := g.dynIndexes[k] || sa.Indexed || sa.Unique
		if !already {
			g.dynIndexes[k] = true
		}
		g.indexMu.Unlock()
		if already {
			continue
		}
		idx := g.nodeAttrIndex(sub, sa.ID, sa.Unique)
		table := g.familyTable(subDef.FamilyRoot)
		table.ForEach(func(t values.TypeId) bool { return t == sub }, func(id values.GlyphId) bool {
			if v, had, _ := table.Attr(id, sa.ID); had {
				idx.Insert(v, id)
			}
			return true
		})
	}
	return nil
}

// DropIndex removes a runtime index created by CreateIndex. Indexes declared
// in the ontology ([indexed]/[unique]) cannot be dropped at runtime.
func (g *Graph) DropIndex(typeName, attrName string) error {
	def, ok := g.reg.TypeByName(typeName)
	if !ok {
		return mewerr.NotFound("node type", typeName)
	}
	a, ok := def.AttrByName(attrName)
	if !ok {
		return mewerr.NotFound("attribute", typeName+"."+attrName)
	}
	if a.Indexed || a.Unique {
		return mewerr.New("E1001", mewerr.CategorySyntax,
			fmt.Sprintf("index on %s.%s is declared in the ontology and cannot be dropped", typeName, attrName),
			"remove the [indexed]/[unique] modifier in the ontology instead")
	}
	dropped := false
	for _, sub := range g.reg.SubtypesOf(def.ID) {
		subDef, ok := g.reg.TypeByID(sub)
		if !ok {
			continue
		}
		sa, ok := subDef.AttrByName(attrName)
		if !ok {
			continue
		}
		k := indexKey{uint32(sub), sa.ID}
		g.indexMu.Lock()
		if g.dynIndexes[k] {
			delete(g.dynIndexes, k)
			delete(g.nodeIndex, k)
			dropped = true
		}
		g.indexMu.Unlock()
	}
	if !dropped {
		return mewerr.NotFound("index", typeName+"."+attrName)
	}
	return nil
}

// HasIndex reports whether typeName.attrName is currently indexed, either
// by declaration or at runtime.
func (g *Graph) HasIndex(typeName, attrName string) bool {
	def, ok := g.reg.TypeByName(typeName)
	if !ok {
		return false
	}
	a, ok := def.AttrByName(attrName)
	if !ok {
		return false
	}
	return g.nodeAttrIndexed(def.ID, a)
}

// TypeName returns the declared type name of a live glyph's node or edge
// type, or "" when the id does not resolve against the schema.
func (g *Graph) TypeName(id values.GlyphId) string {
	if id.IsEdge() {
		if def, ok := g.reg.EdgeTypeByID(id.EdgeTypeId()); ok {
			return def.Name
		}
		return ""
	}
	if def, ok := g.reg.TypeByID(id.TypeId()); ok {
		return def.Name
	}
	return ""
}

// AttrsByName returns every attribute value held on a live glyph, keyed by
// declared attribute name (INSPECT's data payload and the mutation
// executor's kill before-images both read through this).
func (g *Graph) AttrsByName(id values.GlyphId) (map[string]values.Value, error) {
	if id.IsEdge() {
		def, ok := g.reg.EdgeTypeByID(id.EdgeTypeId())
		if !ok {
			return nil, mewerr.NotFound("edge type", fmt.Sprintf("#%d", id.EdgeTypeId()))
		}
		byID, err := g.edgeTensor(id.EdgeTypeId()).Attrs(id)
		if err != nil {
			return nil, err
		}
		out := make(map[string]values.Value, len(byID))
		for _, a := range def.Attrs {
			if v, ok := byID[a.ID]; ok {
				out[a.Name] = v
			}
		}
		return out, nil
	}
	def, ok := g.reg.TypeByID(id.TypeId())
	if !ok {
		return nil, mewerr.NotFound("node type", fmt.Sprintf("#%d", id.TypeId()))
	}
	byID, err := g.familyTable(def.FamilyRoot).Attrs(id)
	if err != nil {
		return nil, err
	}
	out := make(map[string]values.Value, len(byID))
	for _, a := range def.AllAttrs {
		if v, ok := byID[a.ID]; ok {
			out[a.Name] = v
		}
	}
	return out, nil
}

// PositionCount returns how many live edges of edgeType bind glyph at the
// given signature position (cardinality enforcement).
func (g *Graph) PositionCount(glyph values.GlyphId, edgeType values.EdgeTypeId, position int) int {
	return g.edgeTensor(edgeType).PositionCount(glyph, position)
}

// NodeCount returns the number of live node glyphs whose concrete type is
// exactly typ.
func (g *Graph) NodeCount(typ values.TypeId) int {
	def, ok := g.reg.TypeByID(typ)
	if !ok {
		return 0
	}
	n := 0
	g.familyTable(def.FamilyRoot).ForEach(func(t values.TypeId) bool { return t == typ }, func(values.GlyphId) bool {
		n++
		return true
	})
	return n
}

// EdgeCount returns the number of live edge glyphs of edgeType.
func (g *Graph) EdgeCount(edgeType values.EdgeTypeId) int {
	return g.edgeTensor(edgeType).Len()
}

// CloneWith rebinds this Graph's storage to a superset Registry produced by
// EXTEND ONTOLOGY. The underlying tables and tensors are carried over (not
// copied; the old Graph must not be used afterward). The new Registry must
// assign identical ids to every type the old one knew, which the compiler
// guarantees by recompiling the accumulated ontology AST in declaration
// order.
func (g *Graph) CloneWith(reg *registry.Registry) *Graph {
	g.tablesMu.Lock()
	defer g.tablesMu.Unlock()
	g.tensorsMu.Lock()
	defer g.tensorsMu.Unlock()
	g.indexMu.Lock()
	defer g.indexMu.Unlock()
	ng := &Graph{
		reg:        reg,
		tables:     g.tables,
		tensors:    g.tensors,
		nodeIndex:  g.nodeIndex,
		edgeIndex:  g.edgeIndex,
		dynIndexes: g.dynIndexes,
	}
	return ng
}
