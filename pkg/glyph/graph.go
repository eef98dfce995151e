package glyph

import (
	"fmt"
	"sync"

	"github.com/mewdb/mew/pkg/mewerr"
	"github.com/mewdb/mew/pkg/registry"
	"github.com/mewdb/mew/pkg/values"
)

// Graph is the physical glyph store for one Session: a FamilyTable per
// inheritance root, an EdgeTensor per edge type, and the attribute indexes
// declared [indexed]/[unique] across both. It is constructed
// against a fixed *registry.Registry and resolves every type/attr name
// against that schema; EXTEND ONTOLOGY builds a new Graph wrapping the new
// Registry rather than mutating this one in place.
type Graph struct {
	reg *registry.Registry

	tablesMu sync.RWMutex
	tables   map[values.TypeId]*FamilyTable // keyed by family root

	tensorsMu sync.RWMutex
	tensors   map[values.EdgeTypeId]*EdgeTensor

	indexMu sync.RWMutex
	// nodeIndex[attrKey] / edgeIndex[attrKey] hold one AttrIndex per
	// (owning type, attribute) pair declared indexed/unique; dynIndexes
	// marks node attribute indexes added at runtime via CREATE INDEX.
	nodeIndex  map[indexKey]*AttrIndex
	edgeIndex  map[indexKey]*AttrIndex
	dynIndexes map[indexKey]bool
}

type indexKey struct {
	typeID uint32
	attrID values.AttrId
}

// NewGraph creates an empty Graph over reg. The index for an indexed or
// unique attribute is created on first use, not here.
func NewGraph(reg *registry.Registry) *Graph {
	g := &Graph{
		reg:       reg,
		tables:    make(map[values.TypeId]*FamilyTable),
		tensors:   make(map[values.EdgeTypeId]*EdgeTensor),
		nodeIndex:  make(map[indexKey]*AttrIndex),
		edgeIndex:  make(map[indexKey]*AttrIndex),
		dynIndexes: make(map[indexKey]bool),
	}
	return g
}

// Registry returns the schema this Graph is built against.
func (g *Graph) Registry() *registry.Registry { return g.reg }

func (g *Graph) familyTable(root values.TypeId) *FamilyTable {
	g.tablesMu.Lock()
	defer g.tablesMu.Unlock()
	t, ok := g.tables[root]
	if !ok {
		t = NewFamilyTable(root)
		g.tables[root] = t
	}
	return t
}

func (g *Graph) edgeTensor(typ values.EdgeTypeId) *EdgeTensor {
	g.tensorsMu.Lock()
	defer g.tensorsMu.Unlock()
	t, ok := g.tensors[typ]
	if !ok {
		t = NewEdgeTensor(typ)
		g.tensors[typ] = t
	}
	return t
}

func (g *Graph) nodeAttrIndex(typ values.TypeId, attr values.AttrId, unique bool) *AttrIndex {
	g.indexMu.Lock()
	defer g.indexMu.Unlock()
	k := indexKey{uint32(typ), attr}
	idx, ok := g.nodeIndex[k]
	if !ok {
		idx = NewAttrIndex(unique)
		g.nodeIndex[k] = idx
	}
	return idx
}

func (g *Graph) edgeAttrIndex(typ values.EdgeTypeId, attr values.AttrId, unique bool) *AttrIndex {
	g.indexMu.Lock()
	defer g.indexMu.Unlock()
	k := indexKey{uint32(typ), attr}
	idx, ok := g.edgeIndex[k]
	if !ok {
		idx = NewAttrIndex(unique)
		g.edgeIndex[k] = idx
	}
	return idx
}

// CreateNode spawns a node glyph of typ with attrs keyed by attribute name,
// validating attribute names against the schema and maintaining any
// indexed/unique attribute indexes.
func (g *Graph) CreateNode(typ values.TypeId, attrs map[string]values.Value) (values.GlyphId, error) {
	def, ok := g.reg.TypeByID(typ)
	if !ok {
		return 0, mewerr.NotFound("node type", fmt.Sprintf("#%d", typ))
	}
	if def.Abstract {
		return 0, mewerr.New("E3002", "type", fmt.Sprintf("cannot spawn abstract type %q", def.Name))
	}
	byID := make(map[values.AttrId]values.Value, len(attrs))
	for name, v := range attrs {
		a, ok := def.AttrByName(name)
		if !ok {
			return 0, mewerr.NotFound("attribute", def.Name+"."+name)
		}
		byID[a.ID] = v
	}
	table := g.familyTable(def.FamilyRoot)
	id := table.Spawn(typ, byID)
	for _, a := range def.AllAttrs {
		if !g.nodeAttrIndexed(typ, a) {
			continue
		}
		if v, ok := byID[a.ID]; ok {
			if !g.nodeAttrIndex(typ, a.ID, a.Unique).Insert(v, id) {
				_ = g.Unspawn(id)
				return 0, mewerr.New("E2002", "constraint", fmt.Sprintf("attribute %q must be unique", a.Name))
			}
		}
	}
	return id, nil
}

// CreateEdge spawns an edge glyph of typ binding targets at positions in
// declared order, validating each target's runtime type against the
// position's declared type.
func (g *Graph) CreateEdge(typ values.EdgeTypeId, targets []values.GlyphId, attrs map[string]values.Value) (values.GlyphId, error) {
	def, ok := g.reg.EdgeTypeByID(typ)
	if !ok {
		return 0, mewerr.NotFound("edge type", fmt.Sprintf("#%d", typ))
	}
	if len(targets) != len(def.Positions) {
		return 0, mewerr.EdgeSignatureMismatch(def.Name, len(targets), fmt.Sprintf("%d positions", len(def.Positions)), fmt.Sprintf("%d targets", len(targets)))
	}
	for i, pos := range def.Positions {
		if err := g.checkPositionType(def.Name, i, pos, targets[i]); err != nil {
			return 0, err
		}
	}
	if def.NoSelf && len(targets) == 2 && targets[0] == targets[1] {
		return 0, mewerr.New("E2001", "constraint", fmt.Sprintf("edge type %q forbids a self-loop", def.Name))
	}
	byID := make(map[values.AttrId]values.Value, len(attrs))
	for name, v := range attrs {
		a, ok := def.AttrByName(name)
		if !ok {
			return 0, mewerr.NotFound("attribute", def.Name+"."+name)
		}
		byID[a.ID] = v
	}
	tensor := g.edgeTensor(typ)
	id := tensor.Spawn(targets, byID)
	for _, a := range def.Attrs {
		if !a.Indexed && !a.Unique {
			continue
		}
		if v, ok := byID[a.ID]; ok {
			if !g.edgeAttrIndex(typ, a.ID, a.Unique).Insert(v, id) {
				_ = g.Unspawn(id)
				return 0, mewerr.New("E2002", "constraint", fmt.Sprintf("attribute %q must be unique", a.Name))
			}
		}
	}
	return id, nil
}

func (g *Graph) checkPositionType(edgeName string, i int, pos registry.PositionDef, target values.GlyphId) error {
	if pos.TargetIsAny {
		return nil
	}
	if pos.TargetEdgeAny {
		if !target.IsEdge() {
			return mewerr.EdgeSignatureMismatch(edgeName, i, "edge<any>", "node")
		}
		return nil
	}
	if pos.TargetEdgeType != values.InvalidEdgeTypeId {
		if !target.IsEdge() || target.EdgeTypeId() != pos.TargetEdgeType {
			return mewerr.EdgeSignatureMismatch(edgeName, i, fmt.Sprintf("edge<%d>", pos.TargetEdgeType), "mismatched")
		}
		return nil
	}
	if target.IsEdge() {
		return mewerr.EdgeSignatureMismatch(edgeName, i, "node", "edge")
	}
	typ := target.TypeId()
	if pos.TargetIsUnion {
		for _, u := range pos.UnionTypes {
			if g.reg.IsSubtype(typ, u) {
				return nil
			}
		}
		return mewerr.EdgeSignatureMismatch(edgeName, i, "union type", fmt.Sprintf("type %d", typ))
	}
	if !g.reg.IsSubtype(typ, pos.TargetType) {
		return mewerr.EdgeSignatureMismatch(edgeName, i, fmt.Sprintf("type %d", pos.TargetType), fmt.Sprintf("type %d", typ))
	}
	return nil
}

// SetAttr overwrites one attribute on a live node or edge glyph by name,
// maintaining any attribute index.
func (g *Graph) SetAttr(id values.GlyphId, name string, v values.Value) error {
	if id.IsEdge() {
		def, ok := g.reg.EdgeTypeByID(id.EdgeTypeId())
		if !ok {
			return mewerr.NotFound("edge type", fmt.Sprintf("#%d", id.EdgeTypeId()))
		}
		a, ok := def.AttrByName(name)
		if !ok {
			return mewerr.NotFound("attribute", def.Name+"."+name)
		}
		tensor := g.edgeTensor(id.EdgeTypeId())
		if old, had, _ := tensor.Attr(id, a.ID); had && (a.Indexed || a.Unique) {
			g.edgeAttrIndex(id.EdgeTypeId(), a.ID, a.Unique).Remove(old, id)
		}
		if err := tensor.SetAttr(id, a.ID, v); err != nil {
			return err
		}
		if a.Indexed || a.Unique {
			if !g.edgeAttrIndex(id.EdgeTypeId(), a.ID, a.Unique).Insert(v, id) {
				return mewerr.New("E2002", "constraint", fmt.Sprintf("attribute %q must be unique", name))
			}
		}
		return nil
	}
	typ := id.TypeId()
	def, ok := g.reg.TypeByID(typ)
	if !ok {
		return mewerr.NotFound("node type", fmt.Sprintf("#%d", typ))
	}
	a, ok := def.AttrByName(name)
	if !ok {
		return mewerr.NotFound("attribute", def.Name+"."+name)
	}
	table := g.familyTable(def.FamilyRoot)
	indexed := g.nodeAttrIndexed(typ, a)
	if old, had, _ := table.Attr(id, a.ID); had && indexed {
		g.nodeAttrIndex(typ, a.ID, a.Unique).Remove(old, id)
	}
	if err := table.SetAttr(id, a.ID, v); err != nil {
		return err
	}
	if indexed {
		if !g.nodeAttrIndex(typ, a.ID, a.Unique).Insert(v, id) {
			return mewerr.New("E2002", "constraint", fmt.Sprintf("attribute %q must be unique", name))
		}
	}
	return nil
}

// Attr reads one attribute value off a live glyph by name.
func (g *Graph) Attr(id values.GlyphId, name string) (values.Value, bool, error) {
	if id.IsEdge() {
		def, ok := g.reg.EdgeTypeByID(id.EdgeTypeId())
		if !ok {
			return values.Null, false, mewerr.NotFound("edge type", fmt.Sprintf("#%d", id.EdgeTypeId()))
		}
		a, ok := def.AttrByName(name)
		if !ok {
			return values.Null, false, mewerr.NotFound("attribute", def.Name+"."+name)
		}
		return g.edgeTensor(id.EdgeTypeId()).Attr(id, a.ID)
	}
	def, ok := g.reg.TypeByID(id.TypeId())
	if !ok {
		return values.Null, false, mewerr.NotFound("node type", fmt.Sprintf("#%d", id.TypeId()))
	}
	a, ok := def.AttrByName(name)
	if !ok {
		return values.Null, false, mewerr.NotFound("attribute", def.Name+"."+name)
	}
	return g.familyTable(def.FamilyRoot).Attr(id, a.ID)
}

// Alive reports whether id currently resolves to a live glyph.
func (g *Graph) Alive(id values.GlyphId) bool {
	if id.IsEdge() {
		return g.edgeTensor(id.EdgeTypeId()).Alive(id)
	}
	def, ok := g.reg.TypeByID(id.TypeId())
	if !ok {
		return false
	}
	return g.familyTable(def.FamilyRoot).Alive(id)
}

// Kill removes a node or edge glyph. Referential-action cascades and
// affected-constraint/rule re-evaluation are the mutation executor's
// responsibility (pkg/mutate); Kill itself only removes the one glyph and
// its edge-tensor adjacency entries.
func (g *Graph) Kill(id values.GlyphId) error {
	if id.IsEdge() {
		return g.edgeTensor(id.EdgeTypeId()).Kill(id)
	}
	def, ok := g.reg.TypeByID(id.TypeId())
	if !ok {
		return mewerr.NotFound("node type", fmt.Sprintf("#%d", id.TypeId()))
	}
	return g.familyTable(def.FamilyRoot).Kill(id)
}

// IterType calls fn for every live node glyph whose runtime type is typ or
// a subtype of it, in arena order.
func (g *Graph) IterType(typ values.TypeId, fn func(values.GlyphId) bool) {
	def, ok := g.reg.TypeByID(typ)
	if !ok {
		return
	}
	table := g.familyTable(def.FamilyRoot)
	table.ForEach(func(t values.TypeId) bool { return g.reg.IsSubtype(t, typ) }, fn)
}

// IterEdgeType calls fn for every live edge glyph of exactly edgeType.
func (g *Graph) IterEdgeType(edgeType values.EdgeTypeId, fn func(values.GlyphId) bool) {
	g.edgeTensor(edgeType).ForEach(fn)
}

// Targets returns the glyphs bound at each position of a live edge.
func (g *Graph) Targets(edge values.GlyphId) ([]values.GlyphId, error) {
	return g.edgeTensor(edge.EdgeTypeId()).Targets(edge)
}

// Neighbors returns every live edge of edgeType incident to g at any
// position.
func (g *Graph) Neighbors(glyphID values.GlyphId, edgeType values.EdgeTypeId) []values.GlyphId {
	return g.edgeTensor(edgeType).Incident(glyphID)
}

// LookupByAttr returns every node glyph of typ whose attr attribute equals
// v, using the attribute's index when one exists and falling back to a
// full family-table scan otherwise.
func (g *Graph) LookupByAttr(typ values.TypeId, attrName string, v values.Value) ([]values.GlyphId, error) {
	def, ok := g.reg.TypeByID(typ)
	if !ok {
		return nil, mewerr.NotFound("node type", fmt.Sprintf("#%d", typ))
	}
	a, ok := def.AttrByName(attrName)
	if !ok {
		return nil, mewerr.NotFound("attribute", def.Name+"."+attrName)
	}
	if g.nodeAttrIndexed(typ, a) {
		return g.nodeAttrIndex(typ, a.ID, a.Unique).Lookup(v), nil
	}
	var out []values.GlyphId
	g.IterType(typ, func(id values.GlyphId) bool {
		if cur, had, _ := g.familyTable(def.FamilyRoot).Attr(id, a.ID); had && cur.Equal(v) {
			out = append(out, id)
		}
		return true
	})
	return out, nil
}
