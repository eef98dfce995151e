package glyph

import (
	"fmt"

	"github.com/mewdb/mew/pkg/mewerr"
	"github.com/mewdb/mew/pkg/registry"
	"github.com/mewdb/mew/pkg/values"
)

// This file holds the rollback half of the staged-effect contract: a
// transaction applies mutations eagerly (read-your-writes inside
// the transaction comes for free that way) and keeps before-images; on
// rollback the before-images are replayed in reverse through Unspawn and
// Restore, leaving the store byte-identical to the pre-transaction state,
// including GlyphIds, since Restore reinstates a slot's original generation.

// Unspawn reverses a Spawn within the same transaction: the slot is freed
// without bumping its generation, so a re-applied Spawn mints the identical
// GlyphId (determinism).
func (t *FamilyTable) Unspawn(id values.GlyphId) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx, ok := t.resolve(id)
	if !ok {
		return mewerr.NotFound("glyph", id.String())
	}
	t.rows[idx].alive = false
	t.rows[idx].attrs = nil
	t.typeOf[idx] = values.InvalidTypeId
	t.free = append(t.free, idx)
	return nil
}

// Restore reverses a Kill: the slot named by id is re-occupied with its
// original generation, concrete type, and attribute values.
func (t *FamilyTable) Restore(id values.GlyphId, typ values.TypeId, attrs map[values.AttrId]values.Value) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := id.Slot()
	if int(idx) >= len(t.rows) || t.rows[idx].alive {
		return mewerr.Internal(fmt.Sprintf("restore of %s: slot not restorable", id))
	}
	row := &t.rows[idx]
	row.gen = id.Generation()
	row.alive = true
	row.attrs = make(map[values.AttrId]values.Value, len(attrs))
	for k, v := range attrs {
		row.attrs[k] = v
	}
	t.typeOf[idx] = typ
	t.unfree(idx)
	return nil
}

func (t *FamilyTable) unfree(idx uint32) {
	for i, f := range t.free {
		if f == idx {
			t.free[i] = t.free[len(t.free)-1]
			t.free = t.free[:len(t.free)-1]
			return
		}
	}
}

// Attrs returns a copy of a live edge's attribute values.
func (t *EdgeTensor) Attrs(id values.GlyphId) (map[values.AttrId]values.Value, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.resolve(id)
	if !ok {
		return nil, mewerr.NotFound("glyph", id.String())
	}
	out := make(map[values.AttrId]values.Value, len(t.rows[idx].attrs))
	for k, v := range t.rows[idx].attrs {
		out[k] = v
	}
	return out, nil
}

// Unspawn reverses a Spawn of an edge glyph within the same transaction,
// freeing the slot without a generation bump.
func (t *EdgeTensor) Unspawn(id values.GlyphId) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx, ok := t.resolve(id)
	if !ok {
		return mewerr.NotFound("glyph", id.String())
	}
	row := &t.rows[idx]
	for _, g := range row.targets {
		t.removeIncident(g, idx)
	}
	row.alive = false
	row.attrs = nil
	row.targets = nil
	t.free = append(t.free, idx)
	return nil
}

// Restore reverses a Kill of an edge glyph, reinstating its targets,
// attributes, and incident-index entries under the original generation.
func (t *EdgeTensor) Restore(id values.GlyphId, targets []values.GlyphId, attrs map[values.AttrId]values.Value) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := id.Slot()
	if int(idx) >= len(t.rows) || t.rows[idx].alive {
		return mewerr.Internal(fmt.Sprintf("restore of %s: slot not restorable", id))
	}
	row := &t.rows[idx]
	row.gen = id.Generation()
	row.alive = true
	row.targets = append([]values.GlyphId(nil), targets...)
	row.attrs = make(map[values.AttrId]values.Value, len(attrs))
	for k, v := range attrs {
		row.attrs[k] = v
	}
	for _, g := range targets {
		t.incident[g] = append(t.incident[g], idx)
	}
	t.unfree(idx)
	return nil
}

func (t *EdgeTensor) unfree(idx uint32) {
	for i, f := range t.free {
		if f == idx {
			t.free[i] = t.free[len(t.free)-1]
			t.free = t.free[:len(t.free)-1]
			return
		}
	}
}

// Unspawn reverses a CreateNode/CreateEdge of the current transaction,
// removing any attribute-index entries the create inserted.
func (g *Graph) Unspawn(id values.GlyphId) error {
	if id.IsEdge() {
		def, ok := g.reg.EdgeTypeByID(id.EdgeTypeId())
		if !ok {
			return mewerr.NotFound("edge type", fmt.Sprintf("#%d", id.EdgeTypeId()))
		}
		tensor := g.edgeTensor(id.EdgeTypeId())
		for _, a := range def.Attrs {
			if !a.Indexed && !a.Unique {
				continue
			}
			if v, had, _ := tensor.Attr(id, a.ID); had {
				g.edgeAttrIndex(id.EdgeTypeId(), a.ID, a.Unique).Remove(v, id)
			}
		}
		return tensor.Unspawn(id)
	}
	typ := id.TypeId()
	def, ok := g.reg.TypeByID(typ)
	if !ok {
		return mewerr.NotFound("node type", fmt.Sprintf("#%d", typ))
	}
	table := g.familyTable(def.FamilyRoot)
	for _, a := range def.AllAttrs {
		if !g.nodeAttrIndexed(typ, a) {
			continue
		}
		if v, had, _ := table.Attr(id, a.ID); had {
			g.nodeAttrIndex(typ, a.ID, a.Unique).Remove(v, id)
		}
	}
	return table.Unspawn(id)
}

// RestoreNode reverses a Kill of a node glyph, reinstating its attribute
// values (keyed by attribute name) and any index entries.
func (g *Graph) RestoreNode(id values.GlyphId, attrs map[string]values.Value) error {
	typ := id.TypeId()
	def, ok := g.reg.TypeByID(typ)
	if !ok {
		return mewerr.NotFound("node type", fmt.Sprintf("#%d", typ))
	}
	byID := make(map[values.AttrId]values.Value, len(attrs))
	for name, v := range attrs {
		a, ok := def.AttrByName(name)
		if !ok {
			return mewerr.NotFound("attribute", def.Name+"."+name)
		}
		byID[a.ID] = v
	}
	if err := g.familyTable(def.FamilyRoot).Restore(id, typ, byID); err != nil {
		return err
	}
	for _, a := range def.AllAttrs {
		if !g.nodeAttrIndexed(typ, a) {
			continue
		}
		if v, ok := byID[a.ID]; ok {
			g.nodeAttrIndex(typ, a.ID, a.Unique).Insert(v, id)
		}
	}
	return nil
}

// RestoreEdge reverses a Kill of an edge glyph.
func (g *Graph) RestoreEdge(id values.GlyphId, targets []values.GlyphId, attrs map[string]values.Value) error {
	def, ok := g.reg.EdgeTypeByID(id.EdgeTypeId())
	if !ok {
		return mewerr.NotFound("edge type", fmt.Sprintf("#%d", id.EdgeTypeId()))
	}
	byID := make(map[values.AttrId]values.Value, len(attrs))
	for name, v := range attrs {
		a, ok := def.AttrByName(name)
		if !ok {
			return mewerr.NotFound("attribute", def.Name+"."+name)
		}
		byID[a.ID] = v
	}
	if err := g.edgeTensor(id.EdgeTypeId()).Restore(id, targets, byID); err != nil {
		return err
	}
	for _, a := range def.Attrs {
		if !a.Indexed && !a.Unique {
			continue
		}
		if v, ok := byID[a.ID]; ok {
			g.edgeAttrIndex(id.EdgeTypeId(), a.ID, a.Unique).Insert(v, id)
		}
	}
	return nil
}

// nodeAttrIndexed reports whether (typ, a) carries an index, either declared
// in the schema ([indexed]/[unique]) or created at runtime via CREATE INDEX.
func (g *Graph) nodeAttrIndexed(typ values.TypeId, a registry.AttrDef) bool {
	if a.Indexed || a.Unique {
		return true
	}
	g.indexMu.RLock()
	defer g.indexMu.RUnlock()
	return g.dynIndexes[indexKey{uint32(typ), a.ID}]
}
