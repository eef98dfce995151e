package glyph

import (
	"github.com/mewdb/mew/pkg/mewerr"
	"github.com/mewdb/mew/pkg/values"
)

// FamilyTable is the columnar arena backing every node glyph whose type
// shares a given inheritance root, so a scan over an abstract ancestor
// type is a single contiguous walk rather than a fan-out across
// per-concrete-type tables.
type FamilyTable struct {
	rwGuard
	root   values.TypeId
	rows   []slot
	typeOf []values.TypeId // concrete runtime type of each occupied row
	free   []uint32
}

// NewFamilyTable creates an empty table rooted at root.
func NewFamilyTable(root values.TypeId) *FamilyTable {
	return &FamilyTable{root: root}
}

// Root returns the inheritance root this table is keyed by.
func (t *FamilyTable) Root() values.TypeId { return t.root }

func (t *FamilyTable) allocSlot() uint32 {
	if n := len(t.free); n > 0 {
		s := t.free[n-1]
		t.free = t.free[:n-1]
		return s
	}
	t.rows = append(t.rows, slot{})
	t.typeOf = append(t.typeOf, values.InvalidTypeId)
	return uint32(len(t.rows) - 1)
}

// Spawn creates a new node glyph of concrete type typ with the given
// initial attribute values, returning its GlyphId.
func (t *FamilyTable) Spawn(typ values.TypeId, attrs map[values.AttrId]values.Value) values.GlyphId {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := t.allocSlot()
	t.rows[idx].alive = true
	if t.rows[idx].attrs == nil {
		t.rows[idx].attrs = make(map[values.AttrId]values.Value, len(attrs))
	}
	for k, v := range attrs {
		t.rows[idx].attrs[k] = v
	}
	t.typeOf[idx] = typ
	return values.NewNodeGlyphId(typ, t.rows[idx].gen, idx)
}

func (t *FamilyTable) resolve(id values.GlyphId) (uint32, bool) {
	slotIdx := id.Slot()
	if int(slotIdx) >= len(t.rows) {
		return 0, false
	}
	row := &t.rows[slotIdx]
	if !row.alive || row.gen != id.Generation() {
		return 0, false
	}
	return slotIdx, true
}

// Attr reads a single attribute value of a live glyph.
func (t *FamilyTable) Attr(id values.GlyphId, attr values.AttrId) (values.Value, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.resolve(id)
	if !ok {
		return values.Null, false, mewerr.NotFound("glyph", id.String())
	}
	v, ok := t.rows[idx].attrs[attr]
	return v, ok, nil
}

// Attrs returns a copy of every attribute value held on a live glyph.
func (t *FamilyTable) Attrs(id values.GlyphId) (map[values.AttrId]values.Value, error) {
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

// TypeOf returns the concrete runtime type of a live glyph.
func (t *FamilyTable) TypeOf(id values.GlyphId) (values.TypeId, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.resolve(id)
	if !ok {
		return values.InvalidTypeId, false
	}
	return t.typeOf[idx], true
}

// SetAttr overwrites one attribute value on a live glyph.
func (t *FamilyTable) SetAttr(id values.GlyphId, attr values.AttrId, v values.Value) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx, ok := t.resolve(id)
	if !ok {
		return mewerr.NotFound("glyph", id.String())
	}
	t.rows[idx].attrs[attr] = v
	return nil
}

// Kill marks a glyph dead and bumps its slot's generation, releasing the
// slot back to the free list for reuse. Any GlyphId minted against the old
// generation becomes permanently unresolvable (use-after-kill
// detection).
func (t *FamilyTable) Kill(id values.GlyphId) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx, ok := t.resolve(id)
	if !ok {
		return mewerr.NotFound("glyph", id.String())
	}
	t.rows[idx].alive = false
	t.rows[idx].attrs = nil
	t.rows[idx].gen++
	t.typeOf[idx] = values.InvalidTypeId
	t.free = append(t.free, idx)
	return nil
}

// Alive reports whether id currently resolves to a live glyph.
func (t *FamilyTable) Alive(id values.GlyphId) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.resolve(id)
	return ok
}

// ForEach calls fn for every live glyph whose concrete type satisfies keep,
// in arena order. fn's return value stops iteration early when false.
func (t *FamilyTable) ForEach(keep func(values.TypeId) bool, fn func(values.GlyphId) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for idx := range t.rows {
		row := &t.rows[idx]
		if !row.alive {
			continue
		}
		typ := t.typeOf[idx]
		if keep != nil && !keep(typ) {
			continue
		}
		id := values.NewNodeGlyphId(typ, row.gen, uint32(idx))
		if !fn(id) {
			return
		}
	}
}

// Len returns the number of currently live glyphs in the table.
func (t *FamilyTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for i := range t.rows {
		if t.rows[i].alive {
			n++
		}
	}
	return n
}
