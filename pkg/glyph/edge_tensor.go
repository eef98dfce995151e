package glyph

import (
	"github.com/mewdb/mew/pkg/mewerr"
	"github.com/mewdb/mew/pkg/values"
)

// edgeRow is one arena row of an EdgeTensor: the glyph bound at each of the
// edge type's declared positions, plus the edge's own attributes.
type edgeRow struct {
	slot
	targets []values.GlyphId // one per PositionDef, in declaration order
}

// EdgeTensor is the CSR-like adjacency structure backing every edge glyph of
// one edge type: a dense arena of edge rows plus a position-aware index
// mapping each incident glyph to the edge rows that bind it, so
// neighbors-of and position-cardinality checks are O(degree) rather than a
// full tensor scan.
type EdgeTensor struct {
	rwGuard
	typ  values.EdgeTypeId
	rows []edgeRow
	free []uint32

	// incident[g] lists the row indices of every edge with g bound at any
	// position: the forward+reverse adjacency index in one map, since a
	// glyph's "neighbors" query needs both directions regardless of which
	// position it occupies.
	incident map[values.GlyphId][]uint32
}

// NewEdgeTensor creates an empty tensor for edge type typ.
func NewEdgeTensor(typ values.EdgeTypeId) *EdgeTensor {
	return &EdgeTensor{typ: typ, incident: make(map[values.GlyphId][]uint32)}
}

// Type returns the edge type this tensor stores.
func (t *EdgeTensor) Type() values.EdgeTypeId { return t.typ }

func (t *EdgeTensor) allocSlot() uint32 {
	if n := len(t.free); n > 0 {
		s := t.free[n-1]
		t.free = t.free[:n-1]
		return s
	}
	t.rows = append(t.rows, edgeRow{})
	return uint32(len(t.rows) - 1)
}

// Spawn creates a new edge glyph binding targets (one glyph per declared
// position, in order) with the given initial attribute values.
func (t *EdgeTensor) Spawn(targets []values.GlyphId, attrs map[values.AttrId]values.Value) values.GlyphId {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := t.allocSlot()
	row := &t.rows[idx]
	row.alive = true
	row.targets = append([]values.GlyphId(nil), targets...)
	if row.attrs == nil {
		row.attrs = make(map[values.AttrId]values.Value, len(attrs))
	} else {
		for k := range row.attrs {
			delete(row.attrs, k)
		}
	}
	for k, v := range attrs {
		row.attrs[k] = v
	}
	id := values.NewEdgeGlyphId(t.typ, row.gen, idx)
	for _, g := range targets {
		t.incident[g] = append(t.incident[g], idx)
	}
	return id
}

func (t *EdgeTensor) resolve(id values.GlyphId) (uint32, bool) {
	idx := id.Slot()
	if int(idx) >= len(t.rows) {
		return 0, false
	}
	row := &t.rows[idx]
	if !row.alive || row.gen != id.Generation() {
		return 0, false
	}
	return idx, true
}

// Targets returns the glyphs bound at each position of a live edge, in
// declared position order.
func (t *EdgeTensor) Targets(id values.GlyphId) ([]values.GlyphId, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.resolve(id)
	if !ok {
		return nil, mewerr.NotFound("glyph", id.String())
	}
	return append([]values.GlyphId(nil), t.rows[idx].targets...), nil
}

// Attr reads one edge attribute.
func (t *EdgeTensor) Attr(id values.GlyphId, attr values.AttrId) (values.Value, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.resolve(id)
	if !ok {
		return values.Null, false, mewerr.NotFound("glyph", id.String())
	}
	v, ok := t.rows[idx].attrs[attr]
	return v, ok, nil
}

// SetAttr overwrites one edge attribute.
func (t *EdgeTensor) SetAttr(id values.GlyphId, attr values.AttrId, v values.Value) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx, ok := t.resolve(id)
	if !ok {
		return mewerr.NotFound("glyph", id.String())
	}
	t.rows[idx].attrs[attr] = v
	return nil
}

// Retarget rebinds the glyph at position i of a live edge, updating the
// incident index for both the old and new target (used by referential
// actions that must move rather than unlink; kept for completeness of the
// adjacency index contract).
func (t *EdgeTensor) Retarget(id values.GlyphId, position int, newTarget values.GlyphId) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx, ok := t.resolve(id)
	if !ok {
		return mewerr.NotFound("glyph", id.String())
	}
	old := t.rows[idx].targets[position]
	t.rows[idx].targets[position] = newTarget
	t.removeIncident(old, idx)
	t.incident[newTarget] = append(t.incident[newTarget], idx)
	return nil
}

// Kill removes an edge glyph, clearing it from every incident index entry
// and bumping its slot generation.
func (t *EdgeTensor) Kill(id values.GlyphId) error {
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
	row.gen++
	t.free = append(t.free, idx)
	return nil
}

func (t *EdgeTensor) removeIncident(g values.GlyphId, idx uint32) {
	list := t.incident[g]
	for i, v := range list {
		if v == idx {
			list[i] = list[len(list)-1]
			list = list[:len(list)-1]
			break
		}
	}
	if len(list) == 0 {
		delete(t.incident, g)
	} else {
		t.incident[g] = list
	}
}

// Incident returns every live edge glyph (of this type) that binds g at any
// position; the primitive neighbors-of and cardinality-check queries are
// both built on this.
func (t *EdgeTensor) Incident(g values.GlyphId) []values.GlyphId {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rows := t.incident[g]
	out := make([]values.GlyphId, 0, len(rows))
	for _, idx := range rows {
		row := &t.rows[idx]
		if !row.alive {
			continue
		}
		out = append(out, values.NewEdgeGlyphId(t.typ, row.gen, idx))
	}
	return out
}

// PositionCount returns how many live edges currently bind g at position i
// specifically (used by cardinality-modifier enforcement).
func (t *EdgeTensor) PositionCount(g values.GlyphId, position int) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, idx := range t.incident[g] {
		row := &t.rows[idx]
		if row.alive && position < len(row.targets) && row.targets[position] == g {
			n++
		}
	}
	return n
}

// Alive reports whether id currently resolves to a live edge glyph.
func (t *EdgeTensor) Alive(id values.GlyphId) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.resolve(id)
	return ok
}

// ForEach calls fn for every live edge glyph, in arena order.
func (t *EdgeTensor) ForEach(fn func(values.GlyphId) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for idx := range t.rows {
		row := &t.rows[idx]
		if !row.alive {
			continue
		}
		if !fn(values.NewEdgeGlyphId(t.typ, row.gen, uint32(idx))) {
			return
		}
	}
}

// Len returns the number of currently live edge glyphs.
func (t *EdgeTensor) Len() int {
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
