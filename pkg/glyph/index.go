package glyph

import "github.com/mewdb/mew/pkg/values"

// indexEntry is one (value, glyph) pair held by an AttrIndex bucket.
type indexEntry struct {
	value values.Value
	glyph values.GlyphId
}

// AttrIndex is a hash-bucketed index over one declared attribute of one
// node or edge type, built for attributes marked [indexed] or [unique].
// Buckets key on values.HashScalar so the index never depends
// on Value being a comparable Go type; within a bucket, membership and
// point lookups resolve hash collisions with Value.Equal.
type AttrIndex struct {
	rwGuard
	unique  bool
	buckets map[uint64][]indexEntry
}

// NewAttrIndex creates an empty index; unique enforces at most one glyph
// per distinct value.
func NewAttrIndex(unique bool) *AttrIndex {
	return &AttrIndex{unique: unique, buckets: make(map[uint64][]indexEntry)}
}

// Insert adds (v, g) to the index. It returns false without modifying the
// index if unique is set and v already maps to a different glyph.
func (idx *AttrIndex) Insert(v values.Value, g values.GlyphId) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	h := values.HashScalar(v)
	bucket := idx.buckets[h]
	if idx.unique {
		for _, e := range bucket {
			if e.value.Equal(v) && e.glyph != g {
				return false
			}
		}
	}
	idx.buckets[h] = append(bucket, indexEntry{value: v, glyph: g})
	return true
}

// Remove deletes the (v, g) pair from the index, if present.
func (idx *AttrIndex) Remove(v values.Value, g values.GlyphId) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	h := values.HashScalar(v)
	bucket := idx.buckets[h]
	for i, e := range bucket {
		if e.value.Equal(v) && e.glyph == g {
			bucket[i] = bucket[len(bucket)-1]
			bucket = bucket[:len(bucket)-1]
			break
		}
	}
	if len(bucket) == 0 {
		delete(idx.buckets, h)
	} else {
		idx.buckets[h] = bucket
	}
}

// Lookup returns every glyph currently indexed under value v.
func (idx *AttrIndex) Lookup(v values.Value) []values.GlyphId {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	h := values.HashScalar(v)
	var out []values.GlyphId
	for _, e := range idx.buckets[h] {
		if e.value.Equal(v) {
			out = append(out, e.glyph)
		}
	}
	return out
}

// Scan calls fn for every (value, glyph) pair in the index, in unspecified
// order. Callers needing ASC/DESC order sort the result themselves; the
// index trades order for O(1) point lookup, since point and attr-equality
// lookups are the common case.
func (idx *AttrIndex) Scan(fn func(values.Value, values.GlyphId) bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for _, bucket := range idx.buckets {
		for _, e := range bucket {
			if !fn(e.value, e.glyph) {
				return
			}
		}
	}
}
