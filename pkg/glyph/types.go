// Package glyph implements MEW's glyph store: the columnar, arena-backed
// physical storage underneath a Session's Graph, holding one FamilyTable per
// node-type inheritance root and one EdgeTensor per edge type.
//
// A glyph is the single storage primitive: a node glyph occupies a row in
// its family's FamilyTable, an edge glyph occupies a row in its type's
// EdgeTensor, and both are named by the same GlyphId space; an edge can
// itself be the target of another edge's position (higher-order linking)
// without any special-casing in the store.
package glyph

import (
	"sync"

	"github.com/mewdb/mew/pkg/values"
)

// generation tracks the arena-slot reuse count backing use-after-kill
// detection: a GlyphId minted against generation g is rejected once the
// slot is recycled to generation g+1.
type generation = uint16

// slot is one arena row: live data plus bookkeeping shared by FamilyTable
// node rows and EdgeTensor edge rows.
type slot struct {
	gen   generation
	alive bool
	attrs map[values.AttrId]values.Value
}

// Clock abstracts wall-clock reads. Nothing in this package takes a Clock:
// slots record no creation or kill timestamps.
type Clock interface {
	Now() values.Value // must return a Value of Kind Timestamp
}

// rwGuard is the locking idiom every arena in this package follows: a single
// RWMutex guarding the slot vector, readers taking RLock and returning
// copies rather than live references. The concurrency shape is many
// concurrent readers against transactionally-serialized writers.
type rwGuard struct {
	mu sync.RWMutex
}
