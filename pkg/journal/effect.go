// Package journal records the effect stream of committed transactions:
// every mutation is appended as a record before (or atomically with) the
// commit becoming visible, so a Session can replay the journal to
// reconstruct graph state after a restart. The default Session wiring uses
// NoopJournal for in-memory-only operation; BadgerJournal is the durable
// option: sequence-numbered entries plus a checkpoint marker written on each
// Checkpoint call (nothing in the kernel calls it on a schedule), persisted
// through badger/v4 rather than a hand-rolled append-only file.
package journal

import (
	"time"

	"github.com/mewdb/mew/pkg/values"
)

// EffectKind enumerates the mutation effects a transaction can produce.
type EffectKind string

const (
	EffectNodeSpawn  EffectKind = "node_spawn"
	EffectEdgeSpawn  EffectKind = "edge_spawn"
	EffectKill       EffectKind = "kill"
	EffectUnlink     EffectKind = "unlink"
	EffectAttrSet    EffectKind = "attr_set"
	EffectSchemaLoad EffectKind = "schema_load" // LOAD/EXTEND ONTOLOGY
)

// Effect is one journaled mutation, keyed by GlyphId and carrying a typed
// values.Value for the common AttrSet case; node/edge spawn and schema-load
// effects carry an opaque payload instead, since their shape varies by
// type/ontology.
type Effect struct {
	Sequence  uint64
	Timestamp time.Time
	TxnID     uint64
	Kind      EffectKind
	Glyph     values.GlyphId // zero for EffectSchemaLoad
	Attr      string         // set only for EffectAttrSet
	Value     values.Value   // set only for EffectAttrSet
	Payload   []byte         // opaque JSON for node/edge spawn attrs or ontology source
}

// Snapshot is a point-in-time capture of the journal's replay cursor, used
// to truncate replay after a checkpoint.
type Snapshot struct {
	Sequence  uint64
	Timestamp time.Time
}
