// Package mutate implements the mutation executor: SPAWN,
// LINK, UNLINK, KILL, and SET, each staged as an effect list with
// before-images so the enclosing transaction can roll the graph back to a
// byte-identical pre-transaction state. Referential-action
// cascades (on_kill_source/on_kill_target) and the implicit higher-order
// unlink cascade live here too, bounded by the engine's cascade budgets.
package mutate

import (
	"encoding/json"
	"time"

	"github.com/mewdb/mew/pkg/glyph"
	"github.com/mewdb/mew/pkg/journal"
	"github.com/mewdb/mew/pkg/values"
)

// EffectKind enumerates staged mutation effects.
type EffectKind int

const (
	EffectNodeSpawn EffectKind = iota
	EffectEdgeSpawn
	EffectKill
	EffectUnlink
	EffectAttrSet
)

// Effect is one staged mutation with enough before-image to reverse it.
type Effect struct {
	Kind  EffectKind
	Glyph values.GlyphId

	// AttrSet before/after images.
	Attr      string
	Before    values.Value
	HadBefore bool
	After     values.Value

	// Kill/Unlink before-images.
	BeforeAttrs map[string]values.Value
	Targets     []values.GlyphId
}

// Effects is the staged-effect log of one transaction, in application order.
type Effects struct {
	List []Effect

	NodesCreated  int
	NodesModified int
	NodesDeleted  int
	EdgesCreated  int
	EdgesDeleted  int
}

// Mark returns a cursor into the effect log; Rollback and TouchedSince take
// marks to scope themselves to one statement or one fixpoint iteration.
func (fx *Effects) Mark() int { return len(fx.List) }

// Empty reports whether no effect has been staged.
func (fx *Effects) Empty() bool { return len(fx.List) == 0 }

func (fx *Effects) add(e Effect) {
	fx.List = append(fx.List, e)
	switch e.Kind {
	case EffectNodeSpawn:
		fx.NodesCreated++
	case EffectEdgeSpawn:
		fx.EdgesCreated++
	case EffectKill:
		fx.NodesDeleted++
	case EffectUnlink:
		fx.EdgesDeleted++
	case EffectAttrSet:
		if !e.Glyph.IsEdge() {
			fx.NodesModified++
		}
	}
}

// TouchedSince reports the node types and edge types whose membership or
// attributes changed since mark, the affected-set the constraint checker
// and rule engine dispatch on.
func (fx *Effects) TouchedSince(mark int) (map[values.TypeId]bool, map[values.EdgeTypeId]bool) {
	types := map[values.TypeId]bool{}
	edges := map[values.EdgeTypeId]bool{}
	for _, e := range fx.List[mark:] {
		if e.Glyph.IsEdge() {
			edges[e.Glyph.EdgeTypeId()] = true
		} else {
			types[e.Glyph.TypeId()] = true
		}
	}
	return types, edges
}

// Rollback reverses every effect staged after mark, newest first, restoring
// the graph, GlyphIds included, to its state at the mark. The effect log
// is truncated back to mark and the counters adjusted.
func Rollback(g *glyph.Graph, fx *Effects, mark int) error {
	var firstErr error
	for i := len(fx.List) - 1; i >= mark; i-- {
		e := fx.List[i]
		var err error
		switch e.Kind {
		case EffectNodeSpawn, EffectEdgeSpawn:
			err = g.Unspawn(e.Glyph)
		case EffectKill:
			err = g.RestoreNode(e.Glyph, e.BeforeAttrs)
		case EffectUnlink:
			err = g.RestoreEdge(e.Glyph, e.Targets, e.BeforeAttrs)
		case EffectAttrSet:
			before := e.Before
			if !e.HadBefore {
				before = values.Null
			}
			err = g.SetAttr(e.Glyph, e.Attr, before)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
		switch e.Kind {
		case EffectNodeSpawn:
			fx.NodesCreated--
		case EffectEdgeSpawn:
			fx.EdgesCreated--
		case EffectKill:
			fx.NodesDeleted--
		case EffectUnlink:
			fx.EdgesDeleted--
		case EffectAttrSet:
			if !e.Glyph.IsEdge() {
				fx.NodesModified--
			}
		}
	}
	fx.List = fx.List[:mark]
	return firstErr
}

// ToJournal converts the staged effects into journal records for the commit
// stream.
func (fx *Effects) ToJournal(g *glyph.Graph, txnID uint64, at time.Time) []journal.Effect {
	out := make([]journal.Effect, 0, len(fx.List))
	for _, e := range fx.List {
		je := journal.Effect{Timestamp: at, TxnID: txnID, Glyph: e.Glyph}
		switch e.Kind {
		case EffectNodeSpawn:
			je.Kind = journal.EffectNodeSpawn
			je.Payload = spawnPayload(g, e.Glyph, nil)
		case EffectEdgeSpawn:
			je.Kind = journal.EffectEdgeSpawn
			je.Payload = spawnPayload(g, e.Glyph, e.Targets)
		case EffectKill:
			je.Kind = journal.EffectKill
		case EffectUnlink:
			je.Kind = journal.EffectUnlink
		case EffectAttrSet:
			je.Kind = journal.EffectAttrSet
			je.Attr = e.Attr
			je.Value = e.After
		}
		out = append(out, je)
	}
	return out
}

func spawnPayload(g *glyph.Graph, id values.GlyphId, targets []values.GlyphId) []byte {
	body := map[string]any{"type": g.TypeName(id)}
	if attrs, err := g.AttrsByName(id); err == nil {
		enc := make(map[string]string, len(attrs))
		for k, v := range attrs {
			enc[k] = v.String()
		}
		body["attrs"] = enc
	}
	if targets != nil {
		ts := make([]uint64, len(targets))
		for i, t := range targets {
			ts[i] = uint64(t)
		}
		body["targets"] = ts
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil
	}
	return raw
}
