package mutate

import (
	"fmt"

	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/mewerr"
	"github.com/mewdb/mew/pkg/pool"
	"github.com/mewdb/mew/pkg/registry"
	"github.com/mewdb/mew/pkg/values"
)

func (x *Executor) applyKill(a ast.KillAction, b pool.Bindings, fx *Effects) (Outcome, error) {
	v, bound := b[a.Var]
	if !bound || v.Kind() != values.KindID {
		return Outcome{}, mewerr.NotFound("variable", a.Var)
	}
	id := v.AsID()
	if !x.g.Alive(id) {
		return Outcome{}, nil // KILL is idempotent in effect
	}
	if id.IsEdge() {
		if err := x.unlinkEdge(id, 0, fx); err != nil {
			return Outcome{}, err
		}
		return Outcome{Glyph: id}, nil
	}
	prevForce := x.force
	x.force = a.Force
	defer func() { x.force = prevForce }()
	if err := x.killNode(id, a.NoCascade, fx); err != nil {
		return Outcome{}, err
	}
	return Outcome{Glyph: id}, nil
}

type victim struct {
	id    values.GlyphId
	depth int
}

// killNode removes a node glyph, applying each incident edge type's
// referential action: unlink removes the edge, cascade enqueues the
// opposite endpoint for killing, prevent aborts the transaction.
// The cascade chain is bounded by the engine's depth and count
// budgets; FORCE bypasses the count budget (never the depth budget).
func (x *Executor) killNode(root values.GlyphId, noCascade bool, fx *Effects) error {
	queue := []victim{{root, 0}}
	killed := 0
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		if !x.g.Alive(v.id) {
			continue
		}
		if x.cfg.CascadeDepthLimit > 0 && v.depth > x.cfg.CascadeDepthLimit {
			return mewerr.CascadeDepthExceeded(x.cfg.CascadeDepthLimit)
		}
		if !x.force && x.cfg.MaxCascadeCount > 0 && killed >= x.cfg.MaxCascadeCount {
			return mewerr.CascadeCountExceeded(x.cfg.MaxCascadeCount)
		}
		for _, et := range x.reg.AllEdgeTypes() {
			for _, e := range x.g.Neighbors(v.id, et.ID) {
				if !x.g.Alive(e) {
					continue
				}
				targets, err := x.g.Targets(e)
				if err != nil {
					continue
				}
				action, other := x.refActionFor(et, targets, v.id)
				switch action {
				case registry.RefPrevent:
					return mewerr.New("E2005", mewerr.CategoryConstraint,
						fmt.Sprintf("edge type %q prevents killing %s", et.Name, v.id),
						"unlink the edge first, or change the referential action").
						WithField("edge_type", et.Name)
				case registry.RefCascade:
					if err := x.unlinkEdge(e, v.depth, fx); err != nil {
						return err
					}
					if !noCascade && other != values.InvalidGlyphId {
						queue = append(queue, victim{other, v.depth + 1})
					}
				default: // unlink
					if err := x.unlinkEdge(e, v.depth, fx); err != nil {
						return err
					}
				}
			}
		}
		attrs, err := x.g.AttrsByName(v.id)
		if err != nil {
			return err
		}
		if err := x.g.Kill(v.id); err != nil {
			return err
		}
		fx.add(Effect{Kind: EffectKill, Glyph: v.id, BeforeAttrs: attrs})
		killed++
	}
	return nil
}

// refActionFor resolves which referential action governs killing `dead`
// through edge e's type, and which endpoint a cascade propagates to.
// Referential actions are declared for binary edges only; n-ary
// edges and self-loops fall back to unlink.
func (x *Executor) refActionFor(et *registry.EdgeTypeDef, targets []values.GlyphId, dead values.GlyphId) (registry.ReferentialAction, values.GlyphId) {
	if len(targets) != 2 || targets[0] == targets[1] {
		return registry.RefUnlink, values.InvalidGlyphId
	}
	if targets[0] == dead {
		return et.OnKillSource, targets[1]
	}
	if targets[1] == dead {
		return et.OnKillTarget, targets[0]
	}
	return registry.RefUnlink, values.InvalidGlyphId
}

// unlinkEdge removes an edge glyph and cascades to every higher-order edge
// targeting it; a higher-order edge whose base edge dies is always
// unlinked.
func (x *Executor) unlinkEdge(edge values.GlyphId, depth int, fx *Effects) error {
	if !x.g.Alive(edge) {
		return nil
	}
	if x.cfg.CascadeDepthLimit > 0 && depth > x.cfg.CascadeDepthLimit {
		return mewerr.CascadeDepthExceeded(x.cfg.CascadeDepthLimit)
	}
	for _, het := range x.metaEdgeTypes {
		for _, f := range x.g.Neighbors(edge, het.ID) {
			if err := x.unlinkEdge(f, depth+1, fx); err != nil {
				return err
			}
		}
	}
	targets, err := x.g.Targets(edge)
	if err != nil {
		return err
	}
	attrs, err := x.g.AttrsByName(edge)
	if err != nil {
		return err
	}
	if err := x.g.Kill(edge); err != nil {
		return err
	}
	fx.add(Effect{Kind: EffectUnlink, Glyph: edge, Targets: targets, BeforeAttrs: attrs})
	return nil
}
