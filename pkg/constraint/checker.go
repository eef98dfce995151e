// Package constraint implements the constraint checker: the
// affected-set computation over a transaction's staged effects, pattern
// re-evaluation on the post-mutation state, and the per-op vs
// deferred-to-commit split. Modifier-derived validators (range, enum,
// match, length) check after each mutation; user-declared constraints and
// the structural minimum-cardinality sweep check at commit, after the rule
// fixpoint has had its chance to repair state.
package constraint

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mewdb/mew/pkg/config"
	"github.com/mewdb/mew/pkg/glyph"
	"github.com/mewdb/mew/pkg/mewerr"
	"github.com/mewdb/mew/pkg/mutate"
	"github.com/mewdb/mew/pkg/pattern"
	"github.com/mewdb/mew/pkg/pool"
	"github.com/mewdb/mew/pkg/registry"
	"github.com/mewdb/mew/pkg/values"
)

// Warning is one soft-constraint violation, accumulated on the result
// instead of aborting the transaction.
type Warning struct {
	Constraint string
	Message    string
}

// Checker evaluates constraints against a live Graph. One Checker serves
// one transaction.
type Checker struct {
	g   *glyph.Graph
	reg *registry.Registry
	cfg config.Engine
}

// NewChecker builds a Checker over g.
func NewChecker(g *glyph.Graph, cfg config.Engine) *Checker {
	return &Checker{g: g, reg: g.Registry(), cfg: cfg}
}

// CheckImmediate runs every non-deferred constraint whose affected-type set
// intersects the effects staged since mark, plus the structural acyclic
// check for any acyclic edge type that gained an edge. It is called after
// each user mutation.
func (c *Checker) CheckImmediate(ctx context.Context, fx *mutate.Effects, mark int) ([]Warning, error) {
	types, edges := fx.TouchedSince(mark)
	defs := c.affectedConstraints(types, edges, false)
	warnings, err := c.evalConstraints(ctx, defs)
	if err != nil {
		return warnings, err
	}
	for et := range edges {
		def, ok := c.reg.EdgeTypeByID(et)
		if !ok || !def.Acyclic {
			continue
		}
		w, err := c.checkAcyclic(def)
		if err != nil {
			return warnings, err
		}
		warnings = append(warnings, w...)
	}
	return warnings, nil
}

// CheckCommit runs at commit, after the rule fixpoint: every constraint
// (immediate and deferred) affected by the whole transaction's effects,
// plus the cardinality sweep over every edge type with a bounded position
// whose edges, or whose position target types, the transaction touched.
func (c *Checker) CheckCommit(ctx context.Context, fx *mutate.Effects) ([]Warning, error) {
	types, edges := fx.TouchedSince(0)
	defs := c.affectedConstraints(types, edges, true)
	warnings, err := c.evalConstraints(ctx, defs)
	if err != nil {
		return warnings, err
	}
	if w, err := c.checkCardinality(types, edges); err != nil {
		return warnings, err
	} else {
		warnings = append(warnings, w...)
	}
	return warnings, nil
}

// affectedConstraints gathers the constraints dispatchable from the touched
// type sets, deduplicated and in declaration order. includeDeferred selects
// the commit-time sweep.
func (c *Checker) affectedConstraints(types map[values.TypeId]bool, edges map[values.EdgeTypeId]bool, includeDeferred bool) []*registry.ConstraintDef {
	seen := map[int]*registry.ConstraintDef{}
	keep := func(def *registry.ConstraintDef) {
		if def.Deferred && !includeDeferred {
			return
		}
		seen[def.ID] = def
	}
	for t := range types {
		for _, def := range c.reg.ConstraintsFor(t) {
			keep(def)
		}
	}
	for e := range edges {
		for _, def := range c.reg.EdgeConstraintsFor(e) {
			keep(def)
		}
	}
	out := make([]*registry.ConstraintDef, 0, len(seen))
	for _, def := range seen {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// evalConstraints evaluates each constraint's condition over every binding
// of its pattern in the post-mutation state. A hard violation aborts with
// the constraint's name and the offending binding; soft violations become
// warnings. A NULL condition result passes (NULL-skipped semantics).
func (c *Checker) evalConstraints(ctx context.Context, defs []*registry.ConstraintDef) ([]Warning, error) {
	var warnings []Warning
	ev := pattern.NewEvaluator(ctx, c.g, c.cfg)
	for _, def := range defs {
		rows, err := pattern.Match(ctx, c.g, def.Pattern, nil, c.cfg)
		if err != nil {
			return warnings, err
		}
		for _, row := range rows {
			v, err := ev.Eval(def.Condition, row)
			if err != nil {
				return warnings, err
			}
			if v.Kind() == values.KindBool && !v.AsBool() {
				if def.Hard {
					return warnings, mewerr.ConstraintViolation(def.Name, bindingString(row), conditionString(def))
				}
				warnings = append(warnings, Warning{Constraint: def.Name, Message: conditionString(def)})
				break // one warning per soft constraint is enough
			}
		}
	}
	return warnings, nil
}

func conditionString(def *registry.ConstraintDef) string {
	if def.Message != "" {
		return def.Message
	}
	return "constraint condition evaluated false"
}

func bindingString(b pool.Bindings) string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + b[k].String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// checkAcyclic verifies no directed cycle exists among the live edges of an
// [acyclic] edge type, via iterative DFS bounded by the engine's acyclic
// check budget. Overflow behavior follows engine.acyclic_check_overflow:
// "error" aborts, "skip" and "async" log a best-effort warning (the
// invariant is then not guaranteed, the documented risk of those modes).
func (c *Checker) checkAcyclic(def *registry.EdgeTypeDef) ([]Warning, error) {
	constraintName := def.Name + "_acyclic"
	adj := map[values.GlyphId][]values.GlyphId{}
	c.g.IterEdgeType(def.ID, func(e values.GlyphId) bool {
		targets, err := c.g.Targets(e)
		if err == nil && len(targets) == 2 {
			adj[targets[0]] = append(adj[targets[0]], targets[1])
		}
		return true
	})
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := map[values.GlyphId]int{}
	steps := 0
	var visit func(n values.GlyphId) (bool, bool) // (cycle, overflow)
	visit = func(n values.GlyphId) (bool, bool) {
		color[n] = grey
		for _, next := range adj[n] {
			steps++
			if c.cfg.AcyclicCheckLimit > 0 && steps > c.cfg.AcyclicCheckLimit {
				return false, true
			}
			switch color[next] {
			case grey:
				return true, false
			case white:
				if cycle, over := visit(next); cycle || over {
					return cycle, over
				}
			}
		}
		color[n] = black
		return false, false
	}
	for n := range adj {
		if color[n] != white {
			continue
		}
		cycle, overflow := visit(n)
		if overflow {
			if c.cfg.AcyclicCheckOverflow == "error" {
				return nil, mewerr.New("E5008", mewerr.CategoryLimit,
					fmt.Sprintf("acyclic check for %q exceeded engine.acyclic_check_limit (%d)", def.Name, c.cfg.AcyclicCheckLimit),
					"raise engine.acyclic_check_limit, or set engine.acyclic_check_overflow to skip/async at your own risk").
					WithField("constraint", constraintName)
			}
			return []Warning{{Constraint: constraintName,
				Message: "acyclic check truncated by engine.acyclic_check_limit; the invariant is not guaranteed"}}, nil
		}
		if cycle {
			return nil, mewerr.AcyclicViolation(def.Name).WithField("constraint", constraintName)
		}
	}
	return nil, nil
}

// checkCardinality sweeps every edge-type position with a declared bound:
// for each live glyph conforming to the position's target type, the count
// of incident edges at that position must sit in [min, max]. The minimum
// facet is checkable only here, at commit;
// the maximum was already enforced at LINK but is re-verified so the
// commit-time invariant holds unconditionally.
func (c *Checker) checkCardinality(types map[values.TypeId]bool, edges map[values.EdgeTypeId]bool) ([]Warning, error) {
	for _, def := range c.reg.AllEdgeTypes() {
		relevant := edges[def.ID]
		if !relevant {
			for i := range def.Positions {
				if c.positionTouches(def.Positions[i], types) {
					relevant = true
					break
				}
			}
		}
		if !relevant {
			continue
		}
		for i, p := range def.Positions {
			if p.Cardinality.Min <= 0 && p.Cardinality.Max < 0 {
				continue
			}
			var sweep []values.TypeId
			switch {
			case p.TargetIsUnion:
				sweep = p.UnionTypes
			case p.TargetType != values.InvalidTypeId:
				sweep = []values.TypeId{p.TargetType}
			default:
				continue // any / edge<...> positions carry no node sweep
			}
			for _, t := range sweep {
				var violated values.GlyphId
				var got int
				c.g.IterType(t, func(id values.GlyphId) bool {
					n := c.g.PositionCount(id, def.ID, i)
					if !p.Cardinality.Satisfied(n) {
						violated, got = id, n
						return false
					}
					return true
				})
				if violated != values.InvalidGlyphId {
					maxShown := p.Cardinality.Max
					if maxShown < 0 {
						maxShown = int(^uint(0) >> 1)
					}
					facet := "min"
					bound := p.Cardinality.Min
					if got > p.Cardinality.Min && p.Cardinality.Max >= 0 {
						facet, bound = "max", p.Cardinality.Max
					}
					return nil, mewerr.CardinalityViolation(def.Name, p.Name, got, p.Cardinality.Min, maxShown).
						WithField("constraint", fmt.Sprintf("%s_%s_%s_%d", def.Name, p.Name, facet, bound)).
						WithField("glyph", violated.String())
				}
			}
		}
	}
	return nil, nil
}

func (c *Checker) positionTouches(p registry.PositionDef, types map[values.TypeId]bool) bool {
	check := func(t values.TypeId) bool {
		for touched := range types {
			if c.reg.IsSubtype(touched, t) {
				return true
			}
		}
		return false
	}
	if p.TargetIsUnion {
		for _, u := range p.UnionTypes {
			if check(u) {
				return true
			}
		}
		return false
	}
	if p.TargetType != values.InvalidTypeId {
		return check(p.TargetType)
	}
	return false
}
