package mutate

import (
	"context"
	"fmt"
	"time"

	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/config"
	"github.com/mewdb/mew/pkg/glyph"
	"github.com/mewdb/mew/pkg/mewerr"
	"github.com/mewdb/mew/pkg/pattern"
	"github.com/mewdb/mew/pkg/pool"
	"github.com/mewdb/mew/pkg/registry"
	"github.com/mewdb/mew/pkg/values"
)

// Outcome reports what a single action did: the glyph it created or
// addressed, and whether LINK actually created an edge (false when a
// [unique] edge or LINK IF NOT EXISTS found an existing one).
type Outcome struct {
	Glyph   values.GlyphId
	Created bool
}

// Executor applies one action at a time against a Graph, staging each
// effect into the transaction's Effects log. One Executor serves one
// transaction; its now() is frozen at construction.
type Executor struct {
	g   *glyph.Graph
	reg *registry.Registry
	cfg config.Engine
	ev  *pattern.Evaluator
	now time.Time

	// metaEdgeTypes can bind edge glyphs at some position; they are the
	// only types swept for higher-order unlink cascades.
	metaEdgeTypes []*registry.EdgeTypeDef

	force bool // KILL ... FORCE in flight: cascade count budget bypassed
}

// NewExecutor builds an Executor over g with the transaction's frozen now.
func NewExecutor(ctx context.Context, g *glyph.Graph, cfg config.Engine, now time.Time) *Executor {
	x := &Executor{
		g:   g,
		reg: g.Registry(),
		cfg: cfg,
		ev:  pattern.NewEvaluator(ctx, g, cfg).WithNow(now),
		now: now,
	}
	for _, et := range x.reg.AllEdgeTypes() {
		for _, p := range et.Positions {
			if p.TargetEdgeAny || p.TargetIsAny || p.TargetEdgeType != values.InvalidEdgeTypeId {
				x.metaEdgeTypes = append(x.metaEdgeTypes, et)
				break
			}
		}
	}
	return x
}

// Now returns the transaction's frozen now() value.
func (x *Executor) Now() time.Time { return x.now }

// Graph returns the graph the executor mutates.
func (x *Executor) Graph() *glyph.Graph { return x.g }

// Apply executes one action under the given bindings, staging its effects
// into fx. SPAWN and LINK bind their variable/alias into b so later actions
// of the same production or compound statement can reference them.
func (x *Executor) Apply(act ast.Action, b pool.Bindings, fx *Effects) (Outcome, error) {
	switch a := act.(type) {
	case ast.SpawnAction:
		return x.applySpawn(a, b, fx)
	case ast.LinkAction:
		return x.applyLink(a, b, fx)
	case ast.UnlinkAction:
		return x.applyUnlink(a, b, fx)
	case ast.KillAction:
		return x.applyKill(a, b, fx)
	case ast.SetAction:
		return x.applySet(a, b, fx)
	default:
		return Outcome{}, mewerr.Internal("mutate: unrecognized action type")
	}
}

func (x *Executor) applySpawn(a ast.SpawnAction, b pool.Bindings, fx *Effects) (Outcome, error) {
	def, ok := x.reg.TypeByName(a.Type)
	if !ok {
		return Outcome{}, mewerr.NotFound("node type", a.Type)
	}
	attrs, err := x.resolveAttrs(def.Name, def.AllAttrs, a.Attrs, b)
	if err != nil {
		return Outcome{}, err
	}
	id, err := x.g.CreateNode(def.ID, attrs)
	if err != nil {
		return Outcome{}, err
	}
	fx.add(Effect{Kind: EffectNodeSpawn, Glyph: id})
	if a.Var != "" {
		b[a.Var] = values.NewID(id)
	}
	return Outcome{Glyph: id, Created: true}, nil
}

func (x *Executor) applyLink(a ast.LinkAction, b pool.Bindings, fx *Effects) (Outcome, error) {
	def, ok := x.reg.EdgeTypeByName(a.EdgeType)
	if !ok {
		return Outcome{}, mewerr.NotFound("edge type", a.EdgeType)
	}
	if len(a.Targets) != len(def.Positions) {
		return Outcome{}, mewerr.EdgeSignatureMismatch(def.Name, len(a.Targets),
			fmt.Sprintf("%d positions", len(def.Positions)), fmt.Sprintf("%d targets", len(a.Targets)))
	}
	targets := make([]values.GlyphId, len(a.Targets))
	for i, name := range a.Targets {
		v, bound := b[name]
		if !bound || v.Kind() != values.KindID {
			return Outcome{}, mewerr.NotFound("variable", name)
		}
		targets[i] = v.AsID()
		if !x.g.Alive(targets[i]) {
			return Outcome{}, mewerr.EdgeSignatureMismatch(def.Name, i, "a live glyph", "a dead glyph")
		}
	}
	if def.Symmetric && len(targets) == 2 && targets[1] < targets[0] {
		targets[0], targets[1] = targets[1], targets[0]
	}
	if def.Unique || a.IfNotExists {
		if existing, found := x.findEdge(def, targets); found {
			if a.Alias != "" {
				b[a.Alias] = values.NewID(existing)
			}
			return Outcome{Glyph: existing, Created: false}, nil
		}
	}
	// Maximum cardinality is enforced immediately at LINK; the minimum is
	// deferred to commit.
	for i, p := range def.Positions {
		if p.Cardinality.Max >= 0 && x.g.PositionCount(targets[i], def.ID, i)+1 > p.Cardinality.Max {
			return Outcome{}, mewerr.CardinalityViolation(def.Name, p.Name,
				x.g.PositionCount(targets[i], def.ID, i)+1, p.Cardinality.Min, p.Cardinality.Max).
				WithField("constraint", fmt.Sprintf("%s_%s_max_%d", def.Name, p.Name, p.Cardinality.Max))
		}
	}
	attrs, err := x.resolveAttrs(def.Name, def.Attrs, a.Attrs, b)
	if err != nil {
		return Outcome{}, err
	}
	id, err := x.g.CreateEdge(def.ID, targets, attrs)
	if err != nil {
		return Outcome{}, err
	}
	fx.add(Effect{Kind: EffectEdgeSpawn, Glyph: id, Targets: targets})
	if a.Alias != "" {
		b[a.Alias] = values.NewID(id)
	}
	return Outcome{Glyph: id, Created: true}, nil
}

// findEdge returns the live edge of def binding exactly targets (symmetric
// edges match either order, but targets arrive canonicalized anyway).
func (x *Executor) findEdge(def *registry.EdgeTypeDef, targets []values.GlyphId) (values.GlyphId, bool) {
	if len(targets) == 0 {
		return 0, false
	}
	var found values.GlyphId
	for _, e := range x.g.Neighbors(targets[0], def.ID) {
		got, err := x.g.Targets(e)
		if err != nil || len(got) != len(targets) {
			continue
		}
		match := true
		for i := range got {
			if got[i] != targets[i] {
				match = false
				break
			}
		}
		if !match && def.Symmetric && len(targets) == 2 {
			match = got[0] == targets[1] && got[1] == targets[0]
		}
		if match {
			found = e
			return found, true
		}
	}
	return 0, false
}

func (x *Executor) applyUnlink(a ast.UnlinkAction, b pool.Bindings, fx *Effects) (Outcome, error) {
	var edge values.GlyphId
	if a.EdgeVar != "" {
		v, bound := b[a.EdgeVar]
		if !bound || v.Kind() != values.KindID {
			return Outcome{}, mewerr.NotFound("variable", a.EdgeVar)
		}
		edge = v.AsID()
	} else {
		def, ok := x.reg.EdgeTypeByName(a.EdgeType)
		if !ok {
			return Outcome{}, mewerr.NotFound("edge type", a.EdgeType)
		}
		targets := make([]values.GlyphId, len(a.Targets))
		for i, name := range a.Targets {
			v, bound := b[name]
			if !bound || v.Kind() != values.KindID {
				return Outcome{}, mewerr.NotFound("variable", name)
			}
			targets[i] = v.AsID()
		}
		if def.Symmetric && len(targets) == 2 && targets[1] < targets[0] {
			targets[0], targets[1] = targets[1], targets[0]
		}
		found, ok := x.findEdge(def, targets)
		if !ok {
			return Outcome{}, nil // already gone: UNLINK is idempotent
		}
		edge = found
	}
	if !edge.IsEdge() {
		return Outcome{}, mewerr.TypeMismatch("edge glyph", "node glyph")
	}
	if !x.g.Alive(edge) {
		return Outcome{}, nil
	}
	if err := x.unlinkEdge(edge, 0, fx); err != nil {
		return Outcome{}, err
	}
	return Outcome{Glyph: edge}, nil
}

func (x *Executor) applySet(a ast.SetAction, b pool.Bindings, fx *Effects) (Outcome, error) {
	v, bound := b[a.Var]
	if !bound || v.Kind() != values.KindID {
		return Outcome{}, mewerr.NotFound("variable", a.Var)
	}
	id := v.AsID()
	if !x.g.Alive(id) {
		return Outcome{}, mewerr.NotFound("glyph", id.String())
	}
	for _, assign := range a.Attrs {
		def, err := x.attrDefOf(id, assign.Attr)
		if err != nil {
			return Outcome{}, err
		}
		val, err := x.ev.Eval(assign.Expr, b)
		if err != nil {
			return Outcome{}, err
		}
		val, err = coerceValue(def, val)
		if err != nil {
			return Outcome{}, err
		}
		before, had, err := x.g.Attr(id, assign.Attr)
		if err != nil {
			return Outcome{}, err
		}
		if err := x.g.SetAttr(id, assign.Attr, val); err != nil {
			return Outcome{}, err
		}
		fx.add(Effect{Kind: EffectAttrSet, Glyph: id, Attr: assign.Attr, Before: before, HadBefore: had, After: val})
	}
	return Outcome{Glyph: id}, nil
}

func (x *Executor) attrDefOf(id values.GlyphId, name string) (registry.AttrDef, error) {
	if id.IsEdge() {
		def, ok := x.reg.EdgeTypeByID(id.EdgeTypeId())
		if !ok {
			return registry.AttrDef{}, mewerr.NotFound("edge type", fmt.Sprintf("#%d", id.EdgeTypeId()))
		}
		a, ok := def.AttrByName(name)
		if !ok {
			return registry.AttrDef{}, mewerr.NotFound("attribute", def.Name+"."+name)
		}
		return a, nil
	}
	def, ok := x.reg.TypeByID(id.TypeId())
	if !ok {
		return registry.AttrDef{}, mewerr.NotFound("node type", fmt.Sprintf("#%d", id.TypeId()))
	}
	a, ok := def.AttrByName(name)
	if !ok {
		return registry.AttrDef{}, mewerr.NotFound("attribute", def.Name+"."+name)
	}
	return a, nil
}

// resolveAttrs evaluates the written attribute assignments, fills defaults
// for omitted attributes, and enforces presence of non-nullable ones
// (defaulted counts as provided).
func (x *Executor) resolveAttrs(owner string, defs []registry.AttrDef, assigns []ast.AttrAssign, b pool.Bindings) (map[string]values.Value, error) {
	out := make(map[string]values.Value, len(defs))
	written := map[string]bool{}
	for _, assign := range assigns {
		var def *registry.AttrDef
		for i := range defs {
			if defs[i].Name == assign.Attr {
				def = &defs[i]
				break
			}
		}
		if def == nil {
			return nil, mewerr.NotFound("attribute", owner+"."+assign.Attr)
		}
		v, err := x.ev.Eval(assign.Expr, b)
		if err != nil {
			return nil, err
		}
		v, err = coerceValue(*def, v)
		if err != nil {
			return nil, err
		}
		if !v.IsNull() {
			out[def.Name] = v
		}
		written[def.Name] = true
	}
	for _, def := range defs {
		if written[def.Name] {
			continue
		}
		if def.HasDefault {
			v, err := x.ev.Eval(def.Default, b)
			if err != nil {
				return nil, err
			}
			v, err = coerceValue(def, v)
			if err != nil {
				return nil, err
			}
			if !v.IsNull() {
				out[def.Name] = v
			}
			continue
		}
		if !def.Nullable {
			return nil, mewerr.New("E2000", mewerr.CategoryConstraint,
				fmt.Sprintf("attribute %s.%s is required", owner, def.Name),
				"provide a value or declare a default").
				WithField("constraint", fmt.Sprintf("%s_%s_required", owner, def.Name))
		}
	}
	return out, nil
}

// coerceValue checks a computed value against its declared scalar type,
// promoting Int to Float where the column is Float (the one implicit
// numeric widening the type system allows).
func coerceValue(def registry.AttrDef, v values.Value) (values.Value, error) {
	if v.IsNull() {
		if !def.Nullable {
			return values.Null, mewerr.New("E3004", mewerr.CategoryType,
				fmt.Sprintf("attribute %q is not nullable", def.Name),
				"write a non-null value, or mark the attribute nullable")
		}
		return values.Null, nil
	}
	if v.Kind() == values.KindInt && def.Scalar == values.KindFloat {
		return values.NewFloat(float64(v.AsInt())), nil
	}
	if v.Kind() == values.KindString && def.Scalar == values.KindHash {
		return values.NewHash([]byte(v.AsString())), nil
	}
	if v.Kind() != def.Scalar {
		return values.Null, mewerr.TypeMismatch(def.Scalar.String(), v.Kind().String()).
			WithField("attribute", def.Name)
	}
	return v, nil
}
