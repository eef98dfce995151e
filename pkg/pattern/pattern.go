// Package pattern enumerates the variable bindings that satisfy a
// pkg/ast.Pattern against a live pkg/glyph.Graph: the matcher shared by
// MATCH, EXISTS/NOT EXISTS, correlated aggregates, constraint conditions,
// and rule left-hand sides. It is the one place the kernel's
// join algorithm lives; everything else only calls Match.
package pattern

import (
	"context"
	"fmt"

	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/config"
	"github.com/mewdb/mew/pkg/glyph"
	"github.com/mewdb/mew/pkg/mewerr"
	"github.com/mewdb/mew/pkg/pool"
	"github.com/mewdb/mew/pkg/registry"
	"github.com/mewdb/mew/pkg/values"
)

// Match returns every pool.Bindings that satisfies pat against g, seeded
// with seed (the correlated outer bindings for a nested EXISTS/aggregate,
// or nil for a top-level MATCH). Each returned Bindings is independently
// owned by the caller; Match never mutates seed. Non-fatal warnings (a
// transitive closure truncated at its depth limit) are dropped here;
// callers that surface warnings use MatchWithWarnings.
func Match(ctx context.Context, g *glyph.Graph, pat *ast.Pattern, seed pool.Bindings, cfg config.Engine) ([]pool.Bindings, error) {
	rows, _, err := MatchWithWarnings(ctx, g, pat, seed, cfg)
	return rows, err
}

// MatchWithWarnings is Match plus the non-fatal warnings the enumeration
// accumulated: a truncated transitive closure warns and returns every match
// shorter than the limit rather than failing.
func MatchWithWarnings(ctx context.Context, g *glyph.Graph, pat *ast.Pattern, seed pool.Bindings, cfg config.Engine) ([]pool.Bindings, []string, error) {
	m := &matcher{ctx: ctx, g: g, reg: g.Registry(), cfg: cfg}
	if err := m.buildSlots(pat); err != nil {
		return nil, nil, err
	}
	base := pool.GetBindings()
	defer pool.PutBindings(base)
	for k, v := range seed {
		base[k] = v
	}

	ev := &Evaluator{g: g, reg: g.Registry(), cfg: cfg, ctx: ctx}
	m.eval = ev
	m.pat = pat

	if err := m.backtrack(0, base); err != nil {
		return nil, m.warnings, err
	}
	return m.results, m.warnings, nil
}

type slotKind int

const (
	slotNode slotKind = iota
	slotEdge
)

type slot struct {
	kind     slotKind
	varName  string // bound name; synthetic "__edgeN" when the edge has no AS alias
	nodeType string // slotNode only
	edgeIdx  int     // slotEdge only: index into pat.Edges
}

type matcher struct {
	ctx     context.Context
	g       *glyph.Graph
	reg     *registry.Registry
	cfg     config.Engine
	eval    *Evaluator
	pat     *ast.Pattern
	slots   []slot
	results []pool.Bindings

	warnings []string
	warned   map[string]bool
}

// warnOnce records a warning, deduplicated by text: a truncated closure
// would otherwise warn once per failed candidate binding.
func (m *matcher) warnOnce(msg string) {
	if m.warned[msg] {
		return
	}
	if m.warned == nil {
		m.warned = map[string]bool{}
	}
	m.warned[msg] = true
	m.warnings = append(m.warnings, msg)
}

func (m *matcher) buildSlots(pat *ast.Pattern) error {
	inEdge := map[string]bool{}
	for _, ep := range pat.Edges {
		for _, v := range ep.Positions {
			inEdge[v] = true
		}
	}
	seen := map[string]bool{}
	for _, np := range pat.Nodes {
		if seen[np.Var] {
			continue
		}
		seen[np.Var] = true
		typ := np.Type
		if typ == "" {
			typ = firstTypeOf(pat, np.Var)
		}
		if typ == "" && inEdge[np.Var] {
			// An untyped variable appearing at an edge position is bound by
			// the edge slot's target enumeration, not by a family scan.
			continue
		}
		m.slots = append(m.slots, slot{kind: slotNode, varName: np.Var, nodeType: typ})
	}
	for i, ep := range pat.Edges {
		if ep.Transitive != ast.TransitiveNone {
			continue // checked as a predicate once all slots are bound
		}
		name := ep.Alias
		if name == "" {
			name = fmt.Sprintf("__edge%d", i)
		}
		m.slots = append(m.slots, slot{kind: slotEdge, varName: name, edgeIdx: i})
	}
	return nil
}

// firstTypeOf returns the type declared at the first occurrence of var in
// pat.Nodes, or "" if every occurrence is untyped (meaning var must already
// be bound by the caller's seed).
func firstTypeOf(pat *ast.Pattern, v string) string {
	for _, np := range pat.Nodes {
		if np.Var == v && np.Type != "" {
			return np.Type
		}
	}
	return ""
}

func (m *matcher) backtrack(i int, b pool.Bindings) error {
	if err := m.ctx.Err(); err != nil {
		return err
	}
	if i == len(m.slots) {
		ok, err := m.checkTransitive(b)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if m.pat.Where != nil {
			v, err := m.eval.Eval(m.pat.Where, b)
			if err != nil {
				return err
			}
			if v.Kind() != values.KindBool || !v.AsBool() {
				return nil
			}
		}
		if m.cfg.MaxUnboundedResults > 0 && len(m.results) >= m.cfg.MaxUnboundedResults {
			return mewerr.CollectOverflow(m.cfg.MaxUnboundedResults)
		}
		m.results = append(m.results, cloneBindings(b))
		return nil
	}

	s := m.slots[i]
	if s.kind == slotEdge {
		return m.backtrackEdge(i, s, b)
	}
	if existing, bound := b[s.varName]; bound {
		if !m.typeMatches(s.nodeType, existing) {
			return nil
		}
		return m.backtrack(i+1, b)
	}

	candidates, err := m.nodeCandidates(s.nodeType)
	if err != nil {
		return err
	}
	for _, c := range candidates {
		b[s.varName] = c
		if err := m.backtrack(i+1, b); err != nil {
			delete(b, s.varName)
			return err
		}
	}
	delete(b, s.varName)
	return nil
}

// backtrackEdge extends the binding set through one edge pattern: every
// candidate edge consistent with the already-bound positions binds the edge
// alias and any still-unbound position variables from its targets
// (symmetric edges contribute both orderings).
func (m *matcher) backtrackEdge(i int, s slot, b pool.Bindings) error {
	ep := m.pat.Edges[s.edgeIdx]
	def, ok := m.reg.EdgeTypeByName(ep.EdgeType)
	if !ok {
		return mewerr.NotFound("edge type", ep.EdgeType)
	}
	if len(ep.Positions) != len(def.Positions) {
		return mewerr.EdgeSignatureMismatch(def.Name, len(ep.Positions),
			fmt.Sprintf("%d positions", len(def.Positions)), fmt.Sprintf("%d written", len(ep.Positions)))
	}

	candidates := m.edgeGlyphCandidates(ep, def, b)
	for _, edgeID := range candidates {
		targets, err := m.g.Targets(edgeID)
		if err != nil {
			continue
		}
		// A symmetric edge matches with its targets in either role, but
		// only when a position is already bound and needs the reversal to
		// correlate. Pure enumeration yields the canonical order once, so
		// `MATCH friends(x,y)` returns a single row per friendship.
		anyBound := false
		for _, v := range ep.Positions {
			if _, bound := b[v]; bound {
				anyBound = true
				break
			}
		}
		orderings := [][]values.GlyphId{targets}
		if def.Symmetric && len(targets) == 2 && anyBound && targets[0] != targets[1] {
			orderings = append(orderings, []values.GlyphId{targets[1], targets[0]})
		}
		for _, ord := range orderings {
			newly, ok := m.bindPositions(ep.Positions, ord, b)
			if !ok {
				continue
			}
			_, edgeBound := b[s.varName]
			if !edgeBound {
				b[s.varName] = values.NewID(edgeID)
			}
			err := m.backtrack(i+1, b)
			if !edgeBound {
				delete(b, s.varName)
			}
			for _, v := range newly {
				delete(b, v)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// bindPositions binds each position variable to its target glyph, checking
// consistency against already-bound variables (including a variable
// repeated within the same edge). It returns the variables it newly bound.
func (m *matcher) bindPositions(vars []string, targets []values.GlyphId, b pool.Bindings) ([]string, bool) {
	var newly []string
	undo := func() {
		for _, v := range newly {
			delete(b, v)
		}
	}
	for i, v := range vars {
		want := values.NewID(targets[i])
		if existing, bound := b[v]; bound {
			if existing.Kind() != values.KindID || existing.AsID() != targets[i] {
				undo()
				return nil, false
			}
			continue
		}
		if !m.typeMatches(firstTypeOf(m.pat, v), want) {
			undo()
			return nil, false
		}
		b[v] = want
		newly = append(newly, v)
	}
	return newly, true
}

// edgeGlyphCandidates enumerates the edges of ep's type worth testing: the
// adjacency list of any bound position's glyph when one exists, else the
// full tensor (the generic edge scan).
func (m *matcher) edgeGlyphCandidates(ep ast.EdgePattern, def *registry.EdgeTypeDef, b pool.Bindings) []values.GlyphId {
	for _, v := range ep.Positions {
		if bv, bound := b[v]; bound && bv.Kind() == values.KindID {
			return m.g.Neighbors(bv.AsID(), def.ID)
		}
	}
	var out []values.GlyphId
	m.g.IterEdgeType(def.ID, func(e values.GlyphId) bool {
		out = append(out, e)
		return true
	})
	return out
}

func (m *matcher) typeMatches(typeRef string, v values.Value) bool {
	if typeRef == "" || v.Kind() != values.KindID || v.AsID().IsEdge() {
		return true
	}
	for _, atom := range splitUnion(typeRef) {
		if atom == "any" {
			return true
		}
		def, ok := m.reg.TypeByName(atom)
		if ok && m.reg.IsSubtype(v.AsID().TypeId(), def.ID) {
			return true
		}
	}
	return false
}

func (m *matcher) nodeCandidates(typeRef string) ([]values.Value, error) {
	if typeRef == "" {
		return nil, mewerr.Internal("pattern: variable has no declared type and was not bound by the caller")
	}
	seen := map[values.GlyphId]bool{}
	var out []values.Value
	for _, atom := range splitUnion(typeRef) {
		if atom == "any" {
			return nil, mewerr.Syntax("pattern: an untyped node variable cannot be enumerated directly; bind it through an edge or the caller's seed")
		}
		def, ok := m.reg.TypeByName(atom)
		if !ok {
			return nil, mewerr.NotFound("node type", atom)
		}
		m.g.IterType(def.ID, func(id values.GlyphId) bool {
			if !seen[id] {
				seen[id] = true
				out = append(out, values.NewID(id))
			}
			return true
		})
	}
	return out, nil
}

// checkTransitive verifies every TransitivePlus/TransitiveStar edge pattern
// once all slots are bound, via breadth-first reachability search bounded by
// the engine's transitive-depth budget.
func (m *matcher) checkTransitive(b pool.Bindings) (bool, error) {
	for _, ep := range m.pat.Edges {
		if ep.Transitive == ast.TransitiveNone {
			continue
		}
		if len(ep.Positions) != 2 {
			return false, mewerr.Internal("pattern: transitive edge pattern requires exactly two positions")
		}
		def, ok := m.reg.EdgeTypeByName(ep.EdgeType)
		if !ok {
			return false, mewerr.NotFound("edge type", ep.EdgeType)
		}
		srcV, bound := b[ep.Positions[0]]
		if !bound {
			return false, mewerr.Internal("pattern: transitive edge source is not bound")
		}
		dstV, bound := b[ep.Positions[1]]
		if !bound {
			return false, mewerr.Internal("pattern: transitive edge target is not bound")
		}
		minDepth, maxDepth := transitiveDepthBounds(ep, m.cfg)
		found, truncated, err := m.reachable(srcV.AsID(), dstV.AsID(), def, minDepth, maxDepth)
		if err != nil {
			return false, err
		}
		if !found {
			if truncated {
				m.warnOnce(fmt.Sprintf(
					"transitive closure over %q truncated at depth %d; only matches shorter than the limit are returned",
					def.Name, maxDepth))
			}
			return false, nil
		}
	}
	return true, nil
}

func transitiveDepthBounds(ep ast.EdgePattern, cfg config.Engine) (int, int) {
	if ep.HasDepth {
		return ep.MinDepth, ep.MaxDepth
	}
	min := 1
	if ep.Transitive == ast.TransitiveStar {
		min = 0
	}
	max := cfg.DefaultTransitiveDepth
	if max <= 0 {
		max = 1
	}
	return min, max
}

// reachable runs the bounded BFS behind one transitive edge predicate. The
// truncated flag reports that the search abandoned unexplored branches at
// maxDepth, so "not found" does not mean "not reachable" and the caller
// owes the user a warning. Step counting uses the traversal's own budget
// (engine.max_transitive_steps), not the acyclic checker's, which bounds a
// different algorithm under its own overflow policy.
func (m *matcher) reachable(src, dst values.GlyphId, def *registry.EdgeTypeDef, minDepth, maxDepth int) (found, truncated bool, err error) {
	if maxDepth > m.cfg.MaxTransitiveDepth && m.cfg.MaxTransitiveDepth > 0 {
		return false, false, mewerr.DepthLimitExceeded(m.cfg.MaxTransitiveDepth)
	}
	if minDepth == 0 && src == dst {
		return true, false, nil
	}
	type item struct {
		id    values.GlyphId
		depth int
	}
	visited := map[values.GlyphId]bool{src: true}
	queue := []item{{src, 0}}
	steps := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			if len(m.g.Neighbors(cur.id, def.ID)) > 0 {
				truncated = true
			}
			continue
		}
		for _, e := range m.g.Neighbors(cur.id, def.ID) {
			steps++
			if m.cfg.MaxTransitiveSteps > 0 && steps > m.cfg.MaxTransitiveSteps {
				return false, truncated, mewerr.TransitiveStepsExceeded(m.cfg.MaxTransitiveSteps)
			}
			targets, err := m.g.Targets(e)
			if err != nil || len(targets) != 2 {
				continue
			}
			next := targets[1]
			if targets[0] != cur.id {
				if !def.Symmetric || targets[1] != cur.id {
					continue
				}
				next = targets[0]
			}
			depth := cur.depth + 1
			if next == dst && depth >= minDepth {
				return true, false, nil
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, item{next, depth})
			}
		}
	}
	return false, truncated, nil
}

func splitUnion(typeRef string) []string {
	if typeRef == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(typeRef); i++ {
		if typeRef[i] == '|' {
			out = append(out, typeRef[start:i])
			start = i + 1
		}
	}
	out = append(out, typeRef[start:])
	return out
}

func isSyntheticEdgeVar(k string) bool {
	return len(k) >= 6 && k[:6] == "__edge"
}

func cloneBindings(b pool.Bindings) pool.Bindings {
	out := make(pool.Bindings, len(b))
	for k, v := range b {
		if isSyntheticEdgeVar(k) {
			continue
		}
		out[k] = v
	}
	return out
}
