// Package rule implements the rule engine: after a
// transaction's user mutations and before its constraint check, auto rules
// are evaluated to a fixpoint: candidate rules found by affected type,
// fired in (priority DESC, declaration-order ASC) order, each
// (rule, binding) pair limited by the same-binding budget, the whole run
// bounded by the action and depth budgets. Manual rules reuse the same
// firing path via Invoke (the INVOKE statement's dispatch).
package rule

import (
	"context"
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

// Engine drives rule evaluation for one transaction. The fired set and
// action counter persist across fixpoint iterations; a binding that fired
// once never fires again in the same transaction (same-binding budget,
// default 1).
type Engine struct {
	g    *glyph.Graph
	reg  *registry.Registry
	cfg  config.Engine
	exec *mutate.Executor

	fired   map[string]int
	actions int
}

// New builds a rule Engine sharing the transaction's mutation executor.
func New(g *glyph.Graph, cfg config.Engine, exec *mutate.Executor) *Engine {
	return &Engine{g: g, reg: g.Registry(), cfg: cfg, exec: exec, fired: map[string]int{}}
}

// RunFixpoint evaluates auto rules until quiescent, staging their effects
// into fx. Iteration 1's candidates come from everything staged since
// userMark (the user's own mutations); later iterations dispatch on the
// effects of the previous iteration only. Returns the iteration count.
func (e *Engine) RunFixpoint(ctx context.Context, fx *mutate.Effects, userMark int) (int, error) {
	mark := userMark
	iterations := 0
	for {
		if err := ctx.Err(); err != nil {
			return iterations, err
		}
		types, edges := fx.TouchedSince(mark)
		mark = fx.Mark()
		if len(types) == 0 && len(edges) == 0 {
			return iterations, nil
		}
		candidates := e.candidates(types, edges)
		if len(candidates) == 0 {
			return iterations, nil
		}
		iterations++
		if e.cfg.RuleDepthLimit > 0 && iterations > e.cfg.RuleDepthLimit {
			return iterations, mewerr.RuleDepthExceeded(e.cfg.RuleDepthLimit)
		}
		progressed := false
		for _, r := range candidates {
			fired, err := e.fire(ctx, r, nil, fx)
			if err != nil {
				return iterations, err
			}
			if fired > 0 {
				progressed = true
			}
		}
		if !progressed && fx.Mark() == mark {
			return iterations, nil
		}
	}
}

// Invoke fires a manual rule once over every current binding of its
// pattern (seeded by the caller's variable bindings, if any), then runs
// the auto fixpoint over whatever the production changed.
func (e *Engine) Invoke(ctx context.Context, r *registry.RuleDef, seed pool.Bindings, fx *mutate.Effects) (int, error) {
	mark := fx.Mark()
	fired, err := e.fire(ctx, r, seed, fx)
	if err != nil {
		return fired, err
	}
	if _, err := e.RunFixpoint(ctx, fx, mark); err != nil {
		return fired, err
	}
	return fired, nil
}

// candidates filters the registry's pre-sorted rule list down to auto rules
// whose affected types intersect the touched sets, preserving the
// (priority DESC, declaration-order ASC) order.
func (e *Engine) candidates(types map[values.TypeId]bool, edges map[values.EdgeTypeId]bool) []*registry.RuleDef {
	seen := map[int]bool{}
	for t := range types {
		for _, r := range e.reg.RulesFor(t) {
			seen[r.ID] = true
		}
	}
	for et := range edges {
		for _, r := range e.reg.EdgeRulesFor(et) {
			seen[r.ID] = true
		}
	}
	var out []*registry.RuleDef
	for _, r := range e.reg.AllRules() {
		if r.Auto && seen[r.ID] {
			out = append(out, r)
		}
	}
	return out
}

// fire enumerates r's pattern bindings and executes the production for each
// binding that still has same-binding budget, in deterministic order.
func (e *Engine) fire(ctx context.Context, r *registry.RuleDef, seed pool.Bindings, fx *mutate.Effects) (int, error) {
	rows, err := pattern.Match(ctx, e.g, r.Pattern, seed, e.cfg)
	if err != nil {
		return 0, err
	}
	limit := e.cfg.SameBindingLimit
	if limit <= 0 {
		limit = 1
	}
	fired := 0
	for _, row := range rows {
		key := bindingKey(r, row)
		if e.fired[key] >= limit {
			continue
		}
		e.fired[key]++
		for _, act := range r.Production {
			e.actions++
			if e.cfg.ActionLimit > 0 && e.actions > e.cfg.ActionLimit {
				return fired, mewerr.ActionBudgetExceeded(e.cfg.ActionLimit)
			}
			if _, err := e.exec.Apply(act, row, fx); err != nil {
				return fired, err
			}
		}
		fired++
	}
	return fired, nil
}

// bindingKey is the stable identity of a (rule, variable-assignment) pair
// used by the same-binding budget: rule id plus the sorted variable
// bindings rendered to text.
func bindingKey(r *registry.RuleDef, b pool.Bindings) string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(r.Name)
	for _, k := range keys {
		sb.WriteByte('|')
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(b[k].String())
	}
	return sb.String()
}
