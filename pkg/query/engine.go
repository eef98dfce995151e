// Package query implements the read statements: MATCH execution
// (projection, optional-match null-fill, implicit grouping for aggregates,
// distinct, sort, limit, timeout), the WALK traversal executor, INSPECT,
// and the EXPLAIN/PROFILE plan tree. Binding enumeration itself lives in
// pkg/pattern; this package turns binding streams into result rows.
package query

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/config"
	"github.com/mewdb/mew/pkg/glyph"
	"github.com/mewdb/mew/pkg/mewerr"
	"github.com/mewdb/mew/pkg/pattern"
	"github.com/mewdb/mew/pkg/pool"
	"github.com/mewdb/mew/pkg/values"
)

// Stats is the per-query execution statistics block attached to every
// result.
type Stats struct {
	MatchCount    int
	ReturnCount   int
	ExecutionTime time.Duration
}

// Result is one query's rows: {columns, rows, stats}.
type Result struct {
	Columns  []string
	Rows     []pool.Row
	Stats    Stats
	Warnings []string
}

// InspectResult is INSPECT's structured record: {found, type, data}, with
// targets populated for edge glyphs. A missing id yields found=false, never
// an error.
type InspectResult struct {
	Found   bool
	Type    string
	Data    map[string]values.Value
	Targets []values.GlyphId
}

// Engine executes read statements against one Graph.
type Engine struct {
	G   *glyph.Graph
	Cfg config.Engine
}

// New builds a query Engine over g.
func New(g *glyph.Graph, cfg config.Engine) *Engine {
	return &Engine{G: g, Cfg: cfg}
}

// Match executes a read-form MATCH statement.
func (e *Engine) Match(ctx context.Context, stmt ast.MatchStmt) (*Result, error) {
	start := time.Now()
	timeout := e.Cfg.DefaultTimeout
	if stmt.HasTimeout {
		timeout = stmt.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	rows, warnings, err := pattern.MatchWithWarnings(ctx, e.G, &stmt.Pattern, nil, e.Cfg)
	if err != nil {
		return nil, timeoutMapped(err, timeout)
	}
	matchCount := len(rows)

	for i := range stmt.Optionals {
		var optWarnings []string
		rows, optWarnings, err = e.optionalJoin(ctx, rows, &stmt.Optionals[i])
		if err != nil {
			return nil, timeoutMapped(err, timeout)
		}
		warnings = append(warnings, optWarnings...)
	}

	res, err := e.project(ctx, stmt, rows)
	if err != nil {
		return nil, timeoutMapped(err, timeout)
	}
	res.Warnings = append(res.Warnings, warnings...)
	res.Stats = Stats{MatchCount: matchCount, ReturnCount: len(res.Rows), ExecutionTime: time.Since(start)}
	return res, nil
}

func timeoutMapped(err error, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return mewerr.Timeout(timeout.String())
	}
	return err
}

// optionalJoin extends each outer row through one OPTIONAL MATCH pattern:
// matched inner bindings multiply the row; a miss NULL-fills the pattern's
// unbound variables. Warnings from the inner matches (truncated transitive
// closures) are collected and deduplicated for the result.
func (e *Engine) optionalJoin(ctx context.Context, outer []pool.Bindings, opt *ast.Pattern) ([]pool.Bindings, []string, error) {
	introduced := patternVars(opt)
	var out []pool.Bindings
	var warnings []string
	seenWarn := map[string]bool{}
	for _, row := range outer {
		inner, warns, err := pattern.MatchWithWarnings(ctx, e.G, opt, row, e.Cfg)
		if err != nil {
			return nil, nil, err
		}
		for _, w := range warns {
			if !seenWarn[w] {
				seenWarn[w] = true
				warnings = append(warnings, w)
			}
		}
		if len(inner) == 0 {
			filled := clone(row)
			for _, v := range introduced {
				if _, bound := filled[v]; !bound {
					filled[v] = values.Null
				}
			}
			out = append(out, filled)
			continue
		}
		out = append(out, inner...)
	}
	return out, warnings, nil
}

func patternVars(p *ast.Pattern) []string {
	var out []string
	seen := map[string]bool{}
	for _, np := range p.Nodes {
		if !seen[np.Var] {
			seen[np.Var] = true
			out = append(out, np.Var)
		}
	}
	for _, ep := range p.Edges {
		for _, v := range ep.Positions {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
		if ep.Alias != "" && !seen[ep.Alias] {
			seen[ep.Alias] = true
			out = append(out, ep.Alias)
		}
	}
	return out
}

func clone(b pool.Bindings) pool.Bindings {
	out := make(pool.Bindings, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// rowAggregates are the aggregate functions usable over the result set in a
// RETURN clause (as opposed to the correlated, pattern-carrying aggregates
// of WHERE, which pkg/pattern evaluates).
var rowAggregates = map[string]bool{
	"count": true, "collect": true, "sum": true, "min": true, "max": true, "avg": true,
}

func isRowAggregate(expr ast.Expr) bool {
	fc, ok := expr.(ast.FuncCall)
	return ok && rowAggregates[strings.ToLower(fc.Name)]
}

// project turns bindings into result rows: plain projection, or implicit
// grouping by every non-aggregated output expression when any RETURN item
// aggregates (the SQL grouping rule).
func (e *Engine) project(ctx context.Context, stmt ast.MatchStmt, rows []pool.Bindings) (*Result, error) {
	cols := make([]string, len(stmt.Return))
	for i, item := range stmt.Return {
		if item.Alias != "" {
			cols[i] = item.Alias
		} else {
			cols[i] = ast.ExprString(item.Expr)
		}
	}
	res := &Result{Columns: cols}

	aggregated := false
	for _, item := range stmt.Return {
		if isRowAggregate(item.Expr) {
			aggregated = true
			break
		}
	}

	ev := pattern.NewEvaluator(ctx, e.G, e.Cfg)

	type sortable struct {
		row     pool.Row
		binding pool.Bindings
	}
	var out []sortable

	if aggregated {
		groups, order, err := e.groupRows(ev, stmt.Return, rows)
		if err != nil {
			return nil, err
		}
		for _, key := range order {
			grp := groups[key]
			projected := make(pool.Row, len(stmt.Return))
			for i, item := range stmt.Return {
				if isRowAggregate(item.Expr) {
					v, err := e.aggregate(ev, item.Expr.(ast.FuncCall), grp)
					if err != nil {
						return nil, err
					}
					projected[i] = v
				} else if len(grp) == 0 {
					projected[i] = values.Null
				} else {
					v, err := ev.Eval(item.Expr, grp[0])
					if err != nil {
						return nil, err
					}
					projected[i] = v
				}
			}
			var rep pool.Bindings
			if len(grp) > 0 {
				rep = grp[0]
			}
			out = append(out, sortable{row: projected, binding: rep})
		}
	} else {
		for _, b := range rows {
			projected := make(pool.Row, len(stmt.Return))
			for i, item := range stmt.Return {
				v, err := ev.Eval(item.Expr, b)
				if err != nil {
					return nil, err
				}
				projected[i] = v
			}
			out = append(out, sortable{row: projected, binding: b})
		}
	}

	if stmt.Distinct {
		seen := map[string]bool{}
		dedup := out[:0]
		for _, s := range out {
			k := rowKey(s.row)
			if !seen[k] {
				seen[k] = true
				dedup = append(dedup, s)
			}
		}
		out = dedup
	}

	if len(stmt.OrderBy) > 0 {
		var sortErr error
		sort.SliceStable(out, func(i, j int) bool {
			for _, ob := range stmt.OrderBy {
				vi, vj, err := e.orderKey(ev, ob.Expr, cols, out[i].row, out[i].binding, out[j].row, out[j].binding)
				if err != nil {
					if sortErr == nil {
						sortErr = err
					}
					return false
				}
				c := compareForOrder(vi, vj)
				if c == 0 {
					continue
				}
				if ob.Descending {
					return c > 0
				}
				return c < 0
			}
			return false
		})
		if sortErr != nil {
			return nil, sortErr
		}
	}

	offset := 0
	if stmt.Skip != nil {
		offset = *stmt.Skip
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if stmt.Limit != nil && *stmt.Limit < len(out) {
		out = out[:*stmt.Limit]
	}

	for _, s := range out {
		res.Rows = append(res.Rows, s.row)
	}
	return res, nil
}

// orderKey evaluates an ORDER BY expression for two rows: against the
// bindings when the query did not aggregate, or against the projected
// columns (matched by alias/text) when it did.
func (e *Engine) orderKey(ev *pattern.Evaluator, expr ast.Expr, cols []string, rowI pool.Row, bindI pool.Bindings, rowJ pool.Row, bindJ pool.Bindings) (values.Value, values.Value, error) {
	name := ast.ExprString(expr)
	for c, col := range cols {
		if col == name {
			return rowI[c], rowJ[c], nil
		}
	}
	vi, err := ev.Eval(expr, bindI)
	if err != nil {
		return values.Null, values.Null, err
	}
	vj, err := ev.Eval(expr, bindJ)
	if err != nil {
		return values.Null, values.Null, err
	}
	return vi, vj, nil
}

// compareForOrder orders NULLs first, then by Value.Compare.
func compareForOrder(a, b values.Value) int {
	switch {
	case a.IsNull() && b.IsNull():
		return 0
	case a.IsNull():
		return -1
	case b.IsNull():
		return 1
	default:
		return a.Compare(b)
	}
}

func rowKey(r pool.Row) string {
	parts := make([]string, len(r))
	for i, v := range r {
		parts[i] = v.String()
	}
	return strings.Join(parts, "\x00")
}

// groupRows partitions bindings by the values of every non-aggregated
// RETURN expression, preserving first-seen order.
func (e *Engine) groupRows(ev *pattern.Evaluator, items []ast.ReturnItem, rows []pool.Bindings) (map[string][]pool.Bindings, []string, error) {
	groups := map[string][]pool.Bindings{}
	var order []string
	for _, b := range rows {
		var keyParts []string
		for _, item := range items {
			if isRowAggregate(item.Expr) {
				continue
			}
			v, err := ev.Eval(item.Expr, b)
			if err != nil {
				return nil, nil, err
			}
			keyParts = append(keyParts, v.String())
		}
		key := strings.Join(keyParts, "\x00")
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], b)
	}
	if len(rows) == 0 {
		// An aggregate over zero rows still yields one row (count = 0).
		groups[""] = nil
		order = append(order, "")
	}
	return groups, order, nil
}

// aggregate computes one row-aggregate function over a group.
func (e *Engine) aggregate(ev *pattern.Evaluator, fc ast.FuncCall, grp []pool.Bindings) (values.Value, error) {
	name := strings.ToLower(fc.Name)
	if len(fc.Args) == 0 {
		if name == "count" {
			return values.NewInt(int64(len(grp))), nil
		}
		return values.Null, mewerr.Syntax(name + "() requires an argument")
	}
	var vals []values.Value
	for _, b := range grp {
		v, err := ev.Eval(fc.Args[0], b)
		if err != nil {
			return values.Null, err
		}
		if !v.IsNull() {
			vals = append(vals, v)
		}
		if e.Cfg.MaxCollectSize > 0 && name == "collect" && len(vals) > e.Cfg.MaxCollectSize {
			return values.Null, mewerr.CollectOverflow(e.Cfg.MaxCollectSize)
		}
	}
	switch name {
	case "count":
		return values.NewInt(int64(len(vals))), nil
	case "collect":
		parts := make([]string, len(vals))
		for i, v := range vals {
			parts[i] = v.String()
		}
		return values.NewString("[" + strings.Join(parts, ", ") + "]"), nil
	case "sum", "avg":
		var sum float64
		allInt := true
		for _, v := range vals {
			switch v.Kind() {
			case values.KindInt:
				sum += float64(v.AsInt())
			case values.KindFloat:
				sum += v.AsFloat()
				allInt = false
			default:
				return values.Null, mewerr.TypeMismatch("Int or Float", v.Kind().String())
			}
		}
		if name == "avg" {
			if len(vals) == 0 {
				return values.Null, nil
			}
			return values.NewFloat(sum / float64(len(vals))), nil
		}
		if allInt {
			return values.NewInt(int64(sum)), nil
		}
		return values.NewFloat(sum), nil
	case "min", "max":
		if len(vals) == 0 {
			return values.Null, nil
		}
		best := vals[0]
		for _, v := range vals[1:] {
			c := v.Compare(best)
			if (name == "min" && c < 0) || (name == "max" && c > 0) {
				best = v
			}
		}
		return best, nil
	default:
		return values.Null, mewerr.NotFound("aggregate function", fc.Name)
	}
}

// Inspect resolves a glyph id directly: {found: false} rather than an error
// when the id does not resolve.
func (e *Engine) Inspect(id values.GlyphId) *InspectResult {
	if !e.G.Alive(id) {
		return &InspectResult{Found: false}
	}
	data, err := e.G.AttrsByName(id)
	if err != nil {
		return &InspectResult{Found: false}
	}
	res := &InspectResult{Found: true, Type: e.G.TypeName(id), Data: data}
	if id.IsEdge() {
		if targets, err := e.G.Targets(id); err == nil {
			res.Targets = targets
		}
	}
	return res
}
