package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/mewdb/mew/pkg/ast"
)

// PlanNode is one operator of an EXPLAIN/PROFILE tree: the
// operator name, a human detail line with its cost estimate, and (after a
// PROFILE run) the observed row counts and wall time.
type PlanNode struct {
	Op         string
	Detail     string
	Children   []*PlanNode
	RowsSeen   int
	RowsPassed int
	IndexHit   bool
	Elapsed    string
}

// String renders the tree with two-space indentation per level.
func (n *PlanNode) String() string {
	var sb strings.Builder
	n.render(&sb, 0)
	return sb.String()
}

func (n *PlanNode) render(sb *strings.Builder, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(n.Op)
	if n.Detail != "" {
		sb.WriteString("(" + n.Detail + ")")
	}
	if n.Elapsed != "" {
		fmt.Fprintf(sb, " [rows_seen=%d rows_passed=%d elapsed=%s]", n.RowsSeen, n.RowsPassed, n.Elapsed)
	}
	sb.WriteByte('\n')
	for _, c := range n.Children {
		c.render(sb, depth+1)
	}
}

// Explain builds the operator tree for a MATCH statement without running
// it. Planning is rule-based: an indexed equality predicate
// beats a scan, and filters sit below projection. Join children keep the
// pattern's order; scans carry a family-size estimate but are not reordered
// by it.
func (e *Engine) Explain(stmt ast.MatchStmt) *PlanNode {
	var leaves []*PlanNode
	for _, np := range stmt.Pattern.Nodes {
		if np.Type == "" {
			continue
		}
		detail := fmt.Sprintf("%s: %s", np.Var, np.Type)
		op := "Scan"
		if _, ok := e.G.Registry().TypeByName(np.Type); ok {
			detail += fmt.Sprintf(", est=%d", e.familyEstimate(np.Type))
			if attr, indexed := e.indexedEqualityFor(stmt.Pattern.Where, np.Var, np.Type); indexed {
				op = "IndexScan"
				detail = fmt.Sprintf("%s: %s.%s", np.Var, np.Type, attr)
			}
		}
		leaves = append(leaves, &PlanNode{Op: op, Detail: detail})
	}
	for _, ep := range stmt.Pattern.Edges {
		detail := ep.EdgeType
		if ep.Transitive != ast.TransitiveNone {
			detail += "+, bounded BFS"
		}
		leaves = append(leaves, &PlanNode{Op: "EdgeLookup", Detail: detail})
	}

	cur := &PlanNode{Op: "Join", Children: leaves}
	if len(leaves) == 1 {
		cur = leaves[0]
	}
	if stmt.Pattern.Where != nil {
		cur = &PlanNode{Op: "Filter", Detail: ast.ExprString(stmt.Pattern.Where), Children: []*PlanNode{cur}}
	}
	for i := range stmt.Optionals {
		cur = &PlanNode{Op: "OptionalJoin", Detail: stmt.Optionals[i].String(), Children: []*PlanNode{cur}}
	}
	var projected []string
	for _, item := range stmt.Return {
		projected = append(projected, ast.ExprString(item.Expr))
	}
	aggregated := false
	for _, item := range stmt.Return {
		if isRowAggregate(item.Expr) {
			aggregated = true
			break
		}
	}
	if aggregated {
		cur = &PlanNode{Op: "Aggregate", Detail: strings.Join(projected, ", "), Children: []*PlanNode{cur}}
	} else {
		cur = &PlanNode{Op: "Project", Detail: strings.Join(projected, ", "), Children: []*PlanNode{cur}}
	}
	if stmt.Distinct {
		cur = &PlanNode{Op: "Distinct", Children: []*PlanNode{cur}}
	}
	if len(stmt.OrderBy) > 0 {
		var keys []string
		for _, ob := range stmt.OrderBy {
			k := ast.ExprString(ob.Expr)
			if ob.Descending {
				k += " desc"
			}
			keys = append(keys, k)
		}
		cur = &PlanNode{Op: "Sort", Detail: strings.Join(keys, ", "), Children: []*PlanNode{cur}}
	}
	if stmt.Limit != nil || stmt.Skip != nil {
		detail := ""
		if stmt.Limit != nil {
			detail = fmt.Sprintf("limit=%d", *stmt.Limit)
		}
		if stmt.Skip != nil {
			if detail != "" {
				detail += ", "
			}
			detail += fmt.Sprintf("offset=%d", *stmt.Skip)
		}
		cur = &PlanNode{Op: "Limit", Detail: detail, Children: []*PlanNode{cur}}
	}
	return cur
}

func (e *Engine) familyEstimate(typeName string) int {
	def, ok := e.G.Registry().TypeByName(typeName)
	if !ok {
		return 0
	}
	n := 0
	for _, sub := range e.G.Registry().SubtypesOf(def.ID) {
		n += e.G.NodeCount(sub)
	}
	return n
}

// indexedEqualityFor spots a `v.attr = literal` conjunct in the WHERE
// clause whose attribute carries an index, the predicate the planner
// prefers over a family scan.
func (e *Engine) indexedEqualityFor(where ast.Expr, varName, typeName string) (string, bool) {
	var found string
	var walk func(ex ast.Expr)
	walk = func(ex ast.Expr) {
		be, ok := ex.(ast.BinaryExpr)
		if !ok {
			return
		}
		if be.Op == ast.OpAnd {
			walk(be.Lhs)
			walk(be.Rhs)
			return
		}
		if be.Op != ast.OpEq {
			return
		}
		if acc, ok := be.Lhs.(ast.AttrAccess); ok && acc.Var == varName {
			if _, isLit := be.Rhs.(ast.Literal); isLit && e.G.HasIndex(typeName, acc.Attr) {
				found = acc.Attr
			}
		}
	}
	walk(where)
	return found, found != ""
}

// Profile runs a MATCH and annotates the plan root with observed counts
// and wall time.
func (e *Engine) Profile(ctx context.Context, stmt ast.MatchStmt) (*Result, *PlanNode, error) {
	plan := e.Explain(stmt)
	res, err := e.Match(ctx, stmt)
	if err != nil {
		return nil, nil, err
	}
	plan.RowsSeen = res.Stats.MatchCount
	plan.RowsPassed = res.Stats.ReturnCount
	plan.Elapsed = res.Stats.ExecutionTime.String()
	return res, plan, nil
}
