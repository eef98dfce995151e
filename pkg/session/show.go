package session

import (
	"fmt"
	"strings"

	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/mewerr"
	"github.com/mewdb/mew/pkg/pool"
	"github.com/mewdb/mew/pkg/query"
	"github.com/mewdb/mew/pkg/values"
)

// executeShow answers the read-only SHOW statements from the Registry and
// the Graph's internal counters.
func (s *Session) executeShow(stmt ast.ShowStmt) (*Response, error) {
	res := &query.Result{}
	switch stmt.Target {
	case ast.ShowTypes:
		res.Columns = []string{"name", "abstract", "sealed", "parents", "attrs"}
		for _, def := range s.reg.AllNodeTypes() {
			var parents []string
			for _, p := range def.Parents {
				if pd, ok := s.reg.TypeByID(p); ok {
					parents = append(parents, pd.Name)
				}
			}
			res.Rows = append(res.Rows, pool.Row{
				values.NewString(def.Name),
				values.NewBool(def.Abstract),
				values.NewBool(def.Sealed),
				values.NewString(strings.Join(parents, ", ")),
				values.NewInt(int64(len(def.AllAttrs))),
			})
		}

	case ast.ShowEdges:
		res.Columns = []string{"name", "arity", "symmetric", "no_self", "acyclic", "unique"}
		for _, def := range s.reg.AllEdgeTypes() {
			res.Rows = append(res.Rows, pool.Row{
				values.NewString(def.Name),
				values.NewInt(int64(len(def.Positions))),
				values.NewBool(def.Symmetric),
				values.NewBool(def.NoSelf),
				values.NewBool(def.Acyclic),
				values.NewBool(def.Unique),
			})
		}

	case ast.ShowConstraints:
		res.Columns = []string{"name", "hard", "deferred", "message"}
		for _, def := range s.reg.AllConstraints() {
			res.Rows = append(res.Rows, pool.Row{
				values.NewString(def.Name),
				values.NewBool(def.Hard),
				values.NewBool(def.Deferred),
				values.NewString(def.Message),
			})
		}

	case ast.ShowRules:
		res.Columns = []string{"name", "priority", "auto"}
		for _, def := range s.reg.AllRules() {
			res.Rows = append(res.Rows, pool.Row{
				values.NewString(def.Name),
				values.NewInt(int64(def.Priority)),
				values.NewBool(def.Auto),
			})
		}

	case ast.ShowIndexes:
		res.Columns = []string{"type", "attribute", "unique", "source"}
		for _, def := range s.reg.AllNodeTypes() {
			for _, a := range def.AllAttrs {
				declared := a.Indexed || a.Unique
				runtime := !declared && s.g.HasIndex(def.Name, a.Name)
				if !declared && !runtime {
					continue
				}
				source := "declared"
				if runtime {
					source = "runtime"
				}
				res.Rows = append(res.Rows, pool.Row{
					values.NewString(def.Name),
					values.NewString(a.Name),
					values.NewBool(a.Unique),
					values.NewString(source),
				})
			}
		}

	case ast.ShowStatistics:
		res.Columns = []string{"kind", "name", "count"}
		totalNodes, totalEdges := 0, 0
		for _, def := range s.reg.AllNodeTypes() {
			n := s.g.NodeCount(def.ID)
			totalNodes += n
			res.Rows = append(res.Rows, pool.Row{
				values.NewString("node_count"), values.NewString(def.Name), values.NewInt(int64(n)),
			})
		}
		for _, def := range s.reg.AllEdgeTypes() {
			n := s.g.EdgeCount(def.ID)
			totalEdges += n
			res.Rows = append(res.Rows, pool.Row{
				values.NewString("edge_count"), values.NewString(def.Name), values.NewInt(int64(n)),
			})
		}
		res.Rows = append(res.Rows,
			pool.Row{values.NewString("total"), values.NewString("nodes"), values.NewInt(int64(totalNodes))},
			pool.Row{values.NewString("total"), values.NewString("edges"), values.NewInt(int64(totalEdges))},
			pool.Row{values.NewString("total"), values.NewString("constraints"), values.NewInt(int64(len(s.reg.AllConstraints())))},
			pool.Row{values.NewString("total"), values.NewString("rules"), values.NewInt(int64(len(s.reg.AllRules())))},
			pool.Row{values.NewString("total"), values.NewString("last_transaction_id"), values.NewInt(int64(s.mgr.LastTxnID()))},
		)

	case ast.ShowStatus:
		res.Columns = []string{"key", "value"}
		mode := "auto-commit"
		if s.cur != nil {
			mode = "explicit transaction"
		}
		res.Rows = append(res.Rows,
			pool.Row{values.NewString("ontology"), values.NewString(s.ontologyName)},
			pool.Row{values.NewString("transaction_mode"), values.NewString(mode)},
			pool.Row{values.NewString("statements_executed"), values.NewInt(int64(s.statements))},
			pool.Row{values.NewString("session_variables"), values.NewInt(int64(len(s.vars)))},
		)
		if s.plans != nil {
			st := s.plans.Stats()
			res.Rows = append(res.Rows,
				pool.Row{values.NewString("plan_cache_hit_rate"), values.NewString(fmt.Sprintf("%.1f%%", st.HitRate))},
			)
		}

	default:
		return nil, mewerr.Internal("session: unrecognized SHOW target")
	}
	res.Stats.ReturnCount = len(res.Rows)
	return &Response{Kind: ResponseQuery, Query: res}, nil
}
