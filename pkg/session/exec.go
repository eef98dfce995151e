package session

import (
	"context"
	"fmt"

	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/mewerr"
	"github.com/mewdb/mew/pkg/mutate"
	"github.com/mewdb/mew/pkg/pattern"
	"github.com/mewdb/mew/pkg/pool"
	"github.com/mewdb/mew/pkg/query"
	"github.com/mewdb/mew/pkg/txn"
	"github.com/mewdb/mew/pkg/values"
)

// withTxn runs fn inside the open explicit transaction, or wraps it in an
// implicit auto-commit transaction. The returned txn.Result is
// nil while an explicit transaction stays open (counters land at COMMIT).
func (s *Session) withTxn(ctx context.Context, fn func(t *txn.Txn) error) (*txn.Result, error) {
	if s.cur != nil {
		if err := fn(s.cur); err != nil {
			s.cur.Rollback()
			s.cur = nil
			return nil, err
		}
		return nil, nil
	}
	t := s.mgr.Begin(ctx, s.g, s.cfg.Engine)
	if err := fn(t); err != nil {
		t.Rollback()
		return nil, err
	}
	return t.Commit(ctx)
}

// executeMutation runs a top-level SPAWN/LINK/UNLINK/KILL/SET statement.
func (s *Session) executeMutation(ctx context.Context, stmt ast.MutationStmt) (*Response, error) {
	b := s.seedBindings()
	var out mutate.Outcome
	res, err := s.withTxn(ctx, func(t *txn.Txn) error {
		var err error
		out, err = t.Apply(ctx, stmt.Action, b)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordVars(stmt.Action, b)
	resp := &Response{Kind: ResponseMutation, Mutation: mutationResult(res)}
	if len(stmt.Returning) > 0 {
		ret, err := s.buildReturning(stmt, out)
		if err != nil {
			return nil, err
		}
		resp.Mutation.Returning = ret
	}
	return resp, nil
}

func mutationResult(r *txn.Result) *MutationResult {
	if r == nil {
		// Explicit transaction still open: counters are reported at COMMIT.
		return &MutationResult{Success: true}
	}
	return &MutationResult{
		Success:       r.Success,
		NodesCreated:  r.NodesCreated,
		NodesModified: r.NodesModified,
		NodesDeleted:  r.NodesDeleted,
		EdgesCreated:  r.EdgesCreated,
		EdgesDeleted:  r.EdgesDeleted,
	}
}

// buildReturning materializes the RETURNING clause for a single-action
// mutation: `id`, `*`, `CREATED` (LINK IF NOT EXISTS only), or named
// attributes of the affected glyph.
func (s *Session) buildReturning(stmt ast.MutationStmt, out mutate.Outcome) (*query.Result, error) {
	res := &query.Result{}
	row := pool.Row{}
	for _, col := range stmt.Returning {
		switch col {
		case "id":
			res.Columns = append(res.Columns, "id")
			row = append(row, values.NewID(out.Glyph))
		case "CREATED":
			link, ok := stmt.Action.(ast.LinkAction)
			if !ok || !link.IfNotExists {
				return nil, mewerr.Syntax("RETURNING CREATED is valid only for LINK IF NOT EXISTS")
			}
			res.Columns = append(res.Columns, "created")
			row = append(row, values.NewBool(out.Created))
		case "*":
			attrs, err := s.g.AttrsByName(out.Glyph)
			if err != nil {
				return nil, err
			}
			for name, v := range attrs {
				res.Columns = append(res.Columns, name)
				row = append(row, v)
			}
		default:
			v, _, err := s.g.Attr(out.Glyph, col)
			if err != nil {
				return nil, err
			}
			res.Columns = append(res.Columns, col)
			row = append(row, v)
		}
	}
	res.Rows = append(res.Rows, row)
	res.Stats.ReturnCount = 1
	return res, nil
}

// executeCompoundMatch runs `MATCH pattern [WHERE] <mutation>`: the
// mutation executes once per binding. Bulk
// KILL without a WHERE requires LIMIT or FORCE.
func (s *Session) executeCompoundMatch(ctx context.Context, stmt ast.MatchStmt) (*Response, error) {
	if kill, ok := stmt.Mutation.(ast.KillAction); ok {
		if stmt.Pattern.Where == nil && stmt.Limit == nil && !kill.Force {
			return nil, mewerr.New("E1002", mewerr.CategorySyntax,
				"bulk KILL without a WHERE clause requires an explicit LIMIT or FORCE",
				"add WHERE to narrow the match, LIMIT n to bound it, or FORCE to confirm")
		}
	}
	res, err := s.withTxn(ctx, func(t *txn.Txn) error {
		rows, err := pattern.Match(ctx, s.g, &stmt.Pattern, nil, s.cfg.Engine)
		if err != nil {
			return err
		}
		if stmt.Limit != nil && *stmt.Limit < len(rows) {
			rows = rows[:*stmt.Limit]
		}
		for _, row := range rows {
			b := s.seedBindings()
			for k, v := range row {
				b[k] = v
			}
			if _, err := t.Apply(ctx, stmt.Mutation, b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Response{Kind: ResponseMutation, Mutation: mutationResult(res)}, nil
}

// executeTx handles BEGIN/COMMIT/ROLLBACK/SAVEPOINT/ROLLBACK TO.
func (s *Session) executeTx(ctx context.Context, stmt ast.TxStmt) (*Response, error) {
	switch stmt.Verb {
	case ast.TxBegin:
		if s.cur != nil {
			return nil, mewerr.Syntax("a transaction is already open", "COMMIT or ROLLBACK first")
		}
		s.cur = s.mgr.Begin(ctx, s.g, s.cfg.Engine)
		return &Response{Kind: ResponseAck, Message: "transaction started"}, nil

	case ast.TxCommit:
		if s.cur == nil {
			return nil, mewerr.Syntax("no open transaction", "BEGIN first")
		}
		t := s.cur
		s.cur = nil
		res, err := t.Commit(ctx)
		if err != nil {
			return nil, err
		}
		resp := &Response{Kind: ResponseMutation, Mutation: mutationResult(res)}
		for _, w := range res.Warnings {
			resp.Warnings = append(resp.Warnings, w.Constraint+": "+w.Message)
		}
		return resp, nil

	case ast.TxRollback:
		if s.cur == nil {
			return nil, mewerr.Syntax("no open transaction", "BEGIN first")
		}
		s.cur.Rollback()
		s.cur = nil
		return &Response{Kind: ResponseAck, Message: "transaction rolled back"}, nil

	case ast.TxSavepoint:
		if s.cur == nil {
			return nil, mewerr.Syntax("SAVEPOINT requires an open transaction", "BEGIN first")
		}
		s.cur.Savepoint(stmt.Savepoint)
		return &Response{Kind: ResponseAck, Message: "savepoint " + stmt.Savepoint}, nil

	case ast.TxRollbackTo:
		if s.cur == nil {
			return nil, mewerr.Syntax("ROLLBACK TO requires an open transaction", "BEGIN first")
		}
		if err := s.cur.RollbackTo(stmt.Savepoint); err != nil {
			return nil, err
		}
		return &Response{Kind: ResponseAck, Message: "rolled back to " + stmt.Savepoint}, nil

	default:
		return nil, mewerr.Internal("session: unrecognized transaction verb")
	}
}

// executeDryRun stages a mutation through the full pipeline, rules and
// commit-time constraints included, then rolls everything back, reporting
// what would have happened.
func (s *Session) executeDryRun(ctx context.Context, stmt ast.DryRunStmt) (*Response, error) {
	if s.cur != nil {
		return nil, mewerr.Syntax("DRY RUN inside an explicit transaction is not supported",
			"COMMIT or ROLLBACK first")
	}
	t := s.mgr.Begin(ctx, s.g, s.cfg.Engine)
	defer t.Rollback()

	apply := func(act ast.Action, b pool.Bindings) error {
		_, err := t.Apply(ctx, act, b)
		return err
	}
	switch inner := stmt.Inner.(type) {
	case ast.MutationStmt:
		if err := apply(inner.Action, s.seedBindings()); err != nil {
			return nil, err
		}
	case ast.MatchStmt:
		if inner.Mutation == nil {
			return nil, mewerr.Syntax("DRY RUN requires a mutation statement")
		}
		rows, err := pattern.Match(ctx, s.g, &inner.Pattern, nil, s.cfg.Engine)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			b := s.seedBindings()
			for k, v := range row {
				b[k] = v
			}
			if err := apply(inner.Mutation, b); err != nil {
				return nil, err
			}
		}
	default:
		return nil, mewerr.Syntax("DRY RUN requires a mutation statement")
	}

	res, err := t.Validate(ctx)
	if err != nil {
		return nil, err
	}
	resp := &Response{Kind: ResponseMutation, Mutation: mutationResult(res),
		Message: "dry run: no changes applied"}
	return resp, nil
}

// executeInvoke dispatches a manual rule by name.
func (s *Session) executeInvoke(ctx context.Context, stmt ast.InvokeStmt) (*Response, error) {
	def, ok := s.reg.RuleByName(stmt.RuleName)
	if !ok {
		return nil, mewerr.NotFound("rule", stmt.RuleName)
	}
	if def.Auto {
		return nil, mewerr.Syntax(fmt.Sprintf("rule %q is auto and cannot be invoked manually", stmt.RuleName),
			"auto rules fire on their own at commit")
	}
	var fired int
	res, err := s.withTxn(ctx, func(t *txn.Txn) error {
		seed := pool.Bindings{}
		if len(stmt.Bindings) > 0 {
			ev := pattern.NewEvaluator(ctx, s.g, s.cfg.Engine)
			base := s.seedBindings()
			for name, expr := range stmt.Bindings {
				v, err := ev.Eval(expr, base)
				if err != nil {
					return err
				}
				seed[name] = v
			}
		}
		var err error
		fired, err = t.Rules().Invoke(ctx, def, seed, t.Effects())
		return err
	})
	if err != nil {
		return nil, err
	}
	resp := &Response{Kind: ResponseMutation, Mutation: mutationResult(res),
		Message: fmt.Sprintf("rule %s fired %d time(s)", stmt.RuleName, fired)}
	return resp, nil
}
