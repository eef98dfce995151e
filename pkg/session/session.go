// Package session is the kernel's top-level entry point: it
// holds the active Registry and Graph, the transactional state (auto-commit
// vs explicit BEGIN/COMMIT), the session-bound #name variables, and the
// plan cache, and dispatches each parsed+analyzed statement to the query
// engine or the mutation pipeline.
package session

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mewdb/mew/pkg/analyzer"
	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/cache"
	"github.com/mewdb/mew/pkg/compiler"
	"github.com/mewdb/mew/pkg/config"
	"github.com/mewdb/mew/pkg/glyph"
	"github.com/mewdb/mew/pkg/journal"
	"github.com/mewdb/mew/pkg/mewerr"
	"github.com/mewdb/mew/pkg/parser"
	"github.com/mewdb/mew/pkg/pool"
	"github.com/mewdb/mew/pkg/query"
	"github.com/mewdb/mew/pkg/registry"
	"github.com/mewdb/mew/pkg/txn"
	"github.com/mewdb/mew/pkg/values"
)

// ResponseKind tags what a Response carries.
type ResponseKind int

const (
	ResponseAck ResponseKind = iota
	ResponseQuery
	ResponseMutation
	ResponseInspect
	ResponsePlan
)

// MutationResult is the mutation result reported back to the client.
type MutationResult struct {
	Success       bool
	NodesCreated  int
	NodesModified int
	NodesDeleted  int
	EdgesCreated  int
	EdgesDeleted  int
	Returning     *query.Result
}

// Response is the unified result of one executed statement.
type Response struct {
	Kind     ResponseKind
	Query    *query.Result
	Mutation *MutationResult
	Inspect  *query.InspectResult
	Plan     *query.PlanNode
	Message  string
	Warnings []string
}

// Session is one client's connection to the kernel. Sessions are
// single-threaded: one in-flight transaction at a time, statements applied
// in program order.
type Session struct {
	cfg *config.Config

	reg  *registry.Registry
	g    *glyph.Graph
	mgr  *txn.Manager
	cur  *txn.Txn // open explicit transaction, nil in auto-commit mode
	vars map[string]values.GlyphId

	ontologyName string
	accumulated  *ast.Ontology // full DSL AST, recompiled on EXTEND

	plans *cache.PlanCache

	statements uint64
}

// New opens a Session with the given configuration and journal (use
// journal.NewNoopJournal() for in-memory-only operation).
func New(cfg *config.Config, jrnl journal.Journal) *Session {
	s := &Session{
		cfg:  cfg,
		mgr:  txn.NewManager(jrnl),
		vars: map[string]values.GlyphId{},
	}
	if cfg.Cache.Enabled {
		if pc, err := cache.NewPlanCache(cfg.Cache.MaxCost, cfg.Cache.TTL); err == nil {
			s.plans = pc
		}
	}
	pool.Configure(pool.Config{Enabled: cfg.Pool.Enabled, MaxSize: cfg.Pool.MaxSize})
	return s
}

// Close releases session resources. An open explicit transaction is rolled
// back, never committed.
func (s *Session) Close() error {
	if s.cur != nil {
		s.cur.Rollback()
		s.cur = nil
	}
	if s.plans != nil {
		s.plans.Close()
	}
	return s.mgr.Journal().Close()
}

// Graph exposes the live graph (read-only use by callers; tests).
func (s *Session) Graph() *glyph.Graph { return s.g }

// Registry exposes the active compiled schema.
func (s *Session) Registry() *registry.Registry { return s.reg }

// Var resolves a session-bound #name variable.
func (s *Session) Var(name string) (values.GlyphId, bool) {
	id, ok := s.vars[name]
	return id, ok
}

// LoadOntologySource compiles DSL source into a fresh Registry and Graph,
// discarding any prior graph state (LOAD ONTOLOGY semantics).
func (s *Session) LoadOntologySource(ctx context.Context, src string) error {
	o, err := parser.ParseOntology(src)
	if err != nil {
		return err
	}
	if err := analyzer.AnalyzeOntology(o); err != nil {
		return err
	}
	reg, err := compiler.Compile(o)
	if err != nil {
		return err
	}
	g := glyph.NewGraph(reg)
	if err := compiler.SeedLayer0(g, reg); err != nil {
		return err
	}
	s.reg, s.g = reg, g
	s.accumulated = o
	s.ontologyName = o.Name
	s.vars = map[string]values.GlyphId{}
	if s.plans != nil {
		s.plans.Clear()
	}
	return s.mgr.Journal().Append(ctx, []journal.Effect{{
		Kind: journal.EffectSchemaLoad, Payload: []byte(src),
	}})
}

// ExtendOntologySource merges additional DSL declarations into the live
// schema, keeping graph state. The accumulated AST is recompiled from
// scratch so every previously assigned type id stays stable; the Graph is
// rebound to the new Registry.
func (s *Session) ExtendOntologySource(ctx context.Context, src string) error {
	if s.reg == nil {
		return s.LoadOntologySource(ctx, src)
	}
	if s.cur != nil {
		return mewerr.Syntax("EXTEND ONTOLOGY inside an explicit transaction is not supported",
			"COMMIT or ROLLBACK first")
	}
	o, err := parser.ParseOntology(src)
	if err != nil {
		return err
	}
	merged := &ast.Ontology{
		Name:        s.accumulated.Name,
		TypeAliases: append(append([]ast.TypeAliasDecl{}, s.accumulated.TypeAliases...), o.TypeAliases...),
		Nodes:       append(append([]ast.NodeTypeDecl{}, s.accumulated.Nodes...), o.Nodes...),
		Edges:       append(append([]ast.EdgeTypeDecl{}, s.accumulated.Edges...), o.Edges...),
		Constraints: append(append([]ast.ConstraintDecl{}, s.accumulated.Constraints...), o.Constraints...),
		Rules:       append(append([]ast.RuleDecl{}, s.accumulated.Rules...), o.Rules...),
	}
	if err := analyzer.AnalyzeOntology(merged); err != nil {
		return err
	}
	reg, err := compiler.Compile(merged)
	if err != nil {
		return err
	}
	g := s.g.CloneWith(reg)
	if err := compiler.SeedLayer0(g, reg); err != nil {
		return err
	}
	s.reg, s.g = reg, g
	s.accumulated = merged
	if s.plans != nil {
		s.plans.Clear()
	}
	return s.mgr.Journal().Append(ctx, []journal.Effect{{
		Kind: journal.EffectSchemaLoad, Payload: []byte(src),
	}})
}

// Execute parses, analyzes, and runs one GQL statement.
func (s *Session) Execute(ctx context.Context, src string) (*Response, error) {
	s.statements++
	stmt, err := s.parseCached(src)
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, stmt)
}

// ExecuteScript runs a `;`-separated script, stopping at the first error.
func (s *Session) ExecuteScript(ctx context.Context, src string) ([]*Response, error) {
	stmts, err := parser.ParseStatements(src)
	if err != nil {
		return nil, err
	}
	var out []*Response
	for _, stmt := range stmts {
		s.statements++
		resp, err := s.dispatchParsed(ctx, stmt)
		if err != nil {
			return out, err
		}
		out = append(out, resp)
	}
	return out, nil
}

// parseCached parses one statement, consulting the plan cache for read-only
// statements (the only ones whose parse+analysis is safe to reuse).
func (s *Session) parseCached(src string) (ast.Stmt, error) {
	var key uint64
	if s.plans != nil {
		key = s.plans.Key(src, nil)
		if v, ok := s.plans.Get(key); ok {
			if stmt, ok := v.(ast.Stmt); ok {
				return stmt, nil
			}
		}
	}
	stmt, err := parser.ParseStatement(src)
	if err != nil {
		return nil, err
	}
	if s.plans != nil && isCacheable(stmt) {
		s.plans.Put(key, stmt, 1)
	}
	return stmt, nil
}

func isCacheable(stmt ast.Stmt) bool {
	switch t := stmt.(type) {
	case ast.MatchStmt:
		return t.Mutation == nil
	case ast.WalkStmt, ast.InspectStmt:
		return true
	default:
		return false
	}
}

func (s *Session) dispatch(ctx context.Context, stmt ast.Stmt) (*Response, error) {
	return s.dispatchParsed(ctx, stmt)
}

func (s *Session) dispatchParsed(ctx context.Context, stmt ast.Stmt) (*Response, error) {
	// Schema statements work before any ontology is loaded; everything else
	// needs a Registry to resolve against.
	switch t := stmt.(type) {
	case ast.LoadOntologyStmt:
		if s.cur != nil {
			return nil, mewerr.Syntax("LOAD ONTOLOGY inside an explicit transaction is not supported",
				"COMMIT or ROLLBACK first")
		}
		if err := s.LoadOntologySource(ctx, s.ontologyText(t.Source)); err != nil {
			return nil, err
		}
		return &Response{Kind: ResponseAck, Message: "ontology loaded"}, nil
	case ast.ExtendOntologyStmt:
		if err := s.ExtendOntologySource(ctx, s.ontologyText(t.Source)); err != nil {
			return nil, err
		}
		return &Response{Kind: ResponseAck, Message: "ontology extended"}, nil
	}
	if s.reg == nil {
		return nil, mewerr.New("E4001", mewerr.CategoryNotFound, "no ontology loaded",
			"run LOAD ONTOLOGY first")
	}

	// AnalyzeStmt unwraps EXPLAIN/PROFILE/DRY RUN to check the inner
	// statement, so dispatch keeps working from the original stmt.
	if _, err := analyzer.New(s.reg).AnalyzeStmt(stmt); err != nil {
		return nil, err
	}

	switch t := stmt.(type) {
	case ast.MatchStmt:
		if t.Mutation != nil {
			return s.executeCompoundMatch(ctx, t)
		}
		res, err := query.New(s.g, s.cfg.Engine).Match(ctx, t)
		if err != nil {
			return nil, err
		}
		return &Response{Kind: ResponseQuery, Query: res, Warnings: res.Warnings}, nil

	case ast.WalkStmt:
		starts, err := s.resolveStarts(t.Starts)
		if err != nil {
			return nil, err
		}
		res, err := query.New(s.g, s.cfg.Engine).Walk(ctx, t, starts)
		if err != nil {
			return nil, err
		}
		return &Response{Kind: ResponseQuery, Query: res, Warnings: res.Warnings}, nil

	case ast.InspectStmt:
		id, ok := s.resolveIDExpr(t.ID)
		if !ok {
			return &Response{Kind: ResponseInspect, Inspect: &query.InspectResult{Found: false}}, nil
		}
		return &Response{Kind: ResponseInspect, Inspect: query.New(s.g, s.cfg.Engine).Inspect(id)}, nil

	case ast.MutationStmt:
		return s.executeMutation(ctx, t)

	case ast.TxStmt:
		return s.executeTx(ctx, t)

	case ast.ShowStmt:
		return s.executeShow(t)

	case ast.CreateIndexStmt:
		if err := s.g.CreateIndex(t.Type, t.Attr); err != nil {
			return nil, err
		}
		if s.plans != nil {
			s.plans.Clear()
		}
		return &Response{Kind: ResponseAck, Message: fmt.Sprintf("index created on %s(%s)", t.Type, t.Attr)}, nil

	case ast.DropIndexStmt:
		if err := s.g.DropIndex(t.Type, t.Attr); err != nil {
			return nil, err
		}
		if s.plans != nil {
			s.plans.Clear()
		}
		return &Response{Kind: ResponseAck, Message: fmt.Sprintf("index dropped on %s(%s)", t.Type, t.Attr)}, nil

	case ast.ExplainStmt:
		inner, ok := t.Inner.(ast.MatchStmt)
		if !ok {
			return nil, mewerr.Syntax("EXPLAIN supports MATCH statements")
		}
		return &Response{Kind: ResponsePlan, Plan: query.New(s.g, s.cfg.Engine).Explain(inner)}, nil

	case ast.ProfileStmt:
		inner, ok := t.Inner.(ast.MatchStmt)
		if !ok {
			return nil, mewerr.Syntax("PROFILE supports MATCH statements")
		}
		res, plan, err := query.New(s.g, s.cfg.Engine).Profile(ctx, inner)
		if err != nil {
			return nil, err
		}
		return &Response{Kind: ResponsePlan, Plan: plan, Query: res}, nil

	case ast.DryRunStmt:
		return s.executeDryRun(ctx, t)

	case ast.InvokeStmt:
		return s.executeInvoke(ctx, t)

	default:
		return nil, mewerr.Internal("session: unrecognized statement type")
	}
}

// ontologyText treats the LOAD/EXTEND source operand as inline DSL when it
// contains declaration syntax, otherwise as a file path.
func (s *Session) ontologyText(src string) string {
	if strings.ContainsAny(src, "{\n") {
		return src
	}
	if data, err := os.ReadFile(src); err == nil {
		return string(data)
	}
	return src
}

// seedBindings builds a Bindings map pre-populated with the session's #name
// variables for a top-level mutation statement.
func (s *Session) seedBindings() pool.Bindings {
	b := make(pool.Bindings, len(s.vars)+4)
	for k, v := range s.vars {
		b[k] = values.NewID(v)
	}
	return b
}

// recordVars captures the glyph variables an action bound (SPAWN's var,
// LINK's alias) as session variables so later statements can reference
// them as #name.
func (s *Session) recordVars(act ast.Action, b pool.Bindings) {
	switch a := act.(type) {
	case ast.SpawnAction:
		if v, ok := b[a.Var]; ok && v.Kind() == values.KindID {
			s.vars[a.Var] = v.AsID()
		}
	case ast.LinkAction:
		if a.Alias != "" {
			if v, ok := b[a.Alias]; ok && v.Kind() == values.KindID {
				s.vars[a.Alias] = v.AsID()
			}
		}
	}
}

// resolveIDExpr resolves an INSPECT/WALK id operand: a session variable if
// one exists under that name, else a literal glyph id rendering.
func (s *Session) resolveIDExpr(e ast.Expr) (values.GlyphId, bool) {
	switch n := e.(type) {
	case ast.Ident:
		if id, ok := s.vars[n.Name]; ok {
			return id, true
		}
		return parseGlyphLiteral(n.Name)
	case ast.Literal:
		if n.Kind == ast.LitString {
			raw := n.Raw.(string)
			if id, ok := s.vars[raw]; ok {
				return id, true
			}
			return parseGlyphLiteral(raw)
		}
		if n.Kind == ast.LitInt {
			return values.GlyphId(n.Raw.(int64)), true
		}
	}
	return values.InvalidGlyphId, false
}

// parseGlyphLiteral accepts the diagnostic rendering ("n1.0.0" / "e2.0.1",
// with or without the leading '#') and a bare uint64.
func parseGlyphLiteral(raw string) (values.GlyphId, bool) {
	raw = strings.TrimPrefix(raw, "#")
	if u, err := strconv.ParseUint(raw, 10, 64); err == nil {
		return values.GlyphId(u), true
	}
	if len(raw) < 2 || (raw[0] != 'n' && raw[0] != 'e') {
		return values.InvalidGlyphId, false
	}
	parts := strings.Split(raw[1:], ".")
	if len(parts) != 3 {
		return values.InvalidGlyphId, false
	}
	typ, err1 := strconv.ParseUint(parts[0], 10, 32)
	gen, err2 := strconv.ParseUint(parts[1], 10, 16)
	slot, err3 := strconv.ParseUint(parts[2], 10, 32)
	if err1 != nil || err2 != nil || err3 != nil {
		return values.InvalidGlyphId, false
	}
	if raw[0] == 'e' {
		return values.NewEdgeGlyphId(values.EdgeTypeId(typ), uint16(gen), uint32(slot)), true
	}
	return values.NewNodeGlyphId(values.TypeId(typ), uint16(gen), uint32(slot)), true
}

func (s *Session) resolveStarts(exprs []ast.Expr) ([]values.GlyphId, error) {
	out := make([]values.GlyphId, 0, len(exprs))
	for _, e := range exprs {
		id, ok := s.resolveIDExpr(e)
		if !ok {
			return nil, mewerr.NotFound("start point", ast.ExprString(e))
		}
		out = append(out, id)
	}
	return out, nil
}
