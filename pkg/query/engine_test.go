package query_test

import (
	"context"
	"testing"
	"time"

	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/compiler"
	"github.com/mewdb/mew/pkg/config"
	"github.com/mewdb/mew/pkg/glyph"
	"github.com/mewdb/mew/pkg/mutate"
	"github.com/mewdb/mew/pkg/parser"
	"github.com/mewdb/mew/pkg/pool"
	"github.com/mewdb/mew/pkg/query"
	"github.com/mewdb/mew/pkg/values"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, schema string, mutations ...string) (*glyph.Graph, *query.Engine, pool.Bindings) {
	t.Helper()
	o, err := parser.ParseOntology(schema)
	require.NoError(t, err)
	reg, err := compiler.Compile(o)
	require.NoError(t, err)
	g := glyph.NewGraph(reg)
	cfg := config.LoadFromEnv().Engine
	x := mutate.NewExecutor(context.Background(), g, cfg, time.Now().UTC())
	fx := &mutate.Effects{}
	b := pool.Bindings{}
	for _, gql := range mutations {
		stmt, err := parser.ParseStatement(gql)
		require.NoError(t, err)
		ms, ok := stmt.(ast.MutationStmt)
		require.True(t, ok)
		_, err = x.Apply(ms.Action, b, fx)
		require.NoError(t, err)
	}
	return g, query.New(g, cfg), b
}

func matchStmt(t *testing.T, gql string) ast.MatchStmt {
	t.Helper()
	stmt, err := parser.ParseStatement(gql)
	require.NoError(t, err)
	m, ok := stmt.(ast.MatchStmt)
	require.True(t, ok)
	return m
}

const taskSchema = `
node Person{name:String [required]};
node Task{title:String [required], pri:Int};
edge assigned_to(t:Task, p:Person);
`

func TestMatchProjectionOrderLimit(t *testing.T) {
	_, q, _ := setup(t, taskSchema,
		`SPAWN t1:Task{title="C", pri=3}`,
		`SPAWN t2:Task{title="A", pri=1}`,
		`SPAWN t3:Task{title="B", pri=2}`,
	)
	res, err := q.Match(context.Background(), matchStmt(t,
		`MATCH t:Task RETURN t.title AS title ORDER BY t.pri LIMIT 2`))
	require.NoError(t, err)
	require.Equal(t, []string{"title"}, res.Columns)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "A", res.Rows[0][0].AsString())
	assert.Equal(t, "B", res.Rows[1][0].AsString())
	assert.Equal(t, 3, res.Stats.MatchCount)
}

func TestMatchAggregateCount(t *testing.T) {
	_, q, _ := setup(t, taskSchema,
		`SPAWN t1:Task{title="A"}`, `SPAWN t2:Task{title="B"}`,
	)
	res, err := q.Match(context.Background(), matchStmt(t, `MATCH t:Task RETURN count(t)`))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, int64(2), res.Rows[0][0].AsInt())
}

func TestMatchAggregateOverEmptySetYieldsZero(t *testing.T) {
	_, q, _ := setup(t, taskSchema)
	res, err := q.Match(context.Background(), matchStmt(t, `MATCH t:Task RETURN count(t)`))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, int64(0), res.Rows[0][0].AsInt())
}

func TestOptionalMatchNullFills(t *testing.T) {
	_, q, _ := setup(t, taskSchema,
		`SPAWN t1:Task{title="Assigned"}`,
		`SPAWN t2:Task{title="Floating"}`,
		`SPAWN p:Person{name="Ada"}`,
		`LINK assigned_to(t1,p)`,
	)
	res, err := q.Match(context.Background(), matchStmt(t,
		`MATCH t:Task OPTIONAL MATCH assigned_to(t,p) RETURN t.title, p.name ORDER BY t.title`))
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "Assigned", res.Rows[0][0].AsString())
	assert.Equal(t, "Ada", res.Rows[0][1].AsString())
	assert.Equal(t, "Floating", res.Rows[1][0].AsString())
	assert.True(t, res.Rows[1][1].IsNull())
}

func TestMatchDistinct(t *testing.T) {
	_, q, _ := setup(t, taskSchema,
		`SPAWN t1:Task{title="Same", pri=1}`,
		`SPAWN t2:Task{title="Same", pri=2}`,
	)
	res, err := q.Match(context.Background(), matchStmt(t, `MATCH t:Task RETURN DISTINCT t.title`))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
}

func TestInspectMissingIdReturnsNotFound(t *testing.T) {
	_, q, _ := setup(t, taskSchema)
	res := q.Inspect(values.InvalidGlyphId)
	assert.False(t, res.Found)
}

func TestInspectReturnsTypeAndData(t *testing.T) {
	_, q, b := setup(t, taskSchema, `SPAWN t:Task{title="X", pri=5}`)
	res := q.Inspect(b["t"].AsID())
	require.True(t, res.Found)
	assert.Equal(t, "Task", res.Type)
	assert.Equal(t, "X", res.Data["title"].AsString())
	assert.Equal(t, int64(5), res.Data["pri"].AsInt())
}

func TestExplainPrefersIndexScan(t *testing.T) {
	g, q, _ := setup(t, `node User{email:String [unique], name:String}`)
	_ = g
	plan := q.Explain(matchStmt(t, `MATCH u:User WHERE u.email = "a@b.c" RETURN u.name`))
	rendered := plan.String()
	assert.Contains(t, rendered, "IndexScan")
}

func TestProfileAnnotatesCounts(t *testing.T) {
	_, q, _ := setup(t, taskSchema, `SPAWN t:Task{title="A"}`)
	res, plan, err := q.Profile(context.Background(), matchStmt(t, `MATCH t:Task RETURN t.title`))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, 1, plan.RowsSeen)
	assert.NotEmpty(t, plan.Elapsed)
}

const walkSchema = `
node Task{title:String [required]};
edge depends_on(a:Task, b:Task);
`

func setupChain(t *testing.T) (*query.Engine, pool.Bindings) {
	_, q, b := setup(t, walkSchema,
		`SPAWN t1:Task{title="T1"}`, `SPAWN t2:Task{title="T2"}`,
		`SPAWN t3:Task{title="T3"}`, `SPAWN t4:Task{title="T4"}`,
		`LINK depends_on(t1,t2)`, `LINK depends_on(t2,t3)`, `LINK depends_on(t3,t4)`,
	)
	return q, b
}

func walkStmt(t *testing.T, gql string) ast.WalkStmt {
	t.Helper()
	stmt, err := parser.ParseStatement(gql)
	require.NoError(t, err)
	w, ok := stmt.(ast.WalkStmt)
	require.True(t, ok)
	return w
}

func TestWalkNodesBounded(t *testing.T) {
	q, b := setupChain(t)
	res, err := q.Walk(context.Background(),
		walkStmt(t, `WALK FROM #t1 FOLLOW depends_on [depth:1..2] RETURN NODES`),
		[]values.GlyphId{b["t1"].AsID()})
	require.NoError(t, err)
	// t1 (start) plus the two nodes within depth 2.
	require.Len(t, res.Rows, 3)
}

func TestWalkTerminalStopsAtSink(t *testing.T) {
	q, b := setupChain(t)
	res, err := q.Walk(context.Background(),
		walkStmt(t, `WALK FROM #t1 FOLLOW depends_on RETURN TERMINAL`),
		[]values.GlyphId{b["t1"].AsID()})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, b["t4"].AsID(), res.Rows[0][0].AsID())
}

func TestWalkUntilIncludesMatchAndStops(t *testing.T) {
	q, b := setupChain(t)
	res, err := q.Walk(context.Background(),
		walkStmt(t, `WALK FROM #t1 FOLLOW depends_on UNTIL node.title = "T3" RETURN NODES`),
		[]values.GlyphId{b["t1"].AsID()})
	require.NoError(t, err)
	// t1, t2, t3 visited; t4 never reached past the UNTIL match.
	require.Len(t, res.Rows, 3)
}

func TestWalkIncomingDirection(t *testing.T) {
	q, b := setupChain(t)
	res, err := q.Walk(context.Background(),
		walkStmt(t, `WALK FROM #t4 FOLLOW depends_on [direction:incoming] RETURN NODES`),
		[]values.GlyphId{b["t4"].AsID()})
	require.NoError(t, err)
	require.Len(t, res.Rows, 4)
}

func TestMatchTransitiveReachability(t *testing.T) {
	_, q, _ := setup(t, walkSchema,
		`SPAWN t1:Task{title="T1"}`, `SPAWN t2:Task{title="T2"}`, `SPAWN t3:Task{title="T3"}`,
		`LINK depends_on(t1,t2)`, `LINK depends_on(t2,t3)`,
	)
	res, err := q.Match(context.Background(), matchStmt(t,
		`MATCH a:Task, b:Task, depends_on+(a,b) RETURN a.title, b.title`))
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
	assert.Empty(t, res.Warnings)
}

func TestMatchTransitiveDepthWarningSurfaces(t *testing.T) {
	g, _, _ := setup(t, walkSchema,
		`SPAWN t1:Task{title="T1"}`, `SPAWN t2:Task{title="T2"}`, `SPAWN t3:Task{title="T3"}`,
		`LINK depends_on(t1,t2)`, `LINK depends_on(t2,t3)`,
	)
	cfg := config.LoadFromEnv().Engine
	cfg.DefaultTransitiveDepth = 1
	q := query.New(g, cfg)

	res, err := q.Match(context.Background(), matchStmt(t,
		`MATCH a:Task, b:Task, depends_on+(a,b) RETURN a.title, b.title`))
	require.NoError(t, err)
	require.Len(t, res.Rows, 2, "the two-hop pair falls outside the depth limit")
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "truncated")
}
