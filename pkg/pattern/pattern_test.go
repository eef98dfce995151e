package pattern_test

import (
	"context"
	"testing"

	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/compiler"
	"github.com/mewdb/mew/pkg/config"
	"github.com/mewdb/mew/pkg/glyph"
	"github.com/mewdb/mew/pkg/mewerr"
	"github.com/mewdb/mew/pkg/parser"
	"github.com/mewdb/mew/pkg/pattern"
	"github.com/mewdb/mew/pkg/values"
	"github.com/stretchr/testify/require"
)

func setupGraph(t *testing.T, schema string) *glyph.Graph {
	t.Helper()
	o, err := parser.ParseOntology(schema)
	require.NoError(t, err)
	reg, err := compiler.Compile(o)
	require.NoError(t, err)
	return glyph.NewGraph(reg)
}

const friendsSchema = `
node Person {name:String [required], age:Int};
edge friends(a:Person, b:Person) [symmetric];
`

func mustPattern(t *testing.T, gql string) *ast.Pattern {
	t.Helper()
	stmt, err := parser.ParseStatement(gql)
	require.NoError(t, err)
	ms, ok := stmt.(ast.MatchStmt)
	require.True(t, ok, "expected a MATCH statement")
	return &ms.Pattern
}

func TestMatchSingleTypedNode(t *testing.T) {
	g := setupGraph(t, friendsSchema)
	reg := g.Registry()
	personDef, _ := reg.TypeByName("Person")
	ada, err := g.CreateNode(personDef.ID, map[string]values.Value{"name": values.NewString("Ada")})
	require.NoError(t, err)
	bo, err := g.CreateNode(personDef.ID, map[string]values.Value{"name": values.NewString("Bo")})
	require.NoError(t, err)

	pat := mustPattern(t, `match p:Person return p.name`)
	cfg := config.LoadFromEnv()
	rows, err := pattern.Match(context.Background(), g, pat, nil, cfg.Engine)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	got := map[values.GlyphId]bool{}
	for _, row := range rows {
		got[row["p"].AsID()] = true
	}
	require.True(t, got[ada])
	require.True(t, got[bo])
}

func TestMatchEdgePatternSymmetric(t *testing.T) {
	g := setupGraph(t, friendsSchema)
	reg := g.Registry()
	personDef, _ := reg.TypeByName("Person")
	edgeDef, _ := reg.EdgeTypeByName("friends")

	ada, err := g.CreateNode(personDef.ID, map[string]values.Value{"name": values.NewString("Ada")})
	require.NoError(t, err)
	bo, err := g.CreateNode(personDef.ID, map[string]values.Value{"name": values.NewString("Bo")})
	require.NoError(t, err)
	_, err = g.CreateEdge(edgeDef.ID, []values.GlyphId{ada, bo}, nil)
	require.NoError(t, err)

	pat := mustPattern(t, `match a:Person, b:Person, friends(a,b) return a.name, b.name`)
	cfg := config.LoadFromEnv()
	rows, err := pattern.Match(context.Background(), g, pat, nil, cfg.Engine)
	require.NoError(t, err)
	require.Len(t, rows, 2) // symmetric edge matches both orderings
	for _, row := range rows {
		require.Contains(t, []values.GlyphId{ada, bo}, row["a"].AsID())
		require.Contains(t, []values.GlyphId{ada, bo}, row["b"].AsID())
	}
}

func TestMatchWhereClauseFilters(t *testing.T) {
	g := setupGraph(t, friendsSchema)
	reg := g.Registry()
	personDef, _ := reg.TypeByName("Person")
	_, err := g.CreateNode(personDef.ID, map[string]values.Value{"name": values.NewString("Ada"), "age": values.NewInt(30)})
	require.NoError(t, err)
	_, err = g.CreateNode(personDef.ID, map[string]values.Value{"name": values.NewString("Bo"), "age": values.NewInt(10)})
	require.NoError(t, err)

	pat := mustPattern(t, `match p:Person where p.age > 18 return p.name`)
	cfg := config.LoadFromEnv()
	rows, err := pattern.Match(context.Background(), g, pat, nil, cfg.Engine)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "Ada", mustAttrName(t, g, rows[0]["p"].AsID()))
}

func mustAttrName(t *testing.T, g *glyph.Graph, id values.GlyphId) string {
	t.Helper()
	v, found, err := g.Attr(id, "name")
	require.NoError(t, err)
	require.True(t, found)
	return v.AsString()
}

func TestMatchNoResultsWhenWhereExcludesEveryCandidate(t *testing.T) {
	g := setupGraph(t, friendsSchema)
	reg := g.Registry()
	personDef, _ := reg.TypeByName("Person")
	_, err := g.CreateNode(personDef.ID, map[string]values.Value{"name": values.NewString("Ada"), "age": values.NewInt(5)})
	require.NoError(t, err)

	pat := mustPattern(t, `match p:Person where p.age > 18 return p.name`)
	cfg := config.LoadFromEnv()
	rows, err := pattern.Match(context.Background(), g, pat, nil, cfg.Engine)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestMatchExistsSubpattern(t *testing.T) {
	g := setupGraph(t, friendsSchema)
	reg := g.Registry()
	personDef, _ := reg.TypeByName("Person")
	edgeDef, _ := reg.EdgeTypeByName("friends")

	ada, err := g.CreateNode(personDef.ID, map[string]values.Value{"name": values.NewString("Ada")})
	require.NoError(t, err)
	bo, err := g.CreateNode(personDef.ID, map[string]values.Value{"name": values.NewString("Bo")})
	require.NoError(t, err)
	_, err = g.CreateNode(personDef.ID, map[string]values.Value{"name": values.NewString("Cy")})
	require.NoError(t, err)
	_, err = g.CreateEdge(edgeDef.ID, []values.GlyphId{ada, bo}, nil)
	require.NoError(t, err)

	pat := mustPattern(t, `match p:Person where exists(f:Person, friends(p,f)) return p.name`)
	cfg := config.LoadFromEnv()
	rows, err := pattern.Match(context.Background(), g, pat, nil, cfg.Engine)
	require.NoError(t, err)
	got := map[values.GlyphId]bool{}
	for _, row := range rows {
		got[row["p"].AsID()] = true
	}
	require.True(t, got[ada])
	require.True(t, got[bo])
}

const dependsSchema = `
node Task {title:String [required]};
edge depends_on(a:Task, b:Task);
`

// chainGraph builds t1 -> t2 -> t3 over depends_on and returns the graph
// plus the three node ids in order.
func chainGraph(t *testing.T) (*glyph.Graph, []values.GlyphId) {
	t.Helper()
	g := setupGraph(t, dependsSchema)
	reg := g.Registry()
	taskDef, _ := reg.TypeByName("Task")
	edgeDef, _ := reg.EdgeTypeByName("depends_on")
	var ids []values.GlyphId
	for _, title := range []string{"T1", "T2", "T3"} {
		id, err := g.CreateNode(taskDef.ID, map[string]values.Value{"title": values.NewString(title)})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	_, err := g.CreateEdge(edgeDef.ID, []values.GlyphId{ids[0], ids[1]}, nil)
	require.NoError(t, err)
	_, err = g.CreateEdge(edgeDef.ID, []values.GlyphId{ids[1], ids[2]}, nil)
	require.NoError(t, err)
	return g, ids
}

func TestMatchTransitivePlusReachability(t *testing.T) {
	g, ids := chainGraph(t)
	pat := mustPattern(t, `match a:Task, b:Task, depends_on+(a,b) return a.title`)
	cfg := config.LoadFromEnv()
	rows, err := pattern.Match(context.Background(), g, pat, nil, cfg.Engine)
	require.NoError(t, err)
	require.Len(t, rows, 3) // (t1,t2), (t2,t3), and the two-hop (t1,t3)
	sawTwoHop := false
	for _, row := range rows {
		if row["a"].AsID() == ids[0] && row["b"].AsID() == ids[2] {
			sawTwoHop = true
		}
	}
	require.True(t, sawTwoHop, "E+ must cross intermediate nodes")
}

func TestMatchTransitiveStarIncludesZeroHops(t *testing.T) {
	g, _ := chainGraph(t)
	pat := mustPattern(t, `match a:Task, b:Task, depends_on*(a,b) return a.title`)
	cfg := config.LoadFromEnv()
	rows, err := pattern.Match(context.Background(), g, pat, nil, cfg.Engine)
	require.NoError(t, err)
	// Three reflexive zero-hop pairs plus the three reachable pairs.
	require.Len(t, rows, 6)
}

func TestMatchTransitiveDepthLimitWarnsAndTruncates(t *testing.T) {
	g, _ := chainGraph(t)
	pat := mustPattern(t, `match a:Task, b:Task, depends_on+(a,b) return a.title`)
	cfg := config.LoadFromEnv()
	cfg.Engine.DefaultTransitiveDepth = 1
	rows, warnings, err := pattern.MatchWithWarnings(context.Background(), g, pat, nil, cfg.Engine)
	require.NoError(t, err, "truncation is a warning, never an error")
	require.Len(t, rows, 2, "only the single-hop pairs survive the depth limit")
	require.NotEmpty(t, warnings)
	require.Contains(t, warnings[0], "depends_on")
	require.Contains(t, warnings[0], "truncated")
}

func TestMatchTransitiveStepBudgetExceeded(t *testing.T) {
	g, _ := chainGraph(t)
	pat := mustPattern(t, `match a:Task, b:Task, depends_on+(a,b) return a.title`)
	cfg := config.LoadFromEnv()
	cfg.Engine.MaxTransitiveSteps = 1
	_, err := pattern.Match(context.Background(), g, pat, nil, cfg.Engine)
	require.Error(t, err)
	var me *mewerr.Error
	require.ErrorAs(t, err, &me)
	require.Equal(t, "E5009", me.Code)
}
