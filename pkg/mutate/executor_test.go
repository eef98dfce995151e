package mutate_test

import (
	"context"
	"testing"
	"time"

	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/compiler"
	"github.com/mewdb/mew/pkg/config"
	"github.com/mewdb/mew/pkg/glyph"
	"github.com/mewdb/mew/pkg/mewerr"
	"github.com/mewdb/mew/pkg/mutate"
	"github.com/mewdb/mew/pkg/parser"
	"github.com/mewdb/mew/pkg/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, schema string) (*glyph.Graph, *mutate.Executor, *mutate.Effects) {
	t.Helper()
	o, err := parser.ParseOntology(schema)
	require.NoError(t, err)
	reg, err := compiler.Compile(o)
	require.NoError(t, err)
	g := glyph.NewGraph(reg)
	cfg := config.LoadFromEnv().Engine
	x := mutate.NewExecutor(context.Background(), g, cfg, time.Now().UTC())
	return g, x, &mutate.Effects{}
}

func action(t *testing.T, gql string) ast.Action {
	t.Helper()
	stmt, err := parser.ParseStatement(gql)
	require.NoError(t, err)
	ms, ok := stmt.(ast.MutationStmt)
	require.True(t, ok)
	return ms.Action
}

func TestSpawnEvaluatesDefaultsWithFrozenNow(t *testing.T) {
	g, x, fx := setup(t, `node Task{title:String [required], created_at:Timestamp = now()}`)
	b := pool.Bindings{}
	out, err := x.Apply(action(t, `SPAWN t:Task{title="X"}`), b, fx)
	require.NoError(t, err)
	require.True(t, out.Created)

	v, found, err := g.Attr(out.Glyph, "created_at")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, x.Now(), v.AsTimestamp())
	assert.Equal(t, 1, fx.NodesCreated)
}

func TestSpawnRejectsMissingRequiredAttr(t *testing.T) {
	_, x, fx := setup(t, `node Task{title:String [required]}`)
	_, err := x.Apply(action(t, `SPAWN t:Task`), pool.Bindings{}, fx)
	require.Error(t, err)
	var me *mewerr.Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, mewerr.CategoryConstraint, me.Category)
	assert.True(t, fx.Empty())
}

func TestLinkSymmetricUniqueCollapsesToOneEdge(t *testing.T) {
	g, x, fx := setup(t, `node Person {name:String [required]};
edge friends(a:Person, b:Person) [symmetric, unique].`)
	b := pool.Bindings{}
	_, err := x.Apply(action(t, `SPAWN a:Person{name="A"}`), b, fx)
	require.NoError(t, err)
	_, err = x.Apply(action(t, `SPAWN b:Person{name="B"}`), b, fx)
	require.NoError(t, err)

	first, err := x.Apply(action(t, `LINK friends(a,b)`), b, fx)
	require.NoError(t, err)
	require.True(t, first.Created)

	second, err := x.Apply(action(t, `LINK friends(b,a)`), b, fx)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Glyph, second.Glyph)

	def, _ := g.Registry().EdgeTypeByName("friends")
	assert.Equal(t, 1, g.EdgeCount(def.ID))
	assert.Equal(t, 1, fx.EdgesCreated)
}

func TestLinkEnforcesMaxCardinalityImmediately(t *testing.T) {
	_, x, fx := setup(t, `node Task{title:String}; node Project{name:String};
edge belongs_to(t:Task, p:Project) [t -> 0..1].`)
	b := pool.Bindings{}
	for _, gql := range []string{
		`SPAWN t:Task{title="T"}`, `SPAWN p1:Project{name="P1"}`, `SPAWN p2:Project{name="P2"}`,
	} {
		_, err := x.Apply(action(t, gql), b, fx)
		require.NoError(t, err)
	}
	_, err := x.Apply(action(t, `LINK belongs_to(t,p1)`), b, fx)
	require.NoError(t, err)
	_, err = x.Apply(action(t, `LINK belongs_to(t,p2)`), b, fx)
	require.Error(t, err)
	var me *mewerr.Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "E2004", me.Code)
}

func TestKillCascadesThroughOnKillTarget(t *testing.T) {
	g, x, fx := setup(t, `node Project{name:String}; node Task{title:String};
edge belongs_to(t:Task, p:Project) [on_kill_target: cascade].`)
	b := pool.Bindings{}
	for _, gql := range []string{
		`SPAWN p:Project{name="P"}`,
		`SPAWN t1:Task{title="A"}`, `LINK belongs_to(t1,p)`,
		`SPAWN t2:Task{title="B"}`, `LINK belongs_to(t2,p)`,
	} {
		_, err := x.Apply(action(t, gql), b, fx)
		require.NoError(t, err)
	}
	_, err := x.Apply(action(t, `KILL p`), b, fx)
	require.NoError(t, err)

	taskDef, _ := g.Registry().TypeByName("Task")
	projDef, _ := g.Registry().TypeByName("Project")
	assert.Equal(t, 0, g.NodeCount(taskDef.ID))
	assert.Equal(t, 0, g.NodeCount(projDef.ID))
	assert.Equal(t, 3, fx.NodesDeleted)
	assert.Equal(t, 2, fx.EdgesDeleted)
}

func TestKillPreventRefusesTransaction(t *testing.T) {
	_, x, fx := setup(t, `node Project{name:String}; node Task{title:String};
edge belongs_to(t:Task, p:Project) [on_kill_target: prevent].`)
	b := pool.Bindings{}
	for _, gql := range []string{
		`SPAWN p:Project{name="P"}`, `SPAWN t:Task{title="A"}`, `LINK belongs_to(t,p)`,
	} {
		_, err := x.Apply(action(t, gql), b, fx)
		require.NoError(t, err)
	}
	_, err := x.Apply(action(t, `KILL p`), b, fx)
	require.Error(t, err)
	var me *mewerr.Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "E2005", me.Code)
}

func TestUnlinkIsIdempotent(t *testing.T) {
	_, x, fx := setup(t, `node Person {name:String};
edge friends(a:Person, b:Person).`)
	b := pool.Bindings{}
	for _, gql := range []string{`SPAWN a:Person{name="A"}`, `SPAWN b:Person{name="B"}`, `LINK friends(a,b) AS f`} {
		_, err := x.Apply(action(t, gql), b, fx)
		require.NoError(t, err)
	}
	_, err := x.Apply(action(t, `UNLINK f`), b, fx)
	require.NoError(t, err)
	deleted := fx.EdgesDeleted
	_, err = x.Apply(action(t, `UNLINK f`), b, fx)
	require.NoError(t, err)
	assert.Equal(t, deleted, fx.EdgesDeleted)
}

func TestUnlinkCascadesToHigherOrderEdges(t *testing.T) {
	g, x, fx := setup(t, `node Person {name:String};
edge friends(a:Person, b:Person);
edge endorses(p:Person, f:edge<friends>).`)
	b := pool.Bindings{}
	for _, gql := range []string{
		`SPAWN a:Person{name="A"}`, `SPAWN b:Person{name="B"}`, `SPAWN c:Person{name="C"}`,
		`LINK friends(a,b) AS f`,
	} {
		_, err := x.Apply(action(t, gql), b, fx)
		require.NoError(t, err)
	}
	// Higher-order: c endorses the friendship edge itself.
	_, err := x.Apply(action(t, `LINK endorses(c,f)`), b, fx)
	require.NoError(t, err)

	_, err = x.Apply(action(t, `UNLINK f`), b, fx)
	require.NoError(t, err)

	endorses, _ := g.Registry().EdgeTypeByName("endorses")
	friends, _ := g.Registry().EdgeTypeByName("friends")
	assert.Equal(t, 0, g.EdgeCount(friends.ID))
	assert.Equal(t, 0, g.EdgeCount(endorses.ID), "higher-order edge must die with its base edge")
}

func TestRollbackRestoresGraphByteIdentical(t *testing.T) {
	g, x, fx := setup(t, `node Person {name:String [required], age:Int};
edge friends(a:Person, b:Person).`)
	b := pool.Bindings{}
	_, err := x.Apply(action(t, `SPAWN keep:Person{name="Keep", age=1}`), b, fx)
	require.NoError(t, err)
	keep := b["keep"].AsID()

	mark := fx.Mark()
	for _, gql := range []string{
		`SPAWN a:Person{name="A"}`,
		`LINK friends(keep,a)`,
		`SET keep.age = 99`,
	} {
		_, err := x.Apply(action(t, gql), b, fx)
		require.NoError(t, err)
	}
	_, err = x.Apply(action(t, `KILL a`), b, fx)
	require.NoError(t, err)

	require.NoError(t, mutate.Rollback(g, fx, mark))

	personDef, _ := g.Registry().TypeByName("Person")
	friendsDef, _ := g.Registry().EdgeTypeByName("friends")
	assert.Equal(t, 1, g.NodeCount(personDef.ID))
	assert.Equal(t, 0, g.EdgeCount(friendsDef.ID))
	assert.True(t, g.Alive(keep))
	age, found, err := g.Attr(keep, "age")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1), age.AsInt())
	assert.Equal(t, 1, fx.NodesCreated)
	assert.Equal(t, 0, fx.NodesDeleted)
}

func TestRollbackOfKillRestoresSameGlyphId(t *testing.T) {
	g, x, fx := setup(t, `node Person {name:String}`)
	b := pool.Bindings{}
	_, err := x.Apply(action(t, `SPAWN a:Person{name="A"}`), b, fx)
	require.NoError(t, err)
	id := b["a"].AsID()

	mark := fx.Mark()
	_, err = x.Apply(action(t, `KILL a`), b, fx)
	require.NoError(t, err)
	require.False(t, g.Alive(id))

	require.NoError(t, mutate.Rollback(g, fx, mark))
	require.True(t, g.Alive(id), "the killed glyph must resolve under its original id after rollback")
	name, found, err := g.Attr(id, "name")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "A", name.AsString())
}

func TestSetRejectsNullOnNonNullable(t *testing.T) {
	_, x, fx := setup(t, `node Person {name:String [required]}`)
	b := pool.Bindings{}
	_, err := x.Apply(action(t, `SPAWN a:Person{name="A"}`), b, fx)
	require.NoError(t, err)
	_, err = x.Apply(action(t, `SET a.name = null`), b, fx)
	require.Error(t, err)
	var me *mewerr.Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, mewerr.CategoryType, me.Category)
}
