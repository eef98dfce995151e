package constraint_test

import (
	"context"
	"testing"
	"time"

	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/compiler"
	"github.com/mewdb/mew/pkg/config"
	"github.com/mewdb/mew/pkg/constraint"
	"github.com/mewdb/mew/pkg/glyph"
	"github.com/mewdb/mew/pkg/mewerr"
	"github.com/mewdb/mew/pkg/mutate"
	"github.com/mewdb/mew/pkg/parser"
	"github.com/mewdb/mew/pkg/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, schema string) (*glyph.Graph, *mutate.Executor, *mutate.Effects, *constraint.Checker) {
	t.Helper()
	o, err := parser.ParseOntology(schema)
	require.NoError(t, err)
	reg, err := compiler.Compile(o)
	require.NoError(t, err)
	g := glyph.NewGraph(reg)
	cfg := config.LoadFromEnv().Engine
	x := mutate.NewExecutor(context.Background(), g, cfg, time.Now().UTC())
	return g, x, &mutate.Effects{}, constraint.NewChecker(g, cfg)
}

func apply(t *testing.T, x *mutate.Executor, fx *mutate.Effects, b pool.Bindings, gql string) {
	t.Helper()
	stmt, err := parser.ParseStatement(gql)
	require.NoError(t, err)
	ms, ok := stmt.(ast.MutationStmt)
	require.True(t, ok)
	_, err = x.Apply(ms.Action, b, fx)
	require.NoError(t, err)
}

func TestAcyclicViolationDetectedImmediately(t *testing.T) {
	_, x, fx, c := setup(t, `node Task{title:String [required]};
edge depends_on(a:Task, b:Task) [no_self, acyclic].`)
	b := pool.Bindings{}
	apply(t, x, fx, b, `SPAWN t1:Task{title="T1"}`)
	apply(t, x, fx, b, `SPAWN t2:Task{title="T2"}`)
	apply(t, x, fx, b, `SPAWN t3:Task{title="T3"}`)
	apply(t, x, fx, b, `LINK depends_on(t1,t2)`)
	apply(t, x, fx, b, `LINK depends_on(t2,t3)`)

	_, err := c.CheckImmediate(context.Background(), fx, 0)
	require.NoError(t, err)

	mark := fx.Mark()
	apply(t, x, fx, b, `LINK depends_on(t3,t1)`)
	_, err = c.CheckImmediate(context.Background(), fx, mark)
	require.Error(t, err)
	var me *mewerr.Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "E2003", me.Code)
	assert.Equal(t, "depends_on_acyclic", me.Fields["constraint"])
}

func TestMinCardinalityDeferredToCommit(t *testing.T) {
	_, x, fx, c := setup(t, `node Task{title:String}; node Project{name:String};
edge belongs_to(t:Task, p:Project) [t -> 1].`)
	b := pool.Bindings{}
	apply(t, x, fx, b, `SPAWN t:Task{title="X"}`)

	// No violation surfaces per-op; the minimum facet is a commit check.
	_, err := c.CheckImmediate(context.Background(), fx, 0)
	require.NoError(t, err)

	_, err = c.CheckCommit(context.Background(), fx)
	require.Error(t, err)
	var me *mewerr.Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "E2004", me.Code)
	assert.Equal(t, "belongs_to_t_min_1", me.Fields["constraint"])

	// Satisfying the minimum clears the check.
	apply(t, x, fx, b, `SPAWN p:Project{name="P"}`)
	apply(t, x, fx, b, `LINK belongs_to(t,p)`)
	_, err = c.CheckCommit(context.Background(), fx)
	require.NoError(t, err)
}

func TestValueValidatorSkipsNull(t *testing.T) {
	_, x, fx, c := setup(t, `node Person{name:String [required], age:Int [>= 18]}`)
	b := pool.Bindings{}
	apply(t, x, fx, b, `SPAWN p:Person{name="NoAge"}`)
	_, err := c.CheckImmediate(context.Background(), fx, 0)
	require.NoError(t, err, "a NULL value must skip the range validator")

	mark := fx.Mark()
	apply(t, x, fx, b, `SPAWN q:Person{name="Kid", age=10}`)
	_, err = c.CheckImmediate(context.Background(), fx, mark)
	require.Error(t, err)
	var me *mewerr.Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "E2000", me.Code)
}

func TestUserConstraintIsCommitChecked(t *testing.T) {
	_, x, fx, c := setup(t, `node Task{title:String [required], created_at:Timestamp};
constraint has_ts: t:Task => t.created_at != null;`)
	b := pool.Bindings{}
	apply(t, x, fx, b, `SPAWN t:Task{title="X"}`)

	// Immediate pass skips user-declared constraints (a rule may yet
	// repair the state before commit).
	_, err := c.CheckImmediate(context.Background(), fx, 0)
	require.NoError(t, err)

	_, err = c.CheckCommit(context.Background(), fx)
	require.Error(t, err)
	var me *mewerr.Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "E2000", me.Code)
	assert.Equal(t, "has_ts", me.Fields["constraint"])
}

func TestSoftConstraintWarnsInsteadOfAborting(t *testing.T) {
	_, x, fx, c := setup(t, `node Task{title:String [required], est:Int};
constraint has_estimate [soft]: t:Task => t.est != null;`)
	b := pool.Bindings{}
	apply(t, x, fx, b, `SPAWN t:Task{title="X"}`)

	warns, err := c.CheckCommit(context.Background(), fx)
	require.NoError(t, err)
	require.Len(t, warns, 1)
	assert.Equal(t, "has_estimate", warns[0].Constraint)
}
