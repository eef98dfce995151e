package rule_test

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
	"github.com/mewdb/mew/pkg/rule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, schema string) (*glyph.Graph, *mutate.Executor, *mutate.Effects, *rule.Engine) {
	t.Helper()
	o, err := parser.ParseOntology(schema)
	require.NoError(t, err)
	reg, err := compiler.Compile(o)
	require.NoError(t, err)
	g := glyph.NewGraph(reg)
	cfg := config.LoadFromEnv().Engine
	x := mutate.NewExecutor(context.Background(), g, cfg, time.Now().UTC())
	return g, x, &mutate.Effects{}, rule.New(g, cfg, x)
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

func TestAutoTimestampRuleReachesFixpoint(t *testing.T) {
	g, x, fx, e := setup(t, `node Task{title:String [required], created_at:Timestamp};
rule auto_ts [priority:10]: t:Task WHERE t.created_at = null => SET t.created_at = now().`)
	b := pool.Bindings{}
	apply(t, x, fx, b, `SPAWN t:Task{title="X"}`)

	iters, err := e.RunFixpoint(context.Background(), fx, 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, iters, 1)

	v, found, err := g.Attr(b["t"].AsID(), "created_at")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, x.Now(), v.AsTimestamp(), "rule actions observe the transaction's frozen now()")
}

func TestSameBindingBudgetFiresOncePerBinding(t *testing.T) {
	g, x, fx, e := setup(t, `node Task{title:String [required], touches:Int = 0};
rule touch: t:Task => SET t.touches = t.touches + 1.`)
	b := pool.Bindings{}
	apply(t, x, fx, b, `SPAWN t:Task{title="X"}`)

	_, err := e.RunFixpoint(context.Background(), fx, 0)
	require.NoError(t, err)

	v, _, err := g.Attr(b["t"].AsID(), "touches")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.AsInt(), "a rule fires at most once per binding per transaction")
}

func TestRulePriorityOrdersExecution(t *testing.T) {
	g, x, fx, e := setup(t, `node Task{title:String [required], last:String};
rule low [priority:1]: t:Task WHERE t.last = null => SET t.last = "low";
rule high [priority:10]: t:Task WHERE t.last = null => SET t.last = "high".`)
	b := pool.Bindings{}
	apply(t, x, fx, b, `SPAWN t:Task{title="X"}`)

	_, err := e.RunFixpoint(context.Background(), fx, 0)
	require.NoError(t, err)

	v, _, err := g.Attr(b["t"].AsID(), "last")
	require.NoError(t, err)
	assert.Equal(t, "high", v.AsString(), "the higher-priority rule fires first and disables the lower one")
}

func TestRuleChainingTriggersDownstreamRule(t *testing.T) {
	g, x, fx, e := setup(t, `node Task{title:String [required], stage:Int = 0};
rule s1: t:Task WHERE t.stage = 0 => SET t.stage = 1;
rule s2: t:Task WHERE t.stage = 1 => SET t.stage = 2.`)
	b := pool.Bindings{}
	apply(t, x, fx, b, `SPAWN t:Task{title="X"}`)

	_, err := e.RunFixpoint(context.Background(), fx, 0)
	require.NoError(t, err)

	v, _, err := g.Attr(b["t"].AsID(), "stage")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v.AsInt())
}

func TestManualRuleOnlyFiresViaInvoke(t *testing.T) {
	g, x, fx, e := setup(t, `node Task{title:String [required], done:Bool = false};
rule close [manual]: t:Task WHERE t.done = false => SET t.done = true.`)
	b := pool.Bindings{}
	apply(t, x, fx, b, `SPAWN t:Task{title="X"}`)

	_, err := e.RunFixpoint(context.Background(), fx, 0)
	require.NoError(t, err)
	v, _, err := g.Attr(b["t"].AsID(), "done")
	require.NoError(t, err)
	require.False(t, v.AsBool(), "manual rules never fire in the auto fixpoint")

	def, ok := g.Registry().RuleByName("close")
	require.True(t, ok)
	fired, err := e.Invoke(context.Background(), def, nil, fx)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
	v, _, err = g.Attr(b["t"].AsID(), "done")
	require.NoError(t, err)
	assert.True(t, v.AsBool())
}
