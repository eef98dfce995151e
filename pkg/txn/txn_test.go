package txn_test

import (
	"context"
	"testing"

	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/compiler"
	"github.com/mewdb/mew/pkg/config"
	"github.com/mewdb/mew/pkg/glyph"
	"github.com/mewdb/mew/pkg/journal"
	"github.com/mewdb/mew/pkg/mewerr"
	"github.com/mewdb/mew/pkg/parser"
	"github.com/mewdb/mew/pkg/pool"
	"github.com/mewdb/mew/pkg/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, schema string) (*glyph.Graph, *txn.Manager) {
	t.Helper()
	o, err := parser.ParseOntology(schema)
	require.NoError(t, err)
	reg, err := compiler.Compile(o)
	require.NoError(t, err)
	return glyph.NewGraph(reg), txn.NewManager(journal.NewNoopJournal())
}

func apply(t *testing.T, tx *txn.Txn, b pool.Bindings, gql string) error {
	t.Helper()
	stmt, err := parser.ParseStatement(gql)
	require.NoError(t, err)
	ms, ok := stmt.(ast.MutationStmt)
	require.True(t, ok)
	_, err = tx.Apply(context.Background(), ms.Action, b)
	return err
}

func TestCommitRunsRulesThenConstraints(t *testing.T) {
	g, mgr := setup(t, `node Task{title:String [required], created_at:Timestamp};
constraint has_ts: t:Task => t.created_at != null;
rule auto_ts [priority:10]: t:Task WHERE t.created_at = null => SET t.created_at = now().`)
	cfg := config.LoadFromEnv().Engine
	ctx := context.Background()

	tx := mgr.Begin(ctx, g, cfg)
	b := pool.Bindings{}
	require.NoError(t, apply(t, tx, b, `SPAWN t:Task{title="X"}`))
	res, err := tx.Commit(ctx)
	require.NoError(t, err, "the rule must satisfy has_ts before the constraint check")
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.NodesCreated)
	assert.GreaterOrEqual(t, res.RuleIters, 1)

	v, found, err := g.Attr(b["t"].AsID(), "created_at")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, tx.Now(), v.AsTimestamp())
}

func TestCommitFailureRollsBackStagedEffects(t *testing.T) {
	g, mgr := setup(t, `node Task{title:String [required], created_at:Timestamp};
constraint has_ts: t:Task => t.created_at != null;`)
	cfg := config.LoadFromEnv().Engine
	ctx := context.Background()

	taskDef, _ := g.Registry().TypeByName("Task")
	tx := mgr.Begin(ctx, g, cfg)
	b := pool.Bindings{}
	require.NoError(t, apply(t, tx, b, `SPAWN t:Task{title="X"}`))
	_, err := tx.Commit(ctx)
	require.Error(t, err)
	var me *mewerr.Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "E2000", me.Code)
	assert.Equal(t, 0, g.NodeCount(taskDef.ID), "a failed commit leaves the graph untouched")
}

func TestSavepointRollbackTo(t *testing.T) {
	g, mgr := setup(t, `node Person{name:String [required]}`)
	cfg := config.LoadFromEnv().Engine
	ctx := context.Background()
	personDef, _ := g.Registry().TypeByName("Person")

	tx := mgr.Begin(ctx, g, cfg)
	b := pool.Bindings{}
	require.NoError(t, apply(t, tx, b, `SPAWN a:Person{name="A"}`))
	tx.Savepoint("sp1")
	require.NoError(t, apply(t, tx, b, `SPAWN x:Person{name="X"}`))
	require.NoError(t, apply(t, tx, b, `SPAWN y:Person{name="Y"}`))
	require.Equal(t, 3, g.NodeCount(personDef.ID))

	require.NoError(t, tx.RollbackTo("sp1"))
	assert.Equal(t, 1, g.NodeCount(personDef.ID))

	res, err := tx.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.NodesCreated)
}

func TestRollbackRestoresPreTransactionState(t *testing.T) {
	g, mgr := setup(t, `node Person{name:String [required]}`)
	cfg := config.LoadFromEnv().Engine
	ctx := context.Background()
	personDef, _ := g.Registry().TypeByName("Person")

	tx := mgr.Begin(ctx, g, cfg)
	b := pool.Bindings{}
	require.NoError(t, apply(t, tx, b, `SPAWN a:Person{name="A"}`))
	require.Equal(t, 1, g.NodeCount(personDef.ID))
	tx.Rollback()
	assert.Equal(t, 0, g.NodeCount(personDef.ID))
	assert.True(t, tx.Done())
}

func TestJournalReceivesCommittedEffects(t *testing.T) {
	o, err := parser.ParseOntology(`node Person{name:String [required]}`)
	require.NoError(t, err)
	reg, err := compiler.Compile(o)
	require.NoError(t, err)
	g := glyph.NewGraph(reg)

	jrnl, err := journal.OpenBadgerJournal("") // in-memory badger
	if err != nil {
		t.Skipf("badger in-memory journal unavailable: %v", err)
	}
	defer jrnl.Close()
	mgr := txn.NewManager(jrnl)
	cfg := config.LoadFromEnv().Engine
	ctx := context.Background()

	tx := mgr.Begin(ctx, g, cfg)
	b := pool.Bindings{}
	require.NoError(t, apply(t, tx, b, `SPAWN a:Person{name="A"}`))
	_, err = tx.Commit(ctx)
	require.NoError(t, err)

	seq, err := jrnl.LastSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	var kinds []journal.EffectKind
	require.NoError(t, jrnl.Replay(ctx, 0, func(e journal.Effect) error {
		kinds = append(kinds, e.Kind)
		return nil
	}))
	assert.Equal(t, []journal.EffectKind{journal.EffectNodeSpawn}, kinds)
}
