package parser

import (
	"testing"

	"github.com/mewdb/mew/pkg/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOntologySymmetricFriendship(t *testing.T) {
	src := `node Person {name:String [required]};
edge friends(a:Person, b:Person) [symmetric, unique].`
	o, err := ParseOntology(src)
	require.NoError(t, err)
	require.Len(t, o.Nodes, 1)
	assert.Equal(t, "Person", o.Nodes[0].Name)
	require.Len(t, o.Nodes[0].Attrs, 1)
	assert.Equal(t, "name", o.Nodes[0].Attrs[0].Name)
	assert.Equal(t, ast.ModRequired, o.Nodes[0].Attrs[0].Modifiers[0].Kind)

	require.Len(t, o.Edges, 1)
	e := o.Edges[0]
	assert.Equal(t, "friends", e.Name)
	require.Len(t, e.Positions, 2)
	assert.Equal(t, "Person", e.Positions[0].Type)
	var sawSymmetric, sawUnique bool
	for _, m := range e.Modifiers {
		switch m.Kind {
		case ast.ModSymmetric:
			sawSymmetric = true
		case ast.ModUnique:
			sawUnique = true
		}
	}
	assert.True(t, sawSymmetric)
	assert.True(t, sawUnique)
}

func TestParseOntologyAcyclicTaskDependencies(t *testing.T) {
	src := `node Task{title:String [required]}; edge depends_on(a:Task,b:Task) [no_self, acyclic].`
	o, err := ParseOntology(src)
	require.NoError(t, err)
	require.Len(t, o.Edges, 1)
	var sawNoSelf, sawAcyclic bool
	for _, m := range o.Edges[0].Modifiers {
		switch m.Kind {
		case ast.ModNoSelf:
			sawNoSelf = true
		case ast.ModAcyclic:
			sawAcyclic = true
		}
	}
	assert.True(t, sawNoSelf)
	assert.True(t, sawAcyclic)
}

func TestParseOntologyCascadeOnKillTarget(t *testing.T) {
	src := `node Project{name:String}; node Task{title:String};
edge belongs_to(t:Task,p:Project) [task -> 1, on_kill_target: cascade].`
	o, err := ParseOntology(src)
	require.NoError(t, err)
	require.Len(t, o.Edges, 1)
	var card, onKill *ast.Modifier
	for i, m := range o.Edges[0].Modifiers {
		switch m.Kind {
		case ast.ModCardinality:
			card = &o.Edges[0].Modifiers[i]
		case ast.ModOnKillTarget:
			onKill = &o.Edges[0].Modifiers[i]
		}
	}
	require.NotNil(t, card)
	assert.Equal(t, "task", card.Position)
	assert.Equal(t, []int64{1, 1}, card.IntArgs)
	require.NotNil(t, onKill)
	assert.Equal(t, "cascade", onKill.TargetArg)
}

func TestParseOntologyAutoTimestampRule(t *testing.T) {
	src := `node Task{title:String [required], created_at:Timestamp};
constraint has_ts: t:Task => t.created_at != null;
rule auto_ts [priority:10]: t:Task WHERE t.created_at = null => SET t.created_at = now().`
	o, err := ParseOntology(src)
	require.NoError(t, err)
	require.Len(t, o.Constraints, 1)
	assert.Equal(t, "has_ts", o.Constraints[0].Name)
	assert.True(t, o.Constraints[0].Hard)

	require.Len(t, o.Rules, 1)
	r := o.Rules[0]
	assert.Equal(t, "auto_ts", r.Name)
	assert.Equal(t, 10, r.Priority)
	require.NotNil(t, r.Pattern.Where)
	require.Len(t, r.Production, 1)
	set, ok := r.Production[0].(ast.SetAction)
	require.True(t, ok)
	assert.Equal(t, "t", set.Var)
	require.Len(t, set.Attrs, 1)
	assert.Equal(t, "created_at", set.Attrs[0].Attr)
}

func TestParseOntologyCardinalityDeferred(t *testing.T) {
	o, err := ParseOntology(`edge belongs_to(t:Task, p:Project) [task -> 1].`)
	require.NoError(t, err)
	require.Len(t, o.Edges, 1)
	require.Len(t, o.Edges[0].Modifiers, 1)
	assert.Equal(t, ast.ModCardinality, o.Edges[0].Modifiers[0].Kind)
}

func TestParseStatementMatchReturn(t *testing.T) {
	stmt, err := ParseStatement(`MATCH friends(x,y) RETURN x.name, y.name`)
	require.NoError(t, err)
	m, ok := stmt.(ast.MatchStmt)
	require.True(t, ok)
	require.Len(t, m.Pattern.Edges, 1)
	assert.Equal(t, "friends", m.Pattern.Edges[0].EdgeType)
	require.Len(t, m.Return, 2)
}

func TestParseStatementMatchWhereOrderLimit(t *testing.T) {
	stmt, err := ParseStatement(`MATCH t:Task WHERE t.title = "X" RETURN t ORDER BY t.title DESC LIMIT 10`)
	require.NoError(t, err)
	m, ok := stmt.(ast.MatchStmt)
	require.True(t, ok)
	require.NotNil(t, m.Pattern.Where)
	require.Len(t, m.OrderBy, 1)
	assert.True(t, m.OrderBy[0].Descending)
	require.NotNil(t, m.Limit)
	assert.Equal(t, 10, *m.Limit)
}

func TestParseStatementSpawnAction(t *testing.T) {
	stmt, err := ParseStatement(`SPAWN a:Person{name="A"}`)
	require.NoError(t, err)
	ms, ok := stmt.(ast.MutationStmt)
	require.True(t, ok)
	sp, ok := ms.Action.(ast.SpawnAction)
	require.True(t, ok)
	assert.Equal(t, "a", sp.Var)
	assert.Equal(t, "Person", sp.Type)
	require.Len(t, sp.Attrs, 1)
	assert.Equal(t, "name", sp.Attrs[0].Attr)
}

func TestParseStatementLinkWithHashRefs(t *testing.T) {
	stmt, err := ParseStatement(`LINK friends(#a,#b)`)
	require.NoError(t, err)
	ms, ok := stmt.(ast.MutationStmt)
	require.True(t, ok)
	link, ok := ms.Action.(ast.LinkAction)
	require.True(t, ok)
	assert.Equal(t, "friends", link.EdgeType)
	assert.Equal(t, []string{"a", "b"}, link.Targets)
}

func TestParseStatementLinkBareVarRefs(t *testing.T) {
	stmt, err := ParseStatement(`LINK belongs_to(t1,p)`)
	require.NoError(t, err)
	ms, ok := stmt.(ast.MutationStmt)
	require.True(t, ok)
	link, ok := ms.Action.(ast.LinkAction)
	require.True(t, ok)
	assert.Equal(t, []string{"t1", "p"}, link.Targets)
}

func TestParseStatementKillCascade(t *testing.T) {
	stmt, err := ParseStatement(`KILL #p`)
	require.NoError(t, err)
	ms, ok := stmt.(ast.MutationStmt)
	require.True(t, ok)
	kill, ok := ms.Action.(ast.KillAction)
	require.True(t, ok)
	assert.Equal(t, "p", kill.Var)
}

func TestParseStatementBeginCommit(t *testing.T) {
	begin, err := ParseStatement(`BEGIN`)
	require.NoError(t, err)
	tx, ok := begin.(ast.TxStmt)
	require.True(t, ok)
	assert.Equal(t, ast.TxBegin, tx.Verb)

	commit, err := ParseStatement(`COMMIT`)
	require.NoError(t, err)
	tx2, ok := commit.(ast.TxStmt)
	require.True(t, ok)
	assert.Equal(t, ast.TxCommit, tx2.Verb)
}

func TestParseStatementsScript(t *testing.T) {
	stmts, err := ParseStatements(`SPAWN p:Project{name="P"}; SPAWN t1:Task{title="A"}; LINK belongs_to(t1,p); COMMIT; KILL #p;`)
	require.NoError(t, err)
	require.Len(t, stmts, 5)
	assert.Equal(t, ast.TxCommit, stmts[3].(ast.TxStmt).Verb)
}

func TestParseStatementWalk(t *testing.T) {
	stmt, err := ParseStatement(`WALK FROM #t1 FOLLOW depends_on [depth:1..5] RETURN NODES`)
	require.NoError(t, err)
	w, ok := stmt.(ast.WalkStmt)
	require.True(t, ok)
	require.Len(t, w.Starts, 1)
	require.Len(t, w.Follow, 1)
	assert.Equal(t, "depends_on", w.Follow[0].EdgeType)
	assert.Equal(t, 1, w.Follow[0].MinDepth)
	assert.Equal(t, 5, w.Follow[0].MaxDepth)
	assert.Equal(t, ast.WalkReturnNodes, w.Return)
}

func TestParseStatementInspect(t *testing.T) {
	stmt, err := ParseStatement(`INSPECT #t RETURN t.created_at`)
	require.NoError(t, err)
	ins, ok := stmt.(ast.InspectStmt)
	require.True(t, ok)
	id, ok := ins.ID.(ast.Ident)
	require.True(t, ok)
	assert.Equal(t, "t", id.Name)
	require.Len(t, ins.Return, 1)
}

func TestParseStatementShowAndIndex(t *testing.T) {
	show, err := ParseStatement(`SHOW TYPES`)
	require.NoError(t, err)
	assert.Equal(t, ast.ShowTypes, show.(ast.ShowStmt).Target)

	create, err := ParseStatement(`CREATE INDEX ON Task(title) DESC`)
	require.NoError(t, err)
	ci := create.(ast.CreateIndexStmt)
	assert.Equal(t, "Task", ci.Type)
	assert.Equal(t, "title", ci.Attr)
	assert.True(t, ci.Desc)

	drop, err := ParseStatement(`DROP INDEX ON Task(title)`)
	require.NoError(t, err)
	di := drop.(ast.DropIndexStmt)
	assert.Equal(t, "Task", di.Type)
}

func TestParseStatementExplainProfileDryRun(t *testing.T) {
	ex, err := ParseStatement(`EXPLAIN MATCH t:Task RETURN t`)
	require.NoError(t, err)
	_, ok := ex.(ast.ExplainStmt)
	assert.True(t, ok)

	pr, err := ParseStatement(`PROFILE MATCH t:Task RETURN t`)
	require.NoError(t, err)
	_, ok = pr.(ast.ProfileStmt)
	assert.True(t, ok)

	dr, err := ParseStatement(`DRY RUN SPAWN a:Person{name="A"}`)
	require.NoError(t, err)
	_, ok = dr.(ast.DryRunStmt)
	assert.True(t, ok)
}

func TestParseStatementInvokeWithBindings(t *testing.T) {
	stmt, err := ParseStatement(`INVOKE auto_ts { t = #t }`)
	require.NoError(t, err)
	inv, ok := stmt.(ast.InvokeStmt)
	require.True(t, ok)
	assert.Equal(t, "auto_ts", inv.RuleName)
	require.Contains(t, inv.Bindings, "t")
}

func TestParseExprPrecedence(t *testing.T) {
	stmt, err := ParseStatement(`MATCH t:Task WHERE t.a = 1 and t.b = 2 or t.c = 3 RETURN t`)
	require.NoError(t, err)
	m := stmt.(ast.MatchStmt)
	top, ok := m.Pattern.Where.(ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, ast.OpOr, top.Op)
	lhs, ok := top.Lhs.(ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, ast.OpAnd, lhs.Op)
}

func TestParseExprExists(t *testing.T) {
	stmt, err := ParseStatement(`MATCH t:Task WHERE NOT EXISTS(depends_on(t, other)) RETURN t`)
	require.NoError(t, err)
	m := stmt.(ast.MatchStmt)
	ex, ok := m.Pattern.Where.(ast.ExistsExpr)
	require.True(t, ok)
	assert.True(t, ex.Negated)
}

func TestParseStatementTrailingInputErrors(t *testing.T) {
	_, err := ParseStatement(`COMMIT extra garbage`)
	assert.Error(t, err)
}
