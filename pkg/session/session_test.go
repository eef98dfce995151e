package session_test

import (
	"context"
	"testing"

	"github.com/mewdb/mew/pkg/config"
	"github.com/mewdb/mew/pkg/journal"
	"github.com/mewdb/mew/pkg/mewerr"
	"github.com/mewdb/mew/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T, ontology string) *session.Session {
	t.Helper()
	cfg := config.LoadFromEnv()
	cfg.Cache.Enabled = false // keep tests deterministic, no async cache
	s := session.New(cfg, journal.NewNoopJournal())
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.LoadOntologySource(context.Background(), ontology))
	return s
}

func exec(t *testing.T, s *session.Session, gql string) *session.Response {
	t.Helper()
	resp, err := s.Execute(context.Background(), gql)
	require.NoError(t, err, "statement: %s", gql)
	return resp
}

// Symmetric + unique collapse both orderings onto one
// edge glyph; MATCH returns exactly one row in canonical order.
func TestSymmetricFriendshipUniqueness(t *testing.T) {
	s := open(t, `node Person {name:String [required]};
edge friends(a:Person, b:Person) [symmetric, unique].`)

	exec(t, s, `SPAWN a:Person{name="A"}`)
	exec(t, s, `SPAWN b:Person{name="B"}`)
	exec(t, s, `LINK friends(#a,#b)`)
	resp := exec(t, s, `LINK friends(#b,#a)`) // no-op, not an error
	require.True(t, resp.Mutation.Success)
	assert.Equal(t, 0, resp.Mutation.EdgesCreated)

	res := exec(t, s, `MATCH friends(x,y) RETURN x.name, y.name`).Query
	require.Len(t, res.Rows, 1)
}

// The edge closing a depends_on cycle aborts with
// E2003 citing depends_on_acyclic; the graph stays as it was.
func TestAcyclicTaskDependencies(t *testing.T) {
	s := open(t, `node Task{title:String [required]};
edge depends_on(a:Task,b:Task) [no_self, acyclic].`)

	exec(t, s, `SPAWN t1:Task{title="T1"}`)
	exec(t, s, `SPAWN t2:Task{title="T2"}`)
	exec(t, s, `SPAWN t3:Task{title="T3"}`)
	exec(t, s, `LINK depends_on(#t1,#t2)`)
	exec(t, s, `LINK depends_on(#t2,#t3)`)

	_, err := s.Execute(context.Background(), `LINK depends_on(#t3,#t1)`)
	require.Error(t, err)
	var me *mewerr.Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "E2003", me.Code)
	assert.Equal(t, "depends_on_acyclic", me.Fields["constraint"])

	res := exec(t, s, `MATCH depends_on(a,b) RETURN a.title, b.title`).Query
	assert.Len(t, res.Rows, 2, "graph state identical to after the second LINK")
}

// On_kill_target cascade empties the project's tasks.
func TestCascadeOnProjectDelete(t *testing.T) {
	s := open(t, `node Project{name:String}; node Task{title:String};
edge belongs_to(t:Task,p:Project) [task -> 1, on_kill_target: cascade].`)

	exec(t, s, `BEGIN`)
	exec(t, s, `SPAWN p:Project{name="P"}`)
	exec(t, s, `SPAWN t1:Task{title="A"}`)
	exec(t, s, `LINK belongs_to(#t1,#p)`)
	exec(t, s, `SPAWN t2:Task{title="B"}`)
	exec(t, s, `LINK belongs_to(#t2,#p)`)
	exec(t, s, `COMMIT`)

	exec(t, s, `KILL #p`)

	tasks := exec(t, s, `MATCH t:Task RETURN count(t)`).Query
	assert.Equal(t, int64(0), tasks.Rows[0][0].AsInt())
	projects := exec(t, s, `MATCH p:Project RETURN count(p)`).Query
	assert.Equal(t, int64(0), projects.Rows[0][0].AsInt())
}

// The auto_ts rule satisfies has_ts before the
// constraint check; INSPECT shows the frozen now().
func TestAutoTimestampRuleFixpoint(t *testing.T) {
	s := open(t, `node Task{title:String [required], created_at:Timestamp};
constraint has_ts: t:Task => t.created_at != null;
rule auto_ts [priority:10]: t:Task WHERE t.created_at = null => SET t.created_at = now().`)

	exec(t, s, `SPAWN t:Task{title="X"}`)

	resp := exec(t, s, `INSPECT #t`)
	require.True(t, resp.Inspect.Found)
	created, ok := resp.Inspect.Data["created_at"]
	require.True(t, ok)
	assert.False(t, created.IsNull())
}

// Minimum cardinality is deferred to commit; the
// unparented task never persists.
func TestCardinalityDeferredToCommit(t *testing.T) {
	s := open(t, `node Task{title:String}; node Project{name:String};
edge belongs_to(t:Task, p:Project) [task -> 1].`)

	_, err := s.Execute(context.Background(), `SPAWN t:Task{title="X"}`)
	require.Error(t, err)
	var me *mewerr.Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, mewerr.CategoryConstraint, me.Category)

	res := exec(t, s, `MATCH t:Task RETURN count(t)`).Query
	assert.Equal(t, int64(0), res.Rows[0][0].AsInt())
}

// OPTIONAL MATCH null-fills the unassigned row.
func TestOptionalMatchNullFill(t *testing.T) {
	s := open(t, `node Person{name:String [required]};
node Task{title:String [required]};
edge assigned_to(t:Task, p:Person).`)

	exec(t, s, `SPAWN t1:Task{title="Assigned"}`)
	exec(t, s, `SPAWN t2:Task{title="Floating"}`)
	exec(t, s, `SPAWN p:Person{name="Ada"}`)
	exec(t, s, `LINK assigned_to(#t1,#p)`)

	res := exec(t, s, `MATCH t:Task OPTIONAL MATCH assigned_to(t,p) RETURN t.title, p.name ORDER BY t.title`).Query
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "Ada", res.Rows[0][1].AsString())
	assert.True(t, res.Rows[1][1].IsNull())
}

func TestLinkIfNotExistsIdempotentWithReturningCreated(t *testing.T) {
	s := open(t, `node Person {name:String [required]};
edge friends(a:Person, b:Person).`)
	exec(t, s, `SPAWN a:Person{name="A"}`)
	exec(t, s, `SPAWN b:Person{name="B"}`)

	first := exec(t, s, `LINK IF NOT EXISTS friends(#a,#b) RETURNING CREATED`)
	require.NotNil(t, first.Mutation.Returning)
	assert.True(t, first.Mutation.Returning.Rows[0][0].AsBool())

	second := exec(t, s, `LINK IF NOT EXISTS friends(#a,#b) RETURNING CREATED`)
	assert.False(t, second.Mutation.Returning.Rows[0][0].AsBool())
}

func TestCompoundMatchMutatesPerBinding(t *testing.T) {
	s := open(t, `node Task{title:String [required], done:Bool = false}`)
	exec(t, s, `SPAWN t1:Task{title="A"}`)
	exec(t, s, `SPAWN t2:Task{title="B"}`)

	exec(t, s, `MATCH t:Task WHERE t.done = false SET t.done = true`)

	res := exec(t, s, `MATCH t:Task WHERE t.done = true RETURN count(t)`).Query
	assert.Equal(t, int64(2), res.Rows[0][0].AsInt())
}

func TestBulkKillWithoutWhereRequiresForce(t *testing.T) {
	s := open(t, `node Task{title:String [required]}`)
	exec(t, s, `SPAWN t1:Task{title="A"}`)

	_, err := s.Execute(context.Background(), `MATCH t:Task KILL t`)
	require.Error(t, err)

	exec(t, s, `MATCH t:Task KILL t FORCE`)
	res := exec(t, s, `MATCH t:Task RETURN count(t)`).Query
	assert.Equal(t, int64(0), res.Rows[0][0].AsInt())
}

func TestExplicitTransactionRollback(t *testing.T) {
	s := open(t, `node Task{title:String [required]}`)
	exec(t, s, `BEGIN`)
	exec(t, s, `SPAWN t:Task{title="A"}`)
	exec(t, s, `ROLLBACK`)

	res := exec(t, s, `MATCH t:Task RETURN count(t)`).Query
	assert.Equal(t, int64(0), res.Rows[0][0].AsInt())
}

func TestSavepointPartialRollback(t *testing.T) {
	s := open(t, `node Task{title:String [required]}`)
	exec(t, s, `BEGIN`)
	exec(t, s, `SPAWN t1:Task{title="A"}`)
	exec(t, s, `SAVEPOINT sp1`)
	exec(t, s, `SPAWN t2:Task{title="B"}`)
	exec(t, s, `ROLLBACK TO sp1`)
	exec(t, s, `COMMIT`)

	res := exec(t, s, `MATCH t:Task RETURN count(t)`).Query
	assert.Equal(t, int64(1), res.Rows[0][0].AsInt())
}

func TestShowStatementsReadRegistry(t *testing.T) {
	s := open(t, `node Person {name:String [required, unique]};
edge friends(a:Person, b:Person) [symmetric].`)

	types := exec(t, s, `SHOW TYPES`).Query
	var sawPerson bool
	for _, row := range types.Rows {
		if row[0].AsString() == "Person" {
			sawPerson = true
		}
	}
	assert.True(t, sawPerson)

	indexes := exec(t, s, `SHOW INDEXES`).Query
	require.NotEmpty(t, indexes.Rows)

	stats := exec(t, s, `SHOW STATISTICS`).Query
	require.NotEmpty(t, stats.Rows)
}

func TestCreateAndDropRuntimeIndex(t *testing.T) {
	s := open(t, `node Person {name:String [required], city:String}`)
	exec(t, s, `SPAWN a:Person{name="A", city="Oslo"}`)

	exec(t, s, `CREATE INDEX ON Person(city)`)
	assert.True(t, s.Graph().HasIndex("Person", "city"))

	res := exec(t, s, `MATCH p:Person WHERE p.city = "Oslo" RETURN p.name`).Query
	require.Len(t, res.Rows, 1)

	exec(t, s, `DROP INDEX ON Person(city)`)
	assert.False(t, s.Graph().HasIndex("Person", "city"))
}

func TestLayer0SelfDescriptionIsQueryable(t *testing.T) {
	s := open(t, `node Person {name:String [required]};
edge friends(a:Person, b:Person) [symmetric].`)

	res := exec(t, s, `MATCH nt:_NodeType WHERE nt.name = "Person" RETURN nt.name`).Query
	require.Len(t, res.Rows, 1, "every user declaration must exist as a meta-glyph")

	edges := exec(t, s, `MATCH et:_EdgeType WHERE et.name = "friends" RETURN et.arity, et.symmetric`).Query
	require.Len(t, edges.Rows, 1)
	assert.Equal(t, int64(2), edges.Rows[0][0].AsInt())
	assert.True(t, edges.Rows[0][1].AsBool())
}

func TestExtendOntologyKeepsData(t *testing.T) {
	s := open(t, `node Person {name:String [required]}`)
	exec(t, s, `SPAWN a:Person{name="A"}`)

	require.NoError(t, s.ExtendOntologySource(context.Background(),
		`node Team {label:String}; edge member_of(p:Person, t:Team).`))

	res := exec(t, s, `MATCH p:Person RETURN count(p)`).Query
	assert.Equal(t, int64(1), res.Rows[0][0].AsInt(), "existing glyphs survive EXTEND")

	exec(t, s, `SPAWN team:Team{label="Core"}`)
	exec(t, s, `LINK member_of(#a,#team)`)
	res = exec(t, s, `MATCH member_of(p,t) RETURN p.name, t.label`).Query
	require.Len(t, res.Rows, 1)
}

func TestDryRunLeavesNoTrace(t *testing.T) {
	s := open(t, `node Task{title:String [required]}`)
	resp := exec(t, s, `DRY RUN SPAWN t:Task{title="X"}`)
	assert.Equal(t, 1, resp.Mutation.NodesCreated)

	res := exec(t, s, `MATCH t:Task RETURN count(t)`).Query
	assert.Equal(t, int64(0), res.Rows[0][0].AsInt())
}

func TestInvokeManualRule(t *testing.T) {
	s := open(t, `node Task{title:String [required], done:Bool = false};
rule close_all [manual]: t:Task WHERE t.done = false => SET t.done = true.`)
	exec(t, s, `SPAWN t1:Task{title="A"}`)
	exec(t, s, `SPAWN t2:Task{title="B"}`)

	exec(t, s, `INVOKE close_all`)

	res := exec(t, s, `MATCH t:Task WHERE t.done = true RETURN count(t)`).Query
	assert.Equal(t, int64(2), res.Rows[0][0].AsInt())
}

func TestExplainProducesPlanTree(t *testing.T) {
	s := open(t, `node Task{title:String [required]}`)
	resp := exec(t, s, `EXPLAIN MATCH t:Task RETURN t.title`)
	require.NotNil(t, resp.Plan)
	assert.Contains(t, resp.Plan.String(), "Scan")
}

func TestSpawnThenKillRestoresObservableState(t *testing.T) {
	s := open(t, `node Task{title:String [required]}`)
	exec(t, s, `SPAWN t:Task{title="X"}`)
	exec(t, s, `KILL #t`)

	res := exec(t, s, `MATCH t:Task RETURN count(t)`).Query
	assert.Equal(t, int64(0), res.Rows[0][0].AsInt())

	resp := exec(t, s, `INSPECT #t`)
	assert.False(t, resp.Inspect.Found)
}

func TestTransitiveMatchReachability(t *testing.T) {
	s := open(t, `node Task{title:String [required]};
edge depends_on(a:Task, b:Task).`)
	exec(t, s, `SPAWN t1:Task{title="T1"}`)
	exec(t, s, `SPAWN t2:Task{title="T2"}`)
	exec(t, s, `SPAWN t3:Task{title="T3"}`)
	exec(t, s, `LINK depends_on(#t1,#t2)`)
	exec(t, s, `LINK depends_on(#t2,#t3)`)

	res := exec(t, s, `MATCH a:Task, b:Task, depends_on+(a,b) RETURN a.title, b.title`).Query
	require.Len(t, res.Rows, 3)

	star := exec(t, s, `MATCH a:Task, b:Task, depends_on*(a,b) RETURN a.title, b.title`).Query
	require.Len(t, star.Rows, 6, "E* adds the zero-hop reflexive pairs")
}
