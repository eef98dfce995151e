package analyzer_test

import (
	"testing"

	"github.com/mewdb/mew/pkg/analyzer"
	"github.com/mewdb/mew/pkg/compiler"
	"github.com/mewdb/mew/pkg/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const personOntology = `
node Person {name:String [required]};
edge friends(a:Person, b:Person) [symmetric];
`

func TestAnalyzeOntologyRejectsUnknownParent(t *testing.T) {
	o, err := parser.ParseOntology(`node Employee : Missing {name:String};`)
	require.NoError(t, err)
	err = analyzer.AnalyzeOntology(o)
	require.Error(t, err)
}

func TestAnalyzeOntologyRejectsDuplicateTypeName(t *testing.T) {
	o, err := parser.ParseOntology(`node Person{n:String}; node Person{m:String};`)
	require.NoError(t, err)
	err = analyzer.AnalyzeOntology(o)
	require.Error(t, err)
}

func TestAnalyzeOntologyRejectsNowInConstraint(t *testing.T) {
	o, err := parser.ParseOntology(`node Person{created:Timestamp};
constraint no_future: p:Person where p.created > now() => "invalid";`)
	require.NoError(t, err)
	err = analyzer.AnalyzeOntology(o)
	require.Error(t, err)
}

func TestAnalyzeOntologyRejectsReservedContextFunc(t *testing.T) {
	o, err := parser.ParseOntology(`node Person{name:String};
constraint owner_only: p:Person where p.name == current_user() => "invalid";`)
	require.NoError(t, err)
	err = analyzer.AnalyzeOntology(o)
	require.Error(t, err)
}

func TestAnalyzeOntologyAcceptsValidSchema(t *testing.T) {
	o, err := parser.ParseOntology(personOntology)
	require.NoError(t, err)
	require.NoError(t, analyzer.AnalyzeOntology(o))
}

func mustRegistry(t *testing.T) *analyzer.Analyzer {
	t.Helper()
	o, err := parser.ParseOntology(personOntology)
	require.NoError(t, err)
	reg, err := compiler.Compile(o)
	require.NoError(t, err)
	return analyzer.New(reg)
}

func TestAnalyzeStmtResolvesMatchPattern(t *testing.T) {
	a := mustRegistry(t)
	stmt, err := parser.ParseStatement(`match p:Person return p.name`)
	require.NoError(t, err)
	analyzed, err := a.AnalyzeStmt(stmt)
	require.NoError(t, err)
	assert.Equal(t, "Person", analyzed.VarTypes["p"])
}

func TestAnalyzeStmtRejectsUnknownTypeInMatch(t *testing.T) {
	a := mustRegistry(t)
	stmt, err := parser.ParseStatement(`match p:Ghost return p`)
	require.NoError(t, err)
	_, err = a.AnalyzeStmt(stmt)
	require.Error(t, err)
}

func TestAnalyzeStmtRejectsReservedFuncInReturn(t *testing.T) {
	a := mustRegistry(t)
	stmt, err := parser.ParseStatement(`match p:Person return current_user()`)
	require.NoError(t, err)
	_, err = a.AnalyzeStmt(stmt)
	require.Error(t, err)
}

func TestAnalyzeStmtRejectsUnknownEdgeInMatch(t *testing.T) {
	a := mustRegistry(t)
	stmt, err := parser.ParseStatement(`match a:Person, b:Person, enemies(a,b) return a`)
	require.NoError(t, err)
	_, err = a.AnalyzeStmt(stmt)
	require.Error(t, err)
}

func TestAnalyzeStmtResolvesSpawnMutation(t *testing.T) {
	a := mustRegistry(t)
	stmt, err := parser.ParseStatement(`spawn p:Person{name="Ada"}`)
	require.NoError(t, err)
	_, err = a.AnalyzeStmt(stmt)
	require.NoError(t, err)
}

func TestAnalyzeStmtRejectsSpawnUnknownType(t *testing.T) {
	a := mustRegistry(t)
	stmt, err := parser.ParseStatement(`spawn p:Ghost{name="Ada"}`)
	require.NoError(t, err)
	_, err = a.AnalyzeStmt(stmt)
	require.Error(t, err)
}

func TestAnalyzeStmtResolvesCreateIndex(t *testing.T) {
	a := mustRegistry(t)
	stmt, err := parser.ParseStatement(`create index on Person(name)`)
	require.NoError(t, err)
	_, err = a.AnalyzeStmt(stmt)
	require.NoError(t, err)
}

func TestAnalyzeStmtRejectsCreateIndexUnknownAttr(t *testing.T) {
	a := mustRegistry(t)
	stmt, err := parser.ParseStatement(`create index on Person(nickname)`)
	require.NoError(t, err)
	_, err = a.AnalyzeStmt(stmt)
	require.Error(t, err)
}

func TestAnalyzeStmtResolvesWalk(t *testing.T) {
	a := mustRegistry(t)
	stmt, err := parser.ParseStatement(`walk from #x follow friends return nodes`)
	require.NoError(t, err)
	_, err = a.AnalyzeStmt(stmt)
	require.NoError(t, err)
}

func TestAnalyzeStmtRejectsWalkUnknownEdge(t *testing.T) {
	a := mustRegistry(t)
	stmt, err := parser.ParseStatement(`walk from #x follow enemies return nodes`)
	require.NoError(t, err)
	_, err = a.AnalyzeStmt(stmt)
	require.Error(t, err)
}
