// Package analyzer resolves names and types for both the ontology DSL and
// GQL (pkg/parser builds the bare AST; this
// package checks it against a schema, the ontology-under-construction's own
// declared names for DSL input or the live Registry for GQL input, before
// pkg/compiler or pkg/query/pkg/mutate ever see it).
package analyzer

import (
	"strings"

	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/mewerr"
	"github.com/mewdb/mew/pkg/registry"
)

// reservedContextFuncs names the functions reserved for an
// authorization extension point ("rejects context functions outside
// authorization conditions"); this kernel implements no authorization layer,
// so their use anywhere is rejected with a hint pointing at the extension.
var reservedContextFuncs = map[string]bool{
	"current_user":    true,
	"current_role":    true,
	"current_session": true,
	"client_ip":       true,
}

// Analyzer resolves a GQL statement against a live Registry. Ontology
// analysis (AnalyzeOntology) needs no Registry; the schema it checks names
// against is the ontology AST itself, which is why it is a package-level
// function rather than a method.
type Analyzer struct {
	reg *registry.Registry
}

// New returns an Analyzer bound to the session's current Registry.
func New(reg *registry.Registry) *Analyzer {
	return &Analyzer{reg: reg}
}

// Analyzed is the resolved statement the query/mutate layer consumes: the
// original AST plus each pattern variable's statically known type reference
// (a bare name, a "|"-joined union, or "" when the variable's type could not
// be narrowed, e.g. a variable reused from an outer, already-bound scope).
type Analyzed struct {
	Stmt     ast.Stmt
	VarTypes map[string]string
}

func typeNotFound(name string) error {
	return mewerr.NotFound("node type", name)
}

func edgeNotFound(name string) error {
	return mewerr.NotFound("edge type", name)
}

// splitUnion splits a parser type-ref ("A|B", "edge<T>", "any") into its
// atoms for membership checking; "edge<T>" and "any" atoms are returned
// as-is since they name higher-order/wildcard targets, not node types.
func splitUnion(typeRef string) []string {
	if typeRef == "" {
		return nil
	}
	return strings.Split(typeRef, "|")
}
