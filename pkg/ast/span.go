// Package ast defines the typed AST shared by the ontology DSL and GQL
// grammars. The surface
// grammar itself lives in pkg/lexer and pkg/parser; this package only fixes
// the shape the parser must produce and the analyzer/compiler consume.
//
// Every
// sum type here (Expr, Action, Modifier target) is a small closed interface
// with one method that exists purely to seal the variant set, matched with
// a type switch at the consumer rather than virtual dispatch.
package ast

// Span is a source location range, attached to every AST node that can
// originate a user-facing error.
type Span struct {
	Line   int
	Col    int
	Length int
}
