package ast

// TransitiveKind distinguishes a plain edge pattern from its transitive
// forms `E+` (one or more hops) and `E*` (zero or more hops).
type TransitiveKind int

const (
	TransitiveNone TransitiveKind = iota
	TransitivePlus
	TransitiveStar
)

// NodePattern is `v: T` inside a pattern; Type is empty for an untyped
// variable reused from an outer binding.
type NodePattern struct {
	Span Span
	Var  string
	Type string // type name, union "A|B", or "" (any / already bound)
}

// EdgePattern is `E(v1, v2, ... [AS eAlias])`, optionally transitive and
// depth-bounded (`E+(a,b)[depth:n]`).
type EdgePattern struct {
	Span       Span
	EdgeType   string // "" for edge<any> / generic meta scan
	Positions  []string
	Alias      string // the `AS eAlias` binding for the edge glyph itself
	Transitive TransitiveKind
	MinDepth   int // defaults applied by the analyzer from engine config
	MaxDepth   int
	HasDepth   bool // true iff [depth:a..b] was written explicitly
}

// Pattern is the full match shape: a set of node/edge pattern elements plus
// an optional WHERE expression and nested EXISTS/NOT EXISTS clauses. This is
// the unit every one of MATCH, WALK's implicit FOLLOW step, a constraint,
// and a rule is built from.
type Pattern struct {
	Span  Span
	Nodes []NodePattern
	Edges []EdgePattern
	Where Expr // may be nil
}
