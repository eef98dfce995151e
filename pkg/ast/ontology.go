package ast

// Ontology is the root of a parsed `ontology Name { ... }` file, or the
// implicit ontology formed by a file of bare top-level declarations.
type Ontology struct {
	Span        Span
	Name        string
	TypeAliases []TypeAliasDecl
	Nodes       []NodeTypeDecl
	Edges       []EdgeTypeDecl
	Constraints []ConstraintDecl
	Rules       []RuleDecl
}

// TypeAliasDecl is `type Alias = A | B | ...` (union alias) or `type Alias
// = T` (simple rename); the analyzer expands both forms.
type TypeAliasDecl struct {
	Span    Span
	Name    string
	Members []string // one name: simple alias; 2+: union
}

// ModifierKind enumerates the inline modifiers the compiler expands into
// constraints/rules/indexes.
type ModifierKind string

const (
	ModRequired ModifierKind = "required"
	ModUnique   ModifierKind = "unique"
	ModMin      ModifierKind = "min"      // [>= n]
	ModMax      ModifierKind = "max"      // [<= n]
	ModRange    ModifierKind = "range"    // [n..m]
	ModIn       ModifierKind = "in"       // [in:[...]]
	ModMatch    ModifierKind = "match"    // [match:"..."]
	ModLength   ModifierKind = "length"   // [length:n..m]
	ModIndexed  ModifierKind = "indexed"  // [indexed(:asc|:desc)]
	ModSymmetric ModifierKind = "symmetric"
	ModNoSelf   ModifierKind = "no_self"
	ModAcyclic  ModifierKind = "acyclic"
	ModCardinality ModifierKind = "cardinality" // [param -> n..m]
	ModOnKillSource ModifierKind = "on_kill_source"
	ModOnKillTarget ModifierKind = "on_kill_target"
)

// Modifier is one bracketed inline modifier attached to an attribute or
// edge declaration, carrying whatever small argument set it needs.
type Modifier struct {
	Span      Span
	Kind      ModifierKind
	IntArgs   []int64
	StrArgs   []string
	Desc      bool // for ModIndexed: descending order
	TargetArg string // for ModOnKillSource/Target: "unlink"|"cascade"|"prevent"
	Position  string // for ModCardinality: the position name it binds ("param -> n..m")
}

// AttrDecl is one `name: Type [modifiers] [= default]` line.
type AttrDecl struct {
	Span      Span
	Doc       string
	Name      string
	Type      string // scalar type name
	Nullable  bool
	Default   Expr // nil if none
	Modifiers []Modifier
}

// NodeTypeDecl is `node T [: Parents] { attrs }`.
type NodeTypeDecl struct {
	Span     Span
	Doc      string
	Name     string
	Parents  []string
	Abstract bool
	Sealed   bool
	Attrs    []AttrDecl
}

// PositionDecl is one `name: Type` entry in an edge type's signature.
type PositionDecl struct {
	Span Span
	Name string
	Type string // NodeType name, union "A|B", "any", "edge<T>", "edge<any>"
}

// EdgeTypeDecl is `edge E(p1: T1, p2: T2) [modifiers] { attrs }`.
type EdgeTypeDecl struct {
	Span      Span
	Doc       string
	Name      string
	Positions []PositionDecl
	Modifiers []Modifier
	Attrs     []AttrDecl
}

// ConstraintDecl is `constraint Name [hard|soft|message:"..."]: pattern => expr`.
type ConstraintDecl struct {
	Span      Span
	Doc       string
	Name      string
	Hard      bool
	Message   string
	Pattern   Pattern
	Condition Expr
}

// RuleDecl is `rule Name [priority: N|auto|manual]: pattern => action, action, ...`.
type RuleDecl struct {
	Span       Span
	Doc        string
	Name       string
	Priority   int
	Auto       bool
	Pattern    Pattern
	Production []Action
}
