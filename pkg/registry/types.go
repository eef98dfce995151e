package registry

import (
	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/values"
)

// AttrDef is one compiled attribute column, shared by node types and edge
// types.
type AttrDef struct {
	ID         values.AttrId
	Name       string
	Scalar     values.Kind
	Nullable   bool
	HasDefault bool
	Default    ast.Expr
	Indexed    bool
	IndexDesc  bool
	Unique     bool
}

// NodeTypeDef is a compiled `node` declaration: resolved parents, the
// flattened attribute set (own + inherited), and the inheritance root that
// selects which FamilyTable the type's glyphs live in (one FamilyTable
// per inheritance root).
type NodeTypeDef struct {
	ID         values.TypeId
	Name       string
	Parents    []values.TypeId
	Abstract   bool
	Sealed     bool
	OwnAttrs   []AttrDef
	AllAttrs   []AttrDef // own + inherited, inheritance-order, name-deduplicated
	FamilyRoot values.TypeId
}

// AttrByName returns the compiled attribute named n, if any.
func (d *NodeTypeDef) AttrByName(n string) (AttrDef, bool) {
	for _, a := range d.AllAttrs {
		if a.Name == n {
			return a, true
		}
	}
	return AttrDef{}, false
}

// Cardinality bounds how many glyphs may occupy an edge position (or how
// many times a rule may fire per binding). Max == -1 means unbounded.
type Cardinality struct {
	Min int
	Max int
}

// Satisfied reports whether count glyphs at a position obey c.
func (c Cardinality) Satisfied(count int) bool {
	if count < c.Min {
		return false
	}
	if c.Max >= 0 && count > c.Max {
		return false
	}
	return true
}

// PositionDef is one resolved position in an edge type's signature: the
// type (or union, or any) a glyph bound there must satisfy, and how many
// glyphs that position may hold.
type PositionDef struct {
	Name           string
	TargetType     values.TypeId // zero value + TargetIsUnion==false && TargetIsAny==false: single concrete type
	TargetIsUnion  bool
	UnionTypes     []values.TypeId
	TargetIsAny    bool
	TargetEdgeType values.EdgeTypeId // set when the position's target is itself `edge<T>` (higher-order)
	TargetEdgeAny  bool              // position's target is `edge<any>`
	Cardinality    Cardinality
}

// ReferentialAction is the behavior triggered on a position's bound glyph
// being killed.
type ReferentialAction string

const (
	RefUnlink  ReferentialAction = "unlink"
	RefCascade ReferentialAction = "cascade"
	RefPrevent ReferentialAction = "prevent"
)

// EdgeTypeDef is a compiled `edge` declaration.
type EdgeTypeDef struct {
	ID           values.EdgeTypeId
	Name         string
	Positions    []PositionDef
	Attrs        []AttrDef
	Symmetric    bool
	NoSelf       bool
	Acyclic      bool
	Unique       bool
	Indexed      bool
	OnKillSource ReferentialAction
	OnKillTarget ReferentialAction
}

// AttrByName returns the compiled edge attribute named n, if any.
func (d *EdgeTypeDef) AttrByName(n string) (AttrDef, bool) {
	for _, a := range d.Attrs {
		if a.Name == n {
			return a, true
		}
	}
	return AttrDef{}, false
}

// PositionByName returns the compiled position named n, if any.
func (d *EdgeTypeDef) PositionByName(n string) (PositionDef, bool) {
	for _, p := range d.Positions {
		if p.Name == n {
			return p, true
		}
	}
	return PositionDef{}, false
}

// ConstraintDef is a compiled `constraint` declaration: the pattern it
// re-evaluates, the condition that must hold for every binding, and the
// affected-type index used to dispatch it on mutation.
type ConstraintDef struct {
	ID                int
	Name              string
	Hard              bool
	AffectedTypes     []values.TypeId
	AffectedEdgeTypes []values.EdgeTypeId
	Deferred          bool // true: checked at commit; false: checked immediately after the mutation that touches it
	Pattern           *ast.Pattern
	Condition         ast.Expr
	Message           string
}

// RuleDef is a compiled `rule` declaration.
type RuleDef struct {
	ID                int
	Name              string
	Priority          int
	DeclOrder         int
	Auto              bool
	AffectedTypes     []values.TypeId
	AffectedEdgeTypes []values.EdgeTypeId
	Pattern           *ast.Pattern
	Production        []ast.Action
}
