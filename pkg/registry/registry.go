// Package registry holds the compiled, immutable schema a Session matches
// and mutates against: node types, edge types, constraints, and rules, plus
// the precomputed subtype bitsets and priority-ordered constraint/rule
// indexes that let the rest of the kernel answer "is X a Y" and "which
// constraints/rules touch type T" in O(1).
//
// A Registry is built once, by pkg/compiler, from a parsed Ontology, and is
// never mutated in place after that: EXTEND ONTOLOGY produces a new
// Registry that supersedes the old one rather than patching it, which keeps
// every live query plan's captured Registry pointer valid for the duration
// of the query that holds it.
package registry

import (
	"sort"

	"github.com/mewdb/mew/pkg/mewerr"
	"github.com/mewdb/mew/pkg/values"
)

// Registry is the compiled, queryable schema.
type Registry struct {
	typeByName     map[string]values.TypeId
	typeByID       []*NodeTypeDef // index 0 unused (InvalidTypeId)
	edgeByName     map[string]values.EdgeTypeId
	edgeByID       []*EdgeTypeDef // index 0 unused (InvalidEdgeTypeId)

	subtypeOf  []*Bitset // subtypeOf[t] = bitset of t and all its ancestors
	subtypesOf []*Bitset // subtypesOf[t] = bitset of t and all its descendants

	constraints []*ConstraintDef
	rules       []*RuleDef

	constraintsByType     map[values.TypeId][]*ConstraintDef
	constraintsByEdgeType map[values.EdgeTypeId][]*ConstraintDef
	rulesByType           map[values.TypeId][]*RuleDef
	rulesByEdgeType       map[values.EdgeTypeId][]*RuleDef
}

// TypeByName resolves a node type name.
func (r *Registry) TypeByName(name string) (*NodeTypeDef, bool) {
	id, ok := r.typeByName[name]
	if !ok {
		return nil, false
	}
	return r.typeByID[id], true
}

// TypeByID resolves a node type by id.
func (r *Registry) TypeByID(id values.TypeId) (*NodeTypeDef, bool) {
	if int(id) <= 0 || int(id) >= len(r.typeByID) || r.typeByID[id] == nil {
		return nil, false
	}
	return r.typeByID[id], true
}

// EdgeTypeByName resolves an edge type name.
func (r *Registry) EdgeTypeByName(name string) (*EdgeTypeDef, bool) {
	id, ok := r.edgeByName[name]
	if !ok {
		return nil, false
	}
	return r.edgeByID[id], true
}

// EdgeTypeByID resolves an edge type by id.
func (r *Registry) EdgeTypeByID(id values.EdgeTypeId) (*EdgeTypeDef, bool) {
	if int(id) <= 0 || int(id) >= len(r.edgeByID) || r.edgeByID[id] == nil {
		return nil, false
	}
	return r.edgeByID[id], true
}

// IsSubtype reports whether `sub` is `super` or inherits from it, answered
// in O(1) from the precomputed ancestor bitset.
func (r *Registry) IsSubtype(sub, super values.TypeId) bool {
	if int(sub) >= len(r.subtypeOf) || r.subtypeOf[sub] == nil {
		return false
	}
	return r.subtypeOf[sub].Test(int(super))
}

// SubtypesOf returns every type id that is `t` or inherits from it.
func (r *Registry) SubtypesOf(t values.TypeId) []values.TypeId {
	if int(t) >= len(r.subtypesOf) || r.subtypesOf[t] == nil {
		return nil
	}
	members := r.subtypesOf[t].Members()
	out := make([]values.TypeId, len(members))
	for i, m := range members {
		out[i] = values.TypeId(m)
	}
	return out
}

// FamilyRoot returns the inheritance root whose FamilyTable stores t's glyphs.
func (r *Registry) FamilyRoot(t values.TypeId) values.TypeId {
	def, ok := r.TypeByID(t)
	if !ok {
		return values.InvalidTypeId
	}
	return def.FamilyRoot
}

// AttrsOf returns the flattened (own + inherited) attribute set of t.
func (r *Registry) AttrsOf(t values.TypeId) []AttrDef {
	def, ok := r.TypeByID(t)
	if !ok {
		return nil
	}
	return def.AllAttrs
}

// ConstraintsFor returns the constraints whose affected-type set includes t,
// already sorted (priority DESC, declaration order ASC is not meaningful for
// constraints, which fire in declaration order only).
func (r *Registry) ConstraintsFor(t values.TypeId) []*ConstraintDef {
	return r.constraintsByType[t]
}

// EdgeConstraintsFor returns the constraints whose affected-edge-type set
// includes e.
func (r *Registry) EdgeConstraintsFor(e values.EdgeTypeId) []*ConstraintDef {
	return r.constraintsByEdgeType[e]
}

// DeferredConstraints returns every constraint marked deferred-to-commit,
// across all affected types, in declaration order.
func (r *Registry) DeferredConstraints() []*ConstraintDef {
	var out []*ConstraintDef
	for _, c := range r.constraints {
		if c.Deferred {
			out = append(out, c)
		}
	}
	return out
}

// RulesFor returns the rules whose affected-type set includes t, pre-sorted
// by (priority DESC, declaration order ASC), the engine's firing order.
func (r *Registry) RulesFor(t values.TypeId) []*RuleDef {
	return r.rulesByType[t]
}

// EdgeRulesFor returns the rules whose affected-edge-type set includes e.
func (r *Registry) EdgeRulesFor(e values.EdgeTypeId) []*RuleDef {
	return r.rulesByEdgeType[e]
}

// AllRules returns every compiled rule, pre-sorted by (priority DESC,
// declaration order ASC), for the fixpoint engine's full pass.
func (r *Registry) AllRules() []*RuleDef {
	out := make([]*RuleDef, len(r.rules))
	copy(out, r.rules)
	return out
}

// RuleByName resolves a rule by its declared name, used by INVOKE.
func (r *Registry) RuleByName(name string) (*RuleDef, bool) {
	for _, rule := range r.rules {
		if rule.Name == name {
			return rule, true
		}
	}
	return nil, false
}

// AllNodeTypes returns every compiled node type in id order.
func (r *Registry) AllNodeTypes() []*NodeTypeDef {
	out := make([]*NodeTypeDef, 0, len(r.typeByID))
	for _, t := range r.typeByID {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

// AllEdgeTypes returns every compiled edge type in id order.
func (r *Registry) AllEdgeTypes() []*EdgeTypeDef {
	out := make([]*EdgeTypeDef, 0, len(r.edgeByID))
	for _, e := range r.edgeByID {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// AllConstraints returns every compiled constraint in declaration order
// (modifier-derived validators follow the user-declared ones).
func (r *Registry) AllConstraints() []*ConstraintDef {
	out := make([]*ConstraintDef, len(r.constraints))
	copy(out, r.constraints)
	return out
}

// Builder accumulates compiled types/constraints/rules and produces an
// immutable Registry via Build. pkg/compiler is the sole caller.
type Builder struct {
	types   []*NodeTypeDef
	edges   []*EdgeTypeDef
	consts  []*ConstraintDef
	rules   []*RuleDef
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddNodeType registers a compiled node type. Ids must be assigned densely
// from 1 by the caller (0 is reserved as InvalidTypeId).
func (b *Builder) AddNodeType(def *NodeTypeDef) { b.types = append(b.types, def) }

// AddEdgeType registers a compiled edge type.
func (b *Builder) AddEdgeType(def *EdgeTypeDef) { b.edges = append(b.edges, def) }

// AddConstraint registers a compiled constraint.
func (b *Builder) AddConstraint(def *ConstraintDef) { b.consts = append(b.consts, def) }

// AddRule registers a compiled rule.
func (b *Builder) AddRule(def *RuleDef) { b.rules = append(b.rules, def) }

// Build rejects duplicate ids and precomputes the subtype bitsets and
// constraint/rule indexes, returning the finished immutable Registry.
func (b *Builder) Build() (*Registry, error) {
	maxType := values.TypeId(0)
	for _, t := range b.types {
		if t.ID > maxType {
			maxType = t.ID
		}
	}
	maxEdge := values.EdgeTypeId(0)
	for _, e := range b.edges {
		if e.ID > maxEdge {
			maxEdge = e.ID
		}
	}

	r := &Registry{
		typeByName:            make(map[string]values.TypeId, len(b.types)),
		typeByID:              make([]*NodeTypeDef, maxType+1),
		edgeByName:            make(map[string]values.EdgeTypeId, len(b.edges)),
		edgeByID:              make([]*EdgeTypeDef, maxEdge+1),
		subtypeOf:             make([]*Bitset, maxType+1),
		subtypesOf:            make([]*Bitset, maxType+1),
		constraints:           b.consts,
		rules:                 b.rules,
		constraintsByType:     make(map[values.TypeId][]*ConstraintDef),
		constraintsByEdgeType: make(map[values.EdgeTypeId][]*ConstraintDef),
		rulesByType:           make(map[values.TypeId][]*RuleDef),
		rulesByEdgeType:       make(map[values.EdgeTypeId][]*RuleDef),
	}

	for _, t := range b.types {
		if r.typeByID[t.ID] != nil {
			return nil, mewerr.Internal("duplicate node type id")
		}
		r.typeByID[t.ID] = t
		r.typeByName[t.Name] = t.ID
	}
	for _, e := range b.edges {
		if r.edgeByID[e.ID] != nil {
			return nil, mewerr.Internal("duplicate edge type id")
		}
		r.edgeByID[e.ID] = e
		r.edgeByName[e.Name] = e.ID
	}

	// Precompute ancestor bitsets by walking each type's Parents chain
	// (already fully resolved to TypeId by the compiler), then derive the
	// descendant bitsets as the transpose.
	for _, t := range b.types {
		anc := newBitset(int(maxType))
		anc.Set(int(t.ID))
		b.collectAncestors(r, t, anc)
		r.subtypeOf[t.ID] = anc
	}
	for _, t := range b.types {
		r.subtypesOf[t.ID] = newBitset(int(maxType))
	}
	for _, t := range b.types {
		for _, a := range r.subtypeOf[t.ID].Members() {
			if int(a) <= int(maxType) {
				r.subtypesOf[values.TypeId(a)].Set(int(t.ID))
			}
		}
	}

	for _, c := range b.consts {
		for _, t := range c.AffectedTypes {
			for _, sub := range r.SubtypesOf(t) {
				r.constraintsByType[sub] = append(r.constraintsByType[sub], c)
			}
		}
		for _, e := range c.AffectedEdgeTypes {
			r.constraintsByEdgeType[e] = append(r.constraintsByEdgeType[e], c)
		}
	}

	sort.SliceStable(b.rules, func(i, j int) bool {
		if b.rules[i].Priority != b.rules[j].Priority {
			return b.rules[i].Priority > b.rules[j].Priority
		}
		return b.rules[i].DeclOrder < b.rules[j].DeclOrder
	})
	r.rules = b.rules
	for _, rule := range b.rules {
		for _, t := range rule.AffectedTypes {
			for _, sub := range r.SubtypesOf(t) {
				r.rulesByType[sub] = append(r.rulesByType[sub], rule)
			}
		}
		for _, e := range rule.AffectedEdgeTypes {
			r.rulesByEdgeType[e] = append(r.rulesByEdgeType[e], rule)
		}
	}

	return r, nil
}

func (b *Builder) collectAncestors(r *Registry, t *NodeTypeDef, acc *Bitset) {
	for _, p := range t.Parents {
		if acc.Test(int(p)) {
			continue
		}
		acc.Set(int(p))
		if parent, ok := r.TypeByID(p); ok {
			b.collectAncestors(r, parent, acc)
		}
	}
}
