package analyzer

import (
	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/mewerr"
)

// AnalyzeOntology validates a parsed ontology AST before pkg/compiler turns
// it into a Registry: duplicate declaration names, unresolved type/edge
// references, now()/reserved-context-function misuse, and EXISTS variable
// shadowing. The ontology-under-construction is its own schema
// here; there is no live Registry yet to check against.
func AnalyzeOntology(o *ast.Ontology) error {
	if err := checkDuplicateNames(o); err != nil {
		return err
	}
	nr := ontologyResolver(o)

	for i := range o.Nodes {
		for _, parent := range o.Nodes[i].Parents {
			if !nr.typeExists(parent) {
				return typeNotFound(parent)
			}
		}
	}
	for i := range o.Edges {
		for _, pos := range o.Edges[i].Positions {
			for _, atom := range splitUnion(pos.Type) {
				if atom == "any" || isEdgeRef(atom) {
					continue
				}
				if !nr.typeExists(atom) {
					return typeNotFound(atom)
				}
			}
		}
	}

	for i := range o.Constraints {
		cd := &o.Constraints[i]
		if _, err := resolvePattern(&cd.Pattern, nr); err != nil {
			return err
		}
		if err := checkNoNow(cd.Condition); err != nil {
			return err
		}
		if err := checkNoNow(cd.Pattern.Where); err != nil {
			return err
		}
		if err := checkNoContextFuncs(cd.Condition); err != nil {
			return err
		}
		if err := checkNoContextFuncs(cd.Pattern.Where); err != nil {
			return err
		}
	}

	for i := range o.Rules {
		rd := &o.Rules[i]
		if _, err := resolvePattern(&rd.Pattern, nr); err != nil {
			return err
		}
		if err := checkNoContextFuncs(rd.Pattern.Where); err != nil {
			return err
		}
		for _, expr := range actionExprs(rd.Production) {
			if err := checkNoContextFuncs(expr); err != nil {
				return err
			}
		}
	}

	return nil
}

func isEdgeRef(atom string) bool {
	return len(atom) > 5 && atom[:5] == "edge<" && atom[len(atom)-1] == '>'
}

func checkDuplicateNames(o *ast.Ontology) error {
	types := map[string]bool{}
	for _, n := range o.Nodes {
		if types[n.Name] {
			return mewerr.Syntax("node type " + n.Name + " declared twice")
		}
		types[n.Name] = true
	}
	edges := map[string]bool{}
	for _, e := range o.Edges {
		if edges[e.Name] {
			return mewerr.Syntax("edge type " + e.Name + " declared twice")
		}
		edges[e.Name] = true
	}
	constraints := map[string]bool{}
	for _, c := range o.Constraints {
		if constraints[c.Name] {
			return mewerr.Syntax("constraint " + c.Name + " declared twice")
		}
		constraints[c.Name] = true
	}
	rules := map[string]bool{}
	for _, r := range o.Rules {
		if rules[r.Name] {
			return mewerr.Syntax("rule " + r.Name + " declared twice")
		}
		rules[r.Name] = true
	}
	return nil
}

// ontologyResolver builds a nameResolver out of the ontology's own declared
// names, the path AnalyzeOntology uses instead of a live Registry.
func ontologyResolver(o *ast.Ontology) nameResolver {
	types := map[string]bool{"any": true}
	for _, n := range o.Nodes {
		types[n.Name] = true
	}
	for _, ta := range o.TypeAliases {
		types[ta.Name] = true
	}
	edges := map[string]bool{}
	for _, e := range o.Edges {
		edges[e.Name] = true
	}
	return nameResolver{
		typeExists: func(name string) bool { return types[name] },
		edgeExists: func(name string) bool { return edges[name] },
	}
}

// actionExprs flattens the expressions embedded in a rule's production
// actions (SPAWN/LINK/SET attribute assignments) for the now()/reserved-
// function sweep; UNLINK/KILL carry no expressions.
func actionExprs(actions []ast.Action) []ast.Expr {
	var out []ast.Expr
	for _, act := range actions {
		switch a := act.(type) {
		case ast.SpawnAction:
			out = append(out, attrExprs(a.Attrs)...)
		case ast.LinkAction:
			out = append(out, attrExprs(a.Attrs)...)
		case ast.SetAction:
			out = append(out, attrExprs(a.Attrs)...)
		}
	}
	return out
}

func attrExprs(attrs []ast.AttrAssign) []ast.Expr {
	out := make([]ast.Expr, len(attrs))
	for i, a := range attrs {
		out[i] = a.Expr
	}
	return out
}
