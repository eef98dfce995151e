package analyzer

import (
	"strings"

	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/mewerr"
)

// nameResolver answers whether a node-type or edge-type name is known,
// abstracting over DSL (names declared so far in the ontology-under-
// construction) vs GQL (the live Registry) resolution, the two contexts
// the analyzer resolves against.
type nameResolver struct {
	typeExists func(name string) bool
	edgeExists func(name string) bool
}

// resolvePattern validates every node/edge type reference in pat against nr,
// rejects EXISTS sub-patterns that shadow an outer binding, and returns the
// accumulated var->type map. EXISTS-local bindings do not leak into the
// returned map, matching the pattern language's own scoping.
func resolvePattern(pat *ast.Pattern, nr nameResolver) (map[string]string, error) {
	varTypes := map[string]string{}
	for _, np := range pat.Nodes {
		if np.Type != "" {
			for _, atom := range splitUnion(np.Type) {
				if atom == "any" || strings.HasPrefix(atom, "edge<") {
					continue
				}
				if !nr.typeExists(atom) {
					return nil, typeNotFound(atom)
				}
			}
			varTypes[np.Var] = np.Type
		} else if _, bound := varTypes[np.Var]; !bound {
			varTypes[np.Var] = ""
		}
	}
	for _, ep := range pat.Edges {
		if ep.EdgeType != "" && !nr.edgeExists(ep.EdgeType) {
			return nil, edgeNotFound(ep.EdgeType)
		}
		if ep.Alias != "" {
			varTypes[ep.Alias] = "edge<" + ep.EdgeType + ">"
		}
	}
	if err := checkExistsShadowing(pat.Where, varTypes); err != nil {
		return nil, err
	}
	return varTypes, nil
}

// checkExistsShadowing rejects any EXISTS/NOT EXISTS sub-pattern that
// redeclares, with an explicit type, a variable already bound in the
// outer scope. A bare,
// untyped variable inside EXISTS is not shadowing; it is the normal way of
// reusing an outer binding as a correlation point.
func checkExistsShadowing(e ast.Expr, outer map[string]string) error {
	var err error
	walkExpr(e, func(n ast.Expr) {
		if err != nil {
			return
		}
		ex, ok := n.(ast.ExistsExpr)
		if !ok || ex.Pattern == nil {
			return
		}
		for _, np := range ex.Pattern.Nodes {
			if np.Type == "" {
				continue
			}
			if _, shadowed := outer[np.Var]; shadowed {
				err = mewerr.Syntax(
					"variable "+np.Var+" shadows an outer pattern binding inside EXISTS",
					"rename the EXISTS-local variable, or drop its type to reuse the outer binding",
				)
			}
		}
	})
	return err
}
