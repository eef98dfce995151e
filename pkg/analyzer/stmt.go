package analyzer

import (
	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/mewerr"
	"github.com/mewdb/mew/pkg/registry"
)

// AnalyzeStmt resolves stmt against the Analyzer's live Registry: every node
// and edge type reference must already be declared, EXISTS may not shadow an
// outer binding, and the reserved context functions may not appear
// anywhere. The returned Analyzed carries the
// top-level pattern's variable->type map, if stmt has one, for pkg/query and
// pkg/mutate to consume without re-deriving it.
func (a *Analyzer) AnalyzeStmt(stmt ast.Stmt) (*Analyzed, error) {
	rr := registryResolver(a.reg)
	varTypes := map[string]string{}
	var err error

	switch s := stmt.(type) {
	case ast.MatchStmt:
		varTypes, err = resolvePattern(&s.Pattern, rr)
		if err != nil {
			return nil, err
		}
		for i := range s.Optionals {
			optTypes, err := resolvePattern(&s.Optionals[i], rr)
			if err != nil {
				return nil, err
			}
			for v, t := range optTypes {
				if _, bound := varTypes[v]; !bound {
					varTypes[v] = t
				}
			}
		}
		for _, item := range s.Return {
			if err := checkNoContextFuncs(item.Expr); err != nil {
				return nil, err
			}
		}
		for _, ob := range s.OrderBy {
			if err := checkNoContextFuncs(ob.Expr); err != nil {
				return nil, err
			}
		}
		if s.Mutation != nil {
			if err := a.checkAction(s.Mutation, rr); err != nil {
				return nil, err
			}
		}

	case ast.WalkStmt:
		for _, start := range s.Starts {
			if err := checkNoContextFuncs(start); err != nil {
				return nil, err
			}
		}
		for _, step := range s.Follow {
			if step.EdgeType != "" && !rr.edgeExists(step.EdgeType) {
				return nil, edgeNotFound(step.EdgeType)
			}
		}
		if err := checkNoContextFuncs(s.Until); err != nil {
			return nil, err
		}

	case ast.InspectStmt:
		if err := checkNoContextFuncs(s.ID); err != nil {
			return nil, err
		}
		for _, item := range s.Return {
			if err := checkNoContextFuncs(item.Expr); err != nil {
				return nil, err
			}
		}

	case ast.MutationStmt:
		if err := a.checkAction(s.Action, rr); err != nil {
			return nil, err
		}

	case ast.TxStmt:
		// no embedded expressions to resolve

	case ast.ShowStmt:
		// no embedded expressions to resolve

	case ast.CreateIndexStmt:
		if err := a.checkIndexTarget(s.Type, s.Attr); err != nil {
			return nil, err
		}

	case ast.DropIndexStmt:
		if err := a.checkIndexTarget(s.Type, s.Attr); err != nil {
			return nil, err
		}

	case ast.ExplainStmt:
		return a.AnalyzeStmt(s.Inner)

	case ast.ProfileStmt:
		return a.AnalyzeStmt(s.Inner)

	case ast.DryRunStmt:
		return a.AnalyzeStmt(s.Inner)

	case ast.LoadOntologyStmt:
		// Source is resolved at load time; nothing to statically check here.

	case ast.ExtendOntologyStmt:
		// Source is resolved at load time; nothing to statically check here.

	case ast.InvokeStmt:
		if _, ok := a.reg.RuleByName(s.RuleName); !ok {
			return nil, mewerr.NotFound("rule", s.RuleName)
		}
		for _, expr := range s.Bindings {
			if err := checkNoContextFuncs(expr); err != nil {
				return nil, err
			}
		}

	default:
		return nil, mewerr.Internal("analyzer: unrecognized statement type")
	}

	return &Analyzed{Stmt: stmt, VarTypes: varTypes}, nil
}

// registryResolver adapts a live Registry to the nameResolver pkg/analyzer
// uses uniformly across DSL and GQL inputs.
func registryResolver(reg *registry.Registry) nameResolver {
	return nameResolver{
		typeExists: func(name string) bool {
			_, ok := reg.TypeByName(name)
			return ok
		},
		edgeExists: func(name string) bool {
			_, ok := reg.EdgeTypeByName(name)
			return ok
		},
	}
}

// checkAction resolves the node/edge type names an action references and
// sweeps its attribute-assignment expressions for reserved context calls.
func (a *Analyzer) checkAction(act ast.Action, rr nameResolver) error {
	switch act := act.(type) {
	case ast.SpawnAction:
		if !rr.typeExists(act.Type) {
			return typeNotFound(act.Type)
		}
		return checkAttrExprs(act.Attrs)
	case ast.LinkAction:
		if !rr.edgeExists(act.EdgeType) {
			return edgeNotFound(act.EdgeType)
		}
		return checkAttrExprs(act.Attrs)
	case ast.UnlinkAction:
		if act.EdgeType != "" && !rr.edgeExists(act.EdgeType) {
			return edgeNotFound(act.EdgeType)
		}
		return nil
	case ast.KillAction:
		return nil
	case ast.SetAction:
		return checkAttrExprs(act.Attrs)
	default:
		return mewerr.Internal("analyzer: unrecognized action type")
	}
}

func checkAttrExprs(attrs []ast.AttrAssign) error {
	for _, aa := range attrs {
		if err := checkNoContextFuncs(aa.Expr); err != nil {
			return err
		}
	}
	return nil
}

// checkIndexTarget resolves the node type and attribute name a CREATE/DROP
// INDEX statement names.
func (a *Analyzer) checkIndexTarget(typeName, attrName string) error {
	def, ok := a.reg.TypeByName(typeName)
	if !ok {
		return typeNotFound(typeName)
	}
	if _, ok := def.AttrByName(attrName); !ok {
		return mewerr.NotFound("attribute", typeName+"."+attrName)
	}
	return nil
}
