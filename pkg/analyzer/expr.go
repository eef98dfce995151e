package analyzer

import (
	"strings"

	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/mewerr"
)

// walkExpr calls visit on e and every sub-expression reachable from it,
// including through nested EXISTS/aggregate patterns' WHERE clauses; the
// only place a constraint condition or rule pattern can hide a now() call or
// a reserved context function several levels deep.
func walkExpr(e ast.Expr, visit func(ast.Expr)) {
	if e == nil {
		return
	}
	visit(e)
	switch n := e.(type) {
	case ast.BinaryExpr:
		walkExpr(n.Lhs, visit)
		walkExpr(n.Rhs, visit)
	case ast.UnaryExpr:
		walkExpr(n.Operand, visit)
	case ast.FuncCall:
		for _, arg := range n.Args {
			walkExpr(arg, visit)
		}
	case ast.AggregateExpr:
		walkPattern(n.Pattern, visit)
		walkExpr(n.Project, visit)
	case ast.ExistsExpr:
		walkPattern(n.Pattern, visit)
	}
}

func walkPattern(pat *ast.Pattern, visit func(ast.Expr)) {
	if pat == nil {
		return
	}
	walkExpr(pat.Where, visit)
}

func funcCallName(e ast.Expr) (string, bool) {
	fc, ok := e.(ast.FuncCall)
	if !ok {
		return "", false
	}
	return fc.Name, true
}

// checkNoNow rejects now() anywhere in a constraint condition: constraints
// re-evaluate at arbitrary times after the mutation that triggered them, so
// unlike a SPAWN default or a rule's SET action, now() has no single
// meaningful value there.
func checkNoNow(e ast.Expr) error {
	var err error
	walkExpr(e, func(n ast.Expr) {
		if err != nil {
			return
		}
		if name, ok := funcCallName(n); ok && strings.EqualFold(name, "now") {
			err = mewerr.Syntax(
				"now() is not permitted inside a constraint condition",
				"constraints re-evaluate at arbitrary times after the mutation; now() has no single meaningful value there",
			)
		}
	})
	return err
}

// checkNoContextFuncs rejects the reserved authorization-extension functions
// anywhere in e. This kernel implements no authorization layer, so the
// check is unconditional rather than scoped to "outside authorization
// conditions" (the distinction belongs to that future
// extension point).
func checkNoContextFuncs(e ast.Expr) error {
	var err error
	walkExpr(e, func(n ast.Expr) {
		if err != nil {
			return
		}
		if name, ok := funcCallName(n); ok && reservedContextFuncs[strings.ToLower(name)] {
			err = mewerr.Reserved(name + "() is reserved for an authorization extension point and may not be used here")
		}
	})
	return err
}
