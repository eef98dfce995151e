package pattern

import (
	"context"
	"regexp"
	"time"

	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/config"
	"github.com/mewdb/mew/pkg/convert"
	"github.com/mewdb/mew/pkg/glyph"
	"github.com/mewdb/mew/pkg/mewerr"
	"github.com/mewdb/mew/pkg/pool"
	"github.com/mewdb/mew/pkg/registry"
	"github.com/mewdb/mew/pkg/values"
)

// Evaluator evaluates pkg/ast expressions against a binding set. It is the
// one place that knows about the two builtin function names
// pkg/compiler/modifiers.go compiles [in:...]/[match:...] attribute
// modifiers down to (__in_set, __matches); every other caller of these
// builtins goes through ordinary GQL function-call syntax.
type Evaluator struct {
	g      *glyph.Graph
	reg    *registry.Registry
	cfg    config.Engine
	ctx    context.Context
	Params map[string]values.Value

	// frozenNow, when non-zero, is the single now() value of the enclosing
	// transaction, frozen at transaction start.
	frozenNow time.Time
}

// WithNow returns a copy of the Evaluator whose now() is pinned to t for
// the life of a transaction.
func (e *Evaluator) WithNow(t time.Time) *Evaluator {
	e2 := *e
	e2.frozenNow = t
	return &e2
}

// NewEvaluator returns an Evaluator usable outside of Match, e.g. for
// pkg/constraint and pkg/rule re-evaluating a condition against an already
// matched binding set.
func NewEvaluator(ctx context.Context, g *glyph.Graph, cfg config.Engine) *Evaluator {
	return &Evaluator{g: g, reg: g.Registry(), cfg: cfg, ctx: ctx}
}

func (e *Evaluator) Eval(expr ast.Expr, b pool.Bindings) (values.Value, error) {
	switch n := expr.(type) {
	case ast.Literal:
		return literalValue(n)
	case ast.Ident:
		if v, ok := b[n.Name]; ok {
			return v, nil
		}
		return values.Null, mewerr.NotFound("variable", n.Name)
	case ast.ParamRef:
		if v, ok := e.Params[n.Name]; ok {
			return v, nil
		}
		return values.Null, mewerr.NotFound("parameter", n.Name)
	case ast.AttrAccess:
		return e.evalAttrAccess(n, b)
	case ast.UnaryExpr:
		return e.evalUnary(n, b)
	case ast.BinaryExpr:
		return e.evalBinary(n, b)
	case ast.FuncCall:
		return e.evalFuncCall(n, b)
	case ast.AggregateExpr:
		return e.evalAggregateScalar(n, b)
	case ast.ExistsExpr:
		return e.evalExists(n, b)
	default:
		return values.Null, mewerr.Internal("pattern: unrecognized expression node")
	}
}

func literalValue(lit ast.Literal) (values.Value, error) {
	switch lit.Kind {
	case ast.LitNull:
		return values.Null, nil
	case ast.LitString:
		return values.NewString(lit.Raw.(string)), nil
	case ast.LitInt:
		return values.NewInt(lit.Raw.(int64)), nil
	case ast.LitFloat:
		return values.NewFloat(lit.Raw.(float64)), nil
	case ast.LitBool:
		return values.NewBool(lit.Raw.(bool)), nil
	case ast.LitTimestamp:
		return values.NewTimestamp(lit.Raw.(time.Time)), nil
	case ast.LitDuration:
		d := lit.Raw.(time.Duration)
		return values.NewInt(int64(d)), nil
	default:
		return values.Null, mewerr.Internal("pattern: unrecognized literal kind")
	}
}

func (e *Evaluator) evalAttrAccess(n ast.AttrAccess, b pool.Bindings) (values.Value, error) {
	v, ok := b[n.Var]
	if !ok {
		return values.Null, mewerr.NotFound("variable", n.Var)
	}
	if v.IsNull() {
		// A NULL-filled OPTIONAL MATCH variable propagates NULL through
		// attribute access.
		return values.Null, nil
	}
	if v.Kind() != values.KindID {
		return values.Null, mewerr.TypeMismatch("glyph reference", v.Kind().String())
	}
	attr, found, err := e.g.Attr(v.AsID(), n.Attr)
	if err != nil {
		return values.Null, err
	}
	if !found {
		return values.Null, nil
	}
	return attr, nil
}

func (e *Evaluator) evalUnary(n ast.UnaryExpr, b pool.Bindings) (values.Value, error) {
	v, err := e.Eval(n.Operand, b)
	if err != nil {
		return values.Null, err
	}
	switch n.Op {
	case ast.OpNot:
		if v.Kind() != values.KindBool {
			return values.Null, mewerr.TypeMismatch("Bool", v.Kind().String())
		}
		return values.NewBool(!v.AsBool()), nil
	case ast.OpNeg:
		switch v.Kind() {
		case values.KindInt:
			return values.NewInt(-v.AsInt()), nil
		case values.KindFloat:
			return values.NewFloat(-v.AsFloat()), nil
		default:
			return values.Null, mewerr.TypeMismatch("Int or Float", v.Kind().String())
		}
	default:
		return values.Null, mewerr.Internal("pattern: unrecognized unary operator")
	}
}

func (e *Evaluator) evalBinary(n ast.BinaryExpr, b pool.Bindings) (values.Value, error) {
	if n.Op == ast.OpAnd || n.Op == ast.OpOr {
		lhs, err := e.Eval(n.Lhs, b)
		if err != nil {
			return values.Null, err
		}
		if lhs.Kind() != values.KindBool {
			return values.Null, mewerr.TypeMismatch("Bool", lhs.Kind().String())
		}
		if n.Op == ast.OpAnd && !lhs.AsBool() {
			return values.NewBool(false), nil
		}
		if n.Op == ast.OpOr && lhs.AsBool() {
			return values.NewBool(true), nil
		}
		rhs, err := e.Eval(n.Rhs, b)
		if err != nil {
			return values.Null, err
		}
		if rhs.Kind() != values.KindBool {
			return values.Null, mewerr.TypeMismatch("Bool", rhs.Kind().String())
		}
		return rhs, nil
	}

	if n.Op == ast.OpIn {
		return e.evalIn(n, b)
	}

	// `expr = null` / `expr != null` are MEW's null tests (compiled
	// validator constraints rely on them: `x: T where x.A = null =>
	// false`), not SQL's always-unknown comparison.
	if n.Op == ast.OpEq || n.Op == ast.OpNeq {
		if other, ok := nullComparand(n); ok {
			v, err := e.Eval(other, b)
			if err != nil {
				return values.Null, err
			}
			isNull := v.IsNull()
			if n.Op == ast.OpNeq {
				isNull = !isNull
			}
			return values.NewBool(isNull), nil
		}
	}

	lhs, err := e.Eval(n.Lhs, b)
	if err != nil {
		return values.Null, err
	}
	rhs, err := e.Eval(n.Rhs, b)
	if err != nil {
		return values.Null, err
	}

	switch n.Op {
	case ast.OpEq:
		return values.NewBool(lhs.Equal(rhs)), nil
	case ast.OpNeq:
		return values.NewBool(!lhs.Equal(rhs) && !lhs.IsNull() && !rhs.IsNull()), nil
	case ast.OpLt:
		return values.NewBool(!lhs.IsNull() && !rhs.IsNull() && lhs.Compare(rhs) < 0), nil
	case ast.OpLte:
		return values.NewBool(!lhs.IsNull() && !rhs.IsNull() && lhs.Compare(rhs) <= 0), nil
	case ast.OpGt:
		return values.NewBool(!lhs.IsNull() && !rhs.IsNull() && lhs.Compare(rhs) > 0), nil
	case ast.OpGte:
		return values.NewBool(!lhs.IsNull() && !rhs.IsNull() && lhs.Compare(rhs) >= 0), nil
	case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv:
		return evalArith(n.Op, lhs, rhs)
	case ast.OpMatch:
		return matchOperator(lhs, rhs)
	default:
		return values.Null, mewerr.Internal("pattern: unrecognized binary operator")
	}
}

// nullComparand returns the non-null side of an `expr = null` comparison,
// if either side is a literal null.
func nullComparand(n ast.BinaryExpr) (ast.Expr, bool) {
	if lit, ok := n.Rhs.(ast.Literal); ok && lit.Kind == ast.LitNull {
		return n.Lhs, true
	}
	if lit, ok := n.Lhs.(ast.Literal); ok && lit.Kind == ast.LitNull {
		return n.Rhs, true
	}
	return nil, false
}

func evalArith(op ast.BinaryOp, lhs, rhs values.Value) (values.Value, error) {
	if lhs.Kind() == values.KindInt && rhs.Kind() == values.KindInt {
		a, b := lhs.AsInt(), rhs.AsInt()
		switch op {
		case ast.OpAdd:
			return values.NewInt(a + b), nil
		case ast.OpSub:
			return values.NewInt(a - b), nil
		case ast.OpMul:
			return values.NewInt(a * b), nil
		case ast.OpDiv:
			if b == 0 {
				return values.Null, mewerr.New("E3003", "type", "division by zero")
			}
			return values.NewInt(a / b), nil
		}
	}
	a, aok := convert.ToFloat64(scalarAny(lhs))
	b, bok := convert.ToFloat64(scalarAny(rhs))
	if !aok || !bok {
		return values.Null, mewerr.TypeMismatch("Int or Float", lhs.Kind().String()+"/"+rhs.Kind().String())
	}
	switch op {
	case ast.OpAdd:
		return values.NewFloat(a + b), nil
	case ast.OpSub:
		return values.NewFloat(a - b), nil
	case ast.OpMul:
		return values.NewFloat(a * b), nil
	case ast.OpDiv:
		if b == 0 {
			return values.Null, mewerr.New("E3003", "type", "division by zero")
		}
		return values.NewFloat(a / b), nil
	}
	return values.Null, mewerr.Internal("pattern: unrecognized arithmetic operator")
}

func scalarAny(v values.Value) any {
	switch v.Kind() {
	case values.KindInt:
		return v.AsInt()
	case values.KindFloat:
		return v.AsFloat()
	case values.KindString:
		return v.AsString()
	default:
		return nil
	}
}

func matchOperator(lhs, rhs values.Value) (values.Value, error) {
	if lhs.Kind() != values.KindString || rhs.Kind() != values.KindString {
		return values.Null, mewerr.TypeMismatch("String", "non-string operand to match")
	}
	re, err := regexp.Compile(rhs.AsString())
	if err != nil {
		return values.Null, mewerr.Syntax("invalid regular expression in match operand: " + err.Error())
	}
	return values.NewBool(re.MatchString(lhs.AsString())), nil
}

// evalIn implements `lhs in rhs`. GQL has no list-literal syntax and
// values.Value carries no list Kind, so
// rhs is required to be a correlated collect(...) aggregate, evaluated
// internally to a []values.Value never materialized as a single Value.
func (e *Evaluator) evalIn(n ast.BinaryExpr, b pool.Bindings) (values.Value, error) {
	lhs, err := e.Eval(n.Lhs, b)
	if err != nil {
		return values.Null, err
	}
	list, err := e.evalList(n.Rhs, b)
	if err != nil {
		return values.Null, err
	}
	for _, item := range list {
		if lhs.Equal(item) {
			return values.NewBool(true), nil
		}
	}
	return values.NewBool(false), nil
}

// evalList evaluates an IN right-hand side to a slice of Values. The only
// supported shape is a collect(...) aggregate; __in_set's string-literal
// arguments (the [in:...] attribute modifier's compiled form) are handled
// separately in evalFuncCall since they never carry a sub-pattern.
func (e *Evaluator) evalList(expr ast.Expr, b pool.Bindings) ([]values.Value, error) {
	agg, ok := expr.(ast.AggregateExpr)
	if !ok || agg.Fn != "collect" {
		return nil, mewerr.Syntax("IN requires a collect(...) aggregate on its right-hand side")
	}
	return e.evalCollect(agg, b)
}

func (e *Evaluator) evalCollect(agg ast.AggregateExpr, b pool.Bindings) ([]values.Value, error) {
	rows, err := Match(e.ctx, e.g, agg.Pattern, b, e.cfg)
	if err != nil {
		return nil, err
	}
	limit := e.cfg.MaxCollectSize
	out := make([]values.Value, 0, len(rows))
	for _, row := range rows {
		v, err := e.Eval(agg.Project, row)
		if err != nil {
			return nil, err
		}
		if limit > 0 && len(out) >= limit {
			return nil, mewerr.CollectOverflow(limit)
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *Evaluator) evalFuncCall(n ast.FuncCall, b pool.Bindings) (values.Value, error) {
	switch n.Name {
	case "__in_set":
		return e.evalInSet(n, b)
	case "__matches":
		return e.evalMatches(n, b)
	case "now":
		if !e.frozenNow.IsZero() {
			return values.NewTimestamp(e.frozenNow), nil
		}
		return values.NewTimestamp(time.Now()), nil
	case "coalesce":
		return e.evalCoalesce(n, b)
	case "length":
		return e.evalLength(n, b)
	default:
		return values.Null, mewerr.NotFound("function", n.Name)
	}
}

// evalInSet implements the compiled form of the [in:["a","b",...]] attribute
// modifier (pkg/compiler/modifiers.go's addAttrValidator): args[0] is the
// attribute access, the rest are string literals forming the allowed set.
func (e *Evaluator) evalInSet(n ast.FuncCall, b pool.Bindings) (values.Value, error) {
	if len(n.Args) < 1 {
		return values.Null, mewerr.Internal("pattern: __in_set requires at least one argument")
	}
	subject, err := e.Eval(n.Args[0], b)
	if err != nil {
		return values.Null, err
	}
	var set []string
	for _, arg := range n.Args[1:] {
		lit, ok := arg.(ast.Literal)
		if !ok || lit.Kind != ast.LitString {
			return values.Null, mewerr.Internal("pattern: __in_set's set members must be string literals")
		}
		set = append(set, lit.Raw.(string))
	}
	for _, s := range convert.ToStringSlice(set) {
		if subject.Kind() == values.KindString && subject.AsString() == s {
			return values.NewBool(true), nil
		}
	}
	return values.NewBool(false), nil
}

// evalMatches implements the compiled form of the [match:"regex"] attribute
// modifier: args[0] is the attribute access, args[1] the pattern literal.
func (e *Evaluator) evalMatches(n ast.FuncCall, b pool.Bindings) (values.Value, error) {
	if len(n.Args) != 2 {
		return values.Null, mewerr.Internal("pattern: __matches requires exactly two arguments")
	}
	subject, err := e.Eval(n.Args[0], b)
	if err != nil {
		return values.Null, err
	}
	lit, ok := n.Args[1].(ast.Literal)
	if !ok || lit.Kind != ast.LitString {
		return values.Null, mewerr.Internal("pattern: __matches's pattern argument must be a string literal")
	}
	if subject.Kind() != values.KindString {
		return values.NewBool(false), nil
	}
	re, err := regexp.Compile(lit.Raw.(string))
	if err != nil {
		return values.Null, mewerr.Syntax("invalid regular expression in match modifier: " + err.Error())
	}
	return values.NewBool(re.MatchString(subject.AsString())), nil
}

func (e *Evaluator) evalCoalesce(n ast.FuncCall, b pool.Bindings) (values.Value, error) {
	for _, arg := range n.Args {
		v, err := e.Eval(arg, b)
		if err != nil {
			return values.Null, err
		}
		if !v.IsNull() {
			return v, nil
		}
	}
	return values.Null, nil
}

func (e *Evaluator) evalLength(n ast.FuncCall, b pool.Bindings) (values.Value, error) {
	if len(n.Args) != 1 {
		return values.Null, mewerr.Internal("pattern: length requires exactly one argument")
	}
	v, err := e.Eval(n.Args[0], b)
	if err != nil {
		return values.Null, err
	}
	if v.Kind() != values.KindString {
		return values.Null, mewerr.TypeMismatch("String", v.Kind().String())
	}
	return values.NewInt(int64(len(v.AsString()))), nil
}

// evalAggregateScalar evaluates an AggregateExpr used as an ordinary scalar
// (e.g. `return count(...)`), as opposed to evalList's use of collect(...)
// inside IN. count() has a well-defined scalar value; collect() does not
// since values.Value carries no list Kind, so it is rejected here with a
// pointer at the one place it is supported.
func (e *Evaluator) evalAggregateScalar(agg ast.AggregateExpr, b pool.Bindings) (values.Value, error) {
	switch agg.Fn {
	case "count":
		rows, err := Match(e.ctx, e.g, agg.Pattern, b, e.cfg)
		if err != nil {
			return values.Null, err
		}
		return values.NewInt(int64(len(rows))), nil
	case "collect":
		return values.Null, mewerr.Syntax("collect(...) may only appear as the right-hand side of IN")
	default:
		return values.Null, mewerr.NotFound("aggregate function", agg.Fn)
	}
}

func (e *Evaluator) evalExists(ex ast.ExistsExpr, b pool.Bindings) (values.Value, error) {
	rows, err := Match(e.ctx, e.g, ex.Pattern, b, e.cfg)
	if err != nil {
		return values.Null, err
	}
	found := len(rows) > 0
	if ex.Negated {
		found = !found
	}
	return values.NewBool(found), nil
}
