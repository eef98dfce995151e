package ast

import (
	"fmt"
	"strings"
	"time"
)

// ExprString renders an expression in GQL surface syntax. It is used for
// result column names (a projection without an AS alias is labeled by its
// source text), EXPLAIN detail lines, and the Layer-0 pattern description
// glyphs. The rendering round-trips through the parser for all expression
// forms the grammar can produce.
func ExprString(e Expr) string {
	switch n := e.(type) {
	case nil:
		return ""
	case Ident:
		return n.Name
	case AttrAccess:
		return n.Var + "." + n.Attr
	case ParamRef:
		return "$" + n.Name
	case Literal:
		return literalString(n)
	case UnaryExpr:
		if n.Op == OpNot {
			return "not " + ExprString(n.Operand)
		}
		return "-" + ExprString(n.Operand)
	case BinaryExpr:
		return ExprString(n.Lhs) + " " + binaryOpString(n.Op) + " " + ExprString(n.Rhs)
	case FuncCall:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = ExprString(a)
		}
		return n.Name + "(" + strings.Join(args, ", ") + ")"
	case AggregateExpr:
		inner := n.Pattern.String()
		if n.Project != nil {
			return n.Fn + "(" + inner + " : " + ExprString(n.Project) + ")"
		}
		return n.Fn + "(" + inner + ")"
	case ExistsExpr:
		kw := "exists"
		if n.Negated {
			kw = "not exists"
		}
		return kw + " { " + n.Pattern.String() + " }"
	default:
		return "<expr>"
	}
}

func literalString(n Literal) string {
	switch n.Kind {
	case LitNull:
		return "null"
	case LitString:
		return fmt.Sprintf("%q", n.Raw.(string))
	case LitInt:
		return fmt.Sprintf("%d", n.Raw.(int64))
	case LitFloat:
		return fmt.Sprintf("%g", n.Raw.(float64))
	case LitBool:
		return fmt.Sprintf("%t", n.Raw.(bool))
	case LitTimestamp:
		return "@" + n.Raw.(time.Time).UTC().Format("2006-01-02T15:04:05.000Z")
	case LitDuration:
		d := n.Raw.(time.Duration)
		return fmt.Sprintf("%d.seconds", int64(d/time.Second))
	default:
		return "<literal>"
	}
}

func binaryOpString(op BinaryOp) string {
	switch op {
	case OpEq:
		return "="
	case OpNeq:
		return "!="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpIn:
		return "in"
	case OpMatch:
		return "match"
	default:
		return "?"
	}
}

// String renders a pattern in GQL surface syntax: node elements first, then
// edge elements, then the WHERE clause.
func (p *Pattern) String() string {
	if p == nil {
		return ""
	}
	var parts []string
	for _, np := range p.Nodes {
		if np.Type != "" {
			parts = append(parts, np.Var+": "+np.Type)
		} else {
			parts = append(parts, np.Var)
		}
	}
	for _, ep := range p.Edges {
		s := ep.EdgeType
		switch ep.Transitive {
		case TransitivePlus:
			s += "+"
		case TransitiveStar:
			s += "*"
		}
		s += "(" + strings.Join(ep.Positions, ", ")
		if ep.Alias != "" {
			s += " as " + ep.Alias
		}
		s += ")"
		if ep.HasDepth {
			s += fmt.Sprintf("[depth:%d..%d]", ep.MinDepth, ep.MaxDepth)
		}
		parts = append(parts, s)
	}
	out := strings.Join(parts, ", ")
	if p.Where != nil {
		out += " where " + ExprString(p.Where)
	}
	return out
}
