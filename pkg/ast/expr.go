package ast

// Expr is any scalar-valued expression: an identifier, attribute access, a
// literal, a unary/binary operator application, a function call
// (COALESCE/COUNT/COLLECT/now()/...), a parameter reference, or an
// EXISTS/aggregate sub-pattern. WHERE conditions, constraint conditions, and
// SET right-hand sides are all Expr.
type Expr interface {
	exprNode()
	Position() Span
}

type Base struct{ Span Span }

func (b Base) Position() Span { return b.Span }

// Ident is a bare pattern-variable reference, e.g. `x` in `x.name`.
type Ident struct {
	Base
	Name string
}

func (Ident) exprNode() {}

// AttrAccess is `Var.Attr`.
type AttrAccess struct {
	Base
	Var  string
	Attr string
}

func (AttrAccess) exprNode() {}

// LiteralKind distinguishes the raw literal forms the lexer can produce,
// prior to the analyzer resolving them against a declared attribute Kind.
type LiteralKind int

const (
	LitNull LiteralKind = iota
	LitString
	LitInt
	LitFloat
	LitBool
	LitTimestamp
	LitDuration
)

// Literal is a literal value exactly as written in source.
type Literal struct {
	Base
	Kind LiteralKind
	Raw  any // string, int64, float64, bool, time.Time, time.Duration
}

func (Literal) exprNode() {}

// ParamRef is a `$name` bind-parameter reference.
type ParamRef struct {
	Base
	Name string
}

func (ParamRef) exprNode() {}

// BinaryOp enumerates the binary operators the grammar supports. Control
// flow is deliberately NOT extended with IF/CASE; the
// only conditional-like construct is the COALESCE function and
// rule-pattern partitioning.
type BinaryOp int

const (
	OpEq BinaryOp = iota
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpAnd
	OpOr
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpIn
	OpMatch // regex match
)

// BinaryExpr is `lhs OP rhs`.
type BinaryExpr struct {
	Base
	Op       BinaryOp
	Lhs, Rhs Expr
}

func (BinaryExpr) exprNode() {}

// UnaryOp enumerates unary operators.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpNeg
)

// UnaryExpr is `OP operand`.
type UnaryExpr struct {
	Base
	Op      UnaryOp
	Operand Expr
}

func (UnaryExpr) exprNode() {}

// FuncCall is a named function application: now(), COALESCE(a,b,...),
// COUNT(...), COLLECT(...), length(...), etc. Aggregate functions used
// bare over the outer pattern are distinguished from the correlated
// aggregate-in-WHERE form (AggregateExpr) at the analyzer stage.
type FuncCall struct {
	Base
	Name string
	Args []Expr
}

func (FuncCall) exprNode() {}

// AggregateExpr is a correlated aggregate appearing inside WHERE, e.g.
// `COUNT(p: Person, assigned_to(t, p)) > 2`: an inner pattern executed with
// the outer bindings held as correlated constants.
type AggregateExpr struct {
	Base
	Fn      string
	Pattern *Pattern
	Project Expr // the expression aggregated per inner binding; nil for COUNT(*)-style
}

func (AggregateExpr) exprNode() {}

// ExistsExpr is an EXISTS/NOT EXISTS sub-pattern.
type ExistsExpr struct {
	Base
	Negated bool
	Pattern *Pattern
}

func (ExistsExpr) exprNode() {}
