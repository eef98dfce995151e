// Package mewerr implements MEW's structured error taxonomy: E1xxx syntax,
// E2xxx constraint violation, E3xxx type error, E4xxx not found, E5xxx
// limit/performance, E6xxx reserved, E9xxx internal. Every error is both
// machine-parsable (Code, Category) and human-actionable (Message plus at
// least one Hint), carried by a struct that satisfies the standard `error`
// interface and participates in errors.Is/errors.As.
package mewerr

import (
	"fmt"
)

// Category groups error codes by their leading digit.
type Category string

const (
	CategorySyntax     Category = "syntax"
	CategoryConstraint Category = "constraint"
	CategoryType       Category = "type"
	CategoryNotFound   Category = "not_found"
	CategoryLimit      Category = "limit"
	CategoryReserved   Category = "reserved"
	CategoryInternal   Category = "internal"
)

// Location is a source span for syntax/analysis errors.
type Location struct {
	Line   int
	Column int
	Snippet string
}

// Error is MEW's structured, boundary-visible error type.
type Error struct {
	Code     string   // e.g. "E2003"
	Category Category
	Message  string
	Location *Location
	Fields   map[string]any
	Hints    []string
	cause    error
}

func (e *Error) Error() string {
	if e.Location != nil {
		return fmt.Sprintf("%s %s: %s (line %d col %d)", e.Code, e.Category, e.Message, e.Location.Line, e.Location.Column)
	}
	return fmt.Sprintf("%s %s: %s", e.Code, e.Category, e.Message)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// New builds an Error with the given code/category/message and at least one
// hint (callers should always supply one; it is not enforced here to avoid
// panicking deep inside a hot path).
func New(code string, cat Category, message string, hints ...string) *Error {
	return &Error{Code: code, Category: cat, Message: message, Hints: hints}
}

// Wrap attaches a cause to an Error for errors.Is/errors.As chains.
func (e *Error) Wrap(cause error) *Error {
	e2 := *e
	e2.cause = cause
	return &e2
}

// WithLocation attaches a source span.
func (e *Error) WithLocation(line, col int, snippet string) *Error {
	e2 := *e
	e2.Location = &Location{Line: line, Column: col, Snippet: snippet}
	return &e2
}

// WithField attaches a contextual field (glyph id, constraint name, ...).
func (e *Error) WithField(key string, val any) *Error {
	e2 := *e
	if e2.Fields == nil {
		e2.Fields = map[string]any{}
	} else {
		f := make(map[string]any, len(e2.Fields)+1)
		for k, v := range e2.Fields {
			f[k] = v
		}
		e2.Fields = f
	}
	e2.Fields[key] = val
	return &e2
}

// Well-known error constructors.

func Syntax(message string, hints ...string) *Error {
	return New("E1000", CategorySyntax, message, hints...)
}

func ConstraintViolation(constraintName string, binding string, condition string) *Error {
	return New("E2000", CategoryConstraint,
		fmt.Sprintf("constraint %q violated", constraintName),
		"the binding "+binding+" fails condition: "+condition,
	).WithField("constraint", constraintName)
}

func AcyclicViolation(edgeTypeName string) *Error {
	return New("E2003", CategoryConstraint,
		fmt.Sprintf("edge type %q would form a cycle", edgeTypeName),
		"remove the edge that closes the cycle, or drop [acyclic]",
	).WithField("edge_type", edgeTypeName)
}

func CardinalityViolation(edgeTypeName, position string, got, min, max int) *Error {
	return New("E2004", CategoryConstraint,
		fmt.Sprintf("position %s of %q has %d incident edges, want %d..%d", position, edgeTypeName, got, min, max),
		"add or remove LINKs until the position's cardinality is satisfied",
	).WithField("edge_type", edgeTypeName)
}

func TypeMismatch(expected, got string) *Error {
	return New("E3000", CategoryType,
		fmt.Sprintf("expected %s, got %s", expected, got),
		"check the declared type against the value provided",
	)
}

func EdgeSignatureMismatch(edgeTypeName string, position int, expected, got string) *Error {
	return New("E3001", CategoryType,
		fmt.Sprintf("%s position %d expects %s, got %s", edgeTypeName, position, expected, got),
		"verify the target's runtime type is a subtype of the declared position type",
	).WithField("edge_type", edgeTypeName)
}

func NotFound(kind, name string) *Error {
	return New("E4000", CategoryNotFound,
		fmt.Sprintf("%s %q not found", kind, name),
		"check spelling and that the ontology declaring it was loaded",
	)
}

func DepthLimitExceeded(limit int) *Error {
	return New("E5001", CategoryLimit,
		fmt.Sprintf("transitive closure truncated at depth %d", limit),
		"raise engine.max_transitive_depth or narrow the pattern",
	)
}

func Timeout(d string) *Error {
	return New("E5002", CategoryLimit,
		fmt.Sprintf("statement exceeded its timeout (%s)", d),
		"raise the TIMEOUT clause or add a more selective WHERE/index",
	)
}

func TransitiveStepsExceeded(limit int) *Error {
	return New("E5009", CategoryLimit,
		fmt.Sprintf("transitive traversal exceeded engine.max_transitive_steps (%d)", limit),
		"narrow the pattern with a type or WHERE filter, or raise engine.max_transitive_steps",
	)
}

func CollectOverflow(limit int) *Error {
	return New("E5003", CategoryLimit,
		fmt.Sprintf("COLLECT exceeded engine.max_collect_size (%d)", limit),
		"add an explicit [limit: n] to the aggregate, or raise engine.max_collect_size",
	)
}

func CascadeDepthExceeded(limit int) *Error {
	return New("E5004", CategoryLimit,
		fmt.Sprintf("cascade chain exceeded depth limit %d", limit),
		"raise engine.cascade_depth_limit; KILL ... FORCE does not lift the depth limit",
	)
}

func CascadeCountExceeded(limit int) *Error {
	return New("E5005", CategoryLimit,
		fmt.Sprintf("cascade chain exceeded action count limit %d", limit),
		"raise engine.max_cascade_count, or use KILL ... CASCADE FORCE",
	)
}

func ActionBudgetExceeded(limit int) *Error {
	return New("E5006", CategoryLimit,
		fmt.Sprintf("rule engine exceeded action_limit (%d) before reaching a fixpoint", limit),
		"check for rules that keep re-triggering each other",
	)
}

func RuleDepthExceeded(limit int) *Error {
	return New("E5007", CategoryLimit,
		fmt.Sprintf("rule-triggers-rule nesting exceeded depth_limit (%d)", limit),
		"check for mutually recursive rules",
	)
}

func Internal(message string) *Error {
	return New("E9000", CategoryInternal, message, "this is a bug in the kernel, not user input")
}

func Reserved(message string) *Error {
	return New("E6000", CategoryReserved, message, "this syntax is reserved for a future extension")
}
