// Package expr implements the physical expression tree spec §4.2
// describes: a tagged-union node evaluated against a row context,
// producing a value or one of the Break/Continue/Return/Err control-flow
// signals. It consumes, but does not implement, the built-in function
// library and the query text parser/AST — both are named only by their
// interfaces in spec §1.
package expr

import (
	"github.com/surrealkv/surqlcore/internal/session"
	"github.com/surrealkv/surqlcore/internal/value"
)

// Kind discriminates the Expr union.
type Kind int

const (
	KindLiteral Kind = iota
	KindParam
	KindIdiom
	KindBinary
	KindUnary
	KindRecordID
	KindRange
	KindClosure
	KindCall
	KindSubquery
)

// BinaryOp is the set of supported binary operators. Arithmetic uses the
// wider operand's numeric type (int < float < decimal) per spec §4.2.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpAnd
	OpOr
	OpContains
	OpInside
)

// UnaryOp is the set of supported prefix/postfix unary operators.
type UnaryOp int

const (
	OpNeg UnaryOp = iota
	OpNot
)

// Closure is a parameter-bound sub-expression, used by WHERE predicates
// and by higher-order idiom parts like where(...).
type Closure struct {
	Param string
	Body  *Expr
}

// Call is a function-call node: name plus positional argument
// expressions. Dispatch is delegated to the EvalContext's Functions
// collaborator; expr never implements a function itself.
type Call struct {
	Name string
	Args []*Expr
}

// SubqueryRunner is implemented by internal/plan's operator tree so that
// expr can hold a subquery node without importing plan (which itself
// imports expr).
type SubqueryRunner interface {
	Run(ctx *EvalContext) ([]value.Value, error)
}

// Expr is a physical expression node. It is a tagged union rather than an
// interface hierarchy so idiom/plan code can pattern-match on Kind
// without a type-switch per variant.
type Expr struct {
	Kind Kind

	Literal value.Value // KindLiteral
	Param   string       // KindParam

	Idiom *Idiom // KindIdiom

	BinOp BinaryOp // KindBinary
	Left  *Expr
	Right *Expr

	UnOp    UnaryOp // KindUnary
	Operand *Expr

	RecordID *value.RecordID // KindRecordID
	Range    *value.Range    // KindRange

	Closure *Closure // KindClosure
	Call    *Call    // KindCall

	Subquery SubqueryRunner // KindSubquery
}

// Literal constructs a literal-value expression.
func Lit(v value.Value) *Expr { return &Expr{Kind: KindLiteral, Literal: v} }

// ParamRef constructs a parameter-lookup expression.
func ParamRef(name string) *Expr { return &Expr{Kind: KindParam, Param: name} }

func IdiomExpr(i *Idiom) *Expr { return &Expr{Kind: KindIdiom, Idiom: i} }

func Binary(op BinaryOp, left, right *Expr) *Expr {
	return &Expr{Kind: KindBinary, BinOp: op, Left: left, Right: right}
}

func Unary(op UnaryOp, operand *Expr) *Expr {
	return &Expr{Kind: KindUnary, UnOp: op, Operand: operand}
}

func RecordIDLit(r *value.RecordID) *Expr { return &Expr{Kind: KindRecordID, RecordID: r} }

func RangeLit(r *value.Range) *Expr { return &Expr{Kind: KindRange, Range: r} }

func ClosureExpr(param string, body *Expr) *Expr {
	return &Expr{Kind: KindClosure, Closure: &Closure{Param: param, Body: body}}
}

func CallExpr(name string, args ...*Expr) *Expr {
	return &Expr{Kind: KindCall, Call: &Call{Name: name, Args: args}}
}

func SubqueryExpr(r SubqueryRunner) *Expr { return &Expr{Kind: KindSubquery, Subquery: r} }

// FunctionDispatcher is the consumed "built-in function library"
// collaborator: synchronous/asynchronous function dispatch by name with
// typed arguments, spec §1.
type FunctionDispatcher interface {
	Call(ctx *EvalContext, name string, args []value.Value) (value.Value, error)
}

// RecordLoader resolves record-ids and graph edges against the catalog
// and transaction. expr depends on it only through this interface so
// that neither internal/catalog nor internal/kv needs to import expr;
// internal/plan supplies the concrete implementation.
type RecordLoader interface {
	LoadRecord(ctx *EvalContext, rid *value.RecordID) (value.Value, bool, error)
	LoadGraph(ctx *EvalContext, from *value.RecordID, dir GraphDirection, table string, filter *Expr) ([]value.Value, error)
}

// EvalContext is the row context an Expr evaluates against: the session
// execution context (namespace/database/parameters/transaction) plus the
// current document ($this), its parent in a nested/grouped evaluation
// ($parent), and the function dispatcher.
type EvalContext struct {
	Session   session.ExecutionContext
	Current   value.Value
	Parent    *value.Value
	Functions FunctionDispatcher
	Loader    RecordLoader
}

// WithCurrent returns a copy of ctx with a new current-row value, used
// when descending into a nested evaluation frame (e.g. a where(...)
// predicate evaluated with the array element as $this).
func (c EvalContext) WithCurrent(v value.Value) EvalContext {
	next := c
	next.Current = v
	return next
}

// WithParent returns a copy of ctx recording the outer row as $parent,
// used when entering a grouped/aggregated-row frame.
func (c EvalContext) WithParent(v value.Value) EvalContext {
	parent := v
	next := c
	next.Parent = &parent
	return next
}
