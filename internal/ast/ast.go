// Package ast defines a parsed-statement tree rich enough to carry the
// SELECT-clause grammar and the session/transaction statements spec §6
// names, standing in for the query text parser/AST spec §1 lists as an
// out-of-scope, consumed-only collaborator. internal/plan and
// internal/exec consume this tree; nothing in this module tokenizes or
// parses query text.
package ast

import (
	"time"

	"github.com/surrealkv/surqlcore/internal/expr"
)

// StatementKind discriminates the Statement union.
type StatementKind int

const (
	KindSelect StatementKind = iota
	KindCreate
	KindUpdate
	KindUpsert
	KindDelete
	KindInsert
	KindRelate
	KindUse
	KindLet
	KindBegin
	KindCommit
	KindCancel
)

// SelectField is one projected field: an expression plus its output
// alias (empty means "use the expression's rendered idiom as the key").
type SelectField struct {
	Expr  *expr.Expr
	Alias string
}

// OrderTerm is one ORDER BY key.
type OrderTerm struct {
	Key       *expr.Idiom
	Desc      bool
	NullsLast bool
	Numeric   bool
	Rand      bool
}

// Select carries every clause spec §6's SELECT grammar lists, in the
// syntactic order given there.
type Select struct {
	Value     bool // SELECT VALUE
	Fields    []SelectField
	Omit      []*expr.Idiom
	Only      bool
	From      []*expr.Expr // each resolves to a table name, record-id, or param
	WithIndex []string
	Where     *expr.Expr
	Split     []*expr.Idiom
	GroupBy   []*expr.Idiom
	OrderBy   []OrderTerm
	Limit     *expr.Expr
	Start     *expr.Expr
	Fetch     []*expr.Idiom
	Version   *expr.Expr
	Timeout   *time.Duration
	Parallel  bool
	Explain   bool
	ExplainFull bool
}

// ContentMode selects how Content is folded into a record: REPLACE
// throws out the existing fields entirely, MERGE/SET fold Content's
// fields into whatever is already stored.
type ContentMode int

const (
	ContentMerge ContentMode = iota
	ContentReplace
)

// ReturnMode selects what a mutation statement yields per row.
type ReturnMode int

const (
	ReturnAfter ReturnMode = iota
	ReturnBefore
	ReturnNone
	ReturnDiff
)

// Mutation carries the shared shape of CREATE/UPDATE/UPSERT/DELETE/INSERT:
// a set of targets plus optional content to merge/replace, and an
// optional WHERE narrowing which existing rows of a table target are
// touched (UPDATE/UPSERT/DELETE over a bare table).
type Mutation struct {
	Targets []*expr.Expr
	Content *expr.Expr // object expression; nil for plain DELETE
	Mode    ContentMode
	Where   *expr.Expr
	Return  ReturnMode
	Only    bool
}

// Relate carries a graph-edge creation statement: RELATE from->edge->to.
type Relate struct {
	From    *expr.Expr
	Edge    string
	To      *expr.Expr
	Content *expr.Expr
	Return  ReturnMode
}

// Use is `USE NS <name> [DB <name>]`.
type Use struct {
	Namespace *string
	Database  *string
}

// Let is `LET $name = <expr>`.
type Let struct {
	Name  string
	Value *expr.Expr
}

// Statement is a tagged union over every statement kind this engine
// executes. Only one of the payload fields is populated, matching Kind.
type Statement struct {
	Kind StatementKind

	Select   *Select
	Mutation *Mutation
	Relate   *Relate
	Use      *Use
	Let      *Let

	// ContextSource/WaitFor name the statements (by index in the
	// enclosing script) this one depends on, per spec §4.5's DAG.
	ContextSource int
	WaitFor       []int
}
