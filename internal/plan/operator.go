// Package plan implements the physical operator tree and planner spec
// §4.3 describes: a push-based, batched streaming pipeline with a
// declared access mode and required context level, built from a parsed
// statement by internal/ast's tree.
package plan

import (
	"context"
	"iter"

	"github.com/surrealkv/surqlcore/internal/catalog"
	"github.com/surrealkv/surqlcore/internal/expr"
	"github.com/surrealkv/surqlcore/internal/flowerr"
	"github.com/surrealkv/surqlcore/internal/seq"
	"github.com/surrealkv/surqlcore/internal/session"
	"github.com/surrealkv/surqlcore/internal/value"
)

// AccessMode is derived recursively from an operator's children and
// expressions: a SELECT containing a write subquery is ReadWrite.
type AccessMode int

const (
	ReadOnly AccessMode = iota
	ReadWrite
)

// Batch is the unit operators pass upward: a slice of rows.
type Batch = []value.Value

// Stream is the async-looking but synchronously-iterated push channel an
// operator's Execute returns; range-over-func gives every operator the
// same "yield a batch, stop on false" shape as the teacher's own
// streaming reconciler loops, without a goroutine per operator.
type Stream = iter.Seq[flowerr.Result[Batch]]

// Operator is the contract every pipeline node implements.
type Operator interface {
	Name() string
	RequiredContext() session.Level
	AccessMode() AccessMode
	Children() []Operator
	Execute(ctx context.Context, ectx *session.ExecutionContext) Stream
}

// ContextMutator is implemented by operators that change session state
// for their output (USE-like semantics); LetPlan is the only Operator in
// the catalog table that does this.
type ContextMutator interface {
	OutputContext(input session.ExecutionContext) session.ExecutionContext
}

// single yields exactly one batch, then stops; most row-producing
// operators build their whole output eagerly (this engine favors
// correctness and simplicity over true backpressure-aware pull).
func single(b Batch) Stream {
	return func(yield func(flowerr.Result[Batch]) bool) {
		yield(flowerr.Ok(b))
	}
}

func errStream(err error) Stream {
	return func(yield func(flowerr.Result[Batch]) bool) {
		yield(flowerr.Err[Batch](err))
	}
}

// collect drains a child stream into a single row slice, stopping early
// on the first non-Ok result (returned as the second value).
func collect(ctx context.Context, s Stream) ([]value.Value, flowerr.Result[Batch], bool) {
	var rows []value.Value
	for r := range s {
		if !r.IsOk() {
			return rows, r, false
		}
		rows = append(rows, r.Value...)
		select {
		case <-ctx.Done():
			return rows, flowerr.Err[Batch](ctx.Err()), false
		default:
		}
	}
	return rows, flowerr.Result[Batch]{}, true
}

// EvalContextFor builds the expr.EvalContext a single row is evaluated
// against: the execution context's parameters/transaction plus the row
// as $this.
func EvalContextFor(ectx *session.ExecutionContext, row value.Value, functions expr.FunctionDispatcher, loader expr.RecordLoader) *expr.EvalContext {
	return &expr.EvalContext{
		Session:   *ectx,
		Current:   row,
		Functions: functions,
		Loader:    loader,
	}
}

// Env carries the collaborators every operator needs beyond the
// execution context itself: the catalog store, the function dispatcher,
// and the record loader used for Fetch/graph-traversal idiom parts.
type Env struct {
	Catalog   *catalog.Store
	Functions expr.FunctionDispatcher
	Loader    expr.RecordLoader
	Seq       *seq.Allocator
}
