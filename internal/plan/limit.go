package plan

import (
	"context"

	"github.com/surrealkv/surqlcore/internal/expr"
	"github.com/surrealkv/surqlcore/internal/flowerr"
	"github.com/surrealkv/surqlcore/internal/session"
)

// LimitOp applies an optional START offset followed by an optional LIMIT
// count, per spec §6.
type LimitOp struct {
	Input Operator
	Start *expr.Expr
	Limit *expr.Expr
	Env   *Env
}

func (l *LimitOp) Name() string                  { return "Limit" }
func (l *LimitOp) RequiredContext() session.Level { return l.Input.RequiredContext() }
func (l *LimitOp) AccessMode() AccessMode         { return l.Input.AccessMode() }
func (l *LimitOp) Children() []Operator           { return []Operator{l.Input} }

func (l *LimitOp) Execute(ctx context.Context, ectx *session.ExecutionContext) Stream {
	return func(yield func(flowerr.Result[Batch]) bool) {
		rows, errResult, ok := collect(ctx, l.Input.Execute(ctx, ectx))
		if !ok {
			yield(errResult)
			return
		}
		ec := EvalContextFor(ectx, value0(), l.Env.Functions, l.Env.Loader)
		start := 0
		if l.Start != nil {
			r := l.Start.Evaluate(ec)
			if !r.IsOk() {
				yield(flowerr.Result[Batch]{Signal: r.Signal, Err: r.Err})
				return
			}
			if n, ok := r.Value.AsNumber(); ok {
				start = int(n.I)
			}
		}
		if start > len(rows) {
			start = len(rows)
		}
		rows = rows[start:]
		if l.Limit != nil {
			r := l.Limit.Evaluate(ec)
			if !r.IsOk() {
				yield(flowerr.Result[Batch]{Signal: r.Signal, Err: r.Err})
				return
			}
			if n, ok := r.Value.AsNumber(); ok {
				count := int(n.I)
				if count < len(rows) {
					rows = rows[:count]
				}
			}
		}
		yield(flowerr.Ok(Batch(rows)))
	}
}
