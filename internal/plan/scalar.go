package plan

import (
	"context"
	"fmt"

	"github.com/surrealkv/surqlcore/internal/expr"
	"github.com/surrealkv/surqlcore/internal/flowerr"
	"github.com/surrealkv/surqlcore/internal/session"
	"github.com/surrealkv/surqlcore/internal/value"
)

// value0 is the placeholder $this used to evaluate scalar expressions
// that have no row context (LIMIT/START counts, LET values). Idioms that
// reference a field of it simply yield none, per spec §4.2's missing-part
// short-circuit rule.
func value0() value.Value { return value.None() }

// ExprPlanOp evaluates a single scalar expression with no row context, for
// LIMIT/START and top-level LET bodies. Building one with an expression
// that reads $this is a planner error, since there is no enclosing row.
type ExprPlanOp struct {
	Expr *expr.Expr
	Env  *Env
}

// NewExprPlanOp validates the no-$this-reference rule at construction
// time, so the planner can fail fast instead of producing a runtime none.
func NewExprPlanOp(e *expr.Expr, env *Env) (*ExprPlanOp, error) {
	if e.ReferencesCurrentValue() {
		return nil, fmt.Errorf("plan: expression cannot reference the current row outside of a row context")
	}
	return &ExprPlanOp{Expr: e, Env: env}, nil
}

func (e *ExprPlanOp) Name() string                  { return "ExprPlan" }
func (e *ExprPlanOp) RequiredContext() session.Level { return session.LevelRoot }
func (e *ExprPlanOp) AccessMode() AccessMode         { return ReadOnly }
func (e *ExprPlanOp) Children() []Operator           { return nil }

func (e *ExprPlanOp) Execute(ctx context.Context, ectx *session.ExecutionContext) Stream {
	return func(yield func(flowerr.Result[Batch]) bool) {
		ec := EvalContextFor(ectx, value0(), e.Env.Functions, e.Env.Loader)
		r := e.Expr.Evaluate(ec)
		if !r.IsOk() {
			yield(flowerr.Result[Batch]{Signal: r.Signal, Err: r.Err})
			return
		}
		yield(flowerr.Ok(Batch{r.Value}))
	}
}

// LetPlanOp runs a sub-plan to completion, collects its output as a
// single value (none if no rows, the sole row if one, an array of all
// rows otherwise), and
// exposes it as a parameter binding for statements after it in the
// script, per spec §6's LET statement and §4.3's "mutates_context" flag.
type LetPlanOp struct {
	Binding string
	Input   Operator
	last    value.Value
}

func (l *LetPlanOp) Name() string                   { return "LetPlan" }
func (l *LetPlanOp) RequiredContext() session.Level  { return l.Input.RequiredContext() }
func (l *LetPlanOp) AccessMode() AccessMode          { return l.Input.AccessMode() }
func (l *LetPlanOp) Children() []Operator            { return []Operator{l.Input} }

func (l *LetPlanOp) Execute(ctx context.Context, ectx *session.ExecutionContext) Stream {
	return func(yield func(flowerr.Result[Batch]) bool) {
		rows, errResult, ok := collect(ctx, l.Input.Execute(ctx, ectx))
		if !ok {
			yield(errResult)
			return
		}
		var bound value.Value
		switch len(rows) {
		case 0:
			bound = value.None()
		case 1:
			bound = rows[0]
		default:
			bound = value.Array(rows)
		}
		l.last = bound
		yield(flowerr.Ok(Batch{bound}))
	}
}

// OutputContext implements ContextMutator: the statements after a LET
// statement in a script see its bound value under the given name.
func (l *LetPlanOp) OutputContext(input session.ExecutionContext) session.ExecutionContext {
	return input.WithParameter(l.Binding, l.last)
}
