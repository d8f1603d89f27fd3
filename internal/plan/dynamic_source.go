package plan

import (
	"context"

	"github.com/surrealkv/surqlcore/internal/expr"
	"github.com/surrealkv/surqlcore/internal/flowerr"
	"github.com/surrealkv/surqlcore/internal/session"
	"github.com/surrealkv/surqlcore/internal/value"
)

// DynamicSourceOp is the FROM source used when the expression isn't
// resolvable to a table or record-id at plan time (a parameter, or any
// other expression): it is evaluated once against the zero-row context,
// then dispatched by the resulting value's kind.
type DynamicSourceOp struct {
	Expr *expr.Expr
	Env  *Env
}

func (d *DynamicSourceOp) Name() string                  { return "DynamicSource" }
func (d *DynamicSourceOp) RequiredContext() session.Level { return session.LevelDatabase }
func (d *DynamicSourceOp) AccessMode() AccessMode         { return ReadOnly }
func (d *DynamicSourceOp) Children() []Operator           { return nil }

func (d *DynamicSourceOp) Execute(ctx context.Context, ectx *session.ExecutionContext) Stream {
	return func(yield func(flowerr.Result[Batch]) bool) {
		ec := EvalContextFor(ectx, value0(), d.Env.Functions, d.Env.Loader)
		r := d.Expr.Evaluate(ec)
		if !r.IsOk() {
			yield(flowerr.Result[Batch]{Signal: r.Signal, Err: r.Err})
			return
		}
		for row := range d.rowsFor(ctx, ectx, r.Value) {
			if !yield(row) {
				return
			}
		}
	}
}

func (d *DynamicSourceOp) rowsFor(ctx context.Context, ectx *session.ExecutionContext, v value.Value) Stream {
	return func(yield func(flowerr.Result[Batch]) bool) {
		switch v.Kind() {
		case value.KindString:
			s, _ := v.AsString()
			(&ScanOp{Table: s, Env: d.Env}).Execute(ctx, ectx)(yield)
		case value.KindRecordID:
			rid, _ := v.AsRecordID()
			(&RecordIdLookupOp{RID: rid, Env: d.Env}).Execute(ctx, ectx)(yield)
		case value.KindArray:
			arr, _ := v.AsArray()
			for _, elem := range arr {
				switch elem.Kind() {
				case value.KindRecordID:
					rid, _ := elem.AsRecordID()
					cont := true
					(&RecordIdLookupOp{RID: rid, Env: d.Env}).Execute(ctx, ectx)(func(r flowerr.Result[Batch]) bool {
						cont = yield(r)
						return cont
					})
					if !cont {
						return
					}
				case value.KindObject:
					if !yield(flowerr.Ok(Batch{elem})) {
						return
					}
				}
			}
		case value.KindObject:
			yield(flowerr.Ok(Batch{v}))
		default:
			yield(flowerr.Ok(Batch(nil)))
		}
	}
}
