package plan

import (
	"context"

	"github.com/surrealkv/surqlcore/internal/expr"
	"github.com/surrealkv/surqlcore/internal/flowerr"
	"github.com/surrealkv/surqlcore/internal/kv"
	"github.com/surrealkv/surqlcore/internal/session"
	"github.com/surrealkv/surqlcore/internal/value"
)

// FetchOp resolves the record-id (or array of record-ids) held in a
// top-level field of each row into the full referenced record, in place,
// per spec §6's FETCH clause. Each idiom names that field by its last
// field-name part; the idiom's other parts are ignored, and an idiom with
// no field-name part is skipped.
type FetchOp struct {
	Input  Operator
	Idioms []*expr.Idiom
	Env    *Env
}

func (f *FetchOp) Name() string                  { return "Fetch" }
func (f *FetchOp) RequiredContext() session.Level { return f.Input.RequiredContext() }
func (f *FetchOp) AccessMode() AccessMode         { return f.Input.AccessMode() }
func (f *FetchOp) Children() []Operator           { return []Operator{f.Input} }

func (f *FetchOp) Execute(ctx context.Context, ectx *session.ExecutionContext) Stream {
	return func(yield func(flowerr.Result[Batch]) bool) {
		for r := range f.Input.Execute(ctx, ectx) {
			if !r.IsOk() {
				if !yield(r) {
					return
				}
				continue
			}
			out := make(Batch, 0, len(r.Value))
			for _, row := range r.Value {
				fetched, err := fetchRow(ctx, row, f.Idioms, ectx, f.Env)
				if err != nil {
					if !yield(flowerr.Err[Batch](err)) {
						return
					}
					continue
				}
				out = append(out, fetched)
			}
			if !yield(flowerr.Ok(out)) {
				return
			}
		}
	}
}

func fetchRow(ctx context.Context, row value.Value, idioms []*expr.Idiom, ectx *session.ExecutionContext, env *Env) (value.Value, error) {
	for _, idiom := range idioms {
		field := lastFieldName(idiom)
		if field == "" {
			continue
		}
		obj, ok := row.AsObject()
		if !ok {
			continue
		}
		cur, has := obj[field]
		if !has {
			continue
		}
		resolved, err := resolveFetchValue(ctx, cur, ectx, env)
		if err != nil {
			return row, err
		}
		row = setField(row, field, resolved)
	}
	return row, nil
}

func resolveFetchValue(ctx context.Context, v value.Value, ectx *session.ExecutionContext, env *Env) (value.Value, error) {
	switch v.Kind() {
	case value.KindRecordID:
		rid, _ := v.AsRecordID()
		doc, ok, err := loadRecordByID(ctx, env.Catalog, ectx.Tx, ectx.Namespace, ectx.Database, rid, kv.Version(0))
		if err != nil {
			return v, err
		}
		if !ok {
			return value.None(), nil
		}
		return doc, nil
	case value.KindArray:
		arr, _ := v.AsArray()
		out := make([]value.Value, len(arr))
		for i, elem := range arr {
			resolved, err := resolveFetchValue(ctx, elem, ectx, env)
			if err != nil {
				return v, err
			}
			out[i] = resolved
		}
		return value.Array(out), nil
	default:
		return v, nil
	}
}
