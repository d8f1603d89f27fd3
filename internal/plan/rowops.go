package plan

import (
	"context"

	"github.com/surrealkv/surqlcore/internal/catalog"
	"github.com/surrealkv/surqlcore/internal/expr"
	"github.com/surrealkv/surqlcore/internal/flowerr"
	"github.com/surrealkv/surqlcore/internal/session"
	"github.com/surrealkv/surqlcore/internal/value"
)

// FilterOp drops rows where predicate is not truthy.
type FilterOp struct {
	Input     Operator
	Predicate *expr.Expr
	Env       *Env
}

func (f *FilterOp) Name() string                  { return "Filter" }
func (f *FilterOp) RequiredContext() session.Level { return f.Input.RequiredContext() }
func (f *FilterOp) AccessMode() AccessMode         { return f.Input.AccessMode() }
func (f *FilterOp) Children() []Operator           { return []Operator{f.Input} }

func (f *FilterOp) Execute(ctx context.Context, ectx *session.ExecutionContext) Stream {
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
				ec := EvalContextFor(ectx, row, f.Env.Functions, f.Env.Loader)
				pr := f.Predicate.Evaluate(ec)
				if !pr.IsOk() {
					if !yield(flowerr.Result[Batch]{Signal: pr.Signal, Err: pr.Err}) {
						return
					}
					continue
				}
				if pr.Value.IsTruthy() {
					out = append(out, row)
				}
			}
			if !yield(flowerr.Ok(out)) {
				return
			}
		}
	}
}

// SplitOp expands each row into multiple rows by flattening each listed
// array field.
type SplitOp struct {
	Input  Operator
	Idioms []*expr.Idiom
	Env    *Env
}

func (s *SplitOp) Name() string                  { return "Split" }
func (s *SplitOp) RequiredContext() session.Level { return s.Input.RequiredContext() }
func (s *SplitOp) AccessMode() AccessMode         { return s.Input.AccessMode() }
func (s *SplitOp) Children() []Operator           { return []Operator{s.Input} }

func (s *SplitOp) Execute(ctx context.Context, ectx *session.ExecutionContext) Stream {
	return func(yield func(flowerr.Result[Batch]) bool) {
		for r := range s.Input.Execute(ctx, ectx) {
			if !r.IsOk() {
				if !yield(r) {
					return
				}
				continue
			}
			out := make(Batch, 0, len(r.Value))
			for _, row := range r.Value {
				rows := []value.Value{row}
				for _, idiom := range s.Idioms {
					rows = splitOnIdiom(rows, idiom, ectx, s.Env)
				}
				out = append(out, rows...)
			}
			if !yield(flowerr.Ok(out)) {
				return
			}
		}
	}
}

func splitOnIdiom(rows []value.Value, idiom *expr.Idiom, ectx *session.ExecutionContext, env *Env) []value.Value {
	out := make([]value.Value, 0, len(rows))
	for _, row := range rows {
		ec := EvalContextFor(ectx, row, env.Functions, env.Loader)
		r := idiom.Evaluate(ec)
		if !r.IsOk() {
			out = append(out, row)
			continue
		}
		arr, ok := r.Value.AsArray()
		if !ok {
			out = append(out, row)
			continue
		}
		fieldName := lastFieldName(idiom)
		for _, elem := range arr {
			out = append(out, setField(row, fieldName, elem))
		}
	}
	return out
}

func lastFieldName(idiom *expr.Idiom) string {
	for i := len(idiom.Parts) - 1; i >= 0; i-- {
		if idiom.Parts[i].Kind == expr.PartField {
			return idiom.Parts[i].Field
		}
	}
	return ""
}

func setField(row value.Value, field string, v value.Value) value.Value {
	obj, ok := row.AsObject()
	if !ok || field == "" {
		return row
	}
	out := make(map[string]value.Value, len(obj))
	for k, existing := range obj {
		out[k] = existing
	}
	out[field] = v
	return value.Object(out)
}

// ProjectOp produces an output object per row, enforcing per-field
// SELECT permissions via the Project operator dropping disallowed fields
// rather than failing the row, per spec §7.
type ProjectOp struct {
	Input  Operator
	Table  string
	Fields []SelectOutField
	Env    *Env
}

// SelectOutField is one projected output column.
type SelectOutField struct {
	Name string
	Expr *expr.Expr
}

func (p *ProjectOp) Name() string                  { return "Project" }
func (p *ProjectOp) RequiredContext() session.Level { return p.Input.RequiredContext() }
func (p *ProjectOp) AccessMode() AccessMode         { return p.Input.AccessMode() }
func (p *ProjectOp) Children() []Operator           { return []Operator{p.Input} }

func (p *ProjectOp) Execute(ctx context.Context, ectx *session.ExecutionContext) Stream {
	return func(yield func(flowerr.Result[Batch]) bool) {
		var fieldDefs map[string]catalog.FieldDef
		if p.Table != "" {
			defs, err := p.Env.Catalog.Fields(ctx, ectx.Tx, ectx.Namespace, ectx.Database, p.Table)
			if err != nil {
				yield(flowerr.Err[Batch](err))
				return
			}
			fieldDefs = make(map[string]catalog.FieldDef, len(defs))
			for _, d := range defs {
				fieldDefs[d.Idiom] = d
			}
		}
		isOwner := ectx.Auth.IsOwner()
		for r := range p.Input.Execute(ctx, ectx) {
			if !r.IsOk() {
				if !yield(r) {
					return
				}
				continue
			}
			out := make(Batch, 0, len(r.Value))
			for _, row := range r.Value {
				ec := EvalContextFor(ectx, row, p.Env.Functions, p.Env.Loader)
				obj := make(map[string]value.Value, len(p.Fields))
				for _, f := range p.Fields {
					if def, ok := fieldDefs[f.Name]; ok && !def.Permissions.Select.Allows(ec, isOwner) {
						continue
					}
					fr := f.Expr.Evaluate(ec)
					if !fr.IsOk() {
						if !yield(flowerr.Result[Batch]{Signal: fr.Signal, Err: fr.Err}) {
							return
						}
						continue
					}
					obj[f.Name] = fr.Value
				}
				out = append(out, value.Object(obj))
			}
			if !yield(flowerr.Ok(out)) {
				return
			}
		}
	}
}

// ProjectValueOp is the SELECT VALUE variant: emits the raw expression
// value instead of wrapping it in an object.
type ProjectValueOp struct {
	Input Operator
	Expr  *expr.Expr
	Env   *Env
}

func (p *ProjectValueOp) Name() string                  { return "ProjectValue" }
func (p *ProjectValueOp) RequiredContext() session.Level { return p.Input.RequiredContext() }
func (p *ProjectValueOp) AccessMode() AccessMode         { return p.Input.AccessMode() }
func (p *ProjectValueOp) Children() []Operator           { return []Operator{p.Input} }

func (p *ProjectValueOp) Execute(ctx context.Context, ectx *session.ExecutionContext) Stream {
	return func(yield func(flowerr.Result[Batch]) bool) {
		for r := range p.Input.Execute(ctx, ectx) {
			if !r.IsOk() {
				if !yield(r) {
					return
				}
				continue
			}
			out := make(Batch, 0, len(r.Value))
			for _, row := range r.Value {
				ec := EvalContextFor(ectx, row, p.Env.Functions, p.Env.Loader)
				vr := p.Expr.Evaluate(ec)
				if !vr.IsOk() {
					if !yield(flowerr.Result[Batch]{Signal: vr.Signal, Err: vr.Err}) {
						return
					}
					continue
				}
				out = append(out, vr.Value)
			}
			if !yield(flowerr.Ok(out)) {
				return
			}
		}
	}
}

// OmitOp removes listed fields, used with SELECT *.
type OmitOp struct {
	Input  Operator
	Idioms []*expr.Idiom
}

func (o *OmitOp) Name() string                  { return "Omit" }
func (o *OmitOp) RequiredContext() session.Level { return o.Input.RequiredContext() }
func (o *OmitOp) AccessMode() AccessMode         { return o.Input.AccessMode() }
func (o *OmitOp) Children() []Operator           { return []Operator{o.Input} }

func (o *OmitOp) Execute(ctx context.Context, ectx *session.ExecutionContext) Stream {
	return func(yield func(flowerr.Result[Batch]) bool) {
		for r := range o.Input.Execute(ctx, ectx) {
			if !r.IsOk() {
				if !yield(r) {
					return
				}
				continue
			}
			out := make(Batch, 0, len(r.Value))
			for _, row := range r.Value {
				obj, ok := row.AsObject()
				if !ok {
					out = append(out, row)
					continue
				}
				clone := make(map[string]value.Value, len(obj))
				for k, v := range obj {
					clone[k] = v
				}
				for _, idiom := range o.Idioms {
					if name := lastFieldName(idiom); name != "" {
						delete(clone, name)
					}
				}
				out = append(out, value.Object(clone))
			}
			if !yield(flowerr.Ok(out)) {
				return
			}
		}
	}
}
