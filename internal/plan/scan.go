package plan

import (
	"context"

	"github.com/surrealkv/surqlcore/internal/catalog"
	"github.com/surrealkv/surqlcore/internal/flowerr"
	"github.com/surrealkv/surqlcore/internal/keys"
	"github.com/surrealkv/surqlcore/internal/kv"
	"github.com/surrealkv/surqlcore/internal/session"
	"github.com/surrealkv/surqlcore/internal/value"
)

// ScanOp iterates every live record in a table, in key order.
type ScanOp struct {
	Table   string
	Version *value.Value // optional VERSION clause, evaluated by the planner
	Env     *Env
}

func (s *ScanOp) Name() string                       { return "Scan" }
func (s *ScanOp) RequiredContext() session.Level      { return session.LevelDatabase }
func (s *ScanOp) AccessMode() AccessMode              { return ReadOnly }
func (s *ScanOp) Children() []Operator                { return nil }

func (s *ScanOp) Execute(ctx context.Context, ectx *session.ExecutionContext) Stream {
	return func(yield func(flowerr.Result[Batch]) bool) {
		nsID, dbID, tbID, err := resolveTable(ctx, s.Env.Catalog, ectx.Tx, ectx.Namespace, ectx.Database, s.Table)
		if err != nil {
			yield(flowerr.Err[Batch](err))
			return
		}
		var version kv.Version
		if s.Version != nil {
			if n, ok := s.Version.AsNumber(); ok {
				version = kv.Version(n.I)
			}
		}
		prefix := keys.RecordPrefix(nsID, dbID, tbID)
		rows, err := ectx.Tx.Scan(ctx, kv.Range{Begin: prefix, End: keys.PrefixEnd(prefix)}, 0, 0, version)
		if err != nil {
			yield(flowerr.Err[Batch](err))
			return
		}
		for _, row := range rows {
			fields, err := decodeRecord(row.Value)
			if err != nil {
				yield(flowerr.Err[Batch](err))
				return
			}
			suffix := row.Key[len(prefix):]
			doc := value.Object(fields)
			if _, hasID := fields["id"]; !hasID {
				if k, ok := keys.DecodeRecordKey(s.Table, suffix); ok {
					doc = withRecordID(fields, &value.RecordID{Table: s.Table, Key: k})
				}
			}
			if !yield(flowerr.Ok(Batch{doc})) {
				return
			}
		}
	}
}

// RecordIdLookupOp is a single-record point lookup.
type RecordIdLookupOp struct {
	RID     *value.RecordID
	Version *value.Value
	Env     *Env
}

func (r *RecordIdLookupOp) Name() string                  { return "RecordIdLookup" }
func (r *RecordIdLookupOp) RequiredContext() session.Level { return session.LevelDatabase }
func (r *RecordIdLookupOp) AccessMode() AccessMode         { return ReadOnly }
func (r *RecordIdLookupOp) Children() []Operator           { return nil }

func (r *RecordIdLookupOp) Execute(ctx context.Context, ectx *session.ExecutionContext) Stream {
	return func(yield func(flowerr.Result[Batch]) bool) {
		var version kv.Version
		if r.Version != nil {
			if n, ok := r.Version.AsNumber(); ok {
				version = kv.Version(n.I)
			}
		}
		doc, ok, err := loadRecordByID(ctx, r.Env.Catalog, ectx.Tx, ectx.Namespace, ectx.Database, r.RID, version)
		if err != nil {
			yield(flowerr.Err[Batch](err))
			return
		}
		if !ok {
			yield(flowerr.Ok[Batch](nil))
			return
		}
		yield(flowerr.Ok(Batch{doc}))
	}
}

// IndexSeekOp is placed by the planner over a table source when the
// SELECT names WITH INDEX. This engine does not maintain a separate
// index data structure (no component needs sub-millisecond point lookups
// over millions of rows), so IndexSeek passes its input's rows through
// unchanged: IndexName is not looked up in the catalog, and the WHERE
// predicate is applied by the FilterOp the planner puts above it.
type IndexSeekOp struct {
	Table     string
	IndexName string
	Predicate Operator // the table source (Scan wrapped in ComputeFields) built by the planner
	Env       *Env
}

func (i *IndexSeekOp) Name() string                  { return "IndexSeek" }
func (i *IndexSeekOp) RequiredContext() session.Level { return session.LevelDatabase }
func (i *IndexSeekOp) AccessMode() AccessMode         { return ReadOnly }
func (i *IndexSeekOp) Children() []Operator           { return []Operator{i.Predicate} }

func (i *IndexSeekOp) Execute(ctx context.Context, ectx *session.ExecutionContext) Stream {
	return i.Predicate.Execute(ctx, ectx)
}

// ComputeFieldsOp fills computed/default/VALUE fields defined on the
// table, wrapping every table source per spec §4.3.
type ComputeFieldsOp struct {
	Input Operator
	Table string
	Env   *Env
}

func (c *ComputeFieldsOp) Name() string                  { return "ComputeFields" }
func (c *ComputeFieldsOp) RequiredContext() session.Level { return session.LevelDatabase }
func (c *ComputeFieldsOp) AccessMode() AccessMode         { return c.Input.AccessMode() }
func (c *ComputeFieldsOp) Children() []Operator           { return []Operator{c.Input} }

func (c *ComputeFieldsOp) Execute(ctx context.Context, ectx *session.ExecutionContext) Stream {
	return func(yield func(flowerr.Result[Batch]) bool) {
		fieldDefs, err := c.Env.Catalog.Fields(ctx, ectx.Tx, ectx.Namespace, ectx.Database, c.Table)
		if err != nil {
			yield(flowerr.Err[Batch](err))
			return
		}
		for r := range c.Input.Execute(ctx, ectx) {
			if !r.IsOk() {
				if !yield(r) {
					return
				}
				continue
			}
			out := make(Batch, 0, len(r.Value))
			for _, row := range r.Value {
				computed, err := applyComputedFields(row, fieldDefs, ectx, c.Env)
				if err != nil {
					if !yield(flowerr.Err[Batch](err)) {
						return
					}
					continue
				}
				out = append(out, computed)
			}
			if !yield(flowerr.Ok(out)) {
				return
			}
		}
	}
}

func applyComputedFields(row value.Value, defs []catalog.FieldDef, ectx *session.ExecutionContext, env *Env) (value.Value, error) {
	obj, ok := row.AsObject()
	if !ok {
		return row, nil
	}
	out := make(map[string]value.Value, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	for _, def := range defs {
		if def.Computed == nil && def.Default == nil {
			continue
		}
		current, has := out[def.Idiom]
		if def.Computed != nil {
			ec := EvalContextFor(ectx, value.Object(out), env.Functions, env.Loader)
			r := def.Computed.Evaluate(ec)
			if !r.IsOk() {
				return row, r.Err
			}
			out[def.Idiom] = r.Value
			continue
		}
		if def.Default != nil && (!has || current.IsNone()) {
			ec := EvalContextFor(ectx, value.Object(out), env.Functions, env.Loader)
			r := def.Default.Evaluate(ec)
			if !r.IsOk() {
				return row, r.Err
			}
			out[def.Idiom] = r.Value
		}
	}
	return value.Object(out), nil
}
