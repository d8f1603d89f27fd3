package plan

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/surrealkv/surqlcore/internal/ast"
	"github.com/surrealkv/surqlcore/internal/catalog"
	"github.com/surrealkv/surqlcore/internal/expr"
	"github.com/surrealkv/surqlcore/internal/flowerr"
	"github.com/surrealkv/surqlcore/internal/keys"
	"github.com/surrealkv/surqlcore/internal/kv"
	"github.com/surrealkv/surqlcore/internal/session"
	"github.com/surrealkv/surqlcore/internal/value"
)

// mutationTarget is one resolved write target: a bare table name (the
// key is chosen by the operator, e.g. CREATE's generated id) or a
// specific record-id.
type mutationTarget struct {
	Table string
	RID   *value.RecordID // nil for a bare-table target
}

// resolveTargets evaluates each target expression against the zero-row
// context and classifies it: a bare table-name idiom, a record-id
// value, or an array of record-ids.
func resolveTargets(ectx *session.ExecutionContext, env *Env, targets []*expr.Expr) ([]mutationTarget, error) {
	var out []mutationTarget
	for _, t := range targets {
		ec := EvalContextFor(ectx, value0(), env.Functions, env.Loader)
		r := t.Evaluate(ec)
		if !r.IsOk() {
			if r.Err != nil {
				return nil, r.Err
			}
			return nil, fmt.Errorf("plan: mutation target did not evaluate to a value")
		}
		switch r.Value.Kind() {
		case value.KindString:
			s, _ := r.Value.AsString()
			out = append(out, mutationTarget{Table: s})
		case value.KindRecordID:
			rid, _ := r.Value.AsRecordID()
			out = append(out, mutationTarget{Table: rid.Table, RID: rid})
		case value.KindArray:
			arr, _ := r.Value.AsArray()
			for _, elem := range arr {
				if rid, ok := elem.AsRecordID(); ok {
					out = append(out, mutationTarget{Table: rid.Table, RID: rid})
				}
			}
		default:
			return nil, fmt.Errorf("plan: mutation target must be a table name, record id, or array of record ids")
		}
	}
	return out, nil
}

// newGeneratedRID allocates a fresh record-id for a bare-table create
// target, using the Generated key kind spec §3 reserves for this: a
// UUID chosen by the engine rather than supplied or derived from content.
func newGeneratedRID(table string) *value.RecordID {
	return &value.RecordID{Table: table, Key: value.GeneratedKey(uuid.New())}
}

// evalContent evaluates a mutation's Content expression into an object's
// fields, with $this bound to current (None for a brand-new row), so
// Content may reference the prior value (e.g. `SET count = count + 1`).
func evalContent(ectx *session.ExecutionContext, env *Env, content *expr.Expr, current value.Value) (map[string]value.Value, error) {
	if content == nil {
		return map[string]value.Value{}, nil
	}
	ec := EvalContextFor(ectx, current, env.Functions, env.Loader)
	r := content.Evaluate(ec)
	if !r.IsOk() {
		if r.Err != nil {
			return nil, r.Err
		}
		return nil, fmt.Errorf("plan: mutation content did not evaluate to a value")
	}
	obj, ok := r.Value.AsObject()
	if !ok {
		return nil, fmt.Errorf("plan: mutation content must evaluate to an object")
	}
	return obj, nil
}

// foldContent combines an existing record's fields with newly evaluated
// content per the statement's ContentMode.
func foldContent(existing map[string]value.Value, content map[string]value.Value, mode ast.ContentMode) map[string]value.Value {
	if mode == ast.ContentReplace || existing == nil {
		out := make(map[string]value.Value, len(content))
		for k, v := range content {
			out[k] = v
		}
		return out
	}
	out := make(map[string]value.Value, len(existing)+len(content))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range content {
		out[k] = v
	}
	return out
}

// ensureTableID returns the table's numeric ids, implicitly defining the
// table (spec §7's "implicit table creation on first insert") when it
// has no catalog entry yet.
func ensureTableID(ctx context.Context, env *Env, ectx *session.ExecutionContext, table string) (nsID, dbID, tbID uint32, err error) {
	if _, err := env.Catalog.EnsureTable(ctx, ectx.Tx, env.Seq, ectx.Namespace, ectx.Database, table); err != nil {
		return 0, 0, 0, err
	}
	return resolveTable(ctx, env.Catalog, ectx.Tx, ectx.Namespace, ectx.Database, table)
}

// putRecord persists fields (including an embedded "id" field, so every
// written record is self-describing regardless of its key kind's
// invertibility, the limitation internal/keys.DecodeRecordKey documents)
// at rid, failing if a record with this key already exists when
// mustNotExist is true.
func putRecord(ctx context.Context, tx kv.Transactable, nsID, dbID, tbID uint32, rid *value.RecordID, fields map[string]value.Value, mustNotExist bool) error {
	stored := make(map[string]value.Value, len(fields)+1)
	for k, v := range fields {
		stored[k] = v
	}
	stored["id"] = value.RecordIDValue(rid)
	raw, err := encodeRecord(stored)
	if err != nil {
		return err
	}
	key := keys.Record(nsID, dbID, tbID, keys.EncodeRecordKey(rid.Key))
	if mustNotExist {
		return tx.Put(ctx, key, raw, 0)
	}
	return tx.Set(ctx, key, raw, 0)
}

func deleteRecord(ctx context.Context, tx kv.Transactable, nsID, dbID, tbID uint32, rid *value.RecordID) error {
	key := keys.Record(nsID, dbID, tbID, keys.EncodeRecordKey(rid.Key))
	return tx.Del(ctx, key)
}

// scanTable loads every live record in a table as (rid, fields) pairs,
// the shape UpdateOp/UpsertOp/DeleteOp need when their target is a bare
// table rather than a specific record-id.
func scanTable(ctx context.Context, tx kv.Transactable, nsID, dbID, tbID uint32, table string) ([]*value.RecordID, []map[string]value.Value, error) {
	prefix := keys.RecordPrefix(nsID, dbID, tbID)
	rows, err := tx.Scan(ctx, kv.Range{Begin: prefix, End: keys.PrefixEnd(prefix)}, 0, 0, 0)
	if err != nil {
		return nil, nil, err
	}
	rids := make([]*value.RecordID, 0, len(rows))
	fieldsList := make([]map[string]value.Value, 0, len(rows))
	for _, row := range rows {
		fields, err := decodeRecord(row.Value)
		if err != nil {
			return nil, nil, err
		}
		var rid *value.RecordID
		if idv, ok := fields["id"]; ok {
			if r, ok := idv.AsRecordID(); ok {
				rid = r
			}
		}
		if rid == nil {
			suffix := row.Key[len(prefix):]
			if k, ok := keys.DecodeRecordKey(table, suffix); ok {
				rid = &value.RecordID{Table: table, Key: k}
			}
		}
		if rid == nil {
			continue // non-invertible key with no embedded id: unreachable by identity
		}
		rids = append(rids, rid)
		fieldsList = append(fieldsList, fields)
	}
	return rids, fieldsList, nil
}

// matchesWhere reports whether row passes pred ($this bound to row); a
// nil predicate always matches.
func matchesWhere(ectx *session.ExecutionContext, env *Env, pred *expr.Expr, row value.Value) (bool, error) {
	if pred == nil {
		return true, nil
	}
	ec := EvalContextFor(ectx, row, env.Functions, env.Loader)
	r := pred.Evaluate(ec)
	if !r.IsOk() {
		return false, r.Err
	}
	return r.Value.IsTruthy(), nil
}

// returnValue shapes one mutation result per its ReturnMode. The second
// result reports whether a row should be emitted at all.
func returnValue(mode ast.ReturnMode, before, after value.Value) (value.Value, bool) {
	switch mode {
	case ast.ReturnNone:
		return value.None(), false
	case ast.ReturnBefore:
		return before, true
	case ast.ReturnDiff:
		return value.Object(map[string]value.Value{"before": before, "after": after}), true
	default: // ReturnAfter
		return after, true
	}
}

// tablePermission looks up table's permission clauses, returning the
// always-allow zero value for an undefined (schemaless) table.
func tablePermission(ctx context.Context, env *Env, ectx *session.ExecutionContext, table string) (catalog.CRUDPermissions, error) {
	def, ok, err := env.Catalog.GetTable(ctx, ectx.Tx, ectx.Namespace, ectx.Database, table)
	if err != nil || !ok {
		return catalog.CRUDPermissions{}, err
	}
	return def.Permissions, nil
}

// CreateOp implements CREATE: every target must not already exist.
type CreateOp struct {
	Mutation *ast.Mutation
	Env      *Env
}

func (c *CreateOp) Name() string                  { return "Create" }
func (c *CreateOp) RequiredContext() session.Level { return session.LevelDatabase }
func (c *CreateOp) AccessMode() AccessMode         { return ReadWrite }
func (c *CreateOp) Children() []Operator           { return nil }

func (c *CreateOp) Execute(ctx context.Context, ectx *session.ExecutionContext) Stream {
	return func(yield func(flowerr.Result[Batch]) bool) {
		targets, err := resolveTargets(ectx, c.Env, c.Mutation.Targets)
		if err != nil {
			yield(flowerr.Err[Batch](err))
			return
		}
		out, err := createEach(ctx, ectx, c.Env, c.Mutation, targets)
		if err != nil {
			yield(flowerr.Err[Batch](err))
			return
		}
		yield(flowerr.Ok(out))
	}
}

func createEach(ctx context.Context, ectx *session.ExecutionContext, env *Env, m *ast.Mutation, targets []mutationTarget) (Batch, error) {
	isOwner := ectx.Auth.IsOwner()
	var out Batch
	for _, t := range targets {
		rid := t.RID
		if rid == nil {
			rid = newGeneratedRID(t.Table)
		}
		content, err := evalContent(ectx, env, m.Content, value.None())
		if err != nil {
			return nil, err
		}
		fields := foldContent(nil, content, ast.ContentReplace)
		row := withRecordID(fields, rid)

		perms, err := tablePermission(ctx, env, ectx, rid.Table)
		if err != nil {
			return nil, err
		}
		if !perms.Create.Allows(EvalContextFor(ectx, row, env.Functions, env.Loader), isOwner) {
			continue
		}

		nsID, dbID, tbID, err := ensureTableID(ctx, env, ectx, rid.Table)
		if err != nil {
			return nil, err
		}
		if err := putRecord(ctx, ectx.Tx, nsID, dbID, tbID, rid, fields, true); err != nil {
			return nil, err
		}
		if v, ok := returnValue(m.Return, value.None(), row); ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// UpdateOp implements UPDATE: only existing records are touched;
// targets that don't yet exist are silently skipped.
type UpdateOp struct {
	Mutation *ast.Mutation
	Env      *Env
}

func (u *UpdateOp) Name() string                  { return "Update" }
func (u *UpdateOp) RequiredContext() session.Level { return session.LevelDatabase }
func (u *UpdateOp) AccessMode() AccessMode         { return ReadWrite }
func (u *UpdateOp) Children() []Operator           { return nil }

func (u *UpdateOp) Execute(ctx context.Context, ectx *session.ExecutionContext) Stream {
	return func(yield func(flowerr.Result[Batch]) bool) {
		out, err := updateOrUpsert(ctx, ectx, u.Env, u.Mutation, false)
		if err != nil {
			yield(flowerr.Err[Batch](err))
			return
		}
		yield(flowerr.Ok(out))
	}
}

// UpsertOp implements UPSERT: like UPDATE, but a record-id target with
// no existing row is created instead of skipped.
type UpsertOp struct {
	Mutation *ast.Mutation
	Env      *Env
}

func (u *UpsertOp) Name() string                  { return "Upsert" }
func (u *UpsertOp) RequiredContext() session.Level { return session.LevelDatabase }
func (u *UpsertOp) AccessMode() AccessMode         { return ReadWrite }
func (u *UpsertOp) Children() []Operator           { return nil }

func (u *UpsertOp) Execute(ctx context.Context, ectx *session.ExecutionContext) Stream {
	return func(yield func(flowerr.Result[Batch]) bool) {
		out, err := updateOrUpsert(ctx, ectx, u.Env, u.Mutation, true)
		if err != nil {
			yield(flowerr.Err[Batch](err))
			return
		}
		yield(flowerr.Ok(out))
	}
}

func updateOrUpsert(ctx context.Context, ectx *session.ExecutionContext, env *Env, m *ast.Mutation, upsert bool) (Batch, error) {
	targets, err := resolveTargets(ectx, env, m.Targets)
	if err != nil {
		return nil, err
	}
	isOwner := ectx.Auth.IsOwner()
	var out Batch
	for _, t := range targets {
		nsID, dbID, tbID, err := ensureTableID(ctx, env, ectx, t.Table)
		if err != nil {
			return nil, err
		}
		perms, err := tablePermission(ctx, env, ectx, t.Table)
		if err != nil {
			return nil, err
		}

		var rids []*value.RecordID
		var existingFields []map[string]value.Value
		if t.RID != nil {
			fields, found, err := loadFields(ctx, ectx.Tx, nsID, dbID, tbID, t.RID)
			if err != nil {
				return nil, err
			}
			if !found && !upsert {
				continue
			}
			rids = []*value.RecordID{t.RID}
			if found {
				existingFields = []map[string]value.Value{fields}
			} else {
				existingFields = []map[string]value.Value{nil}
			}
		} else {
			rids, existingFields, err = scanTable(ctx, ectx.Tx, nsID, dbID, tbID, t.Table)
			if err != nil {
				return nil, err
			}
		}

		for i, rid := range rids {
			before := value.None()
			if existingFields[i] != nil {
				before = withRecordID(existingFields[i], rid)
			}
			ok, err := matchesWhere(ectx, env, m.Where, before)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			content, err := evalContent(ectx, env, m.Content, before)
			if err != nil {
				return nil, err
			}
			fields := foldContent(existingFields[i], content, m.Mode)
			after := withRecordID(fields, rid)

			perm := perms.Update
			if existingFields[i] == nil {
				perm = perms.Create
			}
			if !perm.Allows(EvalContextFor(ectx, after, env.Functions, env.Loader), isOwner) {
				continue
			}
			if err := putRecord(ctx, ectx.Tx, nsID, dbID, tbID, rid, fields, false); err != nil {
				return nil, err
			}
			if v, ok := returnValue(m.Return, before, after); ok {
				out = append(out, v)
			}
		}
	}
	return out, nil
}

func loadFields(ctx context.Context, tx kv.Transactable, nsID, dbID, tbID uint32, rid *value.RecordID) (map[string]value.Value, bool, error) {
	key := keys.Record(nsID, dbID, tbID, keys.EncodeRecordKey(rid.Key))
	raw, ok, err := tx.Get(ctx, key, 0)
	if err != nil || !ok {
		return nil, false, err
	}
	fields, err := decodeRecord(raw)
	return fields, true, err
}

// DeleteOp implements DELETE: removes every matching row.
type DeleteOp struct {
	Mutation *ast.Mutation
	Env      *Env
}

func (d *DeleteOp) Name() string                  { return "Delete" }
func (d *DeleteOp) RequiredContext() session.Level { return session.LevelDatabase }
func (d *DeleteOp) AccessMode() AccessMode         { return ReadWrite }
func (d *DeleteOp) Children() []Operator           { return nil }

func (d *DeleteOp) Execute(ctx context.Context, ectx *session.ExecutionContext) Stream {
	return func(yield func(flowerr.Result[Batch]) bool) {
		targets, err := resolveTargets(ectx, d.Env, d.Mutation.Targets)
		if err != nil {
			yield(flowerr.Err[Batch](err))
			return
		}
		isOwner := ectx.Auth.IsOwner()
		var out Batch
		for _, t := range targets {
			nsID, dbID, tbID, err := resolveTable(ctx, d.Env.Catalog, ectx.Tx, ectx.Namespace, ectx.Database, t.Table)
			if err != nil {
				continue // undefined table: nothing to delete
			}
			perms, err := tablePermission(ctx, d.Env, ectx, t.Table)
			if err != nil {
				yield(flowerr.Err[Batch](err))
				return
			}

			var rids []*value.RecordID
			var fieldsList []map[string]value.Value
			if t.RID != nil {
				fields, found, err := loadFields(ctx, ectx.Tx, nsID, dbID, tbID, t.RID)
				if err != nil {
					yield(flowerr.Err[Batch](err))
					return
				}
				if !found {
					continue
				}
				rids = []*value.RecordID{t.RID}
				fieldsList = []map[string]value.Value{fields}
			} else {
				rids, fieldsList, err = scanTable(ctx, ectx.Tx, nsID, dbID, tbID, t.Table)
				if err != nil {
					yield(flowerr.Err[Batch](err))
					return
				}
			}

			for i, rid := range rids {
				before := withRecordID(fieldsList[i], rid)
				ok, err := matchesWhere(ectx, d.Env, d.Mutation.Where, before)
				if err != nil {
					yield(flowerr.Err[Batch](err))
					return
				}
				if !ok {
					continue
				}
				if !perms.Delete.Allows(EvalContextFor(ectx, before, d.Env.Functions, d.Env.Loader), isOwner) {
					continue
				}
				if err := deleteRecord(ctx, ectx.Tx, nsID, dbID, tbID, rid); err != nil {
					yield(flowerr.Err[Batch](err))
					return
				}
				if v, ok := returnValue(d.Mutation.Return, before, value.None()); ok {
					out = append(out, v)
				}
			}
		}
		yield(flowerr.Ok(out))
	}
}

// InsertOp implements INSERT INTO <table> <array-of-objects>: each
// object is created as its own row, exactly as CREATE would, except the
// object itself supplies Content instead of the mutation's shared
// Content expression, and a target supplying its own "id" field keeps
// that id rather than generating one.
type InsertOp struct {
	Table    string
	Rows     *expr.Expr // evaluates to an array of objects
	Return   ast.ReturnMode
	Env      *Env
}

func (ins *InsertOp) Name() string                  { return "Insert" }
func (ins *InsertOp) RequiredContext() session.Level { return session.LevelDatabase }
func (ins *InsertOp) AccessMode() AccessMode         { return ReadWrite }
func (ins *InsertOp) Children() []Operator           { return nil }

func (ins *InsertOp) Execute(ctx context.Context, ectx *session.ExecutionContext) Stream {
	return func(yield func(flowerr.Result[Batch]) bool) {
		ec := EvalContextFor(ectx, value0(), ins.Env.Functions, ins.Env.Loader)
		r := ins.Rows.Evaluate(ec)
		if !r.IsOk() {
			yield(flowerr.Result[Batch]{Signal: r.Signal, Err: r.Err})
			return
		}
		rows, ok := r.Value.AsArray()
		if !ok {
			yield(flowerr.Err[Batch](fmt.Errorf("plan: INSERT rows must evaluate to an array")))
			return
		}

		isOwner := ectx.Auth.IsOwner()
		perms, err := tablePermission(ctx, ins.Env, ectx, ins.Table)
		if err != nil {
			yield(flowerr.Err[Batch](err))
			return
		}
		var out Batch
		for _, item := range rows {
			fields, ok := item.AsObject()
			if !ok {
				yield(flowerr.Err[Batch](fmt.Errorf("plan: INSERT row must be an object")))
				return
			}
			rid := newGeneratedRID(ins.Table)
			if idv, has := fields["id"]; has {
				if explicit, ok := idv.AsRecordID(); ok {
					rid = explicit
				}
			}
			row := withRecordID(fields, rid)
			if !perms.Create.Allows(EvalContextFor(ectx, row, ins.Env.Functions, ins.Env.Loader), isOwner) {
				continue
			}
			nsID, dbID, tbID, err := ensureTableID(ctx, ins.Env, ectx, ins.Table)
			if err != nil {
				yield(flowerr.Err[Batch](err))
				return
			}
			if err := putRecord(ctx, ectx.Tx, nsID, dbID, tbID, rid, fields, true); err != nil {
				yield(flowerr.Err[Batch](err))
				return
			}
			if v, ok := returnValue(ins.Return, value.None(), row); ok {
				out = append(out, v)
			}
		}
		yield(flowerr.Ok(out))
	}
}

// RelateOp implements RELATE <from>-><edge>-><to>: creates one edge
// record per (from, to) pair, storing the endpoints as "in"/"out"
// fields the way internal/plan.Loader.LoadGraph expects to find them.
type RelateOp struct {
	Relate *ast.Relate
	Env    *Env
}

func (rl *RelateOp) Name() string                  { return "Relate" }
func (rl *RelateOp) RequiredContext() session.Level { return session.LevelDatabase }
func (rl *RelateOp) AccessMode() AccessMode         { return ReadWrite }
func (rl *RelateOp) Children() []Operator           { return nil }

func (rl *RelateOp) Execute(ctx context.Context, ectx *session.ExecutionContext) Stream {
	return func(yield func(flowerr.Result[Batch]) bool) {
		froms, err := resolveRelateEnd(ectx, rl.Env, rl.Relate.From)
		if err != nil {
			yield(flowerr.Err[Batch](err))
			return
		}
		tos, err := resolveRelateEnd(ectx, rl.Env, rl.Relate.To)
		if err != nil {
			yield(flowerr.Err[Batch](err))
			return
		}

		isOwner := ectx.Auth.IsOwner()
		perms, err := tablePermission(ctx, rl.Env, ectx, rl.Relate.Edge)
		if err != nil {
			yield(flowerr.Err[Batch](err))
			return
		}
		var out Batch
		for _, from := range froms {
			for _, to := range tos {
				content, err := evalContent(ectx, rl.Env, rl.Relate.Content, value.None())
				if err != nil {
					yield(flowerr.Err[Batch](err))
					return
				}
				fields := foldContent(nil, content, ast.ContentReplace)
				fields["in"] = value.RecordIDValue(from)
				fields["out"] = value.RecordIDValue(to)
				rid := newGeneratedRID(rl.Relate.Edge)
				row := withRecordID(fields, rid)
				if !perms.Create.Allows(EvalContextFor(ectx, row, rl.Env.Functions, rl.Env.Loader), isOwner) {
					continue
				}
				nsID, dbID, tbID, err := ensureTableID(ctx, rl.Env, ectx, rl.Relate.Edge)
				if err != nil {
					yield(flowerr.Err[Batch](err))
					return
				}
				if err := putRecord(ctx, ectx.Tx, nsID, dbID, tbID, rid, fields, true); err != nil {
					yield(flowerr.Err[Batch](err))
					return
				}
				if v, ok := returnValue(rl.Relate.Return, value.None(), row); ok {
					out = append(out, v)
				}
			}
		}
		yield(flowerr.Ok(out))
	}
}

// resolveRelateEnd evaluates a RELATE endpoint expression into one or
// more record-ids (a single record-id, or an array of them for a
// fan-out RELATE).
func resolveRelateEnd(ectx *session.ExecutionContext, env *Env, e *expr.Expr) ([]*value.RecordID, error) {
	ec := EvalContextFor(ectx, value0(), env.Functions, env.Loader)
	r := e.Evaluate(ec)
	if !r.IsOk() {
		if r.Err != nil {
			return nil, r.Err
		}
		return nil, fmt.Errorf("plan: RELATE endpoint did not evaluate to a value")
	}
	switch r.Value.Kind() {
	case value.KindRecordID:
		rid, _ := r.Value.AsRecordID()
		return []*value.RecordID{rid}, nil
	case value.KindArray:
		arr, _ := r.Value.AsArray()
		out := make([]*value.RecordID, 0, len(arr))
		for _, elem := range arr {
			if rid, ok := elem.AsRecordID(); ok {
				out = append(out, rid)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("plan: RELATE endpoint must be a record id or array of record ids")
	}
}
