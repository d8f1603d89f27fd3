package plan_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/surrealkv/surqlcore/internal/ast"
	"github.com/surrealkv/surqlcore/internal/catalog"
	"github.com/surrealkv/surqlcore/internal/expr"
	"github.com/surrealkv/surqlcore/internal/kv"
	"github.com/surrealkv/surqlcore/internal/kv/bolt"
	"github.com/surrealkv/surqlcore/internal/plan"
	"github.com/surrealkv/surqlcore/internal/seq"
	"github.com/surrealkv/surqlcore/internal/session"
	"github.com/surrealkv/surqlcore/internal/value"
)

func newTestEnv() *plan.Env {
	return &plan.Env{Catalog: catalog.NewStore(), Seq: seq.NewAllocator()}
}

func openStore(t *testing.T) kv.Datastore {
	t.Helper()
	store, err := bolt.Open(bolt.Options{Path: filepath.Join(t.TempDir(), "plan.db")})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func rootCtx(t *testing.T, env *plan.Env, tx kv.Transactable) session.ExecutionContext {
	t.Helper()
	require.NoError(t, env.Catalog.PutNamespace(context.Background(), tx, catalog.NamespaceDef{ID: 1, Name: "n"}))
	require.NoError(t, env.Catalog.PutDatabase(context.Background(), tx, "n", catalog.DatabaseDef{ID: 1, Name: "d"}))
	ec := session.Root(session.Auth{Role: "owner"}, tx)
	return ec.WithNamespace("n").WithDatabase("d")
}

func drain(t *testing.T, s plan.Stream) []value.Value {
	t.Helper()
	var rows []value.Value
	for r := range s {
		require.True(t, r.IsOk(), "stream signaled %v: %v", r.Signal, r.Err)
		rows = append(rows, r.Value...)
	}
	return rows
}

func objExpr(fields map[string]value.Value) *expr.Expr {
	return expr.Lit(value.Object(fields))
}

func tableTarget(name string) *expr.Expr {
	return expr.IdiomExpr(expr.NewIdiom(expr.FieldPart(name)))
}

func TestCreateOpImplicitlyDefinesTableAndWritesRow(t *testing.T) {
	store := openStore(t)
	env := newTestEnv()
	tx, err := store.Begin(context.Background(), true)
	require.NoError(t, err)
	ectx := rootCtx(t, env, tx)

	op := &plan.CreateOp{
		Mutation: &ast.Mutation{
			Targets: []*expr.Expr{tableTarget("person")},
			Content: objExpr(map[string]value.Value{"name": value.String("Tobie")}),
		},
		Env: env,
	}
	rows := drain(t, op.Execute(context.Background(), &ectx))
	require.Len(t, rows, 1)
	obj, ok := rows[0].AsObject()
	require.True(t, ok)
	name, _ := obj["name"].AsString()
	require.Equal(t, "Tobie", name)
	_, hasID := obj["id"]
	require.True(t, hasID)
	require.NoError(t, tx.Commit(context.Background()))

	tx2, err := store.Begin(context.Background(), true)
	require.NoError(t, err)
	ectx2 := rootCtx(t, env, tx2)
	def, ok, err := env.Catalog.GetTable(context.Background(), tx2, "n", "d", "person")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "person", def.Name)
	_ = ectx2
	require.NoError(t, tx2.Cancel(context.Background()))
}

func TestCreateOpRejectsDuplicateRecordID(t *testing.T) {
	store := openStore(t)
	env := newTestEnv()
	tx, err := store.Begin(context.Background(), true)
	require.NoError(t, err)
	ectx := rootCtx(t, env, tx)

	rid := &value.RecordID{Table: "person", Key: value.StringKey("tobie")}
	op := &plan.CreateOp{
		Mutation: &ast.Mutation{
			Targets: []*expr.Expr{expr.RecordIDLit(rid)},
			Content: objExpr(map[string]value.Value{"name": value.String("Tobie")}),
		},
		Env: env,
	}
	rows := drain(t, op.Execute(context.Background(), &ectx))
	require.Len(t, rows, 1)

	var sawErr bool
	for r := range op.Execute(context.Background(), &ectx) {
		if !r.IsOk() {
			sawErr = true
		}
	}
	require.True(t, sawErr, "creating the same record-id twice must fail")
}

func TestUpdateOpMergesIntoExistingRecordOnly(t *testing.T) {
	store := openStore(t)
	env := newTestEnv()
	tx, err := store.Begin(context.Background(), true)
	require.NoError(t, err)
	ectx := rootCtx(t, env, tx)

	rid := &value.RecordID{Table: "a", Key: value.IntKey(1)}
	create := &plan.CreateOp{
		Mutation: &ast.Mutation{
			Targets: []*expr.Expr{expr.RecordIDLit(rid)},
			Content: objExpr(map[string]value.Value{"v": value.Int(1)}),
		},
		Env: env,
	}
	drain(t, create.Execute(context.Background(), &ectx))

	update := &plan.UpdateOp{
		Mutation: &ast.Mutation{
			Targets: []*expr.Expr{expr.RecordIDLit(rid)},
			Content: objExpr(map[string]value.Value{"v": value.Int(2)}),
			Mode:    ast.ContentMerge,
		},
		Env: env,
	}
	rows := drain(t, update.Execute(context.Background(), &ectx))
	require.Len(t, rows, 1)
	obj, _ := rows[0].AsObject()
	n, _ := obj["v"].AsNumber()
	require.EqualValues(t, 2, n.I)

	missing := &value.RecordID{Table: "a", Key: value.IntKey(99)}
	updateMissing := &plan.UpdateOp{
		Mutation: &ast.Mutation{
			Targets: []*expr.Expr{expr.RecordIDLit(missing)},
			Content: objExpr(map[string]value.Value{"v": value.Int(5)}),
		},
		Env: env,
	}
	require.Empty(t, drain(t, updateMissing.Execute(context.Background(), &ectx)))
}

func TestUpsertOpCreatesWhenMissing(t *testing.T) {
	store := openStore(t)
	env := newTestEnv()
	tx, err := store.Begin(context.Background(), true)
	require.NoError(t, err)
	ectx := rootCtx(t, env, tx)

	rid := &value.RecordID{Table: "a", Key: value.IntKey(7)}
	upsert := &plan.UpsertOp{
		Mutation: &ast.Mutation{
			Targets: []*expr.Expr{expr.RecordIDLit(rid)},
			Content: objExpr(map[string]value.Value{"v": value.Int(9)}),
		},
		Env: env,
	}
	rows := drain(t, upsert.Execute(context.Background(), &ectx))
	require.Len(t, rows, 1)
	obj, _ := rows[0].AsObject()
	n, _ := obj["v"].AsNumber()
	require.EqualValues(t, 9, n.I)
}

func TestDeleteOpRemovesMatchingRows(t *testing.T) {
	store := openStore(t)
	env := newTestEnv()
	tx, err := store.Begin(context.Background(), true)
	require.NoError(t, err)
	ectx := rootCtx(t, env, tx)

	insert := &plan.InsertOp{
		Table: "sales",
		Rows: expr.Lit(value.Array([]value.Value{
			value.Object(map[string]value.Value{"region": value.String("a"), "amt": value.Int(10)}),
			value.Object(map[string]value.Value{"region": value.String("b"), "amt": value.Int(5)}),
		})),
		Env: env,
	}
	drain(t, insert.Execute(context.Background(), &ectx))

	del := &plan.DeleteOp{
		Mutation: &ast.Mutation{
			Targets: []*expr.Expr{tableTarget("sales")},
			Where: expr.Binary(expr.OpEq,
				expr.IdiomExpr(expr.NewIdiom(expr.FieldPart("region"))),
				expr.Lit(value.String("a"))),
		},
		Env: env,
	}
	deleted := drain(t, del.Execute(context.Background(), &ectx))
	require.Len(t, deleted, 1)

	scan := &plan.ScanOp{Table: "sales", Env: env}
	remaining := drain(t, scan.Execute(context.Background(), &ectx))
	require.Len(t, remaining, 1)
	obj, _ := remaining[0].AsObject()
	region, _ := obj["region"].AsString()
	require.Equal(t, "b", region)
}

func TestRelateOpStoresInOutFields(t *testing.T) {
	store := openStore(t)
	env := newTestEnv()
	tx, err := store.Begin(context.Background(), true)
	require.NoError(t, err)
	ectx := rootCtx(t, env, tx)

	from := &value.RecordID{Table: "person", Key: value.StringKey("a")}
	to := &value.RecordID{Table: "person", Key: value.StringKey("b")}
	rel := &plan.RelateOp{
		Relate: &ast.Relate{
			From: expr.RecordIDLit(from),
			Edge: "knows",
			To:   expr.RecordIDLit(to),
		},
		Env: env,
	}
	rows := drain(t, rel.Execute(context.Background(), &ectx))
	require.Len(t, rows, 1)
	obj, _ := rows[0].AsObject()
	inRID, ok := obj["in"].AsRecordID()
	require.True(t, ok)
	require.Equal(t, from.Table, inRID.Table)
	outRID, ok := obj["out"].AsRecordID()
	require.True(t, ok)
	require.Equal(t, to.Table, outRID.Table)
}
