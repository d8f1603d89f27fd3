package exec_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/surrealkv/surqlcore/internal/ast"
	"github.com/surrealkv/surqlcore/internal/exec"
	"github.com/surrealkv/surqlcore/internal/expr"
	"github.com/surrealkv/surqlcore/internal/flowerr"
	"github.com/surrealkv/surqlcore/internal/kv"
	"github.com/surrealkv/surqlcore/internal/kv/bolt"
	"github.com/surrealkv/surqlcore/internal/plan"
	"github.com/surrealkv/surqlcore/internal/session"
	"github.com/surrealkv/surqlcore/internal/value"
)

func openTestStore(t *testing.T) kv.Datastore {
	t.Helper()
	store, err := bolt.Open(bolt.Options{Path: filepath.Join(t.TempDir(), "exec.db")})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func newScript(t *testing.T, store kv.Datastore) *exec.Script {
	t.Helper()
	env := &plan.Env{}
	initial := session.Root(session.Auth{Role: "owner"}, nil)
	return exec.NewScript(store, env, initial)
}

func TestLetBindsParameterForDependentStatement(t *testing.T) {
	store := openTestStore(t)
	script := newScript(t, store)

	letPlan := &plan.ExprPlanOp{Expr: expr.Lit(value.Int(42)), Env: script.Env}
	boundPlan := &plan.LetPlanOp{Binding: "x", Input: letPlan}

	readPlan, err := plan.NewExprPlanOp(expr.ParamRef("x"), script.Env)
	require.NoError(t, err)

	statements := []exec.Statement{
		{ID: 0, AST: &ast.Statement{Kind: ast.KindLet}, Plan: boundPlan, ContextSource: -1},
		{ID: 1, AST: &ast.Statement{Kind: ast.KindSelect}, Plan: readPlan, ContextSource: 0, WaitFor: []int{0}},
	}

	outcomes := script.Run(context.Background(), statements)
	require.Len(t, outcomes, 2)
	require.NoError(t, outcomes[0].Err)
	require.NoError(t, outcomes[1].Err)
	require.Len(t, outcomes[1].Values, 1)
	n, ok := outcomes[1].Values[0].AsNumber()
	require.True(t, ok)
	require.EqualValues(t, 42, n.I)
}

func TestUseSetsNamespaceAndDatabaseForDependents(t *testing.T) {
	store := openTestStore(t)
	script := newScript(t, store)

	ns, db := "acme", "prod"
	readPlan, err := plan.NewExprPlanOp(expr.Lit(value.Bool(true)), script.Env)
	require.NoError(t, err)

	statements := []exec.Statement{
		{ID: 0, AST: &ast.Statement{Kind: ast.KindUse, Use: &ast.Use{Namespace: &ns, Database: &db}}, ContextSource: -1},
		{ID: 1, AST: &ast.Statement{Kind: ast.KindSelect}, Plan: readPlan, ContextSource: 0, WaitFor: []int{0}},
	}

	outcomes := script.Run(context.Background(), statements)
	require.NoError(t, outcomes[0].Err)
	require.Equal(t, "acme", outcomes[0].Context.Namespace)
	require.Equal(t, "prod", outcomes[0].Context.Database)
}

func TestBeginCommitSharesOneTransactionAcrossStatements(t *testing.T) {
	store := openTestStore(t)
	script := newScript(t, store)

	statements := []exec.Statement{
		{ID: 0, AST: &ast.Statement{Kind: ast.KindBegin}, ContextSource: -1},
		{ID: 1, AST: &ast.Statement{Kind: ast.KindCommit}, ContextSource: 0, WaitFor: []int{0}},
	}

	outcomes := script.Run(context.Background(), statements)
	require.NoError(t, outcomes[0].Err)
	require.NotNil(t, outcomes[0].Context.Tx)
	require.NoError(t, outcomes[1].Err)
	require.Nil(t, outcomes[1].Context.Tx)
}

func TestStatementFailureIsolatesFromSiblings(t *testing.T) {
	store := openTestStore(t)
	script := newScript(t, store)

	failing := &failingOperator{}
	okPlan, err := plan.NewExprPlanOp(expr.Lit(value.Int(1)), script.Env)
	require.NoError(t, err)

	statements := []exec.Statement{
		{ID: 0, AST: &ast.Statement{Kind: ast.KindSelect}, Plan: failing, ContextSource: -1},
		{ID: 1, AST: &ast.Statement{Kind: ast.KindSelect}, Plan: okPlan, ContextSource: -1},
	}

	outcomes := script.Run(context.Background(), statements)
	require.Error(t, outcomes[0].Err)
	require.NoError(t, outcomes[1].Err)
	require.Len(t, outcomes[1].Values, 1)
}

// failingOperator always reports an error, used to assert that one
// statement's failure doesn't block or corrupt an unrelated sibling.
type failingOperator struct{}

func (f *failingOperator) Name() string                  { return "Failing" }
func (f *failingOperator) RequiredContext() session.Level { return session.LevelRoot }
func (f *failingOperator) AccessMode() plan.AccessMode    { return plan.ReadOnly }
func (f *failingOperator) Children() []plan.Operator      { return nil }

func (f *failingOperator) Execute(ctx context.Context, ectx *session.ExecutionContext) plan.Stream {
	return func(yield func(flowerr.Result[plan.Batch]) bool) {
		yield(flowerr.Err[plan.Batch](errDeliberate))
	}
}

var errDeliberate = errors.New("exec_test: deliberate failure")
