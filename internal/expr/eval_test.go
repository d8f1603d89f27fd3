package expr_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surrealkv/surqlcore/internal/expr"
	"github.com/surrealkv/surqlcore/internal/session"
	"github.com/surrealkv/surqlcore/internal/value"
)

func newCtx(current value.Value) *expr.EvalContext {
	sess := session.Root(session.Auth{Role: "owner"}, nil)
	return &expr.EvalContext{Session: sess, Current: current}
}

func TestLiteralEvaluatesToItself(t *testing.T) {
	r := expr.Lit(value.Int(42)).Evaluate(newCtx(value.None()))
	require.True(t, r.IsOk())
	n, _ := r.Value.AsNumber()
	assert.Equal(t, int64(42), n.I)
}

func TestIdiomFieldLookupMissingYieldsNone(t *testing.T) {
	row := value.Object(map[string]value.Value{"name": value.String("ada")})
	e := expr.IdiomExpr(expr.NewIdiom(expr.FieldPart("missing")))
	r := e.Evaluate(newCtx(row))
	require.True(t, r.IsOk())
	assert.True(t, r.Value.IsNone())
}

func TestIdiomFieldLookupFound(t *testing.T) {
	row := value.Object(map[string]value.Value{"name": value.String("ada")})
	e := expr.IdiomExpr(expr.NewIdiom(expr.FieldPart("name")))
	r := e.Evaluate(newCtx(row))
	require.True(t, r.IsOk())
	s, _ := r.Value.AsString()
	assert.Equal(t, "ada", s)
}

func TestIdiomIndexOutOfRangeYieldsNone(t *testing.T) {
	row := value.Array([]value.Value{value.Int(1), value.Int(2)})
	e := expr.IdiomExpr(expr.NewIdiom(expr.IndexPart(5)))
	r := e.Evaluate(newCtx(row))
	require.True(t, r.IsOk())
	assert.True(t, r.Value.IsNone())
}

func TestIdiomWhereFiltersArrayOfObjects(t *testing.T) {
	row := value.Array([]value.Value{
		value.Object(map[string]value.Value{"active": value.Bool(true)}),
		value.Object(map[string]value.Value{"active": value.Bool(false)}),
	})
	pred := expr.IdiomExpr(expr.NewIdiom(expr.FieldPart("active")))
	e := expr.IdiomExpr(expr.NewIdiom(expr.WherePart(pred)))
	r := e.Evaluate(newCtx(row))
	require.True(t, r.IsOk())
	arr, _ := r.Value.AsArray()
	assert.Len(t, arr, 1)
}

func TestBinaryArithmeticWidensIntToFloat(t *testing.T) {
	e := expr.Binary(expr.OpAdd, expr.Lit(value.Int(1)), expr.Lit(value.Float(0.5)))
	r := e.Evaluate(newCtx(value.None()))
	require.True(t, r.IsOk())
	n, _ := r.Value.AsNumber()
	assert.Equal(t, value.NumberFloat, n.Kind)
	assert.Equal(t, 1.5, n.F)
}

func TestBinaryArithmeticWidensToDecimal(t *testing.T) {
	dec := new(big.Rat).SetFrac64(3, 2)
	e := expr.Binary(expr.OpAdd, expr.Lit(value.Decimal(dec)), expr.Lit(value.Int(1)))
	r := e.Evaluate(newCtx(value.None()))
	require.True(t, r.IsOk())
	n, _ := r.Value.AsNumber()
	assert.Equal(t, value.NumberDecimal, n.Kind)
	assert.Equal(t, "5/2", n.D.RatString())
}

func TestComparisonOperators(t *testing.T) {
	e := expr.Binary(expr.OpLt, expr.Lit(value.Int(1)), expr.Lit(value.Int(2)))
	r := e.Evaluate(newCtx(value.None()))
	require.True(t, r.IsOk())
	b, _ := r.Value.AsBool()
	assert.True(t, b)
}

func TestLogicalAndShortCircuits(t *testing.T) {
	e := expr.Binary(expr.OpAnd, expr.Lit(value.Bool(false)), expr.Lit(value.None()))
	r := e.Evaluate(newCtx(value.None()))
	require.True(t, r.IsOk())
	b, _ := r.Value.AsBool()
	assert.False(t, b)
}

func TestParamLookup(t *testing.T) {
	ctx := newCtx(value.None())
	ctx.Session = ctx.Session.WithParameter("limit", value.Int(10))
	e := expr.ParamRef("limit")
	r := e.Evaluate(ctx)
	require.True(t, r.IsOk())
	n, _ := r.Value.AsNumber()
	assert.Equal(t, int64(10), n.I)
}

func TestParentParam(t *testing.T) {
	ctx := newCtx(value.String("child"))
	withParent := ctx.WithParent(value.String("parent-row"))
	e := expr.ParamRef("parent")
	r := e.Evaluate(&withParent)
	require.True(t, r.IsOk())
	s, _ := r.Value.AsString()
	assert.Equal(t, "parent-row", s)
}

func TestReferencesCurrentValue(t *testing.T) {
	idiomExpr := expr.IdiomExpr(expr.NewIdiom(expr.FieldPart("x")))
	assert.True(t, idiomExpr.ReferencesCurrentValue())
	lit := expr.Lit(value.Int(1))
	assert.False(t, lit.ReferencesCurrentValue())
}
