package expr

import (
	"fmt"
	"math"
	"math/big"

	"github.com/surrealkv/surqlcore/internal/flowerr"
	"github.com/surrealkv/surqlcore/internal/value"
)

// Evaluate implements the Expr contract from spec §4.2:
// evaluate(ctx) -> FlowResult<Value>.
func (e *Expr) Evaluate(ctx *EvalContext) flowerr.Result[value.Value] {
	switch e.Kind {
	case KindLiteral:
		return flowerr.Ok(e.Literal)
	case KindParam:
		return e.evalParam(ctx)
	case KindIdiom:
		return e.Idiom.Evaluate(ctx)
	case KindBinary:
		return e.evalBinary(ctx)
	case KindUnary:
		return e.evalUnary(ctx)
	case KindRecordID:
		return flowerr.Ok(value.RecordIDValue(e.RecordID))
	case KindRange:
		return flowerr.Ok(value.RangeValue(e.Range))
	case KindClosure:
		// A bare closure evaluates to itself only in higher-order
		// position (e.g. passed to where(...)); standing alone it has
		// no value.
		return flowerr.Ok(value.None())
	case KindCall:
		return e.evalCall(ctx)
	case KindSubquery:
		return e.evalSubquery(ctx)
	default:
		return flowerr.Err[value.Value](fmt.Errorf("expr: unknown kind %d", e.Kind))
	}
}

// ReferencesCurrentValue reports whether evaluating e can observe $this,
// used by ExprPlan (spec §4.3) to reject scalar expressions that
// accidentally depend on row context.
func (e *Expr) ReferencesCurrentValue() bool {
	switch e.Kind {
	case KindLiteral, KindParam, KindRecordID, KindRange:
		return false
	case KindIdiom:
		if e.Idiom.Base != nil {
			return e.Idiom.Base.ReferencesCurrentValue()
		}
		return true
	case KindBinary:
		return e.Left.ReferencesCurrentValue() || e.Right.ReferencesCurrentValue()
	case KindUnary:
		return e.Operand.ReferencesCurrentValue()
	case KindClosure:
		return e.Closure.Body.ReferencesCurrentValue()
	case KindCall:
		for _, a := range e.Call.Args {
			if a.ReferencesCurrentValue() {
				return true
			}
		}
		return false
	case KindSubquery:
		return false
	default:
		return false
	}
}

func (e *Expr) evalParam(ctx *EvalContext) flowerr.Result[value.Value] {
	if e.Param == "parent" {
		if ctx.Parent == nil {
			return flowerr.Ok(value.None())
		}
		return flowerr.Ok(*ctx.Parent)
	}
	if v, ok := ctx.Session.Parameter(e.Param); ok {
		return flowerr.Ok(v)
	}
	return flowerr.Ok(value.None())
}

func (e *Expr) evalCall(ctx *EvalContext) flowerr.Result[value.Value] {
	args := make([]value.Value, 0, len(e.Call.Args))
	for _, a := range e.Call.Args {
		r := a.Evaluate(ctx)
		if !r.IsOk() {
			return r
		}
		args = append(args, r.Value)
	}
	if ctx.Functions == nil {
		return flowerr.Err[value.Value](fmt.Errorf("expr: no function dispatcher configured for %q", e.Call.Name))
	}
	v, err := ctx.Functions.Call(ctx, e.Call.Name, args)
	if err != nil {
		return flowerr.Err[value.Value](err)
	}
	return flowerr.Ok(v)
}

func (e *Expr) evalSubquery(ctx *EvalContext) flowerr.Result[value.Value] {
	values, err := e.Subquery.Run(ctx)
	if err != nil {
		return flowerr.Err[value.Value](err)
	}
	return flowerr.Ok(value.Array(values))
}

func (e *Expr) evalUnary(ctx *EvalContext) flowerr.Result[value.Value] {
	r := e.Operand.Evaluate(ctx)
	if !r.IsOk() {
		return r
	}
	switch e.UnOp {
	case OpNot:
		return flowerr.Ok(value.Bool(!r.Value.IsTruthy()))
	case OpNeg:
		n, ok := r.Value.AsNumber()
		if !ok {
			return flowerr.Ok(value.None())
		}
		return flowerr.Ok(negate(n))
	default:
		return flowerr.Err[value.Value](fmt.Errorf("expr: unknown unary op %d", e.UnOp))
	}
}

func negate(n value.Number) value.Value {
	switch n.Kind {
	case value.NumberInt:
		return value.Int(-n.I)
	case value.NumberFloat:
		return value.Float(-n.F)
	case value.NumberDecimal:
		return value.Decimal(new(big.Rat).Neg(n.D))
	default:
		return value.None()
	}
}

func (e *Expr) evalBinary(ctx *EvalContext) flowerr.Result[value.Value] {
	left := e.Left.Evaluate(ctx)
	if !left.IsOk() {
		return left
	}
	// Short-circuit logical operators without evaluating the right side.
	switch e.BinOp {
	case OpAnd:
		if !left.Value.IsTruthy() {
			return flowerr.Ok(value.Bool(false))
		}
	case OpOr:
		if left.Value.IsTruthy() {
			return flowerr.Ok(value.Bool(true))
		}
	}
	right := e.Right.Evaluate(ctx)
	if !right.IsOk() {
		return right
	}
	switch e.BinOp {
	case OpAnd:
		return flowerr.Ok(value.Bool(right.Value.IsTruthy()))
	case OpOr:
		return flowerr.Ok(value.Bool(right.Value.IsTruthy()))
	case OpEq:
		return flowerr.Ok(value.Bool(value.Compare(left.Value, right.Value) == 0))
	case OpNeq:
		return flowerr.Ok(value.Bool(value.Compare(left.Value, right.Value) != 0))
	case OpLt:
		return flowerr.Ok(value.Bool(value.Compare(left.Value, right.Value) < 0))
	case OpLte:
		return flowerr.Ok(value.Bool(value.Compare(left.Value, right.Value) <= 0))
	case OpGt:
		return flowerr.Ok(value.Bool(value.Compare(left.Value, right.Value) > 0))
	case OpGte:
		return flowerr.Ok(value.Bool(value.Compare(left.Value, right.Value) >= 0))
	case OpContains:
		return flowerr.Ok(value.Bool(containsValue(left.Value, right.Value)))
	case OpInside:
		return flowerr.Ok(value.Bool(containsValue(right.Value, left.Value)))
	case OpAdd, OpSub, OpMul, OpDiv:
		return evalArith(e.BinOp, left.Value, right.Value)
	default:
		return flowerr.Err[value.Value](fmt.Errorf("expr: unknown binary op %d", e.BinOp))
	}
}

func containsValue(haystack, needle value.Value) bool {
	if arr, ok := haystack.AsArray(); ok {
		for _, v := range arr {
			if value.Compare(v, needle) == 0 {
				return true
			}
		}
		return false
	}
	if s, ok := haystack.AsString(); ok {
		if n, ok := needle.AsString(); ok {
			return containsSubstring(s, n)
		}
	}
	return false
}

func containsSubstring(s, sub string) bool {
	if len(sub) == 0 {
		return true
	}
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

// evalArith implements spec §4.2's widening rule: int < float < decimal.
// A decimal operand forces decimal arithmetic; otherwise a float operand
// forces float arithmetic; otherwise both sides stay integer.
func evalArith(op BinaryOp, l, r value.Value) flowerr.Result[value.Value] {
	ln, lok := l.AsNumber()
	rn, rok := r.AsNumber()
	if !lok || !rok {
		return flowerr.Err[value.Value](fmt.Errorf("expr: arithmetic on non-number operand"))
	}
	if ln.Kind == value.NumberDecimal || rn.Kind == value.NumberDecimal {
		ld, rd := toRat(ln), toRat(rn)
		if ld == nil || rd == nil {
			return flowerr.Err[value.Value](fmt.Errorf("expr: cannot mix decimal with non-finite float"))
		}
		return flowerr.Ok(value.Decimal(ratArith(op, ld, rd)))
	}
	if ln.Kind == value.NumberFloat || rn.Kind == value.NumberFloat {
		return flowerr.Ok(value.Float(floatArith(op, ln.Float(), rn.Float())))
	}
	return flowerr.Ok(value.Int(intArith(op, ln.I, rn.I)))
}

func toRat(n value.Number) *big.Rat {
	switch n.Kind {
	case value.NumberDecimal:
		return n.D
	case value.NumberInt:
		return new(big.Rat).SetInt64(n.I)
	case value.NumberFloat:
		if math.IsNaN(n.F) || math.IsInf(n.F, 0) {
			return nil
		}
		r := new(big.Rat)
		r.SetFloat64(n.F)
		return r
	}
	return nil
}

func ratArith(op BinaryOp, l, r *big.Rat) *big.Rat {
	out := new(big.Rat)
	switch op {
	case OpAdd:
		return out.Add(l, r)
	case OpSub:
		return out.Sub(l, r)
	case OpMul:
		return out.Mul(l, r)
	case OpDiv:
		return out.Quo(l, r)
	}
	return out
}

func floatArith(op BinaryOp, l, r float64) float64 {
	switch op {
	case OpAdd:
		return l + r
	case OpSub:
		return l - r
	case OpMul:
		return l * r
	case OpDiv:
		return l / r
	}
	return 0
}

func intArith(op BinaryOp, l, r int64) int64 {
	switch op {
	case OpAdd:
		return l + r
	case OpSub:
		return l - r
	case OpMul:
		return l * r
	case OpDiv:
		if r == 0 {
			return 0
		}
		return l / r
	}
	return 0
}
