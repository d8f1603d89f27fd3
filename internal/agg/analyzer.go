// Package agg implements the aggregation analyzer and accumulators spec
// §4.4 describes: GROUP BY queries are rewritten into an argument list, a
// set of accumulators, and a per-group result expression referencing
// synthetic fields, rather than evaluated against every row directly.
package agg

import (
	"fmt"

	"github.com/surrealkv/surqlcore/internal/expr"
)

// Kind discriminates the accumulator variants spec §4.4 names.
type Kind int

const (
	KindCount Kind = iota
	KindMathMax
	KindMathMin
	KindMathSum
	KindMathMean
	KindMathStdDev
	KindMathVariance
	KindTimeMax
	KindTimeMin
	KindAccumulate // collects every value seen, for a bare non-grouped field
)

var functionKinds = map[string]Kind{
	"count":          KindCount,
	"math::max":      KindMathMax,
	"math::min":      KindMathMin,
	"math::sum":      KindMathSum,
	"math::mean":     KindMathMean,
	"math::stddev":   KindMathStdDev,
	"math::variance": KindMathVariance,
	"time::max":      KindTimeMax,
	"time::min":      KindTimeMin,
}

// Accumulator is one registered aggregate call: its kind and the
// argument expression (evaluated per input row, then passed to Update).
type Accumulator struct {
	Kind Kind
	Arg  *expr.Expr // nil for count()
}

// Plan is the analyzer's output: the group-by key expressions and the
// registered accumulators in index order (referenced by selectors as
// _a<i>). The selector expressions themselves are rewritten in place by
// Analyze and stay with the caller, to be evaluated against the
// per-group synthetic row.
type Plan struct {
	GroupExprs   []*expr.Idiom
	Accumulators []Accumulator
	AllowBareAccumulate bool
}

// ArgField is the synthetic field name an accumulator's running value is
// exposed under in the per-group row the planner builds.
func ArgField(i int) string { return fmt.Sprintf("_a%d", i) }

// GroupField is the synthetic field name a GROUP BY key expression's
// value is exposed under in the per-group row.
func GroupField(j int) string { return fmt.Sprintf("_g%d", j) }

// Analyze walks each selector expression, registering an accumulator for
// every recognized aggregate call and rewriting that call node in place
// to reference its synthetic _a<i> field, and rewriting any bare idiom
// that structurally matches a GROUP BY key to reference its _g<j> field.
// A bare field idiom that is neither an aggregate argument nor a group
// key is registered as an Accumulate accumulator when allowBareAccumulate
// is true (a non-materialized view context); otherwise analysis fails
// with an InvalidAggregationSelector-shaped error.
func Analyze(selectors []*expr.Expr, groups []*expr.Idiom, allowBareAccumulate bool) (*Plan, error) {
	p := &Plan{GroupExprs: groups, AllowBareAccumulate: allowBareAccumulate}
	for _, sel := range selectors {
		if err := p.rewrite(sel); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Plan) rewrite(e *expr.Expr) error {
	if e == nil {
		return nil
	}
	switch e.Kind {
	case expr.KindCall:
		if kind, ok := functionKinds[e.Call.Name]; ok {
			return p.rewriteAggregateCall(e, kind)
		}
		for _, arg := range e.Call.Args {
			if err := p.rewrite(arg); err != nil {
				return err
			}
		}
		return nil
	case expr.KindIdiom:
		if j, ok := p.matchesGroup(e.Idiom); ok {
			rewriteToField(e, GroupField(j))
			return nil
		}
		if e.Idiom.Base != nil {
			return p.rewrite(e.Idiom.Base)
		}
		if isBareFieldIdiom(e.Idiom) {
			if !p.AllowBareAccumulate {
				return fmt.Errorf("agg: selector %q is neither a group key nor an aggregate argument", fieldPath(e.Idiom))
			}
			i := p.register(Accumulator{Kind: KindAccumulate, Arg: cloneExpr(e)})
			rewriteToField(e, ArgField(i))
		}
		return nil
	case expr.KindBinary:
		if err := p.rewrite(e.Left); err != nil {
			return err
		}
		return p.rewrite(e.Right)
	case expr.KindUnary:
		return p.rewrite(e.Operand)
	case expr.KindClosure:
		return p.rewrite(e.Closure.Body)
	default:
		return nil
	}
}

func (p *Plan) rewriteAggregateCall(e *expr.Expr, kind Kind) error {
	var arg *expr.Expr
	if len(e.Call.Args) > 0 {
		arg = e.Call.Args[0]
	}
	for idx, acc := range p.Accumulators {
		if acc.Kind == kind && exprsEqual(acc.Arg, arg) {
			rewriteToField(e, ArgField(idx))
			return nil
		}
	}
	i := p.register(Accumulator{Kind: kind, Arg: arg})
	rewriteToField(e, ArgField(i))
	return nil
}

func (p *Plan) register(a Accumulator) int {
	p.Accumulators = append(p.Accumulators, a)
	return len(p.Accumulators) - 1
}

func (p *Plan) matchesGroup(i *expr.Idiom) (int, bool) {
	for j, g := range p.GroupExprs {
		if idiomsEqual(i, g) {
			return j, true
		}
	}
	return 0, false
}

func rewriteToField(e *expr.Expr, field string) {
	*e = expr.Expr{Kind: expr.KindIdiom, Idiom: expr.NewIdiom(expr.FieldPart(field))}
}

func isBareFieldIdiom(i *expr.Idiom) bool {
	if i.Base != nil {
		return false
	}
	for _, part := range i.Parts {
		if part.Kind != expr.PartField {
			return false
		}
	}
	return len(i.Parts) > 0
}

func fieldPath(i *expr.Idiom) string {
	s := ""
	for _, part := range i.Parts {
		if part.Kind == expr.PartField {
			if s != "" {
				s += "."
			}
			s += part.Field
		}
	}
	return s
}

func cloneExpr(e *expr.Expr) *expr.Expr {
	c := *e
	return &c
}

func idiomsEqual(a, b *expr.Idiom) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	if len(a.Parts) != len(b.Parts) {
		return false
	}
	for i := range a.Parts {
		if a.Parts[i].Kind != b.Parts[i].Kind || a.Parts[i].Field != b.Parts[i].Field {
			return false
		}
	}
	return exprsEqual(a.Base, b.Base)
}

func exprsEqual(a, b *expr.Expr) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case expr.KindParam:
		return a.Param == b.Param
	case expr.KindIdiom:
		return idiomsEqual(a.Idiom, b.Idiom)
	case expr.KindCall:
		if a.Call.Name != b.Call.Name || len(a.Call.Args) != len(b.Call.Args) {
			return false
		}
		for i := range a.Call.Args {
			if !exprsEqual(a.Call.Args[i], b.Call.Args[i]) {
				return false
			}
		}
		return true
	case expr.KindBinary:
		return a.BinOp == b.BinOp && exprsEqual(a.Left, b.Left) && exprsEqual(a.Right, b.Right)
	case expr.KindUnary:
		return a.UnOp == b.UnOp && exprsEqual(a.Operand, b.Operand)
	case expr.KindLiteral:
		return true // distinct literal nodes are rare as aggregate args; treated as structurally equal by kind+shape only
	default:
		return false
	}
}
