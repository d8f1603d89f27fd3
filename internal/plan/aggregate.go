package plan

import (
	"context"
	"fmt"

	"github.com/surrealkv/surqlcore/internal/agg"
	"github.com/surrealkv/surqlcore/internal/flowerr"
	"github.com/surrealkv/surqlcore/internal/session"
	"github.com/surrealkv/surqlcore/internal/value"
)

// AggregateOp groups its input by Plan.GroupExprs, updates one
// accumulator state per Plan.Accumulators entry per group, and emits one
// synthetic row per distinct group carrying _g<j>/_a<i> fields, per spec
// §4.4. The planner wraps this with a Project/ProjectValue evaluating the
// analyzer-rewritten field expressions against that synthetic row.
type AggregateOp struct {
	Input Operator
	Plan  *agg.Plan
	Env   *Env
}

func (a *AggregateOp) Name() string                  { return "Aggregate" }
func (a *AggregateOp) RequiredContext() session.Level { return a.Input.RequiredContext() }
func (a *AggregateOp) AccessMode() AccessMode         { return a.Input.AccessMode() }
func (a *AggregateOp) Children() []Operator           { return []Operator{a.Input} }

type groupEntry struct {
	keyValues []value.Value
	states    []*agg.State
}

func (a *AggregateOp) Execute(ctx context.Context, ectx *session.ExecutionContext) Stream {
	return func(yield func(flowerr.Result[Batch]) bool) {
		rows, errResult, ok := collect(ctx, a.Input.Execute(ctx, ectx))
		if !ok {
			yield(errResult)
			return
		}
		order := []string{}
		groups := map[string]*groupEntry{}
		for _, row := range rows {
			ec := EvalContextFor(ectx, row, a.Env.Functions, a.Env.Loader)
			keyValues := make([]value.Value, len(a.Plan.GroupExprs))
			for j, g := range a.Plan.GroupExprs {
				r := g.Evaluate(ec)
				if !r.IsOk() {
					yield(flowerr.Result[Batch]{Signal: r.Signal, Err: r.Err})
					return
				}
				keyValues[j] = r.Value
			}
			key := groupKey(keyValues)
			ge, exists := groups[key]
			if !exists {
				ge = &groupEntry{keyValues: keyValues, states: make([]*agg.State, len(a.Plan.Accumulators))}
				for i, acc := range a.Plan.Accumulators {
					ge.states[i] = agg.NewState(acc.Kind)
				}
				groups[key] = ge
				order = append(order, key)
			}
			for i, acc := range a.Plan.Accumulators {
				var argVal value.Value
				if acc.Arg != nil {
					r := acc.Arg.Evaluate(ec)
					if !r.IsOk() {
						yield(flowerr.Result[Batch]{Signal: r.Signal, Err: r.Err})
						return
					}
					argVal = r.Value
				}
				ge.states[i].Update(argVal)
			}
		}
		out := make(Batch, 0, len(order))
		for _, key := range order {
			ge := groups[key]
			fields := make(map[string]value.Value, len(ge.keyValues)+len(ge.states))
			for j, v := range ge.keyValues {
				fields[agg.GroupField(j)] = v
			}
			for i, st := range ge.states {
				fields[agg.ArgField(i)] = st.Result()
			}
			out = append(out, value.Object(fields))
		}
		yield(flowerr.Ok(out))
	}
}

func groupKey(values []value.Value) string {
	s := ""
	for i, v := range values {
		if i > 0 {
			s += "\x00"
		}
		s += fmt.Sprintf("%d:%s", v.Kind(), scalarString(v))
	}
	return s
}

// scalarString renders a value for use as a group-key component. It need
// only be injective over the variants GROUP BY keys realistically take
// (string, number, bool, datetime, record-id, uuid); composite values
// fall back to their element count, which is good enough for
// deduplication purposes here.
func scalarString(v value.Value) string {
	switch v.Kind() {
	case value.KindString, value.KindBytes, value.KindRegex, value.KindFile:
		s, _ := v.AsString()
		return s
	case value.KindNumber:
		n, _ := v.AsNumber()
		return n.String()
	case value.KindBool:
		b, _ := v.AsBool()
		return fmt.Sprintf("%t", b)
	case value.KindDatetime:
		t, _ := v.AsDatetime()
		return t.Format("20060102150405.000000000Z07:00")
	case value.KindUUID:
		id, _ := v.AsUUID()
		return id.String()
	case value.KindRecordID:
		rid, _ := v.AsRecordID()
		if rid == nil {
			return ""
		}
		return rid.String()
	case value.KindNone, value.KindNull:
		return ""
	default:
		arr, _ := v.AsArray()
		obj, _ := v.AsObject()
		return fmt.Sprintf("len=%d,%d", len(arr), len(obj))
	}
}
