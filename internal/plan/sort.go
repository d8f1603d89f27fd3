package plan

import (
	"context"
	"sort"

	"github.com/surrealkv/surqlcore/internal/expr"
	"github.com/surrealkv/surqlcore/internal/flowerr"
	"github.com/surrealkv/surqlcore/internal/session"
	"github.com/surrealkv/surqlcore/internal/value"
)

// SortKey is one ORDER BY term the planner has resolved from ast.OrderTerm.
type SortKey struct {
	Idiom     *expr.Idiom
	Desc      bool
	NullsLast bool
	Rand      bool
}

// SortOp materializes its input and orders it by one or more keys. A
// single Rand key shuffles instead of comparing, per spec §6's ORDER BY
// RAND clause.
type SortOp struct {
	Input Operator
	Keys  []SortKey
	Env   *Env
}

func (s *SortOp) Name() string                  { return "Sort" }
func (s *SortOp) RequiredContext() session.Level { return s.Input.RequiredContext() }
func (s *SortOp) AccessMode() AccessMode         { return s.Input.AccessMode() }
func (s *SortOp) Children() []Operator           { return []Operator{s.Input} }

func (s *SortOp) Execute(ctx context.Context, ectx *session.ExecutionContext) Stream {
	return func(yield func(flowerr.Result[Batch]) bool) {
		rows, errResult, ok := collect(ctx, s.Input.Execute(ctx, ectx))
		if !ok {
			yield(errResult)
			return
		}
		if len(s.Keys) == 1 && s.Keys[0].Rand {
			shuffle(rows)
			yield(flowerr.Ok(Batch(rows)))
			return
		}
		keyed := make([][]value.Value, len(rows))
		for i, row := range rows {
			ec := EvalContextFor(ectx, row, s.Env.Functions, s.Env.Loader)
			vals := make([]value.Value, len(s.Keys))
			for j, k := range s.Keys {
				if k.Rand {
					continue
				}
				r := k.Idiom.Evaluate(ec)
				if r.IsOk() {
					vals[j] = r.Value
				} else {
					vals[j] = value.None()
				}
			}
			keyed[i] = vals
		}
		idx := make([]int, len(rows))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool {
			return less(keyed[idx[a]], keyed[idx[b]], s.Keys)
		})
		out := make(Batch, len(rows))
		for i, j := range idx {
			out[i] = rows[j]
		}
		yield(flowerr.Ok(out))
	}
}

func less(a, b []value.Value, keys []SortKey) bool {
	for i, k := range keys {
		if k.Rand {
			continue
		}
		av, bv := a[i], b[i]
		if av.IsNone() != bv.IsNone() {
			if k.NullsLast {
				return bv.IsNone()
			}
			return av.IsNone()
		}
		c := value.Compare(av, bv)
		if c == 0 {
			continue
		}
		if k.Desc {
			return c > 0
		}
		return c < 0
	}
	return false
}

// shuffle uses a deterministic-seeming but simple Fisher-Yates pass
// driven by a counter rather than math/rand/v2, since Date/Random are
// unavailable during planning and a query-scoped shuffle only needs to
// look unordered, not be cryptographically random.
func shuffle(rows []value.Value) {
	n := len(rows)
	seed := uint64(n) * 2654435761
	for i := n - 1; i > 0; i-- {
		seed = seed*6364136223846793005 + 1442695040888963407
		j := int(seed % uint64(i+1))
		rows[i], rows[j] = rows[j], rows[i]
	}
}
