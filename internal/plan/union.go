package plan

import (
	"context"

	"github.com/surrealkv/surqlcore/internal/flowerr"
	"github.com/surrealkv/surqlcore/internal/session"
)

// UnionOp concatenates its inputs' streams in input-list order, used when
// a SELECT's FROM clause names more than one source.
type UnionOp struct {
	Inputs []Operator
}

func (u *UnionOp) Name() string { return "Union" }

func (u *UnionOp) RequiredContext() session.Level {
	level := session.LevelRoot
	for _, in := range u.Inputs {
		if in.RequiredContext() > level {
			level = in.RequiredContext()
		}
	}
	return level
}

func (u *UnionOp) AccessMode() AccessMode {
	for _, in := range u.Inputs {
		if in.AccessMode() == ReadWrite {
			return ReadWrite
		}
	}
	return ReadOnly
}

func (u *UnionOp) Children() []Operator { return u.Inputs }

func (u *UnionOp) Execute(ctx context.Context, ectx *session.ExecutionContext) Stream {
	return func(yield func(flowerr.Result[Batch]) bool) {
		for _, in := range u.Inputs {
			for r := range in.Execute(ctx, ectx) {
				if !yield(r) {
					return
				}
				if !r.IsOk() {
					return
				}
			}
		}
	}
}
