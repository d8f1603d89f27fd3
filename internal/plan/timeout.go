package plan

import (
	"context"
	"time"

	"github.com/surrealkv/surqlcore/internal/flowerr"
	"github.com/surrealkv/surqlcore/internal/kverrors"
	"github.com/surrealkv/surqlcore/internal/session"
	"github.com/surrealkv/surqlcore/internal/value"
)

// TimeoutOp bounds its input's wall-clock time, per spec §6's TIMEOUT
// clause. The child stream is drained on a background goroutine so a
// slow row producer cannot block past the deadline; on timeout the
// partial result is discarded and ErrQueryTimedOut is surfaced, leaving
// the owning transaction's fate (commit vs cancel) to the statement
// executor.
type TimeoutOp struct {
	Input    Operator
	Duration time.Duration
}

func (t *TimeoutOp) Name() string                  { return "Timeout" }
func (t *TimeoutOp) RequiredContext() session.Level { return t.Input.RequiredContext() }
func (t *TimeoutOp) AccessMode() AccessMode         { return t.Input.AccessMode() }
func (t *TimeoutOp) Children() []Operator           { return []Operator{t.Input} }

type timeoutResult struct {
	rows []value.Value
	err  flowerr.Result[Batch]
	ok   bool
}

func (t *TimeoutOp) Execute(ctx context.Context, ectx *session.ExecutionContext) Stream {
	return func(yield func(flowerr.Result[Batch]) bool) {
		deadline, cancel := context.WithTimeout(ctx, t.Duration)
		defer cancel()

		done := make(chan timeoutResult, 1)
		go func() {
			rows, errResult, ok := collect(deadline, t.Input.Execute(deadline, ectx))
			done <- timeoutResult{rows: rows, err: errResult, ok: ok}
		}()

		select {
		case res := <-done:
			if !res.ok {
				yield(res.err)
				return
			}
			yield(flowerr.Ok(Batch(res.rows)))
		case <-deadline.Done():
			yield(flowerr.Err[Batch](kverrors.ErrQueryTimedOut))
		}
	}
}
