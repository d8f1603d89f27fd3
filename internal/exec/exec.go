// Package exec implements the script/statement executor spec §4.5
// describes: a DAG of statements, each with context-source and
// ordering dependencies, run as one goroutine per statement and
// synchronized through a completion map — the same run-loop-plus-mutex
// shape the teacher's reconciler and token manager use for their own
// background work, generalized here from a fixed poll loop to a
// dependency-ordered one-shot fan-out.
package exec

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/surrealkv/surqlcore/internal/ast"
	"github.com/surrealkv/surqlcore/internal/kv"
	"github.com/surrealkv/surqlcore/internal/log"
	"github.com/surrealkv/surqlcore/internal/plan"
	"github.com/surrealkv/surqlcore/internal/session"
	"github.com/surrealkv/surqlcore/internal/value"
)

// Statement is one script entry: the parsed statement plus the plan
// built for it (nil for USE/LET/BEGIN/COMMIT/CANCEL, which the executor
// handles directly rather than through an Operator).
type Statement struct {
	ID            int
	AST           *ast.Statement
	Plan          plan.Operator // nil for context-only statements
	ContextSource int           // -1 means "initial context"
	WaitFor       []int
}

// Outcome is one statement's published result.
type Outcome struct {
	Context  session.ExecutionContext
	Values   []value.Value
	Err      error
	Duration time.Duration
}

// Script runs a DAG of Statements against a Datastore, per spec §4.5.
type Script struct {
	Store   kv.Datastore
	Env     *plan.Env
	Initial session.ExecutionContext
	logger  zerolog.Logger
}

func NewScript(store kv.Datastore, env *plan.Env, initial session.ExecutionContext) *Script {
	return &Script{Store: store, Env: env, Initial: initial, logger: log.WithComponent("exec")}
}

// Run executes every statement, respecting wait_for/context_source
// ordering, and returns one Outcome per statement in script order. A
// statement's own failure never aborts its siblings; it is reported
// in-position (spec §4.5 step 6 / §8's failure-isolation property).
func (s *Script) Run(ctx context.Context, statements []Statement) []Outcome {
	n := len(statements)
	outcomes := make([]Outcome, n)

	var mu sync.Mutex
	done := make([]chan struct{}, n)
	for i := range done {
		done[i] = make(chan struct{})
	}

	var wg sync.WaitGroup
	wg.Add(n)
	for i := range statements {
		go func(i int) {
			defer wg.Done()
			defer close(done[i])
			stmt := statements[i]

			for _, dep := range stmt.WaitFor {
				<-done[dep]
			}

			inputCtx := s.Initial
			if stmt.ContextSource >= 0 {
				<-done[stmt.ContextSource]
				mu.Lock()
				inputCtx = outcomes[stmt.ContextSource].Context
				depErr := outcomes[stmt.ContextSource].Err
				mu.Unlock()
				if depErr != nil {
					mu.Lock()
					outcomes[i] = Outcome{Context: inputCtx, Err: fmt.Errorf("exec: context source statement %d failed: %w", stmt.ContextSource, depErr)}
					mu.Unlock()
					return
				}
			}

			start := time.Now()
			outCtx, values, err := s.runOne(ctx, stmt, inputCtx)
			dur := time.Since(start)

			mu.Lock()
			outcomes[i] = Outcome{Context: outCtx, Values: values, Err: err, Duration: dur}
			mu.Unlock()

			if err != nil {
				s.logger.Warn().Int("statement", i).Err(err).Msg("statement failed")
			}
		}(i)
	}
	wg.Wait()
	return outcomes
}

func (s *Script) runOne(ctx context.Context, stmt Statement, inputCtx session.ExecutionContext) (session.ExecutionContext, []value.Value, error) {
	switch stmt.AST.Kind {
	case ast.KindUse:
		return s.runUse(stmt.AST.Use, inputCtx)
	case ast.KindLet:
		return s.runLet(ctx, stmt, inputCtx)
	case ast.KindBegin:
		return s.runBegin(ctx, inputCtx)
	case ast.KindCommit:
		return s.runCommit(ctx, inputCtx)
	case ast.KindCancel:
		return s.runCancel(ctx, inputCtx)
	default:
		return s.runQuery(ctx, stmt, inputCtx)
	}
}

func (s *Script) runUse(u *ast.Use, inputCtx session.ExecutionContext) (session.ExecutionContext, []value.Value, error) {
	out := inputCtx
	if u.Namespace != nil {
		out = out.WithNamespace(*u.Namespace)
	}
	if u.Database != nil {
		out = out.WithDatabase(*u.Database)
	}
	return out, nil, nil
}

func (s *Script) runLet(ctx context.Context, stmt Statement, inputCtx session.ExecutionContext) (session.ExecutionContext, []value.Value, error) {
	if stmt.Plan == nil {
		return inputCtx, nil, fmt.Errorf("exec: LET statement has no plan")
	}
	rows, err := s.drain(ctx, stmt.Plan, &inputCtx)
	if err != nil {
		return inputCtx, nil, err
	}
	mutator, ok := stmt.Plan.(plan.ContextMutator)
	if !ok {
		return inputCtx, rows, fmt.Errorf("exec: LET plan does not implement ContextMutator")
	}
	return mutator.OutputContext(inputCtx), rows, nil
}

// runBegin opens an explicit write transaction and installs it on the
// context every dependent statement will see, per spec §4.5's "acquire
// the shared transaction handle".
func (s *Script) runBegin(ctx context.Context, inputCtx session.ExecutionContext) (session.ExecutionContext, []value.Value, error) {
	tx, err := s.Store.Begin(ctx, true)
	if err != nil {
		return inputCtx, nil, err
	}
	return inputCtx.WithTransaction(tx), nil, nil
}

func (s *Script) runCommit(ctx context.Context, inputCtx session.ExecutionContext) (session.ExecutionContext, []value.Value, error) {
	if inputCtx.Tx == nil {
		return inputCtx, nil, fmt.Errorf("exec: COMMIT with no open transaction")
	}
	if err := inputCtx.Tx.Commit(ctx); err != nil {
		return inputCtx, nil, err
	}
	return inputCtx.WithTransaction(nil), nil, nil
}

func (s *Script) runCancel(ctx context.Context, inputCtx session.ExecutionContext) (session.ExecutionContext, []value.Value, error) {
	if inputCtx.Tx == nil {
		return inputCtx, nil, fmt.Errorf("exec: CANCEL with no open transaction")
	}
	if err := inputCtx.Tx.Cancel(ctx); err != nil {
		return inputCtx, nil, err
	}
	return inputCtx.WithTransaction(nil), nil, nil
}

// runQuery executes a plan.Operator that is not itself context-mutating
// (SELECT/CREATE/UPDATE/.../RELATE). If the context carries no explicit
// transaction (no enclosing BEGIN), one is opened and committed/canceled
// around this single statement, matching spec §4's "implicit
// single-statement transaction" default.
func (s *Script) runQuery(ctx context.Context, stmt Statement, inputCtx session.ExecutionContext) (session.ExecutionContext, []value.Value, error) {
	if stmt.Plan == nil {
		return inputCtx, nil, fmt.Errorf("exec: statement %d has no plan", stmt.ID)
	}
	execCtx := inputCtx
	owned := false
	if execCtx.Tx == nil {
		writeable := stmt.Plan.AccessMode() == plan.ReadWrite
		tx, err := s.Store.Begin(ctx, writeable)
		if err != nil {
			return inputCtx, nil, err
		}
		execCtx = execCtx.WithTransaction(tx)
		owned = true
	}

	rows, err := s.drain(ctx, stmt.Plan, &execCtx)

	if owned {
		if err != nil || !execCtx.Tx.Writeable() {
			// A read-only transaction has nothing to apply, and Commit
			// on it fails with ErrTransactionReadonly.
			_ = execCtx.Tx.Cancel(ctx)
		} else if commitErr := execCtx.Tx.Commit(ctx); commitErr != nil {
			err = commitErr
		}
		execCtx = execCtx.WithTransaction(nil)
	}
	return inputCtx, rows, err
}

func (s *Script) drain(ctx context.Context, op plan.Operator, execCtx *session.ExecutionContext) ([]value.Value, error) {
	var rows []value.Value
	for r := range op.Execute(ctx, execCtx) {
		if !r.IsOk() {
			if r.Err != nil {
				return rows, r.Err
			}
			return rows, fmt.Errorf("exec: statement signaled %v with no enclosing loop", r.Signal)
		}
		rows = append(rows, r.Value...)
	}
	return rows, nil
}
