package warehouse

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/climadw/climadw/internal/database"
)

// Phases of a reload.
const (
	PhaseTruncate = "truncate"
	PhaseLoad     = "load"
)

// Executor runs one SQL statement to completion.
type Executor interface {
	Exec(ctx context.Context, sql string) error
}

// Statement is one planned SQL statement and the step it belongs to.
type Statement struct {
	Phase string
	Step  string
	SQL   string
}

// StepError identifies the statement that stopped a reload.
type StepError struct {
	Phase     string
	Step      string
	Statement string
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step %s failed: %v", e.Phase, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Callbacks receive progress notifications. Any field may be nil.
type Callbacks struct {
	OnStatement func(stmt Statement)
	OnComplete  func(stmt Statement, elapsed time.Duration)
}

// Reloader truncates and repopulates the warehouse tables.
type Reloader struct {
	steps     []Step
	exec      Executor
	logger    *slog.Logger
	callbacks Callbacks
}

// NewReloader creates a reloader for steps, validating their dependencies up front.
func NewReloader(steps []Step, exec Executor, logger *slog.Logger) (*Reloader, error) {
	ordered, err := Order(steps)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reloader{steps: ordered, exec: exec, logger: logger}, nil
}

// SetCallbacks sets progress callbacks.
func (r *Reloader) SetCallbacks(cb Callbacks) {
	r.callbacks = cb
}

// Plan returns every statement a reload runs, in order: tables are truncated
// dependents first, then routines run dependencies first.
func (r *Reloader) Plan() []Statement {
	stmts := make([]Statement, 0, 2*len(r.steps))
	for i := len(r.steps) - 1; i >= 0; i-- {
		s := r.steps[i]
		stmts = append(stmts, Statement{
			Phase: PhaseTruncate,
			Step:  s.Name,
			SQL:   fmt.Sprintf("TRUNCATE %s RESTART IDENTITY CASCADE", database.QualifiedName(s.Table).Sanitize()),
		})
	}
	for _, s := range r.steps {
		stmts = append(stmts, Statement{
			Phase: PhaseLoad,
			Step:  s.Name,
			SQL:   fmt.Sprintf("CALL %s()", database.QualifiedName(s.Procedure).Sanitize()),
		})
	}
	return stmts
}

// Reload runs the plan. Each statement must succeed before the next one
// starts; the first failure stops the reload and is returned as a *StepError.
func (r *Reloader) Reload(ctx context.Context) error {
	start := time.Now()
	for _, stmt := range r.Plan() {
		if r.callbacks.OnStatement != nil {
			r.callbacks.OnStatement(stmt)
		}

		stepStart := time.Now()
		r.logger.Debug("executing", "phase", stmt.Phase, "step", stmt.Step, "sql", stmt.SQL)
		if err := r.exec.Exec(ctx, stmt.SQL); err != nil {
			r.logger.Error("reload step failed", "phase", stmt.Phase, "step", stmt.Step, "error", err)
			return &StepError{Phase: stmt.Phase, Step: stmt.Step, Statement: stmt.SQL, Err: err}
		}

		elapsed := time.Since(stepStart)
		if stmt.Phase == PhaseLoad {
			r.logger.Info("step loaded", "step", stmt.Step, "duration", elapsed)
		}
		if r.callbacks.OnComplete != nil {
			r.callbacks.OnComplete(stmt, elapsed)
		}
	}

	r.logger.Info("warehouse reloaded", "steps", len(r.steps), "duration", time.Since(start))
	return nil
}
