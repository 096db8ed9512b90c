package warehouse

import (
	"context"
	"strings"
)

// RecordingExecutor records every statement it is asked to run. A statement
// containing FailOn returns Err and is still recorded.
type RecordingExecutor struct {
	Statements []string
	FailOn     string
	Err        error
}

// Exec records sql and fails when it matches FailOn.
func (e *RecordingExecutor) Exec(ctx context.Context, sql string) error {
	e.Statements = append(e.Statements, sql)
	if e.FailOn != "" && strings.Contains(sql, e.FailOn) {
		return e.Err
	}
	return nil
}
