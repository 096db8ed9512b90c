// Package staging replaces the contents of the staging table with a fresh batch of observations.
package staging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/climadw/climadw/internal/config"
	"github.com/climadw/climadw/internal/weather"
)

// Columns are the staging table columns in insert order.
var Columns = []string{"city", "country", "date", "temp", "conditions", "description"}

// Session is a single staging transaction.
type Session interface {
	Truncate(ctx context.Context) error
	InsertRow(ctx context.Context, obs weather.Observation) error
	InsertRows(ctx context.Context, obs []weather.Observation) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Opener starts staging sessions.
type Opener interface {
	Begin(ctx context.Context) (Session, error)
}

// LoadError identifies the staging operation that failed. Index is the
// position of the offending record for row inserts and -1 otherwise.
type LoadError struct {
	Op    string
	Index int
	Err   error
}

func (e *LoadError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("staging %s failed at record %d: %v", e.Op, e.Index, e.Err)
	}
	return fmt.Sprintf("staging %s failed: %v", e.Op, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Summary describes a completed load.
type Summary struct {
	Rows     int64
	Mode     string
	Duration time.Duration
}

// Loader writes observations to the staging table.
type Loader struct {
	opener Opener
	mode   string
	logger *slog.Logger
}

// NewLoader creates a loader. mode is config.InsertModeRow or config.InsertModeBatch.
func NewLoader(opener Opener, mode string, logger *slog.Logger) *Loader {
	if mode == "" {
		mode = config.InsertModeRow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{opener: opener, mode: mode, logger: logger}
}

// Load clears the staging table and inserts obs in order, all in one
// transaction. Empty input leaves the table empty. On any failure the
// transaction is rolled back and the previous contents remain.
func (l *Loader) Load(ctx context.Context, obs []weather.Observation) (*Summary, error) {
	start := time.Now()

	sess, err := l.opener.Begin(ctx)
	if err != nil {
		return nil, &LoadError{Op: "begin", Index: -1, Err: err}
	}

	rows, err := l.write(ctx, sess, obs)
	if err != nil {
		if rbErr := sess.Rollback(ctx); rbErr != nil {
			l.logger.Error("staging rollback failed", "error", rbErr)
		}
		return nil, err
	}

	if err := sess.Commit(ctx); err != nil {
		return nil, &LoadError{Op: "commit", Index: -1, Err: err}
	}

	summary := &Summary{Rows: rows, Mode: l.mode, Duration: time.Since(start)}
	l.logger.Info("staging loaded", "rows", rows, "mode", l.mode, "duration", summary.Duration)
	return summary, nil
}

func (l *Loader) write(ctx context.Context, sess Session, obs []weather.Observation) (int64, error) {
	if err := sess.Truncate(ctx); err != nil {
		return 0, &LoadError{Op: "truncate", Index: -1, Err: err}
	}

	if len(obs) == 0 {
		return 0, nil
	}

	if l.mode == config.InsertModeBatch {
		n, err := sess.InsertRows(ctx, obs)
		if err != nil {
			return 0, &LoadError{Op: "copy", Index: -1, Err: err}
		}
		return n, nil
	}

	for i, o := range obs {
		if err := sess.InsertRow(ctx, o); err != nil {
			return 0, &LoadError{Op: "insert", Index: i, Err: err}
		}
	}
	return int64(len(obs)), nil
}
