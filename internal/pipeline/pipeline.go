// Package pipeline runs fetch, stage and reload as one invocation.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/climadw/climadw/internal/staging"
	"github.com/climadw/climadw/internal/state"
	"github.com/climadw/climadw/internal/weather"
)

// Fetcher collects observations for a set of locations.
type Fetcher interface {
	Fetch(ctx context.Context, locations []weather.Location) (*weather.Result, error)
}

// Stager replaces the staging table contents.
type Stager interface {
	Load(ctx context.Context, obs []weather.Observation) (*staging.Summary, error)
}

// Reloader rebuilds the warehouse from the staging table.
type Reloader interface {
	Reload(ctx context.Context) error
}

// StagerFactory opens a stager on its own connection. close releases it.
type StagerFactory func(ctx context.Context) (s Stager, close func(), err error)

// ReloaderFactory opens a reloader on its own connection. close releases it.
type ReloaderFactory func(ctx context.Context) (r Reloader, close func(), err error)

// StageError identifies the pipeline stage that failed.
type StageError struct {
	Stage state.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Callbacks provides hooks for progress reporting. Any field may be nil.
type Callbacks struct {
	OnStageStart    func(stage state.Stage)
	OnStageComplete func(stage state.Stage, detail string)
	OnStageSkipped  func(stage state.Stage, reason string)
	OnLocationFail  func(location string, err error)
}

// Report summarizes one run.
type Report struct {
	RunID        string
	Observations int
	Succeeded    []string
	Failed       []weather.Failure
	StagedRows   int64
	Reloaded     bool
	Duration     time.Duration
}

// Orchestrator sequences the pipeline stages and records their outcome.
type Orchestrator struct {
	Fetcher      Fetcher
	Locations    []weather.Location
	OpenStager   StagerFactory
	OpenReloader ReloaderFactory

	// State and StatePath are optional; when State is nil nothing is persisted.
	State     *state.State
	StatePath string

	Logger *slog.Logger
}

// Run fetches, stages and reloads. A fetch that yields no observations skips
// staging, leaving the previous batch in place, and the warehouse is still
// rebuilt from it. A failing stage stops the run and is returned as a *StageError.
func (o *Orchestrator) Run(ctx context.Context, cb Callbacks) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.NewString()}

	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("run_id", report.RunID)

	var run *state.Run
	if o.State != nil {
		run = o.State.BeginRun(report.RunID)
		o.saveState(logger)
	}

	logger.Info("pipeline started", "locations", len(o.Locations))

	// fetch
	o.started(run, cb, state.StageFetch)
	result, err := o.Fetcher.Fetch(ctx, o.Locations)
	if result != nil {
		report.Observations = len(result.Observations)
		report.Succeeded = result.Succeeded
		report.Failed = result.Failed
		if cb.OnLocationFail != nil {
			for _, f := range result.Failed {
				cb.OnLocationFail(f.Location, f.Err)
			}
		}
	}
	if err != nil {
		return report, o.failed(logger, run, state.StageFetch, err)
	}
	if result == nil {
		result = &weather.Result{}
	}
	o.completed(run, cb, state.StageFetch, fmt.Sprintf("%d observations from %d/%d locations",
		len(result.Observations), len(result.Succeeded), len(o.Locations)))

	// stage
	if result.Empty() {
		logger.Warn("no observations collected, keeping previous staging rows")
		o.skipped(run, cb, state.StageStage, "no observations collected")
	} else {
		o.started(run, cb, state.StageStage)
		summary, err := o.stage(ctx, result.Observations)
		if err != nil {
			return report, o.failed(logger, run, state.StageStage, err)
		}
		report.StagedRows = summary.Rows
		o.completed(run, cb, state.StageStage, fmt.Sprintf("%d rows (%s)", summary.Rows, summary.Mode))
	}

	// reload
	o.started(run, cb, state.StageReload)
	if err := o.reload(ctx); err != nil {
		return report, o.failed(logger, run, state.StageReload, err)
	}
	report.Reloaded = true
	o.completed(run, cb, state.StageReload, "warehouse rebuilt")

	report.Duration = time.Since(start)
	if run != nil {
		run.Finish()
		o.saveState(logger)
	}
	logger.Info("pipeline complete", "observations", report.Observations, "staged", report.StagedRows, "duration", report.Duration)
	return report, nil
}

// Reload runs only the reload stage, recording it as its own run.
func (o *Orchestrator) Reload(ctx context.Context, cb Callbacks) error {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	var run *state.Run
	if o.State != nil {
		run = o.State.BeginRun(runID)
		run.SkipStage(state.StageFetch, "reload only")
		run.SkipStage(state.StageStage, "reload only")
	}

	o.started(run, cb, state.StageReload)
	if err := o.reload(ctx); err != nil {
		return o.failed(logger, run, state.StageReload, err)
	}
	o.completed(run, cb, state.StageReload, "warehouse rebuilt")
	if run != nil {
		run.Finish()
		o.saveState(logger)
	}
	return nil
}

func (o *Orchestrator) stage(ctx context.Context, obs []weather.Observation) (*staging.Summary, error) {
	stager, closeFn, err := o.OpenStager(ctx)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	return stager.Load(ctx, obs)
}

func (o *Orchestrator) reload(ctx context.Context) error {
	reloader, closeFn, err := o.OpenReloader(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return reloader.Reload(ctx)
}

func (o *Orchestrator) started(run *state.Run, cb Callbacks, stage state.Stage) {
	if run != nil {
		run.StartStage(stage)
	}
	if cb.OnStageStart != nil {
		cb.OnStageStart(stage)
	}
}

func (o *Orchestrator) completed(run *state.Run, cb Callbacks, stage state.Stage, detail string) {
	if run != nil {
		run.CompleteStage(stage, detail)
	}
	if cb.OnStageComplete != nil {
		cb.OnStageComplete(stage, detail)
	}
}

func (o *Orchestrator) skipped(run *state.Run, cb Callbacks, stage state.Stage, reason string) {
	if run != nil {
		run.SkipStage(stage, reason)
	}
	if cb.OnStageSkipped != nil {
		cb.OnStageSkipped(stage, reason)
	}
}

func (o *Orchestrator) failed(logger *slog.Logger, run *state.Run, stage state.Stage, err error) error {
	logger.Error("pipeline stage failed", "stage", stage, "error", err)
	if run != nil {
		run.FailStage(stage, err)
		o.saveState(logger)
	}
	return &StageError{Stage: stage, Err: err}
}

// saveState persists progress; the state file is informational, so a write
// failure is logged and the run continues.
func (o *Orchestrator) saveState(logger *slog.Logger) {
	if err := o.State.Save(o.StatePath); err != nil {
		logger.Warn("saving state failed", "error", err)
	}
}
