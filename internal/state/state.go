// Package state persists the outcome of the most recent pipeline run and export.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/climadw/climadw/internal/config"
)

const DefaultPath = "~/.climadw/state.yaml"

// Stage is one pipeline stage.
type Stage string

const (
	StageFetch  Stage = "fetch"
	StageStage  Stage = "stage"
	StageReload Stage = "reload"
)

// Stages lists the pipeline stages in execution order.
var Stages = []Stage{StageFetch, StageStage, StageReload}

// Status of a run or a stage.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
)

// State is the last run plus the last catalog export.
type State struct {
	LastUpdated time.Time   `yaml:"last_updated"`
	Run         *Run        `yaml:"run,omitempty"`
	Export      *ExportInfo `yaml:"export,omitempty"`
}

// Run is one pipeline invocation.
type Run struct {
	ID         string               `yaml:"id"`
	Status     Status               `yaml:"status"`
	StartedAt  time.Time            `yaml:"started_at"`
	FinishedAt time.Time            `yaml:"finished_at,omitempty"`
	Stages     map[Stage]StageState `yaml:"stages"`
}

// StageState tracks a single stage of a run.
type StageState struct {
	Status      Status    `yaml:"status"`
	Detail      string    `yaml:"detail,omitempty"`
	Error       string    `yaml:"error,omitempty"`
	CompletedAt time.Time `yaml:"completed_at,omitempty"`
}

// ExportInfo records the last catalog export.
type ExportInfo struct {
	Path       string    `yaml:"path"`
	Format     string    `yaml:"format"`
	Tables     int       `yaml:"tables"`
	Routines   int       `yaml:"routines"`
	ExportedAt time.Time `yaml:"exported_at"`
}

// Load reads the state file. A missing file yields an empty state.
func Load(path string) (*State, error) {
	if path == "" {
		path = config.ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{}, nil
		}
		return nil, fmt.Errorf("reading state: %w", err)
	}

	s := &State{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing state: %w", err)
	}
	if s.Run != nil && s.Run.Stages == nil {
		s.Run.Stages = make(map[Stage]StageState)
	}
	return s, nil
}

// Save writes the state file.
func (s *State) Save(path string) error {
	if path == "" {
		path = config.ExpandHome(DefaultPath)
	}

	s.LastUpdated = time.Now()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// BeginRun replaces the previous run with a new one whose stages are all pending.
func (s *State) BeginRun(id string) *Run {
	run := &Run{
		ID:        id,
		Status:    StatusRunning,
		StartedAt: time.Now(),
		Stages:    make(map[Stage]StageState, len(Stages)),
	}
	for _, st := range Stages {
		run.Stages[st] = StageState{Status: StatusPending}
	}
	s.Run = run
	return run
}

// RecordExport stores the outcome of a catalog export.
func (s *State) RecordExport(info ExportInfo) {
	if info.ExportedAt.IsZero() {
		info.ExportedAt = time.Now()
	}
	s.Export = &info
}

// StartStage marks stage as running.
func (r *Run) StartStage(stage Stage) {
	r.Stages[stage] = StageState{Status: StatusRunning}
}

// CompleteStage marks stage as complete with an optional detail line.
func (r *Run) CompleteStage(stage Stage, detail string) {
	r.Stages[stage] = StageState{Status: StatusComplete, Detail: detail, CompletedAt: time.Now()}
}

// SkipStage marks stage as skipped.
func (r *Run) SkipStage(stage Stage, reason string) {
	r.Stages[stage] = StageState{Status: StatusSkipped, Detail: reason, CompletedAt: time.Now()}
}

// FailStage marks stage and the run as failed.
func (r *Run) FailStage(stage Stage, err error) {
	r.Stages[stage] = StageState{Status: StatusFailed, Error: err.Error(), CompletedAt: time.Now()}
	r.Status = StatusFailed
	r.FinishedAt = time.Now()
}

// Finish marks the run complete unless a stage already failed it.
func (r *Run) Finish() {
	if r.Status != StatusFailed {
		r.Status = StatusComplete
	}
	r.FinishedAt = time.Now()
}

// IsStageComplete returns true if the given stage has completed.
func (r *Run) IsStageComplete(stage Stage) bool {
	ss, ok := r.Stages[stage]
	return ok && ss.Status == StatusComplete
}
