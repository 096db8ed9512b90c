package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/climadw/climadw/internal/config"
	"github.com/climadw/climadw/internal/logging"
	"github.com/climadw/climadw/internal/pipeline"
	"github.com/climadw/climadw/internal/state"
	"github.com/climadw/climadw/internal/warehouse"
	"github.com/climadw/climadw/internal/weather"
)

var (
	okColor   = color.New(color.FgGreen)
	failColor = color.New(color.FgRed, color.Bold)
	warnColor = color.New(color.FgYellow)
)

func printOK(w io.Writer, format string, args ...any) {
	okColor.Fprint(w, "✔ ")
	fmt.Fprintf(w, format+"\n", args...)
}

func printFail(w io.Writer, format string, args ...any) {
	failColor.Fprint(w, "✘ ")
	fmt.Fprintf(w, format+"\n", args...)
}

func printWarn(w io.Writer, format string, args ...any) {
	warnColor.Fprint(w, "⚠ ")
	fmt.Fprintf(w, format+"\n", args...)
}

// loadConfig loads and validates the config named by --config. Commands that
// call the weather service pass requireWeather.
func loadConfig(requireWeather bool) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if requireWeather {
		if err := cfg.ValidateWeather(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func setupLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	logger, closer, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Directory)
	if err != nil {
		return nil, nil, fmt.Errorf("setting up logging: %w", err)
	}
	slog.SetDefault(logger)
	return logger, closer, nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newOrchestrator(cfg *config.Config, logger *slog.Logger, st *state.State) *pipeline.Orchestrator {
	return &pipeline.Orchestrator{
		Fetcher:      weather.NewClient(cfg.Weather, nil, logger),
		Locations:    weather.LocationsFromConfig(cfg.Weather.Locations),
		OpenStager:   pipeline.PostgresStager(cfg.Database, cfg.Staging, logger),
		OpenReloader: pipeline.PostgresReloader(cfg.Database, warehouse.StepsFromConfig(cfg.Warehouse), logger),
		State:        st,
		StatePath:    stateFile,
		Logger:       logger,
	}
}

// consoleCallbacks reports stage progress on w.
func consoleCallbacks(w io.Writer) pipeline.Callbacks {
	return pipeline.Callbacks{
		OnStageComplete: func(stage state.Stage, detail string) {
			printOK(w, "%s: %s", stage, detail)
		},
		OnStageSkipped: func(stage state.Stage, reason string) {
			printWarn(w, "%s skipped: %s", stage, reason)
		},
		OnLocationFail: func(location string, err error) {
			printWarn(w, "failed for %s: %v", location, err)
		},
	}
}

// reportedError marks an error already printed to the console.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// reportStageError prints the failing stage and returns err marked as reported.
func reportStageError(w io.Writer, err error) error {
	if err == nil {
		return nil
	}
	printFail(w, "%v", err)
	return &reportedError{err: err}
}

// printError prints err unless a command already reported it.
func printError(w io.Writer, err error) {
	var reported *reportedError
	if errors.As(err, &reported) {
		return
	}
	printFail(w, "Error: %v", err)
}

func printPlan(w io.Writer, steps []warehouse.Step) error {
	r, err := warehouse.NewReloader(steps, nil, nil)
	if err != nil {
		return err
	}
	for _, stmt := range r.Plan() {
		fmt.Fprintf(w, "%s;\n", stmt.SQL)
	}
	return nil
}
