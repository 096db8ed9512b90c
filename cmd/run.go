package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/climadw/climadw/internal/config"
	"github.com/climadw/climadw/internal/lock"
	"github.com/climadw/climadw/internal/state"
	"github.com/climadw/climadw/internal/warehouse"
	"github.com/climadw/climadw/internal/weather"
)

var runDryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch, stage and reload the warehouse",
	Long: `Fetch the trailing window of daily observations for every configured
location, replace the staging table with them and rebuild the dimension and
fact tables. Locations the weather service rejects are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if runDryRun {
			return printRunPlan(out, cfg)
		}

		logger, closer, err := setupLogger(cfg)
		if err != nil {
			return err
		}
		defer closer.Close()

		ctx, cancel := signalContext()
		defer cancel()

		return runPipeline(ctx, out, cfg, logger)
	},
}

// runPipeline runs one full pipeline under the host lock.
func runPipeline(ctx context.Context, out io.Writer, cfg *config.Config, logger *slog.Logger) error {
	l, err := lock.Acquire("")
	if err != nil {
		return reportStageError(out, err)
	}
	defer l.Release()

	st, err := state.Load(stateFile)
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}

	report, err := newOrchestrator(cfg, logger, st).Run(ctx, consoleCallbacks(out))
	if err != nil {
		return reportStageError(out, err)
	}

	printOK(out, "run %s complete in %s", report.RunID, report.Duration.Round(time.Millisecond))
	return nil
}

func printRunPlan(w io.Writer, cfg *config.Config) error {
	client := weather.NewClient(cfg.Weather, nil, nil)
	start, end := client.Window()

	fmt.Fprintln(w, "Dry run — nothing will be fetched or written.")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Fetch %d locations from %s to %s (%s)\n", len(cfg.Weather.Locations),
		start.Format(weather.DateLayout), end.Format(weather.DateLayout), cfg.Weather.UnitGroup)
	fmt.Fprintf(w, "Stage into %s (%s inserts)\n", cfg.Staging.Table, cfg.Staging.InsertMode)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Reload:")
	return printPlan(w, warehouse.StepsFromConfig(cfg.Warehouse))
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "print what would run without fetching or writing")
	rootCmd.AddCommand(runCmd)
}
