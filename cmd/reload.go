package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/climadw/climadw/internal/lock"
	"github.com/climadw/climadw/internal/pipeline"
	"github.com/climadw/climadw/internal/state"
	"github.com/climadw/climadw/internal/warehouse"
)

var reloadDryRun bool

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Rebuild the dimension and fact tables from the staging table",
	Long: `Truncate the fact table and every dimension, then call each load routine
in dependency order. The first failing statement stops the reload.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		steps := warehouse.StepsFromConfig(cfg.Warehouse)

		if reloadDryRun {
			return printPlan(out, steps)
		}

		logger, closer, err := setupLogger(cfg)
		if err != nil {
			return err
		}
		defer closer.Close()

		ctx, cancel := signalContext()
		defer cancel()

		l, err := lock.Acquire("")
		if err != nil {
			return reportStageError(out, err)
		}
		defer l.Release()

		st, err := state.Load(stateFile)
		if err != nil {
			return fmt.Errorf("loading state: %w", err)
		}

		orch := &pipeline.Orchestrator{
			OpenReloader: pipeline.PostgresReloader(cfg.Database, steps, logger),
			State:        st,
			StatePath:    stateFile,
			Logger:       logger,
		}
		return reportStageError(out, orch.Reload(ctx, consoleCallbacks(out)))
	},
}

func init() {
	reloadCmd.Flags().BoolVar(&reloadDryRun, "dry-run", false, "print the statements in execution order without running them")
	rootCmd.AddCommand(reloadCmd)
}
