package cmd

import (
	"github.com/spf13/cobra"

	"github.com/climadw/climadw/internal/database"
	"github.com/climadw/climadw/internal/lock"
	"github.com/climadw/climadw/internal/staging"
	"github.com/climadw/climadw/internal/weather"
)

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Fetch observations and replace the staging table, without reloading",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}
		logger, closer, err := setupLogger(cfg)
		if err != nil {
			return err
		}
		defer closer.Close()

		ctx, cancel := signalContext()
		defer cancel()

		out := cmd.OutOrStdout()
		l, err := lock.Acquire("")
		if err != nil {
			return reportStageError(out, err)
		}
		defer l.Release()

		result, err := weather.NewClient(cfg.Weather, nil, logger).Fetch(ctx, weather.LocationsFromConfig(cfg.Weather.Locations))
		if result != nil {
			for _, f := range result.Failed {
				printWarn(out, "failed for %s: %v", f.Location, f.Err)
			}
		}
		if err != nil {
			return reportStageError(out, err)
		}

		conn, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return reportStageError(out, err)
		}
		defer conn.Close(ctx)

		loader := staging.NewLoader(staging.NewPostgresOpener(conn, cfg.Staging.Table), cfg.Staging.InsertMode, logger)
		summary, err := loader.Load(ctx, result.Observations)
		if err != nil {
			return reportStageError(out, err)
		}

		printOK(out, "%s now holds %d rows", cfg.Staging.Table, summary.Rows)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stageCmd)
}
