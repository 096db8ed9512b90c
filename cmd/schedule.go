package cmd

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/spf13/cobra"
)

var (
	scheduleAt  string
	scheduleNow bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the pipeline every day at a fixed time",
	Long: `Stay in the foreground and run the full pipeline once a day. A run that is
still in progress when the next one is due delays it rather than overlapping.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}
		if scheduleAt != "" {
			cfg.Schedule.At = scheduleAt
		}
		if _, err := time.Parse("15:04", cfg.Schedule.At); err != nil {
			return fmt.Errorf("invalid schedule time %q: expected HH:MM", cfg.Schedule.At)
		}
		loc, err := time.LoadLocation(cfg.Schedule.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone %q: %w", cfg.Schedule.Timezone, err)
		}

		logger, closer, err := setupLogger(cfg)
		if err != nil {
			return err
		}
		defer closer.Close()

		ctx, cancel := signalContext()
		defer cancel()

		out := cmd.OutOrStdout()
		job := func() {
			if err := runPipeline(ctx, out, cfg, logger); err != nil {
				logger.Error("scheduled run failed", "error", err)
			}
		}

		s := gocron.NewScheduler(loc)
		s.SingletonModeAll()
		j, err := s.Every(1).Day().At(cfg.Schedule.At).Do(job)
		if err != nil {
			return fmt.Errorf("scheduling pipeline: %w", err)
		}

		if scheduleNow {
			job()
		}

		s.StartAsync()
		printOK(out, "scheduled daily at %s %s; next run %s", cfg.Schedule.At, loc, j.NextRun().Format(time.RFC1123))

		<-ctx.Done()
		s.Stop()
		logger.Info("scheduler stopped")
		return nil
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleAt, "at", "", "time of day to run, HH:MM (default: schedule.at from config)")
	scheduleCmd.Flags().BoolVar(&scheduleNow, "now", false, "also run once immediately")
	rootCmd.AddCommand(scheduleCmd)
}
