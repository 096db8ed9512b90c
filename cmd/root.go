package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	logLevel  string
	stateFile string
	version   = "dev"
	commit    = "none"
	date      = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "climadw",
	Short: "climadw — daily weather ETL into a Postgres star schema",
	Long: `climadw pulls daily weather observations for a list of locations from the
Visual Crossing timeline API, stages them in Postgres and rebuilds the
dimensional warehouse (dim.date, dim.country, dim.city, dim.conditions,
fact.temperature) through its stored procedures.

It can also export a DDL snapshot of every table and routine in the database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	rootCmd.Version = version + " (" + commit + ", " + date + ")"
	if err := rootCmd.Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.climadw/climadw.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config")
	rootCmd.PersistentFlags().StringVar(&stateFile, "state", "", "state file (default: ~/.climadw/state.yaml)")
}
