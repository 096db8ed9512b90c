package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/climadw/climadw/internal/config"
	"github.com/climadw/climadw/internal/warehouse"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Create, view and validate the climadw configuration.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current config (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Current configuration:")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "  Database:\n")
		fmt.Fprintf(out, "    Host:           %s\n", cfg.Database.Host)
		fmt.Fprintf(out, "    Port:           %d\n", cfg.Database.Port)
		fmt.Fprintf(out, "    Name:           %s\n", cfg.Database.Name)
		fmt.Fprintf(out, "    User:           %s\n", cfg.Database.User)
		fmt.Fprintf(out, "    Password:       %s\n", maskSecret(cfg.Database.Password))
		fmt.Fprintf(out, "    SSL mode:       %s\n", cfg.Database.SSLMode)
		fmt.Fprintln(out)
		fmt.Fprintf(out, "  Weather:\n")
		fmt.Fprintf(out, "    Base URL:       %s\n", cfg.Weather.BaseURL)
		fmt.Fprintf(out, "    API key:        %s\n", maskSecret(cfg.Weather.APIKey))
		fmt.Fprintf(out, "    Units:          %s\n", cfg.Weather.UnitGroup)
		fmt.Fprintf(out, "    Window:         %d days\n", cfg.Weather.WindowDays)
		fmt.Fprintf(out, "    Locations:      %d\n", len(cfg.Weather.Locations))
		if cfg.Weather.MaxConsecutiveFailures > 0 {
			fmt.Fprintf(out, "    Abort after:    %d consecutive failures\n", cfg.Weather.MaxConsecutiveFailures)
		}
		fmt.Fprintln(out)
		fmt.Fprintf(out, "  Staging:          %s (%s)\n", cfg.Staging.Table, cfg.Staging.InsertMode)

		steps, err := warehouse.Order(warehouse.StepsFromConfig(cfg.Warehouse))
		if err != nil {
			fmt.Fprintf(out, "  Warehouse:        invalid steps: %v\n", err)
		} else {
			names := make([]string, len(steps))
			for i, s := range steps {
				names[i] = s.Name
			}
			fmt.Fprintf(out, "  Warehouse:        %s\n", strings.Join(names, " → "))
		}
		fmt.Fprintf(out, "  Export:           %s\n", cfg.Export.File)
		fmt.Fprintf(out, "  Schedule:         %s %s\n", cfg.Schedule.At, cfg.Schedule.Timezone)
		fmt.Fprintf(out, "  Logs:             %s (%s)\n", cfg.Logging.Directory, cfg.Logging.Level)

		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}

		var problems []string
		if err := cfg.Validate(); err != nil {
			problems = append(problems, err.Error())
		}
		if _, err := warehouse.Order(warehouse.StepsFromConfig(cfg.Warehouse)); err != nil {
			problems = append(problems, "warehouse.steps: "+err.Error())
		}

		out := cmd.OutOrStdout()
		if err := cfg.ValidateWeather(); err != nil {
			printWarn(out, "%v; only export and reload will work", err)
		}
		if len(problems) > 0 {
			fmt.Fprintln(out, "Validation errors:")
			for _, p := range problems {
				fmt.Fprintf(out, "  - %s\n", p)
			}
			return fmt.Errorf("%d validation error(s)", len(problems))
		}

		printOK(out, "Configuration is valid.")
		return nil
	},
}

var initForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file populated with defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.ExpandHome(config.DefaultPath)
		}
		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		if err := config.Default().Save(path); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		printOK(out, "Wrote %s", path)
		fmt.Fprintln(out, "  Set database.name, database.user and weather.api_key (or DB_NAME, DB_USER, WEATHER_API_KEY) before running.")
		return nil
	},
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

func init() {
	configInitCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
