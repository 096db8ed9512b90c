package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/climadw/climadw/internal/config"
	"github.com/climadw/climadw/internal/weather"
)

var fetchLocations []string

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch observations and print them without writing to the database",
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

		locations := weather.LocationsFromConfig(cfg.Weather.Locations)
		if len(fetchLocations) > 0 {
			locations = selectLocations(cfg, fetchLocations)
		}

		out := cmd.OutOrStdout()
		result, err := weather.NewClient(cfg.Weather, nil, logger).Fetch(ctx, locations)
		if result != nil {
			for _, f := range result.Failed {
				printWarn(out, "failed for %s: %v", f.Location, f.Err)
			}
		}
		if err != nil {
			return reportStageError(out, err)
		}
		if result.Empty() {
			printWarn(out, "no data collected")
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CITY\tCOUNTRY\tDATE\tTEMP\tCONDITIONS\tDESCRIPTION")
		for _, o := range result.Observations {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				o.City, o.Country, o.Date.Format(weather.DateLayout), formatTemp(o.Temp), deref(o.Conditions), deref(o.Description))
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		printOK(out, "%d observations from %d locations", len(result.Observations), len(result.Succeeded))
		return nil
	},
}

// selectLocations returns the configured locations named in names, keeping
// the country from config. Unknown names default to the first configured country.
func selectLocations(cfg *config.Config, names []string) []weather.Location {
	countries := make(map[string]string, len(cfg.Weather.Locations))
	for _, l := range cfg.Weather.Locations {
		countries[l.Name] = l.Country
	}
	fallback := ""
	if len(cfg.Weather.Locations) > 0 {
		fallback = cfg.Weather.Locations[0].Country
	}

	out := make([]weather.Location, 0, len(names))
	for _, n := range names {
		country, ok := countries[n]
		if !ok {
			country = fallback
		}
		out = append(out, weather.Location{Name: n, Country: country})
	}
	return out
}

func formatTemp(t *float64) string {
	if t == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *t)
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func init() {
	fetchCmd.Flags().StringSliceVar(&fetchLocations, "location", nil, "fetch only these locations (repeatable)")
	rootCmd.AddCommand(fetchCmd)
}
