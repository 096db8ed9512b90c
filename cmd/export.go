package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/climadw/climadw/internal/catalog"
	"github.com/climadw/climadw/internal/database"
	"github.com/climadw/climadw/internal/state"
)

var (
	exportOutput string
	exportFormat string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a DDL snapshot of all tables and routines",
	Long: `Read every table and stored routine outside the excluded schemas and write
them as one document: CREATE TABLE statements with primary and foreign keys,
followed by the definition of each function and procedure. An existing file
is overwritten only once the whole document has been rendered.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(false)
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

		path := exportOutput
		if path == "" {
			path = cfg.Export.File
		}

		out := cmd.OutOrStdout()
		conn, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return reportStageError(out, fmt.Errorf("export: %w", err))
		}
		defer conn.Close(ctx)

		exporter := catalog.NewExporter(catalog.NewPostgres(conn, cfg.Export.ExcludeSchemas), logger)
		res, err := exporter.Export(ctx, path, exportFormat)
		if err != nil {
			return reportStageError(out, fmt.Errorf("export: %w", err))
		}

		st, err := state.Load(stateFile)
		if err == nil {
			st.RecordExport(state.ExportInfo{Path: res.Path, Format: exportFormat, Tables: res.Tables, Routines: res.Routines})
			err = st.Save(stateFile)
		}
		if err != nil {
			logger.Warn("recording export in state failed", "error", err)
		}

		printOK(out, "metadata (%d tables, %d routines) exported to %s", res.Tables, res.Routines, res.Path)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default: export.file from config)")
	exportCmd.Flags().StringVar(&exportFormat, "format", catalog.FormatSQL, "output format (sql, yaml)")
	rootCmd.AddCommand(exportCmd)
}
