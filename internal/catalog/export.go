package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Output formats.
const (
	FormatSQL  = "sql"
	FormatYAML = "yaml"
)

// Result describes a written export.
type Result struct {
	Path     string
	Tables   int
	Routines int
	Bytes    int
}

// Exporter writes a catalog snapshot to a file.
type Exporter struct {
	introspector Introspector
	logger       *slog.Logger
}

// NewExporter creates an exporter.
func NewExporter(introspector Introspector, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{introspector: introspector, logger: logger}
}

// Render introspects and renders the document without writing it.
func (e *Exporter) Render(ctx context.Context, format string) ([]byte, *Catalog, error) {
	cat, err := e.introspector.Introspect(ctx)
	if err != nil {
		return nil, nil, err
	}

	switch format {
	case FormatSQL, "":
		return RenderSQL(cat), cat, nil
	case FormatYAML:
		data, err := RenderYAML(cat)
		return data, cat, err
	default:
		return nil, nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// Export renders the full document and then overwrites path. Nothing is
// written when introspection or rendering fails.
func (e *Exporter) Export(ctx context.Context, path, format string) (*Result, error) {
	data, cat, err := e.Render(ctx, format)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}

	res := &Result{Path: path, Tables: len(cat.Tables), Routines: len(cat.Routines), Bytes: len(data)}
	e.logger.Info("catalog exported", "path", path, "format", format, "tables", res.Tables, "routines", res.Routines)
	return res, nil
}
