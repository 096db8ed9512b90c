package pipeline

import (
	"context"
	"log/slog"

	"github.com/climadw/climadw/internal/config"
	"github.com/climadw/climadw/internal/database"
	"github.com/climadw/climadw/internal/staging"
	"github.com/climadw/climadw/internal/warehouse"
)

// PostgresStager opens a dedicated connection for each staging load.
func PostgresStager(db config.DatabaseConfig, cfg config.StagingConfig, logger *slog.Logger) StagerFactory {
	return func(ctx context.Context) (Stager, func(), error) {
		conn, err := database.Connect(ctx, db)
		if err != nil {
			return nil, nil, err
		}
		loader := staging.NewLoader(staging.NewPostgresOpener(conn, cfg.Table), cfg.InsertMode, logger)
		return loader, func() { conn.Close(context.Background()) }, nil
	}
}

// PostgresReloader opens a dedicated connection for each reload.
func PostgresReloader(db config.DatabaseConfig, steps []warehouse.Step, logger *slog.Logger) ReloaderFactory {
	return func(ctx context.Context) (Reloader, func(), error) {
		conn, err := database.Connect(ctx, db)
		if err != nil {
			return nil, nil, err
		}
		r, err := warehouse.NewReloader(steps, &warehouse.ConnExecutor{Conn: conn}, logger)
		if err != nil {
			conn.Close(context.Background())
			return nil, nil, err
		}
		return r, func() { conn.Close(context.Background()) }, nil
	}
}
