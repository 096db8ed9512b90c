package staging_test

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/climadw/climadw/internal/config"
	"github.com/climadw/climadw/internal/database"
	"github.com/climadw/climadw/internal/logging"
	"github.com/climadw/climadw/internal/staging"
	"github.com/climadw/climadw/internal/weather"
)

// pgTestConfig reads CLIMADW_TEST_PG_HOST, _PORT, _DATABASE, _USER and _PASSWORD,
// defaulting to a local climadw_test database.
func pgTestConfig() config.DatabaseConfig {
	cfg := config.DatabaseConfig{
		Host:     envOr("CLIMADW_TEST_PG_HOST", "localhost"),
		Port:     5432,
		Name:     envOr("CLIMADW_TEST_PG_DATABASE", "climadw_test"),
		User:     envOr("CLIMADW_TEST_PG_USER", "postgres"),
		Password: envOr("CLIMADW_TEST_PG_PASSWORD", "postgres"),
		SSLMode:  "disable",
	}
	if p, err := strconv.Atoi(os.Getenv("CLIMADW_TEST_PG_PORT")); err == nil {
		cfg.Port = p
	}
	return cfg
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func connectOrSkip(t *testing.T) *pgx.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, err := database.Connect(ctx, pgTestConfig())
	if err != nil {
		t.Skipf("skipping: cannot connect to PostgreSQL: %v", err)
	}
	t.Cleanup(func() { conn.Close(context.Background()) })
	return conn
}

func setupStagingTable(t *testing.T, conn *pgx.Conn) {
	t.Helper()
	ctx := context.Background()
	ddl := []string{
		`DROP SCHEMA IF EXISTS climadw_stage CASCADE`,
		`CREATE SCHEMA climadw_stage`,
		`CREATE TABLE climadw_stage.weathervc (
			city TEXT NOT NULL,
			country TEXT NOT NULL,
			date DATE NOT NULL,
			temp DOUBLE PRECISION,
			conditions TEXT,
			description TEXT
		)`,
		`INSERT INTO climadw_stage.weathervc (city, country, date) VALUES ('Old', 'Brazil', '2000-01-01')`,
	}
	for _, stmt := range ddl {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			t.Fatalf("setup DDL failed: %s: %v", stmt, err)
		}
	}
	t.Cleanup(func() {
		conn.Exec(context.Background(), `DROP SCHEMA IF EXISTS climadw_stage CASCADE`)
	})
}

func ptr[T any](v T) *T { return &v }

func sampleObservations() []weather.Observation {
	day := func(d int) time.Time { return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC) }
	return []weather.Observation{
		{City: "Recife", Country: "Brazil", Date: day(8), Temp: ptr(27.4), Conditions: ptr("Partially cloudy")},
		{City: "Recife", Country: "Brazil", Date: day(9), Temp: ptr(28.0), Conditions: ptr("Clear"), Description: ptr("Clear conditions throughout the day.")},
		{City: "Natal", Country: "Brazil", Date: day(9)},
	}
}

func TestPostgresLoad(t *testing.T) {
	conn := connectOrSkip(t)
	ctx := context.Background()

	for _, mode := range []string{config.InsertModeRow, config.InsertModeBatch} {
		t.Run(mode, func(t *testing.T) {
			setupStagingTable(t, conn)

			loader := staging.NewLoader(staging.NewPostgresOpener(conn, "climadw_stage.weathervc"), mode, logging.Discard())
			summary, err := loader.Load(ctx, sampleObservations())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if summary.Rows != 3 {
				t.Errorf("expected 3 rows, got %d", summary.Rows)
			}

			var count int
			if err := conn.QueryRow(ctx, `SELECT count(*) FROM climadw_stage.weathervc`).Scan(&count); err != nil {
				t.Fatal(err)
			}
			if count != 3 {
				t.Errorf("expected previous rows replaced, got %d rows", count)
			}

			var (
				temp        *float64
				description *string
			)
			err = conn.QueryRow(ctx,
				`SELECT temp, description FROM climadw_stage.weathervc WHERE city = 'Recife' AND date = '2024-05-09'`,
			).Scan(&temp, &description)
			if err != nil {
				t.Fatal(err)
			}
			if temp == nil || *temp != 28.0 {
				t.Errorf("expected temp 28, got %v", temp)
			}
			if description == nil || *description != "Clear conditions throughout the day." {
				t.Errorf("unexpected description %v", description)
			}

			var nullTemp *float64
			if err := conn.QueryRow(ctx, `SELECT temp FROM climadw_stage.weathervc WHERE city = 'Natal'`).Scan(&nullTemp); err != nil {
				t.Fatal(err)
			}
			if nullTemp != nil {
				t.Errorf("expected NULL temp, got %v", *nullTemp)
			}
		})
	}
}

func TestPostgresLoad_FailureKeepsPreviousRows(t *testing.T) {
	conn := connectOrSkip(t)
	ctx := context.Background()
	setupStagingTable(t, conn)

	if _, err := conn.Exec(ctx, `ALTER TABLE climadw_stage.weathervc ADD CONSTRAINT no_atlantis CHECK (city <> 'Atlantis')`); err != nil {
		t.Fatal(err)
	}

	obs := append(sampleObservations(), weather.Observation{City: "Atlantis", Country: "Brazil", Date: time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC)})
	loader := staging.NewLoader(staging.NewPostgresOpener(conn, "climadw_stage.weathervc"), config.InsertModeRow, logging.Discard())
	_, err := loader.Load(ctx, obs)

	var le *staging.LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected LoadError, got %v", err)
	}
	if le.Index != 3 {
		t.Errorf("expected failure at row 3, got %d", le.Index)
	}

	var city string
	if err := conn.QueryRow(ctx, `SELECT string_agg(city, ',') FROM climadw_stage.weathervc`).Scan(&city); err != nil {
		t.Fatal(err)
	}
	if city != "Old" {
		t.Errorf("expected rollback to keep the previous row, got %q", city)
	}
}
