package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "climadw.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// chdir changes the working directory for the duration of the test,
// mirroring testing.T.Chdir (Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `version: 1
database:
  host: db.internal
  port: 6543
  name: warehouse
  user: admin
  password: secret123
weather:
  api_key: KEY
  window_days: 7
  locations:
    - name: Recife
      country: Brazil
    - name: Lisbon
      country: Portugal
staging:
  insert_mode: batch
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.Host != "db.internal" {
		t.Errorf("expected host db.internal, got %s", cfg.Database.Host)
	}
	if cfg.Database.Port != 6543 {
		t.Errorf("expected port 6543, got %d", cfg.Database.Port)
	}
	if cfg.Weather.WindowDays != 7 {
		t.Errorf("expected window 7, got %d", cfg.Weather.WindowDays)
	}
	if len(cfg.Weather.Locations) != 2 || cfg.Weather.Locations[1].Country != "Portugal" {
		t.Errorf("unexpected locations: %+v", cfg.Weather.Locations)
	}
	if cfg.Staging.InsertMode != InsertModeBatch {
		t.Errorf("expected batch insert mode, got %s", cfg.Staging.InsertMode)
	}
	if cfg.Staging.Table != "stage.weathervc" {
		t.Errorf("expected default staging table, got %s", cfg.Staging.Table)
	}
	if cfg.Export.File != "database_metadata.sql" {
		t.Errorf("expected default export file, got %s", cfg.Export.File)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "version: 1\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("expected default port 5432, got %d", cfg.Database.Port)
	}
	if cfg.Weather.WindowDays != 4 {
		t.Errorf("expected default window 4, got %d", cfg.Weather.WindowDays)
	}
	if cfg.Weather.UnitGroup != "metric" {
		t.Errorf("expected metric, got %s", cfg.Weather.UnitGroup)
	}
	if len(cfg.Weather.Locations) != len(DefaultLocations) {
		t.Fatalf("expected %d default locations, got %d", len(DefaultLocations), len(cfg.Weather.Locations))
	}
	if cfg.Weather.Locations[0].Name != "Rio Branco" || cfg.Weather.Locations[0].Country != "Brazil" {
		t.Errorf("unexpected first location: %+v", cfg.Weather.Locations[0])
	}
	if cfg.Staging.InsertMode != InsertModeRow {
		t.Errorf("expected row insert mode by default, got %s", cfg.Staging.InsertMode)
	}
	if got := strings.Join(cfg.Export.ExcludeSchemas, ","); got != "pg_catalog,information_schema" {
		t.Errorf("unexpected excluded schemas: %s", got)
	}
}

func TestLoadInvalidVersion(t *testing.T) {
	path := writeConfig(t, "version: 99\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid version")
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "env-host")
	t.Setenv("DB_PORT", "15432")
	t.Setenv("DB_USER", "env-user")
	t.Setenv("DB_NAME", "env-db")
	t.Setenv("WEATHER_API_KEY", "env-key")

	path := writeConfig(t, `version: 1
database:
  host: file-host
  user: file-user
  name: file-db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Host != "env-host" {
		t.Errorf("expected env-host, got %s", cfg.Database.Host)
	}
	if cfg.Database.Port != 15432 {
		t.Errorf("expected port 15432, got %d", cfg.Database.Port)
	}
	if cfg.Database.User != "env-user" || cfg.Database.Name != "env-db" {
		t.Errorf("unexpected database config: %+v", cfg.Database)
	}
	if cfg.Weather.APIKey != "env-key" {
		t.Errorf("expected env-key, got %s", cfg.Weather.APIKey)
	}
}

func TestLoadInvalidPortEnv(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-port")
	path := writeConfig(t, "version: 1\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid DB_PORT")
	}
}

func TestLoadResolvesSecrets(t *testing.T) {
	t.Setenv("CLIMADW_TEST_DB_PASS", "hunter2")
	t.Setenv("CLIMADW_TEST_API_KEY", "vc-key")

	path := writeConfig(t, `version: 1
database:
  password: ${ENV:CLIMADW_TEST_DB_PASS}
weather:
  api_key: ${ENV:CLIMADW_TEST_API_KEY}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Password != "hunter2" {
		t.Errorf("expected resolved password, got %s", cfg.Database.Password)
	}
	if cfg.Weather.APIKey != "vc-key" {
		t.Errorf("expected resolved api key, got %s", cfg.Weather.APIKey)
	}
}

func TestResolveEnvSecret(t *testing.T) {
	t.Setenv("TEST_SECRET", "mysecret")
	val, err := ResolveValue("${ENV:TEST_SECRET}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "mysecret" {
		t.Errorf("expected mysecret, got %s", val)
	}
}

func TestResolveEnvSecretMissing(t *testing.T) {
	t.Setenv("TEST_SECRET_MISSING", "")
	if _, err := ResolveValue("${ENV:TEST_SECRET_MISSING}"); err == nil {
		t.Fatal("expected error for unset environment variable")
	}
}

func TestResolvePlainValue(t *testing.T) {
	val, err := ResolveValue("plaintext")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "plaintext" {
		t.Errorf("expected plaintext, got %s", val)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing user", func(c *Config) { c.Database.User = "" }, "Database.User"},
		{"bad port", func(c *Config) { c.Database.Port = 70000 }, "Database.Port"},
		{"no locations", func(c *Config) { c.Weather.Locations = nil }, "Weather.Locations"},
		{"bad insert mode", func(c *Config) { c.Staging.InsertMode = "bulk" }, "Staging.InsertMode"},
		{"bad schedule", func(c *Config) { c.Schedule.At = "6am" }, "Schedule.At"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Database.User = "admin"
			cfg.Database.Name = "warehouse"
			cfg.Weather.APIKey = "KEY"
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("expected error to mention %s, got %v", tt.field, err)
			}
		})
	}
}

func TestValidateWithoutAPIKey(t *testing.T) {
	cfg := Default()
	cfg.Database.User = "admin"
	cfg.Database.Name = "warehouse"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected database-only config to validate, got %v", err)
	}
	if err := cfg.ValidateWeather(); err == nil || !strings.Contains(err.Error(), "weather.api_key") {
		t.Errorf("expected missing api key error, got %v", err)
	}

	cfg.Weather.APIKey = "KEY"
	if err := cfg.ValidateWeather(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadMalformedDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("DB_HOST=\"unterminated\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)

	_, err := Load(writeConfig(t, "version: 1\n"))
	if err == nil || !strings.Contains(err.Error(), ".env") {
		t.Errorf("expected .env parse error, got %v", err)
	}
}

func TestLoadMissingDotEnv(t *testing.T) {
	chdir(t, t.TempDir())

	if _, err := Load(writeConfig(t, "version: 1\n")); err != nil {
		t.Errorf("expected missing .env to be ignored, got %v", err)
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "localhost", Port: 5432, Name: "warehouse", User: "admin", Password: "it's secret"}
	dsn := d.DSN()
	want := `host=localhost port=5432 dbname=warehouse user=admin password='it\'s secret' sslmode=disable`
	if dsn != want {
		t.Errorf("expected %q, got %q", want, dsn)
	}
}

func TestDSN_QuotesEveryField(t *testing.T) {
	d := DatabaseConfig{Host: "db host", Port: 5432, Name: "my warehouse", User: "o'brien", Password: "pw", SSLMode: "require"}
	want := `host='db host' port=5432 dbname='my warehouse' user='o\'brien' password=pw sslmode=require`
	if got := d.DSN(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "climadw.yaml")
	cfg := Default()
	cfg.Database.User = "admin"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Database.User != "admin" {
		t.Errorf("expected admin, got %s", loaded.Database.User)
	}
}
