package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion = 1
	DefaultPath    = "~/.climadw/climadw.yaml"
)

// Insert modes for the staging table.
const (
	InsertModeRow   = "row"
	InsertModeBatch = "batch"
)

// DefaultBaseURL is the Visual Crossing timeline endpoint.
const DefaultBaseURL = "https://weather.visualcrossing.com/VisualCrossingWebServices/rest/services/timeline"

// Config is the top-level configuration.
type Config struct {
	Version   int             `yaml:"version"`
	Database  DatabaseConfig  `yaml:"database"`
	Weather   WeatherConfig   `yaml:"weather"`
	Staging   StagingConfig   `yaml:"staging"`
	Warehouse WarehouseConfig `yaml:"warehouse,omitempty"`
	Export    ExportConfig    `yaml:"export,omitempty"`
	Schedule  ScheduleConfig  `yaml:"schedule,omitempty"`
	Logging   LogConfig       `yaml:"logging,omitempty"`
}

// DatabaseConfig defines the warehouse connection.
type DatabaseConfig struct {
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"min=1,max=65535"`
	Name     string `yaml:"name" validate:"required"`
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode,omitempty" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
}

// Location is a place the weather service can resolve by name.
type Location struct {
	Name    string `yaml:"name" validate:"required"`
	Country string `yaml:"country" validate:"required"`
}

// WeatherConfig defines the weather service client.
type WeatherConfig struct {
	APIKey     string     `yaml:"api_key"`
	BaseURL    string     `yaml:"base_url,omitempty" validate:"omitempty,url"`
	UnitGroup  string     `yaml:"unit_group,omitempty" validate:"omitempty,oneof=metric us uk base"`
	WindowDays int        `yaml:"window_days,omitempty" validate:"min=1"`
	Locations  []Location `yaml:"locations" validate:"min=1,dive"`

	// MaxConsecutiveFailures aborts the fetch after N locations fail in a row. 0 disables it.
	MaxConsecutiveFailures uint32 `yaml:"max_consecutive_failures,omitempty"`
}

// StagingConfig defines the staging table and how rows are written to it.
type StagingConfig struct {
	Table      string `yaml:"table,omitempty" validate:"required"`
	InsertMode string `yaml:"insert_mode,omitempty" validate:"oneof=row batch"`
}

// WarehouseConfig overrides the dimensional tables and routines. Empty means the built-in star schema.
type WarehouseConfig struct {
	Steps []StepConfig `yaml:"steps,omitempty" validate:"dive"`
}

// StepConfig declares one transformation step.
type StepConfig struct {
	Name      string   `yaml:"name" validate:"required"`
	Table     string   `yaml:"table" validate:"required"`
	Procedure string   `yaml:"procedure" validate:"required"`
	DependsOn []string `yaml:"depends_on,omitempty"`
}

// ExportConfig defines the catalog export artifact.
type ExportConfig struct {
	File           string   `yaml:"file,omitempty" validate:"required"`
	ExcludeSchemas []string `yaml:"exclude_schemas,omitempty"`
}

// ScheduleConfig defines the daily run time used by `climadw schedule`.
type ScheduleConfig struct {
	At       string `yaml:"at,omitempty" validate:"omitempty,datetime=15:04"`
	Timezone string `yaml:"timezone,omitempty"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level     string `yaml:"level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	Directory string `yaml:"directory,omitempty"`
}

// DefaultLocations are the Brazilian state capitals.
var DefaultLocations = []string{
	"Rio Branco", "Maceio", "Macapa", "Manaus", "Salvador", "Fortaleza", "Brasilia",
	"Vitoria", "Goiania", "Sao Luis", "Cuiaba", "Campo Grande", "Belo Horizonte",
	"Belem", "Joao Pessoa", "Curitiba", "Recife", "Teresina", "Rio de Janeiro",
	"Natal", "Porto Alegre", "Porto Velho", "Boa Vista", "Florianopolis", "Sao Paulo",
	"Aracaju", "Palmas",
}

// Default returns a config populated only with defaults.
func Default() *Config {
	cfg := &Config{Version: CurrentVersion}
	cfg.applyDefaults()
	return cfg
}

// Load reads the config file at path, applies .env and environment overrides,
// resolves secret references and fills defaults. A missing file at the default
// path is not an error; the config is then built from the environment alone.
func Load(path string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = ExpandHome(DefaultPath)
	}

	cfg := &Config{Version: CurrentVersion}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the config for missing or malformed values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ValidateWeather checks what the weather service needs beyond Validate.
// Commands that never call the service skip it.
func (c *Config) ValidateWeather() error {
	if strings.TrimSpace(c.Weather.APIKey) == "" {
		return errors.New("invalid config: weather.api_key is required (set it in the config file or WEATHER_API_KEY)")
	}
	return nil
}

// DSN returns a libpq-style connection string for pgx.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		quoteDSNValue(d.Host), d.Port, quoteDSNValue(d.Name), quoteDSNValue(d.User),
		quoteDSNValue(d.Password), quoteDSNValue(sslmode))
}

func quoteDSNValue(v string) string {
	if v == "" {
		return "''"
	}
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func (c *Config) applyEnv() error {
	setString(&c.Database.Host, "DB_HOST")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.Name, "DB_NAME")
	setString(&c.Database.SSLMode, "DB_SSLMODE")
	setString(&c.Weather.APIKey, "WEATHER_API_KEY")
	setString(&c.Export.File, "CLIMADW_EXPORT_FILE")

	if v := os.Getenv("DB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DB_PORT %q: %w", v, err)
		}
		c.Database.Port = port
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Weather.BaseURL == "" {
		c.Weather.BaseURL = DefaultBaseURL
	}
	if c.Weather.UnitGroup == "" {
		c.Weather.UnitGroup = "metric"
	}
	if c.Weather.WindowDays == 0 {
		c.Weather.WindowDays = 4
	}
	if len(c.Weather.Locations) == 0 {
		for _, name := range DefaultLocations {
			c.Weather.Locations = append(c.Weather.Locations, Location{Name: name, Country: "Brazil"})
		}
	}
	if c.Staging.Table == "" {
		c.Staging.Table = "stage.weathervc"
	}
	if c.Staging.InsertMode == "" {
		c.Staging.InsertMode = InsertModeRow
	}
	if c.Export.File == "" {
		c.Export.File = "database_metadata.sql"
	}
	if len(c.Export.ExcludeSchemas) == 0 {
		c.Export.ExcludeSchemas = []string{"pg_catalog", "information_schema"}
	}
	if c.Schedule.At == "" {
		c.Schedule.At = "06:00"
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "UTC"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Directory == "" {
		c.Logging.Directory = ExpandHome("~/.climadw/logs/")
	}
}

var secretPattern = regexp.MustCompile(`^\$\{(ENV|VAULT|AWS_SM):([^}]+)\}$`)

func (c *Config) resolveSecrets() error {
	var err error
	c.Database.Password, err = ResolveValue(c.Database.Password)
	if err != nil {
		return fmt.Errorf("database password: %w", err)
	}
	c.Weather.APIKey, err = ResolveValue(c.Weather.APIKey)
	if err != nil {
		return fmt.Errorf("weather api key: %w", err)
	}
	return nil
}

// ResolveValue resolves a secret reference such as ${ENV:NAME}, ${VAULT:mount/path#key}
// or ${AWS_SM:secret-id[#key]}. Plain values are returned unchanged.
func ResolveValue(val string) (string, error) {
	matches := secretPattern.FindStringSubmatch(strings.TrimSpace(val))
	if matches == nil {
		return val, nil
	}

	provider, ref := matches[1], matches[2]
	switch provider {
	case "ENV":
		v := os.Getenv(ref)
		if v == "" {
			return "", fmt.Errorf("environment variable %s not set", ref)
		}
		return v, nil
	case "VAULT":
		return resolveVault(ref)
	case "AWS_SM":
		return resolveAWSSecretsManager(ref)
	default:
		return "", fmt.Errorf("unknown secrets provider: %s", provider)
	}
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
