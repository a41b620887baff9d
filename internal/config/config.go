// Package config loads service configuration from a YAML file, a .env file and
// environment variables, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Defaults
const (
	DefaultPort           = 8080
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultModelEndpoint  = "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash:generateContent"
	DefaultModelTimeout   = 10 * time.Second
	DefaultStreamInterval = 1500 * time.Millisecond
	DefaultSQLitePath     = "data/monitor.db"
	DefaultFeedLimit      = 50
	DefaultHomeCountry    = "US"
	DefaultRetentionCron  = "0 */15 * * * *"
	DefaultRetentionAge   = 24 * time.Hour
	DefaultSeedFile       = "data/seed.json"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // "text" or "json"
	} `yaml:"log"`
	Model struct {
		APIKey   string        `yaml:"api_key"` // empty = heuristic only
		Endpoint string        `yaml:"endpoint"`
		Timeout  time.Duration `yaml:"timeout"`
	} `yaml:"model"`
	Stream struct {
		Enabled  bool          `yaml:"enabled"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"stream"`
	Storage struct {
		Driver      string `yaml:"driver"`
		SQLitePath  string `yaml:"sqlite_path"`
		DatabaseURL string `yaml:"database_url"`
	} `yaml:"storage"`
	Feed struct {
		RedisAddr string `yaml:"redis_addr"` // optional live-feed mirror
		Limit     int    `yaml:"limit"`
	} `yaml:"feed"`
	Geo struct {
		CityDB      string `yaml:"city_db"` // MaxMind GeoLite2 database path
		HomeCountry string `yaml:"home_country"`
	} `yaml:"geo"`
	Retention struct {
		Cron   string        `yaml:"cron"`
		MaxAge time.Duration `yaml:"max_age"`
	} `yaml:"retention"`
	Tracing struct {
		OTLPEndpoint string `yaml:"otlp_endpoint"`
	} `yaml:"tracing"`
	SeedFile string `yaml:"seed_file"`
}

// Load reads config from a YAML file (missing is fine), then applies .env and
// environment overrides and fills defaults.
func Load(path string) (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.Stream.Enabled = true

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	// PaaS platforms inject PORT; it wins over the file.
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = p
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v, ok := os.LookupEnv("GEMINI_API_KEY"); ok {
		c.Model.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("MODEL_ENDPOINT"); v != "" {
		c.Model.Endpoint = v
	}
	if err := envDuration("MODEL_TIMEOUT", &c.Model.Timeout); err != nil {
		return err
	}
	if v := os.Getenv("STREAM_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("STREAM_ENABLED: %w", err)
		}
		c.Stream.Enabled = b
	}
	if err := envDuration("STREAM_INTERVAL", &c.Stream.Interval); err != nil {
		return err
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Storage.SQLitePath = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Storage.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Feed.RedisAddr = v
	}
	if v := os.Getenv("GEOIP_CITY_DB"); v != "" {
		c.Geo.CityDB = v
	}
	if v := os.Getenv("HOME_COUNTRY"); v != "" {
		c.Geo.HomeCountry = v
	}
	if v := os.Getenv("RETENTION_CRON"); v != "" {
		c.Retention.Cron = v
	}
	if err := envDuration("RETENTION_MAX_AGE", &c.Retention.MaxAge); err != nil {
		return err
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Tracing.OTLPEndpoint = v
	}
	if v := os.Getenv("SEED_FILE"); v != "" {
		c.SeedFile = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.Model.Endpoint == "" {
		c.Model.Endpoint = DefaultModelEndpoint
	}
	if c.Model.Timeout == 0 {
		c.Model.Timeout = DefaultModelTimeout
	}
	if c.Stream.Interval == 0 {
		c.Stream.Interval = DefaultStreamInterval
	}
	if c.Storage.Driver == "" {
		// A DATABASE_URL alone is enough to select Postgres.
		if c.Storage.DatabaseURL != "" {
			c.Storage.Driver = DriverPostgres
		} else {
			c.Storage.Driver = DriverMemory
		}
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = DefaultSQLitePath
	}
	if c.Feed.Limit == 0 {
		c.Feed.Limit = DefaultFeedLimit
	}
	if c.Geo.HomeCountry == "" {
		c.Geo.HomeCountry = DefaultHomeCountry
	}
	if c.Retention.Cron == "" {
		c.Retention.Cron = DefaultRetentionCron
	}
	if c.Retention.MaxAge == 0 {
		c.Retention.MaxAge = DefaultRetentionAge
	}
	if c.SeedFile == "" {
		c.SeedFile = DefaultSeedFile
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be 'text' or 'json'")
	}
	if c.Model.Timeout <= 0 {
		return fmt.Errorf("model.timeout must be positive")
	}
	if c.Stream.Interval <= 0 {
		return fmt.Errorf("stream.interval must be positive")
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("storage.database_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver must be one of: memory, sqlite, postgres")
	}
	if c.Feed.Limit < 1 || c.Feed.Limit > 50 {
		return fmt.Errorf("feed.limit must be between 1 and 50")
	}
	if len(c.Geo.HomeCountry) != 2 {
		return fmt.Errorf("geo.home_country must be an ISO 3166-1 alpha-2 code")
	}
	if c.Retention.MaxAge <= 0 {
		return fmt.Errorf("retention.max_age must be positive")
	}
	return nil
}

// ModelConfigured reports whether a remote model credential was supplied at startup.
func (c *Config) ModelConfigured() bool {
	return c.Model.APIKey != ""
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
