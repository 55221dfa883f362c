// Package config loads and validates fleetsync.yaml, with environment
// variable overrides for deployment secrets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration unmarshals from YAML strings like "1h30m" or bare numbers of
// seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(time.Duration(n) * time.Second)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full pipeline configuration.
type Config struct {
	Upstream   Upstream   `yaml:"upstream"`
	Postgres   Postgres   `yaml:"postgres"`
	ClickHouse ClickHouse `yaml:"clickhouse"`
	NATS       NATS       `yaml:"nats"`
	Journal    Journal    `yaml:"journal"`
	API        API        `yaml:"api"`
	Pipeline   Pipeline   `yaml:"pipeline"`
}

// Upstream configures the fleet telemetry API client.
type Upstream struct {
	BaseURL               string        `yaml:"baseUrl" validate:"required,url"`
	TokenURL              string        `yaml:"tokenUrl" validate:"required,url"`
	Username              string        `yaml:"username" validate:"required"`
	Password              string        `yaml:"password" validate:"required"`
	ClientIntegrationCode string        `yaml:"clientIntegrationCode" validate:"required"`
	Timeout               Duration      `yaml:"timeout"`
}

// Postgres configures the relational store.
type Postgres struct {
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"required,min=1,max=65535"`
	Database string `yaml:"database" validate:"required"`
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password"`
}

// ClickHouse configures the optional raw position archive. An empty
// host disables archiving.
type ClickHouse struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// NATS configures the optional event bus. An empty URL disables
// publishing.
type NATS struct {
	URL string `yaml:"url"`
}

// Journal configures the local run journal.
type Journal struct {
	Path string `yaml:"path"`
}

// API configures the status HTTP server.
type API struct {
	Port    int      `yaml:"port"`
	APIKeys []string `yaml:"apiKeys"`
}

// Pipeline tunes the periodic pipeline stages.
type Pipeline struct {
	LookbackDays    int           `yaml:"lookbackDays"`
	SweepDays       int           `yaml:"sweepDays"`
	Workers         int           `yaml:"workers"`
	PageSize        int           `yaml:"pageSize"`
	EvidenceHost    string        `yaml:"evidenceHost"`
	RefreshInterval Duration      `yaml:"refreshInterval"`
	CycleInterval   Duration      `yaml:"cycleInterval"`
	ViewBatchSize   int           `yaml:"viewBatchSize"`
}

// Load reads the YAML file, applies environment overrides, fills
// defaults and validates. A missing file is an error; use Default for a
// purely env-driven setup.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyEnv()
	cfg.fillDefaults()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns a config with every tunable at its default value.
// Required upstream and postgres fields are left empty.
func Default() *Config {
	return &Config{
		Postgres: Postgres{Host: "localhost", Port: 5432},
		Journal:  Journal{Path: "fleetsync-runs.db"},
		API:      API{Port: 8080},
		Pipeline: Pipeline{
			LookbackDays:    2,
			SweepDays:       10,
			Workers:         5,
			PageSize:        200,
			RefreshInterval: Duration(time.Hour),
			CycleInterval:   Duration(5 * time.Minute),
			ViewBatchSize:   500,
		},
	}
}

// applyEnv overrides file values with environment variables so secrets
// stay out of the YAML.
func (c *Config) applyEnv() {
	setString(&c.Upstream.BaseURL, "FLEETSYNC_UPSTREAM_URL")
	setString(&c.Upstream.TokenURL, "FLEETSYNC_TOKEN_URL")
	setString(&c.Upstream.Username, "FLEETSYNC_USERNAME")
	setString(&c.Upstream.Password, "FLEETSYNC_PASSWORD")
	setString(&c.Upstream.ClientIntegrationCode, "FLEETSYNC_CLIENT_CODE")

	setString(&c.Postgres.Host, "POSTGRES_HOST")
	setInt(&c.Postgres.Port, "POSTGRES_PORT")
	setString(&c.Postgres.Database, "POSTGRES_DATABASE")
	setString(&c.Postgres.User, "POSTGRES_USER")
	setString(&c.Postgres.Password, "POSTGRES_PASSWORD")

	setString(&c.ClickHouse.Host, "CLICKHOUSE_HOST")
	setInt(&c.ClickHouse.Port, "CLICKHOUSE_PORT")
	setString(&c.ClickHouse.Database, "CLICKHOUSE_DATABASE")
	setString(&c.ClickHouse.User, "CLICKHOUSE_USER")
	setString(&c.ClickHouse.Password, "CLICKHOUSE_PASSWORD")

	setString(&c.NATS.URL, "NATS_URL")
	setString(&c.Journal.Path, "FLEETSYNC_JOURNAL_PATH")
	setInt(&c.API.Port, "FLEETSYNC_API_PORT")
	setInt(&c.Pipeline.SweepDays, "FLEETSYNC_SWEEP_DAYS")
}

func (c *Config) fillDefaults() {
	if c.Upstream.Timeout <= 0 {
		c.Upstream.Timeout = Duration(30 * time.Second)
	}
	if c.Pipeline.LookbackDays < 1 {
		c.Pipeline.LookbackDays = 2
	}
	if c.Pipeline.SweepDays < 1 {
		c.Pipeline.SweepDays = 10
	}
	if c.Pipeline.Workers < 1 {
		c.Pipeline.Workers = 5
	}
	if c.Pipeline.PageSize < 1 {
		c.Pipeline.PageSize = 200
	}
	if c.Pipeline.RefreshInterval <= 0 {
		c.Pipeline.RefreshInterval = Duration(time.Hour)
	}
	if c.Pipeline.CycleInterval <= 0 {
		c.Pipeline.CycleInterval = Duration(5 * time.Minute)
	}
	if c.Pipeline.ViewBatchSize < 1 {
		c.Pipeline.ViewBatchSize = 500
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Journal.Path == "" {
		c.Journal.Path = "fleetsync-runs.db"
	}
	if c.ClickHouse.Host != "" && c.ClickHouse.Port == 0 {
		c.ClickHouse.Port = 9000
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}
