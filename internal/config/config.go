// Package config loads service configuration from YAML, .env files and the
// environment. Precedence, lowest first: defaults, YAML file, environment.
// Command-line flags are applied on top by each binary.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"signal-backtest-lab/internal/domain"
	"signal-backtest-lab/internal/sheet"
)

// Source kinds.
const (
	SourceHTTP       = "http"
	SourceFile       = "file"
	SourcePostgres   = "postgres"
	SourceClickhouse = "clickhouse"
	SourceMemory     = "memory"
)

// Config is the full service configuration.
type Config struct {
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Source SourceConfig `yaml:"source"`

	Storage struct {
		PostgresDSN   string `yaml:"postgres_dsn"`
		ClickhouseDSN string `yaml:"clickhouse_dsn"`
	} `yaml:"storage"`

	Scenario ScenarioConfig `yaml:"scenario"`

	Columns sheet.Columns `yaml:"columns"`

	Tracing struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"tracing"`
}

// SourceConfig selects and tunes where trade-history exports come from.
type SourceConfig struct {
	Kind        string        `yaml:"kind"`
	URLTemplate string        `yaml:"url_template"`
	Dir         string        `yaml:"dir"`
	Sheet       string        `yaml:"sheet"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	Fallback    bool          `yaml:"fallback"`
}

// ScenarioConfig holds scenario defaults. Decimal values are kept as text
// so configuration never passes money through float64.
type ScenarioConfig struct {
	StartEquity      string `yaml:"start_equity"`
	EntryFeePct      string `yaml:"entry_fee_pct"`
	ExitFeePct       string `yaml:"exit_fee_pct"`
	PositionFraction string `yaml:"position_fraction"`
	MaxLeverage      int    `yaml:"max_leverage"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = ":8080"
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.Source = SourceConfig{
		Kind:       SourceFile,
		Dir:        "data",
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		CacheTTL:   time.Minute,
		Fallback:   true,
	}
	cfg.Scenario = ScenarioConfig{
		StartEquity:      domain.DefaultStartEquity.String(),
		EntryFeePct:      domain.DefaultFeePct.String(),
		ExitFeePct:       domain.DefaultFeePct.String(),
		PositionFraction: domain.DefaultPositionFraction.String(),
		MaxLeverage:      domain.MaxLeverage,
	}
	cfg.Columns = sheet.DefaultColumns()
	return cfg
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg.Columns = cfg.Columns.Merge(sheet.DefaultColumns())
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads the first existing file of paths into the process
// environment without overriding variables already set. Missing files are not
// an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		err := godotenv.Load(p)
		if err == nil {
			return nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// applyEnv overrides fields from environment variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("BACKTEST_HTTP_ADDR", &c.HTTP.Addr)
	str("BACKTEST_LOG_LEVEL", &c.Log.Level)
	str("BACKTEST_LOG_FORMAT", &c.Log.Format)
	str("BACKTEST_SOURCE_KIND", &c.Source.Kind)
	str("BACKTEST_SOURCE_URL", &c.Source.URLTemplate)
	str("BACKTEST_SOURCE_DIR", &c.Source.Dir)
	str("BACKTEST_SOURCE_SHEET", &c.Source.Sheet)
	str("BACKTEST_START_EQUITY", &c.Scenario.StartEquity)
	str("POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("CLICKHOUSE_DSN", &c.Storage.ClickhouseDSN)

	if v, ok := lookup("BACKTEST_SOURCE_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("BACKTEST_SOURCE_TIMEOUT: %w", err)
		}
		c.Source.Timeout = d
	}
	if v, ok := lookup("BACKTEST_MAX_LEVERAGE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BACKTEST_MAX_LEVERAGE: %w", err)
		}
		c.Scenario.MaxLeverage = n
	}
	if v, ok := lookup("BACKTEST_TRACING"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BACKTEST_TRACING: %w", err)
		}
		c.Tracing.Enabled = b
	}
	return nil
}

// Validate checks field values and cross-field requirements.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case SourceHTTP:
		if c.Source.URLTemplate == "" {
			return errors.New("source.url_template is required for http source")
		}
	case SourceFile:
		if c.Source.Dir == "" {
			return errors.New("source.dir is required for file source")
		}
	case SourcePostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required for postgres source")
		}
	case SourceClickhouse:
		if c.Storage.ClickhouseDSN == "" {
			return errors.New("storage.clickhouse_dsn is required for clickhouse source")
		}
	case SourceMemory:
	default:
		return fmt.Errorf("invalid source.kind '%s': must be one of http, file, postgres, clickhouse, memory", c.Source.Kind)
	}

	if c.Source.Timeout < 0 || c.Source.CacheTTL < 0 {
		return errors.New("source durations must be non-negative")
	}
	if c.Source.MaxRetries < 0 {
		return fmt.Errorf("source.max_retries must be non-negative, got %d", c.Source.MaxRetries)
	}
	if c.Scenario.MaxLeverage < domain.MinLeverage {
		return fmt.Errorf("scenario.max_leverage must be at least %d, got %d", domain.MinLeverage, c.Scenario.MaxLeverage)
	}

	s, err := c.Scenario.Build(domain.MinLeverage)
	if err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("scenario: %w", err)
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log.format '%s': must be 'json' or 'console'", c.Log.Format)
	}
	return nil
}

// Build returns the scenario for leverage. Empty values keep production defaults.
func (s ScenarioConfig) Build(leverage int) (domain.Scenario, error) {
	out := domain.DefaultScenario(leverage)

	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"start_equity", s.StartEquity, &out.StartEquity},
		{"entry_fee_pct", s.EntryFeePct, &out.EntryFeePct},
		{"exit_fee_pct", s.ExitFeePct, &out.ExitFeePct},
		{"position_fraction", s.PositionFraction, &out.PositionFraction},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(strings.TrimSpace(f.raw))
		if err != nil {
			return domain.Scenario{}, fmt.Errorf("scenario.%s: %w", f.name, err)
		}
		*f.dst = d
	}
	return out, nil
}
