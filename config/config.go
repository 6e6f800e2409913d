package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the signal store service.
// Values come from an optional YAML file; environment variables override them.
// Secrets are read from the environment only.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:":8090"`
	LogMode  string `yaml:"log_mode" env:"LOG_MODE" env-default:"production"`

	Store     StoreConfig     `yaml:"store"`
	Routing   RoutingConfig   `yaml:"routing"`
	Semantic  SemanticConfig  `yaml:"semantic"`
	Ingestion IngestionConfig `yaml:"ingestion"`

	// QueryTimeoutMS bounds a whole query including every fallback step.
	QueryTimeoutMS int `yaml:"query_timeout_ms" env:"QUERY_TIMEOUT_MS" env-default:"30000"`
}

// StoreConfig holds the embedded structured store settings.
type StoreConfig struct {
	// Enabled=false disables the structured layer; every query goes to the
	// semantic engine.
	Enabled        bool   `yaml:"enabled" env:"ENABLE_SIGNAL_STORE" env-default:"true"`
	Path           string `yaml:"path" env:"SIGNAL_STORE_PATH" env-default:"./data/signals.db"`
	QueryTimeoutMS int    `yaml:"query_timeout_ms" env:"SIGNAL_STORE_QUERY_TIMEOUT_MS" env-default:"5000"`
	HistoryDefault int    `yaml:"history_default_limit" env:"HISTORY_DEFAULT_LIMIT" env-default:"20"`
	HistoryMax     int    `yaml:"history_max_limit" env:"HISTORY_MAX_LIMIT" env-default:"500"`
}

// RoutingConfig holds query classification settings.
type RoutingConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold" env:"ROUTING_CONFIDENCE_THRESHOLD" env-default:"0.5"`
	// KnownTickersStr is a comma-separated list added to the built-in allow-list.
	KnownTickersStr string   `yaml:"known_tickers" env:"KNOWN_TICKERS" env-default:""`
	KnownTickers    []string `yaml:"-"`
}

// SemanticConfig holds the external semantic engine client settings.
type SemanticConfig struct {
	URL             string   `yaml:"url" env:"SEMANTIC_ENGINE_URL" env-default:""`
	APIKey          string   `yaml:"-" env:"SEMANTIC_ENGINE_API_KEY"` // Secret - not in YAML
	QueryTimeoutMS  int      `yaml:"query_timeout_ms" env:"SEMANTIC_QUERY_TIMEOUT_MS" env-default:"10000"`
	IngestTimeoutMS int      `yaml:"ingest_timeout_ms" env:"SEMANTIC_INGEST_TIMEOUT_MS" env-default:"15000"`
	ModesStr        string   `yaml:"modes" env:"SEMANTIC_MODES" env-default:"hybrid,local,naive"`
	Modes           []string `yaml:"-"`
}

// IngestionConfig holds write path settings.
type IngestionConfig struct {
	Concurrency       int    `yaml:"concurrency" env:"INGEST_CONCURRENCY" env-default:"4"`
	RedisAddr         string `yaml:"redis_addr" env:"REDIS_ADDR" env-default:""`
	ReconcileSchedule string `yaml:"reconcile_schedule" env:"RECONCILE_SCHEDULE" env-default:"@every 5m"`
}

// Load reads configuration from the YAML file at path with environment
// overrides. A missing file is not an error; env and defaults still apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", path, err)
			}
			return finish(cfg)
		}
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return finish(cfg)
}

// FromEnv reads configuration from the environment only.
func FromEnv() (*Config, error) {
	return Load("")
}

func finish(cfg *Config) (*Config, error) {
	cfg.Routing.KnownTickers = splitList(cfg.Routing.KnownTickersStr, strings.ToUpper)
	cfg.Semantic.Modes = splitList(cfg.Semantic.ModesStr, strings.ToLower)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Routing.ConfidenceThreshold < 0 || c.Routing.ConfidenceThreshold > 1 {
		return fmt.Errorf("routing confidence threshold must be within [0, 1], got %v", c.Routing.ConfidenceThreshold)
	}
	if c.Store.QueryTimeoutMS <= 0 {
		return fmt.Errorf("signal store query timeout must be positive")
	}
	if c.QueryTimeoutMS <= 0 || c.Semantic.QueryTimeoutMS <= 0 {
		return fmt.Errorf("query timeouts must be positive")
	}
	if c.Store.HistoryDefault <= 0 || c.Store.HistoryMax < c.Store.HistoryDefault {
		return fmt.Errorf("history limits must satisfy 0 < default <= max")
	}
	if len(c.Semantic.Modes) == 0 {
		return fmt.Errorf("at least one semantic mode is required")
	}
	if c.Store.Enabled && strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("signal store path is required when the store is enabled")
	}
	if c.Ingestion.Concurrency <= 0 {
		c.Ingestion.Concurrency = 1
	}
	return nil
}

// splitList parses a comma-separated list, dropping blanks.
func splitList(value string, norm func(string) string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, norm(part))
	}
	return out
}

func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutMS) * time.Millisecond
}

func (c *StoreConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutMS) * time.Millisecond
}

func (c *SemanticConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutMS) * time.Millisecond
}

func (c *SemanticConfig) IngestTimeout() time.Duration {
	return time.Duration(c.IngestTimeoutMS) * time.Millisecond
}
