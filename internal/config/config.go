// Package config loads and validates ledger configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Fetch      FetchConfig    `mapstructure:"fetch"`
	Validation ValidateConfig `mapstructure:"validate"`
	Extract    ExtractConfig  `mapstructure:"extract"`
	Match      MatchConfig    `mapstructure:"match"`
	DB         DBConfig       `mapstructure:"db"`
	Server     ServerConfig   `mapstructure:"server"`
	Logging    LoggingConfig  `mapstructure:"logging"`
	Sources    []SourceConfig `mapstructure:"sources"`
	Pipeline   PipelineConfig `mapstructure:"pipeline"`
}

// FetchConfig governs document retrieval behavior.
type FetchConfig struct {
	UserAgent        string        `mapstructure:"user_agent"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	BackoffBase      time.Duration `mapstructure:"backoff_base"`
	BackoffMax       time.Duration `mapstructure:"backoff_max"`
	DomainRPS        float64       `mapstructure:"domain_rps"`
	DomainBurst      int           `mapstructure:"domain_burst"`
	Concurrency      int           `mapstructure:"concurrency"`
	AllowedMIMETypes []string      `mapstructure:"allowed_mime_types"`
}

// ValidateConfig holds document quality thresholds.
type ValidateConfig struct {
	MinTitleLen    int      `mapstructure:"min_title_len"`
	MinBodyLen     int      `mapstructure:"min_body_len"`
	Keywords       []string `mapstructure:"keywords"`
	RequireKeyword bool     `mapstructure:"require_keyword"`
}

// ExtractConfig configures the extraction backend call.
type ExtractConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxBodyLen  int           `mapstructure:"max_body_len"`
	Temperature float64       `mapstructure:"temperature"`
}

// MatchConfig holds similarity weights and the attach threshold.
type MatchConfig struct {
	NameWeight     float64 `mapstructure:"name_weight"`
	LocationWeight float64 `mapstructure:"location_weight"`
	EditWeight     float64 `mapstructure:"edit_weight"`
	Threshold      float64 `mapstructure:"threshold"`
	IncludeClosed  bool    `mapstructure:"include_closed"`
}

// DBConfig controls access to the relational database. Empty DSN selects the
// in-memory store.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SourceConfig describes one scan source: a listing page plus a link
// pattern. Site-specific markup rules stay out of the core; everything here
// is declarative.
type SourceConfig struct {
	ID          string `mapstructure:"id"`
	ListingURL  string `mapstructure:"listing_url"`
	LinkPattern string `mapstructure:"link_pattern"`
	MaxLinks    int    `mapstructure:"max_links"`
}

// PipelineConfig bounds batch processing.
type PipelineConfig struct {
	BatchLimit int `mapstructure:"batch_limit"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CIVICLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("fetch.user_agent", "civicledger/0.1 (+https://github.com/civicsignal/civicledger)")
	v.SetDefault("fetch.timeout", "15s")
	v.SetDefault("fetch.max_attempts", 4)
	v.SetDefault("fetch.backoff_base", "500ms")
	v.SetDefault("fetch.backoff_max", "8s")
	v.SetDefault("fetch.domain_rps", 0.5)
	v.SetDefault("fetch.domain_burst", 1)
	v.SetDefault("fetch.concurrency", 4)
	v.SetDefault("fetch.allowed_mime_types", []string{"text/html", "text/plain", "application/xhtml+xml"})
	v.SetDefault("validate.min_title_len", 10)
	v.SetDefault("validate.min_body_len", 100)
	v.SetDefault("validate.require_keyword", false)
	v.SetDefault("extract.base_url", "http://localhost:11434/v1")
	v.SetDefault("extract.model", "llama3.1:8b")
	v.SetDefault("extract.timeout", "120s")
	v.SetDefault("extract.max_body_len", 6000)
	v.SetDefault("extract.temperature", 0.0)
	v.SetDefault("match.name_weight", 0.5)
	v.SetDefault("match.location_weight", 0.2)
	v.SetDefault("match.edit_weight", 0.3)
	v.SetDefault("match.threshold", 0.6)
	v.SetDefault("match.include_closed", false)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("pipeline.batch_limit", 20)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Fetch.MaxAttempts <= 0 {
		return fmt.Errorf("fetch.max_attempts must be > 0")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if c.Fetch.Concurrency <= 0 {
		return fmt.Errorf("fetch.concurrency must be > 0")
	}
	if c.Validation.MinBodyLen <= 0 {
		return fmt.Errorf("validate.min_body_len must be > 0")
	}
	if c.Extract.Model == "" {
		return fmt.Errorf("extract.model is required")
	}
	if c.Match.Threshold <= 0 || c.Match.Threshold > 1 {
		return fmt.Errorf("match.threshold must be in (0, 1]")
	}
	sum := c.Match.NameWeight + c.Match.LocationWeight + c.Match.EditWeight
	if sum <= 0 {
		return fmt.Errorf("match weights must sum to > 0")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Pipeline.BatchLimit <= 0 {
		return fmt.Errorf("pipeline.batch_limit must be > 0")
	}
	return nil
}
