package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Anthropic    AnthropicConfig    `yaml:"anthropic" mapstructure:"anthropic"`
	Ticketmaster TicketmasterConfig `yaml:"ticketmaster" mapstructure:"ticketmaster"`
	Eventbrite   EventbriteConfig   `yaml:"eventbrite" mapstructure:"eventbrite"`
	Places       PlacesConfig       `yaml:"places" mapstructure:"places"`
	Wikidata     WikidataConfig     `yaml:"wikidata" mapstructure:"wikidata"`
	Scrape       ScrapeConfig       `yaml:"scrape" mapstructure:"scrape"`
	Detect       DetectConfig       `yaml:"detect" mapstructure:"detect"`
	Extract      ExtractConfig      `yaml:"extract" mapstructure:"extract"`
	Revenue      RevenueConfig      `yaml:"revenue" mapstructure:"revenue"`
	Batch        BatchConfig        `yaml:"batch" mapstructure:"batch"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the warehouse backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
	// ColumnCacheTTLSecs bounds how long the schema column allow-list is
	// reused before being re-read from the warehouse.
	ColumnCacheTTLSecs int `yaml:"column_cache_ttl_secs" mapstructure:"column_cache_ttl_secs"`
}

// AnthropicConfig holds Anthropic API settings for the LLM fallback.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	StopOnQuota bool   `yaml:"stop_on_quota" mapstructure:"stop_on_quota"`
}

// TicketmasterConfig holds Discovery API settings.
type TicketmasterConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
}

// EventbriteConfig holds Eventbrite API settings.
type EventbriteConfig struct {
	Token   string `yaml:"token" mapstructure:"token"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
}

// PlacesConfig holds Google Places API settings.
type PlacesConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
}

// WikidataConfig holds the SPARQL endpoint settings.
type WikidataConfig struct {
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
}

// ScrapeConfig configures the website fetcher.
type ScrapeConfig struct {
	TimeoutSecs   int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxBytes      int `yaml:"max_bytes" mapstructure:"max_bytes"`
	MaxTextChars  int `yaml:"max_text_chars" mapstructure:"max_text_chars"`
	MaxExtraPages int `yaml:"max_extra_pages" mapstructure:"max_extra_pages"`
	// UserAgents overrides the built-in rotation when non-empty.
	UserAgents []string `yaml:"user_agents" mapstructure:"user_agents"`
}

// DetectConfig configures vendor detection.
type DetectConfig struct {
	// SignaturesPath optionally overrides the built-in vendor signature
	// table with a YAML file.
	SignaturesPath string `yaml:"signatures_path" mapstructure:"signatures_path"`
}

// ExtractConfig bounds the heuristic text extractors.
type ExtractConfig struct {
	PriceMin       float64 `yaml:"price_min" mapstructure:"price_min"`
	PriceMax       float64 `yaml:"price_max" mapstructure:"price_max"`
	CapacityMin    int64   `yaml:"capacity_min" mapstructure:"capacity_min"`
	CapacityMax    int64   `yaml:"capacity_max" mapstructure:"capacity_max"`
	PriceAggregate string  `yaml:"price_aggregate" mapstructure:"price_aggregate"` // "median" or "mean"
}

// RevenueConfig configures revenue derivation and the quality pass.
type RevenueConfig struct {
	EventsPerYear float64 `yaml:"events_per_year" mapstructure:"events_per_year"`
	LoadFactor    float64 `yaml:"load_factor" mapstructure:"load_factor"`
	// QualityConfidence is the minimum LLM-reported confidence
	// ("low" < "medium" < "high") required before the quality pass
	// overwrites a stored revenue figure.
	QualityConfidence string `yaml:"quality_confidence" mapstructure:"quality_confidence"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	DefaultLimit   int `yaml:"default_limit" mapstructure:"default_limit"`
	MaxLimit       int `yaml:"max_limit" mapstructure:"max_limit"`
	RowDelayMinMS  int `yaml:"row_delay_min_ms" mapstructure:"row_delay_min_ms"`
	RowDelayMaxMS  int `yaml:"row_delay_max_ms" mapstructure:"row_delay_max_ms"`
	SoftBudgetSecs int `yaml:"soft_budget_secs" mapstructure:"soft_budget_secs"`
	Concurrency    int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
	// Cron optionally schedules unattended batch runs, e.g. "0 */6 * * *".
	Cron string `yaml:"cron" mapstructure:"cron"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.table", "performing_arts")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("store.column_cache_ttl_secs", 600)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 512)
	v.SetDefault("anthropic.stop_on_quota", true)
	v.SetDefault("ticketmaster.base_url", "https://app.ticketmaster.com/discovery/v2")
	v.SetDefault("ticketmaster.enabled", true)
	v.SetDefault("eventbrite.base_url", "https://www.eventbriteapi.com/v3")
	v.SetDefault("eventbrite.enabled", true)
	v.SetDefault("places.base_url", "https://maps.googleapis.com/maps/api/place")
	v.SetDefault("places.enabled", true)
	v.SetDefault("wikidata.endpoint", "https://query.wikidata.org/sparql")
	v.SetDefault("wikidata.enabled", true)
	v.SetDefault("scrape.timeout_secs", 15)
	v.SetDefault("scrape.max_bytes", 2_000_000)
	v.SetDefault("scrape.max_text_chars", 40_000)
	v.SetDefault("scrape.max_extra_pages", 3)
	v.SetDefault("extract.price_min", 3.0)
	v.SetDefault("extract.price_max", 800.0)
	v.SetDefault("extract.capacity_min", 20)
	v.SetDefault("extract.capacity_max", 100_000)
	v.SetDefault("extract.price_aggregate", "median")
	v.SetDefault("revenue.events_per_year", 20)
	v.SetDefault("revenue.load_factor", 0.70)
	v.SetDefault("revenue.quality_confidence", "medium")
	v.SetDefault("batch.default_limit", 10)
	v.SetDefault("batch.max_limit", 500)
	v.SetDefault("batch.row_delay_min_ms", 30)
	v.SetDefault("batch.row_delay_max_ms", 180)
	v.SetDefault("batch.soft_budget_secs", 0)
	v.SetDefault("batch.concurrency", 1)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks invariants that must hold before any batch work starts.
func (c *Config) Validate() error {
	if c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required")
	}
	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Extract.PriceMin >= c.Extract.PriceMax {
		return eris.New("config: extract.price_min must be below extract.price_max")
	}
	if c.Extract.CapacityMin >= c.Extract.CapacityMax {
		return eris.New("config: extract.capacity_min must be below extract.capacity_max")
	}
	if c.Batch.RowDelayMinMS > c.Batch.RowDelayMaxMS {
		return eris.New("config: batch.row_delay_min_ms exceeds batch.row_delay_max_ms")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
