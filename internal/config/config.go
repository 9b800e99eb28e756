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
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Matcher    MatcherConfig    `yaml:"matcher" mapstructure:"matcher"`
	Scorer     ScorerConfig     `yaml:"scorer" mapstructure:"scorer"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID  string  `yaml:"client_id" mapstructure:"client_id"`
	Username  string  `yaml:"username" mapstructure:"username"`
	KeyPath   string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL  string  `yaml:"login_url" mapstructure:"login_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// MatcherConfig configures how candidate pools are loaded for matching.
type MatcherConfig struct {
	PageSize int    `yaml:"page_size" mapstructure:"page_size"`
	Source   string `yaml:"source" mapstructure:"source"`
}

// ScorerConfig holds the prospect qualification weights and category tiers.
// Weights are fractions and sum to 1.
type ScorerConfig struct {
	ReachWeight      float64 `yaml:"reach_weight" mapstructure:"reach_weight"`
	EngagementWeight float64 `yaml:"engagement_weight" mapstructure:"engagement_weight"`
	CategoryWeight   float64 `yaml:"category_weight" mapstructure:"category_weight"`
	QualityWeight    float64 `yaml:"quality_weight" mapstructure:"quality_weight"`
	CostWeight       float64 `yaml:"cost_weight" mapstructure:"cost_weight"`

	HighValueCategories   []string `yaml:"high_value_categories" mapstructure:"high_value_categories"`
	MediumValueCategories []string `yaml:"medium_value_categories" mapstructure:"medium_value_categories"`

	MinScore     float64 `yaml:"min_score" mapstructure:"min_score"`
	MaxProspects int     `yaml:"max_prospects" mapstructure:"max_prospects"`
	Concurrency  int     `yaml:"concurrency" mapstructure:"concurrency"`
	ProfilePath  string  `yaml:"profile_path" mapstructure:"profile_path"`
}

// RetryConfig configures retries for store and Salesforce reads.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
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
	v.SetEnvPrefix("CRM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "crm.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.rate_limit", 5.0)
	v.SetDefault("matcher.page_size", 1000)
	v.SetDefault("matcher.source", "store")
	v.SetDefault("scorer.reach_weight", 0.30)
	v.SetDefault("scorer.engagement_weight", 0.25)
	v.SetDefault("scorer.category_weight", 0.20)
	v.SetDefault("scorer.quality_weight", 0.15)
	v.SetDefault("scorer.cost_weight", 0.10)
	v.SetDefault("scorer.high_value_categories", DefaultHighValueCategories)
	v.SetDefault("scorer.medium_value_categories", DefaultMediumValueCategories)
	v.SetDefault("scorer.min_score", 60)
	v.SetDefault("scorer.max_prospects", 0)
	v.SetDefault("scorer.concurrency", 8)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)

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

// DefaultHighValueCategories are the niches that earn the top category-fit tier.
var DefaultHighValueCategories = []string{
	"day_trade", "trading", "investments", "stock_market", "options", "crypto", "forex",
}

// DefaultMediumValueCategories are adjacent niches that earn the middle tier.
var DefaultMediumValueCategories = []string{
	"personal_finance", "financial_education", "economics", "entrepreneurship",
	"business", "real_estate", "retirement",
}

// Validate checks the settings a command mode depends on. All problems are
// reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "store":
		errs = append(errs, c.validateStore()...)
	case "salesforce":
		if c.Salesforce.ClientID == "" {
			errs = append(errs, "salesforce.client_id is required")
		}
		if c.Salesforce.Username == "" {
			errs = append(errs, "salesforce.username is required")
		}
		if c.Salesforce.KeyPath == "" {
			errs = append(errs, "salesforce.key_path is required")
		}
	case "serve":
		errs = append(errs, c.validateStore()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Scorer.Concurrency < 1 || c.Scorer.Concurrency > 64 {
		errs = append(errs, "scorer.concurrency must be between 1 and 64")
	}
	if c.Matcher.PageSize <= 0 {
		errs = append(errs, "matcher.page_size must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	return errs
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
