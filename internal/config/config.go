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
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Progress  ProgressConfig  `yaml:"progress" mapstructure:"progress"`
	Arxiv     ArxivConfig     `yaml:"arxiv" mapstructure:"arxiv"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Orcid     OrcidConfig     `yaml:"orcid" mapstructure:"orcid"`
	Tavily    TavilyConfig    `yaml:"tavily" mapstructure:"tavily"`
	Match     MatchConfig     `yaml:"match" mapstructure:"match"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Rankings  RankingsConfig  `yaml:"rankings" mapstructure:"rankings"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the Postgres backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ProgressConfig configures the local session ledger.
type ProgressConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ArxivConfig configures the feed client.
type ArxivConfig struct {
	BaseURL          string   `yaml:"base_url" mapstructure:"base_url"`
	Categories       []string `yaml:"categories" mapstructure:"categories"`
	RateIntervalSecs int      `yaml:"rate_interval_secs" mapstructure:"rate_interval_secs"`
	MaxResults       int      `yaml:"max_results" mapstructure:"max_results"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// OrcidConfig configures the identity registry client.
type OrcidConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Rows    int    `yaml:"rows" mapstructure:"rows"`
}

// TavilyConfig holds the web-search credential pool. Keys are tried in
// order; the pipeline rotates to the next key when one runs out of quota.
type TavilyConfig struct {
	Keys    []string `yaml:"keys" mapstructure:"keys"`
	BaseURL string   `yaml:"base_url" mapstructure:"base_url"`
}

// MatchConfig holds the fuzzy matching thresholds.
type MatchConfig struct {
	DirectoryThreshold float64 `yaml:"directory_threshold" mapstructure:"directory_threshold"`
	RoleThreshold      float64 `yaml:"role_threshold" mapstructure:"role_threshold"`
}

// PipelineConfig configures the batch engine and stage fan-out.
type PipelineConfig struct {
	SliceSize          int  `yaml:"slice_size" mapstructure:"slice_size"`
	AffiliationWorkers int  `yaml:"affiliation_workers" mapstructure:"affiliation_workers"`
	RegistryWorkers    int  `yaml:"registry_workers" mapstructure:"registry_workers"`
	RoleSearchWorkers  int  `yaml:"role_search_workers" mapstructure:"role_search_workers"`
	RoleSearchEnabled  bool `yaml:"role_search_enabled" mapstructure:"role_search_enabled"`
	MaxRetries         int  `yaml:"max_retries" mapstructure:"max_retries"`
}

// RankingsConfig configures ranking table imports.
type RankingsConfig struct {
	System string `yaml:"system" mapstructure:"system"`
	Year   int    `yaml:"year" mapstructure:"year"`
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

	// Defaults. Secrets default to empty so AutomaticEnv can bind them
	// even when no config file sets the key.
	v.SetDefault("store.database_url", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("tavily.keys", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("progress.path", "enrich-progress.db")
	v.SetDefault("arxiv.base_url", "https://export.arxiv.org/api/query")
	v.SetDefault("arxiv.categories", []string{"cs.AI", "cs.LG"})
	v.SetDefault("arxiv.rate_interval_secs", 3)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("orcid.base_url", "https://pub.orcid.org/v3.0")
	v.SetDefault("orcid.rows", 20)
	v.SetDefault("tavily.base_url", "https://api.tavily.com")
	v.SetDefault("match.directory_threshold", 0.84)
	v.SetDefault("match.role_threshold", 0.86)
	v.SetDefault("pipeline.slice_size", 20)
	v.SetDefault("pipeline.affiliation_workers", 5)
	v.SetDefault("pipeline.registry_workers", 5)
	v.SetDefault("pipeline.role_search_workers", 3)
	v.SetDefault("pipeline.role_search_enabled", true)
	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("rankings.system", "QS World University Rankings")

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
