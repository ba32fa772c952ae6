package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/healthmap/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store      store.Config     `yaml:"store" mapstructure:"store"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Wikipedia  WikipediaConfig  `yaml:"wikipedia" mapstructure:"wikipedia"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	News       NewsConfig       `yaml:"news" mapstructure:"news"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// LLMConfig selects the enrichment provider.
type LLMConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	Model          string  `yaml:"model" mapstructure:"model"`
	MaxTokens      int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	InferMaxTokens int     `yaml:"infer_max_tokens" mapstructure:"infer_max_tokens"`
	Temperature    float64 `yaml:"temperature" mapstructure:"temperature"`
}

// PerplexityConfig holds settings for the OpenAI-compatible fallback provider.
type PerplexityConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	Model          string  `yaml:"model" mapstructure:"model"`
	MaxTokens      int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	InferMaxTokens int     `yaml:"infer_max_tokens" mapstructure:"infer_max_tokens"`
	Temperature    float64 `yaml:"temperature" mapstructure:"temperature"`
}

// WikipediaConfig configures the encyclopedia scraper.
type WikipediaConfig struct {
	BaseURL    string  `yaml:"base_url" mapstructure:"base_url"`
	APIURL     string  `yaml:"api_url" mapstructure:"api_url"`
	UserAgent  string  `yaml:"user_agent" mapstructure:"user_agent"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// JinaConfig holds Jina Search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// NewsConfig configures news augmentation.
type NewsConfig struct {
	Enabled     bool `yaml:"enabled" mapstructure:"enabled"`
	MaxArticles int  `yaml:"max_articles" mapstructure:"max_articles"`
	// Sites restricts news search to these domains. Empty searches the
	// whole web.
	Sites []string `yaml:"sites" mapstructure:"sites"`
}

// PipelineConfig configures single-entity runs.
type PipelineConfig struct {
	CallTimeoutSecs int  `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	UpdateExisting  bool `yaml:"update_existing" mapstructure:"update_existing"`
}

// CallTimeout returns the per-call deadline, or zero for none.
func (p PipelineConfig) CallTimeout() time.Duration {
	if p.CallTimeoutSecs <= 0 {
		return 0
	}
	return time.Duration(p.CallTimeoutSecs) * time.Second
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// RetryConfig configures retries of LLM calls.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("HEALTHMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", store.DriverJSON)
	v.SetDefault("store.dir", store.DefaultDir)
	v.SetDefault("store.sqlite_path", store.DefaultSQLitePath)
	v.SetDefault("store.database_url", "")
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2000)
	v.SetDefault("anthropic.infer_max_tokens", 4000)
	v.SetDefault("anthropic.temperature", 0.2)
	v.SetDefault("perplexity.key", "")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("perplexity.max_tokens", 2000)
	v.SetDefault("perplexity.infer_max_tokens", 4000)
	v.SetDefault("perplexity.temperature", 0.2)
	v.SetDefault("wikipedia.base_url", "https://en.wikipedia.org/wiki/")
	v.SetDefault("wikipedia.api_url", "https://en.wikipedia.org/w/api.php")
	v.SetDefault("wikipedia.user_agent", "HealthMap/1.0 (Research Project)")
	v.SetDefault("wikipedia.rate_per_sec", 5.0)
	v.SetDefault("jina.key", "")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("news.enabled", true)
	v.SetDefault("news.max_articles", 5)
	v.SetDefault("news.sites", []string{})
	v.SetDefault("pipeline.call_timeout_secs", 60)
	v.SetDefault("pipeline.update_existing", true)
	v.SetDefault("batch.workers", 4)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validation modes, one per command family.
const (
	ModeEnrichment = "enrichment"
	ModeRead       = "read"
	ModeServe      = "serve"
)

// Validate checks that the keys a command mode depends on are present and
// in range. All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case ModeEnrichment:
		errs = append(errs, c.validateEnrichment()...)
	case ModeServe:
		errs = append(errs, c.validateEnrichment()...)
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	case ModeRead:
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	errs = append(errs, c.validateStore()...)

	if c.Batch.Workers < 1 || c.Batch.Workers > 64 {
		errs = append(errs, "batch.workers must be between 1 and 64")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateEnrichment() []string {
	var errs []string
	switch c.LLM.Provider {
	case "anthropic":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
		if c.Anthropic.Temperature < 0 || c.Anthropic.Temperature > 1 {
			errs = append(errs, "anthropic.temperature must be between 0 and 1")
		}
	case "perplexity":
		if c.Perplexity.Key == "" {
			errs = append(errs, "perplexity.key is required")
		}
		if c.Perplexity.Temperature < 0 || c.Perplexity.Temperature > 1 {
			errs = append(errs, "perplexity.temperature must be between 0 and 1")
		}
	default:
		errs = append(errs, "llm.provider must be anthropic or perplexity")
	}
	if c.Pipeline.CallTimeoutSecs < 0 {
		errs = append(errs, "pipeline.call_timeout_secs must be >= 0")
	}
	return errs
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case store.DriverJSON, "":
		return nil
	case store.DriverSQLite:
		return nil
	case store.DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
		return nil
	default:
		return []string{"store.driver must be json, sqlite or postgres"}
	}
}

// InitLogger replaces the global zap logger according to cfg.
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
