package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Source     SourceConfig     `yaml:"source" mapstructure:"source"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Resolver   ResolverConfig   `yaml:"resolver" mapstructure:"resolver"`
	Lookup     LookupConfig     `yaml:"lookup" mapstructure:"lookup"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// SourceConfig configures the upstream member feed.
type SourceConfig struct {
	URL         string   `yaml:"url" mapstructure:"url"`
	Format      string   `yaml:"format" mapstructure:"format"`
	TimeoutSecs int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int      `yaml:"max_retries" mapstructure:"max_retries"`
	UserAgent   string   `yaml:"user_agent" mapstructure:"user_agent"`
	IDKeys      []string `yaml:"id_keys" mapstructure:"id_keys"`
	NameKeys    []string `yaml:"name_keys" mapstructure:"name_keys"`
}

// CacheConfig configures snapshot freshness.
type CacheConfig struct {
	MaxAgeSecs       int `yaml:"max_age_secs" mapstructure:"max_age_secs"`
	FetchTimeoutSecs int `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
}

// MaxAge returns the snapshot max age as a duration.
func (c CacheConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeSecs) * time.Second
}

// FetchTimeout returns the upstream fetch bound as a duration.
func (c CacheConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSecs) * time.Second
}

// StoreConfig configures optional snapshot persistence.
type StoreConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL   string `yaml:"database_url" mapstructure:"database_url"`
	KeepSnapshots int    `yaml:"keep_snapshots" mapstructure:"keep_snapshots"`
}

// LLMConfig configures the context-bounded LLM engine.
type LLMConfig struct {
	Provider         string `yaml:"provider" mapstructure:"provider"`
	TokenBudget      int    `yaml:"token_budget" mapstructure:"token_budget"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	FailureThreshold int    `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int    `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// Timeout returns the per-call LLM bound as a duration.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int32  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ResolverConfig configures entity and attribute resolution.
type ResolverConfig struct {
	PresenceThreshold float64           `yaml:"presence_threshold" mapstructure:"presence_threshold"`
	Vocabulary        map[string]string `yaml:"vocabulary" mapstructure:"vocabulary"`
	VocabularyFile    string            `yaml:"vocabulary_file" mapstructure:"vocabulary_file"`
}

// LookupConfig configures the deterministic answer engine.
type LookupConfig struct {
	TextFields []string `yaml:"text_fields" mapstructure:"text_fields"`
}

// BatchConfig configures multi-question asking.
type BatchConfig struct {
	MaxConcurrentQuestions int `yaml:"max_concurrent_questions" mapstructure:"max_concurrent_questions"`
}

// ServerConfig configures the HTTP shell.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures answer-health alerting. Alerts are sent only
// when WebhookURL is set.
type MonitoringConfig struct {
	WebhookURL              string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs       int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours     int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	UnresolvedRateThreshold float64 `yaml:"unresolved_rate_threshold" mapstructure:"unresolved_rate_threshold"`
	FallbackRateThreshold   float64 `yaml:"fallback_rate_threshold" mapstructure:"fallback_rate_threshold"`
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
	v.SetEnvPrefix("MEMBERQA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Secrets have no default but must be known keys for env lookup.
	for _, key := range []string{"anthropic.key", "gemini.key", "store.database_url", "monitoring.webhook_url", "resolver.vocabulary_file"} {
		v.SetDefault(key, "")
	}

	// Defaults
	v.SetDefault("source.url", "https://november7-730026606190.europe-west1.run.app/messages")
	v.SetDefault("source.format", "json")
	v.SetDefault("source.timeout_secs", 30)
	v.SetDefault("source.max_retries", 3)
	v.SetDefault("source.user_agent", "member-qa/1.0")
	v.SetDefault("source.id_keys", []string{"id", "member_id", "user_id"})
	v.SetDefault("source.name_keys", []string{"user_name", "name", "member_name", "member"})
	v.SetDefault("cache.max_age_secs", 300)
	v.SetDefault("cache.fetch_timeout_secs", 30)
	v.SetDefault("store.driver", "none")
	v.SetDefault("store.keep_snapshots", 3)
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.token_budget", 6000)
	v.SetDefault("llm.timeout_secs", 20)
	v.SetDefault("llm.failure_threshold", 5)
	v.SetDefault("llm.reset_timeout_secs", 30)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 512)
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.max_tokens", 512)
	v.SetDefault("resolver.presence_threshold", 0.5)
	v.SetDefault("lookup.text_fields", []string{"message"})
	v.SetDefault("batch.max_concurrent_questions", 4)
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.unresolved_rate_threshold", 0.5)
	v.SetDefault("monitoring.fallback_rate_threshold", 0.5)
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

// Validate checks that the options required by mode are present and in
// range. Mode is one of "serve", "ask" or "analyze". All problems are
// reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Source.URL == "" {
		errs = append(errs, "source.url is required")
	}
	switch c.Source.Format {
	case "json", "csv":
	default:
		errs = append(errs, fmt.Sprintf("source.format %q is not supported", c.Source.Format))
	}
	if c.Cache.MaxAgeSecs < 0 {
		errs = append(errs, "cache.max_age_secs must be >= 0")
	}
	if c.Resolver.PresenceThreshold < 0 || c.Resolver.PresenceThreshold > 1 {
		errs = append(errs, "resolver.presence_threshold must be between 0 and 1")
	}
	switch c.Store.Driver {
	case "", "none", "sqlite":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}

	switch mode {
	case "analyze":
	case "ask", "serve":
		if c.LLM.TokenBudget <= 0 {
			errs = append(errs, "llm.token_budget must be > 0")
		}
		if c.LLM.TimeoutSecs <= 0 {
			errs = append(errs, "llm.timeout_secs must be > 0")
		}
		switch c.LLM.Provider {
		case "anthropic", "gemini", "none":
		default:
			errs = append(errs, fmt.Sprintf("llm.provider %q is not supported", c.LLM.Provider))
		}
		if c.Batch.MaxConcurrentQuestions < 1 || c.Batch.MaxConcurrentQuestions > 32 {
			errs = append(errs, "batch.max_concurrent_questions must be between 1 and 32")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// LLMKey returns the credential for the selected provider. An empty result
// means the LLM engine runs without a provider.
func (c *Config) LLMKey() string {
	switch c.LLM.Provider {
	case "anthropic":
		return c.Anthropic.Key
	case "gemini":
		return c.Gemini.Key
	default:
		return ""
	}
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
