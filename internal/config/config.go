package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Scrape  ScrapeConfig  `yaml:"scrape" mapstructure:"scrape"`
	Redis   RedisConfig   `yaml:"redis" mapstructure:"redis"`
	LLM     LLMConfig     `yaml:"llm" mapstructure:"llm"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
	Batch   BatchConfig   `yaml:"batch" mapstructure:"batch"`
	Notify  NotifyConfig  `yaml:"notify" mapstructure:"notify"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ScrapeConfig configures the page fetch chain.
type ScrapeConfig struct {
	MinContentLength   int             `yaml:"min_content_length" mapstructure:"min_content_length"`
	DirectTimeoutSecs  int             `yaml:"direct_timeout_secs" mapstructure:"direct_timeout_secs"`
	RefererTimeoutSecs int             `yaml:"referer_timeout_secs" mapstructure:"referer_timeout_secs"`
	Referers           []RefererConfig `yaml:"referers" mapstructure:"referers"`
	Browser            bool            `yaml:"browser" mapstructure:"browser"`
	BrowserTimeoutSecs int             `yaml:"browser_timeout_secs" mapstructure:"browser_timeout_secs"`
	BrowserBin         string          `yaml:"browser_bin" mapstructure:"browser_bin"`
	AutoScroll         bool            `yaml:"auto_scroll" mapstructure:"auto_scroll"`
	Cache              string          `yaml:"cache" mapstructure:"cache"`
	CacheTTLHours      int             `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// RefererConfig adds a host-specific referer rule.
type RefererConfig struct {
	Match       string `yaml:"match" mapstructure:"match"`
	Referer     string `yaml:"referer" mapstructure:"referer"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// RedisConfig holds the shared page cache connection.
type RedisConfig struct {
	Addr      string `yaml:"addr" mapstructure:"addr"`
	Password  string `yaml:"password" mapstructure:"password"`
	DB        int    `yaml:"db" mapstructure:"db"`
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// LLMConfig selects and tunes the model provider.
type LLMConfig struct {
	Provider          string  `yaml:"provider" mapstructure:"provider"`
	Key               string  `yaml:"key" mapstructure:"key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	AuthURL           string  `yaml:"auth_url" mapstructure:"auth_url"`
	Scope             string  `yaml:"scope" mapstructure:"scope"`
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature       float64 `yaml:"temperature" mapstructure:"temperature"`
	InsecureTLS       bool    `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerMinute int     `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	RetryAttempts     int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// ExtractConfig bounds model input and controls reply repair.
type ExtractConfig struct {
	HTMLLimit         int  `yaml:"html_limit" mapstructure:"html_limit"`
	MinHTML           int  `yaml:"min_html" mapstructure:"min_html"`
	TextLimit         int  `yaml:"text_limit" mapstructure:"text_limit"`
	ClassifyTextLimit int  `yaml:"classify_text_limit" mapstructure:"classify_text_limit"`
	Lenient           bool `yaml:"lenient" mapstructure:"lenient"`
}

// BatchConfig configures batch runs.
type BatchConfig struct {
	PauseMs   int    `yaml:"pause_ms" mapstructure:"pause_ms"`
	ExportDir string `yaml:"export_dir" mapstructure:"export_dir"`
}

// NotifyConfig configures progress delivery.
type NotifyConfig struct {
	WebhookURL  string `yaml:"webhook_url" mapstructure:"webhook_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Pause returns the delay between batch items. pause_ms 0 disables the
// pause, which batch.Runner expects as a negative duration.
func (b BatchConfig) Pause() time.Duration {
	if b.PauseMs <= 0 {
		return -1
	}
	return time.Duration(b.PauseMs) * time.Millisecond
}

// Load reads configuration from .env, the config file, and the environment.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CARDSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("scrape.min_content_length", 500)
	v.SetDefault("scrape.direct_timeout_secs", 10)
	v.SetDefault("scrape.referer_timeout_secs", 15)
	v.SetDefault("scrape.browser", true)
	v.SetDefault("scrape.browser_timeout_secs", 30)
	v.SetDefault("scrape.browser_bin", "")
	v.SetDefault("scrape.auto_scroll", true)
	v.SetDefault("scrape.cache", "memory")
	v.SetDefault("scrape.cache_ttl_hours", 24)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "cardscope:page:")
	v.SetDefault("llm.provider", "gigachat")
	v.SetDefault("llm.key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.auth_url", "https://ngw.devices.sberbank.ru:9443/api/v2/oauth")
	v.SetDefault("llm.scope", "GIGACHAT_API_B2B")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.insecure_tls", true)
	v.SetDefault("llm.timeout_secs", 120)
	v.SetDefault("llm.requests_per_minute", 30)
	v.SetDefault("llm.retry_attempts", 3)
	v.SetDefault("extract.html_limit", 120000)
	v.SetDefault("extract.min_html", 300)
	v.SetDefault("extract.text_limit", 70000)
	v.SetDefault("extract.classify_text_limit", 8000)
	v.SetDefault("extract.lenient", false)
	v.SetDefault("batch.pause_ms", 500)
	v.SetDefault("batch.export_dir", "exports")
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.timeout_secs", 10)

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

// Validate checks the settings a command mode depends on and reports every
// problem at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	requireStore := func() {
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				problems = append(problems, "store.database_url is required for postgres")
			}
		case "sqlite":
		default:
			problems = append(problems, "store.driver must be postgres or sqlite")
		}
	}

	requireLLM := func() {
		switch c.LLM.Provider {
		case "gigachat", "openai", "anthropic":
		default:
			problems = append(problems, "llm.provider must be gigachat, openai, or anthropic")
		}
		if c.LLM.Key == "" {
			problems = append(problems, "llm.key is required")
		}
		if c.LLM.MaxTokens <= 0 {
			problems = append(problems, "llm.max_tokens must be > 0")
		}
	}

	requireScrape := func() {
		if c.Scrape.MinContentLength <= 0 {
			problems = append(problems, "scrape.min_content_length must be > 0")
		}
		if c.Scrape.Cache != "memory" && c.Scrape.Cache != "redis" {
			problems = append(problems, "scrape.cache must be memory or redis")
		}
		if c.Scrape.Cache == "redis" && c.Redis.Addr == "" {
			problems = append(problems, "redis.addr is required for the redis cache")
		}
	}

	switch mode {
	case "run":
		requireStore()
		requireLLM()
		requireScrape()
		if c.Batch.PauseMs < 0 {
			problems = append(problems, "batch.pause_ms must be >= 0")
		}
		if c.Batch.ExportDir == "" {
			problems = append(problems, "batch.export_dir is required")
		}
	case "serve":
		requireStore()
		requireLLM()
		requireScrape()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0 and <= 65535")
		}
	case "identify":
		requireLLM()
		requireScrape()
	case "store":
		requireStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
