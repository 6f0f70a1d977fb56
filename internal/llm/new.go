package llm

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cardscope/internal/config"
	"github.com/sells-group/cardscope/internal/resilience"
	"github.com/sells-group/cardscope/pkg/anthropic"
)

// Default models per provider.
const (
	DefaultGigaChatModel  = "GigaChat-2-Max"
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-haiku-4-5-20251001"
)

// New builds the configured provider client wrapped in a Limited decorator.
func New(cfg config.LLMConfig) (Client, error) {
	if cfg.Key == "" {
		return nil, eris.New("llm: key is required")
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second

	var inner Client
	switch cfg.Provider {
	case "gigachat", "":
		opts := OpenAIOptions{
			Token:       cfg.Key,
			BaseURL:     orDefault(cfg.BaseURL, GigaChatBaseURL),
			Model:       orDefault(cfg.Model, DefaultGigaChatModel),
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			InsecureTLS: cfg.InsecureTLS,
			Timeout:     timeout,
		}
		// The key is an authorization key exchanged for access tokens,
		// unless no scope is configured, in which case it is sent as is.
		if cfg.Scope != "" {
			opts.Tokens = NewGigaChatTokens(GigaChatAuthOptions{
				Key:         cfg.Key,
				Scope:       cfg.Scope,
				URL:         cfg.AuthURL,
				InsecureTLS: cfg.InsecureTLS,
			})
		}
		inner = NewOpenAIClient(opts)
	case "openai":
		inner = NewOpenAIClient(OpenAIOptions{
			Token:       cfg.Key,
			BaseURL:     cfg.BaseURL,
			Model:       orDefault(cfg.Model, DefaultOpenAIModel),
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			InsecureTLS: cfg.InsecureTLS,
			Timeout:     timeout,
		})
	case "anthropic":
		inner = NewAnthropicClient(
			anthropic.NewClient(cfg.Key, cfg.BaseURL),
			orDefault(cfg.Model, DefaultAnthropicModel),
			cfg.MaxTokens,
			cfg.Temperature,
		)
	default:
		return nil, eris.Errorf("llm: unknown provider %q", cfg.Provider)
	}

	policy := resilience.DefaultPolicy()
	if cfg.RetryAttempts > 0 {
		policy.Attempts = cfg.RetryAttempts
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "gigachat"
	}
	policy.OnRetry = resilience.LogRetry(provider)

	return NewLimited(inner, cfg.RequestsPerMinute, policy), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
