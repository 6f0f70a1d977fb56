package llm

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"

	"github.com/sells-group/cardscope/internal/resilience"
)

// GigaChatBaseURL is the OpenAI-compatible GigaChat endpoint.
const GigaChatBaseURL = "https://gigachat.devices.sberbank.ru/api/v1"

// OpenAIOptions configures an OpenAI-compatible chat endpoint.
type OpenAIOptions struct {
	Token       string
	BaseURL     string // empty uses api.openai.com
	Model       string
	MaxTokens   int
	Temperature float64
	InsecureTLS bool
	Timeout     time.Duration

	// Tokens, when set, replaces Token with a refreshed bearer per request.
	Tokens tokenSource
}

// OpenAIClient talks to OpenAI or any compatible API, such as GigaChat.
type OpenAIClient struct {
	client *openai.Client
	opts   OpenAIOptions
}

// NewOpenAIClient creates an OpenAIClient.
func NewOpenAIClient(opts OpenAIOptions) *OpenAIClient {
	cfg := openai.DefaultConfig(opts.Token)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	var rt http.RoundTripper = transport
	if opts.Tokens != nil {
		rt = &bearerTransport{base: transport, tokens: opts.Tokens}
	}
	cfg.HTTPClient = &http.Client{Timeout: opts.Timeout, Transport: rt}

	return &OpenAIClient{client: openai.NewClientWithConfig(cfg), opts: opts}
}

// Chat sends prompt as a single user message.
func (c *OpenAIClient) Chat(ctx context.Context, prompt string) (*Reply, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.opts.Model,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: float32(c.opts.Temperature),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, classifyOpenAI(eris.Wrap(err, "openai: chat completion"))
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("openai: empty response")
	}

	return &Reply{
		Text: resp.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func classifyOpenAI(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if resilience.IsTransientStatus(status) {
		return resilience.NewTransientError(err, status)
	}
	return err
}
