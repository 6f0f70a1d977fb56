package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cardscope/internal/resilience"
	"github.com/sells-group/cardscope/pkg/anthropic"
)

// AnthropicClient adapts the Messages API to Client.
type AnthropicClient struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropicClient creates an AnthropicClient over client.
func NewAnthropicClient(client anthropic.Client, model string, maxTokens int, temperature float64) *AnthropicClient {
	return &AnthropicClient{
		client:      client,
		model:       model,
		maxTokens:   int64(maxTokens),
		temperature: temperature,
	}
}

// Chat sends prompt as a single user message.
func (c *AnthropicClient) Chat(ctx context.Context, prompt string) (*Reply, error) {
	temp := c.temperature
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	})
	if err != nil {
		if status := anthropic.StatusCode(err); resilience.IsTransientStatus(status) {
			return nil, resilience.NewTransientError(err, status)
		}
		return nil, err
	}

	text := resp.Text()
	if text == "" {
		return nil, eris.New("anthropic: empty response")
	}
	return &Reply{
		Text: text,
		Usage: Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}
