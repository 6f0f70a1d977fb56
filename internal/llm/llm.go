// Package llm provides the chat completion clients used for extraction.
package llm

import "context"

// Client sends a single prompt and returns the model's free-text reply.
type Client interface {
	Chat(ctx context.Context, prompt string) (*Reply, error)
}

// Reply is a model completion.
type Reply struct {
	Text  string
	Usage Usage
}

// Usage is the token accounting a provider reported. Zero fields mean the
// provider did not report them.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Tokens returns prompt plus completion tokens when reported, otherwise the
// total, otherwise 0.
func (u Usage) Tokens() int {
	if u.PromptTokens > 0 || u.CompletionTokens > 0 {
		return u.PromptTokens + u.CompletionTokens
	}
	if u.TotalTokens > 0 {
		return u.TotalTokens
	}
	return 0
}
