// Package llm wraps the external model endpoint used for Bloom-level
// classification and quiz generation. The client is constructed once from
// configuration and injected into the components that need it; nothing in
// this package reads ambient state.
package llm

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Invoker is the surface the aggregation and quiz engines consume.
// Both calls are single-turn: a user text plus a system prompt, returning the
// model's raw text reply. Transport failures come back as ordinary errors;
// callers treat them as per-unit skips, never as batch aborts.
type Invoker interface {
	// Classify sends text to the classifier endpoint with a system prompt.
	Classify(ctx context.Context, text, system string) (string, error)

	// Generate sends text to the generation endpoint with a system prompt.
	Generate(ctx context.Context, text, system string) (string, error)
}

// Config holds the endpoint settings for a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client is the production Invoker backed by an OpenAI-compatible endpoint.
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
}

// NewClient builds a Client from explicit configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: model is required")
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		api:     openai.NewClientWithConfig(apiCfg),
		model:   cfg.Model,
		timeout: timeout,
	}, nil
}

// Classify implements Invoker. Classification runs at temperature 0 so the
// strict-JSON prompts behave deterministically.
func (c *Client) Classify(ctx context.Context, text, system string) (string, error) {
	return c.complete(ctx, text, system, 0)
}

// Generate implements Invoker.
func (c *Client) Generate(ctx context.Context, text, system string) (string, error) {
	return c.complete(ctx, text, system, 0.7)
}

func (c *Client) complete(ctx context.Context, text, system string, temperature float32) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var messages []openai.ChatCompletionMessage
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
