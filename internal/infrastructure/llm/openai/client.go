package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/kirillkom/docextract/internal/infrastructure/llm"
)

const (
	DefaultModel = "gpt-4o-mini"
	maxTokens    = 256
	seed         = 42
)

// Client completes prompts with the chat completions API.
type Client struct {
	model       string
	completions openai.ChatCompletionService
}

// New builds a client; baseURL may be empty for the public endpoint. SDK retries are
// disabled so the resilience executor owns them.
func New(apiKey, model, baseURL string) *Client {
	if model == "" {
		model = DefaultModel
	}
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	return &Client{
		model:       model,
		completions: openai.NewChatCompletionService(opts...),
	}
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	completion, err := c.completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0),
		Seed:        openai.Int(seed),
		MaxTokens:   openai.Int(maxTokens),
	})
	if err != nil {
		return "", convertError(err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("openai completion: no choices returned")
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

func convertError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &llm.StatusError{
			Provider:   "openai",
			Operation:  "chat completion",
			StatusCode: apiErr.StatusCode,
			Body:       apiErr.Message,
			RetryAfter: llm.RetryAfter(apiErr.Response),
			Err:        err,
		}
	}
	return fmt.Errorf("openai chat completion: %w", err)
}
