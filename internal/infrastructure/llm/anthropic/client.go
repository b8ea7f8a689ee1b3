package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kirillkom/docextract/internal/infrastructure/llm"
)

const (
	DefaultModel = "claude-haiku-4-5-20251001"
	maxTokens    = 256
)

// Client completes prompts with the messages API.
type Client struct {
	model    string
	messages anthropic.MessageService
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
		model:    model,
		messages: anthropic.NewMessageService(opts...),
	}
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	message, err := c.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(0),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", convertError(err)
	}

	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func convertError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &llm.StatusError{
			Provider:   "anthropic",
			Operation:  "messages",
			StatusCode: apiErr.StatusCode,
			RetryAfter: llm.RetryAfter(apiErr.Response),
			Err:        err,
		}
	}
	return fmt.Errorf("anthropic messages: %w", err)
}
