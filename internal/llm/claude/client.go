// Package claude generates responses through the Anthropic Messages API.
package claude

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/carepath/chat/internal/llm"
)

// Client is the remote Anthropic backend.
type Client struct {
	sdk       anthropic.Client
	model     string
	maxTokens int
}

// Config holds the knobs for the Anthropic backend.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	BaseURL   string // overridden in tests, empty for the real API
}

// New creates the Anthropic backend.
func New(cfg Config) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL), option.WithMaxRetries(0))
	}
	return &Client{
		sdk:       anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

// Mode implements llm.Backend.
func (*Client) Mode() llm.Mode { return llm.ModeClaude }

// Generate sends one user turn and concatenates the text blocks of the reply.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := c.sdk.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", c.translate(err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", &llm.BackendError{
			Backend:  llm.ModeClaude,
			Category: llm.CategoryUpstream,
			Message:  "empty response from Anthropic API",
		}
	}
	return text, nil
}

// translate maps SDK errors to categorized backend errors.
func (c *Client) translate(err error) *llm.BackendError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &llm.BackendError{
			Backend:  llm.ModeClaude,
			Category: llm.CategoryTimeout,
			Message:  "Anthropic API timed out, try again",
			Err:      err,
		}
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &llm.BackendError{
				Backend:  llm.ModeClaude,
				Category: llm.CategoryAuth,
				Message:  "invalid Anthropic API key, check the configured key",
				Err:      err,
			}
		case http.StatusNotFound:
			return &llm.BackendError{
				Backend:  llm.ModeClaude,
				Category: llm.CategoryNotFound,
				Message:  fmt.Sprintf("model %q not found", c.model),
				Err:      err,
			}
		case http.StatusTooManyRequests:
			return &llm.BackendError{
				Backend:  llm.ModeClaude,
				Category: llm.CategoryRateLimit,
				Message:  "Anthropic API rate limit exceeded, wait and try again",
				Err:      err,
			}
		case http.StatusServiceUnavailable, 529:
			return &llm.BackendError{
				Backend:  llm.ModeClaude,
				Category: llm.CategoryLoading,
				Message:  "Anthropic API is overloaded, wait a moment and try again",
				Err:      err,
			}
		}
	}

	return &llm.BackendError{
		Backend:  llm.ModeClaude,
		Category: llm.CategoryUpstream,
		Message:  "Anthropic API request failed",
		Err:      err,
	}
}
