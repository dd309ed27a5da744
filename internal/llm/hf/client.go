// Package hf generates responses through the Hugging Face router API with
// an OpenAI-compatible chat codec. The model id may carry a provider suffix
// (for example "Qwen/Qwen2.5-7B-Instruct:together") which the router uses
// to pick the serving provider.
package hf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/carepath/chat/internal/llm"
)

const defaultBaseURL = "https://router.huggingface.co"

// Client is the remote Hugging Face backend.
type Client struct {
	baseURL     string
	token       string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

// Config holds the knobs for the Hugging Face backend.
type Config struct {
	BaseURL     string // empty means the public router
	Token       string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// New creates the Hugging Face backend.
func New(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		baseURL:     strings.TrimRight(base, "/"),
		token:       cfg.Token,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Mode implements llm.Backend.
func (*Client) Mode() llm.Mode { return llm.ModeHF }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate sends one chat completion to the router and returns the text.
// Router failures are translated into categorized backend errors with
// messages an operator can act on.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", c.upstreamErr("encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", c.upstreamErr("create request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", &llm.BackendError{
				Backend:  llm.ModeHF,
				Category: llm.CategoryTimeout,
				Message:  "Hugging Face API timed out. Try again or select a different model.",
				Err:      err,
			}
		}
		return "", c.upstreamErr("call router", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", c.upstreamErr("read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", c.statusErr(resp.StatusCode, respBody)
	}

	text, err := parseGenerated(respBody)
	if err != nil {
		return "", &llm.BackendError{
			Backend:  llm.ModeHF,
			Category: llm.CategoryUpstream,
			Message:  "empty response from Hugging Face API",
			Err:      err,
		}
	}
	return text, nil
}

// parseGenerated accepts both response shapes the router emits: the
// OpenAI-style choices object, and the completion array some providers
// answer with.
func parseGenerated(body []byte) (string, error) {
	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Choices) > 0 {
		if text := strings.TrimSpace(parsed.Choices[0].Message.Content); text != "" {
			return text, nil
		}
	}

	var completions []struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(body, &completions); err == nil && len(completions) > 0 {
		if text := strings.TrimSpace(completions[0].GeneratedText); text != "" {
			return text, nil
		}
	}

	return "", fmt.Errorf("no generated text in response")
}

// statusErr maps router status codes to categories the caller can reason
// about, keeping the router's operational hints in the message.
func (c *Client) statusErr(status int, body []byte) *llm.BackendError {
	switch status {
	case http.StatusUnauthorized:
		return &llm.BackendError{
			Backend:  llm.ModeHF,
			Category: llm.CategoryAuth,
			Message:  "invalid Hugging Face API token, check the configured token",
		}
	case http.StatusNotFound:
		return &llm.BackendError{
			Backend:  llm.ModeHF,
			Category: llm.CategoryNotFound,
			Message:  fmt.Sprintf("model %q not found or provider not available", c.model),
		}
	case http.StatusTooManyRequests:
		return &llm.BackendError{
			Backend:  llm.ModeHF,
			Category: llm.CategoryRateLimit,
			Message:  "Hugging Face API rate limit exceeded, wait and try again",
		}
	case http.StatusServiceUnavailable:
		return &llm.BackendError{
			Backend:  llm.ModeHF,
			Category: llm.CategoryLoading,
			Message:  fmt.Sprintf("model %q is loading, wait a moment and try again", c.model),
		}
	default:
		return &llm.BackendError{
			Backend:  llm.ModeHF,
			Category: llm.CategoryUpstream,
			Message:  fmt.Sprintf("Hugging Face API error (%d): %s", status, truncate(body)),
		}
	}
}

func (c *Client) upstreamErr(op string, err error) *llm.BackendError {
	return &llm.BackendError{
		Backend:  llm.ModeHF,
		Category: llm.CategoryUpstream,
		Message:  "Hugging Face API request failed",
		Err:      fmt.Errorf("%s: %w", op, err),
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func truncate(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit])
	}
	return string(b)
}
