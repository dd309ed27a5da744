package local

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/carepath/chat/internal/llm"
)

// TransformerConfig configures the general transformer-runtime backend.
type TransformerConfig struct {
	Command        string // runtime binary serving an OpenAI-compatible API
	Model          string // model identifier passed per request
	MaxTokens      int
	Temperature    float64
	StartupTimeout time.Duration
}

// Transformer runs on-box inference through a transformer runtime served as
// a child process with an OpenAI-compatible chat endpoint. Same load-once
// and lane discipline as the quantized backend; only the wire codec differs.
type Transformer struct {
	cfg    TransformerConfig
	logger log.Logger
	loader *Loader
	lane   *Lane
}

// NewTransformer creates the transformer backend. onLoad observes load
// attempts.
func NewTransformer(cfg TransformerConfig, logger log.Logger, lane *Lane, onLoad func(time.Duration, error)) *Transformer {
	t := &Transformer{cfg: cfg, logger: logger, lane: lane}
	t.loader = NewLoader(t.startServer, onLoad)
	return t
}

func (t *Transformer) startServer(ctx context.Context) (*Runner, error) {
	port, err := freePort()
	if err != nil {
		return nil, err
	}
	argv := []string{
		t.cfg.Command,
		"serve",
		"--host", "127.0.0.1",
		"--port", strconv.Itoa(port),
	}
	t.logger.Info(ctx, "loading transformer runtime", "model", t.cfg.Model)
	return startRunner(ctx, t.logger, "transformer-runtime", argv, port, "/health", t.cfg.StartupTimeout)
}

// Mode implements llm.Backend.
func (*Transformer) Mode() llm.Mode { return llm.ModeQwen }

// Generate loads the runtime on first use, then runs one chat completion
// through the single-slot lane.
func (t *Transformer) Generate(ctx context.Context, prompt string) (string, error) {
	h, err := t.loader.Get(ctx)
	if err != nil {
		return "", &llm.BackendError{
			Backend:  llm.ModeQwen,
			Category: llm.CategoryLoading,
			Message:  "transformer runtime failed to load",
			Err:      err,
		}
	}

	if err := t.lane.Acquire(ctx); err != nil {
		return "", &llm.BackendError{
			Backend:  llm.ModeQwen,
			Category: llm.CategoryUpstream,
			Message:  "request cancelled while queued for inference",
			Err:      err,
		}
	}
	defer t.lane.Release()

	req := map[string]any{
		"model": t.cfg.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"max_tokens":  t.cfg.MaxTokens,
		"temperature": t.cfg.Temperature,
	}
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := h.postJSON(ctx, "/v1/chat/completions", req, &resp); err != nil {
		return "", &llm.BackendError{
			Backend:  llm.ModeQwen,
			Category: llm.CategoryUpstream,
			Message:  "local inference failed",
			Err:      err,
		}
	}
	if len(resp.Choices) == 0 {
		return "", &llm.BackendError{
			Backend:  llm.ModeQwen,
			Category: llm.CategoryUpstream,
			Message:  "runtime returned no choices",
		}
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Warmup implements llm.Warmer by forcing the lazy load.
func (t *Transformer) Warmup(ctx context.Context) error {
	_, err := t.loader.Get(ctx)
	return err
}

// Close stops the runner process.
func (t *Transformer) Close() { t.loader.Close() }
