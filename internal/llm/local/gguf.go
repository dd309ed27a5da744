package local

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/carepath/chat/internal/llm"
)

// GGUFConfig configures the quantized llama.cpp backend.
type GGUFConfig struct {
	ServerBin      string // llama-server binary, resolved via PATH
	ModelPath      string // local .gguf file
	ContextSize    int
	Threads        int
	MaxTokens      int
	Temperature    float64
	StartupTimeout time.Duration
}

// GGUF runs quantized on-box inference by driving a llama.cpp server
// process. The first call (or an eager warmup) pays the model load; every
// generation is serialized through the shared lane.
type GGUF struct {
	cfg    GGUFConfig
	logger log.Logger
	loader *Loader
	lane   *Lane
}

// NewGGUF creates the quantized backend. onLoad observes load attempts.
func NewGGUF(cfg GGUFConfig, logger log.Logger, lane *Lane, onLoad func(time.Duration, error)) *GGUF {
	g := &GGUF{cfg: cfg, logger: logger, lane: lane}
	g.loader = NewLoader(g.startServer, onLoad)
	return g
}

func (g *GGUF) startServer(ctx context.Context) (*Runner, error) {
	port, err := freePort()
	if err != nil {
		return nil, err
	}
	argv := []string{
		g.cfg.ServerBin,
		"-m", g.cfg.ModelPath,
		"-c", strconv.Itoa(g.cfg.ContextSize),
		"-t", strconv.Itoa(g.cfg.Threads),
		"--host", "127.0.0.1",
		"--port", strconv.Itoa(port),
	}
	g.logger.Info(ctx, "loading quantized model", "model", g.cfg.ModelPath, "threads", g.cfg.Threads)
	return startRunner(ctx, g.logger, "llama-server", argv, port, "/health", g.cfg.StartupTimeout)
}

// Mode implements llm.Backend.
func (*GGUF) Mode() llm.Mode { return llm.ModeGGUF }

// Generate loads the model on first use, then runs one completion through
// the single-slot lane.
func (g *GGUF) Generate(ctx context.Context, prompt string) (string, error) {
	h, err := g.loader.Get(ctx)
	if err != nil {
		return "", &llm.BackendError{
			Backend:  llm.ModeGGUF,
			Category: llm.CategoryLoading,
			Message:  "quantized model failed to load",
			Err:      err,
		}
	}

	if err := g.lane.Acquire(ctx); err != nil {
		return "", &llm.BackendError{
			Backend:  llm.ModeGGUF,
			Category: llm.CategoryUpstream,
			Message:  "request cancelled while queued for inference",
			Err:      err,
		}
	}
	defer g.lane.Release()

	req := map[string]any{
		"prompt":      prompt,
		"n_predict":   g.cfg.MaxTokens,
		"temperature": g.cfg.Temperature,
	}
	var resp struct {
		Content string `json:"content"`
	}
	if err := h.postJSON(ctx, "/completion", req, &resp); err != nil {
		return "", &llm.BackendError{
			Backend:  llm.ModeGGUF,
			Category: llm.CategoryUpstream,
			Message:  "local inference failed",
			Err:      err,
		}
	}

	return strings.TrimSpace(resp.Content), nil
}

// Warmup implements llm.Warmer by forcing the lazy load.
func (g *GGUF) Warmup(ctx context.Context) error {
	_, err := g.loader.Get(ctx)
	return err
}

// Close stops the runner process.
func (g *GGUF) Close() { g.loader.Close() }
