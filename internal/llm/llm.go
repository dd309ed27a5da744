// Package llm defines the inference backend abstraction: the closed set of
// backend modes, the Backend interface every strategy implements, and the
// Registry that resolves a mode to a backend and measures inference latency.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Mode selects an inference strategy. The set is closed: every value must
// resolve to exactly one registered backend, and unknown strings are
// rejected at the boundary by ParseMode rather than deep in the call chain.
type Mode string

const (
	// ModeMock is the zero-cost deterministic stub.
	ModeMock Mode = "mock"
	// ModeGGUF runs quantized on-box inference through a llama.cpp runner.
	ModeGGUF Mode = "gguf"
	// ModeQwen runs on-box inference through a transformer runtime runner.
	ModeQwen Mode = "qwen"
	// ModeHF calls the Hugging Face router API.
	ModeHF Mode = "hf"
	// ModeClaude calls the Anthropic API.
	ModeClaude Mode = "claude"
)

// ErrUnknownMode is returned when a mode string does not name a known
// backend kind.
var ErrUnknownMode = errors.New("unknown llm mode")

// ErrNotRegistered is returned when a valid mode has no backend registered
// in this process (e.g. no credentials or model path configured).
var ErrNotRegistered = errors.New("llm mode not registered")

// ParseMode validates a mode string against the closed set.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeMock, ModeGGUF, ModeQwen, ModeHF, ModeClaude:
		return Mode(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Category classifies backend failures into user-actionable buckets.
type Category string

const (
	CategoryAuth      Category = "auth"
	CategoryNotFound  Category = "not_found"
	CategoryRateLimit Category = "rate_limit"
	CategoryLoading   Category = "loading"
	CategoryTimeout   Category = "timeout"
	CategoryUpstream  Category = "upstream"
)

// BackendError is a failure inside a backend, classified for operators.
// Message is safe to show to a caller; Err carries the raw cause for logs.
type BackendError struct {
	Backend  Mode
	Category Category
	Message  string
	Err      error
}

func (e *BackendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s backend (%s): %s: %v", e.Backend, e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("%s backend (%s): %s", e.Backend, e.Category, e.Message)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Backend is one inference strategy. Generate returns plain text; the
// dispatcher never interprets it.
type Backend interface {
	Mode() Mode
	Generate(ctx context.Context, prompt string) (string, error)
}

// Warmer is implemented by backends whose first call pays an expensive
// one-time load. Warmup triggers that load eagerly at process start.
type Warmer interface {
	Warmup(ctx context.Context) error
}
