// Package mock provides the always-available stub backend used to exercise
// the triage pipeline without inference cost.
package mock

import (
	"context"

	"github.com/carepath/chat/internal/llm"
)

// ResponseText is the fixed text the stub returns for every prompt.
const ResponseText = "This is a mock response from the AI assistant. In production, this would be replaced with a real LLM response."

// Backend is the zero-cost deterministic stub. The zero value is ready to use.
type Backend struct{}

// New creates the stub backend.
func New() *Backend { return &Backend{} }

// Mode implements llm.Backend.
func (*Backend) Mode() llm.Mode { return llm.ModeMock }

// Generate returns the fixed stub text. It never fails and ignores the
// prompt entirely.
func (*Backend) Generate(_ context.Context, _ string) (string, error) {
	return ResponseText, nil
}
