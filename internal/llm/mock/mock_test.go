package mock

import (
	"context"
	"testing"

	"github.com/carepath/chat/internal/llm"
)

func TestGenerate_FixedText(t *testing.T) {
	t.Parallel()

	b := New()
	if b.Mode() != llm.ModeMock {
		t.Errorf("mode = %q, want %q", b.Mode(), llm.ModeMock)
	}

	got, err := b.Generate(context.Background(), "any prompt")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != ResponseText {
		t.Errorf("text = %q, want fixed stub text", got)
	}

	again, _ := b.Generate(context.Background(), "different prompt")
	if again != got {
		t.Error("stub must be deterministic across prompts")
	}
}
