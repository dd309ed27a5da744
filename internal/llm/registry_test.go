package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeBackend struct {
	mode  Mode
	text  string
	err   error
	delay time.Duration
	calls int
}

func (f *fakeBackend) Mode() Mode { return f.mode }

func (f *fakeBackend) Generate(_ context.Context, _ string) (string, error) {
	f.calls++
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.text, f.err
}

func TestParseMode_Known(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"mock", "gguf", "qwen", "hf", "claude"} {
		mode, err := ParseMode(s)
		if err != nil {
			t.Errorf("ParseMode(%q): %v", s, err)
		}
		if string(mode) != s {
			t.Errorf("ParseMode(%q) = %q", s, mode)
		}
	}
}

func TestParseMode_Unknown(t *testing.T) {
	t.Parallel()

	_, err := ParseMode("gpt-5")
	if !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("err = %v, want ErrUnknownMode", err)
	}
}

func TestRegistry_Generate(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	fb := &fakeBackend{mode: ModeMock, text: "hello"}
	r.Register(fb)

	text, elapsed, err := r.Generate(context.Background(), ModeMock, "prompt")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "hello" {
		t.Errorf("text = %q, want %q", text, "hello")
	}
	if elapsed < 0 {
		t.Errorf("elapsed = %v, want >= 0", elapsed)
	}
	if fb.calls != 1 {
		t.Errorf("backend calls = %d, want 1", fb.calls)
	}
}

func TestRegistry_UnregisteredMode(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	fb := &fakeBackend{mode: ModeMock, text: "hello"}
	r.Register(fb)

	_, _, err := r.Generate(context.Background(), ModeClaude, "prompt")
	if !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("err = %v, want ErrNotRegistered", err)
	}
	if fb.calls != 0 {
		t.Error("unregistered mode must not invoke any backend")
	}

	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("err = %T, want *BackendError", err)
	}
	if be.Category != CategoryNotFound {
		t.Errorf("category = %q, want %q", be.Category, CategoryNotFound)
	}
}

func TestRegistry_BackendErrorPassthrough(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	wantErr := &BackendError{Backend: ModeHF, Category: CategoryRateLimit, Message: "rate limited"}
	r.Register(&fakeBackend{mode: ModeHF, err: wantErr})

	_, _, err := r.Generate(context.Background(), ModeHF, "prompt")
	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("err = %T, want *BackendError", err)
	}
	if be.Category != CategoryRateLimit {
		t.Errorf("category = %q, want %q", be.Category, CategoryRateLimit)
	}
}

func TestRegistry_LatencyMeasured(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(&fakeBackend{mode: ModeMock, text: "x", delay: 20 * time.Millisecond})

	_, elapsed, err := r.Generate(context.Background(), ModeMock, "p")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if elapsed < 20*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 20ms", elapsed)
	}
}
