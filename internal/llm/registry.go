package llm

import (
	"context"
	"time"
)

// Registry maps backend modes to their implementations and dispatches
// generation calls. Resolution is total over the registered set: an
// unregistered mode fails before any inference work starts.
type Registry struct {
	backends map[Mode]Backend
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[Mode]Backend)}
}

// Register adds a backend, keyed by its Mode. Later registrations replace
// earlier ones.
func (r *Registry) Register(b Backend) {
	r.backends[b.Mode()] = b
}

// Resolve returns the backend for a mode, or ErrNotRegistered.
func (r *Registry) Resolve(mode Mode) (Backend, error) {
	b, ok := r.backends[mode]
	if !ok {
		return nil, &BackendError{
			Backend:  mode,
			Category: CategoryNotFound,
			Message:  "no backend registered for mode " + string(mode),
			Err:      ErrNotRegistered,
		}
	}
	return b, nil
}

// Modes lists the registered modes, for startup logging.
func (r *Registry) Modes() []Mode {
	out := make([]Mode, 0, len(r.backends))
	for m := range r.backends {
		out = append(out, m)
	}
	return out
}

// Generate resolves the mode and invokes its backend, returning the response
// text and the wall-clock inference latency. The latency covers only the
// backend call, including any time spent waiting on the local inference lane.
func (r *Registry) Generate(ctx context.Context, mode Mode, prompt string) (string, time.Duration, error) {
	b, err := r.Resolve(mode)
	if err != nil {
		return "", 0, err
	}

	start := time.Now()
	text, err := b.Generate(ctx, prompt)
	elapsed := time.Since(start)
	if err != nil {
		return "", elapsed, err
	}
	return text, elapsed, nil
}
