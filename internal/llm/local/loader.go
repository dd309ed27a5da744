package local

import (
	"context"
	"sync"
	"time"
)

// attempt is one in-flight model load. Waiters block on done and then read
// handle/err, so every concurrent first-caller observes the same outcome.
type attempt struct {
	done   chan struct{}
	handle *Runner
	err    error
}

// Loader guards lazy, load-once construction of a model runner. Exactly one
// construction runs at a time; concurrent first-callers wait on it instead
// of duplicating the work. A failed construction is not cached: the state
// reverts to unloaded and the next request retries.
type Loader struct {
	mu        sync.Mutex
	handle    *Runner
	inflight  *attempt
	construct func(ctx context.Context) (*Runner, error)
	onLoad    func(d time.Duration, err error)
}

// NewLoader creates a Loader around a construction function. onLoad, if
// non-nil, observes each construction attempt's duration and outcome.
func NewLoader(construct func(ctx context.Context) (*Runner, error), onLoad func(time.Duration, error)) *Loader {
	return &Loader{construct: construct, onLoad: onLoad}
}

// Get returns the loaded runner, constructing it on first use. The
// construction itself is detached from the caller's cancellation so one
// cancelled request cannot poison the load for everyone waiting on it;
// a waiter whose own ctx ends gives up without affecting the load.
func (l *Loader) Get(ctx context.Context) (*Runner, error) {
	l.mu.Lock()
	if l.handle != nil {
		h := l.handle
		l.mu.Unlock()
		return h, nil
	}

	if a := l.inflight; a != nil {
		l.mu.Unlock()
		select {
		case <-a.done:
			return a.handle, a.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	a := &attempt{done: make(chan struct{})}
	l.inflight = a
	l.mu.Unlock()

	start := time.Now()
	h, err := l.construct(context.WithoutCancel(ctx))

	l.mu.Lock()
	if err == nil {
		l.handle = h
	}
	l.inflight = nil
	l.mu.Unlock()

	a.handle, a.err = h, err
	close(a.done)

	if l.onLoad != nil {
		l.onLoad(time.Since(start), err)
	}
	return h, err
}

// Loaded reports whether a runner is ready, without triggering a load.
func (l *Loader) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handle != nil
}

// Close shuts down the loaded runner, if any. Meant for process shutdown;
// it does not wait for in-flight loads.
func (l *Loader) Close() {
	l.mu.Lock()
	h := l.handle
	l.handle = nil
	l.mu.Unlock()
	if h != nil {
		h.Close()
	}
}
