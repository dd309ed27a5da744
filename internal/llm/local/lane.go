// Package local runs on-box model inference. Models are served by a child
// runner process that is expensive to start (seconds to minutes) and cheap
// to reuse; generation saturates the CPU and the runtimes are not safe for
// concurrent generation, so all local inference is serialized through a
// single-slot lane while the rest of the service stays responsive.
package local

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

// Lane is the single-slot execution lane shared by all local backends. At
// most one inference runs at a time; a request waiting on the lane blocks
// only its own continuation, never the service.
type Lane struct {
	sem    *semaphore.Weighted
	onWait func(time.Duration)
}

// NewLane creates the weight-1 lane. onWait, if non-nil, observes how long
// each caller queued before acquiring the slot.
func NewLane(onWait func(time.Duration)) *Lane {
	return &Lane{
		sem:    semaphore.NewWeighted(1),
		onWait: onWait,
	}
}

// Acquire blocks until the slot is free or ctx is done.
func (l *Lane) Acquire(ctx context.Context) error {
	start := time.Now()
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("inference lane: %w", err)
	}
	if l.onWait != nil {
		l.onWait(time.Since(start))
	}
	return nil
}

// Release frees the slot. Must be called exactly once per successful Acquire.
func (l *Lane) Release() {
	l.sem.Release(1)
}
