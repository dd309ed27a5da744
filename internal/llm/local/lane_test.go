package local

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLane_SerializesHolders(t *testing.T) {
	t.Parallel()

	lane := NewLane(nil)

	var active, maxActive atomic.Int32
	const n = 6
	const hold = 20 * time.Millisecond

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := lane.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			cur := active.Add(1)
			for {
				prev := maxActive.Load()
				if cur <= prev || maxActive.CompareAndSwap(prev, cur) {
					break
				}
			}
			time.Sleep(hold)
			active.Add(-1)
			lane.Release()
		}()
	}
	wg.Wait()

	if got := maxActive.Load(); got != 1 {
		t.Errorf("max concurrent holders = %d, want 1", got)
	}
	if elapsed := time.Since(start); elapsed < n*hold {
		t.Errorf("elapsed = %s, want at least %s for serialized holds", elapsed, n*hold)
	}
}

func TestLane_AcquireHonorsContext(t *testing.T) {
	t.Parallel()

	lane := NewLane(nil)
	if err := lane.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lane.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := lane.Acquire(ctx); err == nil {
		lane.Release()
		t.Fatal("Acquire on a held lane with expiring context must fail")
	}
}

func TestLane_ObservesWait(t *testing.T) {
	t.Parallel()

	var waited atomic.Int64
	lane := NewLane(func(d time.Duration) {
		waited.Add(int64(d))
	})

	if err := lane.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := lane.Acquire(context.Background()); err != nil {
			t.Errorf("second Acquire: %v", err)
			return
		}
		lane.Release()
	}()

	time.Sleep(30 * time.Millisecond)
	lane.Release()
	<-done

	if waited.Load() <= 0 {
		t.Error("onWait observed no wait time for a blocked acquire")
	}
}
