package httptransport

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestServerPoolLimitsConcurrency(t *testing.T) {
	var built int32
	pool := NewServerPool(2, func() int {
		return int(atomic.AddInt32(&built, 1))
	})

	ctx := context.Background()
	_, release1, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire 1: %v", err)
	}
	_, release2, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire 2: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		_, release3, err := pool.Acquire(ctx)
		if err != nil {
			return
		}
		close(acquired)
		release3()
	}()

	select {
	case <-acquired:
		t.Fatalf("expected third Acquire to block while pool is at capacity")
	case <-time.After(50 * time.Millisecond):
	}

	release1()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("expected third Acquire to unblock after a release")
	}
	release2()
}

func TestServerPoolAcquireCancelledByContext(t *testing.T) {
	pool := NewServerPool(1, func() int { return 0 })

	ctx := context.Background()
	_, release, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	cancelCtx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := pool.Acquire(cancelCtx); err == nil {
		t.Fatalf("expected Acquire to fail on an already-cancelled context")
	}
}
