package pgdb

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestFIFOSemaphoreLimitsConcurrency(t *testing.T) {
	sem := newFIFOSemaphore(2)
	rel1, err := sem.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	rel2, err := sem.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sem.InFlight() != 2 {
		t.Fatalf("expected 2 in flight, got %d", sem.InFlight())
	}

	acquired := make(chan struct{})
	go func() {
		rel3, err := sem.Acquire(context.Background())
		if err != nil {
			t.Error(err)
			return
		}
		close(acquired)
		rel3()
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-acquired:
		t.Fatal("third acquire should have blocked while 2 slots are in use")
	default:
	}

	rel1()
	<-acquired
	rel2()
}

func TestFIFOSemaphoreReleasesInEnqueueOrder(t *testing.T) {
	sem := newFIFOSemaphore(1)
	release, err := sem.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			rel, err := sem.Acquire(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			rel()
		}(i)
		time.Sleep(5 * time.Millisecond) // establish enqueue order
	}

	release()
	wg.Wait()

	for i := 1; i < len(order); i++ {
		if order[i] < order[i-1] {
			t.Fatalf("waiters released out of enqueue order: %v", order)
		}
	}
}

func TestFIFOSemaphoreAcquireRespectsContextCancellation(t *testing.T) {
	sem := newFIFOSemaphore(1)
	_, err := sem.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = sem.Acquire(ctx)
	if err == nil {
		t.Fatal("expected context deadline error while no slot is available")
	}
	if sem.WaiterCount() != 0 {
		t.Fatalf("expected cancelled waiter to be removed from queue, got %d waiters", sem.WaiterCount())
	}
}
