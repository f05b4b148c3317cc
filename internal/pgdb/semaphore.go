package pgdb

import (
	"context"
	"sync"
)

// fifoSemaphore is a counting semaphore whose blocked acquirers are
// released in strict enqueue order. A plain buffered-channel semaphore
// does not guarantee this (goroutine wake order is unspecified), and the
// specification's concurrency gate requires FIFO waiters.
type fifoSemaphore struct {
	max int

	mu      sync.Mutex
	cur     int
	waiters []chan struct{}
}

func newFIFOSemaphore(max int) *fifoSemaphore {
	return &fifoSemaphore{max: max}
}

// Acquire blocks until a slot is available or ctx is done. The returned
// release function must be called exactly once.
func (s *fifoSemaphore) Acquire(ctx context.Context) (func(), error) {
	s.mu.Lock()
	if s.cur < s.max {
		s.cur++
		s.mu.Unlock()
		return s.release, nil
	}
	ticket := make(chan struct{})
	s.waiters = append(s.waiters, ticket)
	s.mu.Unlock()

	select {
	case <-ticket:
		return s.release, nil
	case <-ctx.Done():
		s.mu.Lock()
		for i, w := range s.waiters {
			if w == ticket {
				s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (s *fifoSemaphore) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.waiters) > 0 {
		next := s.waiters[0]
		s.waiters = s.waiters[1:]
		close(next) // slot hands off directly to the next waiter
		return
	}
	s.cur--
}

func (s *fifoSemaphore) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

func (s *fifoSemaphore) WaiterCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiters)
}
