package core

// worker_limiter.go bounds how many pipelines run at once.
//
// The limiter uses a semaphore. A scheduled task that cannot get a slot
// within maxWait fails with ErrTooManyTasks instead of queueing forever.
// WaitForDrain blocks until every running pipeline has released its slot and
// is used during graceful shutdown.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyTasks is returned when all worker slots stay occupied for the
// whole wait timeout.
var ErrTooManyTasks = errors.New("too many concurrent tasks, please try again later")

// DefaultMaxConcurrentTasks is the default limit for parallel pipelines.
const DefaultMaxConcurrentTasks = 4

// DefaultMaxWaitTime is how long a task waits for a slot before failing.
const DefaultMaxWaitTime = 10 * time.Minute

// WorkerLimiter controls concurrent pipeline execution.
type WorkerLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewWorkerLimiter creates a limiter that allows at most maxConcurrent
// pipelines. Non-positive arguments select the defaults.
func NewWorkerLimiter(maxConcurrent int, maxWait time.Duration) *WorkerLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentTasks
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &WorkerLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire waits for a slot. The caller MUST call Release when done.
func (l *WorkerLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyTasks
	}
}

// Release returns a slot taken by Acquire.
func (l *WorkerLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of running pipelines.
func (l *WorkerLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// Available returns the number of free slots.
func (l *WorkerLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until no pipeline holds a slot or ctx is done.
func (l *WorkerLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
