package core

// scheduler.go runs pipelines in the background.
//
// ScheduleAsync never runs a task in the caller's goroutine. Each run waits
// for a WorkerLimiter slot, recovers panics into a PanicError, and reports
// its outcome to the completion hook, which the Service uses to finalize the
// task record and release the dataset lock.

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// TaskArgs are the arguments handed to a scheduled pipeline.
type TaskArgs struct {
	DatasetSlug     string `json:"dataset_slug"`
	UploadID        string `json:"upload_id,omitempty"`
	ExternalIDIndex *int   `json:"external_id_field_index,omitempty"`
	Filename        string `json:"filename,omitempty"`

	// AwaitTaskID delays the run until that task has finished.
	AwaitTaskID string `json:"await_task_id,omitempty"`

	// Unlock releases the dataset lock when the run ends.
	Unlock bool `json:"unlock"`
}

// TaskHandler executes one task type.
type TaskHandler func(ctx context.Context, taskID string, args TaskArgs) error

// TaskCompletion is called after every run with the handler's error.
type TaskCompletion func(ctx context.Context, taskType string, args TaskArgs, taskID string, err error)

// PanicError is returned for a handler that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Scheduler dispatches tasks to registered handlers.
type Scheduler struct {
	limiter *WorkerLimiter
	onDone  TaskCompletion

	mu       sync.RWMutex
	handlers map[string]TaskHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler bounded by limiter.
func NewScheduler(limiter *WorkerLimiter, onDone TaskCompletion) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		limiter:  limiter,
		onDone:   onDone,
		handlers: make(map[string]TaskHandler),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Handle registers the handler for taskType, replacing any previous one.
func (s *Scheduler) Handle(taskType string, h TaskHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[taskType] = h
}

// ScheduleAsync starts taskType in the background and returns immediately.
func (s *Scheduler) ScheduleAsync(taskType string, args TaskArgs, taskID string) error {
	s.mu.RLock()
	h, ok := s.handlers[taskType]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no handler for task type %q", taskType)
	}
	if s.ctx.Err() != nil {
		return fmt.Errorf("scheduler is shut down")
	}

	s.wg.Add(1)
	go s.run(taskType, h, args, taskID)
	return nil
}

func (s *Scheduler) run(taskType string, h TaskHandler, args TaskArgs, taskID string) {
	defer s.wg.Done()

	log := slog.With("task", taskType, "task_id", taskID, "dataset", args.DatasetSlug)
	start := time.Now()

	err := s.execute(h, args, taskID)
	if err != nil {
		log.Error("task failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
	} else {
		log.Info("task finished", "duration_ms", time.Since(start).Milliseconds())
	}

	if s.onDone != nil {
		s.onDone(context.WithoutCancel(s.ctx), taskType, args, taskID, err)
	}
}

func (s *Scheduler) execute(h TaskHandler, args TaskArgs, taskID string) (err error) {
	if err := s.limiter.Acquire(s.ctx); err != nil {
		return fmt.Errorf("wait for worker: %w", err)
	}
	defer s.limiter.Release()

	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	return h(s.ctx, taskID, args)
}

// Wait blocks until every scheduled run has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Shutdown stops accepting tasks and waits for running ones. If ctx ends
// first, running pipelines are cancelled and given a short grace period to
// record their failure.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
	}

	s.cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		slog.Warn("pipelines still running after cancellation", "active", s.limiter.ActiveCount())
	}
	return ctx.Err()
}
