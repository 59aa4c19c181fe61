package core

// taskstatus.go implements the task lifecycle state machine.
//
//	PENDING -> STARTED -> SUCCESS
//	   |          |  \-> FAILURE
//	   |          \----> ABORTED
//	   \---------------> FAILURE | ABORTED
//
// Terminal states accept no further transitions. Progress messages may only
// be written while STARTED.

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Tracker drives a single TaskStatus through its lifecycle and persists
// every transition.
type Tracker struct {
	store TaskStore
	task  TaskStatus
	now   func() time.Time
}

// NewTracker wraps an existing task record.
func NewTracker(store TaskStore, task *TaskStatus) *Tracker {
	return &Tracker{store: store, task: *task, now: time.Now}
}

// LoadTracker reads the task with the given id from store.
func LoadTracker(ctx context.Context, store TaskStore, id string) (*Tracker, error) {
	task, err := store.GetTask(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", id, err)
	}
	return NewTracker(store, task), nil
}

// Task returns a copy of the current task record.
func (t *Tracker) Task() TaskStatus {
	return t.task
}

// ID returns the task id.
func (t *Tracker) ID() string {
	return t.task.ID
}

// Start moves a PENDING task to STARTED.
func (t *Tracker) Start(ctx context.Context, message string) error {
	if t.task.Status != TaskPending {
		return t.invalid(TaskStarted)
	}
	now := t.now()
	t.task.Status = TaskStarted
	t.task.Start = &now
	t.task.Message = message
	return t.save(ctx)
}

// Update records a progress message on a STARTED task.
func (t *Tracker) Update(ctx context.Context, message string) error {
	if t.task.Status != TaskStarted {
		return fmt.Errorf("%w: cannot update task %s in state %s", ErrInvalidTaskTransition, t.task.ID, t.task.Status)
	}
	t.task.Message = message
	return t.save(ctx)
}

// Succeed moves a STARTED task to SUCCESS.
func (t *Tracker) Succeed(ctx context.Context, message string) error {
	if t.task.Status != TaskStarted {
		return t.invalid(TaskSuccess)
	}
	return t.finish(ctx, TaskSuccess, message, "")
}

// Fail moves a PENDING or STARTED task to FAILURE, recording traceback.
func (t *Tracker) Fail(ctx context.Context, message, traceback string) error {
	if t.task.Status.Terminal() {
		return t.invalid(TaskFailure)
	}
	return t.finish(ctx, TaskFailure, message, traceback)
}

// Abort moves a PENDING or STARTED task to ABORTED.
func (t *Tracker) Abort(ctx context.Context, message string) error {
	if t.task.Status.Terminal() {
		return t.invalid(TaskAborted)
	}
	return t.finish(ctx, TaskAborted, message, "")
}

// RequestAbort sets the cooperative abort flag. The pipeline running the
// task observes it at its next checkpoint.
func (t *Tracker) RequestAbort(ctx context.Context) error {
	if t.task.Status.Terminal() {
		return fmt.Errorf("%w: task %s already finished with %s", ErrInvalidTaskTransition, t.task.ID, t.task.Status)
	}
	if err := t.store.RequestAbort(ctx, t.task.ID); err != nil {
		return fmt.Errorf("request abort: %w", err)
	}
	t.task.AbortRequested = true
	return nil
}

// IsAbortRequested reads the abort flag from the store, so requests made
// through another Tracker are seen. A failed read is logged and treated as
// no request.
func (t *Tracker) IsAbortRequested(ctx context.Context) bool {
	current, err := t.store.GetTask(ctx, t.task.ID)
	if err != nil {
		slog.Warn("abort check failed", "task_id", t.task.ID, "error", err)
		return t.task.AbortRequested
	}
	t.task.AbortRequested = current.AbortRequested
	return current.AbortRequested
}

func (t *Tracker) finish(ctx context.Context, state TaskState, message, traceback string) error {
	now := t.now()
	t.task.Status = state
	t.task.End = &now
	t.task.Message = message
	t.task.Traceback = traceback
	return t.save(ctx)
}

func (t *Tracker) save(ctx context.Context) error {
	if err := t.store.SaveTask(ctx, &t.task); err != nil {
		return fmt.Errorf("save task %s: %w", t.task.ID, err)
	}
	return nil
}

func (t *Tracker) invalid(to TaskState) error {
	return fmt.Errorf("%w: task %s %s -> %s", ErrInvalidTaskTransition, t.task.ID, t.task.Status, to)
}
