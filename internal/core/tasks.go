package core

import (
	"context"
	"fmt"
	"log/slog"
)

// GetTask returns the task with the given id.
func (s *Service) GetTask(ctx context.Context, id string) (*TaskStatus, error) {
	return s.tasks.GetTask(ctx, id)
}

// ListTasks returns up to limit tasks, newest first.
func (s *Service) ListTasks(ctx context.Context, limit int) ([]TaskStatus, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.tasks.ListTasks(ctx, limit)
}

// AbortTask asks a running or pending task to stop. It returns
// ErrInvalidTaskTransition when the task has already finished.
func (s *Service) AbortTask(ctx context.Context, id string) (*TaskStatus, error) {
	tracker, err := LoadTracker(ctx, s.tasks, id)
	if err != nil {
		return nil, err
	}
	if err := tracker.RequestAbort(ctx); err != nil {
		return nil, err
	}
	task := tracker.Task()
	return &task, nil
}

// interruptedMessage is recorded on tasks failed by RecoverInterrupted.
const interruptedMessage = "Interrupted by a server restart. Start it again"

// RecoverInterrupted finalizes work orphaned by a previous process. Every
// PENDING or STARTED task is marked FAILURE and every locked dataset is
// unlocked. It must run before this process schedules anything, and only
// when no other process runs pipelines against the same stores.
func (s *Service) RecoverInterrupted(ctx context.Context) (tasks, locks int, err error) {
	all, err := s.tasks.ListTasks(ctx, 0)
	if err != nil {
		return 0, 0, fmt.Errorf("list tasks: %w", err)
	}
	for i := range all {
		task := all[i]
		if task.Status.Terminal() {
			continue
		}
		if err := NewTracker(s.tasks, &task).Fail(ctx, interruptedMessage, ""); err != nil {
			return tasks, locks, fmt.Errorf("fail task %s: %w", task.ID, err)
		}
		slog.Warn("failed interrupted task", "task_id", task.ID, "task", task.TaskName, "dataset", task.DatasetSlug)
		tasks++
	}

	datasets, err := s.datasets.ListDatasets(ctx)
	if err != nil {
		return tasks, 0, fmt.Errorf("list datasets: %w", err)
	}
	for _, ds := range datasets {
		if !ds.Locked {
			continue
		}
		if err := NewDatasetLock(s.datasets, ds.Slug).Unlock(ctx); err != nil {
			return tasks, locks, err
		}
		slog.Warn("released stale dataset lock", "dataset", ds.Slug)
		locks++
	}
	return tasks, locks, nil
}
