package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Options tune the Service. Zero values select the defaults.
type Options struct {
	DataCore          string
	DatasetsCore      string
	BatchSize         int
	PageSize          int
	SnifferSampleSize int
	TypeInferenceRows int
	SampleRows        int
	MaxFileSize       int64
	DefaultEncoding   string
	Throttle          time.Duration
	MaxConcurrent     int
	MaxWaitTime       time.Duration
}

func (o *Options) applyDefaults() {
	if o.DataCore == "" {
		o.DataCore = "data"
	}
	if o.DatasetsCore == "" {
		o.DatasetsCore = "datasets"
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 500
	}
	if o.PageSize <= 0 {
		o.PageSize = 500
	}
	if o.SnifferSampleSize <= 0 {
		o.SnifferSampleSize = 64 * 1024
	}
	if o.TypeInferenceRows <= 0 {
		o.TypeInferenceRows = 100
	}
	if o.SampleRows <= 0 {
		o.SampleRows = 5
	}
	if o.DefaultEncoding == "" {
		o.DefaultEncoding = "utf-8"
	}
}

// Deps are the backends the Service is built on.
type Deps struct {
	Datasets DatasetStore
	Uploads  UploadStore
	Tasks    TaskStore
	Index    Index
	Files    BlobStore
	Exports  BlobStore
}

func (d Deps) validate() error {
	switch {
	case d.Datasets == nil:
		return errors.New("dataset store is required")
	case d.Uploads == nil:
		return errors.New("upload store is required")
	case d.Tasks == nil:
		return errors.New("task store is required")
	case d.Index == nil:
		return errors.New("index is required")
	case d.Files == nil:
		return errors.New("upload blob store is required")
	case d.Exports == nil:
		return errors.New("export blob store is required")
	}
	return nil
}

// Service provides the dataset operations.
type Service struct {
	datasets DatasetStore
	uploads  UploadStore
	tasks    TaskStore
	index    Index
	files    BlobStore
	exports  BlobStore

	opts      Options
	limiter   *WorkerLimiter
	scheduler *Scheduler
	now       func() time.Time
}

// NewService creates a Service and registers its pipelines with a scheduler.
// Import handlers are registered for every file format known at this point.
func NewService(deps Deps, opts Options) (*Service, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	opts.applyDefaults()

	s := &Service{
		datasets: deps.Datasets,
		uploads:  deps.Uploads,
		tasks:    deps.Tasks,
		index:    deps.Index,
		files:    deps.Files,
		exports:  deps.Exports,
		opts:     opts,
		limiter:  NewWorkerLimiter(opts.MaxConcurrent, opts.MaxWaitTime),
		now:      time.Now,
	}
	s.scheduler = NewScheduler(s.limiter, s.onTaskDone)

	for _, f := range Formats() {
		s.scheduler.Handle(f.TaskName, s.runImport)
	}
	s.scheduler.Handle(TaskExportCSV, s.runExport)
	s.scheduler.Handle(TaskReindex, s.runReindex)
	s.scheduler.Handle(TaskPurge, s.runPurge)

	return s, nil
}

// Wait blocks until every scheduled pipeline has finished.
func (s *Service) Wait() {
	s.scheduler.Wait()
}

// Shutdown waits for running pipelines, cancelling them if ctx ends first.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.scheduler.Shutdown(ctx)
}

// ActiveTasks returns the number of pipelines holding a worker slot.
func (s *Service) ActiveTasks() int {
	return s.limiter.ActiveCount()
}

// onTaskDone finalizes a run: a task left non-terminal by an error is
// marked FAILURE, and the dataset lock is released when the run owned it.
func (s *Service) onTaskDone(ctx context.Context, taskType string, args TaskArgs, taskID string, runErr error) {
	log := slog.With("task", taskType, "task_id", taskID, "dataset", args.DatasetSlug)

	if runErr != nil && taskID != "" {
		s.failTask(ctx, taskID, runErr)
	}

	if args.Unlock {
		if err := NewDatasetLock(s.datasets, args.DatasetSlug).Unlock(ctx); err != nil && !errors.Is(err, ErrNotFound) {
			log.Error("release dataset lock", "error", err)
		}
	}
}

func (s *Service) failTask(ctx context.Context, taskID string, runErr error) {
	tracker, err := LoadTracker(ctx, s.tasks, taskID)
	if err != nil {
		slog.Error("load task to record failure", "task_id", taskID, "error", err)
		return
	}
	if tracker.Task().Status.Terminal() {
		return
	}

	traceback := runErr.Error()
	var pe *PanicError
	if errors.As(runErr, &pe) {
		traceback += "\n\n" + string(pe.Stack)
	}

	if err := tracker.Fail(ctx, FormatUserError(runErr), traceback); err != nil {
		slog.Error("record task failure", "task_id", taskID, "error", err)
	}
}

// newTask creates and persists a PENDING task.
func (s *Service) newTask(ctx context.Context, name, slug string) (*TaskStatus, error) {
	task := &TaskStatus{
		ID:          uuid.NewString(),
		TaskName:    name,
		DatasetSlug: slug,
		Status:      TaskPending,
		Creator:     UserFromContext(ctx),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.tasks.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

// startLockedTask takes the dataset lock, re-reads the dataset and lets
// prepare validate and adjust it, then creates a PENDING task, records it as
// the dataset's current task and schedules it. The lock is released if
// anything before the hand-off fails.
func (s *Service) startLockedTask(ctx context.Context, slug, taskName, modification string, args TaskArgs, prepare func(ds *Dataset) error) (_ *TaskStatus, err error) {
	lock := NewDatasetLock(s.datasets, slug)
	if _, err := lock.Lock(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if uerr := lock.Unlock(context.WithoutCancel(ctx)); uerr != nil {
				slog.Error("release dataset lock", "dataset", slug, "error", uerr)
			}
		}
	}()

	ds, err := s.datasets.GetDataset(ctx, slug)
	if err != nil {
		return nil, err
	}
	if prepare != nil {
		if err := prepare(ds); err != nil {
			return nil, err
		}
	}

	task, err := s.newTask(ctx, taskName, ds.Slug)
	if err != nil {
		return nil, err
	}

	ds.CurrentTaskID = task.ID
	if modification != "" {
		now := s.now().UTC()
		ds.LastModified = &now
		ds.LastModification = modification
		ds.LastModifiedBy = UserFromContext(ctx)
	}
	if err := s.datasets.UpdateDataset(ctx, ds); err != nil {
		return nil, fmt.Errorf("update dataset: %w", err)
	}

	args.DatasetSlug = ds.Slug
	args.Unlock = true
	if err := s.scheduler.ScheduleAsync(taskName, args, task.ID); err != nil {
		s.failTask(context.WithoutCancel(ctx), task.ID, err)
		return nil, err
	}
	return task, nil
}

const awaitPollInterval = 100 * time.Millisecond

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// throttle pauses between batches when configured to.
func (s *Service) throttle(ctx context.Context) error {
	if s.opts.Throttle <= 0 {
		return nil
	}
	return sleepCtx(ctx, s.opts.Throttle)
}

// percent returns floor(done/total*100), capped at 100. An unknown total
// reports 0.
func percent(done, total int64) int {
	if total <= 0 {
		return 0
	}
	p := done * 100 / total
	if p > 100 {
		p = 100
	}
	return int(p)
}
