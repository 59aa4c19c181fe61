package core

import (
	"context"
	"sync"
	"time"
)

type fakeTaskStore struct {
	mu    sync.Mutex
	tasks map[string]TaskStatus
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: make(map[string]TaskStatus)}
}

func (f *fakeTaskStore) CreateTask(_ context.Context, task *TaskStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[task.ID] = *task
	return nil
}

func (f *fakeTaskStore) GetTask(_ context.Context, id string) (*TaskStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (f *fakeTaskStore) ListTasks(context.Context, int) ([]TaskStatus, error) {
	return nil, nil
}

func (f *fakeTaskStore) SaveTask(_ context.Context, task *TaskStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.tasks[task.ID]
	if !ok {
		return ErrNotFound
	}
	abort := cur.AbortRequested
	cur = *task
	cur.AbortRequested = abort
	f.tasks[task.ID] = cur
	return nil
}

func (f *fakeTaskStore) RequestAbort(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.tasks[id]
	if !ok {
		return ErrNotFound
	}
	cur.AbortRequested = true
	f.tasks[id] = cur
	return nil
}

// fakeDatasetStore only implements what the lock needs.
type fakeDatasetStore struct {
	DatasetStore

	mu       sync.Mutex
	datasets map[string]Dataset
}

func newFakeDatasetStore(slugs ...string) *fakeDatasetStore {
	f := &fakeDatasetStore{datasets: make(map[string]Dataset)}
	for _, s := range slugs {
		f.datasets[s] = Dataset{Slug: s}
	}
	return f
}

func (f *fakeDatasetStore) GetDataset(_ context.Context, slug string) (*Dataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ds, ok := f.datasets[slug]
	if !ok {
		return nil, ErrNotFound
	}
	return &ds, nil
}

func (f *fakeDatasetStore) TryLock(_ context.Context, slug string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ds, ok := f.datasets[slug]
	if !ok {
		return false, ErrNotFound
	}
	if ds.Locked {
		return false, nil
	}
	ds.Locked = true
	ds.LockedAt = &at
	f.datasets[slug] = ds
	return true, nil
}

func (f *fakeDatasetStore) Unlock(_ context.Context, slug string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ds, ok := f.datasets[slug]
	if !ok {
		return ErrNotFound
	}
	ds.Locked = false
	ds.LockedAt = nil
	f.datasets[slug] = ds
	return nil
}
