// Package memstore keeps dataset, upload and task records in process memory.
//
// It backs the "memory" deployment mode and the service tests. Every value
// crossing the API is copied so callers never share slices with the store.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/tabledock/internal/core"
)

// Store implements core.DatasetStore, core.UploadStore and core.TaskStore.
type Store struct {
	mu       sync.RWMutex
	datasets map[string]*core.Dataset
	uploads  map[string]*core.Upload
	tasks    map[string]*core.TaskStatus
}

var (
	_ core.DatasetStore = (*Store)(nil)
	_ core.UploadStore  = (*Store)(nil)
	_ core.TaskStore    = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		datasets: make(map[string]*core.Dataset),
		uploads:  make(map[string]*core.Upload),
		tasks:    make(map[string]*core.TaskStatus),
	}
}

// Datasets

func (s *Store) CreateDataset(_ context.Context, ds *core.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.datasets[ds.Slug]; ok {
		return fmt.Errorf("dataset %s already exists", ds.Slug)
	}
	s.datasets[ds.Slug] = cloneDataset(ds)
	return nil
}

func (s *Store) GetDataset(_ context.Context, slug string) (*core.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ds, ok := s.datasets[slug]
	if !ok {
		return nil, fmt.Errorf("dataset %s: %w", slug, core.ErrNotFound)
	}
	return cloneDataset(ds), nil
}

// ListDatasets returns all datasets ordered by slug.
func (s *Store) ListDatasets(_ context.Context) ([]core.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Dataset, 0, len(s.datasets))
	for _, ds := range s.datasets {
		out = append(out, *cloneDataset(ds))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

// UpdateDataset replaces the stored dataset, keeping its lock fields.
func (s *Store) UpdateDataset(_ context.Context, ds *core.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.datasets[ds.Slug]
	if !ok {
		return fmt.Errorf("dataset %s: %w", ds.Slug, core.ErrNotFound)
	}
	next := cloneDataset(ds)
	next.Locked = cur.Locked
	next.LockedAt = cur.LockedAt
	s.datasets[ds.Slug] = next
	return nil
}

func (s *Store) DeleteDataset(_ context.Context, slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.datasets[slug]; !ok {
		return fmt.Errorf("dataset %s: %w", slug, core.ErrNotFound)
	}
	delete(s.datasets, slug)
	return nil
}

func (s *Store) TryLock(_ context.Context, slug string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, ok := s.datasets[slug]
	if !ok {
		return false, fmt.Errorf("dataset %s: %w", slug, core.ErrNotFound)
	}
	if ds.Locked {
		return false, nil
	}
	ds.Locked = true
	ds.LockedAt = &at
	return true, nil
}

func (s *Store) Unlock(_ context.Context, slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, ok := s.datasets[slug]
	if !ok {
		// The dataset may have been deleted while a task held its lock.
		return nil
	}
	ds.Locked = false
	ds.LockedAt = nil
	return nil
}

// Uploads

func (s *Store) CreateUpload(_ context.Context, up *core.Upload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.uploads[up.ID]; ok {
		return fmt.Errorf("upload %s already exists", up.ID)
	}
	s.uploads[up.ID] = cloneUpload(up)
	return nil
}

func (s *Store) GetUpload(_ context.Context, id string) (*core.Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	up, ok := s.uploads[id]
	if !ok {
		return nil, fmt.Errorf("upload %s: %w", id, core.ErrNotFound)
	}
	return cloneUpload(up), nil
}

// ListUploads returns all uploads, newest first.
func (s *Store) ListUploads(_ context.Context) ([]core.Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Upload, 0, len(s.uploads))
	for _, up := range s.uploads {
		out = append(out, *cloneUpload(up))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) MarkUploadImported(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	up, ok := s.uploads[id]
	if !ok {
		return fmt.Errorf("upload %s: %w", id, core.ErrNotFound)
	}
	up.Imported = true
	return nil
}

// Tasks

func (s *Store) CreateTask(_ context.Context, task *core.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.ID]; ok {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

func (s *Store) GetTask(_ context.Context, id string) (*core.TaskStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, core.ErrNotFound)
	}
	return cloneTask(task), nil
}

// ListTasks returns up to limit tasks, newest first. A limit of zero or
// less returns every task.
func (s *Store) ListTasks(_ context.Context, limit int) ([]core.TaskStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.TaskStatus, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *cloneTask(t))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveTask replaces the stored task, keeping its abort flag.
func (s *Store) SaveTask(_ context.Context, task *core.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.tasks[task.ID]
	if !ok {
		return fmt.Errorf("task %s: %w", task.ID, core.ErrNotFound)
	}
	next := cloneTask(task)
	next.AbortRequested = cur.AbortRequested
	s.tasks[task.ID] = next
	return nil
}

func (s *Store) RequestAbort(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, core.ErrNotFound)
	}
	task.AbortRequested = true
	return nil
}

func cloneDataset(ds *core.Dataset) *core.Dataset {
	c := *ds
	c.Columns = slices.Clone(ds.Columns)
	c.ColumnTypes = slices.Clone(ds.ColumnTypes)
	c.TypedColumns = slices.Clone(ds.TypedColumns)
	c.TypedColumnNames = slices.Clone(ds.TypedColumnNames)
	c.SampleData = cloneRows(ds.SampleData)
	c.RowCount = clonePtr(ds.RowCount)
	c.LastModified = clonePtr(ds.LastModified)
	c.LockedAt = clonePtr(ds.LockedAt)
	return &c
}

func cloneUpload(up *core.Upload) *core.Upload {
	c := *up
	if up.Dialect != nil {
		d := *up.Dialect
		c.Dialect = &d
	}
	c.Columns = slices.Clone(up.Columns)
	c.SampleData = cloneRows(up.SampleData)
	c.GuessedTypes = slices.Clone(up.GuessedTypes)
	return &c
}

func cloneTask(t *core.TaskStatus) *core.TaskStatus {
	c := *t
	c.Start = clonePtr(t.Start)
	c.End = clonePtr(t.End)
	return &c
}

func cloneRows(rows [][]string) [][]string {
	if rows == nil {
		return nil
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = slices.Clone(r)
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
