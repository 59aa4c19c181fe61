package core

import (
	"context"
	"io"
	"time"
)

// DatasetStore persists dataset metadata.
//
// UpdateDataset writes every field except Locked and LockedAt; the lock is
// only ever changed through TryLock and Unlock.
type DatasetStore interface {
	CreateDataset(ctx context.Context, ds *Dataset) error
	GetDataset(ctx context.Context, slug string) (*Dataset, error)
	ListDatasets(ctx context.Context) ([]Dataset, error)
	UpdateDataset(ctx context.Context, ds *Dataset) error
	DeleteDataset(ctx context.Context, slug string) error

	// TryLock sets locked=true and locked_at=at only if the dataset is not
	// already locked. It reports whether this call took the lock.
	TryLock(ctx context.Context, slug string, at time.Time) (bool, error)
	Unlock(ctx context.Context, slug string) error
}

// UploadStore persists upload records.
type UploadStore interface {
	CreateUpload(ctx context.Context, up *Upload) error
	GetUpload(ctx context.Context, id string) (*Upload, error)
	ListUploads(ctx context.Context) ([]Upload, error)
	MarkUploadImported(ctx context.Context, id string) error
}

// TaskStore persists task status records.
//
// SaveTask writes every field except AbortRequested, which only
// RequestAbort sets, so a pipeline saving progress never clears a
// concurrent abort request.
type TaskStore interface {
	CreateTask(ctx context.Context, task *TaskStatus) error
	GetTask(ctx context.Context, id string) (*TaskStatus, error)
	ListTasks(ctx context.Context, limit int) ([]TaskStatus, error)
	SaveTask(ctx context.Context, task *TaskStatus) error
	RequestAbort(ctx context.Context, id string) error
}

// QueryOptions control paging and ordering of an index query.
// A zero Limit returns only the match count.
type QueryOptions struct {
	Offset int
	Limit  int
	Sort   string
}

// QueryResult is one page of matching documents.
type QueryResult struct {
	NumFound int64
	Docs     []map[string]any
}

// Index is the searchable row store, organized into named cores.
//
// Queries use a conjunction of field:value clauses joined by AND; a bare
// value matches the full_text field and *:* matches everything.
type Index interface {
	Add(ctx context.Context, core string, docs []map[string]any, commit bool) error
	Delete(ctx context.Context, core, query string, commit bool) error
	Commit(ctx context.Context, core string) error
	Query(ctx context.Context, core, query string, opts QueryOptions) (*QueryResult, error)
}

// BlobStore holds uploaded and exported files.
type BlobStore interface {
	// Save stores r under a name derived from name, adding a numeric
	// suffix when that name is taken. It returns the stored name and size.
	Save(ctx context.Context, name string, r io.Reader) (string, int64, error)
	Create(name string) (io.WriteCloser, error)
	Open(name string) (io.ReadCloser, error)
	Remove(name string) error
	Path(name string) string
}
