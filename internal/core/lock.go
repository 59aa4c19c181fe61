package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DatasetLock is the advisory lock that keeps two pipelines from mutating a
// dataset at once.
//
// Lock is a single compare-and-set in the store, so two concurrent callers
// can never both succeed. The persisted locked_at is read back afterwards
// and compared with the timestamp this call wrote.
type DatasetLock struct {
	store DatasetStore
	slug  string
	now   func() time.Time
}

// NewDatasetLock returns the lock for the dataset with the given slug.
func NewDatasetLock(store DatasetStore, slug string) *DatasetLock {
	return &DatasetLock{store: store, slug: slug, now: time.Now}
}

// Lock takes the lock or returns ErrDatasetLocked. Once TryLock has
// succeeded this call owns the lock, so a failed read-back releases it
// before returning.
func (l *DatasetLock) Lock(ctx context.Context) (time.Time, error) {
	at := l.now().UTC().Truncate(time.Microsecond)

	ok, err := l.store.TryLock(ctx, l.slug, at)
	if err != nil {
		return time.Time{}, fmt.Errorf("lock dataset %s: %w", l.slug, err)
	}
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrDatasetLocked, l.slug)
	}

	ds, err := l.store.GetDataset(ctx, l.slug)
	if err != nil {
		l.release(ctx)
		return time.Time{}, fmt.Errorf("verify lock on %s: %w", l.slug, err)
	}
	if !ds.Locked || ds.LockedAt == nil || !ds.LockedAt.Equal(at) {
		l.release(ctx)
		return time.Time{}, fmt.Errorf("%w: %s", ErrDatasetLocked, l.slug)
	}
	return at, nil
}

func (l *DatasetLock) release(ctx context.Context) {
	if err := l.store.Unlock(context.WithoutCancel(ctx), l.slug); err != nil {
		slog.Error("release unverified dataset lock", "dataset", l.slug, "error", err)
	}
}

// Unlock releases the lock unconditionally.
func (l *DatasetLock) Unlock(ctx context.Context) error {
	if err := l.store.Unlock(ctx, l.slug); err != nil {
		return fmt.Errorf("unlock dataset %s: %w", l.slug, err)
	}
	return nil
}
