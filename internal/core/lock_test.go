package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDatasetLock_LockUnlock(t *testing.T) {
	ctx := context.Background()
	store := newFakeDatasetStore("ds")
	lock := NewDatasetLock(store, "ds")

	at, err := lock.Lock(ctx)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	ds, _ := store.GetDataset(ctx, "ds")
	if !ds.Locked || ds.LockedAt == nil || !ds.LockedAt.Equal(at) {
		t.Errorf("dataset after lock = %+v", ds)
	}

	if _, err := lock.Lock(ctx); !errors.Is(err, ErrDatasetLocked) {
		t.Errorf("second Lock: expected ErrDatasetLocked, got %v", err)
	}

	if err := lock.Unlock(ctx); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := lock.Unlock(ctx); err != nil {
		t.Fatalf("Unlock of unlocked dataset: %v", err)
	}
	if _, err := lock.Lock(ctx); err != nil {
		t.Errorf("Lock after Unlock: %v", err)
	}
}

func TestDatasetLock_MissingDataset(t *testing.T) {
	_, err := NewDatasetLock(newFakeDatasetStore(), "nope").Lock(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDatasetLock_ConcurrentCallersExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	store := newFakeDatasetStore("ds")

	const callers = 16
	var wins, locked atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := NewDatasetLock(store, "ds").Lock(ctx)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrDatasetLocked):
				locked.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 || locked.Load() != callers-1 {
		t.Errorf("wins = %d, locked = %d", wins.Load(), locked.Load())
	}
}

// flakyReadStore fails the GetDataset that follows the first successful
// TryLock.
type flakyReadStore struct {
	*fakeDatasetStore
	armed    atomic.Bool
	failNext atomic.Bool
}

func (f *flakyReadStore) TryLock(ctx context.Context, slug string, at time.Time) (bool, error) {
	ok, err := f.fakeDatasetStore.TryLock(ctx, slug, at)
	if ok && !f.armed.Swap(true) {
		f.failNext.Store(true)
	}
	return ok, err
}

func (f *flakyReadStore) GetDataset(ctx context.Context, slug string) (*Dataset, error) {
	if f.failNext.CompareAndSwap(true, false) {
		return nil, errors.New("transient read failure")
	}
	return f.fakeDatasetStore.GetDataset(ctx, slug)
}

func TestDatasetLock_FailedVerificationReleases(t *testing.T) {
	ctx := context.Background()
	store := &flakyReadStore{fakeDatasetStore: newFakeDatasetStore("ds")}
	lock := NewDatasetLock(store, "ds")

	if _, err := lock.Lock(ctx); err == nil {
		t.Fatal("expected Lock to fail when the read-back fails")
	}
	ds, _ := store.GetDataset(ctx, "ds")
	if ds.Locked {
		t.Fatal("failed Lock left the dataset locked")
	}

	if _, err := lock.Lock(ctx); err != nil {
		t.Errorf("Lock after failed verification: %v", err)
	}
}

// driftingStore persists a locked_at other than the one requested.
type driftingStore struct {
	*fakeDatasetStore
}

func (d *driftingStore) TryLock(ctx context.Context, slug string, at time.Time) (bool, error) {
	return d.fakeDatasetStore.TryLock(ctx, slug, at.Add(time.Second))
}

func TestDatasetLock_TimestampMismatchReleases(t *testing.T) {
	ctx := context.Background()
	store := &driftingStore{fakeDatasetStore: newFakeDatasetStore("ds")}

	_, err := NewDatasetLock(store, "ds").Lock(ctx)
	if !errors.Is(err, ErrDatasetLocked) {
		t.Fatalf("expected ErrDatasetLocked, got %v", err)
	}
	ds, _ := store.GetDataset(ctx, "ds")
	if ds.Locked {
		t.Error("mismatched Lock left the dataset locked")
	}
}
