package core

import (
	"context"
	"errors"
	"testing"
)

func newTestTracker(t *testing.T, status TaskState) (*Tracker, *fakeTaskStore) {
	t.Helper()
	store := newFakeTaskStore()
	task := &TaskStatus{ID: "t1", TaskName: "import.csv", Status: status}
	if err := store.CreateTask(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	return NewTracker(store, task), store
}

func TestTracker_HappyPath(t *testing.T) {
	ctx := context.Background()
	tr, store := newTestTracker(t, TaskPending)

	if err := tr.Start(ctx, "Preparing to import"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := tr.Update(ctx, "50% complete (estimated)"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := tr.Succeed(ctx, "Import complete"); err != nil {
		t.Fatalf("Succeed: %v", err)
	}

	saved, _ := store.GetTask(ctx, "t1")
	if saved.Status != TaskSuccess || saved.Message != "Import complete" {
		t.Errorf("saved = %+v", saved)
	}
	if saved.Start == nil || saved.End == nil || saved.End.Before(*saved.Start) {
		t.Errorf("start/end not recorded: %v %v", saved.Start, saved.End)
	}
}

func TestTracker_InvalidTransitions(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		state TaskState
		op    func(*Tracker) error
	}{
		{"update while pending", TaskPending, func(tr *Tracker) error { return tr.Update(ctx, "x") }},
		{"succeed while pending", TaskPending, func(tr *Tracker) error { return tr.Succeed(ctx, "x") }},
		{"start twice", TaskStarted, func(tr *Tracker) error { return tr.Start(ctx, "x") }},
		{"update after success", TaskSuccess, func(tr *Tracker) error { return tr.Update(ctx, "x") }},
		{"fail after abort", TaskAborted, func(tr *Tracker) error { return tr.Fail(ctx, "x", "") }},
		{"abort after failure", TaskFailure, func(tr *Tracker) error { return tr.Abort(ctx, "x") }},
		{"request abort after success", TaskSuccess, func(tr *Tracker) error { return tr.RequestAbort(ctx) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, store := newTestTracker(t, tt.state)
			err := tt.op(tr)
			if !errors.Is(err, ErrInvalidTaskTransition) {
				t.Fatalf("expected ErrInvalidTaskTransition, got %v", err)
			}
			saved, _ := store.GetTask(ctx, "t1")
			if saved.Status != tt.state || saved.Message != "" {
				t.Errorf("task mutated: %+v", saved)
			}
		})
	}
}

func TestTracker_FailFromPending(t *testing.T) {
	ctx := context.Background()
	tr, store := newTestTracker(t, TaskPending)

	if err := tr.Fail(ctx, "worker unavailable", "trace"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	saved, _ := store.GetTask(ctx, "t1")
	if saved.Status != TaskFailure || saved.Traceback != "trace" {
		t.Errorf("saved = %+v", saved)
	}
}

func TestTracker_AbortFlagSeenAcrossTrackers(t *testing.T) {
	ctx := context.Background()
	pipeline, store := newTestTracker(t, TaskPending)
	if err := pipeline.Start(ctx, "started"); err != nil {
		t.Fatal(err)
	}

	if pipeline.IsAbortRequested(ctx) {
		t.Fatal("abort requested before any request")
	}

	requester, err := LoadTracker(ctx, store, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if err := requester.RequestAbort(ctx); err != nil {
		t.Fatalf("RequestAbort: %v", err)
	}

	// A progress save from the pipeline must not clear the flag.
	if err := pipeline.Update(ctx, "10% complete (estimated)"); err != nil {
		t.Fatal(err)
	}
	if !pipeline.IsAbortRequested(ctx) {
		t.Fatal("pipeline did not observe abort request")
	}
	if err := pipeline.Abort(ctx, "Aborted after importing 10% (estimated)"); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	saved, _ := store.GetTask(ctx, "t1")
	if saved.Status != TaskAborted {
		t.Errorf("status = %s, want ABORTED", saved.Status)
	}
}
