package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	"telegram-sync/internal/domain"
	"telegram-sync/internal/infra/clock"
	"telegram-sync/internal/store"
)

func newTestScheduler(t *testing.T) (*Scheduler, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.New(filepath.Join(dir, "data.db"), filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return New(s, clock.NewFake(time.Unix(1_700_000_000, 0))), s
}

func TestEnqueueRefusesDuplicatePending(t *testing.T) {
	sched, _ := newTestScheduler(t)

	first, err := sched.Enqueue("42", domain.JobForwardCatchup, 5, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := sched.Enqueue("42", domain.JobForwardCatchup, 5, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected duplicate enqueue to return the existing job, got %s vs %s", first.ID, second.ID)
	}
}

func TestGetNextJobOrdersByPriorityThenCreatedAt(t *testing.T) {
	sched, _ := newTestScheduler(t)

	if _, err := sched.Enqueue("1", domain.JobForwardCatchup, 9, nil, nil); err != nil {
		t.Fatal(err)
	}
	high, err := sched.Enqueue("2", domain.JobForwardCatchup, 1, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	next, err := sched.GetNextJob()
	if err != nil {
		t.Fatal(err)
	}
	if next == nil || next.ID != high.ID {
		t.Fatalf("expected highest-priority job first, got %+v", next)
	}
}

func TestEnqueueFullSyncCancelsPendingBackwardHistory(t *testing.T) {
	sched, s := newTestScheduler(t)

	if _, err := sched.Enqueue("42", domain.JobBackwardHistory, 5, nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := sched.Enqueue("42", domain.JobFullSync, 5, nil, nil); err != nil {
		t.Fatal(err)
	}

	pending, err := s.Jobs.FindPending("42", domain.JobBackwardHistory)
	if err != nil {
		t.Fatal(err)
	}
	if pending != nil {
		t.Fatalf("expected pending backward_history cancelled by full_sync enqueue, got %+v", pending)
	}
}

func TestInitializeForStartupQueuesInitialLoadAndBackwardHistory(t *testing.T) {
	sched, s := newTestScheduler(t)

	if _, err := s.SyncState.EnsureChat("1", domain.ChatPrivate, 5); err != nil {
		t.Fatal(err)
	}
	if err := s.SyncState.SetEnabled("1", true); err != nil {
		t.Fatal(err)
	}

	if err := sched.InitializeForStartup(); err != nil {
		t.Fatal(err)
	}

	initial, err := s.Jobs.FindPending("1", domain.JobInitialLoad)
	if err != nil {
		t.Fatal(err)
	}
	if initial == nil {
		t.Fatal("expected initial_load queued for a never-synced chat")
	}

	backward, err := s.Jobs.FindPending("1", domain.JobBackwardHistory)
	if err != nil {
		t.Fatal(err)
	}
	if backward == nil || backward.Priority != 6 {
		t.Fatalf("expected deprioritized backward_history queued, got %+v", backward)
	}
}

func TestCleanupRemovesOldCompletedJobs(t *testing.T) {
	sched, s := newTestScheduler(t)

	job, err := sched.Enqueue("1", domain.JobForwardCatchup, 5, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Jobs.TransitionToRunning(job.ID, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Jobs.Complete(job.ID, 3, 1); err != nil {
		t.Fatal(err)
	}

	removed, err := sched.Cleanup(1)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 job cleaned up, got %d", removed)
	}
}
