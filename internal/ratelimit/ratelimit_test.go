package ratelimit

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"telegram-sync/internal/domain"
	"telegram-sync/internal/infra/clock"
	"telegram-sync/internal/store"
)

func newTestLimiter(t *testing.T) (*Limiter, *store.Store, *clock.Fake) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.New(filepath.Join(dir, "data.db"), filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	fake := clock.NewFake(time.Unix(1_700_000_000, 0))
	return New(s.RateWindows, s.Activity, fake), s, fake
}

func TestFloodWaitRespected(t *testing.T) {
	l, _, fake := newTestLimiter(t)

	if err := l.SetFloodWait("messages.getHistory", 30); err != nil {
		t.Fatal(err)
	}
	blocked, err := l.IsBlocked("messages.getHistory")
	if err != nil {
		t.Fatal(err)
	}
	if !blocked {
		t.Fatal("expected method to be blocked")
	}

	err = l.WrapCall("messages.getHistory", func() error { return nil })
	var rle *domain.RateLimitedError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}

	fake.Advance(31 * time.Second)
	blocked, err = l.IsBlocked("messages.getHistory")
	if err != nil {
		t.Fatal(err)
	}
	if blocked {
		t.Fatal("expected method to be unblocked after wait elapses")
	}
}

func TestWindowAggregation(t *testing.T) {
	l, _, _ := newTestLimiter(t)
	for i := 0; i < 5; i++ {
		if err := l.RecordCall("users.getUsers"); err != nil {
			t.Fatal(err)
		}
	}
	count, err := l.GetCallCount("users.getUsers", 1)
	if err != nil {
		t.Fatal(err)
	}
	if count != 5 {
		t.Fatalf("expected 5 calls, got %d", count)
	}
}

func TestExtractFloodWaitFromMessage(t *testing.T) {
	err := errors.New("rpc error: FLOOD_WAIT_42")
	seconds, ok := ExtractFloodWait(err)
	if !ok || seconds != 42 {
		t.Fatalf("expected 42s flood wait, got %d,%v", seconds, ok)
	}
}

func countActivityRows(t *testing.T, s *store.Store) int {
	t.Helper()
	var n int
	if err := s.DB.Cache.QueryRow(`SELECT COUNT(*) FROM api_activity`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestWrapCallRecordsActivity(t *testing.T) {
	l, s, _ := newTestLimiter(t)

	if err := l.WrapCall("users.getMe", func() error { return nil }); err != nil {
		t.Fatal(err)
	}
	if err := l.WrapCall("users.getMe", func() error { return errors.New("boom") }); err == nil {
		t.Fatal("expected error to propagate")
	}

	if got := countActivityRows(t, s); got != 2 {
		t.Fatalf("expected 2 activity rows, got %d", got)
	}
}

func TestPruneOldActivity(t *testing.T) {
	l, s, fake := newTestLimiter(t)

	if err := l.WrapCall("users.getMe", func() error { return nil }); err != nil {
		t.Fatal(err)
	}
	fake.Advance(8 * 24 * time.Hour)
	if err := l.WrapCall("users.getMe", func() error { return nil }); err != nil {
		t.Fatal(err)
	}

	removed, err := l.PruneOldActivity(7 * 24 * time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 stale row removed, got %d", removed)
	}
	if got := countActivityRows(t, s); got != 1 {
		t.Fatalf("expected 1 activity row left, got %d", got)
	}
}

func TestWrapCallClassifiesFloodWait(t *testing.T) {
	l, _, _ := newTestLimiter(t)
	err := l.WrapCall("messages.getHistory", func() error {
		return errors.New("FLOOD_WAIT_10")
	})
	var rle *domain.RateLimitedError
	if !errors.As(err, &rle) || rle.WaitSeconds != 10 {
		t.Fatalf("expected RateLimitedError with 10s wait, got %v", err)
	}

	blocked, err := l.IsBlocked("messages.getHistory")
	if err != nil {
		t.Fatal(err)
	}
	if !blocked {
		t.Fatal("expected method blocked after WrapCall classified flood wait")
	}
}
