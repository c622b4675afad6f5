package store

import (
	"path/filepath"
	"testing"

	"telegram-sync/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "data.db"), filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMessageUpsertIdempotent(t *testing.T) {
	s := newTestStore(t)
	m := domain.Message{ChatID: "-100", MessageID: 1, Text: "hello", Date: 1000, FetchedAt: 1000}

	if err := s.Messages.Upsert(m); err != nil {
		t.Fatal(err)
	}
	m.Text = "hello again"
	m.FetchedAt = 2000
	if err := s.Messages.Upsert(m); err != nil {
		t.Fatal(err)
	}

	got, err := s.Messages.GetByID("-100", 1)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.FetchedAt != 2000 {
		t.Fatalf("expected latest fetched_at to win, got %+v", got)
	}
}

func TestDeletionNeverUnsends(t *testing.T) {
	s := newTestStore(t)
	m := domain.Message{ChatID: "-100", MessageID: 1, Text: "hello", Date: 1000, FetchedAt: 1000}
	if err := s.Messages.Upsert(m); err != nil {
		t.Fatal(err)
	}
	if err := s.Messages.MarkDeleted("-100", []int64{1}); err != nil {
		t.Fatal(err)
	}

	// A later backfill upsert of the same message must not resurrect it.
	m.FetchedAt = 5000
	m.IsDeleted = false
	if err := s.Messages.Upsert(m); err != nil {
		t.Fatal(err)
	}

	got, err := s.Messages.GetByID("-100", 1)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsDeleted {
		t.Fatal("expected is_deleted to remain true after re-upsert")
	}
}

func TestFTSReflectsWrites(t *testing.T) {
	s := newTestStore(t)
	m := domain.Message{ChatID: "-100", MessageID: 1, Text: "unique_search_token", Date: 1000, FetchedAt: 1000}
	if err := s.Messages.Upsert(m); err != nil {
		t.Fatal(err)
	}

	results, err := s.Messages.Search(SearchOptions{Query: "unique_search_token"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	if err := s.Messages.MarkDeleted("-100", []int64{1}); err != nil {
		t.Fatal(err)
	}
	results, err = s.Messages.Search(SearchOptions{Query: "unique_search_token"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatalf("expected 0 results after delete, got %d", len(results))
	}

	results, err = s.Messages.Search(SearchOptions{Query: "unique_search_token", IncludeDeleted: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result with includeDeleted, got %d", len(results))
	}
}

func TestUserGetByUsernameCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	if err := s.Users.Upsert(domain.User{UserID: "444", Username: "alice", FetchedAt: 1}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Users.GetByUsername("@ALICE")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.UserID != "444" {
		t.Fatalf("expected to find user 444, got %+v", got)
	}
}

func TestUserGetByPhoneNormalizes(t *testing.T) {
	s := newTestStore(t)
	if err := s.Users.Upsert(domain.User{UserID: "444", Phone: "5559876543", FetchedAt: 1}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Users.GetByPhone("+5 55 9876543")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.UserID != "444" {
		t.Fatalf("expected to find user 444 by normalized phone, got %+v", got)
	}
}

func TestJobPriorityOrdering(t *testing.T) {
	s := newTestStore(t)
	jobs := []domain.SyncJob{
		{ID: "a", ChatID: "-1", JobType: domain.JobForwardCatchup, Priority: 2, Status: domain.JobPending, CreatedAt: 100},
		{ID: "b", ChatID: "-2", JobType: domain.JobForwardCatchup, Priority: 0, Status: domain.JobPending, CreatedAt: 200},
		{ID: "c", ChatID: "-3", JobType: domain.JobForwardCatchup, Priority: 0, Status: domain.JobPending, CreatedAt: 50},
	}
	for _, j := range jobs {
		if err := s.Jobs.Insert(j); err != nil {
			t.Fatal(err)
		}
	}
	next, err := s.Jobs.NextPending()
	if err != nil {
		t.Fatal(err)
	}
	if next.ID != "c" {
		t.Fatalf("expected job c (priority 0, earliest), got %s", next.ID)
	}
}

func TestAccountMergePrefersRealPhone(t *testing.T) {
	s := newTestStore(t)
	placeholder := domain.Account{ID: "acc1", Phone: "user:123", UserID: "123"}
	if _, err := s.Accounts.MergeDuplicates(placeholder); err != nil {
		t.Fatal(err)
	}

	// acc2 is already its own row, as it would be after a startup
	// Accounts.List() load, but without a user_id yet (the unique index on
	// user_id keeps two rows from sharing one); its connect then learns
	// user_id 123 and calls MergeDuplicates.
	real := domain.Account{ID: "acc2", Phone: "+15551234567", UserID: "123"}
	stored := real
	stored.UserID = ""
	if err := s.Accounts.Upsert(stored); err != nil {
		t.Fatal(err)
	}

	merged, err := s.Accounts.MergeDuplicates(real)
	if err != nil {
		t.Fatal(err)
	}
	if merged.Phone != "+15551234567" {
		t.Fatalf("expected merge to prefer real phone, got %+v", merged)
	}

	all, err := s.Accounts.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one account row after merge, got %d", len(all))
	}

	if acc2, err := s.Accounts.GetByID("acc2"); err != nil {
		t.Fatal(err)
	} else if acc2 != nil {
		t.Fatalf("expected acc2's superseded row to be deleted, got %+v", acc2)
	}
}

func TestAccountMergeKeepsExistingRealPhoneAndDeletesIncoming(t *testing.T) {
	s := newTestStore(t)
	existing := domain.Account{ID: "acc1", Phone: "+15551234567", UserID: "123"}
	if _, err := s.Accounts.MergeDuplicates(existing); err != nil {
		t.Fatal(err)
	}

	// acc2's own row has no user_id yet: the unique index on user_id keeps
	// two rows from sharing one until MergeDuplicates resolves them.
	incoming := domain.Account{ID: "acc2", Phone: "user:123", UserID: "123"}
	storedIncoming := incoming
	storedIncoming.UserID = ""
	if err := s.Accounts.Upsert(storedIncoming); err != nil {
		t.Fatal(err)
	}

	merged, err := s.Accounts.MergeDuplicates(incoming)
	if err != nil {
		t.Fatal(err)
	}
	if merged.ID != "acc1" || merged.Phone != "+15551234567" {
		t.Fatalf("expected merge to keep the existing real-phone row, got %+v", merged)
	}

	all, err := s.Accounts.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one account row after merge, got %d", len(all))
	}

	if acc2, err := s.Accounts.GetByID("acc2"); err != nil {
		t.Fatal(err)
	} else if acc2 != nil {
		t.Fatalf("expected acc2's superseded row to be deleted, got %+v", acc2)
	}
}
