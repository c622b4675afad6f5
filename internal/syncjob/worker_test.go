package syncjob

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"telegram-sync/internal/domain"
	"telegram-sync/internal/infra/clock"
	"telegram-sync/internal/mtproto"
	"telegram-sync/internal/store"

	"github.com/gotd/td/tg"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.New(filepath.Join(dir, "data.db"), filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insertJob(t *testing.T, s *store.Store, jobType domain.JobType, chatID string, cursor *int64) domain.SyncJob {
	t.Helper()
	job := domain.SyncJob{
		ID:        "job-1",
		ChatID:    chatID,
		JobType:   jobType,
		Priority:  1,
		Status:    domain.JobPending,
		CreatedAt: 1,
	}
	job.CursorStart = cursor
	if err := s.Jobs.Insert(job); err != nil {
		t.Fatal(err)
	}
	return job
}

func TestWorkerForwardCatchupAdvancesCursorAndUpsertsMessages(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.SyncState.EnsureChat("42", domain.ChatPrivate, 5); err != nil {
		t.Fatal(err)
	}
	job := insertJob(t, s, domain.JobForwardCatchup, "42", nil)

	client := mtproto.NewFakeClient()
	peer := &tg.InputPeerUser{UserID: 42, AccessHash: 0}
	client.HistoryPages["user:42"] = []mtproto.HistoryPage{{
		Messages: []tg.MessageClass{
			&tg.Message{ID: 1, PeerID: &tg.PeerUser{UserID: 42}, Message: "hi", Date: 1000},
			&tg.Message{ID: 2, PeerID: &tg.PeerUser{UserID: 42}, Message: "there", Date: 1001},
		},
	}}
	_ = peer

	w := New(s, clock.NewFake(time.Unix(1_700_000_000, 0)))
	res, err := w.Execute(context.Background(), client, job)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.MessagesFetched != 2 {
		t.Fatalf("expected success with 2 messages, got %+v", res)
	}

	got, err := s.Messages.GetByID("42", 2)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Text != "there" {
		t.Fatalf("expected message 2 persisted, got %+v", got)
	}

	st, err := s.SyncState.GetChat("42")
	if err != nil {
		t.Fatal(err)
	}
	if st.ForwardCursor == nil || *st.ForwardCursor != 2 {
		t.Fatalf("expected forward cursor advanced to 2, got %+v", st.ForwardCursor)
	}

	gotJob, err := s.Jobs.FindPending("42", domain.JobForwardCatchup)
	if err != nil {
		t.Fatal(err)
	}
	if gotJob != nil {
		t.Fatalf("expected job completed, still pending: %+v", gotJob)
	}
}

func TestWorkerBackwardHistoryMarksCompleteOnShortPage(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.SyncState.EnsureChat("42", domain.ChatPrivate, 5); err != nil {
		t.Fatal(err)
	}
	job := insertJob(t, s, domain.JobBackwardHistory, "42", nil)

	client := mtproto.NewFakeClient()
	client.HistoryPages["user:42"] = []mtproto.HistoryPage{{
		Messages: []tg.MessageClass{
			&tg.Message{ID: 1, PeerID: &tg.PeerUser{UserID: 42}, Message: "first", Date: 500},
		},
	}}

	w := New(s, clock.NewFake(time.Unix(1_700_000_000, 0)))
	res, err := w.Execute(context.Background(), client, job)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.HasMore {
		t.Fatalf("expected a short final page with no more history, got %+v", res)
	}

	st, err := s.SyncState.GetChat("42")
	if err != nil {
		t.Fatal(err)
	}
	if !st.HistoryComplete {
		t.Fatalf("expected history_complete set on short page, got %+v", st)
	}
}

func TestWorkerReleasesJobToPendingOnFloodWait(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.SyncState.EnsureChat("42", domain.ChatPrivate, 5); err != nil {
		t.Fatal(err)
	}
	job := insertJob(t, s, domain.JobForwardCatchup, "42", nil)

	client := mtproto.NewFakeClient()
	client.HistoryErr = &domain.RateLimitedError{Method: "messages.getHistory", WaitSeconds: 30}

	w := New(s, clock.NewFake(time.Unix(1_700_000_000, 0)))
	res, err := w.Execute(context.Background(), client, job)
	if err != nil {
		t.Fatal(err)
	}
	if !res.RateLimited || res.WaitSeconds != 30 {
		t.Fatalf("expected rate-limited result, got %+v", res)
	}

	pending, err := s.Jobs.FindPending("42", domain.JobForwardCatchup)
	if err != nil {
		t.Fatal(err)
	}
	if pending == nil {
		t.Fatalf("expected job released back to pending")
	}
}

func TestWorkerFailsJobOnUnresolvedNegativeChat(t *testing.T) {
	s := newTestStore(t)
	job := insertJob(t, s, domain.JobForwardCatchup, "-100999", nil)

	client := mtproto.NewFakeClient()
	w := New(s, clock.NewFake(time.Unix(1_700_000_000, 0)))
	if _, err := w.Execute(context.Background(), client, job); err == nil {
		t.Fatal("expected PEER_UNRESOLVED error")
	}

	pending, err := s.Jobs.FindPending("-100999", domain.JobForwardCatchup)
	if err != nil {
		t.Fatal(err)
	}
	if pending != nil {
		t.Fatalf("expected job not left pending after failure, got %+v", pending)
	}
}
