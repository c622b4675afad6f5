// Package syncjob implements the sync worker: it executes exactly one job
// against one client's history endpoint, persists the resulting page and
// advances the chat's cursors in a single transaction, per the sync worker
// component design. Grounded on the teacher's internal/app/runner.go for the
// "resolve, call, persist, advance" shape of a single unit of work, though
// the teacher never did history backfill itself — MTProto pagination
// mechanics come from github.com/gotd/td/tg's MessagesGetHistoryRequest and
// other_examples' gotd-example use of that same call.
package syncjob

import (
	"context"
	"errors"
	"fmt"

	"telegram-sync/internal/domain"
	"telegram-sync/internal/infra/clock"
	"telegram-sync/internal/infra/logger"
	"telegram-sync/internal/mtproto"
	"telegram-sync/internal/realtime"
	"telegram-sync/internal/store"

	"github.com/gotd/td/tg"
	"go.uber.org/zap"
)

const historyPageLimit = 100

// Result is the outcome of executing one job, mirroring the sync worker
// contract's return shape.
type Result struct {
	Success         bool
	RateLimited     bool
	WaitSeconds     int
	MessagesFetched int64
	HasMore         bool
}

// Worker executes sync jobs against whatever client its caller (the daemon's
// main loop, via its own eligible-supervisor lookup) hands it. A
// Worker has no per-account state of its own; the same Worker value can run
// jobs against any connected supervisor's client.
type Worker struct {
	store *store.Store
	clock clock.Clock
}

func New(s *store.Store, c clock.Clock) *Worker {
	return &Worker{store: s, clock: c}
}

// Execute runs job's full eight-step contract against client. It is the
// daemon main loop's responsibility to have already chosen an eligible
// (connected, not rate-blocked) client for job's account; Execute itself
// only knows how to talk to whichever client it was given.
func (w *Worker) Execute(ctx context.Context, client mtproto.Client, job domain.SyncJob) (Result, error) {
	now := clock.NowMs(w.clock)

	ok, err := w.store.Jobs.TransitionToRunning(job.ID, now)
	if err != nil {
		return Result{}, fmt.Errorf("transition job to running: %w", err)
	}
	if !ok {
		// Another caller already claimed it; nothing to do.
		return Result{}, nil
	}

	peer, err := resolvePeer(w.store, job.ChatID)
	if err != nil {
		w.fail(job.ID, err.Error())
		return Result{}, err
	}

	req := w.buildHistoryRequest(peer, job)

	page, err := client.GetHistory(ctx, req)
	if err != nil {
		var rle *domain.RateLimitedError
		if errors.As(err, &rle) {
			if relErr := w.store.Jobs.ReleaseToPending(job.ID); relErr != nil {
				logger.Logger().Error("release job to pending failed", zap.Error(relErr), zap.String("job_id", job.ID))
			}
			return Result{Success: false, RateLimited: true, WaitSeconds: rle.WaitSeconds}, nil
		}
		w.fail(job.ID, err.Error())
		return Result{}, err
	}

	messages, minID, maxID := w.parsePage(job.ChatID, page)

	if err := w.persistPage(job, messages, minID, maxID, int64(len(page.Messages)), now); err != nil {
		w.fail(job.ID, err.Error())
		return Result{}, err
	}

	if err := w.store.Jobs.Complete(job.ID, int64(len(messages)), clock.NowMs(w.clock)); err != nil {
		return Result{}, fmt.Errorf("complete job: %w", err)
	}

	hasMore := len(page.Messages) == req.Limit
	return Result{Success: true, MessagesFetched: int64(len(messages)), HasMore: hasMore}, nil
}

func (w *Worker) fail(jobID, msg string) {
	if err := w.store.Jobs.Fail(jobID, msg, clock.NowMs(w.clock)); err != nil {
		logger.Logger().Error("mark job failed write error", zap.Error(err), zap.String("job_id", jobID))
	}
}

// buildHistoryRequest determines the pagination window from job_type and
// the chat's stored cursors, per the sync worker contract's step 3.
func (w *Worker) buildHistoryRequest(peer tg.InputPeerClass, job domain.SyncJob) mtproto.HistoryRequest {
	req := mtproto.HistoryRequest{Peer: peer, Limit: historyPageLimit}

	switch job.JobType {
	case domain.JobForwardCatchup:
		if job.CursorStart != nil {
			req.MinID = int(*job.CursorStart)
		}
		req.MaxID = 0
	case domain.JobBackwardHistory, domain.JobFullSync:
		if job.CursorStart != nil {
			req.OffsetID = int(*job.CursorStart)
		}
	case domain.JobInitialLoad:
		req.OffsetID = 0
	}
	return req
}

// parsePage resolves each tg.MessageClass into a domain.Message row and
// tracks (minId, maxId) across the page, per step 5.
func (w *Worker) parsePage(chatID string, page mtproto.HistoryPage) (messages []domain.Message, minID, maxID int64) {
	now := clock.NowMs(w.clock)
	for _, mc := range page.Messages {
		msg, ok := mc.(*tg.Message)
		if !ok {
			continue
		}
		rawJSON, err := realtime.BuildRawJSON(msg, chatID)
		if err != nil {
			logger.Logger().Warn("raw_json encode failed", zap.Error(err), zap.Int("msg_id", msg.ID))
		}
		msgType, hasMedia := realtime.ResolveMessageType(msg)
		row := domain.Message{
			ChatID:        chatID,
			MessageID:     int64(msg.ID),
			FromID:        fromIDString(msg),
			ReplyToID:     realtime.ReplyToID(msg),
			ForwardFromID: realtime.ForwardFromID(msg),
			Text:          msg.Message,
			Type:          msgType,
			HasMedia:      hasMedia,
			IsOutgoing:    msg.Out,
			IsPinned:      msg.Pinned,
			EditDate:      int64(msg.EditDate),
			IsEdited:      msg.EditDate != 0,
			Date:          int64(msg.Date),
			FetchedAt:     now,
			RawJSON:       rawJSON,
		}
		messages = append(messages, row)

		id := int64(msg.ID)
		if minID == 0 || id < minID {
			minID = id
		}
		if id > maxID {
			maxID = id
		}
	}
	return messages, minID, maxID
}

// persistPage upserts messages and advances the chat's cursors inside one
// transaction, per step 6.
func (w *Worker) persistPage(job domain.SyncJob, messages []domain.Message, minID, maxID, pageSize, nowMs int64) error {
	tx, err := w.store.Messages.DB().Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := w.store.Messages.UpsertMany(tx, messages); err != nil {
		return err
	}

	switch job.JobType {
	case domain.JobForwardCatchup:
		if err := store.AdvanceForward(tx, job.ChatID, maxID, pageSize, nowMs); err != nil {
			return err
		}
	case domain.JobBackwardHistory, domain.JobFullSync:
		historyComplete := pageSize < historyPageLimit
		cursor := minID
		if cursor == 0 {
			cursor = 1
		}
		if err := store.AdvanceBackward(tx, job.ChatID, cursor, pageSize, historyComplete, nowMs); err != nil {
			return err
		}
	case domain.JobInitialLoad:
		if err := store.AdvanceForward(tx, job.ChatID, maxID, pageSize, nowMs); err != nil {
			return err
		}
		historyComplete := pageSize < historyPageLimit
		backCursor := minID
		if backCursor == 0 {
			backCursor = 1
		}
		if err := store.AdvanceBackward(tx, job.ChatID, backCursor, 0, historyComplete, nowMs); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// fromIDString resolves the sender, reusing realtime.PeerChatID so the
// history path and the realtime path canonicalize ids identically.
func fromIDString(msg *tg.Message) string {
	fromID, ok := msg.GetFromID()
	if !ok {
		return ""
	}
	return realtime.PeerChatID(fromID)
}
