package store

import (
	"database/sql"
	"errors"
	"fmt"

	"telegram-sync/internal/domain"
)

// SyncState is the per-chat and per-entity cursor service of the cache
// store's "Sync state" surface.
type SyncState struct {
	db *sql.DB
}

func NewSyncState(db *DB) *SyncState { return &SyncState{db: db.Cache} }

const chatSyncSelectCols = `SELECT chat_id, chat_type, member_count, forward_cursor, backward_cursor, sync_priority, sync_enabled, history_complete, total_messages, synced_messages, last_forward_sync, last_backward_sync FROM chat_sync_state `

func (s *SyncState) GetChat(chatID string) (*domain.ChatSyncState, error) {
	row := s.db.QueryRow(chatSyncSelectCols+`WHERE chat_id = ?`, chatID)
	return scanChatSyncState(row)
}

// EnsureChat inserts a default row if one doesn't already exist, returning
// the (possibly pre-existing) state.
func (s *SyncState) EnsureChat(chatID string, chatType domain.ChatType, priority int) (*domain.ChatSyncState, error) {
	_, err := s.db.Exec(`
		INSERT INTO chat_sync_state (chat_id, chat_type, sync_priority)
		VALUES (?, ?, ?)
		ON CONFLICT(chat_id) DO NOTHING
	`, chatID, string(chatType), priority)
	if err != nil {
		return nil, fmt.Errorf("ensure chat sync state: %w", err)
	}
	return s.GetChat(chatID)
}

// ListEnabled returns all chats with sync_enabled=1, used by
// Scheduler.initializeForStartup.
func (s *SyncState) ListEnabled() ([]domain.ChatSyncState, error) {
	rows, err := s.db.Query(chatSyncSelectCols + `WHERE sync_enabled = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ChatSyncState
	for rows.Next() {
		st, err := scanChatSyncStateRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

// AdvanceForward advances forward_cursor to max(prev, newCursor) and stamps
// last_forward_sync, inside the caller-supplied transaction so it commits
// atomically with the message page it follows.
func AdvanceForward(tx *sql.Tx, chatID string, newCursor int64, syncedDelta int64, nowMs int64) error {
	_, err := tx.Exec(`
		UPDATE chat_sync_state SET
			forward_cursor = MAX(COALESCE(forward_cursor, 0), ?),
			synced_messages = synced_messages + ?,
			last_forward_sync = ?
		WHERE chat_id = ?
	`, newCursor, syncedDelta, nowMs, chatID)
	return err
}

// AdvanceBackward advances backward_cursor to min(prev, newCursor) (or sets
// it if unset), marks history_complete when historyComplete is true, and
// stamps last_backward_sync. Must run in the same transaction as the message
// page it follows.
func AdvanceBackward(tx *sql.Tx, chatID string, newCursor int64, syncedDelta int64, historyComplete bool, nowMs int64) error {
	_, err := tx.Exec(`
		UPDATE chat_sync_state SET
			backward_cursor = CASE
				WHEN backward_cursor IS NULL THEN ?
				ELSE MIN(backward_cursor, ?)
			END,
			synced_messages = synced_messages + ?,
			history_complete = CASE WHEN ? THEN 1 ELSE history_complete END,
			last_backward_sync = ?
		WHERE chat_id = ?
	`, newCursor, newCursor, syncedDelta, boolToInt(historyComplete), nowMs, chatID)
	return err
}

func (s *SyncState) SetEnabled(chatID string, enabled bool) error {
	_, err := s.db.Exec(`UPDATE chat_sync_state SET sync_enabled = ? WHERE chat_id = ?`, boolToInt(enabled), chatID)
	return err
}

// GetEntityCursor / SetEntityCursor track the contacts/dialogs entity-level
// sync cursors named in the cache store component.
func (s *SyncState) GetEntityCursor(entity string) (string, error) {
	var cursor string
	err := s.db.QueryRow(`SELECT cursor FROM entity_sync_state WHERE entity = ?`, entity).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return cursor, err
}

func (s *SyncState) SetEntityCursor(entity, cursor string, nowMs int64) error {
	_, err := s.db.Exec(`
		INSERT INTO entity_sync_state (entity, cursor, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(entity) DO UPDATE SET cursor=excluded.cursor, updated_at=excluded.updated_at
	`, entity, cursor, nowMs)
	return err
}

func scanChatSyncState(row *sql.Row) (*domain.ChatSyncState, error) {
	var st domain.ChatSyncState
	var chatType string
	var forwardCursor, backwardCursor sql.NullInt64
	var syncEnabled, historyComplete int
	err := row.Scan(&st.ChatID, &chatType, &st.MemberCount, &forwardCursor, &backwardCursor,
		&st.SyncPriority, &syncEnabled, &historyComplete, &st.TotalMessages, &st.SyncedMessages,
		&st.LastForwardSync, &st.LastBackwardSync)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan chat sync state: %w", err)
	}
	finishChatSyncState(&st, chatType, forwardCursor, backwardCursor, syncEnabled, historyComplete)
	return &st, nil
}

func scanChatSyncStateRow(rows *sql.Rows) (*domain.ChatSyncState, error) {
	var st domain.ChatSyncState
	var chatType string
	var forwardCursor, backwardCursor sql.NullInt64
	var syncEnabled, historyComplete int
	err := rows.Scan(&st.ChatID, &chatType, &st.MemberCount, &forwardCursor, &backwardCursor,
		&st.SyncPriority, &syncEnabled, &historyComplete, &st.TotalMessages, &st.SyncedMessages,
		&st.LastForwardSync, &st.LastBackwardSync)
	if err != nil {
		return nil, err
	}
	finishChatSyncState(&st, chatType, forwardCursor, backwardCursor, syncEnabled, historyComplete)
	return &st, nil
}

func finishChatSyncState(st *domain.ChatSyncState, chatType string, fwd, bwd sql.NullInt64, enabled, complete int) {
	st.ChatType = domain.ChatType(chatType)
	if fwd.Valid {
		v := fwd.Int64
		st.ForwardCursor = &v
	}
	if bwd.Valid {
		v := bwd.Int64
		st.BackwardCursor = &v
	}
	st.SyncEnabled = enabled != 0
	st.HistoryComplete = complete != 0
}
