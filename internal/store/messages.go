package store

import (
	"database/sql"
	"errors"
	"fmt"

	"telegram-sync/internal/domain"
)

// Messages is the CRUD + search service over cache.db's messages_cache
// table. Messages are eternal: Upsert never truly deletes, and the
// is_deleted/is_edited/edit_date fields only move forward in time, per the
// ordering rule in the concurrency section ("never un-delete; only accept
// edits with edit_date >= current").
type Messages struct {
	db *sql.DB
}

func NewMessages(db *DB) *Messages { return &Messages{db: db.Cache} }

// Upsert inserts or merges one message. The WHERE clause on the UPDATE arm
// implements the monotonic merge: is_deleted can only go 0->1, and edits are
// only applied when the incoming edit_date is not older than what's stored.
func (s *Messages) Upsert(m domain.Message) error {
	_, err := s.db.Exec(`
		INSERT INTO messages_cache (
			chat_id, message_id, from_id, reply_to_id, forward_from_id, text, message_type,
			has_media, is_outgoing, is_edited, is_pinned, is_deleted, edit_date, date, fetched_at, raw_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, message_id) DO UPDATE SET
			from_id=excluded.from_id,
			reply_to_id=excluded.reply_to_id,
			forward_from_id=excluded.forward_from_id,
			text=CASE WHEN excluded.edit_date >= messages_cache.edit_date THEN excluded.text ELSE messages_cache.text END,
			message_type=excluded.message_type,
			has_media=excluded.has_media,
			is_outgoing=excluded.is_outgoing,
			is_edited=CASE WHEN excluded.edit_date > messages_cache.edit_date THEN 1 ELSE messages_cache.is_edited END,
			is_pinned=excluded.is_pinned,
			is_deleted=MAX(messages_cache.is_deleted, excluded.is_deleted),
			edit_date=MAX(messages_cache.edit_date, excluded.edit_date),
			date=excluded.date,
			fetched_at=excluded.fetched_at,
			raw_json=excluded.raw_json
	`, m.ChatID, m.MessageID, m.FromID, m.ReplyToID, m.ForwardFromID, m.Text, string(m.Type),
		boolToInt(m.HasMedia), boolToInt(m.IsOutgoing), boolToInt(m.IsEdited), boolToInt(m.IsPinned),
		boolToInt(m.IsDeleted), m.EditDate, m.Date, m.FetchedAt, m.RawJSON)
	if err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}
	return nil
}

// UpsertMany runs Upsert for a page of messages inside one transaction, so
// the sync worker's cursor advance in the same transaction (done by the
// caller) never observes a partially-written page.
func (s *Messages) UpsertMany(tx *sql.Tx, messages []domain.Message) error {
	for _, m := range messages {
		if _, err := tx.Exec(`
			INSERT INTO messages_cache (
				chat_id, message_id, from_id, reply_to_id, forward_from_id, text, message_type,
				has_media, is_outgoing, is_edited, is_pinned, is_deleted, edit_date, date, fetched_at, raw_json
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(chat_id, message_id) DO UPDATE SET
				from_id=excluded.from_id,
				reply_to_id=excluded.reply_to_id,
				forward_from_id=excluded.forward_from_id,
				text=CASE WHEN excluded.edit_date >= messages_cache.edit_date THEN excluded.text ELSE messages_cache.text END,
				message_type=excluded.message_type,
				has_media=excluded.has_media,
				is_outgoing=excluded.is_outgoing,
				is_edited=CASE WHEN excluded.edit_date > messages_cache.edit_date THEN 1 ELSE messages_cache.is_edited END,
				is_pinned=excluded.is_pinned,
				is_deleted=MAX(messages_cache.is_deleted, excluded.is_deleted),
				edit_date=MAX(messages_cache.edit_date, excluded.edit_date),
				date=excluded.date,
				fetched_at=excluded.fetched_at,
				raw_json=excluded.raw_json
		`, m.ChatID, m.MessageID, m.FromID, m.ReplyToID, m.ForwardFromID, m.Text, string(m.Type),
			boolToInt(m.HasMedia), boolToInt(m.IsOutgoing), boolToInt(m.IsEdited), boolToInt(m.IsPinned),
			boolToInt(m.IsDeleted), m.EditDate, m.Date, m.FetchedAt, m.RawJSON); err != nil {
			return fmt.Errorf("upsert message %s/%d: %w", m.ChatID, m.MessageID, err)
		}
	}
	return nil
}

// MarkDeleted soft-deletes the given message ids in chatID. Once set,
// is_deleted never flips back, per the MAX-style guard in Upsert above.
func (s *Messages) MarkDeleted(chatID string, messageIDs []int64) error {
	if len(messageIDs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, id := range messageIDs {
		if _, err := tx.Exec(`UPDATE messages_cache SET is_deleted = 1 WHERE chat_id = ? AND message_id = ?`, chatID, id); err != nil {
			return fmt.Errorf("mark deleted %s/%d: %w", chatID, id, err)
		}
	}
	return tx.Commit()
}

// MarkEdited applies an edit only if editDate is not older than what's
// stored, matching Upsert's monotonic merge rule.
func (s *Messages) MarkEdited(chatID string, messageID int64, newText string, editDate int64) error {
	_, err := s.db.Exec(`
		UPDATE messages_cache SET
			text = CASE WHEN ? >= edit_date THEN ? ELSE text END,
			is_edited = CASE WHEN ? > edit_date THEN 1 ELSE is_edited END,
			edit_date = MAX(edit_date, ?)
		WHERE chat_id = ? AND message_id = ?
	`, editDate, newText, editDate, editDate, chatID, messageID)
	return err
}

func (s *Messages) GetByID(chatID string, messageID int64) (*domain.Message, error) {
	row := s.db.QueryRow(messageSelectCols+`WHERE chat_id = ? AND message_id = ?`, chatID, messageID)
	return scanMessage(row)
}

// SearchOptions configures Messages.Search.
type SearchOptions struct {
	Query           string
	ChatID          string
	ChatUsername    string
	FromID          string
	SenderUsername  string
	IncludeDeleted  bool
	Limit           int
}

// Search runs an FTS5 MATCH query joined against chats/users for the
// username filters, ordered newest-first, per the Messages service's search
// contract. Only message columns are returned.
func (s *Messages) Search(opts SearchOptions) ([]domain.Message, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT m.chat_id, m.message_id, m.from_id, m.reply_to_id, m.forward_from_id, m.text, m.message_type,
		       m.has_media, m.is_outgoing, m.is_edited, m.is_pinned, m.is_deleted, m.edit_date, m.date, m.fetched_at, m.raw_json
		FROM message_search
		JOIN messages_cache m ON m.rowid = message_search.rowid
		LEFT JOIN chats_cache c ON c.chat_id = m.chat_id
		LEFT JOIN users_cache u ON u.user_id = m.from_id
		WHERE message_search MATCH ?
	`
	args := []any{opts.Query}

	if !opts.IncludeDeleted {
		query += " AND m.is_deleted = 0"
	}
	if opts.ChatID != "" {
		query += " AND m.chat_id = ?"
		args = append(args, opts.ChatID)
	}
	if opts.ChatUsername != "" {
		query += " AND c.username = ? COLLATE NOCASE"
		args = append(args, opts.ChatUsername)
	}
	if opts.FromID != "" {
		query += " AND m.from_id = ?"
		args = append(args, opts.FromID)
	}
	if opts.SenderUsername != "" {
		query += " AND u.username = ? COLLATE NOCASE"
		args = append(args, opts.SenderUsername)
	}
	query += " ORDER BY m.date DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

const messageSelectCols = `SELECT chat_id, message_id, from_id, reply_to_id, forward_from_id, text, message_type, has_media, is_outgoing, is_edited, is_pinned, is_deleted, edit_date, date, fetched_at, raw_json FROM messages_cache `

func scanMessage(row *sql.Row) (*domain.Message, error) {
	var m domain.Message
	var typ string
	var hasMedia, isOutgoing, isEdited, isPinned, isDeleted int
	err := row.Scan(&m.ChatID, &m.MessageID, &m.FromID, &m.ReplyToID, &m.ForwardFromID, &m.Text, &typ,
		&hasMedia, &isOutgoing, &isEdited, &isPinned, &isDeleted, &m.EditDate, &m.Date, &m.FetchedAt, &m.RawJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	m.Type = domain.MessageType(typ)
	m.HasMedia, m.IsOutgoing, m.IsEdited, m.IsPinned, m.IsDeleted =
		hasMedia != 0, isOutgoing != 0, isEdited != 0, isPinned != 0, isDeleted != 0
	return &m, nil
}

func scanMessages(rows *sql.Rows) ([]domain.Message, error) {
	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		var typ string
		var hasMedia, isOutgoing, isEdited, isPinned, isDeleted int
		if err := rows.Scan(&m.ChatID, &m.MessageID, &m.FromID, &m.ReplyToID, &m.ForwardFromID, &m.Text, &typ,
			&hasMedia, &isOutgoing, &isEdited, &isPinned, &isDeleted, &m.EditDate, &m.Date, &m.FetchedAt, &m.RawJSON); err != nil {
			return nil, err
		}
		m.Type = domain.MessageType(typ)
		m.HasMedia, m.IsOutgoing, m.IsEdited, m.IsPinned, m.IsDeleted =
			hasMedia != 0, isOutgoing != 0, isEdited != 0, isPinned != 0, isDeleted != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

// DB exposes the underlying *sql.DB so the sync worker can open a single
// transaction spanning both message upserts and cursor advances, per the
// ordering rule that both must commit together.
func (s *Messages) DB() *sql.DB { return s.db }
