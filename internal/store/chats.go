package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"telegram-sync/internal/domain"
)

// Chats is the CRUD service over cache.db's chats_cache table.
type Chats struct {
	db *sql.DB
}

func NewChats(db *DB) *Chats { return &Chats{db: db.Cache} }

const chatSelectCols = `SELECT chat_id, type, title, username, member_count, access_hash, is_creator, is_admin, last_message_id, last_message_at, fetched_at FROM chats_cache `

func (s *Chats) Upsert(c domain.Chat) error {
	_, err := s.db.Exec(`
		INSERT INTO chats_cache (chat_id, type, title, username, member_count, access_hash, is_creator, is_admin, last_message_id, last_message_at, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			type=excluded.type, title=excluded.title, username=excluded.username,
			member_count=excluded.member_count, access_hash=excluded.access_hash,
			is_creator=excluded.is_creator, is_admin=excluded.is_admin,
			last_message_id=MAX(chats_cache.last_message_id, excluded.last_message_id),
			last_message_at=MAX(chats_cache.last_message_at, excluded.last_message_at),
			fetched_at=excluded.fetched_at
		WHERE excluded.fetched_at >= chats_cache.fetched_at
	`, c.ChatID, string(c.Type), c.Title, c.Username, c.MemberCount, c.AccessHash,
		boolToInt(c.IsCreator), boolToInt(c.IsAdmin), c.LastMessageID, c.LastMessageAt, c.FetchedAt)
	if err != nil {
		return fmt.Errorf("upsert chat: %w", err)
	}
	return nil
}

// UpdateLastMessage is the narrow write the realtime handler performs on
// every new message: advance last_message_id/_at without touching any other
// cached field or requiring a full chat refetch.
func (s *Chats) UpdateLastMessage(chatID string, messageID, at int64) error {
	_, err := s.db.Exec(`
		UPDATE chats_cache SET
			last_message_id = MAX(last_message_id, ?),
			last_message_at = MAX(last_message_at, ?)
		WHERE chat_id = ?
	`, messageID, at, chatID)
	return err
}

func (s *Chats) GetByID(chatID string) (*domain.Chat, error) {
	row := s.db.QueryRow(chatSelectCols+`WHERE chat_id = ?`, chatID)
	return scanChat(row)
}

func (s *Chats) GetByUsername(username string) (*domain.Chat, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	row := s.db.QueryRow(chatSelectCols+`WHERE username = ? COLLATE NOCASE`, username)
	return scanChat(row)
}

// ListOptions configures Chats.List.
type ListOptions struct {
	Type    domain.ChatType // empty means all types
	Limit   int
	Offset  int
	OrderBy string // "last_message_at" (default) or "title"
}

func (s *Chats) List(opts ListOptions) ([]domain.Chat, error) {
	orderCol := "last_message_at DESC"
	if opts.OrderBy == "title" {
		orderCol = "title ASC"
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := chatSelectCols
	var args []any
	if opts.Type != "" {
		query += `WHERE type = ? `
		args = append(args, string(opts.Type))
	}
	query += fmt.Sprintf("ORDER BY %s LIMIT ? OFFSET ?", orderCol)
	args = append(args, limit, opts.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChats(rows)
}

// Search performs a case-insensitive substring search over title and
// username, ranking exact matches first, capped at the default limit of 20
// unless the caller overrides it.
func (s *Chats) Search(q string, limit int) ([]domain.Chat, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + q + "%"
	rows, err := s.db.Query(chatSelectCols+`
		WHERE title LIKE ? COLLATE NOCASE OR username LIKE ? COLLATE NOCASE
		ORDER BY
			CASE WHEN username = ? COLLATE NOCASE THEN 0
			     WHEN title = ? COLLATE NOCASE THEN 1
			     ELSE 2 END,
			last_message_at DESC
		LIMIT ?
	`, like, like, q, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChats(rows)
}

func (s *Chats) Delete(chatID string) error {
	_, err := s.db.Exec(`DELETE FROM chats_cache WHERE chat_id = ?`, chatID)
	return err
}

func (s *Chats) Prune(nowMs, ageMs int64) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM chats_cache WHERE fetched_at > 0 AND fetched_at < ?`, nowMs-ageMs)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Chats) Count() (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM chats_cache`).Scan(&n)
	return n, err
}

func scanChat(row *sql.Row) (*domain.Chat, error) {
	var c domain.Chat
	var typ string
	var isCreator, isAdmin int
	err := row.Scan(&c.ChatID, &typ, &c.Title, &c.Username, &c.MemberCount, &c.AccessHash,
		&isCreator, &isAdmin, &c.LastMessageID, &c.LastMessageAt, &c.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan chat: %w", err)
	}
	c.Type = domain.ChatType(typ)
	c.IsCreator, c.IsAdmin = isCreator != 0, isAdmin != 0
	return &c, nil
}

func scanChats(rows *sql.Rows) ([]domain.Chat, error) {
	var out []domain.Chat
	for rows.Next() {
		var c domain.Chat
		var typ string
		var isCreator, isAdmin int
		if err := rows.Scan(&c.ChatID, &typ, &c.Title, &c.Username, &c.MemberCount, &c.AccessHash,
			&isCreator, &isAdmin, &c.LastMessageID, &c.LastMessageAt, &c.FetchedAt); err != nil {
			return nil, err
		}
		c.Type = domain.ChatType(typ)
		c.IsCreator, c.IsAdmin = isCreator != 0, isAdmin != 0
		out = append(out, c)
	}
	return out, rows.Err()
}
