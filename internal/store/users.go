package store

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"telegram-sync/internal/domain"
)

// Users is the CRUD service over cache.db's users_cache table, per the cache
// store component's Users surface.
type Users struct {
	db *sql.DB
}

func NewUsers(db *DB) *Users { return &Users{db: db.Cache} }

var phoneStripRe = regexp.MustCompile(`[\s+\-()]`)

// NormalizePhone strips whitespace, '+', '-' and parentheses, per the data
// model's User.phone normalization rule.
func NormalizePhone(phone string) string {
	return phoneStripRe.ReplaceAllString(phone, "")
}

func (s *Users) Upsert(u domain.User) error {
	u.Phone = NormalizePhone(u.Phone)
	_, err := s.db.Exec(`
		INSERT INTO users_cache (user_id, username, first_name, last_name, phone, access_hash, is_contact, is_bot, is_premium, fetched_at, raw_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			username=excluded.username, first_name=excluded.first_name, last_name=excluded.last_name,
			phone=excluded.phone, access_hash=excluded.access_hash, is_contact=excluded.is_contact,
			is_bot=excluded.is_bot, is_premium=excluded.is_premium, fetched_at=excluded.fetched_at,
			raw_json=excluded.raw_json
		WHERE excluded.fetched_at >= users_cache.fetched_at
	`, u.UserID, u.Username, u.FirstName, u.LastName, u.Phone, u.AccessHash,
		boolToInt(u.IsContact), boolToInt(u.IsBot), boolToInt(u.IsPremium), u.FetchedAt, u.RawJSON)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpsertMany runs Upsert for each user inside one transaction.
func (s *Users) UpsertMany(users []domain.User) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, u := range users {
		u.Phone = NormalizePhone(u.Phone)
		if _, err := tx.Exec(`
			INSERT INTO users_cache (user_id, username, first_name, last_name, phone, access_hash, is_contact, is_bot, is_premium, fetched_at, raw_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				username=excluded.username, first_name=excluded.first_name, last_name=excluded.last_name,
				phone=excluded.phone, access_hash=excluded.access_hash, is_contact=excluded.is_contact,
				is_bot=excluded.is_bot, is_premium=excluded.is_premium, fetched_at=excluded.fetched_at,
				raw_json=excluded.raw_json
			WHERE excluded.fetched_at >= users_cache.fetched_at
		`, u.UserID, u.Username, u.FirstName, u.LastName, u.Phone, u.AccessHash,
			boolToInt(u.IsContact), boolToInt(u.IsBot), boolToInt(u.IsPremium), u.FetchedAt, u.RawJSON); err != nil {
			return fmt.Errorf("upsert user %s: %w", u.UserID, err)
		}
	}
	return tx.Commit()
}

func (s *Users) GetByID(userID string) (*domain.User, error) {
	row := s.db.QueryRow(userSelectCols+`WHERE user_id = ?`, userID)
	return scanUser(row)
}

// GetByUsername looks up case-insensitively, tolerating a leading '@'.
func (s *Users) GetByUsername(username string) (*domain.User, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	row := s.db.QueryRow(userSelectCols+`WHERE username = ? COLLATE NOCASE`, username)
	return scanUser(row)
}

// GetByPhone matches after stripping the same characters NormalizePhone
// removes, so callers can pass phone numbers in any punctuation style.
func (s *Users) GetByPhone(phone string) (*domain.User, error) {
	row := s.db.QueryRow(userSelectCols+`WHERE phone = ?`, NormalizePhone(phone))
	return scanUser(row)
}

// GetStale returns users whose fetched_at predates now-ttlMs, or who were
// never fetched.
func (s *Users) GetStale(nowMs, ttlMs int64) ([]domain.User, error) {
	rows, err := s.db.Query(userSelectCols+`WHERE fetched_at = 0 OR fetched_at < ?`, nowMs-ttlMs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (s *Users) Delete(userID string) error {
	_, err := s.db.Exec(`DELETE FROM users_cache WHERE user_id = ?`, userID)
	return err
}

// Prune deletes users whose fetched_at is older than now-ageMs, per the
// peer-pruning lifecycle rule. Returns the number of rows removed.
func (s *Users) Prune(nowMs, ageMs int64) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM users_cache WHERE fetched_at > 0 AND fetched_at < ?`, nowMs-ageMs)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Users) Count() (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM users_cache`).Scan(&n)
	return n, err
}

const userSelectCols = `SELECT user_id, username, first_name, last_name, phone, access_hash, is_contact, is_bot, is_premium, fetched_at, raw_json FROM users_cache `

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var isContact, isBot, isPremium int
	err := row.Scan(&u.UserID, &u.Username, &u.FirstName, &u.LastName, &u.Phone, &u.AccessHash,
		&isContact, &isBot, &isPremium, &u.FetchedAt, &u.RawJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.IsContact, u.IsBot, u.IsPremium = isContact != 0, isBot != 0, isPremium != 0
	return &u, nil
}

func scanUsers(rows *sql.Rows) ([]domain.User, error) {
	var out []domain.User
	for rows.Next() {
		var u domain.User
		var isContact, isBot, isPremium int
		if err := rows.Scan(&u.UserID, &u.Username, &u.FirstName, &u.LastName, &u.Phone, &u.AccessHash,
			&isContact, &isBot, &isPremium, &u.FetchedAt, &u.RawJSON); err != nil {
			return nil, err
		}
		u.IsContact, u.IsBot, u.IsPremium = isContact != 0, isBot != 0, isPremium != 0
		out = append(out, u)
	}
	return out, rows.Err()
}
