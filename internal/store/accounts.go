package store

import (
	"database/sql"
	"errors"
	"fmt"

	"telegram-sync/internal/domain"
)

// Accounts is the CRUD service over data.db's accounts table.
type Accounts struct {
	db *sql.DB
}

func NewAccounts(db *DB) *Accounts { return &Accounts{db: db.Data} }

func (s *Accounts) Upsert(a domain.Account) error {
	_, err := s.db.Exec(`
		INSERT INTO accounts (id, phone, user_id, username, label, active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			phone=excluded.phone, user_id=excluded.user_id,
			username=excluded.username, label=excluded.label, active=excluded.active
	`, a.ID, a.Phone, a.UserID, a.Username, a.Label, boolToInt(a.Active))
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

func (s *Accounts) GetByID(id string) (*domain.Account, error) {
	row := s.db.QueryRow(`SELECT id, phone, user_id, username, label, active FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

func (s *Accounts) GetByUserID(userID string) (*domain.Account, error) {
	if userID == "" {
		return nil, nil
	}
	row := s.db.QueryRow(`SELECT id, phone, user_id, username, label, active FROM accounts WHERE user_id = ?`, userID)
	return scanAccount(row)
}

func (s *Accounts) List() ([]domain.Account, error) {
	rows, err := s.db.Query(`SELECT id, phone, user_id, username, label, active FROM accounts ORDER BY phone`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		var a domain.Account
		var active int
		if err := rows.Scan(&a.ID, &a.Phone, &a.UserID, &a.Username, &a.Label, &active); err != nil {
			return nil, err
		}
		a.Active = active != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Accounts) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM accounts WHERE id = ?`, id)
	return err
}

// MergeDuplicates implements the duplicate-account merge rule of the data
// model: when two accounts resolve to the same user_id, the one with a real
// phone (not a "user:<id>" placeholder) is preferred; otherwise the
// earlier-created row wins. Because accounts has no created_at column, "the
// earlier-created one" is approximated by keeping the existing row and
// discarding the newcomer unless the newcomer upgrades a placeholder to a
// real phone. Either way, if incoming was already its own row under a
// different id, that row is deleted so the merge leaves exactly one account.
func (s *Accounts) MergeDuplicates(incoming domain.Account) (domain.Account, error) {
	existing, err := s.GetByUserID(incoming.UserID)
	if err != nil {
		return domain.Account{}, err
	}
	if existing == nil {
		if err := s.Upsert(incoming); err != nil {
			return domain.Account{}, err
		}
		return incoming, nil
	}

	supersededID := incoming.ID

	if existing.PlaceholderPhone() && !incoming.PlaceholderPhone() {
		incoming.ID = existing.ID
		if err := s.Upsert(incoming); err != nil {
			return domain.Account{}, err
		}
		if supersededID != incoming.ID {
			if err := s.Delete(supersededID); err != nil {
				return domain.Account{}, err
			}
		}
		return incoming, nil
	}

	if supersededID != existing.ID {
		if err := s.Delete(supersededID); err != nil {
			return domain.Account{}, err
		}
	}
	return *existing, nil
}

func scanAccount(row *sql.Row) (*domain.Account, error) {
	var a domain.Account
	var active int
	err := row.Scan(&a.ID, &a.Phone, &a.UserID, &a.Username, &a.Label, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	a.Active = active != 0
	return &a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
