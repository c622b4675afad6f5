package store

import (
	"database/sql"
	"fmt"
	"strconv"

	"telegram-sync/internal/domain"
)

// Status is the key/value daemon heartbeat service the CLI's `daemon status`
// command and the daemon's own main loop write to and read from.
type Status struct {
	db *sql.DB
}

func NewStatus(db *DB) *Status { return &Status{db: db.Cache} }

func (s *Status) set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO daemon_status (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value
	`, key, value)
	return err
}

func (s *Status) get(key string) (string, bool) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM daemon_status WHERE key = ?`, key).Scan(&v)
	return v, err == nil
}

// Write persists the full heartbeat in one pass, called every main-loop
// iteration.
func (s *Status) Write(st domain.DaemonStatus) error {
	fields := map[string]string{
		"state":              st.State,
		"started_at":         strconv.FormatInt(st.StartedAt, 10),
		"connected_accounts": strconv.Itoa(st.ConnectedAccounts),
		"total_accounts":     strconv.Itoa(st.TotalAccounts),
		"messages_synced":    strconv.FormatInt(st.MessagesSynced, 10),
		"pending_jobs":       strconv.Itoa(st.PendingJobs),
		"running_jobs":       strconv.Itoa(st.RunningJobs),
		"last_update":        strconv.FormatInt(st.LastUpdate, 10),
	}
	for k, v := range fields {
		if err := s.set(k, v); err != nil {
			return fmt.Errorf("write status %s: %w", k, err)
		}
	}
	return nil
}

// Read reconstructs the heartbeat, defaulting any missing/malformed field to
// its zero value rather than failing — a half-written status row should
// never block `daemon status` from reporting something.
func (s *Status) Read() domain.DaemonStatus {
	getInt := func(k string) int {
		v, _ := s.get(k)
		n, _ := strconv.Atoi(v)
		return n
	}
	getInt64 := func(k string) int64 {
		v, _ := s.get(k)
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	state, _ := s.get("state")
	return domain.DaemonStatus{
		State:             state,
		StartedAt:         getInt64("started_at"),
		ConnectedAccounts: getInt("connected_accounts"),
		TotalAccounts:     getInt("total_accounts"),
		MessagesSynced:    getInt64("messages_synced"),
		PendingJobs:       getInt("pending_jobs"),
		RunningJobs:       getInt("running_jobs"),
		LastUpdate:        getInt64("last_update"),
	}
}
