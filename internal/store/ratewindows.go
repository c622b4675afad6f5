package store

import "database/sql"

// RateWindows is the raw storage surface for the rate limiter's sliding
// windows and flood-wait ledger. internal/ratelimit owns the policy
// (isBlocked, getWaitTime, flood-wait classification); this type only reads
// and writes rows, shared across goroutines via the cache store per the
// concurrency section's rate-limit coordination rule.
type RateWindows struct {
	db *sql.DB
}

func NewRateWindows(db *DB) *RateWindows { return &RateWindows{db: db.Cache} }

// RecordCall increments the (method, windowStart) counter.
func (s *RateWindows) RecordCall(method string, windowStart int64) error {
	_, err := s.db.Exec(`
		INSERT INTO rate_windows (method, window_start, call_count) VALUES (?, ?, 1)
		ON CONFLICT(method, window_start) DO UPDATE SET call_count = call_count + 1
	`, method, windowStart)
	return err
}

// CallCount sums call_count for method (or all methods if method=="") over
// windows with window_start >= sinceWindowStart.
func (s *RateWindows) CallCount(method string, sinceWindowStart int64) (int, error) {
	var n int
	var err error
	if method == "" {
		err = s.db.QueryRow(`SELECT COALESCE(SUM(call_count), 0) FROM rate_windows WHERE window_start >= ?`, sinceWindowStart).Scan(&n)
	} else {
		err = s.db.QueryRow(`SELECT COALESCE(SUM(call_count), 0) FROM rate_windows WHERE method = ? AND window_start >= ?`, method, sinceWindowStart).Scan(&n)
	}
	return n, err
}

// SetFloodWait writes flood_wait_until for the current window, creating the
// row if needed.
func (s *RateWindows) SetFloodWait(method string, windowStart, floodWaitUntil int64) error {
	_, err := s.db.Exec(`
		INSERT INTO rate_windows (method, window_start, call_count, flood_wait_until) VALUES (?, ?, 0, ?)
		ON CONFLICT(method, window_start) DO UPDATE SET flood_wait_until = excluded.flood_wait_until
	`, method, windowStart, floodWaitUntil)
	return err
}

// LatestFloodWait returns the latest unexpired flood_wait_until for method,
// or 0 if none.
func (s *RateWindows) LatestFloodWait(method string, nowMs int64) (int64, error) {
	var until sql.NullInt64
	err := s.db.QueryRow(`
		SELECT MAX(flood_wait_until) FROM rate_windows
		WHERE method = ? AND flood_wait_until > ?
	`, method, nowMs).Scan(&until)
	if err != nil || !until.Valid {
		return 0, err
	}
	return until.Int64, nil
}

// ClearExpiredFloodWaits zeroes out flood_wait_until entries that have
// already passed, returning the count cleared.
func (s *RateWindows) ClearExpiredFloodWaits(nowMs int64) (int64, error) {
	res, err := s.db.Exec(`UPDATE rate_windows SET flood_wait_until = 0 WHERE flood_wait_until > 0 AND flood_wait_until <= ?`, nowMs)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PruneOldWindows deletes windows older than now-ageMs (default 1h).
// window_start is stored in unix seconds, so the cutoff is converted from ms.
func (s *RateWindows) PruneOldWindows(nowMs, ageMs int64) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM rate_windows WHERE window_start < ?`, (nowMs-ageMs)/1000)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// BlockedMethods returns the set of methods currently flood-waited.
func (s *RateWindows) BlockedMethods(nowMs int64) ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT method FROM rate_windows WHERE flood_wait_until > ?`, nowMs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// PerMethodCounts reports call_count sums per method over windows with
// window_start >= sinceWindowStart, for getStatus's per-method breakdown.
func (s *RateWindows) PerMethodCounts(sinceWindowStart int64) (map[string]int, error) {
	rows, err := s.db.Query(`
		SELECT method, SUM(call_count) FROM rate_windows WHERE window_start >= ? GROUP BY method
	`, sinceWindowStart)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var m string
		var c int
		if err := rows.Scan(&m, &c); err != nil {
			return nil, err
		}
		out[m] = c
	}
	return out, rows.Err()
}
