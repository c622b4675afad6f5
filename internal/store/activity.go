package store

import "database/sql"

// Activity is the append-only API-activity audit log service.
type Activity struct {
	db *sql.DB
}

func NewActivity(db *DB) *Activity { return &Activity{db: db.Cache} }

func (s *Activity) Record(timestamp int64, method string, success bool, errorCode string, responseMs int64, context string) error {
	_, err := s.db.Exec(`
		INSERT INTO api_activity (timestamp, method, success, error_code, response_ms, context)
		VALUES (?, ?, ?, ?, ?, ?)
	`, timestamp, method, boolToInt(success), errorCode, responseMs, context)
	return err
}

// Prune deletes rows older than ageMs (default 7 days, per the data model's
// APIActivity TTL), returning the number removed.
func (s *Activity) Prune(nowMs, ageMs int64) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM api_activity WHERE timestamp < ?`, nowMs-ageMs)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
