package store

import (
	"database/sql"
	"errors"
	"fmt"

	"telegram-sync/internal/domain"
)

// Jobs is the raw CRUD surface over cache.db's sync_jobs table. Priority
// ordering and the duplicate-pending guard live one layer up in
// internal/scheduler, which is the policy owner; this type only knows how to
// read and write rows.
type Jobs struct {
	db *sql.DB
}

func NewJobs(db *DB) *Jobs { return &Jobs{db: db.Cache} }

const jobSelectCols = `SELECT id, chat_id, job_type, priority, status, cursor_start, cursor_end, messages_fetched, error_message, created_at, started_at, completed_at FROM sync_jobs `

func (s *Jobs) Insert(j domain.SyncJob) error {
	_, err := s.db.Exec(`
		INSERT INTO sync_jobs (id, chat_id, job_type, priority, status, cursor_start, cursor_end, messages_fetched, error_message, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.ChatID, string(j.JobType), j.Priority, string(j.Status), j.CursorStart, j.CursorEnd,
		j.MessagesFetched, j.ErrorMessage, j.CreatedAt, j.StartedAt, j.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// FindPending returns a pending job for (chatID, jobType) if one exists,
// used by the scheduler's duplicate-pending guard.
func (s *Jobs) FindPending(chatID string, jobType domain.JobType) (*domain.SyncJob, error) {
	row := s.db.QueryRow(jobSelectCols+`WHERE chat_id = ? AND job_type = ? AND status = 'pending' LIMIT 1`, chatID, string(jobType))
	return scanJob(row)
}

// NextPending returns the single pending job with lowest (priority,
// created_at), per the scheduler's priority-ordering invariant.
func (s *Jobs) NextPending() (*domain.SyncJob, error) {
	row := s.db.QueryRow(jobSelectCols + `WHERE status = 'pending' ORDER BY priority ASC, created_at ASC LIMIT 1`)
	return scanJob(row)
}

// TransitionToRunning atomically moves a pending job to running and stamps
// startedAt, returning false if another caller already claimed it (status
// was no longer 'pending').
func (s *Jobs) TransitionToRunning(id string, startedAt int64) (bool, error) {
	res, err := s.db.Exec(`UPDATE sync_jobs SET status = 'running', started_at = ? WHERE id = ? AND status = 'pending'`, startedAt, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Jobs) Complete(id string, messagesFetched, completedAt int64) error {
	_, err := s.db.Exec(`UPDATE sync_jobs SET status = 'completed', messages_fetched = ?, completed_at = ? WHERE id = ?`,
		messagesFetched, completedAt, id)
	return err
}

func (s *Jobs) Fail(id, errMsg string, completedAt int64) error {
	_, err := s.db.Exec(`UPDATE sync_jobs SET status = 'failed', error_message = ?, completed_at = ? WHERE id = ?`,
		errMsg, completedAt, id)
	return err
}

// ReleaseToPending returns a running job back to pending without marking it
// failed, used when a job is benignly rate-limited and must be retried on
// its next pickup with the same cursors. This is a deliberate deviation from
// the literal "job remains running" flood-wait behavior, documented as Open
// Question decision (c) in DESIGN.md.
func (s *Jobs) ReleaseToPending(id string) error {
	_, err := s.db.Exec(`UPDATE sync_jobs SET status = 'pending' WHERE id = ?`, id)
	return err
}

// CancelPending deletes pending jobs for (chatID, jobType), used when
// enqueuing a full_sync supersedes a standalone backward_history job per the
// decided Open Question (b).
func (s *Jobs) CancelPending(chatID string, jobType domain.JobType) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM sync_jobs WHERE chat_id = ? AND job_type = ? AND status = 'pending'`, chatID, string(jobType))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountByStatus reports how many jobs are in each of pending/running, for
// the scheduler's getStatus and the daemon heartbeat.
func (s *Jobs) CountByStatus() (pending, running int, err error) {
	err = s.db.QueryRow(`SELECT COUNT(*) FROM sync_jobs WHERE status = 'pending'`).Scan(&pending)
	if err != nil {
		return 0, 0, err
	}
	err = s.db.QueryRow(`SELECT COUNT(*) FROM sync_jobs WHERE status = 'running'`).Scan(&running)
	return pending, running, err
}

// Cleanup deletes completed/failed jobs whose completed_at predates
// now-maxAgeMs, returning the count removed.
func (s *Jobs) Cleanup(nowMs, maxAgeMs int64) (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM sync_jobs
		WHERE status IN ('completed', 'failed') AND completed_at > 0 AND completed_at < ?
	`, nowMs-maxAgeMs)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanJob(row *sql.Row) (*domain.SyncJob, error) {
	var j domain.SyncJob
	var jobType, status string
	var cursorStart, cursorEnd sql.NullInt64
	err := row.Scan(&j.ID, &j.ChatID, &jobType, &j.Priority, &status, &cursorStart, &cursorEnd,
		&j.MessagesFetched, &j.ErrorMessage, &j.CreatedAt, &j.StartedAt, &j.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	j.JobType = domain.JobType(jobType)
	j.Status = domain.JobStatus(status)
	if cursorStart.Valid {
		v := cursorStart.Int64
		j.CursorStart = &v
	}
	if cursorEnd.Valid {
		v := cursorEnd.Int64
		j.CursorEnd = &v
	}
	return &j, nil
}
