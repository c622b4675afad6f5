// Package sqlite opens the engine's two SQLite databases (data.db and
// cache.db) through the pure-Go modernc.org/sqlite driver — no cgo, matching
// the driver govega and term-llm use in the example corpus for exactly this
// purpose. No teacher file is grounded here: the teacher has no local
// relational cache at all.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens path in WAL mode with the PRAGMAs the multi-writer concurrency
// model in the concurrency section requires (shared access from N account
// supervisors and the daemon's own status writer).
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single *sql.DB is already safe for concurrent use; capping it at one
	// open connection serializes every read and write through that
	// connection, which is how sync workers and the realtime handler share
	// one file.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}
	return db, nil
}

// MustExecAll runs each statement in stmts in order, stopping at the first
// error. store.Open does not use it: it applies each schema script with a
// single Exec.
func MustExecAll(db *sql.DB, stmts []string) error {
	for i, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec migration statement %d: %w", i, err)
		}
	}
	return nil
}
