// Package store implements the cache store's typed CRUD services over two
// SQLite databases, per the data model and cache-store component: data.db
// holding only the accounts table, and cache.db holding the rest (cached
// peers/messages, sync state, rate limiting, activity log, daemon status)
// plus the FTS5 message_search index. No teacher file has an equivalent —
// the userbot example has no local relational cache — so the schema and
// query shapes are grounded directly on the data model and component design.
package store

import (
	"database/sql"
	"fmt"

	"telegram-sync/internal/infra/sqlite"
)

const dataSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	phone TEXT NOT NULL,
	user_id TEXT NOT NULL DEFAULT '',
	username TEXT NOT NULL DEFAULT '',
	label TEXT NOT NULL DEFAULT '',
	active INTEGER NOT NULL DEFAULT 0
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_user_id ON accounts(user_id) WHERE user_id <> '';
`

const cacheSchema = `
CREATE TABLE IF NOT EXISTS users_cache (
	user_id TEXT PRIMARY KEY,
	username TEXT NOT NULL DEFAULT '',
	first_name TEXT NOT NULL DEFAULT '',
	last_name TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	access_hash INTEGER NOT NULL DEFAULT 0,
	is_contact INTEGER NOT NULL DEFAULT 0,
	is_bot INTEGER NOT NULL DEFAULT 0,
	is_premium INTEGER NOT NULL DEFAULT 0,
	fetched_at INTEGER NOT NULL DEFAULT 0,
	raw_json TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_users_username ON users_cache(username COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_users_phone ON users_cache(phone);
CREATE INDEX IF NOT EXISTS idx_users_fetched_at ON users_cache(fetched_at);

CREATE TABLE IF NOT EXISTS chats_cache (
	chat_id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	username TEXT NOT NULL DEFAULT '',
	member_count INTEGER NOT NULL DEFAULT 0,
	access_hash INTEGER NOT NULL DEFAULT 0,
	is_creator INTEGER NOT NULL DEFAULT 0,
	is_admin INTEGER NOT NULL DEFAULT 0,
	last_message_id INTEGER NOT NULL DEFAULT 0,
	last_message_at INTEGER NOT NULL DEFAULT 0,
	fetched_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_chats_username ON chats_cache(username COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_chats_title ON chats_cache(title COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_chats_last_message_at ON chats_cache(last_message_at);
CREATE INDEX IF NOT EXISTS idx_chats_fetched_at ON chats_cache(fetched_at);

CREATE TABLE IF NOT EXISTS messages_cache (
	chat_id TEXT NOT NULL,
	message_id INTEGER NOT NULL,
	from_id TEXT NOT NULL DEFAULT '',
	reply_to_id INTEGER NOT NULL DEFAULT 0,
	forward_from_id TEXT NOT NULL DEFAULT '',
	text TEXT NOT NULL DEFAULT '',
	message_type TEXT NOT NULL DEFAULT 'unknown',
	has_media INTEGER NOT NULL DEFAULT 0,
	is_outgoing INTEGER NOT NULL DEFAULT 0,
	is_edited INTEGER NOT NULL DEFAULT 0,
	is_pinned INTEGER NOT NULL DEFAULT 0,
	is_deleted INTEGER NOT NULL DEFAULT 0,
	edit_date INTEGER NOT NULL DEFAULT 0,
	date INTEGER NOT NULL DEFAULT 0,
	fetched_at INTEGER NOT NULL DEFAULT 0,
	raw_json TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (chat_id, message_id)
);
CREATE INDEX IF NOT EXISTS idx_messages_chat_date ON messages_cache(chat_id, date DESC);
CREATE INDEX IF NOT EXISTS idx_messages_from_id ON messages_cache(from_id);

CREATE VIRTUAL TABLE IF NOT EXISTS message_search USING fts5(
	text,
	content='messages_cache',
	content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS messages_cache_ai AFTER INSERT ON messages_cache BEGIN
	INSERT INTO message_search(rowid, text) VALUES (new.rowid, new.text);
END;
CREATE TRIGGER IF NOT EXISTS messages_cache_ad AFTER DELETE ON messages_cache BEGIN
	INSERT INTO message_search(message_search, rowid, text) VALUES ('delete', old.rowid, old.text);
END;
CREATE TRIGGER IF NOT EXISTS messages_cache_au AFTER UPDATE OF text, is_deleted ON messages_cache BEGIN
	INSERT INTO message_search(message_search, rowid, text) VALUES ('delete', old.rowid, old.text);
	INSERT INTO message_search(rowid, text) VALUES (new.rowid, new.text);
END;

CREATE TABLE IF NOT EXISTS chat_sync_state (
	chat_id TEXT PRIMARY KEY,
	chat_type TEXT NOT NULL DEFAULT 'private',
	member_count INTEGER NOT NULL DEFAULT 0,
	forward_cursor INTEGER,
	backward_cursor INTEGER,
	sync_priority INTEGER NOT NULL DEFAULT 2,
	sync_enabled INTEGER NOT NULL DEFAULT 1,
	history_complete INTEGER NOT NULL DEFAULT 0,
	total_messages INTEGER NOT NULL DEFAULT 0,
	synced_messages INTEGER NOT NULL DEFAULT 0,
	last_forward_sync INTEGER NOT NULL DEFAULT 0,
	last_backward_sync INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS entity_sync_state (
	entity TEXT PRIMARY KEY,
	cursor TEXT NOT NULL DEFAULT '',
	updated_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sync_jobs (
	id TEXT PRIMARY KEY,
	chat_id TEXT NOT NULL,
	job_type TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 2,
	status TEXT NOT NULL DEFAULT 'pending',
	cursor_start INTEGER,
	cursor_end INTEGER,
	messages_fetched INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL DEFAULT 0,
	started_at INTEGER NOT NULL DEFAULT 0,
	completed_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sync_jobs_pending_order ON sync_jobs(status, priority, created_at);
CREATE INDEX IF NOT EXISTS idx_sync_jobs_chat_type_status ON sync_jobs(chat_id, job_type, status);

CREATE TABLE IF NOT EXISTS rate_windows (
	method TEXT NOT NULL,
	window_start INTEGER NOT NULL,
	call_count INTEGER NOT NULL DEFAULT 0,
	flood_wait_until INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (method, window_start)
);
CREATE INDEX IF NOT EXISTS idx_rate_windows_start ON rate_windows(window_start);

CREATE TABLE IF NOT EXISTS api_activity (
	timestamp INTEGER NOT NULL,
	method TEXT NOT NULL,
	success INTEGER NOT NULL,
	error_code TEXT NOT NULL DEFAULT '',
	response_ms INTEGER NOT NULL DEFAULT 0,
	context TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_api_activity_timestamp ON api_activity(timestamp);

CREATE TABLE IF NOT EXISTS daemon_status (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// DB groups the two engine databases.
type DB struct {
	Data  *sql.DB
	Cache *sql.DB
}

// Open opens data.db and cache.db at the given paths and applies the schema.
func Open(dataPath, cachePath string) (*DB, error) {
	dataDB, err := sqlite.Open(dataPath)
	if err != nil {
		return nil, fmt.Errorf("open data db: %w", err)
	}
	if _, err := dataDB.Exec(dataSchema); err != nil {
		_ = dataDB.Close()
		return nil, fmt.Errorf("apply data schema: %w", err)
	}

	cacheDB, err := sqlite.Open(cachePath)
	if err != nil {
		_ = dataDB.Close()
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if _, err := cacheDB.Exec(cacheSchema); err != nil {
		_ = dataDB.Close()
		_ = cacheDB.Close()
		return nil, fmt.Errorf("apply cache schema: %w", err)
	}

	return &DB{Data: dataDB, Cache: cacheDB}, nil
}

// Close closes both underlying databases.
func (db *DB) Close() error {
	err1 := db.Data.Close()
	err2 := db.Cache.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
