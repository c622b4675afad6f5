package store

// ColumnInfo describes one introspectable column, per the design note
// requiring the schema to expose description/semantic type/enum values for
// each column to the external SQL command.
type ColumnInfo struct {
	Name        string
	Description string
	SemanticType string // e.g. "bigint-as-string", "unix-ms", "enum", "bool"
	EnumValues  []string
}

// IndexInfo describes one index for introspection purposes.
type IndexInfo struct {
	Name        string
	Description string
}

// TableInfo is one entry of the schema registry.
type TableInfo struct {
	Name        string
	Description string
	PrimaryKey  []string
	Columns     []ColumnInfo
	Indexes     []IndexInfo
	TTL         string // human-readable, "" means no TTL (eternal)
}

// Registry exposes the schema introspection surface the read-only SQL
// command (an external collaborator per the purpose/scope section) needs:
// table name, description, primary key, per-column description/semantic
// type/enum values, index descriptions, and TTL.
var Registry = []TableInfo{
	{
		Name:        "accounts",
		Description: "Logged-in Telegram identities the daemon supervises.",
		PrimaryKey:  []string{"id"},
		Columns: []ColumnInfo{
			{Name: "id", Description: "Stable account identifier", SemanticType: "uuid"},
			{Name: "phone", Description: "E.164-ish phone used to authenticate"},
			{Name: "user_id", Description: "Telegram user id, learned on first connect", SemanticType: "bigint-as-string"},
			{Name: "username", Description: "Telegram @username, if any"},
			{Name: "label", Description: "Operator-chosen display label"},
			{Name: "active", Description: "Whether this is the active account", SemanticType: "bool"},
		},
		TTL: "",
	},
	{
		Name:        "users_cache",
		Description: "Cached Telegram user/peer records.",
		PrimaryKey:  []string{"user_id"},
		Columns: []ColumnInfo{
			{Name: "user_id", SemanticType: "bigint-as-string"},
			{Name: "username", Description: "Case-insensitive unique lookup key"},
			{Name: "phone", Description: "Normalized: digits only"},
			{Name: "access_hash", SemanticType: "bigint"},
			{Name: "is_contact", SemanticType: "bool"},
			{Name: "is_bot", SemanticType: "bool"},
			{Name: "is_premium", SemanticType: "bool"},
			{Name: "fetched_at", SemanticType: "unix-ms"},
			{Name: "raw_json", Description: "Full raw object, bigints coerced to decimal strings"},
		},
		Indexes: []IndexInfo{
			{Name: "idx_users_username", Description: "Case-insensitive username lookup"},
			{Name: "idx_users_phone", Description: "Normalized phone lookup"},
		},
		TTL: "1 week (peer staleness)",
	},
	{
		Name:        "chats_cache",
		Description: "Cached chat/group/channel records.",
		PrimaryKey:  []string{"chat_id"},
		Columns: []ColumnInfo{
			{Name: "chat_id", SemanticType: "bigint-as-string"},
			{Name: "type", SemanticType: "enum", EnumValues: []string{"private", "group", "supergroup", "channel"}},
			{Name: "title"},
			{Name: "username"},
			{Name: "member_count"},
			{Name: "access_hash", SemanticType: "bigint"},
			{Name: "is_creator", SemanticType: "bool"},
			{Name: "is_admin", SemanticType: "bool"},
			{Name: "last_message_id", SemanticType: "bigint"},
			{Name: "last_message_at", SemanticType: "unix-ms"},
			{Name: "fetched_at", SemanticType: "unix-ms"},
		},
		Indexes: []IndexInfo{
			{Name: "idx_chats_username", Description: "Case-insensitive username lookup"},
			{Name: "idx_chats_title", Description: "Case-insensitive title search"},
			{Name: "idx_chats_last_message_at", Description: "Default list ordering"},
		},
		TTL: "1 week (peer staleness)",
	},
	{
		Name:        "messages_cache",
		Description: "Eternal message cache; deletions are soft (is_deleted=1).",
		PrimaryKey:  []string{"chat_id", "message_id"},
		Columns: []ColumnInfo{
			{Name: "chat_id", SemanticType: "bigint-as-string"},
			{Name: "message_id", SemanticType: "bigint"},
			{Name: "from_id", SemanticType: "bigint-as-string"},
			{Name: "reply_to_id", SemanticType: "bigint"},
			{Name: "forward_from_id", SemanticType: "bigint-as-string"},
			{Name: "text"},
			{Name: "message_type", SemanticType: "enum", EnumValues: []string{
				"text", "photo", "video", "document", "sticker", "voice", "audio",
				"video_note", "animation", "poll", "contact", "location", "venue",
				"game", "invoice", "webpage", "dice", "service", "unknown", "media",
			}},
			{Name: "has_media", SemanticType: "bool"},
			{Name: "is_outgoing", SemanticType: "bool"},
			{Name: "is_edited", SemanticType: "bool"},
			{Name: "is_pinned", SemanticType: "bool"},
			{Name: "is_deleted", SemanticType: "bool"},
			{Name: "edit_date", SemanticType: "unix-ms"},
			{Name: "date", SemanticType: "unix-ms"},
			{Name: "fetched_at", SemanticType: "unix-ms"},
			{Name: "raw_json"},
		},
		Indexes: []IndexInfo{
			{Name: "idx_messages_chat_date", Description: "Per-chat reverse-chronological listing"},
		},
		TTL: "none (eternal, soft-deleted only)",
	},
	{
		Name:        "message_search",
		Description: "FTS5 index over messages_cache.text, kept in sync by triggers.",
		PrimaryKey:  []string{"rowid"},
		Columns:     []ColumnInfo{{Name: "text", Description: "Full-text searchable message body"}},
		TTL:         "mirrors messages_cache",
	},
	{
		Name:        "chat_sync_state",
		Description: "Per-chat backfill cursors and priority.",
		PrimaryKey:  []string{"chat_id"},
		Columns: []ColumnInfo{
			{Name: "forward_cursor", Description: "Newest message id observed", SemanticType: "bigint"},
			{Name: "backward_cursor", Description: "Oldest message id observed", SemanticType: "bigint"},
			{Name: "sync_priority", SemanticType: "enum", EnumValues: []string{"0", "1", "2", "3", "4"}},
			{Name: "history_complete", SemanticType: "bool"},
		},
	},
	{
		Name:        "sync_jobs",
		Description: "Priority queue of backfill/catchup jobs.",
		PrimaryKey:  []string{"id"},
		Columns: []ColumnInfo{
			{Name: "job_type", SemanticType: "enum", EnumValues: []string{
				"forward_catchup", "initial_load", "backward_history", "full_sync",
			}},
			{Name: "priority", Description: "0 = highest"},
			{Name: "status", SemanticType: "enum", EnumValues: []string{"pending", "running", "completed", "failed"}},
		},
		TTL: "completed/failed pruned after 24h",
	},
	{
		Name:        "rate_windows",
		Description: "Per-method sliding 60s call-count buckets and flood-wait ledger.",
		PrimaryKey:  []string{"method", "window_start"},
		TTL:         "pruned after 1h",
	},
	{
		Name:        "api_activity",
		Description: "Append-only audit log of API calls.",
		PrimaryKey:  []string{},
		TTL:         "pruned after 7 days",
	},
	{
		Name:        "daemon_status",
		Description: "Key/value heartbeat surface for `daemon status`.",
		PrimaryKey:  []string{"key"},
	},
}

// TableByName looks up a registry entry by table name, for the SQL guard's
// SQL_TABLE_NOT_FOUND classification.
func TableByName(name string) (TableInfo, bool) {
	for _, t := range Registry {
		if t.Name == name {
			return t, true
		}
	}
	return TableInfo{}, false
}
