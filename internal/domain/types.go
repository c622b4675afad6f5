package domain

import "time"

// ChatType is a closed tagged enumeration of the chat kinds the cache knows
// about, matching the three-variant MTProto peer union (user | chat | channel)
// with private chats split out from groups for display purposes.
type ChatType string

const (
	ChatPrivate    ChatType = "private"
	ChatGroup      ChatType = "group"
	ChatSupergroup ChatType = "supergroup"
	ChatChannel    ChatType = "channel"
)

// MessageType is the fixed message-shape enumeration produced by
// realtime.ResolveMessageType and persisted alongside every cached message.
type MessageType string

const (
	MsgText      MessageType = "text"
	MsgPhoto     MessageType = "photo"
	MsgVideo     MessageType = "video"
	MsgDocument  MessageType = "document"
	MsgSticker   MessageType = "sticker"
	MsgVoice     MessageType = "voice"
	MsgAudio     MessageType = "audio"
	MsgVideoNote MessageType = "video_note"
	MsgAnimation MessageType = "animation"
	MsgPoll      MessageType = "poll"
	MsgContact   MessageType = "contact"
	MsgLocation  MessageType = "location"
	MsgVenue     MessageType = "venue"
	MsgGame      MessageType = "game"
	MsgInvoice   MessageType = "invoice"
	MsgWebpage   MessageType = "webpage"
	MsgDice      MessageType = "dice"
	MsgService   MessageType = "service"
	MsgUnknown   MessageType = "unknown"
	MsgMedia     MessageType = "media"
)

// JobType is the closed set of sync job kinds the scheduler and sync worker
// understand.
type JobType string

const (
	JobForwardCatchup  JobType = "forward_catchup"
	JobInitialLoad     JobType = "initial_load"
	JobBackwardHistory JobType = "backward_history"
	JobFullSync        JobType = "full_sync"
)

// JobStatus is the linear lifecycle a SyncJob moves through.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// SupervisorState is the connection supervisor's state machine per the
// component design's connecting/connected/error/reconnecting/terminal graph.
type SupervisorState string

const (
	StateConnecting   SupervisorState = "connecting"
	StateConnected    SupervisorState = "connected"
	StateError        SupervisorState = "error"
	StateReconnecting SupervisorState = "reconnecting"
	StateTerminal     SupervisorState = "terminal"
)

// Account is a logged-in Telegram identity the daemon supervises.
type Account struct {
	ID       string
	Phone    string
	UserID   string // learned on first successful connect; empty until then
	Username string
	Label    string
	Active   bool
}

// PlaceholderPhone reports whether an account's Phone is a synthetic
// "user:<id>" placeholder rather than a real phone number. Accounts carrying
// a placeholder lose merge priority to accounts with a real phone, per the
// duplicate-account merge rule.
func (a Account) PlaceholderPhone() bool {
	return len(a.Phone) > 5 && a.Phone[:5] == "user:"
}

// User is a cached Telegram user/peer record.
type User struct {
	UserID     string
	Username   string
	FirstName  string
	LastName   string
	Phone      string // normalized: digits only
	AccessHash int64
	IsContact  bool
	IsBot      bool
	IsPremium  bool
	FetchedAt  int64 // unix ms
	RawJSON    string
}

// Chat is a cached chat/channel/group record.
type Chat struct {
	ChatID        string
	Type          ChatType
	Title         string
	Username      string
	MemberCount   int
	AccessHash    int64
	IsCreator     bool
	IsAdmin       bool
	LastMessageID int64
	LastMessageAt int64
	FetchedAt     int64
}

// Message is a cached message row, keyed by (ChatID, MessageID). Messages are
// eternal: there is no TTL and deletion is always soft.
type Message struct {
	ChatID        string
	MessageID     int64
	FromID        string
	ReplyToID     int64
	ForwardFromID string
	Text          string
	Type          MessageType
	HasMedia      bool
	IsOutgoing    bool
	IsEdited      bool
	IsPinned      bool
	IsDeleted     bool
	EditDate      int64
	Date          int64
	FetchedAt     int64
	RawJSON       string
}

// ChatSyncState tracks per-chat backfill progress and cursors.
type ChatSyncState struct {
	ChatID           string
	ChatType         ChatType
	MemberCount      int
	ForwardCursor    *int64
	BackwardCursor   *int64
	SyncPriority     int
	SyncEnabled      bool
	HistoryComplete  bool
	TotalMessages    int64
	SyncedMessages   int64
	LastForwardSync  int64
	LastBackwardSync int64
}

// SyncJob is one unit of backfill/catchup work.
type SyncJob struct {
	ID              string
	ChatID          string
	JobType         JobType
	Priority        int
	Status          JobStatus
	CursorStart     *int64
	CursorEnd       *int64
	MessagesFetched int64
	ErrorMessage    string
	CreatedAt       int64
	StartedAt       int64
	CompletedAt     int64
}

// RateWindow is one 60s bucket of call accounting for a single method.
type RateWindow struct {
	Method         string
	WindowStart    int64
	CallCount      int
	FloodWaitUntil int64 // 0 means unset
}

// APIActivity is one append-only audit-log row.
type APIActivity struct {
	Timestamp  int64
	Method     string
	Success    bool
	ErrorCode  string
	ResponseMs int64
	Context    string
}

// DaemonStatus is the key/value heartbeat surface for the CLI's status
// command.
type DaemonStatus struct {
	State             string
	StartedAt         int64
	ConnectedAccounts int
	TotalAccounts     int
	MessagesSynced    int64
	PendingJobs       int
	RunningJobs       int
	LastUpdate        int64
}

// NowMs is a small convenience used at call sites that already hold a
// time.Time and want the engine's canonical millisecond-since-epoch
// representation.
func NowMs(t time.Time) int64 { return t.UnixMilli() }
