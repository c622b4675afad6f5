package store

// Store aggregates every cache-store service over one pair of open
// databases, handed to the daemon's composition root and to every
// subsystem that needs cache access (rate limiter, sync worker, realtime
// handlers, scheduler, CLI).
type Store struct {
	DB *DB

	Accounts    *Accounts
	Users       *Users
	Chats       *Chats
	Messages    *Messages
	SyncState   *SyncState
	Jobs        *Jobs
	RateWindows *RateWindows
	Activity    *Activity
	Status      *Status
}

// New opens both databases and wires every service on top of them.
func New(dataPath, cachePath string) (*Store, error) {
	db, err := Open(dataPath, cachePath)
	if err != nil {
		return nil, err
	}
	return &Store{
		DB:          db,
		Accounts:    NewAccounts(db),
		Users:       NewUsers(db),
		Chats:       NewChats(db),
		Messages:    NewMessages(db),
		SyncState:   NewSyncState(db),
		Jobs:        NewJobs(db),
		RateWindows: NewRateWindows(db),
		Activity:    NewActivity(db),
		Status:      NewStatus(db),
	}, nil
}

func (s *Store) Close() error { return s.DB.Close() }
