package mtproto

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	tdsession "github.com/gotd/td/session"
	bolt "go.etcd.io/bbolt"
)

var sessionBucket = []byte("sessions")

// BoltSessionStorage implements tdsession.Storage over a single shared bbolt
// file keyed by account ID, so every supervised account's auth key lives in
// one place on disk instead of one loose file per account like the teacher's
// single-account session.FileStorage.
type BoltSessionStorage struct {
	db        *bolt.DB
	accountID string
}

var _ tdsession.Storage = (*BoltSessionStorage)(nil)

// OpenSessionDB opens (creating if absent) the bbolt file backing every
// account's session storage and ensures the sessions bucket exists.
func OpenSessionDB(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sessions bucket: %w", err)
	}
	return db, nil
}

// NewBoltSessionStorage returns the tdsession.Storage view scoped to a single
// account's key within the shared bbolt file.
func NewBoltSessionStorage(db *bolt.DB, accountID string) *BoltSessionStorage {
	return &BoltSessionStorage{db: db, accountID: accountID}
}

func (s *BoltSessionStorage) LoadSession(context.Context) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionBucket)
		v := b.Get([]byte(s.accountID))
		if v == nil {
			return tdsession.ErrNotFound
		}
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *BoltSessionStorage) StoreSession(_ context.Context, data []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionBucket)
		return b.Put([]byte(s.accountID), data)
	})
	if err != nil {
		return errors.Wrap(err, "store session")
	}
	return nil
}
