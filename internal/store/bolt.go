package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var bucketSessions = []byte("sessions")

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSessions)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// sessionKey normalizes an IEEE address so "0x00158D00012A3B4C" and
// "00158d00012a3b4c" name the same device.
func sessionKey(ieee string) []byte {
	ieee = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ieee)), "0x")
	return []byte(ieee)
}

func (s *BoltStore) CreateSession(sess *Session) (*Session, bool, error) {
	if sess.IEEEAddress == "" {
		return nil, false, fmt.Errorf("session without ieee address")
	}
	var existing *Session
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketSessions)
		}
		key := sessionKey(sess.IEEEAddress)
		if data := b.Get(key); data != nil {
			existing = &Session{}
			return json.Unmarshal(data, existing)
		}

		if sess.ID == "" {
			sess.ID = uuid.NewString()
		}
		if sess.BoundAt.IsZero() {
			sess.BoundAt = time.Now().UTC()
		}
		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	return sess, true, nil
}

func (s *BoltStore) GetSession(ieee string) (*Session, error) {
	var sess Session
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketSessions)
		}
		data := b.Get(sessionKey(ieee))
		if data == nil {
			return fmt.Errorf("session %s: %w", ieee, ErrNotFound)
		}
		return json.Unmarshal(data, &sess)
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *BoltStore) DeleteSession(ieee string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketSessions)
		}
		key := sessionKey(ieee)
		if b.Get(key) == nil {
			return fmt.Errorf("session %s: %w", ieee, ErrNotFound)
		}
		return b.Delete(key)
	})
}

// ListSessions returns all sessions ordered by normalized IEEE address.
func (s *BoltStore) ListSessions() ([]*Session, error) {
	var sessions []*Session
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		if b == nil {
			return nil // no bucket = no sessions
		}
		sessions = make([]*Session, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var sess Session
			if err := json.Unmarshal(v, &sess); err != nil {
				return fmt.Errorf("decode session %s: %w", k, err)
			}
			sessions = append(sessions, &sess)
			return nil
		})
	})
	return sessions, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
