package store

import "errors"

// ErrNotFound is returned when a requested entity does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface.
type Store interface {
	// CreateSession stores s unless a session for the same device already
	// exists. The check and the write happen in one transaction, so at most
	// one session is ever created per IEEE address. When a session exists it
	// is returned unchanged with created=false.
	CreateSession(s *Session) (existing *Session, created bool, err error)

	GetSession(ieee string) (*Session, error)
	// DeleteSession returns ErrNotFound if the device has no session.
	DeleteSession(ieee string) error
	ListSessions() ([]*Session, error)

	// Close the store
	Close() error
}
