// Package store provides the key-value persistence used for session and
// user-history durability.
package store

import (
	"context"
	"errors"
)

// PersistenceStore is the key-value capability the session core needs.
// Get returns (nil, nil) when the key does not exist.
type PersistenceStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// UpdateFunc receives the current value (nil when absent) and returns the
// value to write.
type UpdateFunc func(current []byte) ([]byte, error)

// Updater is implemented by stores that can run a read-modify-write
// atomically against the backing storage.
type Updater interface {
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

// ErrConflict is returned by Update when optimistic retries are exhausted
var ErrConflict = errors.New("store: concurrent update conflict")

// PersistenceError wraps a failure of the backing store
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return "store " + e.Op + " " + e.Key + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// SessionKey is the key of a persisted session state
func SessionKey(sessionID string) string {
	return "session:" + sessionID
}

// UserKey is the key of a persisted user history
func UserKey(userID string) string {
	return "user:" + userID
}
