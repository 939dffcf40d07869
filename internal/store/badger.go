package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"

	"github.com/gosight/formsight/internal/config"
)

// BadgerStore is an embedded store for single-node deployments and tests.
// Entries expire after the configured TTL.
type BadgerStore struct {
	db   *badger.DB
	ttl  time.Duration
	done chan struct{}
}

// zerologBadger adapts the global zerolog logger to badger.Logger
type zerologBadger struct{}

func (zerologBadger) Errorf(format string, args ...interface{}) {
	log.Error().Msgf(format, args...)
}

func (zerologBadger) Warningf(format string, args ...interface{}) {
	log.Warn().Msgf(format, args...)
}

func (zerologBadger) Infof(format string, args ...interface{}) {
	log.Debug().Msgf(format, args...)
}

func (zerologBadger) Debugf(format string, args ...interface{}) {
	log.Trace().Msgf(format, args...)
}

// NewBadgerStore opens the database described by cfg
func NewBadgerStore(cfg config.BadgerConfig, ttl time.Duration) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(zerologBadger{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &BadgerStore{db: db, ttl: ttl, done: make(chan struct{})}
	if !cfg.InMemory {
		go s.gcLoop(5 * time.Minute)
	}
	return s, nil
}

func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &PersistenceError{Op: "get", Key: key, Err: err}
	}

	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get", Key: key, Err: err}
	}
	return out, nil
}

func (s *BadgerStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return &PersistenceError{Op: "set", Key: key, Err: err}
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(s.entry(key, value))
	})
	if err != nil {
		return &PersistenceError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// Update runs fn in a read-write transaction. Badger detects conflicting
// commits and the transaction is retried.
func (s *BadgerStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	for i := 0; i < maxUpdateRetries; i++ {
		if err := ctx.Err(); err != nil {
			return &PersistenceError{Op: "update", Key: key, Err: err}
		}

		err := s.db.Update(func(txn *badger.Txn) error {
			var current []byte
			item, err := txn.Get([]byte(key))
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
			case err != nil:
				return err
			default:
				if current, err = item.ValueCopy(nil); err != nil {
					return err
				}
			}

			next, err := fn(current)
			if err != nil {
				return err
			}
			return txn.SetEntry(s.entry(key, next))
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return &PersistenceError{Op: "update", Key: key, Err: err}
	}
	return &PersistenceError{Op: "update", Key: key, Err: ErrConflict}
}

func (s *BadgerStore) entry(key string, value []byte) *badger.Entry {
	e := badger.NewEntry([]byte(key), value)
	if s.ttl > 0 {
		e = e.WithTTL(s.ttl)
	}
	return e
}

func (s *BadgerStore) gcLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(0.5)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				log.Warn().Err(err).Msg("Badger value log GC failed")
			}
		}
	}
}

// Close stops GC and closes the database
func (s *BadgerStore) Close() error {
	close(s.done)
	return s.db.Close()
}
