// Package kvstore is a small key-value layer over BadgerDB used for session
// artifacts and the local vault.
package kvstore

import (
	"errors"
	"fmt"

	kerrors "github.com/PolarWolf314/zkdrive/internal/errors"

	"github.com/dgraph-io/badger/v4"
)

// Store is safe for concurrent use.
type Store struct {
	db *badger.DB
}

// Open opens or creates a store in dir.
func Open(dir string) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("opening store at %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a store that is discarded on Close.
func OpenInMemory() (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("opening in-memory store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns a copy of the value stored at key, or ErrNotFound.
func (s *Store) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		value, err = (&Tx{txn: txn}).Get(key)
		return err
	})
	return value, err
}

func (s *Store) Set(key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Keys lists every key that starts with prefix, in order.
func (s *Store) Keys(prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing keys under %q: %w", prefix, err)
	}
	return keys, nil
}

// DeletePrefix removes every key that starts with prefix.
func (s *Store) DeletePrefix(prefix string) error {
	keys, err := s.Keys(prefix)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Update runs fn in a read-write transaction. Returning an error discards
// every write made through tx. A transaction that raced with another writer
// fails with badger.ErrConflict wrapped in ErrVersionConflict.
func (s *Store) Update(fn func(tx *Tx) error) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return fn(&Tx{txn: txn})
	})
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %v", kerrors.ErrVersionConflict, err)
	}
	return err
}

// Tx is a transaction handle passed to Update.
type Tx struct {
	txn *badger.Txn
}

func (t *Tx) Get(key string) ([]byte, error) {
	item, err := t.txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("key %s: %w", key, kerrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t *Tx) Set(key string, value []byte) error {
	return t.txn.Set([]byte(key), value)
}

func (t *Tx) Delete(key string) error {
	return t.txn.Delete([]byte(key))
}
