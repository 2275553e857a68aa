package session

import (
	"errors"
	"fmt"
	"sync"

	kerrors "github.com/PolarWolf314/zkdrive/internal/errors"
	"github.com/PolarWolf314/zkdrive/internal/kvstore"
)

// Store persists session artifacts between runs. Get returns ErrNotFound for
// a missing key. Clear removes everything the session ever stored.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
	Clear() error
}

// MemoryStore keeps artifacts in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (s *MemoryStore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", key, kerrors.ErrNotFound)
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string][]byte)
	return nil
}

const badgerPrefix = "session/"

// BadgerStore keeps artifacts under a fixed prefix of a kvstore.
type BadgerStore struct {
	kv *kvstore.Store
}

func NewBadgerStore(kv *kvstore.Store) *BadgerStore {
	return &BadgerStore{kv: kv}
}

func (s *BadgerStore) Get(key string) ([]byte, error) {
	v, err := s.kv.Get(badgerPrefix + key)
	if errors.Is(err, kerrors.ErrNotFound) {
		return nil, fmt.Errorf("session %s: %w", key, kerrors.ErrNotFound)
	}
	return v, err
}

func (s *BadgerStore) Set(key string, value []byte) error {
	return s.kv.Set(badgerPrefix+key, value)
}

func (s *BadgerStore) Delete(key string) error {
	return s.kv.Delete(badgerPrefix + key)
}

func (s *BadgerStore) Clear() error {
	return s.kv.DeletePrefix(badgerPrefix)
}
