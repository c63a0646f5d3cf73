package identity

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// BadgerScope is the durable device scope, a small badger database in the
// device's data directory. It is shared by identity and the engagement
// cache; keys are namespaced by the caller.
type BadgerScope struct {
	db *badger.DB
}

// OpenBadgerScope opens (or creates) the device scope at path.
func OpenBadgerScope(path string) (*BadgerScope, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open device scope: %w", err)
	}
	return &BadgerScope{db: db}, nil
}

// Get reads a value. The second return is false when the key is absent.
func (s *BadgerScope) Get(key string) (string, bool, error) {
	var value string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Put writes a value.
func (s *BadgerScope) Put(key, value string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
}

// Close closes the underlying database.
func (s *BadgerScope) Close() error {
	return s.db.Close()
}

// MemoryScope is the in-memory fallback used when durable storage is
// unavailable. Contents vanish with the process.
type MemoryScope struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryScope creates an empty in-memory scope.
func NewMemoryScope() *MemoryScope {
	return &MemoryScope{values: make(map[string]string)}
}

// Get reads a value from memory.
func (s *MemoryScope) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// Put writes a value to memory.
func (s *MemoryScope) Put(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}
