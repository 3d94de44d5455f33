package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// Key prefix for stored results, leaving room for future record kinds.
const prefixResult = byte(0x01)

// Store is a persistent result store backed by BadgerDB. It lets expensive
// numeric integrals survive process restarts: a fingerprint computed from
// the same graph state in a later run finds the earlier result.
//
// Example:
//
//	store, err := cache.OpenStore(cache.StoreOptions{DataDir: dir})
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	if v, ok, _ := store.Get(key); ok {
//		return v
//	}
type Store struct {
	db     *badger.DB
	mu     sync.Mutex
	closed bool
}

// StoreOptions configures the persistent store.
type StoreOptions struct {
	// DataDir is the directory for data files. Required unless InMemory.
	DataDir string

	// InMemory runs badger without persistence. Useful for testing.
	InMemory bool

	// SyncWrites forces fsync after each write. Slower but more durable.
	SyncWrites bool

	// Logger receives badger's internal logging. Nil silences it.
	Logger badger.Logger
}

// OpenStore opens (creating if needed) a persistent result store.
func OpenStore(opts StoreOptions) (*Store, error) {
	if opts.DataDir == "" && !opts.InMemory {
		return nil, errors.New("cache: StoreOptions.DataDir is required")
	}
	bopts := badger.DefaultOptions(opts.DataDir).
		WithInMemory(opts.InMemory).
		WithSyncWrites(opts.SyncWrites).
		WithLogger(opts.Logger)
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("cache: opening store: %w", err)
	}
	return &Store{db: db}, nil
}

// Get retrieves a stored result. The second return value reports presence.
func (s *Store) Get(key Key) (float64, bool, error) {
	var value float64
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storeKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("cache: corrupt result record (%d bytes)", len(val))
			}
			value = math.Float64frombits(binary.LittleEndian.Uint64(val))
			found = true
			return nil
		})
	})
	if err != nil {
		return 0, false, err
	}
	return value, found, nil
}

// Put stores a result under the given key, replacing any previous value.
func (s *Store) Put(key Key, value float64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(value))
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(storeKey(key), buf[:])
	})
}

// Delete removes a stored result if present.
func (s *Store) Delete(key Key) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(storeKey(key))
	})
}

// Close releases the underlying database. Safe to call twice.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func storeKey(key Key) []byte {
	out := make([]byte, 1+len(key))
	out[0] = prefixResult
	copy(out[1:], key[:])
	return out
}
