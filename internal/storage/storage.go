package storage

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("storage closed")

// Options tunes the Pebble instance.
type Options struct {
	CacheSize    int64 // CacheSize is the block cache size in bytes
	MemTableSize uint64
	ReadOnly     bool // ReadOnly opens the database without write access
}

// DefaultOptions returns options sized for checkpoint files of a few megabytes.
func DefaultOptions() Options {
	return Options{
		CacheSize:    8 << 20,
		MemTableSize: 4 << 20,
	}
}

// Storage is a small key-value store backed by Pebble.
// Every write is synced before it returns: a simulation process may exit right after saving.
type Storage struct {
	db     *pebble.DB // db is the underlying Pebble database
	closed bool
}

// Open opens or creates a store at path.
func Open(path string, opts Options) (*Storage, error) {
	cache := pebble.NewCache(opts.CacheSize)
	defer cache.Unref()

	db, err := pebble.Open(path, &pebble.Options{
		Cache:        cache,
		MemTableSize: opts.MemTableSize,
		ReadOnly:     opts.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s:\n%w", path, err)
	}

	return &Storage{db: db}, nil
}

// Get returns a copy of the value for key, or nil if the key does not exist.
func (s *Storage) Get(key []byte) ([]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}

	value, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	// The value is only valid until closer.Close()
	result := make([]byte, len(value))
	copy(result, value)

	return result, nil
}

// Set stores a key-value pair durably.
func (s *Storage) Set(key, value []byte) error {
	if s.closed {
		return ErrClosed
	}

	return s.db.Set(key, value, pebble.Sync)
}

// Delete removes a key durably. Deleting a missing key is not an error.
func (s *Storage) Delete(key []byte) error {
	if s.closed {
		return ErrClosed
	}

	return s.db.Delete(key, pebble.Sync)
}

// IteratePrefix calls fn for each pair whose key starts with prefix, in key order.
// The slices passed to fn are only valid during the call.
func (s *Storage) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	if s.closed {
		return ErrClosed
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return err
		}

		if err := fn(iter.Key(), value); err != nil {
			return err
		}
	}

	return iter.Error()
}

// prefixUpperBound computes the exclusive upper bound for a prefix scan.
// Returns nil (unbounded) if the prefix is empty or all 0xFF.
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)

	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}

	return nil
}

// Close closes the database. Closing twice is a no-op.
func (s *Storage) Close() error {
	if s.closed {
		return nil
	}

	s.closed = true

	return s.db.Close()
}
