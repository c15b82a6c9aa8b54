package checkpoint

import (
	"errors"
	"fmt"
	"strings"

	"SanFermin/internal/storage"
)

// prefixCheckpoint is the key prefix of saved checkpoints.
var prefixCheckpoint = []byte("c:")

// ErrNotFound is returned when a named checkpoint does not exist.
var ErrNotFound = errors.New("checkpoint not found")

// Store saves encoded checkpoints by name.
type Store struct {
	db *storage.Storage // db holds one key per checkpoint
}

// NewStore creates a checkpoint store on top of db.
func NewStore(db *storage.Storage) *Store {
	return &Store{db: db}
}

// Save encodes and stores a state under name, replacing any previous checkpoint.
func (s *Store) Save(name string, st *State) error {
	if name == "" {
		return fmt.Errorf("empty checkpoint name")
	}

	data, err := Encode(st)
	if err != nil {
		return fmt.Errorf("encode checkpoint %s:\n%w", name, err)
	}

	return s.db.Set(checkpointKey(name), data)
}

// Load reads and decodes the checkpoint stored under name.
func (s *Store) Load(name string) (*State, error) {
	data, err := s.db.Get(checkpointKey(name))
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s:\n%w", name, err)
	}

	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	st, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode checkpoint %s:\n%w", name, err)
	}

	return st, nil
}

// Delete removes a checkpoint.
func (s *Store) Delete(name string) error {
	return s.db.Delete(checkpointKey(name))
}

// Entry describes a stored checkpoint.
type Entry struct {
	Name string // Name is the checkpoint name
	Size int    // Size is the encoded size in bytes
}

// List returns the stored checkpoints in name order.
func (s *Store) List() ([]Entry, error) {
	var entries []Entry

	err := s.db.IteratePrefix(prefixCheckpoint, func(key, value []byte) error {
		entries = append(entries, Entry{
			Name: strings.TrimPrefix(string(key), string(prefixCheckpoint)),
			Size: len(value),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list checkpoints:\n%w", err)
	}

	return entries, nil
}

// checkpointKey returns the storage key of a checkpoint name.
func checkpointKey(name string) []byte {
	key := make([]byte, 0, len(prefixCheckpoint)+len(name))
	key = append(key, prefixCheckpoint...)

	return append(key, name...)
}
