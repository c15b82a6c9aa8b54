package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestStorage opens a store in a temporary directory, closed at test end.
func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "db"), DefaultOptions())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })

	return s
}

func TestSetGetDelete(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.Set([]byte("k"), []byte("v")))

	got, err := s.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)

	require.NoError(t, s.Delete([]byte("k")))

	got, err = s.Get([]byte("k"))
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestIteratePrefix(t *testing.T) {
	s := newTestStorage(t)

	for _, k := range []string{"a:1", "c:2", "c:1", "c;x", "d:1"} {
		require.NoError(t, s.Set([]byte(k), []byte(k)))
	}

	var keys []string
	err := s.IteratePrefix([]byte("c:"), func(key, _ []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"c:1", "c:2"}, keys)
}

func TestPrefixUpperBound(t *testing.T) {
	require.Equal(t, []byte("c;"), prefixUpperBound([]byte("c:")))
	require.Equal(t, []byte{0x01}, prefixUpperBound([]byte{0x00, 0xff}))
	require.Nil(t, prefixUpperBound([]byte{0xff, 0xff}))
	require.Nil(t, prefixUpperBound(nil))
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")

	s, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, s.Set([]byte("k"), []byte("v")))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Get([]byte("k"))
	require.ErrorIs(t, err, ErrClosed)

	s, err = Open(path, DefaultOptions())
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
}
