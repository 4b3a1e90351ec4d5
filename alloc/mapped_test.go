package alloc

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestMapped(t *testing.T, capacity int64) *Mapped {
	t.Helper()

	m, err := NewMapped(capacity, filepath.Join(t.TempDir(), "mapped.bin"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	return m
}

func TestMapped_RoundTrip(t *testing.T) {
	m := newTestMapped(t, 4096)

	payload := []byte("file backed payload")
	ptr, err := m.Allocate(len(payload))
	require.NoError(t, err)
	require.Equal(t, TierFile, ptr.Tier)

	require.NoError(t, m.Write(ptr, payload))

	got, err := m.Read(ptr)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestMapped_CapacityBoundary(t *testing.T) {
	m := newTestMapped(t, 1024)

	ptr, err := m.Allocate(1024)
	require.NoError(t, err)
	require.Equal(t, uint64(1024), m.Used())

	_, err = m.Allocate(1)
	require.ErrorIs(t, err, ErrOutOfCapacity)

	require.NoError(t, m.Free(ptr))
	require.Equal(t, uint64(0), m.Used())
}

func TestMapped_FreeZeroesRegion(t *testing.T) {
	m := newTestMapped(t, 1024)

	ptr, err := m.Allocate(64)
	require.NoError(t, err)
	require.NoError(t, m.Write(ptr, bytes.Repeat([]byte{0xFF}, 64)))

	require.NoError(t, m.Free(ptr))

	// The region is still addressable through a stale pointer in a
	// misbehaving caller; it must no longer leak the old payload.
	got, err := m.Read(ptr)
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte{0}, 64), got)
}

func TestMapped_CloseRemovesBackingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapped.bin")

	m, err := NewMapped(1024, path)
	require.NoError(t, err)

	ptr, err := m.Allocate(8)
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close()) // idempotent

	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))

	_, err = m.Allocate(8)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, m.Free(ptr), ErrClosed)
}
