package alloc

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/phantomheap/internal/fs"
)

func newTestHybrid(t *testing.T, capacity int64, opts ...HybridOption) *Hybrid {
	t.Helper()

	h, err := NewHybrid(capacity, filepath.Join(t.TempDir(), "overflow.bin"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	return h
}

func TestHybrid_ThresholdValidation(t *testing.T) {
	for _, threshold := range []float64{0.0, 1.0, -0.1, 1.1} {
		_, err := NewHybrid(1024, filepath.Join(t.TempDir(), "f.bin"),
			WithMemoryThreshold(threshold))
		require.ErrorIs(t, err, ErrInvalidThreshold, "threshold %v", threshold)
	}
}

func TestHybrid_TierSplit(t *testing.T) {
	h := newTestHybrid(t, 1000, WithMemoryThreshold(0.5))

	// Empty arena: 0/1000 < 0.5, lands in memory.
	p1, err := h.Allocate(500)
	require.NoError(t, err)
	require.Equal(t, TierMemory, p1.Tier)
	require.Equal(t, uint64(500), h.UsedMemory())
	require.Equal(t, uint64(0), h.UsedFile())

	// 500/1000 is not under the threshold anymore: spills to file.
	p2, err := h.Allocate(500)
	require.NoError(t, err)
	require.Equal(t, TierFile, p2.Tier)
	require.Equal(t, uint64(500), h.UsedMemory())
	require.Equal(t, uint64(500), h.UsedFile())

	require.Equal(t, uint64(1000), h.Used())
	require.Equal(t, uint64(1000), h.Capacity())
}

func TestHybrid_FileTierRoundTrip(t *testing.T) {
	h := newTestHybrid(t, 1000, WithMemoryThreshold(0.5))

	hot := bytes.Repeat([]byte{0x11}, 500)
	cold := bytes.Repeat([]byte{0x22}, 500)

	p1, err := h.Allocate(len(hot))
	require.NoError(t, err)
	require.NoError(t, h.Write(p1, hot))

	p2, err := h.Allocate(len(cold))
	require.NoError(t, err)
	require.Equal(t, TierFile, p2.Tier)
	require.NoError(t, h.Write(p2, cold))

	got, err := h.Read(p1)
	require.NoError(t, err)
	require.Equal(t, hot, got)

	got, err = h.Read(p2)
	require.NoError(t, err)
	require.Equal(t, cold, got)
}

func TestHybrid_FileOffsetsAreMonotonic(t *testing.T) {
	h := newTestHybrid(t, 100, WithMemoryThreshold(0.5))

	// Saturate the arena so everything spills.
	p0, err := h.Allocate(60)
	require.NoError(t, err)
	require.Equal(t, TierMemory, p0.Tier)

	p1, err := h.Allocate(100)
	require.NoError(t, err)
	require.Equal(t, TierFile, p1.Tier)
	require.Equal(t, uint64(0), p1.Addr)

	p2, err := h.Allocate(50)
	require.NoError(t, err)
	require.Equal(t, TierFile, p2.Tier)
	require.Equal(t, uint64(100), p2.Addr)
}

func TestHybrid_ReadOfUnwrittenFileRegion(t *testing.T) {
	h := newTestHybrid(t, 100, WithMemoryThreshold(0.5))

	// Force a file-tier pointer past EOF and never write it.
	_, err := h.Allocate(60)
	require.NoError(t, err)

	p, err := h.Allocate(40)
	require.NoError(t, err)
	require.Equal(t, TierFile, p.Tier)

	got, err := h.Read(p)
	require.NoError(t, err)
	require.Len(t, got, 40)
}

func TestHybrid_Free(t *testing.T) {
	h := newTestHybrid(t, 1000, WithMemoryThreshold(0.5))

	p1, err := h.Allocate(500)
	require.NoError(t, err)
	p2, err := h.Allocate(500)
	require.NoError(t, err)
	require.Equal(t, TierFile, p2.Tier)

	require.NoError(t, h.Free(p2))
	require.Equal(t, uint64(0), h.UsedFile())

	require.NoError(t, h.Free(p1))
	require.Equal(t, uint64(0), h.Used())

	// A freed pointer is unknown to the allocator.
	require.ErrorIs(t, h.Free(p1), ErrInvalidPointer)
	_, err = h.Read(p2)
	require.ErrorIs(t, err, ErrInvalidPointer)
}

func TestHybrid_WriteIOErrorSurfaces(t *testing.T) {
	faulty := fs.NewFaultyFS(nil)

	h, err := NewHybrid(100, filepath.Join(t.TempDir(), "overflow.bin"),
		WithMemoryThreshold(0.5),
		WithFileSystem(faulty),
	)
	require.NoError(t, err)
	defer h.Close()

	_, err = h.Allocate(60)
	require.NoError(t, err)

	p, err := h.Allocate(40)
	require.NoError(t, err)
	require.Equal(t, TierFile, p.Tier)

	wantErr := errors.New("disk on fire")
	faulty.FailWritesAfter(0, wantErr)

	err = h.Write(p, bytes.Repeat([]byte{1}, 40))
	require.ErrorIs(t, err, wantErr)
}

func TestHybrid_CloseRemovesBackingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overflow.bin")

	h, err := NewHybrid(100, path, WithMemoryThreshold(0.5))
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close()) // idempotent

	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))

	_, err = h.Allocate(1)
	require.ErrorIs(t, err, ErrClosed)
}
