package alloc

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/phantomheap/internal/conv"
	"github.com/hupe1980/phantomheap/internal/mmap"
)

// Mapped is a bounded allocator over a read-write file-backed memory mapping.
// It trades the Arena's anonymous memory for a named file: the kernel pages
// cold regions out to the file instead of swap, at the cost of page-fault
// latency on first touch.
//
// Placement follows the same linear bump as Arena. Free zeroes the region and
// decrements the live counter; the hole is not reclaimed. The backing file is
// removed on Close.
type Mapped struct {
	mapping  *mmap.Mapping
	data     []byte
	file     *os.File
	path     string
	capacity uint64

	mu     sync.Mutex // serializes the bump cursor and region zeroing
	cursor uint64
	used   atomic.Uint64

	closed atomic.Bool
}

// NewMapped creates a mapped allocator of capacity bytes backed by the file
// at path. An existing file at path is truncated.
func NewMapped(capacity int64, path string) (*Mapped, error) {
	if capacity <= 0 {
		return nil, ErrInvalidSize
	}

	capInt, err := conv.Uint64ToInt(uint64(capacity))
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open backing file: %w", err)
	}
	if err := file.Truncate(capacity); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("size backing file: %w", err)
	}

	mapping, err := mmap.MapFile(file, capInt)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("map backing file: %w", err)
	}
	// Payload access is effectively random.
	_ = mapping.Advise(mmap.AccessRandom)

	return &Mapped{
		mapping:  mapping,
		data:     mapping.Bytes(),
		file:     file,
		path:     path,
		capacity: uint64(capacity),
	}, nil
}

// Allocate reserves size bytes, 8-byte aligned.
func (m *Mapped) Allocate(size int) (Pointer, error) {
	if m.closed.Load() {
		return Pointer{}, ErrClosed
	}
	if size <= 0 {
		return Pointer{}, ErrInvalidSize
	}

	size32, err := conv.IntToUint32(size)
	if err != nil {
		return Pointer{}, fmt.Errorf("%w: %v", ErrInvalidSize, err)
	}

	aligned := (uint64(size32) + Alignment - 1) &^ (Alignment - 1)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cursor+aligned > m.capacity {
		return Pointer{}, fmt.Errorf("%w: need %d bytes, %d of %d in use",
			ErrOutOfCapacity, size, m.cursor, m.capacity)
	}

	addr := m.cursor
	m.cursor += aligned
	m.used.Add(uint64(size32))

	return Pointer{Tier: TierFile, Addr: addr, Size: size32}, nil
}

// Write copies b into the mapped region described by p.
func (m *Mapped) Write(p Pointer, b []byte) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if err := m.check(p); err != nil {
		return err
	}
	if len(b) > int(p.Size) {
		return fmt.Errorf("%w: write of %d bytes into %d-byte region", ErrInvalidSize, len(b), p.Size)
	}

	copy(m.data[p.Addr:p.Addr+uint64(len(b))], b)
	return nil
}

// Read returns a fresh buffer with the p.Size bytes at p.
func (m *Mapped) Read(p Pointer) ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if err := m.check(p); err != nil {
		return nil, err
	}

	out := make([]byte, p.Size)
	copy(out, m.data[p.Addr:p.Addr+uint64(p.Size)])
	return out, nil
}

// Free zeroes the region and drops it from the live counter.
func (m *Mapped) Free(p Pointer) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if err := m.check(p); err != nil {
		return err
	}

	m.mu.Lock()
	clear(m.data[p.Addr : p.Addr+uint64(p.Size)])
	m.mu.Unlock()

	m.used.Add(^uint64(p.Size) + 1)
	return nil
}

func (m *Mapped) check(p Pointer) error {
	if p.Tier != TierFile {
		return fmt.Errorf("%w: tier %s", ErrInvalidPointer, p.Tier)
	}

	m.mu.Lock()
	cursor := m.cursor
	m.mu.Unlock()

	if p.Size == 0 || p.Addr+uint64(p.Size) > cursor {
		return fmt.Errorf("%w: region [%d, %d) was never allocated", ErrInvalidPointer, p.Addr, p.Addr+uint64(p.Size))
	}
	return nil
}

// Capacity returns the mapping capacity in bytes.
func (m *Mapped) Capacity() uint64 {
	return m.capacity
}

// Used returns the live bytes.
func (m *Mapped) Used() uint64 {
	return m.used.Load()
}

// Close unmaps and removes the backing file. It is idempotent.
func (m *Mapped) Close() error {
	if m.closed.Swap(true) {
		return nil
	}

	err := m.mapping.Close()
	m.data = nil

	if closeErr := m.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	_ = os.Remove(m.path)

	return err
}
