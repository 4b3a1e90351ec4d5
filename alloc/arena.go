package alloc

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/phantomheap/internal/conv"
	"github.com/hupe1980/phantomheap/internal/mmap"
	"github.com/hupe1980/phantomheap/resource"
)

// Alignment is the byte alignment of every arena allocation.
const Alignment = 8

// Arena is a bounded off-heap allocator backed by a single anonymous memory
// mapping. Fresh regions are laid down linearly; freed regions go onto a
// segregated free list keyed by their aligned size class and are reused by
// later allocations of the same class. Cross-class holes are not coalesced;
// the heap layer keeps fragmentation in check through eviction pressure.
type Arena struct {
	mapping  *mmap.Mapping
	data     []byte
	capacity uint64

	mu sync.Mutex
	// cursor is the linear bump offset; it only grows.
	cursor uint64
	// freeList holds reusable offsets per aligned size class, most
	// recently freed first.
	freeList map[uint32][]uint64

	// used tracks live bytes: up on Allocate, down on Free.
	used atomic.Uint64

	closed atomic.Bool
	rc     *resource.Controller
}

// ArenaOption is a configuration option for Arena.
type ArenaOption func(*Arena)

// WithArenaController registers the arena's mapping with a resource
// controller. The full capacity is reserved at construction and released on
// Close; construction fails with ErrOutOfCapacity if the controller denies
// the reservation.
func WithArenaController(rc *resource.Controller) ArenaOption {
	return func(a *Arena) {
		a.rc = rc
	}
}

// NewArena creates an arena of the given capacity in bytes.
func NewArena(capacity int64, opts ...ArenaOption) (*Arena, error) {
	if capacity <= 0 {
		return nil, ErrInvalidSize
	}

	capInt, err := conv.Uint64ToInt(uint64(capacity))
	if err != nil {
		return nil, err
	}

	a := &Arena{
		capacity: uint64(capacity),
		freeList: make(map[uint32][]uint64),
	}

	for _, opt := range opts {
		opt(a)
	}

	if !a.rc.TryAcquireMemory(capacity) {
		return nil, fmt.Errorf("%w: resource controller denied %d bytes", ErrOutOfCapacity, capacity)
	}

	mapping, err := mmap.MapAnon(capInt)
	if err != nil {
		a.rc.ReleaseMemory(capacity)
		return nil, fmt.Errorf("map anonymous memory: %w", err)
	}

	a.mapping = mapping
	a.data = mapping.Bytes()

	return a, nil
}

// sizeClass rounds size up to its 8-byte aligned class.
func sizeClass(size uint32) uint32 {
	return (size + Alignment - 1) &^ (Alignment - 1)
}

// Allocate reserves size bytes. The region is 8-byte aligned. A free region
// of the same size class is reused when available; otherwise the allocation
// bumps the linear cursor. Fails with ErrOutOfCapacity before any state
// change if the bump would cross capacity.
func (a *Arena) Allocate(size int) (Pointer, error) {
	if a.closed.Load() {
		return Pointer{}, ErrClosed
	}
	if size <= 0 {
		return Pointer{}, ErrInvalidSize
	}

	size32, err := conv.IntToUint32(size)
	if err != nil {
		return Pointer{}, fmt.Errorf("%w: %v", ErrInvalidSize, err)
	}

	class := sizeClass(size32)

	a.mu.Lock()
	defer a.mu.Unlock()

	var addr uint64
	if free := a.freeList[class]; len(free) > 0 {
		addr = free[len(free)-1]
		a.freeList[class] = free[:len(free)-1]
	} else {
		if a.cursor+uint64(class) > a.capacity {
			return Pointer{}, fmt.Errorf("%w: need %d bytes, %d of %d laid down",
				ErrOutOfCapacity, size, a.cursor, a.capacity)
		}
		addr = a.cursor
		a.cursor += uint64(class)
	}

	a.used.Add(uint64(size32))
	return Pointer{Tier: TierMemory, Addr: addr, Size: size32}, nil
}

// Write copies b into the region described by p.
func (a *Arena) Write(p Pointer, b []byte) error {
	if a.closed.Load() {
		return ErrClosed
	}
	if err := a.check(p); err != nil {
		return err
	}
	if len(b) > int(p.Size) {
		return fmt.Errorf("%w: write of %d bytes into %d-byte region", ErrInvalidSize, len(b), p.Size)
	}

	copy(a.data[p.Addr:p.Addr+uint64(len(b))], b)
	return nil
}

// Read returns a fresh buffer with the p.Size bytes at p.
func (a *Arena) Read(p Pointer) ([]byte, error) {
	if a.closed.Load() {
		return nil, ErrClosed
	}
	if err := a.check(p); err != nil {
		return nil, err
	}

	out := make([]byte, p.Size)
	copy(out, a.data[p.Addr:p.Addr+uint64(p.Size)])
	return out, nil
}

// Free releases the region for reuse by allocations of the same size class.
// Double-free is a caller error and corrupts the free list.
func (a *Arena) Free(p Pointer) error {
	if a.closed.Load() {
		return ErrClosed
	}
	if err := a.check(p); err != nil {
		return err
	}

	class := sizeClass(p.Size)

	a.mu.Lock()
	a.freeList[class] = append(a.freeList[class], p.Addr)
	a.mu.Unlock()

	a.used.Add(^uint64(p.Size) + 1)
	return nil
}

// check validates that p could have been handed out by this arena.
func (a *Arena) check(p Pointer) error {
	if p.Tier != TierMemory {
		return fmt.Errorf("%w: tier %s", ErrInvalidPointer, p.Tier)
	}

	a.mu.Lock()
	cursor := a.cursor
	a.mu.Unlock()

	if p.Size == 0 || p.Addr+uint64(sizeClass(p.Size)) > cursor {
		return fmt.Errorf("%w: region [%d, %d) was never allocated", ErrInvalidPointer, p.Addr, p.Addr+uint64(p.Size))
	}
	return nil
}

// Capacity returns the arena capacity in bytes.
func (a *Arena) Capacity() uint64 {
	return a.capacity
}

// Used returns the live bytes.
func (a *Arena) Used() uint64 {
	return a.used.Load()
}

// Close unmaps the backing region. It is idempotent.
func (a *Arena) Close() error {
	if a.closed.Swap(true) {
		return nil
	}

	err := a.mapping.Close()

	a.mu.Lock()
	a.data = nil
	a.freeList = nil
	a.mu.Unlock()

	a.rc.ReleaseMemory(int64(a.capacity))
	return err
}
