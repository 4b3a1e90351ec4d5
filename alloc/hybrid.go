package alloc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/phantomheap/internal/conv"
	"github.com/hupe1980/phantomheap/internal/fs"
	"github.com/hupe1980/phantomheap/resource"
)

// DefaultMemoryThreshold is the arena fill ratio above which hybrid
// allocations spill to the backing file.
const DefaultMemoryThreshold = 0.5

// Hybrid is a tiered allocator: an Arena for hot data plus an ephemeral
// backing file for overflow. New allocations land in the arena while its
// fill ratio stays below the memory threshold and the allocation fits;
// otherwise they are appended to the file.
//
// The backing file is scratch storage. It carries no header or index, is not
// portable across processes and is removed on Close.
type Hybrid struct {
	arena     *Arena
	threshold float64

	fsys fs.FileSystem
	file fs.File
	path string

	// fileTail is the append cursor; fileUsed tracks live file bytes.
	// Freed file regions are holes and are not reclaimed.
	fileTail atomic.Uint64
	fileUsed atomic.Uint64

	// fileMu serializes file I/O.
	fileMu sync.Mutex

	// tiers records which tier each live pointer belongs to, so Write,
	// Read and Free can dispatch without reparsing the pointer.
	tiersMu sync.RWMutex
	tiers   map[Pointer]Tier

	closed atomic.Bool
	rc     *resource.Controller
}

// HybridOption is a configuration option for Hybrid.
type HybridOption func(*Hybrid)

// WithMemoryThreshold sets the arena fill ratio in (0, 1) above which
// allocations spill to the file tier.
func WithMemoryThreshold(threshold float64) HybridOption {
	return func(h *Hybrid) {
		h.threshold = threshold
	}
}

// WithHybridController wires a resource controller into the allocator: the
// arena reservation is accounted against its memory limit and file-tier
// writes against its IO limit.
func WithHybridController(rc *resource.Controller) HybridOption {
	return func(h *Hybrid) {
		h.rc = rc
	}
}

// WithFileSystem substitutes the file system used for the backing file.
func WithFileSystem(fsys fs.FileSystem) HybridOption {
	return func(h *Hybrid) {
		h.fsys = fsys
	}
}

// NewHybrid creates a hybrid allocator with an arena of memoryCapacity bytes
// and a backing file at path. An existing file at path is truncated.
func NewHybrid(memoryCapacity int64, path string, opts ...HybridOption) (*Hybrid, error) {
	h := &Hybrid{
		threshold: DefaultMemoryThreshold,
		fsys:      fs.Default,
		path:      path,
		tiers:     make(map[Pointer]Tier),
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.threshold <= 0 || h.threshold >= 1 {
		return nil, ErrInvalidThreshold
	}

	var arenaOpts []ArenaOption
	if h.rc != nil {
		arenaOpts = append(arenaOpts, WithArenaController(h.rc))
	}

	arena, err := NewArena(memoryCapacity, arenaOpts...)
	if err != nil {
		return nil, err
	}
	h.arena = arena

	file, err := h.fsys.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		_ = arena.Close()
		return nil, fmt.Errorf("open backing file: %w", err)
	}
	h.file = file

	return h, nil
}

// Allocate places size bytes in the arena while the fill ratio permits,
// otherwise appends to the backing file.
func (h *Hybrid) Allocate(size int) (Pointer, error) {
	if h.closed.Load() {
		return Pointer{}, ErrClosed
	}
	if size <= 0 {
		return Pointer{}, ErrInvalidSize
	}

	if float64(h.arena.Used())/float64(h.arena.Capacity()) < h.threshold {
		ptr, err := h.arena.Allocate(size)
		if err == nil {
			h.track(ptr, TierMemory)
			return ptr, nil
		}
		if !errors.Is(err, ErrOutOfCapacity) {
			return Pointer{}, err
		}
		// Arena full despite being under threshold; fall through to file.
	}

	size32, err := conv.IntToUint32(size)
	if err != nil {
		return Pointer{}, fmt.Errorf("%w: %v", ErrInvalidSize, err)
	}

	size64 := uint64(size32)
	off := h.fileTail.Add(size64) - size64
	h.fileUsed.Add(size64)

	ptr := Pointer{Tier: TierFile, Addr: off, Size: size32}
	h.track(ptr, TierFile)
	return ptr, nil
}

// Write dispatches on the pointer's tier.
func (h *Hybrid) Write(p Pointer, b []byte) error {
	if h.closed.Load() {
		return ErrClosed
	}

	tier, ok := h.lookup(p)
	if !ok {
		return fmt.Errorf("%w: unknown pointer %+v", ErrInvalidPointer, p)
	}
	if len(b) > int(p.Size) {
		return fmt.Errorf("%w: write of %d bytes into %d-byte region", ErrInvalidSize, len(b), p.Size)
	}

	if tier == TierMemory {
		return h.arena.Write(p, b)
	}

	if err := h.rc.AcquireIO(context.Background(), len(b)); err != nil {
		return fmt.Errorf("io limit: %w", err)
	}

	h.fileMu.Lock()
	defer h.fileMu.Unlock()

	if _, err := h.file.WriteAt(b, int64(p.Addr)); err != nil {
		return fmt.Errorf("write file tier at offset %d: %w", p.Addr, err)
	}
	return nil
}

// Read dispatches on the pointer's tier and returns a fresh buffer of
// exactly p.Size bytes.
func (h *Hybrid) Read(p Pointer) ([]byte, error) {
	if h.closed.Load() {
		return nil, ErrClosed
	}

	tier, ok := h.lookup(p)
	if !ok {
		return nil, fmt.Errorf("%w: unknown pointer %+v", ErrInvalidPointer, p)
	}

	if tier == TierMemory {
		return h.arena.Read(p)
	}

	out := make([]byte, p.Size)

	h.fileMu.Lock()
	defer h.fileMu.Unlock()

	if _, err := h.file.ReadAt(out, int64(p.Addr)); err != nil {
		// A region allocated but never written may extend past EOF.
		// Its contents are unspecified, so a short read is not a failure.
		if !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read file tier at offset %d: %w", p.Addr, err)
		}
	}
	return out, nil
}

// Free releases the region. File-tier holes are not compacted.
func (h *Hybrid) Free(p Pointer) error {
	if h.closed.Load() {
		return ErrClosed
	}

	tier, ok := h.untrack(p)
	if !ok {
		return fmt.Errorf("%w: unknown pointer %+v", ErrInvalidPointer, p)
	}

	if tier == TierMemory {
		return h.arena.Free(p)
	}

	h.fileUsed.Add(^uint64(p.Size) + 1)
	return nil
}

// Capacity returns the arena capacity. The file tier is semantically
// unbounded for admission purposes.
func (h *Hybrid) Capacity() uint64 {
	return h.arena.Capacity()
}

// Used returns the live bytes across both tiers.
func (h *Hybrid) Used() uint64 {
	return h.arena.Used() + h.fileUsed.Load()
}

// UsedMemory returns the live arena bytes. Admission pressure is computed
// against this counter, not Used, so the unbounded file tier cannot keep the
// eviction trigger permanently over threshold.
func (h *Hybrid) UsedMemory() uint64 {
	return h.arena.Used()
}

// UsedFile returns the live file-tier bytes.
func (h *Hybrid) UsedFile() uint64 {
	return h.fileUsed.Load()
}

// MemoryThreshold returns the configured arena fill ratio.
func (h *Hybrid) MemoryThreshold() float64 {
	return h.threshold
}

// Close releases the arena and removes the backing file. It is idempotent.
// Removal failure does not fail Close; the scratch file is left to the OS.
func (h *Hybrid) Close() error {
	if h.closed.Swap(true) {
		return nil
	}

	err := h.arena.Close()

	h.fileMu.Lock()
	if closeErr := h.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	h.fileMu.Unlock()

	_ = h.fsys.Remove(h.path)

	h.tiersMu.Lock()
	h.tiers = nil
	h.tiersMu.Unlock()

	return err
}

func (h *Hybrid) track(p Pointer, t Tier) {
	h.tiersMu.Lock()
	h.tiers[p] = t
	h.tiersMu.Unlock()
}

func (h *Hybrid) lookup(p Pointer) (Tier, bool) {
	h.tiersMu.RLock()
	t, ok := h.tiers[p]
	h.tiersMu.RUnlock()
	return t, ok
}

func (h *Hybrid) untrack(p Pointer) (Tier, bool) {
	h.tiersMu.Lock()
	t, ok := h.tiers[p]
	if ok {
		delete(h.tiers, p)
	}
	h.tiersMu.Unlock()
	return t, ok
}
