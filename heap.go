package phantomheap

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/phantomheap/alloc"
	"github.com/hupe1980/phantomheap/eviction"
	"github.com/hupe1980/phantomheap/resource"
)

// memoryTiered is implemented by allocators whose Used spans more than the
// bounded arena. Admission pressure is computed against the arena tier only,
// so an unbounded overflow tier cannot hold the eviction trigger permanently
// over threshold.
type memoryTiered interface {
	UsedMemory() uint64
}

// Heap stores opaque byte payloads off the Go heap, addressed by opaque
// 64-bit handles. Payloads are immutable for their lifetime; a handle dies on
// Remove or eviction and is never reissued.
//
// All methods are safe for concurrent use.
type Heap struct {
	allocator alloc.Allocator
	policy    eviction.Policy

	// mu guards the registry. Put additionally holds it across eviction,
	// allocation and write: admission must be linearizable so the
	// capacity accounting cannot be raced.
	mu     sync.RWMutex
	blocks map[uint64]alloc.Pointer

	nextID atomic.Uint64
	closed atomic.Bool

	logger  *Logger
	metrics MetricsCollector
	rc      *resource.Controller

	janitorStop chan struct{}
	janitorDone chan struct{}
}

// New creates a heap. With no options it uses a 1 GiB arena, LRU eviction at
// DefaultEvictionThreshold and a 60 second background cleanup tick.
func New(opts ...Option) (*Heap, error) {
	o := options{
		memoryCapacity:    DefaultMemoryCapacity,
		evictionThreshold: DefaultEvictionThreshold,
		cleanupInterval:   DefaultCleanupInterval,
		logger:            NoopLogger(),
		metrics:           NoopMetricsCollector{},
	}

	for _, opt := range opts {
		opt(&o)
	}

	if o.allocator == nil {
		var arenaOpts []alloc.ArenaOption
		if o.rc != nil {
			arenaOpts = append(arenaOpts, alloc.WithArenaController(o.rc))
		}
		arena, err := alloc.NewArena(o.memoryCapacity, arenaOpts...)
		if err != nil {
			return nil, err
		}
		o.allocator = arena
	}

	if o.policy == nil {
		policy, err := eviction.NewLRU(o.evictionThreshold)
		if err != nil {
			_ = o.allocator.Close()
			return nil, err
		}
		o.policy = policy
	}

	h := &Heap{
		allocator: o.allocator,
		policy:    o.policy,
		blocks:    make(map[uint64]alloc.Pointer),
		logger:    o.logger,
		metrics:   o.metrics,
		rc:        o.rc,
	}

	if o.cleanupInterval > 0 {
		h.janitorStop = make(chan struct{})
		h.janitorDone = make(chan struct{})
		go h.janitor(o.cleanupInterval)
	}

	h.logger.Info("heap initialized",
		"capacity", h.allocator.Capacity(),
		"eviction_threshold", h.policy.Threshold(),
		"cleanup_interval", o.cleanupInterval,
	)

	return h, nil
}

// Put stores b off-heap and returns the handle for it.
//
// Under memory pressure, least valuable entries (per the policy) are evicted
// first. When allocation fails for capacity, one more entry is evicted and
// the allocation retried once; if that also fails, Put returns
// alloc.ErrOutOfCapacity. Entries evicted during a failed Put stay evicted.
func (h *Heap) Put(b []byte) (uint64, error) {
	start := time.Now()
	id, err := h.put(b)
	h.metrics.RecordPut(time.Since(start), err)
	h.logger.LogPut(id, len(b), err)
	return id, err
}

func (h *Heap) put(b []byte) (uint64, error) {
	if h.closed.Load() {
		return 0, ErrClosed
	}
	if len(b) == 0 {
		return 0, fmt.Errorf("%w: empty payload", ErrInvalidArgument)
	}

	need := uint64(len(b))

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed.Load() {
		return 0, ErrClosed
	}

	capacity := h.allocator.Capacity()

	// A payload no tier can ever hold fails before the policy is touched.
	// Tiered allocators can spill oversized payloads to their overflow
	// tier, so the short-circuit applies to single-tier backends only.
	if _, tiered := h.allocator.(memoryTiered); !tiered && need > capacity {
		return 0, fmt.Errorf("%w: payload of %d bytes exceeds capacity %d",
			alloc.ErrOutOfCapacity, need, capacity)
	}

	// Preemptive eviction: while admitting b would land the arena over
	// the pressure threshold AND the arena is already under pressure,
	// make room. The second gate keeps a large incoming payload from
	// draining a heap that still has headroom.
	threshold := h.policy.Threshold()
	evicted := 0
	for float64(h.pressureUsed()+need) > float64(capacity)*threshold &&
		h.policy.ShouldEvict(h.pressureUsed(), capacity) {
		if !h.evictOneLocked() {
			break
		}
		evicted++
	}

	ptr, err := h.allocator.Allocate(len(b))
	if errors.Is(err, alloc.ErrOutOfCapacity) {
		// One forced eviction, one retry. Everything else surfaces.
		if h.evictOneLocked() {
			evicted++
			ptr, err = h.allocator.Allocate(len(b))
		}
	}
	if evicted > 0 {
		h.metrics.RecordEviction(evicted)
	}
	if err != nil {
		return 0, err
	}

	if err := h.allocator.Write(ptr, b); err != nil {
		_ = h.allocator.Free(ptr)
		return 0, err
	}

	id := h.nextID.Add(1)
	h.blocks[id] = ptr
	h.policy.RecordAccess(id, ptr.Size)

	return id, nil
}

// Get returns a copy of the payload stored under id, or ErrNotFound if the
// handle was never issued, removed, or evicted.
func (h *Heap) Get(id uint64) ([]byte, error) {
	start := time.Now()
	b, err := h.get(id)
	h.metrics.RecordGet(time.Since(start), err)
	h.logger.LogGet(id, len(b), err)
	return b, err
}

func (h *Heap) get(id uint64) ([]byte, error) {
	if h.closed.Load() {
		return nil, ErrClosed
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	ptr, ok := h.blocks[id]
	if !ok {
		return nil, ErrNotFound
	}

	b, err := h.allocator.Read(ptr)
	if err != nil {
		return nil, err
	}

	h.policy.RecordAccess(id, ptr.Size)
	return b, nil
}

// Remove frees the payload stored under id. Removing an absent handle is a
// no-op.
func (h *Heap) Remove(id uint64) error {
	start := time.Now()
	if h.closed.Load() {
		return ErrClosed
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	err := h.removeLocked(id)
	h.metrics.RecordRemove(time.Since(start))
	h.logger.LogRemove(id)
	return err
}

func (h *Heap) removeLocked(id uint64) error {
	ptr, ok := h.blocks[id]
	if !ok {
		return nil
	}

	delete(h.blocks, id)
	err := h.allocator.Free(ptr)
	h.policy.RecordRemoval(id)
	return err
}

// evictOneLocked discards the policy's next victim. A victim unknown to the
// registry is a ghost: its policy entry is purged and the call still counts
// as progress. Returns false only when the policy has nothing left.
//
// Caller must hold mu.
func (h *Heap) evictOneLocked() bool {
	victim, ok := h.policy.NextVictim()
	if !ok {
		return false
	}

	if ptr, live := h.blocks[victim]; live {
		delete(h.blocks, victim)
		if err := h.allocator.Free(ptr); err != nil {
			h.logger.Warn("evicted entry could not be freed",
				"id", victim,
				"error", err,
			)
		}
		h.policy.RecordRemoval(victim)
		h.logger.LogEviction(victim, ptr.Size)
	} else {
		h.policy.RecordRemoval(victim)
	}
	return true
}

// pressureUsed returns the byte count the eviction trigger compares against
// capacity: the arena tier for tiered allocators, total usage otherwise.
func (h *Heap) pressureUsed() uint64 {
	if tiered, ok := h.allocator.(memoryTiered); ok {
		return tiered.UsedMemory()
	}
	return h.allocator.Used()
}

// Tick runs one cleanup pass: while the policy signals pressure and has a
// victim, evict. The pass is bounded by the number of tracked entries, so it
// always terminates.
//
// The background janitor calls Tick on its interval; embedders that disabled
// the janitor can schedule it themselves.
func (h *Heap) Tick() {
	start := time.Now()
	if h.closed.Load() {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed.Load() {
		return
	}

	capacity := h.allocator.Capacity()
	evicted := 0
	for h.policy.ShouldEvict(h.pressureUsed(), capacity) {
		if !h.evictOneLocked() {
			break
		}
		evicted++
	}

	if evicted > 0 {
		h.metrics.RecordEviction(evicted)
	}
	h.metrics.RecordCleanup(evicted, time.Since(start))
	h.logger.LogCleanup(evicted, h.pressureUsed(), capacity)
}

func (h *Heap) janitor(interval time.Duration) {
	defer close(h.janitorDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.janitorStop:
			return
		case <-ticker.C:
			// Skip the tick when all background slots are busy
			// rather than queueing pressure work behind other heaps.
			if !h.rc.TryAcquireBackground() {
				continue
			}
			h.Tick()
			h.rc.ReleaseBackground()
		}
	}
}

// Capacity returns the arena capacity in bytes.
func (h *Heap) Capacity() uint64 {
	return h.allocator.Capacity()
}

// Used returns the live bytes across all tiers.
func (h *Heap) Used() uint64 {
	return h.allocator.Used()
}

// Len returns the number of live handles.
func (h *Heap) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.blocks)
}

// Close stops the janitor, drains it, and closes the allocator. Subsequent
// operations return ErrClosed. Close is idempotent.
func (h *Heap) Close() error {
	if h.closed.Swap(true) {
		return nil
	}

	if h.janitorStop != nil {
		close(h.janitorStop)
		<-h.janitorDone
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.blocks = nil
	err := h.allocator.Close()
	h.logger.LogClose(err)
	return err
}
