package eviction

import (
	"math"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// LRU evicts the least recently used entry first.
//
// Entries live in an access-ordered structure: RecordAccess re-inserts the id
// at the most-recent end, NextVictim peeks at the oldest without removing it.
// Ties are broken by strict insertion order.
type LRU struct {
	mu        sync.RWMutex
	entries   *simplelru.LRU[uint64, uint32] // id -> byte size, access ordered
	threshold float64
}

var _ Policy = (*LRU)(nil)

// NewLRU creates an LRU policy with the given pressure threshold in (0, 1).
func NewLRU(threshold float64) (*LRU, error) {
	if threshold <= 0 || threshold >= 1 {
		return nil, ErrInvalidThreshold
	}

	// The list is bounded by the heap's admission control, never by the
	// policy itself, so the internal capacity is effectively unlimited.
	entries, err := simplelru.NewLRU[uint64, uint32](math.MaxInt32, nil)
	if err != nil {
		return nil, err
	}

	return &LRU{
		entries:   entries,
		threshold: threshold,
	}, nil
}

// RecordAccess re-inserts id as the most recently used entry.
func (l *LRU) RecordAccess(id uint64, size uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries.Add(id, size)
}

// RecordRemoval forgets id.
func (l *LRU) RecordRemoval(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries.Remove(id)
}

// NextVictim peeks at the least recently used id.
func (l *LRU) NextVictim() (uint64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	id, _, ok := l.entries.GetOldest()
	return id, ok
}

// ShouldEvict reports pressure once used/total reaches the threshold.
func (l *LRU) ShouldEvict(used, total uint64) bool {
	if total == 0 {
		return false
	}
	return float64(used)/float64(total) >= l.threshold
}

// Threshold returns the configured pressure ratio.
func (l *LRU) Threshold() float64 {
	return l.threshold
}

// Len returns the number of tracked entries.
func (l *LRU) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries.Len()
}

// Size returns the known byte size of id.
func (l *LRU) Size(id uint64) (uint32, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries.Peek(id)
}
