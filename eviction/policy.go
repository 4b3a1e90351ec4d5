// Package eviction provides the pressure-driven victim selection used by
// phantomheap. A Policy observes accesses and removals, answers whether the
// heap is under memory pressure, and nominates the next entry to discard.
package eviction

import "errors"

// ErrInvalidThreshold is returned when a policy threshold is outside (0, 1).
var ErrInvalidThreshold = errors.New("eviction: threshold must be between 0 and 1")

// Policy decides which entries to discard under memory pressure.
//
// Implementations must be safe for concurrent use: the heap invokes the
// policy from user-facing operations and from background cleanup.
type Policy interface {
	// RecordAccess marks id as most recently used and updates its known
	// size. Unknown ids are inserted.
	RecordAccess(id uint64, size uint32)

	// RecordRemoval forgets id. Unknown ids are ignored.
	RecordRemoval(id uint64)

	// NextVictim returns the id the policy would evict next, without
	// mutating any state. ok is false when the policy tracks no entries.
	NextVictim() (id uint64, ok bool)

	// ShouldEvict reports whether the used/total ratio has reached the
	// policy threshold. total == 0 is never pressure.
	ShouldEvict(used, total uint64) bool

	// Threshold returns the configured pressure ratio in (0, 1).
	Threshold() float64
}
