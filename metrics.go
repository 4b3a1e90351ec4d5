package phantomheap

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus.
type MetricsCollector interface {
	// RecordPut is called after each put operation.
	// duration is the total time taken, err is nil if successful.
	RecordPut(duration time.Duration, err error)

	// RecordGet is called after each get operation. err is ErrNotFound
	// on a miss.
	RecordGet(duration time.Duration, err error)

	// RecordRemove is called after each remove operation.
	RecordRemove(duration time.Duration)

	// RecordEviction is called with the number of victims discarded by an
	// admission or cleanup pass.
	RecordEviction(evicted int)

	// RecordCleanup is called after each cleanup tick.
	RecordCleanup(evicted int, duration time.Duration)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordPut(time.Duration, error)   {}
func (NoopMetricsCollector) RecordGet(time.Duration, error)   {}
func (NoopMetricsCollector) RecordRemove(time.Duration)       {}
func (NoopMetricsCollector) RecordEviction(int)               {}
func (NoopMetricsCollector) RecordCleanup(int, time.Duration) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	PutCount         atomic.Int64
	PutErrors        atomic.Int64
	PutTotalNanos    atomic.Int64
	GetCount         atomic.Int64
	GetMisses        atomic.Int64
	GetTotalNanos    atomic.Int64
	RemoveCount      atomic.Int64
	EvictionCount    atomic.Int64
	CleanupCount     atomic.Int64
	CleanupEvictions atomic.Int64
}

// RecordPut implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPut(duration time.Duration, err error) {
	b.PutCount.Add(1)
	b.PutTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.PutErrors.Add(1)
	}
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(duration time.Duration, err error) {
	b.GetCount.Add(1)
	b.GetTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.GetMisses.Add(1)
	}
}

// RecordRemove implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRemove(time.Duration) {
	b.RemoveCount.Add(1)
}

// RecordEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEviction(evicted int) {
	b.EvictionCount.Add(int64(evicted))
}

// RecordCleanup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCleanup(evicted int, _ time.Duration) {
	b.CleanupCount.Add(1)
	b.CleanupEvictions.Add(int64(evicted))
}
