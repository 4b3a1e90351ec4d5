package phantomheap

import (
	"time"

	"github.com/hupe1980/phantomheap/alloc"
	"github.com/hupe1980/phantomheap/eviction"
	"github.com/hupe1980/phantomheap/resource"
)

const (
	// DefaultMemoryCapacity is the default arena size (1 GiB).
	DefaultMemoryCapacity = 1 << 30
	// DefaultEvictionThreshold is the used/capacity ratio at which the
	// default policy signals pressure.
	DefaultEvictionThreshold = 0.75
	// DefaultCleanupInterval is the cadence of the background cleanup
	// tick. Zero disables the background janitor.
	DefaultCleanupInterval = 60 * time.Second
)

type options struct {
	memoryCapacity    int64
	evictionThreshold float64
	allocator         alloc.Allocator
	policy            eviction.Policy
	cleanupInterval   time.Duration
	logger            *Logger
	metrics           MetricsCollector
	rc                *resource.Controller
}

// Option configures heap construction.
type Option func(*options)

// WithMemoryCapacity sets the arena size in bytes for the default allocator.
// Ignored when WithAllocator is used.
func WithMemoryCapacity(capacity int64) Option {
	return func(o *options) {
		o.memoryCapacity = capacity
	}
}

// WithAllocator substitutes the allocator backend. The heap takes ownership
// and closes it on Close.
func WithAllocator(a alloc.Allocator) Option {
	return func(o *options) {
		o.allocator = a
	}
}

// WithEvictionThreshold sets the used/capacity ratio in (0, 1) at which the
// default LRU policy signals pressure. Ignored when WithPolicy is used.
func WithEvictionThreshold(threshold float64) Option {
	return func(o *options) {
		o.evictionThreshold = threshold
	}
}

// WithPolicy substitutes the eviction policy. Defaults to LRU at
// DefaultEvictionThreshold.
func WithPolicy(p eviction.Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithCleanupInterval sets the cadence of the background cleanup tick.
// Zero disables the janitor; embedders can drive Tick themselves.
func WithCleanupInterval(interval time.Duration) Option {
	return func(o *options) {
		o.cleanupInterval = interval
	}
}

// WithLogger sets the structured logger for operation tracing.
// If nil is passed, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector sets the metrics collector.
func WithMetricsCollector(m MetricsCollector) Option {
	return func(o *options) {
		if m == nil {
			m = NoopMetricsCollector{}
		}
		o.metrics = m
	}
}

// WithResourceController shares a resource controller with the heap: the
// default allocator registers its arena against the controller's memory
// limit, and the janitor competes for its background worker slots.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}
