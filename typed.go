package phantomheap

import (
	"fmt"

	"github.com/hupe1980/phantomheap/codec"
	"github.com/hupe1980/phantomheap/compress"
)

type typedOptions struct {
	codec       codec.Codec
	compression compress.Type
	compressed  bool
}

// TypedOption configures a typed facade.
type TypedOption func(*typedOptions)

// WithCodec configures the codec used to convert values to payload bytes.
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) TypedOption {
	return func(o *typedOptions) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithCompression wraps encoded payloads in self-describing compressed
// blocks. Worth it for large compressible values, especially on heaps whose
// allocator spills to the file tier.
func WithCompression(t compress.Type) TypedOption {
	return func(o *typedOptions) {
		o.compression = t
		o.compressed = true
	}
}

// Typed stores Go values on a Heap by running them through a codec (and
// optionally a compressor). The zero identity rules of the underlying heap
// carry over: handles are opaque, monotonic and never reused.
//
// Several Typed facades may share one Heap, but a handle only decodes
// through a facade configured like the one that stored it.
type Typed[T any] struct {
	heap *Heap
	opts typedOptions
}

// NewTyped wraps heap with a typed facade for values of type T.
func NewTyped[T any](heap *Heap, opts ...TypedOption) *Typed[T] {
	o := typedOptions{
		codec: codec.Default,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Typed[T]{heap: heap, opts: o}
}

// Put encodes v and stores it off-heap. Codec failures surface as
// ErrSerialization and nothing is allocated.
func (t *Typed[T]) Put(v T) (uint64, error) {
	data, err := t.opts.codec.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSerialization, err)
	}

	if t.opts.compressed {
		data, err = compress.Encode(t.opts.compression, data)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrSerialization, err)
		}
	}

	return t.heap.Put(data)
}

// Get retrieves and decodes the value stored under id.
func (t *Typed[T]) Get(id uint64) (T, error) {
	var v T

	data, err := t.heap.Get(id)
	if err != nil {
		return v, err
	}

	if t.opts.compressed {
		data, err = compress.Decode(data)
		if err != nil {
			return v, fmt.Errorf("%w: %w", ErrSerialization, err)
		}
	}

	if err := t.opts.codec.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return v, nil
}

// Remove frees the value stored under id.
func (t *Typed[T]) Remove(id uint64) error {
	return t.heap.Remove(id)
}
