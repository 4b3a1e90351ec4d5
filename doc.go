// Package phantomheap provides an embeddable off-heap object cache for Go.
//
// Payloads live outside the managed heap, in an anonymous memory mapping the
// garbage collector never scans, optionally spilling to an ephemeral backing
// file under memory pressure. Entries are addressed by opaque 64-bit handles
// and evicted automatically by a pluggable access-order policy (LRU by
// default) once the arena crosses its pressure threshold.
//
// # Quick Start
//
//	heap, _ := phantomheap.New(phantomheap.WithMemoryCapacity(256 << 20))
//	defer heap.Close()
//
//	id, _ := heap.Put(payload)     // park bytes off-heap
//	b, _ := heap.Get(id)           // read them back
//	_ = heap.Remove(id)            // free explicitly
//
// # Tiered storage
//
// The hybrid allocator keeps hot data in the arena and appends overflow to a
// scratch file once the arena fill ratio crosses its memory threshold:
//
//	hybrid, _ := alloc.NewHybrid(1<<30, filepath.Join(os.TempDir(), "heap.bin"),
//		alloc.WithMemoryThreshold(0.5))
//	heap, _ := phantomheap.New(phantomheap.WithAllocator(hybrid))
//
// The scratch file carries no format and is deleted on Close; durability is
// explicitly out of scope.
//
// # Typed values
//
// The byte core never inspects payloads. To store Go values, wrap the heap
// in a typed facade, which runs values through a codec and an optional
// compressor:
//
//	users := phantomheap.NewTyped[User](heap,
//		phantomheap.WithCodec(codec.GoJSON{}),
//		phantomheap.WithCompression(compress.TypeLZ4))
//	id, _ := users.Put(u)
//	u2, _ := users.Get(id)
//
// # Cleanup
//
// A background janitor drains pressure on a configurable interval. Set the
// interval to zero and call Tick yourself when you want eviction on your own
// schedule (or deterministic tests without fake clocks).
package phantomheap
