package phantomheap

import "errors"

var (
	// ErrNotFound is returned by Get when the handle was never issued,
	// was removed, or was evicted.
	ErrNotFound = errors.New("phantomheap: not found")
	// ErrClosed is returned when operating on a closed heap.
	ErrClosed = errors.New("phantomheap: heap is closed")
	// ErrInvalidArgument is returned for empty payloads and other caller
	// errors that are not capacity related.
	ErrInvalidArgument = errors.New("phantomheap: invalid argument")
	// ErrSerialization wraps codec failures in the typed facade. The
	// underlying codec error is wrapped alongside it and can be matched
	// with errors.Is or errors.As.
	ErrSerialization = errors.New("phantomheap: serialization failed")
)
