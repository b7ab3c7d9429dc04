// Package ring implements the single-producer/single-consumer typed
// ring buffer that backs every stream edge between two blocks.
//
// Capacity is always rounded up to a power of two so that index
// wraparound reduces to a mask instead of a modulo. The writer and
// reader each claim a contiguous window of the buffer, write or read
// into it directly, then commit how much of the window they actually
// used; committing advances the shared position for the peer to
// observe. The buffer itself wakes no one: a waiting peer is woken by
// its block task's doorbell (internal/blockrun).
package ring

import (
	"sync/atomic"
)

// Buffer is a fixed-capacity circular buffer of T, safe for exactly
// one writer goroutine and one reader goroutine operating
// concurrently. Any other usage pattern (two writers, two readers)
// is undefined.
type Buffer[T any] struct {
	data []T
	mask uint64

	writePos atomic.Uint64
	readPos  atomic.Uint64

	closed atomic.Bool // writer called CloseWrite: no more items will arrive
}

// New creates a buffer whose usable capacity is the next power of two
// at or above capacity (minimum 1; capacity < 1 is treated as 1). The
// mask logic's off-by-one reserve is avoided by never letting write ==
// read+capacity be ambiguous: this implementation tracks unbounded
// monotonic positions rather than wrapping eagerly, so no slot is ever
// reserved as a sentinel.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	cap := nextPowerOfTwo(capacity)
	return &Buffer[T]{
		data: make([]T, cap),
		mask: uint64(cap - 1),
	}
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Capacity returns the number of slots in the underlying buffer.
func (b *Buffer[T]) Capacity() int {
	return int(b.mask) + 1
}

// Len returns the number of items currently available to read.
func (b *Buffer[T]) Len() int {
	return int(b.writePos.Load() - b.readPos.Load())
}

// Free returns the number of slots currently available to write.
func (b *Buffer[T]) Free() int {
	return b.Capacity() - b.Len()
}

// WriteWindow returns a slice view of the next contiguous run of
// free slots the writer may fill directly, without copying. The
// returned slice may be shorter than Free() when the free region
// wraps past the end of the underlying array; call WriteWindow again
// after committing to reach the rest.
func (b *Buffer[T]) WriteWindow() []T {
	free := b.Free()
	if free == 0 {
		return nil
	}
	start := b.writePos.Load() & b.mask
	end := uint64(b.Capacity())
	if uint64(free) < end-start {
		end = start + uint64(free)
	}
	return b.data[start:end]
}

// CommitWrite advances the write position by n, publishing n items
// written into the most recent WriteWindow for the reader to observe.
// n must not exceed the length of that window.
func (b *Buffer[T]) CommitWrite(n int) {
	if n <= 0 {
		return
	}
	b.writePos.Add(uint64(n))
}

// ReadWindow returns a slice view of the next contiguous run of
// unread items. Like WriteWindow, it may be shorter than Len() across
// a wraparound boundary.
func (b *Buffer[T]) ReadWindow() []T {
	avail := b.Len()
	if avail == 0 {
		return nil
	}
	start := b.readPos.Load() & b.mask
	end := uint64(b.Capacity())
	if uint64(avail) < end-start {
		end = start + uint64(avail)
	}
	return b.data[start:end]
}

// CommitRead advances the read position by n, freeing n slots for the
// writer to reuse. n must not exceed the length of the most recent
// ReadWindow.
func (b *Buffer[T]) CommitRead(n int) {
	if n <= 0 {
		return
	}
	b.readPos.Add(uint64(n))
}

// CloseWrite marks the stream as finished: no further items will be
// written. The reader observes this once it has drained everything
// already committed (Len() == 0 && Closed()).
func (b *Buffer[T]) CloseWrite() {
	b.closed.Store(true)
}

// Closed reports whether the writer has called CloseWrite.
func (b *Buffer[T]) Closed() bool {
	return b.closed.Load()
}

// Drained reports whether the stream is closed and every written item
// has been consumed: the terminal state a reader checks to decide
// whether to finish rather than wait for more data.
func (b *Buffer[T]) Drained() bool {
	return b.closed.Load() && b.Len() == 0
}
