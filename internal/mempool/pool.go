// Package mempool provides generic scratch-buffer pooling.
//
// The AET profiler's GetMRC reconstructs a miss-ratio curve on every tuning
// pass: it needs a handful of same-shaped scratch slices (histogram
// snapshot, prefix sums, CCDF) that are the same size every call (sized by
// the configured bucket count) and are hot enough on the tuner's path to be
// worth pooling instead of reallocating every second.
//
// Reference (teacher): RocksDB v10.7.5 memory/arena.h / memory/allocator.h —
// the general idea of a reusable scratch allocator for hot, short-lived
// buffers, adapted here from a byte-bucket allocator to a generic
// element-typed pool since the buffers in question are []uint64/[]float64,
// not encoded byte strings.
package mempool

import "sync"

// Pool manages reusable slices of T, sized at least minLen on Get.
// Safe for concurrent use (sync.Pool is internally synchronized).
type Pool[T any] struct {
	pool sync.Pool
}

// NewPool creates a new scratch pool for slices of T.
func NewPool[T any]() *Pool[T] {
	return &Pool[T]{
		pool: sync.Pool{
			New: func() any {
				buf := make([]T, 0, 64)
				return &buf
			},
		},
	}
}

// Get returns a zero-length slice with capacity at least minLen.
func (p *Pool[T]) Get(minLen int) []T {
	bufPtr, ok := p.pool.Get().(*[]T)
	if !ok || bufPtr == nil {
		return make([]T, 0, minLen)
	}
	buf := *bufPtr
	if cap(buf) < minLen {
		return make([]T, 0, minLen)
	}
	return buf[:0]
}

// Put returns buf to the pool for reuse. A nil buf is ignored.
func (p *Pool[T]) Put(buf []T) {
	if buf == nil {
		return
	}
	buf = buf[:0]
	p.pool.Put(&buf)
}
