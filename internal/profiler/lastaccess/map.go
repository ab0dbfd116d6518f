// Package lastaccess implements the sharded-mutex substitute for the
// original sampler's lock-free open-addressed hash map (sentinel
// EMPTY_KEY/DELETED_KEY, double-width CAS on (key, value-pointer)
// slots). Per SPEC_FULL.md §4.5 / spec.md §9 Design Notes ("a sharded
// mutex + hash map with fine-grained locks is acceptable and simpler, at
// the cost of some sampler fast-path contention"), this is the
// explicitly sanctioned fallback: there is no safe idiomatic Go
// equivalent of a double-width CAS on a raw pointer slot without
// `unsafe`, so a fixed shard count of independent mutex-guarded maps
// stands in for it. Each shard locks for the duration of a lookup,
// insert, or CAS, which is strictly stronger synchronization than the
// original's single-cell lock-free discipline but keeps the same
// fine-grained, non-global contention profile.
package lastaccess

import "sync"

type shard[K comparable] struct {
	mu   sync.Mutex
	data map[K]uint64
}

// HashFunc maps a key to a shard-routing hash. The sampler supplies one
// built from xxh3 over the key's byte representation.
type HashFunc[K comparable] func(key K) uint64

// Map is a fixed-shard-count, mutex-guarded map from K to a uint64
// timestamp cell, standing in for the original's last_access_map_.
type Map[K comparable] struct {
	shards []*shard[K]
	mask   uint64
	hash   HashFunc[K]
}

// New creates a Map with the smallest power of two shard count that is
// at least numShards.
func New[K comparable](numShards int, hash HashFunc[K]) *Map[K] {
	n := 1
	for n < numShards {
		n <<= 1
	}
	m := &Map[K]{
		shards: make([]*shard[K], n),
		mask:   uint64(n - 1),
		hash:   hash,
	}
	for i := range m.shards {
		m.shards[i] = &shard[K]{data: make(map[K]uint64)}
	}
	return m
}

func (m *Map[K]) shardFor(key K) *shard[K] {
	return m.shards[m.hash(key)&m.mask]
}

// Lookup mirrors find_wait_free: reports the stored value and whether
// the key is present at all. A present value of 0 means "sampled in but
// currently consumed" in the caller's own convention, matching
// DoReferenceKey's `*(iter.second) == 0` check.
func (m *Map[K]) Lookup(key K) (uint64, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

// InsertIfAbsent mirrors insert_lockless: stores value and returns
// (value, true) if key was absent; if another writer already inserted
// first, returns the existing value and false so the caller discards
// its own (mirrors "if (inserted.first->second != value_ptr) { delete
// value_ptr; return; }" without the pointer-ownership bookkeeping, since
// Go's GC makes the discarded value just garbage rather than a leak).
func (m *Map[K]) InsertIfAbsent(key K, value uint64) (uint64, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.data[key]; ok {
		return existing, false
	}
	s.data[key] = value
	return value, true
}

// CAS mirrors __sync_bool_compare_and_swap / __sync_val_compare_and_swap
// on the value cell: stores newVal only if the key is present and its
// current value equals old.
func (m *Map[K]) CAS(key K, old, newVal uint64) bool {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.data[key]; ok && v == old {
		s.data[key] = newVal
		return true
	}
	return false
}

// Size returns the total live entry count across all shards.
func (m *Map[K]) Size() int {
	total := 0
	for _, s := range m.shards {
		s.mu.Lock()
		total += len(s.data)
		s.mu.Unlock()
	}
	return total
}

// CountNonZero returns how many entries hold a nonzero value, used by
// GetMRC's reuse_time_sum computation for sampling_interval == 1.
func (m *Map[K]) CountNonZero() int {
	count := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for _, v := range s.data {
			if v != 0 {
				count++
			}
		}
		s.mu.Unlock()
	}
	return count
}

// Reset drops every entry across all shards and reports how many there
// were, mirroring ResetLastAccessMap's teardown-and-log behavior.
func (m *Map[K]) Reset() int {
	count := 0
	for _, s := range m.shards {
		s.mu.Lock()
		count += len(s.data)
		s.data = make(map[K]uint64)
		s.mu.Unlock()
	}
	return count
}
