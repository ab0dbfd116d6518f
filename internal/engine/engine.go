// Package engine implements the concurrent cache engines that maintain a
// multi-tier embedding-variable hot set: LRU, ShardedLRU, LFU, and the
// block-locked LFU variants, plus the Profiled decorator that feeds a
// sampler from an engine's update traffic.
//
// Reference (teacher): _examples/aalhour-rockyardkv/internal/cache —
// mutex-guarded container/list + map block cache. Algorithmic shape
// (update/evict/prefetch/admit contract, strict-eviction toggle, sharding
// by key mask) is grounded on the DeepRec embedding-variable cache
// (tensorflow/core/framework/embedding/cache.h), generalized from a
// handle/charge/refcount block-cache model to membership-only tracking.
package engine

import (
	"errors"
	"fmt"
)

// Cache is the contract shared by every engine in this package: LRU,
// ShardedLRU, LFU, and BlockLockLFU. K is the embedding-id type, expected
// to be int64 in production but left generic over comparable to mirror
// BatchCache<K> in the original.
type Cache[K comparable] interface {
	// Update processes a batch of references in order: promote/bump hits
	// for present keys, insert-as-miss for absent keys.
	Update(keys []K) error

	// UpdateWithFreqs is the LFU-aware batch update: freqs carries a
	// per-key frequency delta (additive on hit, absolute on miss — see
	// LFU.UpdateWithFreqs doc comment). Engines that are not frequency
	// based (LRU, ShardedLRU) ignore freqs and behave like Update.
	UpdateWithFreqs(keys []K, freqs []int64) error

	// GetEvicIDs removes up to k keys chosen by the engine's eviction
	// policy, returning the keys actually evicted.
	GetEvicIDs(k int) []K

	// GetCachedIDs returns a read-only snapshot of up to k resident keys
	// in the engine's natural enumeration order, along with the
	// per-key frequency class (nil for engines with no frequency
	// concept, e.g. plain LRU).
	GetCachedIDs(k int) (ids []K, freqs []int64)

	// AddToPrefetchList reserves keys ahead of admission. A key already
	// in the prefetch table has its refcount incremented instead.
	AddToPrefetchList(keys []K) error

	// AddToCache promotes previously prefetched keys into the hot set
	// once their prefetch refcount reaches zero. Returns
	// ContractViolationError for any key never prefetched.
	AddToCache(keys []K) error

	// Size returns current membership cardinality.
	Size() int

	// SetSize records the desired size. Only strict-eviction mode acts
	// on it; other engines just store the value.
	SetSize(target int)

	// Stats returns (hits, misses).
	Stats() (hits, misses int64)

	// HitRate returns hits / (hits+misses), or 0 if there have been no
	// accesses yet.
	HitRate() float64

	// String returns a human-readable statistics summary, mirroring
	// BatchCache<K>::DebugString.
	String() string
}

// TunableCache is the subset of Cache that the tuning controller needs to
// resize a cache and read its entry-size/hit-rate, mirroring the
// original's TunableCache interface.
type TunableCache interface {
	GetCacheSize() int
	SetCacheSize(newSize int)
	GetCacheEntrySize() int
	GetHitRate() float64
	ResetStat()
	GetMoveCount() (promotions, demotions uint64)
	ResetMoveCount()
}

// ContractViolationError is returned when AddToCache is called for a key
// that was never passed to AddToPrefetchList. The original aborts the
// process here (LOG(FATAL)); this is the typed-error substitute named in
// the Design Notes' "exceptions/fatal aborts → explicit result types"
// guidance.
type ContractViolationError struct {
	Key any
	Op  string
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("engine: contract violation in %s: key %v was never prefetched", e.Op, e.Key)
}

// ErrShardShiftNegative is returned by sharded engine constructors when
// given a negative shard shift.
var ErrShardShiftNegative = errors.New("engine: shard_shift must be >= 0")

// ShardableKey constrains the key types that ShardedLRU and BlockLockLFU
// can route by a bitmask (key & (N-1)) without going through a generic
// hash function. Wider integer key spaces (int64 embedding ids, the
// expected production instantiation) satisfy this directly.
type ShardableKey interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// shardIndex computes key & (numShards-1) for any ShardableKey.
func shardIndex[K ShardableKey](key K, mask uint64) uint64 {
	return uint64(key) & mask
}

// debugString renders the DebugString-equivalent summary line shared by
// every engine: "HitRate = X %, visit_count = N, hit_count = H".
func debugString(hitRatePct float64, hits, misses int64) string {
	return fmt.Sprintf("HitRate = %.4f %%, visit_count = %d, hit_count = %d",
		hitRatePct, hits+misses, hits)
}
