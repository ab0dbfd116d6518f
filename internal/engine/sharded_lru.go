package engine

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/embedcache/cachetune/internal/logging"
)

// shardedLRUShard is one independent LRU partition of a ShardedLRU. Its
// hot-set mutex (mu) and prefetch mutex (prefetchMu) are deliberately
// separate locks — see AddToPrefetchList's doc comment for the resolved
// lock-ordering Open Question.
type shardedLRUShard[K comparable] struct {
	mu    sync.Mutex
	table map[K]*list.Element
	order *list.List

	hits   atomic.Int64
	misses atomic.Int64

	prefetchMu sync.Mutex
	prefetch   map[K]*prefetchEntry[K]
}

func newShardedLRUShard[K comparable]() *shardedLRUShard[K] {
	return &shardedLRUShard[K]{
		table:    make(map[K]*list.Element),
		order:    list.New(),
		prefetch: make(map[K]*prefetchEntry[K]),
	}
}

// ShardedLRUOption configures a ShardedLRU at construction.
type ShardedLRUOption[K ShardableKey] func(*ShardedLRU[K])

// WithShardedLRULogger installs a logger on the ShardedLRU. ShardedLRU
// emits no periodic statistics lines.
func WithShardedLRULogger[K ShardableKey](logger logging.Logger) ShardedLRUOption[K] {
	return func(s *ShardedLRU[K]) { s.logger = logger }
}

// ShardedLRU partitions the key space into 1<<shardShift independent LRU
// shards, each with its own mutex, scaling update throughput the way a
// single mutex-guarded LRU (§4.1) cannot. Grounded on
// _examples/aalhour-rockyardkv's sharding-by-mask idiom and
// tensorflow/.../cache.h's ShardedLRUCache<K>.
type ShardedLRU[K ShardableKey] struct {
	name      string
	shardMask uint64
	shards    []*shardedLRUShard[K]

	entrySize   int
	desiredSize atomic.Int64

	promotions atomic.Int64
	demotions  atomic.Int64

	logger logging.Logger
}

// NewShardedLRU creates a ShardedLRU with 1<<shardShift shards. A
// negative shardShift is a configuration error in the original
// (LOG(FATAL)); here it is reported as ErrShardShiftNegative.
func NewShardedLRU[K ShardableKey](name string, shardShift int, opts ...ShardedLRUOption[K]) (*ShardedLRU[K], error) {
	if shardShift < 0 {
		return nil, ErrShardShiftNegative
	}
	numShards := 1 << shardShift
	s := &ShardedLRU[K]{
		name:      name,
		shardMask: uint64(numShards - 1),
		shards:    make([]*shardedLRUShard[K], numShards),
		logger:    logging.Discard,
	}
	for i := range s.shards {
		s.shards[i] = newShardedLRUShard[K]()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *ShardedLRU[K]) shardFor(key K) *shardedLRUShard[K] {
	return s.shards[shardIndex(key, s.shardMask)]
}

func (s *ShardedLRU[K]) Update(keys []K) error {
	return s.update(keys)
}

func (s *ShardedLRU[K]) UpdateWithFreqs(keys []K, _ []int64) error {
	return s.update(keys)
}

func (s *ShardedLRU[K]) update(keys []K) error {
	for _, id := range keys {
		shard := s.shardFor(id)
		shard.mu.Lock()
		if elem, ok := shard.table[id]; ok {
			shard.order.MoveToFront(elem)
			shard.hits.Add(1)
		} else {
			elem := shard.order.PushFront(&lruEntry[K]{key: id})
			shard.table[id] = elem
			shard.misses.Add(1)
		}
		shard.mu.Unlock()
	}
	return nil
}

// GetEvicIDs evicts ⌈k/N⌉ keys from the first k%N shards and ⌊k/N⌋ from
// the rest, matching ShardedLRUCache::get_evic_ids's distribution.
func (s *ShardedLRU[K]) GetEvicIDs(k int) []K {
	numShards := len(s.shards)
	perShard := k / numShards
	remainder := k % numShards

	out := make([]K, 0, k)
	var evicted int64
	for i, shard := range s.shards {
		thisShard := perShard
		if i < remainder {
			thisShard++
		}
		shard.mu.Lock()
		for j := 0; j < thisShard; j++ {
			back := shard.order.Back()
			if back == nil {
				break
			}
			entry := back.Value.(*lruEntry[K])
			shard.order.Remove(back)
			delete(shard.table, entry.key)
			out = append(out, entry.key)
			evicted++
		}
		shard.mu.Unlock()
	}
	if evicted > 0 {
		s.demotions.Add(evicted)
	}
	return out
}

// GetCachedIDs snapshots ⌈k/N⌉ or ⌊k/N⌋ keys per shard, same
// distribution as GetEvicIDs.
func (s *ShardedLRU[K]) GetCachedIDs(k int) ([]K, []int64) {
	numShards := len(s.shards)
	perShard := k / numShards
	remainder := k % numShards

	out := make([]K, 0, k)
	for i, shard := range s.shards {
		thisShard := perShard
		if i < remainder {
			thisShard++
		}
		shard.mu.Lock()
		n := 0
		for e := shard.order.Front(); e != nil && n < thisShard; e, n = e.Next(), n+1 {
			out = append(out, e.Value.(*lruEntry[K]).key)
		}
		shard.mu.Unlock()
	}
	return out, nil
}

// AddToPrefetchList resolves the Open Question in SPEC_FULL.md §9: the
// hot-set mutex and prefetch mutex are acquired in sequence, never held
// together. For each key this first (acquire hot-set, remove if present,
// release hot-set) — unconditionally, since by the prefetch/hot-set
// mutual-exclusion invariant a key already reserved in the prefetch table
// cannot also be resident, so this is a harmless no-op in that case — then
// (acquire prefetch mutex, increment refcount or insert, release).
func (s *ShardedLRU[K]) AddToPrefetchList(keys []K) error {
	for _, id := range keys {
		shard := s.shardFor(id)

		shard.mu.Lock()
		if elem, ok := shard.table[id]; ok {
			shard.order.Remove(elem)
			delete(shard.table, id)
		}
		shard.mu.Unlock()

		shard.prefetchMu.Lock()
		if entry, ok := shard.prefetch[id]; ok {
			entry.refCount++
		} else {
			shard.prefetch[id] = &prefetchEntry[K]{key: id, refCount: 1}
		}
		shard.prefetchMu.Unlock()
	}
	return nil
}

func (s *ShardedLRU[K]) AddToCache(keys []K) error {
	byShard := make(map[*shardedLRUShard[K]][]K)
	for _, id := range keys {
		shard := s.shardFor(id)

		shard.prefetchMu.Lock()
		entry, ok := shard.prefetch[id]
		if !ok {
			shard.prefetchMu.Unlock()
			return &ContractViolationError{Key: id, Op: "AddToCache"}
		}
		entry.refCount--
		admit := entry.refCount == 0
		if admit {
			delete(shard.prefetch, id)
		}
		shard.prefetchMu.Unlock()

		if admit {
			byShard[shard] = append(byShard[shard], id)
		}
	}
	var admitted int64
	for shard, ids := range byShard {
		shard.mu.Lock()
		for _, id := range ids {
			if elem, ok := shard.table[id]; ok {
				shard.order.MoveToFront(elem)
				shard.hits.Add(1)
			} else {
				elem := shard.order.PushFront(&lruEntry[K]{key: id})
				shard.table[id] = elem
				shard.misses.Add(1)
			}
			admitted++
		}
		shard.mu.Unlock()
	}
	if admitted > 0 {
		s.promotions.Add(admitted)
	}
	return nil
}

func (s *ShardedLRU[K]) Size() int {
	total := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		total += len(shard.table)
		shard.mu.Unlock()
	}
	return total
}

// SetSize records a desired total size. The original ShardedLRUCache
// never overrides BatchCache::SetSize (no strict-eviction mode for
// sharded LRU), so this is purely advisory bookkeeping, consistent with
// the base class default.
func (s *ShardedLRU[K]) SetSize(target int) {
	s.desiredSize.Store(int64(target))
}

func (s *ShardedLRU[K]) Stats() (hits, misses int64) {
	for _, shard := range s.shards {
		hits += shard.hits.Load()
		misses += shard.misses.Load()
	}
	return hits, misses
}

func (s *ShardedLRU[K]) HitRate() float64 {
	hits, misses := s.Stats()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

func (s *ShardedLRU[K]) String() string {
	hits, misses := s.Stats()
	rate := 0.0
	if hits+misses > 0 {
		rate = float64(hits) * 100.0 / float64(hits+misses)
	}
	return debugString(rate, hits, misses)
}

func (s *ShardedLRU[K]) GetCacheSize() int { return s.Size() * s.entrySize }

func (s *ShardedLRU[K]) SetCacheSize(newSize int) {
	entrySize := s.entrySize
	if entrySize <= 0 {
		entrySize = 1
	}
	s.SetSize(newSize / entrySize)
}

func (s *ShardedLRU[K]) GetCacheEntrySize() int { return s.entrySize }

func (s *ShardedLRU[K]) SetEntrySize(n int) { s.entrySize = n }

func (s *ShardedLRU[K]) GetHitRate() float64 { return s.HitRate() }

func (s *ShardedLRU[K]) ResetStat() {
	for _, shard := range s.shards {
		shard.hits.Store(0)
		shard.misses.Store(0)
	}
}

func (s *ShardedLRU[K]) GetMoveCount() (promotions, demotions uint64) {
	return uint64(s.promotions.Load()), uint64(s.demotions.Load())
}

func (s *ShardedLRU[K]) ResetMoveCount() {
	s.promotions.Store(0)
	s.demotions.Store(0)
}
