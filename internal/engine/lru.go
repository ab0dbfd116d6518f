package engine

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/embedcache/cachetune/internal/logging"
)

// prefetchEntry is the Go shape of PrefetchNode<K>: a reservation with a
// refcount, released back to the caller once AddToCache has been called
// as many times as AddToPrefetchList.
type prefetchEntry[K comparable] struct {
	key      K
	refCount int64
}

// lruEntry is one node of the LRU's doubly-linked list, carried via
// container/list the way the teacher's block cache does (rather than a
// hand-rolled intrusive list) since LRU nodes are never individually
// freed outside of eviction — container/list's GC-backed nodes are the
// idiomatic Go substitute for the original's raw-pointer LRUNode arena.
type lruEntry[K comparable] struct {
	key K
}

// LRUOption configures an LRU at construction.
type LRUOption[K comparable] func(*LRU[K])

// WithStrictLRU enables the "pending-eviction" side list: at the start of
// each update, if the hot set is over its desired size, the overflow at
// the LRU end is spliced into a side list that get_evic_ids drains first.
// The batch applied by that update can leave the hot set above the
// desired size until the next update. Per Design Notes §9 this is runtime
// configuration, not a build-time flag.
func WithStrictLRU[K comparable](strict bool) LRUOption[K] {
	return func(l *LRU[K]) { l.strict = strict }
}

// WithLRULogger installs a logger for periodic statistics lines.
func WithLRULogger[K comparable](logger logging.Logger) LRUOption[K] {
	return func(l *LRU[K]) { l.logger = logger }
}

// WithLRUReportInterval overrides CACHE_REPORT_INTERVAL for this engine.
func WithLRUReportInterval[K comparable](n int64) LRUOption[K] {
	return func(l *LRU[K]) {
		if n > 0 {
			l.reportInterval = n
		}
	}
}

// LRU is a mutex-guarded LRU cache engine implementing Cache[K], grounded
// on _examples/aalhour-rockyardkv/internal/cache.LRUCache generalized from
// a handle/charge block cache to membership-only tracking, and on
// tensorflow/core/framework/embedding/cache.h's LRUCache<K> for the exact
// prefetch/admission state machine and strict-eviction toggle.
type LRU[K comparable] struct {
	mu    sync.Mutex
	name  string
	table map[K]*list.Element
	order *list.List // front = MRU, back = LRU

	prefetch map[K]*prefetchEntry[K]

	strict       bool
	desiredSize  int
	pendingEvict *list.List // only used when strict

	hits   atomic.Int64
	misses atomic.Int64

	access         atomic.Int64
	reportInterval int64
	logger         logging.Logger

	entrySize  int
	promotions atomic.Int64
	demotions  atomic.Int64
}

// NewLRU creates an empty LRU cache engine named name (used only in log
// lines and error messages).
func NewLRU[K comparable](name string, opts ...LRUOption[K]) *LRU[K] {
	l := &LRU[K]{
		name:           name,
		table:          make(map[K]*list.Element),
		order:          list.New(),
		prefetch:       make(map[K]*prefetchEntry[K]),
		reportInterval: 10000,
		logger:         logging.Discard,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.strict {
		l.pendingEvict = list.New()
	}
	return l
}

func (l *LRU[K]) Update(keys []K) error {
	return l.update(keys, true)
}

func (l *LRU[K]) UpdateWithFreqs(keys []K, _ []int64) error {
	// TODO: rank by version/freq once a version-aware MRU policy exists;
	// the original's Tensor-overload update() has the identical TODO.
	return l.update(keys, true)
}

// update implements the batch mutator. useLocking=false means the caller
// already holds an equivalent lock (used internally by AddToCache's
// promotion step, which runs under l.mu already).
func (l *LRU[K]) update(keys []K, useLocking bool) error {
	if useLocking {
		l.mu.Lock()
		defer l.mu.Unlock()
	}

	if l.strict && l.desiredSize > 0 {
		evictCount := len(l.table) - l.desiredSize
		for i := 0; i < evictCount; i++ {
			back := l.order.Back()
			if back == nil {
				break
			}
			entry := back.Value.(*lruEntry[K])
			l.order.Remove(back)
			delete(l.table, entry.key)
			l.pendingEvict.PushFront(entry)
		}
	}

	for _, id := range keys {
		if elem, ok := l.table[id]; ok {
			l.order.MoveToFront(elem)
			l.hits.Add(1)
		} else {
			elem := l.order.PushFront(&lruEntry[K]{key: id})
			l.table[id] = elem
			l.misses.Add(1)
		}
	}

	if l.access.Add(1)%l.reportInterval == 0 {
		l.logger.Infof("%scache %q statistics: %s", logging.NSEngine, l.name, l.String())
	}
	return nil
}

func (l *LRU[K]) GetEvicIDs(k int) []K {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]K, 0, k)

	if l.strict {
		for len(out) < k {
			back := l.pendingEvict.Back()
			if back == nil {
				break
			}
			l.pendingEvict.Remove(back)
			out = append(out, back.Value.(*lruEntry[K]).key)
		}
		if len(out) >= k {
			return out
		}
	}

	for len(out) < k {
		back := l.order.Back()
		if back == nil {
			break
		}
		entry := back.Value.(*lruEntry[K])
		l.order.Remove(back)
		delete(l.table, entry.key)
		out = append(out, entry.key)
	}
	if len(out) > 0 {
		l.demotions.Add(int64(len(out)))
	}
	return out
}

func (l *LRU[K]) GetCachedIDs(k int) ([]K, []int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]K, 0, k)
	for e := l.order.Front(); e != nil && len(out) < k; e = e.Next() {
		out = append(out, e.Value.(*lruEntry[K]).key)
	}
	return out, nil
}

// AddToPrefetchList reserves keys before admission. A key already
// present in the hot set is removed from it and moved into the prefetch
// table with refcount 1, the hot set and prefetch table are mutually
// exclusive by invariant.
func (l *LRU[K]) AddToPrefetchList(keys []K) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, id := range keys {
		if entry, ok := l.prefetch[id]; ok {
			entry.refCount++
			continue
		}
		if elem, ok := l.table[id]; ok {
			l.order.Remove(elem)
			delete(l.table, id)
		}
		l.prefetch[id] = &prefetchEntry[K]{key: id, refCount: 1}
	}
	return nil
}

// AddToCache promotes prefetched keys into the hot set once their
// refcount drains to zero. A key with no prefetch reservation is a fatal
// contract violation in the original (LOG(FATAL)); here it is returned as
// a *ContractViolationError per Design Notes §9.
func (l *LRU[K]) AddToCache(keys []K) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	toCache := make([]K, 0, len(keys))
	for _, id := range keys {
		entry, ok := l.prefetch[id]
		if !ok {
			return &ContractViolationError{Key: id, Op: "AddToCache"}
		}
		entry.refCount--
		if entry.refCount == 0 {
			delete(l.prefetch, id)
			toCache = append(toCache, id)
		}
	}
	if len(toCache) > 0 {
		l.promotions.Add(int64(len(toCache)))
	}
	return l.update(toCache, false)
}

func (l *LRU[K]) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	size := len(l.table)
	if l.strict {
		size += l.pendingEvict.Len()
	}
	return size
}

func (l *LRU[K]) SetSize(target int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.desiredSize = target
}

func (l *LRU[K]) Stats() (hits, misses int64) {
	return l.hits.Load(), l.misses.Load()
}

func (l *LRU[K]) HitRate() float64 {
	hits, misses := l.Stats()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

func (l *LRU[K]) String() string {
	hits, misses := l.Stats()
	rate := 0.0
	if hits+misses > 0 {
		rate = float64(hits) * 100.0 / float64(hits+misses)
	}
	return debugString(rate, hits, misses)
}

// GetCacheSize / SetCacheSize / GetCacheEntrySize / ResetStat /
// GetMoveCount / ResetMoveCount implement TunableCache for the Profiled
// wrapper and the tuning manager.
func (l *LRU[K]) GetCacheSize() int { return l.Size() * l.entrySize }

func (l *LRU[K]) SetCacheSize(newSize int) {
	entrySize := l.entrySize
	if entrySize <= 0 {
		entrySize = 1
	}
	l.SetSize(newSize / entrySize)
}

func (l *LRU[K]) GetCacheEntrySize() int { return l.entrySize }

// SetEntrySize records the external tier's reported per-entry byte cost,
// used to translate between byte budgets and entry counts.
func (l *LRU[K]) SetEntrySize(n int) { l.entrySize = n }

func (l *LRU[K]) GetHitRate() float64 { return l.HitRate() }

func (l *LRU[K]) ResetStat() {
	l.hits.Store(0)
	l.misses.Store(0)
}

func (l *LRU[K]) GetMoveCount() (promotions, demotions uint64) {
	return uint64(l.promotions.Load()), uint64(l.demotions.Load())
}

func (l *LRU[K]) ResetMoveCount() {
	l.promotions.Store(0)
	l.demotions.Store(0)
}
