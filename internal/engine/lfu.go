package engine

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/embedcache/cachetune/internal/logging"
)

// lfuNode is one arena cell. prevIdx/nextIdx index into the same arena and
// are scoped to whichever frequency class currently owns the node; -1 is
// the sentinel "no neighbor". Grounded on Design Notes §9 option (a) —
// an arena of indices standing in for the original's raw std::list<LFUNode>
// nodes — and on _examples/djdv-go-clockpro/internal/ring's index-free
// ring technique, adapted here to an explicit free-list since LFU cells
// are individually freed and reused rather than kept in one fixed ring.
type lfuNode[K comparable] struct {
	key     K
	freq    int64
	prevIdx int32
	nextIdx int32
	inUse   bool
}

// lfuClass is one frequency bucket's doubly linked list, head = most
// recently promoted into this class, tail = least recently promoted
// (the eviction end).
type lfuClass struct {
	headIdx int32
	tailIdx int32
	count   int
}

type lfuPrefetchEntry[K comparable] struct {
	key      K
	freq     int64
	refCount int64
}

const noIdx int32 = -1

// LFUOption configures an LFU at construction.
type LFUOption[K comparable] func(*LFU[K])

// WithLFULogger installs a logger for periodic statistics lines.
func WithLFULogger[K comparable](logger logging.Logger) LFUOption[K] {
	return func(l *LFU[K]) { l.logger = logger }
}

// LFU is an O(1) frequency-bucketed LFU cache engine, grounded on
// tensorflow/.../cache.h's LFUCache<K> (no teacher analogue — rockyardkv
// carries only an LRU block cache). The frequency-indexed vector of
// doubly-linked lists becomes a map[int64]*lfuClass of arena-indexed
// lists; the key→node map becomes a map[K]int32 of arena indices.
type LFU[K comparable] struct {
	mu sync.Mutex

	arena    []lfuNode[K]
	freeList []int32

	keyTable map[K]int32
	classes  map[int64]*lfuClass

	minFreq int64
	maxFreq int64

	prefetch map[K]*lfuPrefetchEntry[K]

	hits   atomic.Int64
	misses atomic.Int64

	access         atomic.Int64
	reportInterval int64
	logger         logging.Logger
	name           string

	entrySize   int
	desiredSize int
	promotions  atomic.Int64
	demotions   atomic.Int64
}

// NewLFU creates an empty LFU cache engine.
func NewLFU[K comparable](name string, opts ...LFUOption[K]) *LFU[K] {
	l := &LFU[K]{
		name:           name,
		keyTable:       make(map[K]int32),
		classes:        make(map[int64]*lfuClass),
		minFreq:        math.MaxInt64,
		maxFreq:        0,
		prefetch:       make(map[K]*lfuPrefetchEntry[K]),
		reportInterval: 10000,
		logger:         logging.Discard,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *LFU[K]) resetMinMaxFreq() {
	l.minFreq = math.MaxInt64
	l.maxFreq = 0
}

// updateMinFreq re-scans upward from minFreq+1 for the next nonempty
// class, resetting both bounds if none is found — mirrors
// LFUCache<K>::update_min_freq.
func (l *LFU[K]) updateMinFreq() {
	for f := l.minFreq + 1; f <= l.maxFreq; f++ {
		if cls := l.classes[f]; cls != nil && cls.count > 0 {
			l.minFreq = f
			return
		}
	}
	l.resetMinMaxFreq()
}

// updateMaxFreq re-scans downward from maxFreq-1 for the next nonempty
// class, resetting both bounds if none is found — mirrors
// LFUCache<K>::update_max_freq.
func (l *LFU[K]) updateMaxFreq() {
	for f := l.maxFreq - 1; f >= l.minFreq; f-- {
		if cls := l.classes[f]; cls != nil && cls.count > 0 {
			l.maxFreq = f
			return
		}
	}
	l.resetMinMaxFreq()
}

func (l *LFU[K]) ensureClass(freq int64) *lfuClass {
	cls, ok := l.classes[freq]
	if !ok {
		cls = &lfuClass{headIdx: noIdx, tailIdx: noIdx}
		l.classes[freq] = cls
	}
	return cls
}

func (l *LFU[K]) pushFront(freq int64, idx int32) {
	cls := l.ensureClass(freq)
	node := &l.arena[idx]
	node.prevIdx = noIdx
	node.nextIdx = cls.headIdx
	if cls.headIdx != noIdx {
		l.arena[cls.headIdx].prevIdx = idx
	}
	cls.headIdx = idx
	if cls.tailIdx == noIdx {
		cls.tailIdx = idx
	}
	cls.count++
}

func (l *LFU[K]) removeFromClass(freq int64, idx int32) {
	cls := l.classes[freq]
	node := &l.arena[idx]
	if node.prevIdx != noIdx {
		l.arena[node.prevIdx].nextIdx = node.nextIdx
	} else {
		cls.headIdx = node.nextIdx
	}
	if node.nextIdx != noIdx {
		l.arena[node.nextIdx].prevIdx = node.prevIdx
	} else {
		cls.tailIdx = node.prevIdx
	}
	cls.count--
	node.prevIdx = noIdx
	node.nextIdx = noIdx
}

func (l *LFU[K]) alloc(key K, freq int64) int32 {
	if n := len(l.freeList); n > 0 {
		idx := l.freeList[n-1]
		l.freeList = l.freeList[:n-1]
		l.arena[idx] = lfuNode[K]{key: key, freq: freq, prevIdx: noIdx, nextIdx: noIdx, inUse: true}
		return idx
	}
	idx := int32(len(l.arena))
	l.arena = append(l.arena, lfuNode[K]{key: key, freq: freq, prevIdx: noIdx, nextIdx: noIdx, inUse: true})
	return idx
}

func (l *LFU[K]) free(idx int32) {
	l.arena[idx].inUse = false
	l.freeList = append(l.freeList, idx)
}

func (l *LFU[K]) Update(keys []K) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range keys {
		if idx, ok := l.keyTable[id]; ok {
			node := &l.arena[idx]
			oldFreq := node.freq
			l.removeFromClass(oldFreq, idx)
			newFreq := oldFreq + 1
			node.freq = newFreq
			l.pushFront(newFreq, idx)
			if cls := l.classes[oldFreq]; cls.count == 0 && l.minFreq == oldFreq {
				l.minFreq = oldFreq + 1
			}
			if newFreq > l.maxFreq {
				l.maxFreq = newFreq
			}
			l.hits.Add(1)
		} else {
			idx := l.alloc(id, 1)
			l.pushFront(1, idx)
			l.keyTable[id] = idx
			l.minFreq = 1
			if l.maxFreq < 1 {
				l.maxFreq = 1
			}
			l.misses.Add(1)
		}
	}
	l.maybeReport()
	return nil
}

// UpdateWithFreqs applies a per-key frequency delta that is ADDITIVE on a
// hit (new freq = old freq + freqs[i]) but ABSOLUTE on a miss (new freq =
// freqs[i]). This asymmetry is preserved exactly as in the original's
// second update() overload — per Design Notes §9 it is NOT a bug to fix,
// and is covered by TestLFUUpdateWithFreqsAsymmetry.
func (l *LFU[K]) UpdateWithFreqs(keys []K, freqs []int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, id := range keys {
		delta := int64(1)
		if i < len(freqs) {
			delta = freqs[i]
		}
		if idx, ok := l.keyTable[id]; ok {
			node := &l.arena[idx]
			lastFreq := node.freq
			currFreq := lastFreq + delta
			l.removeFromClass(lastFreq, idx)
			node.freq = currFreq
			// Insert into the new class, and bump maxFreq, before
			// rescanning for minFreq: updateMinFreq must see currFreq's
			// class already populated, or a single-key cache whose only
			// key just vacated minFreq's class would find no nonempty
			// class ahead and spuriously reset both bounds to sentinels.
			l.pushFront(currFreq, idx)
			if currFreq > l.maxFreq {
				l.maxFreq = currFreq
			}
			if cls := l.classes[lastFreq]; cls.count == 0 && l.minFreq == lastFreq {
				l.updateMinFreq()
			}
			l.keyTable[id] = idx
			l.hits.Add(1)
		} else {
			if delta < l.minFreq {
				l.minFreq = delta
			}
			if delta > l.maxFreq {
				l.maxFreq = delta
			}
			idx := l.alloc(id, delta)
			l.pushFront(delta, idx)
			l.keyTable[id] = idx
			l.misses.Add(1)
		}
	}
	l.maybeReport()
	return nil
}

func (l *LFU[K]) maybeReport() {
	if l.access.Add(1)%l.reportInterval == 0 {
		l.logger.Infof("%scache %q statistics: %s", logging.NSEngine, l.name, l.debugStringLocked())
	}
}

func (l *LFU[K]) GetEvicIDs(k int) []K {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]K, 0, k)
	stFreq := l.minFreq
	for len(out) < k && len(l.keyTable) > 0 {
		cls := l.classes[stFreq]
		idx := cls.tailIdx
		node := &l.arena[idx]
		key := node.key
		delete(l.keyTable, key)
		l.removeFromClass(stFreq, idx)
		l.free(idx)
		out = append(out, key)

		if cls.count == 0 {
			stFreq++
			for stFreq <= l.maxFreq {
				if c := l.classes[stFreq]; c != nil && c.count != 0 {
					l.minFreq = stFreq
					break
				}
				stFreq++
			}
			if stFreq > l.maxFreq {
				l.resetMinMaxFreq()
				break
			}
		}
	}
	if len(out) > 0 {
		l.demotions.Add(int64(len(out)))
	}
	return out
}

// GetCachedIDs enumerates from maxFreq down to minFreq exactly as
// LFUCache<K>::get_cached_ids does: curr_freq is decremented only once
// the current class's list is exhausted, skipping empty classes, and
// stops as soon as curr_freq drops below min_freq. The precise boundary
// behavior here is fuzz-tested in lfu_fuzz_test.go per the Open Question
// in SPEC_FULL.md §9 — do not "clean up" this loop shape.
func (l *LFU[K]) GetCachedIDs(k int) ([]K, []int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]K, 0, k)
	freqs := make([]int64, 0, k)
	if len(l.keyTable) == 0 || k <= 0 {
		return ids, freqs
	}

	currFreq := l.maxFreq
	cls := l.classes[currFreq]
	if cls == nil {
		return ids, freqs
	}
	curIdx := cls.headIdx

	for len(ids) < k && currFreq >= l.minFreq {
		if curIdx == noIdx {
			break
		}
		node := &l.arena[curIdx]
		ids = append(ids, node.key)
		freqs = append(freqs, node.freq)
		curIdx = node.nextIdx
		if curIdx == noIdx {
			for {
				currFreq--
				if currFreq < l.minFreq {
					break
				}
				if c := l.classes[currFreq]; c != nil && c.count != 0 {
					break
				}
			}
			if currFreq >= l.minFreq {
				curIdx = l.classes[currFreq].headIdx
			}
		}
	}
	return ids, freqs
}

// AddToPrefetchList reserves keys ahead of admission, preserving the
// frequency a key carried when it was in the hot set so that churning
// hot→prefetch→hot does not reset its accumulated rank.
func (l *LFU[K]) AddToPrefetchList(keys []K) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, id := range keys {
		if entry, ok := l.prefetch[id]; ok {
			entry.refCount++
			continue
		}
		if idx, ok := l.keyTable[id]; ok {
			node := &l.arena[idx]
			freq := node.freq
			l.removeFromClass(freq, idx)
			delete(l.keyTable, id)
			l.free(idx)
			if cls := l.classes[freq]; cls.count == 0 {
				if freq == l.maxFreq {
					l.updateMaxFreq()
				}
				if freq == l.minFreq {
					l.updateMinFreq()
				}
			}
			l.prefetch[id] = &lfuPrefetchEntry[K]{key: id, freq: freq, refCount: 1}
		} else {
			l.prefetch[id] = &lfuPrefetchEntry[K]{key: id, freq: 1, refCount: 1}
		}
	}
	return nil
}

func (l *LFU[K]) AddToCache(keys []K) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	toCache := make([]K, 0, len(keys))
	toFreqs := make([]int64, 0, len(keys))
	for _, id := range keys {
		entry, ok := l.prefetch[id]
		if !ok {
			return &ContractViolationError{Key: id, Op: "AddToCache"}
		}
		entry.refCount--
		if entry.refCount == 0 {
			delete(l.prefetch, id)
			toCache = append(toCache, id)
			toFreqs = append(toFreqs, entry.freq)
		}
	}
	if len(toCache) == 0 {
		return nil
	}
	l.promotions.Add(int64(len(toCache)))
	return l.updateWithFreqsLocked(toCache, toFreqs)
}

// updateWithFreqsLocked is UpdateWithFreqs's body without its own lock,
// used internally by AddToCache, which already holds l.mu.
func (l *LFU[K]) updateWithFreqsLocked(keys []K, freqs []int64) error {
	for i, id := range keys {
		delta := freqs[i]
		if _, ok := l.keyTable[id]; ok {
			// Admission never re-admits a key still present in the hot
			// set (prefetch/hot-set are mutually exclusive), so this
			// branch is defensive only.
			continue
		}
		if delta < l.minFreq {
			l.minFreq = delta
		}
		if delta > l.maxFreq {
			l.maxFreq = delta
		}
		idx := l.alloc(id, delta)
		l.pushFront(delta, idx)
		l.keyTable[id] = idx
		l.misses.Add(1)
	}
	return nil
}

func (l *LFU[K]) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keyTable)
}

func (l *LFU[K]) SetSize(target int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.desiredSize = target
}

func (l *LFU[K]) Stats() (hits, misses int64) {
	return l.hits.Load(), l.misses.Load()
}

func (l *LFU[K]) HitRate() float64 {
	hits, misses := l.Stats()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

func (l *LFU[K]) debugStringLocked() string {
	hits, misses := l.hits.Load(), l.misses.Load()
	rate := 0.0
	if hits+misses > 0 {
		rate = float64(hits) * 100.0 / float64(hits+misses)
	}
	return debugString(rate, hits, misses)
}

func (l *LFU[K]) String() string {
	return l.debugStringLocked()
}

func (l *LFU[K]) GetCacheSize() int { return l.Size() * l.entrySize }

func (l *LFU[K]) SetCacheSize(newSize int) {
	entrySize := l.entrySize
	if entrySize <= 0 {
		entrySize = 1
	}
	l.SetSize(newSize / entrySize)
}

func (l *LFU[K]) GetCacheEntrySize() int { return l.entrySize }

func (l *LFU[K]) SetEntrySize(n int) { l.entrySize = n }

func (l *LFU[K]) GetHitRate() float64 { return l.HitRate() }

func (l *LFU[K]) ResetStat() {
	l.hits.Store(0)
	l.misses.Store(0)
}

func (l *LFU[K]) GetMoveCount() (promotions, demotions uint64) {
	return uint64(l.promotions.Load()), uint64(l.demotions.Load())
}

func (l *LFU[K]) ResetMoveCount() {
	l.promotions.Store(0)
	l.demotions.Store(0)
}
