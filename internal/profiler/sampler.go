// Package profiler implements the AET (average-eviction-time) sampler:
// a Bernoulli-sampled reuse-distance histogram feeding a miss-ratio-curve
// (MRC) reconstruction, grounded on
// _examples/original_source/.../cache_profiler.h's SamplingLRUAETProfiler.
package profiler

import (
	"math/rand/v2"
	"sync/atomic"

	"github.com/embedcache/cachetune/internal/engine"
	"github.com/embedcache/cachetune/internal/logging"
	"github.com/embedcache/cachetune/internal/mempool"
	"github.com/embedcache/cachetune/internal/profiler/lastaccess"
)

var (
	histPool      = mempool.NewPool[int64]()
	prefixSumPool = mempool.NewPool[int64]()
	probGreatPool = mempool.NewPool[float64]()
)

// Sampler implements the AET/reuse-distance sampler for one cache
// engine. It satisfies engine.Sampler[K] (ReferenceKeyBatch) so a
// engine.Profiled[K] can hold one without internal/engine importing
// this package.
type Sampler[K comparable] struct {
	name string

	bucketSize       int64
	maxReuseTime     int64
	samplingInterval int64
	samplingRate     float64

	timestamp atomic.Int64
	histogram []atomic.Int64

	lastAccess *lastaccess.Map[K]
	numShards  int
	hash       lastaccess.HashFunc[K]

	runLock atomic.Bool
	run     atomic.Int64

	tunable engine.TunableCache
	logger  logging.Logger
}

// Sentinels names the two reserved key values the original's lock-free
// map required outside the legal key space. The sharded-mutex
// replacement in lastaccess has no such requirement (a plain Go map
// never confuses "absent" with a sentinel value), so Sentinels exists
// only to document the precondition spec.md §3 still names for the
// common integer instantiation — it is not consulted anywhere in this
// package.
type Sentinels[K comparable] struct {
	Empty   K
	Deleted K
}

// Option configures a Sampler at construction.
type Option[K comparable] func(*Sampler[K])

// WithLogger installs a logger for this sampler.
func WithLogger[K comparable](logger logging.Logger) Option[K] {
	return func(s *Sampler[K]) { s.logger = logger }
}

// WithShards overrides the last-access map's shard count (default 16,
// mirroring the original's set_counternum(16)).
func WithShards[K comparable](n int) Option[K] {
	return func(s *Sampler[K]) { s.numShards = n }
}

// New creates a Sampler. tunable is the wrapped engine's TunableCache
// view (GetCacheSize/SetCacheSize/etc. are forwarded to it, mirroring
// CacheMRCProfiler's delegation to tunable_cache_); hash routes keys to
// last-access-map shards (see HashInt64/HashAny).
func New[K comparable](name string, bucketSize, maxReuseTime, samplingInterval int64, tunable engine.TunableCache, hash lastaccess.HashFunc[K], opts ...Option[K]) *Sampler[K] {
	s := &Sampler[K]{
		name:             name,
		bucketSize:       bucketSize,
		maxReuseTime:     maxReuseTime,
		samplingInterval: samplingInterval,
		samplingRate:     1.0 / float64(samplingInterval),
		tunable:          tunable,
		hash:             hash,
		numShards:        16,
		logger:           logging.Discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.histogram = make([]atomic.Int64, s.histLen())
	s.lastAccess = lastaccess.New[K](s.numShards, s.hash)
	return s
}

func (s *Sampler[K]) histLen() int {
	return int(s.maxReuseTime/s.bucketSize) + 3
}

func (s *Sampler[K]) GetName() string      { return s.name }
func (s *Sampler[K]) GetBucketSize() int64 { return s.bucketSize }

// ReferenceKey samples a single reference, mirroring
// SamplingLRUAETProfiler::ReferenceKey's run_/run_lock_ gate.
func (s *Sampler[K]) ReferenceKey(key K) {
	if s.runLock.Load() {
		return
	}
	s.run.Add(1)
	if s.runLock.Load() {
		s.run.Add(-1)
		return
	}
	s.doReferenceKey(key)
	s.run.Add(-1)
}

// ReferenceKeyBatch samples a batch of references under a single
// run_/run_lock_ gate check, matching ReferenceKeyBatch's own shape
// (the gate is checked once per batch, not once per key).
func (s *Sampler[K]) ReferenceKeyBatch(keys []K) {
	if s.runLock.Load() {
		return
	}
	s.run.Add(1)
	if s.runLock.Load() {
		s.run.Add(-1)
		return
	}
	for _, k := range keys {
		s.doReferenceKey(k)
	}
	s.run.Add(-1)
}

// doReferenceKey is DoReferenceKey, ported statement-for-statement: a
// Bernoulli-sampled first sighting records reuse distance 0 (counted
// into the histogram only when sampling_interval==1); a resampled key
// records its reuse distance and re-arms (or one-shot-consumes) its
// cell depending on sampling_interval.
func (s *Sampler[K]) doReferenceKey(key K) {
	var reuseDist int64
	ts := s.timestamp.Add(1)

	value, found := s.lastAccess.Lookup(key)
	if !found || value == 0 {
		if rand.Float64() > s.samplingRate {
			return
		}
		if !found || s.samplingInterval == 1 {
			if _, inserted := s.lastAccess.InsertIfAbsent(key, uint64(ts)); !inserted {
				return
			}
		} else {
			s.lastAccess.CAS(key, 0, uint64(ts))
		}
		reuseDist = 0
	} else {
		oldTs := int64(value)
		reuseDist = ts - oldTs
		if s.samplingInterval == 1 {
			s.lastAccess.CAS(key, value, uint64(ts))
		} else {
			s.lastAccess.CAS(key, value, 0)
		}
	}
	if reuseDist > 0 || (reuseDist == 0 && s.samplingInterval == 1) {
		s.increaseHistogram(reuseDist)
	}
}

func (s *Sampler[K]) increaseHistogram(t int64) {
	if t > s.maxReuseTime {
		s.histogram[len(s.histogram)-1].Add(1)
		return
	}
	if t == 0 {
		s.histogram[0].Add(1)
		return
	}
	bucket := (t-1)/s.bucketSize + 1
	s.histogram[bucket].Add(1)
}

// ResetProfiling clears the histogram and last-access map but keeps
// sampling running once the reset completes, mirroring ResetProfiling.
func (s *Sampler[K]) ResetProfiling() {
	s.runLock.Store(true)
	for s.run.Load() != 0 {
	}
	s.timestamp.Store(0)
	for i := range s.histogram {
		s.histogram[i].Store(0)
	}
	s.lastAccess.Reset()
	s.runLock.Store(false)
}

// StopSamplingAndReleaseResource tears down the histogram and
// last-access map entirely and leaves sampling locked out until
// StartSampling re-provisions them, mirroring
// StopSamplingAndReleaseResource (which never clears run_lock_ itself).
func (s *Sampler[K]) StopSamplingAndReleaseResource() {
	s.runLock.Store(true)
	for s.run.Load() != 0 {
	}
	s.timestamp.Store(0)
	s.histogram = nil
	s.lastAccess = nil
}

// StartSampling re-provisions the histogram and last-access map and
// resumes sampling. A no-op if sampling is already running.
func (s *Sampler[K]) StartSampling() {
	if !s.runLock.Load() {
		return
	}
	s.histogram = make([]atomic.Int64, s.histLen())
	s.lastAccess = lastaccess.New[K](s.numShards, s.hash)
	s.runLock.Store(false)
}

// GetMRC reconstructs a miss-ratio curve up to maxCacheSize bytes'
// worth of bucket_size-sized entries, mirroring GetMRC's CCDF
// integration. result[0] is always 1.0; the last element is the
// logical clock value at sample time, letting callers back out an
// absolute miss count via mr * visit_count.
func (s *Sampler[K]) GetMRC(maxCacheSize uint64) []float64 {
	if s.runLock.Load() {
		return []float64{1.0, float64(s.timestamp.Load())}
	}
	s.run.Add(1)
	defer s.run.Add(-1)

	numElem := len(s.histogram)
	hist := histPool.Get(numElem)
	defer histPool.Put(hist)
	for i := 0; i < numElem; i++ {
		hist = append(hist, s.histogram[i].Load())
	}
	timestamp := s.timestamp.Load()

	var reuseTimeSum int64
	if s.samplingInterval != 1 {
		reuseTimeSum += hist[0]
	} else {
		reuseTimeSum += int64(s.lastAccess.CountNonZero())
	}

	prefixSum := prefixSumPool.Get(numElem)
	defer prefixSumPool.Put(prefixSum)
	prefixSum = append(prefixSum, 0)
	lastIndex := 0
	for i := 1; i < numElem; i++ {
		prefixSum = append(prefixSum, prefixSum[lastIndex]+hist[i])
		reuseTimeSum += hist[i]
		lastIndex = i
	}
	prefixSum = prefixSum[:len(prefixSum)-1] // drop the trailing "beyond" total, unused downstream

	probGreater := probGreatPool.Get(numElem - 1)
	defer probGreatPool.Put(probGreater)
	probGreater = append(probGreater, 1.0)
	for i := 1; i < numElem-1; i++ {
		probGreater = append(probGreater, float64(reuseTimeSum-prefixSum[i])/float64(reuseTimeSum))
	}

	numMRCElem := int(maxCacheSize/uint64(s.bucketSize)) + 1
	result := make([]float64, 0, numMRCElem+1)
	var integral float64
	t := 0
	for c := 0; c < numMRCElem; c++ {
		for integral < float64(c) && t < numElem-1 {
			integral += probGreater[t]
			t++
		}
		// The original indexes prob_greater[t-1] unconditionally here;
		// for c==0, t is still 0 and that underflows a size_t index in
		// C++ (benign there only because the read is immediately
		// discarded by the result[0]=1.0 override below). Go slice
		// indexing panics instead of reading adjacent memory, so the
		// t==0 case reads index 0 directly — same discarded value,
		// no crash.
		if t == 0 {
			result = append(result, probGreater[0])
		} else {
			result = append(result, probGreater[t-1])
		}
		if t >= numElem-1 {
			break
		}
	}

	for len(result) > 2 {
		last := len(result) - 1
		if result[last] == result[last-1] {
			result = result[:last]
		} else {
			break
		}
	}
	result = append(result, float64(timestamp))
	result[0] = 1.0
	return result
}

func (s *Sampler[K]) GetCacheSize() int              { return s.tunable.GetCacheSize() }
func (s *Sampler[K]) SetCacheSize(newSize int)       { s.tunable.SetCacheSize(newSize) }
func (s *Sampler[K]) GetCacheEntrySize() int         { return s.tunable.GetCacheEntrySize() }
func (s *Sampler[K]) GetHitRate() float64            { return s.tunable.GetHitRate() }
func (s *Sampler[K]) ResetStat()                     { s.tunable.ResetStat() }
func (s *Sampler[K]) GetMoveCount() (uint64, uint64) { return s.tunable.GetMoveCount() }
func (s *Sampler[K]) ResetMoveCount()                { s.tunable.ResetMoveCount() }
