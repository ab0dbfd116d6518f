// Package tuning implements the tuning strategy that proposes a new
// per-cache size vector given each cache's sampled MRC, grounded on
// _examples/original_source/.../cache_tuning_strategy.h.
package tuning

import (
	"errors"
	"math"

	"github.com/embedcache/cachetune/internal/logging"
)

// ErrInsufficientBudget is returned when the total byte budget is not
// larger than numParts*minSize, matching the original's LOG(FATAL) in
// RandomApportion — a configuration error per spec.md §7, reported here
// as a typed error rather than aborting.
var ErrInsufficientBudget = errors.New("tuning: total budget not larger than n*min_size")

// CacheItem is one cache's tuner-visible working record, grounded on
// cache_tuning_strategy.h's CacheItem struct.
type CacheItem struct {
	BucketSize int64
	OrigSize   int64
	NewSize    int64
	EntrySize  int64
	VC         uint64
	MC         uint64
	MR         float64
	MRC        []float64
}

// Strategy proposes a new size for each cache in caches (keyed by cache
// name, standing in for the original's CacheMRCProfiler<K>* pointer
// identity — a Go map needs a comparable key and the manager already
// identifies caches by name), given a total byte budget, a per-resize
// granularity unit, and a per-cache floor minSize. It reports whether it
// committed a change.
type Strategy interface {
	DoTune(totalSize int64, caches map[string]*CacheItem, unit, minSize int64) bool
}

// InterpolateMRC linearly interpolates mrc (bucket_size-quantized) at
// target entries, clamped to the second-to-last sample beyond the
// observed range. Mirrors InterpolateMRC; the original's additional
// `if mrc.size() == 2` branch is unreachable dead code there (the
// preceding `bucket_int >= mrc.size()-2` check already catches every
// such target, since bucket_int is always >= 0), so it is not ported.
func InterpolateMRC(mrc []float64, bucketSize int64, target int64) float64 {
	bucket := float64(target) / float64(bucketSize)
	bucketInt := int(math.Floor(bucket))
	if bucketInt >= len(mrc)-2 {
		return mrc[len(mrc)-2]
	}
	return mrc[bucketInt] + (bucket-float64(bucketInt))*(mrc[bucketInt+1]-mrc[bucketInt])
}

// Registry maps a strategy key to a constructor, mirroring
// CacheTuningStrategyCreator. Build one with NewRegistry; the zero value
// has no strategies registered.
type Registry struct {
	factories map[string]func() Strategy
	logger    logging.Logger
}

// NewRegistry creates a Registry seeded with the built-in strategies.
func NewRegistry(logger logging.Logger) *Registry {
	return &Registry{
		factories: map[string]func() Strategy{
			"min_mc_random_greedy": func() Strategy { return NewMinMissCountRandomGreedy() },
		},
		logger: logging.OrDefault(logger),
	}
}

// Register adds or replaces a named strategy constructor.
func (r *Registry) Register(name string, factory func() Strategy) {
	r.factories[name] = factory
}

// Create mirrors CacheTuningStrategyCreator::Create: an unknown name
// logs and falls back to "min_mc_random_greedy" rather than failing,
// per spec.md §7's "Recoverable" error class.
func (r *Registry) Create(name string) Strategy {
	if factory, ok := r.factories[name]; ok {
		return factory()
	}
	r.logger.Infof("%sCreate: %q not valid, using default %q strategy", logging.NSTuner, name, "min_mc_random_greedy")
	return r.factories["min_mc_random_greedy"]()
}
