/*
Package cachetune provides a self-tuning multi-cache subsystem for a
multi-tier embedding-variable lookup service: concurrent cache engines
(LRU, ShardedLRU, LFU, BlockLockLFU), a reuse-distance sampler feeding an
AET/miss-ratio-curve reconstruction, and a background tuning controller
that re-apportions a shared byte budget across live caches as their
sampled miss ratios shift.

# Usage

Build a cache through Factory:

	factory := cachetune.NewFactory(cfg, nil) // nil uses the process-wide manager
	cache, err := cachetune.New[int64](factory, cachetune.ProfiledLRU, "hot-tier", cachetune.AET)

Every cache strategy implements engine.Cache[K]: batch Update, eviction,
prefetch/admit, and statistics. Profiled* strategies additionally register
with the manager so the background tuner can resize them as their
predicted miss ratio changes relative to the other registered caches.

# Concurrency

Every cache engine is safe for concurrent use by multiple goroutines. The
manager's tuner loop runs on its own goroutine once the first cache
registers, and exits once the registry empties or Stop is called.

# Configuration

All tunable parameters are read once from the environment; see Config and
internal/manager.NewManager for the full variable list and defaults.

Reference: DeepRec tensorflow/core/framework/embedding/cache*.h
*/
package cachetune
