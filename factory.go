package cachetune

import (
	"fmt"

	"github.com/embedcache/cachetune/internal/engine"
	"github.com/embedcache/cachetune/internal/logging"
	"github.com/embedcache/cachetune/internal/manager"
	"github.com/embedcache/cachetune/internal/profiler"
	"github.com/embedcache/cachetune/internal/profiler/lastaccess"
)

// CacheStrategy selects the cache engine a Factory builds, grounded on
// _examples/original_source/.../cache_factory.h's CacheStrategy switch.
// This is a plain Go enum rather than the original's generated protobuf
// type — the protobuf toolchain is explicitly out of scope (spec.md §1).
type CacheStrategy int

// defaultEntrySize is the per-entry byte cost a Profiled cache reports to
// the sampler and tuner before the caller has reported anything more
// specific via SetEntrySize, mirroring MockTunableCache's hardcoded
// 8-byte GetCacheEntrySize in the original (an embedding id's width).
const defaultEntrySize = 8

const (
	// LRU is a plain mutex-guarded LRU cache (C1a).
	LRU CacheStrategy = iota
	// LFUStrategy is an arena-indexed frequency-bucketed LFU cache (C1c).
	LFUStrategy
	// ShardedLRUStrategy is a sharded-by-mask LRU cache (C1b).
	ShardedLRUStrategy
	// ProfiledLRU wraps LRU with the AET sampler and registers with the manager.
	ProfiledLRU
	// ProfiledShardedLRU wraps ShardedLRU with the AET sampler and registers with the manager.
	ProfiledShardedLRU
	// BlockLockLFU8 is an 8-way block-locked LFU cache (C1d).
	BlockLockLFU8
	// BlockLockLFU64 is a 64-way block-locked LFU cache (C1d).
	BlockLockLFU64
)

// ProfilingStrategy selects the sampler implementation backing a Profiled
// cache strategy, grounded on spec.md §6's CacheStrategy/ProfilingStrategy
// pairing. Only AET is implemented. Non-Profiled strategies ignore the
// value; a Profiled strategy given NoProfiling still builds the AET sampler.
type ProfilingStrategy int

const (
	// NoProfiling selects no sampler; a Profiled strategy given it still
	// builds the AET sampler, exactly as for AET.
	NoProfiling ProfilingStrategy = iota
	// AET selects the reuse-distance / average-eviction-time sampler (C2).
	AET
)

// Factory builds cache engines from a CacheStrategy, wiring the AET
// sampler and cache manager for Profiled variants. Grounded on
// _examples/original_source/.../cache_factory.h's CacheFactory::Create.
type Factory struct {
	Config  Config
	Manager *manager.Manager
	Logger  logging.Logger
}

// NewFactory constructs a Factory bound to cfg and mgr. Pass nil for mgr
// to use the process-wide manager.Default().
func NewFactory(cfg Config, mgr *manager.Manager) *Factory {
	if mgr == nil {
		mgr = manager.Default()
	}
	return &Factory{Config: cfg, Manager: mgr, Logger: logging.OrDefault(nil)}
}

// accessReporter adapts *manager.Manager's uint64 Access to
// engine.AccessReporter's int Access, since internal/engine declares its
// own minimal interface to avoid importing internal/manager.
type accessReporter struct{ mgr *manager.Manager }

func (a accessReporter) Access(bytes int) { a.mgr.Access(uint64(bytes)) }

// New builds a cache of the given strategy. K must satisfy
// engine.ShardableKey (the sharded variants route by key-mask) — the
// expected production instantiation is int64, matching spec.md §3.
// Go does not allow generic methods, so this is a package-level function
// taking the Factory explicitly, the idiomatic substitute for
// "Factory.New[K]" named in SPEC_FULL.md §6.
func New[K engine.ShardableKey](f *Factory, strategy CacheStrategy, name string, profiling ProfilingStrategy) (engine.Cache[K], error) {
	switch strategy {
	case LRU:
		return engine.NewLRU[K](name), nil

	case LFUStrategy:
		return engine.NewLFU[K](name), nil

	case ShardedLRUStrategy:
		shard, err := engine.NewShardedLRU[K](name, int(f.Config.ShardShift))
		if err != nil {
			return nil, err
		}
		return shard, nil

	case BlockLockLFU8:
		return engine.NewBlockLockLFU[K](name, 8), nil

	case BlockLockLFU64:
		return engine.NewBlockLockLFU[K](name, 64), nil

	case ProfiledLRU:
		inner := engine.NewLRU[K](name)
		inner.SetEntrySize(defaultEntrySize)
		return wrapProfiled[K](f, name, inner, profiling)

	case ProfiledShardedLRU:
		inner, err := engine.NewShardedLRU[K](name, int(f.Config.ShardShift))
		if err != nil {
			return nil, err
		}
		inner.SetEntrySize(defaultEntrySize)
		return wrapProfiled[K](f, name, inner, profiling)

	default:
		f.Logger.Infof("%sinvalid cache strategy %v for %q, using LFU", logging.NSManager, strategy, name)
		return engine.NewLFU[K](name), nil
	}
}

// wrapProfiled wires inner into an AET sampler and a Profiled decorator,
// registers the sampler with the manager so the tuner loop can resize
// inner, and installs the unregister callback. Mirrors the Profiled*
// branch of CacheFactory::Create, which constructs the profiler and
// calls CacheManager::GetInstance().RegisterCache. A package-level
// generic function rather than a method on *Factory, since Go forbids a
// method from introducing its own type parameter.
func wrapProfiled[K engine.ShardableKey](f *Factory, name string, inner engine.TunableEngine[K], profiling ProfilingStrategy) (engine.Cache[K], error) {
	if profiling != AET && profiling != NoProfiling {
		return nil, fmt.Errorf("cachetune: unknown profiling strategy %v", profiling)
	}

	entrySize := inner.GetCacheEntrySize()
	hash := lastaccess.HashFunc[K](profiler.HashAny[K])
	sampler := profiler.New[K](
		name,
		f.Config.ProfilerBucketSize,
		f.Config.ProfilerMaxReuseDist,
		f.Config.ProfilerSamplingInterval,
		inner,
		hash,
	)

	wrapped := engine.NewProfiled[K](name, inner, entrySize, sampler, accessReporter{f.Manager}, f.Manager.SamplingActive)
	wrapped.SetUnregister(func() { f.Manager.UnregisterCache(name) })
	f.Manager.RegisterCache(sampler)
	return wrapped, nil
}
