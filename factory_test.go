package cachetune

import (
	"testing"

	"github.com/embedcache/cachetune/internal/engine"
	"github.com/embedcache/cachetune/internal/manager"
)

func testFactory(t *testing.T) *Factory {
	t.Helper()
	mgr := manager.NewManager(
		manager.WithTotalSize(100000),
		manager.WithMinSize(1000),
		manager.WithTuningUnit(8),
	)
	return NewFactory(Config{
		ProfilerBucketSize:       10,
		ProfilerMaxReuseDist:     100000,
		ProfilerSamplingInterval: 1,
	}, mgr)
}

func TestNewPlainLRU(t *testing.T) {
	f := testFactory(t)
	cache, err := New[int64](f, LRU, "plain", NoProfiling)
	if err != nil {
		t.Fatalf("New(LRU) error: %v", err)
	}
	if err := cache.Update([]int64{1, 2, 3}); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if cache.Size() != 3 {
		t.Fatalf("Size() = %d, want 3", cache.Size())
	}
}

func TestNewLFUDefaultFallback(t *testing.T) {
	f := testFactory(t)
	cache, err := New[int64](f, CacheStrategy(999), "invalid", NoProfiling)
	if err != nil {
		t.Fatalf("New(invalid) error: %v", err)
	}
	if _, ok := cache.(*engine.LFU[int64]); !ok {
		t.Fatalf("New(invalid strategy) = %T, want *engine.LFU[int64] fallback", cache)
	}
}

func TestNewShardedLRU(t *testing.T) {
	f := testFactory(t)
	cache, err := New[int64](f, ShardedLRUStrategy, "sharded", NoProfiling)
	if err != nil {
		t.Fatalf("New(ShardedLRU) error: %v", err)
	}
	if _, ok := cache.(*engine.ShardedLRU[int64]); !ok {
		t.Fatalf("New(ShardedLRU) = %T, want *engine.ShardedLRU[int64]", cache)
	}
}

func TestNewBlockLockLFUVariants(t *testing.T) {
	f := testFactory(t)
	eight, err := New[int64](f, BlockLockLFU8, "b8", NoProfiling)
	if err != nil {
		t.Fatalf("New(BlockLockLFU8) error: %v", err)
	}
	sixtyfour, err := New[int64](f, BlockLockLFU64, "b64", NoProfiling)
	if err != nil {
		t.Fatalf("New(BlockLockLFU64) error: %v", err)
	}
	if _, ok := eight.(*engine.BlockLockLFU[int64]); !ok {
		t.Fatalf("New(BlockLockLFU8) = %T, want *engine.BlockLockLFU[int64]", eight)
	}
	if _, ok := sixtyfour.(*engine.BlockLockLFU[int64]); !ok {
		t.Fatalf("New(BlockLockLFU64) = %T, want *engine.BlockLockLFU[int64]", sixtyfour)
	}
}

func TestNewProfiledLRURegistersWithManager(t *testing.T) {
	f := testFactory(t)
	cache, err := New[int64](f, ProfiledLRU, "profiled", AET)
	if err != nil {
		t.Fatalf("New(ProfiledLRU) error: %v", err)
	}
	profiled, ok := cache.(*engine.Profiled[int64])
	if !ok {
		t.Fatalf("New(ProfiledLRU) = %T, want *engine.Profiled[int64]", cache)
	}
	if got := profiled.GetCacheEntrySize(); got != defaultEntrySize {
		t.Fatalf("GetCacheEntrySize() = %d, want %d", got, defaultEntrySize)
	}

	if err := cache.Update([]int64{1, 2, 3}); err != nil {
		t.Fatalf("Update error: %v", err)
	}

	profiled.Close()
	f.Manager.Stop()
}

func TestNewProfiledLRURejectsUnknownProfilingStrategy(t *testing.T) {
	f := testFactory(t)
	_, err := New[int64](f, ProfiledLRU, "bad-profiling", ProfilingStrategy(42))
	if err == nil {
		t.Fatal("New(ProfiledLRU, unknown ProfilingStrategy) returned nil error")
	}
	f.Manager.Stop()
}
