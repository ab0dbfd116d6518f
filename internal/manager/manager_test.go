package manager

import (
	"reflect"
	"testing"
	"time"
)

type fakeProfiler struct {
	name       string
	bucketSize int64
	cacheSize  int
	entrySize  int64
	hitRate    float64
	promotions uint64
	demotions  uint64
	mrc        []float64
	resets     int
}

func (f *fakeProfiler) GetName() string         { return f.name }
func (f *fakeProfiler) GetBucketSize() int64    { return f.bucketSize }
func (f *fakeProfiler) GetCacheSize() int       { return f.cacheSize }
func (f *fakeProfiler) SetCacheSize(n int)      { f.cacheSize = n }
func (f *fakeProfiler) GetCacheEntrySize() int  { return int(f.entrySize) }
func (f *fakeProfiler) GetHitRate() float64     { return f.hitRate }
func (f *fakeProfiler) ResetStat()              {}
func (f *fakeProfiler) GetMoveCount() (uint64, uint64) {
	return f.promotions, f.demotions
}
func (f *fakeProfiler) ResetMoveCount()             { f.promotions, f.demotions = 0, 0 }
func (f *fakeProfiler) GetMRC(_ uint64) []float64   { return f.mrc }
func (f *fakeProfiler) ResetProfiling()             { f.resets++ }

func newFakeProfiler(name string) *fakeProfiler {
	return &fakeProfiler{
		name:       name,
		bucketSize: 10,
		cacheSize:  4096,
		entrySize:  8,
		hitRate:    0.5,
		mrc:        []float64{1.0, 0.9, 0.7, 0.5, 0.3, 100000},
	}
}

// TestRegisterCacheIdempotentOnUnregister verifies that registering then
// unregistering a cache returns the manager's registry and stats to their
// pre-registration state.
func TestRegisterCacheIdempotentOnUnregister(t *testing.T) {
	m := NewManager(WithTotalSize(10000), WithMinSize(10), WithTuningUnit(8))
	before := len(m.registry)

	c := newFakeProfiler("a")
	m.RegisterCache(c)
	if len(m.registry) != before+1 {
		t.Fatalf("len(registry) after register = %d, want %d", len(m.registry), before+1)
	}

	m.UnregisterCache("a")
	m.Stop()
	if len(m.registry) != before {
		t.Fatalf("len(registry) after unregister = %d, want %d", len(m.registry), before)
	}
	if _, ok := m.stats["a"]; ok {
		t.Fatal("stats row for \"a\" survived UnregisterCache")
	}
}

func TestRegisterCacheAppliesEqualApportionment(t *testing.T) {
	m := NewManager(WithTotalSize(10000), WithMinSize(1), WithTuningUnit(1))
	a := newFakeProfiler("a")
	b := newFakeProfiler("b")
	m.RegisterCache(a)
	m.RegisterCache(b)
	defer m.Stop()

	if a.cacheSize != 5000 || b.cacheSize != 5000 {
		t.Fatalf("apportioned sizes = (%d, %d), want (5000, 5000)", a.cacheSize, b.cacheSize)
	}
}

func TestRegisterCacheStartsTunerOnce(t *testing.T) {
	m := NewManager(WithTotalSize(10000), WithMinSize(1), WithTuningUnit(1))
	m.RegisterCache(newFakeProfiler("a"))
	if !m.threadStarted.Load() {
		t.Fatal("threadStarted not set after first RegisterCache")
	}
	cancelBefore := m.cancel
	m.RegisterCache(newFakeProfiler("b"))
	if reflect.ValueOf(m.cancel).Pointer() != reflect.ValueOf(cancelBefore).Pointer() {
		t.Fatal("a second RegisterCache restarted the tuner thread")
	}
	m.Stop()
}

func TestAccessAccumulates(t *testing.T) {
	m := NewManager()
	m.Access(100)
	m.Access(50)
	if got := m.accessCount.Load(); got != 150 {
		t.Fatalf("accessCount = %d, want 150", got)
	}
}

// TestDriftCheckReactivatesOnLargePromotionSwing exercises the 20%
// relative-change threshold: a cache whose promotion count swings from 100
// to 40 (a 60% drop) between ticks must flip sampling back on, even if it
// had been switched off by prior tuning declines.
func TestDriftCheckReactivatesOnLargePromotionSwing(t *testing.T) {
	m := NewManager()
	c := newFakeProfiler("a")
	m.mu.Lock()
	m.registry["a"] = c
	m.stats["a"] = &cacheStat{prevPromotion: 100, prevDemotion: 0}
	m.mu.Unlock()
	m.samplingActive.Store(false)
	m.notuneCounter = 3

	c.promotions = 40
	m.driftCheck()

	if !m.SamplingActive() {
		t.Fatal("driftCheck did not reactivate sampling on a 60% promotion swing")
	}
	if m.notuneCounter != 0 {
		t.Fatalf("notuneCounter = %d after reactivation, want 0", m.notuneCounter)
	}
}

func TestDriftCheckStaysQuietOnSmallSwing(t *testing.T) {
	m := NewManager()
	c := newFakeProfiler("a")
	m.mu.Lock()
	m.registry["a"] = c
	m.stats["a"] = &cacheStat{prevPromotion: 100, prevDemotion: 0}
	m.mu.Unlock()
	m.samplingActive.Store(false)

	c.promotions = 95 // 5% swing, below the 20% threshold
	m.driftCheck()

	if m.SamplingActive() {
		t.Fatal("driftCheck reactivated sampling on a 5% promotion swing")
	}
}

func TestTuneAppliesStrategyResult(t *testing.T) {
	m := NewManager(WithMinSize(1), WithTuningUnit(8))
	a := newFakeProfiler("a")
	a.cacheSize = 8000
	a.bucketSize = 500
	a.mrc = []float64{1.0, 0.95, 0.3, 0.1, 0.05, 100000}
	b := newFakeProfiler("b")
	b.cacheSize = 8000
	b.bucketSize = 500
	b.mrc = []float64{1.0, 0.99, 0.98, 0.97, 0.96, 100000}

	m.mu.Lock()
	m.registry["a"] = a
	m.registry["b"] = b
	m.stats["a"] = &cacheStat{}
	m.stats["b"] = &cacheStat{}
	m.mu.Unlock()

	m.Tune(16000, 8)

	if a.cacheSize == 8000 && b.cacheSize == 8000 {
		t.Fatal("Tune left both cache sizes unchanged despite a steep-vs-flat MRC pair")
	}
}

func TestTuneNoopWhenSamplingInactive(t *testing.T) {
	m := NewManager()
	m.samplingActive.Store(false)
	a := newFakeProfiler("a")
	m.mu.Lock()
	m.registry["a"] = a
	m.mu.Unlock()

	m.Tune(10000, 8)
	if a.resets != 0 {
		t.Fatal("Tune touched a cache while sampling was inactive")
	}
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	m := NewManager()
	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked with no tuner ever started")
	}
}
