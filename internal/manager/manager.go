// Package manager implements the process-wide cache registry and the
// background tuner loop that re-apportions a shared byte budget across
// every registered cache, grounded on
// _examples/original_source/.../cache_manager.h/.cc.
package manager

import (
	"context"
	"math"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/embedcache/cachetune/internal/logging"
	"github.com/embedcache/cachetune/internal/tuning"
)

// Profiler is the subset of *profiler.Sampler[K]'s surface the manager
// needs. It is deliberately non-generic — Sampler[K]'s methods never
// expose K in their signatures, so any instantiation satisfies this
// interface structurally, letting one registry hold caches keyed by
// different K at once. Mirrors CacheMRCProfiler.
type Profiler interface {
	GetName() string
	GetBucketSize() int64
	GetCacheSize() int
	SetCacheSize(newSize int)
	GetCacheEntrySize() int
	GetHitRate() float64
	ResetStat()
	GetMoveCount() (promotions, demotions uint64)
	ResetMoveCount()
	GetMRC(maxCacheSize uint64) []float64
	ResetProfiling()
}

type cacheStat struct {
	prevPromotion uint64
	prevDemotion  uint64
}

// Manager is the process-wide registry and tuner, mirroring CacheManager.
// The zero value is not usable; construct with NewManager or use Default.
type Manager struct {
	mu       sync.Mutex
	registry map[string]Profiler
	stats    map[string]*cacheStat

	accessCount atomic.Uint64
	step        atomic.Uint64

	samplingActive  atomic.Bool
	notuneCounter   int64
	notuneThreshold int64

	totalSize      int64
	minSize        int64
	tuningUnit     int64
	tuningInterval int64
	clearStat      bool

	strategy tuning.Strategy
	logger   logging.Logger

	threadStarted atomic.Bool
	cancel        context.CancelFunc
	done          chan struct{}
}

// Option configures a Manager at construction, overriding an
// environment-derived default.
type Option func(*Manager)

// WithTotalSize overrides the CACHE_TOTAL_SIZE default.
func WithTotalSize(n int64) Option { return func(m *Manager) { m.totalSize = n } }

// WithMinSize overrides the CACHE_MIN_SIZE default.
func WithMinSize(n int64) Option { return func(m *Manager) { m.minSize = n } }

// WithTuningUnit overrides the CACHE_TUNING_UNIT default.
func WithTuningUnit(n int64) Option { return func(m *Manager) { m.tuningUnit = n } }

// WithTuningInterval overrides the CACHE_TUNING_INTERVAL default.
func WithTuningInterval(n int64) Option { return func(m *Manager) { m.tuningInterval = n } }

// WithStableSteps overrides the CACHE_STABLE_STEPS default.
func WithStableSteps(n int64) Option { return func(m *Manager) { m.notuneThreshold = n } }

// WithClearStat overrides the CACHE_PROFLER_CLEAR default.
func WithClearStat(clear bool) Option { return func(m *Manager) { m.clearStat = clear } }

// WithStrategy overrides the CACHE_TUNING_STRATEGY default.
func WithStrategy(s tuning.Strategy) Option { return func(m *Manager) { m.strategy = s } }

// WithLogger installs a logger for the manager's LOG(INFO)-equivalent lines.
func WithLogger(logger logging.Logger) Option {
	return func(m *Manager) { m.logger = logging.OrDefault(logger) }
}

func envInt64(name string, def int64) int64 {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envBool(name string, def bool) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envString(name, def string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return def
}

// NewManager constructs a Manager, reading CACHE_TOTAL_SIZE, CACHE_MIN_SIZE,
// CACHE_TUNING_UNIT, CACHE_TUNING_INTERVAL, CACHE_TUNING_STRATEGY,
// CACHE_PROFLER_CLEAR, and CACHE_STABLE_STEPS from the environment (with
// spec-documented defaults), mirroring CacheManager's constructor. Options
// override any env-derived value.
func NewManager(opts ...Option) *Manager {
	logger := logging.OrDefault(nil)
	m := &Manager{
		registry:        make(map[string]Profiler),
		stats:           make(map[string]*cacheStat),
		totalSize:       envInt64("CACHE_TOTAL_SIZE", 32*1024*1024),
		minSize:         envInt64("CACHE_MIN_SIZE", 2048*128*8),
		tuningUnit:      envInt64("CACHE_TUNING_UNIT", 8*128),
		tuningInterval:  envInt64("CACHE_TUNING_INTERVAL", 100000),
		notuneThreshold: envInt64("CACHE_STABLE_STEPS", 5),
		clearStat:       envBool("CACHE_PROFLER_CLEAR", true),
		logger:          logger,
	}
	m.step.Store(1)
	m.samplingActive.Store(true)

	registry := tuning.NewRegistry(logger)
	m.strategy = registry.Create(envString("CACHE_TUNING_STRATEGY", "min_mc_random_greedy"))

	for _, opt := range opts {
		opt(m)
	}
	return m
}

var (
	defaultOnce    sync.Once
	defaultManager *Manager
)

// Default returns the process-wide Manager singleton, constructing it on
// first use. Mirrors CacheManager::GetInstance.
func Default() *Manager {
	defaultOnce.Do(func() { defaultManager = NewManager() })
	return defaultManager
}

// RegisterCache adds cache to the registry under a mutex, seeds its stats
// row, applies an immediate equal apportionment of the total byte budget
// across every currently-registered cache, and starts the tuner loop on
// first registration. A name collision logs a warning and replaces the
// existing entry, matching the original's unresolved "TODO: name conflict".
func (m *Manager) RegisterCache(cache Profiler) {
	m.mu.Lock()
	name := cache.GetName()
	if _, exists := m.registry[name]; exists {
		m.logger.Warnf("%sRegisterCache: name %q already registered, replacing", logging.NSManager, name)
	}
	m.registry[name] = cache
	m.stats[name] = &cacheStat{}

	size := m.totalSize / int64(len(m.registry))
	for _, c := range m.registry {
		c.SetCacheSize(int(size))
	}
	needStart := m.threadStarted.CompareAndSwap(false, true)
	m.mu.Unlock()

	if needStart {
		m.startTuner()
	}
}

// UnregisterCache removes the named cache and drops its stats row.
func (m *Manager) UnregisterCache(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.registry, name)
	delete(m.stats, name)
}

// Access bumps the lock-free byte-access counter. Mirrors
// CacheManager::Access.
func (m *Manager) Access(bytes uint64) {
	m.accessCount.Add(bytes)
}

// SamplingActive reports whether the sampler pipeline is currently active.
func (m *Manager) SamplingActive() bool {
	return m.samplingActive.Load()
}

// Tune snapshots the registry, runs the tuning strategy, and applies the
// resulting sizes. Mirrors CacheManager::Tune + DoTune, merged into one
// method since the original's split exists only to let Tune add its own
// LOG(INFO) nanosecond line around DoTune's body — logging this manager
// does not track per-operation nanoseconds for.
func (m *Manager) Tune(totalSize, unit int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.samplingActive.Load() {
		return
	}

	names := make([]string, 0, len(m.registry))
	for name := range m.registry {
		names = append(names, name)
	}
	sort.Strings(names)

	items := make(map[string]*tuning.CacheItem, len(names))
	var origMCSum uint64 // accumulated but never read, same as the original
	for _, name := range names {
		cache := m.registry[name]
		bucketSize := cache.GetBucketSize()
		size := int64(cache.GetCacheSize())
		entrySize := int64(cache.GetCacheEntrySize())
		numEntries := size / entrySize
		mrc := cache.GetMRC(uint64(size * 10))
		mr := tuning.InterpolateMRC(mrc, bucketSize, numEntries)
		vc := uint64(mrc[len(mrc)-1])
		mc := uint64(mr * float64(vc))

		actualHR := cache.GetHitRate()
		actualHC := uint64(actualHR * float64(vc))
		estimatedHC := vc - mc
		var relErr float64
		if actualHC != 0 {
			relErr = float64(int64(estimatedHC)-int64(actualHC)) / float64(actualHC)
		}
		m.logger.Infof("%sCache %q estimated hit count=%d, actual hit count=%d, relative error=%v",
			logging.NSManager, name, estimatedHC, actualHC, relErr)

		origMCSum += mc
		items[name] = &tuning.CacheItem{
			BucketSize: bucketSize,
			OrigSize:   size,
			NewSize:    size,
			EntrySize:  entrySize,
			VC:         vc,
			MC:         mc,
			MR:         mr,
			MRC:        mrc,
		}
		if m.clearStat {
			cache.ResetProfiling()
			cache.ResetStat()
		}
	}

	success := m.strategy.DoTune(totalSize, items, unit, m.minSize)
	if success {
		for name, item := range items {
			m.registry[name].SetCacheSize(int(item.NewSize))
		}
		m.notuneCounter = 0
	} else {
		m.notuneCounter++
	}

	if m.notuneCounter > m.notuneThreshold {
		m.samplingActive.Store(false)
		for _, cache := range m.registry {
			cache.ResetProfiling()
		}
		m.logger.Infof("%s%d continuous tuning attempts did not succeed, stop sampling", logging.NSManager, m.notuneCounter)
	}
	m.logger.Infof("%stuning done", logging.NSManager)
}

func (m *Manager) checkCache() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.registry) > 0
}

// driftCheck reads each cache's promotion/demotion counters and compares
// them against the previous tick. A relative change of more than 20% on
// either counter reactivates sampling. Mirrors the per-tick body of
// CacheManager::TuneLoop.
func (m *Manager) driftCheck() {
	m.mu.Lock()
	defer m.mu.Unlock()

	reactivate := false
	for name, cache := range m.registry {
		promotions, demotions := cache.GetMoveCount()
		cache.ResetMoveCount()
		stat := m.stats[name]

		if stat.prevPromotion != 0 {
			diff := int64(stat.prevPromotion) - int64(promotions)
			relDiff := math.Abs(float64(diff)) / float64(stat.prevPromotion)
			if relDiff > 0.2 {
				reactivate = true
				m.logger.Infof("%s%q promotion diff: %v, reactivating sampling", logging.NSManager, name, relDiff)
			}
		}
		if stat.prevDemotion != 0 {
			diff := int64(stat.prevDemotion) - int64(demotions)
			relDiff := math.Abs(float64(diff)) / float64(stat.prevDemotion)
			if relDiff > 0.2 {
				reactivate = true
				m.logger.Infof("%s%q demotion diff: %v, reactivating sampling", logging.NSManager, name, relDiff)
			}
		}
		stat.prevPromotion = promotions
		stat.prevDemotion = demotions
	}

	if reactivate {
		m.notuneCounter = 0
		m.samplingActive.Store(true)
	}
}

func (m *Manager) registrySize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.registry)
}

func (m *Manager) startTuner() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.tuneLoop(ctx)
}

// tuneLoop runs until the registry empties or ctx is cancelled, mirroring
// CacheManager::TuneLoop: once access_count crosses step*interval*|registry|,
// run the drift check and (if sampling is active) Tune, then advance step.
func (m *Manager) tuneLoop(ctx context.Context) {
	defer close(m.done)
	m.logger.Infof("%stuning loop begin", logging.NSManager)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for m.checkCache() {
		count := m.accessCount.Load()
		cacheCount := int64(m.registrySize())
		if cacheCount > 0 {
			threshold := m.step.Load() * uint64(m.tuningInterval) * uint64(cacheCount)
			if count > threshold {
				m.driftCheck()
				if m.SamplingActive() {
					m.Tune(m.totalSize, m.tuningUnit)
				}
				newStep := uint64(math.Round(float64(count)/float64(m.tuningInterval*cacheCount))) + 1
				m.step.Store(newStep)
			}
		}

		select {
		case <-ctx.Done():
			m.logger.Infof("%stuning loop cancelled", logging.NSManager)
			return
		case <-ticker.C:
		}
	}
	m.threadStarted.Store(false)
	m.logger.Infof("%stuning thread exit", logging.NSManager)
}

// Stop cancels the tuner loop and blocks until it exits. Safe to call even
// if no tuner was ever started.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}
