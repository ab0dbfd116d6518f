package engine

// Sampler is the subset of *profiler.Sampler[K] that Profiled needs:
// feeding reference batches into the AET histogram. Declared here rather
// than importing internal/profiler directly so engine has no dependency
// on profiler or manager — the factory in the root cachetune package
// wires concrete implementations together.
type Sampler[K comparable] interface {
	ReferenceKeyBatch(keys []K)
}

// AccessReporter is the subset of *manager.Manager that Profiled needs:
// bumping the process-wide access-byte counter that drives the tuner
// loop's "has enough traffic accumulated to re-tune" check.
type AccessReporter interface {
	Access(bytes int)
}

// TunableEngine is the Cache[K] + TunableCache pair every concrete engine
// in this package satisfies; Profiled embeds this combined interface so
// SetCacheSize/GetCacheSize/etc. forward to the wrapped engine without
// Profiled re-declaring them one by one.
type TunableEngine[K comparable] interface {
	Cache[K]
	TunableCache
}

// Profiled decorates any Cache[K] + TunableCache, forwarding every
// update to a sampler and reporting bytes touched to the manager's
// access counter. Per spec.md §4.5 and the REDESIGN FLAG recorded in
// SPEC_FULL.md §4.6: AddToCache is intentionally left unoverridden here
// (admission is not a reference event) even though the original
// ProfiledLRUCache (profiled_cache.h) does instrument its add_to_cache.
// Go's struct embedding makes "don't instrument this operation" the
// natural default — simply not overriding it — rather than an explicit
// branch, which is the idiom this wrapper leans on.
type Profiled[K comparable] struct {
	TunableEngine[K]

	name           string
	entrySize      int
	sampler        Sampler[K]
	reporter       AccessReporter
	samplingActive func() bool
	unregister     func()
}

// NewProfiled wraps inner with sampling and access-reporting.
// samplingActive may be nil, meaning "always sample"; reporter may be nil,
// meaning "do not report access bytes" (useful in tests).
func NewProfiled[K comparable](name string, inner TunableEngine[K], entrySize int, sampler Sampler[K], reporter AccessReporter, samplingActive func() bool) *Profiled[K] {
	return &Profiled[K]{
		TunableEngine:  inner,
		name:           name,
		entrySize:      entrySize,
		sampler:        sampler,
		reporter:       reporter,
		samplingActive: samplingActive,
	}
}

// SetUnregister installs the callback Close invokes, letting the factory
// wire in the manager's UnregisterCache without engine importing manager.
func (p *Profiled[K]) SetUnregister(fn func()) { p.unregister = fn }

// SetEntrySize sets the per-entry byte cost on the wrapped engine, when the
// engine has a SetEntrySize method, and uses the same value for the bytes
// this wrapper reports per referenced key.
func (p *Profiled[K]) SetEntrySize(n int) {
	if s, ok := p.TunableEngine.(interface{ SetEntrySize(int) }); ok {
		s.SetEntrySize(n)
	}
	p.entrySize = n
}

// Close unregisters this wrapper from the manager, mirroring
// ProfiledLRUCache's destructor (~ProfiledLRUCache calls
// CacheManager::UnregisterCache).
func (p *Profiled[K]) Close() {
	if p.unregister != nil {
		p.unregister()
	}
}

func (p *Profiled[K]) Update(keys []K) error {
	if err := p.TunableEngine.Update(keys); err != nil {
		return err
	}
	p.reference(keys)
	return nil
}

func (p *Profiled[K]) UpdateWithFreqs(keys []K, freqs []int64) error {
	if err := p.TunableEngine.UpdateWithFreqs(keys, freqs); err != nil {
		return err
	}
	p.reference(keys)
	return nil
}

func (p *Profiled[K]) reference(keys []K) {
	if p.sampler != nil && (p.samplingActive == nil || p.samplingActive()) {
		p.sampler.ReferenceKeyBatch(keys)
	}
	if p.reporter != nil {
		p.reporter.Access(len(keys) * p.entrySize)
	}
}

// Name returns the registered cache name, used by the manager registry.
func (p *Profiled[K]) Name() string { return p.name }
