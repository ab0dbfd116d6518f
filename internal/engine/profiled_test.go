package engine

import "testing"

type fakeSampler struct {
	batches [][]int
}

func (s *fakeSampler) ReferenceKeyBatch(keys []int) {
	s.batches = append(s.batches, append([]int(nil), keys...))
}

type fakeReporter struct {
	bytes int
}

func (r *fakeReporter) Access(n int) { r.bytes += n }

func TestProfiledInstrumentsUpdate(t *testing.T) {
	sampler := &fakeSampler{}
	reporter := &fakeReporter{}
	p := NewProfiled[int]("t", NewLRU[int]("t"), 8, sampler, reporter, nil)

	if err := p.Update([]int{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if len(sampler.batches) != 1 || len(sampler.batches[0]) != 3 {
		t.Fatalf("sampler batches = %v, want one batch of 3", sampler.batches)
	}
	if reporter.bytes != 3*8 {
		t.Fatalf("reporter bytes = %d, want %d", reporter.bytes, 3*8)
	}
	if p.Size() != 3 {
		t.Fatalf("Size() = %d, want 3 (forwarded to wrapped engine)", p.Size())
	}
}

func TestProfiledInstrumentsUpdateWithFreqs(t *testing.T) {
	sampler := &fakeSampler{}
	p := NewProfiled[int]("t", NewLFU[int]("t"), 4, sampler, nil, nil)

	if err := p.UpdateWithFreqs([]int{9}, []int64{7}); err != nil {
		t.Fatal(err)
	}
	if len(sampler.batches) != 1 || len(sampler.batches[0]) != 1 || sampler.batches[0][0] != 9 {
		t.Fatalf("sampler batches = %v, want [[9]]", sampler.batches)
	}
}

// TestProfiledDoesNotInstrumentAddToCache is the REDESIGN FLAG regression
// test: admission (a prefetch reservation becoming resident) must not be
// treated as a reference event, unlike the original ProfiledLRUCache.
func TestProfiledDoesNotInstrumentAddToCache(t *testing.T) {
	sampler := &fakeSampler{}
	reporter := &fakeReporter{}
	p := NewProfiled[int]("t", NewLRU[int]("t"), 8, sampler, reporter, nil)

	if err := p.AddToPrefetchList([]int{1}); err != nil {
		t.Fatal(err)
	}
	if err := p.AddToCache([]int{1}); err != nil {
		t.Fatal(err)
	}
	if len(sampler.batches) != 0 {
		t.Fatalf("sampler batches = %v, want none (AddToCache is not a reference event)", sampler.batches)
	}
	if reporter.bytes != 0 {
		t.Fatalf("reporter bytes = %d, want 0", reporter.bytes)
	}
	if p.Size() != 1 {
		t.Fatalf("Size() = %d, want 1 (admission still happens)", p.Size())
	}
}

func TestProfiledSamplingActiveGate(t *testing.T) {
	sampler := &fakeSampler{}
	active := false
	p := NewProfiled[int]("t", NewLRU[int]("t"), 8, sampler, nil, func() bool { return active })

	if err := p.Update([]int{1}); err != nil {
		t.Fatal(err)
	}
	if len(sampler.batches) != 0 {
		t.Fatalf("sampler batches = %v, want none while gate is closed", sampler.batches)
	}

	active = true
	if err := p.Update([]int{2}); err != nil {
		t.Fatal(err)
	}
	if len(sampler.batches) != 1 {
		t.Fatalf("sampler batches = %v, want one batch once gate opens", sampler.batches)
	}
}

func TestProfiledCloseUnregisters(t *testing.T) {
	p := NewProfiled[int]("t", NewLRU[int]("t"), 8, nil, nil, nil)
	called := false
	p.SetUnregister(func() { called = true })
	p.Close()
	if !called {
		t.Fatal("Close did not invoke unregister callback")
	}
}

func TestProfiledForwardsTunableCache(t *testing.T) {
	p := NewProfiled[int]("t", NewLRU[int]("t"), 8, nil, nil, nil)
	p.SetEntrySize(8)
	p.SetCacheSize(80)
	if got := p.GetCacheEntrySize(); got != 8 {
		t.Fatalf("GetCacheEntrySize() = %d, want 8", got)
	}
	if got := p.GetCacheSize(); got != 0 {
		t.Fatalf("GetCacheSize() = %d, want 0 before any entries", got)
	}
}
