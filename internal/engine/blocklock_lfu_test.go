package engine

import "testing"

func TestBlockLockLFUStripeRouting(t *testing.T) {
	b := NewBlockLockLFU[int]("t", 2)
	if err := b.Update([]int{0, 2, 4, 1, 3}); err != nil {
		t.Fatal(err)
	}
	// Even keys route to stripe 0, odd keys to stripe 1.
	if got := b.stripes[0].Size(); got != 3 {
		t.Fatalf("stripe0 size = %d, want 3", got)
	}
	if got := b.stripes[1].Size(); got != 2 {
		t.Fatalf("stripe1 size = %d, want 2", got)
	}
	if b.Size() != 5 {
		t.Fatalf("Size() = %d, want 5", b.Size())
	}
}

func TestBlockLockLFUUpdateWithFreqsPreservesPerKeyDelta(t *testing.T) {
	b := NewBlockLockLFU[int]("t", 2)
	if err := b.UpdateWithFreqs([]int{0, 1}, []int64{10, 20}); err != nil {
		t.Fatal(err)
	}
	_, f0 := b.stripes[0].GetCachedIDs(1)
	_, f1 := b.stripes[1].GetCachedIDs(1)
	if len(f0) != 1 || f0[0] != 10 {
		t.Fatalf("stripe0 freq = %v, want [10]", f0)
	}
	if len(f1) != 1 || f1[0] != 20 {
		t.Fatalf("stripe1 freq = %v, want [20]", f1)
	}
}

func TestBlockLockLFUPrefetchAdmit(t *testing.T) {
	b := NewBlockLockLFU[int]("t", 8)
	if err := b.AddToPrefetchList([]int{3}); err != nil {
		t.Fatal(err)
	}
	if err := b.AddToCache([]int{3}); err != nil {
		t.Fatal(err)
	}
	if b.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", b.Size())
	}
}

func TestBlockLockLFUContractViolation(t *testing.T) {
	b := NewBlockLockLFU[int]("t", 8)
	if err := b.AddToCache([]int{9}); err == nil {
		t.Fatal("expected ContractViolationError")
	}
}

func TestBlockLockLFUEvictionRoundRobinsAcrossStripes(t *testing.T) {
	b := NewBlockLockLFU[int]("t", 2)
	if err := b.Update([]int{0, 2, 1, 3}); err != nil {
		t.Fatal(err)
	}
	evicted := b.GetEvicIDs(4)
	if len(evicted) != 4 {
		t.Fatalf("evicted %d keys, want 4", len(evicted))
	}
	if b.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", b.Size())
	}
}

func TestBlockLockLFUAggregateStats(t *testing.T) {
	b := NewBlockLockLFU[int]("t", 2)
	b.Update([]int{0, 1})
	b.Update([]int{0, 1})
	hits, misses := b.Stats()
	if hits != 2 || misses != 2 {
		t.Fatalf("hits=%d misses=%d, want 2,2", hits, misses)
	}
	if rate := b.HitRate(); rate != 0.5 {
		t.Fatalf("hit rate = %v, want 0.5", rate)
	}
}

func TestBlockLockLFUSetCacheSizeDistributesAcrossStripes(t *testing.T) {
	b := NewBlockLockLFU[int]("t", 8)
	b.SetEntrySize(2)
	b.SetCacheSize(16) // 16 bytes / 2-byte entries == 8 entries / 8 stripes == 1 each
	for i, stripe := range b.stripes {
		if stripe.desiredSize != 1 {
			t.Fatalf("stripe %d desiredSize = %d, want 1", i, stripe.desiredSize)
		}
	}
}
