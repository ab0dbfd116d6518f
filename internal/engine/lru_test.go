package engine

import (
	"reflect"
	"testing"
)

func TestLRUEvictionOrder(t *testing.T) {
	l := NewLRU[int]("t")
	if err := l.Update([]int{1, 2, 3, 4, 5}); err != nil {
		t.Fatal(err)
	}

	evicted := l.GetEvicIDs(3)
	if !reflect.DeepEqual(evicted, []int{1, 2, 3}) {
		t.Fatalf("got %v, want [1 2 3]", evicted)
	}

	cached, _ := l.GetCachedIDs(10)
	if !reflect.DeepEqual(cached, []int{5, 4}) {
		t.Fatalf("got %v, want [5 4]", cached)
	}
}

func TestLRUPromotion(t *testing.T) {
	l := NewLRU[int]("t")
	if err := l.Update([]int{1, 2, 3, 4, 5}); err != nil {
		t.Fatal(err)
	}
	if err := l.Update([]int{2}); err != nil {
		t.Fatal(err)
	}

	evicted := l.GetEvicIDs(3)
	if !reflect.DeepEqual(evicted, []int{1, 3, 4}) {
		t.Fatalf("got %v, want [1 3 4]", evicted)
	}
}

func TestLRUMRUFront(t *testing.T) {
	l := NewLRU[int]("t")
	if err := l.Update([]int{7}); err != nil {
		t.Fatal(err)
	}
	cached, _ := l.GetCachedIDs(1)
	if !reflect.DeepEqual(cached, []int{7}) {
		t.Fatalf("got %v, want [7]", cached)
	}
}

func TestLRUMembership(t *testing.T) {
	l := NewLRU[int]("t")
	if err := l.Update([]int{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if l.Size() != 3 {
		t.Fatalf("size = %d, want 3", l.Size())
	}
	l.GetEvicIDs(1)
	if l.Size() != 2 {
		t.Fatalf("size = %d, want 2", l.Size())
	}
}

func TestLRUPrefetchAndAdmit(t *testing.T) {
	l := NewLRU[int]("t")
	if err := l.AddToPrefetchList([]int{9}); err != nil {
		t.Fatal(err)
	}
	if err := l.AddToCache([]int{9}); err != nil {
		t.Fatal(err)
	}
	if l.Size() != 1 {
		t.Fatalf("size = %d, want 1", l.Size())
	}
	cached, _ := l.GetCachedIDs(10)
	if !reflect.DeepEqual(cached, []int{9}) {
		t.Fatalf("got %v, want [9]", cached)
	}
}

func TestLRUDoublePrefetchSingleAdmit(t *testing.T) {
	l := NewLRU[int]("t")
	if err := l.AddToPrefetchList([]int{9}); err != nil {
		t.Fatal(err)
	}
	if err := l.AddToPrefetchList([]int{9}); err != nil {
		t.Fatal(err)
	}
	if err := l.AddToCache([]int{9}); err != nil {
		t.Fatal(err)
	}
	if l.Size() != 0 {
		t.Fatalf("size = %d, want 0 (one reservation still outstanding)", l.Size())
	}
	if err := l.AddToCache([]int{9}); err != nil {
		t.Fatal(err)
	}
	if l.Size() != 1 {
		t.Fatalf("size = %d, want 1 after second admit", l.Size())
	}
}

func TestLRUAddToCacheWithoutPrefetchIsContractViolation(t *testing.T) {
	l := NewLRU[int]("t")
	err := l.AddToCache([]int{42})
	if err == nil {
		t.Fatal("expected ContractViolationError")
	}
	var cv *ContractViolationError
	if !asContractViolation(err, &cv) {
		t.Fatalf("got %T, want *ContractViolationError", err)
	}
}

func asContractViolation(err error, target **ContractViolationError) bool {
	cv, ok := err.(*ContractViolationError)
	if ok {
		*target = cv
	}
	return ok
}

func TestLRUStrictEviction(t *testing.T) {
	l := NewLRU[int]("t", WithStrictLRU[int](true))
	l.SetSize(2)
	if err := l.Update([]int{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	// The strict-eviction splice checks size before the batch is applied,
	// so the first over-budget batch does not yet move anything into the
	// pending list — membership stays at 4 until the next update call.
	if l.Size() != 4 {
		t.Fatalf("size = %d, want 4", l.Size())
	}
	if err := l.Update([]int{5}); err != nil {
		t.Fatal(err)
	}
	if got := l.Size(); got != 5 {
		t.Fatalf("size = %d, want 5 (still unchanged until drained)", got)
	}
	evicted := l.GetEvicIDs(10)
	if len(evicted) != 5 {
		t.Fatalf("evicted %d keys, want 5", len(evicted))
	}
}

func TestLRUHitRate(t *testing.T) {
	l := NewLRU[int]("t")
	l.Update([]int{1})
	l.Update([]int{1})
	hits, misses := l.Stats()
	if hits != 1 || misses != 1 {
		t.Fatalf("hits=%d misses=%d, want 1,1", hits, misses)
	}
	if rate := l.HitRate(); rate != 0.5 {
		t.Fatalf("hit rate = %v, want 0.5", rate)
	}
}
