package mempool

// pool_test.go tests the generic scratch-buffer pool.

import "testing"

func TestPoolBasic(t *testing.T) {
	pool := NewPool[uint64]()

	sizes := []int{10, 50, 200, 1000, 5000}
	for _, size := range sizes {
		buf := pool.Get(size)
		if cap(buf) < size {
			t.Errorf("expected cap >= %d, got %d", size, cap(buf))
		}
		if len(buf) != 0 {
			t.Errorf("expected len 0, got %d", len(buf))
		}
		pool.Put(buf)
	}
}

func TestPoolReuse(t *testing.T) {
	pool := NewPool[float64]()

	buf1 := pool.Get(100)
	buf1 = append(buf1, make([]float64, 50)...)
	pool.Put(buf1)

	buf2 := pool.Get(80)
	if cap(buf2) < 80 {
		t.Errorf("expected cap >= 80, got %d", cap(buf2))
	}
	if len(buf2) != 0 {
		t.Errorf("expected reused buffer to be reset to len 0, got %d", len(buf2))
	}
	pool.Put(buf2)
}

func TestPoolOversized(t *testing.T) {
	pool := NewPool[uint64]()

	buf := pool.Get(1 << 20)
	if cap(buf) < 1<<20 {
		t.Errorf("expected cap >= 2^20, got %d", cap(buf))
	}
	pool.Put(buf)
}

func TestPoolNilPut(t *testing.T) {
	pool := NewPool[uint64]()
	pool.Put(nil)
}

func BenchmarkPoolGet(b *testing.B) {
	pool := NewPool[uint64]()

	for b.Loop() {
		buf := pool.Get(1024)
		pool.Put(buf)
	}
}

func BenchmarkPoolGetParallel(b *testing.B) {
	pool := NewPool[uint64]()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			buf := pool.Get(1024)
			pool.Put(buf)
		}
	})
}
