package kqueue

import (
	"sync"
	"testing"
)

func TestRingPushPopFIFO(t *testing.T) {
	r := NewRing[int](4) // 3 usable slots
	if r.Cap() != 3 {
		t.Fatalf("Cap() = %d, want 3", r.Cap())
	}
	for i := 0; i < 3; i++ {
		if !r.TryPush(i) {
			t.Fatalf("TryPush(%d) failed unexpectedly", i)
		}
	}
	if r.TryPush(99) {
		t.Fatal("expected TryPush to fail when full")
	}
	if r.Len()+r.Free() != r.Cap() {
		t.Fatalf("Len()+Free() = %d, want Cap() = %d", r.Len()+r.Free(), r.Cap())
	}
	for i := 0; i < 3; i++ {
		v, ok := r.Pop()
		if !ok || v != i {
			t.Fatalf("Pop() = (%d, %v), want (%d, true)", v, ok, i)
		}
	}
	if _, ok := r.Pop(); ok {
		t.Fatal("expected Pop to fail when empty")
	}
}

func TestRingDrainInvokesOnDropInFIFOOrder(t *testing.T) {
	r := NewRing[int](4)
	r.Push(1)
	r.Push(2)
	r.Push(3)
	var dropped []int
	r.Drain(func(v int) { dropped = append(dropped, v) })
	if len(dropped) != 3 || dropped[0] != 1 || dropped[1] != 2 || dropped[2] != 3 {
		t.Fatalf("Drain order = %v, want [1 2 3]", dropped)
	}
	if r.Len() != 0 {
		t.Fatalf("Len() after Drain = %d, want 0", r.Len())
	}
}

func TestRingPushPanicsWhenFull(t *testing.T) {
	r := NewRing[int](2)
	r.Push(1)
	defer func() {
		if recover() == nil {
			t.Fatal("expected Push to panic on full ring")
		}
	}()
	r.Push(2)
}

// TestMpmcQueueConcurrentProducersConsumers is the spec.md §8 scenario
// 2 concrete test: N=4 producers each push 10 distinct ids into a
// capacity-64 MpmcQueue[int] (next power of two >= 40), 4 consumers
// drain concurrently, and every one of the 40 ids must be observed
// exactly once.
func TestMpmcQueueConcurrentProducersConsumers(t *testing.T) {
	const producers = 4
	const perProducer = 10
	const total = producers * perProducer
	q := NewMpmcQueue[int](64)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				id := base*perProducer + i
				for {
					if _, ok := q.TryPush(id); ok {
						break
					}
				}
			}
		}(p)
	}
	wg.Wait()

	var mu sync.Mutex
	seen := make(map[int]int, total)
	var cwg sync.WaitGroup
	for c := 0; c < producers; c++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for {
				v, ok := q.Pop()
				if !ok {
					return
				}
				mu.Lock()
				seen[v]++
				mu.Unlock()
			}
		}()
	}
	cwg.Wait()

	if len(seen) != total {
		t.Fatalf("observed %d unique values, want %d", len(seen), total)
	}
	for id := 0; id < total; id++ {
		if seen[id] != 1 {
			t.Fatalf("id %d observed %d times, want 1", id, seen[id])
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("expected Pop to report empty after draining all values")
	}
}

func TestMpmcQueueTryPushFullReturnsRejectedValue(t *testing.T) {
	q := NewMpmcQueue[int](2)
	if _, ok := q.TryPush(1); !ok {
		t.Fatal("expected first TryPush to succeed")
	}
	if _, ok := q.TryPush(2); !ok {
		t.Fatal("expected second TryPush to succeed")
	}
	rejected, ok := q.TryPush(3)
	if ok {
		t.Fatal("expected third TryPush to fail on a 2-capacity queue")
	}
	if rejected != 3 {
		t.Fatalf("rejected value = %d, want 3", rejected)
	}
}

func TestBarrierReleasesAllPartiesEachRound(t *testing.T) {
	const n = 8
	const rounds = 20
	b := NewBarrier(n, nil)
	counters := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				counters[idx] = r
				b.Wait()
			}
		}(i)
	}
	wg.Wait()
	for i, c := range counters {
		if c != rounds-1 {
			t.Fatalf("goroutine %d finished at round %d, want %d", i, c, rounds-1)
		}
	}
}
