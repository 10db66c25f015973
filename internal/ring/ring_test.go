package ring

import "testing"

func TestPushBackPopFrontOrder(t *testing.T) {
	r := New[int]()
	for i := 0; i < 20; i++ {
		r.PushBack(i)
	}
	if r.Len() != 20 {
		t.Fatalf("Len() = %d, want 20", r.Len())
	}
	for i := 0; i < 20; i++ {
		got := r.PopFront()
		if got != i {
			t.Fatalf("PopFront() = %d, want %d", got, i)
		}
	}
	if !r.Empty() {
		t.Fatal("Empty() = false after draining all elements")
	}
}

func TestPushFrontPopBack(t *testing.T) {
	r := New[int]()
	for i := 0; i < 5; i++ {
		r.PushFront(i)
	}
	// head now holds [4,3,2,1,0]
	want := []int{0, 1, 2, 3, 4}
	for _, w := range want {
		got := r.PopBack()
		if got != w {
			t.Fatalf("PopBack() = %d, want %d", got, w)
		}
	}
}

func TestWrapAroundGrowthPreservesOrder(t *testing.T) {
	r := New[int]()
	// Fill to 8, pop a few from the front so head advances, then push
	// past capacity to force a reallocation that must unwrap correctly.
	for i := 0; i < 8; i++ {
		r.PushBack(i)
	}
	for i := 0; i < 3; i++ {
		if got := r.PopFront(); got != i {
			t.Fatalf("PopFront() = %d, want %d", got, i)
		}
	}
	for i := 8; i < 20; i++ {
		r.PushBack(i)
	}
	for i := 3; i < 20; i++ {
		got := r.PopFront()
		if got != i {
			t.Fatalf("PopFront() = %d, want %d", got, i)
		}
	}
}

func TestGrowthSeedsAtEightThenGrowsByHalf(t *testing.T) {
	r := New[int]()
	r.PushBack(1)
	if r.Cap() != 8 {
		t.Fatalf("Cap() after first insert = %d, want 8", r.Cap())
	}
	for i := 0; i < 7; i++ {
		r.PushBack(i)
	}
	if r.Cap() != 8 {
		t.Fatalf("Cap() at count 8 = %d, want 8", r.Cap())
	}
	r.PushBack(99)
	if r.Cap() <= 8 {
		t.Fatalf("Cap() after overflow = %d, want > 8", r.Cap())
	}
}

func TestAtPanicsOutOfRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("At() out of range did not panic")
		}
	}()
	r := New[int]()
	r.PushBack(1)
	r.At(5)
}

func TestPopFrontPanicsWhenEmpty(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("PopFront() on empty ring did not panic")
		}
	}()
	New[int]().PopFront()
}

func TestReserveAvoidsReallocationUnderBudget(t *testing.T) {
	r := NewWithCapacity[int](16)
	capBefore := r.Cap()
	for i := 0; i < 16; i++ {
		r.PushBack(i)
	}
	if r.Cap() != capBefore {
		t.Fatalf("Cap() grew from %d to %d within reserved budget", capBefore, r.Cap())
	}
}
