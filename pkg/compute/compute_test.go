package compute

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestComputeSingleThreadedCoversEveryInvocation(t *testing.T) {
	global := Dims{2, 2, 1}
	local := Dims{2, 2, 1}
	seen := make(map[Dims]bool)
	var mu sync.Mutex

	Compute(nil, global, local, func(a Args) {
		mu.Lock()
		seen[a.GlobalInvocationID] = true
		mu.Unlock()
	})

	want := global.X * local.X * global.Y * local.Y * global.Z * local.Z
	if len(seen) != want {
		t.Fatalf("distinct invocations = %d, want %d", len(seen), want)
	}
}

func TestComputeGlobalInvocationIDFormula(t *testing.T) {
	var got Args
	Compute(nil, Dims{1, 1, 1}, Dims{3, 1, 1}, func(a Args) {
		if a.LocalInvocationID.X == 2 {
			got = a
		}
	})
	want := Dims{0*3 + 2, 0, 0}
	if got.GlobalInvocationID != want {
		t.Fatalf("GlobalInvocationID = %+v, want %+v", got.GlobalInvocationID, want)
	}
}

func TestComputeProvidesScratchArena(t *testing.T) {
	Compute(nil, Dims{1, 1, 1}, Dims{1, 1, 1}, func(a Args) {
		if a.Scratch == nil {
			t.Fatal("Args.Scratch is nil")
		}
		a.Scratch.Write([]byte("scratch"))
		if len(a.Scratch.Bytes()) != len("scratch") {
			t.Fatalf("Scratch.Bytes() len = %d, want %d", len(a.Scratch.Bytes()), len("scratch"))
		}
	})
}

type fakeRunner struct {
	submitted int32
}

func (r *fakeRunner) ComputeTaskDo(fn func()) error {
	atomic.AddInt32(&r.submitted, 1)
	go fn()
	return nil
}

func TestComputeMultiThreadedRunsOneTaskPerWorkgroup(t *testing.T) {
	r := &fakeRunner{}
	var count int32
	Compute(r, Dims{2, 3, 1}, Dims{1, 1, 1}, func(a Args) {
		atomic.AddInt32(&count, 1)
	})
	if atomic.LoadInt32(&r.submitted) != 6 {
		t.Fatalf("workgroups submitted = %d, want 6", r.submitted)
	}
	if atomic.LoadInt32(&count) != 6 {
		t.Fatalf("invocations run = %d, want 6", count)
	}
}

func TestComputeSizedSkipsOutOfBoundsInvocations(t *testing.T) {
	var count int32
	ComputeSized(nil, Dims{5, 1, 1}, Dims{2, 1, 1}, func(a Args) {
		atomic.AddInt32(&count, 1)
		if a.GlobalInvocationID.X >= 5 {
			t.Fatalf("invocation out of bounds: %+v", a.GlobalInvocationID)
		}
	})
	if atomic.LoadInt32(&count) != 5 {
		t.Fatalf("invocations run = %d, want 5 (not 6, which ceil-div*local would give)", count)
	}
}

func TestComputeSizedZeroAxisDispatchesNoWorkgroups(t *testing.T) {
	var ran bool
	ComputeSized(nil, Dims{0, 1, 1}, Dims{4, 1, 1}, func(a Args) {
		ran = true
	})
	if ran {
		t.Fatal("ComputeSized with a zero-sized axis invoked fn")
	}
}

func TestComputeTiledInvokesOncePerTile(t *testing.T) {
	var tiles []Dims
	var mu sync.Mutex
	ComputeTiled(nil, Dims{100, 100, 1}, Dims{10, 10, 1}, func(a Args) {
		mu.Lock()
		tiles = append(tiles, a.WorkgroupID)
		mu.Unlock()
	})
	if len(tiles) != 100 {
		t.Fatalf("tile invocations = %d, want 100 (10x10 grid)", len(tiles))
	}
}
