// Package compute implements Fabric's N-dimensional compute dispatch
// façade: Compute, ComputeSized, and ComputeTiled, plus the Dims/Args
// types they pass to an invocation function. It mirrors a graphics
// compute-shader dispatch interface, per spec.md §4.7.
//
// The single-threaded path (used when the Runner passed in is nil) is
// grounded directly on original_source/mn/include/mn/Fabric.h's
// _single_threaded_compute/_sized/_tiled — same z-major, then y, then x
// iteration order at both workgroup and local-invocation granularity,
// and the same per-invocation scratch-arena reset timing (there,
// memory::tmp()->clear_all() after every fn() call; here, an arena
// pooled and reset the same way, see Arena in this package).
//
// The multi-threaded path (used when a Runner is supplied) has no .cpp
// body in original_source/ to port — only the MN_EXPORT declaration —
// so it is new code, grounded on the teacher's
// pkg/core/concurrency/executor_impl.go worker-count-plus-atomic-counter
// idiom: one Runner task per workgroup, joined with a sync.WaitGroup.
package compute

import (
	"context"
	"sync"

	"github.com/quadgate/fabric/pkg/fabrictrace"
)

// Dims is a 3-axis (x, y, z) extent or index, matching
// original_source's Compute_Dims exactly.
type Dims struct {
	X, Y, Z int
}

// Args is the per-invocation parameter passed to a compute function,
// matching original_source's Compute_Args.
type Args struct {
	// WorkgroupSize is the local dimension input to the dispatch call.
	WorkgroupSize Dims
	// WorkgroupNum is the global dimension input to the dispatch call.
	WorkgroupNum Dims
	// WorkgroupID indexes WorkgroupNum.
	WorkgroupID Dims
	// LocalInvocationID indexes WorkgroupSize.
	LocalInvocationID Dims
	// GlobalInvocationID = WorkgroupID*WorkgroupSize + LocalInvocationID.
	GlobalInvocationID Dims
	// Scratch is the arena valid for this single invocation; its
	// contents are discarded (Reset) before the next one, the Go
	// stand-in for original_source's memory::tmp() allocator.
	Scratch *Arena
}

// Func is the invocation callback a compute dispatch calls once per
// (global, local) index pair (or once per tile, for ComputeTiled).
type Func func(Args)

// Runner is the minimal Fabric surface a multi-threaded dispatch needs:
// one task per workgroup. *fabric.Fabric satisfies this; the interface
// avoids a compute<->fabric import cycle, the same pattern
// pkg/streamchan uses for its Runner.
type Runner interface {
	ComputeTaskDo(fn func()) error
}

// Compute dispatches global.X*global.Y*global.Z workgroups, each
// running local.X*local.Y*local.Z invocations of fn, for
// global*local total invocations. If r is nil, every invocation runs
// synchronously on the calling goroutine (original_source's
// single-threaded compute() overload with a null Fabric); otherwise one
// goroutine-backed task runs per workgroup via r.ComputeTaskDo.
func Compute(r Runner, global, local Dims, fn Func) {
	if r == nil {
		singleThreaded(global, local, fn)
		return
	}
	multiThreaded(r, global, local, fn)
}

func singleThreaded(global, local Dims, fn Func) {
	arena := newArena()
	defer arena.release()
	for gz := 0; gz < global.Z; gz++ {
		for gy := 0; gy < global.Y; gy++ {
			for gx := 0; gx < global.X; gx++ {
				for lz := 0; lz < local.Z; lz++ {
					for ly := 0; ly < local.Y; ly++ {
						for lx := 0; lx < local.X; lx++ {
							fn(Args{
								WorkgroupSize:      local,
								WorkgroupNum:       global,
								WorkgroupID:        Dims{gx, gy, gz},
								LocalInvocationID:  Dims{lx, ly, lz},
								GlobalInvocationID: Dims{gx*local.X + lx, gy*local.Y + ly, gz*local.Z + lz},
								Scratch:            arena,
							})
							arena.reset()
						}
					}
				}
			}
		}
	}
}

func multiThreaded(r Runner, global, local Dims, fn Func) {
	var wg sync.WaitGroup
	for gz := 0; gz < global.Z; gz++ {
		for gy := 0; gy < global.Y; gy++ {
			for gx := 0; gx < global.X; gx++ {
				gx, gy, gz := gx, gy, gz
				wg.Add(1)
				r.ComputeTaskDo(func() {
					defer wg.Done()
					_, span := fabrictrace.StartWorkgroup(context.Background(), "compute", [3]int{gx, gy, gz})
					defer span.End()
					arena := newArena()
					defer arena.release()
					for lz := 0; lz < local.Z; lz++ {
						for ly := 0; ly < local.Y; ly++ {
							for lx := 0; lx < local.X; lx++ {
								fn(Args{
									WorkgroupSize:      local,
									WorkgroupNum:       global,
									WorkgroupID:        Dims{gx, gy, gz},
									LocalInvocationID:  Dims{lx, ly, lz},
									GlobalInvocationID: Dims{gx*local.X + lx, gy*local.Y + ly, gz*local.Z + lz},
									Scratch:            arena,
								})
								arena.reset()
							}
						}
					}
				})
			}
		}
	}
	wg.Wait()
}

// workgroupCount computes the ceil-div workgroup count for one axis of
// ComputeSized/ComputeTiled, matching original_source's
// "1 + (total-1)/local" formula. A zero-sized axis yields 0 workgroups
// instead of following the original's formula, which underflows
// (total-1 on an unsigned zero) and would otherwise dispatch one bogus
// workgroup for an empty axis; see DESIGN.md.
func workgroupCount(total, local int) int {
	if total <= 0 {
		return 0
	}
	return 1 + (total-1)/local
}

// ComputeSized dispatches ceil(totalSize/local) workgroups of the given
// local size, skipping any invocation whose global id would fall
// outside totalSize — i.e. it handles totalSize not evenly divisible by
// local without the invocation function needing to bounds-check itself.
func ComputeSized(r Runner, totalSize, local Dims, fn Func) {
	global := Dims{
		workgroupCount(totalSize.X, local.X),
		workgroupCount(totalSize.Y, local.Y),
		workgroupCount(totalSize.Z, local.Z),
	}
	sizedFn := func(a Args) {
		if a.GlobalInvocationID.X >= totalSize.X || a.GlobalInvocationID.Y >= totalSize.Y || a.GlobalInvocationID.Z >= totalSize.Z {
			return
		}
		fn(a)
	}
	if r == nil {
		singleThreaded(global, local, sizedFn)
		return
	}
	multiThreaded(r, global, local, sizedFn)
}

// ComputeTiled dispatches one invocation per tile of tileSize across
// totalSize — e.g. totalSize (100,100,100) with tileSize (10,10,10)
// yields 1000 invocations, each responsible for processing its entire
// tile in one call, rather than one invocation per element.
func ComputeTiled(r Runner, totalSize, tileSize Dims, fn Func) {
	global := Dims{
		workgroupCount(totalSize.X, tileSize.X),
		workgroupCount(totalSize.Y, tileSize.Y),
		workgroupCount(totalSize.Z, tileSize.Z),
	}
	if r == nil {
		singleThreadedTiled(totalSize, tileSize, global, fn)
		return
	}
	multiThreadedTiled(r, totalSize, tileSize, global, fn)
}

func singleThreadedTiled(totalSize, tileSize, global Dims, fn Func) {
	arena := newArena()
	defer arena.release()
	for gz := 0; gz < global.Z; gz++ {
		for gy := 0; gy < global.Y; gy++ {
			for gx := 0; gx < global.X; gx++ {
				fn(Args{
					WorkgroupSize:      tileSize,
					WorkgroupNum:       totalSize,
					WorkgroupID:        Dims{gx, gy, gz},
					GlobalInvocationID: Dims{gx * tileSize.X, gy * tileSize.Y, gz * tileSize.Z},
					Scratch:            arena,
				})
				arena.reset()
			}
		}
	}
}

func multiThreadedTiled(r Runner, totalSize, tileSize, global Dims, fn Func) {
	var wg sync.WaitGroup
	for gz := 0; gz < global.Z; gz++ {
		for gy := 0; gy < global.Y; gy++ {
			for gx := 0; gx < global.X; gx++ {
				gx, gy, gz := gx, gy, gz
				wg.Add(1)
				r.ComputeTaskDo(func() {
					defer wg.Done()
					_, span := fabrictrace.StartWorkgroup(context.Background(), "compute_tiled", [3]int{gx, gy, gz})
					defer span.End()
					arena := newArena()
					defer arena.release()
					fn(Args{
						WorkgroupSize:      tileSize,
						WorkgroupNum:       totalSize,
						WorkgroupID:        Dims{gx, gy, gz},
						GlobalInvocationID: Dims{gx * tileSize.X, gy * tileSize.Y, gz * tileSize.Z},
						Scratch:            arena,
					})
					arena.reset()
				})
			}
		}
	}
	wg.Wait()
}
