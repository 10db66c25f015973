// Package sysmon implements the background monitor that samples each
// Worker's blocking state, declares one blocked past its threshold, and
// — once enough Workers are blocked — evicts and redistributes their
// pending queues, per spec.md §4.6. It is grounded structurally on the
// teacher's pkg/runtime/runtime.go background-bookkeeping pattern and
// pkg/core/concurrency/executor_impl.go's atomic-counter sampling
// style; the detection thresholds and state transitions themselves come
// from spec.md §4.6 directly, since no .cpp body of the original sysmon
// is present in original_source/ (see SPEC_FULL.md §5 and DESIGN.md).
package sysmon

import (
	"time"

	"github.com/quadgate/fabric/internal/assertlib"
	"github.com/quadgate/fabric/pkg/fabric"
	"github.com/quadgate/fabric/pkg/worker"
)

// sampleInterval is sysmon's "every ~1ms" sampling cadence.
const sampleInterval = time.Millisecond

// maxSpawnedReplacements bounds how many brand-new Workers sysmon will
// spawn, past the reserve, to satisfy a persistent eviction demand
// (spec.md §4.6 step 4's "bounded by a sane cap").
const maxSpawnedReplacements = 8

// Attach wires a sysmon loop into f. Call before f.Start(); Start spawns
// the goroutine that runs Run until the channel it receives is closed.
func Attach(f *fabric.Fabric) {
	f.SetSysmonHook(Run)
}

// state carries sysmon's bookkeeping across ticks: how many
// replacement Workers it has spawned so far (bounded by
// maxSpawnedReplacements) and which evicted Workers are still waiting
// for their stuck task to finish before they can be reclaimed.
type state struct {
	spawned        int
	pendingReclaim []*worker.Worker
}

// Run is the sysmon loop body: it samples every live Worker each tick
// until stop is closed, which Fabric.Stop closes and waits on so sysmon
// "exits its loop promptly (≤ one sample period)" per spec.md §4.6.
func Run(f *fabric.Fabric, stop <-chan struct{}) {
	st := &state{}
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			st.tick(f)
		}
	}
}

func (st *state) tick(f *fabric.Fabric) {
	start := time.Now()
	defer func() { f.Metrics().SysmonSampleDuration.Observe(time.Since(start).Seconds()) }()

	settings := f.Settings()
	st.detectBlocked(f, settings)
	st.maybeEvict(f, settings)
	st.reclaimFinished(f)
}

func (st *state) detectBlocked(f *fabric.Fabric, settings fabric.Settings) {
	now := time.Now().UnixNano()
	for _, w := range f.LiveWorkers() {
		if w.State() != worker.RUNNING {
			continue
		}
		start := w.JobStartedAt()
		if start <= 0 {
			continue
		}

		announced := w.AnnouncedBlocking()
		threshold := settings.ExternalBlockingThresholdInMs
		if announced {
			threshold = settings.CoopBlockingThresholdInMs
		}
		elapsedMs := (now - start) / int64(time.Millisecond)
		if elapsedMs < threshold {
			continue
		}

		if announced {
			w.MarkBlockedCoop()
		} else {
			w.MarkBlockedExternal()
		}
		f.IncrementBlockingCount()
	}
}

// reclaimFinished checks every Worker evicted in a prior pass: once its
// stuck task has finally finished (JobStartedAt back to 0), it is
// reclaimed into the reserve rather than discarded — this module's
// Open Question (b) decision (see DESIGN.md).
func (st *state) reclaimFinished(f *fabric.Fabric) {
	if len(st.pendingReclaim) == 0 {
		return
	}
	still := st.pendingReclaim[:0]
	for _, w := range st.pendingReclaim {
		if w.JobStartedAt() == 0 {
			f.ReclaimToReserve(w)
		} else {
			still = append(still, w)
		}
	}
	st.pendingReclaim = still
}

func (st *state) maybeEvict(f *fabric.Fabric, settings fabric.Settings) {
	liveCount := len(f.LiveWorkers())
	if liveCount == 0 {
		return
	}
	blocked := blockedWorkers(f)
	if len(blocked) == 0 {
		return
	}

	ratio := float64(len(blocked)) / float64(liveCount)
	assertlib.Sometimes(ratio >= 0 && ratio <= 1, "sysmon: blocking ratio stays within [0,1]", map[string]any{"ratio": ratio})
	if ratio < settings.BlockingWorkersThreshold {
		return
	}

	st.evictAndRedistribute(f, blocked)
}

func blockedWorkers(f *fabric.Fabric) []*worker.Worker {
	var blocked []*worker.Worker
	for _, w := range f.LiveWorkers() {
		if w.State() == worker.BLOCKED_EXTERNAL || w.State() == worker.BLOCKED_COOP {
			blocked = append(blocked, w)
		}
	}
	return blocked
}

// evictAndRedistribute implements spec.md §4.6's four-step eviction
// pass: drain each blocked Worker's queue, redistribute round-robin
// across the live set, promote reserve Workers to replace them, and —
// if the reserve runs out and demand persists — spawn a bounded number
// of brand-new Workers. Evicted Workers are queued for reclaim once
// their stuck task finishes (see reclaimFinished).
func (st *state) evictAndRedistribute(f *fabric.Fabric, blocked []*worker.Worker) {
	var drained []worker.Task
	for _, w := range blocked {
		drained = append(drained, w.DrainPending()...)
		f.EvictBlockedWorker(w)
		f.DecrementBlockingCount()
		st.pendingReclaim = append(st.pendingReclaim, w)

		replacement := f.PromoteFromReserve()
		if replacement == nil && st.spawned < maxSpawnedReplacements {
			f.SpawnReplacement()
			st.spawned++
		}
	}

	remaining := f.LiveWorkers()
	if len(remaining) == 0 || len(drained) == 0 {
		assertlib.Always(len(drained) == 0, "sysmon: no remaining live worker to redistribute to but tasks were drained", nil)
		return
	}
	for i, task := range drained {
		w := remaining[i%len(remaining)]
		w.Submit(task)
	}
}
