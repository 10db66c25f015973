// Package fabric implements Fabric: a pool of Workers, its submission
// API, and the lifecycle that spawns, replaces, and shuts them down. It
// is grounded on the teacher's pkg/runtime/runtime.go (CAS-based
// idle/starting/started/stopping/stopped state machine, parallel
// per-item shutdown via sync.WaitGroup) and
// pkg/core/concurrency/workerpool_impl.go (Start/Stop/Submit shape),
// generalized from Fluxor's Bus/Component/Reactor pool to a pool of
// worker.Worker plus a reserve ("put-aside") list and a sysmon.
package fabric

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/quadgate/fabric/pkg/fabriclog"
	"github.com/quadgate/fabric/pkg/fabrictrace"
	"github.com/quadgate/fabric/pkg/metrics"
	"github.com/quadgate/fabric/pkg/worker"
)

const (
	stateIdle uint32 = iota
	stateStarted
	stateStopping
	stateStopped
)

var (
	// ErrAlreadyStarted is returned by Start on a Fabric already running.
	ErrAlreadyStarted = errors.New("fabric: already started")
	// ErrStopped is returned by submission calls once the Fabric has
	// begun shutting down.
	ErrStopped = errors.New("fabric: stopped or stopping")
	// ErrNoLocalContext is the programmer-fault error GoLocal() raises when
	// called from a goroutine that is neither a Fabric worker nor a
	// standalone Worker thread (spec.md §7, §8 scenario 6).
	ErrNoLocalContext = errors.New("can't find any local fabric or worker")
)

// Settings mirrors spec.md §6's Fabric_Settings exactly, field for
// field, including its defaults.
type Settings struct {
	Name                          string
	WorkersCount                  int
	PutAsideWorkerCount           int
	CoopBlockingThresholdInMs     int64
	ExternalBlockingThresholdInMs int64
	BlockingWorkersThreshold      float64
	AfterEachJob                  func()
	OnWorkerStart                 func()
}

// DefaultSettings returns Settings with spec.md §6's documented
// defaults, sized off runtime.NumCPU as the stand-in for "hardware
// concurrency".
func DefaultSettings() Settings {
	n := runtime.NumCPU()
	return Settings{
		Name:                          "fabric",
		WorkersCount:                  n,
		PutAsideWorkerCount:           n / 2,
		CoopBlockingThresholdInMs:     10,
		ExternalBlockingThresholdInMs: 1000,
		BlockingWorkersThreshold:      0.5,
	}
}

// Fabric is a pool of Workers plus a reserve list and a sysmon that
// rebalances work away from blocked Workers.
type Fabric struct {
	id       string
	settings Settings
	logger   fabriclog.Logger
	metrics  *metrics.Metrics

	mu       sync.RWMutex
	live     []*worker.Worker
	reserve  []*worker.Worker
	rrCursor int

	state         uint32
	blockingCount int32

	sysmonStop chan struct{}
	sysmonDone chan struct{}

	// sysmonFn is set by pkg/sysmon via SetSysmon, an internal-only hook
	// that avoids a fabric<->sysmon import cycle (sysmon imports fabric
	// to read its worker set; fabric cannot import sysmon back).
	sysmonFn func(f *Fabric, stop <-chan struct{})
}

// Local returns the Fabric whose Worker owns the calling goroutine, or
// nil if none. It walks the thread-local Worker and resolves its
// back-pointer, per spec.md §4.5's fabric_local() ("the Fabric whose
// worker owns the current thread").
func Local() *Fabric {
	w := worker.Local()
	if w == nil {
		return nil
	}
	if f, ok := w.FabricRef().(*Fabric); ok {
		return f
	}
	return nil
}

// New creates a Fabric with workers_count live Workers. The reserve
// list starts empty (put_aside_worker_count only sizes its initial
// capacity); it is filled by ReclaimToReserve. Call Start to begin the
// sysmon loop.
func New(settings Settings) *Fabric {
	if settings.Name == "" {
		settings.Name = "fabric-" + uuid.NewString()[:8]
	}
	if settings.WorkersCount <= 0 {
		settings.WorkersCount = 1
	}
	f := &Fabric{
		id:       uuid.NewString(),
		settings: settings,
		logger:   fabriclog.New(),
		metrics:  metrics.Get(),
	}

	f.live = make([]*worker.Worker, 0, settings.WorkersCount)
	for i := 0; i < settings.WorkersCount; i++ {
		f.live = append(f.live, f.spawnWorker(i))
	}
	f.reserve = make([]*worker.Worker, 0, settings.PutAsideWorkerCount)
	f.metrics.WorkersLive.Set(float64(len(f.live)))
	f.metrics.WorkersReserve.Set(float64(len(f.reserve)))
	return f
}

// Metrics returns the Fabric's Prometheus metrics collection, for
// collaborators (sysmon) that share it rather than constructing their
// own.
func (f *Fabric) Metrics() *metrics.Metrics { return f.metrics }

func (f *Fabric) spawnWorker(i int) *worker.Worker {
	name := fmt.Sprintf("%s-worker-%d", f.settings.Name, i)
	return worker.New(name, worker.Options{
		Logger:        f.logger,
		AfterEachJob:  f.settings.AfterEachJob,
		OnWorkerStart: f.settings.OnWorkerStart,
		Fabric:        f,
	})
}

// ID returns the Fabric's unique identifier.
func (f *Fabric) ID() string { return f.id }

// Settings returns a copy of the Fabric's settings snapshot.
func (f *Fabric) Settings() Settings { return f.settings }

// Logger returns the Fabric's logger, for collaborators that share it
// rather than constructing their own.
func (f *Fabric) Logger() fabriclog.Logger { return f.logger }

// SetSysmonHook installs the sysmon loop function; called once by
// pkg/sysmon.Attach. Exported only for that package's use.
func (f *Fabric) SetSysmonHook(fn func(f *Fabric, stop <-chan struct{})) {
	f.sysmonFn = fn
}

// Start spawns the sysmon goroutine. It is an error to Start twice.
func (f *Fabric) Start() error {
	if !atomic.CompareAndSwapUint32(&f.state, stateIdle, stateStarted) {
		return ErrAlreadyStarted
	}
	f.sysmonStop = make(chan struct{})
	f.sysmonDone = make(chan struct{})
	if f.sysmonFn != nil {
		go func() {
			defer close(f.sysmonDone)
			f.sysmonFn(f, f.sysmonStop)
		}()
	} else {
		close(f.sysmonDone)
	}
	return nil
}

// Stop sets the shutdown flag, joins the sysmon goroutine, then joins
// every live and reserve Worker. In-flight tasks complete; any task
// still pending on a Worker's queue is discarded (drained before the
// Worker is stopped) — Fabric shutdown is not itself an error (spec.md §7).
func (f *Fabric) Stop() {
	if !atomic.CompareAndSwapUint32(&f.state, stateStarted, stateStopping) {
		atomic.CompareAndSwapUint32(&f.state, stateIdle, stateStopping)
	}
	if f.sysmonStop != nil {
		close(f.sysmonStop)
		<-f.sysmonDone
	}

	f.mu.Lock()
	workers := make([]*worker.Worker, 0, len(f.live)+len(f.reserve))
	workers = append(workers, f.live...)
	workers = append(workers, f.reserve...)
	f.live = nil
	f.reserve = nil
	f.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(len(workers))
	for _, w := range workers {
		go func(w *worker.Worker) {
			defer wg.Done()
			w.DrainPending()
			w.Stop()
		}(w)
	}
	wg.Wait()

	atomic.StoreUint32(&f.state, stateStopped)
}

// LiveWorkers returns a snapshot of the currently live Worker set.
func (f *Fabric) LiveWorkers() []*worker.Worker {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*worker.Worker, len(f.live))
	copy(out, f.live)
	return out
}

// BlockingCount returns the number of Workers sysmon currently
// considers blocked.
func (f *Fabric) BlockingCount() int {
	return int(atomic.LoadInt32(&f.blockingCount))
}

// IncrementBlockingCount and DecrementBlockingCount are sysmon-only
// hooks on the Fabric's atomic counter of currently-blocking workers.
func (f *Fabric) IncrementBlockingCount() {
	f.metrics.WorkersBlocked.Set(float64(atomic.AddInt32(&f.blockingCount, 1)))
}
func (f *Fabric) DecrementBlockingCount() {
	f.metrics.WorkersBlocked.Set(float64(atomic.AddInt32(&f.blockingCount, -1)))
}

// pickWorker selects the least-loaded live Worker, breaking ties by
// round-robin, per spec.md §4.5. preferPutAside is currently unused:
// COMPUTE tasks go through the same selection as general tasks, and
// promoted reserve Workers are not preferred for them (Open Question
// (a); see DESIGN.md).
func (f *Fabric) pickWorker(preferPutAside bool) (*worker.Worker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.live) == 0 {
		return nil, ErrStopped
	}

	start := f.rrCursor % len(f.live)
	best := f.live[start]
	bestLoad := best.QueueLen()
	bestIdx := start
	for i := 0; i < len(f.live); i++ {
		idx := (start + i) % len(f.live)
		w := f.live[idx]
		load := w.QueueLen()
		if load < bestLoad {
			best, bestLoad, bestIdx = w, load, idx
		}
	}
	f.rrCursor = (bestIdx + 1) % len(f.live)
	return best, nil
}

// TaskDo submits fn to the least-loaded live Worker.
func (f *Fabric) TaskDo(fn func()) error {
	if atomic.LoadUint32(&f.state) == stateStopping || atomic.LoadUint32(&f.state) == stateStopped {
		f.metrics.TasksRejectedTotal.Inc()
		return ErrStopped
	}
	w, err := f.pickWorker(false)
	if err != nil {
		f.metrics.TasksRejectedTotal.Inc()
		return err
	}
	return w.Submit(worker.Task{Fn: func() {
		_, span := fabrictrace.StartTask(context.Background(), "task", w.Name())
		defer span.End()
		fn()
		f.metrics.RecordTaskCompleted("task")
	}})
}

// TaskBatchDo submits every fn in fns to the least-loaded live Worker,
// as one batch (preserving FIFO order among them on that Worker).
func (f *Fabric) TaskBatchDo(fns []func()) error {
	if len(fns) == 0 {
		return nil
	}
	w, err := f.pickWorker(false)
	if err != nil {
		return err
	}
	tasks := make([]worker.Task, len(fns))
	for i, fn := range fns {
		tasks[i] = worker.Task{Fn: fn}
	}
	return w.SubmitBatch(tasks)
}

// ComputeTaskDo submits a COMPUTE-flagged task to the least-loaded live
// Worker, using the same selection as TaskDo (see pickWorker).
func (f *Fabric) ComputeTaskDo(fn func()) error {
	w, err := f.pickWorker(true)
	if err != nil {
		f.metrics.TasksRejectedTotal.Inc()
		return err
	}
	return w.Submit(worker.Task{Compute: true, Fn: func() {
		_, span := fabrictrace.StartTask(context.Background(), "compute", w.Name())
		defer span.End()
		fn()
		f.metrics.RecordTaskCompleted("compute")
	}})
}

// WorkerTaskDo submits fn directly to a specific Worker, bypassing
// selection.
func (f *Fabric) WorkerTaskDo(w *worker.Worker, fn func()) error {
	return w.Submit(worker.Task{Fn: fn})
}

// WorkerTaskBatchDo submits every fn in fns directly to a specific
// Worker, as one batch.
func (f *Fabric) WorkerTaskBatchDo(w *worker.Worker, fns []func()) error {
	tasks := make([]worker.Task, len(fns))
	for i, fn := range fns {
		tasks[i] = worker.Task{Fn: fn}
	}
	return w.SubmitBatch(tasks)
}

// Go routes fn to this Fabric, matching spec.md §6's go(fabric, fn).
func (f *Fabric) Go(fn func()) error {
	return f.TaskDo(fn)
}

// GoLocal routes fn to the thread-local Fabric if one exists, else the
// thread-local Worker, else panics with the exact programmer-fault
// message spec.md §8 scenario 6 requires. This mirrors the original
// go(fn) overload's precedence: fabric_local() is checked before
// worker_local().
func GoLocal(fn func()) {
	if f := Local(); f != nil {
		if err := f.Go(fn); err != nil {
			panic(err)
		}
		return
	}
	if w := worker.Local(); w != nil {
		if err := w.Submit(worker.Task{Fn: fn}); err != nil {
			panic(err)
		}
		return
	}
	panic(ErrNoLocalContext)
}

// PromoteFromReserve moves one reserve Worker into the live set,
// returning it, or nil if the reserve is empty. Sysmon calls this
// during eviction rebalancing (spec.md §4.6 step 3).
func (f *Fabric) PromoteFromReserve() *worker.Worker {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reserve) == 0 {
		return nil
	}
	w := f.reserve[0]
	f.reserve = f.reserve[1:]
	f.live = append(f.live, w)
	f.metrics.WorkersLive.Set(float64(len(f.live)))
	f.metrics.WorkersReserve.Set(float64(len(f.reserve)))
	return w
}

// SpawnReplacement creates and adds a brand new live Worker, used when
// the reserve is exhausted and demand persists (spec.md §4.6 step 4).
func (f *Fabric) SpawnReplacement() *worker.Worker {
	f.mu.Lock()
	idx := len(f.live)
	f.mu.Unlock()
	w := f.spawnWorker(idx)
	f.mu.Lock()
	f.live = append(f.live, w)
	f.mu.Unlock()
	f.metrics.WorkersLive.Set(float64(len(f.live)))
	f.metrics.SysmonSpawnsTotal.Inc()
	return w
}

// EvictBlockedWorker removes w from the live set (it is not Stopped
// here — its goroutine keeps running the stuck task; see DESIGN.md Open
// Question (b)). It returns true if w was found and removed.
func (f *Fabric) EvictBlockedWorker(w *worker.Worker) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, lw := range f.live {
		if lw == w {
			f.live = append(f.live[:i], f.live[i+1:]...)
			f.metrics.WorkersLive.Set(float64(len(f.live)))
			f.metrics.SysmonEvictionsTotal.Inc()
			return true
		}
	}
	return false
}

// ReclaimToReserve re-admits a previously evicted Worker to the reserve
// list once its stuck task finally finishes, per this module's
// Open-Question (b) policy: reclaim rather than discard, so a Fabric
// that survives a burst of stalls doesn't permanently shrink its worker
// supply (see DESIGN.md).
func (f *Fabric) ReclaimToReserve(w *worker.Worker) {
	w.ResetRunning()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserve = append(f.reserve, w)
	f.metrics.WorkersReserve.Set(float64(len(f.reserve)))
	f.metrics.SysmonReclaimsTotal.Inc()
}

// WorkersCount returns the current number of live Workers (not the
// configured workers_count).
func (f *Fabric) WorkersCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.live)
}
