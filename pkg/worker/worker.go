// Package worker implements Worker: one goroutine pinned to its own OS
// thread, a private FIFO task queue, and the blocking-state bookkeeping
// Sysmon watches. It is grounded on the teacher's
// pkg/core/concurrency/workerpool_impl.go (goroutine loop, atomic state,
// WaitGroup shutdown) and pkg/reactor/reactor.go (panic-recovering task
// execution), generalized to the state machine, block_ahead/block_clear
// announcement, and thread-local Local() query spec.md §4.1 describes.
//
// This replaces the teacher's original worker.Pool (a request/response
// job pool keyed on context.Context) entirely: Fabric's Worker has no
// per-submission context or return value, just a private queue and a
// state machine Sysmon observes.
package worker

import (
	"errors"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quadgate/fabric/internal/ring"
	"github.com/quadgate/fabric/internal/tlocal"
	"github.com/quadgate/fabric/pkg/core/failfast"
	"github.com/quadgate/fabric/pkg/fabriclog"
)

// State is the Worker lifecycle state. Transitions: RUNNING <->
// BLOCKED_COOP (task-announced); RUNNING -> BLOCKED_EXTERNAL (sysmon
// observation only, see pkg/sysmon); any -> STOPPING -> STOPPED.
type State int32

const (
	RUNNING State = iota
	BLOCKED_COOP
	BLOCKED_EXTERNAL
	STOPPING
	STOPPED
)

func (s State) String() string {
	switch s {
	case RUNNING:
		return "RUNNING"
	case BLOCKED_COOP:
		return "BLOCKED_COOP"
	case BLOCKED_EXTERNAL:
		return "BLOCKED_EXTERNAL"
	case STOPPING:
		return "STOPPING"
	case STOPPED:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Timeout is a block_on_with_timeout duration in milliseconds, with two
// sentinel values spec.md §5 calls out by name.
type Timeout int64

const (
	// NoTimeout checks the predicate exactly once and returns.
	NoTimeout Timeout = 0
	// InfiniteTimeout waits until the predicate becomes true.
	InfiniteTimeout Timeout = -1
)

// Finite returns the Timeout value for a bounded wait of d.
func Finite(d time.Duration) Timeout {
	ms := Timeout(d.Milliseconds())
	if ms <= 0 {
		return NoTimeout
	}
	return ms
}

// ErrStopped is returned by Submit/SubmitBatch once the Worker has
// begun stopping.
var ErrStopped = errors.New("worker: stopped or stopping")

// Task is a unit of work a Worker runs. Compute marks it as
// COMPUTE-flagged, the one priority distinction spec.md §4.5 allows
// Fabric to use when preferring "put-aside" workers.
type Task struct {
	Fn      func()
	Compute bool
}

// pollInterval is the block_on/block_on_with_timeout sampling cadence.
const pollInterval = time.Millisecond

// Options configures a Worker at creation.
type Options struct {
	Logger        fabriclog.Logger
	AfterEachJob  func()
	OnWorkerStart func()
	// Fabric is a weak, opaque back-pointer to the owning Fabric, set
	// once at construction and never used to manage Worker lifetime —
	// only for Fabric-side lookups (e.g. fabric.Local() resolving the
	// calling Worker's owner). A plain interface{} avoids a worker<->fabric import
	// cycle; the fabric package is the only one expected to type-assert it.
	Fabric interface{}
}

// Worker is one goroutine pinned to its own OS thread via
// runtime.LockOSThread, with a private task queue.
type Worker struct {
	name string

	mu           sync.Mutex
	jobAvailable *sync.Cond
	queueDrained *sync.Cond
	queue        *ring.Ring[Task]

	state         int32 // atomic State
	jobStart      int64 // atomic unix nanoseconds; 0 == idle
	announceCount int32 // atomic; > 0 means announced_blocking
	fabric        interface{}
	logger        fabriclog.Logger
	afterEachJob  func()
	onWorkerStart func()
	wg            sync.WaitGroup
}

var registry = tlocal.NewRegistry[*Worker]()

// Local returns the Worker owning the calling goroutine, or nil if the
// calling goroutine is not a Worker's loop goroutine.
func Local() *Worker {
	w, ok := registry.Get()
	if !ok {
		return nil
	}
	return w
}

// New creates a Worker and starts its loop goroutine. The Worker is
// immediately RUNNING with an empty queue.
func New(name string, opts Options) *Worker {
	logger := opts.Logger
	if logger == nil {
		logger = fabriclog.NewNoop()
	}
	w := &Worker{
		name:          name,
		queue:         ring.New[Task](),
		fabric:        opts.Fabric,
		logger:        logger,
		afterEachJob:  opts.AfterEachJob,
		onWorkerStart: opts.OnWorkerStart,
	}
	w.jobAvailable = sync.NewCond(&w.mu)
	w.queueDrained = sync.NewCond(&w.mu)
	atomic.StoreInt32(&w.state, int32(RUNNING))

	w.wg.Add(1)
	go w.loop()
	return w
}

// Name returns the Worker's stable name.
func (w *Worker) Name() string {
	return w.name
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(atomic.LoadInt32(&w.state))
}

// FabricRef returns the opaque back-pointer set at construction, for
// the owning fabric package to type-assert against itself.
func (w *Worker) FabricRef() interface{} {
	return w.fabric
}

// AnnouncedBlocking reports whether the running task has called
// BlockAhead without a matching BlockClear yet.
func (w *Worker) AnnouncedBlocking() bool {
	return atomic.LoadInt32(&w.announceCount) > 0
}

// JobStartedAt returns the unix-nanosecond timestamp the current job
// began, or 0 if the Worker is idle. Sysmon polls this.
func (w *Worker) JobStartedAt() int64 {
	return atomic.LoadInt64(&w.jobStart)
}

// QueueLen returns the number of tasks currently queued (not counting
// one that may be running).
func (w *Worker) QueueLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.queue.Len()
}

// Submit appends task to the queue. It fails only once the Worker is
// STOPPING or STOPPED.
func (w *Worker) Submit(task Task) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := State(atomic.LoadInt32(&w.state))
	if st == STOPPING || st == STOPPED {
		return ErrStopped
	}
	w.queue.PushBack(task)
	w.jobAvailable.Signal()
	return nil
}

// SubmitBatch appends every task in tasks atomically with respect to
// other submitters.
func (w *Worker) SubmitBatch(tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	st := State(atomic.LoadInt32(&w.state))
	if st == STOPPING || st == STOPPED {
		return ErrStopped
	}
	w.queue.Reserve(len(tasks))
	for _, t := range tasks {
		w.queue.PushBack(t)
	}
	w.jobAvailable.Broadcast()
	return nil
}

// BlockAhead announces that the running task is about to perform a
// blocking wait. It is reentrant: nested calls are matched by count, so
// only the outermost BlockAhead/BlockClear pair affects announced
// state. Announcing does not itself change State(): per spec.md §4.6,
// sysmon is the one that marks a Worker BLOCKED_COOP, once the task has
// stayed past coop_blocking_threshold_in_ms with this flag set — a task
// that announces and clears quickly never leaves RUNNING.
func (w *Worker) BlockAhead() {
	atomic.AddInt32(&w.announceCount, 1)
}

// BlockClear clears a previously announced blocking wait, and restores
// RUNNING if sysmon had since marked this Worker BLOCKED_COOP.
func (w *Worker) BlockClear() {
	n := atomic.AddInt32(&w.announceCount, -1)
	failfast.If(n >= 0, "worker %q: BlockClear called without a matching BlockAhead", w.name)
	if n == 0 {
		atomic.CompareAndSwapInt32(&w.state, int32(BLOCKED_COOP), int32(RUNNING))
	}
}

// MarkBlockedCoop forces the BLOCKED_COOP state. Only Sysmon calls
// this, once a Worker with AnnouncedBlocking() true has exceeded
// coop_blocking_threshold_in_ms (spec.md §4.6, §8).
func (w *Worker) MarkBlockedCoop() {
	atomic.CompareAndSwapInt32(&w.state, int32(RUNNING), int32(BLOCKED_COOP))
}

// BlockOn polls pred at ~1ms cadence, wrapped in announced blocking,
// until it becomes true. Equivalent to BlockOnWithTimeout(InfiniteTimeout, pred).
func (w *Worker) BlockOn(pred func() bool) bool {
	return w.BlockOnWithTimeout(InfiniteTimeout, pred)
}

// BlockOnWithTimeout polls pred at ~1ms cadence, wrapped in announced
// blocking. NoTimeout checks pred exactly once; InfiniteTimeout waits
// forever; any positive value is a bound in milliseconds.
func (w *Worker) BlockOnWithTimeout(timeout Timeout, pred func() bool) bool {
	w.BlockAhead()
	defer w.BlockClear()

	if pred() {
		return true
	}
	if timeout == NoTimeout {
		return false
	}

	var deadline time.Time
	bounded := timeout != InfiniteTimeout
	if bounded {
		deadline = time.Now().Add(time.Duration(timeout) * time.Millisecond)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for range ticker.C {
		if pred() {
			return true
		}
		if bounded && !time.Now().Before(deadline) {
			return pred()
		}
	}
	return false
}

// DrainPending transfers ownership of every queued-but-not-yet-run task
// out of the Worker, leaving its queue empty. This is the privileged
// operation spec.md §9 describes sysmon using to reach across a
// Worker's boundary under its own lock; ordinary submission paths never
// call it.
func (w *Worker) DrainPending() []Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := w.queue.Len()
	if n == 0 {
		return nil
	}
	tasks := make([]Task, n)
	for i := range tasks {
		tasks[i] = w.queue.PopFront()
	}
	w.queueDrained.Broadcast()
	return tasks
}

// MarkBlockedExternal forces the BLOCKED_EXTERNAL state. Only Sysmon
// calls this; it is the one state transition spec.md §4.1 says comes
// from outside observation rather than the task itself.
func (w *Worker) MarkBlockedExternal() {
	atomic.CompareAndSwapInt32(&w.state, int32(RUNNING), int32(BLOCKED_EXTERNAL))
}

// ResetRunning forces the state back to RUNNING. Sysmon calls this once
// a previously-evicted Worker's stuck task has finally finished and the
// Worker is being reclaimed into the reserve (see pkg/sysmon and
// DESIGN.md's Open Question (b) decision).
func (w *Worker) ResetRunning() {
	atomic.StoreInt32(&w.state, int32(RUNNING))
}

// Stop signals STOPPING: no further Submit calls succeed, but tasks
// already queued still run to completion. Stop blocks until the
// Worker's loop goroutine has exited.
func (w *Worker) Stop() {
	w.mu.Lock()
	atomic.StoreInt32(&w.state, int32(STOPPING))
	w.jobAvailable.Broadcast()
	w.mu.Unlock()
	w.wg.Wait()

	// Belt-and-suspenders per spec.md §3: freeing "drains and discards
	// the queue" even though the loop above should have already emptied
	// it by running everything queued before STOPPING took effect.
	w.mu.Lock()
	for !w.queue.Empty() {
		w.queue.PopFront()
	}
	w.mu.Unlock()
}

func (w *Worker) loop() {
	defer w.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	registry.Set(w)
	defer registry.Clear()

	if w.onWorkerStart != nil {
		w.onWorkerStart()
	}

	for {
		w.mu.Lock()
		for w.queue.Empty() && State(atomic.LoadInt32(&w.state)) != STOPPING {
			w.jobAvailable.Wait()
		}
		if w.queue.Empty() {
			w.mu.Unlock()
			atomic.StoreInt32(&w.state, int32(STOPPED))
			return
		}
		task := w.queue.PopFront()
		if w.queue.Empty() {
			w.queueDrained.Broadcast()
		}
		w.mu.Unlock()

		atomic.StoreInt64(&w.jobStart, time.Now().UnixNano())
		w.runTask(task)
		atomic.StoreInt64(&w.jobStart, 0)

		if w.afterEachJob != nil {
			w.afterEachJob()
		}
	}
}

func (w *Worker) runTask(task Task) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Errorf("worker %q: task panic: %v\n%s", w.name, r, debug.Stack())
		}
	}()
	task.Fn()
}
