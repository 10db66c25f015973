package worker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRunsTaskInOrder(t *testing.T) {
	w := New("w0", Options{})
	defer w.Stop()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(5)
	for i := 0; i < 5; i++ {
		i := i
		if err := w.Submit(Task{Fn: func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		}}); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want FIFO 0..4", order)
		}
	}
}

func TestSubmitAfterStopFails(t *testing.T) {
	w := New("w0", Options{})
	w.Stop()
	if err := w.Submit(Task{Fn: func() {}}); err != ErrStopped {
		t.Fatalf("Submit() after Stop() = %v, want ErrStopped", err)
	}
}

func TestPanicInTaskDoesNotKillWorker(t *testing.T) {
	w := New("w0", Options{})
	defer w.Stop()

	done := make(chan struct{})
	w.Submit(Task{Fn: func() { panic("boom") }})
	w.Submit(Task{Fn: func() { close(done) }})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker stalled after a task panic")
	}
}

// BlockAhead itself only raises the announced-blocking flag; sysmon is
// the one that actually transitions a Worker's state to BLOCKED_COOP
// once the coop threshold elapses (spec.md §4.6, §8). See pkg/sysmon's
// tests for that transition; here we only check the flag and that
// BlockClear restores it once the matching announcement is cleared.
func TestBlockAheadAnnouncesBlockingUntilCleared(t *testing.T) {
	w := New("w0", Options{})
	defer w.Stop()

	ready := make(chan struct{})
	release := make(chan struct{})
	w.Submit(Task{Fn: func() {
		w.BlockAhead()
		close(ready)
		<-release
		w.BlockClear()
	}})

	<-ready
	time.Sleep(5 * time.Millisecond)
	if !w.AnnouncedBlocking() {
		t.Fatal("AnnouncedBlocking() = false after BlockAhead()")
	}
	if got := w.State(); got != RUNNING {
		t.Fatalf("State() = %v, want RUNNING (BlockAhead alone must not flip state)", got)
	}
	close(release)
	time.Sleep(5 * time.Millisecond)
	if w.AnnouncedBlocking() {
		t.Fatal("AnnouncedBlocking() = true after matching BlockClear()")
	}
}

// TestMarkBlockedCoopTransitionsFromRunning exercises the sysmon-only
// entry point directly, independent of the sampling loop's timing.
func TestMarkBlockedCoopTransitionsFromRunning(t *testing.T) {
	w := New("w0", Options{})
	defer w.Stop()

	ready := make(chan struct{})
	release := make(chan struct{})
	w.Submit(Task{Fn: func() {
		w.BlockAhead()
		close(ready)
		<-release
	}})

	<-ready
	w.MarkBlockedCoop()
	if got := w.State(); got != BLOCKED_COOP {
		t.Fatalf("State() = %v, want BLOCKED_COOP", got)
	}
	close(release)
}

func TestBlockOnWithTimeoutNoTimeoutChecksOnce(t *testing.T) {
	w := New("w0", Options{})
	defer w.Stop()

	if w.BlockOnWithTimeout(NoTimeout, func() bool { return false }) {
		t.Fatal("BlockOnWithTimeout(NoTimeout, false) = true")
	}
}

func TestBlockOnWithTimeoutFiniteExpires(t *testing.T) {
	w := New("w0", Options{})
	defer w.Stop()

	start := time.Now()
	ok := w.BlockOnWithTimeout(Finite(20*time.Millisecond), func() bool { return false })
	if ok {
		t.Fatal("BlockOnWithTimeout() = true, want false on a predicate that never succeeds")
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Fatal("BlockOnWithTimeout() returned before the timeout elapsed")
	}
}

func TestBlockOnUnblocksWhenPredicateBecomesTrue(t *testing.T) {
	w := New("w0", Options{})
	defer w.Stop()

	var flag int32
	go func() {
		time.Sleep(10 * time.Millisecond)
		atomic.StoreInt32(&flag, 1)
	}()

	ok := w.BlockOn(func() bool { return atomic.LoadInt32(&flag) == 1 })
	if !ok {
		t.Fatal("BlockOn() = false, want true once the predicate flips")
	}
}

func TestDrainPendingTransfersQueue(t *testing.T) {
	w := New("w0", Options{})
	defer w.Stop()

	block := make(chan struct{})
	w.Submit(Task{Fn: func() { <-block }})
	for i := 0; i < 3; i++ {
		w.Submit(Task{Fn: func() {}})
	}
	time.Sleep(5 * time.Millisecond) // let the first task start running

	drained := w.DrainPending()
	if len(drained) != 3 {
		t.Fatalf("DrainPending() returned %d tasks, want 3", len(drained))
	}
	if w.QueueLen() != 0 {
		t.Fatalf("QueueLen() after drain = %d, want 0", w.QueueLen())
	}
	close(block)
}

func TestLocalReturnsOwningWorker(t *testing.T) {
	w := New("w0", Options{})
	defer w.Stop()

	result := make(chan *Worker, 1)
	w.Submit(Task{Fn: func() {
		result <- Local()
	}})

	got := <-result
	if got != w {
		t.Fatalf("Local() inside task = %v, want %v", got, w)
	}

	if Local() != nil {
		t.Fatal("Local() outside any worker goroutine returned non-nil")
	}
}
