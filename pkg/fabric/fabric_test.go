package fabric

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testSettings(workers int) Settings {
	return Settings{
		Name:                "test-fabric",
		WorkersCount:        workers,
		PutAsideWorkerCount: 1,
	}
}

func TestNewSpawnsConfiguredWorkerCount(t *testing.T) {
	f := New(testSettings(3))
	defer f.Stop()

	if got := len(f.LiveWorkers()); got != 3 {
		t.Fatalf("LiveWorkers() len = %d, want 3", got)
	}
}

func TestTaskDoRunsOnSomeWorker(t *testing.T) {
	f := New(testSettings(2))
	f.Start()
	defer f.Stop()

	done := make(chan struct{})
	if err := f.TaskDo(func() { close(done) }); err != nil {
		t.Fatalf("TaskDo() error = %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("TaskDo() task never ran")
	}
}

func TestTaskDoSpreadsAcrossWorkersUnderLoad(t *testing.T) {
	f := New(testSettings(2))
	defer f.Stop()

	block := make(chan struct{})
	for i := 0; i < 2; i++ {
		f.TaskDo(func() { <-block })
	}
	time.Sleep(10 * time.Millisecond) // let both tasks start running

	// A third submission should land on whichever worker is least
	// loaded; with both workers mid-task and queues otherwise empty,
	// it must not pile three tasks onto one worker's queue while the
	// other's queue stays empty.
	f.TaskDo(func() { <-block })

	var totalQueued int
	for _, w := range f.LiveWorkers() {
		totalQueued += w.QueueLen()
	}
	if totalQueued > 1 {
		t.Fatalf("total queued across workers = %d, want <= 1 (spread, not piled)", totalQueued)
	}
	close(block)
}

func TestGoLocalPanicsWithoutContext(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("GoLocal() outside any Fabric/Worker context did not panic")
		}
		if r != ErrNoLocalContext {
			t.Fatalf("GoLocal() panic = %v, want %v", r, ErrNoLocalContext)
		}
	}()
	GoLocal(func() {})
}

func TestGoLocalRoutesToOwningFabricFromWithinTask(t *testing.T) {
	f := New(testSettings(1))
	f.Start()
	defer f.Stop()

	var ran int32
	done := make(chan struct{})
	f.TaskDo(func() {
		GoLocal(func() {
			atomic.AddInt32(&ran, 1)
			close(done)
		})
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("GoLocal() from inside a task never ran its fn")
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatalf("ran = %d, want 1", ran)
	}
}

func TestStopJoinsAllWorkers(t *testing.T) {
	f := New(testSettings(4))
	f.Start()

	var wg sync.WaitGroup
	wg.Add(10)
	for i := 0; i < 10; i++ {
		f.TaskDo(func() { wg.Done() })
	}
	wg.Wait()
	f.Stop()

	if len(f.LiveWorkers()) != 0 {
		t.Fatal("LiveWorkers() non-empty after Stop()")
	}
}

func TestDefaultSettingsPositiveWorkerCount(t *testing.T) {
	s := DefaultSettings()
	if s.WorkersCount <= 0 {
		t.Fatalf("DefaultSettings().WorkersCount = %d, want > 0", s.WorkersCount)
	}
}
