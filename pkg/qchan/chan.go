// Package qchan implements Chan[T], a bounded, reference-counted,
// closable generic channel. It hides its internal ring buffer and
// condition variables behind a message-passing API, the same way
// the teacher's concurrency.Mailbox hides a native Go channel.
package qchan

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/quadgate/fabric/internal/ring"
)

var (
	// ErrClosed is returned by a non-blocking op against a closed channel.
	ErrClosed = errors.New("qchan: channel is closed")
	// ErrFull is returned by TrySend against a channel at capacity.
	ErrFull = errors.New("qchan: channel is full")
	// ErrEmpty is returned by TryRecv against a channel with nothing queued.
	ErrEmpty = errors.New("qchan: channel is empty")
)

// Chan is a bounded FIFO of T with blocking and non-blocking send/recv,
// explicit close, and reference-counted lifetime management. The zero
// value is not usable; construct with New.
type Chan[T any] struct {
	mtx      sync.Mutex
	readCV   *sync.Cond
	writeCV  *sync.Cond
	q        *ring.Ring[T]
	limit    int32 // 0 means closed
	arc      int32 // atomic reference count
}

// New creates a new channel with the given bounded capacity (limit).
// limit must be greater than zero: a channel created with limit 0 would
// be indistinguishable from an already-closed one, which is a
// programmer error rather than a usable empty channel.
func New[T any](limit int) *Chan[T] {
	if limit <= 0 {
		panic("qchan: New: limit must be > 0")
	}
	c := &Chan[T]{
		q:     ring.New[T](),
		limit: int32(limit),
		arc:   1,
	}
	c.readCV = sync.NewCond(&c.mtx)
	c.writeCV = sync.NewCond(&c.mtx)
	return c
}

// Ref increments the reference count and returns the same channel, so
// callers can write c2 := c.Ref() to make ownership explicit at a
// hand-off site.
func (c *Chan[T]) Ref() *Chan[T] {
	atomic.AddInt32(&c.arc, 1)
	return c
}

// Unref decrements the reference count. The last Unref closes the
// channel (waking any parked Send/Recv instead of leaving them blocked
// on a mutex no one will ever signal again) and releases its internal
// ring buffer.
func (c *Chan[T]) Unref() {
	if atomic.AddInt32(&c.arc, -1) == 0 {
		c.mtx.Lock()
		atomic.StoreInt32(&c.limit, 0)
		c.readCV.Broadcast()
		c.writeCV.Broadcast()
		c.q = nil
		c.mtx.Unlock()
	}
}

// Guard holds one reference on a Chan and releases it exactly once.
// It is the Go stand-in for original_source's Auto_Chan/
// Auto_Chan_Stream RAII wrappers: where the C++ destructor calls
// chan_unref automatically at scope exit, Go callers pair a Guard with
// defer.
type Guard[T any] struct {
	c        *Chan[T]
	released bool
}

// Ref takes a reference on c and returns a Guard that releases it.
// Typical use: guard := qchan.Ref(c); defer guard.Release().
func Ref[T any](c *Chan[T]) *Guard[T] {
	return &Guard[T]{c: c.Ref()}
}

// Release drops the Guard's reference. It is a no-op if already
// released, so a deferred Release composes safely with an earlier
// explicit one.
func (g *Guard[T]) Release() {
	if g.released {
		return
	}
	g.released = true
	g.c.Unref()
}

// Chan returns the guarded channel.
func (g *Guard[T]) Chan() *Chan[T] {
	return g.c
}

// Closed reports whether the channel has been closed.
func (c *Chan[T]) Closed() bool {
	return atomic.LoadInt32(&c.limit) == 0
}

// Close closes the channel. Blocked and future Send calls panic (per
// spec: sending on a closed channel is a programmer fault) and TrySend
// returns ErrClosed; blocked and future receivers drain any values
// still queued before observing end-of-stream. Close is idempotent.
func (c *Chan[T]) Close() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if atomic.LoadInt32(&c.limit) == 0 {
		return
	}
	atomic.StoreInt32(&c.limit, 0)
	c.readCV.Broadcast()
	c.writeCV.Broadcast()
}

// CanSend reports whether a Send would currently succeed without
// blocking (queue below capacity and channel open).
func (c *Chan[T]) CanSend() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.canSendLocked()
}

func (c *Chan[T]) canSendLocked() bool {
	limit := atomic.LoadInt32(&c.limit)
	return limit != 0 && c.q.Len() < int(limit)
}

// CanRecv reports whether a Recv would currently succeed without
// blocking (something queued, regardless of closed state).
func (c *Chan[T]) CanRecv() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.q.Len() > 0
}

// Send blocks until there is room in the channel, then enqueues value.
// It panics if the channel is already closed: sending into a closed
// channel is a coding error, not a runtime condition callers should
// branch on (spec.md §7).
func (c *Chan[T]) Send(value T) {
	c.Ref()
	defer c.Unref()
	c.mtx.Lock()
	defer c.mtx.Unlock()
	for {
		limit := atomic.LoadInt32(&c.limit)
		if limit == 0 {
			panic("qchan: Send: cannot send on a closed channel")
		}
		if c.q.Len() < int(limit) {
			break
		}
		c.writeCV.Wait()
	}
	c.q.PushBack(value)
	c.readCV.Signal()
}

// TrySend enqueues value without blocking. It returns ErrFull if the
// channel is at capacity and ErrClosed if the channel is closed.
func (c *Chan[T]) TrySend(value T) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	limit := atomic.LoadInt32(&c.limit)
	if limit == 0 {
		return ErrClosed
	}
	if c.q.Len() >= int(limit) {
		return ErrFull
	}
	c.q.PushBack(value)
	c.readCV.Signal()
	return nil
}

// Recv blocks until a value is available or the channel is closed and
// drained. The second return is false only once the channel is closed
// and empty, at which point the first return is the zero value of T.
func (c *Chan[T]) Recv() (T, bool) {
	c.Ref()
	defer c.Unref()
	c.mtx.Lock()
	defer c.mtx.Unlock()
	for c.q.Len() == 0 {
		if atomic.LoadInt32(&c.limit) == 0 {
			var zero T
			return zero, false
		}
		c.readCV.Wait()
	}
	v := c.q.PopFront()
	c.writeCV.Signal()
	return v, true
}

// TryRecv attempts to dequeue a value without blocking. ok is false if
// nothing is queued right now; err is ErrEmpty distinctly from a closed,
// drained channel (ErrClosed) so callers can tell "try again" apart from
// "stop trying".
func (c *Chan[T]) TryRecv() (value T, ok bool, err error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.q.Len() == 0 {
		if atomic.LoadInt32(&c.limit) == 0 {
			return value, false, ErrClosed
		}
		return value, false, ErrEmpty
	}
	v := c.q.PopFront()
	c.writeCV.Signal()
	return v, true, nil
}

// Len returns the number of values currently queued.
func (c *Chan[T]) Len() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.q.Len()
}

// Range calls fn for every value received until the channel closes and
// drains, or fn returns false. It is the idiomatic Go replacement for
// the original Chan_Iterator/begin/end range-for pair — Go has no
// operator overloading to hang a custom iterator off range directly,
// so this takes the callback form instead (and, on Go 1.23+, can be
// passed straight to a range-over-func loop: for v := range c.Range).
func (c *Chan[T]) Range(fn func(T) bool) {
	for {
		v, ok := c.Recv()
		if !ok {
			return
		}
		if !fn(v) {
			return
		}
	}
}
