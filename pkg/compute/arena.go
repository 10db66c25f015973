package compute

import "github.com/valyala/bytebufferpool"

// Arena is the Go stand-in for original_source's per-dispatch
// memory::tmp() scratch allocator: a byte buffer an invocation function
// can use for throwaway work, reset after every call (ComputeTiled)
// or every local invocation (Compute/ComputeSized) the same way the
// original calls memory::tmp()->clear_all(). Backed by
// valyala/bytebufferpool so repeated dispatches reuse one arena's
// backing array instead of allocating fresh garbage per invocation.
type Arena struct {
	buf *bytebufferpool.ByteBuffer
}

func newArena() *Arena {
	return &Arena{buf: bytebufferpool.Get()}
}

// Bytes returns the arena's current scratch buffer, valid until the
// next reset.
func (a *Arena) Bytes() []byte {
	return a.buf.B
}

// Write appends p to the arena's scratch buffer.
func (a *Arena) Write(p []byte) (int, error) {
	return a.buf.Write(p)
}

func (a *Arena) reset() {
	a.buf.Reset()
}

// release returns the arena's backing buffer to the pool. Called once
// dispatch has fully finished with it; ordinary Compute/ComputeSized/
// ComputeTiled callers never see an *Arena directly, so this is for the
// dispatch loop's own bookkeeping (each goroutine's arena is released
// once its workgroup's invocations complete).
func (a *Arena) release() {
	bytebufferpool.Put(a.buf)
}
