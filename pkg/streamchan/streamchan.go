// Package streamchan implements StreamChan, a byte-oriented,
// back-pressured, closable pipe, and LazyStream, which runs a producer
// against a Fabric (or synchronously, with no Fabric) and hands back
// the reader end.
//
// It re-expresses original_source/mn/include/mn/Fabric.h's
// IChan_Stream/chan_stream_*/lazy_stream in Go idiom: io.Reader and
// io.Writer instead of cursor-based read/write calls, Close() error
// plus defer instead of the Auto_Chan_Stream RAII wrapper, and a
// reader error instead of a panic for the unsupported Seek operation
// (a stream misuse is a recoverable outcome at this boundary, not a
// programmer fault, per spec.md §7).
package streamchan

import (
	"errors"
	"io"
	"sync"

	"github.com/quadgate/fabric/pkg/qchan"
)

// ErrCursorUnsupported is returned by Seek: stream channels are a pure
// forward pipe, the same way lazy_stream's original docs describe
// compress-then-encrypt pipelining without ever buffering the whole
// artifact, so there is no cursor to move.
var ErrCursorUnsupported = errors.New("streamchan: seek is not supported")

// Stream is a byte-oriented, back-pressured, closable pipe with a
// single staging slot for one written chunk. A Write blocks while the
// slot still holds a chunk Read has not taken yet, and returns as soon
// as its own chunk is in the slot; it does not wait for Read to consume
// that chunk. At most two chunks are held at once: one Read has taken
// but not fully copied out, and one waiting in the slot.
type Stream struct {
	ch      *qchan.Chan[[]byte]
	pending []byte

	mu      sync.Mutex
	prodErr error
}

// New creates an empty Stream.
func New() *Stream {
	return &Stream{ch: qchan.New[[]byte](1)}
}

// Write enqueues a copy of p as the next chunk, blocking if the stream
// is full. It implements io.Writer; Size (see below) is always 0, so
// this is the only way to learn Write succeeded. On a closed stream
// (including one closed while Write is blocked) it returns 0 and
// io.ErrClosedPipe.
func (s *Stream) Write(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	defer func() {
		if r := recover(); r != nil {
			if !s.ch.Closed() {
				panic(r)
			}
			n, err = 0, io.ErrClosedPipe
		}
	}()
	s.ch.Send(cp)
	return len(p), nil
}

// Read fills p with bytes from the stream, blocking until at least one
// byte is available or the stream is closed and drained (io.EOF).
func (s *Stream) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		chunk, ok := s.ch.Recv()
		if !ok {
			return 0, io.EOF
		}
		s.pending = chunk
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Close closes the stream. Pending writes already queued are still
// delivered to Read before io.EOF; it does not discard buffered data.
func (s *Stream) Close() error {
	s.ch.Close()
	return nil
}

// Size always returns 0: a stream channel has no notion of total
// length, matching the original IChan_Stream contract.
func (s *Stream) Size() int64 {
	return 0
}

// Err returns the error the producer function returned, if LazyStream
// was used and the producer has finished. It is nil until then.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prodErr
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	s.prodErr = err
	s.mu.Unlock()
}

// Seek always fails: StreamChan is forward-only.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	return 0, ErrCursorUnsupported
}

// Runner is the subset of Fabric's submission API LazyStream needs. It
// is satisfied by *fabric.Fabric; kept as a narrow interface here so
// streamchan never imports the fabric package (which would be a
// dependency cycle, since fabric's compute/worker machinery can in
// turn produce stream output).
type Runner interface {
	TaskDo(fn func()) error
}

// LazyStream submits producer to run, its io.Writer output becoming the
// returned stream's Read side; it returns once producer is scheduled,
// not once it completes. If fabric is nil, producer runs synchronously
// before LazyStream returns, matching the original's documented
// "compress then encrypt" pipelining use case: chaining two LazyStreams
// lets the first pipe decompressed bytes into the second's producer
// without ever buffering the whole artifact in memory.
func LazyStream(fabric Runner, producer func(w io.Writer) error) (*Stream, error) {
	s := New()
	run := func() {
		defer s.Close()
		s.setErr(producer(s))
	}
	if fabric == nil {
		run()
		return s, nil
	}
	if err := fabric.TaskDo(run); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
