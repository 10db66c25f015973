// Package tlocal provides a goroutine-local registry, the idiomatic Go
// substitute for the thread-local "current Fabric"/"current Worker"
// accessors described in spec.md §9. Go has no real thread-local
// storage; the pack already demonstrates the accepted workaround
// (joeycumines-go-utilpkg/eventloop's getGoroutineID, paired with
// runtime.LockOSThread so a goroutine id is stable for the lifetime of
// the OS thread it is pinned to) and this package generalizes it into
// a typed registry any package can reuse.
package tlocal

import (
	"runtime"
	"sync"
)

// GoroutineID returns the current goroutine's runtime id by parsing the
// header line of runtime.Stack output. It is not a public Go API; it is
// the same technique the retrieval pack's event loop uses to recognize
// "am I running on the loop's goroutine".
func GoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}

// Registry maps goroutine ids to a value of type T, set by the owning
// goroutine at start and cleared at exit.
type Registry[T any] struct {
	mu sync.RWMutex
	m  map[uint64]T
}

// NewRegistry returns an empty Registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{m: make(map[uint64]T)}
}

// Set associates v with the calling goroutine. Call from the goroutine
// itself, ideally after runtime.LockOSThread, so the id remains stable
// for as long as the association is needed.
func (r *Registry[T]) Set(v T) {
	id := GoroutineID()
	r.mu.Lock()
	r.m[id] = v
	r.mu.Unlock()
}

// Clear removes the calling goroutine's association, if any.
func (r *Registry[T]) Clear() {
	id := GoroutineID()
	r.mu.Lock()
	delete(r.m, id)
	r.mu.Unlock()
}

// Get returns the value associated with the calling goroutine, and
// whether one was found.
func (r *Registry[T]) Get() (T, bool) {
	id := GoroutineID()
	r.mu.RLock()
	v, ok := r.m[id]
	r.mu.RUnlock()
	return v, ok
}
