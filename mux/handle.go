package mux

import (
	"runtime"

	"go.uber.org/atomic"
)

// NoID is the identifier reported by a handle that holds no slot.
const NoID = -1

// Handle owns one identifier of a Pool. The identifier is never shared:
// Clone acquires a new one and Move transfers it, leaving the source empty.
//
// A Handle should be closed when its connection is torn down. Handles that
// become unreachable without being closed give their identifier back when
// the garbage collector reclaims them.
type Handle struct {
	pool *Pool
	id   *atomic.Int32
}

func newHandle(p *Pool, id int) *Handle {
	slot := atomic.NewInt32(int32(id))
	h := &Handle{pool: p, id: slot}
	runtime.AddCleanup(h, func(slot *atomic.Int32) {
		p.Release(int(slot.Swap(NoID)))
	}, slot)
	return h
}

// ID returns the identifier held by the handle or NoID.
func (h *Handle) ID() int {
	return int(h.id.Load())
}

// Valid reports whether the handle currently holds an identifier.
func (h *Handle) Valid() bool {
	return h.ID() != NoID
}

// Clone returns a new handle on the same pool with a freshly acquired identifier.
func (h *Handle) Clone() (*Handle, error) {
	return h.pool.Acquire()
}

// Move transfers the identifier to a new handle. The receiver is left
// without an identifier, so closing it afterwards does not affect the
// returned handle.
func (h *Handle) Move() *Handle {
	return newHandle(h.pool, int(h.id.Swap(NoID)))
}

// Close releases the identifier. It is safe to call more than once.
func (h *Handle) Close() error {
	h.pool.Release(int(h.id.Swap(NoID)))
	return nil
}
