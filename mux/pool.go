// Package mux hands out the small connection identifiers that let several
// logical sockets share one modem command channel.
package mux

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"
)

// MaxCapacity is the largest pool the bitmap can track.
const MaxCapacity = 64

var (
	// ErrResourceExhausted is returned by Acquire and Clone when every
	// identifier of the pool is held by a live handle.
	ErrResourceExhausted = errors.New("no free socket id")

	// ErrInvalidCapacity is returned by NewPool for capacities outside
	// 1..MaxCapacity.
	ErrInvalidCapacity = errors.New("invalid socket pool capacity")
)

// Pool is a fixed capacity allocator of socket identifiers 0..N-1.
// It is safe for concurrent use.
type Pool struct {
	mu   sync.Mutex
	used uint64
	size int
}

// NewPool creates a pool of n identifiers.
func NewPool(n int) (*Pool, error) {
	if n < 1 || n > MaxCapacity {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, n)
	}
	return &Pool{size: n}, nil
}

// Cap returns the number of identifiers managed by the pool.
func (p *Pool) Cap() int {
	return p.size
}

// InUse returns how many identifiers are currently held.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return bits.OnesCount64(p.used)
}

// Acquire binds the lowest free identifier to a new handle. It never
// blocks; when the pool is full it returns ErrResourceExhausted and the
// caller decides whether to retry.
func (p *Pool) Acquire() (*Handle, error) {
	id, ok := p.allocate()
	if !ok {
		return nil, ErrResourceExhausted
	}
	return newHandle(p, id), nil
}

// Release returns id to the pool. Releasing a free or out of range id is a no-op.
func (p *Pool) Release(id int) {
	if id < 0 || id >= p.size {
		return
	}
	p.mu.Lock()
	p.used &^= 1 << uint(id)
	p.mu.Unlock()
}

func (p *Pool) allocate() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	free := ^p.used
	if p.size < MaxCapacity {
		free &= 1<<uint(p.size) - 1
	}
	if free == 0 {
		return -1, false
	}
	id := bits.TrailingZeros64(free)
	p.used |= 1 << uint(id)
	return id, true
}
