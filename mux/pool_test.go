package mux_test

import (
	"errors"
	"testing"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
	"i4.energy/across/cellular/mux"
)

func TestNewPool(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{name: "Zero", size: 0, wantErr: true},
		{name: "Negative", size: -3, wantErr: true},
		{name: "One", size: 1},
		{name: "BG96 mux count", size: 12},
		{name: "Max", size: mux.MaxCapacity},
		{name: "Above max", size: mux.MaxCapacity + 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := mux.NewPool(tt.size)
			if tt.wantErr {
				if !errors.Is(err, mux.ErrInvalidCapacity) {
					t.Errorf("expected ErrInvalidCapacity, got: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Cap() != tt.size {
				t.Errorf("expected capacity %d, got %d", tt.size, p.Cap())
			}
		})
	}
}

func TestPoolAcquire(t *testing.T) {
	t.Run("N successes then ErrResourceExhausted", func(t *testing.T) {
		for _, n := range []int{1, 2, 5, 12, 32, 63, 64} {
			p, err := mux.NewPool(n)
			if err != nil {
				t.Fatalf("NewPool(%d): %v", n, err)
			}

			var handles []*mux.Handle
			for i := 0; i < n; i++ {
				h, err := p.Acquire()
				if err != nil {
					t.Fatalf("n=%d: acquire %d failed: %v", n, i, err)
				}
				if h.ID() != i {
					t.Errorf("n=%d: expected lowest free id %d, got %d", n, i, h.ID())
				}
				handles = append(handles, h)
			}

			if _, err := p.Acquire(); !errors.Is(err, mux.ErrResourceExhausted) {
				t.Errorf("n=%d: expected ErrResourceExhausted, got: %v", n, err)
			}
			if p.InUse() != n {
				t.Errorf("n=%d: expected %d in use, got %d", n, n, p.InUse())
			}
			for _, h := range handles {
				h.Close()
			}
		}
	})

	t.Run("Reuses lowest released id", func(t *testing.T) {
		p, _ := mux.NewPool(4)
		h0, _ := p.Acquire()
		h1, _ := p.Acquire()
		h2, _ := p.Acquire()

		h1.Close()
		h0.Close()

		h, err := p.Acquire()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if h.ID() != 0 {
			t.Errorf("expected id 0, got %d", h.ID())
		}
		h, _ = p.Acquire()
		if h.ID() != 1 {
			t.Errorf("expected id 1, got %d", h.ID())
		}
		h, _ = p.Acquire()
		if h.ID() != 3 {
			t.Errorf("expected id 3, got %d", h.ID())
		}
		if h2.ID() != 2 {
			t.Errorf("expected untouched handle to keep id 2, got %d", h2.ID())
		}
	})
}

func TestPoolRelease(t *testing.T) {
	p, _ := mux.NewPool(3)
	h, _ := p.Acquire()

	// out of range and free ids are ignored
	p.Release(-1)
	p.Release(3)
	p.Release(100)
	p.Release(2)

	if p.InUse() != 1 {
		t.Fatalf("expected 1 in use, got %d", p.InUse())
	}

	if err := h.Close(); err != nil {
		t.Errorf("unexpected error from Close(): %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close() should be a no-op, got: %v", err)
	}
	if h.Valid() {
		t.Error("closed handle should not be valid")
	}
	if h.ID() != mux.NoID {
		t.Errorf("expected NoID, got %d", h.ID())
	}
	if p.InUse() != 0 {
		t.Errorf("expected empty pool, got %d in use", p.InUse())
	}
}

func TestHandleMove(t *testing.T) {
	p, _ := mux.NewPool(2)
	src, _ := p.Acquire()
	id := src.ID()

	dst := src.Move()

	if src.Valid() {
		t.Error("moved-from handle should not be valid")
	}
	if dst.ID() != id {
		t.Errorf("expected destination to own id %d, got %d", id, dst.ID())
	}

	src.Close()
	if !dst.Valid() || dst.ID() != id {
		t.Error("closing the moved-from handle must not affect the destination")
	}
	if p.InUse() != 1 {
		t.Errorf("expected 1 in use, got %d", p.InUse())
	}

	// the id is still held, so a new acquire must not receive it
	other, err := p.Acquire()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other.ID() == id {
		t.Errorf("id %d handed out twice", id)
	}

	empty := src.Move()
	if empty.Valid() {
		t.Error("moving an empty handle should yield an empty handle")
	}
}

func TestHandleClone(t *testing.T) {
	t.Run("Allocates a fresh id", func(t *testing.T) {
		p, _ := mux.NewPool(2)
		h, _ := p.Acquire()

		c, err := h.Clone()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.ID() == h.ID() {
			t.Errorf("clone shares id %d with its source", c.ID())
		}

		h.Close()
		if !c.Valid() {
			t.Error("closing the source must not invalidate the clone")
		}
	})

	t.Run("ErrResourceExhausted when pool is full", func(t *testing.T) {
		p, _ := mux.NewPool(1)
		h, _ := p.Acquire()

		if _, err := h.Clone(); !errors.Is(err, mux.ErrResourceExhausted) {
			t.Errorf("expected ErrResourceExhausted, got: %v", err)
		}
		if h.ID() != 0 {
			t.Errorf("failed clone must leave the source untouched, got id %d", h.ID())
		}
	})
}

func TestPoolConcurrentUse(t *testing.T) {
	const (
		capacity = 6
		workers  = 16
		rounds   = 500
	)

	p, _ := mux.NewPool(capacity)
	var holders [capacity]atomic.Bool

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := 0; i < rounds; i++ {
				h, err := p.Acquire()
				if errors.Is(err, mux.ErrResourceExhausted) {
					continue
				}
				if err != nil {
					return err
				}

				id := h.ID()
				if !holders[id].CompareAndSwap(false, true) {
					return errors.New("id held by two live handles")
				}

				if i%3 == 0 {
					moved := h.Move()
					h.Close()
					h = moved
				}

				holders[id].Store(false)
				h.Close()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if p.InUse() != 0 {
		t.Errorf("expected every id returned, got %d in use", p.InUse())
	}
}
