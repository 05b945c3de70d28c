package locking

import (
	"fmt"
	"sync/atomic"
)

// holders counts the handles sharing one registry entry. It starts at one
// for the handle that created the entry.
type holders struct {
	n atomic.Int32
}

func newHolders() *holders {
	h := &holders{}
	h.n.Store(1)
	return h
}

func (h *holders) join() { h.n.Add(1) }

// leave drops one holder and reports whether it was the last.
func (h *holders) leave() (last bool) {
	n := h.n.Add(-1)
	if n < 0 {
		panic("locking: entry released more often than acquired")
	}
	return n == 0
}

func (h *holders) count() int { return int(h.n.Load()) }

func (h *holders) String() string { return fmt.Sprintf("%d holder(s)", h.count()) }
