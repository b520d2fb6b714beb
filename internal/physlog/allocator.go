package physlog

import (
	"fmt"
	"sync"
)

// allocator tracks which extents are owned. Grants are all-or-nothing and
// always hand out the lowest free indices.
type allocator struct {
	mu    sync.Mutex
	owned []bool
	free  int
	hint  int
}

func newAllocator(n uint32) *allocator {
	return &allocator{owned: make([]bool, n), free: int(n)}
}

// claim marks i owned while the catalog is loaded.
func (a *allocator) claim(i uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(i) >= len(a.owned) {
		return fmt.Errorf("extent %d out of range [0, %d)", i, len(a.owned))
	}
	if a.owned[i] {
		return fmt.Errorf("extent %d owned twice", i)
	}
	a.owned[i] = true
	a.free--
	return nil
}

func (a *allocator) grant(n int) ([]uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n > a.free {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrNoSpace, n, a.free)
	}
	out := make([]uint32, 0, n)
	for i := a.hint; i < len(a.owned) && len(out) < n; i++ {
		if !a.owned[i] {
			a.owned[i] = true
			out = append(out, uint32(i))
		}
	}
	if len(out) < n {
		// free count and bitmap disagree; undo and report
		for _, i := range out {
			a.owned[i] = false
		}
		return nil, fmt.Errorf("%w: allocator lost track of %d free extents", ErrUnrecoverable, n-len(out))
	}
	a.free -= n
	a.hint = int(out[len(out)-1]) + 1
	return out, nil
}

// release returns extents to the free pool. Releasing an extent that is not
// owned is an invariant violation and leaves the pool untouched.
func (a *allocator) release(list []uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, i := range list {
		if int(i) >= len(a.owned) || !a.owned[i] {
			return fmt.Errorf("%w: release of unowned extent %d", ErrUnrecoverable, i)
		}
	}
	for _, i := range list {
		a.owned[i] = false
		if int(i) < a.hint {
			a.hint = int(i)
		}
	}
	a.free += len(list)
	return nil
}

func (a *allocator) freeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.free
}

func (a *allocator) size() int { return len(a.owned) }
