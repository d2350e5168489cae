package group

import (
	"sync"

	ethercat "github.com/go-ethercat/master"
)

// borrowGuard enforces "at most one mutable view of each PDI byte range at
// a time" at runtime, the way the design notes prescribe for languages
// without compile-time sub-slice aliasing checks: a list of borrowed
// ranges consulted under a single mutex.
type borrowGuard struct {
	mu   sync.Mutex
	held []byteRange
}

type byteRange struct {
	offset, length uint32
}

func (a byteRange) overlaps(b byteRange) bool {
	return a.offset < b.offset+b.length && b.offset < a.offset+a.length
}

// Borrow claims [offset, offset+length) exclusively, returning a release
// function, or ErrBorrowConflict if any byte in the range is already held.
func (g *borrowGuard) Borrow(offset, length uint32) (release func(), err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r := byteRange{offset, length}
	for _, h := range g.held {
		if h.overlaps(r) {
			return nil, ethercat.ErrBorrowConflict
		}
	}
	g.held = append(g.held, r)
	return func() { g.release(r) }, nil
}

func (g *borrowGuard) release(r byteRange) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, h := range g.held {
		if h == r {
			g.held = append(g.held[:i], g.held[i+1:]...)
			return
		}
	}
}
