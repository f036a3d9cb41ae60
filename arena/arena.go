// Package arena hands out node indices.
//
// The arena is the single authority on which indices exist: it allocates
// them densely from 1 upward and refuses to go past its capacity. Record
// bodies are not kept here; they live in the cache and spill to the archive,
// so the arena stays a few bytes regardless of how many nodes the search
// discovers.
package arena

import (
	"errors"
	"math"
	"sync/atomic"

	"tilesolver/types"
)

// ErrCapacity is returned once every index up to the capacity is taken.
var ErrCapacity = errors.New("arena: node capacity exhausted")

// Arena is an append-only index allocator. Safe for concurrent use.
type Arena struct {
	last     atomic.Uint32
	capacity uint32
}

// New returns an arena that allocates indices 1..capacity.
func New(capacity uint32) *Arena {
	if capacity == math.MaxUint32 {
		capacity--
	}
	return &Arena{capacity: capacity}
}

// Allocate returns the next free index.
func (a *Arena) Allocate() (types.Index, error) {
	for {
		cur := a.last.Load()
		if cur >= a.capacity {
			return types.NoIndex, ErrCapacity
		}
		if a.last.CompareAndSwap(cur, cur+1) {
			return types.Index(cur + 1), nil
		}
	}
}

// Len is the number of allocated indices.
func (a *Arena) Len() int { return int(a.last.Load()) }

// Capacity is the largest index the arena will hand out.
func (a *Arena) Capacity() int { return int(a.capacity) }

// Contains reports whether idx has been allocated.
func (a *Arena) Contains(idx types.Index) bool {
	return idx != types.NoIndex && uint32(idx) <= a.last.Load()
}
