package framequeue

import (
	"sync"

	"tilesolver/types"
)

// chunkLen is the number of indices per chunk: 4 KiB of payload.
const chunkLen = 1024

// chunk is one fixed-size block of a frame list.
type chunk struct {
	next *chunk
	n    int
	vals [chunkLen]types.Index
}

// chunkArena recycles chunks across every frame of a queue. Chunks of a
// destroyed frame go back on the free list and are handed to whichever frame
// grows next.
type chunkArena struct {
	mu       sync.Mutex
	freeHead *chunk
	live     int
	total    int
}

func newChunkArena() *chunkArena {
	return &chunkArena{}
}

// borrow pops a chunk off the free list, allocating when it is empty.
func (a *chunkArena) borrow() *chunk {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.live++
	c := a.freeHead
	if c == nil {
		a.total++
		return &chunk{}
	}
	a.freeHead = c.next
	c.next, c.n = nil, 0
	return c
}

// release pushes c back on the free list.
func (a *chunkArena) release(c *chunk) {
	a.mu.Lock()
	c.next, c.n = a.freeHead, 0
	a.freeHead = c
	a.live--
	a.mu.Unlock()
}

// stats reports chunks in use and chunks ever allocated.
func (a *chunkArena) stats() (live, total int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live, a.total
}

// listBuffer is a singly linked chunk list. Reading releases each chunk as
// soon as it is consumed.
type listBuffer struct {
	arena      *chunkArena
	head, tail *chunk
	pos        int
	count      int
}

func (b *listBuffer) append(idx types.Index) error {
	if b.tail == nil || b.tail.n == chunkLen {
		c := b.arena.borrow()
		if b.tail == nil {
			b.head = c
		} else {
			b.tail.next = c
		}
		b.tail = c
	}
	b.tail.vals[b.tail.n] = idx
	b.tail.n++
	b.count++
	return nil
}

func (b *listBuffer) rewind() (int, error) {
	b.pos = 0
	return b.count, nil
}

func (b *listBuffer) next() (types.Index, error) {
	for b.head != nil && b.pos == b.head.n {
		c := b.head
		b.head = c.next
		if b.head == nil {
			b.tail = nil
		}
		b.arena.release(c)
		b.pos = 0
	}
	if b.head == nil {
		return types.NoIndex, nil
	}
	idx := b.head.vals[b.pos]
	b.pos++
	b.count--
	return idx, nil
}

func (b *listBuffer) discard() (int, error) {
	left := b.count
	for c := b.head; c != nil; {
		next := c.next
		b.arena.release(c)
		c = next
	}
	b.head, b.tail, b.pos, b.count = nil, nil, 0, 0
	return left, nil
}
