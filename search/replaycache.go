package search

import (
	"container/list"

	"tilesolver/types"
)

// replayCache remembers the fingerprints of recently reconstructed nodes so
// a parent-chain walk can stop at the nearest remembered ancestor instead of
// replaying from the root. A node's state never changes under re-parenting,
// so entries never go stale.
//
// Owned by one worker; not safe for concurrent use.
type replayCache struct {
	capacity int
	items    map[types.Index]*list.Element
	order    *list.List // front = most recent

	hits, misses uint64
}

type replayEntry struct {
	idx types.Index
	fp  types.Fingerprint
}

// newReplayCache returns a cache holding up to capacity fingerprints. A
// capacity of 0 disables caching.
func newReplayCache(capacity int) *replayCache {
	return &replayCache{
		capacity: capacity,
		items:    make(map[types.Index]*list.Element, capacity),
		order:    list.New(),
	}
}

func (c *replayCache) get(idx types.Index) (types.Fingerprint, bool) {
	if el, ok := c.items[idx]; ok {
		c.order.MoveToFront(el)
		c.hits++
		return el.Value.(*replayEntry).fp, true
	}
	c.misses++
	return types.Fingerprint{}, false
}

func (c *replayCache) put(idx types.Index, fp types.Fingerprint) {
	if c.capacity <= 0 {
		return
	}
	if el, ok := c.items[idx]; ok {
		c.order.MoveToFront(el)
		el.Value.(*replayEntry).fp = fp
		return
	}
	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*replayEntry).idx)
	}
	c.items[idx] = c.order.PushFront(&replayEntry{idx: idx, fp: fp})
}

func (c *replayCache) len() int { return c.order.Len() }
