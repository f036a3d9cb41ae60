package cache

import "tilesolver/types"

// hashChain buckets entries by index mod bucket count. A hit moves its entry
// to the front of the chain, so chain order approximates recency and the
// tail of every chain is the coldest part of its bucket.
type hashChain struct {
	heads []Slot
	depth int
}

func newHashChain(buckets, depth int) *hashChain {
	return &hashChain{heads: make([]Slot, buckets), depth: depth}
}

func (h *hashChain) bucket(idx types.Index) int {
	return int(uint32(idx) % uint32(len(h.heads)))
}

func (h *hashChain) find(c *Cache, idx types.Index, promote bool) Slot {
	b := h.bucket(idx)
	prev := noSlot
	for s := h.heads[b]; s != noSlot; prev, s = s, c.slots[s].next {
		if c.slots[s].index != idx {
			continue
		}
		if promote && prev != noSlot {
			c.slots[prev].next = c.slots[s].next
			c.slots[s].next = h.heads[b]
			h.heads[b] = s
		}
		return s
	}
	return noSlot
}

func (h *hashChain) link(c *Cache, s Slot) {
	b := h.bucket(c.slots[s].index)
	c.slots[s].next = h.heads[b]
	h.heads[b] = s
}

// trim cuts every chain after depth entries, then retries with a shorter
// depth until occupancy reaches target. Depth 0 empties the cache, so the
// loop always terminates with the postcondition met.
func (h *hashChain) trim(c *Cache, target int, evict func(Slot) error) error {
	for depth := h.depth; ; depth-- {
		depth = max(depth, 0)
		for b := range h.heads {
			// cut is the entry the tail hangs off, noSlot for the bucket head.
			s, cut := h.heads[b], noSlot
			if depth == 0 {
				h.heads[b] = noSlot
			} else {
				cut = s
				for i := 1; i < depth && cut != noSlot; i++ {
					cut = c.slots[cut].next
				}
				if cut == noSlot {
					continue
				}
				s, c.slots[cut].next = c.slots[cut].next, noSlot
			}
			for s != noSlot {
				next := c.slots[s].next
				if err := evict(s); err != nil {
					// s is still allocated: put it and the rest of the tail back.
					if cut == noSlot {
						h.heads[b] = s
					} else {
						c.slots[cut].next = s
					}
					return err
				}
				s = next
			}
		}
		if c.used.Load() <= int64(target) || depth == 0 {
			return nil
		}
	}
}
