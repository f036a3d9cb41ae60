package cache

import "tilesolver/types"

// splayTree keeps every resident entry in one binary search tree keyed by
// node index. Lookups splay the entry to the root, so recently touched
// entries sit shallow and trim cuts the deepest levels.
type splayTree struct {
	root Slot
}

// find splays on every lookup, promoting or not. Indices arrive in
// increasing order, so without it the tree degenerates into a chain as deep
// as the cache and Peek walks all of it.
func (t *splayTree) find(c *Cache, idx types.Index, _ bool) Slot {
	t.splay(c, idx)
	if t.root != noSlot && c.slots[t.root].index == idx {
		return t.root
	}
	return noSlot
}

// link inserts s, whose index is not yet in the tree, as the new root.
func (t *splayTree) link(c *Cache, s Slot) {
	e := c.slots
	e[s].left, e[s].right = noSlot, noSlot
	if t.root == noSlot {
		t.root = s
		return
	}
	idx := e[s].index
	t.splay(c, idx)
	r := t.root
	if idx < e[r].index {
		e[s].left, e[s].right = e[r].left, r
		e[r].left = noSlot
	} else {
		e[s].right, e[s].left = e[r].right, r
		e[r].right = noSlot
	}
	t.root = s
}

// splay is the top-down splay: it brings idx (or the last node on its search
// path) to the root. lRoot/lMax collect the nodes smaller than idx, rRoot/rMin
// the larger ones.
func (t *splayTree) splay(c *Cache, idx types.Index) {
	if t.root == noSlot {
		return
	}
	e := c.slots
	var lRoot, lMax, rRoot, rMin Slot
	cur := t.root

	for {
		if idx < e[cur].index {
			l := e[cur].left
			if l == noSlot {
				break
			}
			if idx < e[l].index {
				e[cur].left = e[l].right
				e[l].right = cur
				cur = l
				if e[cur].left == noSlot {
					break
				}
			}
			if rMin == noSlot {
				rRoot = cur
			} else {
				e[rMin].left = cur
			}
			rMin = cur
			cur = e[cur].left
		} else if idx > e[cur].index {
			r := e[cur].right
			if r == noSlot {
				break
			}
			if idx > e[r].index {
				e[cur].right = e[r].left
				e[r].left = cur
				cur = r
				if e[cur].right == noSlot {
					break
				}
			}
			if lMax == noSlot {
				lRoot = cur
			} else {
				e[lMax].right = cur
			}
			lMax = cur
			cur = e[cur].right
		} else {
			break
		}
	}

	if lMax == noSlot {
		lRoot = e[cur].left
	} else {
		e[lMax].right = e[cur].left
	}
	if rMin == noSlot {
		rRoot = e[cur].right
	} else {
		e[rMin].left = e[cur].right
	}
	e[cur].left, e[cur].right = lRoot, rRoot
	t.root = cur
}

type depthSlot struct {
	s     Slot
	depth int
}

// trim tallies entries per depth, picks the shallowest cut depth whose
// removed mass is still no larger than necessary (the deepest depth d with
// count(depth ≥ d) ≥ used-target) and evicts every subtree rooted at d.
func (t *splayTree) trim(c *Cache, target int, evict func(Slot) error) error {
	need := int(c.used.Load()) - target
	if need <= 0 || t.root == noSlot {
		return nil
	}

	var counts []int
	stack := []depthSlot{{t.root, 0}}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for len(counts) <= n.depth {
			counts = append(counts, 0)
		}
		counts[n.depth]++
		if l := c.slots[n.s].left; l != noSlot {
			stack = append(stack, depthSlot{l, n.depth + 1})
		}
		if r := c.slots[n.s].right; r != noSlot {
			stack = append(stack, depthSlot{r, n.depth + 1})
		}
	}

	cut, mass := 0, 0
	for d := len(counts) - 1; d >= 0; d-- {
		mass += counts[d]
		if mass >= need {
			cut = d
			break
		}
	}

	if cut == 0 {
		root := t.root
		t.root = noSlot
		return t.evictSubtree(c, root, evict)
	}

	stack = append(stack[:0], depthSlot{t.root, 0})
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		e := &c.slots[n.s]
		if n.depth == cut-1 {
			l, r := e.left, e.right
			e.left, e.right = noSlot, noSlot
			if err := t.evictSubtree(c, l, evict); err != nil {
				t.relink(c, r)
				return err
			}
			if err := t.evictSubtree(c, r, evict); err != nil {
				return err
			}
			continue
		}
		if e.left != noSlot {
			stack = append(stack, depthSlot{e.left, n.depth + 1})
		}
		if e.right != noSlot {
			stack = append(stack, depthSlot{e.right, n.depth + 1})
		}
	}
	return nil
}

func (t *splayTree) evictSubtree(c *Cache, root Slot, evict func(Slot) error) error {
	if root == noSlot {
		return nil
	}
	pending := []Slot{root}
	for len(pending) > 0 {
		s := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if l := c.slots[s].left; l != noSlot {
			pending = append(pending, l)
		}
		if r := c.slots[s].right; r != noSlot {
			pending = append(pending, r)
		}
		if err := evict(s); err != nil {
			// s keeps its slot; its children are already pending.
			c.slots[s].left, c.slots[s].right = noSlot, noSlot
			t.relink(c, append(pending, s)...)
			return err
		}
	}
	return nil
}

// relink reinserts every node of subtrees that were cut loose for eviction
// but could not be evicted.
func (t *splayTree) relink(c *Cache, roots ...Slot) {
	var nodes []Slot
	for len(roots) > 0 {
		s := roots[len(roots)-1]
		roots = roots[:len(roots)-1]
		if s == noSlot {
			continue
		}
		nodes = append(nodes, s)
		roots = append(roots, c.slots[s].left, c.slots[s].right)
	}
	for _, s := range nodes {
		t.link(c, s)
	}
}
