// ════════════════════════════════════════════════════════════════════════════════════════════════
// ⚡ ROBIN HOOD FINGERPRINT TABLE
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Out-of-Core Puzzle Solver
// Component: Dedup Shard Table
//
// Description:
//   Open-addressing hash table mapping state fingerprints to node indices using Robin Hood
//   displacement with linear probing. One table backs one dedup shard; the shard lock provides
//   all synchronisation, the table itself is single-threaded.
//
// Design Principles:
//   - Power-of-2 sizing with a stored 32-bit hash tag per slot
//   - Robin Hood displacement bounds probe distances and allows early-exit lookups
//   - Value 0 (types.NoIndex) is the empty sentinel, never a valid node
//   - Doubling growth keeps the load factor at or below 1/2
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package localidx

import (
	"tilesolver/types"
	"tilesolver/utils"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// TYPE DEFINITIONS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Hash is a growable Robin Hood map from fingerprint to node index.
//
// Keys, tags and values live in parallel arrays; a slot is empty when its
// value is types.NoIndex.
type Hash struct {
	keys []types.Fingerprint
	tags []uint32
	vals []types.Index
	mask uint32
	size int
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// CONSTRUCTOR
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// New creates a table able to hold capacity entries before its first growth.
func New(capacity int) *Hash {
	if capacity < 4 {
		capacity = 4
	}
	sz := utils.NextPow2(capacity * 2)
	return &Hash{
		keys: make([]types.Fingerprint, sz),
		tags: make([]uint32, sz),
		vals: make([]types.Index, sz),
		mask: sz - 1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// CORE OPERATIONS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Get looks up key, whose hash tag is tag.
//
// EARLY TERMINATION:
//
//	Probing stops at the first empty slot or at the first occupant that sits
//	closer to its home slot than the current probe distance; by the Robin Hood
//	invariant the key cannot lie further along.
func (h *Hash) Get(key types.Fingerprint, tag uint32) (types.Index, bool) {
	i := tag & h.mask
	dist := uint32(0)

	for {
		v := h.vals[i]
		if v == types.NoIndex {
			return types.NoIndex, false
		}
		if h.tags[i] == tag && h.keys[i] == key {
			return v, true
		}
		if h.distance(i) < dist {
			return types.NoIndex, false
		}
		i = (i + 1) & h.mask
		dist++
	}
}

// Insert adds key → val. The caller guarantees key is absent (Get first);
// val must not be types.NoIndex.
//
// ROBIN HOOD ALGORITHM:
//
//	While probing, an occupant closer to its home than the entry being placed
//	gives up its slot; the displaced occupant continues probing in its place.
func (h *Hash) Insert(key types.Fingerprint, tag uint32, val types.Index) {
	if (h.size+1)*2 > len(h.vals) {
		h.grow()
	}
	h.place(key, tag, val)
	h.size++
}

// Len returns the number of stored entries.
func (h *Hash) Len() int { return h.size }

// Cap returns the current slot count.
func (h *Hash) Cap() int { return len(h.vals) }

// MaxProbe returns the largest displacement currently in the table.
// Used by tests to check the Robin Hood bound.
func (h *Hash) MaxProbe() uint32 {
	var m uint32
	for i := range h.vals {
		if h.vals[i] == types.NoIndex {
			continue
		}
		if d := h.distance(uint32(i)); d > m {
			m = d
		}
	}
	return m
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// INTERNALS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// distance is how far slot i's occupant sits from its home slot.
func (h *Hash) distance(i uint32) uint32 {
	return (i + h.mask + 1 - (h.tags[i] & h.mask)) & h.mask
}

func (h *Hash) place(key types.Fingerprint, tag uint32, val types.Index) {
	i := tag & h.mask
	dist := uint32(0)

	for {
		if h.vals[i] == types.NoIndex {
			h.keys[i], h.tags[i], h.vals[i] = key, tag, val
			return
		}
		if d := h.distance(i); d < dist {
			key, h.keys[i] = h.keys[i], key
			tag, h.tags[i] = h.tags[i], tag
			val, h.vals[i] = h.vals[i], val
			dist = d
		}
		i = (i + 1) & h.mask
		dist++
	}
}

// grow doubles the table and re-places every entry.
func (h *Hash) grow() {
	keys, tags, vals := h.keys, h.tags, h.vals
	sz := uint32(len(vals)) * 2
	h.keys = make([]types.Fingerprint, sz)
	h.tags = make([]uint32, sz)
	h.vals = make([]types.Index, sz)
	h.mask = sz - 1
	for i := range vals {
		if vals[i] != types.NoIndex {
			h.place(keys[i], tags[i], vals[i])
		}
	}
}
