// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: dedupe.go - global state deduplication index
//
// Purpose:
//   - Maps every visited state fingerprint to exactly one node index.
//   - Is the single gate that decides whether a discovered state is new.
//
// Notes:
//   - The table is split into power-of-two many shards, each guarded by its
//     own mutex. A fingerprint's shard comes from the high bits of its hash,
//     its home slot inside the shard from the low bits.
//   - The allocation callback runs while the shard lock is held, so the new
//     node's record is installed before any other worker can see its index.
//
// ⚠️ alloc must not call back into the same Table.
// ─────────────────────────────────────────────────────────────────────────────

package dedupe

import (
	"sync"

	"tilesolver/localidx"
	"tilesolver/types"
	"tilesolver/utils"
)

// shard is one independently locked partition, padded to its own cache line.
type shard struct {
	mu    sync.Mutex
	table *localidx.Hash
	_     [48]byte
}

// Table is the sharded fingerprint → index map.
type Table struct {
	shards []shard
	shift  uint
}

// New creates a table with the given number of shards (rounded up to a power
// of two) and a per-shard capacity hint.
func New(shards, hint int) *Table {
	n := int(utils.NextPow2(max(shards, 1)))
	t := &Table{shards: make([]shard, n), shift: 64}
	for s := n; s > 1; s >>= 1 {
		t.shift--
	}
	for i := range t.shards {
		t.shards[i].table = localidx.New(hint)
	}
	return t
}

// locate returns the shard and the in-shard tag for fp.
//
//go:inline
func (t *Table) locate(fp types.Fingerprint) (*shard, uint32) {
	h := fp.Hash()
	var s uint64
	if t.shift < 64 {
		s = h >> t.shift
	}
	return &t.shards[s], uint32(h)
}

// LookupOrInsert returns the index associated with fp. When fp is unseen,
// alloc is called (under the shard lock) to create the node and its index is
// stored; isNew reports which case happened. An alloc error leaves the table
// unchanged.
func (t *Table) LookupOrInsert(fp types.Fingerprint, alloc func() (types.Index, error)) (types.Index, bool, error) {
	sh, tag := t.locate(fp)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if idx, ok := sh.table.Get(fp, tag); ok {
		return idx, false, nil
	}
	idx, err := alloc()
	if err != nil {
		return types.NoIndex, false, err
	}
	sh.table.Insert(fp, tag, idx)
	return idx, true, nil
}

// Lookup returns the index for fp without inserting.
func (t *Table) Lookup(fp types.Fingerprint) (types.Index, bool) {
	sh, tag := t.locate(fp)
	sh.mu.Lock()
	idx, ok := sh.table.Get(fp, tag)
	sh.mu.Unlock()
	return idx, ok
}

// Len counts the stored fingerprints across all shards.
func (t *Table) Len() int {
	n := 0
	for i := range t.shards {
		sh := &t.shards[i]
		sh.mu.Lock()
		n += sh.table.Len()
		sh.mu.Unlock()
	}
	return n
}

// Shards returns the shard count.
func (t *Table) Shards() int { return len(t.shards) }
