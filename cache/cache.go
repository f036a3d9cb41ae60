// ════════════════════════════════════════════════════════════════════════════════════════════════
// ⚡ NODE RECORD CACHE
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Out-of-Core Puzzle Solver
// Component: Bounded In-RAM Record Cache
//
// Description:
//   Fixed-capacity slot arena holding the resident subset of node records. Misses are served
//   from the archive and installed into a free slot; trims evict cold entries back to the
//   archive, writing dirty ones first. Which entries are cold is decided by a pluggable policy
//   (hash chains or a splay tree).
//
// Design Principles:
//   - Node indices and slots are distinct identifier spaces; the policy's lookup is the only
//     bridge between them
//   - Slot 0 is reserved as the nil link, free slots form a singly linked free list
//   - One cache-wide mutex guards every structural field; records leave by value
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package cache

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"tilesolver/archive"
	"tilesolver/types"
	"tilesolver/utils"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// TYPE DEFINITIONS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

var (
	ErrCacheFull         = errors.New("cache: no free slot")
	ErrResident          = errors.New("cache: index already resident")
	ErrNotResident       = errors.New("cache: index not resident")
	ErrNoIndex           = errors.New("cache: index 0 is not a node")
	ErrTrimPostcondition = errors.New("cache: occupancy above threshold after trim")
	ErrUnknownPolicy     = errors.New("cache: unknown eviction policy")
	ErrBadConfig         = errors.New("cache: invalid configuration")
)

// Slot is a physical cache position. 0 is the nil slot.
type Slot uint32

const noSlot Slot = 0

// entry is one cache slot. next doubles as the free-list link while the
// slot is unallocated.
type entry struct {
	rec   types.Record
	index types.Index
	dirty bool
	alloc bool

	next        Slot // hash-chain successor
	left, right Slot // splay-tree children
}

// Policy names an eviction policy.
type Policy string

const (
	PolicyHashChain Policy = "hashchain"
	PolicySplay     Policy = "splay"
)

// Config sizes the cache.
type Config struct {
	// Policy selects the eviction policy. Default: PolicyHashChain.
	Policy Policy

	// Capacity is the number of slots.
	Capacity int

	// Threshold is the occupancy Trim brings the cache down to, and above
	// which NeedsTrim reports pressure. Default: 3/4 of Capacity.
	Threshold int

	// Buckets is the hash-chain bucket count. Default: Capacity/ChainDepth
	// rounded up to a power of two.
	Buckets int

	// ChainDepth is the chain length kept by the first hash-chain trim pass.
	ChainDepth int
}

// Stats are cumulative cache counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Loads     uint64
	Evictions uint64
	Written   uint64
	Trims     uint64
	Resident  int
}

// policy decides lookup order and eviction. Every method runs with the
// cache mutex held.
type policy interface {
	find(c *Cache, idx types.Index, promote bool) Slot
	link(c *Cache, s Slot)
	trim(c *Cache, target int, evict func(Slot) error) error
}

// Cache is the bounded record cache. Safe for concurrent use.
type Cache struct {
	mu        sync.Mutex
	slots     []entry
	free      Slot
	used      atomic.Int64
	threshold int
	pol       policy
	store     archive.Store
	stats     Stats
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// CONSTRUCTOR
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// New builds a cache over store.
func New(cfg Config, store archive.Store) (*Cache, error) {
	if cfg.Capacity < 2 {
		return nil, fmt.Errorf("%w: capacity %d", ErrBadConfig, cfg.Capacity)
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = cfg.Capacity * 3 / 4
	}
	if cfg.Threshold < 0 || cfg.Threshold >= cfg.Capacity {
		return nil, fmt.Errorf("%w: threshold %d not below capacity %d", ErrBadConfig, cfg.Threshold, cfg.Capacity)
	}
	if cfg.ChainDepth <= 0 {
		cfg.ChainDepth = 4
	}
	if cfg.Buckets <= 0 {
		cfg.Buckets = int(utils.NextPow2(max(cfg.Capacity/cfg.ChainDepth, 1)))
	}

	c := &Cache{
		slots:     make([]entry, cfg.Capacity+1),
		threshold: cfg.Threshold,
		store:     store,
	}
	for s := cfg.Capacity; s >= 1; s-- {
		c.slots[s].next = c.free
		c.free = Slot(s)
	}

	switch cfg.Policy {
	case "", PolicyHashChain:
		c.pol = newHashChain(cfg.Buckets, cfg.ChainDepth)
	case PolicySplay:
		c.pol = &splayTree{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, cfg.Policy)
	}
	return c, nil
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// READ PATHS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Get returns idx's record, loading it from the archive into a fresh slot on
// a miss. A hit promotes the entry under the active policy.
func (c *Cache) Get(idx types.Index) (types.Record, error) {
	if idx == types.NoIndex {
		return types.Record{}, ErrNoIndex
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.resolve(idx)
	if err != nil {
		return types.Record{}, err
	}
	return c.slots[s].rec, nil
}

// Peek returns idx's record without installing it on a miss. The hash-chain
// policy does not promote on Peek; the splay policy splays on every lookup.
func (c *Cache) Peek(idx types.Index) (types.Record, error) {
	if idx == types.NoIndex {
		return types.Record{}, ErrNoIndex
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if s := c.pol.find(c, idx, false); s != noSlot {
		return c.slots[s].rec, nil
	}
	rec, err := c.store.Unarchive(idx)
	if err != nil {
		return types.Record{}, fmt.Errorf("cache: peek index %d: %w", idx, err)
	}
	return rec, nil
}

// Resident reports whether idx currently occupies a slot.
func (c *Cache) Resident(idx types.Index) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pol.find(c, idx, false) != noSlot
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// WRITE PATHS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Create installs the record of a freshly allocated node. The entry starts
// dirty: it has never been archived.
func (c *Cache) Create(idx types.Index, rec types.Record) error {
	if idx == types.NoIndex {
		return ErrNoIndex
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pol.find(c, idx, false) != noSlot {
		return fmt.Errorf("%w: %d", ErrResident, idx)
	}
	_, err := c.install(idx, rec, true)
	return err
}

// Modify applies fn to idx's record atomically with respect to every other
// cache operation. When fn returns true the change is kept and the entry is
// marked dirty. The record as it stands afterwards is returned.
func (c *Cache) Modify(idx types.Index, fn func(*types.Record) bool) (types.Record, error) {
	if idx == types.NoIndex {
		return types.Record{}, ErrNoIndex
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.resolve(idx)
	if err != nil {
		return types.Record{}, err
	}
	rec := c.slots[s].rec
	if fn(&rec) {
		c.slots[s].rec = rec
		c.slots[s].dirty = true
	}
	return c.slots[s].rec, nil
}

// MarkDirty flags a resident record as modified since load.
func (c *Cache) MarkDirty(idx types.Index) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.pol.find(c, idx, false)
	if s == noSlot {
		return fmt.Errorf("%w: %d", ErrNotResident, idx)
	}
	c.slots[s].dirty = true
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// EVICTION
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// NeedsTrim reports occupancy above the threshold. Lock-free.
func (c *Cache) NeedsTrim() bool {
	return c.used.Load() > int64(c.threshold)
}

// Trim evicts cold entries until occupancy is at or below the threshold,
// archiving each dirty entry before its slot is reused. It returns the
// number of evicted entries.
func (c *Cache) Trim() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := c.used.Load()
	if before <= int64(c.threshold) {
		return 0, nil
	}
	if err := c.pol.trim(c, c.threshold, c.evict); err != nil {
		return int(before - c.used.Load()), err
	}
	if c.used.Load() > int64(c.threshold) {
		return int(before - c.used.Load()), fmt.Errorf("%w: %d > %d", ErrTrimPostcondition, c.used.Load(), c.threshold)
	}
	c.stats.Trims++
	return int(before - c.used.Load()), nil
}

// Flush archives every dirty resident entry and flushes the store.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for s := 1; s < len(c.slots); s++ {
		e := &c.slots[s]
		if !e.alloc || !e.dirty {
			continue
		}
		if err := c.store.Archive(e.index, e.rec); err != nil {
			return err
		}
		e.dirty = false
		c.stats.Written++
	}
	return c.store.Flush()
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// INTROSPECTION
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Len is the number of resident entries.
func (c *Cache) Len() int { return int(c.used.Load()) }

// Capacity is the slot count.
func (c *Cache) Capacity() int { return len(c.slots) - 1 }

// Threshold is the trim target.
func (c *Cache) Threshold() int { return c.threshold }

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stats
	st.Resident = int(c.used.Load())
	return st
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// INTERNALS (mutex held)
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// resolve finds idx with promotion, loading it on a miss.
func (c *Cache) resolve(idx types.Index) (Slot, error) {
	if s := c.pol.find(c, idx, true); s != noSlot {
		c.stats.Hits++
		return s, nil
	}
	c.stats.Misses++
	rec, err := c.store.Unarchive(idx)
	if err != nil {
		return noSlot, fmt.Errorf("cache: load index %d: %w", idx, err)
	}
	c.stats.Loads++
	return c.install(idx, rec, false)
}

func (c *Cache) install(idx types.Index, rec types.Record, dirty bool) (Slot, error) {
	s := c.free
	if s == noSlot {
		return noSlot, fmt.Errorf("%w: capacity %d", ErrCacheFull, c.Capacity())
	}
	c.free = c.slots[s].next
	c.slots[s] = entry{rec: rec, index: idx, dirty: dirty, alloc: true}
	c.used.Add(1)
	c.pol.link(c, s)
	return s, nil
}

// evict writes a dirty entry back and returns its slot to the free list.
// The policy has already unlinked it.
func (c *Cache) evict(s Slot) error {
	e := &c.slots[s]
	if e.dirty {
		if err := c.store.Archive(e.index, e.rec); err != nil {
			return err
		}
		c.stats.Written++
	}
	c.stats.Evictions++
	c.slots[s] = entry{next: c.free}
	c.free = s
	c.used.Add(-1)
	return nil
}
