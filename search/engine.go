// ════════════════════════════════════════════════════════════════════════════════════════════════
// ⚡ OUT-OF-CORE SEARCH ENGINE
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Out-of-Core Puzzle Solver
// Component: Search Driver
//
// Description:
//   Owns every piece of search state (node arena, dedup index, record cache, archive, frame
//   queue, trim rendezvous) and drives either a frame-by-frame breadth-first search or an
//   iterative-deepening depth-first search over a Problem.
//
// Design Principles:
//   - Node records hold only (parent, step, frame, flags); states are rebuilt by replaying the
//     parent chain from the nearest remembered ancestor
//   - A node is claimed exactly once: the claim sets FlagExpanded under the cache lock, which
//     also freezes its parent link
//   - Re-parenting only ever lowers a node's frame, so parent chains cannot form cycles
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"tilesolver/archive"
	"tilesolver/arena"
	"tilesolver/cache"
	"tilesolver/config"
	"tilesolver/control"
	"tilesolver/dedupe"
	"tilesolver/framequeue"
	"tilesolver/solution"
	"tilesolver/types"
	"tilesolver/workers"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// TYPE DEFINITIONS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

var (
	ErrFrameOrder    = errors.New("search: successor frame not after its parent's")
	ErrFrameNotEmpty = errors.New("search: frame still holds entries after its workers joined")
	ErrBrokenChain   = errors.New("search: parent chain does not reach the root")
	ErrUnknownMode   = errors.New("search: unknown mode")
	ErrClosed        = errors.New("search: engine closed")
)

// Result summarises a finished run.
type Result struct {
	Found bool
	Goal  types.Index
	Frame uint32

	Nodes      int
	Reparents  uint64
	Stale      uint64
	Pruned     uint64
	Deferred   uint64
	Trims      uint64
	Frames     int
	Iterations int
	Elapsed    time.Duration
}

// Engine runs one search session over a Problem.
type Engine[S any] struct {
	cfg  config.Config
	prob Problem[S]
	log  *slog.Logger

	nodes *arena.Arena
	seen  *dedupe.Table
	store archive.Store
	cache *cache.Cache
	queue *framequeue.Queue
	gate  *control.Rendezvous
	stop  control.Flag

	pool    workers.Options
	workers []*worker[S]
	root    types.Index

	// goal bookkeeping; goalMu also serialises finish-file appends
	goalMu    sync.Mutex
	goal      types.Index
	goalFrame uint32

	// depth-first state
	stack   *control.Stack[item]
	finish  *framequeue.IndexFile
	best    atomic.Uint32
	budget  uint32
	iter    uint32
	minTip  atomic.Uint32
	closed  bool
	started bool

	created    atomic.Uint64
	reparented atomic.Uint64
	stale      atomic.Uint64
	pruned     atomic.Uint64
	deferred   atomic.Uint64

	progress rate.Sometimes
}

// item is one depth-first stack entry: a node and the frame it was pushed at.
type item struct {
	idx   types.Index
	frame uint32
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// CONSTRUCTION
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// New builds an engine from a validated configuration. The archive and
// queue directories are created as needed.
func New[S any](cfg config.Config, prob Problem[S], log *slog.Logger) (*Engine[S], error) {
	if log == nil {
		log = slog.Default()
	}
	switch cfg.Search.Mode {
	case config.ModeBFS, config.ModeDFS:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Search.Mode)
	}

	e := &Engine[S]{
		cfg:      cfg,
		prob:     prob,
		log:      log.With("mode", cfg.Search.Mode),
		nodes:    arena.New(cfg.Nodes.Capacity),
		seen:     dedupe.New(cfg.Nodes.Shards, cfg.Nodes.ShardHint),
		gate:     control.NewRendezvous(),
		pool:     workers.Options{Workers: cfg.Search.Workers, Pin: cfg.Search.PinWorkers},
		progress: rate.Sometimes{Interval: 2 * time.Second},
	}
	e.best.Store(math.MaxUint32)

	var err error
	e.store, err = archive.Open(archive.Config{
		Backend:     archive.Backend(cfg.Archive.Backend),
		Dir:         cfg.ArchiveDir(),
		ClusterSize: cfg.Archive.ClusterSize,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	e.cache, err = cache.New(cache.Config{
		Policy:     cache.Policy(cfg.Cache.Policy),
		Capacity:   cfg.CacheCapacity(),
		Threshold:  cfg.CacheThreshold(),
		Buckets:    cfg.Cache.Buckets,
		ChainDepth: cfg.Cache.ChainDepth,
	}, e.store)
	if err != nil {
		e.store.Close()
		return nil, err
	}

	qcfg := framequeue.Config{
		Backend:  framequeue.Backend(cfg.Queue.Backend),
		Dir:      cfg.QueueDir(),
		Prefix:   "frame",
		MaxFrame: cfg.Search.MaxFrame,
	}
	if cfg.Search.Mode == config.ModeDFS {
		// Tip files are indexed by iteration, and always live on disk.
		qcfg.Backend = framequeue.BackendFile
		qcfg.Prefix = "tip"
		qcfg.MaxFrame = uint32(cfg.Search.MaxIterations)
	}
	e.queue, err = framequeue.Open(qcfg)
	if err != nil {
		e.store.Close()
		return nil, err
	}

	if cfg.Search.Mode == config.ModeDFS {
		e.finish, err = framequeue.OpenIndexFile(filepath.Join(cfg.QueueDir(), "finish.idx"), true)
		if err != nil {
			e.queue.Close()
			e.store.Close()
			return nil, err
		}
	}

	n := e.pool.Size()
	e.workers = make([]*worker[S], n)
	for i := range e.workers {
		e.workers[i] = &worker[S]{e: e, id: i, replay: newReplayCache(cfg.Search.ReplayCache)}
	}
	e.stack = control.NewStack[item](n)
	return e, nil
}

// Cache exposes the record cache (path reconstruction reads through it).
func (e *Engine[S]) Cache() *cache.Cache { return e.cache }

// Root is the index of the initial state once Run has started.
func (e *Engine[S]) Root() types.Index { return e.root }

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// RUN
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Run searches until a goal is found, the frame budget is exhausted or a
// fatal error occurs. An engine runs once.
func (e *Engine[S]) Run(ctx context.Context) (Result, error) {
	if e.closed {
		return Result{}, ErrClosed
	}
	if e.started {
		return Result{}, errors.New("search: engine already ran")
	}
	e.started = true
	start := time.Now()

	root, err := e.plantRoot()
	if err != nil {
		return Result{}, err
	}
	e.root = root
	e.log.Info("search start",
		"workers", len(e.workers),
		"max_frame", e.cfg.Search.MaxFrame,
		"policy", e.cfg.Cache.Policy,
		"cache_capacity", e.cache.Capacity(),
		"archive", e.cfg.Archive.Backend,
		"queue", e.queue.Backend())

	var res Result
	if e.cfg.Search.Mode == config.ModeDFS {
		res, err = e.runDFS(ctx)
	} else {
		res, err = e.runBFS(ctx)
	}
	res.Nodes = e.nodes.Len()
	res.Reparents = e.reparented.Load()
	res.Stale = e.stale.Load()
	res.Pruned = e.pruned.Load()
	res.Deferred = e.deferred.Load()
	res.Trims = e.gate.Rounds()
	res.Elapsed = time.Since(start)
	if err != nil {
		return res, err
	}
	e.log.Info("search done",
		"found", res.Found,
		"frame", res.Frame,
		"nodes", res.Nodes,
		"reparents", res.Reparents,
		"stale", res.Stale,
		"trims", res.Trims,
		"elapsed", res.Elapsed)
	return res, nil
}

// plantRoot creates the node of the initial state at frame 0.
func (e *Engine[S]) plantRoot() (types.Index, error) {
	fp := e.prob.Compress(e.prob.Initial())
	idx, _, err := e.seen.LookupOrInsert(fp, func() (types.Index, error) {
		idx, err := e.nodes.Allocate()
		if err != nil {
			return types.NoIndex, err
		}
		return idx, e.cache.Create(idx, types.Record{})
	})
	if err != nil {
		return types.NoIndex, fmt.Errorf("search: plant root: %w", err)
	}
	e.created.Add(1)
	nodesCreated.Inc()
	return idx, nil
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// SHARED NODE HANDLING
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// claim marks idx expanded if it is still scheduled at frame. false means
// the dequeued entry is stale: the node moved to another frame or was
// already expanded.
func (e *Engine[S]) claim(idx types.Index, frame uint32) (types.Record, bool, error) {
	claimed := false
	rec, err := e.cache.Modify(idx, func(r *types.Record) bool {
		if r.Frame != frame || r.Expanded() {
			return false
		}
		r.Flags |= types.FlagExpanded
		claimed = true
		return true
	})
	if err != nil {
		return rec, false, fmt.Errorf("search: claim %d: %w", idx, err)
	}
	if !claimed {
		e.stale.Add(1)
		dequeues.WithLabelValues("stale").Inc()
	}
	return rec, claimed, nil
}

// placement is what the active mode does with a successor at a frame.
type placement uint8

const (
	placeDrop placement = iota
	placeNow
	placeDefer
)

func (e *Engine[S]) place(nf uint32) placement {
	if nf > e.cfg.Search.MaxFrame {
		return placeDrop
	}
	if e.cfg.Search.Mode != config.ModeDFS {
		return placeNow
	}
	if nf >= e.best.Load() {
		return placeDrop
	}
	if nf > e.budget {
		return placeDefer
	}
	return placeNow
}

// schedule hands a new or re-parented node to the active mode.
func (e *Engine[S]) schedule(idx types.Index, nf uint32, p placement) error {
	switch {
	case e.cfg.Search.Mode != config.ModeDFS:
		return e.queue.Enqueue(idx, nf)
	case p == placeDefer:
		e.deferred.Add(1)
		childrenDeferred.Inc()
		for {
			cur := e.minTip.Load()
			if nf >= cur || e.minTip.CompareAndSwap(cur, nf) {
				break
			}
		}
		return e.queue.Enqueue(idx, e.iter)
	default:
		e.stack.Push(item{idx: idx, frame: nf})
		return nil
	}
}

// successor records one emitted child of parent (at frame) and returns the
// child's node, or types.NoIndex when the child was pruned.
func (e *Engine[S]) successor(parent types.Index, frame uint32, fp types.Fingerprint, step types.Step, nf uint32) (types.Index, error) {
	if nf <= frame {
		return types.NoIndex, fmt.Errorf("%w: %d -> %d", ErrFrameOrder, frame, nf)
	}
	p := e.place(nf)
	if p == placeDrop {
		e.pruned.Add(1)
		childrenPruned.Inc()
		return types.NoIndex, nil
	}

	idx, isNew, err := e.seen.LookupOrInsert(fp, func() (types.Index, error) {
		idx, err := e.nodes.Allocate()
		if err != nil {
			return types.NoIndex, err
		}
		return idx, e.cache.Create(idx, types.Record{Parent: parent, Step: step, Frame: nf})
	})
	if err != nil {
		return types.NoIndex, fmt.Errorf("search: record successor: %w", err)
	}
	if isNew {
		e.created.Add(1)
		nodesCreated.Inc()
		return idx, e.schedule(idx, nf, p)
	}

	moved := false
	if _, err := e.cache.Modify(idx, func(r *types.Record) bool {
		if r.Expanded() || nf >= r.Frame {
			return false
		}
		r.Parent, r.Step, r.Frame = parent, step, nf
		moved = true
		return true
	}); err != nil {
		return types.NoIndex, fmt.Errorf("search: re-parent %d: %w", idx, err)
	}
	if !moved {
		return idx, nil
	}
	e.reparented.Add(1)
	nodesReparented.Inc()
	return idx, e.schedule(idx, nf, p)
}

// trim is the exclusive action of the rendezvous.
func (e *Engine[S]) trim() error {
	start := time.Now()
	n, err := e.cache.Trim()
	if err != nil {
		return err
	}
	if e.cfg.Archive.Durable {
		if err := e.store.Flush(); err != nil {
			return err
		}
	}
	cacheTrims.Inc()
	cacheEvicted.Add(float64(n))
	cacheResident.Set(float64(e.cache.Len()))
	trimDuration.Observe(time.Since(start).Seconds())
	e.log.Debug("cache trimmed", "evicted", n, "resident", e.cache.Len(), "took", time.Since(start))
	return nil
}

// reachedGoal records a claimed goal node. Breadth-first keeps the lowest
// index of the first goal frame and stops expanding; depth-first appends to
// the finish file and tightens the best frame.
func (e *Engine[S]) reachedGoal(idx types.Index, frame uint32) error {
	dequeues.WithLabelValues("goal").Inc()
	e.goalMu.Lock()
	defer e.goalMu.Unlock()

	if e.cfg.Search.Mode == config.ModeDFS {
		if err := e.finish.Append(idx); err != nil {
			return err
		}
		for {
			cur := e.best.Load()
			if frame >= cur || e.best.CompareAndSwap(cur, frame) {
				break
			}
		}
		e.log.Info("goal reached", "index", idx, "frame", frame, "best", e.best.Load())
		return nil
	}

	if e.goal == types.NoIndex || frame < e.goalFrame || (frame == e.goalFrame && idx < e.goal) {
		e.goal, e.goalFrame = idx, frame
	}
	e.stop.Set()
	return nil
}

func (e *Engine[S]) logProgress(frame uint32) {
	e.progress.Do(func() {
		st := e.cache.Stats()
		e.log.Info("progress",
			"frame", frame,
			"nodes", e.nodes.Len(),
			"reparents", e.reparented.Load(),
			"stale", e.stale.Load(),
			"resident", st.Resident,
			"cache_hits", st.Hits,
			"cache_loads", st.Loads)
	})
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// SOLUTION & TEARDOWN
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Solution rebuilds the transcript leading to goal.
func (e *Engine[S]) Solution(goal types.Index) (*solution.Transcript, error) {
	steps, err := solution.Trace(pathReader[S]{e}, goal, e.nodes.Len())
	if err != nil {
		return nil, err
	}
	return solution.Build[S](e.prob, steps)
}

// pathReader loads ancestors through the cache's miss path. A search can
// end with the cache anywhere up to full capacity, so it trims back to the
// threshold before a load whenever occupancy is above it.
type pathReader[S any] struct {
	e *Engine[S]
}

func (r pathReader[S]) Get(idx types.Index) (types.Record, error) {
	if r.e.cache.NeedsTrim() {
		if err := r.e.trim(); err != nil {
			return types.Record{}, fmt.Errorf("search: trim before trace: %w", err)
		}
	}
	return r.e.cache.Get(idx)
}

// Close releases the queue, the finish file and the archive. Frame and tip
// files are deleted. The finish file and the archive clusters stay on disk
// until the next run in the same work directory truncates or overwrites them.
func (e *Engine[S]) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	var errs []error
	errs = append(errs, e.queue.Close())
	if e.finish != nil {
		errs = append(errs, e.finish.Close())
	}
	errs = append(errs, e.store.Close())
	return errors.Join(errs...)
}
