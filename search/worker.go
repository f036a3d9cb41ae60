package search

import (
	"fmt"

	"tilesolver/config"
	"tilesolver/types"
)

// worker is the per-thread part of a search: its replay cache and scratch
// buffers. Workers live for the whole run so their caches carry across
// frames and iterations.
type worker[S any] struct {
	e      *Engine[S]
	id     int
	replay *replayCache
	chain  []types.Step
}

// state rebuilds the puzzle state of idx, whose record is rec, by walking
// parent links back to the root or to a node in the replay cache and
// replaying the collected steps forward.
//
// Every ancestor of a claimed node is itself expanded, so the chain is
// frozen while it is walked.
func (w *worker[S]) state(idx types.Index, rec types.Record) (S, error) {
	e := w.e
	steps := w.chain[:0]
	cur, r := idx, rec
	limit := e.nodes.Len()

	var s S
	for {
		if fp, ok := w.replay.get(cur); ok {
			s = e.prob.Decompress(fp)
			break
		}
		if cur == e.root {
			s = e.prob.Initial()
			break
		}
		if r.Parent == types.NoIndex || len(steps) > limit {
			w.chain = steps
			return s, fmt.Errorf("%w: node %d via %d", ErrBrokenChain, idx, cur)
		}
		steps = append(steps, r.Step)
		cur = r.Parent
		var err error
		if r, err = e.cache.Peek(cur); err != nil {
			w.chain = steps
			return s, fmt.Errorf("search: walk parent %d of %d: %w", cur, idx, err)
		}
	}

	for i := len(steps) - 1; i >= 0; i-- {
		if _, err := e.prob.Replay(&s, steps[i]); err != nil {
			w.chain = steps
			return s, fmt.Errorf("search: replay node %d: %w", idx, err)
		}
	}
	replaySteps.Observe(float64(len(steps)))
	w.chain = steps
	w.replay.put(idx, e.prob.Compress(s))
	return s, nil
}

// visit processes one dequeued or popped node: claim, rebuild, goal test,
// expand. Stale entries are skipped without error.
func (w *worker[S]) visit(idx types.Index, frame uint32) error {
	e := w.e
	if e.cfg.Search.Mode == config.ModeDFS && frame >= e.best.Load() {
		dequeues.WithLabelValues("pruned").Inc()
		return nil
	}
	rec, ok, err := e.claim(idx, frame)
	if err != nil || !ok {
		return err
	}
	s, err := w.state(idx, rec)
	if err != nil {
		return err
	}
	if e.prob.IsGoal(s) {
		return e.reachedGoal(idx, frame)
	}
	if e.stop.IsSet() {
		return nil
	}
	return w.expand(idx, s, frame)
}

// expand feeds every successor of s (node idx at frame) through the engine.
// Surviving children go into the replay cache: they are the likeliest next
// visits, and a node's state never changes.
func (w *worker[S]) expand(idx types.Index, s S, frame uint32) error {
	e := w.e
	var err error
	e.prob.Expand(s, frame, func(child S, step types.Step, nf uint32) {
		if err != nil {
			return
		}
		fp := e.prob.Compress(child)
		var c types.Index
		if c, err = e.successor(idx, frame, fp, step, nf); err == nil && c != types.NoIndex {
			w.replay.put(c, fp)
		}
	})
	dequeues.WithLabelValues("expanded").Inc()
	return err
}
