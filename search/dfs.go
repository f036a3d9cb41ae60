package search

import (
	"context"
	"fmt"
	"math"

	"tilesolver/types"
	"tilesolver/workers"
)

// runDFS is iterative deepening over frame budgets. Iteration k works a
// shared stack with every node whose frame fits the budget; children past
// the budget are parked in tip file k, and iteration k+1 resumes from it
// with a wider budget. The loop reaches its fixed point when an iteration
// parks nothing.
func (e *Engine[S]) runDFS(ctx context.Context) (Result, error) {
	var res Result
	size := len(e.workers)
	budget := min(e.cfg.Search.MaxFrame, e.cfg.Search.DepthStart)

	for k := 0; k < e.cfg.Search.MaxIterations; k++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		e.iter, e.budget = uint32(k), budget
		e.minTip.Store(math.MaxUint32)
		created, reparented := e.created.Load(), e.reparented.Load()
		currentFrame.Set(float64(budget))

		e.stack.Reset(size)
		e.gate.Reset(size)
		if k == 0 {
			e.stack.Push(item{idx: e.root, frame: 0})
		} else if err := e.resume(uint32(k - 1)); err != nil {
			return res, err
		}

		err := workers.Run(ctx, e.pool, func(ctx context.Context, id int) error {
			return e.workers[id].drainStack(ctx)
		})
		if err != nil {
			return res, fmt.Errorf("search: iteration %d: %w", k, err)
		}
		res.Iterations++

		parked, err := e.queue.Rewind(uint32(k))
		if err != nil {
			return res, err
		}
		e.log.Info("iteration done",
			"iteration", k,
			"budget", budget,
			"created", e.created.Load()-created,
			"reparented", e.reparented.Load()-reparented,
			"parked", parked,
			"best", e.bestFrame())
		if parked == 0 {
			break
		}

		next := budget + e.cfg.Search.DepthStep
		if mt := e.minTip.Load(); mt != math.MaxUint32 && mt > next {
			next = mt
		}
		budget = min(next, e.cfg.Search.MaxFrame)
	}

	goal, frame, err := e.bestFinish()
	if err != nil {
		return res, err
	}
	if goal != types.NoIndex {
		res.Found, res.Goal, res.Frame = true, goal, frame
	}
	return res, nil
}

// resume moves the entries of tip file t onto the stack, re-parking the
// ones still beyond the budget, then destroys the file. Entries expanded in
// the meantime, or no better than the best finish, are dropped.
func (e *Engine[S]) resume(t uint32) error {
	for {
		idx, err := e.queue.Dequeue(t)
		if err != nil {
			return err
		}
		if idx == types.NoIndex {
			break
		}
		rec, err := e.cache.Peek(idx)
		if err != nil {
			return fmt.Errorf("search: resume %d: %w", idx, err)
		}
		if rec.Expanded() {
			continue
		}
		p := e.place(rec.Frame)
		if p == placeDrop {
			e.pruned.Add(1)
			continue
		}
		if err := e.schedule(idx, rec.Frame, p); err != nil {
			return err
		}
	}
	return e.queue.Destroy(t)
}

// drainStack is one worker's share of an iteration. A worker blocked on the
// stack is parked so a trim never waits for it.
func (w *worker[S]) drainStack(ctx context.Context) error {
	e := w.e
	fail := func(err error) error {
		e.stack.Close()
		e.gate.Leave()
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		if err := e.gate.Checkpoint(e.cache.NeedsTrim, e.trim); err != nil {
			return fail(err)
		}
		e.gate.Park()
		it, ok := e.stack.Pop()
		if !ok {
			return nil
		}
		e.gate.Unpark()
		if err := w.visit(it.idx, it.frame); err != nil {
			return fail(err)
		}
		e.logProgress(e.budget)
	}
}

// bestFinish reads the finish file back and picks the goal with the lowest
// frame, lowest index first on ties.
func (e *Engine[S]) bestFinish() (types.Index, uint32, error) {
	e.goalMu.Lock()
	idxs, err := e.finish.Snapshot()
	e.goalMu.Unlock()
	if err != nil {
		return types.NoIndex, 0, err
	}

	goal, frame := types.NoIndex, uint32(0)
	for _, idx := range idxs {
		rec, err := e.cache.Peek(idx)
		if err != nil {
			return types.NoIndex, 0, fmt.Errorf("search: finish entry %d: %w", idx, err)
		}
		if goal == types.NoIndex || rec.Frame < frame || (rec.Frame == frame && idx < goal) {
			goal, frame = idx, rec.Frame
		}
	}
	return goal, frame, nil
}

func (e *Engine[S]) bestFrame() int64 {
	if b := e.best.Load(); b != math.MaxUint32 {
		return int64(b)
	}
	return -1
}
