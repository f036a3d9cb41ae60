package search

import (
	"context"
	"fmt"

	"tilesolver/types"
	"tilesolver/workers"
)

// runBFS processes frames in increasing order. Each non-empty frame is
// rewound, drained by the whole pool and destroyed before the next frame
// opens. The loop ends at the first frame holding a goal, when no frame
// holds work, or past MaxFrame.
func (e *Engine[S]) runBFS(ctx context.Context) (Result, error) {
	var res Result
	if err := e.queue.Enqueue(e.root, 0); err != nil {
		return res, err
	}

	size := len(e.workers)
	// Counting in 64 bits keeps the loop finite when MaxFrame is the
	// largest uint32.
	for next := uint64(0); next <= uint64(e.cfg.Search.MaxFrame); next++ {
		f := uint32(next)
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if e.queue.Pending() == 0 {
			break
		}
		n, err := e.queue.Rewind(f)
		if err != nil {
			return res, err
		}
		if n == 0 {
			if err := e.queue.Destroy(f); err != nil {
				return res, err
			}
			continue
		}

		currentFrame.Set(float64(f))
		res.Frames++
		e.gate.Reset(size)
		err = workers.Run(ctx, e.pool, func(ctx context.Context, id int) error {
			return e.workers[id].drainFrame(ctx, f)
		})
		if err != nil {
			return res, fmt.Errorf("search: frame %d: %w", f, err)
		}

		left, err := e.queue.Dequeue(f)
		if err != nil {
			return res, err
		}
		if left != types.NoIndex {
			return res, fmt.Errorf("%w: frame %d", ErrFrameNotEmpty, f)
		}
		if err := e.queue.Destroy(f); err != nil {
			return res, err
		}
		e.log.Debug("frame done", "frame", f, "entries", n, "nodes", e.nodes.Len(), "pending", e.queue.Pending())

		if e.stop.IsSet() {
			break
		}
	}

	e.goalMu.Lock()
	defer e.goalMu.Unlock()
	if e.goal != types.NoIndex {
		res.Found, res.Goal, res.Frame = true, e.goal, e.goalFrame
	}
	return res, nil
}

// drainFrame is one worker's share of frame f.
func (w *worker[S]) drainFrame(ctx context.Context, f uint32) error {
	e := w.e
	defer e.gate.Leave()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.gate.Checkpoint(e.cache.NeedsTrim, e.trim); err != nil {
			return err
		}
		idx, err := e.queue.Dequeue(f)
		if err != nil {
			return err
		}
		if idx == types.NoIndex {
			return nil
		}
		if err := w.visit(idx, f); err != nil {
			return err
		}
		e.logProgress(f)
	}
}
