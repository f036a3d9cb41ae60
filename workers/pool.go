// Package workers runs the search's fixed-size worker pool.
//
// Each worker owns an OS thread for its whole life (runtime.LockOSThread)
// and can optionally be pinned to one CPU. The first worker error cancels the
// shared context; Run returns that error after every worker has exited.
package workers

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Options configures Run.
type Options struct {
	// Workers is the pool size. Default: runtime.NumCPU().
	Workers int

	// Pin binds worker i to CPU i mod NumCPU.
	Pin bool
}

// Size resolves the effective pool size.
func (o Options) Size() int {
	if o.Workers <= 0 {
		return runtime.NumCPU()
	}
	return o.Workers
}

// Run starts Size() workers running fn(ctx, id) and waits for all of them.
func Run(ctx context.Context, opts Options, fn func(ctx context.Context, id int) error) error {
	n := opts.Size()
	cpus := runtime.NumCPU()
	g, gctx := errgroup.WithContext(ctx)
	for id := 0; id < n; id++ {
		g.Go(func() error {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			if opts.Pin {
				setAffinity(id % cpus)
			}
			return fn(gctx, id)
		})
	}
	return g.Wait()
}
