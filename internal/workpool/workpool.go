// Package workpool provides a fixed-size worker pool that lives as long as
// its owner. Callers hand it a slice of independent jobs and block until
// every job has run; at most Size jobs execute at once across all callers.
package workpool

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool bounds concurrent job execution.
type Pool struct {
	name string
	size int
	sem  *semaphore.Weighted
}

// New returns a pool running at most size jobs concurrently. Sizes below 1
// are raised to 1.
func New(name string, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{name: name, size: size, sem: semaphore.NewWeighted(int64(size))}
}

// Name identifies the pool in logs.
func (p *Pool) Name() string { return p.name }

// Size is the concurrency limit.
func (p *Pool) Size() int { return p.size }

// Run calls fn(ctx, i) for every i in [0, n) and waits for all calls to
// return. Jobs report their own failures; Run only returns an error when ctx
// is cancelled before every job could start.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int)) error {
	var g errgroup.Group
	var acquireErr error
	for i := 0; i < n; i++ {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			acquireErr = err
			break
		}
		g.Go(func() error {
			defer p.sem.Release(1)
			fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
	return acquireErr
}
