package service

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// parallelRange splits [0, n) into at most workers contiguous chunks and runs
// fn on each concurrently. Chunks are disjoint, so fn may write its own
// indices of a preallocated slice without locking.
func parallelRange(ctx context.Context, n, workers int, fn func(ctx context.Context, lo, hi int) error) error {
	if n == 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers

	g, gCtx := errgroup.WithContext(ctx)
	for lo := 0; lo < n; lo += chunk {
		lo, hi := lo, min(lo+chunk, n)
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			return fn(gCtx, lo, hi)
		})
	}
	return g.Wait()
}

type noopProgress struct{}

func (noopProgress) Start(string, int) {}
func (noopProgress) Add(int)           {}
func (noopProgress) Finish()           {}
