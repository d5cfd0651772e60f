package coordinator

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// outcome is one task's result in [joinAll].
type outcome[T, R any] struct {
	Item  T
	Value R
	Err   error
}

// joinAll runs task for every item concurrently and waits for all of them,
// however long the slowest takes. Results keep the order of items. A failing
// task never cancels the others.
func joinAll[T, R any](ctx context.Context, items []T, task func(context.Context, T) (R, error)) []outcome[T, R] {
	out := make([]outcome[T, R], len(items))
	var g errgroup.Group
	for i, it := range items {
		g.Go(func() error {
			v, err := task(ctx, it)
			out[i] = outcome[T, R]{Item: it, Value: v, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
