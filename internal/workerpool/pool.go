// Package workerpool runs a function over a slice with bounded concurrency
// and keeps the results in input order.
package workerpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one item.
type Result[R any] struct {
	Value R
	Err   error
}

// OK reports whether the item succeeded.
func (r Result[R]) OK() bool { return r.Err == nil }

// Map calls fn for every item with at most limit calls in flight. A failing
// item does not stop the others. Items that were never started because ctx
// ended report ctx.Err().
func Map[T, R any](ctx context.Context, items []T, limit int, fn func(context.Context, T) (R, error)) []Result[R] {
	out := make([]Result[R], len(items))
	if limit < 1 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i := range items {
		if err := ctx.Err(); err != nil {
			out[i].Err = err
			continue
		}
		g.Go(func() error {
			v, err := fn(ctx, items[i])
			out[i] = Result[R]{Value: v, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
