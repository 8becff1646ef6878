package tree

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// forEachLimit runs fn for every item with at most limit calls in flight.
// A failing item never stops the others; failures are collected in input
// order and returned as a *BatchError. The result is nil when every item
// succeeded.
func forEachLimit[T any](ctx context.Context, op string, limit int, items []T, key func(T) string, fn func(context.Context, T) error) error {
	if len(items) == 0 {
		return nil
	}
	errs := make([]error, len(items))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = fn(ctx, item)
			return nil
		})
	}
	_ = g.Wait()

	var batch *BatchError
	for i, err := range errs {
		if err == nil {
			continue
		}
		if batch == nil {
			batch = &BatchError{Op: op, Total: len(items)}
		}
		batch.Failed = append(batch.Failed, ItemError{ID: key(items[i]), Err: err})
	}
	if batch == nil {
		return nil
	}
	return batch
}

// collector gathers values produced concurrently by fan-out workers.
type collector[T any] struct {
	mu    sync.Mutex
	items []T
}

func (c *collector[T]) add(v ...T) {
	c.mu.Lock()
	c.items = append(c.items, v...)
	c.mu.Unlock()
}
