package stitch

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// pairFunc does the work of one pairing. It may only write state owned by
// pairing i.
type pairFunc func(ctx context.Context, i int) error

// forEachPair runs fn for every pairing and returns once all have finished.
//
// Concatenating and summing composites fan out over at most c.workers
// goroutines; the first failure cancels the rest. The repeated variant walks
// the pairings in order and points the shared simulation at submodel i right
// before fn(i), so an iteration never sees state left by the previous one.
//
// Callers hold c.mu and have a current model in c.cache.
func (c *Composite) forEachPair(ctx context.Context, op string, fn pairFunc) error {
	n := len(c.mappings)

	if c.kind == KindRepeated {
		for i := 0; i < n; i++ {
			if err := c.shared.SetModel(c.cache.subs[i]); err != nil {
				return fmt.Errorf("stitch: %s pairing %d: %w", op, i, err)
			}
			if err := fn(ctx, i); err != nil {
				return fmt.Errorf("stitch: %s pairing %d: %w", op, i, err)
			}
		}
		return nil
	}

	if c.workers <= 1 || n == 1 {
		for i := 0; i < n; i++ {
			if err := fn(ctx, i); err != nil {
				return fmt.Errorf("stitch: %s pairing %d: %w", op, i, err)
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := fn(gctx, i); err != nil {
				return fmt.Errorf("stitch: %s pairing %d: %w", op, i, err)
			}
			return nil
		})
	}
	return g.Wait()
}
