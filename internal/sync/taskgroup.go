package sync

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunTasks awaits every future under first-exception semantics: if any
// future resolves with an error, RunTasks stops waiting on the others
// and returns that first error. It does not cancel the tasks behind the
// remaining futures; they keep running on the context they were
// submitted with, and their results are not read. Adapted
// from the teacher's processBatch wait-group/error-channel pattern in
// internal/syncer/syncer.go, upgraded to errgroup now that the module
// depends on golang.org/x/sync directly.
func RunTasks(ctx context.Context, futures []Future) ([]any, error) {
	if len(futures) == 0 {
		return nil, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make([]any, len(futures))
	for i, f := range futures {
		i, f := i, f
		g.Go(func() error {
			select {
			case r := <-f:
				if r.Err != nil {
					return r.Err
				}
				results[i] = r.Value
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
