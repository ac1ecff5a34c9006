package request

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// BatchConcurrencyLimit is the default maximum number of concurrent requests in one Batch.
const BatchConcurrencyLimit = 32

// Batch is a group of requests scheduled by the Add method
// and sent concurrently by the RunAndWait method.
//
// The batch is awaited as a unit: RunAndWait returns only after all
// requests have finished. The first error cancels the batch context
// and is returned, no per-request error isolation is attempted.
//
// If you need to send requests immediately,
// or if you want to wait and collect all errors, use WaitGroup instead.
type Batch struct {
	ctx   context.Context
	start chan struct{} // postpone sending until RunAndWait is called
	group *errgroup.Group
	sem   *semaphore.Weighted // limit concurrency
}

// NewBatch creates a new Batch with the default concurrency limit.
func NewBatch(ctx context.Context) *Batch {
	return NewBatchWithLimit(ctx, BatchConcurrencyLimit)
}

// NewBatchWithLimit creates a new Batch with given concurrent requests limit.
func NewBatchWithLimit(ctx context.Context, limit int64) *Batch {
	group, ctx := errgroup.WithContext(ctx)
	return &Batch{
		ctx:   ctx,
		start: make(chan struct{}),
		group: group,
		sem:   semaphore.NewWeighted(limit),
	}
}

// Add request for sending.
// The request will be sent on call of the RunAndWait method.
// Additional requests can be added using the Add method (for example from a request callback),
// even if RunAndWait has already been called, but is not yet finished.
func (g *Batch) Add(request Sendable) {
	g.group.Go(func() error {
		// Postpone sending until RunAndWait is called
		<-g.start

		// Limit number of concurrent requests
		if err := g.sem.Acquire(g.ctx, 1); err != nil {
			// Ctx is done, return
			return err
		}
		defer g.sem.Release(1)

		return request.SendOrErr(g.ctx)
	})
}

// RunAndWait starts sending requests and waits for the result.
// After the first error sending stops and the error is returned.
// An empty batch returns immediately with a nil error.
func (g *Batch) RunAndWait() error {
	close(g.start)
	return g.group.Wait()
}
